// Command keymapperd is the privileged server: it grabs physical input
// devices, owns the single Stage that makes every remapping decision, and
// serves the client's configuration/active-context updates over a local
// IPC socket.
package main

import (
	"fmt"
	"log"
	"net"
	"os"
	"sync"

	"github.com/spf13/cobra"
	"golang.org/x/sys/unix"

	keymapper "github.com/kbd/keymapper"
	"github.com/kbd/keymapper/internal/daemonconf"
	"github.com/kbd/keymapper/internal/device"
	"github.com/kbd/keymapper/internal/transport"
)

var (
	settingsPath string
	verbose      bool
)

var rootCmd = &cobra.Command{
	Use:   "keymapperd",
	Short: "Privileged server that grabs input devices and runs the mapping engine",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&settingsPath, "settings", "s", "", "path to the daemon's own YAML settings file (socket path, device allow/deny, log level)")
	flags.BoolVarP(&verbose, "verbose", "v", false, "accepted but has no effect (grabbed devices are always logged)")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	logger := log.New(os.Stderr, "keymapperd: ", log.LstdFlags)

	settings := daemonconf.Default()
	if settingsPath != "" {
		loaded, err := daemonconf.Load(settingsPath)
		if err != nil {
			return fmt.Errorf("loading %s: %w", settingsPath, err)
		}
		settings = loaded
	}

	d, err := newDaemon(settings, logger)
	if err != nil {
		return err
	}
	defer d.Close()

	return d.Run()
}

// daemon is the one module-level-free owner of every piece of mutable
// server state: the Stage, the grabbed devices, the emitter, and the IPC
// listener. Platform hook trampolines that truly can't take user data
// would route through a single process-wide cell holding *daemon — this
// binary has no such callback API (it drives its own read loop), so no
// such cell exists here; see SPEC_FULL design notes.
type daemon struct {
	logger   *log.Logger
	settings daemonconf.Settings

	backend device.Backend
	devices []device.Device
	emitter device.Emitter

	// clientMu guards clientWriter: the one currently connected client's
	// notification channel, used to forward triggered_action messages.
	// The client, not the privileged daemon, actually runs the terminal
	// command — see internal/action and cmd/keymapper.
	clientMu     sync.Mutex
	clientWriter *transport.Writer

	stage        *keymapper.Stage
	exitSequence keymapper.KeySequence

	events chan keymapper.KeyEvent
	ln     net.Listener
}

func newDaemon(settings daemonconf.Settings, logger *log.Logger) (*daemon, error) {
	backend := device.NewBackend()

	infos, err := backend.Enumerate()
	if err != nil {
		return nil, fmt.Errorf("enumerating devices: %w", err)
	}

	exitSeq, err := exitChord(settings.ExitSequence)
	if err != nil {
		return nil, fmt.Errorf("parsing exit_sequence: %w", err)
	}

	d := &daemon{
		logger:       logger,
		settings:     settings,
		backend:      backend,
		events:       make(chan keymapper.KeyEvent, 256),
		exitSequence: exitSeq,
		stage:        keymapper.NewStage(nil, nil, exitSeq),
	}

	for _, info := range infos {
		if !settings.Allows(info.Name, info.ID) {
			continue
		}
		dev, err := backend.Open(info.Path)
		if err != nil {
			logger.Printf("skipping %s: %v", info.Path, err)
			continue
		}
		if err := dev.Grab(); err != nil {
			logger.Printf("skipping %s: %v", info.Path, err)
			dev.Close()
			continue
		}
		logger.Printf("grabbed %s (%s)", info.Path, info.Name)
		d.devices = append(d.devices, dev)
	}

	emitter, err := backend.NewEmitter()
	if err != nil {
		d.closeDevices()
		return nil, fmt.Errorf("opening output device: %w", err)
	}
	d.emitter = emitter

	ln, err := listen(settings.SocketPath)
	if err != nil {
		d.closeDevices()
		emitter.Close()
		return nil, err
	}
	d.ln = ln

	return d, nil
}

// listen binds the IPC socket, first removing any file already at path
// (a stale socket or a running daemon's live one alike). Each accepted
// connection is checked by authorizePeer in Run.
func listen(path string) (net.Listener, error) {
	_ = os.Remove(path)
	return net.Listen("unix", path)
}

// Run starts one reader goroutine per grabbed device, all funneling into
// a single channel so the Stage — which spec §5 requires to be driven
// strictly serially — only ever sees one event at a time no matter how
// many physical devices are live, then serves IPC connections on the
// calling goroutine until the listener closes.
func (d *daemon) Run() error {
	for _, dev := range d.devices {
		go d.readDevice(dev)
	}
	go d.consumeEvents()

	for {
		conn, err := d.ln.Accept()
		if err != nil {
			return err
		}
		if !d.authorizePeer(conn) {
			d.logger.Printf("rejected unauthorized client on %s", d.settings.SocketPath)
			conn.Close()
			continue
		}
		go d.serveConn(conn)
	}
}

func (d *daemon) readDevice(dev device.Device) {
	for {
		ev, err := dev.Read()
		if err != nil {
			d.logger.Printf("device %s: %v", dev.Info().Path, err)
			return
		}
		d.events <- ev
	}
}

func (d *daemon) consumeEvents() {
	// Output after an OutputOnRelease marker is held back per triggering
	// key and emitted ahead of the Stage's output for that key's release.
	deferred := make(map[keymapper.Key]keymapper.KeySequence)
	for ev := range d.events {
		out := d.stage.Update(ev)
		if ev.State == keymapper.Up && len(deferred[ev.Key]) > 0 {
			out = append(deferred[ev.Key], out...)
			delete(deferred, ev.Key)
		}
		for i, e := range out {
			if e.State == keymapper.OutputOnRelease {
				if ev.State == keymapper.Down {
					deferred[ev.Key] = append(deferred[ev.Key], out[i+1:]...)
					break
				}
				continue
			}
			if keymapper.IsActionKey(e.Key) && e.State == keymapper.Down {
				d.notifyAction(keymapper.ActionIndex(e.Key))
				continue
			}
			if err := d.emitter.Emit(e); err != nil {
				d.logger.Printf("emit %v: %v", e, err)
			}
		}
		if d.stage.ShouldExit() {
			d.logger.Printf("exit chord matched, shutting down")
			os.Exit(0)
		}
	}
}

// notifyAction forwards a triggered action-key index to the connected
// client, which owns the command text and runs it (internal/action.Sink)
// so the privileged daemon never execs a user-configured shell string
// itself.
func (d *daemon) notifyAction(index int) {
	d.clientMu.Lock()
	w := d.clientWriter
	d.clientMu.Unlock()
	if w == nil {
		return
	}
	if err := w.WriteTriggeredAction(index); err != nil {
		d.logger.Printf("notifying action %d: %v", index, err)
	}
}

// authorizePeer looks up the peer's credentials on the Unix socket
// (SO_PEERCRED) and accepts any peer for which that lookup succeeds; no
// uid is checked and there is no application-level handshake.
func (d *daemon) authorizePeer(conn net.Conn) bool {
	uc, ok := conn.(*net.UnixConn)
	if !ok {
		return false
	}
	raw, err := uc.SyscallConn()
	if err != nil {
		return false
	}
	var cred *unix.Ucred
	var credErr error
	err = raw.Control(func(fd uintptr) {
		cred, credErr = unix.GetsockoptUcred(int(fd), unix.SOL_SOCKET, unix.SO_PEERCRED)
	})
	if err != nil || credErr != nil || cred == nil {
		return false
	}
	// Trust anyone who can open the socket at all; its filesystem
	// permissions are the actual access boundary. The peer-credential
	// lookup exists so a future allowlist (specific uid) has somewhere
	// to plug in without changing the transport.
	return true
}

func (d *daemon) serveConn(conn net.Conn) {
	defer conn.Close()
	w := transport.NewWriter(conn)
	d.clientMu.Lock()
	d.clientWriter = w
	d.clientMu.Unlock()
	defer func() {
		d.clientMu.Lock()
		if d.clientWriter == w {
			d.clientWriter = nil
		}
		d.clientMu.Unlock()
	}()

	r := transport.NewReader(conn)
	for {
		mt, err := r.ReadMessageType()
		if err != nil {
			return
		}
		switch mt {
		case transport.MessageConfiguration:
			mappings, sets, err := r.ReadConfiguration()
			if err != nil {
				return
			}
			d.applyConfiguration(mappings, sets)
		case transport.MessageActiveContexts:
			indices, err := r.ReadActiveContexts()
			if err != nil {
				return
			}
			if !d.stage.IsOutputDown() {
				d.stage.SetActiveContexts(indices)
			}
		case transport.MessageSetActiveOverrideSet:
			idx, err := r.ReadSetActiveOverrideSet()
			if err != nil {
				return
			}
			d.stage.SetActiveOverrideSet(idx)
		case transport.MessageValidateState:
			d.stage.ValidateState(d.isPhysicallyDown)
		case transport.MessageTriggeredAction:
			if _, err := r.ReadTriggeredAction(); err != nil {
				return
			}
		}
	}
}

// applyConfiguration rebuilds the Stage from a wire-decoded configuration:
// one flat context holding every (input, output) mapping the client sent,
// since the client has already resolved window-filter/command/override
// structure into the plain mapping list the wire format carries.
func (d *daemon) applyConfiguration(mappings []transport.Mapping, sets [][]transport.DecodedOverride) {
	var ctx keymapper.Context
	for _, m := range mappings {
		ctx.Outputs = append(ctx.Outputs, m.Output)
		ctx.Inputs = append(ctx.Inputs, keymapper.Input{Sequence: m.Input, OutputIndex: len(ctx.Outputs) - 1})
	}

	var overrideSets []keymapper.OverrideSet
	for _, set := range sets {
		var os keymapper.OverrideSet
		for _, ov := range set {
			os = append(os, keymapper.MappingOverride{MappingIndex: ov.MappingIndex, Output: ov.Output})
		}
		overrideSets = append(overrideSets, os)
	}

	d.stage = keymapper.NewStage([]keymapper.Context{ctx}, overrideSets, d.exitSequence)
	d.stage.SetActiveContexts([]int{0})
}

// exitChord lowers a surface key-chord expression to the plain Down-only
// sequence Stage's exit-sequence matcher expects, the same reduction
// ParseConfig's "exit_sequence = ..." directive applies. An empty
// expression yields a nil chord, disabling the feature.
func exitChord(expr string) (keymapper.KeySequence, error) {
	if expr == "" {
		return nil, nil
	}
	seq, err := keymapper.ParseInputExpression(expr, nil)
	if err != nil {
		return nil, err
	}
	var chord keymapper.KeySequence
	for _, e := range seq {
		if e.State == keymapper.Down {
			chord = append(chord, keymapper.NewKeyEvent(e.Key, keymapper.Down))
		}
	}
	return chord, nil
}

// isPhysicallyDown answers Stage.ValidateState's probe. No kernel
// key-state query (EVIOCGKEY) is wired up: it reports every key as
// released, so ValidateState drops every non-virtual key from the buffer
// and every held output, whether or not the key is still physically held.
func (d *daemon) isPhysicallyDown(key keymapper.Key) bool {
	return false
}

func (d *daemon) closeDevices() {
	for _, dev := range d.devices {
		dev.Ungrab()
		dev.Close()
	}
}

func (d *daemon) Close() error {
	d.closeDevices()
	if d.emitter != nil {
		d.emitter.Close()
	}
	if d.ln != nil {
		d.ln.Close()
	}
	return nil
}
