// Command keymapper is the client: it watches the focused window, loads
// the declarative configuration, and keeps the privileged keymapperd
// daemon fed with the active rule set for whatever is focused right now.
package main

import (
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"

	keymapper "github.com/kbd/keymapper"
	"github.com/kbd/keymapper/internal/action"
	"github.com/kbd/keymapper/internal/daemonconf"
	"github.com/kbd/keymapper/internal/focus"
	"github.com/kbd/keymapper/internal/transport"
)

var (
	configPath string
	update     bool
	verbose    bool
	noColor    bool
	check      bool
)

var rootCmd = &cobra.Command{
	Use:   "keymapper",
	Short: "Client for the keymapper context-aware input remapper",
	RunE:  run,
}

func init() {
	flags := rootCmd.Flags()
	flags.StringVarP(&configPath, "config", "c", defaultConfigPath(), "path to the keymap configuration file")
	flags.BoolVarP(&update, "update", "u", false, "push the configuration to a running daemon and exit")
	flags.BoolVarP(&verbose, "verbose", "v", false, "log every focused-window change and context switch")
	flags.BoolVar(&noColor, "no-color", false, "disable ANSI color in diagnostic output")
	flags.BoolVar(&check, "check", false, "parse and validate the configuration, then exit")
}

func defaultConfigPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return home + "/.config/keymapper/keymapper.conf"
	}
	return "keymapper.conf"
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(cmd *cobra.Command, args []string) error {
	out := io.Writer(os.Stderr)
	if !verbose {
		out = io.Discard
	}
	logger := log.New(out, "", 0)

	text, err := os.ReadFile(configPath)
	if err != nil {
		return fmt.Errorf("reading %s: %w", configPath, err)
	}
	cfg, err := keymapper.ParseConfig(string(text))
	if err != nil {
		return fmt.Errorf("%s: %w", configPath, err)
	}
	logger.Printf("loaded %s: %d context(s), %d action(s)", configPath, len(cfg.Contexts), len(cfg.Actions))

	if check {
		printCheckReport(os.Stdout, configPath, cfg)
		return nil
	}

	settings, err := daemonconf.Load(daemonconf.DefaultSocketPath + ".yaml")
	if err != nil {
		settings = daemonconf.Default()
	}

	conn, err := net.Dial("unix", settings.SocketPath)
	if err != nil {
		return fmt.Errorf("connecting to daemon at %s: %w", settings.SocketPath, err)
	}
	defer conn.Close()

	w := transport.NewWriter(conn)
	if err := w.WriteConfiguration(cfg); err != nil {
		return fmt.Errorf("sending configuration: %w", err)
	}

	if update {
		return nil
	}

	commands := make([]string, len(cfg.Actions))
	for i, a := range cfg.Actions {
		commands[i] = a.Command
	}
	sink := action.NewSink(commands, logger)
	go watchTriggeredActions(conn, sink, logger)

	registry := focus.NewRegistry(platformProbes()...)
	return watchFocus(registry, cfg, w, logger)
}

// watchTriggeredActions reads the daemon's triggered_action notifications
// off conn for as long as the connection lives and runs each one through
// sink. The daemon itself never execs the configured command; it only ever
// tells the client which action index fired.
func watchTriggeredActions(conn net.Conn, sink *action.Sink, logger *log.Logger) {
	r := transport.NewReader(conn)
	for {
		mt, err := r.ReadMessageType()
		if err != nil {
			return
		}
		switch mt {
		case transport.MessageTriggeredAction:
			index, err := r.ReadTriggeredAction()
			if err != nil {
				return
			}
			if !sink.Trigger(index) {
				logger.Printf("triggered action %d out of range", index)
			}
		default:
			return
		}
	}
}

// watchFocus polls the focused window at a steady interval and pushes a
// new active-contexts frame whenever the match set changes — the core
// itself has no notion of polling; this loop is exactly the host
// responsibility spec §2 assigns to "context selection is external".
func watchFocus(registry *focus.Registry, cfg keymapper.Config, w *transport.Writer, logger *log.Logger) error {
	var lastIndices []int
	ticker := time.NewTicker(50 * time.Millisecond)
	defer ticker.Stop()

	for range ticker.C {
		win, ok := registry.Update()
		if !ok {
			continue
		}
		indices := activeContexts(cfg, win)
		if equalInts(indices, lastIndices) {
			continue
		}
		lastIndices = indices
		if err := w.WriteActiveContexts(indices); err != nil {
			return fmt.Errorf("sending active contexts: %w", err)
		}
		logger.Printf("focus changed: %s -> contexts %v", win, indices)
	}
	return nil
}

// activeContexts returns, in declaration order, the indices of every
// context whose window filters accept win. Context 0 (the default) always
// matches since ParseConfig never installs window filters on it.
func activeContexts(cfg keymapper.Config, win focus.Window) []int {
	var indices []int
	for i, ctx := range cfg.Contexts {
		if ctx.Matches(win.Class, win.Title, win.Path) {
			indices = append(indices, i)
		}
	}
	return indices
}

// printCheckReport prints a one-line-per-context summary of a successfully
// parsed configuration, wrapping the divider rule to the actual terminal
// width when stdout is a terminal (falling back to a fixed width when it
// isn't, e.g. when --check output is piped).
func printCheckReport(stdout *os.File, configPath string, cfg keymapper.Config) {
	width := 72
	if w, _, err := term.GetSize(int(stdout.Fd())); err == nil && w > 0 {
		width = w
	}
	rule := strings.Repeat("-", width)

	status := "ok"
	if !noColor {
		status = "\x1b[32mok\x1b[0m"
	}

	fmt.Fprintf(stdout, "%s: %s\n%s\n", configPath, status, rule)
	for i, ctx := range cfg.Contexts {
		label := "default"
		if i > 0 {
			label = fmt.Sprintf("context %d", i)
		}
		fmt.Fprintf(stdout, "%-16s %3d mapping(s), %3d command binding(s)\n",
			label, len(ctx.Inputs), len(ctx.CommandOutputs))
	}
	fmt.Fprintf(stdout, "%s\n%d action(s), %d virtual key(s)\n",
		rule, len(cfg.Actions), len(cfg.VirtualKeys))
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
