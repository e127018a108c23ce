//go:build linux

package device

import (
	"encoding/binary"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"unsafe"

	"golang.org/x/sys/unix"

	keymapper "github.com/kbd/keymapper"
)

// eviocgrab is the standard Linux EVIOCGRAB ioctl request number
// (_IOW('E', 0x90, int)); golang.org/x/sys/unix does not export an evdev
// constant set, the same gap the original C++ fills by including
// <linux/input.h> directly (GrabbedDevicesLinux.cpp).
const eviocgrab = 0x40044590

// inputEvent mirrors struct input_event from <linux/input.h>: two
// platform-width timeval fields followed by type/code/value. Go has no
// portable way to express the kernel's `struct timeval` width difference
// between 32- and 64-bit time_t ABIs, so this layout targets the common
// 64-bit Linux ABI the daemon actually ships on.
type inputEvent struct {
	Sec, Usec int64
	Type      uint16
	Code      uint16
	Value     int32
}

const inputEventSize = 24

const (
	evSyn = 0x00
	evKey = 0x01
	evRel = 0x02
)

// relWheel is the EV_REL code for vertical wheel motion; everything else
// under EV_KEY maps 1:1 onto a scancode.
const (
	relWheel = 0x08
)

type evdevDevice struct {
	path    string
	name    string
	id      string
	f       *os.File
	grabbed bool
}

func (d *evdevDevice) Info() Info { return Info{Path: d.path, Name: d.name, ID: d.id} }

func (d *evdevDevice) Grab() error {
	if err := unix.IoctlSetInt(int(d.f.Fd()), eviocgrab, 1); err != nil {
		return fmt.Errorf("device: grab %s: %w", d.path, err)
	}
	d.grabbed = true
	return nil
}

func (d *evdevDevice) Ungrab() error {
	if !d.grabbed {
		return nil
	}
	if err := unix.IoctlSetInt(int(d.f.Fd()), eviocgrab, 0); err != nil {
		return fmt.Errorf("device: ungrab %s: %w", d.path, err)
	}
	d.grabbed = false
	return nil
}

func (d *evdevDevice) Close() error { return d.f.Close() }

// Read blocks for the next EV_KEY or EV_REL wheel event, skipping EV_SYN
// and any other event type the core has no use for (absolute axes,
// LED/sound feedback, misc).
func (d *evdevDevice) Read() (keymapper.KeyEvent, error) {
	var buf [inputEventSize]byte
	for {
		if _, err := readFull(d.f, buf[:]); err != nil {
			return keymapper.KeyEvent{}, err
		}
		ev := decodeInputEvent(buf[:])
		switch ev.Type {
		case evKey:
			state := keymapper.Up
			if ev.Value != 0 {
				state = keymapper.Down
			}
			return keymapper.NewKeyEvent(keymapper.Key(ev.Code), state), nil
		case evRel:
			if ev.Code == relWheel && ev.Value != 0 {
				key := keymapper.WheelUp
				if ev.Value < 0 {
					key = keymapper.WheelDown
				}
				e := keymapper.NewKeyEvent(key, keymapper.Down)
				e.Value = uint16(abs32(ev.Value))
				return e, nil
			}
		case evSyn:
			// boundary marker between coalesced events; no key of our own
		}
	}
}

func abs32(v int32) int32 {
	if v < 0 {
		return -v
	}
	return v
}

func decodeInputEvent(b []byte) inputEvent {
	return inputEvent{
		Sec:   int64(binary.LittleEndian.Uint64(b[0:8])),
		Usec:  int64(binary.LittleEndian.Uint64(b[8:16])),
		Type:  binary.LittleEndian.Uint16(b[16:18]),
		Code:  binary.LittleEndian.Uint16(b[18:20]),
		Value: int32(binary.LittleEndian.Uint32(b[20:24])),
	}
}

func readFull(f *os.File, b []byte) (int, error) {
	total := 0
	for total < len(b) {
		n, err := f.Read(b[total:])
		total += n
		if err != nil {
			return total, err
		}
	}
	return total, nil
}

// evdevBackend enumerates /dev/input/event* nodes directly, the same
// directory the original's GrabbedDevicesLinux.cpp walks.
type evdevBackend struct{}

// NewBackend returns the Linux evdev Backend.
func NewBackend() Backend { return evdevBackend{} }

func (evdevBackend) Enumerate() ([]Info, error) {
	entries, err := os.ReadDir("/dev/input")
	if err != nil {
		return nil, err
	}
	var infos []Info
	for _, e := range entries {
		if !strings.HasPrefix(e.Name(), "event") {
			continue
		}
		path := filepath.Join("/dev/input", e.Name())
		name, _ := readDeviceName(path)
		infos = append(infos, Info{Path: path, Name: name, ID: resolveByID(path)})
	}
	return infos, nil
}

func readDeviceName(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	var name [256]byte
	// EVIOCGNAME(len) = _IOC(_IOC_READ, 'E', 0x06, len); computed inline
	// since x/sys/unix has no evdev request table.
	const iocRead = 2
	req := uintptr(iocRead<<30) | uintptr('E')<<8 | uintptr(0x06) | uintptr(len(name))<<16
	_, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), req, uintptr(unsafe.Pointer(&name[0])))
	if errno != 0 {
		return "", errno
	}
	return strings.TrimRight(string(name[:]), "\x00"), nil
}

func resolveByID(path string) string {
	base := filepath.Base(path)
	entries, err := os.ReadDir("/dev/input/by-id")
	if err != nil {
		return ""
	}
	for _, e := range entries {
		target, err := os.Readlink(filepath.Join("/dev/input/by-id", e.Name()))
		if err == nil && filepath.Base(target) == base {
			return e.Name()
		}
	}
	return ""
}

func (evdevBackend) Open(path string) (Device, error) {
	f, err := os.OpenFile(path, os.O_RDWR, 0)
	if err != nil {
		return nil, err
	}
	name, _ := readDeviceName(path)
	return &evdevDevice{path: path, name: name, id: resolveByID(path), f: f}, nil
}

// Watch polls /dev/input for new event nodes via inotify, the supplemented
// hot-plug feature (SPEC_FULL D.6); it is deliberately simple (no udev
// dependency) in the same "talk to the kernel interface directly" spirit
// as the rest of this package.
func (b evdevBackend) Watch() (<-chan Info, func(), error) {
	fd, err := unix.InotifyInit1(0)
	if err != nil {
		return nil, nil, err
	}
	if _, err := unix.InotifyAddWatch(fd, "/dev/input", unix.IN_CREATE); err != nil {
		unix.Close(fd)
		return nil, nil, err
	}

	out := make(chan Info)
	done := make(chan struct{})
	go func() {
		defer close(out)
		buf := make([]byte, 4096)
		for {
			n, err := unix.Read(fd, buf)
			if err != nil || n <= 0 {
				return
			}
			for _, ev := range parseInotifyEvents(buf[:n]) {
				select {
				case <-done:
					return
				default:
				}
				if !strings.HasPrefix(ev, "event") {
					continue
				}
				path := filepath.Join("/dev/input", ev)
				name, _ := readDeviceName(path)
				select {
				case out <- Info{Path: path, Name: name, ID: resolveByID(path)}:
				case <-done:
					return
				}
			}
		}
	}()

	stop := func() {
		close(done)
		unix.Close(fd)
	}
	return out, stop, nil
}

func parseInotifyEvents(buf []byte) []string {
	var names []string
	i := 0
	for i+16 <= len(buf) {
		nameLen := binary.LittleEndian.Uint32(buf[i+12 : i+16])
		start := i + 16
		end := start + int(nameLen)
		if end > len(buf) {
			break
		}
		name := strings.TrimRight(string(buf[start:end]), "\x00")
		if name != "" {
			names = append(names, name)
		}
		i = end
	}
	return names
}
