// Package device implements the host-side physical-device layer the core
// spec characterizes only by the interface it needs (§1, §6): enumerate
// event devices, exclusively grab them so no other process (including the
// OS's own input stack) sees their raw events, and read a serial stream of
// key/button events to feed Stage.Update. Hot-plug monitoring is carried
// as a supplemented feature (SPEC_FULL D.6) since the daemon needs
// somewhere real to call it from even though it's out of the core's
// scope.
package device

import (
	"errors"

	keymapper "github.com/kbd/keymapper"
)

// ErrUnsupported is returned by every operation on platforms with no
// native backend wired up yet (see device_other.go).
var ErrUnsupported = errors.New("device: unsupported platform")

// Info describes one enumerated input device, enough for a config's
// device filter (§4.6) to match against.
type Info struct {
	Path string
	Name string
	ID   string // stable by-id symlink name, when available
}

// Device is a single grabbed input device: once grabbed, the OS no longer
// delivers its events to any other process, and Read is the only way
// those events reach anything at all.
type Device interface {
	Info() Info

	// Grab exclusively claims the device (EVIOCGRAB or the platform
	// equivalent). It must be called before Read yields real events.
	Grab() error

	// Ungrab releases the exclusive claim, restoring normal event
	// delivery; used on clean daemon shutdown.
	Ungrab() error

	// Read blocks until the next physical event is available, translates
	// it to the core's KeyEvent representation, and returns it.
	Read() (keymapper.KeyEvent, error)

	Close() error
}

// Backend enumerates and opens the devices available on this host.
type Backend interface {
	// Enumerate lists every input device the backend can see, whether or
	// not it is currently grabbed.
	Enumerate() ([]Info, error)

	// Open opens (but does not grab) the device at path.
	Open(path string) (Device, error)

	// Watch reports devices as they're plugged in, until ctx-like stop
	// is requested by closing the returned channel's paired stop func.
	Watch() (added <-chan Info, stop func(), err error)

	// NewEmitter opens the platform's synthetic-input sink, the
	// counterpart to grabbing real devices: every event Stage.Update
	// returns is written back to the OS through it.
	NewEmitter() (Emitter, error)
}

// Emitter is the host's synthesized-input sink: the other half of the
// grab, recreating the events Stage consumed so the rest of the OS still
// sees a coherent input stream.
type Emitter interface {
	Emit(keymapper.KeyEvent) error
	Close() error
}
