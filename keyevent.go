package keymapper

import "fmt"

// KeyState tags a KeyEvent with the role it plays in either the physical
// input stream, an input template, or an output template:
//
//   - Down / Up are the only states that ever appear in physical input.
//     The Stage's emitted output buffer holds Down / Up plus, where the
//     matched output template has one, its OutputOnRelease marker.
//   - DownMatched marks a physical press already consumed by a completed
//     match but still physically held.
//   - DownAsync / UpAsync are input-template-only markers: a "(...)"
//     group lowers each member to a DownAsync ahead of its Down, and
//     every other input key is closed with an UpAsync.
//   - Not is "this key must not be held" in an input template, or "force a
//     release of this key for the duration of this output" in an output
//     template.
//   - OutputOnRelease is an output-template split marker: everything after
//     it is only emitted once the triggering input key is released.
type KeyState uint8

const (
	Down KeyState = iota
	Up
	DownMatched
	DownAsync
	UpAsync
	Not
	OutputOnRelease
)

func (s KeyState) String() string {
	switch s {
	case Down:
		return "Down"
	case Up:
		return "Up"
	case DownMatched:
		return "DownMatched"
	case DownAsync:
		return "DownAsync"
	case UpAsync:
		return "UpAsync"
	case Not:
		return "Not"
	case OutputOnRelease:
		return "OutputOnRelease"
	default:
		return fmt.Sprintf("KeyState(%d)", uint8(s))
	}
}

// KeyEvent is the atomic unit the whole engine operates on: a physical
// input event, a slot in an input template, or a slot in an output
// template, depending on context. Value is only meaningful for physical
// wheel events (scroll magnitude); templates leave it zero.
type KeyEvent struct {
	Key   Key
	State KeyState
	Value uint16
}

// NewKeyEvent builds a KeyEvent with Value left at zero, the common case
// for anything that isn't a wheel event.
func NewKeyEvent(key Key, state KeyState) KeyEvent {
	return KeyEvent{Key: key, State: state}
}

func (e KeyEvent) String() string {
	if e.Value != 0 {
		return fmt.Sprintf("{%s %s %d}", e.Key, e.State, e.Value)
	}
	return fmt.Sprintf("{%s %s}", e.Key, e.State)
}
