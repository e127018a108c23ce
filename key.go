package keymapper

import "fmt"

// Key is a 16-bit opaque identifier drawn from three disjoint ranges: a
// physical scancode (with bit 0xE000 set for the "extended" duplicates —
// right-side modifiers, the arrow block, numpad divide, ...), a virtual-key
// latch named by the user in the configuration, or an action key indexing
// into Config.Actions. Key itself never encodes which range a value came
// from except by comparison against the range boundaries below; callers
// use IsVirtualKey / IsActionKey rather than inspecting bits directly.
type Key uint16

// None is the reserved "no key" marker, used by OutputOnRelease events
// (which carry no real key) and by callers as a sentinel.
const None Key = 0

// Extended is the bit OR'd into a physical scancode to identify the
// "extended" (right-hand/0xE0-prefixed) member of a duplicated key, e.g.
// the right Control versus the left, or the arrow block versus the numpad.
const Extended Key = 0xE000

// firstVirtualKey and firstActionKey mark off the three Key ranges.
// Physical scancodes occupy [1, firstVirtualKey); virtual keys occupy
// [firstVirtualKey, firstActionKey); action keys occupy [firstActionKey,
// 0xFFFF].
const (
	firstVirtualKey Key = 0xE000 + 0x1000 // past the extended-scancode block
	firstActionKey  Key = 0xF800
)

// IsVirtualKey reports whether k names a user-defined virtual-key latch
// rather than a physical key or an action.
func IsVirtualKey(k Key) bool {
	return k >= firstVirtualKey && k < firstActionKey
}

// IsActionKey reports whether k is an action key: an index (offset by
// firstActionKey) into Config.Actions rather than a key to synthesize.
func IsActionKey(k Key) bool {
	return k >= firstActionKey
}

// ActionIndex returns the index into Config.Actions that k names. The
// caller must have already established IsActionKey(k).
func ActionIndex(k Key) int {
	return int(k - firstActionKey)
}

// ActionKey returns the action key for the i'th configured terminal-command
// action.
func ActionKey(i int) Key {
	return firstActionKey + Key(i)
}

// virtualKeyAllocator hands out virtual-key identifiers in declaration
// order as ParseConfig encounters new virtual-key aliases. Each allocator
// (see newVirtualKeyAllocator) is its own counter, so Key values are stable
// and disjoint within one Config while configs loaded concurrently never
// share a counter; each Config keeps its own alias table
// (Config.VirtualKeys).
type virtualKeyAllocator struct {
	next Key
}

func newVirtualKeyAllocator() *virtualKeyAllocator {
	return &virtualKeyAllocator{next: firstVirtualKey}
}

func (a *virtualKeyAllocator) alloc() Key {
	if a.next >= firstActionKey {
		panic("keymapper: too many virtual keys")
	}
	k := a.next
	a.next++
	return k
}

// Well-known physical scancodes used by the parser's built-in key table and
// by the tests. Real deployments source a much larger table (the full
// evdev/Win32 scancode set); this is the portable core exercised here.
const (
	KeyEscape Key = iota + 1
	Key1
	Key2
	Key3
	Key4
	Key5
	Key6
	Key7
	Key8
	Key9
	Key0
	KeyMinus
	KeyEqual
	KeyBackspace
	KeyTab
	KeyA
	KeyB
	KeyC
	KeyD
	KeyE
	KeyF
	KeyG
	KeyH
	KeyI
	KeyJ
	KeyK
	KeyL
	KeyM
	KeyN
	KeyO
	KeyP
	KeyQ
	KeyR
	KeyS
	KeyT
	KeyU
	KeyV
	KeyW
	KeyX
	KeyY
	KeyZ
	KeyLeftBracket
	KeyRightBracket
	KeyEnter
	KeyLeftControl
	KeySemicolon
	KeyQuote
	KeyGrave
	KeyLeftShift
	KeyBackslash
	KeyComma
	KeyPeriod
	KeySlash
	KeyRightShift
	KeyKeypadMultiply
	KeyLeftAlt
	KeySpace
	KeyCapsLock
	KeyF1
	KeyF2
	KeyF3
	KeyF4
	KeyF5
	KeyF6
	KeyF7
	KeyF8
	KeyF9
	KeyF10
	KeyNumLock
	KeyScrollLock
	KeyKeypad7
	KeyKeypad8
	KeyKeypad9
	KeyKeypadMinus
	KeyKeypad4
	KeyKeypad5
	KeyKeypad6
	KeyKeypadPlus
	KeyKeypad1
	KeyKeypad2
	KeyKeypad3
	KeyKeypad0
	KeyKeypadDecimal
	KeyF11
	KeyF12
)

// Extended (0xE000-prefixed) duplicates — right-side modifiers, the arrow
// block, and the numpad's divide/enter.
const (
	KeyRightControl  = Extended | Key(0x1D)
	KeyRightAlt      = Extended | Key(0x38)
	KeyKeypadDivide  = Extended | Key(0x35)
	KeyKeypadEnter   = Extended | Key(0x1C)
	KeyUp            = Extended | Key(0x48)
	KeyDown          = Extended | Key(0x50)
	KeyLeft          = Extended | Key(0x4B)
	KeyRight         = Extended | Key(0x4D)
	KeyHome          = Extended | Key(0x47)
	KeyEnd           = Extended | Key(0x4F)
	KeyPageUp        = Extended | Key(0x49)
	KeyPageDown      = Extended | Key(0x51)
	KeyInsert        = Extended | Key(0x52)
	KeyDelete        = Extended | Key(0x53)
	KeyLeftMeta      = Extended | Key(0x5B)
	KeyRightMeta     = Extended | Key(0x5C)
	KeyMenu          = Extended | Key(0x5D)
)

// Mouse buttons and wheel, modeled as ordinary keys so the matcher and
// emitter need no special case for them.
const (
	ButtonLeft Key = 0x100 + iota
	ButtonRight
	ButtonMiddle
	ButtonExtra1
	ButtonExtra2
	WheelUp
	WheelDown
)

// keyNames is the canonical name table used by both ParseKeySequence (to
// resolve identifiers) and String (to render keys for diagnostics). It is
// intentionally small; real deployments extend it via configured
// virtual-key aliases rather than by editing this table.
var keyNames = map[string]Key{
	"Escape": KeyEscape, "Esc": KeyEscape,
	"1": Key1, "2": Key2, "3": Key3, "4": Key4, "5": Key5,
	"6": Key6, "7": Key7, "8": Key8, "9": Key9, "0": Key0,
	"Minus": KeyMinus, "Equal": KeyEqual, "Backspace": KeyBackspace,
	"Tab": KeyTab,
	"A": KeyA, "B": KeyB, "C": KeyC, "D": KeyD, "E": KeyE, "F": KeyF,
	"G": KeyG, "H": KeyH, "I": KeyI, "J": KeyJ, "K": KeyK, "L": KeyL,
	"M": KeyM, "N": KeyN, "O": KeyO, "P": KeyP, "Q": KeyQ, "R": KeyR,
	"S": KeyS, "T": KeyT, "U": KeyU, "V": KeyV, "W": KeyW, "X": KeyX,
	"Y": KeyY, "Z": KeyZ,
	"LeftBracket": KeyLeftBracket, "RightBracket": KeyRightBracket,
	"Enter": KeyEnter, "Return": KeyEnter,
	"Control": KeyLeftControl, "LeftControl": KeyLeftControl, "Ctrl": KeyLeftControl,
	"RightControl": KeyRightControl,
	"Semicolon":    KeySemicolon,
	"Quote":        KeyQuote,
	"Grave":        KeyGrave,
	"Shift":        KeyLeftShift, "LeftShift": KeyLeftShift,
	"RightShift": KeyRightShift,
	"Backslash":  KeyBackslash,
	"Comma":      KeyComma, "Period": KeyPeriod, "Slash": KeySlash,
	"KeypadMultiply": KeyKeypadMultiply,
	"Alt":            KeyLeftAlt, "LeftAlt": KeyLeftAlt,
	"RightAlt": KeyRightAlt,
	"Space":    KeySpace,
	"CapsLock": KeyCapsLock, "Caps": KeyCapsLock,
	"F1": KeyF1, "F2": KeyF2, "F3": KeyF3, "F4": KeyF4, "F5": KeyF5,
	"F6": KeyF6, "F7": KeyF7, "F8": KeyF8, "F9": KeyF9, "F10": KeyF10,
	"F11": KeyF11, "F12": KeyF12,
	"NumLock": KeyNumLock, "ScrollLock": KeyScrollLock,
	"Keypad7": KeyKeypad7, "Keypad8": KeyKeypad8, "Keypad9": KeyKeypad9,
	"KeypadMinus": KeyKeypadMinus,
	"Keypad4":     KeyKeypad4, "Keypad5": KeyKeypad5, "Keypad6": KeyKeypad6,
	"KeypadPlus": KeyKeypadPlus,
	"Keypad1":    KeyKeypad1, "Keypad2": KeyKeypad2, "Keypad3": KeyKeypad3,
	"Keypad0": KeyKeypad0, "KeypadDecimal": KeyKeypadDecimal,
	"KeypadDivide": KeyKeypadDivide, "KeypadEnter": KeyKeypadEnter,
	"Up": KeyUp, "Down": KeyDown, "Left": KeyLeft, "Right": KeyRight,
	"Home": KeyHome, "End": KeyEnd, "PageUp": KeyPageUp, "PageDown": KeyPageDown,
	"Insert": KeyInsert, "Delete": KeyDelete,
	"LeftMeta": KeyLeftMeta, "Meta": KeyLeftMeta, "Super": KeyLeftMeta, "Win": KeyLeftMeta,
	"RightMeta": KeyRightMeta,
	"Menu":      KeyMenu,
	"ButtonLeft": ButtonLeft, "ButtonRight": ButtonRight, "ButtonMiddle": ButtonMiddle,
	"ButtonExtra1": ButtonExtra1, "ButtonExtra2": ButtonExtra2,
	"WheelUp": WheelUp, "WheelDown": WheelDown,
	"Any": AnyKey,
}

// AnyKey is the wildcard output-template key: when it appears in an output,
// applyOutput fans it out to every currently pressed sequence key not
// explicitly excluded with "!".
const AnyKey Key = 0xFFFF

var keyDisplayNames map[Key]string

func init() {
	keyDisplayNames = make(map[Key]string, len(keyNames))
	for name, k := range keyNames {
		if _, ok := keyDisplayNames[k]; !ok {
			keyDisplayNames[k] = name
		}
	}
}

// String renders k using its canonical configured name, falling back to a
// numeric form for keys outside the built-in table (virtual keys, action
// keys, or scancodes added only via device-specific tables).
func (k Key) String() string {
	if k == None {
		return "None"
	}
	if k == AnyKey {
		return "Any"
	}
	if name, ok := keyDisplayNames[k]; ok {
		return name
	}
	switch {
	case IsActionKey(k):
		return fmt.Sprintf("Action[%d]", ActionIndex(k))
	case IsVirtualKey(k):
		return fmt.Sprintf("Virtual[%d]", int(k-firstVirtualKey))
	default:
		return fmt.Sprintf("Key[0x%04X]", uint16(k))
	}
}

// LookupKey resolves a surface-syntax identifier to a Key, consulting the
// built-in table first and then the supplied virtual-key aliases. It is the
// single source of truth ParseKeySequence uses so that macros and virtual
// keys share exactly the same resolution order as plain key names.
func LookupKey(name string, aliases map[string]Key) (Key, bool) {
	if k, ok := aliases[name]; ok {
		return k, true
	}
	if k, ok := keyNames[name]; ok {
		return k, true
	}
	return None, false
}
