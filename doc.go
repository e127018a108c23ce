// Package keymapper implements the context-aware keyboard and mouse
// remapping engine: a real-time sequence matcher (Stage) fed by a single
// serial stream of physical key/button events, driven by rule sets lowered
// from a declarative configuration language.
//
// The package is organized leaf-first, matching how a single input event
// flows through it: Key and KeyEvent are the data model (key.go,
// keyevent.go), KeySequence is the buffer type the engine operates on
// (keysequence.go), MatchKeySequence decides whether a buffer satisfies a
// rule's input template (match.go), and Stage is the state machine that
// ties buffering, matching and emission together (stage.go).
// ParseKeySequence (parsekeyseq.go) and ParseConfig (parseconfig.go) compile
// the surface syntax into the templates Stage and the matcher consume.
//
// Everything outside this package — device grabbing, focused-window
// detection, IPC transport, and the command-line daemon/client — is a host
// concern layered on top; see internal/ and cmd/.
package keymapper
