// Package stagetest is a scripted-event-stream test harness for
// keymapper.Stage, modeled on tcell's SimulationScreen (simulation.go): a
// fake driven entirely by programmatic injection so engine behavior can be
// asserted without a real device or window manager.
package stagetest

import (
	"fmt"

	keymapper "github.com/kbd/keymapper"
)

// Step is one scripted physical event plus the output the Stage is
// expected to emit for it.
type Step struct {
	Event keymapper.KeyEvent
	Want  keymapper.KeySequence
}

// Down is shorthand for a scripted physical key press.
func Down(k keymapper.Key) keymapper.KeyEvent { return keymapper.NewKeyEvent(k, keymapper.Down) }

// Up is shorthand for a scripted physical key release.
func Up(k keymapper.Key) keymapper.KeyEvent { return keymapper.NewKeyEvent(k, keymapper.Up) }

// Seq builds a KeySequence literal out of Down/Up-shorthand events, for
// building a Step's Want field tersely.
func Seq(events ...keymapper.KeyEvent) keymapper.KeySequence {
	return keymapper.KeySequence(events)
}

// Run feeds every Step's Event through stage in order and reports the
// first mismatch against Want, if any. It is the harness both Stage's own
// in-package tests and any host-level integration test can share.
func Run(stage *keymapper.Stage, steps []Step) error {
	for i, step := range steps {
		got := stage.Update(step.Event)
		if !sequenceEqual(got, step.Want) {
			return fmt.Errorf("step %d: Update(%v) = %v, want %v", i, step.Event, got, step.Want)
		}
	}
	return nil
}

func sequenceEqual(a, b keymapper.KeySequence) bool {
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

// Recorder wraps a Stage and an action.Sink-like callback so an
// integration test can assert on both the synthesized key stream and any
// terminal-command actions the Stage emitted as ActionKey events.
type Recorder struct {
	Stage          *keymapper.Stage
	TriggeredIndex []int
}

// NewRecorder wraps stage for combined output/action assertions.
func NewRecorder(stage *keymapper.Stage) *Recorder {
	return &Recorder{Stage: stage}
}

// Update feeds one event through the wrapped Stage, splitting any emitted
// action keys into TriggeredIndex and returning the remaining (real)
// output events.
func (r *Recorder) Update(event keymapper.KeyEvent) keymapper.KeySequence {
	out := r.Stage.Update(event)
	var rest keymapper.KeySequence
	for _, e := range out {
		if keymapper.IsActionKey(e.Key) && e.State == keymapper.Down {
			r.TriggeredIndex = append(r.TriggeredIndex, keymapper.ActionIndex(e.Key))
			continue
		}
		rest = append(rest, e)
	}
	return rest
}
