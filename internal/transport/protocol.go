// Package transport implements the client/daemon wire protocol sketched
// in spec §6: a stream of little-endian, count-prefixed, message-typed
// frames carrying a serialized Config, active-context changes, override-
// set activation, validate-state pokes, and triggered-action
// notifications. It is a host concern layered on top of the core engine,
// not part of the engine itself.
package transport

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"

	keymapper "github.com/kbd/keymapper"
)

// MessageType tags a frame's payload shape.
type MessageType uint8

const (
	// MessageConfiguration carries a fully serialized Config.
	MessageConfiguration MessageType = iota
	// MessageActiveContexts carries the vector of active context indices.
	MessageActiveContexts
	// MessageSetActiveOverrideSet carries a single u32 override-set index.
	MessageSetActiveOverrideSet
	// MessageValidateState carries no payload; it asks the daemon to call
	// Stage.ValidateState against the live device state.
	MessageValidateState
	// MessageTriggeredAction carries a single u32 action index the daemon
	// observed the Stage emit.
	MessageTriggeredAction
)

// Writer serializes protocol frames onto an underlying stream. All
// integers are little-endian; per-sequence event counts are u8, mapping
// counts are u16, matching the layout spec §6 pins for compatibility.
type Writer struct {
	w io.Writer
}

// NewWriter wraps w for frame writing.
func NewWriter(w io.Writer) *Writer { return &Writer{w: w} }

func (w *Writer) writeU8(v uint8) error {
	_, err := w.w.Write([]byte{v})
	return err
}

func (w *Writer) writeU16(v uint16) error {
	var b [2]byte
	binary.LittleEndian.PutUint16(b[:], v)
	_, err := w.w.Write(b[:])
	return err
}

func (w *Writer) writeU32(v uint32) error {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	_, err := w.w.Write(b[:])
	return err
}

func (w *Writer) writeSequence(seq keymapper.KeySequence) error {
	if len(seq) > 0xFF {
		return fmt.Errorf("transport: sequence too long (%d events)", len(seq))
	}
	if err := w.writeU8(uint8(len(seq))); err != nil {
		return err
	}
	for _, e := range seq {
		if err := w.writeU16(uint16(e.Key)); err != nil {
			return err
		}
		if err := w.writeU8(uint8(e.State)); err != nil {
			return err
		}
		if err := w.writeU16(e.Value); err != nil {
			return err
		}
	}
	return nil
}

// WriteConfiguration serializes every context's inputs and outputs as
// (input-sequence, output-sequence) mapping pairs, followed by the
// override sets in the same per-mapping shape, keyed by global mapping
// index.
func (w *Writer) WriteConfiguration(cfg keymapper.Config) error {
	if err := w.writeU8(uint8(MessageConfiguration)); err != nil {
		return err
	}

	var mappings []struct {
		in, out keymapper.KeySequence
	}
	for _, ctx := range cfg.Contexts {
		for _, in := range ctx.Inputs {
			out := resolveOutput(ctx, in)
			mappings = append(mappings, struct {
				in, out keymapper.KeySequence
			}{in.Sequence, out})
		}
	}
	if len(mappings) > 0xFFFF {
		return fmt.Errorf("transport: too many mappings (%d)", len(mappings))
	}
	if err := w.writeU16(uint16(len(mappings))); err != nil {
		return err
	}
	for _, m := range mappings {
		if err := w.writeSequence(m.in); err != nil {
			return err
		}
		if err := w.writeSequence(m.out); err != nil {
			return err
		}
	}

	if err := w.writeU16(uint16(len(cfg.OverrideSets))); err != nil {
		return err
	}
	for _, set := range cfg.OverrideSets {
		if err := w.writeU16(uint16(len(set))); err != nil {
			return err
		}
		for _, ov := range set {
			if err := w.writeU16(uint16(ov.MappingIndex)); err != nil {
				return err
			}
			if err := w.writeSequence(ov.Output); err != nil {
				return err
			}
		}
	}
	return nil
}

// resolveOutput returns the direct or command-bound output of in within
// ctx, or nil if a command reference has no binding in this context (the
// parser already guarantees every command is bound somewhere, but a given
// context may still lack a binding and fold to the default's).
func resolveOutput(ctx keymapper.Context, in keymapper.Input) keymapper.KeySequence {
	if in.OutputIndex >= 0 {
		if in.OutputIndex < len(ctx.Outputs) {
			return ctx.Outputs[in.OutputIndex]
		}
		return nil
	}
	commandIndex := keymapper.CommandIndexFromOutputIndex(in.OutputIndex)
	for _, co := range ctx.CommandOutputs {
		if co.CommandIndex == commandIndex {
			return co.Output
		}
	}
	return nil
}

// WriteActiveContexts sends the vector of active context indices.
func (w *Writer) WriteActiveContexts(indices []int) error {
	if err := w.writeU8(uint8(MessageActiveContexts)); err != nil {
		return err
	}
	if len(indices) > 0xFFFF {
		return fmt.Errorf("transport: too many active contexts (%d)", len(indices))
	}
	if err := w.writeU16(uint16(len(indices))); err != nil {
		return err
	}
	for _, idx := range indices {
		if err := w.writeU32(uint32(idx)); err != nil {
			return err
		}
	}
	return nil
}

// WriteSetActiveOverrideSet sends the override-set activation message.
func (w *Writer) WriteSetActiveOverrideSet(index int) error {
	if err := w.writeU8(uint8(MessageSetActiveOverrideSet)); err != nil {
		return err
	}
	return w.writeU32(uint32(index))
}

// WriteValidateState sends the (payload-less) validate-state request.
func (w *Writer) WriteValidateState() error {
	return w.writeU8(uint8(MessageValidateState))
}

// WriteTriggeredAction sends a triggered-action notification.
func (w *Writer) WriteTriggeredAction(index int) error {
	if err := w.writeU8(uint8(MessageTriggeredAction)); err != nil {
		return err
	}
	return w.writeU32(uint32(index))
}

// Mapping is one (input, output) pair decoded from a configuration frame.
type Mapping struct {
	Input  keymapper.KeySequence
	Output keymapper.KeySequence
}

// DecodedOverride mirrors keymapper.MappingOverride for wire decoding.
type DecodedOverride struct {
	MappingIndex int
	Output       keymapper.KeySequence
}

// Reader deserializes protocol frames from an underlying stream.
type Reader struct {
	r *bufio.Reader
}

// NewReader wraps r for frame reading.
func NewReader(r io.Reader) *Reader { return &Reader{r: bufio.NewReader(r)} }

func (r *Reader) readU8() (uint8, error) {
	return r.r.ReadByte()
}

func (r *Reader) readU16() (uint16, error) {
	var b [2]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint16(b[:]), nil
}

func (r *Reader) readU32() (uint32, error) {
	var b [4]byte
	if _, err := io.ReadFull(r.r, b[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(b[:]), nil
}

func (r *Reader) readSequence() (keymapper.KeySequence, error) {
	n, err := r.readU8()
	if err != nil {
		return nil, err
	}
	seq := make(keymapper.KeySequence, n)
	for i := range seq {
		key, err := r.readU16()
		if err != nil {
			return nil, err
		}
		state, err := r.readU8()
		if err != nil {
			return nil, err
		}
		value, err := r.readU16()
		if err != nil {
			return nil, err
		}
		seq[i] = keymapper.NewKeyEvent(keymapper.Key(key), keymapper.KeyState(state))
		seq[i].Value = value
	}
	return seq, nil
}

// ReadMessageType reads the next frame's type tag.
func (r *Reader) ReadMessageType() (MessageType, error) {
	v, err := r.readU8()
	return MessageType(v), err
}

// ReadConfiguration reads a configuration frame's body (the type tag must
// already have been consumed by ReadMessageType).
func (r *Reader) ReadConfiguration() ([]Mapping, [][]DecodedOverride, error) {
	count, err := r.readU16()
	if err != nil {
		return nil, nil, err
	}
	mappings := make([]Mapping, count)
	for i := range mappings {
		in, err := r.readSequence()
		if err != nil {
			return nil, nil, err
		}
		out, err := r.readSequence()
		if err != nil {
			return nil, nil, err
		}
		mappings[i] = Mapping{Input: in, Output: out}
	}

	setCount, err := r.readU16()
	if err != nil {
		return nil, nil, err
	}
	sets := make([][]DecodedOverride, setCount)
	for i := range sets {
		n, err := r.readU16()
		if err != nil {
			return nil, nil, err
		}
		set := make([]DecodedOverride, n)
		for j := range set {
			idx, err := r.readU16()
			if err != nil {
				return nil, nil, err
			}
			out, err := r.readSequence()
			if err != nil {
				return nil, nil, err
			}
			set[j] = DecodedOverride{MappingIndex: int(idx), Output: out}
		}
		sets[i] = set
	}
	return mappings, sets, nil
}

// ReadActiveContexts reads an active-contexts frame's body.
func (r *Reader) ReadActiveContexts() ([]int, error) {
	count, err := r.readU16()
	if err != nil {
		return nil, err
	}
	indices := make([]int, count)
	for i := range indices {
		v, err := r.readU32()
		if err != nil {
			return nil, err
		}
		indices[i] = int(v)
	}
	return indices, nil
}

// ReadSetActiveOverrideSet reads a set-active-override-set frame's body.
func (r *Reader) ReadSetActiveOverrideSet() (int, error) {
	v, err := r.readU32()
	return int(v), err
}

// ReadTriggeredAction reads a triggered-action frame's body.
func (r *Reader) ReadTriggeredAction() (int, error) {
	v, err := r.readU32()
	return int(v), err
}
