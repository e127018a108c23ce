//go:build linux

package device

import (
	"encoding/binary"
	"os"
	"time"
	"unsafe"

	"golang.org/x/sys/unix"

	keymapper "github.com/kbd/keymapper"
)

// /dev/uinput ioctl request numbers, computed the same way eviocgrab is in
// device_linux.go — x/sys/unix carries no uinput constant table.
const (
	uiSetEvBit  = 0x40045564
	uiSetKeyBit = 0x40045565
	uiSetRelBit = 0x40045566
	uiDevCreate = 0x5501
	uiDevDestroy = 0x5502
)

// uinputUserDev mirrors struct uinput_user_dev. This emitter sets only the
// name and the bus/vendor/product/version identification block; the
// remaining fields stay zero.
type uinputUserDev struct {
	Name                   [80]byte
	Bustype, Vendor        uint16
	Product, Version       uint16
	FFEffectsMax           uint32
	AbsMax, AbsMin         [0x40]int32
	AbsFuzz, AbsFlat       [0x40]int32
}

type uinputEmitter struct {
	f *os.File
}

// newUinputEmitter opens /dev/uinput, declares it supports every key/relative
// axis code keymapper.Key can name, and brings the virtual device up,
// mirroring the original daemon's own uinput-based output device.
func newUinputEmitter() (*uinputEmitter, error) {
	f, err := os.OpenFile("/dev/uinput", os.O_WRONLY|unix.O_NONBLOCK, 0)
	if err != nil {
		return nil, err
	}

	if err := unix.IoctlSetInt(int(f.Fd()), uiSetEvBit, evKey); err != nil {
		f.Close()
		return nil, err
	}
	if err := unix.IoctlSetInt(int(f.Fd()), uiSetEvBit, evRel); err != nil {
		f.Close()
		return nil, err
	}
	for code := 0; code < 0x300; code++ {
		_ = unix.IoctlSetInt(int(f.Fd()), uiSetKeyBit, code)
	}
	_ = unix.IoctlSetInt(int(f.Fd()), uiSetRelBit, relWheel)

	var dev uinputUserDev
	copy(dev.Name[:], "keymapper virtual input")
	dev.Bustype = 0x03 // BUS_USB
	dev.Vendor = 0x1
	dev.Product = 0x1
	dev.Version = 0x1
	if _, err := f.Write((*[unsafe.Sizeof(dev)]byte)(unsafe.Pointer(&dev))[:]); err != nil {
		f.Close()
		return nil, err
	}

	if _, _, errno := unix.Syscall(unix.SYS_IOCTL, f.Fd(), uiDevCreate, 0); errno != 0 {
		f.Close()
		return nil, errno
	}

	return &uinputEmitter{f: f}, nil
}

func (e *uinputEmitter) Emit(ev keymapper.KeyEvent) error {
	if err := e.write(uint16(keyToCode(ev.Key)), evKey, stateValue(ev.State)); err != nil {
		return err
	}
	return e.write(0, evSyn, 0)
}

// stateValue maps an emitted KeyEvent's state to the evdev value field:
// 1 for a press, 0 for a release. Only Down/Up ever reach an Emitter:
// the daemon's consumeEvents strips OutputOnRelease markers from the
// Stage's output before emitting.
func stateValue(s keymapper.KeyState) int32 {
	if s == keymapper.Down {
		return 1
	}
	return 0
}

// keyToCode strips the Extended bit keymapper.Key uses to distinguish
// duplicated keys, since uinput addresses left/right variants by distinct
// scancodes already present in its own keybit table rather than a high bit.
func keyToCode(k keymapper.Key) uint16 {
	return uint16(k) &^ uint16(keymapper.Extended)
}

func (e *uinputEmitter) write(code uint16, evType uint16, value int32) error {
	var buf [inputEventSize]byte
	now := time.Now()
	binary.LittleEndian.PutUint64(buf[0:8], uint64(now.Unix()))
	binary.LittleEndian.PutUint64(buf[8:16], uint64(now.Nanosecond()/1000))
	binary.LittleEndian.PutUint16(buf[16:18], evType)
	binary.LittleEndian.PutUint16(buf[18:20], code)
	binary.LittleEndian.PutUint32(buf[20:24], uint32(value))
	_, err := e.f.Write(buf[:])
	return err
}

func (e *uinputEmitter) Close() error {
	unix.Syscall(unix.SYS_IOCTL, e.f.Fd(), uiDevDestroy, 0)
	return e.f.Close()
}

func (evdevBackend) NewEmitter() (Emitter, error) {
	return newUinputEmitter()
}
