//go:build !linux

package device

// NewBackend returns a Backend stub on platforms with no grabbing backend
// wired up yet; every operation reports ErrUnsupported. A Windows backend
// would use RawInput registration the same way the original's
// GrabbedDevicesWin32.cpp does; no Windows raw-input binding is grounded
// anywhere in the retrieved pack, so it's left unimplemented rather than
// invented (see DESIGN.md).
func NewBackend() Backend { return unsupportedBackend{} }

type unsupportedBackend struct{}

func (unsupportedBackend) Enumerate() ([]Info, error) { return nil, ErrUnsupported }

func (unsupportedBackend) Open(string) (Device, error) { return nil, ErrUnsupported }

func (unsupportedBackend) Watch() (<-chan Info, func(), error) {
	return nil, nil, ErrUnsupported
}

func (unsupportedBackend) NewEmitter() (Emitter, error) { return nil, ErrUnsupported }
