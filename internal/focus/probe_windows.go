//go:build windows

package focus

// Win32Probe is the Windows counterpart of X11Probe: it would call
// GetForegroundWindow/GetWindowText/GetModuleFileNameEx via
// golang.org/x/sys/windows, mirroring the original's Win32 backend. The
// pack carries no Windows-syscall bindings beyond golang.org/x/term's use
// of them for console mode, so this backend is left unimplemented rather
// than grown past what's grounded in the retrieved examples; it always
// reports "no window" and lets the registry fall through.
type Win32Probe struct{}

// NewWin32Probe returns a Probe stub for Windows hosts.
func NewWin32Probe() *Win32Probe { return &Win32Probe{} }

func (p *Win32Probe) Name() string { return "win32" }

func (p *Win32Probe) Update() (Window, bool) { return Window{}, false }
