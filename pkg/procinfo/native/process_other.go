//go:build !windows
// +build !windows

package native

// Process is a live process opened for reading.
type Process struct {
	pid int
}

// Attach opens process pid for reading.
func Attach(pid int) (*Process, error) {
	return nil, ErrUnsupported
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.pid }

// ReadMemory reads len(buf) bytes at addr.
func (p *Process) ReadMemory(buf []byte, addr uint64) (int, error) {
	return 0, ErrUnsupported
}

// TIBAddress returns the address of the thread environment block of
// thread tid.
func (p *Process) TIBAddress(tid int) (uint64, bool) {
	return 0, false
}

// Threads returns the ids of the threads of the process.
func (p *Process) Threads() ([]int, error) {
	return nil, ErrUnsupported
}

// Close releases the process handle.
func (p *Process) Close() error {
	return nil
}
