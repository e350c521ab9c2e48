// Package entrybp implements the breakpoint placed on the entry point of
// Windows processes. The system resets the thread contexts when a process
// reaches its entry point, losing the hardware breakpoints that were set
// before; this breakpoint never stops the program but re-arms every
// inserted hardware breakpoint and watchpoint when it is hit.
package entrybp

import (
	"fmt"
	"sync"

	"golang.org/x/arch/x86/x86asm"

	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/winarch"
)

// Breakpoint is the entry point breakpoint of a program space.
type Breakpoint struct {
	mu    sync.Mutex
	space int
	addr  uint64
	table Table
	hits  int
}

// New creates the breakpoint at the entry point addr of program space
// space. Hardware locations are looked up in table.
func New(space int, addr uint64, table Table) *Breakpoint {
	if logflags.EntryBP() {
		logflags.EntryBPLogger().Debugf("entry point breakpoint created at %#x", addr)
	}
	return &Breakpoint{space: space, addr: addr, table: table}
}

// Address returns the address of the breakpoint.
func (b *Breakpoint) Address() uint64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.addr
}

// Hits returns the number of times the breakpoint was hit.
func (b *Breakpoint) Hits() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.hits
}

// ReSet moves the breakpoint to entry, the current entry point of the
// program space. It reports whether the breakpoint moved.
func (b *Breakpoint) ReSet(space int, entry uint64) bool {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.space == space && b.addr == entry {
		return false
	}
	if logflags.EntryBP() {
		logflags.EntryBPLogger().Debugf("entry point breakpoint moved from %#x to %#x", b.addr, entry)
	}
	b.space = space
	b.addr = entry
	return true
}

// CheckStatus is called when the breakpoint is hit in program space
// space. It removes and reinserts every inserted hardware breakpoint and
// watchpoint of that space and always returns false: the program must not
// stop.
func (b *Breakpoint) CheckStatus(space int) (stop bool) {
	b.mu.Lock()
	b.hits++
	b.mu.Unlock()
	n := 0
	for _, loc := range b.table.Locations() {
		if !loc.Inserted || loc.Space != space {
			continue
		}
		if loc.Kind != HardwareBreakpoint && loc.Kind != HardwareWatchpoint {
			continue
		}
		if err := b.table.RemoveLocation(loc); err != nil {
			continue
		}
		if err := b.table.InsertLocation(loc); err != nil {
			logflags.EntryBPLogger().Warnf("could not reinsert %s: %v", loc, err)
			continue
		}
		n++
	}
	if logflags.EntryBP() {
		logflags.EntryBPLogger().Debugf("entry point reached, %d hardware locations reinserted", n)
	}
	return false
}

// Hit dispatches a stop at pc in program space space. It reports whether
// the stop was caused by the breakpoint, in which case execution should
// resume.
func (b *Breakpoint) Hit(space int, pc uint64) bool {
	b.mu.Lock()
	ours := b.space == space && b.addr == pc
	b.mu.Unlock()
	if !ours {
		return false
	}
	return !b.CheckStatus(space)
}

// MemoryReader reads target memory.
type MemoryReader interface {
	ReadMemory(buf []byte, addr uint64) (int, error)
}

const maxInstLen = 15

// Describe disassembles the instruction at the breakpoint address.
func (b *Breakpoint) Describe(arch winarch.Arch, mem MemoryReader) (string, error) {
	addr := b.Address()
	var mode int
	switch arch {
	case winarch.I386:
		mode = 32
	case winarch.AMD64:
		mode = 64
	default:
		return "", fmt.Errorf("disassembly not supported on %s", arch)
	}
	buf := make([]byte, maxInstLen)
	n, err := mem.ReadMemory(buf, addr)
	if n == 0 {
		if err == nil {
			err = fmt.Errorf("could not read memory at %#x", addr)
		}
		return "", err
	}
	inst, err := x86asm.Decode(buf[:n], mode)
	if err != nil {
		return "", fmt.Errorf("could not decode instruction at %#x: %v", addr, err)
	}
	return fmt.Sprintf("%s\t%s", arch.Paddress(addr), x86asm.IntelSyntax(inst, addr, nil)), nil
}
