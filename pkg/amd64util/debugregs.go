// Package amd64util keeps track of the x86 debug registers used to
// implement hardware breakpoints and watchpoints (Intel SDM Vol. 3B,
// section 17.2).
package amd64util

import (
	"errors"
	"fmt"
)

// NumSlots is the number of address registers (DR0 to DR3).
const NumSlots = 4

// DR7 layout: two enable bits per slot starting at bit 0 (only the local
// one is used) and a four bit R/W and LEN field per slot starting at
// bit 16.
const (
	dr7LenRWBase = 16
	dr7LenRWMask = 0xf

	rwWrite = 0x1
	rwRead  = 0x2
)

// lenBits maps a watched size to the LEN encoding. The encoding of 8 is
// out of order in the hardware.
var lenBits = map[int]uint64{1: 0x0, 2: 0x1, 8: 0x2, 4: 0x3}

// Regs is storage for a set of debug registers.
type Regs struct {
	DR       [NumSlots]uint64
	DR6, DR7 uint64
}

// Reset clears every register, which is what the system does to the
// thread contexts when a process reaches its entry point.
func (r *Regs) Reset() {
	*r = Regs{}
}

// DebugRegisters returns an editor for r.
func (r *Regs) DebugRegisters() *DebugRegisters {
	return &DebugRegisters{regs: r}
}

// DebugRegisters edits a Regs. Dirty is set whenever a register changes
// and is never cleared by this package.
type DebugRegisters struct {
	regs  *Regs
	Dirty bool
}

func enableBit(idx uint8) uint64 { return 1 << (2 * idx) }

func lenRWShift(idx uint8) uint8 { return dr7LenRWBase + 4*idx }

// Enabled reports whether slot idx is in use.
func (drs *DebugRegisters) Enabled(idx uint8) bool {
	return idx < NumSlots && drs.regs.DR7&enableBit(idx) != 0
}

// Breakpoint returns the settings of slot idx. The address is zero if the
// slot is disabled.
func (drs *DebugRegisters) Breakpoint(idx uint8) (addr uint64, read, write bool, sz int) {
	if !drs.Enabled(idx) {
		return 0, false, false, 0
	}
	lenrw := (drs.regs.DR7 >> lenRWShift(idx)) & dr7LenRWMask
	for size, bits := range lenBits {
		if bits == lenrw>>2 {
			sz = size
		}
	}
	return drs.regs.DR[idx], lenrw&rwRead != 0, lenrw&rwWrite != 0, sz
}

// SetBreakpoint programs slot idx. An execution breakpoint has neither
// read nor write set and a size of 1. Setting a slot again with the same
// parameters does nothing, changing a slot in use is an error.
func (drs *DebugRegisters) SetBreakpoint(idx uint8, addr uint64, read, write bool, sz int) error {
	if idx >= NumSlots {
		return errors.New("hardware breakpoints exhausted")
	}
	if drs.Enabled(idx) {
		cur, curRead, curWrite, curSz := drs.Breakpoint(idx)
		if cur != addr || curRead != read || curWrite != write || curSz != sz {
			return fmt.Errorf("hardware breakpoint %d already in use (address %#x)", idx, cur)
		}
		return nil
	}
	if read && !write {
		return errors.New("break on read only not supported")
	}
	bits, ok := lenBits[sz]
	if !ok {
		return fmt.Errorf("data breakpoint of size %d not supported", sz)
	}
	lenrw := bits << 2
	if write {
		lenrw |= rwWrite
	}
	if read {
		lenrw |= rwRead
	}

	r := drs.regs
	r.DR[idx] = addr
	r.DR7 &^= dr7LenRWMask << lenRWShift(idx)
	r.DR7 |= lenrw<<lenRWShift(idx) | enableBit(idx)
	drs.Dirty = true
	return nil
}

// ClearBreakpoint disables slot idx, the address register keeps its
// value.
func (drs *DebugRegisters) ClearBreakpoint(idx uint8) {
	if drs.Enabled(idx) {
		drs.regs.DR7 &^= enableBit(idx)
		drs.Dirty = true
	}
}

// GetActiveBreakpoint returns the enabled slot whose condition bit is set
// in DR6 and clears the condition bits.
func (drs *DebugRegisters) GetActiveBreakpoint() (ok bool, idx uint8) {
	for idx = 0; idx < NumSlots; idx++ {
		if drs.Enabled(idx) && drs.regs.DR6&(1<<idx) != 0 {
			drs.regs.DR6 &^= 0xf
			drs.Dirty = true
			return true, idx
		}
	}
	return false, 0
}
