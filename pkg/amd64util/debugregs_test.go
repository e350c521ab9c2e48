package amd64util

import "testing"

func TestSetBreakpoint(t *testing.T) {
	var regs Regs
	drs := regs.DebugRegisters()

	if err := drs.SetBreakpoint(0, 0x401000, false, false, 1); err != nil {
		t.Fatal(err)
	}
	if err := drs.SetBreakpoint(1, 0x500000, true, true, 8); err != nil {
		t.Fatal(err)
	}
	if regs.DR[0] != 0x401000 || regs.DR[1] != 0x500000 || !drs.Dirty {
		t.Errorf("registers %#v", regs)
	}
	if regs.DR7 != 0x00b00005 {
		t.Errorf("DR7 %#x", regs.DR7)
	}
	addr, read, write, sz := drs.Breakpoint(1)
	if addr != 0x500000 || !read || !write || sz != 8 {
		t.Errorf("slot 1: %#x %v %v %d", addr, read, write, sz)
	}

	if err := drs.SetBreakpoint(0, 0x401000, false, false, 1); err != nil {
		t.Errorf("setting the same breakpoint again: %v", err)
	}
	if err := drs.SetBreakpoint(0, 0x402000, false, false, 1); err == nil {
		t.Errorf("slot 0 overwritten")
	}
	if err := drs.SetBreakpoint(2, 0x600000, true, false, 4); err == nil {
		t.Errorf("read only watchpoint accepted")
	}
	if err := drs.SetBreakpoint(2, 0x600000, false, true, 3); err == nil {
		t.Errorf("size 3 accepted")
	}
	if err := drs.SetBreakpoint(NumSlots, 0x600000, false, true, 4); err == nil {
		t.Errorf("slot out of range accepted")
	}

	drs.ClearBreakpoint(0)
	if drs.Enabled(0) || !drs.Enabled(1) {
		t.Errorf("DR7 after clear %#x", regs.DR7)
	}
	if err := drs.SetBreakpoint(0, 0x402000, false, false, 1); err != nil {
		t.Errorf("reusing cleared slot: %v", err)
	}
}

func TestGetActiveBreakpoint(t *testing.T) {
	var regs Regs
	drs := regs.DebugRegisters()
	drs.SetBreakpoint(3, 0x1000, false, true, 4)
	if ok, _ := drs.GetActiveBreakpoint(); ok {
		t.Errorf("active breakpoint without DR6 bits")
	}
	regs.DR6 = 1 << 3
	ok, idx := drs.GetActiveBreakpoint()
	if !ok || idx != 3 || regs.DR6 != 0 {
		t.Errorf("got %v %d DR6 %#x", ok, idx, regs.DR6)
	}
}

func TestReset(t *testing.T) {
	var regs Regs
	drs := regs.DebugRegisters()
	drs.SetBreakpoint(0, 0x1000, false, false, 1)
	regs.Reset()
	if drs.Enabled(0) {
		t.Errorf("breakpoint survived reset")
	}
}
