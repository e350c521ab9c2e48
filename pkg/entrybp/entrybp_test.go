package entrybp

import (
	"fmt"
	"strings"
	"testing"

	"github.com/go-delve/wincore/pkg/amd64util"
	"github.com/go-delve/wincore/pkg/winarch"
)

func TestCheckStatusRearms(t *testing.T) {
	var regs amd64util.Regs
	table := NewHWTable(&regs)
	hb, err := table.Add(1, 0x401500, false, false, false, 1)
	if err != nil {
		t.Fatal(err)
	}
	wp, err := table.Add(1, 0x602000, true, true, true, 8)
	if err != nil {
		t.Fatal(err)
	}
	other, err := table.Add(2, 0x403000, false, false, false, 1)
	if err != nil {
		t.Fatal(err)
	}

	b := New(1, 0x401000, table)

	// The system clears the debug registers before the entry point.
	regs.Reset()
	for _, loc := range []*Location{hb, wp, other} {
		if table.Armed(loc) {
			t.Errorf("%s armed after reset", loc)
		}
	}

	if b.Hit(1, 0x401001) {
		t.Errorf("hit at the wrong address")
	}
	if !b.Hit(1, 0x401000) {
		t.Errorf("breakpoint did not handle its own address")
	}
	if b.Hits() != 1 {
		t.Errorf("hits %d", b.Hits())
	}
	if !table.Armed(hb) || !table.Armed(wp) {
		t.Errorf("locations not re-armed: DR7 %#x", regs.DR7)
	}
	if table.Armed(other) {
		t.Errorf("location of another program space re-armed")
	}
	if !hb.Inserted || !wp.Inserted {
		t.Errorf("locations not inserted")
	}
}

func TestCheckStatusSkipsRemoved(t *testing.T) {
	var regs amd64util.Regs
	table := NewHWTable(&regs)
	loc, _ := table.Add(1, 0x401500, false, false, false, 1)
	table.RemoveLocation(loc)
	b := New(1, 0x401000, table)
	if b.CheckStatus(1) {
		t.Errorf("entry point breakpoint requested a stop")
	}
	if loc.Inserted || table.Armed(loc) {
		t.Errorf("removed location reinserted")
	}
}

func TestReSet(t *testing.T) {
	b := New(1, 0x401000, NewHWTable(&amd64util.Regs{}))
	if b.ReSet(1, 0x401000) {
		t.Errorf("moved to the same address")
	}
	if !b.ReSet(1, 0x7ff601000) || b.Address() != 0x7ff601000 {
		t.Errorf("not moved: %#x", b.Address())
	}
}

func TestHWTableExhausted(t *testing.T) {
	table := NewHWTable(&amd64util.Regs{})
	for i := 0; i < amd64util.NumSlots; i++ {
		if _, err := table.Add(1, uint64(0x1000*(i+1)), false, false, false, 1); err != nil {
			t.Fatal(err)
		}
	}
	if _, err := table.Add(1, 0x9000, false, false, false, 1); err == nil {
		t.Errorf("fifth hardware breakpoint accepted")
	}
	if err := table.Delete(2); err != nil {
		t.Fatal(err)
	}
	loc, err := table.Add(1, 0x9000, false, false, false, 1)
	if err != nil || loc.slot != 1 {
		t.Errorf("slot not reused: %v %v", loc, err)
	}
	if err := table.Delete(42); err == nil {
		t.Errorf("deleted a missing location")
	}
}

type memory map[uint64][]byte

func (m memory) ReadMemory(buf []byte, addr uint64) (int, error) {
	data, ok := m[addr]
	if !ok {
		return 0, fmt.Errorf("unmapped %#x", addr)
	}
	return copy(buf, data), nil
}

func TestDescribe(t *testing.T) {
	mem := memory{
		0x401000: {0x48, 0x83, 0xec, 0x28}, // sub rsp, 0x28
		0x402000: {0x55},                   // push ebp
	}
	b := New(1, 0x401000, NewHWTable(&amd64util.Regs{}))
	s, err := b.Describe(winarch.AMD64, mem)
	if err != nil || !strings.HasPrefix(s, "0x401000\t") || !strings.Contains(s, "sub rsp, 0x28") {
		t.Errorf("amd64: %q %v", s, err)
	}
	b.ReSet(1, 0x402000)
	s, err = b.Describe(winarch.I386, mem)
	if err != nil || !strings.Contains(s, "push ebp") {
		t.Errorf("i386: %q %v", s, err)
	}
	b.ReSet(1, 0x403000)
	if _, err := b.Describe(winarch.I386, mem); err == nil {
		t.Errorf("described unmapped memory")
	}
	if _, err := b.Describe(winarch.ARM64, mem); err == nil {
		t.Errorf("described arm64 code")
	}
}
