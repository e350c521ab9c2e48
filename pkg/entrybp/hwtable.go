package entrybp

import (
	"fmt"
	"sync"

	"github.com/go-delve/wincore/pkg/amd64util"
)

// LocationKind is the kind of a breakpoint location.
type LocationKind uint8

const (
	SoftwareBreakpoint LocationKind = iota
	HardwareBreakpoint
	HardwareWatchpoint
)

func (k LocationKind) String() string {
	switch k {
	case SoftwareBreakpoint:
		return "breakpoint"
	case HardwareBreakpoint:
		return "hw breakpoint"
	case HardwareWatchpoint:
		return "hw watchpoint"
	}
	return "?"
}

// Location is a location of a breakpoint.
type Location struct {
	ID       int
	Kind     LocationKind
	Space    int
	Addr     uint64
	Size     int
	Read     bool
	Write    bool
	Inserted bool

	slot uint8
}

func (loc *Location) String() string {
	s := fmt.Sprintf("%d %s at %#x", loc.ID, loc.Kind, loc.Addr)
	if loc.Kind == HardwareWatchpoint {
		s += fmt.Sprintf(" (%d bytes", loc.Size)
		if loc.Read {
			s += ", read"
		}
		if loc.Write {
			s += ", write"
		}
		s += ")"
	}
	if !loc.Inserted {
		s += " (not inserted)"
	}
	return s
}

// Table is the set of breakpoint locations of the debugger.
type Table interface {
	Locations() []*Location
	RemoveLocation(loc *Location) error
	InsertLocation(loc *Location) error
}

// HWTable is a Table of hardware breakpoints and watchpoints stored in a
// set of x86 debug registers.
type HWTable struct {
	mu     sync.Mutex
	regs   *amd64util.Regs
	drs    *amd64util.DebugRegisters
	locs   []*Location
	nextID int
}

// NewHWTable returns an empty table backed by regs.
func NewHWTable(regs *amd64util.Regs) *HWTable {
	return &HWTable{regs: regs, drs: regs.DebugRegisters(), nextID: 1}
}

// Add allocates a debug register for a new location in program space
// space and inserts it.
func (t *HWTable) Add(space int, addr uint64, watch, read, write bool, size int) (*Location, error) {
	t.mu.Lock()
	defer t.mu.Unlock()
	var used [amd64util.NumSlots]bool
	for _, loc := range t.locs {
		used[loc.slot] = true
	}
	slot := -1
	for i := range used {
		if !used[i] {
			slot = i
			break
		}
	}
	if slot < 0 {
		return nil, fmt.Errorf("hardware breakpoints exhausted")
	}
	loc := &Location{ID: t.nextID, Kind: HardwareBreakpoint, Space: space, Addr: addr, Size: 1, slot: uint8(slot)}
	if watch {
		loc.Kind = HardwareWatchpoint
		loc.Read, loc.Write, loc.Size = read, write, size
	}
	if err := t.insert(loc); err != nil {
		return nil, err
	}
	t.nextID++
	t.locs = append(t.locs, loc)
	return loc, nil
}

// Delete removes the location with the given id.
func (t *HWTable) Delete(id int) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	for i, loc := range t.locs {
		if loc.ID == id {
			t.remove(loc)
			t.locs = append(t.locs[:i], t.locs[i+1:]...)
			return nil
		}
	}
	return fmt.Errorf("no hardware breakpoint %d", id)
}

// Locations implements Table.
func (t *HWTable) Locations() []*Location {
	t.mu.Lock()
	defer t.mu.Unlock()
	r := make([]*Location, len(t.locs))
	copy(r, t.locs)
	return r
}

// RemoveLocation implements Table.
func (t *HWTable) RemoveLocation(loc *Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.remove(loc)
	return nil
}

// InsertLocation implements Table.
func (t *HWTable) InsertLocation(loc *Location) error {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.insert(loc)
}

// Armed reports whether the debug register of loc is enabled.
func (t *HWTable) Armed(loc *Location) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	addr, _, _, _ := t.drs.Breakpoint(loc.slot)
	return t.drs.Enabled(loc.slot) && addr == loc.Addr
}

func (t *HWTable) insert(loc *Location) error {
	if err := t.drs.SetBreakpoint(loc.slot, loc.Addr, loc.Read, loc.Write, loc.Size); err != nil {
		loc.Inserted = false
		return err
	}
	loc.Inserted = true
	return nil
}

func (t *HWTable) remove(loc *Location) {
	t.drs.ClearBreakpoint(loc.slot)
	loc.Inserted = false
}
