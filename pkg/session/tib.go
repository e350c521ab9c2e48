package session

import (
	"context"
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"

	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/winarch"
	"github.com/go-delve/wincore/pkg/wintypes"
)

var tibNames = [winarch.TIBFields]string{
	" current_seh                 ",
	" current_top_of_stack        ",
	" current_bottom_of_stack     ",
	" sub_system_tib              ",
	" fiber_data                  ",
	" arbitrary_data_slot         ",
	" linear_address_tib          ",
	" environment_pointer         ",
	" process_id                  ",
	" current_thread_id           ",
	" active_rpc_handle           ",
	" thread_local_storage        ",
	" process_environment_block   ",
	" last_error_number           ",
}

// ShowAllTIBMessage is printed by "maint show show-all-tib".
func ShowAllTIBMessage(on bool) string {
	v := "off"
	if on {
		v = "on"
	}
	return fmt.Sprintf("Show all non-zero elements of Thread Information Block is %s.", v)
}

// ShowAllTIB reports whether DisplayTIB prints the unnamed slots of the
// thread information block.
func (s *Session) ShowAllTIB() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.showAllTIB
}

// SetShowAllTIB changes the show-all-tib setting.
func (s *Session) SetShowAllTIB(on bool) {
	s.mu.Lock()
	s.showAllTIB = on
	s.mu.Unlock()
}

// TIBField is one pointer sized slot of a thread information block.
type TIBField struct {
	// Name is empty for the slots past the named fields.
	Name   string
	Offset int
	Value  uint64
}

// ReadTIB reads the thread information block of thread tid, or of the
// current thread when tid is 0. Unless all is set only the named fields
// are returned.
func (s *Session) ReadTIB(tid int, all bool) (uint64, []TIBField, error) {
	s.mu.Lock()
	t, arch := s.target(), s.arch
	if tid == 0 {
		tid = s.currentThread
	}
	s.mu.Unlock()
	if t == nil || tid == 0 {
		return 0, nil, procinfo.ErrNoProcess
	}
	name := s.PidToStr(tid)

	base, ok := t.TIBAddress(tid)
	if !ok {
		return 0, nil, fmt.Errorf("Unable to get thread local base for %s", name)
	}

	size := arch.PtrSize()
	n := winarch.TIBFields
	if all {
		n = winarch.FullTIBSize / size
	}
	buf := make([]byte, n*size)
	if rn, err := t.ReadMemory(buf, base); err != nil || rn != len(buf) {
		if logflags.Session() {
			logflags.SessionLogger().WithError(err).Debugf("short TIB read for thread %d: %d bytes", tid, rn)
		}
		return base, nil, fmt.Errorf("Unable to read thread information block for %s at address %s", name, arch.Paddress(base))
	}

	fields := make([]TIBField, n)
	for i := range fields {
		fields[i] = TIBField{Offset: i * size, Value: arch.Ptr(buf[i*size:])}
		if i < winarch.TIBFields {
			fields[i].Name = strings.TrimSpace(tibNames[i])
		}
	}
	return base, fields, nil
}

// DisplayTIB prints the thread information block of thread tid, or of the
// current thread when tid is 0.
func (s *Session) DisplayTIB(ctx context.Context, w io.Writer, tid int) error {
	s.mu.Lock()
	arch, showAll := s.arch, s.showAllTIB
	if tid == 0 {
		tid = s.currentThread
	}
	s.mu.Unlock()
	base, fields, err := s.ReadTIB(tid, showAll)
	if err == procinfo.ErrNoProcess {
		return nil
	}
	if err != nil {
		return err
	}

	size := arch.PtrSize()
	fmt.Fprintf(w, "Thread Information Block %s at %s\n", s.PidToStr(tid), arch.Paddress(base))
	for i, f := range fields {
		if i%64 == 0 && ctx.Err() != nil {
			return ctx.Err()
		}
		if i < winarch.TIBFields {
			fmt.Fprintf(w, "%s is 0x%s\n", tibNames[i], winarch.Phex(f.Value, size))
		} else if f.Value != 0 {
			fmt.Fprintf(w, "TIB[0x%s] is 0x%s\n", winarch.Phex(uint64(f.Offset), 2), winarch.Phex(f.Value, size))
		}
	}
	return nil
}

// TLB returns the value of $_tlb, the address of the thread information
// block of the current thread, together with its type.
func (s *Session) TLB() (uint64, *wintypes.PtrType, error) {
	s.mu.Lock()
	t, arch, tid := s.target(), s.arch, s.currentThread
	s.mu.Unlock()
	if t == nil {
		return 0, nil, ErrNoTLB
	}
	addr, ok := t.TIBAddress(tid)
	if !ok {
		return 0, nil, ErrNoTLB
	}
	return addr, s.types.ThreadBlockType(arch), nil
}

// SetTLB always fails: the thread local base can not be changed.
func (s *Session) SetTLB(uint64) error {
	return ErrTLBReadOnly
}

// FormatTLB returns $_tlb printed as a value of its type.
func (s *Session) FormatTLB() (string, error) {
	addr, typ, err := s.TLB()
	if err != nil {
		return "", err
	}
	arch := s.Arch()
	buf := make([]byte, arch.PtrSize())
	arch.PutPtr(buf, addr)
	return wintypes.Format(typ, arch, buf), nil
}

// typeTable records the composite types built by the type registry.
type typeTable struct {
	mu    sync.Mutex
	types map[string]wintypes.Type
}

func newTypeTable() *typeTable {
	return &typeTable{types: make(map[string]wintypes.Type)}
}

func (tt *typeTable) Intern(t wintypes.Type) {
	name := t.String()
	if strings.TrimSpace(name) == "" {
		return
	}
	tt.mu.Lock()
	tt.types[name] = t
	tt.mu.Unlock()
	if logflags.Session() {
		logflags.SessionLogger().Debugf("interned type %s (%d bytes)", name, t.Size())
	}
}

func (tt *typeTable) names() []string {
	tt.mu.Lock()
	defer tt.mu.Unlock()
	r := make([]string, 0, len(tt.types))
	for name := range tt.types {
		r = append(r, name)
	}
	sort.Strings(r)
	return r
}
