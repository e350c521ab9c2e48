// Package session ties the Windows metadata readers to a debugging
// target: a live process, a post-mortem snapshot, or both.
package session

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"sync"

	"github.com/go-delve/wincore/pkg/amd64util"
	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/coreinfo"
	"github.com/go-delve/wincore/pkg/entrybp"
	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/peimport"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/solib"
	"github.com/go-delve/wincore/pkg/winarch"
	"github.com/go-delve/wincore/pkg/winsignal"
	"github.com/go-delve/wincore/pkg/wintypes"
)

var (
	// ErrTLBReadOnly is returned when writing $_tlb.
	ErrTLBReadOnly = errors.New("Impossible to change the Thread Local Base")
	// ErrNoTLB is returned when the thread local base of the current
	// thread is unknown.
	ErrNoTLB = errors.New("Unable to read tlb")
	// ErrUnsupportedOperation is returned for operations the current
	// target can not perform.
	ErrUnsupportedOperation = errors.New("operation not supported by the current target")
)

// programSpace identifies the only program space of a session.
const programSpace = 1

// Process is a live process.
type Process interface {
	procinfo.Target
	Pid() int
	Threads() ([]int, error)
	Close() error
}

// Executable is the main executable of the target.
type Executable struct {
	Path      string
	ImageBase uint64
	EntryRVA  uint64
	Is64      bool
	// Cygwin is true when the executable imports from cygwin1.dll.
	Cygwin bool
}

// OpenExecutable reads the PE headers of the executable at path.
func OpenExecutable(path string, warn func(string, ...interface{})) (*Executable, error) {
	f, err := peimport.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return &Executable{
		Path:      path,
		ImageBase: f.ImageBase(),
		EntryRVA:  f.EntryRVA(),
		Is64:      f.Is64(),
		Cygwin:    peimport.DependsOn(f, peimport.CygwinDLL, warn),
	}, nil
}

// Thread describes a thread of the target.
type Thread struct {
	ID   int
	Name string
	TEB  uint64
}

// HookResult reports what CreateInferiorHook did.
type HookResult struct {
	ExecBase    uint64
	Rebased     bool
	RebaseDelta uint64
	EntryPoint  uint64
	// BreakpointCreated is true the first time the entry point
	// breakpoint is created.
	BreakpointCreated bool
}

// Session is a debugging session on a Windows target.
type Session struct {
	mu sync.Mutex

	conf  *config.Config
	warnf func(string, ...interface{})

	arch       winarch.Arch
	types      *wintypes.Registry
	interned   *typeTable
	libs       *solib.Cache
	resolver   solib.SymbolResolver
	translator winsignal.Translator

	proc Process
	snap *snapshot.Snapshot
	exe  *Executable

	currentThread int
	showAllTIB    bool

	execBase    uint64
	rebaseDelta uint64
	regs        amd64util.Regs
	hw          *entrybp.HWTable
	entry       *entrybp.Breakpoint
}

// New creates a session with no target. Warnings visible to the user are
// sent to warn.
func New(conf *config.Config, warn func(string, ...interface{})) *Session {
	if conf == nil {
		conf = &config.Config{}
	}
	s := &Session{
		conf:       conf,
		translator: winsignal.Windows(),
		showAllTIB: conf.ShowAllTIB,
		interned:   newTypeTable(),
	}
	s.warnf = func(format string, args ...interface{}) {
		if logflags.Session() {
			logflags.SessionLogger().Debugf("warning: "+format, args...)
		}
		if warn != nil {
			warn(format, args...)
		}
	}
	s.types = wintypes.NewRegistry(s.interned)
	s.resolver = &solib.PathResolver{SymbolPath: conf.SymbolPath, Substitute: conf.SubstitutePathFn()}
	s.libs = solib.NewCache(s.resolver, solib.Warner(s.warnf), conf.GetTextOffsetCacheSize())
	s.hw = entrybp.NewHWTable(&s.regs)
	return s
}

// Reconfigure applies changes made to the configuration: the symbol path,
// path substitution rules, the text offset cache size and the
// show-all-tib setting.
func (s *Session) Reconfigure() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.showAllTIB = s.conf.ShowAllTIB
	s.resolver = &solib.PathResolver{SymbolPath: s.conf.SymbolPath, Substitute: s.conf.SubstitutePathFn()}
	s.libs = solib.NewCache(s.resolver, solib.Warner(s.warnf), s.conf.GetTextOffsetCacheSize())
}

// Arch returns the architecture of the target.
func (s *Session) Arch() winarch.Arch {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.arch
}

// Snapshot returns the snapshot being examined, if any.
func (s *Session) Snapshot() *snapshot.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snap
}

// Process returns the live process, if any.
func (s *Session) Process() Process {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.proc
}

// Executable returns the main executable, if one was loaded.
func (s *Session) Executable() *Executable {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.exe
}

// Types returns the type registry of the session.
func (s *Session) Types() *wintypes.Registry {
	return s.types
}

// InternedTypes returns the names of the composite types built so far.
func (s *Session) InternedTypes() []string {
	return s.interned.names()
}

// Translator returns the signal translator chosen for the executable.
func (s *Session) Translator() winsignal.Translator {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.translator
}

// HardwareBreakpoints returns the hardware breakpoint table.
func (s *Session) HardwareBreakpoints() *entrybp.HWTable {
	return s.hw
}

// DebugRegisters returns the debug registers backing the hardware
// breakpoint table.
func (s *Session) DebugRegisters() *amd64util.Regs {
	return &s.regs
}

// EntryBreakpoint returns the entry point breakpoint, nil until a live
// process was started with a known executable.
func (s *Session) EntryBreakpoint() *entrybp.Breakpoint {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.entry
}

// Target returns the object used to read memory and thread blocks: the
// live process if there is one, otherwise the snapshot.
func (s *Session) target() procinfo.Target {
	if s.proc != nil {
		return s.proc
	}
	if s.snap != nil {
		return s.snap
	}
	return nil
}

// ReadMemory reads target memory.
func (s *Session) ReadMemory(buf []byte, addr uint64) (int, error) {
	s.mu.Lock()
	t := s.target()
	s.mu.Unlock()
	if t == nil {
		return 0, procinfo.ErrNoProcess
	}
	return t.ReadMemory(buf, addr)
}

// LoadExecutable sets the main executable and selects the signal
// translator according to its dependency on the Cygwin runtime.
func (s *Session) LoadExecutable(path string) error {
	exe, err := OpenExecutable(path, s.warnf)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.setExecutable(exe)
	return nil
}

func (s *Session) setExecutable(exe *Executable) {
	s.exe = exe
	s.translator = winsignal.ForBinary(exe.Cygwin)
	if !s.arch.Valid() {
		s.arch = winarch.I386
		if exe.Is64 {
			s.arch = winarch.AMD64
		}
	}
	if logflags.Session() {
		logflags.SessionLogger().Debugf("executable %s: image base %#x, entry %#x, signals %s", exe.Path, exe.ImageBase, exe.EntryRVA, s.translator.Name())
	}
}

// OpenSnapshot loads the snapshot at path. See SetSnapshot.
func (s *Session) OpenSnapshot(ctx context.Context, path string) (HookResult, error) {
	snap, err := snapshot.Open(path)
	if err != nil {
		return HookResult{}, err
	}
	return s.SetSnapshot(ctx, snap)
}

// SetSnapshot makes snap the target of the session. The main executable
// is located with the symbol path unless one was already loaded.
func (s *Session) SetSnapshot(ctx context.Context, snap *snapshot.Snapshot) (HookResult, error) {
	s.mu.Lock()
	s.snap = snap
	s.arch = snap.Arch
	s.currentThread = snap.ExceptionThread
	if s.currentThread == 0 {
		if ths := snap.Threads(); len(ths) > 0 {
			s.currentThread = ths[0].ID
		}
	}
	needExe := s.exe == nil
	resolver := s.resolver
	s.mu.Unlock()

	if needExe {
		if path, ok := solib.LoadExecutable(snap, snap.Arch, resolver, solib.Warner(s.warnf)); ok {
			if exe, err := OpenExecutable(path, s.warnf); err == nil {
				s.mu.Lock()
				s.setExecutable(exe)
				s.mu.Unlock()
			} else if logflags.Session() {
				logflags.SessionLogger().Debugf("could not open executable %s: %v", path, err)
			}
		}
	}
	return s.CreateInferiorHook(ctx), nil
}

// Attach makes the live process p the target of the session.
func (s *Session) Attach(ctx context.Context, p Process, arch winarch.Arch) (HookResult, error) {
	ths, err := p.Threads()
	if err != nil {
		return HookResult{}, err
	}
	s.mu.Lock()
	s.proc = p
	if arch.Valid() {
		s.arch = arch
	} else if !s.arch.Valid() {
		s.arch = winarch.AMD64
	}
	if len(ths) > 0 {
		s.currentThread = ths[0]
	}
	s.mu.Unlock()
	return s.CreateInferiorHook(ctx), nil
}

// CreateInferiorHook is run when a new target is set up. It finds the
// base address of the main executable, from the PEB of a live process or
// from the snapshot, computes the rebase delta caused by ASLR, discards
// the cached library list and, for live processes, places the entry point
// breakpoint.
func (s *Session) CreateInferiorHook(ctx context.Context) HookResult {
	s.mu.Lock()
	defer s.mu.Unlock()
	var res HookResult

	if s.proc != nil {
		if base, ok := procinfo.ImageBase(ctx, s.arch, s.proc, s.currentThread); ok {
			res.ExecBase = base
		}
	}
	if res.ExecBase == 0 && s.snap != nil {
		if base, ok := solib.ExecBase(s.snap); ok {
			res.ExecBase = base
		}
	}
	s.execBase = res.ExecBase

	s.rebaseDelta = 0
	if s.exe != nil && res.ExecBase != 0 {
		res.RebaseDelta, res.Rebased = procinfo.RebaseDelta(s.exe.ImageBase, res.ExecBase)
		s.rebaseDelta = res.RebaseDelta
	}

	s.libs.Invalidate()

	if s.proc != nil && res.ExecBase != 0 && s.exe != nil {
		res.EntryPoint = res.ExecBase + s.exe.EntryRVA
		if s.entry == nil {
			s.entry = entrybp.New(programSpace, res.EntryPoint, s.hw)
			res.BreakpointCreated = true
		} else {
			s.entry.ReSet(programSpace, res.EntryPoint)
		}
	}

	if logflags.Session() {
		logflags.SessionLogger().Debugf("create inferior hook: exec base %#x, rebased %v (%#x), entry point %#x", res.ExecBase, res.Rebased, res.RebaseDelta, res.EntryPoint)
	}
	return res
}

// ExecBase returns the load address of the main executable and the
// amount it was moved from its preferred base.
func (s *Session) ExecBase() (base, delta uint64) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.execBase, s.rebaseDelta
}

// HandleStop dispatches a stop of the live process at pc. It reports
// whether execution should be resumed because the stop was caused by the
// entry point breakpoint.
func (s *Session) HandleStop(pc uint64) bool {
	bp := s.EntryBreakpoint()
	if bp == nil {
		return false
	}
	return bp.Hit(programSpace, pc)
}

// SetHardwareBreakpoint places a hardware breakpoint at addr or, if watch
// is true, a watchpoint of size bytes.
func (s *Session) SetHardwareBreakpoint(addr uint64, watch, read, write bool, size int) (*entrybp.Location, error) {
	loc, err := s.hw.Add(programSpace, addr, watch, read, write, size)
	if err != nil {
		return nil, err
	}
	if logflags.Session() {
		logflags.SessionLogger().Debugf("hardware location %s, dr7 %#x", loc, s.regs.DR7)
	}
	return loc, nil
}

// ClearHardwareBreakpoint removes the hardware breakpoint or watchpoint
// with the given id.
func (s *Session) ClearHardwareBreakpoint(id int) error {
	return s.hw.Delete(id)
}

// DescribeEntryPoint disassembles the instruction at the entry point
// breakpoint.
func (s *Session) DescribeEntryPoint() (string, error) {
	bp := s.EntryBreakpoint()
	if bp == nil {
		return "", fmt.Errorf("no entry point breakpoint")
	}
	return bp.Describe(s.Arch(), s)
}

// CurrentThread returns the id of the selected thread.
func (s *Session) CurrentThread() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.currentThread
}

// SetCurrentThread selects thread tid.
func (s *Session) SetCurrentThread(ctx context.Context, tid int) error {
	ths, err := s.Threads(ctx)
	if err != nil {
		return err
	}
	for _, th := range ths {
		if th.ID == tid {
			s.mu.Lock()
			s.currentThread = tid
			s.mu.Unlock()
			return nil
		}
	}
	return fmt.Errorf("unknown thread %d", tid)
}

// Threads returns the threads of the target, with their names when the
// snapshot records them.
func (s *Session) Threads(ctx context.Context) ([]Thread, error) {
	s.mu.Lock()
	proc, snap, arch := s.proc, s.snap, s.arch
	s.mu.Unlock()
	max := s.conf.GetMaxThreadName()

	var r []Thread
	switch {
	case proc != nil:
		ids, err := proc.Threads()
		if err != nil {
			return nil, err
		}
		sort.Ints(ids)
		for _, id := range ids {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			teb, _ := proc.TIBAddress(id)
			r = append(r, Thread{ID: id, TEB: teb})
		}
	case snap != nil:
		for _, th := range snap.Threads() {
			name, _ := coreinfo.ReadThreadName(snap, arch, th.ID, max)
			r = append(r, Thread{ID: th.ID, Name: name, TEB: th.TEB})
		}
	default:
		return nil, procinfo.ErrNoProcess
	}
	return r, nil
}

// PidToStr returns the name used for thread tid in messages.
func (s *Session) PidToStr(tid int) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	switch {
	case s.proc != nil:
		return fmt.Sprintf("Thread %d.0x%x", s.proc.Pid(), tid)
	case s.snap != nil:
		return coreinfo.PidToStr(s.snap.Pid, tid)
	}
	return fmt.Sprintf("process %d", tid)
}

// InfoProc prints the command line, working directory and executable of
// the current process.
func (s *Session) InfoProc(ctx context.Context, w io.Writer, args string, what procinfo.What) error {
	s.mu.Lock()
	t, arch, tid, haveSnapshot := s.target(), s.arch, s.currentThread, s.snap != nil
	s.mu.Unlock()
	return procinfo.InfoProc(ctx, w, s.warnf, arch, t, haveSnapshot, tid, args, what)
}

// ProcessInfo reads the command line, working directory and executable
// of the current process.
func (s *Session) ProcessInfo(ctx context.Context, what procinfo.What) (procinfo.Info, error) {
	s.mu.Lock()
	t, arch, tid := s.target(), s.arch, s.currentThread
	s.mu.Unlock()
	if t == nil {
		return procinfo.Info{}, procinfo.ErrNoProcess
	}
	return procinfo.ReadProcessInfo(ctx, arch, t, tid, what), nil
}

// Modules returns the modules of the snapshot, without the main
// executable.
func (s *Session) Modules() ([]solib.Module, error) {
	s.mu.Lock()
	snap, resolver := s.snap, s.resolver
	s.mu.Unlock()
	if snap == nil {
		return nil, ErrUnsupportedOperation
	}
	return solib.Enumerate(snap, snap.Arch, resolver, solib.Warner(s.warnf)), nil
}

// LibraryList returns the library list of the snapshot.
func (s *Session) LibraryList() (string, error) {
	s.mu.Lock()
	snap, libs := s.snap, s.libs
	s.mu.Unlock()
	if snap == nil {
		return "", ErrUnsupportedOperation
	}
	return libs.Text(snap, snap.Arch), nil
}

// XferLibraries reads a window of the library list.
func (s *Session) XferLibraries(buf []byte, offset uint64) (int, error) {
	s.mu.Lock()
	snap, libs := s.snap, s.libs
	s.mu.Unlock()
	if snap == nil {
		return 0, ErrUnsupportedOperation
	}
	return libs.XferLibraries(snap, snap.Arch, buf, offset), nil
}

// InvalidateLibraries discards the cached library list.
func (s *Session) InvalidateLibraries() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.libs.Invalidate()
}

// Exception decodes the exception recorded in the snapshot.
func (s *Session) Exception() (*wintypes.ExceptionRecord, error) {
	s.mu.Lock()
	snap, arch := s.snap, s.arch
	s.mu.Unlock()
	if snap == nil {
		return nil, ErrUnsupportedOperation
	}
	// Build the type so that it can be inspected with ptype.
	s.types.ExceptionType(arch)
	return coreinfo.DecodeExceptionRecord(snap, arch)
}

// ReadSiginfo reads a window of the exception record, laid out for the
// architecture of the target.
func (s *Session) ReadSiginfo(offset, length uint64) ([]byte, error) {
	s.mu.Lock()
	snap, arch := s.snap, s.arch
	s.mu.Unlock()
	if snap == nil {
		return nil, ErrUnsupportedOperation
	}
	buf, ok := coreinfo.ReadExceptionRecord(snap, arch, offset, length)
	if !ok {
		return nil, fmt.Errorf("could not read exception record at offset %d", offset)
	}
	return buf, nil
}

// StopSignal returns the signal that stopped the snapshot's process.
func (s *Session) StopSignal() (winsignal.Signal, bool) {
	s.mu.Lock()
	snap, arch, tr := s.snap, s.arch, s.translator
	s.mu.Unlock()
	if snap == nil {
		return winsignal.Signal0, false
	}
	rec, err := coreinfo.DecodeExceptionRecord(snap, arch)
	if err != nil {
		return winsignal.Signal0, false
	}
	return tr.FromTarget(uint32(rec.Code)), true
}

// Dump writes the snapshot to path as an ELF core file.
func (s *Session) Dump(path string) error {
	snap := s.Snapshot()
	if snap == nil {
		return ErrUnsupportedOperation
	}
	return snapshot.DumpFile(path, snap)
}

// Close releases the live process.
func (s *Session) Close() error {
	s.mu.Lock()
	proc := s.proc
	s.proc = nil
	s.mu.Unlock()
	if proc != nil {
		return proc.Close()
	}
	return nil
}
