// Package snapshot holds post-mortem snapshots of Windows processes.
//
// A snapshot is a container of named binary sections, following the
// convention used by Windows core files:
//
//	.coremodule/<hexaddr>[;s=<size>][;t=<timestamp>][;v=<version>]
//	.corebuildid/<hexaddr>
//	.coreexception
//	.corethread/<tid>
//	.corebase
//	.module/...
//
// plus the memory and threads of the process. Snapshots are loaded from
// Windows minidumps or from ELF core files (see Open) and can be written
// back as ELF core files (see Dump).
package snapshot

import (
	"errors"
	"fmt"
	"sort"

	"github.com/go-delve/wincore/pkg/winarch"
)

// Names of the sections of a snapshot.
const (
	CoreModulePrefix  = ".coremodule/"
	CoreBuildIDPrefix = ".corebuildid/"
	CoreThreadPrefix  = ".corethread/"
	CoreException     = ".coreexception"
	CoreBase          = ".corebase"
	ModulePrefix      = ".module"
)

// ErrUnrecognizedFormat is returned by Open when the file is neither a
// minidump nor an ELF core file.
var ErrUnrecognizedFormat = errors.New("unrecognized snapshot format")

// ErrShortRead is returned when a memory read crosses the end of a
// region of the snapshot.
var ErrShortRead = errors.New("short read")

// Section is a named binary section of a snapshot.
type Section struct {
	Name string
	Data []byte
}

// Container is a read-only collection of named sections.
type Container interface {
	// Sections returns all sections in container order.
	Sections() []Section
	// SectionBytes returns the contents of the named section.
	SectionBytes(name string) ([]byte, bool)
}

// Kind is the file format a snapshot was loaded from.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindMinidump
	KindELF
)

func (k Kind) String() string {
	switch k {
	case KindMinidump:
		return "minidump"
	case KindELF:
		return "elf"
	}
	return "unknown"
}

// Thread is a thread of the snapshot.
type Thread struct {
	ID  int
	TEB uint64
}

type memRange struct {
	addr uint64
	data []byte
}

// Snapshot is a post-mortem snapshot of a process.
type Snapshot struct {
	Path string
	Kind Kind
	Arch winarch.Arch
	Pid  int
	// ExceptionThread is the thread that raised the exception recorded in
	// the .coreexception section, zero if unknown.
	ExceptionThread int

	threads  []Thread
	sections []Section
	index    map[string]int
	memory   []memRange
	sorted   bool
}

// New returns an empty snapshot.
func New(arch winarch.Arch, pid int) *Snapshot {
	return &Snapshot{Arch: arch, Pid: pid, index: make(map[string]int)}
}

// Sections implements Container.
func (s *Snapshot) Sections() []Section {
	return s.sections
}

// SectionBytes implements Container.
func (s *Snapshot) SectionBytes(name string) ([]byte, bool) {
	i, ok := s.index[name]
	if !ok {
		return nil, false
	}
	return s.sections[i].Data, true
}

// AddSection appends a section. Adding a section with the name of an
// existing one replaces its contents but keeps its position.
func (s *Snapshot) AddSection(name string, data []byte) {
	if s.index == nil {
		s.index = make(map[string]int)
	}
	if i, ok := s.index[name]; ok {
		s.sections[i].Data = data
		return
	}
	s.index[name] = len(s.sections)
	s.sections = append(s.sections, Section{Name: name, Data: data})
}

// AddThread records a thread.
func (s *Snapshot) AddThread(th Thread) {
	s.threads = append(s.threads, th)
}

// Threads returns the threads of the snapshot in the order they were
// recorded.
func (s *Snapshot) Threads() []Thread {
	return s.threads
}

// Thread returns the thread with the given id.
func (s *Snapshot) Thread(tid int) (Thread, bool) {
	for _, th := range s.threads {
		if th.ID == tid {
			return th, true
		}
	}
	return Thread{}, false
}

// TIBAddress returns the address of the thread environment block of tid.
func (s *Snapshot) TIBAddress(tid int) (uint64, bool) {
	th, ok := s.Thread(tid)
	if !ok || th.TEB == 0 {
		return 0, false
	}
	return th.TEB, true
}

// AddMemory records the contents of memory at addr.
func (s *Snapshot) AddMemory(addr uint64, data []byte) {
	if len(data) == 0 {
		return
	}
	s.memory = append(s.memory, memRange{addr: addr, data: data})
	s.sorted = false
}

// MemoryRanges calls fn for each region of memory, in address order.
func (s *Snapshot) MemoryRanges(fn func(addr uint64, data []byte)) {
	s.sortMemory()
	for _, m := range s.memory {
		fn(m.addr, m.data)
	}
}

func (s *Snapshot) sortMemory() {
	if s.sorted {
		return
	}
	sort.SliceStable(s.memory, func(i, j int) bool { return s.memory[i].addr < s.memory[j].addr })
	s.sorted = true
}

// ReadMemory reads len(buf) bytes at addr. Reads spanning adjacent
// regions are supported.
func (s *Snapshot) ReadMemory(buf []byte, addr uint64) (int, error) {
	s.sortMemory()
	n := 0
	for n < len(buf) {
		cur := addr + uint64(n)
		m := s.find(cur)
		if m == nil {
			if n == 0 {
				return 0, fmt.Errorf("could not read memory at %#x", addr)
			}
			return n, ErrShortRead
		}
		n += copy(buf[n:], m.data[cur-m.addr:])
	}
	return n, nil
}

func (s *Snapshot) find(addr uint64) *memRange {
	i := sort.Search(len(s.memory), func(i int) bool {
		m := &s.memory[i]
		return m.addr+uint64(len(m.data)) > addr
	})
	if i >= len(s.memory) || s.memory[i].addr > addr {
		return nil
	}
	return &s.memory[i]
}
