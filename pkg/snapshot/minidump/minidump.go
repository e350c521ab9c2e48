// Package minidump parses Windows minidump files, the files written by
// MiniDumpWriteDump, WinDbg's .dump command or ProcDump.
//
// Only the streams needed to rebuild a process snapshot are decoded:
// system info, misc info, threads, thread names, modules, the exception
// and memory. The layout of each structure is documented at
//
//	https://docs.microsoft.com/en-us/windows/desktop/api/minidumpapiset/
//
// and in breakpad's minidump_format.h.
package minidump

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"unicode/utf16"
)

const (
	minidumpSignature = 0x504d444d // 'MDMP'
	minidumpVersion   = 0xa793

	cvSignatureRSDS = 0x53445352 // 'RSDS'

	// Record sizes used to reject entry counts that can not fit in the file.
	directoryEntrySize  = 12
	threadEntrySize     = 48
	moduleEntrySize     = 108
	threadNameEntrySize = 12

	// exceptionRecordSize is the size of MINIDUMP_EXCEPTION.
	exceptionRecordSize = 152

	fixedFileInfoSignature = 0xfeef04bd
)

// ErrNotAMinidump is returned when the file does not start with a
// minidump header.
type ErrNotAMinidump struct {
	what string
	got  uint32
}

func (err ErrNotAMinidump) Error() string {
	return fmt.Sprintf("not a minidump, invalid %s %#x", err.what, err.got)
}

// Minidump is the decoded content of a minidump file.
type Minidump struct {
	Timestamp uint32
	Flags     FileFlags
	Arch      Arch
	Pid       uint32

	Streams []Stream

	Threads   []Thread
	Modules   []Module
	Exception *Exception
	// ThreadNames maps thread ids to the UTF-16 encoded name of the thread.
	ThreadNames map[uint32][]byte

	MemoryRanges []MemoryRange
	MemoryInfo   []MemoryInfo
}

// Stream is an entry of the minidump directory.
type Stream struct {
	Type    StreamType
	Offset  int
	RawData []byte
}

// Thread is an entry of the ThreadList stream.
type Thread struct {
	ID            uint32
	SuspendCount  uint32
	PriorityClass uint32
	Priority      uint32
	TEB           uint64
	// Context is the raw CONTEXT structure of the thread.
	Context []byte
}

// Module is an entry of the ModuleList stream.
type Module struct {
	BaseOfImage   uint64
	SizeOfImage   uint32
	Checksum      uint32
	TimeDateStamp uint32
	Name          string
	VersionInfo   VSFixedFileInfo

	// CVRecord is the CodeView record identifying the PDB file of the
	// module, if it has one.
	CVRecord []byte
	// MiscRecord identifies a DBG file, only old toolchains write it.
	MiscRecord []byte
}

// BuildID returns the GUID and age of the PDB file of the module, read
// from an RSDS CodeView record.
func (m *Module) BuildID() ([]byte, bool) {
	if len(m.CVRecord) < 24 || binary.LittleEndian.Uint32(m.CVRecord) != cvSignatureRSDS {
		return nil, false
	}
	return m.CVRecord[4:24], true
}

// Version returns the file version of the module formatted as
// major.minor.build.revision, or the empty string if the module has no
// version resource.
func (m *Module) Version() string {
	vi := &m.VersionInfo
	if vi.Signature != fixedFileInfoSignature {
		return ""
	}
	return fmt.Sprintf("%d.%d.%d.%d", vi.FileVersionHi>>16, vi.FileVersionHi&0xffff, vi.FileVersionLo>>16, vi.FileVersionLo&0xffff)
}

// VSFixedFileInfo is the VS_FIXEDFILEINFO of a module.
type VSFixedFileInfo struct {
	Signature        uint32
	StructVersion    uint32
	FileVersionHi    uint32
	FileVersionLo    uint32
	ProductVersionHi uint32
	ProductVersionLo uint32
	FileFlagsMask    uint32
	FileFlags        uint32
	FileOS           uint32
	FileType         uint32
	FileSubtype      uint32
	FileDateHi       uint32
	FileDateLo       uint32
}

func (vi *VSFixedFileInfo) fields() []*uint32 {
	return []*uint32{
		&vi.Signature, &vi.StructVersion, &vi.FileVersionHi, &vi.FileVersionLo,
		&vi.ProductVersionHi, &vi.ProductVersionLo, &vi.FileFlagsMask, &vi.FileFlags,
		&vi.FileOS, &vi.FileType, &vi.FileSubtype, &vi.FileDateHi, &vi.FileDateLo,
	}
}

// Exception is the content of the Exception stream.
type Exception struct {
	ThreadID uint32
	// Record is the MINIDUMP_EXCEPTION structure, which always uses the
	// 64-bit layout of EXCEPTION_RECORD.
	Record []byte
}

// MemoryRange is a region of process memory saved in the file, from the
// memory lists or from the stack of a thread.
type MemoryRange struct {
	Addr uint64
	Data []byte
}

// ReadMemory reads len(buf) bytes at addr. The whole read must fall inside
// the range.
func (m *MemoryRange) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	if addr < m.Addr || addr+uint64(len(buf)) > m.Addr+uint64(len(m.Data)) {
		return 0, io.EOF
	}
	return copy(buf, m.Data[addr-m.Addr:]), nil
}

// MemoryInfo is an entry of the MemoryInfoList stream.
type MemoryInfo struct {
	Addr       uint64
	Size       uint64
	State      MemoryState
	Protection MemoryProtection
	Type       MemoryType
}

type logFunc func(format string, args ...interface{})

func (l logFunc) printf(format string, args ...interface{}) {
	if l != nil {
		l(format, args...)
	}
}

// Open reads and parses the minidump file at path. If logfn is not nil
// it receives a description of every stream.
func Open(path string, logfn func(fmt string, args ...interface{})) (*Minidump, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return Parse(raw, logfn)
}

// streamParser decodes one kind of stream into m.
type streamParser struct {
	name  string
	parse func(m *Minidump, c *cursor, log logFunc)
}

var streamParsers = map[StreamType]streamParser{
	ThreadListStream:     {"thread list", (*Minidump).readThreadList},
	ModuleListStream:     {"module list", (*Minidump).readModuleList},
	ExceptionStream:      {"exception", (*Minidump).readException},
	ThreadNamesStream:    {"thread names", (*Minidump).readThreadNames},
	MemoryListStream:     {"memory list", (*Minidump).readMemoryList},
	Memory64ListStream:   {"memory64 list", (*Minidump).readMemory64List},
	MemoryInfoListStream: {"memory info list", (*Minidump).readMemoryInfoList},
	MiscInfoStream:       {"misc info", (*Minidump).readMiscInfo},
}

// Parse decodes the minidump contained in raw. The returned Minidump
// references raw, which must not be modified afterwards.
func Parse(raw []byte, logfn func(fmt string, args ...interface{})) (*Minidump, error) {
	log := logFunc(logfn)
	m := &Minidump{Arch: CpuArchitectureUnknown}

	c := &cursor{data: raw, what: "reading minidump header"}
	streamNum, streamOff := m.readHeader(c)
	if c.err != nil {
		return nil, c.err
	}
	log.printf("Minidump header: %d streams at %#x, flags %s", streamNum, streamOff, fileFlagsToString(m.Flags))

	m.readDirectory(c, streamNum, streamOff)
	if c.err != nil {
		return nil, c.err
	}

	if err := m.readSystemInfo(raw, log); err != nil {
		return nil, err
	}

	for i := range m.Streams {
		s := &m.Streams[i]
		log.printf("Stream %d: type:%s off:%#x size:%#x", i, s.Type, s.Offset, len(s.RawData))
		switch s.Type {
		case CommentStreamW:
			log.printf("\t%q", decodeUTF16(s.RawData))
			continue
		case CommentStreamA:
			log.printf("\t%s", s.RawData)
			continue
		}
		p, ok := streamParsers[s.Type]
		if !ok {
			continue
		}
		sc := c.at(s.Offset, fmt.Sprintf("reading %s stream at %#x", p.name, s.Offset))
		p.parse(m, sc, log)
		if sc.err != nil {
			return nil, sc.err
		}
	}
	return m, nil
}

func (m *Minidump) readHeader(c *cursor) (streamNum, streamOff uint32) {
	if sig := c.u32(); c.err == nil && sig != minidumpSignature {
		c.err = ErrNotAMinidump{"signature", sig}
		return
	}
	if ver := c.u16(); c.err == nil && ver != minidumpVersion {
		c.err = ErrNotAMinidump{"version", uint32(ver)}
		return
	}
	c.u16() // implementation specific version
	streamNum = c.u32()
	streamOff = c.u32()
	c.u32() // checksum, always 0
	m.Timestamp = c.u32()
	m.Flags = FileFlags(c.u64())
	return
}

func (m *Minidump) readDirectory(c *cursor, streamNum, streamOff uint32) {
	c.off = int(streamOff)
	if !c.fits(uint64(streamNum), directoryEntrySize) {
		c.err = fmt.Errorf("minidump has too many streams: %d", streamNum)
		return
	}
	m.Streams = make([]Stream, streamNum)
	for i := range m.Streams {
		c.what = fmt.Sprintf("reading stream directory entry %d", i)
		m.Streams[i].Type = StreamType(c.u32())
		m.Streams[i].Offset, m.Streams[i].RawData = c.location()
		if c.err != nil {
			return
		}
	}
}

// readSystemInfo sets the architecture, the only field of
// MINIDUMP_SYSTEM_INFO that is used.
func (m *Minidump) readSystemInfo(raw []byte, log logFunc) error {
	for _, s := range m.Streams {
		if s.Type != SystemInfoStream {
			continue
		}
		c := &cursor{data: raw, off: s.Offset, what: fmt.Sprintf("reading system info stream at %#x", s.Offset)}
		m.Arch = Arch(c.u16())
		if c.err != nil {
			return c.err
		}
		log.printf("Found processor architecture %s", m.Arch)
		switch m.Arch {
		case CpuArchitectureX86, CpuArchitectureAMD64, CpuArchitectureARM64:
		default:
			return fmt.Errorf("unsupported architecture %s", m.Arch)
		}
	}
	return nil
}

func (m *Minidump) readThreadList(c *cursor, log logFunc) {
	n := c.count(threadEntrySize, "thread list")
	m.Threads = make([]Thread, n)
	for i := range m.Threads {
		c.what = fmt.Sprintf("reading thread list entry %d", i)
		th := &m.Threads[i]
		th.ID = c.u32()
		th.SuspendCount = c.u32()
		th.PriorityClass = c.u32()
		th.Priority = c.u32()
		th.TEB = c.u64()
		m.readMemoryDescriptor(c) // stack
		_, th.Context = c.location()
		if c.err != nil {
			return
		}
		log.printf("\tID:%#x TEB:%#x", th.ID, th.TEB)
	}
}

func (m *Minidump) readModuleList(c *cursor, log logFunc) {
	n := c.count(moduleEntrySize, "module list")
	m.Modules = make([]Module, n)
	for i := range m.Modules {
		c.what = fmt.Sprintf("reading module list entry %d", i)
		mod := &m.Modules[i]
		mod.BaseOfImage = c.u64()
		mod.SizeOfImage = c.u32()
		mod.Checksum = c.u32()
		mod.TimeDateStamp = c.u32()
		nameOff := int(c.u32())
		for _, p := range mod.VersionInfo.fields() {
			*p = c.u32()
		}
		_, mod.CVRecord = c.location()
		_, mod.MiscRecord = c.location()
		c.u64() // Reserved0
		c.u64() // Reserved1
		if c.err != nil {
			return
		}
		mod.Name = decodeUTF16(c.stringAt(nameOff))
		if c.err != nil {
			return
		}
		log.printf("\tName:%q BaseOfImage:%#x SizeOfImage:%#x", mod.Name, mod.BaseOfImage, mod.SizeOfImage)
	}
}

func (m *Minidump) readException(c *cursor, log logFunc) {
	tid := c.u32()
	c.u32() // alignment
	rec := c.take(exceptionRecordSize)
	if c.err != nil {
		return
	}
	m.Exception = &Exception{ThreadID: tid, Record: rec}
	log.printf("\tThread:%#x Code:%#x", tid, binary.LittleEndian.Uint32(rec))
}

// readThreadNames reads a MINIDUMP_THREAD_NAME_LIST.
func (m *Minidump) readThreadNames(c *cursor, log logFunc) {
	n := c.count(threadNameEntrySize, "thread name list")
	m.ThreadNames = make(map[uint32][]byte, n)
	for i := 0; i < n && c.err == nil; i++ {
		c.what = fmt.Sprintf("reading thread name entry %d", i)
		tid := c.u32()
		rva := c.u64()
		if c.err != nil {
			return
		}
		m.ThreadNames[tid] = c.stringAt(int(rva))
	}
}

// readMemoryList reads a MINIDUMP_MEMORY_LIST, used by dumps without full
// memory.
func (m *Minidump) readMemoryList(c *cursor, log logFunc) {
	n := c.u32()
	for i := uint32(0); i < n && c.err == nil; i++ {
		c.what = fmt.Sprintf("reading memory list entry %d", i)
		m.readMemoryDescriptor(c)
	}
}

// readMemory64List reads a MINIDUMP_MEMORY64_LIST. The data of all ranges
// is stored contiguously starting at a single base offset.
func (m *Minidump) readMemory64List(c *cursor, log logFunc) {
	n := c.u64()
	off := c.u64()
	for i := uint64(0); i < n && c.err == nil; i++ {
		addr := c.u64()
		size := c.u64()
		if c.err != nil {
			return
		}
		end := off + size
		if end < off || end > uint64(len(c.data)) {
			c.err = fmt.Errorf("memory range at %#x of size %#x is past the end of file, while %s", off, size, c.what)
			return
		}
		m.MemoryRanges = append(m.MemoryRanges, MemoryRange{addr, c.data[off:end]})
		log.printf("\tMemory %d addr:%#x size:%#x FileOffset:%#x", i, addr, size, off)
		off = end
	}
}

func (m *Minidump) readMemoryInfoList(c *cursor, log logFunc) {
	start := c.off
	headerSize := int(c.u32())
	entrySize := int(c.u32())
	n := c.u64()
	if c.err != nil {
		return
	}
	if entrySize <= 0 || !c.fits(n, entrySize) {
		c.err = fmt.Errorf("invalid memory info list: %d entries of size %d", n, entrySize)
		return
	}
	m.MemoryInfo = make([]MemoryInfo, n)
	for i := range m.MemoryInfo {
		c.off = start + headerSize + i*entrySize
		mi := &m.MemoryInfo[i]
		mi.Addr = c.u64()
		c.u64() // AllocationBase
		c.u32() // AllocationProtect
		c.u32() // alignment
		mi.Size = c.u64()
		mi.State = MemoryState(c.u32())
		mi.Protection = MemoryProtection(c.u32())
		mi.Type = MemoryType(c.u32())
		log.printf("\tMemoryInfo %d Addr:%#x Size:%#x %s %s %s", i, mi.Addr, mi.Size, mi.State, mi.Protection, mi.Type)
	}
}

// readMiscInfo reads the process id out of MINIDUMP_MISC_INFO.
func (m *Minidump) readMiscInfo(c *cursor, log logFunc) {
	c.u32() // SizeOfInfo
	c.u32() // Flags1
	m.Pid = c.u32()
	log.printf("\tPid: %#x", m.Pid)
}

// readMemoryDescriptor reads a MINIDUMP_MEMORY_DESCRIPTOR and records the
// range it describes.
func (m *Minidump) readMemoryDescriptor(c *cursor) {
	addr := c.u64()
	_, data := c.location()
	if c.err == nil {
		m.MemoryRanges = append(m.MemoryRanges, MemoryRange{addr, data})
	}
}

// cursor reads little endian values out of the file. The first error
// sticks, every later read returns zero values.
type cursor struct {
	data []byte
	off  int
	err  error
	what string
}

// at returns a cursor over the same file positioned at off.
func (c *cursor) at(off int, what string) *cursor {
	return &cursor{data: c.data, off: off, what: what}
}

func (c *cursor) take(n int) []byte {
	if c.err != nil {
		return nil
	}
	if c.off < 0 || n < 0 || c.off+n > len(c.data) {
		c.err = fmt.Errorf("minidump truncated at offset %#x while %s", c.off, c.what)
		return nil
	}
	b := c.data[c.off : c.off+n]
	c.off += n
	return b
}

func (c *cursor) u16() uint16 {
	if b := c.take(2); b != nil {
		return binary.LittleEndian.Uint16(b)
	}
	return 0
}

func (c *cursor) u32() uint32 {
	if b := c.take(4); b != nil {
		return binary.LittleEndian.Uint32(b)
	}
	return 0
}

func (c *cursor) u64() uint64 {
	if b := c.take(8); b != nil {
		return binary.LittleEndian.Uint64(b)
	}
	return 0
}

// fits reports whether n entries of size bytes could be stored in the
// file.
func (c *cursor) fits(n uint64, size int) bool {
	return n <= uint64(len(c.data))/uint64(size)
}

// count reads a 32-bit entry count and rejects counts that can not fit in
// the file.
func (c *cursor) count(entrySize int, what string) int {
	n := c.u32()
	if c.err != nil {
		return 0
	}
	if !c.fits(uint64(n), entrySize) {
		c.err = fmt.Errorf("%s too long: %d entries", what, n)
		return 0
	}
	return int(n)
}

// location reads a MINIDUMP_LOCATION_DESCRIPTOR and returns the offset
// and the bytes it points to.
func (c *cursor) location() (int, []byte) {
	size := c.u32()
	off := c.u32()
	if c.err != nil {
		return 0, nil
	}
	end := uint64(off) + uint64(size)
	if end > uint64(len(c.data)) {
		c.err = fmt.Errorf("location starting at %#x of size %#x is past the end of file, while %s", off, size, c.what)
		return 0, nil
	}
	return int(off), c.data[off:end]
}

// stringAt returns the UTF-16 contents of the MINIDUMP_STRING at off.
func (c *cursor) stringAt(off int) []byte {
	s := c.at(off, c.what)
	size := s.u32()
	b := s.take(int(size))
	if s.err != nil && c.err == nil {
		c.err = fmt.Errorf("string at %#x: %v", off, s.err)
	}
	return b
}

// decodeUTF16 converts a UTF-16LE string to UTF-8, dropping one trailing
// NUL.
func decodeUTF16(in []byte) string {
	u := make([]uint16, len(in)/2)
	for i := range u {
		u[i] = binary.LittleEndian.Uint16(in[2*i:])
	}
	if n := len(u); n > 0 && u[n-1] == 0 {
		u = u[:n-1]
	}
	return string(utf16.Decode(u))
}
