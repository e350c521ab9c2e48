package minidump

import (
	"fmt"
	"strings"
)

// MemoryState is the type of the State field of MINIDUMP_MEMORY_INFO
type MemoryState uint32

const (
	MemoryStateCommit  MemoryState = 0x1000
	MemoryStateReserve MemoryState = 0x2000
	MemoryStateFree    MemoryState = 0x10000
)

func (s MemoryState) String() string {
	switch s {
	case MemoryStateCommit:
		return "MemoryStateCommit"
	case MemoryStateReserve:
		return "MemoryStateReserve"
	case MemoryStateFree:
		return "MemoryStateFree"
	}
	return fmt.Sprintf("MemoryState(%#x)", uint32(s))
}

// MemoryType is the type of the Type field of MINIDUMP_MEMORY_INFO
type MemoryType uint32

const (
	MemoryTypePrivate MemoryType = 0x20000
	MemoryTypeMapped  MemoryType = 0x40000
	MemoryTypeImage   MemoryType = 0x1000000
)

func (t MemoryType) String() string {
	switch t {
	case MemoryTypePrivate:
		return "MemoryTypePrivate"
	case MemoryTypeMapped:
		return "MemoryTypeMapped"
	case MemoryTypeImage:
		return "MemoryTypeImage"
	}
	return fmt.Sprintf("MemoryType(%#x)", uint32(t))
}

// MemoryProtection is the type of the Protection field of MINIDUMP_MEMORY_INFO
type MemoryProtection uint32

const (
	MemoryProtectNoAccess         MemoryProtection = 0x01 // PAGE_NOACCESS
	MemoryProtectReadOnly         MemoryProtection = 0x02 // PAGE_READONLY
	MemoryProtectReadWrite        MemoryProtection = 0x04 // PAGE_READWRITE
	MemoryProtectWriteCopy        MemoryProtection = 0x08 // PAGE_WRITECOPY
	MemoryProtectExecute          MemoryProtection = 0x10 // PAGE_EXECUTE
	MemoryProtectExecuteRead      MemoryProtection = 0x20 // PAGE_EXECUTE_READ
	MemoryProtectExecuteReadWrite MemoryProtection = 0x40 // PAGE_EXECUTE_READWRITE
	MemoryProtectExecuteWriteCopy MemoryProtection = 0x80 // PAGE_EXECUTE_WRITECOPY
	// These options can be combined with the previous flags
	MemoryProtectPageGuard    MemoryProtection = 0x100 // PAGE_GUARD
	MemoryProtectNoCache      MemoryProtection = 0x200 // PAGE_NOCACHE
	MemoryProtectWriteCombine MemoryProtection = 0x400 // PAGE_WRITECOMBINE
)

var memoryProtectionNames = []struct {
	p    MemoryProtection
	name string
}{
	{MemoryProtectNoAccess, "NoAccess"},
	{MemoryProtectReadOnly, "ReadOnly"},
	{MemoryProtectReadWrite, "ReadWrite"},
	{MemoryProtectWriteCopy, "WriteCopy"},
	{MemoryProtectExecute, "Execute"},
	{MemoryProtectExecuteRead, "ExecuteRead"},
	{MemoryProtectExecuteReadWrite, "ExecuteReadWrite"},
	{MemoryProtectExecuteWriteCopy, "ExecuteWriteCopy"},
	{MemoryProtectPageGuard, "PageGuard"},
	{MemoryProtectNoCache, "NoCache"},
	{MemoryProtectWriteCombine, "WriteCombine"},
}

func (p MemoryProtection) String() string {
	var out []string
	for _, n := range memoryProtectionNames {
		if p&n.p != 0 {
			out = append(out, n.name)
		}
	}
	if len(out) == 0 {
		return fmt.Sprintf("MemoryProtection(%#x)", uint32(p))
	}
	return strings.Join(out, "|")
}

// FileFlags is the type of the Flags field of MINIDUMP_HEADER
type FileFlags uint64

const (
	FileNormal                          FileFlags = 0x00000000
	FileWithDataSegs                    FileFlags = 0x00000001
	FileWithFullMemory                  FileFlags = 0x00000002
	FileWithHandleData                  FileFlags = 0x00000004
	FileFilterMemory                    FileFlags = 0x00000008
	FileScanMemory                      FileFlags = 0x00000010
	FileWithUnloadedModules             FileFlags = 0x00000020
	FileWithIncorrectlyReferencedMemory FileFlags = 0x00000040
	FileFilterModulePaths               FileFlags = 0x00000080
	FileWithProcessThreadData           FileFlags = 0x00000100
	FileWithPrivateReadWriteMemory      FileFlags = 0x00000200
	FileWithoutOptionalData             FileFlags = 0x00000400
	FileWithFullMemoryInfo              FileFlags = 0x00000800
	FileWithThreadInfo                  FileFlags = 0x00001000
	FileWithCodeSegs                    FileFlags = 0x00002000
	FileWithoutAuxilliarySegs           FileFlags = 0x00004000
	FileWithFullAuxilliaryState         FileFlags = 0x00008000
	FileWithPrivateCopyMemory           FileFlags = 0x00010000
	FileIgnoreInaccessibleMemory        FileFlags = 0x00020000
	FileWithTokenInformation            FileFlags = 0x00040000
)

var fileFlagsNames = []string{
	"FileWithDataSegs", "FileWithFullMemory", "FileWithHandleData", "FileFilterMemory",
	"FileScanMemory", "FileWithUnloadedModules", "FileWithIncorrectlyReferencedMemory", "FileFilterModulePaths",
	"FileWithProcessThreadData", "FileWithPrivateReadWriteMemory", "FileWithoutOptionalData", "FileWithFullMemoryInfo",
	"FileWithThreadInfo", "FileWithCodeSegs", "FileWithoutAuxilliarySegs", "FileWithFullAuxilliaryState",
	"FileWithPrivateCopyMemory", "FileIgnoreInaccessibleMemory", "FileWithTokenInformation",
}

func (f FileFlags) String() string {
	if f == FileNormal {
		return "FileNormal"
	}
	return fmt.Sprintf("FileFlags(%#x)", uint64(f))
}

func fileFlagsToString(flags FileFlags) string {
	out := []string{}
	for i, name := range fileFlagsNames {
		if flags&(1<<uint(i)) != 0 {
			out = append(out, name)
		}
	}
	if len(out) == 0 {
		return flags.String()
	}
	return strings.Join(out, "|")
}

// StreamType is the type of the StreamType field of MINIDUMP_DIRECTORY
type StreamType uint32

const (
	UnusedStream              StreamType = 0
	ReservedStream0           StreamType = 1
	ReservedStream1           StreamType = 2
	ThreadListStream          StreamType = 3
	ModuleListStream          StreamType = 4
	MemoryListStream          StreamType = 5
	ExceptionStream           StreamType = 6
	SystemInfoStream          StreamType = 7
	ThreadExListStream        StreamType = 8
	Memory64ListStream        StreamType = 9
	CommentStreamA            StreamType = 10
	CommentStreamW            StreamType = 11
	HandleDataStream          StreamType = 12
	FunctionTableStream       StreamType = 13
	UnloadedModuleStream      StreamType = 14
	MiscInfoStream            StreamType = 15
	MemoryInfoListStream      StreamType = 16
	ThreadInfoListStream      StreamType = 17
	HandleOperationListStream StreamType = 18
	TokenStream               StreamType = 19
	JavascriptDataStream      StreamType = 20
	SystemMemoryInfoStream    StreamType = 21
	ProcessVMCounterStream    StreamType = 22
	IptTraceStream            StreamType = 23
	ThreadNamesStream         StreamType = 24
)

var streamTypeNames = []string{
	"UnusedStream", "ReservedStream0", "ReservedStream1", "ThreadListStream",
	"ModuleListStream", "MemoryListStream", "ExceptionStream", "SystemInfoStream",
	"ThreadExListStream", "Memory64ListStream", "CommentStreamA", "CommentStreamW",
	"HandleDataStream", "FunctionTableStream", "UnloadedModuleStream", "MiscInfoStream",
	"MemoryInfoListStream", "ThreadInfoListStream", "HandleOperationListStream", "TokenStream",
	"JavascriptDataStream", "SystemMemoryInfoStream", "ProcessVMCounterStream", "IptTraceStream",
	"ThreadNamesStream",
}

func (t StreamType) String() string {
	if int(t) < len(streamTypeNames) {
		return streamTypeNames[t]
	}
	return fmt.Sprintf("StreamType(%d)", uint32(t))
}

// Arch is the type of the ProcessorArchitecture field of MINIDUMP_SYSTEM_INFO.
type Arch uint16

const (
	CpuArchitectureX86     Arch = 0
	CpuArchitectureMips    Arch = 1
	CpuArchitectureAlpha   Arch = 2
	CpuArchitecturePPC     Arch = 3
	CpuArchitectureSHX     Arch = 4 // Super-H
	CpuArchitectureARM     Arch = 5
	CpuArchitectureIA64    Arch = 6
	CpuArchitectureAlpha64 Arch = 7
	CpuArchitectureMSIL    Arch = 8 // Microsoft Intermediate Language
	CpuArchitectureAMD64   Arch = 9
	CpuArchitectureWoW64   Arch = 10
	CpuArchitectureARM64   Arch = 12
	CpuArchitectureUnknown Arch = 0xffff
)

func (a Arch) String() string {
	switch a {
	case CpuArchitectureX86:
		return "X86"
	case CpuArchitectureMips:
		return "Mips"
	case CpuArchitectureAlpha:
		return "Alpha"
	case CpuArchitecturePPC:
		return "PPC"
	case CpuArchitectureSHX:
		return "SHX"
	case CpuArchitectureARM:
		return "ARM"
	case CpuArchitectureIA64:
		return "IA64"
	case CpuArchitectureAlpha64:
		return "Alpha64"
	case CpuArchitectureMSIL:
		return "MSIL"
	case CpuArchitectureAMD64:
		return "AMD64"
	case CpuArchitectureWoW64:
		return "WoW64"
	case CpuArchitectureARM64:
		return "ARM64"
	}
	return "Unknown"
}
