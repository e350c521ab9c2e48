//go:build windows
// +build windows

package native

import (
	"errors"
	"fmt"
	"unsafe"

	"golang.org/x/sys/windows"

	"github.com/go-delve/wincore/pkg/logflags"
)

const (
	threadQueryInformation = 0x0040
	threadBasicInformation = 0
	processAccess          = windows.PROCESS_QUERY_INFORMATION | windows.PROCESS_VM_READ
)

var (
	modntdll                     = windows.NewLazySystemDLL("ntdll.dll")
	procNtQueryInformationThread = modntdll.NewProc("NtQueryInformationThread")
)

type clientID struct {
	UniqueProcess windows.Handle
	UniqueThread  windows.Handle
}

type threadBasicInfo struct {
	ExitStatus     int32
	TebBaseAddress uintptr
	ClientId       clientID
	AffinityMask   uintptr
	Priority       int32
	BasePriority   int32
}

// ErrShortRead is returned when only part of the requested memory could be
// read.
var ErrShortRead = errors.New("short read")

// Process is a live process opened for reading.
type Process struct {
	pid      int
	hProcess windows.Handle
}

// Attach opens process pid for reading.
func Attach(pid int) (*Process, error) {
	h, err := windows.OpenProcess(processAccess, false, uint32(pid))
	if err != nil {
		return nil, fmt.Errorf("could not open process %d: %v", pid, err)
	}
	logflags.ProcinfoLogger().Debugf("opened process %d", pid)
	return &Process{pid: pid, hProcess: h}, nil
}

// Pid returns the process id.
func (p *Process) Pid() int { return p.pid }

// ReadMemory reads len(buf) bytes at addr.
func (p *Process) ReadMemory(buf []byte, addr uint64) (int, error) {
	if len(buf) == 0 {
		return 0, nil
	}
	var count uintptr
	err := windows.ReadProcessMemory(p.hProcess, uintptr(addr), &buf[0], uintptr(len(buf)), &count)
	if err == nil && count != uintptr(len(buf)) {
		err = ErrShortRead
	}
	return int(count), err
}

// TIBAddress returns the address of the thread environment block of
// thread tid.
func (p *Process) TIBAddress(tid int) (uint64, bool) {
	h, err := windows.OpenThread(threadQueryInformation, false, uint32(tid))
	if err != nil {
		logflags.ProcinfoLogger().Debugf("could not open thread %d: %v", tid, err)
		return 0, false
	}
	defer windows.CloseHandle(h)
	var info threadBasicInfo
	status, _, _ := procNtQueryInformationThread.Call(uintptr(h), threadBasicInformation, uintptr(unsafe.Pointer(&info)), unsafe.Sizeof(info), 0)
	if status != 0 {
		logflags.ProcinfoLogger().Debugf("NtQueryInformationThread failed: it returns 0x%x", status)
		return 0, false
	}
	return uint64(info.TebBaseAddress), true
}

// Threads returns the ids of the threads of the process.
func (p *Process) Threads() ([]int, error) {
	snap, err := windows.CreateToolhelp32Snapshot(windows.TH32CS_SNAPTHREAD, 0)
	if err != nil {
		return nil, err
	}
	defer windows.CloseHandle(snap)
	var te windows.ThreadEntry32
	te.Size = uint32(unsafe.Sizeof(te))
	var r []int
	for err = windows.Thread32First(snap, &te); err == nil; err = windows.Thread32Next(snap, &te) {
		if int(te.OwnerProcessID) == p.pid {
			r = append(r, int(te.ThreadID))
		}
	}
	if err != windows.ERROR_NO_MORE_FILES {
		return r, err
	}
	return r, nil
}

// Close releases the process handle.
func (p *Process) Close() error {
	return windows.CloseHandle(p.hProcess)
}
