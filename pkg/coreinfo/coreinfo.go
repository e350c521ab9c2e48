// Package coreinfo reads the exception record and the thread names
// stored in a Windows core snapshot.
package coreinfo

import (
	"fmt"
	"strconv"

	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/winarch"
	"github.com/go-delve/wincore/pkg/winsignal"
	"github.com/go-delve/wincore/pkg/wintypes"
)

// canonical returns the exception record of c laid out for arch. The
// record in the snapshot always uses the 64-bit layout.
func canonical(c snapshot.Container, arch winarch.Arch) ([]byte, bool) {
	sect, ok := c.SectionBytes(snapshot.CoreException)
	if !ok {
		return nil, false
	}
	if arch.Is64() {
		return sect, true
	}
	if len(sect) != wintypes.ExceptionRecordSize64 {
		return nil, false
	}
	// Keep the low half of every 64-bit slot after ExceptionFlags.
	bo := arch.ByteOrder()
	rec := make([]byte, wintypes.ExceptionRecordSize32)
	word := func(i int) uint32 { return bo.Uint32(sect[4*i:]) }
	bo.PutUint32(rec[0:], word(0))
	bo.PutUint32(rec[4:], word(1))
	for k := 1; k <= 18; k++ {
		bo.PutUint32(rec[4*(k+1):], word(2*k))
	}
	return rec, true
}

// ReadExceptionRecord returns length bytes at offset of the exception
// record stored in c, laid out for arch. For 32-bit targets the read is
// truncated at the end of the record.
func ReadExceptionRecord(c snapshot.Container, arch winarch.Arch, offset, length uint64) ([]byte, bool) {
	if !arch.Is64() && offset > wintypes.ExceptionRecordSize32 {
		return nil, false
	}
	rec, ok := canonical(c, arch)
	if !ok {
		return nil, false
	}
	if arch.Is64() {
		if offset+length < offset || offset+length > uint64(len(rec)) {
			return nil, false
		}
		return rec[offset : offset+length], true
	}
	if length > uint64(len(rec))-offset {
		length = uint64(len(rec)) - offset
	}
	return rec[offset : offset+length], true
}

// DecodeExceptionRecord decodes the exception record stored in c.
func DecodeExceptionRecord(c snapshot.Container, arch winarch.Arch) (*wintypes.ExceptionRecord, error) {
	size := uint64(wintypes.ExceptionRecordSize(arch))
	buf, ok := ReadExceptionRecord(c, arch, 0, size)
	if !ok || uint64(len(buf)) != size {
		return nil, fmt.Errorf("no exception record in snapshot")
	}
	return wintypes.DecodeExceptionRecord(arch, buf)
}

// ExceptionSignal returns the signal corresponding to the exception
// recorded in c.
func ExceptionSignal(c snapshot.Container, arch winarch.Arch) (winsignal.Signal, bool) {
	rec, err := DecodeExceptionRecord(c, arch)
	if err != nil {
		return winsignal.Signal0, false
	}
	return winsignal.FromTarget(uint32(rec.Code)), true
}

// ReadThreadName returns the name of thread tid, truncated to max
// characters. Non-positive values of max use the configured default.
func ReadThreadName(c snapshot.Container, arch winarch.Arch, tid int, max int) (string, bool) {
	if tid == 0 {
		return "", false
	}
	if max <= 0 {
		max = config.DefaultMaxThreadName
	}
	buf, ok := c.SectionBytes(snapshot.CoreThreadPrefix + strconv.Itoa(tid))
	if !ok || len(buf) == 0 {
		return "", false
	}
	name := []rune(procinfo.DecodeUTF16(arch, buf))
	if len(name) > max {
		name = name[:max]
	}
	return string(name), true
}

// PidToStr returns the name of a thread of a core snapshot.
func PidToStr(pid, tid int) string {
	if tid != 0 {
		return fmt.Sprintf("Thread 0x%x", tid)
	}
	return fmt.Sprintf("process %d", pid)
}
