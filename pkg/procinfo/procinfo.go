// Package procinfo reads process metadata (command line, working
// directory, executable path, image base) of a Windows process by
// following the pointer chain TIB -> PEB -> process parameters.
package procinfo

import (
	"context"
	"errors"
	"fmt"
	"io"
	"unicode/utf16"

	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/winarch"
)

var (
	// ErrOtherProcess is returned when information about a process other
	// than the current one is requested.
	ErrOtherProcess = errors.New("Only supported for the current process")
	// ErrNoProcess is returned when there is neither a live process nor
	// a snapshot.
	ErrNoProcess = errors.New("No current process")
)

// MemoryReader reads target memory.
type MemoryReader interface {
	ReadMemory(buf []byte, addr uint64) (n int, err error)
}

// TIBResolver returns the address of the thread information block of a
// thread.
type TIBResolver interface {
	TIBAddress(tid int) (uint64, bool)
}

// Target is a process whose memory and threads can be inspected.
type Target interface {
	MemoryReader
	TIBResolver
}

// What selects the fields returned by ReadProcessInfo.
type What uint8

const (
	Minimal What = iota
	Cmdline
	Cwd
	Exe
	All
)

func (w What) wantCmdline() bool { return w == Minimal || w == Cmdline || w == All }
func (w What) wantCwd() bool     { return w == Minimal || w == Cwd || w == All }
func (w What) wantExe() bool     { return w == Minimal || w == Exe || w == All }

// Info holds the fields that could be read. A nil field could not be
// read or was not requested.
type Info struct {
	Cmdline *string
	Cwd     *string
	Exe     *string
}

func readFull(mem MemoryReader, buf []byte, addr uint64) bool {
	n, err := mem.ReadMemory(buf, addr)
	return err == nil && n == len(buf)
}

func readPtr(arch winarch.Arch, mem MemoryReader, addr uint64) (uint64, bool) {
	buf := make([]byte, arch.PtrSize())
	if !readFull(mem, buf, addr) {
		return 0, false
	}
	return arch.Ptr(buf), true
}

// ReadUnicodeString reads a UNICODE_STRING structure at addr and decodes
// its buffer. Empty strings are reported as unreadable.
func ReadUnicodeString(arch winarch.Arch, mem MemoryReader, addr uint64) (string, bool) {
	var lenbuf [2]byte
	if !readFull(mem, lenbuf[:], addr) {
		return "", false
	}
	length := arch.Uint(lenbuf[:], 2)
	if length == 0 {
		return "", false
	}
	buffer, ok := readPtr(arch, mem, addr+uint64(arch.PtrSize()))
	if !ok {
		return "", false
	}
	strbuf := make([]byte, length)
	if !readFull(mem, strbuf, buffer) {
		return "", false
	}
	return DecodeUTF16(arch, strbuf), true
}

// DecodeUTF16 converts a UTF-16 buffer in the byte order of arch to a
// string. A trailing odd byte is ignored and decoding stops at the first
// NUL character.
func DecodeUTF16(arch winarch.Arch, buf []byte) string {
	u := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		c := uint16(arch.Uint(buf[i:], 2))
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}

// EncodeUTF16 is the inverse of DecodeUTF16, without a terminator.
func EncodeUTF16(arch winarch.Arch, s string) []byte {
	u := utf16.Encode([]rune(s))
	buf := make([]byte, 2*len(u))
	bo := arch.ByteOrder()
	for i, c := range u {
		bo.PutUint16(buf[2*i:], c)
	}
	return buf
}

// pebAddress follows TIB -> PEB and returns the PEB address.
func pebAddress(ctx context.Context, arch winarch.Arch, t Target, tid int) (uint64, bool) {
	if ctx.Err() != nil {
		return 0, false
	}
	tlb, ok := t.TIBAddress(tid)
	if !ok {
		logflags.ProcinfoLogger().Debugf("no thread local base for thread %d", tid)
		return 0, false
	}
	peb, ok := readPtr(arch, t, tlb+arch.Offsets().PEB)
	if !ok {
		logflags.ProcinfoLogger().Debugf("could not read PEB pointer at %#x", tlb+arch.Offsets().PEB)
	}
	return peb, ok
}

// ReadProcessInfo reads the requested fields of the process owning thread
// tid. A failure to read the PEB or the process parameters leaves every
// field nil.
func ReadProcessInfo(ctx context.Context, arch winarch.Arch, t Target, tid int, what What) Info {
	var info Info
	if !what.wantCmdline() && !what.wantCwd() && !what.wantExe() {
		return info
	}
	off := arch.Offsets()
	peb, ok := pebAddress(ctx, arch, t, tid)
	if !ok {
		return info
	}
	pp, ok := readPtr(arch, t, peb+off.ProcessParams)
	if !ok {
		return info
	}
	read := func(fieldOff uint64) *string {
		if ctx.Err() != nil {
			return nil
		}
		s, ok := ReadUnicodeString(arch, t, pp+fieldOff)
		if !ok {
			return nil
		}
		return &s
	}
	if what.wantCmdline() {
		info.Cmdline = read(off.Cmdline)
	}
	if what.wantCwd() {
		info.Cwd = read(off.Cwd)
	}
	if what.wantExe() {
		info.Exe = read(off.Exe)
	}
	return info
}

// ImageBase returns the image_base_address field of the PEB of the
// process owning thread tid.
func ImageBase(ctx context.Context, arch winarch.Arch, t Target, tid int) (uint64, bool) {
	peb, ok := pebAddress(ctx, arch, t, tid)
	if !ok {
		return 0, false
	}
	return readPtr(arch, t, peb+arch.Offsets().ImageBase)
}

// RebaseDelta returns the amount an image linked at staticBase was moved
// to be loaded at execBase. The second return value is false when no
// rebase is needed.
func RebaseDelta(staticBase, execBase uint64) (uint64, bool) {
	if execBase == 0 || staticBase == execBase {
		return 0, false
	}
	return execBase - staticBase, true
}

// InfoProc writes the requested fields of the current process to w and
// reports the unreadable ones through warn. Args must be empty, t may be
// nil when haveSnapshot is true.
func InfoProc(ctx context.Context, w io.Writer, warn func(string, ...interface{}), arch winarch.Arch, t Target, haveSnapshot bool, tid int, args string, what What) error {
	if args != "" {
		return ErrOtherProcess
	}
	if t == nil && !haveSnapshot {
		return ErrNoProcess
	}
	var info Info
	if t != nil {
		info = ReadProcessInfo(ctx, arch, t, tid, what)
	}
	show := func(want bool, name string, v *string) {
		if !want {
			return
		}
		if v != nil {
			fmt.Fprintf(w, "%s = '%s'\n", name, *v)
		} else {
			warn("unable to read %s", name)
		}
	}
	show(what.wantCmdline(), "cmdline", info.Cmdline)
	show(what.wantCwd(), "cwd", info.Cwd)
	show(what.wantExe(), "exe", info.Exe)
	return nil
}

// ParseWhat converts the name of an info proc subcommand.
func ParseWhat(s string) (What, error) {
	switch s {
	case "":
		return Minimal, nil
	case "cmdline":
		return Cmdline, nil
	case "cwd":
		return Cwd, nil
	case "exe":
		return Exe, nil
	case "all":
		return All, nil
	}
	return Minimal, fmt.Errorf("unknown info proc field %q", s)
}
