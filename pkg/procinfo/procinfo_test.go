package procinfo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/go-delve/wincore/pkg/winarch"
)

// fakeProcess is a sparse memory image made of independent regions.
type fakeProcess struct {
	arch    winarch.Arch
	regions map[uint64][]byte
	tib     uint64
	reads   int
}

func newFakeProcess(arch winarch.Arch) *fakeProcess {
	return &fakeProcess{arch: arch, regions: make(map[uint64][]byte)}
}

func (p *fakeProcess) ReadMemory(buf []byte, addr uint64) (int, error) {
	p.reads++
	for base, data := range p.regions {
		if addr >= base && addr+uint64(len(buf)) <= base+uint64(len(data)) {
			return copy(buf, data[addr-base:]), nil
		}
	}
	return 0, fmt.Errorf("could not read %#x", addr)
}

func (p *fakeProcess) TIBAddress(tid int) (uint64, bool) {
	return p.tib, p.tib != 0
}

func (p *fakeProcess) putPtr(addr, v uint64) {
	buf := make([]byte, p.arch.PtrSize())
	p.arch.PutPtr(buf, v)
	p.regions[addr] = buf
}

func (p *fakeProcess) putUnicodeString(addr, buffer uint64, s string) {
	data := EncodeUTF16(p.arch, s)
	hdr := make([]byte, 2*p.arch.PtrSize())
	p.arch.ByteOrder().PutUint16(hdr, uint16(len(data)))
	p.arch.ByteOrder().PutUint16(hdr[2:], uint16(len(data)))
	p.arch.PutPtr(hdr[p.arch.PtrSize():], buffer)
	p.regions[addr] = hdr
	p.regions[buffer] = data
}

const (
	tibAddr    = 0x7ffde000
	pebAddr    = 0x7ffdf000
	paramsAddr = 0x00200000
	imageBase  = 0x00400000
)

func buildProcess(arch winarch.Arch) *fakeProcess {
	p := newFakeProcess(arch)
	off := arch.Offsets()
	p.tib = tibAddr
	p.putPtr(tibAddr+off.PEB, pebAddr)
	p.putPtr(pebAddr+off.ImageBase, imageBase)
	p.putPtr(pebAddr+off.ProcessParams, paramsAddr)
	p.putUnicodeString(paramsAddr+off.Cmdline, 0x300000, `"C:\app\app.exe" -v`)
	p.putUnicodeString(paramsAddr+off.Cwd, 0x310000, `C:\app\`)
	p.putUnicodeString(paramsAddr+off.Exe, 0x320000, `C:\app\app.exe`)
	return p
}

func TestReadProcessInfo(t *testing.T) {
	for _, arch := range []winarch.Arch{winarch.I386, winarch.AMD64} {
		t.Run(arch.Name(), func(t *testing.T) {
			p := buildProcess(arch)
			info := ReadProcessInfo(context.Background(), arch, p, 1, All)
			if info.Cmdline == nil || *info.Cmdline != `"C:\app\app.exe" -v` {
				t.Errorf("cmdline = %v", info.Cmdline)
			}
			if info.Cwd == nil || *info.Cwd != `C:\app\` {
				t.Errorf("cwd = %v", info.Cwd)
			}
			if info.Exe == nil || *info.Exe != `C:\app\app.exe` {
				t.Errorf("exe = %v", info.Exe)
			}

			info = ReadProcessInfo(context.Background(), arch, p, 1, Cwd)
			if info.Cmdline != nil || info.Exe != nil || info.Cwd == nil {
				t.Errorf("unexpected fields for Cwd: %+v", info)
			}

			base, ok := ImageBase(context.Background(), arch, p, 1)
			if !ok || base != imageBase {
				t.Errorf("ImageBase() = %#x, %v", base, ok)
			}
		})
	}
}

func TestReadProcessInfoPEBFailure(t *testing.T) {
	p := buildProcess(winarch.AMD64)
	delete(p.regions, tibAddr+winarch.AMD64.Offsets().PEB)
	p.reads = 0
	info := ReadProcessInfo(context.Background(), winarch.AMD64, p, 1, All)
	if info.Cmdline != nil || info.Cwd != nil || info.Exe != nil {
		t.Errorf("expected no fields, got %+v", info)
	}
	if p.reads != 1 {
		t.Errorf("expected a single read attempt, got %d", p.reads)
	}
}

func TestReadProcessInfoPartial(t *testing.T) {
	p := buildProcess(winarch.AMD64)
	delete(p.regions, 0x310000)
	info := ReadProcessInfo(context.Background(), winarch.AMD64, p, 1, Minimal)
	if info.Cwd != nil {
		t.Errorf("cwd should be absent")
	}
	if info.Cmdline == nil || info.Exe == nil {
		t.Errorf("cmdline and exe should be present: %+v", info)
	}
}

func TestInfoProc(t *testing.T) {
	p := buildProcess(winarch.AMD64)
	delete(p.regions, 0x320000)

	var out bytes.Buffer
	var warnings []string
	warn := func(format string, args ...interface{}) {
		warnings = append(warnings, fmt.Sprintf(format, args...))
	}
	err := InfoProc(context.Background(), &out, warn, winarch.AMD64, p, false, 1, "", Minimal)
	if err != nil {
		t.Fatal(err)
	}
	want := "cmdline = '\"C:\\app\\app.exe\" -v'\ncwd = 'C:\\app\\'\n"
	if out.String() != want {
		t.Errorf("output %q, want %q", out.String(), want)
	}
	if len(warnings) != 1 || warnings[0] != "unable to read exe" {
		t.Errorf("warnings %q", warnings)
	}

	if err := InfoProc(context.Background(), &out, warn, winarch.AMD64, p, false, 1, "1234", Minimal); !errors.Is(err, ErrOtherProcess) {
		t.Errorf("expected ErrOtherProcess, got %v", err)
	}
	if err := InfoProc(context.Background(), &out, warn, winarch.AMD64, nil, false, 1, "", Minimal); !errors.Is(err, ErrNoProcess) {
		t.Errorf("expected ErrNoProcess, got %v", err)
	}

	warnings = nil
	out.Reset()
	if err := InfoProc(context.Background(), &out, warn, winarch.AMD64, nil, true, 1, "", Exe); err != nil {
		t.Fatal(err)
	}
	if out.Len() != 0 || len(warnings) != 1 {
		t.Errorf("snapshot without memory: out %q warnings %q", out.String(), warnings)
	}
}

func TestUTF16RoundTrip(t *testing.T) {
	for _, s := range []string{"", "cmd.exe", "ntdll.dll", `C:\Windows\System32`} {
		if got := DecodeUTF16(winarch.AMD64, EncodeUTF16(winarch.AMD64, s)); got != s {
			t.Errorf("round trip of %q gave %q", s, got)
		}
	}
	if got := DecodeUTF16(winarch.I386, []byte{'a', 0, 0, 0, 'b', 0}); got != "a" {
		t.Errorf("decoding stops at NUL: got %q", got)
	}
}

func TestRebaseDelta(t *testing.T) {
	if _, ok := RebaseDelta(0x140000000, 0x140000000); ok {
		t.Errorf("no rebase expected")
	}
	if _, ok := RebaseDelta(0x140000000, 0); ok {
		t.Errorf("no rebase expected for zero exec base")
	}
	if d, ok := RebaseDelta(0x140000000, 0x7ff6a0000000); !ok || 0x140000000+d != 0x7ff6a0000000 {
		t.Errorf("RebaseDelta() = %#x, %v", d, ok)
	}
}
