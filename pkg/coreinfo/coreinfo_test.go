package coreinfo

import (
	"bytes"
	"encoding/binary"
	"strings"
	"testing"

	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/winarch"
	"github.com/go-delve/wincore/pkg/winsignal"
	"github.com/go-delve/wincore/pkg/wintypes"
)

// record64 returns a 64-bit EXCEPTION_RECORD for an access violation
// writing address 0x10.
func record64() []byte {
	rec := make([]byte, wintypes.ExceptionRecordSize64)
	le := binary.LittleEndian
	le.PutUint32(rec[0:], 0xC0000005)
	le.PutUint32(rec[4:], 1)
	le.PutUint64(rec[8:], 0x1122334455667788)
	le.PutUint64(rec[16:], 0x401000)
	le.PutUint32(rec[24:], 2)
	le.PutUint64(rec[32:], 1)
	le.PutUint64(rec[40:], 0x10)
	for i := 2; i < wintypes.MaxExceptionParameters; i++ {
		le.PutUint64(rec[32+8*i:], uint64(0x100+i))
	}
	return rec
}

func withException(rec []byte) *snapshot.Snapshot {
	s := snapshot.New(winarch.AMD64, 1)
	s.AddSection(".coreexception", rec)
	return s
}

func TestReadExceptionRecord32(t *testing.T) {
	s := withException(record64())
	rec, ok := ReadExceptionRecord(s, winarch.I386, 0, 200)
	if !ok || len(rec) != 80 {
		t.Fatalf("got %d bytes, %v", len(rec), ok)
	}
	le := binary.LittleEndian
	want := []uint32{0xC0000005, 1, 0x55667788, 0x401000, 2, 1, 0x10}
	for i, w := range want {
		if got := le.Uint32(rec[4*i:]); got != w {
			t.Errorf("word %d: got %#x want %#x", i, got, w)
		}
	}
	if got := le.Uint32(rec[76:]); got != 0x100+14 {
		t.Errorf("last parameter %#x", got)
	}

	part, ok := ReadExceptionRecord(s, winarch.I386, 12, 8)
	if !ok || !bytes.Equal(part, rec[12:20]) {
		t.Errorf("window: %x %v", part, ok)
	}
	part, ok = ReadExceptionRecord(s, winarch.I386, 76, 100)
	if !ok || len(part) != 4 {
		t.Errorf("truncated window: %x %v", part, ok)
	}
	if part, ok := ReadExceptionRecord(s, winarch.I386, 80, 4); !ok || len(part) != 0 {
		t.Errorf("read at end: %x %v", part, ok)
	}
	if _, ok := ReadExceptionRecord(s, winarch.I386, 81, 4); ok {
		t.Errorf("read past end succeeded")
	}

	short := withException(record64()[:100])
	if _, ok := ReadExceptionRecord(short, winarch.I386, 0, 80); ok {
		t.Errorf("record of the wrong size accepted")
	}
	if _, ok := ReadExceptionRecord(snapshot.New(winarch.I386, 1), winarch.I386, 0, 80); ok {
		t.Errorf("read without a record succeeded")
	}
}

func TestReadExceptionRecord64(t *testing.T) {
	full := record64()
	s := withException(full)
	rec, ok := ReadExceptionRecord(s, winarch.AMD64, 0, 152)
	if !ok || !bytes.Equal(rec, full) {
		t.Errorf("full record: %v", ok)
	}
	rec, ok = ReadExceptionRecord(s, winarch.AMD64, 16, 8)
	if !ok || !bytes.Equal(rec, full[16:24]) {
		t.Errorf("window: %x %v", rec, ok)
	}
	if _, ok := ReadExceptionRecord(s, winarch.AMD64, 150, 8); ok {
		t.Errorf("read past end succeeded")
	}
}

func TestDecodeExceptionRecord(t *testing.T) {
	s := withException(record64())
	for _, arch := range []winarch.Arch{winarch.I386, winarch.AMD64} {
		rec, err := DecodeExceptionRecord(s, arch)
		if err != nil {
			t.Fatalf("%s: %v", arch, err)
		}
		if rec.Code != wintypes.AccessViolationCode || rec.Address != 0x401000 {
			t.Errorf("%s: %s", arch, rec)
		}
		av, ok := rec.Parameters.(wintypes.AccessViolation)
		if !ok || av.Type != wintypes.WriteAccessViolation || av.Address != 0x10 {
			t.Errorf("%s: parameters %#v", arch, rec.Parameters)
		}
		if !strings.Contains(rec.Description(), "writing address 0x10") {
			t.Errorf("%s: description %q", arch, rec.Description())
		}
	}
	if sig, ok := ExceptionSignal(s, winarch.AMD64); !ok || sig != winsignal.SIGSEGV {
		t.Errorf("signal %s %v", sig, ok)
	}
	if _, err := DecodeExceptionRecord(snapshot.New(winarch.AMD64, 1), winarch.AMD64); err == nil {
		t.Errorf("decoded a missing record")
	}
}

func TestReadThreadName(t *testing.T) {
	s := snapshot.New(winarch.AMD64, 1)
	s.AddSection(".corethread/200", procinfo.EncodeUTF16(winarch.AMD64, "worker"))
	s.AddSection(".corethread/300", nil)
	s.AddSection(".corethread/400", procinfo.EncodeUTF16(winarch.AMD64, strings.Repeat("x", 100)))
	s.AddSection(".corethread/0", procinfo.EncodeUTF16(winarch.AMD64, "zero"))

	tests := []struct {
		tid  int
		want string
		ok   bool
	}{
		{200, "worker", true},
		{300, "", false},
		{400, strings.Repeat("x", 79), true},
		{500, "", false},
		{0, "", false},
	}
	for _, tc := range tests {
		got, ok := ReadThreadName(s, winarch.AMD64, tc.tid, 0)
		if got != tc.want || ok != tc.ok {
			t.Errorf("tid %d: got %q %v", tc.tid, got, ok)
		}
	}
	if got, _ := ReadThreadName(s, winarch.AMD64, 200, 3); got != "wor" {
		t.Errorf("max 3: %q", got)
	}
}

func TestPidToStr(t *testing.T) {
	if got := PidToStr(42, 0x1a4); got != "Thread 0x1a4" {
		t.Errorf("got %q", got)
	}
	if got := PidToStr(42, 0); got != "process 42" {
		t.Errorf("got %q", got)
	}
}
