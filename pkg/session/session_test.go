package session_test

import (
	"bytes"
	"context"
	"encoding/binary"
	"errors"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/peimport/petest"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/session"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/winarch"
	"github.com/go-delve/wincore/pkg/winsignal"
)

type fakeProcess struct {
	pid    int
	mem    map[uint64][]byte
	tibs   map[int]uint64
	closed bool
}

func (p *fakeProcess) ReadMemory(buf []byte, addr uint64) (int, error) {
	for base, data := range p.mem {
		if addr >= base && addr+uint64(len(buf)) <= base+uint64(len(data)) {
			return copy(buf, data[addr-base:]), nil
		}
	}
	return 0, errors.New("unmapped")
}

func (p *fakeProcess) TIBAddress(tid int) (uint64, bool) {
	a, ok := p.tibs[tid]
	return a, ok
}

func (p *fakeProcess) Pid() int { return p.pid }

func (p *fakeProcess) Threads() ([]int, error) {
	var r []int
	for tid := range p.tibs {
		r = append(r, tid)
	}
	return r, nil
}

func (p *fakeProcess) Close() error {
	p.closed = true
	return nil
}

const (
	tibAddr32 = 0x7ffde000
	pebAddr32 = 0x7ffdf000
)

func snapshot32() *snapshot.Snapshot {
	s := snapshot.New(winarch.I386, 1234)
	s.AddThread(snapshot.Thread{ID: 0x10, TEB: tibAddr32})
	s.AddThread(snapshot.Thread{ID: 0x11})
	tib := make([]byte, winarch.FullTIBSize)
	binary.LittleEndian.PutUint32(tib[0:], 0x0012ff00)
	binary.LittleEndian.PutUint32(tib[24:], tibAddr32)
	binary.LittleEndian.PutUint32(tib[48:], pebAddr32)
	binary.LittleEndian.PutUint32(tib[0x100:], 0xdeadbeef)
	s.AddMemory(tibAddr32, tib)
	s.AddSection(snapshot.CoreThreadPrefix+"16", procinfo.EncodeUTF16(winarch.I386, "worker"))
	return s
}

func newSession(t *testing.T) *session.Session {
	t.Helper()
	return session.New(&config.Config{}, func(format string, args ...interface{}) {
		t.Logf("warning: "+format, args...)
	})
}

func TestDisplayTIB(t *testing.T) {
	s := newSession(t)
	if _, err := s.SetSnapshot(context.Background(), snapshot32()); err != nil {
		t.Fatal(err)
	}
	if s.CurrentThread() != 0x10 {
		t.Fatalf("current thread %#x", s.CurrentThread())
	}

	var buf bytes.Buffer
	if err := s.DisplayTIB(context.Background(), &buf, 0); err != nil {
		t.Fatal(err)
	}
	out := buf.String()
	for _, want := range []string{
		"Thread Information Block Thread 0x10 at 0x7ffde000\n",
		" current_seh                  is 0x0012ff00\n",
		" linear_address_tib           is 0x7ffde000\n",
		" process_environment_block    is 0x7ffdf000\n",
		" last_error_number            is 0x00000000\n",
	} {
		if !strings.Contains(out, want) {
			t.Errorf("missing %q in:\n%s", want, out)
		}
	}
	if n := strings.Count(out, "\n"); n != 15 {
		t.Errorf("got %d lines", n)
	}
	if strings.Contains(out, "TIB[") {
		t.Errorf("unnamed slots printed without show-all-tib:\n%s", out)
	}

	s.SetShowAllTIB(true)
	buf.Reset()
	if err := s.DisplayTIB(context.Background(), &buf, 0x10); err != nil {
		t.Fatal(err)
	}
	if !strings.Contains(buf.String(), "TIB[0x0100] is 0xdeadbeef\n") {
		t.Errorf("unnamed slot missing:\n%s", buf.String())
	}
	if n := strings.Count(buf.String(), "TIB["); n != 1 {
		t.Errorf("got %d unnamed slots", n)
	}

	err := s.DisplayTIB(context.Background(), &buf, 0x11)
	if err == nil || err.Error() != "Unable to get thread local base for Thread 0x11" {
		t.Errorf("unexpected error %v", err)
	}
}

func TestShowAllTIBMessage(t *testing.T) {
	if got := session.ShowAllTIBMessage(true); got != "Show all non-zero elements of Thread Information Block is on." {
		t.Errorf("got %q", got)
	}
	s := session.New(&config.Config{ShowAllTIB: true}, nil)
	if !s.ShowAllTIB() {
		t.Error("config setting not honored")
	}
}

func TestTLB(t *testing.T) {
	s := newSession(t)
	if _, _, err := s.TLB(); err != session.ErrNoTLB {
		t.Errorf("TLB without target: %v", err)
	}
	if _, err := s.SetSnapshot(context.Background(), snapshot32()); err != nil {
		t.Fatal(err)
	}
	addr, typ, err := s.TLB()
	if err != nil {
		t.Fatal(err)
	}
	if addr != tibAddr32 || typ.Size() != 4 {
		t.Errorf("addr %#x size %d", addr, typ.Size())
	}
	if got, err := s.FormatTLB(); err != nil || got != "0x7ffde000" {
		t.Errorf("FormatTLB %q %v", got, err)
	}
	if err := s.SetTLB(0); err == nil || err.Error() != "Impossible to change the Thread Local Base" {
		t.Errorf("SetTLB: %v", err)
	}
	if len(s.InternedTypes()) == 0 {
		t.Error("no types interned")
	}

	if err := s.SetCurrentThread(context.Background(), 0x11); err != nil {
		t.Fatal(err)
	}
	if _, _, err := s.TLB(); err == nil || err.Error() != "Unable to read tlb" {
		t.Errorf("TLB of thread without TEB: %v", err)
	}
	if err := s.SetCurrentThread(context.Background(), 0x99); err == nil {
		t.Error("selected unknown thread")
	}
}

func TestThreads(t *testing.T) {
	s := newSession(t)
	if _, err := s.Threads(context.Background()); err != procinfo.ErrNoProcess {
		t.Errorf("threads without target: %v", err)
	}
	if _, err := s.SetSnapshot(context.Background(), snapshot32()); err != nil {
		t.Fatal(err)
	}
	ths, err := s.Threads(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if len(ths) != 2 || ths[0].Name != "worker" || ths[1].Name != "" {
		t.Errorf("threads %+v", ths)
	}
	if got := s.PidToStr(0); got != "process 1234" {
		t.Errorf("PidToStr %q", got)
	}
}

func writeExe(t *testing.T, cygwin bool) string {
	t.Helper()
	const idataRVA = 0x2000
	dlls := []string{"KERNEL32.dll"}
	if cygwin {
		dlls = append(dlls, "cygwin1.dll")
	}
	img := &petest.Image{
		Is64:        true,
		ImageBase:   0x140000000,
		SizeOfImage: 0x3000,
		EntryRVA:    0x1010,
		ImportRVA:   idataRVA,
		Sections: []petest.Section{
			{Name: ".text", VirtualAddress: 0x1000, Data: make([]byte, 0x20)},
			{Name: ".idata", VirtualAddress: idataRVA, Data: petest.IData(idataRVA, dlls...)},
		},
	}
	path := filepath.Join(t.TempDir(), "a.exe")
	if err := img.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func liveProcess(imageBase uint64) *fakeProcess {
	tib := make([]byte, winarch.AMD64.TIBSize())
	binary.LittleEndian.PutUint64(tib[96:], 0x2000)
	peb := make([]byte, 0x40)
	binary.LittleEndian.PutUint64(peb[16:], imageBase)
	return &fakeProcess{
		pid:  4321,
		tibs: map[int]uint64{0x20: 0x1000},
		mem:  map[uint64][]byte{0x1000: tib, 0x2000: peb},
	}
}

func TestCreateInferiorHook(t *testing.T) {
	s := newSession(t)
	if err := s.LoadExecutable(writeExe(t, true)); err != nil {
		t.Fatal(err)
	}
	if s.Translator().Name() != winsignal.Cygwin().Name() {
		t.Errorf("translator %s", s.Translator().Name())
	}

	p := liveProcess(0x140010000)
	res, err := s.Attach(context.Background(), p, winarch.AMD64)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExecBase != 0x140010000 || !res.Rebased || res.RebaseDelta != 0x10000 {
		t.Errorf("hook result %+v", res)
	}
	if res.EntryPoint != 0x140011010 || !res.BreakpointCreated {
		t.Errorf("entry point %#x created %v", res.EntryPoint, res.BreakpointCreated)
	}
	bp := s.EntryBreakpoint()
	if bp == nil || bp.Address() != 0x140011010 {
		t.Fatalf("entry breakpoint %v", bp)
	}
	if got := s.PidToStr(0x20); got != "Thread 4321.0x20" {
		t.Errorf("PidToStr %q", got)
	}

	if !s.HandleStop(0x140011010) || bp.Hits() != 1 {
		t.Errorf("entry breakpoint not hit")
	}
	if s.HandleStop(0x140011000) {
		t.Errorf("stop at other address handled")
	}

	// A new image base moves the existing breakpoint.
	binary.LittleEndian.PutUint64(p.mem[0x2000][16:], 0x140000000)
	res = s.CreateInferiorHook(context.Background())
	if res.Rebased || res.BreakpointCreated || res.EntryPoint != 0x140001010 {
		t.Errorf("second hook %+v", res)
	}
	if s.EntryBreakpoint() != bp || bp.Address() != 0x140001010 {
		t.Errorf("entry breakpoint not reused")
	}

	if err := s.Close(); err != nil || !p.closed {
		t.Errorf("close %v %v", err, p.closed)
	}
}

func TestCreateInferiorHookSnapshot(t *testing.T) {
	s := newSession(t)
	if err := s.LoadExecutable(writeExe(t, false)); err != nil {
		t.Fatal(err)
	}
	if s.Translator().Name() != winsignal.Windows().Name() {
		t.Errorf("translator %s", s.Translator().Name())
	}
	snap := snapshot.New(winarch.AMD64, 1)
	base := make([]byte, 8)
	binary.LittleEndian.PutUint64(base, 0x140020000)
	snap.AddSection(snapshot.CoreBase, base)
	res, err := s.SetSnapshot(context.Background(), snap)
	if err != nil {
		t.Fatal(err)
	}
	if res.ExecBase != 0x140020000 || res.RebaseDelta != 0x20000 || res.EntryPoint != 0 || s.EntryBreakpoint() != nil {
		t.Errorf("hook result %+v", res)
	}
	if b, d := s.ExecBase(); b != 0x140020000 || d != 0x20000 {
		t.Errorf("exec base %#x %#x", b, d)
	}
}

func TestException(t *testing.T) {
	s := newSession(t)
	if _, err := s.Exception(); err != session.ErrUnsupportedOperation {
		t.Errorf("exception without snapshot: %v", err)
	}
	snap := snapshot.New(winarch.AMD64, 1)
	rec := make([]byte, 152)
	binary.LittleEndian.PutUint32(rec[0:], 0xC0000005)
	binary.LittleEndian.PutUint64(rec[16:], 0x401000)
	binary.LittleEndian.PutUint32(rec[24:], 2)
	binary.LittleEndian.PutUint64(rec[32:], 1)
	binary.LittleEndian.PutUint64(rec[40:], 0x10)
	snap.AddSection(snapshot.CoreException, rec)
	if _, err := s.SetSnapshot(context.Background(), snap); err != nil {
		t.Fatal(err)
	}
	r, err := s.Exception()
	if err != nil {
		t.Fatal(err)
	}
	if r.Address != 0x401000 || r.NumberParameters != 2 {
		t.Errorf("record %+v", r)
	}
	if sig, ok := s.StopSignal(); !ok || sig != winsignal.SIGSEGV {
		t.Errorf("signal %v %v", sig, ok)
	}
	if b, err := s.ReadSiginfo(0, 4); err != nil || binary.LittleEndian.Uint32(b) != 0xC0000005 {
		t.Errorf("siginfo %x %v", b, err)
	}
}

func TestInfoProc(t *testing.T) {
	s := newSession(t)
	var buf bytes.Buffer
	if err := s.InfoProc(context.Background(), &buf, "", procinfo.Minimal); err != procinfo.ErrNoProcess {
		t.Errorf("info proc without process: %v", err)
	}
	if err := s.InfoProc(context.Background(), &buf, "12", procinfo.Minimal); err != procinfo.ErrOtherProcess {
		t.Errorf("info proc of other process: %v", err)
	}
}

func TestReadTIB(t *testing.T) {
	s := newSession(t)
	if _, _, err := s.ReadTIB(0, false); err != procinfo.ErrNoProcess {
		t.Fatalf("expected ErrNoProcess, got %v", err)
	}
	if _, err := s.SetSnapshot(context.Background(), snapshot32()); err != nil {
		t.Fatal(err)
	}
	base, fields, err := s.ReadTIB(0, false)
	if err != nil {
		t.Fatal(err)
	}
	if base != tibAddr32 || len(fields) != winarch.TIBFields {
		t.Fatalf("base %#x, %d fields", base, len(fields))
	}
	if f := fields[12]; f.Name != "process_environment_block" || f.Offset != 48 || f.Value != pebAddr32 {
		t.Errorf("wrong PEB field %+v", f)
	}
	_, fields, err = s.ReadTIB(0x10, true)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != winarch.FullTIBSize/4 || fields[0x40].Name != "" || fields[0x40].Value != 0xdeadbeef {
		t.Errorf("wrong unnamed slot %+v", fields[0x40])
	}
	if _, _, err := s.ReadTIB(0x11, false); err == nil || err.Error() != "Unable to get thread local base for Thread 0x11" {
		t.Errorf("unexpected error %v", err)
	}
}
