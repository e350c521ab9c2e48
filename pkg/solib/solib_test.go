package solib

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-delve/wincore/pkg/peimport/petest"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/winarch"
)

func legacy(kind uint32, base uint64, name string) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, kind)
	if kind == noteInfoModule64 {
		binary.Write(&buf, binary.LittleEndian, base)
	} else {
		binary.Write(&buf, binary.LittleEndian, uint32(base))
	}
	binary.Write(&buf, binary.LittleEndian, uint32(len(name)+1))
	buf.WriteString(name)
	buf.WriteByte(0)
	return buf.Bytes()
}

func wide(s string) []byte {
	return procinfo.EncodeUTF16(winarch.AMD64, s)
}

type recordingResolver struct {
	paths map[string]string
	calls []string
}

func (r *recordingResolver) Resolve(name string, size, timestamp uint32, buildID []byte) (string, bool) {
	r.calls = append(r.calls, fmt.Sprintf("%s s=%#x t=%#x id=%x", name, size, timestamp, buildID))
	p, ok := r.paths[name]
	return p, ok
}

type warnings []string

func (w *warnings) warn(format string, args ...interface{}) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

func testSnapshot() *snapshot.Snapshot {
	s := snapshot.New(winarch.AMD64, 1)
	s.AddSection(".coremodule/140000000;s=5000;t=5e000000", wide(`C:\app\app.exe`))
	s.AddSection(".data", []byte{1, 2, 3})
	s.AddSection(".module/10000000", legacy(noteInfoModule, 0x10000000, `C:\app\b.dll`))
	s.AddSection(".module/short", []byte{3, 0})
	s.AddSection(".module/kind", legacy(7, 0x20000000, "x.dll"))
	bad := legacy(noteInfoModule64, 0x30000000, "y.dll")
	binary.LittleEndian.PutUint32(bad[12:], 100)
	s.AddSection(".module/overflow", bad)
	s.AddSection(".coremodule/7ffa00000000;s=1f0000;t=0;v=10.0.1.2", wide(`C:\Windows\System32\ntdll.dll`))
	s.AddSection(".corebuildid/7ffa00000000", bytes.Repeat([]byte{0xab}, 20))
	s.AddSection(".module/7ff000000000", legacy(noteInfoModule64, 0x7ff000000000, `C:\x&"y".dll`))
	return s
}

func TestEnumerate(t *testing.T) {
	s := testSnapshot()
	var w warnings
	mods := Enumerate(s, s.Arch, nil, w.warn)
	want := []Module{
		{`C:\app\b.dll`, 0x10000000},
		{`C:\Windows\System32\ntdll.dll`, 0x7ffa00000000},
		{`C:\x&"y".dll`, 0x7ff000000000},
	}
	if len(mods) != len(want) {
		t.Fatalf("got %#v", mods)
	}
	for i := range want {
		if mods[i] != want[i] {
			t.Errorf("module %d: got %#v want %#v", i, mods[i], want[i])
		}
	}
	if len(w) != 0 {
		t.Errorf("warnings without a resolver: %q", w)
	}
}

func TestEnumerateLegacyExecutable(t *testing.T) {
	s := snapshot.New(winarch.I386, 1)
	s.AddSection(".module/00400000", legacy(noteInfoModule, 0x400000, "a.exe"))
	s.AddSection(".module/61000000", legacy(noteInfoModule, 0x61000000, "cygwin1.dll"))
	mods := Enumerate(s, s.Arch, nil, nil)
	if len(mods) != 1 || mods[0].Name != "cygwin1.dll" {
		t.Errorf("got %#v", mods)
	}
	if _, ok := LoadExecutable(s, s.Arch, nil, nil); ok {
		t.Errorf("LoadExecutable found a .coremodule section")
	}
}

func TestEnumerateOnlyExecutable(t *testing.T) {
	for _, tc := range []struct {
		name string
		arch winarch.Arch
		sec  string
		data []byte
	}{
		{"coremodule", winarch.AMD64, ".coremodule/140000000;s=5000", wide(`C:\app\app.exe`)},
		{"module", winarch.I386, ".module/00400000", legacy(noteInfoModule, 0x400000, "a.exe")},
		{"module64", winarch.AMD64, ".module/140000000", legacy(noteInfoModule64, 0x140000000, "a.exe")},
	} {
		t.Run(tc.name, func(t *testing.T) {
			s := snapshot.New(tc.arch, 1)
			s.AddSection(tc.sec, tc.data)
			mods := Enumerate(s, s.Arch, nil, nil)
			if len(mods) != 0 {
				t.Fatalf("got %#v", mods)
			}
			if got := LibraryList(mods, s.Arch, NewTextOffsets(4)); got != "<library-list>\n</library-list>\n" {
				t.Errorf("library list %q", got)
			}
		})
	}
}

func TestResolverAndWarnings(t *testing.T) {
	s := testSnapshot()
	r := &recordingResolver{paths: map[string]string{`C:\app\app.exe`: "/host/app.exe"}}
	var w warnings
	mods := Enumerate(s, s.Arch, r, w.warn)
	if len(mods) != 3 {
		t.Fatalf("got %#v", mods)
	}
	wantCalls := []string{`C:\Windows\System32\ntdll.dll s=0x1f0000 t=0x0 id=` + string(bytes.Repeat([]byte("ab"), 20))}
	if len(r.calls) != 1 || r.calls[0] != wantCalls[0] {
		t.Errorf("calls %q", r.calls)
	}
	if len(w) != 1 || w[0] != `Can't find 'C:\Windows\System32\ntdll.dll' version 10.0.1.2.` {
		t.Errorf("warnings %q", w)
	}

	w = nil
	exe, ok := LoadExecutable(s, s.Arch, r, w.warn)
	if !ok || exe != "/host/app.exe" || len(w) != 0 {
		t.Errorf("LoadExecutable = %q %v, warnings %q", exe, ok, w)
	}

	s2 := snapshot.New(winarch.AMD64, 1)
	s2.AddSection(".coremodule/1000", wide("a.exe"))
	LoadExecutable(s2, s2.Arch, r, w.warn)
	if len(w) != 1 || w[0] != "Can't find 'a.exe'." {
		t.Errorf("warnings %q", w)
	}
}

func TestParseCoreModuleName(t *testing.T) {
	tests := []struct {
		name string
		want coreModule
	}{
		{".coremodule/140000000", coreModule{base: 0x140000000}},
		{".coremodule/1000;s=20;t=ff", coreModule{base: 0x1000, size: 0x20, timestamp: 0xff}},
		{".coremodule/1000;v=1.2;s=3", coreModule{base: 0x1000, size: 3, version: "1.2;s=3", hasVer: true}},
		{".coremodule/zz", coreModule{}},
	}
	for _, tc := range tests {
		if got := parseCoreModuleName(tc.name); got != tc.want {
			t.Errorf("%s: got %#v want %#v", tc.name, got, tc.want)
		}
	}
}

func TestLibraryList(t *testing.T) {
	dir := t.TempDir()
	dll := filepath.Join(dir, "b.dll")
	img := &petest.Image{
		Is64:      true,
		ImageBase: 0x10000000,
		Sections:  []petest.Section{{Name: ".text", VirtualAddress: 0x2000, Data: make([]byte, 16)}},
	}
	if err := img.WriteFile(dll); err != nil {
		t.Fatal(err)
	}
	mods := []Module{
		{dll, 0x10000000},
		{`C:\x&"y'<>.dll`, 0x7ff000000000},
	}
	got := LibraryList(mods, winarch.AMD64, NewTextOffsets(4))
	want := "<library-list>\n" +
		`<library name="` + dll + `"><segment address="0x10002000"/></library>` +
		`<library name="C:\x&amp;&quot;y&apos;&lt;&gt;.dll"><segment address="0x7ff000001000"/></library>` +
		"</library-list>\n"
	if got != want {
		t.Errorf("got\n%s\nwant\n%s", got, want)
	}

	if got := LibraryList(nil, winarch.I386, NewTextOffsets(4)); got != "<library-list>\n</library-list>\n" {
		t.Errorf("empty list %q", got)
	}
}

func TestTextOffsets(t *testing.T) {
	calls := 0
	to := NewTextOffsets(2)
	to.lookup = func(path string) (uint64, error) {
		calls++
		if path == "missing" {
			return 0, fmt.Errorf("no such file")
		}
		return 0x3000, nil
	}
	if off := to.Get("a"); off != 0x3000 {
		t.Errorf("a: %#x", off)
	}
	if off := to.Get("missing"); off != DefaultTextOffset {
		t.Errorf("missing: %#x", off)
	}
	to.Get("a")
	if calls != 2 {
		t.Errorf("lookups: %d", calls)
	}
	to.Get("c")
	to.Get("missing")
	if calls != 4 {
		t.Errorf("lookups after eviction: %d", calls)
	}
	to.Purge()
	to.Get("c")
	if calls != 5 {
		t.Errorf("lookups after purge: %d", calls)
	}
}

func TestCache(t *testing.T) {
	s := testSnapshot()
	r := &recordingResolver{}
	c := NewCache(r, nil, 8)
	text := c.Text(s, s.Arch)
	if text2 := c.Text(s, s.Arch); text2 != text {
		t.Errorf("cached text changed")
	}
	if len(r.calls) != 1 {
		t.Errorf("library list built %d times", len(r.calls))
	}

	buf := make([]byte, 16)
	if n := c.XferLibraries(s, s.Arch, buf, 0); n != 16 || string(buf) != text[:16] {
		t.Errorf("xfer at 0: %d %q", n, buf[:n])
	}
	if n := c.XferLibraries(s, s.Arch, buf, uint64(len(text)-4)); n != 4 || string(buf[:n]) != text[len(text)-4:] {
		t.Errorf("xfer at end: %d %q", n, buf[:n])
	}
	if n := c.XferLibraries(s, s.Arch, buf, uint64(len(text))); n != 0 {
		t.Errorf("xfer past end: %d", n)
	}

	s.AddSection(".module/50000000", legacy(noteInfoModule, 0x50000000, "late.dll"))
	if c.Text(s, s.Arch) != text {
		t.Errorf("cache rebuilt without invalidation")
	}
	c.Invalidate()
	if text3 := c.Text(s, s.Arch); text3 == text || !bytes.Contains([]byte(text3), []byte("late.dll")) {
		t.Errorf("cache not rebuilt: %s", text3)
	}
	if len(r.calls) != 2 {
		t.Errorf("library list built %d times", len(r.calls))
	}
}

func TestPathResolver(t *testing.T) {
	dir := t.TempDir()
	img := &petest.Image{Is64: true, ImageBase: 0x180000000, TimeDateStamp: 0x1234, SizeOfImage: 0x9000}
	if err := img.WriteFile(filepath.Join(dir, "ntdll.dll")); err != nil {
		t.Fatal(err)
	}
	r := &PathResolver{SymbolPath: []string{t.TempDir(), dir}}
	tests := []struct {
		name      string
		size, ts  uint32
		want      string
		wantFound bool
	}{
		{`C:\Windows\System32\ntdll.dll`, 0x9000, 0x1234, filepath.Join(dir, "ntdll.dll"), true},
		{`C:\Windows\System32\NTDLL.DLL`, 0, 0, filepath.Join(dir, "ntdll.dll"), true},
		{`C:\Windows\System32\ntdll.dll`, 0x9000, 0x9999, "", false},
		{`C:\Windows\System32\kernel32.dll`, 0, 0, "", false},
	}
	for _, tc := range tests {
		got, ok := r.Resolve(tc.name, tc.size, tc.ts, nil)
		if got != tc.want || ok != tc.wantFound {
			t.Errorf("%s: got %q %v", tc.name, got, ok)
		}
	}

	r = &PathResolver{Substitute: func(p string) string {
		if p == `C:\ntdll.dll` {
			return filepath.Join(dir, "ntdll.dll")
		}
		return p
	}}
	if got, ok := r.Resolve(`C:\ntdll.dll`, 0, 0, nil); !ok || got != filepath.Join(dir, "ntdll.dll") {
		t.Errorf("substitution: %q %v", got, ok)
	}
}

func TestPathResolverBuildID(t *testing.T) {
	const debugRVA = 0x2000
	id := []byte("0123456789abcdef\x02\x00\x00\x00")
	other := []byte("fedcba9876543210\x02\x00\x00\x00")
	withID, noID := t.TempDir(), t.TempDir()
	img := &petest.Image{
		Is64:          true,
		ImageBase:     0x180000000,
		TimeDateStamp: 0x1234,
		SizeOfImage:   0x9000,
		DebugRVA:      debugRVA,
		DebugSize:     28,
		Sections: []petest.Section{
			{Name: ".rdata", VirtualAddress: debugRVA, Data: petest.DebugData(debugRVA, id, "ntdll.pdb")},
		},
	}
	if err := img.WriteFile(filepath.Join(withID, "ntdll.dll")); err != nil {
		t.Fatal(err)
	}
	img = &petest.Image{Is64: true, ImageBase: 0x180000000, TimeDateStamp: 0x1234, SizeOfImage: 0x9000}
	if err := img.WriteFile(filepath.Join(noID, "ntdll.dll")); err != nil {
		t.Fatal(err)
	}

	tests := []struct {
		dir       string
		buildID   []byte
		wantFound bool
	}{
		{withID, id, true},
		{withID, other, false},
		{withID, nil, true},
		{noID, id, true},
	}
	for i, tc := range tests {
		r := &PathResolver{SymbolPath: []string{tc.dir}}
		got, ok := r.Resolve(`C:\Windows\System32\ntdll.dll`, 0x9000, 0x1234, tc.buildID)
		if ok != tc.wantFound || (ok && got != filepath.Join(tc.dir, "ntdll.dll")) {
			t.Errorf("%d: got %q %v", i, got, ok)
		}
	}
}

func TestExecBase(t *testing.T) {
	s := snapshot.New(winarch.AMD64, 1)
	if _, ok := ExecBase(s); ok {
		t.Errorf("ExecBase without .corebase")
	}
	buf := make([]byte, 8)
	binary.LittleEndian.PutUint64(buf, 0x140000000)
	s.AddSection(".corebase", buf)
	if base, ok := ExecBase(s); !ok || base != 0x140000000 {
		t.Errorf("ExecBase = %#x %v", base, ok)
	}
}
