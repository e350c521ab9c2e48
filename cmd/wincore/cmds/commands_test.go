package cmds

import (
	"bytes"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-delve/wincore/pkg/config"
	"github.com/go-delve/wincore/pkg/peimport/petest"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/snapshot/minidump"
	"github.com/go-delve/wincore/pkg/snapshot/minidump/mdtest"
)

func writePE(t *testing.T) string {
	t.Helper()
	const idataRVA = 0x2000
	img := &petest.Image{
		Is64:          true,
		ImageBase:     0x140000000,
		TimeDateStamp: 0x5e000000,
		SizeOfImage:   0x5000,
		EntryRVA:      0x1010,
		ImportRVA:     idataRVA,
		Sections: []petest.Section{
			{Name: ".text", VirtualAddress: 0x1000, Data: make([]byte, 0x20)},
			{Name: ".idata", VirtualAddress: idataRVA, Data: petest.IData(idataRVA, "KERNEL32.dll", "cygwin1.dll")},
		},
	}
	path := filepath.Join(t.TempDir(), "app.exe")
	if err := img.WriteFile(path); err != nil {
		t.Fatal(err)
	}
	return path
}

func TestDeps(t *testing.T) {
	path := writePE(t)

	var out bytes.Buffer
	if status := deps(&out, []string{path}); status != 0 {
		t.Fatalf("deps returned %d", status)
	}
	if got := out.String(); got != "KERNEL32.dll\ncygwin1.dll\n" {
		t.Errorf("imports %q", got)
	}

	for _, tc := range []struct {
		lib  string
		want string
	}{
		{"cygwin1.dll", path + " imports from cygwin1.dll\n"},
		{"CYGWIN1.DLL", path + " does not import from CYGWIN1.DLL\n"},
		{"msys-2.0.dll", path + " does not import from msys-2.0.dll\n"},
	} {
		out.Reset()
		if status := deps(&out, []string{path, tc.lib}); status != 0 || out.String() != tc.want {
			t.Errorf("deps %s: %d %q", tc.lib, status, out.String())
		}
	}

	if status := deps(&out, []string{filepath.Join(t.TempDir(), "missing.exe")}); status != 1 {
		t.Errorf("missing file: got status %d", status)
	}
}

func TestDump(t *testing.T) {
	tib := make([]byte, 0x100)
	binary.LittleEndian.PutUint64(tib[48:], 0x7fe000)
	b := &mdtest.Builder{
		Arch:    uint16(minidump.CpuArchitectureAMD64),
		Pid:     4321,
		Threads: []mdtest.Thread{{ID: 100, TEB: 0x7fe000}, {ID: 200, TEB: 0x7fd000}},
		Modules: []mdtest.Module{{Base: 0x140000000, Size: 0x5000, Name: `C:\app\app.exe`}},
		Memory:  []mdtest.Range{{Addr: 0x7fe000, Data: tib}},
	}
	dir := t.TempDir()
	in := filepath.Join(dir, "app.dmp")
	if err := os.WriteFile(in, b.Bytes(), 0600); err != nil {
		t.Fatal(err)
	}
	conf = &config.Config{}
	out := filepath.Join(dir, "app.core")
	var buf bytes.Buffer
	if status := dump(&buf, in, out); status != 0 {
		t.Fatalf("dump returned %d", status)
	}
	if !strings.HasPrefix(buf.String(), "Wrote "+out+": process 4321, 2 threads, ") {
		t.Errorf("output %q", buf.String())
	}

	s, err := snapshot.Open(out)
	if err != nil {
		t.Fatal(err)
	}
	if s.Pid != 4321 || len(s.Threads()) != 2 {
		t.Errorf("reloaded snapshot: pid %d threads %v", s.Pid, s.Threads())
	}
	if a, ok := s.TIBAddress(100); !ok || a != 0x7fe000 {
		t.Errorf("TIB of thread 100: %#x %v", a, ok)
	}
	mem := make([]byte, 8)
	if _, err := s.ReadMemory(mem, 0x7fe000+48); err != nil || binary.LittleEndian.Uint64(mem) != 0x7fe000 {
		t.Errorf("memory %x %v", mem, err)
	}

	if status := dump(&buf, filepath.Join(dir, "missing.dmp"), out); status != 1 {
		t.Errorf("missing snapshot: got status %d", status)
	}
}

func TestSessionConfig(t *testing.T) {
	conf = &config.Config{SymbolPath: []string{`C:\Windows\System32`}}
	showAllTIB, symbolPath = true, []string{"/srv/symbols"}
	defer func() { showAllTIB, symbolPath = false, nil }()

	c := sessionConfig()
	if !c.ShowAllTIB || len(c.SymbolPath) != 2 || c.SymbolPath[0] != "/srv/symbols" {
		t.Errorf("config %#v", c)
	}
	if conf.ShowAllTIB || len(conf.SymbolPath) != 1 {
		t.Errorf("loaded config modified: %#v", conf)
	}
}

func TestHelpHidesFlags(t *testing.T) {
	for _, tc := range []struct {
		args    []string
		visible []string
		hidden  []string
	}{
		{[]string{"help", "dap"}, []string{"--listen", "--log-output"}, []string{"--init"}},
		{[]string{"help", "core"}, []string{"--init", "--show-all-tib"}, []string{"--listen"}},
		{[]string{"help", "dump"}, []string{"--log"}, []string{"--listen", "--init", "--show-all-tib"}},
	} {
		root := New(false)
		var out bytes.Buffer
		root.SetOut(&out)
		root.SetArgs(tc.args)
		if err := root.Execute(); err != nil {
			t.Fatalf("%v: %v", tc.args, err)
		}
		for _, f := range tc.visible {
			if !strings.Contains(out.String(), f) {
				t.Errorf("%v: %s not shown", tc.args, f)
			}
		}
		for _, f := range tc.hidden {
			if strings.Contains(out.String(), f+" ") {
				t.Errorf("%v: %s shown", tc.args, f)
			}
		}
	}
}
