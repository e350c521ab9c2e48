package peimport_test

import (
	"fmt"
	"path/filepath"
	"testing"

	"github.com/go-delve/wincore/pkg/peimport"
	"github.com/go-delve/wincore/pkg/peimport/petest"
)

const (
	imageBase = 0x400000
	idataRVA  = 0x3000
)

type fakeBinary struct {
	importRVA uint64
	idata     []byte
	noIdata   bool
}

func (b *fakeBinary) Name() string           { return "a.exe" }
func (b *fakeBinary) ImageBase() uint64      { return imageBase }
func (b *fakeBinary) ImportTableRVA() uint64 { return b.importRVA }

func (b *fakeBinary) Section(name string) (*peimport.Section, bool) {
	if name != ".idata" || b.noIdata {
		return nil, false
	}
	return &peimport.Section{
		VA:   imageBase + idataRVA,
		Size: uint64(len(b.idata)),
		Data: func() ([]byte, error) { return b.idata, nil },
	}, true
}

type warnings []string

func (w *warnings) warn(format string, args ...interface{}) {
	*w = append(*w, fmt.Sprintf(format, args...))
}

func TestDependsOn(t *testing.T) {
	terminated := petest.IData(idataRVA, "KERNEL32.dll", "x.dll", "cygwin1.dll")
	copy(terminated[20:40], make([]byte, 20))

	badName := petest.IData(idataRVA, "cygwin1.dll")
	badName[12] = 0xff

	truncatedName := petest.IData(idataRVA, "cygwin1.dll")
	truncatedName = truncatedName[:len(truncatedName)-1]

	tests := []struct {
		name    string
		bin     *fakeBinary
		want    bool
		warning string
	}{
		{"match", &fakeBinary{importRVA: idataRVA, idata: petest.IData(idataRVA, "KERNEL32.dll", "cygwin1.dll")}, true, ""},
		{"no match", &fakeBinary{importRVA: idataRVA, idata: petest.IData(idataRVA, "KERNEL32.dll", "msvcrt.dll")}, false, ""},
		{"case sensitive", &fakeBinary{importRVA: idataRVA, idata: petest.IData(idataRVA, "CYGWIN1.DLL")}, false, ""},
		{"prefix", &fakeBinary{importRVA: idataRVA, idata: petest.IData(idataRVA, "cygwin1.dll.bak")}, false, ""},
		{"hidden by terminator", &fakeBinary{importRVA: idataRVA, idata: terminated}, false, ""},
		{"no idata", &fakeBinary{noIdata: true}, false, ""},
		{
			"import table outside idata",
			&fakeBinary{importRVA: 0x5000, idata: petest.IData(idataRVA, "cygwin1.dll")},
			false,
			"a.exe: import table's virtual address (0x5000) is outside .idata section's range [0x3000, 0x3034].",
		},
		{
			"unexpected end",
			&fakeBinary{importRVA: idataRVA + 0x30, idata: petest.IData(idataRVA, "cygwin1.dll")},
			false,
			"a.exe: unexpected end of .idata section.",
		},
		{
			"name outside idata",
			&fakeBinary{importRVA: idataRVA, idata: badName},
			false,
			"a.exe: name's virtual address (0x30ff) is outside .idata section's range [0x3000, 0x3034].",
		},
		{"name overruns section", &fakeBinary{importRVA: idataRVA, idata: truncatedName}, false, ""},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			var w warnings
			got := peimport.DependsOn(tc.bin, peimport.CygwinDLL, w.warn)
			if got != tc.want {
				t.Errorf("got %v want %v", got, tc.want)
			}
			switch {
			case tc.warning == "" && len(w) != 0:
				t.Errorf("unexpected warnings %q", w)
			case tc.warning != "" && (len(w) != 1 || w[0] != tc.warning):
				t.Errorf("warnings %q, want %q", w, tc.warning)
			}
		})
	}
}

func TestImports(t *testing.T) {
	b := &fakeBinary{importRVA: idataRVA, idata: petest.IData(idataRVA, "KERNEL32.dll", "cygwin1.dll")}
	got := peimport.Imports(b, nil)
	if len(got) != 2 || got[0] != "KERNEL32.dll" || got[1] != "cygwin1.dll" {
		t.Errorf("got %q", got)
	}
}

func TestFile(t *testing.T) {
	for _, is64 := range []bool{false, true} {
		img := &petest.Image{
			Is64:          is64,
			ImageBase:     imageBase,
			TimeDateStamp: 0x5e000000,
			SizeOfImage:   0x5000,
			EntryRVA:      0x1010,
			ImportRVA:     idataRVA,
			Sections: []petest.Section{
				{Name: ".text", VirtualAddress: 0x1000, Data: make([]byte, 0x20)},
				{Name: ".idata", VirtualAddress: idataRVA, Data: petest.IData(idataRVA, "KERNEL32.dll", "cygwin1.dll")},
			},
		}
		path := filepath.Join(t.TempDir(), "a.exe")
		if err := img.WriteFile(path); err != nil {
			t.Fatal(err)
		}
		f, err := peimport.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		if f.Is64() != is64 || f.ImageBase() != imageBase || f.EntryRVA() != 0x1010 {
			t.Errorf("is64 %v image base %#x entry %#x", f.Is64(), f.ImageBase(), f.EntryRVA())
		}
		if size, ts := f.Identity(); size != 0x5000 || ts != 0x5e000000 {
			t.Errorf("identity %#x %#x", size, ts)
		}
		if off, ok := f.TextOffset(); !ok || off != 0x1000 {
			t.Errorf("text offset %#x %v", off, ok)
		}
		if !peimport.DependsOn(f, peimport.CygwinDLL, nil) {
			t.Errorf("%s: cygwin1.dll not found", path)
		}
		f.Close()

		ok, err := peimport.DependsOnFile(path, "msvcrt.dll", nil)
		if err != nil || ok {
			t.Errorf("DependsOnFile: %v %v", ok, err)
		}
	}
}

func TestBuildID(t *testing.T) {
	const debugRVA = 0x2000
	id := []byte("0123456789abcdef\x01\x00\x00\x00")
	tests := []struct {
		name string
		img  petest.Image
		want []byte
	}{
		{"rsds", petest.Image{
			DebugRVA:  debugRVA,
			DebugSize: 28,
			Sections: []petest.Section{
				{Name: ".rdata", VirtualAddress: debugRVA, Data: petest.DebugData(debugRVA, id, `C:\src\a.pdb`)},
			},
		}, id},
		{"no debug directory", petest.Image{}, nil},
		{"directory outside sections", petest.Image{DebugRVA: debugRVA, DebugSize: 28}, nil},
	}
	for _, tc := range tests {
		path := filepath.Join(t.TempDir(), "a.exe")
		tc.img.Is64, tc.img.ImageBase, tc.img.SizeOfImage = true, imageBase, 0x5000
		if err := tc.img.WriteFile(path); err != nil {
			t.Fatal(err)
		}
		f, err := peimport.Open(path)
		if err != nil {
			t.Fatal(err)
		}
		got, ok := f.BuildID()
		f.Close()
		if ok != (tc.want != nil) || string(got) != string(tc.want) {
			t.Errorf("%s: BuildID = %x %v, want %x", tc.name, got, ok, tc.want)
		}
	}
}
