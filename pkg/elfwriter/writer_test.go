package elfwriter

import (
	"bytes"
	"debug/elf"
	"os"
	"path/filepath"
	"testing"
)

func writeCore(t *testing.T, class elf.Class, machine elf.Machine) *elf.File {
	t.Helper()
	path := filepath.Join(t.TempDir(), "core")
	f, err := os.Create(path)
	if err != nil {
		t.Fatal(err)
	}
	w := New(f, &elf.FileHeader{Class: class, Data: elf.ELFDATA2LSB, Version: elf.EV_CURRENT, Type: elf.ET_CORE, Machine: machine})
	w.WriteLoad(0x10000, elf.PF_R, []byte{1, 2, 3})
	w.WriteLoad(0x20000, elf.PF_R|elf.PF_W, bytes.Repeat([]byte{0xaa}, 17))
	w.Progs = append(w.Progs, w.WriteNotes([]Note{{Type: 1, Name: "abc", Data: []byte{9, 9, 9, 9, 9}}}))
	w.Progs = append(w.Progs, w.WriteNotes(nil))
	w.WriteProgramHeaders()
	if w.Err != nil {
		t.Fatal(w.Err)
	}
	if err := f.Close(); err != nil {
		t.Fatal(err)
	}
	ef, err := elf.Open(path)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { ef.Close() })
	return ef
}

func TestWriterClasses(t *testing.T) {
	for _, tc := range []struct {
		class   elf.Class
		machine elf.Machine
	}{
		{elf.ELFCLASS32, elf.EM_386},
		{elf.ELFCLASS64, elf.EM_X86_64},
	} {
		ef := writeCore(t, tc.class, tc.machine)
		if ef.Class != tc.class || ef.Machine != tc.machine || ef.Type != elf.ET_CORE {
			t.Fatalf("header %v %v %v", ef.Class, ef.Machine, ef.Type)
		}
		if len(ef.Progs) != 3 {
			t.Fatalf("%v: %d program headers", tc.class, len(ef.Progs))
		}
		load := ef.Progs[1]
		if load.Type != elf.PT_LOAD || load.Vaddr != 0x20000 || load.Filesz != 17 || load.Flags != elf.PF_R|elf.PF_W {
			t.Errorf("%v: second segment %+v", tc.class, load.ProgHeader)
		}
		data := make([]byte, 17)
		if _, err := load.ReadAt(data, 0); err != nil || data[16] != 0xaa {
			t.Errorf("%v: segment data %x %v", tc.class, data, err)
		}
		note := ef.Progs[2]
		if note.Type != elf.PT_NOTE || note.Off%4 != 0 || note.Filesz != 12+4+8 {
			t.Errorf("%v: note segment %+v", tc.class, note.ProgHeader)
		}
	}
}

type nopSeeker struct{ bytes.Buffer }

func (*nopSeeker) Seek(int64, int) (int64, error) { return 5, nil }
func (*nopSeeker) Close() error                   { return nil }

func TestWriterRejects(t *testing.T) {
	if w := New(&nopSeeker{}, &elf.FileHeader{Class: elf.ELFCLASS64, Data: elf.ELFDATA2LSB}); w.Err == nil {
		t.Error("writing from the middle of a file accepted")
	}
	if w := New(&nopSeeker{}, &elf.FileHeader{Class: elf.ELFCLASSNONE}); w.Err == nil {
		t.Error("unknown class accepted")
	}
}
