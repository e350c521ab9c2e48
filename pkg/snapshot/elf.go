package snapshot

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
	"io/ioutil"
	"strconv"
	"strings"

	"github.com/go-delve/wincore/pkg/elfwriter"
	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/winarch"
)

type note struct {
	Type elf.NType
	Name string
	Desc []byte
}

func elfArch(f *elf.File) (winarch.Arch, error) {
	switch f.Machine {
	case elf.EM_386:
		return winarch.I386, nil
	case elf.EM_X86_64:
		return winarch.AMD64, nil
	case elf.EM_AARCH64:
		return winarch.ARM64, nil
	}
	return winarch.Arch{}, fmt.Errorf("unsupported ELF machine %s", f.Machine)
}

// readNotes reads the notes contained in a PT_NOTE segment.
func readNotes(prog *elf.Prog, order binary.ByteOrder) ([]note, error) {
	buf, err := ioutil.ReadAll(prog.Open())
	if err != nil {
		return nil, err
	}
	var notes []note
	align4 := func(n uint32) uint64 { return (uint64(n) + 3) &^ 3 }
	for len(buf) > 0 {
		if len(buf) < 12 {
			return notes, io.ErrUnexpectedEOF
		}
		namesz := order.Uint32(buf[0:])
		descsz := order.Uint32(buf[4:])
		typ := order.Uint32(buf[8:])
		buf = buf[12:]
		if align4(namesz) > uint64(len(buf)) {
			return notes, io.ErrUnexpectedEOF
		}
		name := string(bytes.TrimRight(buf[:namesz], "\x00"))
		buf = buf[align4(namesz):]
		if uint64(descsz) > uint64(len(buf)) {
			return notes, io.ErrUnexpectedEOF
		}
		desc := buf[:descsz]
		if align4(descsz) <= uint64(len(buf)) {
			buf = buf[align4(descsz):]
		} else {
			buf = buf[descsz:]
		}
		notes = append(notes, note{Type: elf.NType(typ), Name: name, Desc: desc})
	}
	return notes, nil
}

// FromELF converts an ELF core file to a snapshot. Notes written by the
// Cygwin dumper and by Dump are understood, other notes are ignored.
func FromELF(f *elf.File) (*Snapshot, error) {
	if f.Type != elf.ET_CORE {
		return nil, fmt.Errorf("not a core file: %s", f.Type)
	}
	arch, err := elfArch(f)
	if err != nil {
		return nil, err
	}
	s := New(arch, 0)
	s.Kind = KindELF

	var notes []note
	for _, prog := range f.Progs {
		switch prog.Type {
		case elf.PT_NOTE:
			n, err := readNotes(prog, f.ByteOrder)
			notes = append(notes, n...)
			if err != nil {
				return nil, fmt.Errorf("reading notes: %v", err)
			}
		case elf.PT_LOAD:
			if prog.Filesz == 0 {
				continue
			}
			data := make([]byte, prog.Filesz)
			if _, err := prog.ReadAt(data, 0); err != nil && err != io.EOF {
				return nil, fmt.Errorf("reading segment at %#x: %v", prog.Vaddr, err)
			}
			s.AddMemory(prog.Vaddr, data)
		}
	}

	// The header note, if present, overrides the architecture derived from
	// the file header.
	for _, n := range notes {
		if n.Name == elfwriter.WincoreNoteName && n.Type == elfwriter.WincoreHeaderNoteType {
			if err := s.readWincoreHeader(n.Desc); err != nil {
				return nil, err
			}
		}
	}

	for _, n := range notes {
		switch {
		case n.Name == elfwriter.Win32NoteName && n.Type == elfwriter.Win32PStatusNoteType:
			s.readWin32PStatus(n.Desc, f.ByteOrder)
		case n.Name == elfwriter.WincoreNoteName && n.Type == elfwriter.WincoreSectionNoteType:
			name, data, err := elfwriter.ParseSectionNote(n.Desc)
			if err != nil {
				logflags.SnapshotLogger().Warnf("skipping section note: %v", err)
				continue
			}
			s.AddSection(name, data)
		case n.Name == elfwriter.WincoreNoteName && n.Type == elfwriter.WincoreThreadNoteType:
			if len(n.Desc) < 16 {
				logflags.SnapshotLogger().Warnf("skipping short thread note (%d bytes)", len(n.Desc))
				continue
			}
			s.AddThread(Thread{
				ID:  int(binary.LittleEndian.Uint64(n.Desc)),
				TEB: binary.LittleEndian.Uint64(n.Desc[8:]),
			})
		}
	}

	if logflags.Snapshot() {
		logflags.SnapshotLogger().Debugf("elf core: %s pid %d, %d notes, %d threads, %d sections", s.Arch, s.Pid, len(notes), len(s.threads), len(s.sections))
	}
	return s, nil
}

func (s *Snapshot) readWincoreHeader(desc []byte) error {
	for _, line := range strings.Split(string(desc), "\n") {
		switch {
		case strings.HasPrefix(line, elfwriter.WincoreHeaderArchPrefix):
			name := line[len(elfwriter.WincoreHeaderArchPrefix):]
			arch, ok := winarch.ByName(name)
			if !ok {
				return fmt.Errorf("unknown architecture %q in header note", name)
			}
			s.Arch = arch
		case strings.HasPrefix(line, elfwriter.WincoreHeaderPidPrefix):
			pid, err := strconv.Atoi(line[len(elfwriter.WincoreHeaderPidPrefix):])
			if err != nil {
				return fmt.Errorf("malformed pid in header note: %v", err)
			}
			s.Pid = pid
		case strings.HasPrefix(line, elfwriter.WincoreHeaderExceptionThreadPrefix):
			tid, err := strconv.Atoi(line[len(elfwriter.WincoreHeaderExceptionThreadPrefix):])
			if err != nil {
				return fmt.Errorf("malformed exception thread in header note: %v", err)
			}
			s.ExceptionThread = tid
		}
	}
	return nil
}

// readWin32PStatus decodes a NT_WIN32PSTATUS note written by the Cygwin
// dumper. Module records are kept as .module/<addr> sections holding the
// whole descriptor.
func (s *Snapshot) readWin32PStatus(desc []byte, order binary.ByteOrder) {
	if len(desc) < 4 {
		return
	}
	switch order.Uint32(desc) {
	case elfwriter.Win32NoteInfoProcess:
		if len(desc) >= 8 {
			s.Pid = int(order.Uint32(desc[4:]))
		}
	case elfwriter.Win32NoteInfoThread:
		if len(desc) >= 8 {
			s.AddThread(Thread{ID: int(order.Uint32(desc[4:]))})
		}
	case elfwriter.Win32NoteInfoModule:
		if len(desc) >= 8 {
			s.AddSection(fmt.Sprintf("%s/%08x", ModulePrefix, order.Uint32(desc[4:])), desc)
		}
	case elfwriter.Win32NoteInfoModule64:
		if len(desc) >= 12 {
			s.AddSection(fmt.Sprintf("%s/%016x", ModulePrefix, order.Uint64(desc[4:])), desc)
		}
	}
}

func openELF(path string) (*Snapshot, error) {
	f, err := elf.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return FromELF(f)
}
