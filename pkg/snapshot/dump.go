package snapshot

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"os"

	"github.com/go-delve/wincore/pkg/elfwriter"
	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/version"
)

// elfMachine returns the machine and class of the core file for s. 32-bit
// snapshots are written as ELFCLASS32 files, like the cores of the Cygwin
// dumper.
func elfMachine(s *Snapshot) (elf.Machine, elf.Class, error) {
	switch s.Arch.Name() {
	case "i386":
		return elf.EM_386, elf.ELFCLASS32, nil
	case "amd64":
		return elf.EM_X86_64, elf.ELFCLASS64, nil
	case "arm64":
		return elf.EM_AARCH64, elf.ELFCLASS64, nil
	}
	return 0, 0, fmt.Errorf("can not dump snapshots of architecture %s", s.Arch)
}

// Dump writes s to out as an ELF core file. Every section of s is stored
// in a section note, threads in thread notes and memory in PT_LOAD
// segments. The file is closed when Dump returns.
func Dump(out elfwriter.WriteCloserSeeker, s *Snapshot) (err error) {
	defer func() {
		if ierr := recover(); ierr != nil {
			err = fmt.Errorf("internal error writing core file: %v", ierr)
		}
		cerr := out.Close()
		if err == nil && cerr != nil {
			err = fmt.Errorf("error writing output file: %v", cerr)
		}
	}()

	machine, class, err := elfMachine(s)
	if err != nil {
		return err
	}

	var fhdr elf.FileHeader
	fhdr.Class = class
	fhdr.Data = elf.ELFDATA2LSB
	fhdr.Version = elf.EV_CURRENT
	// There is no OSABI value for windows.
	fhdr.OSABI = 0xff
	fhdr.Type = elf.ET_CORE
	fhdr.Machine = machine

	w := elfwriter.New(out, &fhdr)
	if w.Err != nil {
		return w.Err
	}

	notes := []elfwriter.Note{{
		Type: elfwriter.WincoreHeaderNoteType,
		Name: elfwriter.WincoreNoteName,
		Data: []byte(fmt.Sprintf("%s%s\n%s\n%s%d\n%s%d\n",
			elfwriter.WincoreHeaderArchPrefix, s.Arch.Name(),
			version.WincoreVersion.String(),
			elfwriter.WincoreHeaderPidPrefix, s.Pid,
			elfwriter.WincoreHeaderExceptionThreadPrefix, s.ExceptionThread)),
	}}

	for _, th := range s.Threads() {
		desc := make([]byte, 16)
		binary.LittleEndian.PutUint64(desc, uint64(th.ID))
		binary.LittleEndian.PutUint64(desc[8:], th.TEB)
		notes = append(notes, elfwriter.Note{Type: elfwriter.WincoreThreadNoteType, Name: elfwriter.WincoreNoteName, Data: desc})
	}

	for _, sec := range s.Sections() {
		notes = append(notes, elfwriter.SectionNote(sec.Name, sec.Data))
	}

	s.MemoryRanges(func(addr uint64, data []byte) {
		if w.Err != nil {
			return
		}
		w.WriteLoad(addr, elf.PF_R, data)
	})
	if w.Err != nil {
		return fmt.Errorf("error writing to output file: %v", w.Err)
	}

	w.Progs = append(w.Progs, w.WriteNotes(notes))
	w.WriteProgramHeaders()
	if w.Err != nil {
		return fmt.Errorf("error writing to output file: %v", w.Err)
	}
	if logflags.Snapshot() {
		logflags.SnapshotLogger().Debugf("dumped %d notes and %d segments", len(notes), len(w.Progs)-1)
	}
	return nil
}

// DumpFile writes s to the file at path.
func DumpFile(path string, s *Snapshot) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	return Dump(f, s)
}
