// Package elfwriter streams ELF core files to disk. Segments are written
// as they are produced and the program header table goes at the end, so
// a snapshot never has to be held in memory twice. Section headers are
// not written.
package elfwriter

import (
	"debug/elf"
	"encoding/binary"
	"fmt"
	"io"
)

// WriteCloserSeeker is the union of io.Writer, io.Closer and io.Seeker.
type WriteCloserSeeker interface {
	io.Writer
	io.Seeker
	io.Closer
}

// Note is an entry of a PT_NOTE segment.
type Note struct {
	Type elf.NType
	Name string
	Data []byte
}

// layout holds the sizes and header field offsets that differ between
// ELFCLASS32 and ELFCLASS64.
type layout struct {
	ehsize, phentsize uint16
	phoffAt, phnumAt  int64
	word              int
}

var layouts = map[elf.Class]layout{
	elf.ELFCLASS32: {ehsize: 52, phentsize: 32, phoffAt: 28, phnumAt: 44, word: 4},
	elf.ELFCLASS64: {ehsize: 64, phentsize: 56, phoffAt: 32, phnumAt: 56, word: 8},
}

// Writer writes one ELF file. The first write error is kept in Err, later
// writes are skipped.
type Writer struct {
	Err   error
	Progs []*elf.ProgHeader

	w     WriteCloserSeeker
	order binary.ByteOrder
	class elf.Class
	l     layout
	off   int64
}

// New writes the file header described by fhdr to w, which must be
// positioned at its start.
func New(w WriteCloserSeeker, fhdr *elf.FileHeader) *Writer {
	r := &Writer{w: w, class: fhdr.Class}
	l, ok := layouts[fhdr.Class]
	if !ok {
		r.Err = fmt.Errorf("unsupported ELF class %v", fhdr.Class)
		return r
	}
	r.l = l
	switch fhdr.Data {
	case elf.ELFDATA2LSB:
		r.order = binary.LittleEndian
	case elf.ELFDATA2MSB:
		r.order = binary.BigEndian
	default:
		r.Err = fmt.Errorf("unsupported ELF data encoding %v", fhdr.Data)
		return r
	}
	if off, err := w.Seek(0, io.SeekCurrent); err != nil || off != 0 {
		r.Err = fmt.Errorf("ELF file must be written from its start (offset %d): %v", off, err)
		return r
	}

	ident := [elf.EI_NIDENT]byte{0x7f, 'E', 'L', 'F', byte(fhdr.Class), byte(fhdr.Data), byte(fhdr.Version), byte(fhdr.OSABI), fhdr.ABIVersion}
	r.Write(ident[:])
	r.put(2, uint64(fhdr.Type))
	r.put(2, uint64(fhdr.Machine))
	r.put(4, uint64(fhdr.Version))
	r.put(l.word, 0) // e_entry
	r.put(l.word, 0) // e_phoff, patched by WriteProgramHeaders
	r.put(l.word, 0) // e_shoff
	r.put(4, 0)      // e_flags
	r.put(2, uint64(l.ehsize))
	r.put(2, uint64(l.phentsize))
	r.put(2, 0) // e_phnum, patched by WriteProgramHeaders
	r.put(2, 0) // e_shentsize
	r.put(2, 0) // e_shnum
	r.put(2, uint64(elf.SHN_UNDEF))
	if r.Err == nil && r.off != int64(l.ehsize) {
		r.Err = fmt.Errorf("internal error, ELF header is %d bytes", r.off)
	}
	return r
}

// WriteNotes writes notes at the current location, each aligned to four
// bytes, and returns the PT_NOTE header describing them. It returns nil if
// there are no notes.
func (w *Writer) WriteNotes(notes []Note) *elf.ProgHeader {
	if len(notes) == 0 {
		return nil
	}
	w.Align(4)
	h := &elf.ProgHeader{Type: elf.PT_NOTE, Align: 4, Off: uint64(w.off)}
	for _, n := range notes {
		w.put(4, uint64(len(n.Name)))
		w.put(4, uint64(len(n.Data)))
		w.put(4, uint64(n.Type))
		w.Write([]byte(n.Name))
		w.Align(4)
		w.Write(n.Data)
		w.Align(4)
	}
	h.Filesz = uint64(w.off) - h.Off
	return h
}

// WriteLoad writes data at the current location and records a PT_LOAD
// program header mapping it at vaddr.
func (w *Writer) WriteLoad(vaddr uint64, flags elf.ProgFlag, data []byte) {
	w.Progs = append(w.Progs, &elf.ProgHeader{
		Type:   elf.PT_LOAD,
		Flags:  flags,
		Off:    uint64(w.off),
		Vaddr:  vaddr,
		Filesz: uint64(len(data)),
		Memsz:  uint64(len(data)),
	})
	w.Write(data)
}

// WriteProgramHeaders appends the program header table for Progs and
// points the file header at it. Nil entries of Progs are skipped.
func (w *Writer) WriteProgramHeaders() {
	phoff := w.off
	var progs []*elf.ProgHeader
	for _, p := range w.Progs {
		if p != nil {
			progs = append(progs, p)
		}
	}
	for _, p := range progs {
		if w.class == elf.ELFCLASS32 {
			w.put(4, uint64(p.Type))
			w.put(4, p.Off)
			w.put(4, p.Vaddr)
			w.put(4, p.Paddr)
			w.put(4, p.Filesz)
			w.put(4, p.Memsz)
			w.put(4, uint64(p.Flags))
			w.put(4, p.Align)
			continue
		}
		w.put(4, uint64(p.Type))
		w.put(4, uint64(p.Flags))
		w.put(8, p.Off)
		w.put(8, p.Vaddr)
		w.put(8, p.Paddr)
		w.put(8, p.Filesz)
		w.put(8, p.Memsz)
		w.put(8, p.Align)
	}
	w.patch(w.l.phoffAt, w.l.word, uint64(phoff))
	w.patch(w.l.phnumAt, 2, uint64(len(progs)))
}

// Here returns the current offset from the start of the file.
func (w *Writer) Here() int64 {
	return w.off
}

// Align pads the file with zeroes up to a multiple of align.
func (w *Writer) Align(align int64) {
	if pad := (align - w.off%align) % align; pad > 0 {
		w.Write(make([]byte, pad))
	}
}

func (w *Writer) Write(buf []byte) {
	if w.Err != nil {
		return
	}
	n, err := w.w.Write(buf)
	w.off += int64(n)
	w.Err = err
}

func (w *Writer) put(size int, v uint64) {
	var buf [8]byte
	switch size {
	case 2:
		w.order.PutUint16(buf[:], uint16(v))
	case 4:
		w.order.PutUint32(buf[:], uint32(v))
	case 8:
		w.order.PutUint64(buf[:], v)
	}
	w.Write(buf[:size])
}

// patch overwrites a field of the file header and returns to the end of
// the file.
func (w *Writer) patch(at int64, size int, v uint64) {
	if w.Err != nil {
		return
	}
	end := w.off
	if _, w.Err = w.w.Seek(at, io.SeekStart); w.Err != nil {
		return
	}
	w.off = at
	w.put(size, v)
	if w.Err == nil {
		_, w.Err = w.w.Seek(end, io.SeekStart)
	}
	w.off = end
}
