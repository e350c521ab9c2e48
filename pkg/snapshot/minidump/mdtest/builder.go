// Package mdtest builds minidump files for tests.
package mdtest

import (
	"bytes"
	"encoding/binary"
	"unicode/utf16"
)

// Thread is a thread of the minidump.
type Thread struct {
	ID  uint32
	TEB uint64
}

// Module is a module of the minidump.
type Module struct {
	Base      uint64
	Size      uint32
	Timestamp uint32
	Name      string
	// Version is major, minor, build, revision. A zero version omits the
	// version resource.
	Version [4]uint16
	// BuildID is the GUID and age written to an RSDS CodeView record.
	BuildID []byte
}

// Range is a region of memory.
type Range struct {
	Addr uint64
	Data []byte
}

// Builder describes a minidump.
type Builder struct {
	Arch        uint16
	Pid         uint32
	Threads     []Thread
	Modules     []Module
	Exception   *Exception
	ThreadNames map[uint32]string
	Memory      []Range
}

// Exception is the exception stream.
type Exception struct {
	ThreadID uint32
	// Record is the 152 byte MINIDUMP_EXCEPTION.
	Record []byte
}

type writer struct {
	bytes.Buffer
}

func (w *writer) u16(v uint16) { binary.Write(w, binary.LittleEndian, v) }
func (w *writer) u32(v uint32) { binary.Write(w, binary.LittleEndian, v) }
func (w *writer) u64(v uint64) { binary.Write(w, binary.LittleEndian, v) }
func (w *writer) here() uint32 { return uint32(w.Len()) }

func (w *writer) str(s string) uint32 {
	off := w.here()
	u := utf16.Encode([]rune(s))
	w.u32(uint32(2 * len(u)))
	for _, c := range u {
		w.u16(c)
	}
	w.u16(0)
	return off
}

type dirent struct {
	typ, size, rva uint32
}

// Bytes returns the encoded minidump.
func (b *Builder) Bytes() []byte {
	const headerSize = 32
	const maxStreams = 8

	w := &writer{}
	w.u32(0x504d444d)
	w.u16(0xa793)
	w.u16(0)
	w.u32(0) // number of streams, patched
	w.u32(headerSize)
	w.u32(0)
	w.u32(0x5f000000)
	w.u64(0x2)
	w.Write(make([]byte, maxStreams*12))

	var dir []dirent
	stream := func(typ uint32, body func()) {
		start := w.here()
		body()
		dir = append(dir, dirent{typ, w.here() - start, start})
	}

	stream(7, func() {
		w.u16(b.Arch)
		w.Write(make([]byte, 54))
	})

	stream(15, func() {
		w.u32(24)
		w.u32(1)
		w.u32(b.Pid)
		w.Write(make([]byte, 12))
	})

	if len(b.Threads) > 0 {
		ctxOff := w.here()
		w.Write(make([]byte, 16))
		stream(3, func() {
			w.u32(uint32(len(b.Threads)))
			for _, th := range b.Threads {
				w.u32(th.ID)
				w.u32(0)
				w.u32(0)
				w.u32(0)
				w.u64(th.TEB)
				w.u64(0) // stack start
				w.u32(0) // stack size
				w.u32(0) // stack rva
				w.u32(16)
				w.u32(ctxOff)
			}
		})
	}

	if len(b.Modules) > 0 {
		names := make([]uint32, len(b.Modules))
		cvs := make([][2]uint32, len(b.Modules))
		for i, m := range b.Modules {
			names[i] = w.str(m.Name)
			if len(m.BuildID) == 20 {
				cvs[i][1] = w.here()
				w.u32(0x53445352)
				w.Write(m.BuildID)
				w.Write([]byte("module.pdb\x00"))
				cvs[i][0] = w.here() - cvs[i][1]
			}
		}
		stream(4, func() {
			w.u32(uint32(len(b.Modules)))
			for i, m := range b.Modules {
				w.u64(m.Base)
				w.u32(m.Size)
				w.u32(0)
				w.u32(m.Timestamp)
				w.u32(names[i])
				vi := make([]uint32, 13)
				if m.Version != [4]uint16{} {
					vi[0] = 0xfeef04bd
					vi[2] = uint32(m.Version[0])<<16 | uint32(m.Version[1])
					vi[3] = uint32(m.Version[2])<<16 | uint32(m.Version[3])
				}
				for _, v := range vi {
					w.u32(v)
				}
				w.u32(cvs[i][0])
				w.u32(cvs[i][1])
				w.u32(0)
				w.u32(0)
				w.u64(0)
				w.u64(0)
			}
		})
	}

	if b.Exception != nil {
		stream(6, func() {
			w.u32(b.Exception.ThreadID)
			w.u32(0)
			rec := make([]byte, 152)
			copy(rec, b.Exception.Record)
			w.Write(rec)
			w.u32(0)
			w.u32(0)
		})
	}

	if len(b.ThreadNames) > 0 {
		type entry struct {
			tid uint32
			rva uint32
		}
		var entries []entry
		for _, th := range b.Threads {
			if name, ok := b.ThreadNames[th.ID]; ok {
				entries = append(entries, entry{th.ID, w.str(name)})
			}
		}
		stream(24, func() {
			w.u32(uint32(len(entries)))
			for _, e := range entries {
				w.u32(e.tid)
				w.u64(uint64(e.rva))
			}
		})
	}

	if len(b.Memory) > 0 {
		stream(9, func() {
			w.u64(uint64(len(b.Memory)))
			base := w.here() + 8 + uint32(16*len(b.Memory))
			w.u64(uint64(base))
			for _, r := range b.Memory {
				w.u64(r.Addr)
				w.u64(uint64(len(r.Data)))
			}
			for _, r := range b.Memory {
				w.Write(r.Data)
			}
		})
	}

	out := w.Bytes()
	binary.LittleEndian.PutUint32(out[8:], uint32(len(dir)))
	for i, d := range dir {
		off := headerSize + 12*i
		binary.LittleEndian.PutUint32(out[off:], d.typ)
		binary.LittleEndian.PutUint32(out[off+4:], d.size)
		binary.LittleEndian.PutUint32(out[off+8:], d.rva)
	}
	return out
}
