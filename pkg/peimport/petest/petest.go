// Package petest builds small PE images for tests.
package petest

import (
	"bytes"
	"debug/pe"
	"encoding/binary"
	"os"
)

// Section is a section of the image.
type Section struct {
	Name           string
	VirtualAddress uint32
	Data           []byte
}

// Image describes a PE image.
type Image struct {
	Is64          bool
	ImageBase     uint64
	TimeDateStamp uint32
	SizeOfImage   uint32
	EntryRVA      uint32
	// ImportRVA is stored in the import data directory.
	ImportRVA uint32
	// DebugRVA and DebugSize are stored in the debug data directory.
	DebugRVA  uint32
	DebugSize uint32
	Sections  []Section
}

const (
	dosHeaderSize = 64
	fileAlign     = 0x200
)

// Bytes returns the contents of the PE file.
func (img *Image) Bytes() []byte {
	var buf bytes.Buffer
	le := binary.LittleEndian

	dos := make([]byte, dosHeaderSize)
	dos[0], dos[1] = 'M', 'Z'
	le.PutUint32(dos[0x3c:], dosHeaderSize)
	buf.Write(dos)
	buf.WriteString("PE\x00\x00")

	var dirs [16]pe.DataDirectory
	dirs[pe.IMAGE_DIRECTORY_ENTRY_IMPORT] = pe.DataDirectory{VirtualAddress: img.ImportRVA}
	dirs[pe.IMAGE_DIRECTORY_ENTRY_DEBUG] = pe.DataDirectory{VirtualAddress: img.DebugRVA, Size: img.DebugSize}

	fh := pe.FileHeader{
		NumberOfSections: uint16(len(img.Sections)),
		TimeDateStamp:    img.TimeDateStamp,
		Characteristics:  pe.IMAGE_FILE_EXECUTABLE_IMAGE,
	}
	var oh interface{}
	if img.Is64 {
		fh.Machine = pe.IMAGE_FILE_MACHINE_AMD64
		fh.SizeOfOptionalHeader = uint16(binary.Size(pe.OptionalHeader64{}))
		oh = &pe.OptionalHeader64{
			Magic:               0x20b,
			AddressOfEntryPoint: img.EntryRVA,
			ImageBase:           img.ImageBase,
			SectionAlignment:    0x1000,
			FileAlignment:       fileAlign,
			SizeOfImage:         img.SizeOfImage,
			NumberOfRvaAndSizes: 16,
			DataDirectory:       dirs,
		}
	} else {
		fh.Machine = pe.IMAGE_FILE_MACHINE_I386
		fh.SizeOfOptionalHeader = uint16(binary.Size(pe.OptionalHeader32{}))
		oh = &pe.OptionalHeader32{
			Magic:               0x10b,
			AddressOfEntryPoint: img.EntryRVA,
			ImageBase:           uint32(img.ImageBase),
			SectionAlignment:    0x1000,
			FileAlignment:       fileAlign,
			SizeOfImage:         img.SizeOfImage,
			NumberOfRvaAndSizes: 16,
			DataDirectory:       dirs,
		}
	}
	binary.Write(&buf, le, &fh)
	binary.Write(&buf, le, oh)

	headersEnd := buf.Len() + len(img.Sections)*binary.Size(pe.SectionHeader32{})
	off := uint32(align(headersEnd, fileAlign))
	for _, s := range img.Sections {
		var sh pe.SectionHeader32
		copy(sh.Name[:], s.Name)
		sh.VirtualSize = uint32(len(s.Data))
		sh.VirtualAddress = s.VirtualAddress
		sh.SizeOfRawData = uint32(len(s.Data))
		sh.PointerToRawData = off
		binary.Write(&buf, le, &sh)
		off += uint32(align(len(s.Data), fileAlign))
	}
	for _, s := range img.Sections {
		buf.Write(make([]byte, align(buf.Len(), fileAlign)-buf.Len()))
		buf.Write(s.Data)
	}
	buf.Write(make([]byte, align(buf.Len(), fileAlign)-buf.Len()))
	return buf.Bytes()
}

// WriteFile writes the image to path.
func (img *Image) WriteFile(path string) error {
	return os.WriteFile(path, img.Bytes(), 0600)
}

func align(n, a int) int {
	return (n + a - 1) &^ (a - 1)
}

// IData returns the contents of an .idata section loaded at rva whose
// import directory, at the start of the section, lists dlls. The names
// follow the terminating entry.
func IData(rva uint32, dlls ...string) []byte {
	dirSize := (len(dlls) + 1) * 20
	dir := make([]byte, dirSize)
	var names bytes.Buffer
	for i, dll := range dlls {
		entry := dir[i*20:]
		binary.LittleEndian.PutUint32(entry[12:], rva+uint32(dirSize+names.Len()))
		binary.LittleEndian.PutUint32(entry[16:], rva)
		names.WriteString(dll)
		names.WriteByte(0)
	}
	return append(dir, names.Bytes()...)
}

// DebugData returns the contents of a section loaded at rva holding a
// debug directory with a single CodeView entry, followed by an RSDS record
// carrying buildID as its GUID and age. The directory is 28 bytes long.
func DebugData(rva uint32, buildID []byte, pdb string) []byte {
	const entrySize = 28
	rec := make([]byte, 4, 24+len(pdb)+1)
	copy(rec, "RSDS")
	rec = append(rec, buildID...)
	rec = append(rec, pdb...)
	rec = append(rec, 0)

	entry := make([]byte, entrySize)
	binary.LittleEndian.PutUint32(entry[12:], 2)
	binary.LittleEndian.PutUint32(entry[16:], uint32(len(rec)))
	binary.LittleEndian.PutUint32(entry[20:], rva+entrySize)
	return append(entry, rec...)
}
