package peimport

import (
	"debug/pe"
	"encoding/binary"
)

// File is a PE file on disk.
type File struct {
	path string
	f    *pe.File
}

// Open opens the PE file at path.
func Open(path string) (*File, error) {
	f, err := pe.Open(path)
	if err != nil {
		return nil, err
	}
	return &File{path: path, f: f}, nil
}

// Close closes the file.
func (f *File) Close() error {
	return f.f.Close()
}

// Name implements Binary.
func (f *File) Name() string {
	return f.path
}

// ImageBase implements Binary.
func (f *File) ImageBase() uint64 {
	switch oh := f.f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return uint64(oh.ImageBase)
	case *pe.OptionalHeader64:
		return oh.ImageBase
	}
	return 0
}

// EntryRVA returns the relative address of the entry point.
func (f *File) EntryRVA() uint64 {
	switch oh := f.f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		return uint64(oh.AddressOfEntryPoint)
	case *pe.OptionalHeader64:
		return uint64(oh.AddressOfEntryPoint)
	}
	return 0
}

// Is64 reports whether f is a PE32+ image.
func (f *File) Is64() bool {
	_, ok := f.f.OptionalHeader.(*pe.OptionalHeader64)
	return ok
}

// Identity returns the SizeOfImage and TimeDateStamp of the image, used
// to match a file against a module recorded in a snapshot.
func (f *File) Identity() (size, timestamp uint32) {
	switch oh := f.f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		size = oh.SizeOfImage
	case *pe.OptionalHeader64:
		size = oh.SizeOfImage
	}
	return size, f.f.FileHeader.TimeDateStamp
}

func (f *File) dataDirectory(i uint32) (pe.DataDirectory, bool) {
	var n uint32
	var dirs [16]pe.DataDirectory
	switch oh := f.f.OptionalHeader.(type) {
	case *pe.OptionalHeader32:
		n, dirs = oh.NumberOfRvaAndSizes, oh.DataDirectory
	case *pe.OptionalHeader64:
		n, dirs = oh.NumberOfRvaAndSizes, oh.DataDirectory
	}
	if n <= i || i >= uint32(len(dirs)) {
		return pe.DataDirectory{}, false
	}
	return dirs[i], true
}

// ImportTableRVA implements Binary.
func (f *File) ImportTableRVA() uint64 {
	d, _ := f.dataDirectory(pe.IMAGE_DIRECTORY_ENTRY_IMPORT)
	return uint64(d.VirtualAddress)
}

// readRVA returns n bytes of the image starting at the relative address
// rva, or nil if they are not all inside one section.
func (f *File) readRVA(rva, n uint32) []byte {
	for _, s := range f.f.Sections {
		if rva < s.VirtualAddress || uint64(rva)+uint64(n) > uint64(s.VirtualAddress)+uint64(s.Size) {
			continue
		}
		data, err := s.Data()
		if err != nil || uint64(len(data)) < uint64(rva-s.VirtualAddress)+uint64(n) {
			return nil
		}
		off := rva - s.VirtualAddress
		return data[off : off+n]
	}
	return nil
}

const (
	debugEntrySize      = 28
	debugTypeCodeView   = 2
	cvSignatureRSDS     = 0x53445352
	cvRecordRSDSMinSize = 24
)

// BuildID returns the GUID and age of the RSDS CodeView record in the
// debug directory of the image, the same twenty bytes a minidump records
// for a loaded module.
func (f *File) BuildID() ([]byte, bool) {
	d, ok := f.dataDirectory(pe.IMAGE_DIRECTORY_ENTRY_DEBUG)
	if !ok || d.VirtualAddress == 0 || d.Size < debugEntrySize {
		return nil, false
	}
	dir := f.readRVA(d.VirtualAddress, d.Size-d.Size%debugEntrySize)
	le := binary.LittleEndian
	for ; len(dir) >= debugEntrySize; dir = dir[debugEntrySize:] {
		if le.Uint32(dir[12:]) != debugTypeCodeView {
			continue
		}
		size, rva := le.Uint32(dir[16:]), le.Uint32(dir[20:])
		if size < cvRecordRSDSMinSize {
			continue
		}
		rec := f.readRVA(rva, cvRecordRSDSMinSize)
		if rec == nil || le.Uint32(rec) != cvSignatureRSDS {
			continue
		}
		return append([]byte(nil), rec[4:24]...), true
	}
	return nil, false
}

// Section implements Binary. The address of the section includes the
// image base.
func (f *File) Section(name string) (*Section, bool) {
	s := f.f.Section(name)
	if s == nil {
		return nil, false
	}
	return &Section{
		VA:   f.ImageBase() + uint64(s.VirtualAddress),
		Size: uint64(s.Size),
		Data: s.Data,
	}, true
}

// TextOffset returns the relative address of the .text section.
func (f *File) TextOffset() (uint64, bool) {
	s := f.f.Section(".text")
	if s == nil {
		return 0, false
	}
	return uint64(s.VirtualAddress), true
}

// DependsOnFile opens the PE file at path and reports whether it imports
// from target.
func DependsOnFile(path, target string, warn Warner) (bool, error) {
	f, err := Open(path)
	if err != nil {
		return false, err
	}
	defer f.Close()
	return DependsOn(f, target, warn), nil
}
