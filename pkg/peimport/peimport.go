// Package peimport inspects the import directory of PE images.
package peimport

import (
	"bytes"
	"encoding/binary"
	"fmt"

	"github.com/go-delve/wincore/pkg/logflags"
)

// CygwinDLL is the name of the Cygwin runtime library.
const CygwinDLL = "cygwin1.dll"

const importEntrySize = 20

// Section is a section of a PE image.
type Section struct {
	// VA is the virtual address of the section with the image base
	// applied.
	VA   uint64
	Size uint64
	// Data returns the contents of the section.
	Data func() ([]byte, error)
}

// Binary is a PE image.
type Binary interface {
	// Name is used in warnings.
	Name() string
	ImageBase() uint64
	// ImportTableRVA returns the relative virtual address of the import
	// directory.
	ImportTableRVA() uint64
	Section(name string) (*Section, bool)
}

// Warner receives warnings visible to the user.
type Warner func(format string, args ...interface{})

func (w Warner) warn(format string, args ...interface{}) {
	if logflags.PEImport() {
		logflags.PEImportLogger().Debugf(format, args...)
	}
	if w != nil {
		w(format, args...)
	}
}

func hexString(v uint64) string { return fmt.Sprintf("%#x", v) }

// walkImports calls fn with the contents of .idata and the offset of the
// name of each entry of the import directory, until fn returns false.
func walkImports(b Binary, warn Warner, fn func(idata []byte, nameOff uint64) bool) {
	sect, ok := b.Section(".idata")
	if !ok {
		return
	}
	if sect.VA < b.ImageBase() {
		warn.warn("%s: .idata section's address (%s) is below the image base (%s).", b.Name(), hexString(sect.VA), hexString(b.ImageBase()))
		return
	}
	va := sect.VA - b.ImageBase()
	end := va + sect.Size
	importVA := b.ImportTableRVA()

	if importVA < va || importVA >= end {
		warn.warn("%s: import table's virtual address (%s) is outside .idata section's range [%s, %s].", b.Name(), hexString(importVA), hexString(va), hexString(end))
		return
	}

	data, err := sect.Data()
	if err != nil || uint64(len(data)) < sect.Size {
		warn.warn("%s: failed to get contents of .idata section.", b.Name())
		return
	}
	data = data[:sect.Size]

	zero := make([]byte, importEntrySize)
	for off := importVA - va; ; off += importEntrySize {
		if off+importEntrySize > uint64(len(data)) {
			warn.warn("%s: unexpected end of .idata section.", b.Name())
			return
		}
		entry := data[off : off+importEntrySize]
		if bytes.Equal(entry, zero) {
			return
		}
		nameVA := uint64(binary.LittleEndian.Uint32(entry[12:]))
		if nameVA < va || nameVA >= end {
			warn.warn("%s: name's virtual address (%s) is outside .idata section's range [%s, %s].", b.Name(), hexString(nameVA), hexString(va), hexString(end))
			return
		}
		if !fn(data, nameVA-va) {
			return
		}
	}
}

// DependsOn reports whether b imports symbols from the library called
// target. The comparison is case sensitive.
func DependsOn(b Binary, target string, warn Warner) bool {
	found := false
	walkImports(b, warn, func(idata []byte, nameOff uint64) bool {
		if nameOff+uint64(len(target))+1 <= uint64(len(idata)) {
			name := idata[nameOff : nameOff+uint64(len(target))+1]
			if string(name[:len(target)]) == target && name[len(target)] == 0 {
				found = true
				return false
			}
		}
		return true
	})
	if logflags.PEImport() {
		logflags.PEImportLogger().Debugf("%s depends on %s: %v", b.Name(), target, found)
	}
	return found
}

// Imports returns the names of the libraries b imports from.
func Imports(b Binary, warn Warner) []string {
	var r []string
	walkImports(b, warn, func(idata []byte, nameOff uint64) bool {
		name := idata[nameOff:]
		if i := bytes.IndexByte(name, 0); i >= 0 {
			name = name[:i]
		}
		r = append(r, string(name))
		return true
	})
	return r
}
