// Package solib lists the modules loaded in a Windows process snapshot
// and produces the library list text consumed by the shared library
// machinery.
package solib

import (
	"bytes"
	"encoding/binary"
	"strconv"
	"strings"
	"unicode/utf16"

	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/winarch"
)

// Kinds of legacy module records.
const (
	noteInfoModule   = 3
	noteInfoModule64 = 4
)

const buildIDSize = 20

// Module is a module loaded in the snapshot.
type Module struct {
	Name        string
	LoadAddress uint64
}

// SymbolResolver locates the file of a module named in a snapshot.
type SymbolResolver interface {
	// Resolve returns the path of the module called name. Size, timestamp
	// and build id are zero or nil when unknown.
	Resolve(name string, size, timestamp uint32, buildID []byte) (string, bool)
}

// Warner receives warnings visible to the user.
type Warner func(format string, args ...interface{})

func (w Warner) warn(format string, args ...interface{}) {
	if logflags.Solib() {
		logflags.SolibLogger().Debugf(format, args...)
	}
	if w != nil {
		w(format, args...)
	}
}

// coreModule is the decoded name of a .coremodule/ section.
type coreModule struct {
	base      uint64
	size      uint32
	timestamp uint32
	version   string
	hasVer    bool
}

// parseCoreModuleName parses
//
//	.coremodule/<hexaddr>[;s=<hex size>][;t=<hex timestamp>][;v=<version>]
//
// Like strtoul, malformed numbers parse as their longest valid prefix.
func parseCoreModuleName(name string) coreModule {
	var m coreModule
	rest := strings.TrimPrefix(name, snapshot.CoreModulePrefix)
	m.base = hexPrefix(rest)
	if i := strings.Index(rest, ";s="); i >= 0 {
		m.size = uint32(hexPrefix(rest[i+3:]))
	}
	if i := strings.Index(rest, ";t="); i >= 0 {
		m.timestamp = uint32(hexPrefix(rest[i+3:]))
	}
	if i := strings.Index(rest, ";v="); i >= 0 {
		m.version = rest[i+3:]
		m.hasVer = true
	}
	return m
}

func hexPrefix(s string) uint64 {
	s = strings.TrimPrefix(strings.TrimPrefix(s, "0x"), "0X")
	end := 0
	for end < len(s) && strings.IndexByte("0123456789abcdefABCDEF", s[end]) >= 0 {
		end++
	}
	v, err := strconv.ParseUint(s[:end], 16, 64)
	if err != nil {
		return 0
	}
	return v
}

// decodeWideName decodes the UTF-16 module name stored in a .coremodule/
// section, stopping at the first NUL character.
func decodeWideName(arch winarch.Arch, buf []byte) string {
	bo := arch.ByteOrder()
	u := make([]uint16, 0, len(buf)/2)
	for i := 0; i+1 < len(buf); i += 2 {
		c := bo.Uint16(buf[i:])
		if c == 0 {
			break
		}
		u = append(u, c)
	}
	return string(utf16.Decode(u))
}

// moduleName returns the name of the module described by a .coremodule/
// section, substituted by the resolver if it finds one.
func moduleName(c snapshot.Container, arch winarch.Arch, sectName string, data []byte, r SymbolResolver, warn Warner) string {
	name := decodeWideName(arch, data)
	if r == nil {
		return name
	}
	m := parseCoreModuleName(sectName)
	var buildID []byte
	if id, ok := c.SectionBytes(snapshot.CoreBuildIDPrefix + strconv.FormatUint(m.base, 16)); ok && len(id) == buildIDSize {
		buildID = id
	}
	if path, ok := r.Resolve(name, m.size, m.timestamp, buildID); ok {
		return path
	}
	if m.hasVer {
		warn.warn("Can't find '%s' version %s.", name, m.version)
	} else {
		warn.warn("Can't find '%s'.", name)
	}
	return name
}

// legacyModule decodes a .module section written from a NT_WIN32PSTATUS
// note: a u32 kind followed by the base address, the size of the name and
// the name.
func legacyModule(arch winarch.Arch, data []byte) (Module, bool) {
	if len(data) < 4 {
		return Module{}, false
	}
	bo := arch.ByteOrder()
	var base uint64
	var nameOff, nameSize uint64
	switch bo.Uint32(data) {
	case noteInfoModule:
		nameOff = 12
		if uint64(len(data)) < nameOff {
			return Module{}, false
		}
		base = uint64(bo.Uint32(data[4:]))
		nameSize = uint64(bo.Uint32(data[8:]))
	case noteInfoModule64:
		nameOff = 16
		if uint64(len(data)) < nameOff {
			return Module{}, false
		}
		base = bo.Uint64(data[4:])
		nameSize = uint64(bo.Uint32(data[12:]))
	default:
		return Module{}, false
	}
	if nameOff+nameSize > uint64(len(data)) {
		return Module{}, false
	}
	name := data[nameOff : nameOff+nameSize]
	if i := bytes.IndexByte(name, 0); i >= 0 {
		name = name[:i]
	}
	return Module{Name: string(name), LoadAddress: base}, true
}

// Enumerate returns the modules recorded in c, in section order. The first
// module found is the main executable and is not returned.
func Enumerate(c snapshot.Container, arch winarch.Arch, r SymbolResolver, warn Warner) []Module {
	var mods []Module
	count := 0
	for _, sect := range c.Sections() {
		switch {
		case strings.HasPrefix(sect.Name, snapshot.CoreModulePrefix):
			if count != 0 {
				mods = append(mods, Module{
					Name:        moduleName(c, arch, sect.Name, sect.Data, r, warn),
					LoadAddress: parseCoreModuleName(sect.Name).base,
				})
			}
			count++
		case strings.HasPrefix(sect.Name, snapshot.ModulePrefix):
			m, ok := legacyModule(arch, sect.Data)
			if !ok {
				if logflags.Solib() {
					logflags.SolibLogger().Debugf("skipping malformed module section %s (%d bytes)", sect.Name, len(sect.Data))
				}
				continue
			}
			if count != 0 {
				mods = append(mods, m)
			}
			count++
		}
	}
	return mods
}

// LoadExecutable returns the name of the main executable, recorded in the
// first .coremodule/ section of c.
func LoadExecutable(c snapshot.Container, arch winarch.Arch, r SymbolResolver, warn Warner) (string, bool) {
	for _, sect := range c.Sections() {
		if strings.HasPrefix(sect.Name, snapshot.CoreModulePrefix) {
			return moduleName(c, arch, sect.Name, sect.Data, r, warn), true
		}
	}
	return "", false
}

// ExecBase returns the load address of the main executable recorded in
// the .corebase section.
func ExecBase(c snapshot.Container) (uint64, bool) {
	buf, ok := c.SectionBytes(snapshot.CoreBase)
	if !ok || len(buf) < 8 {
		return 0, false
	}
	return binary.LittleEndian.Uint64(buf), true
}
