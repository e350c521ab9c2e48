package solib

import (
	"strings"
	"sync"

	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/snapshot"
	"github.com/go-delve/wincore/pkg/winarch"
)

var xmlEscaper = strings.NewReplacer(
	"'", "&apos;",
	`"`, "&quot;",
	"&", "&amp;",
	"<", "&lt;",
	">", "&gt;",
)

// LibraryList formats mods as a library list. The address of each library
// is the address of its .text section, found with offsets.
func LibraryList(mods []Module, arch winarch.Arch, offsets *TextOffsets) string {
	var sb strings.Builder
	sb.WriteString("<library-list>\n")
	for _, m := range mods {
		sb.WriteString(`<library name="`)
		sb.WriteString(xmlEscaper.Replace(m.Name))
		sb.WriteString(`"><segment address="`)
		sb.WriteString(arch.Paddress(m.LoadAddress + offsets.Get(m.Name)))
		sb.WriteString(`"/></library>`)
	}
	sb.WriteString("</library-list>\n")
	return sb.String()
}

// Cache holds the library list of the current snapshot. It is built on
// first use and kept until Invalidate is called.
type Cache struct {
	Resolver SymbolResolver
	Warn     Warner

	offsets *TextOffsets

	mu    sync.Mutex
	text  string
	valid bool
}

// NewCache returns an empty cache. textOffsetCacheSize is the number of
// module files whose .text offset is remembered across invalidations.
func NewCache(r SymbolResolver, warn Warner, textOffsetCacheSize int) *Cache {
	return &Cache{Resolver: r, Warn: warn, offsets: NewTextOffsets(textOffsetCacheSize)}
}

// Text returns the library list of c, building it if needed.
func (lc *Cache) Text(c snapshot.Container, arch winarch.Arch) string {
	lc.mu.Lock()
	defer lc.mu.Unlock()
	if !lc.valid {
		mods := Enumerate(c, arch, lc.Resolver, lc.Warn)
		lc.text = LibraryList(mods, arch, lc.offsets)
		lc.valid = true
		if logflags.Solib() {
			logflags.SolibLogger().Debugf("library list rebuilt: %d modules", len(mods))
		}
	}
	return lc.text
}

// XferLibraries copies the window [offset, offset+len(buf)) of the library
// list into buf and returns the number of bytes copied, zero past the end.
func (lc *Cache) XferLibraries(c snapshot.Container, arch winarch.Arch, buf []byte, offset uint64) int {
	text := lc.Text(c, arch)
	if offset >= uint64(len(text)) {
		return 0
	}
	return copy(buf, text[offset:])
}

// Invalidate discards the cached library list.
func (lc *Cache) Invalidate() {
	lc.mu.Lock()
	lc.text = ""
	lc.valid = false
	lc.mu.Unlock()
}
