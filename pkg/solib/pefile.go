package solib

import (
	"sync"

	lru "github.com/hashicorp/golang-lru"

	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/peimport"
)

// DefaultTextOffset is the offset of the .text section assumed for
// modules whose file can not be read.
const DefaultTextOffset = 0x1000

// peTextOffset returns the relative virtual address of the .text section
// of the PE file at path.
func peTextOffset(path string) (uint64, error) {
	f, err := peimport.Open(path)
	if err != nil {
		return 0, err
	}
	defer f.Close()
	if off, ok := f.TextOffset(); ok {
		return off, nil
	}
	return DefaultTextOffset, nil
}

// peIdentity returns the SizeOfImage, TimeDateStamp and build id of the
// PE file at path. The build id is nil when the file has no RSDS record.
func peIdentity(path string) (size, timestamp uint32, buildID []byte, err error) {
	f, err := peimport.Open(path)
	if err != nil {
		return 0, 0, nil, err
	}
	defer f.Close()
	size, timestamp = f.Identity()
	buildID, _ = f.BuildID()
	return size, timestamp, buildID, nil
}

// TextOffsets remembers the .text offset of recently seen module files.
type TextOffsets struct {
	mu     sync.Mutex
	cache  *lru.Cache
	lookup func(path string) (uint64, error)
}

// NewTextOffsets returns a cache holding the .text offsets of up to size
// files.
func NewTextOffsets(size int) *TextOffsets {
	cache, err := lru.New(size)
	if err != nil {
		// Only returned for a non-positive size.
		cache, _ = lru.New(1)
	}
	return &TextOffsets{cache: cache, lookup: peTextOffset}
}

// Get returns the offset of the .text section of the module file at path,
// or DefaultTextOffset if the file can not be read.
func (t *TextOffsets) Get(path string) uint64 {
	t.mu.Lock()
	defer t.mu.Unlock()
	if v, ok := t.cache.Get(path); ok {
		return v.(uint64)
	}
	off, err := t.lookup(path)
	if err != nil {
		if logflags.Solib() {
			logflags.SolibLogger().Debugf("could not read .text offset of %s: %v", path, err)
		}
		off = DefaultTextOffset
	}
	t.cache.Add(path, off)
	return off
}

// Purge empties the cache.
func (t *TextOffsets) Purge() {
	t.mu.Lock()
	t.cache.Purge()
	t.mu.Unlock()
}
