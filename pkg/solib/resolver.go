package solib

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-delve/wincore/pkg/logflags"
)

// PathResolver resolves module names by rewriting them with Substitute and
// then searching the directories of SymbolPath for a file with the same
// base name. When the size or timestamp of the module is known, a
// candidate file must match them. When the build id is known, a candidate
// carrying an RSDS record must carry the same one.
type PathResolver struct {
	SymbolPath []string
	Substitute func(string) string
}

func windowsBase(name string) string {
	if i := strings.LastIndexAny(name, `\/`); i >= 0 {
		return name[i+1:]
	}
	return name
}

func isFile(path string) bool {
	fi, err := os.Stat(path)
	return err == nil && fi.Mode().IsRegular()
}

// Resolve implements SymbolResolver.
func (r *PathResolver) Resolve(name string, size, timestamp uint32, buildID []byte) (string, bool) {
	var candidates []string
	if r.Substitute != nil {
		if p := r.Substitute(name); p != name {
			candidates = append(candidates, p)
		}
	}
	candidates = append(candidates, name)
	base := windowsBase(name)
	for _, dir := range r.SymbolPath {
		candidates = append(candidates, filepath.Join(dir, base))
		if lower := strings.ToLower(base); lower != base {
			candidates = append(candidates, filepath.Join(dir, lower))
		}
	}
	for _, p := range candidates {
		if !isFile(p) {
			continue
		}
		if !r.matches(p, size, timestamp, buildID) {
			if logflags.Solib() {
				logflags.SolibLogger().Debugf("%s does not match size %#x timestamp %#x build id %x", p, size, timestamp, buildID)
			}
			continue
		}
		return p, true
	}
	return "", false
}

func (r *PathResolver) matches(path string, size, timestamp uint32, buildID []byte) bool {
	if size == 0 && timestamp == 0 && buildID == nil {
		return true
	}
	fsize, ftimestamp, fbuildID, err := peIdentity(path)
	if err != nil {
		return false
	}
	if buildID != nil && fbuildID != nil && !bytes.Equal(buildID, fbuildID) {
		return false
	}
	return (size == 0 || size == fsize) && (timestamp == 0 || timestamp == ftimestamp)
}
