package dap

import (
	"path"
	"strconv"
	"strings"
)

// min returns the lowest-valued integer
// between the two passed into it.
func min(i, j int) int {
	if i < j {
		return i
	}
	return j
}

// moduleBaseName returns the file name of a module path recorded in a
// snapshot, which uses Windows separators.
func moduleBaseName(name string) string {
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}

// parseMemoryReference parses the memoryReference attribute of a request.
func parseMemoryReference(ref string) (uint64, error) {
	return strconv.ParseUint(strings.TrimSpace(ref), 0, 64)
}
