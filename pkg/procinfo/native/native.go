// Package native gives access to the memory and threads of a live
// Windows process.
package native

import (
	"errors"
	"runtime"

	"github.com/go-delve/wincore/pkg/winarch"
)

// ErrUnsupported is returned by Attach on systems other than Windows.
var ErrUnsupported = errors.New("attaching to a live process is only supported on windows")

// HostArch returns the architecture of the processes this package can
// attach to.
func HostArch() winarch.Arch {
	if a, ok := winarch.ByName(runtime.GOARCH); ok {
		return a
	}
	return winarch.AMD64
}
