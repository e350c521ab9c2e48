package version

import (
	"fmt"
	"io"
	"runtime"
	"runtime/debug"
	"sort"
	"strings"
	"text/tabwriter"
)

// Version identifies a wincore release.
type Version struct {
	Major, Minor, Patch string
	// Metadata is appended after a dash, for example "rc1".
	Metadata string
	// Build is the commit the binary was built from. The linker can set
	// it through main.Build, otherwise the VCS stamp is used.
	Build string
}

// unstamped marks a Build that was not set at link time.
const unstamped = "$Id$"

// WincoreVersion is the current version of wincore.
var WincoreVersion = Version{Major: "0", Minor: "3", Patch: "0", Build: unstamped}

// Number returns the dotted version without the build.
func (v Version) Number() string {
	n := v.Major + "." + v.Minor + "." + v.Patch
	if v.Metadata != "" {
		n += "-" + v.Metadata
	}
	return n
}

func (v Version) String() string {
	return fmt.Sprintf("Version: %s\nBuild: %s", v.Number(), v.build(debug.ReadBuildInfo))
}

func (v Version) build(read func() (*debug.BuildInfo, bool)) string {
	if !strings.HasPrefix(v.Build, unstamped) {
		return v.Build
	}
	if info, ok := read(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" {
				return s.Value
			}
		}
	}
	return v.Build
}

// BuildInfo returns the toolchain version followed by the main module and
// its dependencies, one per line, sorted by path.
func BuildInfo() string {
	var sb strings.Builder
	sb.WriteString(runtime.Version())
	sb.WriteByte('\n')
	info, ok := debug.ReadBuildInfo()
	if !ok {
		sb.WriteString("not built in module mode\n")
		return sb.String()
	}
	writeModules(&sb, info)
	return sb.String()
}

func writeModules(w io.Writer, info *debug.BuildInfo) {
	tw := tabwriter.NewWriter(w, 0, 8, 1, ' ', 0)
	fmt.Fprintf(tw, " mod\t%s\t%s\n", info.Main.Path, info.Main.Version)
	deps := append([]*debug.Module(nil), info.Deps...)
	sort.Slice(deps, func(i, j int) bool { return deps[i].Path < deps[j].Path })
	for _, d := range deps {
		if d.Replace != nil {
			fmt.Fprintf(tw, " dep\t%s\t%s\t=> %s %s\n", d.Path, d.Version, d.Replace.Path, d.Replace.Version)
			continue
		}
		fmt.Fprintf(tw, " dep\t%s\t%s\n", d.Path, d.Version)
	}
	tw.Flush()
}
