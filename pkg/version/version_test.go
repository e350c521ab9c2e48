package version

import (
	"runtime/debug"
	"strings"
	"testing"
)

func TestVersionString(t *testing.T) {
	v := Version{Major: "1", Minor: "2", Patch: "3", Metadata: "rc1", Build: "abc"}
	s := v.String()
	if !strings.HasPrefix(s, "Version: 1.2.3-rc1\n") {
		t.Errorf("unexpected version %q", s)
	}
	if !strings.HasSuffix(s, "Build: abc") {
		t.Errorf("build not kept: %q", s)
	}
}

func TestBuildFromVCSStamp(t *testing.T) {
	v := Version{Major: "0", Minor: "1", Patch: "0", Build: unstamped}
	read := func() (*debug.BuildInfo, bool) {
		return &debug.BuildInfo{Settings: []debug.BuildSetting{{Key: "vcs", Value: "git"}, {Key: "vcs.revision", Value: "deadbeef"}}}, true
	}
	if got := v.build(read); got != "deadbeef" {
		t.Errorf("build = %q", got)
	}
	none := func() (*debug.BuildInfo, bool) { return nil, false }
	if got := v.build(none); got != unstamped {
		t.Errorf("build without info = %q", got)
	}
}

func TestWriteModulesSorted(t *testing.T) {
	info := &debug.BuildInfo{
		Main: debug.Module{Path: "github.com/go-delve/wincore", Version: "(devel)"},
		Deps: []*debug.Module{
			{Path: "go.starlark.net", Version: "v0.0.1"},
			{Path: "github.com/spf13/cobra", Version: "v1.7.0", Replace: &debug.Module{Path: "../cobra"}},
		},
	}
	var sb strings.Builder
	writeModules(&sb, info)
	lines := strings.Split(strings.TrimSpace(sb.String()), "\n")
	if len(lines) != 3 {
		t.Fatalf("got %d lines: %q", len(lines), sb.String())
	}
	if !strings.Contains(lines[1], "github.com/spf13/cobra") || !strings.Contains(lines[1], "=> ../cobra") {
		t.Errorf("replace line wrong: %q", lines[1])
	}
	if !strings.Contains(lines[2], "go.starlark.net") {
		t.Errorf("deps not sorted: %q", lines[2])
	}
}
