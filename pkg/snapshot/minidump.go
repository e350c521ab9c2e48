package snapshot

import (
	"encoding/binary"
	"fmt"
	"strconv"

	"github.com/go-delve/wincore/pkg/logflags"
	"github.com/go-delve/wincore/pkg/procinfo"
	"github.com/go-delve/wincore/pkg/snapshot/minidump"
	"github.com/go-delve/wincore/pkg/winarch"
)

func minidumpArch(a minidump.Arch) (winarch.Arch, error) {
	switch a {
	case minidump.CpuArchitectureX86:
		return winarch.I386, nil
	case minidump.CpuArchitectureAMD64:
		return winarch.AMD64, nil
	case minidump.CpuArchitectureARM64:
		return winarch.ARM64, nil
	}
	return winarch.Arch{}, fmt.Errorf("unsupported minidump architecture %s", a)
}

// CoreModuleName returns the name of the .coremodule/ section describing
// a module loaded at base.
func CoreModuleName(base uint64, size, timestamp uint32, version string) string {
	name := fmt.Sprintf("%s%x;s=%x;t=%x", CoreModulePrefix, base, size, timestamp)
	if version != "" {
		name += ";v=" + version
	}
	return name
}

// FromMinidump converts a parsed minidump to a snapshot.
func FromMinidump(mdmp *minidump.Minidump) (*Snapshot, error) {
	arch, err := minidumpArch(mdmp.Arch)
	if err != nil {
		return nil, err
	}
	s := New(arch, int(mdmp.Pid))
	s.Kind = KindMinidump

	for i := range mdmp.Modules {
		m := &mdmp.Modules[i]
		s.AddSection(CoreModuleName(m.BaseOfImage, m.SizeOfImage, m.TimeDateStamp, m.Version()), procinfo.EncodeUTF16(arch, m.Name))
		if id, ok := m.BuildID(); ok {
			s.AddSection(fmt.Sprintf("%s%x", CoreBuildIDPrefix, m.BaseOfImage), id)
		}
	}
	if len(mdmp.Modules) > 0 {
		base := make([]byte, 8)
		binary.LittleEndian.PutUint64(base, mdmp.Modules[0].BaseOfImage)
		s.AddSection(CoreBase, base)
	}

	if mdmp.Exception != nil {
		s.AddSection(CoreException, mdmp.Exception.Record)
		s.ExceptionThread = int(mdmp.Exception.ThreadID)
	}

	for _, th := range mdmp.Threads {
		s.AddThread(Thread{ID: int(th.ID), TEB: th.TEB})
		if name, ok := mdmp.ThreadNames[th.ID]; ok && len(name) > 0 {
			s.AddSection(CoreThreadPrefix+strconv.FormatUint(uint64(th.ID), 10), name)
		}
	}

	for i := range mdmp.MemoryRanges {
		m := &mdmp.MemoryRanges[i]
		s.AddMemory(m.Addr, m.Data)
	}

	if logflags.Snapshot() {
		logflags.SnapshotLogger().Debugf("minidump: %s pid %d, %d threads, %d modules, %d memory ranges", arch, s.Pid, len(mdmp.Threads), len(mdmp.Modules), len(mdmp.MemoryRanges))
	}
	return s, nil
}

func openMinidump(path string) (*Snapshot, error) {
	var logfn func(string, ...interface{})
	if logflags.Snapshot() {
		logfn = logflags.SnapshotLogger().Debugf
	}
	mdmp, err := minidump.Open(path, logfn)
	if err != nil {
		return nil, err
	}
	return FromMinidump(mdmp)
}
