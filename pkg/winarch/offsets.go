package winarch

// Offsets locates the fields of the thread information block, process
// environment block and process parameters used to answer process queries.
type Offsets struct {
	PtrBytes int

	// PEB is the offset of process_environment_block in the TIB.
	PEB uint64
	// ProcessParams is the offset of process_parameters in the PEB.
	ProcessParams uint64
	// ImageBase is the offset of image_base_address in the PEB.
	ImageBase uint64

	// Offsets of the unicode strings in rtl_user_process_parameters.
	Cmdline uint64
	Cwd     uint64
	Exe     uint64
}

var (
	offsets32 = Offsets{PtrBytes: 4, PEB: 48, ProcessParams: 16, ImageBase: 8, Cmdline: 64, Cwd: 36, Exe: 56}
	offsets64 = Offsets{PtrBytes: 8, PEB: 96, ProcessParams: 32, ImageBase: 16, Cmdline: 112, Cwd: 56, Exe: 96}
)

// Offsets returns the offset table for a.
func (a Arch) Offsets() Offsets {
	if a.Is64() {
		return offsets64
	}
	return offsets32
}

// TIB layout constants.
const (
	// TIBFields is the number of named pointer sized slots at the start of
	// the thread information block.
	TIBFields = 14
	// FullTIBSize is the size of the thread information block page.
	FullTIBSize = 0x1000
)

// TIBSize returns the size of the named part of the thread information
// block.
func (a Arch) TIBSize() int {
	return TIBFields * a.PtrSize()
}
