// Package winarch describes the target architectures whose Windows
// metadata can be decoded: pointer width and byte order.
package winarch

import (
	"encoding/binary"
	"fmt"
)

// Arch is an immutable architecture descriptor. It is comparable and can
// be used directly as a map key.
type Arch struct {
	ptrBits   int
	bigEndian bool
	name      string
}

var (
	// I386 is the 32-bit little endian architecture.
	I386 = Arch{ptrBits: 32, name: "i386"}
	// AMD64 is the 64-bit little endian architecture.
	AMD64 = Arch{ptrBits: 64, name: "amd64"}
	// ARM64 is the 64-bit little endian ARM architecture.
	ARM64 = Arch{ptrBits: 64, name: "arm64"}
)

// New returns a descriptor for an arbitrary pointer width and byte order.
func New(ptrBits int, order binary.ByteOrder) (Arch, error) {
	if ptrBits != 32 && ptrBits != 64 {
		return Arch{}, fmt.Errorf("unsupported pointer width %d", ptrBits)
	}
	a := Arch{ptrBits: ptrBits, bigEndian: order == binary.BigEndian}
	a.name = fmt.Sprintf("ptr%d", ptrBits)
	if a.bigEndian {
		a.name += "be"
	}
	return a, nil
}

// ByName returns the architecture called name.
func ByName(name string) (Arch, bool) {
	switch name {
	case "i386", "386", "x86":
		return I386, true
	case "amd64", "x86_64", "x64":
		return AMD64, true
	case "arm64", "aarch64":
		return ARM64, true
	}
	return Arch{}, false
}

// Name returns the name of the architecture.
func (a Arch) Name() string { return a.name }

// PtrBits returns the pointer width in bits.
func (a Arch) PtrBits() int { return a.ptrBits }

// PtrSize returns the pointer width in bytes.
func (a Arch) PtrSize() int { return a.ptrBits / 8 }

// Is64 returns true for 64-bit architectures.
func (a Arch) Is64() bool { return a.ptrBits == 64 }

// ByteOrder returns the byte order of the architecture.
func (a Arch) ByteOrder() binary.ByteOrder {
	if a.bigEndian {
		return binary.BigEndian
	}
	return binary.LittleEndian
}

// Valid returns false for the zero Arch.
func (a Arch) Valid() bool { return a.ptrBits != 0 }

// Key returns an opaque key identifying the architecture in caches.
func (a Arch) Key() Arch { return a }

func (a Arch) String() string { return a.name }

// Uint reads an unsigned integer of size bytes (1, 2, 4 or 8) from buf.
func (a Arch) Uint(buf []byte, size int) uint64 {
	bo := a.ByteOrder()
	switch size {
	case 1:
		return uint64(buf[0])
	case 2:
		return uint64(bo.Uint16(buf))
	case 4:
		return uint64(bo.Uint32(buf))
	case 8:
		return bo.Uint64(buf)
	}
	panic(fmt.Errorf("unsupported integer size %d", size))
}

// Ptr reads a pointer sized unsigned integer from buf.
func (a Arch) Ptr(buf []byte) uint64 {
	return a.Uint(buf, a.PtrSize())
}

// PutPtr writes a pointer sized value to buf.
func (a Arch) PutPtr(buf []byte, v uint64) {
	bo := a.ByteOrder()
	if a.Is64() {
		bo.PutUint64(buf, v)
		return
	}
	bo.PutUint32(buf, uint32(v))
}

// Phex formats v as zero padded hexadecimal with 2*size digits and no
// prefix.
func Phex(v uint64, size int) string {
	switch size {
	case 1:
		return fmt.Sprintf("%02x", uint8(v))
	case 2:
		return fmt.Sprintf("%04x", uint16(v))
	case 4:
		return fmt.Sprintf("%08x", uint32(v))
	}
	return fmt.Sprintf("%016x", v)
}

// Paddress formats an address the way addresses are printed to the user.
func (a Arch) Paddress(addr uint64) string {
	if !a.Is64() {
		addr = uint64(uint32(addr))
	}
	return fmt.Sprintf("%#x", addr)
}
