package wintypes

import (
	"fmt"
	"strings"

	"github.com/go-delve/wincore/pkg/winarch"
)

// Format prints the value of type t stored in buf. Pointers are printed
// as addresses, structures are printed field by field.
func Format(t Type, arch winarch.Arch, buf []byte) string {
	var sb strings.Builder
	format(&sb, t, arch, buf)
	return sb.String()
}

func format(sb *strings.Builder, t Type, arch winarch.Arch, buf []byte) {
	if int64(len(buf)) < t.Size() {
		sb.WriteString("<unreadable>")
		return
	}
	switch t := Resolve(t).(type) {
	case *IntType:
		fmt.Fprintf(sb, "%d", arch.Uint(buf, int(t.ByteSize)))
	case *PtrType:
		fmt.Fprintf(sb, "%#x", arch.Ptr(buf))
	case *EnumType:
		v := arch.Uint(buf, int(t.ByteSize))
		if name, ok := t.ValueName(v); ok {
			sb.WriteString(name)
		} else {
			fmt.Fprintf(sb, "%d", v)
		}
	case *ArrayType:
		sb.WriteString("{")
		sz := t.Type.Size()
		for i := int64(0); i < t.Count; i++ {
			if i > 0 {
				sb.WriteString(", ")
			}
			format(sb, t.Type, arch, buf[i*sz:])
		}
		sb.WriteString("}")
	case *StructType:
		sb.WriteString("{")
		for i, f := range t.Field {
			if i > 0 {
				sb.WriteString(", ")
			}
			if f.Name != "" {
				sb.WriteString(f.Name + " = ")
			}
			format(sb, f.Type, arch, buf[f.ByteOffset:])
		}
		sb.WriteString("}")
	default:
		sb.WriteString("<void>")
	}
}
