// Package wintypes builds the synthetic C type descriptors used to look at
// Windows runtime structures (thread information block, process
// environment block, EXCEPTION_RECORD) in a target's memory.
//
// The format mirrors the one used for DWARF types in this module: a Type
// interface implemented by one concrete structure per kind, each embedding
// CommonType.
package wintypes

import (
	"strconv"
	"strings"
)

// A Type conventionally represents a pointer to any of the
// specific Type structures (IntType, StructType, etc.).
type Type interface {
	Common() *CommonType
	String() string
	Size() int64
}

// A CommonType holds fields common to multiple types.
type CommonType struct {
	ByteSize int64  // size of value of this type, in bytes
	Name     string // name that can be used to refer to type
}

func (c *CommonType) Common() *CommonType { return c }

func (c *CommonType) Size() int64 { return c.ByteSize }

// An IntType represents an integer type.
type IntType struct {
	CommonType
	Unsigned bool
}

func (t *IntType) String() string {
	if t.Name != "" {
		return t.Name
	}
	if t.Unsigned {
		return "uint" + strconv.FormatInt(t.ByteSize*8, 10)
	}
	return "int" + strconv.FormatInt(t.ByteSize*8, 10)
}

// A VoidType represents the C void type.
type VoidType struct {
	CommonType
}

func (t *VoidType) String() string { return "void" }

// A FuncType represents a function type with unknown parameters.
type FuncType struct {
	CommonType
}

func (t *FuncType) String() string { return "func()" }

// A PtrType represents a pointer type.
type PtrType struct {
	CommonType
	Type Type
}

func (t *PtrType) String() string {
	if t.Name != "" {
		return t.Name
	}
	return t.Type.String() + " *"
}

// A TypedefType represents a named type.
type TypedefType struct {
	CommonType
	Type Type
}

func (t *TypedefType) String() string { return t.Name }

// An ArrayType represents a fixed size array type.
type ArrayType struct {
	CommonType
	Type  Type
	Count int64
}

func (t *ArrayType) String() string {
	return t.Type.String() + " [" + strconv.FormatInt(t.Count, 10) + "]"
}

// An EnumType represents an enumerated type.
// The only indication of its native integer type is its ByteSize
// (inside CommonType).
type EnumType struct {
	CommonType
	EnumName string
	Val      []*EnumValue
}

// An EnumValue represents a single enumeration value.
type EnumValue struct {
	Name string
	Val  uint64
}

func (t *EnumType) String() string {
	if t.EnumName != "" {
		return t.EnumName
	}
	return "enum"
}

// ValueName returns the name of the enumerator with value v.
func (t *EnumType) ValueName(v uint64) (string, bool) {
	for _, ev := range t.Val {
		if ev.Val == v {
			return ev.Name, true
		}
	}
	return "", false
}

// A StructType represents a struct or union type.
type StructType struct {
	CommonType
	StructName string
	Kind       string // "struct" or "union"
	Field      []*StructField
}

// A StructField represents a field in a struct or union type.
type StructField struct {
	Name       string
	Type       Type
	ByteOffset int64
}

func (t *StructType) String() string {
	if t.StructName != "" {
		return t.Kind + " " + t.StructName
	}
	return t.Defn()
}

// Defn returns the full definition of the structure.
func (t *StructType) Defn() string {
	var buf strings.Builder
	buf.WriteString(t.Kind)
	if t.StructName != "" {
		buf.WriteString(" " + t.StructName)
	}
	buf.WriteString(" {")
	for i, f := range t.Field {
		if i > 0 {
			buf.WriteString("; ")
		}
		buf.WriteString(f.Name + " " + f.Type.String())
		buf.WriteString("@" + strconv.FormatInt(f.ByteOffset, 10))
	}
	buf.WriteString("}")
	return buf.String()
}

// FieldByName returns the field called name. Anonymous members are
// searched recursively.
func (t *StructType) FieldByName(name string) (*StructField, bool) {
	for _, f := range t.Field {
		if f.Name == name {
			return f, true
		}
	}
	for _, f := range t.Field {
		if f.Name != "" {
			continue
		}
		if st, ok := f.Type.(*StructType); ok {
			if inner, ok := st.FieldByName(name); ok {
				return &StructField{Name: inner.Name, Type: inner.Type, ByteOffset: f.ByteOffset + inner.ByteOffset}, true
			}
		}
	}
	return nil, false
}

// Resolve strips typedefs from t.
func Resolve(t Type) Type {
	for {
		td, ok := t.(*TypedefType)
		if !ok {
			return t
		}
		t = td.Type
	}
}
