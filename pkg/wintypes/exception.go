package wintypes

import (
	"fmt"
	"strings"

	"github.com/go-delve/wincore/pkg/winarch"
)

// ExceptionCode is the code of a Windows structured exception.
type ExceptionCode uint32

// Exception codes with a name in the ExceptionCode enum.
const (
	FatalAppExit            ExceptionCode = 0x40000015
	Wx86SingleStep          ExceptionCode = 0x4000001E
	Wx86Breakpoint          ExceptionCode = 0x4000001F
	DbgControlC             ExceptionCode = 0x40010005
	DbgControlBreak         ExceptionCode = 0x40010008
	DatatypeMisalignment    ExceptionCode = 0x80000002
	Breakpoint              ExceptionCode = 0x80000003
	SingleStep              ExceptionCode = 0x80000004
	AccessViolationCode     ExceptionCode = 0xC0000005
	InPageError             ExceptionCode = 0xC0000006
	IllegalInstruction      ExceptionCode = 0xC000001D
	NoncontinuableException ExceptionCode = 0xC0000025
	InvalidDisposition      ExceptionCode = 0xC0000026
	ArrayBoundsExceeded     ExceptionCode = 0xC000008C
	FloatDenormalOperand    ExceptionCode = 0xC000008D
	FloatDivideByZero       ExceptionCode = 0xC000008E
	FloatInexactResult      ExceptionCode = 0xC000008F
	FloatInvalidOperation   ExceptionCode = 0xC0000090
	FloatOverflow           ExceptionCode = 0xC0000091
	FloatStackCheck         ExceptionCode = 0xC0000092
	FloatUnderflow          ExceptionCode = 0xC0000093
	IntegerDivideByZero     ExceptionCode = 0xC0000094
	IntegerOverflow         ExceptionCode = 0xC0000095
	PrivInstruction         ExceptionCode = 0xC0000096
	StackOverflow           ExceptionCode = 0xC00000FD
	FastFail                ExceptionCode = 0xC0000409
)

var exceptionValues = []*EnumValue{
	{Name: "FATAL_APP_EXIT", Val: uint64(FatalAppExit)},
	{Name: "WX86_SINGLE_STEP", Val: uint64(Wx86SingleStep)},
	{Name: "WX86_BREAKPOINT", Val: uint64(Wx86Breakpoint)},
	{Name: "DBG_CONTROL_C", Val: uint64(DbgControlC)},
	{Name: "DBG_CONTROL_BREAK", Val: uint64(DbgControlBreak)},
	{Name: "DATATYPE_MISALIGNMENT", Val: uint64(DatatypeMisalignment)},
	{Name: "BREAKPOINT", Val: uint64(Breakpoint)},
	{Name: "SINGLE_STEP", Val: uint64(SingleStep)},
	{Name: "ACCESS_VIOLATION", Val: uint64(AccessViolationCode)},
	{Name: "IN_PAGE_ERROR", Val: uint64(InPageError)},
	{Name: "ILLEGAL_INSTRUCTION", Val: uint64(IllegalInstruction)},
	{Name: "NONCONTINUABLE_EXCEPTION", Val: uint64(NoncontinuableException)},
	{Name: "INVALID_DISPOSITION", Val: uint64(InvalidDisposition)},
	{Name: "ARRAY_BOUNDS_EXCEEDED", Val: uint64(ArrayBoundsExceeded)},
	{Name: "FLOAT_DENORMAL_OPERAND", Val: uint64(FloatDenormalOperand)},
	{Name: "FLOAT_DIVIDE_BY_ZERO", Val: uint64(FloatDivideByZero)},
	{Name: "FLOAT_INEXACT_RESULT", Val: uint64(FloatInexactResult)},
	{Name: "FLOAT_INVALID_OPERATION", Val: uint64(FloatInvalidOperation)},
	{Name: "FLOAT_OVERFLOW", Val: uint64(FloatOverflow)},
	{Name: "FLOAT_STACK_CHECK", Val: uint64(FloatStackCheck)},
	{Name: "FLOAT_UNDERFLOW", Val: uint64(FloatUnderflow)},
	{Name: "INTEGER_DIVIDE_BY_ZERO", Val: uint64(IntegerDivideByZero)},
	{Name: "INTEGER_OVERFLOW", Val: uint64(IntegerOverflow)},
	{Name: "PRIV_INSTRUCTION", Val: uint64(PrivInstruction)},
	{Name: "STACK_OVERFLOW", Val: uint64(StackOverflow)},
	{Name: "FAST_FAIL", Val: uint64(FastFail)},
}

func (c ExceptionCode) String() string {
	for _, ev := range exceptionValues {
		if ev.Val == uint64(c) {
			return ev.Name
		}
	}
	return fmt.Sprintf("%#x", uint32(c))
}

// ViolationType describes the kind of memory access that caused an access
// violation.
type ViolationType uint64

const (
	ReadAccessViolation  ViolationType = 0
	WriteAccessViolation ViolationType = 1
	DEPViolation         ViolationType = 8
)

var violationValues = []*EnumValue{
	{Name: "READ_ACCESS_VIOLATION", Val: uint64(ReadAccessViolation)},
	{Name: "WRITE_ACCESS_VIOLATION", Val: uint64(WriteAccessViolation)},
	{Name: "DATA_EXECUTION_PREVENTION_VIOLATION", Val: uint64(DEPViolation)},
}

func (v ViolationType) String() string {
	for _, ev := range violationValues {
		if ev.Val == uint64(v) {
			return ev.Name
		}
	}
	return fmt.Sprintf("%d", uint64(v))
}

// MaxExceptionParameters is the length of ExceptionInformation.
const MaxExceptionParameters = 15

// Wire sizes of EXCEPTION_RECORD.
const (
	ExceptionRecordSize32 = 80
	ExceptionRecordSize64 = 152
)

// ExceptionRecordSize returns the size of EXCEPTION_RECORD on arch.
func ExceptionRecordSize(arch winarch.Arch) int {
	if arch.Is64() {
		return ExceptionRecordSize64
	}
	return ExceptionRecordSize32
}

// exceptionType builds the EXCEPTION_RECORD structure.
func (b *builder) exceptionType() *StructType {
	ptrBits := int64(b.arch.PtrBits())
	dword := b.intType(32, "DWORD")
	pvoid := b.ptrTo("PVOID", &VoidType{CommonType{Name: "void"}})
	ulongPtr := b.intType(ptrBits, "ULONG_PTR")

	codeEnum := &EnumType{CommonType: CommonType{ByteSize: 4, Name: "ExceptionCode"}, EnumName: "ExceptionCode", Val: exceptionValues}
	violationEnum := &EnumType{CommonType: CommonType{ByteSize: b.ptrSize(), Name: "ViolationType"}, EnumName: "ViolationType", Val: violationValues}

	violation := b.composite("", "struct")
	appendField(violation, "Type", violationEnum)
	appendField(violation, "Address", pvoid)
	b.done(violation)

	info := &ArrayType{CommonType: CommonType{ByteSize: MaxExceptionParameters * ulongPtr.Size()}, Type: ulongPtr, Count: MaxExceptionParameters}

	para := b.composite("", "union")
	appendField(para, "ExceptionInformation", info)
	appendField(para, "AccessViolationInformation", violation)
	b.done(para)

	rec := b.composite("EXCEPTION_RECORD", "struct")
	appendField(rec, "ExceptionCode", codeEnum)
	appendField(rec, "ExceptionFlags", dword)
	appendField(rec, "ExceptionRecord", b.ptrTo("", rec))
	appendField(rec, "ExceptionAddress", pvoid)
	appendField(rec, "NumberParameters", dword)
	appendFieldAligned(rec, "", para, ulongPtr.Size())
	return b.done(rec)
}

// Parameters is the payload of an exception record. It is either
// RawParameters or AccessViolation.
type Parameters interface {
	isParameters()
}

// RawParameters is the ExceptionInformation array, truncated to
// NumberParameters.
type RawParameters []uint64

// AccessViolation is the interpretation of the parameters of an
// ACCESS_VIOLATION exception.
type AccessViolation struct {
	Type    ViolationType
	Address uint64
}

func (RawParameters) isParameters()   {}
func (AccessViolation) isParameters() {}

// ExceptionRecord is a decoded EXCEPTION_RECORD.
type ExceptionRecord struct {
	Code             ExceptionCode
	Flags            uint32
	Record           uint64
	Address          uint64
	NumberParameters uint32
	Parameters       Parameters
}

// DecodeExceptionRecord decodes an EXCEPTION_RECORD laid out for arch.
func DecodeExceptionRecord(arch winarch.Arch, buf []byte) (*ExceptionRecord, error) {
	rec := newBuilder(arch, nil).exceptionType()
	if int64(len(buf)) < rec.ByteSize {
		return nil, fmt.Errorf("exception record too short: %d bytes, need %d", len(buf), rec.ByteSize)
	}
	field := func(name string) uint64 {
		f, _ := rec.FieldByName(name)
		return arch.Uint(buf[f.ByteOffset:], int(f.Type.Size()))
	}
	r := &ExceptionRecord{
		Code:             ExceptionCode(field("ExceptionCode")),
		Flags:            uint32(field("ExceptionFlags")),
		Record:           field("ExceptionRecord"),
		Address:          field("ExceptionAddress"),
		NumberParameters: uint32(field("NumberParameters")),
	}
	n := int(r.NumberParameters)
	if n > MaxExceptionParameters {
		n = MaxExceptionParameters
	}
	if r.Code == AccessViolationCode && n >= 2 {
		av, _ := rec.FieldByName("AccessViolationInformation")
		st := av.Type.(*StructType)
		r.Parameters = AccessViolation{
			Type:    ViolationType(arch.Uint(buf[av.ByteOffset+st.Field[0].ByteOffset:], arch.PtrSize())),
			Address: arch.Ptr(buf[av.ByteOffset+st.Field[1].ByteOffset:]),
		}
		return r, nil
	}
	info, _ := rec.FieldByName("ExceptionInformation")
	params := make(RawParameters, n)
	for i := range params {
		params[i] = arch.Ptr(buf[info.ByteOffset+int64(i*arch.PtrSize()):])
	}
	r.Parameters = params
	return r, nil
}

func (r *ExceptionRecord) String() string {
	var buf strings.Builder
	fmt.Fprintf(&buf, "{ExceptionCode = %s, ExceptionFlags = %d, ExceptionRecord = %#x, ExceptionAddress = %#x, NumberParameters = %d, ", r.Code, r.Flags, r.Record, r.Address, r.NumberParameters)
	switch p := r.Parameters.(type) {
	case AccessViolation:
		fmt.Fprintf(&buf, "AccessViolationInformation = {Type = %s, Address = %#x}}", p.Type, p.Address)
	case RawParameters:
		buf.WriteString("ExceptionInformation = {")
		for i, v := range p {
			if i > 0 {
				buf.WriteString(", ")
			}
			fmt.Fprintf(&buf, "%#x", v)
		}
		buf.WriteString("}}")
	default:
		buf.WriteString("}")
	}
	return buf.String()
}

// Description returns a short human readable description of the
// exception.
func (r *ExceptionRecord) Description() string {
	if av, ok := r.Parameters.(AccessViolation); ok {
		verb := "reading"
		switch av.Type {
		case WriteAccessViolation:
			verb = "writing"
		case DEPViolation:
			verb = "executing"
		}
		return fmt.Sprintf("%s at %#x %s address %#x", r.Code, r.Address, verb, av.Address)
	}
	return fmt.Sprintf("%s at %#x", r.Code, r.Address)
}
