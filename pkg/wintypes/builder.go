package wintypes

import (
	"github.com/go-delve/wincore/pkg/winarch"
)

// Interner is notified once for every composite type the builder creates.
type Interner interface {
	Intern(t Type)
}

type builder struct {
	arch     winarch.Arch
	interner Interner
}

func newBuilder(arch winarch.Arch, interner Interner) *builder {
	return &builder{arch: arch, interner: interner}
}

func (b *builder) ptrSize() int64 { return int64(b.arch.PtrSize()) }

func (b *builder) intType(bits int64, name string) *IntType {
	return &IntType{CommonType: CommonType{ByteSize: bits / 8, Name: name}, Unsigned: true}
}

func (b *builder) ptrTo(name string, target Type) *PtrType {
	return &PtrType{CommonType: CommonType{ByteSize: b.ptrSize(), Name: name}, Type: target}
}

func (b *builder) voidPtr() *PtrType {
	return b.ptrTo("", &VoidType{CommonType{Name: "void"}})
}

// composite creates an empty struct or union. Callers append fields and
// then call done.
func (b *builder) composite(name, kind string) *StructType {
	return &StructType{StructName: name, Kind: kind}
}

func (b *builder) done(t *StructType) *StructType {
	if b.interner != nil {
		b.interner.Intern(t)
	}
	return t
}

// appendField appends a field to t immediately after the previous one.
func appendField(t *StructType, name string, ft Type) {
	appendFieldAligned(t, name, ft, 0)
}

// appendFieldAligned appends a field to t, moving it forward to a multiple
// of align if align is not zero. Union members are all placed at offset 0.
func appendFieldAligned(t *StructType, name string, ft Type, align int64) {
	f := &StructField{Name: name, Type: ft}
	if t.Kind == "union" {
		if ft.Size() > t.ByteSize {
			t.ByteSize = ft.Size()
		}
		t.Field = append(t.Field, f)
		return
	}
	if n := len(t.Field); n > 0 {
		prev := t.Field[n-1]
		f.ByteOffset = prev.ByteOffset + prev.Type.Size()
		if align != 0 {
			if left := f.ByteOffset % align; left != 0 {
				f.ByteOffset += align - left
			}
		}
	}
	t.Field = append(t.Field, f)
	t.ByteSize = f.ByteOffset + ft.Size()
}

// threadBlockType builds the pointer to the thread information block and
// every structure reachable from it.
func (b *builder) threadBlockType() *PtrType {
	ptrBits := int64(b.arch.PtrBits())
	dwordPtr := b.intType(ptrBits, "DWORD_PTR")
	dword32 := b.intType(32, "DWORD32")
	word := b.intType(16, "WORD")
	wchar := b.intType(16, "wchar_t")
	voidPtr := b.voidPtr()
	wcharPtr := b.ptrTo("", wchar)
	wcharList := &TypedefType{CommonType: CommonType{ByteSize: b.ptrSize(), Name: "wchar_t_list"}, Type: wcharPtr}

	list := b.composite("list", "struct")
	appendField(list, "forward_list", voidPtr)
	appendField(list, "backward_list", voidPtr)
	b.done(list)

	seh := b.composite("seh", "struct")
	sehPtr := b.ptrTo("", seh)
	appendField(seh, "next_seh", sehPtr)
	appendField(seh, "handler", b.ptrTo("", &FuncType{}))
	b.done(seh)

	pebLdr := b.composite("peb_ldr_data", "struct")
	appendField(pebLdr, "length", dword32)
	appendField(pebLdr, "initialized", dword32)
	appendField(pebLdr, "ss_handle", voidPtr)
	appendField(pebLdr, "in_load_order", list)
	appendField(pebLdr, "in_memory_order", list)
	appendField(pebLdr, "in_init_order", list)
	appendField(pebLdr, "entry_in_progress", voidPtr)
	b.done(pebLdr)

	uniStr := b.composite("unicode_string", "struct")
	appendField(uniStr, "length", word)
	appendField(uniStr, "maximum_length", word)
	appendFieldAligned(uniStr, "buffer", wcharPtr, wcharPtr.Size())
	b.done(uniStr)

	rupp := b.composite("rtl_user_process_parameters", "struct")
	appendField(rupp, "maximum_length", dword32)
	appendField(rupp, "length", dword32)
	appendField(rupp, "flags", dword32)
	appendField(rupp, "debug_flags", dword32)
	appendField(rupp, "console_handle", voidPtr)
	appendField(rupp, "console_flags", dword32)
	appendFieldAligned(rupp, "standard_input", voidPtr, voidPtr.Size())
	appendField(rupp, "standard_output", voidPtr)
	appendField(rupp, "standard_error", voidPtr)
	appendField(rupp, "current_directory", uniStr)
	appendField(rupp, "current_directory_handle", voidPtr)
	appendField(rupp, "dll_path", uniStr)
	appendField(rupp, "image_path_name", uniStr)
	appendField(rupp, "command_line", uniStr)
	appendField(rupp, "environment", wcharList)
	for _, name := range []string{"starting_x", "starting_y", "count_x", "count_y", "count_chars_x", "count_chars_y", "fill_attribute", "window_flags", "show_window_flags"} {
		appendField(rupp, name, dword32)
	}
	appendFieldAligned(rupp, "window_title", uniStr, voidPtr.Size())
	appendField(rupp, "desktop_info", uniStr)
	appendField(rupp, "shell_info", uniStr)
	appendField(rupp, "runtime_data", uniStr)
	b.done(rupp)

	peb := b.composite("peb", "struct")
	appendField(peb, "flags", dwordPtr)
	appendField(peb, "mutant", voidPtr)
	appendField(peb, "image_base_address", voidPtr)
	appendField(peb, "ldr", b.ptrTo("", pebLdr))
	appendField(peb, "process_parameters", b.ptrTo("", rupp))
	appendField(peb, "sub_system_data", voidPtr)
	appendField(peb, "process_heap", voidPtr)
	appendField(peb, "fast_peb_lock", voidPtr)
	b.done(peb)

	tib := b.composite("tib", "struct")
	appendField(tib, "current_seh", sehPtr)
	appendField(tib, "current_top_of_stack", voidPtr)
	appendField(tib, "current_bottom_of_stack", voidPtr)
	appendField(tib, "sub_system_tib", voidPtr)
	appendField(tib, "fiber_data", voidPtr)
	appendField(tib, "arbitrary_data_slot", voidPtr)
	appendField(tib, "linear_address_tib", voidPtr)
	appendField(tib, "environment_pointer", voidPtr)
	appendField(tib, "process_id", dwordPtr)
	appendField(tib, "thread_id", dwordPtr)
	appendField(tib, "active_rpc_handle", dwordPtr)
	appendField(tib, "thread_local_storage", voidPtr)
	appendField(tib, "process_environment_block", b.ptrTo("", peb))
	appendField(tib, "last_error_number", dwordPtr)
	b.done(tib)

	return b.ptrTo("", tib)
}
