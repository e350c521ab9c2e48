package starbind

import (
	"fmt"
	"reflect"
	"sort"

	"go.starlark.net/starlark"
)

// toStarlark converts a value returned by the session. Structs and slices
// are wrapped rather than copied, their fields and elements are converted
// when a script reaches them.
func (env *Env) toStarlark(v interface{}) starlark.Value {
	switch v := v.(type) {
	case nil:
		return starlark.None
	case starlark.Value:
		return v
	case []byte:
		return starlark.Bytes(v)
	case error:
		return starlark.String(v.Error())
	case map[string]string:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		d := starlark.NewDict(len(v))
		for _, k := range keys {
			d.SetKey(starlark.String(k), starlark.String(v[k]))
		}
		return d
	}

	rv := reflect.ValueOf(v)
	if s, ok := v.(fmt.Stringer); ok && !wrapped(rv.Kind()) {
		return starlark.String(s.String())
	}
	switch rv.Kind() {
	case reflect.Bool:
		return starlark.Bool(rv.Bool())
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int())
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint())
	case reflect.String:
		return starlark.String(rv.String())
	case reflect.Ptr:
		if rv.IsNil() {
			return starlark.None
		}
		if rv.Elem().Kind() == reflect.Struct {
			return goStruct{rv.Elem(), env}
		}
		return env.toStarlark(rv.Elem().Interface())
	case reflect.Struct:
		return goStruct{rv, env}
	case reflect.Slice:
		return goSlice{rv, env}
	}
	return starlark.String(fmt.Sprint(v))
}

func wrapped(k reflect.Kind) bool {
	return k == reflect.Struct || k == reflect.Ptr || k == reflect.Slice
}

// goSlice is a Go slice seen from starlark as an indexable sequence.
type goSlice struct {
	v   reflect.Value
	env *Env
}

var (
	_ starlark.Indexable = goSlice{}
	_ starlark.Sequence  = goSlice{}
)

func (s goSlice) Freeze()               {}
func (s goSlice) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", s.Type()) }
func (s goSlice) String() string        { return fmt.Sprint(s.v.Interface()) }
func (s goSlice) Truth() starlark.Bool  { return s.v.Len() > 0 }
func (s goSlice) Type() string          { return s.v.Type().String() }
func (s goSlice) Len() int              { return s.v.Len() }

func (s goSlice) Index(i int) starlark.Value {
	return s.env.toStarlark(s.v.Index(i).Interface())
}

func (s goSlice) Iterate() starlark.Iterator {
	return &goSliceIterator{s: s}
}

type goSliceIterator struct {
	s goSlice
	i int
}

func (it *goSliceIterator) Next(p *starlark.Value) bool {
	if it.i >= it.s.Len() {
		return false
	}
	*p = it.s.Index(it.i)
	it.i++
	return true
}

func (it *goSliceIterator) Done() {}

// goStruct exposes the exported fields of a Go struct as attributes.
type goStruct struct {
	v   reflect.Value
	env *Env
}

var _ starlark.HasAttrs = goStruct{}

func (s goStruct) Freeze()               {}
func (s goStruct) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", s.Type()) }
func (s goStruct) Truth() starlark.Bool  { return true }
func (s goStruct) Type() string          { return s.v.Type().String() }

func (s goStruct) String() string {
	if st, ok := s.v.Interface().(fmt.Stringer); ok {
		return st.String()
	}
	return fmt.Sprintf("%+v", s.v.Interface())
}

func (s goStruct) Attr(name string) (starlark.Value, error) {
	f, ok := s.v.Type().FieldByName(name)
	if !ok || !f.IsExported() {
		return starlark.None, fmt.Errorf("no field named %q in %s", name, s.v.Type())
	}
	return s.env.toStarlark(s.v.FieldByIndex(f.Index).Interface()), nil
}

func (s goStruct) AttrNames() []string {
	typ := s.v.Type()
	var names []string
	for i := 0; i < typ.NumField(); i++ {
		if f := typ.Field(i); f.IsExported() {
			names = append(names, f.Name)
		}
	}
	return names
}

// fromStarlark stores val into the variable dst points to, converting it
// to dst's type. A None value leaves dst unchanged. Name is used in
// errors.
func fromStarlark(val starlark.Value, dst interface{}, name string) error {
	return assign(val, reflect.ValueOf(dst), name)
}

func assign(val starlark.Value, dst reflect.Value, path string) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("error setting argument %q to %s: %v", path, val, r)
		}
	}()
	if val == starlark.None {
		return nil
	}
	for dst.Kind() == reflect.Ptr {
		if dst.IsNil() {
			dst.Set(reflect.New(dst.Type().Elem()))
		}
		dst = dst.Elem()
	}
	mismatch := func(why string) error {
		msg := fmt.Sprintf("error setting argument %q: can not convert %s to %s", path, val, dst.Type())
		if why != "" {
			msg += ": " + why
		}
		return fmt.Errorf("%s", msg)
	}

	switch dst.Kind() {
	case reflect.Bool:
		b, ok := val.(starlark.Bool)
		if !ok {
			return mismatch("")
		}
		dst.SetBool(bool(b))
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		n, ok := val.(starlark.Int)
		if !ok {
			return mismatch("")
		}
		i, exact := n.Int64()
		if !exact || dst.OverflowInt(i) {
			return mismatch("out of range")
		}
		dst.SetInt(i)
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		n, ok := val.(starlark.Int)
		if !ok {
			return mismatch("")
		}
		u, exact := n.Uint64()
		if !exact || dst.OverflowUint(u) {
			return mismatch("out of range")
		}
		dst.SetUint(u)
	case reflect.String:
		s, ok := starlark.AsString(val)
		if !ok {
			return mismatch("")
		}
		dst.SetString(s)
	case reflect.Slice:
		if b, ok := val.(starlark.Bytes); ok && dst.Type().Elem().Kind() == reflect.Uint8 {
			dst.SetBytes([]byte(b))
			return nil
		}
		return assignSlice(val, dst, path, mismatch)
	case reflect.Struct:
		return assignStruct(val, dst, path, mismatch)
	default:
		return mismatch("")
	}
	return nil
}

func assignSlice(val starlark.Value, dst reflect.Value, path string, mismatch func(string) error) error {
	iter := starlark.Iterate(val)
	if iter == nil {
		return mismatch("")
	}
	defer iter.Done()
	n := starlark.Len(val)
	if n < 0 {
		n = 0
	}
	r := reflect.MakeSlice(dst.Type(), 0, n)
	var x starlark.Value
	for i := 0; iter.Next(&x); i++ {
		elem := reflect.New(dst.Type().Elem()).Elem()
		if err := assign(x, elem, fmt.Sprintf("%s[%d]", path, i)); err != nil {
			return err
		}
		r = reflect.Append(r, elem)
	}
	dst.Set(r)
	return nil
}

// assignStruct accepts either a struct that came from the session or a
// dictionary whose keys are field names.
func assignStruct(val starlark.Value, dst reflect.Value, path string, mismatch func(string) error) error {
	if gs, ok := val.(goStruct); ok && gs.v.Type() == dst.Type() {
		dst.Set(gs.v)
		return nil
	}
	d, ok := val.(*starlark.Dict)
	if !ok {
		return mismatch("")
	}
	for _, item := range d.Items() {
		key, ok := item[0].(starlark.String)
		if !ok {
			return mismatch(fmt.Sprintf("non-string key %s", item[0]))
		}
		field := dst.FieldByName(string(key))
		if !field.IsValid() {
			return mismatch("unknown field " + string(key))
		}
		if err := assign(item[1], field, path+"."+string(key)); err != nil {
			return err
		}
	}
	return nil
}
