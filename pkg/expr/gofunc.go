package expr

import (
	"fmt"
	"reflect"
	"runtime"
	"strings"

	"github.com/reusee/starlarkutil"
	"go.starlark.net/starlark"
)

var errorType = reflect.TypeFor[error]()

// goFunc wraps a Go function as a Starlark builtin.
//
// Arguments are converted with FromValue, so records and dicts arrive as
// map[string]any and numbers as int64 or float64, then converted to the
// parameter type. Parameters typed as starlark.Value (or a concrete
// Starlark type) receive the argument unchanged. Arguments beyond the
// declared parameters are dropped, which lets a func() serve as an event
// handler. A trailing error result becomes the call's error.
func goFunc(fn reflect.Value) *starlark.Builtin {
	typ := fn.Type()
	return starlark.NewBuiltin(funcName(fn), func(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
		if len(kwargs) > 0 {
			return nil, fmt.Errorf("%s: unexpected keyword argument %s", b.Name(), kwargs[0][0])
		}
		in, err := goArgs(typ, args)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", b.Name(), err)
		}
		return goResults(typ, fn.Call(in))
	})
}

func funcName(fn reflect.Value) string {
	f := runtime.FuncForPC(fn.Pointer())
	if f == nil {
		return "func"
	}
	name := f.Name()
	if i := strings.LastIndexByte(name, '/'); i >= 0 {
		name = name[i+1:]
	}
	return name
}

func goArgs(typ reflect.Type, args starlark.Tuple) ([]reflect.Value, error) {
	fixed := typ.NumIn()
	if typ.IsVariadic() {
		fixed--
	}
	if len(args) < fixed {
		return nil, fmt.Errorf("got %d arguments, want %d", len(args), fixed)
	}
	in := make([]reflect.Value, 0, max(fixed, len(args)))
	for i := range fixed {
		v, err := goArg(args[i], typ.In(i))
		if err != nil {
			return nil, fmt.Errorf("argument %d: %w", i+1, err)
		}
		in = append(in, v)
	}
	if typ.IsVariadic() {
		elem := typ.In(fixed).Elem()
		for i := fixed; i < len(args); i++ {
			v, err := goArg(args[i], elem)
			if err != nil {
				return nil, fmt.Errorf("argument %d: %w", i+1, err)
			}
			in = append(in, v)
		}
	}
	return in, nil
}

func goArg(v starlark.Value, t reflect.Type) (reflect.Value, error) {
	if vt := reflect.TypeOf(v); vt.AssignableTo(t) && (t.Kind() != reflect.Interface || t.NumMethod() > 0) {
		return reflect.ValueOf(v), nil
	}
	g := FromValue(v)
	if g == nil {
		return reflect.Zero(t), nil
	}
	gv := reflect.ValueOf(g)
	if gv.Type().AssignableTo(t) {
		return gv, nil
	}
	if isNumber(gv.Kind()) && isNumber(t.Kind()) || gv.Kind() == reflect.String && t.Kind() == reflect.String {
		return gv.Convert(t), nil
	}
	// Structs, typed slices and typed maps.
	ptr := reflect.New(t)
	if err := starlarkutil.Assign(plain(v), ptr); err != nil {
		return reflect.Value{}, fmt.Errorf("cannot use %s as %s: %w", v.Type(), t, err)
	}
	return ptr.Elem(), nil
}

func isNumber(k reflect.Kind) bool {
	switch k {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64,
		reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64,
		reflect.Float32, reflect.Float64:
		return true
	}
	return false
}

// plain rewrites records as dicts so starlarkutil can walk them.
func plain(v starlark.Value) starlark.Value {
	switch v := v.(type) {
	case *Record:
		d := starlark.NewDict(v.Len())
		for _, k := range v.keys {
			_ = d.SetKey(starlark.String(k), plain(v.vals[k]))
		}
		return d
	case *starlark.List:
		elems := make([]starlark.Value, v.Len())
		for i := range elems {
			elems[i] = plain(v.Index(i))
		}
		return starlark.NewList(elems)
	}
	return v
}

func goResults(typ reflect.Type, out []reflect.Value) (starlark.Value, error) {
	if n := len(out); n > 0 && typ.Out(n-1) == errorType {
		if err, _ := out[n-1].Interface().(error); err != nil {
			return nil, err
		}
		out = out[:n-1]
	}
	switch len(out) {
	case 0:
		return starlark.None, nil
	case 1:
		return ToValue(out[0].Interface())
	}
	tuple := make(starlark.Tuple, len(out))
	for i, o := range out {
		v, err := ToValue(o.Interface())
		if err != nil {
			return nil, fmt.Errorf("result %d: %w", i+1, err)
		}
		tuple[i] = v
	}
	return tuple, nil
}
