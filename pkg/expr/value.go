package expr

import (
	"fmt"
	"math/big"
	"reflect"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// ToValue converts Go data into a Starlark value. Maps with string keys
// and structs become Records; map keys are sorted so the resulting order
// is deterministic. Go functions are wrapped as builtins.
func ToValue(v any) (starlark.Value, error) {
	switch v := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return v, nil
	case bool:
		return starlark.Bool(v), nil
	case []byte:
		return starlark.Bytes(v), nil
	case string:
		return starlark.String(v), nil
	case int:
		return starlark.MakeInt(v), nil
	case int64:
		return starlark.MakeInt64(v), nil
	case uint64:
		return starlark.MakeUint64(v), nil
	case float32:
		return starlark.Float(v), nil
	case float64:
		return starlark.Float(v), nil
	case []any:
		elems := make([]starlark.Value, len(v))
		for i, e := range v {
			sv, err := ToValue(e)
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil
	case map[string]any:
		keys := make([]string, 0, len(v))
		for k := range v {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		r := NewRecord()
		for _, k := range keys {
			sv, err := ToValue(v[k])
			if err != nil {
				return nil, fmt.Errorf("key %s: %w", k, err)
			}
			r.Put(k, sv)
		}
		return r, nil
	}

	value := reflect.ValueOf(v)
	switch value.Kind() {
	case reflect.Bool:
		return starlark.Bool(value.Bool()), nil
	case reflect.String:
		return starlark.String(value.String()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(value.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return starlark.MakeUint64(value.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(value.Float()), nil

	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, value.Len())
		for i := range elems {
			sv, err := ToValue(value.Index(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("index %d: %w", i, err)
			}
			elems[i] = sv
		}
		return starlark.NewList(elems), nil

	case reflect.Map:
		if value.Type().Key().Kind() == reflect.String {
			keys := value.MapKeys()
			sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
			r := NewRecord()
			for _, k := range keys {
				sv, err := ToValue(value.MapIndex(k).Interface())
				if err != nil {
					return nil, fmt.Errorf("key %s: %w", k.String(), err)
				}
				r.Put(k.String(), sv)
			}
			return r, nil
		}
		d := starlark.NewDict(value.Len())
		iter := value.MapRange()
		for iter.Next() {
			k, err := ToValue(iter.Key().Interface())
			if err != nil {
				return nil, err
			}
			val, err := ToValue(iter.Value().Interface())
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(k, val); err != nil {
				return nil, err
			}
		}
		return d, nil

	case reflect.Struct:
		typ := value.Type()
		r := NewRecord()
		for i := range value.NumField() {
			field := typ.Field(i)
			if !field.IsExported() {
				continue
			}
			name := field.Name
			if tag, _, _ := strings.Cut(field.Tag.Get("json"), ","); tag == "-" {
				continue
			} else if tag != "" {
				name = tag
			}
			sv, err := ToValue(value.Field(i).Interface())
			if err != nil {
				return nil, fmt.Errorf("field %s: %w", field.Name, err)
			}
			r.Put(name, sv)
		}
		return r, nil

	case reflect.Pointer, reflect.Interface:
		elem := value.Elem()
		if !elem.IsValid() {
			return starlark.None, nil
		}
		return ToValue(elem.Interface())

	case reflect.Func:
		if value.IsNil() {
			return starlark.None, nil
		}
		return goFunc(value), nil
	}

	return nil, fmt.Errorf("cannot convert %T", v)
}

// MustValue is ToValue for data known to be convertible.
func MustValue(v any) starlark.Value {
	sv, err := ToValue(v)
	if err != nil {
		panic(err)
	}
	return sv
}

// FromValue converts a Starlark value back into plain Go data: nil, bool,
// int64 (or *big.Int when out of range), float64, string, []byte, []any
// and map[string]any. Values with no plain form become their string.
func FromValue(v starlark.Value) any {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.Bool:
		return bool(v)
	case starlark.Int:
		if i, ok := v.Int64(); ok {
			return i
		}
		return new(big.Int).Set(v.BigInt())
	case starlark.Float:
		return float64(v)
	case starlark.String:
		return string(v)
	case starlark.Bytes:
		return []byte(v)
	case *Record:
		m := make(map[string]any, v.Len())
		for _, k := range v.keys {
			m[k] = FromValue(v.vals[k])
		}
		return m
	case *starlark.Dict:
		m := make(map[string]any, v.Len())
		for _, kv := range v.Items() {
			m[Text(kv[0])] = FromValue(kv[1])
		}
		return m
	case starlark.Indexable:
		out := make([]any, v.Len())
		for i := range out {
			out[i] = FromValue(v.Index(i))
		}
		return out
	case *starlark.Set:
		var out []any
		iter := v.Iterate()
		defer iter.Done()
		var x starlark.Value
		for iter.Next(&x) {
			out = append(out, FromValue(x))
		}
		return out
	}
	return v.String()
}

// Text renders v as it should appear in the document: strings verbatim,
// None as empty, whole floats without a fraction, anything else in its
// Starlark form.
func Text(v starlark.Value) string {
	switch v := v.(type) {
	case nil, starlark.NoneType:
		return ""
	case starlark.String:
		return string(v)
	case starlark.Bytes:
		return string(v)
	case starlark.Bool:
		if v {
			return "true"
		}
		return "false"
	case starlark.Float:
		f := float64(v)
		if f == float64(int64(f)) && f < 1e15 && f > -1e15 {
			return fmt.Sprintf("%d", int64(f))
		}
		return fmt.Sprint(f)
	}
	return v.String()
}

// Truthy reports the truth of v, treating a nil value as false.
func Truthy(v starlark.Value) bool {
	return v != nil && bool(v.Truth())
}
