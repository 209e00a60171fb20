package expr

import (
	"fmt"
	"sort"
	"strings"

	"go.starlark.net/starlark"
)

// Record is an ordered, string-keyed, mutable mapping. It is what plain
// objects in state turn into: fields are reachable as attributes
// (user.name) and by index (user["name"]), and iteration follows insertion
// order.
type Record struct {
	keys   []string
	vals   map[string]starlark.Value
	frozen bool
}

var (
	_ starlark.IterableMapping = (*Record)(nil)
	_ starlark.HasSetKey       = (*Record)(nil)
	_ starlark.HasAttrs        = (*Record)(nil)
	_ starlark.HasSetField     = (*Record)(nil)
	_ starlark.Sequence        = (*Record)(nil)
)

// NewRecord returns an empty record.
func NewRecord() *Record {
	return &Record{vals: make(map[string]starlark.Value)}
}

// RecordOf builds a record from alternating key/value pairs.
func RecordOf(kv ...any) *Record {
	r := NewRecord()
	for i := 0; i+1 < len(kv); i += 2 {
		v, err := ToValue(kv[i+1])
		if err != nil {
			v = starlark.String(fmt.Sprint(kv[i+1]))
		}
		r.Put(fmt.Sprint(kv[i]), v)
	}
	return r
}

// Put sets a field, appending it if new.
func (r *Record) Put(k string, v starlark.Value) {
	if _, ok := r.vals[k]; !ok {
		r.keys = append(r.keys, k)
	}
	r.vals[k] = v
}

// Field returns a field.
func (r *Record) Field(k string) (starlark.Value, bool) {
	v, ok := r.vals[k]
	return v, ok
}

// Keys returns the field names in insertion order.
func (r *Record) Keys() []string {
	out := make([]string, len(r.keys))
	copy(out, r.keys)
	return out
}

func (r *Record) String() string {
	var sb strings.Builder
	sb.WriteByte('{')
	for i, k := range r.keys {
		if i > 0 {
			sb.WriteString(", ")
		}
		sb.WriteString(starlark.String(k).String())
		sb.WriteString(": ")
		sb.WriteString(r.vals[k].String())
	}
	sb.WriteByte('}')
	return sb.String()
}

func (r *Record) Type() string         { return "record" }
func (r *Record) Truth() starlark.Bool { return len(r.keys) > 0 }
func (r *Record) Len() int             { return len(r.keys) }

func (r *Record) Hash() (uint32, error) {
	return 0, fmt.Errorf("unhashable type: record")
}

func (r *Record) Freeze() {
	if r.frozen {
		return
	}
	r.frozen = true
	for _, v := range r.vals {
		v.Freeze()
	}
}

func (r *Record) Get(k starlark.Value) (starlark.Value, bool, error) {
	s, ok := k.(starlark.String)
	if !ok {
		return nil, false, fmt.Errorf("record key must be string, got %s", k.Type())
	}
	v, found := r.vals[string(s)]
	return v, found, nil
}

func (r *Record) SetKey(k, v starlark.Value) error {
	s, ok := k.(starlark.String)
	if !ok {
		return fmt.Errorf("record key must be string, got %s", k.Type())
	}
	return r.SetField(string(s), v)
}

func (r *Record) SetField(name string, v starlark.Value) error {
	if r.frozen {
		return fmt.Errorf("cannot set field %s of frozen record", name)
	}
	r.Put(name, v)
	return nil
}

func (r *Record) Items() []starlark.Tuple {
	out := make([]starlark.Tuple, len(r.keys))
	for i, k := range r.keys {
		out[i] = starlark.Tuple{starlark.String(k), r.vals[k]}
	}
	return out
}

func (r *Record) Iterate() starlark.Iterator {
	return &recordIterator{keys: r.Keys()}
}

type recordIterator struct {
	keys []string
	i    int
}

func (it *recordIterator) Next(p *starlark.Value) bool {
	if it.i >= len(it.keys) {
		return false
	}
	*p = starlark.String(it.keys[it.i])
	it.i++
	return true
}

func (it *recordIterator) Done() {}

var recordMethods = map[string]*starlark.Builtin{
	"keys":   starlark.NewBuiltin("keys", recordKeys),
	"values": starlark.NewBuiltin("values", recordValues),
	"items":  starlark.NewBuiltin("items", recordItems),
	"get":    starlark.NewBuiltin("get", recordGet),
}

func (r *Record) Attr(name string) (starlark.Value, error) {
	if v, ok := r.vals[name]; ok {
		return v, nil
	}
	if m, ok := recordMethods[name]; ok {
		return m.BindReceiver(r), nil
	}
	return nil, nil
}

func (r *Record) AttrNames() []string {
	names := r.Keys()
	for m := range recordMethods {
		if _, ok := r.vals[m]; !ok {
			names = append(names, m)
		}
	}
	sort.Strings(names)
	return names
}

func recordKeys(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	r := b.Receiver().(*Record)
	out := make([]starlark.Value, len(r.keys))
	for i, k := range r.keys {
		out[i] = starlark.String(k)
	}
	return starlark.NewList(out), nil
}

func recordValues(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	r := b.Receiver().(*Record)
	out := make([]starlark.Value, len(r.keys))
	for i, k := range r.keys {
		out[i] = r.vals[k]
	}
	return starlark.NewList(out), nil
}

func recordItems(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 0); err != nil {
		return nil, err
	}
	items := b.Receiver().(*Record).Items()
	out := make([]starlark.Value, len(items))
	for i, t := range items {
		out[i] = t
	}
	return starlark.NewList(out), nil
}

func recordGet(_ *starlark.Thread, b *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
	var key string
	var dflt starlark.Value = starlark.None
	if err := starlark.UnpackPositionalArgs(b.Name(), args, kwargs, 1, &key, &dflt); err != nil {
		return nil, err
	}
	if v, ok := b.Receiver().(*Record).vals[key]; ok {
		return v, nil
	}
	return dflt, nil
}
