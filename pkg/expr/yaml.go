package expr

import (
	"fmt"
	"io"
	"math/big"
	"strings"

	"go.starlark.net/starlark"
	"gopkg.in/yaml.v3"
)

// DecodeYAML reads a YAML document whose top level is a mapping and
// returns it as a Record with the document's key order.
func DecodeYAML(r io.Reader) (*Record, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if err == io.EOF {
			return NewRecord(), nil
		}
		return nil, fmt.Errorf("decode yaml: %w", err)
	}
	v, err := FromYAML(&doc)
	if err != nil {
		return nil, err
	}
	switch v := v.(type) {
	case *Record:
		return v, nil
	case starlark.NoneType:
		return NewRecord(), nil
	}
	return nil, fmt.Errorf("decode yaml: top level is %s, want a mapping", v.Type())
}

// FromYAML converts a YAML node. Mappings with string keys become Records
// in document order, other mappings become dicts, sequences become lists.
func FromYAML(n *yaml.Node) (starlark.Value, error) {
	switch n.Kind {
	case yaml.DocumentNode:
		if len(n.Content) == 0 {
			return starlark.None, nil
		}
		return FromYAML(n.Content[0])

	case yaml.AliasNode:
		return FromYAML(n.Alias)

	case yaml.SequenceNode:
		elems := make([]starlark.Value, len(n.Content))
		for i, c := range n.Content {
			v, err := FromYAML(c)
			if err != nil {
				return nil, err
			}
			elems[i] = v
		}
		return starlark.NewList(elems), nil

	case yaml.MappingNode:
		r := NewRecord()
		var d *starlark.Dict
		for i := 0; i+1 < len(n.Content); i += 2 {
			k, err := FromYAML(n.Content[i])
			if err != nil {
				return nil, err
			}
			v, err := FromYAML(n.Content[i+1])
			if err != nil {
				return nil, err
			}
			if s, ok := k.(starlark.String); ok && d == nil {
				r.Put(string(s), v)
				continue
			}
			if d == nil {
				d = starlark.NewDict(len(n.Content) / 2)
				for _, kv := range r.Items() {
					d.SetKey(kv[0], kv[1])
				}
			}
			if err := d.SetKey(k, v); err != nil {
				return nil, fmt.Errorf("line %d: %w", n.Content[i].Line, err)
			}
		}
		if d != nil {
			return d, nil
		}
		return r, nil

	case yaml.ScalarNode:
		return scalar(n)
	}
	return nil, fmt.Errorf("line %d: unsupported yaml node kind %d", n.Line, n.Kind)
}

func scalar(n *yaml.Node) (starlark.Value, error) {
	switch n.ShortTag() {
	case "!!null":
		return starlark.None, nil
	case "!!bool":
		var b bool
		if err := n.Decode(&b); err != nil {
			return nil, err
		}
		return starlark.Bool(b), nil
	case "!!int":
		var i int64
		if err := n.Decode(&i); err == nil {
			return starlark.MakeInt64(i), nil
		}
		b, ok := new(big.Int).SetString(strings.ReplaceAll(n.Value, "_", ""), 0)
		if !ok {
			return nil, fmt.Errorf("line %d: bad integer %q", n.Line, n.Value)
		}
		return starlark.MakeBigInt(b), nil
	case "!!float":
		var f float64
		if err := n.Decode(&f); err != nil {
			return nil, err
		}
		return starlark.Float(f), nil
	}
	return starlark.String(n.Value), nil
}
