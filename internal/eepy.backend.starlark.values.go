package internal

import (
	"fmt"
	"math"
	"reflect"
	"sort"
	"strings"
	"time"

	"go.starlark.net/starlark"
	"go.starlark.net/starlarkstruct"
)

// Starlark type names of render values
const (
	TypeNameScope   = "scope"
	TypeNameContext = "render_context"
)

// Render context attributes visible to capture callbacks
const (
	AttrTemplate = "template"
	AttrVars     = "vars"
	AttrBind     = "bind"
	AttrConcat   = "concat"
	AttrBlock    = "block"
)

var timeType = reflect.TypeOf(time.Time{})

// ToStarlark converts a Go value to a starlark value. Maps with string keys become
// dicts, slices become lists, structs become structs of their exported fields.
func ToStarlark(v any) (starlark.Value, error) {
	switch t := v.(type) {
	case nil:
		return starlark.None, nil
	case starlark.Value:
		return t, nil
	case string:
		return starlark.String(t), nil
	case []byte:
		return starlark.String(t), nil
	case bool:
		return starlark.Bool(t), nil
	case int:
		return starlark.MakeInt(t), nil
	case int64:
		return starlark.MakeInt64(t), nil
	case float64:
		return starlark.Float(t), nil
	case time.Time:
		return starlark.String(t.Format(time.RFC3339)), nil
	}
	return reflectToStarlark(reflect.ValueOf(v))
}

func reflectToStarlark(rv reflect.Value) (starlark.Value, error) {
	switch rv.Kind() {
	case reflect.Invalid:
		return starlark.None, nil
	case reflect.Pointer, reflect.Interface:
		if rv.IsNil() {
			return starlark.None, nil
		}
		if s, ok := rv.Interface().(fmt.Stringer); ok && rv.Elem().Kind() != reflect.Struct {
			return starlark.String(s.String()), nil
		}
		return reflectToStarlark(rv.Elem())
	case reflect.Bool:
		return starlark.Bool(rv.Bool()), nil
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return starlark.MakeInt64(rv.Int()), nil
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64, reflect.Uintptr:
		return starlark.MakeUint64(rv.Uint()), nil
	case reflect.Float32, reflect.Float64:
		return starlark.Float(rv.Float()), nil
	case reflect.String:
		return starlark.String(rv.String()), nil
	case reflect.Slice, reflect.Array:
		elems := make([]starlark.Value, rv.Len())
		for i := range elems {
			e, err := reflectToStarlark(rv.Index(i))
			if err != nil {
				return nil, err
			}
			elems[i] = e
		}
		return starlark.NewList(elems), nil
	case reflect.Map:
		if rv.Type().Key().Kind() != reflect.String {
			return nil, fmt.Errorf("unsupported map key type %s", rv.Type().Key())
		}
		keys := rv.MapKeys()
		sort.Slice(keys, func(i, j int) bool { return keys[i].String() < keys[j].String() })
		d := starlark.NewDict(len(keys))
		for _, k := range keys {
			e, err := reflectToStarlark(rv.MapIndex(k))
			if err != nil {
				return nil, err
			}
			if err := d.SetKey(starlark.String(k.String()), e); err != nil {
				return nil, err
			}
		}
		return d, nil
	case reflect.Struct:
		if rv.Type() == timeType {
			return starlark.String(rv.Interface().(time.Time).Format(time.RFC3339)), nil
		}
		if s, ok := rv.Interface().(fmt.Stringer); ok {
			return starlark.String(s.String()), nil
		}
		return structToStarlark(rv)
	}
	if rv.CanInterface() {
		return starlark.String(fmt.Sprint(rv.Interface())), nil
	}
	return starlark.None, nil
}

// structToStarlark exposes exported fields under their json names when tagged.
func structToStarlark(rv reflect.Value) (starlark.Value, error) {
	fields := make(starlark.StringDict)
	rt := rv.Type()
	for i := 0; i < rt.NumField(); i++ {
		f := rt.Field(i)
		if !f.IsExported() {
			continue
		}
		name := f.Name
		if tag, ok := f.Tag.Lookup("json"); ok {
			tagName, _, _ := strings.Cut(tag, ",")
			if tagName == "-" {
				continue
			}
			if tagName != "" {
				name = tagName
			}
		}
		v, err := reflectToStarlark(rv.Field(i))
		if err != nil {
			return nil, err
		}
		fields[name] = v
	}
	return starlarkstruct.FromStringDict(starlarkstruct.Default, fields), nil
}

// FromStarlark converts a starlark value to a plain Go value where one exists.
// Values without a Go counterpart, such as functions, are returned unchanged.
func FromStarlark(v starlark.Value) any {
	switch t := v.(type) {
	case nil, starlark.NoneType:
		return nil
	case starlark.String:
		return string(t)
	case starlark.Bool:
		return bool(t)
	case starlark.Int:
		if i, ok := t.Int64(); ok {
			return i
		}
		return t.String()
	case starlark.Float:
		f := float64(t)
		if math.IsInf(f, 0) || math.IsNaN(f) {
			return t.String()
		}
		return f
	case *starlark.List:
		out := make([]any, t.Len())
		for i := range out {
			out[i] = FromStarlark(t.Index(i))
		}
		return out
	case starlark.Tuple:
		out := make([]any, len(t))
		for i, e := range t {
			out[i] = FromStarlark(e)
		}
		return out
	case *starlark.Dict:
		out := make(map[string]any, t.Len())
		for _, item := range t.Items() {
			k, ok := item[0].(starlark.String)
			if !ok {
				return v
			}
			out[string(k)] = FromStarlark(item[1])
		}
		return out
	}
	return v
}

// toText converts a starlark value to output text; None becomes the empty string.
func toText(v starlark.Value) string {
	switch t := v.(type) {
	case nil, starlark.NoneType:
		return ""
	case starlark.String:
		return string(t)
	}
	return v.String()
}

type scopeKind int

const (
	scopeBlock scopeKind = iota
	scopeCapture
)

// scopeValue is what block() and capture() return for use in a with statement.
type scopeValue struct {
	kind scopeKind
	name string         // block name
	sink starlark.Value // capture target
}

var _ starlark.Value = (*scopeValue)(nil)

func (s *scopeValue) String() string {
	if s.kind == scopeBlock {
		return fmt.Sprintf("<%s %s(%q)>", TypeNameScope, HelperBlock, s.name)
	}
	return fmt.Sprintf("<%s %s(%s)>", TypeNameScope, HelperCapture, s.sink)
}
func (s *scopeValue) Type() string          { return TypeNameScope }
func (s *scopeValue) Freeze()               {}
func (s *scopeValue) Truth() starlark.Bool  { return starlark.True }
func (s *scopeValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", TypeNameScope) }

// contextValue exposes the render context to capture callbacks.
type contextValue struct {
	state *execState
}

var _ starlark.HasAttrs = (*contextValue)(nil)

func (c *contextValue) String() string {
	return fmt.Sprintf("<%s %s>", TypeNameContext, c.state.rc.Template)
}
func (c *contextValue) Type() string          { return TypeNameContext }
func (c *contextValue) Freeze()               {}
func (c *contextValue) Truth() starlark.Bool  { return starlark.True }
func (c *contextValue) Hash() (uint32, error) { return 0, fmt.Errorf("unhashable type: %s", TypeNameContext) }

func (c *contextValue) AttrNames() []string {
	return []string{AttrBind, AttrBlock, AttrConcat, AttrTemplate, AttrVars}
}

func (c *contextValue) Attr(name string) (starlark.Value, error) {
	rc := c.state.rc
	switch name {
	case AttrTemplate:
		return starlark.String(rc.Template), nil
	case AttrVars:
		return ToStarlark(rc.Vars)
	case AttrBind:
		return starlark.NewBuiltin(AttrBind, func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var key string
			var value starlark.Value
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 2, &key, &value); err != nil {
				return nil, err
			}
			rc.Bind(key, FromStarlark(value))
			return starlark.None, nil
		}), nil
	case AttrConcat:
		return starlark.NewBuiltin(AttrConcat, func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var text starlark.Value
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &text); err != nil {
				return nil, err
			}
			return starlark.None, rc.Concat(toText(text))
		}), nil
	case AttrBlock:
		return starlark.NewBuiltin(AttrBlock, func(_ *starlark.Thread, fn *starlark.Builtin, args starlark.Tuple, kwargs []starlark.Tuple) (starlark.Value, error) {
			var blockName string
			if err := starlark.UnpackPositionalArgs(fn.Name(), args, kwargs, 1, &blockName); err != nil {
				return nil, err
			}
			if text, ok := rc.RegisteredBlock(blockName); ok {
				return starlark.String(text), nil
			}
			return starlark.None, nil
		}), nil
	}
	return nil, nil
}
