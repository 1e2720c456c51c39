// Copyright 2024 The Raya Authors
// This file is part of Raya.
//
// Raya is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// Raya is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with Raya. If not, see <http://www.gnu.org/licenses/>.

// Package json registers the JSON native family (spec §3.2, §4.4):
// stringify/parse between Raya Values and JSON text. Stringify is
// circular-safe (spec §4.4's toJSON/inspect requirement); stdlib
// encoding/json does the low-level text (de)serialization once values are
// reduced to/from plain Go data.
package json

import (
	"encoding/json"
	"sort"
	"unsafe"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// Stringify renders v as a JSON text, failing with RuntimeError if v
// contains a reference cycle.
func Stringify(v value.Value, classes class_classNames) (string, error) {
	seen := make(map[unsafe.Pointer]bool)
	data, err := toPlain(v, seen, classes)
	if err != nil {
		return "", err
	}
	out, err := json.Marshal(data)
	if err != nil {
		return "", rerrors.RuntimeError("json.stringify: %v", err)
	}
	return string(out), nil
}

// class_classNames resolves a class_id to a display name for object
// fields that don't otherwise serialize (kept as a narrow function type
// rather than importing the class package directly, so this package has
// no hard dependency on class's registry shape).
type class_classNames func(classID uint32) (string, []string, bool)

func toPlain(v value.Value, seen map[unsafe.Pointer]bool, classes class_classNames) (any, error) {
	if v.IsNull() {
		return nil, nil
	}
	if b, ok := v.AsBool(); ok {
		return b, nil
	}
	if n, ok := v.NumericValue(); ok {
		return n, nil
	}
	if !v.IsPtr() {
		return nil, rerrors.TypeError("json.stringify: unsupported value kind")
	}
	ptr := v.Ptr()
	if seen[ptr] {
		return nil, rerrors.RuntimeError("json.stringify: circular reference detected")
	}
	seen[ptr] = true
	defer delete(seen, ptr)

	switch v.Kind() {
	case value.KindString:
		s, _ := heap.AsString(v)
		return s.String(), nil
	case value.KindArray:
		arr, _ := heap.AsArray(v)
		out := make([]any, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			el, _ := arr.Get(i)
			plain, err := toPlain(el, seen, classes)
			if err != nil {
				return nil, err
			}
			out[i] = plain
		}
		return out, nil
	case value.KindMap:
		m, _ := heap.AsMap(v)
		out := make(map[string]any, m.Size())
		for _, e := range m.Entries() {
			key, ok := heap.AsString(e[0])
			if !ok {
				return nil, rerrors.TypeError("json.stringify: map keys must be strings")
			}
			plain, err := toPlain(e[1], seen, classes)
			if err != nil {
				return nil, err
			}
			out[key.String()] = plain
		}
		return out, nil
	case value.KindObject:
		obj, _ := heap.AsObject(v)
		out := make(map[string]any, len(obj.Fields))
		if classes != nil {
			if _, fieldNames, ok := classes(obj.ClassID); ok {
				for i, name := range fieldNames {
					if i >= len(obj.Fields) {
						break
					}
					plain, err := toPlain(obj.Fields[i], seen, classes)
					if err != nil {
						return nil, err
					}
					out[name] = plain
				}
				return out, nil
			}
		}
		return out, nil
	default:
		return nil, rerrors.TypeError("json.stringify: %s values are not JSON-serializable", v.Kind())
	}
}

// Parse parses text into Values allocated on h: JSON objects become
// MapObjects, arrays become Arrays, strings RayaStrings, numbers F64.
func Parse(h *heap.Heap, text string) (value.Value, error) {
	var generic any
	if err := json.Unmarshal([]byte(text), &generic); err != nil {
		return value.Value{}, rerrors.RuntimeError("json.parse: %v", err)
	}
	return fromPlain(h, generic)
}

func fromPlain(h *heap.Heap, data any) (value.Value, error) {
	switch d := data.(type) {
	case nil:
		return value.Null(), nil
	case bool:
		return value.Bool(d), nil
	case float64:
		return value.F64(d), nil
	case string:
		return h.NewString(d)
	case []any:
		v, err := h.NewArray(len(d))
		if err != nil {
			return value.Value{}, err
		}
		arr, _ := heap.AsArray(v)
		for i, el := range d {
			ev, err := fromPlain(h, el)
			if err != nil {
				return value.Value{}, err
			}
			arr.Set(i, ev)
		}
		return v, nil
	case map[string]any:
		v, err := h.NewMap()
		if err != nil {
			return value.Value{}, err
		}
		m, _ := heap.AsMap(v)
		keys := make([]string, 0, len(d))
		for k := range d {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			kv, err := h.NewString(k)
			if err != nil {
				return value.Value{}, err
			}
			vv, err := fromPlain(h, d[k])
			if err != nil {
				return value.Value{}, err
			}
			m.Set(kv, vv)
		}
		return v, nil
	default:
		return value.Value{}, rerrors.RuntimeError("json.parse: unsupported decoded type %T", d)
	}
}

func asString(v value.Value) (string, bool) {
	s, ok := heap.AsString(v)
	if !ok {
		return "", false
	}
	return s.String(), true
}

// Register installs the JSON native handlers into table. classNames
// resolves a class_id for Stringify's object-field serialization; pass
// nil if the engine has no class registry wired in yet.
func Register(table *nativeabi.Table, classNames class_classNames) {
	table.Register(nativeabi.JSONStringify, "json.stringify", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("json.stringify expects (value)")
		}
		text, err := Stringify(args[0], classNames)
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := ctx.Heap.NewString(text)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(nativeabi.JSONParse, "json.parse", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("json.parse expects (text)")
		}
		text, ok := asString(args[0])
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("json.parse: argument must be a string")
		}
		v, err := Parse(ctx.Heap, text)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})
}
