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

package reflectapi

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/davecgh/go-spew/spew"
	"github.com/olekukonko/tablewriter"

	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// toInspectable walks v into a plain Go value suitable for spew/json
// rendering, substituting the string "<circular>" the second time a
// pointer identity is visited along one path rather than erroring —
// spec P4's "toJSON/inspect always terminates" guarantee. circular is set
// true the first time that happens anywhere in the walk. classes resolves
// an Object's field names; nil is fine (fields render under numeric keys).
func toInspectable(v value.Value, path map[any]bool, circular *bool, classes *class.Registry) any {
	if v.IsNull() {
		return nil
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	if n, ok := v.NumericValue(); ok {
		return n
	}
	if !v.IsPtr() {
		return fmt.Sprintf("%v", v)
	}
	key := v.IdentityKey()
	if path[key] {
		*circular = true
		return "<circular>"
	}
	path[key] = true
	defer delete(path, key)

	switch v.Kind() {
	case value.KindString:
		s, _ := heap.AsString(v)
		return s.String()
	case value.KindArray:
		arr, _ := heap.AsArray(v)
		out := make([]any, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			el, _ := arr.Get(i)
			out[i] = toInspectable(el, path, circular, classes)
		}
		return out
	case value.KindMap:
		m, _ := heap.AsMap(v)
		out := make(map[string]any, m.Size())
		for _, e := range m.Entries() {
			k := fmt.Sprintf("%v", toInspectable(e[0], path, circular, classes))
			out[k] = toInspectable(e[1], path, circular, classes)
		}
		return out
	case value.KindObject:
		obj, _ := heap.AsObject(v)
		out := map[string]any{"$class": obj.ClassID}
		if classes != nil {
			if m, ok := classes.Metadata(obj.ClassID); ok {
				for i, name := range m.FieldNames {
					if i < len(obj.Fields) {
						out[name] = toInspectable(obj.Fields[i], path, circular, classes)
					}
				}
			}
		}
		return out
	default:
		return fmt.Sprintf("#<%s %d>", v.Kind(), heap.ObjAt(v).Hdr().ID())
	}
}

// Inspect renders v as a human-readable dump via go-spew, cycle-safe.
func (r *Reflector) Inspect(v value.Value) string {
	circular := false
	data := toInspectable(v, make(map[any]bool), &circular, r.classes)
	return spew.Sdump(data)
}

// Describe renders v as a tabular field/value listing (class instances
// only; non-objects fall back to Inspect).
func (r *Reflector) Describe(v value.Value) (string, error) {
	obj, ok := heap.AsObject(v)
	if !ok {
		return r.Inspect(v), nil
	}
	c, m, err := r.classOf(v)
	if err != nil {
		return "", err
	}
	var buf bytes.Buffer
	table := tablewriter.NewWriter(&buf)
	table.SetHeader([]string{"field", "value"})
	for i, name := range m.FieldNames {
		if i >= len(obj.Fields) {
			break
		}
		circular := false
		rendered := fmt.Sprintf("%v", toInspectable(obj.Fields[i], make(map[any]bool), &circular, r.classes))
		table.Append([]string{name, rendered})
	}
	buf.WriteString(fmt.Sprintf("class %s (#%d)\n", c.Name, obj.Hdr().ID()))
	table.Render()
	return buf.String(), nil
}

// GetObjectID returns a pointer Value's stable heap identity id.
func (r *Reflector) GetObjectID(v value.Value) (uint64, error) {
	if !v.IsPtr() {
		return 0, rerrors.TypeError("reflect: getObjectId target is not a heap value")
	}
	o := heap.ObjAt(v)
	if o == nil {
		return 0, rerrors.RuntimeError("reflect: value addresses no live object")
	}
	return o.Hdr().ID(), nil
}

// ToJSON renders v as JSON text. Unlike builtins/json.Stringify (which
// errors on a cycle), this never fails on cycles: a reference back to an
// object already on the current path serializes as JSON null (a shared
// but acyclic reference is serialized each time), and ok reports whether that substitution ever
// happened (spec P4, used by IsCircular below).
func (r *Reflector) ToJSON(v value.Value) (string, bool, error) {
	circular := false
	data := toJSONPlain(v, make(map[any]bool), &circular, r.classes)
	out, err := json.Marshal(data)
	if err != nil {
		return "", false, rerrors.RuntimeError("reflect.toJSON: %v", err)
	}
	return string(out), circular, nil
}

func toJSONPlain(v value.Value, path map[any]bool, circular *bool, classes *class.Registry) any {
	if v.IsNull() {
		return nil
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	if n, ok := v.NumericValue(); ok {
		return n
	}
	if !v.IsPtr() {
		return nil
	}
	key := v.IdentityKey()
	if path[key] {
		*circular = true
		return nil
	}
	path[key] = true
	defer delete(path, key)

	switch v.Kind() {
	case value.KindString:
		s, _ := heap.AsString(v)
		return s.String()
	case value.KindArray:
		arr, _ := heap.AsArray(v)
		out := make([]any, arr.Len())
		for i := 0; i < arr.Len(); i++ {
			el, _ := arr.Get(i)
			out[i] = toJSONPlain(el, path, circular, classes)
		}
		return out
	case value.KindMap:
		m, _ := heap.AsMap(v)
		out := make(map[string]any, m.Size())
		for _, e := range m.Entries() {
			ks, ok := heap.AsString(e[0])
			key := "?"
			if ok {
				key = ks.String()
			}
			out[key] = toJSONPlain(e[1], path, circular, classes)
		}
		return out
	case value.KindObject:
		obj, _ := heap.AsObject(v)
		out := make(map[string]any, len(obj.Fields))
		if classes != nil {
			if m, ok := classes.Metadata(obj.ClassID); ok {
				for i, name := range m.FieldNames {
					if i < len(obj.Fields) {
						out[name] = toJSONPlain(obj.Fields[i], path, circular, classes)
					}
				}
			}
		}
		return out
	default:
		return nil
	}
}

// IsCircular reports whether v's object graph contains a reference cycle.
func (r *Reflector) IsCircular(v value.Value) bool {
	_, circular, _ := r.ToJSON(v)
	return circular
}

// GetEnumerableKeys returns v's own enumerable keys: field names for an
// Object, string-keyed entries for a Map, index strings for an Array.
func (r *Reflector) GetEnumerableKeys(v value.Value) ([]string, error) {
	if !v.IsPtr() {
		return nil, nil
	}
	switch v.Kind() {
	case value.KindObject:
		_, m, err := r.classOf(v)
		if err != nil {
			return nil, err
		}
		out := make([]string, len(m.FieldNames))
		copy(out, m.FieldNames)
		return out, nil
	case value.KindMap:
		m, _ := heap.AsMap(v)
		var out []string
		for _, e := range m.Entries() {
			if s, ok := heap.AsString(e[0]); ok {
				out = append(out, s.String())
			}
		}
		return out, nil
	case value.KindArray:
		arr, _ := heap.AsArray(v)
		out := make([]string, arr.Len())
		for i := range out {
			out[i] = fmt.Sprintf("%d", i)
		}
		return out, nil
	default:
		return nil, nil
	}
}

// Snapshot captures v's current state as a structurally independent copy —
// DeepClone under another name, used by callers that want to diff "now"
// against "later" without aliasing into the live object.
func (r *Reflector) Snapshot(v value.Value) (value.Value, error) {
	return r.DeepClone(v)
}

// Diff compares two previously-captured plain representations of a and b
// and reports field-level differences as a Map with "added", "removed",
// and "changed" Array-of-name entries. Hand-rolled rather than
// diffing with reflect.DeepEqual/go-cmp (cmp is reserved for this
// module's own tests, not runtime behavior) since the comparison is over
// Raya Values, not Go structs.
func (r *Reflector) Diff(a, b value.Value) (added, removed, changed []string, err error) {
	am := fieldMapOf(a, r.classes)
	bm := fieldMapOf(b, r.classes)
	var keys []string
	for k := range am {
		keys = append(keys, k)
	}
	for k := range bm {
		if _, ok := am[k]; !ok {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	for _, k := range keys {
		av, aok := am[k]
		bv, bok := bm[k]
		switch {
		case aok && !bok:
			removed = append(removed, k)
		case !aok && bok:
			added = append(added, k)
		case !av.StrictEquals(bv):
			changed = append(changed, k)
		}
	}
	return added, removed, changed, nil
}

func fieldMapOf(v value.Value, classes *class.Registry) map[string]value.Value {
	obj, ok := heap.AsObject(v)
	if !ok {
		return nil
	}
	m, ok := classes.Metadata(obj.ClassID)
	if !ok {
		return nil
	}
	out := make(map[string]value.Value, len(m.FieldNames))
	for i, name := range m.FieldNames {
		if i < len(obj.Fields) {
			out[name] = obj.Fields[i]
		}
	}
	return out
}

// GetObjectSize returns v's declared heap byte size.
func (r *Reflector) GetObjectSize(v value.Value) (uint64, error) {
	if !v.IsPtr() {
		return 0, rerrors.TypeError("reflect: getObjectSize target is not a heap value")
	}
	o := heap.ObjAt(v)
	if o == nil {
		return 0, rerrors.RuntimeError("reflect: value addresses no live object")
	}
	return o.Hdr().Size(), nil
}

// GetReferences returns the Values v directly holds (one hop, not
// transitive).
func (r *Reflector) GetReferences(v value.Value) ([]value.Value, error) {
	if !v.IsPtr() {
		return nil, rerrors.TypeError("reflect: getReferences target is not a heap value")
	}
	o := heap.ObjAt(v)
	if o == nil {
		return nil, rerrors.RuntimeError("reflect: value addresses no live object")
	}
	return o.Refs(), nil
}

func registerInspect(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeInspect, "reflect.inspect", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.inspect expects (value)")
		}
		s, err := ctx.Heap.NewString(r.Inspect(args[0]))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(s), nil
	})

	table.Register(RangeInspect+1, "reflect.describe", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.describe expects (value)")
		}
		text, err := r.Describe(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		s, err := ctx.Heap.NewString(text)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(s), nil
	})

	table.Register(RangeInspect+2, "reflect.getObjectId", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getObjectId expects (value)")
		}
		id, err := r.GetObjectID(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.U64(id)), nil
	})

	table.Register(RangeInspect+3, "reflect.toJSON", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.toJSON expects (value)")
		}
		text, _, err := r.ToJSON(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		s, err := ctx.Heap.NewString(text)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(s), nil
	})

	table.Register(RangeInspect+4, "reflect.getEnumerableKeys", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getEnumerableKeys expects (value)")
		}
		keys, err := r.GetEnumerableKeys(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, keys)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeInspect+5, "reflect.isCircular", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.isCircular expects (value)")
		}
		return nativeabi.Pushed(value.Bool(r.IsCircular(args[0]))), nil
	})

	table.Register(RangeInspect+6, "reflect.snapshot", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.snapshot expects (value)")
		}
		v, err := r.Snapshot(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(RangeInspect+7, "reflect.diff", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.diff expects (a, b)")
		}
		added, removed, changed, err := r.Diff(args[0], args[1])
		if err != nil {
			return nativeabi.Result{}, err
		}
		mv, err := ctx.Heap.NewMap()
		if err != nil {
			return nativeabi.Result{}, err
		}
		mo, _ := heap.AsMap(mv)
		addedArr, err := stringArray(ctx.Heap, added)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := mapPutValue(ctx.Heap, mo, "added", addedArr); err != nil {
			return nativeabi.Result{}, err
		}
		removedArr, err := stringArray(ctx.Heap, removed)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := mapPutValue(ctx.Heap, mo, "removed", removedArr); err != nil {
			return nativeabi.Result{}, err
		}
		changedArr, err := stringArray(ctx.Heap, changed)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := mapPutValue(ctx.Heap, mo, "changed", changedArr); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(mv), nil
	})

	table.Register(RangeInspect+8, "reflect.getObjectSize", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getObjectSize expects (value)")
		}
		size, err := r.GetObjectSize(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.U64(size)), nil
	})

	table.Register(RangeInspect+9, "reflect.getReferences", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getReferences expects (value)")
		}
		refs, err := r.GetReferences(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := ctx.Heap.NewArray(len(refs))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(av)
		for i, ref := range refs {
			arr.Set(i, ref)
		}
		return nativeabi.Pushed(av), nil
	})
}
