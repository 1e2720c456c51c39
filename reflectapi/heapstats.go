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
	"unsafe"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// GetHeapStats returns a Map rendering of heap.Stats: liveObjects,
// bytesUsed, bytesLimit, collections, lastFreed, lastFreedPct.
func (r *Reflector) GetHeapStats(h *heap.Heap) (value.Value, error) {
	s := h.Stats()
	mv, err := h.NewMap()
	if err != nil {
		return value.Value{}, err
	}
	mo, _ := heap.AsMap(mv)
	if err := mapPutValue(h, mo, "liveObjects", value.I32(int32(s.LiveObjects))); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(h, mo, "bytesUsed", value.U64(s.BytesUsed)); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(h, mo, "bytesLimit", value.U64(s.BytesLimit)); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(h, mo, "collections", value.U64(s.Collections)); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(h, mo, "lastFreed", value.I32(int32(s.LastFreed))); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(h, mo, "lastFreedPct", value.F64(s.LastFreedPct)); err != nil {
		return value.Value{}, err
	}
	return mv, nil
}

// FindInstances returns every live Object whose class is classID, built by
// scanning the heap's live set (spec's "heap introspection extras":
// findInstances is an O(live objects) sweep, not an indexed lookup).
func (r *Reflector) FindInstances(classID uint32) []value.Value {
	var out []value.Value
	r.heap.VisitObjects(func(id uint64, o heap.Obj) {
		obj, ok := o.(*heap.Object)
		if !ok || obj.ClassID != classID {
			return
		}
		out = append(out, value.Ptr(value.KindObject, unsafe.Pointer(obj)))
	})
	return out
}

// GetRetainedSize sums the declared byte size of v and every object
// transitively reachable from it. This over-counts objects also reachable
// from elsewhere (a true retained-size figure needs dominator analysis);
// documented as an upper bound rather than attempting that here.
func (r *Reflector) GetRetainedSize(v value.Value) (uint64, error) {
	if !v.IsPtr() {
		return 0, rerrors.TypeError("reflect: getRetainedSize target is not a heap value")
	}
	seen := make(map[any]bool)
	var total uint64
	var walk func(value.Value)
	walk = func(cur value.Value) {
		if !cur.IsPtr() {
			return
		}
		key := cur.IdentityKey()
		if seen[key] {
			return
		}
		seen[key] = true
		o := heap.ObjAt(cur)
		if o == nil {
			return
		}
		total += o.Hdr().Size()
		for _, ref := range o.Refs() {
			walk(ref)
		}
	}
	walk(v)
	return total, nil
}

// GetReferrers returns every live object that directly references target
// (the reverse of GetReferences), found by scanning the whole live set.
func (r *Reflector) GetReferrers(target value.Value) ([]value.Value, error) {
	if !target.IsPtr() {
		return nil, rerrors.TypeError("reflect: getReferrers target is not a heap value")
	}
	targetKey := target.IdentityKey()
	var out []value.Value
	r.heap.VisitObjects(func(id uint64, o heap.Obj) {
		for _, ref := range o.Refs() {
			if ref.IsPtr() && ref.IdentityKey() == targetKey {
				out = append(out, refToValue(o))
				return
			}
		}
	})
	return out, nil
}

// refToValue reinterprets a live heap.Obj back into the pointer Value that
// addresses it, mirroring the concrete-type switch heap.objAt performs in
// the other direction.
func refToValue(o heap.Obj) value.Value {
	switch t := o.(type) {
	case *heap.Object:
		return value.Ptr(value.KindObject, unsafe.Pointer(t))
	case *heap.Array:
		return value.Ptr(value.KindArray, unsafe.Pointer(t))
	case *heap.MapObject:
		return value.Ptr(value.KindMap, unsafe.Pointer(t))
	case *heap.SetObject:
		return value.Ptr(value.KindSet, unsafe.Pointer(t))
	case *heap.Closure:
		return value.Ptr(value.KindClosure, unsafe.Pointer(t))
	case *heap.Proxy:
		return value.Ptr(value.KindProxy, unsafe.Pointer(t))
	case *heap.ChannelObject:
		return value.Ptr(value.KindChannel, unsafe.Pointer(t))
	default:
		return value.Null()
	}
}

func registerHeapStats(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeHeapStats, "reflect.getHeapStats", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		mv, err := r.GetHeapStats(ctx.Heap)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(mv), nil
	})

	table.Register(RangeHeapStats+1, "reflect.findInstances", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.findInstances")
		if err != nil {
			return nativeabi.Result{}, err
		}
		instances := r.FindInstances(id)
		av, err := ctx.Heap.NewArray(len(instances))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(av)
		for i, inst := range instances {
			arr.Set(i, inst)
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeHeapStats+2, "reflect.getRetainedSize", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getRetainedSize expects (value)")
		}
		size, err := r.GetRetainedSize(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.U64(size)), nil
	})

	table.Register(RangeHeapStats+3, "reflect.getReferrers", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getReferrers expects (value)")
		}
		refs, err := r.GetReferrers(args[0])
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
