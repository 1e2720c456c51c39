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
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// Allocate creates a zero-initialized instance of classID: every field
// null, no constructor run (spec §4.6's "allocate" primitive, used by
// ClassBuilder-produced classes and by deserializers that fill fields
// directly).
func (r *Reflector) Allocate(classID uint32) (value.Value, error) {
	c, ok := r.classes.Get(classID)
	if !ok {
		return value.Value{}, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	return r.heap.NewObject(c.ID, c.FieldCount)
}

// Construct allocates classID and, if a constructor is registered for it
// (RegisterConstructor / ClassBuilder.SetConstructor), records it for the
// caller to invoke — construction itself re-enters the interpreter, which
// reflectapi cannot do from inside a native handler (same limitation as
// invoke/invokeAsync/invokeStatic), so Construct returns the allocated
// instance plus the constructor function id for the caller to dispatch.
func (r *Reflector) Construct(classID uint32) (value.Value, uint32, bool, error) {
	inst, err := r.Allocate(classID)
	if err != nil {
		return value.Value{}, 0, false, err
	}
	fnID, ok := r.constructors[classID]
	return inst, fnID, ok, nil
}

// Clone produces a shallow copy of instance: same class, field slots copied
// by value (heap pointers aliased, not deep-copied).
func (r *Reflector) Clone(instance value.Value) (value.Value, error) {
	obj, ok := heap.AsObject(instance)
	if !ok {
		return value.Value{}, rerrors.TypeError("reflect: clone target is not a class instance")
	}
	out, err := r.heap.NewObject(obj.ClassID, len(obj.Fields))
	if err != nil {
		return value.Value{}, err
	}
	dst, _ := heap.AsObject(out)
	copy(dst.Fields, obj.Fields)
	return out, nil
}

// DeepClone produces a structurally independent copy of instance: every
// nested Object/Array/Map/Set reachable from it is itself cloned, so
// mutating the clone never affects the original (spec P5). Cycles are
// handled via a seen-set keyed on source identity, so a self-referential
// object graph clones to a matching self-referential graph rather than
// looping forever.
func (r *Reflector) DeepClone(instance value.Value) (value.Value, error) {
	seen := make(map[any]value.Value)
	return r.deepCloneValue(instance, seen)
}

func (r *Reflector) deepCloneValue(v value.Value, seen map[any]value.Value) (value.Value, error) {
	if !v.IsPtr() {
		return v, nil
	}
	key := v.IdentityKey()
	if cloned, ok := seen[key]; ok {
		return cloned, nil
	}
	switch v.Kind() {
	case value.KindObject:
		obj, _ := heap.AsObject(v)
		out, err := r.heap.NewObject(obj.ClassID, len(obj.Fields))
		if err != nil {
			return value.Value{}, err
		}
		seen[key] = out
		dst, _ := heap.AsObject(out)
		for i, f := range obj.Fields {
			cf, err := r.deepCloneValue(f, seen)
			if err != nil {
				return value.Value{}, err
			}
			dst.Fields[i] = cf
		}
		return out, nil
	case value.KindArray:
		arr, _ := heap.AsArray(v)
		out, err := r.heap.NewArray(arr.Len())
		if err != nil {
			return value.Value{}, err
		}
		seen[key] = out
		dst, _ := heap.AsArray(out)
		for i := 0; i < arr.Len(); i++ {
			el, _ := arr.Get(i)
			cf, err := r.deepCloneValue(el, seen)
			if err != nil {
				return value.Value{}, err
			}
			dst.Set(i, cf)
		}
		return out, nil
	case value.KindMap:
		m, _ := heap.AsMap(v)
		out, err := r.heap.NewMap()
		if err != nil {
			return value.Value{}, err
		}
		seen[key] = out
		dst, _ := heap.AsMap(out)
		for _, kv := range m.Entries() {
			ck, err := r.deepCloneValue(kv[0], seen)
			if err != nil {
				return value.Value{}, err
			}
			cv, err := r.deepCloneValue(kv[1], seen)
			if err != nil {
				return value.Value{}, err
			}
			dst.Set(ck, cv)
		}
		return out, nil
	case value.KindSet:
		s, _ := heap.AsSet(v)
		out, err := r.heap.NewSet()
		if err != nil {
			return value.Value{}, err
		}
		seen[key] = out
		dst, _ := heap.AsSet(out)
		for _, el := range s.Values() {
			ce, err := r.deepCloneValue(el, seen)
			if err != nil {
				return value.Value{}, err
			}
			dst.Add(ce)
		}
		return out, nil
	default:
		// Strings are immutable and closures/channels/buffers/etc. carry
		// identity or OS-level state that deep cloning must not duplicate;
		// alias them same as a shallow Clone would.
		return v, nil
	}
}

// GetConstructorInfo returns the function id registered as classID's
// constructor, if any.
func (r *Reflector) GetConstructorInfo(classID uint32) (uint32, bool) {
	fnID, ok := r.constructors[classID]
	return fnID, ok
}

func registerCreate(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeCreate, "reflect.allocate", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.allocate")
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := r.Allocate(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(RangeCreate+1, "reflect.construct", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.construct")
		if err != nil {
			return nativeabi.Result{}, err
		}
		inst, _, _, err := r.Construct(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(inst), nil
	})

	table.Register(RangeCreate+2, "reflect.clone", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.clone expects (instance)")
		}
		v, err := r.Clone(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(RangeCreate+3, "reflect.deepClone", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.deepClone expects (instance)")
		}
		v, err := r.DeepClone(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(RangeCreate+4, "reflect.getConstructorInfo", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getConstructorInfo")
		if err != nil {
			return nativeabi.Result{}, err
		}
		fnID, ok := r.GetConstructorInfo(id)
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(value.U64(uint64(fnID))), nil
	})
}
