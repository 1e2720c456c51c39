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

// GetField reads instance's field named name, reporting ok=false (never an
// error) if name is not a declared field — spec's "unknown field/method
// name returns a sentinel, it never throws" rule for the read path.
func (r *Reflector) GetField(instance value.Value, name string) (value.Value, bool, error) {
	obj, ok := heap.AsObject(instance)
	if !ok {
		return value.Value{}, false, rerrors.TypeError("reflect: getField target is not a class instance")
	}
	_, m, err := r.classOf(instance)
	if err != nil {
		return value.Value{}, false, err
	}
	i, ok := fieldSlot(m, name)
	if !ok {
		return value.Value{}, false, nil
	}
	return obj.Fields[i], true, nil
}

// SetField writes v to instance's field named name, enforcing the
// permission store (spec §4.7, scenario S6): an unknown name returns the
// plain false sentinel before any other check; for a declared field a
// read-only field fails with ReadonlyAssignment, then a denied write with
// PermissionDenied.
func (r *Reflector) SetField(instance value.Value, name string, v value.Value) (bool, error) {
	obj, ok := heap.AsObject(instance)
	if !ok {
		return false, rerrors.TypeError("reflect: setField target is not a class instance")
	}
	c, m, err := r.classOf(instance)
	if err != nil {
		return false, err
	}
	i, ok := fieldSlot(m, name)
	if !ok {
		return false, nil
	}
	if m.FieldAttrs[i].ReadOnly {
		return false, rerrors.ReadonlyAssignment("reflect: field %q of class %q is read-only", name, c.Name)
	}
	if !r.permissions.CanWrite(instance, c.ID, name) {
		return false, rerrors.PermissionDenied("reflect: write to %q.%s denied by permission store", c.Name, name)
	}
	obj.Fields[i] = v
	return true, nil
}

// HasField reports whether instance's class declares a field named name.
func (r *Reflector) HasField(instance value.Value, name string) bool {
	_, m, err := r.classOf(instance)
	if err != nil {
		return false
	}
	_, ok := fieldSlot(m, name)
	return ok
}

// GetFieldNames returns classID's field names in declaration order
// (instance fields only; spec R2's ordering guarantee for built classes).
func (r *Reflector) GetFieldNames(classID uint32) ([]string, error) {
	m, ok := r.classes.Metadata(classID)
	if !ok {
		return nil, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	out := make([]string, len(m.FieldNames))
	copy(out, m.FieldNames)
	return out, nil
}

// GetStaticFieldNames returns classID's static field names in declaration
// order.
func (r *Reflector) GetStaticFieldNames(classID uint32) ([]string, error) {
	m, ok := r.classes.Metadata(classID)
	if !ok {
		return nil, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	out := make([]string, len(m.StaticFieldNames))
	copy(out, m.StaticFieldNames)
	return out, nil
}

// getFieldInfoMap builds the Map spec's getFieldInfo(classId, name) returns:
// name, readOnly, static, declaringClass.
func (r *Reflector) getFieldInfoMap(h *heap.Heap, classID uint32, name string) (value.Value, bool, error) {
	m, ok := r.classes.Metadata(classID)
	if !ok {
		return value.Value{}, false, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	i, ok := fieldSlot(m, name)
	if !ok {
		return value.Value{}, false, nil
	}
	attr := m.FieldAttrs[i]
	mv, err := h.NewMap()
	if err != nil {
		return value.Value{}, false, err
	}
	mo, _ := heap.AsMap(mv)
	if err := mapPutString(h, mo, "name", attr.Name); err != nil {
		return value.Value{}, false, err
	}
	if err := mapPutValue(h, mo, "readOnly", value.Bool(attr.ReadOnly)); err != nil {
		return value.Value{}, false, err
	}
	if err := mapPutValue(h, mo, "static", value.Bool(attr.Static)); err != nil {
		return value.Value{}, false, err
	}
	if err := mapPutValue(h, mo, "declaringClass", value.U64(uint64(attr.DeclaringClass))); err != nil {
		return value.Value{}, false, err
	}
	return mv, true, nil
}

// mapPutValue inserts mo[key] = val, allocating the key RayaString through
// h. mapPutString is the common case of a string-keyed, string-valued
// entry.
func mapPutValue(h *heap.Heap, mo *heap.MapObject, key string, val value.Value) error {
	kv, err := h.NewString(key)
	if err != nil {
		return err
	}
	mo.Set(kv, val)
	return nil
}

func mapPutString(h *heap.Heap, mo *heap.MapObject, key, val string) error {
	vv, err := h.NewString(val)
	if err != nil {
		return err
	}
	return mapPutValue(h, mo, key, vv)
}

func registerFields(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeFields, "reflect.getField", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getField expects (instance, name)")
		}
		name, err := argString(args, 1, "reflect.getField")
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, ok, err := r.GetField(args[0], name)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(RangeFields+1, "reflect.setField", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 3 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.setField expects (instance, name, value)")
		}
		name, err := argString(args, 1, "reflect.setField")
		if err != nil {
			return nativeabi.Result{}, err
		}
		ok, err := r.SetField(args[0], name, args[2])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(ok)), nil
	})

	table.Register(RangeFields+2, "reflect.hasField", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.hasField expects (instance, name)")
		}
		name, err := argString(args, 1, "reflect.hasField")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.HasField(args[0], name))), nil
	})

	table.Register(RangeFields+3, "reflect.getFieldNames", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getFieldNames")
		if err != nil {
			return nativeabi.Result{}, err
		}
		names, err := r.GetFieldNames(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, names)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeFields+4, "reflect.getStaticFieldNames", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getStaticFieldNames")
		if err != nil {
			return nativeabi.Result{}, err
		}
		names, err := r.GetStaticFieldNames(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, names)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeFields+5, "reflect.getFieldInfo", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getFieldInfo")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.getFieldInfo")
		if err != nil {
			return nativeabi.Result{}, err
		}
		mv, ok, err := r.getFieldInfoMap(ctx.Heap, id, name)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(mv), nil
	})

	table.Register(RangeFields+6, "reflect.getFields", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getFields")
		if err != nil {
			return nativeabi.Result{}, err
		}
		names, err := r.GetFieldNames(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := ctx.Heap.NewArray(len(names))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(av)
		for i, n := range names {
			info, _, err := r.getFieldInfoMap(ctx.Heap, id, n)
			if err != nil {
				return nativeabi.Result{}, err
			}
			arr.Set(i, info)
		}
		return nativeabi.Pushed(av), nil
	})
}
