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
	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// GetClass returns the class id of an instance Value.
func (r *Reflector) GetClass(v value.Value) (uint32, error) {
	c, _, err := r.classOf(v)
	if err != nil {
		return 0, err
	}
	return c.ID, nil
}

// GetClassByName resolves a class id by its declared name.
func (r *Reflector) GetClassByName(name string) (uint32, bool) {
	c, ok := r.classes.GetByName(name)
	if !ok {
		return 0, false
	}
	return c.ID, true
}

// GetAllClasses returns every registered class id, in registration order.
func (r *Reflector) GetAllClasses() []uint32 {
	all := r.classes.All()
	ids := make([]uint32, len(all))
	for i, c := range all {
		ids[i] = c.ID
	}
	return ids
}

// IsSubclassOf reports whether child is class or a transitive subclass of
// ancestor (spec P6: reflexive on child==ancestor).
func (r *Reflector) IsSubclassOf(child, ancestor uint32) bool {
	return r.classes.IsSubclassOf(child, ancestor)
}

// IsInstanceOf reports whether v's class is classID or a subclass of it
// (spec P6).
func (r *Reflector) IsInstanceOf(v value.Value, classID uint32) bool {
	c, _, err := r.classOf(v)
	if err != nil {
		return false
	}
	return r.classes.IsSubclassOf(c.ID, classID)
}

// GetClassHierarchy returns classID's ancestor chain, classID first,
// ending at the root class.
func (r *Reflector) GetClassHierarchy(classID uint32) ([]uint32, error) {
	chain, err := r.classes.Hierarchy(classID)
	if err != nil {
		return nil, err
	}
	ids := make([]uint32, len(chain))
	for i, c := range chain {
		ids[i] = c.ID
	}
	return ids, nil
}

// GetSuperclass returns classID's immediate parent, or (0, false) at the
// hierarchy root.
func (r *Reflector) GetSuperclass(classID uint32) (uint32, bool, error) {
	c, ok := r.classes.Get(classID)
	if !ok {
		return 0, false, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	if c.ParentID == nil {
		return 0, false, nil
	}
	return *c.ParentID, true, nil
}

// GetSubclasses returns every registered class whose parent chain passes
// through classID, in registration order.
func (r *Reflector) GetSubclasses(classID uint32) []uint32 {
	var out []uint32
	for _, c := range r.classes.All() {
		if c.ID == classID {
			continue
		}
		if c.ParentID != nil && r.classes.IsSubclassOf(c.ID, classID) {
			out = append(out, c.ID)
		}
	}
	return out
}

// Implements reports whether classID (or an ancestor) declares
// interfaceName.
func (r *Reflector) Implements(classID uint32, interfaceName string) bool {
	ifaces, err := r.GetInterfaces(classID)
	if err != nil {
		return false
	}
	for _, i := range ifaces {
		if i == interfaceName {
			return true
		}
	}
	return false
}

// GetInterfaces returns the union of interface names declared anywhere in
// classID's ancestor chain.
func (r *Reflector) GetInterfaces(classID uint32) ([]string, error) {
	chain, err := r.classes.Hierarchy(classID)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]bool)
	var out []string
	for _, c := range chain {
		m, ok := r.classes.Metadata(c.ID)
		if !ok {
			continue
		}
		for _, i := range m.Interfaces {
			if !seen[i] {
				seen[i] = true
				out = append(out, i)
			}
		}
	}
	return out, nil
}

// GetImplementors returns every registered class that declares
// interfaceName anywhere in its hierarchy.
func (r *Reflector) GetImplementors(interfaceName string) []uint32 {
	var out []uint32
	for _, c := range r.classes.All() {
		if r.Implements(c.ID, interfaceName) {
			out = append(out, c.ID)
		}
	}
	return out
}

// IsStructurallyCompatible reports whether every field aClass declares is
// also declared (by name) somewhere in bClass's hierarchy — a duck-typing
// check independent of nominal inheritance, used by reflect's gradual-
// typing surface to validate a cast without a common ancestor.
func (r *Reflector) IsStructurallyCompatible(aClass, bClass uint32) bool {
	am, aok := r.classes.Metadata(aClass)
	_, bok := r.classes.Get(bClass)
	if !aok || !bok {
		return false
	}
	bFields := make(map[string]bool)
	chain, err := r.classes.Hierarchy(bClass)
	if err != nil {
		return false
	}
	for _, c := range chain {
		if m, ok := r.classes.Metadata(c.ID); ok {
			for _, n := range m.FieldNames {
				bFields[n] = true
			}
		}
	}
	for _, n := range am.FieldNames {
		if !bFields[n] {
			return false
		}
	}
	return true
}

// classInfoMap renders c/m as a MapObject keyed by string field names,
// the shared payload behind getTypeInfo and describe's class summary.
func (r *Reflector) classInfoMap(h *heap.Heap, c *class.Class, m *class.Metadata) (value.Value, error) {
	mv, err := h.NewMap()
	if err != nil {
		return value.Value{}, err
	}
	mo, _ := heap.AsMap(mv)
	put := func(key string, v value.Value) error {
		kv, err := h.NewString(key)
		if err != nil {
			return err
		}
		mo.Set(kv, v)
		return nil
	}
	nameV, err := h.NewString(c.Name)
	if err != nil {
		return value.Value{}, err
	}
	if err := put("name", nameV); err != nil {
		return value.Value{}, err
	}
	if err := put("fieldCount", value.I32(int32(c.FieldCount))); err != nil {
		return value.Value{}, err
	}
	if err := put("isAbstract", value.Bool(c.IsAbstract)); err != nil {
		return value.Value{}, err
	}
	if c.ParentID != nil {
		if err := put("parentId", value.U64(uint64(*c.ParentID))); err != nil {
			return value.Value{}, err
		}
	} else {
		if err := put("parentId", value.Null()); err != nil {
			return value.Value{}, err
		}
	}
	fieldNames, err := stringArray(h, m.FieldNames)
	if err != nil {
		return value.Value{}, err
	}
	if err := put("fieldNames", fieldNames); err != nil {
		return value.Value{}, err
	}
	methodNames, err := stringArray(h, m.MethodNames)
	if err != nil {
		return value.Value{}, err
	}
	if err := put("methodNames", methodNames); err != nil {
		return value.Value{}, err
	}
	return mv, nil
}

// stringArray allocates an Array of RayaStrings from names.
func stringArray(h *heap.Heap, names []string) (value.Value, error) {
	av, err := h.NewArray(len(names))
	if err != nil {
		return value.Value{}, err
	}
	arr, _ := heap.AsArray(av)
	for i, n := range names {
		sv, err := h.NewString(n)
		if err != nil {
			return value.Value{}, err
		}
		arr.Set(i, sv)
	}
	return av, nil
}

// GetTypeInfo returns classID's descriptor as a reflective Map value.
func (r *Reflector) GetTypeInfo(h *heap.Heap, classID uint32) (value.Value, error) {
	c, ok := r.classes.Get(classID)
	if !ok {
		return value.Value{}, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	m, _ := r.classes.Metadata(classID)
	return r.classInfoMap(h, c, m)
}

func argClassID(args []value.Value, i int, what string) (uint32, error) {
	if i >= len(args) {
		return 0, rerrors.ArgumentCountMismatch("%s: missing argument %d", what, i)
	}
	id, ok := args[i].AsU64()
	if !ok {
		return 0, rerrors.TypeError("%s: argument %d must be a class id", what, i)
	}
	return uint32(id), nil
}

func idArray(h *heap.Heap, ids []uint32) (value.Value, error) {
	av, err := h.NewArray(len(ids))
	if err != nil {
		return value.Value{}, err
	}
	arr, _ := heap.AsArray(av)
	for i, id := range ids {
		arr.Set(i, value.U64(uint64(id)))
	}
	return av, nil
}

func registerIntrospect(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeIntrospect, "reflect.getClass", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getClass expects (value)")
		}
		id, err := r.GetClass(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.U64(uint64(id))), nil
	})

	table.Register(RangeIntrospect+1, "reflect.getClassByName", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		name, err := argString(args, 0, "reflect.getClassByName")
		if err != nil {
			return nativeabi.Result{}, err
		}
		id, ok := r.GetClassByName(name)
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(value.U64(uint64(id))), nil
	})

	table.Register(RangeIntrospect+2, "reflect.getAllClasses", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		av, err := idArray(ctx.Heap, r.GetAllClasses())
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeIntrospect+3, "reflect.isSubclassOf", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		a, err := argClassID(args, 0, "reflect.isSubclassOf")
		if err != nil {
			return nativeabi.Result{}, err
		}
		b, err := argClassID(args, 1, "reflect.isSubclassOf")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.IsSubclassOf(a, b))), nil
	})

	table.Register(RangeIntrospect+4, "reflect.isInstanceOf", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.isInstanceOf expects (value, classId)")
		}
		id, err := argClassID(args, 1, "reflect.isInstanceOf")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.IsInstanceOf(args[0], id))), nil
	})

	table.Register(RangeIntrospect+5, "reflect.getClassHierarchy", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getClassHierarchy")
		if err != nil {
			return nativeabi.Result{}, err
		}
		ids, err := r.GetClassHierarchy(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := idArray(ctx.Heap, ids)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeIntrospect+6, "reflect.getTypeInfo", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getTypeInfo")
		if err != nil {
			return nativeabi.Result{}, err
		}
		mv, err := r.GetTypeInfo(ctx.Heap, id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(mv), nil
	})

	table.Register(RangeIntrospect+7, "reflect.getSuperclass", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getSuperclass")
		if err != nil {
			return nativeabi.Result{}, err
		}
		parent, ok, err := r.GetSuperclass(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(value.U64(uint64(parent))), nil
	})

	table.Register(RangeIntrospect+8, "reflect.getSubclasses", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getSubclasses")
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := idArray(ctx.Heap, r.GetSubclasses(id))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeIntrospect+9, "reflect.implements", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.implements")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.implements")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.Implements(id, name))), nil
	})

	table.Register(RangeIntrospect+10, "reflect.getInterfaces", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getInterfaces")
		if err != nil {
			return nativeabi.Result{}, err
		}
		names, err := r.GetInterfaces(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, names)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeIntrospect+11, "reflect.getImplementors", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		name, err := argString(args, 0, "reflect.getImplementors")
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := idArray(ctx.Heap, r.GetImplementors(name))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeIntrospect+12, "reflect.isStructurallyCompatible", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		a, err := argClassID(args, 0, "reflect.isStructurallyCompatible")
		if err != nil {
			return nativeabi.Result{}, err
		}
		b, err := argClassID(args, 1, "reflect.isStructurallyCompatible")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.IsStructurallyCompatible(a, b))), nil
	})
}
