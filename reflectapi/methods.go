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

// HasMethod reports whether instance's class declares a method named name.
func (r *Reflector) HasMethod(instance value.Value, name string) bool {
	_, m, err := r.classOf(instance)
	if err != nil {
		return false
	}
	_, ok := methodSlot(m, name)
	return ok
}

// GetMethods returns classID's method names in vtable-slot order.
func (r *Reflector) GetMethods(classID uint32) ([]string, error) {
	m, ok := r.classes.Metadata(classID)
	if !ok {
		return nil, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	out := make([]string, len(m.MethodNames))
	copy(out, m.MethodNames)
	return out, nil
}

// GetStaticMethods returns classID's static method names.
func (r *Reflector) GetStaticMethods(classID uint32) ([]string, error) {
	m, ok := r.classes.Metadata(classID)
	if !ok {
		return nil, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	out := make([]string, len(m.StaticMethodNames))
	copy(out, m.StaticMethodNames)
	return out, nil
}

// GetMethod resolves name to its vtable function id on instance's class,
// reporting ok=false (not an error) if no such method is declared.
func (r *Reflector) GetMethod(instance value.Value, name string) (uint32, bool, error) {
	c, m, err := r.classOf(instance)
	if err != nil {
		return 0, false, err
	}
	i, ok := methodSlot(m, name)
	if !ok {
		return 0, false, nil
	}
	return c.VTable[i], true, nil
}

// getMethodInfoMap builds the Map spec's getMethodInfo(classId, name)
// returns: name, async, static, paramCount, declaringClass.
func (r *Reflector) getMethodInfoMap(h *heap.Heap, classID uint32, name string) (value.Value, bool, error) {
	m, ok := r.classes.Metadata(classID)
	if !ok {
		return value.Value{}, false, rerrors.RuntimeError("reflect: unknown class id %d", classID)
	}
	i, ok := methodSlot(m, name)
	if !ok {
		return value.Value{}, false, nil
	}
	attr := m.MethodAttrs[i]
	mv, err := h.NewMap()
	if err != nil {
		return value.Value{}, false, err
	}
	mo, _ := heap.AsMap(mv)
	if err := mapPutString(h, mo, "name", attr.Name); err != nil {
		return value.Value{}, false, err
	}
	if err := mapPutValue(h, mo, "async", value.Bool(attr.Async)); err != nil {
		return value.Value{}, false, err
	}
	if err := mapPutValue(h, mo, "static", value.Bool(attr.Static)); err != nil {
		return value.Value{}, false, err
	}
	if err := mapPutValue(h, mo, "paramCount", value.I32(int32(attr.ParamCount))); err != nil {
		return value.Value{}, false, err
	}
	if err := mapPutValue(h, mo, "declaringClass", value.U64(uint64(attr.DeclaringClass))); err != nil {
		return value.Value{}, false, err
	}
	return mv, true, nil
}

func registerMethods(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeMethods, "reflect.hasMethod", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.hasMethod expects (instance, name)")
		}
		name, err := argString(args, 1, "reflect.hasMethod")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.HasMethod(args[0], name))), nil
	})

	table.Register(RangeMethods+1, "reflect.getMethods", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getMethods")
		if err != nil {
			return nativeabi.Result{}, err
		}
		names, err := r.GetMethods(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, names)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeMethods+2, "reflect.getMethod", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.getMethod expects (instance, name)")
		}
		name, err := argString(args, 1, "reflect.getMethod")
		if err != nil {
			return nativeabi.Result{}, err
		}
		fnID, ok, err := r.GetMethod(args[0], name)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(value.U64(uint64(fnID))), nil
	})

	table.Register(RangeMethods+3, "reflect.getMethodInfo", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getMethodInfo")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.getMethodInfo")
		if err != nil {
			return nativeabi.Result{}, err
		}
		mv, ok, err := r.getMethodInfoMap(ctx.Heap, id, name)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(mv), nil
	})

	table.Register(RangeMethods+4, "reflect.getStaticMethods", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		id, err := argClassID(args, 0, "reflect.getStaticMethods")
		if err != nil {
			return nativeabi.Result{}, err
		}
		names, err := r.GetStaticMethods(id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, names)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	// invoke / invokeAsync / invokeStatic / invokeDynamicMethod are
	// deliberately left unimplemented: calling back into the interpreter
	// from a native handler needs a call-stack re-entry path this runtime
	// does not provide yet (see design notes on the Await/reflect open
	// questions).
	notImplemented := func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		return nativeabi.Result{}, rerrors.ErrNotImplemented
	}
	table.Register(RangeMethods+5, "reflect.invoke", notImplemented)
	table.Register(RangeMethods+6, "reflect.invokeAsync", notImplemented)
	table.Register(RangeMethods+7, "reflect.invokeStatic", notImplemented)
	table.Register(RangeMethods+8, "reflect.invokeDynamicMethod", notImplemented)
}
