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

// DecoratorKind discriminates what a decorator annotates (spec §4.6's four
// decorator targets).
type DecoratorKind uint8

const (
	DecorateClass DecoratorKind = iota
	DecorateMethod
	DecorateField
	DecorateParameter
)

// decoratorKey identifies one decorator attachment point.
type decoratorKey struct {
	kind     DecoratorKind
	classID  uint32
	member   string // method/field name; "" for a class-level decorator
	paramIdx int    // only meaningful for DecorateParameter
}

// DecoratorRegistry records arbitrary name -> argument-Value annotations
// attached to classes, methods, fields, or parameters, queried back by
// name (spec §4.6: decorators carry data for a runtime or library to act
// on, not the engine itself — this registry is pure storage).
type DecoratorRegistry struct {
	entries map[decoratorKey]map[string][]value.Value
}

func newDecoratorRegistry() *DecoratorRegistry {
	return &DecoratorRegistry{entries: make(map[decoratorKey]map[string][]value.Value)}
}

func (d *DecoratorRegistry) bucket(key decoratorKey) map[string][]value.Value {
	m, ok := d.entries[key]
	if !ok {
		m = make(map[string][]value.Value)
		d.entries[key] = m
	}
	return m
}

// RegisterClassDecorator attaches name(args...) to classID itself.
func (d *DecoratorRegistry) RegisterClassDecorator(classID uint32, name string, args []value.Value) {
	key := decoratorKey{kind: DecorateClass, classID: classID}
	d.bucket(key)[name] = args
}

// RegisterMethodDecorator attaches name(args...) to classID's method
// methodName.
func (d *DecoratorRegistry) RegisterMethodDecorator(classID uint32, methodName, name string, args []value.Value) {
	key := decoratorKey{kind: DecorateMethod, classID: classID, member: methodName}
	d.bucket(key)[name] = args
}

// RegisterFieldDecorator attaches name(args...) to classID's field
// fieldName.
func (d *DecoratorRegistry) RegisterFieldDecorator(classID uint32, fieldName, name string, args []value.Value) {
	key := decoratorKey{kind: DecorateField, classID: classID, member: fieldName}
	d.bucket(key)[name] = args
}

// RegisterParameterDecorator attaches name(args...) to parameter paramIdx of
// classID's method methodName.
func (d *DecoratorRegistry) RegisterParameterDecorator(classID uint32, methodName string, paramIdx int, name string, args []value.Value) {
	key := decoratorKey{kind: DecorateParameter, classID: classID, member: methodName, paramIdx: paramIdx}
	d.bucket(key)[name] = args
}

// GetClassDecorators returns every decorator name attached to classID
// itself, in no particular order (storage is a map; spec places no
// ordering requirement on decorator enumeration).
func (d *DecoratorRegistry) GetClassDecorators(classID uint32) []string {
	return d.names(decoratorKey{kind: DecorateClass, classID: classID})
}

// GetMethodDecorators returns every decorator name attached to classID's
// method methodName.
func (d *DecoratorRegistry) GetMethodDecorators(classID uint32, methodName string) []string {
	return d.names(decoratorKey{kind: DecorateMethod, classID: classID, member: methodName})
}

// GetFieldDecorators returns every decorator name attached to classID's
// field fieldName.
func (d *DecoratorRegistry) GetFieldDecorators(classID uint32, fieldName string) []string {
	return d.names(decoratorKey{kind: DecorateField, classID: classID, member: fieldName})
}

// HasDecorator reports whether classID (at the class level) carries a
// decorator named name.
func (d *DecoratorRegistry) HasDecorator(classID uint32, name string) bool {
	m, ok := d.entries[decoratorKey{kind: DecorateClass, classID: classID}]
	if !ok {
		return false
	}
	_, ok = m[name]
	return ok
}

// GetDecoratorArgs returns the arguments a class-level decorator named name
// was registered with.
func (d *DecoratorRegistry) GetDecoratorArgs(classID uint32, name string) ([]value.Value, bool) {
	m, ok := d.entries[decoratorKey{kind: DecorateClass, classID: classID}]
	if !ok {
		return nil, false
	}
	args, ok := m[name]
	return args, ok
}

func (d *DecoratorRegistry) names(key decoratorKey) []string {
	m, ok := d.entries[key]
	if !ok {
		return nil
	}
	out := make([]string, 0, len(m))
	for name := range m {
		out = append(out, name)
	}
	return out
}

func registerDecorators(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeDecorators, "reflect.registerClassDecorator", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.registerClassDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.registerClassDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		r.decorators.RegisterClassDecorator(classID, name, args[2:])
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeDecorators+1, "reflect.registerMethodDecorator", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.registerMethodDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		method, err := argString(args, 1, "reflect.registerMethodDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 2, "reflect.registerMethodDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		r.decorators.RegisterMethodDecorator(classID, method, name, args[3:])
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeDecorators+2, "reflect.registerFieldDecorator", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.registerFieldDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		field, err := argString(args, 1, "reflect.registerFieldDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 2, "reflect.registerFieldDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		r.decorators.RegisterFieldDecorator(classID, field, name, args[3:])
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeDecorators+3, "reflect.registerParameterDecorator", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 4 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.registerParameterDecorator expects (classId, method, paramIdx, name, ...)")
		}
		classID, err := argClassID(args, 0, "reflect.registerParameterDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		method, err := argString(args, 1, "reflect.registerParameterDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		paramIdx, ok := args[2].NumericValue()
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("reflect.registerParameterDecorator: argument 2 must be a number")
		}
		name, err := argString(args, 3, "reflect.registerParameterDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		r.decorators.RegisterParameterDecorator(classID, method, int(paramIdx), name, args[4:])
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeDecorators+4, "reflect.getClassDecorators", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.getClassDecorators")
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, r.decorators.GetClassDecorators(classID))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeDecorators+5, "reflect.getMethodDecorators", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.getMethodDecorators")
		if err != nil {
			return nativeabi.Result{}, err
		}
		method, err := argString(args, 1, "reflect.getMethodDecorators")
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, r.decorators.GetMethodDecorators(classID, method))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeDecorators+6, "reflect.getFieldDecorators", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.getFieldDecorators")
		if err != nil {
			return nativeabi.Result{}, err
		}
		field, err := argString(args, 1, "reflect.getFieldDecorators")
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := stringArray(ctx.Heap, r.decorators.GetFieldDecorators(classID, field))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeDecorators+7, "reflect.hasDecorator", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.hasDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.hasDecorator")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.decorators.HasDecorator(classID, name))), nil
	})

	table.Register(RangeDecorators+8, "reflect.getDecoratorArgs", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		classID, err := argClassID(args, 0, "reflect.getDecoratorArgs")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.getDecoratorArgs")
		if err != nil {
			return nativeabi.Result{}, err
		}
		decArgs, ok := r.decorators.GetDecoratorArgs(classID, name)
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		av, err := ctx.Heap.NewArray(len(decArgs))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(av)
		for i, a := range decArgs {
			arr.Set(i, a)
		}
		return nativeabi.Pushed(av), nil
	})
}
