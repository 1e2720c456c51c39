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
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

func (r *Reflector) IsString(v value.Value) bool  { return v.IsPtr() && v.Kind() == value.KindString }
func (r *Reflector) IsNumber(v value.Value) bool   { return v.IsNumeric() }
func (r *Reflector) IsBoolean(v value.Value) bool  { return v.IsBool() }
func (r *Reflector) IsNullVal(v value.Value) bool  { return v.IsNull() }
func (r *Reflector) IsArray(v value.Value) bool    { return v.IsPtr() && v.Kind() == value.KindArray }
func (r *Reflector) IsFunction(v value.Value) bool { return v.IsPtr() && v.Kind() == value.KindClosure }
func (r *Reflector) IsObject(v value.Value) bool   { return v.IsPtr() && v.Kind() == value.KindObject }

// IsAssignableTo reports whether v could be assigned to a slot statically
// typed classID: an Object instance is assignable if IsInstanceOf holds;
// any other Value is not assignable.
func (r *Reflector) IsAssignableTo(v value.Value, classID uint32) bool {
	if r.IsObject(v) {
		return r.IsInstanceOf(v, classID)
	}
	return false
}

// Cast returns v unchanged if it is assignable to classID, else (Value{},
// false) — the non-throwing half of spec §4.4's cast/castOrThrow pair.
func (r *Reflector) Cast(v value.Value, classID uint32) (value.Value, bool) {
	if r.IsAssignableTo(v, classID) {
		return v, true
	}
	return value.Value{}, false
}

// CastOrThrow is Cast's throwing half: a TypeError naming both the
// expected class and the value's actual runtime type.
func (r *Reflector) CastOrThrow(v value.Value, classID uint32) (value.Value, error) {
	if cast, ok := r.Cast(v, classID); ok {
		return cast, nil
	}
	c, _ := r.classes.Get(classID)
	name := "?"
	if c != nil {
		name = c.Name
	}
	return value.Value{}, rerrors.TypeError("reflect: value of type %q is not assignable to %q", r.TypeOf(v), name)
}

func registerTypeUtil(table *nativeabi.Table, r *Reflector) {
	unary := func(id NativeID, name string, pred func(value.Value) bool) {
		table.Register(id, name, func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
			if len(args) < 1 {
				return nativeabi.Result{}, rerrors.ArgumentCountMismatch("%s expects (value)", name)
			}
			return nativeabi.Pushed(value.Bool(pred(args[0]))), nil
		})
	}
	unary(RangeTypeUtil, "reflect.isString", r.IsString)
	unary(RangeTypeUtil+1, "reflect.isNumber", r.IsNumber)
	unary(RangeTypeUtil+2, "reflect.isBoolean", r.IsBoolean)
	unary(RangeTypeUtil+3, "reflect.isNull", r.IsNullVal)
	unary(RangeTypeUtil+4, "reflect.isArray", r.IsArray)
	unary(RangeTypeUtil+5, "reflect.isFunction", r.IsFunction)
	unary(RangeTypeUtil+6, "reflect.isObject", r.IsObject)

	table.Register(RangeTypeUtil+7, "reflect.typeOf", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.typeOf expects (value)")
		}
		s, err := ctx.Heap.NewString(r.TypeOf(args[0]))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(s), nil
	})

	table.Register(RangeTypeUtil+8, "reflect.isAssignableTo", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.isAssignableTo expects (value, classId)")
		}
		id, err := argClassID(args, 1, "reflect.isAssignableTo")
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Bool(r.IsAssignableTo(args[0], id))), nil
	})

	table.Register(RangeTypeUtil+9, "reflect.cast", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.cast expects (value, classId)")
		}
		id, err := argClassID(args, 1, "reflect.cast")
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, ok := r.Cast(args[0], id)
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(RangeTypeUtil+10, "reflect.castOrThrow", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("reflect.castOrThrow expects (value, classId)")
		}
		id, err := argClassID(args, 1, "reflect.castOrThrow")
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := r.CastOrThrow(args[0], id)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})
}
