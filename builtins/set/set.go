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

// Package set registers the SetObject native family (spec §3.2, §4.4):
// add/has/delete/size/values plus the set-algebra ops, which delegate to
// heap.SetObject's github.com/deckarep/golang-set backing.
package set

import (
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

func asSet(args []value.Value, i int) (*heap.SetObject, error) {
	if i >= len(args) {
		return nil, rerrors.ArgumentCountMismatch("set native: missing argument %d", i)
	}
	s, ok := heap.AsSet(args[i])
	if !ok {
		return nil, rerrors.TypeError("set native: argument %d is not a set", i)
	}
	return s, nil
}

func toArray(ctx *nativeabi.Context, elems []value.Value) (value.Value, error) {
	arrVal, err := ctx.Heap.NewArray(len(elems))
	if err != nil {
		return value.Value{}, err
	}
	arr, _ := heap.AsArray(arrVal)
	for i, e := range elems {
		arr.Set(i, e)
	}
	return arrVal, nil
}

// Register installs every SetObject native handler into table.
func Register(table *nativeabi.Table) {
	table.Register(nativeabi.SetAdd, "set.add", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		s, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("set.add expects (set, value)")
		}
		s.Add(args[1])
		return nativeabi.Pushed(args[0]), nil
	})

	table.Register(nativeabi.SetHas, "set.has", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		s, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("set.has expects (set, value)")
		}
		return nativeabi.Pushed(value.Bool(s.Has(args[1]))), nil
	})

	table.Register(nativeabi.SetDelete, "set.delete", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		s, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("set.delete expects (set, value)")
		}
		return nativeabi.Pushed(value.Bool(s.Delete(args[1]))), nil
	})

	table.Register(nativeabi.SetSize, "set.size", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		s, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(s.Size()))), nil
	})

	table.Register(nativeabi.SetValues, "set.values", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		s, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		arrVal, err := toArray(ctx, s.Values())
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(arrVal), nil
	})

	table.Register(nativeabi.SetClear, "set.clear", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		s, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		s.Clear()
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(nativeabi.SetUnion, "set.union", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		a, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		b, err := asSet(args, 1)
		if err != nil {
			return nativeabi.Result{}, err
		}
		resultVal, err := ctx.Heap.NewSetFrom(a.Union(b))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(resultVal), nil
	})

	table.Register(nativeabi.SetIntersection, "set.intersection", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		a, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		b, err := asSet(args, 1)
		if err != nil {
			return nativeabi.Result{}, err
		}
		resultVal, err := ctx.Heap.NewSetFrom(a.Intersection(b))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(resultVal), nil
	})

	table.Register(nativeabi.SetDifference, "set.difference", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		a, err := asSet(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		b, err := asSet(args, 1)
		if err != nil {
			return nativeabi.Result{}, err
		}
		resultVal, err := ctx.Heap.NewSetFrom(a.Difference(b))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(resultVal), nil
	})
}
