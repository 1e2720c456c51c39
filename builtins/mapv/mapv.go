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

// Package mapv registers the MapObject native family (spec §3.2, §4.4)
// into a nativeabi.Table: get/set/has/delete/size/keys/values/clear, all
// delegating straight to heap.MapObject's insertion-ordered storage.
package mapv

import (
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

func asMap(args []value.Value, i int) (*heap.MapObject, error) {
	if i >= len(args) {
		return nil, rerrors.ArgumentCountMismatch("map native: missing argument %d", i)
	}
	m, ok := heap.AsMap(args[i])
	if !ok {
		return nil, rerrors.TypeError("map native: argument %d is not a map", i)
	}
	return m, nil
}

// Register installs every MapObject native handler into table.
func Register(table *nativeabi.Table) {
	table.Register(nativeabi.MapGet, "map.get", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("map.get expects (map, key)")
		}
		v, ok := m.Get(args[1])
		if !ok {
			return nativeabi.Pushed(value.Null()), nil
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(nativeabi.MapSet, "map.set", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if len(args) < 3 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("map.set expects (map, key, value)")
		}
		m.Set(args[1], args[2])
		return nativeabi.Pushed(args[0]), nil
	})

	table.Register(nativeabi.MapHas, "map.has", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("map.has expects (map, key)")
		}
		return nativeabi.Pushed(value.Bool(m.Has(args[1]))), nil
	})

	table.Register(nativeabi.MapDelete, "map.delete", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("map.delete expects (map, key)")
		}
		return nativeabi.Pushed(value.Bool(m.Delete(args[1]))), nil
	})

	table.Register(nativeabi.MapSize, "map.size", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(m.Size()))), nil
	})

	table.Register(nativeabi.MapKeys, "map.keys", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		keys := m.Keys()
		arrVal, err := ctx.Heap.NewArray(len(keys))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(arrVal)
		for i, k := range keys {
			arr.Set(i, k)
		}
		return nativeabi.Pushed(arrVal), nil
	})

	table.Register(nativeabi.MapValues, "map.values", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		vals := m.Values()
		arrVal, err := ctx.Heap.NewArray(len(vals))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(arrVal)
		for i, v := range vals {
			arr.Set(i, v)
		}
		return nativeabi.Pushed(arrVal), nil
	})

	table.Register(nativeabi.MapClear, "map.clear", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		m, err := asMap(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		m.Clear()
		return nativeabi.Pushed(value.Null()), nil
	})
}
