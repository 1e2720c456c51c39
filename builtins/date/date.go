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

// Package date registers the DateObject native family (spec §3.2, §4.4):
// a millisecond timestamp plus UTC-derived accessors.
package date

import (
	"time"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

const DateCreate nativeabi.NativeID = nativeabi.RangeDate + 100

func asDate(args []value.Value, i int) (*heap.DateObject, error) {
	if i >= len(args) {
		return nil, rerrors.ArgumentCountMismatch("date native: missing argument %d", i)
	}
	d, ok := heap.AsDate(args[i])
	if !ok {
		return nil, rerrors.TypeError("date native: argument %d is not a date", i)
	}
	return d, nil
}

func timeOf(d *heap.DateObject) time.Time {
	return time.UnixMilli(d.Millis).UTC()
}

// Register installs every DateObject native handler into table. now is
// injected so the engine can wire a real or fake clock; callers typically
// pass time.Now().UnixMilli as the producer of DateNow.
func Register(table *nativeabi.Table, nowMs func() int64) {
	table.Register(nativeabi.DateNow, "date.now", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		v, err := ctx.Heap.NewDate(nowMs())
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(DateCreate, "date.create", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("date.create expects (millis)")
		}
		millis, ok := args[0].NumericValue()
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("date.create expects a numeric millisecond value")
		}
		v, err := ctx.Heap.NewDate(int64(millis))
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(nativeabi.DateGetTime, "date.getTime", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I64(d.Millis)), nil
	})

	table.Register(nativeabi.DateGetYear, "date.getYear", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(timeOf(d).Year()))), nil
	})

	table.Register(nativeabi.DateGetMonth, "date.getMonth", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(timeOf(d).Month()) - 1)), nil
	})

	table.Register(nativeabi.DateGetDate, "date.getDate", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(timeOf(d).Day()))), nil
	})

	table.Register(nativeabi.DateGetHours, "date.getHours", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(timeOf(d).Hour()))), nil
	})

	table.Register(nativeabi.DateGetMinutes, "date.getMinutes", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(timeOf(d).Minute()))), nil
	})

	table.Register(nativeabi.DateGetSeconds, "date.getSeconds", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(timeOf(d).Second()))), nil
	})

	table.Register(nativeabi.DateGetMilliseconds, "date.getMilliseconds", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		d, err := asDate(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(d.Millis % 1000))), nil
	})
}
