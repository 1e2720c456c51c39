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

// Package buffer registers the Buffer native family (spec §3.2, §4.4):
// little-endian i32/f64 view ops over a mutable byte buffer.
package buffer

import (
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

const (
	BufferAlloc nativeabi.NativeID = nativeabi.RangeBuffer + iota
	BufferLen
	BufferGetByte
	BufferSetByte
	BufferGetInt32
	BufferSetInt32
	BufferGetFloat64
	BufferSetFloat64
)

func asBuffer(args []value.Value, i int) (*heap.Buffer, error) {
	if i >= len(args) {
		return nil, rerrors.ArgumentCountMismatch("buffer native: missing argument %d", i)
	}
	b, ok := heap.AsBuffer(args[i])
	if !ok {
		return nil, rerrors.TypeError("buffer native: argument %d is not a buffer", i)
	}
	return b, nil
}

func asInt(v value.Value) (int, error) {
	if i, ok := v.AsI32(); ok {
		return int(i), nil
	}
	if f, ok := v.NumericValue(); ok {
		return int(f), nil
	}
	return 0, rerrors.TypeError("expected a numeric argument")
}

// Register installs every Buffer native handler into table.
func Register(table *nativeabi.Table) {
	table.Register(BufferAlloc, "buffer.alloc", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 1 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("buffer.alloc expects (size)")
		}
		n, err := asInt(args[0])
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := ctx.Heap.NewBuffer(n)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(BufferLen, "buffer.len", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		b, err := asBuffer(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(b.Len()))), nil
	})

	table.Register(BufferGetByte, "buffer.getByte", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		b, err := asBuffer(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		i, err := asInt(args[1])
		if err != nil {
			return nativeabi.Result{}, err
		}
		by, err := b.GetByte(i)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(by))), nil
	})

	table.Register(BufferSetByte, "buffer.setByte", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		b, err := asBuffer(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		i, err := asInt(args[1])
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := asInt(args[2])
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := b.SetByte(i, byte(v)); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(BufferGetInt32, "buffer.getInt32", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		b, err := asBuffer(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		off, err := asInt(args[1])
		if err != nil {
			return nativeabi.Result{}, err
		}
		i32, err := b.GetInt32(off)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(i32)), nil
	})

	table.Register(BufferSetInt32, "buffer.setInt32", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		b, err := asBuffer(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		off, err := asInt(args[1])
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := asInt(args[2])
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := b.SetInt32(off, int32(v)); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(BufferGetFloat64, "buffer.getFloat64", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		b, err := asBuffer(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		off, err := asInt(args[1])
		if err != nil {
			return nativeabi.Result{}, err
		}
		f, err := b.GetFloat64(off)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.F64(f)), nil
	})

	table.Register(BufferSetFloat64, "buffer.setFloat64", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		b, err := asBuffer(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		off, err := asInt(args[1])
		if err != nil {
			return nativeabi.Result{}, err
		}
		f, ok := args[2].NumericValue()
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("buffer.setFloat64 expects a numeric value")
		}
		if err := b.SetFloat64(off, f); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})
}
