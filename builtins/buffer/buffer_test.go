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

package buffer

import (
	"testing"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/value"
)

func newTestTable(t *testing.T) (*nativeabi.Table, *nativeabi.Context) {
	t.Helper()
	table := nativeabi.NewTable()
	Register(table)
	return table, &nativeabi.Context{Heap: heap.New(0)}
}

func mustDispatch(t *testing.T, table *nativeabi.Table, ctx *nativeabi.Context, id nativeabi.NativeID, args []value.Value) nativeabi.Result {
	t.Helper()
	res, err := table.Dispatch(id, ctx, args)
	if err != nil {
		t.Fatalf("Dispatch(0x%04X): %v", id, err)
	}
	return res
}

func TestBufferAllocLenAndByteRoundTrip(t *testing.T) {
	table, ctx := newTestTable(t)

	res := mustDispatch(t, table, ctx, BufferAlloc, []value.Value{value.I32(4)})
	buf := res.Value

	res = mustDispatch(t, table, ctx, BufferLen, []value.Value{buf})
	if n, _ := res.Value.AsI32(); n != 4 {
		t.Fatalf("buffer.len = %d; want 4", n)
	}

	mustDispatch(t, table, ctx, BufferSetByte, []value.Value{buf, value.I32(1), value.I32(200)})
	res = mustDispatch(t, table, ctx, BufferGetByte, []value.Value{buf, value.I32(1)})
	if n, _ := res.Value.AsI32(); n != 200 {
		t.Errorf("buffer.getByte(1) after setByte = %d; want 200", n)
	}
}

func TestBufferInt32RoundTrip(t *testing.T) {
	table, ctx := newTestTable(t)
	buf := mustDispatch(t, table, ctx, BufferAlloc, []value.Value{value.I32(8)}).Value

	mustDispatch(t, table, ctx, BufferSetInt32, []value.Value{buf, value.I32(0), value.I32(-12345)})
	res := mustDispatch(t, table, ctx, BufferGetInt32, []value.Value{buf, value.I32(0)})
	if n, _ := res.Value.AsI32(); n != -12345 {
		t.Errorf("buffer.getInt32 round trip = %d; want -12345", n)
	}
}

func TestBufferFloat64RoundTrip(t *testing.T) {
	table, ctx := newTestTable(t)
	buf := mustDispatch(t, table, ctx, BufferAlloc, []value.Value{value.I32(8)}).Value

	mustDispatch(t, table, ctx, BufferSetFloat64, []value.Value{buf, value.I32(0), value.F64(3.25)})
	res := mustDispatch(t, table, ctx, BufferGetFloat64, []value.Value{buf, value.I32(0)})
	if f, _ := res.Value.AsF64(); f != 3.25 {
		t.Errorf("buffer.getFloat64 round trip = %v; want 3.25", f)
	}
}

func TestBufferOutOfRangeErrors(t *testing.T) {
	table, ctx := newTestTable(t)
	buf := mustDispatch(t, table, ctx, BufferAlloc, []value.Value{value.I32(2)}).Value

	if _, err := table.Dispatch(BufferGetByte, ctx, []value.Value{buf, value.I32(10)}); err == nil {
		t.Error("buffer.getByte out of range: want error, got nil")
	}
	if _, err := table.Dispatch(BufferSetInt32, ctx, []value.Value{buf, value.I32(0), value.I32(1)}); err == nil {
		t.Error("buffer.setInt32 writing 4 bytes into a 2-byte buffer: want error, got nil")
	}
}

func TestBufferWrongTypeArgument(t *testing.T) {
	table, ctx := newTestTable(t)
	if _, err := table.Dispatch(BufferLen, ctx, []value.Value{value.I32(1)}); err == nil {
		t.Error("buffer.len on a non-buffer argument: want error, got nil")
	}
}
