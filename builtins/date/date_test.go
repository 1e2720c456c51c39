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

package date

import (
	"testing"
	"time"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/value"
)

func newTestTable(t *testing.T, fixedNowMs int64) (*nativeabi.Table, *nativeabi.Context) {
	t.Helper()
	table := nativeabi.NewTable()
	Register(table, func() int64 { return fixedNowMs })
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

func TestDateNowUsesInjectedClock(t *testing.T) {
	table, ctx := newTestTable(t, 1_700_000_000_000)
	res := mustDispatch(t, table, ctx, nativeabi.DateNow, nil)

	getTime := mustDispatch(t, table, ctx, nativeabi.DateGetTime, []value.Value{res.Value})
	millis, _ := getTime.Value.AsI64()
	if millis != 1_700_000_000_000 {
		t.Errorf("date.now/getTime = %d; want the injected clock value", millis)
	}
}

func TestDateCreateComponentAccessors(t *testing.T) {
	table, ctx := newTestTable(t, 0)
	want := time.Date(2024, time.March, 15, 13, 45, 30, 250_000_000, time.UTC)
	dateVal := mustDispatch(t, table, ctx, DateCreate, []value.Value{value.F64(float64(want.UnixMilli()))}).Value

	cases := []struct {
		id   nativeabi.NativeID
		want int32
	}{
		{nativeabi.DateGetYear, 2024},
		{nativeabi.DateGetMonth, 2}, // zero-based: March = 2
		{nativeabi.DateGetDate, 15},
		{nativeabi.DateGetHours, 13},
		{nativeabi.DateGetMinutes, 45},
		{nativeabi.DateGetSeconds, 30},
		{nativeabi.DateGetMilliseconds, 250},
	}
	for _, c := range cases {
		res := mustDispatch(t, table, ctx, c.id, []value.Value{dateVal})
		n, _ := res.Value.AsI32()
		if n != c.want {
			t.Errorf("native 0x%04X = %d; want %d", c.id, n, c.want)
		}
	}
}

func TestDateNativeRejectsNonDateArgument(t *testing.T) {
	table, ctx := newTestTable(t, 0)
	if _, err := table.Dispatch(nativeabi.DateGetYear, ctx, []value.Value{value.I32(1)}); err == nil {
		t.Error("date.getYear on a non-date argument: want error, got nil")
	}
}
