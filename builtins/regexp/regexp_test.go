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

package regexp

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

func mustString(t *testing.T, ctx *nativeabi.Context, s string) value.Value {
	t.Helper()
	v, err := ctx.Heap.NewString(s)
	if err != nil {
		t.Fatalf("NewString(%q): %v", s, err)
	}
	return v
}

func TestRegExpTestMatchesAndMisses(t *testing.T) {
	table, ctx := newTestTable(t)
	reVal := mustDispatch(t, table, ctx, RegExpCreate, []value.Value{mustString(t, ctx, "^a+b$"), mustString(t, ctx, "")}).Value

	res := mustDispatch(t, table, ctx, nativeabi.RegExpTest, []value.Value{reVal, mustString(t, ctx, "aaab")})
	if matched, _ := res.Value.AsBool(); !matched {
		t.Error(`regexp /^a+b$/.test("aaab") should be true`)
	}

	res = mustDispatch(t, table, ctx, nativeabi.RegExpTest, []value.Value{reVal, mustString(t, ctx, "xyz")})
	if matched, _ := res.Value.AsBool(); matched {
		t.Error(`regexp /^a+b$/.test("xyz") should be false`)
	}
}

func TestRegExpIgnoreCaseFlag(t *testing.T) {
	table, ctx := newTestTable(t)
	reVal := mustDispatch(t, table, ctx, RegExpCreate, []value.Value{mustString(t, ctx, "hello"), mustString(t, ctx, "i")}).Value

	res := mustDispatch(t, table, ctx, nativeabi.RegExpTest, []value.Value{reVal, mustString(t, ctx, "HELLO")})
	if matched, _ := res.Value.AsBool(); !matched {
		t.Error(`regexp /hello/i.test("HELLO") should be true with the case-insensitive flag`)
	}
}

func TestRegExpExecReturnsGroups(t *testing.T) {
	table, ctx := newTestTable(t)
	reVal := mustDispatch(t, table, ctx, RegExpCreate, []value.Value{mustString(t, ctx, `(\d+)-(\d+)`), mustString(t, ctx, "")}).Value

	res := mustDispatch(t, table, ctx, nativeabi.RegExpExec, []value.Value{reVal, mustString(t, ctx, "id 12-34 here")})
	arr, ok := heap.AsArray(res.Value)
	if !ok {
		t.Fatal("regexp.exec on a match should return an array")
	}
	if arr.Len() != 3 {
		t.Fatalf("regexp.exec groups length = %d; want 3 (whole match + 2 captures)", arr.Len())
	}
	first, _ := arr.Get(0)
	whole, _ := heap.AsString(first)
	if whole.String() != "12-34" {
		t.Errorf("regexp.exec group 0 = %q; want %q", whole.String(), "12-34")
	}
}

func TestRegExpExecNoMatchReturnsNull(t *testing.T) {
	table, ctx := newTestTable(t)
	reVal := mustDispatch(t, table, ctx, RegExpCreate, []value.Value{mustString(t, ctx, "zzz"), mustString(t, ctx, "")}).Value

	res := mustDispatch(t, table, ctx, nativeabi.RegExpExec, []value.Value{reVal, mustString(t, ctx, "abc")})
	if !res.Value.IsNull() {
		t.Error("regexp.exec with no match should return null")
	}
}

func TestRegExpSourceAndFlags(t *testing.T) {
	table, ctx := newTestTable(t)
	reVal := mustDispatch(t, table, ctx, RegExpCreate, []value.Value{mustString(t, ctx, "abc"), mustString(t, ctx, "gi")}).Value

	res := mustDispatch(t, table, ctx, nativeabi.RegExpSource, []value.Value{reVal})
	source, _ := heap.AsString(res.Value)
	if source.String() != "abc" {
		t.Errorf("regexp.source = %q; want %q", source.String(), "abc")
	}

	res = mustDispatch(t, table, ctx, nativeabi.RegExpFlags, []value.Value{reVal})
	flags, _ := heap.AsString(res.Value)
	if flags.String() != "gi" {
		t.Errorf("regexp.flags = %q; want %q", flags.String(), "gi")
	}
}

func TestRegExpCreateRejectsInvalidPattern(t *testing.T) {
	table, ctx := newTestTable(t)
	if _, err := table.Dispatch(RegExpCreate, ctx, []value.Value{mustString(t, ctx, "(unclosed"), mustString(t, ctx, "")}); err == nil {
		t.Error("regexp.create with an invalid pattern: want error, got nil")
	}
}
