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

package json

import (
	"encoding/json"
	"testing"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/value"
)

func newTestTable(t *testing.T, classNames class_classNames) (*nativeabi.Table, *nativeabi.Context) {
	t.Helper()
	table := nativeabi.NewTable()
	Register(table, classNames)
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

func TestStringifyScalarsAndArray(t *testing.T) {
	table, ctx := newTestTable(t, nil)
	arrVal, err := ctx.Heap.NewArray(3)
	if err != nil {
		t.Fatalf("NewArray: %v", err)
	}
	arr, _ := heap.AsArray(arrVal)
	arr.Set(0, value.Null())
	arr.Set(1, value.Bool(true))
	arr.Set(2, value.F64(2.5))

	res := mustDispatch(t, table, ctx, nativeabi.JSONStringify, []value.Value{arrVal})
	s, _ := heap.AsString(res.Value)

	var decoded []any
	if err := json.Unmarshal([]byte(s.String()), &decoded); err != nil {
		t.Fatalf("json.stringify produced invalid JSON %q: %v", s.String(), err)
	}
	if len(decoded) != 3 || decoded[0] != nil || decoded[1] != true || decoded[2] != 2.5 {
		t.Errorf("decoded = %#v; want [nil true 2.5]", decoded)
	}
}

func TestStringifyDetectsCircularReference(t *testing.T) {
	table, ctx := newTestTable(t, nil)
	arrVal, _ := ctx.Heap.NewArray(1)
	arr, _ := heap.AsArray(arrVal)
	arr.Set(0, arrVal)

	if _, err := table.Dispatch(nativeabi.JSONStringify, ctx, []value.Value{arrVal}); err == nil {
		t.Error("json.stringify on a self-referencing array: want error, got nil")
	}
}

func TestStringifyObjectUsesClassNamesCallback(t *testing.T) {
	classNames := func(classID uint32) (string, []string, bool) {
		if classID == 1 {
			return "Point", []string{"x", "y"}, true
		}
		return "", nil, false
	}
	table, ctx := newTestTable(t, classNames)

	objVal, err := ctx.Heap.NewObject(1, 2)
	if err != nil {
		t.Fatalf("NewObject: %v", err)
	}
	obj, _ := heap.AsObject(objVal)
	obj.Fields[0] = value.F64(3)
	obj.Fields[1] = value.F64(4)

	res := mustDispatch(t, table, ctx, nativeabi.JSONStringify, []value.Value{objVal})
	s, _ := heap.AsString(res.Value)

	var decoded map[string]any
	if err := json.Unmarshal([]byte(s.String()), &decoded); err != nil {
		t.Fatalf("json.stringify produced invalid JSON %q: %v", s.String(), err)
	}
	if decoded["x"] != 3.0 || decoded["y"] != 4.0 {
		t.Errorf("decoded = %#v; want {x:3 y:4}", decoded)
	}
}

func TestParseRoundTripsObjectsAndArrays(t *testing.T) {
	table, ctx := newTestTable(t, nil)
	textVal, err := ctx.Heap.NewString(`{"a": [1, 2, "three"], "b": null}`)
	if err != nil {
		t.Fatalf("NewString: %v", err)
	}

	res := mustDispatch(t, table, ctx, nativeabi.JSONParse, []value.Value{textVal})
	m, ok := heap.AsMap(res.Value)
	if !ok {
		t.Fatal("json.parse of a JSON object should return a map")
	}

	key, _ := ctx.Heap.NewString("a")
	aVal, ok := m.Get(key)
	if !ok {
		t.Fatal(`json.parse result should have key "a"`)
	}
	arr, ok := heap.AsArray(aVal)
	if !ok || arr.Len() != 3 {
		t.Fatalf(`json.parse "a" should be a 3-element array, got ok=%v`, ok)
	}
	third, _ := arr.Get(2)
	s, _ := heap.AsString(third)
	if s.String() != "three" {
		t.Errorf(`json.parse array[2] = %q; want "three"`, s.String())
	}
}

func TestParseRejectsMalformedJSON(t *testing.T) {
	table, ctx := newTestTable(t, nil)
	textVal, _ := ctx.Heap.NewString(`{not valid json`)
	if _, err := table.Dispatch(nativeabi.JSONParse, ctx, []value.Value{textVal}); err == nil {
		t.Error("json.parse on malformed text: want error, got nil")
	}
}
