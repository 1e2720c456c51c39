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
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/scheduler"
	"github.com/rayalang/raya/stack"
	"github.com/rayalang/raya/value"
)

// GetCallStack returns t's active frames, innermost last (the same order
// stack.Stack.Frames reports), rendered as an Array of Maps with
// functionName, functionIndex, localCount, argCount.
func (r *Reflector) GetCallStack(t *scheduler.Task, mod *module.Module) ([]value.Value, error) {
	frames := t.Stack.Frames()
	out := make([]value.Value, 0, len(frames))
	for _, f := range frames {
		mv, err := r.frameInfoMap(f, mod)
		if err != nil {
			return nil, err
		}
		out = append(out, mv)
	}
	return out, nil
}

func (r *Reflector) frameInfoMap(f stack.Frame, mod *module.Module) (value.Value, error) {
	mv, err := r.heap.NewMap()
	if err != nil {
		return value.Value{}, err
	}
	mo, _ := heap.AsMap(mv)
	name := "?"
	if int(f.FunctionID) < len(mod.Functions) {
		name = mod.Functions[f.FunctionID].Name
	}
	if err := mapPutString(r.heap, mo, "functionName", name); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(r.heap, mo, "functionIndex", value.U64(uint64(f.FunctionID))); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(r.heap, mo, "localCount", value.I32(int32(f.LocalCount))); err != nil {
		return value.Value{}, err
	}
	if err := mapPutValue(r.heap, mo, "argCount", value.I32(int32(f.ArgCount))); err != nil {
		return value.Value{}, err
	}
	return mv, nil
}

// GetLocals returns the local-variable slots of t's frame at depth
// frameIndex (0 = outermost, matching Stack.Frames' ordering).
func (r *Reflector) GetLocals(t *scheduler.Task, frameIndex int) ([]value.Value, error) {
	frames := t.Stack.Frames()
	if frameIndex < 0 || frameIndex >= len(frames) {
		return nil, rerrors.RuntimeError("reflect: getLocals frame index %d out of range [0,%d)", frameIndex, len(frames))
	}
	f := frames[frameIndex]
	out := make([]value.Value, f.LocalCount)
	for i := 0; i < f.LocalCount; i++ {
		v, err := t.Stack.PeekAt(f.BasePtr + i)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// GetSourceLocation returns the DebugSpan of the function owning t's frame
// at depth frameIndex, for diagnostics and stack-trace rendering.
func (r *Reflector) GetSourceLocation(t *scheduler.Task, mod *module.Module, frameIndex int) (module.DebugSpan, error) {
	frames := t.Stack.Frames()
	if frameIndex < 0 || frameIndex >= len(frames) {
		return module.DebugSpan{}, rerrors.RuntimeError("reflect: getSourceLocation frame index %d out of range [0,%d)", frameIndex, len(frames))
	}
	fnID := frames[frameIndex].FunctionID
	if int(fnID) >= len(mod.Functions) {
		return module.DebugSpan{}, rerrors.RuntimeError("reflect: frame references unknown function id %d", fnID)
	}
	return mod.Functions[fnID].DebugSpan, nil
}

func registerCallStack(table *nativeabi.Table, r *Reflector) {
	table.Register(RangeCallStack, "reflect.getCallStack", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		frames, err := r.GetCallStack(ctx.Task, ctx.Module)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := ctx.Heap.NewArray(len(frames))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(av)
		for i, fv := range frames {
			arr.Set(i, fv)
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeCallStack+1, "reflect.getLocals", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		idx, err := argIntIndex(args, 0, "reflect.getLocals")
		if err != nil {
			return nativeabi.Result{}, err
		}
		locals, err := r.GetLocals(ctx.Task, idx)
		if err != nil {
			return nativeabi.Result{}, err
		}
		av, err := ctx.Heap.NewArray(len(locals))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(av)
		for i, lv := range locals {
			arr.Set(i, lv)
		}
		return nativeabi.Pushed(av), nil
	})

	table.Register(RangeCallStack+2, "reflect.getSourceLocation", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		idx, err := argIntIndex(args, 0, "reflect.getSourceLocation")
		if err != nil {
			return nativeabi.Result{}, err
		}
		span, err := r.GetSourceLocation(ctx.Task, ctx.Module, idx)
		if err != nil {
			return nativeabi.Result{}, err
		}
		mv, err := ctx.Heap.NewMap()
		if err != nil {
			return nativeabi.Result{}, err
		}
		mo, _ := heap.AsMap(mv)
		if err := mapPutString(ctx.Heap, mo, "file", span.File); err != nil {
			return nativeabi.Result{}, err
		}
		if err := mapPutValue(ctx.Heap, mo, "startLine", value.I32(int32(span.StartLine))); err != nil {
			return nativeabi.Result{}, err
		}
		if err := mapPutValue(ctx.Heap, mo, "endLine", value.I32(int32(span.EndLine))); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(mv), nil
	})
}

// argIntIndex decodes a non-negative integer argument (frame index, etc.).
func argIntIndex(args []value.Value, i int, what string) (int, error) {
	if i >= len(args) {
		return 0, rerrors.ArgumentCountMismatch("%s: missing argument %d", what, i)
	}
	n, ok := args[i].NumericValue()
	if !ok {
		return 0, rerrors.TypeError("%s: argument %d must be a number", what, i)
	}
	return int(n), nil
}
