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

// Package interp is the fetch-decode-execute loop: it ties stack, heap,
// class, module, scheduler, and nativeabi together into the Raya bytecode
// interpreter (spec §4.3).
//
// Run executes one Task until it either suspends, completes, fails, or is
// cancelled, returning control to the caller (the engine's scheduler loop)
// at every documented suspension point rather than blocking a goroutine
// per task.
package interp

import (
	"encoding/binary"
	"math"
	"strconv"

	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/rlog"
	"github.com/rayalang/raya/scheduler"
	"github.com/rayalang/raya/stack"
	"github.com/rayalang/raya/value"
)

// Outcome is why Run returned control to its caller.
type Outcome uint8

const (
	OutcomeSuspended Outcome = iota
	OutcomeCompleted
	OutcomeFailed
	OutcomeCancelled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeSuspended:
		return "SUSPENDED"
	case OutcomeCompleted:
		return "COMPLETED"
	case OutcomeFailed:
		return "FAILED"
	case OutcomeCancelled:
		return "CANCELLED"
	default:
		return "UNKNOWN"
	}
}

// Interpreter runs Tasks against one loaded Module.
type Interpreter struct {
	Module        *module.Module
	Heap          *heap.Heap
	Natives       *nativeabi.Table
	ModuleNatives *nativeabi.ResolvedModuleTable
	Sched         *scheduler.Scheduler
	log           *rlog.Logger
}

// New creates an Interpreter wired to the given runtime components.
func New(mod *module.Module, h *heap.Heap, natives *nativeabi.Table, moduleNatives *nativeabi.ResolvedModuleTable, sched *scheduler.Scheduler) *Interpreter {
	return &Interpreter{
		Module:        mod,
		Heap:          h,
		Natives:       natives,
		ModuleNatives: moduleNatives,
		Sched:         sched,
		log:           rlog.Default.With("component", "interp"),
	}
}

// ---- bytecode cursor helpers --------------------------------------------

func readU8(code []byte, ip uint32) (byte, uint32) { return code[ip], ip + 1 }

func readU16(code []byte, ip uint32) (uint16, uint32) {
	return binary.LittleEndian.Uint16(code[ip : ip+2]), ip + 2
}

func readI32(code []byte, ip uint32) (int32, uint32) {
	return int32(binary.LittleEndian.Uint32(code[ip : ip+4])), ip + 4
}

func readU64(code []byte, ip uint32) (uint64, uint32) {
	return binary.LittleEndian.Uint64(code[ip : ip+8]), ip + 8
}

// ---- value helpers --------------------------------------------------------

func truthy(v value.Value) bool {
	if v.IsNull() {
		return false
	}
	if b, ok := v.AsBool(); ok {
		return b
	}
	if n, ok := v.NumericValue(); ok {
		return n != 0
	}
	return true
}

func (in *Interpreter) displayString(v value.Value) (string, error) {
	switch {
	case v.IsNull():
		return "null", nil
	case v.IsBool():
		b, _ := v.AsBool()
		if b {
			return "true", nil
		}
		return "false", nil
	case v.IsNumeric():
		n, _ := v.NumericValue()
		return strconv.FormatFloat(n, 'g', -1, 64), nil
	case v.IsPtr():
		switch v.Kind() {
		case value.KindString:
			s, _ := heap.AsString(v)
			return s.String(), nil
		case value.KindObject:
			obj, _ := heap.AsObject(v)
			if c, ok := in.Module.Classes.Get(obj.ClassID); ok {
				return class.TypeName(c), nil
			}
			return "object", nil
		default:
			return nativeabi.TypeName(v), nil
		}
	}
	return "", rerrors.TypeError("value has no string representation")
}

func isStringish(v value.Value) bool {
	return v.IsPtr() && v.Kind() == value.KindString
}

// add implements Raya's + operator: numeric addition with i32/f64 promotion,
// or string concatenation if either operand is a string (spec §4.3).
func (in *Interpreter) add(a, b value.Value) (value.Value, error) {
	if a.IsNumeric() && b.IsNumeric() {
		if ai, aok := a.AsI32(); aok {
			if bi, bok := b.AsI32(); bok {
				return i32OrPromote(int64(ai) + int64(bi)), nil
			}
		}
		af, _ := a.NumericValue()
		bf, _ := b.NumericValue()
		return value.F64(af + bf), nil
	}
	if isStringish(a) || isStringish(b) {
		as, err := in.displayString(a)
		if err != nil {
			return value.Value{}, err
		}
		bs, err := in.displayString(b)
		if err != nil {
			return value.Value{}, err
		}
		return in.Heap.NewString(as + bs)
	}
	return value.Value{}, rerrors.TypeError("cannot add %s and %s", nativeabi.TypeName(a), nativeabi.TypeName(b))
}

// i32OrPromote returns r as an i32 Value if it fits in the int32 range,
// else promotes to f64 (spec §4.3: "i32 op i32 -> i32 if no overflow else
// f64"), the same rule add applies for +.
func i32OrPromote(r int64) value.Value {
	if r >= math.MinInt32 && r <= math.MaxInt32 {
		return value.I32(int32(r))
	}
	return value.F64(float64(r))
}

func numericBinary(a, b value.Value, iop func(int64, int64) int64, fop func(float64, float64) float64) (value.Value, error) {
	if ai, aok := a.AsI32(); aok {
		if bi, bok := b.AsI32(); bok {
			return i32OrPromote(iop(int64(ai), int64(bi))), nil
		}
	}
	af, aok := a.NumericValue()
	bf, bok := b.NumericValue()
	if !aok || !bok {
		return value.Value{}, rerrors.TypeError("operand is not numeric")
	}
	return value.F64(fop(af, bf)), nil
}

func numericCompare(a, b value.Value) (float64, float64, error) {
	af, aok := a.NumericValue()
	bf, bok := b.NumericValue()
	if !aok || !bok {
		return 0, 0, rerrors.TypeError("comparison operand is not numeric")
	}
	return af, bf, nil
}

// ---- frame setup / teardown -----------------------------------------------

// setupFrame pops fn's declared parameters off t's operand stack, pushes a
// new call frame for fn, and stores the popped arguments into locals
// [0, ParamCount). Used both for a Task's very first frame (its entry
// function, called with args already sitting on a fresh Stack) and for
// Call/CallIndirect/Spawn (args freshly popped from the caller).
func setupFrame(st *stack.Stack, functionID uint32, fn *module.Function, returnIP uint32) error {
	args := make([]value.Value, fn.ParamCount)
	for i := fn.ParamCount - 1; i >= 0; i-- {
		v, err := st.Pop()
		if err != nil {
			return err
		}
		args[i] = v
	}
	if err := st.PushFrame(functionID, returnIP, fn.LocalCount, fn.ParamCount); err != nil {
		return err
	}
	for i, v := range args {
		if err := st.StoreLocal(i, v); err != nil {
			return err
		}
	}
	return nil
}

// unwindTo pops frames and operands down to the given frame/stack depth,
// used to land on a TryHandler's scope (spec §4.3 Throw semantics).
func unwindTo(st *stack.Stack, frameDepth, stackDepth int) error {
	for st.FrameCount() > frameDepth {
		if _, err := st.PopFrame(); err != nil {
			return err
		}
	}
	for st.Depth() > stackDepth {
		if _, err := st.Pop(); err != nil {
			return err
		}
	}
	return nil
}

// doThrow unwinds t to its nearest TryHandler and pushes excValue there, or
// — if none remain — fails the task outright. terminal reports whether the
// task reached a terminal state (in which case Run should return at once).
func (in *Interpreter) doThrow(t *scheduler.Task, excValue value.Value) (terminal bool, outcome Outcome) {
	if len(t.TryHandlers) == 0 {
		in.Sched.FailTask(t, excValue)
		return true, OutcomeFailed
	}
	h := t.TryHandlers[len(t.TryHandlers)-1]
	t.TryHandlers = t.TryHandlers[:len(t.TryHandlers)-1]
	if err := unwindTo(t.Stack, h.FrameDepth, h.StackDepth); err != nil {
		in.Sched.FailTask(t, excValue)
		return true, OutcomeFailed
	}
	_ = t.Stack.Push(excValue)
	t.IP = h.HandlerIP
	return false, 0
}

// buildAwaitAllResults allocates the Array of per-task results an AwaitAll
// resumes with — this needs heap access the scheduler doesn't have, which
// is why the scheduler only marks the waiting task ready and leaves array
// construction to the interpreter.
func (in *Interpreter) buildAwaitAllResults(ids []scheduler.TaskID) (value.Value, error) {
	arrVal, err := in.Heap.NewArray(len(ids))
	if err != nil {
		return value.Value{}, err
	}
	arr, _ := heap.AsArray(arrVal)
	for i, id := range ids {
		if tk, ok := in.Sched.Get(id); ok {
			arr.Set(i, tk.Result)
		}
	}
	return arrVal, nil
}

// consumeResume applies a resumed Task's pending Resume* fields: pushing a
// plain resume value, building an AwaitAll result array, or unwinding to a
// TryHandler if the resumption is itself a throw (an awaited task failed).
func (in *Interpreter) consumeResume(t *scheduler.Task) (terminal bool, outcome Outcome, err error) {
	if !t.HasResume {
		return false, 0, nil
	}
	kind := t.ResumeKind
	isThrow := t.ResumeIsThrow
	val := t.ResumeValue
	ids := t.ResumeTaskIDs
	cancelledAwait := t.ResumeThrowIsTaskCancelled
	t.HasResume = false
	t.ResumeThrowIsTaskCancelled = false

	if isThrow {
		if cancelledAwait {
			excVal, allocErr := in.Heap.NewString(rerrors.RuntimeError("task was cancelled").Error())
			if allocErr != nil {
				in.Sched.FailTask(t, value.Null())
				return true, OutcomeFailed, allocErr
			}
			val = excVal
		}
		term, oc := in.doThrow(t, val)
		return term, oc, nil
	}
	if kind == scheduler.ReasonAwaitAll {
		arrVal, err := in.buildAwaitAllResults(ids)
		if err != nil {
			in.Sched.FailTask(t, value.Null())
			return true, OutcomeFailed, err
		}
		val = arrVal
	}
	if err := t.Stack.Push(val); err != nil {
		in.Sched.FailTask(t, value.Null())
		return true, OutcomeFailed, err
	}
	return false, 0, nil
}

// suspendOrContinue suspends t for reason at ip. If the suspension resolves
// immediately (e.g. AwaitTask on an already-terminal task), it consumes the
// resume right away instead of reporting SUSPENDED to the caller.
func (in *Interpreter) suspendOrContinue(t *scheduler.Task, reason scheduler.Reason, ip uint32) (stop bool, outcome Outcome, err error) {
	t.IP = ip
	in.Sched.Suspend(t, reason)
	if t.State == scheduler.StateSuspended {
		return true, OutcomeSuspended, nil
	}
	terminal, oc, err := in.consumeResume(t)
	if err != nil {
		return true, OutcomeFailed, err
	}
	if terminal {
		return true, oc, nil
	}
	return false, 0, nil
}

// ---- main loop --------------------------------------------------------

// Run executes t until it suspends, completes, fails, or is cancelled.
func (in *Interpreter) Run(t *scheduler.Task) (Outcome, error) {
	if t.Stack.FrameCount() == 0 {
		fn, err := in.Module.Function(t.FunctionIndex)
		if err != nil {
			in.Sched.FailTask(t, value.Null())
			return OutcomeFailed, err
		}
		if err := setupFrame(t.Stack, uint32(t.FunctionIndex), fn, 0); err != nil {
			in.Sched.FailTask(t, value.Null())
			return OutcomeFailed, err
		}
	} else if t.HasResume {
		terminal, outcome, err := in.consumeResume(t)
		if err != nil {
			return OutcomeFailed, err
		}
		if terminal {
			return outcome, nil
		}
	}

	for {
		if in.Sched.CheckCancelled(t) {
			return OutcomeCancelled, nil
		}

		frame, ok := t.Stack.CurrentFrame()
		if !ok {
			in.Sched.FailTask(t, value.Null())
			return OutcomeFailed, rerrors.RuntimeError("no active frame")
		}
		fn, err := in.Module.Function(int(frame.FunctionID))
		if err != nil {
			in.Sched.FailTask(t, value.Null())
			return OutcomeFailed, err
		}
		code := fn.Bytecode
		if int(t.IP) >= len(code) {
			in.Sched.FailTask(t, value.Null())
			return OutcomeFailed, rerrors.RuntimeError("ip %d out of bounds for function %q", t.IP, fn.Name)
		}

		op := Op(code[t.IP])
		ip := t.IP + 1
		var err error

		switch op {
		case OpPushNull:
			err = t.Stack.Push(value.Null())
		case OpPushBool:
			var b byte
			b, ip = readU8(code, ip)
			err = t.Stack.Push(value.Bool(b != 0))
		case OpPushI32:
			var i int32
			i, ip = readI32(code, ip)
			err = t.Stack.Push(value.I32(i))
		case OpPushF64:
			var bits uint64
			bits, ip = readU64(code, ip)
			err = t.Stack.Push(value.F64(math.Float64frombits(bits)))
		case OpPushConst:
			var idx uint16
			idx, ip = readU16(code, ip)
			var c *module.Const
			c, err = in.Module.Const(int(idx))
			if err == nil {
				var v value.Value
				v, err = in.constValue(c)
				if err == nil {
					err = t.Stack.Push(v)
				}
			}

		case OpLoadLocal:
			var idx uint16
			idx, ip = readU16(code, ip)
			var v value.Value
			v, err = t.Stack.LoadLocal(int(idx))
			if err == nil {
				err = t.Stack.Push(v)
			}
		case OpStoreLocal:
			var idx uint16
			idx, ip = readU16(code, ip)
			var v value.Value
			v, err = t.Stack.Pop()
			if err == nil {
				err = t.Stack.StoreLocal(int(idx), v)
			}
		case OpLoadGlobal:
			var idx uint16
			idx, ip = readU16(code, ip)
			var v value.Value
			v, err = in.Module.LoadGlobal(int(idx))
			if err == nil {
				err = t.Stack.Push(v)
			}
		case OpStoreGlobal:
			var idx uint16
			idx, ip = readU16(code, ip)
			var v value.Value
			v, err = t.Stack.Pop()
			if err == nil {
				err = in.Module.StoreGlobal(int(idx), v)
			}

		case OpAdd, OpSub, OpMul, OpDiv, OpMod, OpLt, OpLe, OpGt, OpGe, OpEq, OpNeq, OpAnd, OpOr:
			var b, a value.Value
			b, err = t.Stack.Pop()
			if err == nil {
				a, err = t.Stack.Pop()
			}
			if err == nil {
				var v value.Value
				v, err = in.binaryOp(op, a, b)
				if err == nil {
					err = t.Stack.Push(v)
				}
			}
		case OpNeg:
			var a value.Value
			a, err = t.Stack.Pop()
			if err == nil {
				var v value.Value
				v, err = negate(a)
				if err == nil {
					err = t.Stack.Push(v)
				}
			}
		case OpNot:
			var a value.Value
			a, err = t.Stack.Pop()
			if err == nil {
				err = t.Stack.Push(value.Bool(!truthy(a)))
			}

		case OpJump:
			var target int32
			target, ip = readI32(code, ip)
			ip = uint32(target)
		case OpJumpIfTrue:
			var target int32
			target, ip = readI32(code, ip)
			var cond value.Value
			cond, err = t.Stack.Pop()
			if err == nil && truthy(cond) {
				ip = uint32(target)
			}
		case OpJumpIfFalse:
			var target int32
			target, ip = readI32(code, ip)
			var cond value.Value
			cond, err = t.Stack.Pop()
			if err == nil && !truthy(cond) {
				ip = uint32(target)
			}

		case OpCall:
			var functionID uint16
			var argc byte
			functionID, ip = readU16(code, ip)
			argc, ip = readU8(code, ip)
			_ = argc // argc matches the callee's declared ParamCount; not separately checked
			var callee *module.Function
			callee, err = in.Module.Function(int(functionID))
			if err == nil {
				err = setupFrame(t.Stack, uint32(functionID), callee, ip)
			}
		case OpCallIndirect:
			var argc byte
			argc, ip = readU8(code, ip)
			args := make([]value.Value, argc)
			for i := int(argc) - 1; i >= 0 && err == nil; i-- {
				args[i], err = t.Stack.Pop()
			}
			var closureVal value.Value
			if err == nil {
				closureVal, err = t.Stack.Pop()
			}
			if err == nil {
				cl, ok := heap.AsClosure(closureVal)
				if !ok {
					err = rerrors.NotCallable("value is not callable")
				} else {
					var callee *module.Function
					callee, err = in.Module.Function(int(cl.FunctionID))
					if err == nil {
						for i := len(args) - 1; i >= 0 && err == nil; i-- {
							err = t.Stack.Push(args[i])
						}
						if err == nil {
							err = setupFrame(t.Stack, cl.FunctionID, callee, ip)
						}
						if err == nil {
							for i, c := range cl.Captures {
								paramSlot := callee.ParamCount + i
								if paramSlot < callee.LocalCount {
									_ = t.Stack.StoreLocal(paramSlot, c)
								}
							}
						}
					}
				}
			}
		case OpReturn, OpReturnVoid:
			var retVal value.Value
			if op == OpReturn {
				retVal, err = t.Stack.Pop()
			} else {
				retVal = value.Null()
			}
			if err == nil {
				_, err = t.Stack.PopFrame()
			}
			if err == nil {
				if t.Stack.FrameCount() == 0 {
					in.Sched.CompleteTask(t, retVal)
					return OutcomeCompleted, nil
				}
				err = t.Stack.Push(retVal)
				if err == nil {
					nf, _ := t.Stack.CurrentFrame()
					ip = nf.ReturnIP
				}
			}

		case OpNewObject:
			var classID uint16
			classID, ip = readU16(code, ip)
			c, ok := in.Module.Classes.Get(uint32(classID))
			if !ok {
				err = rerrors.RuntimeError("unknown class id %d", classID)
			} else if c.IsAbstract {
				err = rerrors.RuntimeError("cannot instantiate abstract class %q", c.Name)
			} else {
				var v value.Value
				v, err = in.Heap.NewObject(uint32(classID), c.FieldCount)
				if err == nil {
					err = t.Stack.Push(v)
				}
			}
		case OpNewArray:
			var count uint16
			count, ip = readU16(code, ip)
			elems := make([]value.Value, count)
			for i := int(count) - 1; i >= 0 && err == nil; i-- {
				elems[i], err = t.Stack.Pop()
			}
			if err == nil {
				var v value.Value
				v, err = in.Heap.NewArray(int(count))
				if err == nil {
					arr, _ := heap.AsArray(v)
					for i, e := range elems {
						arr.Set(i, e)
					}
					err = t.Stack.Push(v)
				}
			}
		case OpLoadField:
			var classID, slot uint16
			classID, ip = readU16(code, ip)
			slot, ip = readU16(code, ip)
			_ = classID
			var objVal value.Value
			objVal, err = t.Stack.Pop()
			if err == nil {
				obj, ok := heap.AsObject(objVal)
				if !ok || int(slot) >= len(obj.Fields) {
					err = rerrors.RuntimeError("load_field: invalid field slot %d", slot)
				} else {
					err = t.Stack.Push(obj.Fields[slot])
				}
			}
		case OpStoreField:
			var classID, slot uint16
			classID, ip = readU16(code, ip)
			slot, ip = readU16(code, ip)
			_ = classID
			var v, objVal value.Value
			v, err = t.Stack.Pop()
			if err == nil {
				objVal, err = t.Stack.Pop()
			}
			if err == nil {
				obj, ok := heap.AsObject(objVal)
				if !ok || int(slot) >= len(obj.Fields) {
					err = rerrors.RuntimeError("store_field: invalid field slot %d", slot)
				} else {
					obj.Fields[slot] = v
				}
			}
		case OpLoadIndex:
			var idx, container value.Value
			idx, err = t.Stack.Pop()
			if err == nil {
				container, err = t.Stack.Pop()
			}
			if err == nil {
				var v value.Value
				v, err = loadIndex(container, idx)
				if err == nil {
					err = t.Stack.Push(v)
				}
			}
		case OpStoreIndex:
			var v, idx, container value.Value
			v, err = t.Stack.Pop()
			if err == nil {
				idx, err = t.Stack.Pop()
			}
			if err == nil {
				container, err = t.Stack.Pop()
			}
			if err == nil {
				err = storeIndex(container, idx, v)
			}
		case OpLoadMethod:
			var classID, slot uint16
			classID, ip = readU16(code, ip)
			slot, ip = readU16(code, ip)
			var selfVal value.Value
			selfVal, err = t.Stack.Pop()
			if err == nil {
				c, ok := in.Module.Classes.Get(uint32(classID))
				if !ok || int(slot) >= len(c.VTable) {
					err = rerrors.RuntimeError("load_method: invalid method slot %d", slot)
				} else {
					var v value.Value
					v, err = in.Heap.NewClosure(c.VTable[slot], []value.Value{selfVal})
					if err == nil {
						err = t.Stack.Push(v)
					}
				}
			}

		case OpMakeClosure:
			var functionID uint16
			var captureCount byte
			functionID, ip = readU16(code, ip)
			captureCount, ip = readU8(code, ip)
			captures := make([]value.Value, captureCount)
			for i := int(captureCount) - 1; i >= 0 && err == nil; i-- {
				captures[i], err = t.Stack.Pop()
			}
			if err == nil {
				var v value.Value
				v, err = in.Heap.NewClosure(uint32(functionID), captures)
				if err == nil {
					err = t.Stack.Push(v)
				}
			}
		case OpCapture:
			var idx uint16
			idx, ip = readU16(code, ip)
			var v value.Value
			v, err = t.Stack.LoadLocal(int(idx))
			if err == nil {
				err = t.Stack.Push(v)
			}

		case OpThrow:
			var excVal value.Value
			excVal, err = t.Stack.Pop()
			if err == nil {
				terminal, outcome := in.doThrow(t, excVal)
				if terminal {
					return outcome, nil
				}
				ip = t.IP
			}
		case OpTryBegin:
			var target int32
			target, ip = readI32(code, ip)
			t.TryHandlers = append(t.TryHandlers, scheduler.TryHandler{
				HandlerIP:  uint32(target),
				StackDepth: t.Stack.Depth(),
				FrameDepth: t.Stack.FrameCount(),
			})
		case OpTryEnd:
			if len(t.TryHandlers) > 0 {
				t.TryHandlers = t.TryHandlers[:len(t.TryHandlers)-1]
			}

		case OpSpawn:
			var functionID uint16
			var argc byte
			functionID, ip = readU16(code, ip)
			argc, ip = readU8(code, ip)
			args := make([]value.Value, argc)
			for i := int(argc) - 1; i >= 0 && err == nil; i-- {
				args[i], err = t.Stack.Pop()
			}
			if err == nil {
				newStack := stack.New()
				for _, a := range args {
					_ = newStack.Push(a)
				}
				newTask := in.Sched.Spawn(newStack, int(functionID))
				in.Heap.RegisterRoot(newTask)
				err = t.Stack.Push(value.U64(uint64(newTask.ID)))
			}
		case OpAwait:
			var handle value.Value
			handle, err = t.Stack.Pop()
			if err == nil {
				id, ok := handle.AsU64()
				if !ok {
					err = rerrors.TypeError("await: value is not a task handle")
				} else {
					stop, outcome, serr := in.suspendOrContinue(t, scheduler.Reason{Kind: scheduler.ReasonAwaitTask, TaskID: scheduler.TaskID(id)}, ip)
					if serr != nil {
						return OutcomeFailed, serr
					}
					if stop {
						return outcome, nil
					}
					ip = t.IP
				}
			}
		case OpYield:
			stop, outcome, serr := in.yieldNow(t, ip)
			if serr != nil {
				return OutcomeFailed, serr
			}
			if stop {
				return outcome, nil
			}
			ip = t.IP
		case OpSleep:
			var ms value.Value
			ms, err = t.Stack.Pop()
			if err == nil {
				f, ok := ms.NumericValue()
				if !ok {
					err = rerrors.TypeError("sleep: argument must be numeric")
				} else {
					until := in.Sched.NowMs() + int64(f)
					stop, outcome, serr := in.suspendOrContinue(t, scheduler.Reason{Kind: scheduler.ReasonSleep, UntilMs: until}, ip)
					if serr != nil {
						return OutcomeFailed, serr
					}
					if stop {
						return outcome, nil
					}
					ip = t.IP
				}
			}

		case OpNativeCall:
			var nativeID uint16
			var argc byte
			nativeID, ip = readU16(code, ip)
			argc, ip = readU8(code, ip)
			args := make([]value.Value, argc)
			for i := int(argc) - 1; i >= 0 && err == nil; i-- {
				args[i], err = t.Stack.Pop()
			}
			if err == nil {
				stop, outcome, serr := in.dispatchNative(t, nativeabi.NativeID(nativeID), args, ip)
				if serr != nil {
					return OutcomeFailed, serr
				}
				if stop {
					return outcome, nil
				}
				ip = t.IP
			}
		case OpModuleNativeCall:
			var localIdx uint16
			var argc byte
			localIdx, ip = readU16(code, ip)
			argc, ip = readU8(code, ip)
			args := make([]value.Value, argc)
			for i := int(argc) - 1; i >= 0 && err == nil; i-- {
				args[i], err = t.Stack.Pop()
			}
			if err == nil {
				stop, outcome, serr := in.dispatchModuleNative(t, int(localIdx), args, ip)
				if serr != nil {
					return OutcomeFailed, serr
				}
				if stop {
					return outcome, nil
				}
				ip = t.IP
			}

		case OpPop:
			_, err = t.Stack.Pop()
		case OpDup:
			var v value.Value
			v, err = t.Stack.Peek()
			if err == nil {
				err = t.Stack.Push(v)
			}

		default:
			err = rerrors.RuntimeError("unknown opcode 0x%02X", byte(op))
		}

		if err != nil {
			terminal, outcome := in.doThrowFromError(t, err)
			if terminal {
				return outcome, nil
			}
			continue
		}
		t.IP = ip
	}
}

// doThrowFromError converts a Go error raised mid-instruction into a thrown
// Value (a string carrying its message), unwinding to the nearest handler
// the same way an explicit Throw opcode would (spec §7's propagation rule
// for runtime failures).
func (in *Interpreter) doThrowFromError(t *scheduler.Task, cause error) (terminal bool, outcome Outcome) {
	excVal, allocErr := in.Heap.NewString(cause.Error())
	if allocErr != nil {
		in.Sched.FailTask(t, value.Null())
		return true, OutcomeFailed
	}
	return in.doThrow(t, excVal)
}

func (in *Interpreter) constValue(c *module.Const) (value.Value, error) {
	switch c.Kind {
	case module.ConstString:
		return in.Heap.NewString(c.Str)
	case module.ConstNumber:
		return value.F64(c.Number), nil
	case module.ConstBool:
		return value.Bool(c.Bool), nil
	case module.ConstNull:
		return value.Null(), nil
	default:
		return value.Value{}, rerrors.RuntimeError("unknown constant kind %d", c.Kind)
	}
}

func (in *Interpreter) binaryOp(op Op, a, b value.Value) (value.Value, error) {
	switch op {
	case OpAdd:
		return in.add(a, b)
	case OpSub:
		return numericBinary(a, b, func(x, y int64) int64 { return x - y }, func(x, y float64) float64 { return x - y })
	case OpMul:
		return numericBinary(a, b, func(x, y int64) int64 { return x * y }, func(x, y float64) float64 { return x * y })
	case OpDiv:
		af, bf, err := numericCompare(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.F64(af / bf), nil
	case OpMod:
		if ai, aok := a.AsI32(); aok {
			if bi, bok := b.AsI32(); bok {
				if bi == 0 {
					return value.Value{}, rerrors.RuntimeError("modulo by zero")
				}
				return value.I32(ai % bi), nil
			}
		}
		af, bf, err := numericCompare(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.F64(math.Mod(af, bf)), nil
	case OpLt:
		af, bf, err := numericCompare(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(af < bf), nil
	case OpLe:
		af, bf, err := numericCompare(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(af <= bf), nil
	case OpGt:
		af, bf, err := numericCompare(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(af > bf), nil
	case OpGe:
		af, bf, err := numericCompare(a, b)
		if err != nil {
			return value.Value{}, err
		}
		return value.Bool(af >= bf), nil
	case OpEq:
		return value.Bool(a.StrictEquals(b)), nil
	case OpNeq:
		return value.Bool(!a.StrictEquals(b)), nil
	case OpAnd:
		return value.Bool(truthy(a) && truthy(b)), nil
	case OpOr:
		return value.Bool(truthy(a) || truthy(b)), nil
	default:
		return value.Value{}, rerrors.RuntimeError("not a binary opcode")
	}
}

func negate(a value.Value) (value.Value, error) {
	if ai, ok := a.AsI32(); ok {
		return value.I32(-ai), nil
	}
	if f, ok := a.NumericValue(); ok {
		return value.F64(-f), nil
	}
	return value.Value{}, rerrors.TypeError("cannot negate %s", nativeabi.TypeName(a))
}

func indexAsInt(idx value.Value) (int, error) {
	if i, ok := idx.AsI32(); ok {
		return int(i), nil
	}
	if f, ok := idx.NumericValue(); ok {
		return int(f), nil
	}
	return 0, rerrors.TypeError("index is not numeric")
}

func loadIndex(container, idx value.Value) (value.Value, error) {
	if !container.IsPtr() {
		return value.Value{}, rerrors.TypeError("cannot index %s", nativeabi.TypeName(container))
	}
	switch container.Kind() {
	case value.KindArray:
		arr, _ := heap.AsArray(container)
		i, err := indexAsInt(idx)
		if err != nil {
			return value.Value{}, err
		}
		v, ok := arr.Get(i)
		if !ok {
			return value.Value{}, rerrors.RuntimeError("array index %d out of range [0,%d)", i, arr.Len())
		}
		return v, nil
	case value.KindMap:
		m, _ := heap.AsMap(container)
		v, ok := m.Get(idx)
		if !ok {
			return value.Null(), nil
		}
		return v, nil
	case value.KindBuffer:
		b, _ := heap.AsBuffer(container)
		i, err := indexAsInt(idx)
		if err != nil {
			return value.Value{}, err
		}
		by, err := b.GetByte(i)
		if err != nil {
			return value.Value{}, err
		}
		return value.I32(int32(by)), nil
	default:
		return value.Value{}, rerrors.TypeError("%s is not indexable", nativeabi.TypeName(container))
	}
}

func storeIndex(container, idx, v value.Value) error {
	if !container.IsPtr() {
		return rerrors.TypeError("cannot index %s", nativeabi.TypeName(container))
	}
	switch container.Kind() {
	case value.KindArray:
		arr, _ := heap.AsArray(container)
		i, err := indexAsInt(idx)
		if err != nil {
			return err
		}
		if !arr.Set(i, v) {
			return rerrors.RuntimeError("array index %d out of range [0,%d)", i, arr.Len())
		}
		return nil
	case value.KindMap:
		m, _ := heap.AsMap(container)
		m.Set(idx, v)
		return nil
	case value.KindBuffer:
		b, _ := heap.AsBuffer(container)
		i, err := indexAsInt(idx)
		if err != nil {
			return err
		}
		by, err := indexAsInt(v)
		if err != nil {
			return err
		}
		return b.SetByte(i, byte(by))
	default:
		return rerrors.TypeError("%s is not indexable", nativeabi.TypeName(container))
	}
}

// yieldNow implements the cooperative Yield opcode: t gives up its turn
// unconditionally and re-enters the ready queue without a suspension
// reason, since Yield is not one of spec §4.5's seven blocking reasons.
func (in *Interpreter) yieldNow(t *scheduler.Task, ip uint32) (stop bool, outcome Outcome, err error) {
	t.IP = ip
	in.Sched.Yield(t)
	return true, OutcomeSuspended, nil
}

func (in *Interpreter) dispatchNative(t *scheduler.Task, id nativeabi.NativeID, args []value.Value, ip uint32) (stop bool, outcome Outcome, err error) {
	ctx := &nativeabi.Context{Heap: in.Heap, Module: in.Module, Scheduler: in.Sched, Task: t}
	res, callErr := in.Natives.Dispatch(id, ctx, args)
	if callErr != nil {
		terminal, oc := in.doThrowFromError(t, callErr)
		return terminal, oc, nil
	}
	if res.Suspend != nil {
		return in.suspendOrContinue(t, *res.Suspend, ip)
	}
	if pushErr := t.Stack.Push(res.Value); pushErr != nil {
		return true, OutcomeFailed, pushErr
	}
	t.IP = ip
	return false, 0, nil
}

func (in *Interpreter) dispatchModuleNative(t *scheduler.Task, localIdx int, args []value.Value, ip uint32) (stop bool, outcome Outcome, err error) {
	ctx := &nativeabi.Context{Heap: in.Heap, Module: in.Module, Scheduler: in.Sched, Task: t}
	res, callErr := in.ModuleNatives.Dispatch(in.Natives, localIdx, ctx, args)
	if callErr != nil {
		terminal, oc := in.doThrowFromError(t, callErr)
		return terminal, oc, nil
	}
	if res.Suspend != nil {
		return in.suspendOrContinue(t, *res.Suspend, ip)
	}
	if pushErr := t.Stack.Push(res.Value); pushErr != nil {
		return true, OutcomeFailed, pushErr
	}
	t.IP = ip
	return false, 0, nil
}
