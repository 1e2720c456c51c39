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
	"encoding/binary"
	"math"

	"github.com/google/uuid"

	"github.com/rayalang/raya/class"
	"github.com/rayalang/raya/interp"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

// ClassBuilder accumulates a class declaration incrementally (spec §4.6's
// dynamic class construction) before committing it to the shared
// class.Registry with Finalize. Built the same way a static loader
// assembles a module.ClassDef, just field-at-a-time instead of all at once.
type ClassBuilder struct {
	name       string
	parentID   *uint32
	fields     []class.FieldAttr
	methods    []class.MethodAttr
	vtable     []uint32
	interfaces []string
	ctorFnID   *uint32
	finalized  bool
}

// OpenClass begins a new ClassBuilder named name, returning the token its
// caller must pass to every other ClassBuilder operation.
func (r *Reflector) OpenClass(name string) uuid.UUID {
	id := uuid.New()
	r.classBuilders[id] = &ClassBuilder{name: name}
	return id
}

func (r *Reflector) classBuilder(token uuid.UUID) (*ClassBuilder, error) {
	b, ok := r.classBuilders[token]
	if !ok {
		return nil, rerrors.RuntimeError("reflect: unknown class builder %s", token)
	}
	if b.finalized {
		return nil, rerrors.RuntimeError("reflect: class builder %s already finalized", token)
	}
	return b, nil
}

// SetParent records parentID as the class-under-construction's superclass.
// Its fields and vtable prefix are inherited, matching the layout rule
// class.Registry.Register enforces at Finalize time.
func (r *Reflector) SetParent(token uuid.UUID, parentID uint32) error {
	b, err := r.classBuilder(token)
	if err != nil {
		return err
	}
	parent, ok := r.classes.Get(parentID)
	if !ok {
		return rerrors.RuntimeError("reflect: unknown parent class id %d", parentID)
	}
	parentMeta, _ := r.classes.Metadata(parentID)
	b.parentID = &parentID
	b.fields = append([]class.FieldAttr(nil), parentMeta.FieldAttrs...)
	b.methods = append([]class.MethodAttr(nil), parentMeta.MethodAttrs...)
	b.vtable = append([]uint32(nil), parent.VTable...)
	return nil
}

// AddField declares a new instance field, returning its slot index.
func (r *Reflector) AddField(token uuid.UUID, name string, readOnly bool) (int, error) {
	b, err := r.classBuilder(token)
	if err != nil {
		return 0, err
	}
	b.fields = append(b.fields, class.FieldAttr{Name: name, ReadOnly: readOnly})
	return len(b.fields) - 1, nil
}

// AddMethod installs functionID as the handler for a new vtable slot named
// name, returning that slot index. A slot whose name matches an inherited
// one is an override rather than a new slot, matching class.Registry's
// arity-preserving override rule.
func (r *Reflector) AddMethod(token uuid.UUID, name string, functionID uint32, async bool, paramCount int) (int, error) {
	b, err := r.classBuilder(token)
	if err != nil {
		return 0, err
	}
	for i, m := range b.methods {
		if m.Name == name {
			b.methods[i].ParamCount = paramCount
			b.methods[i].Async = async
			b.vtable[i] = functionID
			return i, nil
		}
	}
	b.methods = append(b.methods, class.MethodAttr{Name: name, Async: async, ParamCount: paramCount})
	b.vtable = append(b.vtable, functionID)
	return len(b.methods) - 1, nil
}

// AddInterface records name as an interface the class-under-construction
// declares conformance to (spec's Implements/GetInterfaces queries).
func (r *Reflector) AddInterface(token uuid.UUID, name string) error {
	b, err := r.classBuilder(token)
	if err != nil {
		return err
	}
	b.interfaces = append(b.interfaces, name)
	return nil
}

// SetConstructor records functionID as the constructor Construct should
// invoke after allocating an instance.
func (r *Reflector) SetConstructor(token uuid.UUID, functionID uint32) error {
	b, err := r.classBuilder(token)
	if err != nil {
		return err
	}
	b.ctorFnID = &functionID
	return nil
}

// FinalizeClass registers the accumulated declaration into the shared
// class.Registry, returning the newly assigned class id.
func (r *Reflector) FinalizeClass(token uuid.UUID) (uint32, error) {
	b, err := r.classBuilder(token)
	if err != nil {
		return 0, err
	}
	id := r.classes.NextID()
	declaring := id
	for i := range b.fields {
		if b.fields[i].DeclaringClass == 0 {
			b.fields[i].DeclaringClass = declaring
		}
	}
	fieldNames := make([]string, len(b.fields))
	for i, f := range b.fields {
		fieldNames[i] = f.Name
	}
	methodNames := make([]string, len(b.methods))
	for i, m := range b.methods {
		methodNames[i] = m.Name
		if b.methods[i].DeclaringClass == 0 {
			b.methods[i].DeclaringClass = declaring
		}
	}
	c := &class.Class{
		ID:         id,
		Name:       b.name,
		FieldCount: len(b.fields),
		ParentID:   b.parentID,
		VTable:     b.vtable,
	}
	m := &class.Metadata{
		FieldNames:  fieldNames,
		MethodNames: methodNames,
		Interfaces:  b.interfaces,
		FieldAttrs:  b.fields,
		MethodAttrs: b.methods,
	}
	if err := r.classes.Register(c, m); err != nil {
		return 0, err
	}
	if b.ctorFnID != nil {
		r.RegisterConstructor(id, *b.ctorFnID)
	}
	b.finalized = true
	delete(r.classBuilders, token)
	return id, nil
}

// pendingJump is an emitted jump whose target label wasn't yet defined.
type pendingJump struct {
	patchAt int // offset of the i32 operand to backpatch
}

// BytecodeBuilder assembles one function's bytecode a typed instruction at
// a time (spec §4.6), in interp's flat Op-plus-little-endian-operand
// encoding (interp/opcodes.go), rather than requiring the caller to hand-
// assemble bytes.
type BytecodeBuilder struct {
	name       string
	paramCount int
	localCount int
	code       []byte
	labels     map[string]int
	pending    map[string][]pendingJump
	finalized  bool
}

// OpenFunction begins a new BytecodeBuilder for a function named name with
// paramCount declared parameters (which count toward localCount).
func (r *Reflector) OpenFunction(name string, paramCount int) uuid.UUID {
	id := uuid.New()
	r.funcBuilders[id] = &BytecodeBuilder{
		name:       name,
		paramCount: paramCount,
		localCount: paramCount,
		labels:     make(map[string]int),
		pending:    make(map[string][]pendingJump),
	}
	return id
}

func (r *Reflector) funcBuilder(token uuid.UUID) (*BytecodeBuilder, error) {
	b, ok := r.funcBuilders[token]
	if !ok {
		return nil, rerrors.RuntimeError("reflect: unknown bytecode builder %s", token)
	}
	if b.finalized {
		return nil, rerrors.RuntimeError("reflect: bytecode builder %s already finalized", token)
	}
	return b, nil
}

// DeclareLocal reserves a new local slot (beyond the declared parameters),
// returning its index.
func (r *Reflector) DeclareLocal(token uuid.UUID) (int, error) {
	b, err := r.funcBuilder(token)
	if err != nil {
		return 0, err
	}
	idx := b.localCount
	b.localCount++
	return idx, nil
}

func (b *BytecodeBuilder) emitOp(op interp.Op) { b.code = append(b.code, byte(op)) }
func (b *BytecodeBuilder) emitU8(v uint8)      { b.code = append(b.code, v) }
func (b *BytecodeBuilder) emitU16(v uint16) {
	b.code = append(b.code, 0, 0)
	binary.LittleEndian.PutUint16(b.code[len(b.code)-2:], v)
}
func (b *BytecodeBuilder) emitI32(v int32) {
	b.code = append(b.code, 0, 0, 0, 0)
	binary.LittleEndian.PutUint32(b.code[len(b.code)-4:], uint32(v))
}
func (b *BytecodeBuilder) emitF64(v float64) {
	b.code = append(b.code, 0, 0, 0, 0, 0, 0, 0, 0)
	binary.LittleEndian.PutUint64(b.code[len(b.code)-8:], math.Float64bits(v))
}

// EmitPushNull, EmitPushBool, EmitPushI32, EmitPushF64, and EmitPushConst
// append the corresponding constant-load opcode (interp/opcodes.go's
// "Constants" group).
func (r *Reflector) EmitPushNull(token uuid.UUID) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(interp.OpPushNull)
	return nil
}

func (r *Reflector) EmitPushBool(token uuid.UUID, v bool) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(interp.OpPushBool)
	if v {
		b.emitU8(1)
	} else {
		b.emitU8(0)
	}
	return nil
}

func (r *Reflector) EmitPushI32(token uuid.UUID, v int32) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(interp.OpPushI32)
	b.emitI32(v)
	return nil
}

func (r *Reflector) EmitPushF64(token uuid.UUID, v float64) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(interp.OpPushF64)
	b.emitF64(v)
	return nil
}

func (r *Reflector) EmitPushConst(token uuid.UUID, constIdx uint16) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(interp.OpPushConst)
	b.emitU16(constIdx)
	return nil
}

// EmitOp appends a bare opcode with no operands (OpAdd, OpReturn, OpPop,
// OpDup, and the rest of interp/opcodes.go's zero-operand family).
func (r *Reflector) EmitOp(token uuid.UUID, op interp.Op) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(op)
	return nil
}

// EmitLocalOp appends a local/global access opcode (OpLoadLocal,
// OpStoreLocal, OpLoadGlobal, OpStoreGlobal), each taking a u16 index.
func (r *Reflector) EmitLocalOp(token uuid.UUID, op interp.Op, idx uint16) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(op)
	b.emitU16(idx)
	return nil
}

// EmitCall appends OpCall (functionID, argc).
func (r *Reflector) EmitCall(token uuid.UUID, functionID uint16, argc uint8) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(interp.OpCall)
	b.emitU16(functionID)
	b.emitU8(argc)
	return nil
}

// EmitNativeCall appends OpNativeCall (nativeID, argc).
func (r *Reflector) EmitNativeCall(token uuid.UUID, nativeID uint16, argc uint8) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(interp.OpNativeCall)
	b.emitU16(nativeID)
	b.emitU8(argc)
	return nil
}

// DefineLabel binds name to the current write position, resolving any
// jumps already emitted against it by backpatching their i32 operand.
func (r *Reflector) DefineLabel(token uuid.UUID, name string) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	pos := len(b.code)
	b.labels[name] = pos
	for _, pj := range b.pending[name] {
		binary.LittleEndian.PutUint32(b.code[pj.patchAt:], uint32(pos))
	}
	delete(b.pending, name)
	return nil
}

// EmitJump appends a jump opcode (OpJump, OpJumpIfTrue, OpJumpIfFalse)
// targeting label. If label isn't defined yet, the operand is backpatched
// when DefineLabel later binds it (a forward reference); Validate rejects
// any label still unresolved at Finalize time.
func (r *Reflector) EmitJump(token uuid.UUID, op interp.Op, label string) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	b.emitOp(op)
	patchAt := len(b.code)
	if pos, ok := b.labels[label]; ok {
		b.emitI32(int32(pos))
	} else {
		b.pending[label] = append(b.pending[label], pendingJump{patchAt: patchAt})
		b.emitI32(0)
	}
	return nil
}

// Validate reports an error naming one label referenced by EmitJump that
// DefineLabel never bound, if any such label remains.
func (r *Reflector) Validate(token uuid.UUID) error {
	b, err := r.funcBuilder(token)
	if err != nil {
		return err
	}
	for label := range b.pending {
		return rerrors.RuntimeError("reflect: bytecode builder %s: unresolved label %q", token, label)
	}
	return nil
}

// FinalizeFunction validates the builder and commits its bytecode as a new
// entry in the engine's shared Module, returning the new function's index.
func (r *Reflector) FinalizeFunction(token uuid.UUID) (uint32, error) {
	b, err := r.funcBuilder(token)
	if err != nil {
		return 0, err
	}
	if err := r.Validate(token); err != nil {
		return 0, err
	}
	idx := r.module.AddFunction(module.Function{
		Name:       b.name,
		ParamCount: b.paramCount,
		LocalCount: b.localCount,
		Bytecode:   b.code,
	})
	b.finalized = true
	delete(r.funcBuilders, token)
	return uint32(idx), nil
}

// DynamicModule groups a batch of builder-produced functions, classes, and
// globals under one seal point, mirroring how a loader commits a whole
// module.Module at once rather than one function/class at a time.
type DynamicModule struct {
	functions []uint32
	classes   []uint32
	globals   []string
	sealed    bool
}

// OpenDynamicModule begins a new DynamicModule grouping.
func (r *Reflector) OpenDynamicModule() uuid.UUID {
	id := uuid.New()
	r.moduleBuilders[id] = &DynamicModule{}
	return id
}

func (r *Reflector) dynamicModule(token uuid.UUID) (*DynamicModule, error) {
	dm, ok := r.moduleBuilders[token]
	if !ok {
		return nil, rerrors.RuntimeError("reflect: unknown dynamic module %s", token)
	}
	if dm.sealed {
		return nil, rerrors.RuntimeError("reflect: dynamic module %s already sealed", token)
	}
	return dm, nil
}

// AddDynamicFunction records functionID as belonging to the dynamic module.
func (r *Reflector) AddDynamicFunction(token uuid.UUID, functionID uint32) error {
	dm, err := r.dynamicModule(token)
	if err != nil {
		return err
	}
	dm.functions = append(dm.functions, functionID)
	return nil
}

// AddDynamicClass records classID as belonging to the dynamic module.
func (r *Reflector) AddDynamicClass(token uuid.UUID, classID uint32) error {
	dm, err := r.dynamicModule(token)
	if err != nil {
		return err
	}
	dm.classes = append(dm.classes, classID)
	return nil
}

// AddDynamicGlobal declares a new global slot named name in the engine's
// shared Module, returning its slot index.
func (r *Reflector) AddDynamicGlobal(token uuid.UUID, name string) (int, error) {
	dm, err := r.dynamicModule(token)
	if err != nil {
		return 0, err
	}
	idx, err := r.module.DefineGlobal(name)
	if err != nil {
		return 0, err
	}
	dm.globals = append(dm.globals, name)
	return idx, nil
}

// SealDynamicModule marks token closed to further additions. There is no
// further "link" step: every function/class it names was already committed
// to the shared Module/Registry as its builder finalized, so seal is
// bookkeeping rather than an activation step.
func (r *Reflector) SealDynamicModule(token uuid.UUID) error {
	dm, err := r.dynamicModule(token)
	if err != nil {
		return err
	}
	dm.sealed = true
	return nil
}

func registerBuilders(table *nativeabi.Table, r *Reflector) {
	// Dynamic class/function/module construction re-enters no bytecode, so
	// every builder native here deals in plain ids/bools/strings (the only
	// heap allocation is a returned token's string) — the caller's standard
	// library wraps each one-line native in whatever surface syntax Raya
	// source code uses for ClassBuilder/BytecodeBuilder/DynamicModule.
	table.Register(RangeBuilders, "reflect.openClass", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		name, err := argString(args, 0, "reflect.openClass")
		if err != nil {
			return nativeabi.Result{}, err
		}
		token := r.OpenClass(name)
		return tokenResult(ctx, token)
	})

	table.Register(RangeBuilders+1, "reflect.setParent", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.setParent")
		if err != nil {
			return nativeabi.Result{}, err
		}
		parentID, err := argClassID(args, 1, "reflect.setParent")
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := r.SetParent(token, parentID); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeBuilders+2, "reflect.addField", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.addField")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.addField")
		if err != nil {
			return nativeabi.Result{}, err
		}
		readOnly, _ := argOr(args, 2).AsBool()
		slot, err := r.AddField(token, name, readOnly)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(slot))), nil
	})

	table.Register(RangeBuilders+3, "reflect.addMethod", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.addMethod")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.addMethod")
		if err != nil {
			return nativeabi.Result{}, err
		}
		fnID, err := argClassID(args, 2, "reflect.addMethod")
		if err != nil {
			return nativeabi.Result{}, err
		}
		paramCount := 0
		if n, ok := argOr(args, 3).NumericValue(); ok {
			paramCount = int(n)
		}
		slot, err := r.AddMethod(token, name, fnID, false, paramCount)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(slot))), nil
	})

	table.Register(RangeBuilders+4, "reflect.addInterface", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.addInterface")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.addInterface")
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := r.AddInterface(token, name); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeBuilders+5, "reflect.setConstructor", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.setConstructor")
		if err != nil {
			return nativeabi.Result{}, err
		}
		fnID, err := argClassID(args, 1, "reflect.setConstructor")
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := r.SetConstructor(token, fnID); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeBuilders+6, "reflect.finalizeClass", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.finalizeClass")
		if err != nil {
			return nativeabi.Result{}, err
		}
		id, err := r.FinalizeClass(token)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.U64(uint64(id))), nil
	})

	table.Register(RangeBuilders+7, "reflect.openFunction", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		name, err := argString(args, 0, "reflect.openFunction")
		if err != nil {
			return nativeabi.Result{}, err
		}
		paramCount := 0
		if n, ok := argOr(args, 1).NumericValue(); ok {
			paramCount = int(n)
		}
		token := r.OpenFunction(name, paramCount)
		return tokenResult(ctx, token)
	})

	table.Register(RangeBuilders+8, "reflect.declareLocal", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.declareLocal")
		if err != nil {
			return nativeabi.Result{}, err
		}
		idx, err := r.DeclareLocal(token)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(idx))), nil
	})

	table.Register(RangeBuilders+9, "reflect.defineLabel", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.defineLabel")
		if err != nil {
			return nativeabi.Result{}, err
		}
		label, err := argString(args, 1, "reflect.defineLabel")
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := r.DefineLabel(token, label); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})

	table.Register(RangeBuilders+10, "reflect.finalizeFunction", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.finalizeFunction")
		if err != nil {
			return nativeabi.Result{}, err
		}
		idx, err := r.FinalizeFunction(token)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.U64(uint64(idx))), nil
	})

	table.Register(RangeBuilders+11, "reflect.openModule", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token := r.OpenDynamicModule()
		return tokenResult(ctx, token)
	})

	table.Register(RangeBuilders+12, "reflect.addDynamicGlobal", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.addDynamicGlobal")
		if err != nil {
			return nativeabi.Result{}, err
		}
		name, err := argString(args, 1, "reflect.addDynamicGlobal")
		if err != nil {
			return nativeabi.Result{}, err
		}
		idx, err := r.AddDynamicGlobal(token, name)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.I32(int32(idx))), nil
	})

	table.Register(RangeBuilders+13, "reflect.sealModule", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		token, err := argToken(args, 0, "reflect.sealModule")
		if err != nil {
			return nativeabi.Result{}, err
		}
		if err := r.SealDynamicModule(token); err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(value.Null()), nil
	})
}

// tokenResult renders a uuid.UUID as a Raya string (builders are identified
// by their string form across the native boundary; there is no uuid value
// kind).
func tokenResult(ctx *nativeabi.Context, token uuid.UUID) (nativeabi.Result, error) {
	s, err := ctx.Heap.NewString(token.String())
	if err != nil {
		return nativeabi.Result{}, err
	}
	return nativeabi.Pushed(s), nil
}

// argToken decodes a builder token string argument back into a uuid.UUID.
func argToken(args []value.Value, i int, what string) (uuid.UUID, error) {
	s, err := argString(args, i, what)
	if err != nil {
		return uuid.UUID{}, err
	}
	token, err := uuid.Parse(s)
	if err != nil {
		return uuid.UUID{}, rerrors.TypeError("%s: argument %d is not a valid builder token", what, i)
	}
	return token, nil
}
