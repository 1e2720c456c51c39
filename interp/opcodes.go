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

package interp

// Op is a one-byte opcode. Every opcode's operand shape is documented
// inline; operands are little-endian and immediately follow the opcode
// byte (spec §4.3).
type Op byte

const (
	// Constants
	OpPushNull  Op = iota // ()
	OpPushBool            // (u8 0|1)
	OpPushI32             // (i32)
	OpPushF64             // (f64 bits as u64)
	OpPushConst           // (u16 constIdx)

	// Locals / globals
	OpLoadLocal   // (u16 idx)
	OpStoreLocal  // (u16 idx)
	OpLoadGlobal  // (u16 idx)
	OpStoreGlobal // (u16 idx)

	// Arithmetic / comparison
	OpAdd
	OpSub
	OpMul
	OpDiv
	OpMod
	OpNeg
	OpLt
	OpLe
	OpGt
	OpGe
	OpEq
	OpNeq
	OpNot
	OpAnd
	OpOr

	// Control flow
	OpJump         // (i32 offset, absolute ip)
	OpJumpIfTrue   // (i32 offset)
	OpJumpIfFalse  // (i32 offset)
	OpCall         // (u16 functionID, u8 argc)
	OpCallIndirect // (u8 argc)
	OpReturn
	OpReturnVoid

	// Objects / arrays
	OpNewObject   // (u16 classID)
	OpNewArray    // (u16 count)
	OpLoadField   // (u16 classID, u16 slot)
	OpStoreField  // (u16 classID, u16 slot)
	OpLoadIndex   // ()
	OpStoreIndex  // ()
	OpLoadMethod  // (u16 classID, u16 slot)

	// Closures
	OpMakeClosure // (u16 functionID, u8 captureCount)
	OpCapture     // (u16 idx)

	// Exceptions
	OpThrow
	OpTryBegin // (i32 handlerIP)
	OpTryEnd

	// Async / concurrency
	OpSpawn // (u16 functionID, u8 argc)
	OpAwait
	OpYield
	OpSleep // () -- ms operand comes off the stack

	// Native dispatch
	OpNativeCall       // (u16 nativeID, u8 argc)
	OpModuleNativeCall // (u16 localIdx, u8 argc)

	// Stack hygiene
	OpPop
	OpDup
)
