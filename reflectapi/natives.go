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

import "github.com/rayalang/raya/nativeabi"

// NativeID is a local alias for nativeabi.NativeID, so every file in this
// package can declare its own native-id block without repeating the
// qualified name — the same convention builtins/regexp and builtins/date
// use for their own one-off ids layered on nativeabi's base ranges.
type NativeID = nativeabi.NativeID

// Sub-ranges within nativeabi.RangeReflect (0x0500-0x0E2F), one block of
// 0x40 ids per reflective concern, spaced out for headroom rather than
// packed tight — grounded on the Rust original's family groupings within
// its own reflect opcode table.
const (
	RangeMetadata    NativeID = nativeabi.RangeReflect + 0x000
	RangeIntrospect  NativeID = nativeabi.RangeReflect + 0x040
	RangeFields      NativeID = nativeabi.RangeReflect + 0x080
	RangeMethods     NativeID = nativeabi.RangeReflect + 0x0C0
	RangeCreate      NativeID = nativeabi.RangeReflect + 0x100
	RangeTypeUtil    NativeID = nativeabi.RangeReflect + 0x140
	RangeInspect     NativeID = nativeabi.RangeReflect + 0x180
	RangeHeapStats   NativeID = nativeabi.RangeReflect + 0x1C0
	RangeCallStack   NativeID = nativeabi.RangeReflect + 0x200
	RangeBuilders    NativeID = nativeabi.RangeReflect + 0x240
	RangePermissions NativeID = nativeabi.RangeReflect + 0x300
	RangeDecorators  NativeID = nativeabi.RangeReflect + 0x340
	RangeSpecialize  NativeID = nativeabi.RangeReflect + 0x380
)

// RegisterAll installs every reflective native family into table, bound
// to r. Called once at engine startup, the same way nativeabi.RegisterCore
// and each builtins package's Register are.
func RegisterAll(table *nativeabi.Table, r *Reflector) {
	registerMetadata(table, r)
	registerIntrospect(table, r)
	registerFields(table, r)
	registerMethods(table, r)
	registerCreate(table, r)
	registerTypeUtil(table, r)
	registerInspect(table, r)
	registerHeapStats(table, r)
	registerCallStack(table, r)
	registerBuilders(table, r)
	registerPermissions(table, r)
	registerDecorators(table, r)
	registerSpecialize(table, r)
}
