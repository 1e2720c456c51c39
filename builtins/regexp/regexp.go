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

// Package regexp registers the RegExpObject native family (spec §3.2,
// §4.4). Compilation and matching are delegated to
// github.com/dlclark/regexp2, since Go's stdlib regexp (RE2) can't express
// the s (dotall) and u (unicode) flags spec §3.2 requires.
package regexp

import (
	"github.com/dlclark/regexp2"

	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/nativeabi"
	"github.com/rayalang/raya/rerrors"
	"github.com/rayalang/raya/value"
)

const RegExpCreate nativeabi.NativeID = nativeabi.RangeRegExp + 100

func compile(source, flags string) (*regexp2.Regexp, error) {
	opts := regexp2.None
	for i := 0; i < len(flags); i++ {
		switch flags[i] {
		case 'i':
			opts |= regexp2.IgnoreCase
		case 'm':
			opts |= regexp2.Multiline
		case 's':
			opts |= regexp2.Singleline
		case 'u':
			opts |= regexp2.Unicode
		case 'g':
			// handled at the match-iteration level, not a regexp2 option
		}
	}
	re, err := regexp2.Compile(source, opts)
	if err != nil {
		return nil, rerrors.RuntimeError("invalid regular expression /%s/%s: %v", source, flags, err)
	}
	return re, nil
}

func asRegExp(args []value.Value, i int) (*heap.RegExpObject, error) {
	if i >= len(args) {
		return nil, rerrors.ArgumentCountMismatch("regexp native: missing argument %d", i)
	}
	r, ok := heap.AsRegExp(args[i])
	if !ok {
		return nil, rerrors.TypeError("regexp native: argument %d is not a regexp", i)
	}
	return r, nil
}

func compiled(r *heap.RegExpObject) (*regexp2.Regexp, error) {
	if re, ok := r.Compiled.(*regexp2.Regexp); ok {
		return re, nil
	}
	re, err := compile(r.Source, r.Flags)
	if err != nil {
		return nil, err
	}
	r.Compiled = re
	return re, nil
}

func asString(v value.Value) (string, bool) {
	s, ok := heap.AsString(v)
	if !ok {
		return "", false
	}
	return s.String(), true
}

// Register installs every RegExpObject native handler into table.
func Register(table *nativeabi.Table) {
	table.Register(RegExpCreate, "regexp.create", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		if len(args) < 2 {
			return nativeabi.Result{}, rerrors.ArgumentCountMismatch("regexp.create expects (source, flags)")
		}
		source, ok := asString(args[0])
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("regexp.create: source must be a string")
		}
		flags, ok := asString(args[1])
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("regexp.create: flags must be a string")
		}
		re, err := compile(source, flags)
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := ctx.Heap.NewRegExp(source, flags)
		if err != nil {
			return nativeabi.Result{}, err
		}
		obj, _ := heap.AsRegExp(v)
		obj.Compiled = re
		return nativeabi.Pushed(v), nil
	})

	table.Register(nativeabi.RegExpTest, "regexp.test", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		r, err := asRegExp(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		text, ok := asString(args[1])
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("regexp.test: argument must be a string")
		}
		re, err := compiled(r)
		if err != nil {
			return nativeabi.Result{}, err
		}
		m, err := re.FindStringMatch(text)
		if err != nil {
			return nativeabi.Result{}, rerrors.RuntimeError("regexp match failed: %v", err)
		}
		return nativeabi.Pushed(value.Bool(m != nil)), nil
	})

	table.Register(nativeabi.RegExpExec, "regexp.exec", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		r, err := asRegExp(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		text, ok := asString(args[1])
		if !ok {
			return nativeabi.Result{}, rerrors.TypeError("regexp.exec: argument must be a string")
		}
		re, err := compiled(r)
		if err != nil {
			return nativeabi.Result{}, err
		}
		m, err := re.FindStringMatch(text)
		if err != nil {
			return nativeabi.Result{}, rerrors.RuntimeError("regexp match failed: %v", err)
		}
		if m == nil {
			return nativeabi.Pushed(value.Null()), nil
		}
		groups := m.Groups()
		arrVal, err := ctx.Heap.NewArray(len(groups))
		if err != nil {
			return nativeabi.Result{}, err
		}
		arr, _ := heap.AsArray(arrVal)
		for i, g := range groups {
			sv, err := ctx.Heap.NewString(g.String())
			if err != nil {
				return nativeabi.Result{}, err
			}
			arr.Set(i, sv)
		}
		return nativeabi.Pushed(arrVal), nil
	})

	table.Register(nativeabi.RegExpSource, "regexp.source", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		r, err := asRegExp(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := ctx.Heap.NewString(r.Source)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})

	table.Register(nativeabi.RegExpFlags, "regexp.flags", func(ctx *nativeabi.Context, args []value.Value) (nativeabi.Result, error) {
		r, err := asRegExp(args, 0)
		if err != nil {
			return nativeabi.Result{}, err
		}
		v, err := ctx.Heap.NewString(r.Flags)
		if err != nil {
			return nativeabi.Result{}, err
		}
		return nativeabi.Pushed(v), nil
	})
}
