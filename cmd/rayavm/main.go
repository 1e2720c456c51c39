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

// Command rayavm loads a Module in the JSON encoding (module.LoadJSON) and
// runs its entry function to completion.
//
// Usage:
//
//	rayavm [flags] <module.json>
//
// Flags:
//
//	-entry <name>     Entry function name (default: "main")
//	-heap-limit <n>   Heap byte limit (default: heap.DefaultLimit)
//	-timeout <dur>    Wall-clock run timeout, e.g. "5s" (default: 30s)
//	-version          Print version and exit
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/rayalang/raya/engine"
	"github.com/rayalang/raya/heap"
	"github.com/rayalang/raya/interp"
	"github.com/rayalang/raya/module"
	"github.com/rayalang/raya/value"
)

const version = "0.1.0"

func main() {
	var (
		entry     = flag.String("entry", "main", "Entry function name")
		heapLimit = flag.Uint64("heap-limit", 0, "Heap byte limit (0: default)")
		timeout   = flag.Duration("timeout", 30*time.Second, "Wall-clock run timeout")
		ver       = flag.Bool("version", false, "Print version and exit")
	)
	flag.Parse()

	if *ver {
		fmt.Printf("rayavm %s\n", version)
		return
	}

	if flag.NArg() < 1 {
		fmt.Fprintln(os.Stderr, "usage: rayavm [flags] <module.json>")
		os.Exit(1)
	}

	if err := run(flag.Arg(0), *entry, *heapLimit, *timeout); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run(path, entry string, heapLimit uint64, timeout time.Duration) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return err
	}

	mod, err := module.LoadJSON(data)
	if err != nil {
		return err
	}

	idx, fn, ok := mod.FunctionByName(entry)
	if !ok {
		return fmt.Errorf("module has no function named %q", entry)
	}
	if fn.ParamCount != 0 {
		return fmt.Errorf("entry function %q must take no arguments, has %d", entry, fn.ParamCount)
	}

	eng, err := engine.New(mod, engine.Config{HeapByteLimit: heapLimit}, nil)
	if err != nil {
		return err
	}

	root, err := eng.Spawn(idx, nil)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	outcome, err := eng.Run(ctx, root)
	switch outcome {
	case interp.OutcomeCompleted:
		fmt.Println(formatValue(root.Result))
		return nil
	case interp.OutcomeFailed:
		return fmt.Errorf("task failed: %s", formatValue(root.FailValue))
	case interp.OutcomeCancelled:
		return fmt.Errorf("run cancelled: %v", err)
	default:
		return fmt.Errorf("run ended without completing (outcome %s)", outcome)
	}
}

// formatValue renders a result Value for terminal output, covering the
// primitive kinds directly and falling back to the heap kind name for
// pointer values (a full Inspect-style dump is reflectapi's job, not the
// CLI's).
func formatValue(v value.Value) string {
	switch {
	case v.IsNull():
		return "null"
	case v.IsBool():
		b, _ := v.AsBool()
		return fmt.Sprintf("%v", b)
	case v.IsI32(), v.IsF64(), v.IsU64(), v.IsI64():
		n, _ := v.NumericValue()
		return fmt.Sprintf("%v", n)
	case v.IsPtr():
		if s, ok := heap.AsString(v); ok {
			return s.String()
		}
		return fmt.Sprintf("<%s>", v.Kind())
	default:
		return "?"
	}
}
