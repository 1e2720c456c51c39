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

// Package rlog is the structured, leveled logger used across the runtime.
// Call sites look like:
//
//	rlog.Info("task suspended", "taskID", id, "reason", reason)
//
// which matches the key-value call shape the wider go-probe tree uses for
// its own log package. Output is colorized when attached to a terminal.
package rlog

import (
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/fatih/color"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

// Level is a logging severity.
type Level int

const (
	LevelDebug Level = iota
	LevelInfo
	LevelWarn
	LevelError
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "?????"
	}
}

var levelColor = map[Level]*color.Color{
	LevelDebug: color.New(color.FgHiBlack),
	LevelInfo:  color.New(color.FgGreen),
	LevelWarn:  color.New(color.FgYellow),
	LevelError: color.New(color.FgRed, color.Bold),
}

// Logger writes leveled, key-value structured records to an output stream.
type Logger struct {
	mu       sync.Mutex
	out      io.Writer
	colorize bool
	minLevel Level
	ctx      []any // inherited key-value pairs, from With()
}

// New creates a Logger writing to w. If w is os.Stdout/os.Stderr and the
// descriptor is a terminal, output is colorized via go-colorable (needed
// on Windows consoles) and go-isatty (to detect the terminal in the first
// place).
func New(w io.Writer) *Logger {
	colorize := false
	if f, ok := w.(*os.File); ok && isatty.IsTerminal(f.Fd()) {
		w = colorable.NewColorable(f)
		colorize = true
	}
	return &Logger{out: w, colorize: colorize, minLevel: LevelInfo}
}

// Default is the package-level logger used by the free functions below.
var Default = New(os.Stderr)

// SetLevel sets the minimum level that will be emitted.
func (l *Logger) SetLevel(lvl Level) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.minLevel = lvl
}

// With returns a derived Logger that prepends kv to every record it emits.
func (l *Logger) With(kv ...any) *Logger {
	child := &Logger{out: l.out, colorize: l.colorize, minLevel: l.minLevel}
	child.ctx = append(append([]any{}, l.ctx...), kv...)
	return child
}

func (l *Logger) log(lvl Level, msg string, kv []any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if lvl < l.minLevel {
		return
	}
	ts := time.Now().Format("15:04:05.000")
	prefix := fmt.Sprintf("[%s] %-5s %s", ts, lvl, msg)
	if l.colorize {
		prefix = fmt.Sprintf("[%s] %s %s", ts, levelColor[lvl].Sprint(lvl.String()), msg)
	}
	fmt.Fprint(l.out, prefix)
	all := append(append([]any{}, l.ctx...), kv...)
	for i := 0; i+1 < len(all); i += 2 {
		fmt.Fprintf(l.out, " %v=%v", all[i], all[i+1])
	}
	if len(all)%2 == 1 {
		fmt.Fprintf(l.out, " %v=<missing>", all[len(all)-1])
	}
	fmt.Fprintln(l.out)
}

func (l *Logger) Debug(msg string, kv ...any) { l.log(LevelDebug, msg, kv) }
func (l *Logger) Info(msg string, kv ...any)  { l.log(LevelInfo, msg, kv) }
func (l *Logger) Warn(msg string, kv ...any)  { l.log(LevelWarn, msg, kv) }
func (l *Logger) Error(msg string, kv ...any) { l.log(LevelError, msg, kv) }

func Debug(msg string, kv ...any) { Default.Debug(msg, kv...) }
func Info(msg string, kv ...any)  { Default.Info(msg, kv...) }
func Warn(msg string, kv ...any)  { Default.Warn(msg, kv...) }
func Error(msg string, kv ...any) { Default.Error(msg, kv...) }
