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

package rlog

import (
	"bytes"
	"strings"
	"testing"
)

func TestLevelFiltering(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.SetLevel(LevelWarn)

	l.Info("should not appear")
	l.Debug("should not appear either")
	if buf.Len() != 0 {
		t.Fatalf("output after Info/Debug below minLevel = %q; want empty", buf.String())
	}

	l.Warn("visible")
	if !strings.Contains(buf.String(), "visible") {
		t.Errorf("output = %q; want it to contain %q", buf.String(), "visible")
	}
}

func TestKeyValuePairsAreFormatted(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Info("task suspended", "taskID", 7, "reason", "sleep")

	out := buf.String()
	if !strings.Contains(out, "taskID=7") || !strings.Contains(out, "reason=sleep") {
		t.Errorf("output = %q; want both key=value pairs present", out)
	}
	if !strings.Contains(out, "INFO") {
		t.Errorf("output = %q; want the level name present", out)
	}
}

func TestOddKeyValueCountMarksMissingValue(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	l.Info("msg", "dangling")

	if !strings.Contains(buf.String(), "dangling=<missing>") {
		t.Errorf("output = %q; want the unmatched key flagged with <missing>", buf.String())
	}
}

func TestWithInheritsContextAcrossCalls(t *testing.T) {
	var buf bytes.Buffer
	l := New(&buf)
	child := l.With("taskID", 3)
	child.Info("spawned")
	child.Info("completed")

	lines := strings.Split(strings.TrimRight(buf.String(), "\n"), "\n")
	if len(lines) != 2 {
		t.Fatalf("expected 2 log lines, got %d: %q", len(lines), buf.String())
	}
	for _, line := range lines {
		if !strings.Contains(line, "taskID=3") {
			t.Errorf("line %q should carry the inherited taskID=3 context", line)
		}
	}
}

func TestLevelStringUnknown(t *testing.T) {
	if got := Level(99).String(); got != "?????" {
		t.Errorf("Level(99).String() = %q; want %q", got, "?????")
	}
}
