// Copyright 2026 Google LLC. All Rights Reserved.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package console

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/google/stageboot/internal/failure"
)

func TestSpinner(t *testing.T) {
	var buf bytes.Buffer
	s := NewSpinner(&buf)
	for i := 0; i < 5; i++ {
		s.Tick()
	}
	if got, want := buf.String(), "\b|\b/\b-\b\\\b|"; got != want {
		t.Errorf("spinner drew %q, want %q", got, want)
	}
	if s.Ticks() != 5 {
		t.Errorf("Ticks() = %d, want 5", s.Ticks())
	}

	var nilSpinner *Spinner
	nilSpinner.Tick()
}

func TestNilConsole(t *testing.T) {
	var c *Console
	c.Printf("dropped %d", 1)
	if n, err := c.Write([]byte("abc")); n != 3 || err != nil {
		t.Errorf("Write on nil console = %d, %v", n, err)
	}
}

type stopSpinning struct{}

func TestSpinHalt(t *testing.T) {
	var buf bytes.Buffer
	sleeps := 0
	h := Spin{
		Console: New(&buf),
		Every:   time.Second,
		Sleep: func(d time.Duration) {
			if d != time.Second {
				t.Errorf("slept %v, want 1s", d)
			}
			sleeps++
			if sleeps == 2 {
				panic(stopSpinning{})
			}
		},
	}

	func() {
		defer func() {
			if r := recover(); r != (stopSpinning{}) {
				t.Fatalf("Halt returned or panicked with %v", r)
			}
		}()
		h.Halt(failure.New(failure.OpenFailed, "open boot.bin", nil))
	}()

	out := buf.String()
	if got := strings.Count(out, "halted (source-unavailable): open boot.bin: open-failed"); got != 2 {
		t.Errorf("halt report repeated %d times, want 2; output:\n%s", got, out)
	}
}
