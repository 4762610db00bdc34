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

// Package console is the operator facing diagnostic text channel: the serial
// line on hardware, stdout on the host.
package console

import (
	"fmt"
	"io"
)

// Console writes diagnostic text.
// The zero value discards everything.
type Console struct {
	w io.Writer
}

// New returns a console writing to w.
func New(w io.Writer) *Console {
	return &Console{w: w}
}

// Write implements io.Writer.
func (c *Console) Write(p []byte) (int, error) {
	if c == nil || c.w == nil {
		return len(p), nil
	}
	return c.w.Write(p)
}

// Printf writes a formatted diagnostic line.
func (c *Console) Printf(format string, args ...interface{}) {
	fmt.Fprintf(c, format, args...)
}

var spinner = []byte(`|/-\`)

// Spinner draws a one-character progress indicator, overwriting the previous
// glyph with a backspace on every tick.
type Spinner struct {
	w     io.Writer
	ticks int
}

// NewSpinner returns a spinner drawing on w.
func NewSpinner(w io.Writer) *Spinner {
	return &Spinner{w: w}
}

// Tick advances the spinner by one step.
func (s *Spinner) Tick() {
	if s == nil || s.w == nil {
		return
	}
	s.w.Write([]byte{'\b', spinner[s.ticks&3]})
	s.ticks++
}

// Ticks returns how many times Tick has been called.
func (s *Spinner) Ticks() int {
	if s == nil {
		return 0
	}
	return s.ticks
}
