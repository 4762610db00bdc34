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

// Package selector picks the boot source from the hardware mode switches.
package selector

import (
	"fmt"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/config"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/mmio"
	"github.com/google/stageboot/internal/source"
)

// Mode is the value of the boot mode field.
type Mode uint32

// Binding routes the inclusive mode range [Lo, Hi] to Backend.
type Binding struct {
	Lo, Hi  Mode
	Name    string
	Backend source.Backend
}

// Selector reads the mode register and dispatches to the bound backend.
type Selector struct {
	Regs  mmio.Registers
	Addr  uint64
	Shift int
	Width int

	Bindings []Binding
	// Default serves modes no binding covers. When nil such modes are
	// reported as source-unavailable.
	Default source.Backend
}

// New builds a selector for board, resolving bound source names through
// backends. A name missing from backends is left unbound, so selecting it
// fails.
func New(regs mmio.Registers, board config.Board, backends map[string]source.Backend) *Selector {
	s := &Selector{
		Regs:    regs,
		Addr:    board.ModeRegister,
		Shift:   board.ModeShift,
		Width:   board.ModeWidth,
		Default: backends[board.DefaultSource],
	}
	for _, b := range board.Sources {
		s.Bindings = append(s.Bindings, Binding{Lo: Mode(b.Lo), Hi: Mode(b.Hi), Name: b.Source, Backend: backends[b.Source]})
	}
	return s
}

// ReadMode samples the mode register.
func (s *Selector) ReadMode() Mode {
	return Mode(mmio.Field(s.Regs.Read32(s.Addr), s.Shift, s.Width))
}

// Select reads the mode once and returns the backend bound to it.
func (s *Selector) Select() (source.Backend, Mode, error) {
	m := s.ReadMode()
	for _, b := range s.Bindings {
		if m < b.Lo || m > b.Hi {
			continue
		}
		if b.Backend == nil {
			return nil, m, failure.Errorf(failure.SourceUnavailable, "select", "mode %d: source %q not present on this board", m, b.Name)
		}
		glog.Infof("Boot mode %d: %s", m, b.Backend.Name())
		return b.Backend, m, nil
	}
	if s.Default != nil {
		glog.Infof("Boot mode %d unbound, using default %s", m, s.Default.Name())
		return s.Default, m, nil
	}
	return nil, m, failure.New(failure.SourceUnavailable, fmt.Sprintf("select mode %d", m), nil)
}
