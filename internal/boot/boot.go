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

// Package boot runs a boot attempt: select the source, stage the image,
// load the container and hand the machine over to it.
package boot

import (
	"errors"
	"fmt"
	"io"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/config"
	"github.com/google/stageboot/internal/console"
	"github.com/google/stageboot/internal/container"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/fdt"
	"github.com/google/stageboot/internal/handoff"
	"github.com/google/stageboot/internal/mem"
	"github.com/google/stageboot/internal/mmio"
	"github.com/google/stageboot/internal/selector"
	"github.com/google/stageboot/internal/source"
	"github.com/google/stageboot/internal/staging"
	"golang.org/x/mod/sumdb/note"
)

// State is a step of a boot attempt.
type State int

const (
	SelectSource State = iota
	Acquiring
	Staged
	TransferFailed
	Validating
	Ready
	ContainerInvalid
	Handoff
)

var stateNames = [...]string{
	SelectSource:     "select-source",
	Acquiring:        "acquiring",
	Staged:           "staged",
	TransferFailed:   "transfer-failed",
	Validating:       "validating",
	Ready:            "ready",
	ContainerInvalid: "container-invalid",
	Handoff:          "handoff",
}

func (s State) String() string {
	if s >= 0 && int(s) < len(stateNames) {
		return stateNames[s]
	}
	return fmt.Sprintf("state(%d)", int(s))
}

// Memory is the physical memory the sequence stages and loads into.
type Memory interface {
	mem.Slicer
	io.WriterAt
}

// Platform is what the board provides to a boot attempt.
type Platform struct {
	Regs     mmio.Registers
	Mem      Memory
	Console  *console.Console
	Backends map[string]source.Backend
	Halter   console.Halter
	Jumper   handoff.Jumper
}

// Sequence is a configured boot attempt.
type Sequence struct {
	Board    config.Board
	Selector *selector.Selector
	Staging  *staging.Buffer
	Arena    *mem.Arena
	Loader   *container.Loader
	Console  *console.Console
	Halter   console.Halter
	Jumper   handoff.Jumper

	state State
}

// New wires a sequence for board on platform p.
func New(board config.Board, p Platform) (*Sequence, error) {
	if err := board.Validate(); err != nil {
		return nil, err
	}
	buf, err := staging.FromMemory(p.Mem, board.Staging())
	if err != nil {
		return nil, err
	}
	l := &container.Loader{
		Mem:      p.Mem,
		Allowed:  []mem.Range{board.DRAM},
		Reserved: board.Reserved(),
	}
	if board.ManifestKey != "" {
		v, err := note.NewVerifier(board.ManifestKey)
		if err != nil {
			return nil, fmt.Errorf("invalid manifest key: %w", err)
		}
		l.Verifier = v
	}
	return &Sequence{
		Board:    board,
		Selector: selector.New(p.Regs, board, p.Backends),
		Staging:  buf,
		Arena:    mem.NewArena(p.Mem, board.Arena),
		Loader:   l,
		Console:  p.Console,
		Halter:   p.Halter,
		Jumper:   p.Jumper,
	}, nil
}

// State returns the step the attempt last entered.
func (s *Sequence) State() State {
	return s.state
}

func (s *Sequence) enter(st State) {
	glog.V(1).Infof("boot: %s -> %s", s.state, st)
	s.state = st
}

// Prepared is a program ready to be started.
type Prepared struct {
	Entry uint64
	// DTB is the address of the device tree passed to the program, or 0.
	DTB    uint64
	Source string
	Staged int
}

// Prepare runs the attempt up to, but not including, the handoff.
func (s *Sequence) Prepare() (*Prepared, error) {
	s.enter(SelectSource)
	b, mode, err := s.Selector.Select()
	if err != nil {
		return nil, err
	}
	s.Console.Printf("stageboot: mode %d, booting from %s\n", mode, b.Name())

	s.enter(Acquiring)
	s.Staging.Reset()
	n, err := b.Acquire(s.Staging)
	if err != nil {
		s.enter(TransferFailed)
		return nil, fmt.Errorf("%s: %w", b.Name(), err)
	}
	s.enter(Staged)
	s.Console.Printf("stageboot: staged %d bytes at 0x%x\n", n, s.Staging.Range().Start)

	s.enter(Validating)
	img, err := s.Loader.Load(s.Staging.Bytes())
	if err != nil {
		s.enter(ContainerInvalid)
		return nil, err
	}
	p := &Prepared{Entry: img.Entry, Source: b.Name(), Staged: n}
	if img.DeviceTree != nil {
		if p.DTB, err = s.placeDeviceTree(img.DeviceTree, b.Name()); err != nil {
			s.enter(ContainerInvalid)
			return nil, err
		}
	}
	s.enter(Ready)
	return p, nil
}

func (s *Sequence) placeDeviceTree(dtb []byte, src string) (uint64, error) {
	fixed, err := fdt.Fixup(dtb, s.Board.BootArgs, src)
	if err != nil {
		return 0, failure.New(failure.FormatInvalid, "device tree", err)
	}
	addr, b, err := s.Arena.Alloc(len(fixed))
	if err != nil {
		return 0, failure.New(failure.CapacityExceeded, "device tree", err)
	}
	copy(b, fixed)
	glog.Infof("Device tree (%d bytes) at 0x%x", len(fixed), addr)
	return addr, nil
}

// Boot runs the attempt and starts the loaded program. It never returns:
// failures are reported and the machine halts.
func (s *Sequence) Boot() {
	p, err := s.Prepare()
	if err != nil {
		s.fail(err)
	}
	s.enter(Handoff)
	s.Console.Printf("stageboot: starting 0x%x\n", p.Entry)
	handoff.Execute(s.Jumper, p.Entry, s.Board.HartID, p.DTB)
}

func (s *Sequence) fail(err error) {
	glog.Errorf("Boot failed in state %s: %v", s.state, err)
	s.Halter.Halt(err)
	panic(fmt.Sprintf("boot: halter returned after %v", err))
}

// ErrTrap is reported when the processor takes an unexpected trap.
var ErrTrap = errors.New("trap")

// Trap reports an unexpected processor trap and halts. The interrupted
// attempt is not resumed.
func (s *Sequence) Trap(cause interface{}) {
	s.Console.Printf("\ntrap: %v\n", cause)
	s.fail(fmt.Errorf("%w in state %s: %v", ErrTrap, s.state, cause))
}
