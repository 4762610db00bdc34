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

// Package flashsim simulates the flash controller and the device behind it
// for the host emulator and tests.
package flashsim

import (
	"encoding/binary"

	"github.com/google/stageboot/internal/flash"
	"github.com/google/stageboot/internal/mmio"
)

// Command is a command observed by the simulator.
type Command struct {
	Op         flash.Opcode
	OperandLen int
	Quad       bool
	Addr       uint32
}

// Flash simulates the controller and the flash device behind it on a
// simulated register file.
type Flash struct {
	Regs *mmio.Sim
	Base uint64
	Data []byte

	// BusyPolls is how many status reads report busy after each command.
	BusyPolls int
	// StuckBusy makes the controller report busy forever.
	StuckBusy bool
	// ErrorAt makes a read at the given address raise the error bit.
	ErrorAt map[uint32]bool
	// Glitch corrupts the next response for an address with an XOR mask.
	Glitch map[uint32]uint64

	Commands []Command

	busy int
	err  bool
}

// New returns a simulated controller at base serving data.
func New(base uint64, data []byte) *Flash {
	f := &Flash{
		Regs:    mmio.NewSim(),
		Base:    base,
		Data:    data,
		ErrorAt: make(map[uint32]bool),
		Glitch:  make(map[uint32]uint64),
	}
	f.Regs.OnWrite(base+flash.RegCmd, f.command)
	f.Regs.OnRead(base+flash.RegStatus, f.status)
	return f
}

// Transport returns a controller driver bound to the simulator.
func (f *Flash) Transport(polls int) *flash.QSPI {
	return &flash.QSPI{Regs: f.Regs, Base: f.Base, Polls: polls}
}

func (f *Flash) status() uint32 {
	var v uint32
	if f.StuckBusy || f.busy > 0 {
		f.busy--
		v |= 1 << flash.StatusBusy
	}
	if f.err {
		v |= 1 << flash.StatusError
	}
	return v
}

func (f *Flash) command(v uint32) {
	op, n, quad, start := flash.DecodeCmd(v)
	if !start {
		return
	}
	addr := f.Regs.Read32(f.Base + flash.RegAddr0)
	f.Commands = append(f.Commands, Command{Op: op, OperandLen: n, Quad: quad, Addr: addr})
	f.busy = f.BusyPolls
	f.err = f.ErrorAt[addr]

	var word uint64
	switch op {
	case flash.OpRead, flash.OpQuadRead:
		var b [flash.WordSize]byte
		if int64(addr) < int64(len(f.Data)) {
			copy(b[:], f.Data[addr:])
		}
		word = binary.LittleEndian.Uint64(b[:])
		if m, ok := f.Glitch[addr]; ok {
			word ^= m
			delete(f.Glitch, addr)
		}
	case flash.OpReadID:
		word = 0x20ba19
	}
	f.Regs.Set(f.Base+flash.RegDataLo, uint32(word))
	f.Regs.Set(f.Base+flash.RegDataHi, uint32(word>>32))
}
