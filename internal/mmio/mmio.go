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

// Package mmio provides access to memory-mapped device registers.
//
// Components never dereference register addresses themselves; they are handed
// a Registers capability instead, which on hardware touches the real device
// and in tests is a simulated register file.
package mmio

import (
	"github.com/usbarmory/tamago/bits"
)

// Registers reads and writes 32-bit device registers by physical address.
type Registers interface {
	Read32(addr uint64) uint32
	Write32(addr uint64, val uint32)
}

// Field extracts the width-bit field starting at bit pos of v.
func Field(v uint32, pos int, width int) uint32 {
	return bits.Get(&v, pos, (1<<width)-1)
}

// IsSet reports whether bit pos of v is set.
func IsSet(v uint32, pos int) bool {
	return bits.IsSet(&v, pos)
}

// WithField returns v with the width-bit field at pos replaced by val.
func WithField(v uint32, pos int, width int, val uint32) uint32 {
	bits.SetN(&v, pos, (1<<width)-1, val)
	return v
}

// Sim is a simulated register file.
//
// Registers read back whatever was last written to them, unless a read or
// write hook is installed for the address, letting tests model devices which
// react to commands.
type Sim struct {
	regs    map[uint64]uint32
	onRead  map[uint64]func() uint32
	onWrite map[uint64]func(uint32)
	reads   map[uint64]int
}

var _ Registers = &Sim{}

// NewSim returns an empty register file; unset registers read as zero.
func NewSim() *Sim {
	return &Sim{
		regs:    make(map[uint64]uint32),
		onRead:  make(map[uint64]func() uint32),
		onWrite: make(map[uint64]func(uint32)),
		reads:   make(map[uint64]int),
	}
}

// Set stores a value without triggering any write hook.
func (s *Sim) Set(addr uint64, val uint32) {
	s.regs[addr] = val
}

// OnRead installs a hook computing the value returned for reads of addr.
func (s *Sim) OnRead(addr uint64, f func() uint32) {
	s.onRead[addr] = f
}

// OnWrite installs a hook run after each write to addr.
func (s *Sim) OnWrite(addr uint64, f func(uint32)) {
	s.onWrite[addr] = f
}

// Reads returns how many times addr has been read.
func (s *Sim) Reads(addr uint64) int {
	return s.reads[addr]
}

// Read32 implements Registers.
func (s *Sim) Read32(addr uint64) uint32 {
	s.reads[addr]++
	if f, ok := s.onRead[addr]; ok {
		return f()
	}
	return s.regs[addr]
}

// Write32 implements Registers.
func (s *Sim) Write32(addr uint64, val uint32) {
	s.regs[addr] = val
	if f, ok := s.onWrite[addr]; ok {
		f(val)
	}
}
