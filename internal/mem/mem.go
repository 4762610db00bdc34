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

// Package mem models physical memory as seen by the boot loader.
//
// Addresses used throughout are absolute physical addresses; the io.ReaderAt
// and io.WriterAt offsets of a Memory are physical addresses too.
package mem

import (
	"errors"
	"fmt"
	"io"
)

// ErrUnmapped is returned for accesses which are not wholly backed by memory.
var ErrUnmapped = errors.New("address range not mapped")

// Range is a span of physical address space, [Start, Start+Size).
type Range struct {
	Start uint64 `json:"start"`
	Size  uint64 `json:"size"`
}

// End returns the first address past the range.
func (r Range) End() uint64 {
	return r.Start + r.Size
}

// last returns the final address inside a non-empty range. Using the last
// address rather than End keeps ranges which finish at the top of the
// address space from wrapping.
func (r Range) last() uint64 {
	return r.Start + r.Size - 1
}

// Valid reports whether the range does not wrap around the address space.
func (r Range) Valid() bool {
	return r.Size == 0 || r.last() >= r.Start
}

// Overlaps reports whether r and o share at least one address.
// Empty ranges overlap nothing.
func (r Range) Overlaps(o Range) bool {
	if r.Size == 0 || o.Size == 0 {
		return false
	}
	return r.Start <= o.last() && o.Start <= r.last()
}

// Contains reports whether o lies entirely within r.
func (r Range) Contains(o Range) bool {
	if o.Size == 0 {
		return o.Start >= r.Start && o.Start <= r.End()
	}
	if r.Size == 0 {
		return false
	}
	return o.Start >= r.Start && o.last() <= r.last()
}

func (r Range) String() string {
	return fmt.Sprintf("[0x%x, 0x%x)", r.Start, r.End())
}

// Memory is byte addressable physical memory.
type Memory interface {
	io.ReaderAt
	io.WriterAt
}

// Slicer is implemented by memory which can expose a span of itself directly,
// so that transports can fill it without an intermediate copy.
type Slicer interface {
	Slice(addr uint64, n int) ([]byte, error)
}

// RAM is a bank of memory backed by a byte slice, used by the host emulator
// and in tests.
type RAM struct {
	base uint64
	b    []byte
}

var _ Bank = &RAM{}

// NewRAM returns a zeroed bank of size bytes starting at base.
func NewRAM(base uint64, size int) *RAM {
	return &RAM{base: base, b: make([]byte, size)}
}

// Range returns the addresses covered by the bank.
func (r *RAM) Range() Range {
	return Range{Start: r.base, Size: uint64(len(r.b))}
}

func (r *RAM) span(addr uint64, n int) ([]byte, error) {
	if n < 0 {
		return nil, fmt.Errorf("negative length %d", n)
	}
	want := Range{Start: addr, Size: uint64(n)}
	if !want.Valid() || !r.Range().Contains(want) {
		return nil, fmt.Errorf("%w: %s outside bank %s", ErrUnmapped, want, r.Range())
	}
	o := addr - r.base
	return r.b[o : o+uint64(n)], nil
}

// Slice returns the n bytes of the bank starting at addr.
func (r *RAM) Slice(addr uint64, n int) ([]byte, error) {
	return r.span(addr, n)
}

// ReadAt copies len(p) bytes from physical address off into p.
func (r *RAM) ReadAt(p []byte, off int64) (int, error) {
	s, err := r.span(uint64(off), len(p))
	if err != nil {
		return 0, err
	}
	return copy(p, s), nil
}

// WriteAt copies p to physical address off.
func (r *RAM) WriteAt(p []byte, off int64) (int, error) {
	s, err := r.span(uint64(off), len(p))
	if err != nil {
		return 0, err
	}
	return copy(s, p), nil
}

// Bank is memory covering a single contiguous range.
type Bank interface {
	Memory
	Slicer
	Range() Range
}

// Bus routes accesses to one of several banks by address.
// An access may not straddle two banks.
type Bus struct {
	banks []Bank
}

var (
	_ Memory = &Bus{}
	_ Slicer = &Bus{}
)

// NewBus returns a bus over the given banks, which must not overlap.
func NewBus(banks ...Bank) (*Bus, error) {
	for i, a := range banks {
		for _, b := range banks[i+1:] {
			if a.Range().Overlaps(b.Range()) {
				return nil, fmt.Errorf("banks %s and %s overlap", a.Range(), b.Range())
			}
		}
	}
	return &Bus{banks: banks}, nil
}

func (b *Bus) bank(addr uint64, n int) (Bank, error) {
	want := Range{Start: addr, Size: uint64(n)}
	for _, r := range b.banks {
		if r.Range().Contains(want) {
			return r, nil
		}
	}
	return nil, fmt.Errorf("%w: %s", ErrUnmapped, want)
}

// Slice returns n bytes starting at addr from whichever bank holds them.
func (b *Bus) Slice(addr uint64, n int) ([]byte, error) {
	r, err := b.bank(addr, n)
	if err != nil {
		return nil, err
	}
	return r.Slice(addr, n)
}

// ReadAt reads from physical address off.
func (b *Bus) ReadAt(p []byte, off int64) (int, error) {
	r, err := b.bank(uint64(off), len(p))
	if err != nil {
		return 0, err
	}
	return r.ReadAt(p, off)
}

// WriteAt writes to physical address off.
func (b *Bus) WriteAt(p []byte, off int64) (int, error) {
	r, err := b.bank(uint64(off), len(p))
	if err != nil {
		return 0, err
	}
	return r.WriteAt(p, off)
}
