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

//go:build tamago
// +build tamago

package mem

import (
	"fmt"
	"unsafe"

	"github.com/usbarmory/tamago/dma"
)

// Region is identity mapped DRAM, reserved as a whole so that the Go runtime
// never hands any of it out.
type Region struct {
	r   *dma.Region
	rng Range
}

var _ Bank = &Region{}

// NewRegion reserves [start, start+size) for the loader's exclusive use.
func NewRegion(start uint64, size int) (*Region, error) {
	r, err := dma.NewRegion(uint(start), size, false)
	if err != nil {
		return nil, fmt.Errorf("failed to create DMA region at 0x%x: %v", start, err)
	}
	r.Reserve(size, 0)
	return &Region{r: r, rng: Range{Start: start, Size: uint64(size)}}, nil
}

// Range returns the addresses covered by the region.
func (m *Region) Range() Range {
	return m.rng
}

func (m *Region) check(addr uint64, n int) error {
	want := Range{Start: addr, Size: uint64(n)}
	if !m.rng.Contains(want) {
		return fmt.Errorf("%w: %s outside region %s", ErrUnmapped, want, m.rng)
	}
	return nil
}

// Slice returns the memory at addr directly.
func (m *Region) Slice(addr uint64, n int) ([]byte, error) {
	if err := m.check(addr, n); err != nil {
		return nil, err
	}
	return unsafe.Slice((*byte)(unsafe.Pointer(uintptr(addr))), n), nil
}

// ReadAt reads from physical address off.
func (m *Region) ReadAt(p []byte, off int64) (int, error) {
	if err := m.check(uint64(off), len(p)); err != nil {
		return 0, err
	}
	m.r.Read(uint(m.rng.Start), int(uint64(off)-m.rng.Start), p)
	return len(p), nil
}

// WriteAt writes to physical address off.
func (m *Region) WriteAt(p []byte, off int64) (int, error) {
	if err := m.check(uint64(off), len(p)); err != nil {
		return 0, err
	}
	m.r.Write(uint(m.rng.Start), int(uint64(off)-m.rng.Start), p)
	return len(p), nil
}
