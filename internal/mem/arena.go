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

package mem

import (
	"fmt"
)

// arenaAlign is the granularity of arena allocations.
const arenaAlign = 8

// Arena is a bump allocator over a fixed span of memory.
//
// Nothing allocated from an arena is ever freed; Reset hands the whole span
// back at once and is only meant to be called between boot attempts.
type Arena struct {
	mem  Slicer
	r    Range
	used uint64
}

// NewArena returns an arena handing out memory from r.
func NewArena(m Slicer, r Range) *Arena {
	return &Arena{mem: m, r: r}
}

// Alloc returns n zeroed bytes and their physical address.
// The arena advances by n rounded up to a multiple of 8 bytes.
func (a *Arena) Alloc(n int) (uint64, []byte, error) {
	if n <= 0 {
		return 0, nil, fmt.Errorf("invalid arena allocation of %d bytes", n)
	}
	sz := (uint64(n-1) | (arenaAlign - 1)) + 1
	if sz > a.r.Size-a.used {
		return 0, nil, fmt.Errorf("arena %s exhausted: %d bytes requested, %d free", a.r, n, a.r.Size-a.used)
	}
	addr := a.r.Start + a.used
	b, err := a.mem.Slice(addr, n)
	if err != nil {
		return 0, nil, fmt.Errorf("arena backing store: %w", err)
	}
	clear(b)
	a.used += sz
	return addr, b, nil
}

// Bytes is a convenience wrapper around Alloc for callers which don't need
// the physical address.
func (a *Arena) Bytes(n int) ([]byte, error) {
	_, b, err := a.Alloc(n)
	return b, err
}

// Used returns the number of bytes handed out so far, including rounding.
func (a *Arena) Used() uint64 {
	return a.used
}

// Range returns the span the arena allocates from.
func (a *Arena) Range() Range {
	return a.r
}

// Reset returns all allocations to the arena.
// Slices handed out before Reset must no longer be used.
func (a *Arena) Reset() {
	a.used = 0
}
