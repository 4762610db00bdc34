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

// Package staging provides the fixed DRAM buffer boot images are pulled into
// before they are interpreted.
package staging

import (
	"fmt"

	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/mem"
)

// Buffer is the staging buffer.
//
// It tracks a running write offset and never lets a write go past its
// capacity: writes which would are clamped to the space which remains and
// reported as capacity-exceeded failures.
type Buffer struct {
	base uint64
	b    []byte
	off  int
}

// New wraps b, which lives at physical address base.
func New(base uint64, b []byte) *Buffer {
	return &Buffer{base: base, b: b}
}

// FromMemory carves the buffer for region r out of m.
func FromMemory(m mem.Slicer, r mem.Range) (*Buffer, error) {
	b, err := m.Slice(r.Start, int(r.Size))
	if err != nil {
		return nil, fmt.Errorf("staging buffer %s: %w", r, err)
	}
	return New(r.Start, b), nil
}

// Range returns the physical addresses occupied by the buffer.
func (b *Buffer) Range() mem.Range {
	return mem.Range{Start: b.base, Size: uint64(len(b.b))}
}

// Cap returns the capacity of the buffer.
func (b *Buffer) Cap() int {
	return len(b.b)
}

// Len returns the number of bytes staged so far.
func (b *Buffer) Len() int {
	return b.off
}

// Remaining returns the capacity left past the write offset.
func (b *Buffer) Remaining() int {
	return len(b.b) - b.off
}

// Bytes returns the staged bytes.
func (b *Buffer) Bytes() []byte {
	return b.b[:b.off]
}

// Reset rewinds the write offset for a new attempt. The contents are left as
// they are and will be overwritten.
func (b *Buffer) Reset() {
	b.off = 0
}

// Write appends p at the write offset.
func (b *Buffer) Write(p []byte) (int, error) {
	n := copy(b.b[b.off:], p)
	b.off += n
	if n < len(p) {
		return n, failure.Errorf(failure.CapacityExceeded, "stage", "%d bytes dropped past staging capacity of %d bytes", len(p)-n, len(b.b))
	}
	return n, nil
}

// WriteAt writes p at offset off, moving the write offset up to the end of
// the written bytes if that lies past it.
func (b *Buffer) WriteAt(p []byte, off int64) (int, error) {
	if off < 0 || off > int64(len(b.b)) {
		return 0, failure.Errorf(failure.CapacityExceeded, "stage", "offset %d outside staging capacity of %d bytes", off, len(b.b))
	}
	n := copy(b.b[off:], p)
	if end := int(off) + n; end > b.off {
		b.off = end
	}
	if n < len(p) {
		return n, failure.Errorf(failure.CapacityExceeded, "stage", "%d bytes dropped past staging capacity of %d bytes", len(p)-n, len(b.b))
	}
	return n, nil
}

// Window returns up to n bytes of buffer past the write offset for a
// transport to fill in place; Commit then accounts for what was filled.
func (b *Buffer) Window(n int) []byte {
	if r := b.Remaining(); n > r {
		n = r
	}
	return b.b[b.off : b.off+n]
}

// Commit advances the write offset by n bytes previously filled via Window.
func (b *Buffer) Commit(n int) error {
	if n < 0 || n > b.Remaining() {
		return failure.Errorf(failure.CapacityExceeded, "stage", "commit of %d bytes with %d remaining", n, b.Remaining())
	}
	b.off += n
	return nil
}
