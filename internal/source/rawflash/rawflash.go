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

// Package rawflash stages a boot image read directly from serial flash.
package rawflash

import (
	"encoding/binary"
	"fmt"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/console"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/flash"
	"github.com/google/stageboot/internal/source"
	"github.com/google/stageboot/internal/staging"
)

// operandLen is the size of the address sent with each quad read.
const operandLen = 3

// tickEvery is how many bytes are read between spinner ticks.
const tickEvery = 4096

// maxMismatches is how many verify mismatches are kept for Mismatches.
const maxMismatches = 16

// Backend reads Length bytes of flash starting at Offset.
//
// Every word is read twice. When the two samples differ the mismatch is
// reported and the second sample is kept.
type Backend struct {
	T      flash.Transport
	Offset uint32
	// Length is the number of bytes to stage; zero fills the staging buffer.
	Length int

	Console *console.Console
	Spinner *console.Spinner

	mismatches []error
	mismatchN  int
}

var _ source.Backend = &Backend{}

// Name implements source.Backend.
func (b *Backend) Name() string {
	return "flash"
}

// Mismatches returns the first verify mismatches seen by the last Acquire.
func (b *Backend) Mismatches() []error {
	return b.mismatches
}

// MismatchCount returns the number of verify mismatches seen by the last
// Acquire, including those Mismatches no longer holds.
func (b *Backend) MismatchCount() int {
	return b.mismatchN
}

func (b *Backend) read(addr uint32) (uint64, error) {
	w, err := b.T.Send(flash.OpQuadRead, operandLen, true, addr)
	if err != nil {
		return 0, fmt.Errorf("read flash at 0x%x: %w", addr, err)
	}
	return w, nil
}

// Acquire implements source.Backend.
func (b *Backend) Acquire(buf *staging.Buffer) (int, error) {
	b.mismatches, b.mismatchN = nil, 0
	n := b.Length
	if n == 0 {
		n = buf.Remaining()
	}
	if n > buf.Remaining() {
		return 0, failure.Errorf(failure.CapacityExceeded, "flash", "image of %d bytes exceeds staging space of %d bytes", n, buf.Remaining())
	}
	if end := uint64(b.Offset) + uint64(n); end > flash.AddressSpace {
		return 0, failure.Errorf(failure.CapacityExceeded, "flash", "image at 0x%x ends at 0x%x, past the 0x%x byte address space", b.Offset, end, flash.AddressSpace)
	}

	start := int64(buf.Len())
	var w [flash.WordSize]byte
	for off := 0; off < n; off += flash.WordSize {
		addr := b.Offset + uint32(off)
		first, err := b.read(addr)
		if err != nil {
			return off, err
		}
		second, err := b.read(addr)
		if err != nil {
			return off, err
		}
		if first != second {
			glog.Warningf("flash: verify mismatch at 0x%x: first 0x%016x, second 0x%016x", addr, first, second)
			b.Console.Printf("\nflash: verify mismatch at 0x%x: %016x != %016x\n", addr, first, second)
			if b.mismatchN < maxMismatches {
				b.mismatches = append(b.mismatches, failure.Errorf(failure.VerifyMismatch, "flash", "0x%x: 0x%016x != 0x%016x", addr, first, second))
			}
			b.mismatchN++
		}

		binary.LittleEndian.PutUint64(w[:], second)
		c := n - off
		if c > flash.WordSize {
			c = flash.WordSize
		}
		if _, err := buf.WriteAt(w[:c], start+int64(off)); err != nil {
			return off, err
		}
		if (off+flash.WordSize)%tickEvery == 0 {
			b.Spinner.Tick()
		}
	}
	if b.mismatchN > 0 {
		glog.Warningf("flash: %d verify mismatches in %d bytes", b.mismatchN, n)
	}
	return n, nil
}
