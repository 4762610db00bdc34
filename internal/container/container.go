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

// Package container parses and loads the stageboot program container.
//
// A container is a 16 byte header, a table of 20 byte segment descriptors and
// the raw segment bytes, all little endian:
//
//	header:     tag "SBI1" | segment count u32 | entry u64
//	descriptor: source offset u32 | length u32 | destination u64 | flags u32
//
// Source offsets are relative to the start of the container.
package container

import (
	"encoding/binary"
	"fmt"

	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/mem"
)

// Magic is the header tag, "SBI1" read as a little endian word.
const Magic uint32 = 'S' | 'B'<<8 | 'I'<<16 | '1'<<24

const (
	HeaderSize     = 16
	DescriptorSize = 20
)

// Segment flags.
const (
	// FlagLoadable marks a segment to be copied to its destination.
	FlagLoadable uint32 = 1 << iota
	// FlagManifest marks the signed manifest segment.
	FlagManifest
	// FlagDeviceTree marks a flattened device tree to hand to the program.
	FlagDeviceTree
)

// Segment is a segment descriptor.
type Segment struct {
	Offset uint32
	Length uint32
	Dest   uint64
	Flags  uint32
}

// Loadable reports whether s is copied to memory.
func (s Segment) Loadable() bool {
	return s.Flags&FlagLoadable != 0
}

// Dst returns the destination range of s.
func (s Segment) Dst() mem.Range {
	return mem.Range{Start: s.Dest, Size: uint64(s.Length)}
}

// Header is a decoded container header.
type Header struct {
	Entry    uint64
	Segments []Segment
}

func invalid(format string, args ...interface{}) error {
	return failure.Errorf(failure.FormatInvalid, "container", format, args...)
}

// Parse decodes the header and descriptor table at the start of b.
func Parse(b []byte) (*Header, error) {
	if len(b) < HeaderSize {
		return nil, invalid("truncated header: %d bytes", len(b))
	}
	if tag := binary.LittleEndian.Uint32(b); tag != Magic {
		return nil, invalid("bad tag 0x%08x", tag)
	}
	count := binary.LittleEndian.Uint32(b[4:])
	h := &Header{Entry: binary.LittleEndian.Uint64(b[8:])}
	if end := HeaderSize + uint64(count)*DescriptorSize; end > uint64(len(b)) {
		return nil, invalid("truncated descriptor table: %d segments need %d bytes, have %d", count, end, len(b))
	}
	h.Segments = make([]Segment, count)
	for i := range h.Segments {
		d := b[HeaderSize+i*DescriptorSize:]
		h.Segments[i] = Segment{
			Offset: binary.LittleEndian.Uint32(d),
			Length: binary.LittleEndian.Uint32(d[4:]),
			Dest:   binary.LittleEndian.Uint64(d[8:]),
			Flags:  binary.LittleEndian.Uint32(d[16:]),
		}
	}
	return h, nil
}

// Data returns the bytes of s within the container b.
func Data(b []byte, s Segment) ([]byte, error) {
	if end := uint64(s.Offset) + uint64(s.Length); end > uint64(len(b)) {
		return nil, invalid("segment source [0x%x, 0x%x) beyond %d staged bytes", s.Offset, end, len(b))
	}
	return b[s.Offset : s.Offset+s.Length], nil
}

// Input is a segment to be placed in a container by Build.
type Input struct {
	Dest  uint64
	Flags uint32
	Data  []byte
}

// Build lays out a container holding segs, in order, after the descriptor
// table.
func Build(entry uint64, segs []Input) ([]byte, error) {
	off := uint64(HeaderSize + len(segs)*DescriptorSize)
	size := off
	for _, s := range segs {
		size += uint64(len(s.Data))
	}
	if size > 1<<32-1 {
		return nil, fmt.Errorf("container of %d bytes too large", size)
	}

	b := make([]byte, off, size)
	binary.LittleEndian.PutUint32(b, Magic)
	binary.LittleEndian.PutUint32(b[4:], uint32(len(segs)))
	binary.LittleEndian.PutUint64(b[8:], entry)
	for i, s := range segs {
		d := b[HeaderSize+i*DescriptorSize:]
		binary.LittleEndian.PutUint32(d, uint32(len(b)))
		binary.LittleEndian.PutUint32(d[4:], uint32(len(s.Data)))
		binary.LittleEndian.PutUint64(d[8:], s.Dest)
		binary.LittleEndian.PutUint32(d[16:], s.Flags)
		b = append(b, s.Data...)
	}
	return b, nil
}
