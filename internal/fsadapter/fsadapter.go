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

// Package fsadapter is the seam between the block storage boot source and a
// filesystem implementation.
package fsadapter

import (
	"fmt"
	"io"
)

// Handle identifies an open file within an Adapter.
type Handle int

// Adapter is a read-only filesystem mounted on a block device.
//
// Read behaves like io.Reader: it returns 0, io.EOF once the file is
// exhausted.
type Adapter interface {
	Mount() error
	Open(name string) (Handle, error)
	Read(h Handle, p []byte) (int, error)
	Close(h Handle) error
	Unmount() error
}

// BlockDevice is a device read in whole blocks.
type BlockDevice interface {
	// BlockSize returns the size in bytes of a single block.
	BlockSize() uint
	// NumBlocks returns the device capacity in blocks.
	NumBlocks() uint
	// ReadBlocks reads len(b)/BlockSize() blocks starting at lba into b.
	ReadBlocks(lba uint, b []byte) error
}

// Partition presents the bytes of a BlockDevice from Offset onwards as an
// io.ReadSeeker.
type Partition struct {
	Dev    BlockDevice
	Offset int64

	pos     int64
	scratch []byte
}

func (d *Partition) size() int64 {
	return int64(d.Dev.NumBlocks()) * int64(d.Dev.BlockSize())
}

// Read implements io.Reader.
func (d *Partition) Read(p []byte) (int, error) {
	abs := d.Offset + d.pos
	end := d.size()
	if abs >= end {
		return 0, io.EOF
	}
	if rem := end - abs; int64(len(p)) > rem {
		p = p[:rem]
	}

	bs := int64(d.Dev.BlockSize())
	first := abs / bs
	last := (abs + int64(len(p)) - 1) / bs
	n := int((last - first + 1) * bs)
	if cap(d.scratch) < n {
		d.scratch = make([]byte, n)
	}
	buf := d.scratch[:n]
	if err := d.Dev.ReadBlocks(uint(first), buf); err != nil {
		return 0, fmt.Errorf("read blocks %d-%d: %w", first, last, err)
	}
	c := copy(p, buf[abs-first*bs:])
	d.pos += int64(c)
	return c, nil
}

// Seek implements io.Seeker. Offsets are relative to the partition start.
func (d *Partition) Seek(offset int64, whence int) (int64, error) {
	var pos int64
	switch whence {
	case io.SeekStart:
		pos = offset
	case io.SeekCurrent:
		pos = d.pos + offset
	case io.SeekEnd:
		pos = d.size() - d.Offset + offset
	default:
		return 0, fmt.Errorf("invalid whence %d", whence)
	}
	if pos < 0 || d.Offset+pos > d.size() {
		return 0, fmt.Errorf("invalid offset %d (%d)", pos, offset)
	}
	d.pos = pos
	return pos, nil
}

// ImageDevice exposes a disk image as a BlockDevice.
type ImageDevice struct {
	R         io.ReaderAt
	Size      int64
	Blocksize uint
}

// BlockSize implements BlockDevice.
func (d ImageDevice) BlockSize() uint {
	return d.Blocksize
}

// NumBlocks implements BlockDevice.
func (d ImageDevice) NumBlocks() uint {
	return uint(d.Size / int64(d.Blocksize))
}

// ReadBlocks implements BlockDevice.
func (d ImageDevice) ReadBlocks(lba uint, b []byte) error {
	n, err := d.R.ReadAt(b, int64(lba)*int64(d.Blocksize))
	if err == io.EOF && n == len(b) {
		err = nil
	}
	return err
}
