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

// Package testonly provides in-memory block devices and filesystems for
// tests.
package testonly

import (
	"errors"
	"testing"
)

// MemBlockSize is the block size of a MemDev.
const MemBlockSize = 512

// MemDev is a simple in-memory block device.
type MemDev [][MemBlockSize]byte

// NewMemDev creates a new in-memory block device holding data, zero padded
// to a whole number of blocks.
func NewMemDev(t *testing.T, data []byte) MemDev {
	t.Helper()
	md := make(MemDev, (len(data)+MemBlockSize-1)/MemBlockSize)
	for i := range md {
		copy(md[i][:], data[i*MemBlockSize:])
	}
	return md
}

// BlockSize implements fsadapter.BlockDevice.
func (md MemDev) BlockSize() uint {
	return MemBlockSize
}

// NumBlocks implements fsadapter.BlockDevice.
func (md MemDev) NumBlocks() uint {
	return uint(len(md))
}

// ReadBlocks implements fsadapter.BlockDevice.
func (md MemDev) ReadBlocks(lba uint, b []byte) error {
	bl := uint(len(b)) / MemBlockSize
	if l := uint(len(md)); lba+bl > l {
		return errors.New("read past end of device")
	}
	for i := uint(0); i < bl; i++ {
		copy(b[i*MemBlockSize:], md[lba+i][:])
	}
	return nil
}
