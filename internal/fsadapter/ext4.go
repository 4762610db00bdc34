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

package fsadapter

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/dsoprea/go-ext4"
	"github.com/golang/glog"
)

// ErrNotMounted is returned by operations attempted before Mount.
var ErrNotMounted = errors.New("filesystem not mounted")

// Ext4 is an Adapter for an ext4 filesystem on a Partition.
type Ext4 struct {
	Part *Partition

	mounted bool
	next    Handle
	files   map[Handle]io.Reader
}

// NewExt4 returns an unmounted adapter for the filesystem on p.
func NewExt4(p *Partition) *Ext4 {
	return &Ext4{Part: p}
}

func (e *Ext4) blockGroupDescriptor(inode int) (*ext4.BlockGroupDescriptor, error) {
	if _, err := e.Part.Seek(ext4.Superblock0Offset, io.SeekStart); err != nil {
		return nil, err
	}
	sb, err := ext4.NewSuperblockWithReader(e.Part)
	if err != nil {
		return nil, err
	}
	bgdl, err := ext4.NewBlockGroupDescriptorListWithReadSeeker(e.Part, sb)
	if err != nil {
		return nil, err
	}
	return bgdl.GetWithAbsoluteInode(inode)
}

// Mount checks the superblock and the root directory can be read.
func (e *Ext4) Mount() error {
	if _, err := e.blockGroupDescriptor(ext4.InodeRootDirectory); err != nil {
		return fmt.Errorf("ext4 mount: %w", err)
	}
	e.mounted = true
	e.files = make(map[Handle]io.Reader)
	return nil
}

// Open looks up the regular file at the absolute or root relative path name.
func (e *Ext4) Open(name string) (Handle, error) {
	if !e.mounted {
		return 0, ErrNotMounted
	}
	name = strings.TrimPrefix(name, "/")

	bgd, err := e.blockGroupDescriptor(ext4.InodeRootDirectory)
	if err != nil {
		return 0, err
	}
	dw, err := ext4.NewDirectoryWalk(e.Part, bgd, ext4.InodeRootDirectory)
	if err != nil {
		return 0, err
	}

	inodeNumber := 0
	for {
		p, de, err := dw.Next()
		if err == io.EOF {
			break
		} else if err != nil {
			return 0, err
		}
		if p == name {
			inodeNumber = int(de.Data().Inode)
			break
		}
	}
	if inodeNumber == 0 {
		return 0, fmt.Errorf("%s: file not found", name)
	}

	if bgd, err = e.blockGroupDescriptor(inodeNumber); err != nil {
		return 0, err
	}
	inode, err := ext4.NewInodeWithReadSeeker(bgd, e.Part, inodeNumber)
	if err != nil {
		return 0, err
	}
	en := ext4.NewExtentNavigatorWithReadSeeker(e.Part, inode)

	e.next++
	e.files[e.next] = ext4.NewInodeReader(en)
	glog.V(1).Infof("ext4: opened %s (inode %d) as handle %d", name, inodeNumber, e.next)
	return e.next, nil
}

// Read fills p from the open file h. Only the read reaching the end of the
// file returns fewer than len(p) bytes.
func (e *Ext4) Read(h Handle, p []byte) (int, error) {
	r, ok := e.files[h]
	if !ok {
		return 0, fmt.Errorf("invalid handle %d", h)
	}
	// The inode reader returns at most one filesystem block per call.
	n, err := io.ReadFull(r, p)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		err = nil
	}
	return n, err
}

// Close releases h.
func (e *Ext4) Close(h Handle) error {
	if _, ok := e.files[h]; !ok {
		return fmt.Errorf("invalid handle %d", h)
	}
	delete(e.files, h)
	return nil
}

// Unmount releases every file and the filesystem.
func (e *Ext4) Unmount() error {
	if !e.mounted {
		return ErrNotMounted
	}
	e.mounted = false
	e.files = nil
	return nil
}
