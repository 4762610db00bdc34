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

package testonly

import (
	"errors"
	"fmt"
	"io"

	"github.com/google/stageboot/internal/fsadapter"
)

// MemFS is an fsadapter.Adapter serving files from a map, with hooks to
// make any operation fail.
type MemFS struct {
	Files map[string][]byte

	MountErr   error
	OpenErr    error
	CloseErr   error
	UnmountErr error
	// ReadErr is returned once ReadErrAfter bytes of a file have been read.
	ReadErr      error
	ReadErrAfter int

	Mounted   bool
	Unmounted bool
	Opened    []string
	Closed    []fsadapter.Handle
	// Reads records the length of every buffer passed to Read.
	Reads []int

	open map[fsadapter.Handle]*memFile
	next fsadapter.Handle
}

type memFile struct {
	data []byte
	off  int
}

// Mount implements fsadapter.Adapter.
func (m *MemFS) Mount() error {
	if m.MountErr != nil {
		return m.MountErr
	}
	m.Mounted = true
	m.open = make(map[fsadapter.Handle]*memFile)
	return nil
}

// Open implements fsadapter.Adapter.
func (m *MemFS) Open(name string) (fsadapter.Handle, error) {
	if !m.Mounted {
		return 0, fsadapter.ErrNotMounted
	}
	if m.OpenErr != nil {
		return 0, m.OpenErr
	}
	d, ok := m.Files[name]
	if !ok {
		return 0, fmt.Errorf("%s: file not found", name)
	}
	m.Opened = append(m.Opened, name)
	m.next++
	m.open[m.next] = &memFile{data: d}
	return m.next, nil
}

// Read implements fsadapter.Adapter.
func (m *MemFS) Read(h fsadapter.Handle, p []byte) (int, error) {
	m.Reads = append(m.Reads, len(p))
	f, ok := m.open[h]
	if !ok {
		return 0, errors.New("invalid handle")
	}
	if m.ReadErr != nil && f.off >= m.ReadErrAfter {
		return 0, m.ReadErr
	}
	if f.off >= len(f.data) {
		return 0, io.EOF
	}
	end := len(f.data)
	if m.ReadErr != nil && m.ReadErrAfter < end {
		end = m.ReadErrAfter
	}
	n := copy(p, f.data[f.off:end])
	f.off += n
	return n, nil
}

// Close implements fsadapter.Adapter.
func (m *MemFS) Close(h fsadapter.Handle) error {
	m.Closed = append(m.Closed, h)
	delete(m.open, h)
	return m.CloseErr
}

// Unmount implements fsadapter.Adapter.
func (m *MemFS) Unmount() error {
	m.Unmounted = true
	return m.UnmountErr
}
