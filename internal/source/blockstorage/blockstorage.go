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

// Package blockstorage stages a boot image read from a file on a mounted
// filesystem.
package blockstorage

import (
	"errors"
	"io"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/console"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/fsadapter"
	"github.com/google/stageboot/internal/source"
	"github.com/google/stageboot/internal/staging"
)

// Backend reads File from FS in ChunkSize reads.
type Backend struct {
	FS        fsadapter.Adapter
	File      string
	ChunkSize int

	Console *console.Console
	Spinner *console.Spinner
}

var _ source.Backend = &Backend{}

// Name implements source.Backend.
func (b *Backend) Name() string {
	return "sd"
}

// Acquire implements source.Backend.
func (b *Backend) Acquire(buf *staging.Buffer) (n int, err error) {
	if err := b.FS.Mount(); err != nil {
		return 0, failure.New(failure.SourceUnavailable, "mount", err)
	}
	defer func() {
		if uerr := b.FS.Unmount(); uerr != nil {
			glog.Warningf("sd: unmount: %v", uerr)
			if err == nil {
				err = failure.New(failure.ReadFailed, "unmount", uerr)
			}
		}
	}()

	h, err := b.FS.Open(b.File)
	if err != nil {
		return 0, failure.New(failure.OpenFailed, "open "+b.File, err)
	}
	b.Console.Printf("sd: loading %s ", b.File)
	defer func() {
		if cerr := b.FS.Close(h); cerr != nil {
			glog.Warningf("sd: close %s: %v", b.File, cerr)
			if err == nil {
				err = failure.New(failure.ReadFailed, "close "+b.File, cerr)
			}
		}
	}()

	n, err = b.copy(h, buf)
	b.Console.Printf("\n")
	if err == nil {
		glog.Infof("sd: read %d bytes of %s", n, b.File)
	}
	return n, err
}

func (b *Backend) copy(h fsadapter.Handle, buf *staging.Buffer) (int, error) {
	chunk := b.ChunkSize
	if chunk <= 0 {
		chunk = 4096
	}
	total := 0
	for {
		if buf.Remaining() == 0 {
			var probe [1]byte
			n, err := b.FS.Read(h, probe[:])
			if n > 0 {
				return total, failure.Errorf(failure.CapacityExceeded, "read "+b.File, "file exceeds staging capacity of %d bytes", buf.Cap())
			}
			if err != nil && !errors.Is(err, io.EOF) {
				return total, failure.New(failure.ReadFailed, "read "+b.File, err)
			}
			return total, nil
		}

		w := buf.Window(chunk)
		n, err := b.FS.Read(h, w)
		if n > 0 {
			if cerr := buf.Commit(n); cerr != nil {
				return total, cerr
			}
			total += n
			b.Spinner.Tick()
		}
		switch {
		case errors.Is(err, io.EOF):
			return total, nil
		case err != nil:
			return total, failure.New(failure.ReadFailed, "read "+b.File, err)
		case n < len(w):
			return total, nil
		}
	}
}
