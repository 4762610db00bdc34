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
	"os"
	"path/filepath"
	"runtime"
	"testing"

	"github.com/google/stageboot/internal/container"
	"github.com/google/stageboot/internal/fsadapter"
)

// SDEntry is the entry point of the boot.bin container on the SD image.
const SDEntry = 0x8000_1000

func sequence(n int, mul, add byte) []byte {
	b := make([]byte, n)
	for i := range b {
		b[i] = byte(i)*mul + add
	}
	return b
}

// SDBootSegments returns the segments of the boot.bin container on the SD
// image.
func SDBootSegments() []container.Input {
	return []container.Input{
		{Dest: SDEntry, Flags: container.FlagLoadable, Data: sequence(3000, 13, 1)},
		{Data: []byte("sd-note")},
		{Dest: 0x8000_4000, Flags: container.FlagLoadable, Data: sequence(2500, 29, 7)},
	}
}

// SDBoot returns the content of boot.bin on the SD image.
func SDBoot(t *testing.T) []byte {
	t.Helper()
	b, err := container.Build(SDEntry, SDBootSegments())
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return b
}

// SDFiles returns the regular files on the SD image other than boot.bin.
func SDFiles() map[string][]byte {
	pattern := make([]byte, 10000)
	for i := range pattern {
		pattern[i] = byte(i % 251)
	}
	return map[string][]byte{
		"pattern.bin":          pattern,
		"nested/deep/file.txt": []byte("nested file\n"),
	}
}

// SDImage returns the path of the SD card image.
func SDImage(t *testing.T) string {
	t.Helper()
	_, file, _, ok := runtime.Caller(0)
	if !ok {
		t.Fatal("cannot locate testdata")
	}
	return filepath.Join(filepath.Dir(file), "testdata", "sd.ext4")
}

// SDDevice opens the SD card image as a block device with 512 byte blocks.
func SDDevice(t *testing.T) fsadapter.BlockDevice {
	t.Helper()
	f, err := os.Open(SDImage(t))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	t.Cleanup(func() { f.Close() })
	fi, err := f.Stat()
	if err != nil {
		t.Fatalf("Stat: %v", err)
	}
	return fsadapter.ImageDevice{R: f, Size: fi.Size(), Blocksize: 512}
}
