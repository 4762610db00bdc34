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

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/stageboot/internal/mem"
)

func TestDefault(t *testing.T) {
	b := Default()
	if err := b.Validate(); err != nil {
		t.Fatalf("Default().Validate() = %v", err)
	}
	if got, want := b.Staging(), (mem.Range{Start: 0xbf00_0000, Size: 0x100_0000}); got != want {
		t.Errorf("Staging() = %s, want %s", got, want)
	}
	want := []mem.Range{
		{Start: ROMBase, Size: ROMLength},
		{Start: 0x8680_0000, Size: DefaultArenaSize},
		{Start: 0xbf00_0000, Size: 0x100_0000},
	}
	if diff := cmp.Diff(b.Reserved(), want); diff != "" {
		t.Errorf("Reserved() diff (-got +want):\n%s", diff)
	}
}

func TestParse(t *testing.T) {
	for _, test := range []struct {
		name    string
		json    string
		check   func(Board) bool
		wantErr string
	}{
		{
			name:  "empty keeps defaults",
			json:  `{}`,
			check: func(b Board) bool { return cmp.Equal(b, Default()) },
		},
		{
			name: "override flash",
			json: `{"flash": {"offset": 4096, "length": 65536, "status_polls": 10}}`,
			check: func(b Board) bool {
				return b.Flash.Offset == 4096 && b.Flash.Length == 65536 && b.Flash.Base == SPIBase
			},
		},
		{
			name:  "default source",
			json:  `{"default_source": "net"}`,
			check: func(b Board) bool { return b.DefaultSource == SourceNetwork },
		},
		{
			name:    "unknown source",
			json:    `{"sources": [{"lo": 0, "hi": 7, "source": "usb"}]}`,
			wantErr: "unknown source",
		},
		{
			name:    "overlapping bindings",
			json:    `{"sources": [{"lo": 0, "hi": 3, "source": "sd"}, {"lo": 3, "hi": 4, "source": "net"}]}`,
			wantErr: "overlaps",
		},
		{
			name:    "mode out of field",
			json:    `{"sources": [{"lo": 0, "hi": 8, "source": "sd"}]}`,
			wantErr: "invalid mode range",
		},
		{
			name:    "staging too large",
			json:    `{"staging_size": 2147483648}`,
			wantErr: "does not fit",
		},
		{
			name:    "arena in staging",
			json:    `{"arena": {"start": 3204448256, "size": 4096}}`,
			wantErr: "overlaps staging",
		},
		{
			name:    "flash past address space",
			json:    `{"flash": {"offset": 16773120, "length": 8192}}`,
			wantErr: "past the 0x1000000 byte address space",
		},
		{
			name:    "flash fills staging past address space",
			json:    `{"flash": {"offset": 4096}}`,
			wantErr: "past the 0x1000000 byte address space",
		},
		{
			name:  "flash ends at address space",
			json:  `{"flash": {"offset": 16769024, "length": 8192}}`,
			check: func(b Board) bool { return b.Flash.End(b.StagingSize) == 1<<24 },
		},
		{
			name:    "bad json",
			json:    `{`,
			wantErr: "failed to parse",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			b, err := Parse([]byte(test.json))
			if test.wantErr != "" {
				if err == nil || !strings.Contains(err.Error(), test.wantErr) {
					t.Fatalf("Parse() = %v, want error containing %q", err, test.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("Parse() = %v", err)
			}
			if !test.check(b) {
				t.Errorf("Parse() returned unexpected board %+v", b)
			}
		})
	}
}

func TestLoad(t *testing.T) {
	if _, err := Load(""); err != nil {
		t.Errorf("Load(\"\") = %v", err)
	}
	p := filepath.Join(t.TempDir(), "board.json")
	if err := os.WriteFile(p, []byte(`{"boot_file": "kernel.sbi"}`), 0o644); err != nil {
		t.Fatal(err)
	}
	b, err := Load(p)
	if err != nil {
		t.Fatalf("Load(%q) = %v", p, err)
	}
	if b.BootFile != "kernel.sbi" {
		t.Errorf("BootFile = %q, want kernel.sbi", b.BootFile)
	}
	if _, err := Load(filepath.Join(t.TempDir(), "missing.json")); err == nil {
		t.Error("Load of missing file succeeded")
	}
}
