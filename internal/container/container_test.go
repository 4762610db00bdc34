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

package container

import (
	"bytes"
	"crypto/rand"
	"encoding/binary"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/mem"
	"golang.org/x/mod/sumdb/note"
)

const dram = 0x8000_0000

func threeSegments() []Input {
	return []Input{
		{Dest: dram, Flags: FlagLoadable, Data: []byte("\x13\x00\x00\x00\x6f\x00\x00\x00")},
		{Flags: 0, Data: []byte("note")},
		{Dest: dram + 0x1000, Flags: FlagLoadable, Data: []byte("datadata")},
	}
}

func build(t *testing.T, entry uint64, segs []Input) []byte {
	t.Helper()
	b, err := Build(entry, segs)
	if err != nil {
		t.Fatalf("Build: %v", err)
	}
	return b
}

func TestLoadThreeSegments(t *testing.T) {
	b := build(t, dram, threeSegments())
	if len(b) != 96 {
		t.Fatalf("container is %d bytes, want 96", len(b))
	}

	ram := mem.NewRAM(dram, 0x2000)
	l := &Loader{Mem: ram, Allowed: []mem.Range{ram.Range()}}
	img, err := l.Load(b)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if img.Entry != dram {
		t.Errorf("Entry = 0x%x, want 0x%x", img.Entry, dram)
	}
	want := []Segment{
		{Offset: 76, Length: 8, Dest: dram, Flags: FlagLoadable},
		{Offset: 88, Length: 8, Dest: dram + 0x1000, Flags: FlagLoadable},
	}
	if diff := cmp.Diff(img.Loaded, want); diff != "" {
		t.Errorf("Loaded diff (-got +want):\n%s", diff)
	}

	got := make([]byte, 8)
	ram.ReadAt(got, dram)
	if !bytes.Equal(got, threeSegments()[0].Data) {
		t.Errorf("segment 0 at 0x%x = %x", dram, got)
	}
	ram.ReadAt(got, dram+0x1000)
	if string(got) != "datadata" {
		t.Errorf("segment 2 at 0x%x = %q", dram+0x1000, got)
	}
	ram.ReadAt(got[:4], dram+8)
	if !bytes.Equal(got[:4], make([]byte, 4)) {
		t.Errorf("non-loadable segment was copied: %x", got[:4])
	}
}

func TestParseRejects(t *testing.T) {
	good := build(t, dram, threeSegments())
	badTag := append([]byte{}, good...)
	copy(badTag, "ELF\x7f")
	hugeCount := append([]byte{}, good...)
	binary.LittleEndian.PutUint32(hugeCount[4:], 0xffff_ffff)

	for _, test := range []struct {
		name string
		b    []byte
	}{
		{name: "empty", b: nil},
		{name: "short header", b: good[:10]},
		{name: "bad tag", b: badTag},
		{name: "truncated table", b: good[:40]},
		{name: "huge count", b: hugeCount},
	} {
		t.Run(test.name, func(t *testing.T) {
			_, err := Parse(test.b)
			if got := failure.KindOf(err); got != failure.FormatInvalid {
				t.Errorf("Parse = %v, want kind %v", err, failure.FormatInvalid)
			}
		})
	}
}

func TestLoadRejects(t *testing.T) {
	staging := mem.Range{Start: dram + 0x1800, Size: 0x800}
	resident := mem.Range{Start: dram + 0x4000, Size: 0x100}
	for _, test := range []struct {
		name    string
		segs    []Input
		wantErr bool
	}{
		{
			name: "overlaps staging",
			segs: []Input{
				{Dest: dram, Flags: FlagLoadable, Data: []byte("okay")},
				{Dest: dram + 0x17fe, Flags: FlagLoadable, Data: []byte("abcd")},
			},
			wantErr: true,
		},
		{
			name: "overlaps resident",
			segs: []Input{
				{Dest: dram + 0x40ff, Flags: FlagLoadable, Data: []byte("x")},
			},
			wantErr: true,
		},
		{
			name: "overlaps earlier segment",
			segs: []Input{
				{Dest: dram, Flags: FlagLoadable, Data: []byte("12345678")},
				{Dest: dram + 4, Flags: FlagLoadable, Data: []byte("abcd")},
			},
			wantErr: true,
		},
		{
			name: "outside memory",
			segs: []Input{
				{Dest: dram + 0x7ffc, Flags: FlagLoadable, Data: []byte("abcdefgh")},
			},
			wantErr: true,
		},
		{
			name: "wraps address space",
			segs: []Input{
				{Dest: 0xffff_ffff_ffff_fffc, Flags: FlagLoadable, Data: []byte("abcdefgh")},
			},
			wantErr: true,
		},
		{
			name: "abuts reserved",
			segs: []Input{
				{Dest: dram + 0x1800 - 4, Flags: FlagLoadable, Data: []byte("abcd")},
				{Dest: dram + 0x4100, Flags: FlagLoadable, Data: []byte("efgh")},
			},
		},
		{
			name: "zero length inside reserved",
			segs: []Input{
				{Dest: dram + 0x1900, Flags: FlagLoadable, Data: nil},
			},
		},
		{
			name: "non-loadable overlapping reserved",
			segs: []Input{
				{Dest: dram + 0x1900, Flags: 0, Data: []byte("ignored")},
			},
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			ram := mem.NewRAM(dram, 0x8000)
			l := &Loader{Mem: ram, Allowed: []mem.Range{ram.Range()}, Reserved: []mem.Range{staging, resident}}
			_, err := l.Load(build(t, dram, test.segs))
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Load = %v, wantErr %t", err, test.wantErr)
			}
			if err == nil {
				return
			}
			if got := failure.KindOf(err); got != failure.FormatInvalid {
				t.Errorf("Load error kind %v, want %v", got, failure.FormatInvalid)
			}
			all, _ := ram.Slice(dram, 0x8000)
			if !bytes.Equal(all, make([]byte, 0x8000)) {
				t.Error("memory was written although the container was rejected")
			}
		})
	}
}

func TestLoadSourceOutOfRange(t *testing.T) {
	b := build(t, dram, threeSegments())
	// Claim the last segment runs one byte past the end of the container.
	binary.LittleEndian.PutUint32(b[HeaderSize+2*DescriptorSize+4:], 9)
	ram := mem.NewRAM(dram, 0x2000)
	_, err := (&Loader{Mem: ram}).Load(b)
	if got := failure.KindOf(err); got != failure.FormatInvalid {
		t.Fatalf("Load = %v, want kind %v", err, failure.FormatInvalid)
	}
	first := make([]byte, 8)
	ram.ReadAt(first, dram)
	if !bytes.Equal(first, make([]byte, 8)) {
		t.Error("segment 0 was copied before segment 2 was validated")
	}
}

func TestLoadUnbackedDestination(t *testing.T) {
	segs := threeSegments()
	// No allowed ranges, so only the memory itself can reject the last segment.
	segs[2].Dest = dram + 0x2000
	ram := mem.NewRAM(dram, 0x2000)
	_, err := (&Loader{Mem: ram}).Load(build(t, dram, segs))
	if got := failure.KindOf(err); got != failure.FormatInvalid {
		t.Fatalf("Load = %v, want kind %v", err, failure.FormatInvalid)
	}
	all, _ := ram.Slice(dram, 0x2000)
	if !bytes.Equal(all, make([]byte, 0x2000)) {
		t.Error("segment 0 was copied before segment 2 was found unbacked")
	}
}

func TestLoadDeviceTree(t *testing.T) {
	segs := append(threeSegments(), Input{Flags: FlagDeviceTree, Data: []byte("\xd0\x0d\xfe\xed")})
	ram := mem.NewRAM(dram, 0x2000)
	img, err := (&Loader{Mem: ram}).Load(build(t, dram, segs))
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if !bytes.Equal(img.DeviceTree, []byte("\xd0\x0d\xfe\xed")) {
		t.Errorf("DeviceTree = %x", img.DeviceTree)
	}
}

func signed(t *testing.T, s note.Signer, segs []Input) []byte {
	t.Helper()
	m, err := SignManifest(build(t, dram, segs), s)
	if err != nil {
		t.Fatalf("SignManifest: %v", err)
	}
	return build(t, dram, append(append([]Input{}, segs...), Input{Flags: FlagManifest, Data: m}))
}

func TestManifest(t *testing.T) {
	skey, vkey, err := note.GenerateKey(rand.Reader, "stageboot-test")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	signer, err := note.NewSigner(skey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}
	verifier, err := note.NewVerifier(vkey)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	otherSkey, _, err := note.GenerateKey(rand.Reader, "stageboot-test")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	other, err := note.NewSigner(otherSkey)
	if err != nil {
		t.Fatalf("NewSigner: %v", err)
	}

	good := signed(t, signer, threeSegments())
	// Same manifest, different segment bytes.
	tamperedImg := append([]byte{}, good...)
	tamperedImg[HeaderSize+4*DescriptorSize] ^= 0xff

	for _, test := range []struct {
		name    string
		b       []byte
		wantErr bool
	}{
		{name: "signed", b: good},
		{name: "unsigned", b: build(t, dram, threeSegments()), wantErr: true},
		{name: "wrong key", b: signed(t, other, threeSegments()), wantErr: true},
		{name: "tampered segment", b: tamperedImg, wantErr: true},
	} {
		t.Run(test.name, func(t *testing.T) {
			l := &Loader{Mem: mem.NewRAM(dram, 0x2000), Verifier: verifier}
			_, err := l.Load(test.b)
			if gotErr := err != nil; gotErr != test.wantErr {
				t.Fatalf("Load = %v, wantErr %t", err, test.wantErr)
			}
			if err != nil && failure.KindOf(err) != failure.FormatInvalid {
				t.Errorf("Load error kind %v, want %v", failure.KindOf(err), failure.FormatInvalid)
			}
		})
	}
}
