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

package impl

import (
	"bytes"
	"crypto/rand"
	"debug/elf"
	"encoding/binary"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/stageboot/internal/config"
	"github.com/google/stageboot/internal/container"
	"github.com/google/stageboot/internal/mem"
	"golang.org/x/mod/sumdb/note"
)

const dram = 0x8000_0000

var (
	text = []byte("\x97\x02\x00\x00\x93\x82\x02\x01\x67\x80\x02\x00\x73\x00\x50\x10")
	data = []byte("hart")
)

type prog struct {
	typ   elf.ProgType
	paddr uint64
	body  []byte
	memsz uint64
}

// elfFile returns a minimal little endian ELF64 executable with one program
// header per prog and no sections.
func elfFile(t *testing.T, machine elf.Machine, progs ...prog) []byte {
	t.Helper()
	const ehsize, phentsize = 64, 56
	hdr := elf.Header64{
		Type:      uint16(elf.ET_EXEC),
		Machine:   uint16(machine),
		Version:   uint32(elf.EV_CURRENT),
		Entry:     dram,
		Phoff:     ehsize,
		Ehsize:    ehsize,
		Phentsize: phentsize,
		Phnum:     uint16(len(progs)),
	}
	copy(hdr.Ident[:], elf.ELFMAG)
	hdr.Ident[elf.EI_CLASS] = byte(elf.ELFCLASS64)
	hdr.Ident[elf.EI_DATA] = byte(elf.ELFDATA2LSB)
	hdr.Ident[elf.EI_VERSION] = byte(elf.EV_CURRENT)

	var b bytes.Buffer
	if err := binary.Write(&b, binary.LittleEndian, hdr); err != nil {
		t.Fatalf("Write: %v", err)
	}
	off := uint64(ehsize + phentsize*len(progs))
	for _, p := range progs {
		ph := elf.Prog64{
			Type:   uint32(p.typ),
			Flags:  uint32(elf.PF_R | elf.PF_X),
			Off:    off,
			Vaddr:  p.paddr | 0xffff_ffff_0000_0000,
			Paddr:  p.paddr,
			Filesz: uint64(len(p.body)),
			Memsz:  p.memsz,
			Align:  8,
		}
		if err := binary.Write(&b, binary.LittleEndian, ph); err != nil {
			t.Fatalf("Write: %v", err)
		}
		off += uint64(len(p.body))
	}
	for _, p := range progs {
		b.Write(p.body)
	}
	return b.Bytes()
}

func program(t *testing.T) []byte {
	return elfFile(t, elf.EM_RISCV,
		prog{typ: elf.PT_LOAD, paddr: dram, body: text, memsz: uint64(len(text))},
		prog{typ: elf.PT_NOTE, body: []byte("note")},
		prog{typ: elf.PT_LOAD, paddr: dram + 0x1000, body: data, memsz: 12},
		prog{typ: elf.PT_LOAD, paddr: dram + 0x2000},
	)
}

func TestSegments(t *testing.T) {
	f, err := elf.NewFile(bytes.NewReader(program(t)))
	if err != nil {
		t.Fatalf("NewFile: %v", err)
	}
	entry, segs, err := Segments(f)
	if err != nil {
		t.Fatalf("Segments: %v", err)
	}
	if entry != dram {
		t.Errorf("entry = 0x%x, want 0x%x", entry, dram)
	}
	want := []container.Input{
		{Dest: dram, Flags: container.FlagLoadable, Data: text},
		{Dest: dram + 0x1000, Flags: container.FlagLoadable, Data: []byte("hart\x00\x00\x00\x00\x00\x00\x00\x00")},
	}
	if diff := cmp.Diff(want, segs); diff != "" {
		t.Errorf("segments diff (-want +got):\n%s", diff)
	}
}

func TestSegmentsRejects(t *testing.T) {
	for _, test := range []struct {
		name    string
		elf     []byte
		wantErr string
	}{
		{
			name:    "wrong machine",
			elf:     elfFile(t, elf.EM_AARCH64, prog{typ: elf.PT_LOAD, paddr: dram, body: text, memsz: 16}),
			wantErr: "machine",
		},
		{
			name:    "nothing to load",
			elf:     elfFile(t, elf.EM_RISCV, prog{typ: elf.PT_NOTE, body: text}),
			wantErr: "no loadable",
		},
	} {
		t.Run(test.name, func(t *testing.T) {
			f, err := elf.NewFile(bytes.NewReader(test.elf))
			if err != nil {
				t.Fatalf("NewFile: %v", err)
			}
			if _, _, err := Segments(f); err == nil || !strings.Contains(err.Error(), test.wantErr) {
				t.Errorf("Segments = %v, want error containing %q", err, test.wantErr)
			}
		})
	}
}

func write(t *testing.T, dir, name string, b []byte) string {
	t.Helper()
	p := filepath.Join(dir, name)
	if err := os.WriteFile(p, b, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}
	return p
}

func TestMainSigned(t *testing.T) {
	skey, vkey, err := note.GenerateKey(rand.Reader, "stageboot-test")
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}
	verifier, err := note.NewVerifier(vkey)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	dir := t.TempDir()
	opts := Opts{
		ELF:        write(t, dir, "kernel.elf", program(t)),
		DeviceTree: write(t, dir, "board.dtb", []byte("\xd0\x0d\xfe\xed")),
		SigningKey: write(t, dir, "key", []byte(skey+"\n")),
		Out:        filepath.Join(dir, "boot.bin"),
	}
	if err := Main(opts); err != nil {
		t.Fatalf("Main: %v", err)
	}
	img, err := os.ReadFile(opts.Out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}

	ram := mem.NewRAM(dram, 0x4000)
	l := &container.Loader{
		Mem:      ram,
		Allowed:  []mem.Range{ram.Range()},
		Verifier: verifier,
	}
	got, err := l.Load(img)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.Entry != dram || len(got.Loaded) != 2 {
		t.Errorf("Load = entry 0x%x, %d segments, want 0x%x, 2", got.Entry, len(got.Loaded), dram)
	}
	if !bytes.Equal(got.DeviceTree, []byte("\xd0\x0d\xfe\xed")) {
		t.Errorf("DeviceTree = %x", got.DeviceTree)
	}
	loaded, err := ram.Slice(dram, len(text))
	if err != nil {
		t.Fatalf("Slice: %v", err)
	}
	if !bytes.Equal(loaded, text) {
		t.Errorf("loaded text = %x, want %x", loaded, text)
	}
}

func TestGenerateKey(t *testing.T) {
	dir := t.TempDir()
	opts := KeyOpts{
		Name:       "stageboot-test",
		SigningKey: filepath.Join(dir, "manifest.sec"),
		Board:      write(t, dir, "board.json", []byte(`{"bootargs": "console=ttyS0", "hart_id": 3}`)),
		BoardOut:   filepath.Join(dir, "signed.json"),
	}
	vkey, err := GenerateKey(opts)
	if err != nil {
		t.Fatalf("GenerateKey: %v", err)
	}

	board, err := config.Load(opts.BoardOut)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	want := config.Default()
	want.BootArgs, want.HartID, want.ManifestKey = "console=ttyS0", 3, vkey
	if diff := cmp.Diff(want, board); diff != "" {
		t.Errorf("board diff (-want +got):\n%s", diff)
	}
	if fi, err := os.Stat(opts.SigningKey); err != nil || fi.Mode().Perm() != 0o600 {
		t.Errorf("signer key file: %v, %v", fi, err)
	}

	// An image signed with the new key loads on the new board.
	out := filepath.Join(dir, "boot.bin")
	if err := Main(Opts{ELF: write(t, dir, "kernel.elf", program(t)), SigningKey: opts.SigningKey, Out: out}); err != nil {
		t.Fatalf("Main: %v", err)
	}
	img, err := os.ReadFile(out)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	verifier, err := note.NewVerifier(board.ManifestKey)
	if err != nil {
		t.Fatalf("NewVerifier: %v", err)
	}
	ram := mem.NewRAM(dram, 0x4000)
	if _, err := (&container.Loader{Mem: ram, Verifier: verifier}).Load(img); err != nil {
		t.Errorf("Load: %v", err)
	}
}

func TestGenerateKeyErrors(t *testing.T) {
	dir := t.TempDir()
	existing := write(t, dir, "existing.sec", []byte("keep me\n"))
	for _, test := range []struct {
		name string
		opts KeyOpts
	}{
		{name: "no name", opts: KeyOpts{SigningKey: filepath.Join(dir, "a.sec"), BoardOut: filepath.Join(dir, "a.json")}},
		{name: "no board output", opts: KeyOpts{Name: "k", SigningKey: filepath.Join(dir, "b.sec")}},
		{name: "missing board", opts: KeyOpts{Name: "k", SigningKey: filepath.Join(dir, "c.sec"), Board: filepath.Join(dir, "missing.json"), BoardOut: filepath.Join(dir, "c.json")}},
		{name: "key exists", opts: KeyOpts{Name: "k", SigningKey: existing, BoardOut: filepath.Join(dir, "d.json")}},
	} {
		t.Run(test.name, func(t *testing.T) {
			if _, err := GenerateKey(test.opts); err == nil {
				t.Fatal("GenerateKey succeeded, want error")
			}
			if test.opts.BoardOut != "" {
				if _, err := os.Stat(test.opts.BoardOut); !os.IsNotExist(err) {
					t.Errorf("board written although GenerateKey failed: %v", err)
				}
			}
		})
	}
	if b, _ := os.ReadFile(existing); string(b) != "keep me\n" {
		t.Errorf("existing key overwritten: %q", b)
	}
}

func TestMainErrors(t *testing.T) {
	dir := t.TempDir()
	kernel := write(t, dir, "kernel.elf", program(t))
	for _, test := range []struct {
		name string
		opts Opts
	}{
		{name: "no elf", opts: Opts{Out: filepath.Join(dir, "out")}},
		{name: "missing elf", opts: Opts{ELF: filepath.Join(dir, "missing"), Out: filepath.Join(dir, "out")}},
		{name: "missing dtb", opts: Opts{ELF: kernel, DeviceTree: filepath.Join(dir, "missing"), Out: filepath.Join(dir, "out")}},
		{name: "bad key", opts: Opts{ELF: kernel, SigningKey: write(t, dir, "key", []byte("nope")), Out: filepath.Join(dir, "out")}},
	} {
		t.Run(test.name, func(t *testing.T) {
			if err := Main(test.opts); err == nil {
				t.Error("Main succeeded, want error")
			}
		})
	}
}
