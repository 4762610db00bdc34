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

// Package impl is the implementation of the image builder.
package impl

import (
	"crypto/rand"
	"debug/elf"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/config"
	"github.com/google/stageboot/internal/container"
	"golang.org/x/mod/sumdb/note"
)

// Opts encapsulates the parameters for building an image.
type Opts struct {
	// ELF is the RISC-V program to package.
	ELF string
	// DeviceTree is an optional flattened device tree to pass to the program.
	DeviceTree string
	// SigningKey is an optional file holding a note signer key; when set the
	// image carries a signed manifest.
	SigningKey string
	Out        string
}

// Main builds the image described by opts and writes it to opts.Out.
func Main(opts Opts) error {
	if opts.ELF == "" || opts.Out == "" {
		return errors.New("ELF and output paths are required")
	}
	f, err := elf.Open(opts.ELF)
	if err != nil {
		return fmt.Errorf("failed to open ELF: %w", err)
	}
	defer f.Close()

	entry, segs, err := Segments(f)
	if err != nil {
		return fmt.Errorf("%s: %w", opts.ELF, err)
	}
	if opts.DeviceTree != "" {
		dtb, err := os.ReadFile(opts.DeviceTree)
		if err != nil {
			return fmt.Errorf("failed to read device tree: %w", err)
		}
		segs = append(segs, container.Input{Flags: container.FlagDeviceTree, Data: dtb})
	}

	var signer note.Signer
	if opts.SigningKey != "" {
		k, err := os.ReadFile(opts.SigningKey)
		if err != nil {
			return fmt.Errorf("failed to read signing key: %w", err)
		}
		if signer, err = note.NewSigner(strings.TrimSpace(string(k))); err != nil {
			return fmt.Errorf("invalid signing key: %w", err)
		}
	}

	img, err := Build(entry, segs, signer)
	if err != nil {
		return err
	}
	if err := os.WriteFile(opts.Out, img, 0o644); err != nil {
		return fmt.Errorf("failed to write image: %w", err)
	}
	glog.Infof("Wrote %s: %d bytes, %d segments, entry 0x%x", opts.Out, len(img), len(segs), entry)
	return nil
}

// KeyOpts encapsulates the parameters for creating a manifest key pair.
type KeyOpts struct {
	// Name is the key identity carried by every signature.
	Name string
	// SigningKey is where the signer key is written. It must not exist yet.
	SigningKey string
	// Board is an optional JSON board description to start from.
	Board string
	// BoardOut is where the board description verifying with the new key is
	// written.
	BoardOut string
}

// GenerateKey creates a note key pair for image manifests. The signer key
// goes to opts.SigningKey, for use by Main, and the verifier key becomes the
// manifest_key of the board written to opts.BoardOut. It returns the verifier
// key.
func GenerateKey(opts KeyOpts) (string, error) {
	if opts.Name == "" || opts.SigningKey == "" || opts.BoardOut == "" {
		return "", errors.New("key name, signing key and board output paths are required")
	}
	board, err := config.Load(opts.Board)
	if err != nil {
		return "", err
	}
	skey, vkey, err := note.GenerateKey(rand.Reader, opts.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create key: %w", err)
	}
	board.ManifestKey = vkey
	j, err := json.MarshalIndent(board, "", "\t")
	if err != nil {
		return "", err
	}

	if err := create(opts.SigningKey, []byte(skey+"\n"), 0o600); err != nil {
		return "", err
	}
	if err := os.WriteFile(opts.BoardOut, append(j, '\n'), 0o644); err != nil {
		return "", fmt.Errorf("failed to write board config: %w", err)
	}
	glog.Infof("Wrote signer key %s to %s, verifier to %s", opts.Name, opts.SigningKey, opts.BoardOut)
	return vkey, nil
}

// create writes a new file, refusing to overwrite an existing one.
func create(name string, b []byte, perm os.FileMode) error {
	f, err := os.OpenFile(name, os.O_WRONLY|os.O_CREATE|os.O_EXCL, perm)
	if err != nil {
		return fmt.Errorf("unable to create key file: %w", err)
	}
	if _, err := f.Write(b); err != nil {
		f.Close()
		return fmt.Errorf("unable to write key file %q: %w", name, err)
	}
	return f.Close()
}

// Segments returns the entry point of a RISC-V executable and a loadable
// segment for each of its PT_LOAD program headers, zero filled to their
// memory size and placed at their physical address.
func Segments(f *elf.File) (uint64, []container.Input, error) {
	if f.Machine != elf.EM_RISCV {
		return 0, nil, fmt.Errorf("machine %s, want %s", f.Machine, elf.EM_RISCV)
	}
	if f.Type != elf.ET_EXEC {
		return 0, nil, fmt.Errorf("type %s, want %s", f.Type, elf.ET_EXEC)
	}
	var segs []container.Input
	for i, p := range f.Progs {
		if p.Type != elf.PT_LOAD || p.Memsz == 0 {
			continue
		}
		if p.Filesz > p.Memsz {
			return 0, nil, fmt.Errorf("program header %d: file size %d exceeds memory size %d", i, p.Filesz, p.Memsz)
		}
		d := make([]byte, p.Memsz)
		if _, err := io.ReadFull(p.Open(), d[:p.Filesz]); err != nil {
			return 0, nil, fmt.Errorf("program header %d: %w", i, err)
		}
		glog.V(1).Infof("Segment %d: %d bytes (%d from file) at 0x%x", len(segs), p.Memsz, p.Filesz, p.Paddr)
		segs = append(segs, container.Input{Dest: p.Paddr, Flags: container.FlagLoadable, Data: d})
	}
	if len(segs) == 0 {
		return 0, nil, errors.New("no loadable program headers")
	}
	return f.Entry, segs, nil
}

// Build lays out a container for segs, adding a manifest signed by signer
// when it is not nil.
func Build(entry uint64, segs []container.Input, signer note.Signer) ([]byte, error) {
	img, err := container.Build(entry, segs)
	if err != nil || signer == nil {
		return img, err
	}
	m, err := container.SignManifest(img, signer)
	if err != nil {
		return nil, fmt.Errorf("failed to sign manifest: %w", err)
	}
	glog.Infof("Manifest signed by %s", signer.Name())
	all := append(append([]container.Input{}, segs...), container.Input{Flags: container.FlagManifest, Data: m})
	return container.Build(entry, all)
}
