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

// Package config describes the board the loader runs on: its memory map, the
// boot mode table and the per-source parameters.
//
// The compiled-in defaults match the Ariane FPGA SoC. A JSON file may
// override any of them; fields it omits keep their default values.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/flash"
	"github.com/google/stageboot/internal/mem"
)

// SoC bus map.
const (
	ROMBase      = 0x0001_0000
	ROMLength    = 0x0001_0000
	UARTBase     = 0x1000_0000
	SPIBase      = 0x2000_0000
	EthernetBase = 0x3000_0000
	GPIOBase     = 0x4000_0000
	DRAMBase     = 0x8000_0000
	DRAMLength   = 0x4000_0000
)

const (
	// DefaultStagingSize is the largest image the loader accepts.
	DefaultStagingSize = 0x100_0000
	// DefaultArenaOffset is where the bump arena starts, relative to DRAMBase.
	DefaultArenaOffset = 0x680_0000
	DefaultArenaSize   = 0x10_0000

	DefaultBootFile  = "boot.bin"
	DefaultChunkSize = 4096
)

// Names of the boot sources a mode range may be bound to.
const (
	SourceSD      = "sd"
	SourceFlash   = "flash"
	SourceNetwork = "net"
)

// Binding maps the inclusive mode range [Lo, Hi] to a boot source.
type Binding struct {
	Lo     uint32 `json:"lo"`
	Hi     uint32 `json:"hi"`
	Source string `json:"source"`
}

// Flash holds the raw flash source parameters.
type Flash struct {
	// Base is the address of the flash controller's register block.
	Base uint64 `json:"base"`
	// Offset is the flash address the image starts at.
	Offset uint32 `json:"offset"`
	// Length is the number of bytes to stage, zero meaning the whole staging
	// buffer.
	Length int `json:"length"`
	// StatusPolls bounds the busy-wait on the controller status register.
	StatusPolls int `json:"status_polls"`
}

// End returns the first flash address past the image when staging holds
// stagingSize bytes.
func (f Flash) End(stagingSize uint64) uint64 {
	n := uint64(f.Length)
	if n == 0 {
		n = stagingSize
	}
	return uint64(f.Offset) + n
}

// Network holds the network source parameters.
type Network struct {
	// Base is the address of the Ethernet MAC register block.
	Base uint64 `json:"base"`
	// File is the name sent in the read request.
	File string `json:"file"`
	// MaxRetries is how many times a request is re-sent for a single block
	// before giving up.
	MaxRetries int `json:"max_retries"`
	// PollSpins is how many empty polls make up one attempt.
	PollSpins int `json:"poll_spins"`
}

// Board is the complete loader configuration.
type Board struct {
	DRAM        mem.Range `json:"dram"`
	StagingSize uint64    `json:"staging_size"`
	Arena       mem.Range `json:"arena"`
	// Resident lists the addresses occupied by the loader's own code, data
	// and stack. No image segment may be loaded over them.
	Resident []mem.Range `json:"resident"`

	// ModeRegister is the address of the boot mode switch register; the mode
	// is the ModeWidth-bit field starting at bit ModeShift.
	ModeRegister uint64    `json:"mode_register"`
	ModeShift    int       `json:"mode_shift"`
	ModeWidth    int       `json:"mode_width"`
	Sources      []Binding `json:"sources"`
	// DefaultSource is used for modes no binding covers. Empty means such
	// modes halt the boot.
	DefaultSource string `json:"default_source"`

	BootFile  string  `json:"boot_file"`
	ChunkSize int     `json:"chunk_size"`
	Flash     Flash   `json:"flash"`
	Network   Network `json:"network"`

	// HartID is passed to the loaded program in a0.
	HartID uint64 `json:"hart_id"`
	// BootArgs is written into /chosen/bootargs when a device tree is passed.
	BootArgs string `json:"bootargs"`
	// ManifestKey is a note verifier key; when set only images carrying a
	// manifest signed by it are loaded.
	ManifestKey string `json:"manifest_key"`
}

// Default returns the configuration for the Ariane FPGA SoC.
func Default() Board {
	return Board{
		DRAM:        mem.Range{Start: DRAMBase, Size: DRAMLength},
		StagingSize: DefaultStagingSize,
		Arena:       mem.Range{Start: DRAMBase + DefaultArenaOffset, Size: DefaultArenaSize},
		Resident:    []mem.Range{{Start: ROMBase, Size: ROMLength}},

		ModeRegister: GPIOBase,
		ModeShift:    29,
		ModeWidth:    3,
		Sources: []Binding{
			{Lo: 0, Hi: 1, Source: SourceSD},
			{Lo: 2, Hi: 3, Source: SourceFlash},
			{Lo: 4, Hi: 5, Source: SourceNetwork},
		},

		BootFile:  DefaultBootFile,
		ChunkSize: DefaultChunkSize,
		Flash: Flash{
			Base:        SPIBase,
			StatusPolls: 1 << 16,
		},
		Network: Network{
			Base:       EthernetBase,
			File:       DefaultBootFile,
			MaxRetries: 3,
			PollSpins:  1 << 20,
		},
	}
}

// Staging returns the staging buffer's range: the top StagingSize bytes of
// DRAM.
func (b Board) Staging() mem.Range {
	return mem.Range{Start: b.DRAM.End() - b.StagingSize, Size: b.StagingSize}
}

// Reserved returns every range an image segment must not be loaded over.
func (b Board) Reserved() []mem.Range {
	r := make([]mem.Range, 0, len(b.Resident)+2)
	r = append(r, b.Resident...)
	return append(r, b.Arena, b.Staging())
}

// Validate checks the configuration is self-consistent.
func (b Board) Validate() error {
	switch {
	case b.DRAM.Size == 0 || !b.DRAM.Valid():
		return fmt.Errorf("invalid DRAM range %s", b.DRAM)
	case b.StagingSize == 0 || b.StagingSize > b.DRAM.Size:
		return fmt.Errorf("staging size 0x%x does not fit DRAM %s", b.StagingSize, b.DRAM)
	case !b.DRAM.Contains(b.Arena):
		return fmt.Errorf("arena %s outside DRAM %s", b.Arena, b.DRAM)
	case b.Arena.Overlaps(b.Staging()):
		return fmt.Errorf("arena %s overlaps staging buffer %s", b.Arena, b.Staging())
	case b.ModeWidth <= 0 || b.ModeShift < 0 || b.ModeShift+b.ModeWidth > 32:
		return fmt.Errorf("invalid mode field: shift %d width %d", b.ModeShift, b.ModeWidth)
	case b.ChunkSize <= 0:
		return fmt.Errorf("invalid chunk size %d", b.ChunkSize)
	case b.Flash.Length < 0:
		return fmt.Errorf("invalid flash length %d", b.Flash.Length)
	case b.Flash.End(b.StagingSize) > flash.AddressSpace:
		return fmt.Errorf("flash image at 0x%x ends at 0x%x, past the 0x%x byte address space", b.Flash.Offset, b.Flash.End(b.StagingSize), flash.AddressSpace)
	case b.Flash.StatusPolls <= 0:
		return errors.New("flash status_polls must be positive")
	case b.Network.MaxRetries < 0 || b.Network.PollSpins <= 0:
		return fmt.Errorf("invalid network retry bounds: max_retries %d poll_spins %d", b.Network.MaxRetries, b.Network.PollSpins)
	}
	known := map[string]bool{SourceSD: true, SourceFlash: true, SourceNetwork: true}
	maxMode := uint32(1)<<b.ModeWidth - 1
	for i, s := range b.Sources {
		if !known[s.Source] {
			return fmt.Errorf("binding %d: unknown source %q", i, s.Source)
		}
		if s.Lo > s.Hi || s.Hi > maxMode {
			return fmt.Errorf("binding %d: invalid mode range [%d, %d]", i, s.Lo, s.Hi)
		}
		for j, o := range b.Sources[:i] {
			if s.Lo <= o.Hi && o.Lo <= s.Hi {
				return fmt.Errorf("binding %d overlaps binding %d", i, j)
			}
		}
	}
	if b.DefaultSource != "" && !known[b.DefaultSource] {
		return fmt.Errorf("unknown default source %q", b.DefaultSource)
	}
	return nil
}

// Parse decodes a JSON board description over the defaults.
func Parse(raw []byte) (Board, error) {
	b := Default()
	if err := json.Unmarshal(raw, &b); err != nil {
		return Board{}, fmt.Errorf("failed to parse board config: %w", err)
	}
	if err := b.Validate(); err != nil {
		return Board{}, err
	}
	return b, nil
}

// Load reads a JSON board description from path. An empty path returns the
// defaults.
func Load(path string) (Board, error) {
	if path == "" {
		b := Default()
		return b, b.Validate()
	}
	glog.Infof("Reading board configuration at %s", path)
	raw, err := os.ReadFile(path)
	if err != nil {
		return Board{}, fmt.Errorf("failed to read board config: %w", err)
	}
	return Parse(raw)
}

// Print logs the configuration.
func (b Board) Print() {
	j, _ := json.MarshalIndent(b, "", "\t")
	glog.Infof("\n%s", string(j))
}
