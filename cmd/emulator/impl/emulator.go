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

// Package impl is the implementation of the host emulator, which runs the
// boot sequence against simulated devices and reports where the loaded
// program would have been started.
package impl

import (
	"context"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/golang/glog"
	bootserver "github.com/google/stageboot/cmd/bootserver/impl"
	"github.com/google/stageboot/internal/boot"
	"github.com/google/stageboot/internal/config"
	"github.com/google/stageboot/internal/console"
	"github.com/google/stageboot/internal/datagram"
	"github.com/google/stageboot/internal/flash/flashsim"
	"github.com/google/stageboot/internal/fsadapter"
	"github.com/google/stageboot/internal/handoff"
	"github.com/google/stageboot/internal/mem"
	"github.com/google/stageboot/internal/mmio"
	"golang.org/x/sync/errgroup"
)

// DefaultLowMemory is how much DRAM, from its base, is backed for loading
// programs. The arena and staging buffer are always backed.
const DefaultLowMemory = 0x400_0000

// Opts encapsulates the parameters for running the emulator.
type Opts struct {
	// BoardConfig is a JSON board description; empty uses the defaults.
	BoardConfig string
	// Mode is the value of the boot mode switch.
	Mode uint32

	// SDImage is an ext4 filesystem image attached as the SD card, starting
	// SDOffset bytes in.
	SDImage  string
	SDOffset int64
	// FlashImage is the content of the SPI flash.
	FlashImage string
	// BootServer is the address of a running boot server.
	BootServer string
	// ServeFile is served by a boot server started in-process. It overrides
	// BootServer and the configured network file name.
	ServeFile string
	// PollSpins overrides the network source's polls per attempt when
	// positive. Each poll waits PollWait.
	PollSpins int
	PollWait  time.Duration

	// LowMemory overrides DefaultLowMemory when non-zero.
	LowMemory uint64
	// Console receives the loader's console output; discarded when nil.
	Console io.Writer
}

// Outcome describes the handoff the loader performed.
type Outcome struct {
	Entry  uint64
	HartID uint64
	DTB    uint64
	// DeviceTree is the blob passed at DTB, if any.
	DeviceTree []byte
}

type halted struct{ err error }

type jumped struct{ entry, hartID, dtb uint64 }

// Main runs one boot attempt. It returns the handoff outcome, or the error
// the loader halted with.
func Main(ctx context.Context, opts Opts) (*Outcome, error) {
	board, err := config.Load(opts.BoardConfig)
	if err != nil {
		return nil, err
	}

	g, ctx := errgroup.WithContext(ctx)
	ctx, cancel := context.WithCancel(ctx)
	defer func() {
		cancel()
		if err := g.Wait(); err != nil {
			glog.Warningf("boot server: %v", err)
		}
	}()
	if opts.ServeFile != "" {
		addr, err := serve(ctx, g, opts.ServeFile)
		if err != nil {
			return nil, err
		}
		opts.BootServer = addr
		board.Network.File = filepath.Base(opts.ServeFile)
	}
	if opts.PollSpins > 0 {
		board.Network.PollSpins = opts.PollSpins
	}

	dev, regs, closer, err := devices(&board, opts)
	if err != nil {
		return nil, err
	}
	defer closer()
	regs.Set(board.ModeRegister, opts.Mode<<board.ModeShift)

	ram, err := memory(board, opts.LowMemory)
	if err != nil {
		return nil, err
	}
	con := console.New(opts.Console)
	seq, err := boot.New(board, boot.Platform{
		Regs:     regs,
		Mem:      ram,
		Console:  con,
		Backends: boot.Backends(board, dev, con),
		Halter:   console.HaltFunc(func(err error) { panic(halted{err}) }),
		Jumper: handoff.JumpFunc(func(entry, hartID, dtb uint64) {
			panic(jumped{entry, hartID, dtb})
		}),
	})
	if err != nil {
		return nil, err
	}

	out, err := run(seq)
	if err != nil {
		return nil, err
	}
	if out.DTB != 0 {
		if out.DeviceTree, err = deviceTree(ram, out.DTB); err != nil {
			return nil, err
		}
	}
	return out, nil
}

// run boots seq, turning the halt and handoff into return values.
func run(seq *boot.Sequence) (out *Outcome, err error) {
	defer func() {
		switch r := recover().(type) {
		case nil:
		case jumped:
			out = &Outcome{Entry: r.entry, HartID: r.hartID, DTB: r.dtb}
		case halted:
			err = r.err
		default:
			err = trap(seq, r)
		}
	}()
	seq.Boot()
	return nil, errors.New("boot returned")
}

// trap reports an unexpected panic the way the hardware reports a trap.
func trap(seq *boot.Sequence, cause interface{}) (err error) {
	defer func() {
		r := recover()
		h, ok := r.(halted)
		if !ok {
			panic(r)
		}
		err = h.err
	}()
	seq.Trap(cause)
	return nil
}

func devices(board *config.Board, opts Opts) (boot.Devices, *mmio.Sim, func(), error) {
	var (
		d       boot.Devices
		regs    = mmio.NewSim()
		closers []func() error
	)
	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}

	if opts.FlashImage != "" {
		data, err := os.ReadFile(opts.FlashImage)
		if err != nil {
			return d, nil, nil, fmt.Errorf("failed to read flash image: %w", err)
		}
		if board.Flash.Length == 0 && int(board.Flash.Offset) < len(data) {
			board.Flash.Length = len(data) - int(board.Flash.Offset)
		}
		f := flashsim.New(board.Flash.Base, data)
		regs = f.Regs
		d.Flash = f.Transport(board.Flash.StatusPolls)
	}

	if opts.SDImage != "" {
		f, err := os.Open(opts.SDImage)
		if err != nil {
			return d, nil, nil, fmt.Errorf("failed to open SD image: %w", err)
		}
		closers = append(closers, f.Close)
		fi, err := f.Stat()
		if err != nil {
			closeAll()
			return d, nil, nil, err
		}
		dev := fsadapter.ImageDevice{R: f, Size: fi.Size(), Blocksize: 512}
		d.FS = fsadapter.NewExt4(&fsadapter.Partition{Dev: dev, Offset: opts.SDOffset})
	}

	if opts.BootServer != "" {
		u, err := datagram.DialUDP(opts.BootServer)
		if err != nil {
			closeAll()
			return d, nil, nil, err
		}
		if opts.PollWait > 0 {
			u.Wait = opts.PollWait
		}
		closers = append(closers, u.Close)
		d.Net = u
	}
	return d, regs, closeAll, nil
}

// serve starts a boot server for file on a loopback port.
func serve(ctx context.Context, g *errgroup.Group, file string) (string, error) {
	conn, err := net.ListenPacket("udp", "127.0.0.1:0")
	if err != nil {
		return "", err
	}
	s := &bootserver.Server{
		Conn:    conn,
		Files:   os.DirFS(filepath.Dir(file)),
		Timeout: time.Second,
		Retries: 3,
	}
	g.Go(func() error { return s.Serve(ctx) })
	glog.Infof("Serving %s on %s", file, conn.LocalAddr())
	return conn.LocalAddr().String(), nil
}

// memory backs the parts of DRAM the loader can touch: the low LowMemory
// bytes, the arena and the staging buffer.
func memory(board config.Board, low uint64) (*mem.Bus, error) {
	if low == 0 {
		low = DefaultLowMemory
	}
	if low > board.DRAM.Size {
		low = board.DRAM.Size
	}
	rs := []mem.Range{
		{Start: board.DRAM.Start, Size: low},
		board.Arena,
		board.Staging(),
	}
	sort.Slice(rs, func(i, j int) bool { return rs[i].Start < rs[j].Start })

	var banks []mem.Bank
	cur := rs[0]
	for _, r := range rs[1:] {
		if r.Start <= cur.End() {
			if r.End() > cur.End() {
				cur.Size = r.End() - cur.Start
			}
			continue
		}
		banks = append(banks, mem.NewRAM(cur.Start, int(cur.Size)))
		cur = r
	}
	banks = append(banks, mem.NewRAM(cur.Start, int(cur.Size)))
	return mem.NewBus(banks...)
}

// deviceTree reads back the blob the loader placed at addr.
func deviceTree(m mem.Slicer, addr uint64) ([]byte, error) {
	hdr, err := m.Slice(addr, 8)
	if err != nil {
		return nil, err
	}
	size := int(binary.BigEndian.Uint32(hdr[4:]))
	b, err := m.Slice(addr, size)
	if err != nil {
		return nil, fmt.Errorf("device tree at 0x%x: %w", addr, err)
	}
	return append([]byte(nil), b...), nil
}
