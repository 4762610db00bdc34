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

//go:build tamago && riscv64

// The bootloader is stageboot built for the Ariane FPGA SoC. It runs in
// machine mode from the boot ROM with the Go runtime in a reserved slice of
// DRAM.
//
// Build with:
//
//	GOOS=tamago GOARCH=riscv64 go build -tags tamago \
//	  -ldflags "-T 0xb0010000 -R 0x1000 -X main.Revision=$(git rev-parse HEAD)" \
//	  ./devices/ariane/bootloader
package main

import (
	"flag"
	"fmt"
	"runtime"
	"time"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/boot"
	"github.com/google/stageboot/internal/config"
	"github.com/google/stageboot/internal/console"
	"github.com/google/stageboot/internal/flash"
	"github.com/google/stageboot/internal/handoff"
	"github.com/google/stageboot/internal/mem"
	"github.com/google/stageboot/internal/mmio"
)

var (
	Build    string
	Revision string
)

var uart = &serial{Regs: mmio.Hardware{}, Base: config.UARTBase}

func init() {
	// There is no filesystem to log to; stderr is the UART.
	flag.Set("logtostderr", "true")
}

func main() {
	con := console.New(uart)
	halt := console.Spin{Console: con, Every: 5 * time.Second}
	con.Printf("\nstageboot %s (%s) %s/%s %s\n", Revision, Build, runtime.GOOS, runtime.GOARCH, runtime.Version())

	board := config.Default()
	board.Resident = append(board.Resident, mem.Range{Start: runtimeStart, Size: runtimeSize})

	dram, err := memory(board.DRAM)
	if err != nil {
		halt.Halt(fmt.Errorf("memory: %w", err))
	}
	regs := mmio.Hardware{}
	dev := boot.Devices{
		Flash: &flash.QSPI{Regs: regs, Base: board.Flash.Base, Polls: board.Flash.StatusPolls},
	}
	seq, err := boot.New(board, boot.Platform{
		Regs:     regs,
		Mem:      dram,
		Console:  con,
		Backends: boot.Backends(board, dev, con),
		Halter:   halt,
		Jumper:   handoff.CPU{},
	})
	if err != nil {
		halt.Halt(err)
	}
	glog.Infof("Board: DRAM %s, staging %s, arena %s", board.DRAM, board.Staging(), board.Arena)

	// Exceptions taken while booting arrive here as panics.
	defer func() {
		if r := recover(); r != nil {
			seq.Trap(r)
		}
	}()
	seq.Boot()
}

// memory reserves all of DRAM outside the Go runtime's own slice.
func memory(dram mem.Range) (*mem.Bus, error) {
	lo, err := mem.NewRegion(dram.Start, int(runtimeStart-dram.Start))
	if err != nil {
		return nil, err
	}
	hi, err := mem.NewRegion(runtimeStart+runtimeSize, int(dram.End()-runtimeStart-runtimeSize))
	if err != nil {
		return nil, err
	}
	return mem.NewBus(lo, hi)
}
