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

package main

import (
	_ "unsafe"

	"github.com/google/stageboot/internal/config"
	"github.com/usbarmory/tamago/soc/sifive/fu540"
)

// The Go runtime and heap live in this slice of DRAM, away from the arena,
// the staging buffer and the usual load addresses.
const (
	runtimeStart = config.DRAMBase + 0x3000_0000
	runtimeSize  = 0x0800_0000
)

//go:linkname ramStart runtime.ramStart
var ramStart uint64 = runtimeStart

//go:linkname ramSize runtime.ramSize
var ramSize uint64 = runtimeSize

//go:linkname hwinit runtime.hwinit
func hwinit() {
	fu540.RV64.Init()
}

//go:linkname printk runtime.printk
func printk(c byte) {
	uart.WriteByte(c)
}
