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

import "github.com/google/stageboot/internal/mmio"

// 16550 registers, at a 4 byte stride.
const (
	regTHR = 0x00
	regLSR = 0x14

	lsrTHRE = 5
)

// serial is a polled, transmit only, 16550 UART.
type serial struct {
	Regs mmio.Registers
	Base uint64
}

func (s *serial) WriteByte(c byte) error {
	for !mmio.IsSet(s.Regs.Read32(s.Base+regLSR), lsrTHRE) {
	}
	s.Regs.Write32(s.Base+regTHR, uint32(c))
	return nil
}

func (s *serial) Write(p []byte) (int, error) {
	for _, c := range p {
		if c == '\n' {
			s.WriteByte('\r')
		}
		s.WriteByte(c)
	}
	return len(p), nil
}
