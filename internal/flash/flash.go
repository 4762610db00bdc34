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

// Package flash drives the quad-I/O serial flash controller.
//
// The controller performs one command/response exchange at a time: software
// loads the operands, writes the command register with the start bit set and
// then polls the status register until the busy bit clears. The response is
// a single 64-bit word.
package flash

import (
	"errors"
	"fmt"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/mmio"
)

// Opcode is a serial flash command.
type Opcode uint8

const (
	OpRead       Opcode = 0x03
	OpReadStatus Opcode = 0x05
	OpReadID     Opcode = 0x9f
	OpQuadRead   Opcode = 0xeb
)

// WordSize is the controller's native transfer width in bytes.
const WordSize = 8

// AddressSpace is the number of bytes reachable with a 3-byte address operand.
const AddressSpace = 1 << 24

// Register offsets from the controller base.
const (
	RegCmd    = 0x00
	RegAddr0  = 0x04
	RegAddr1  = 0x08
	RegStatus = 0x10
	RegDataLo = 0x18
	RegDataHi = 0x1c
)

// Command register fields.
const (
	CmdOpcodePos = 0
	CmdOpcodeLen = 8
	CmdLenPos    = 8
	CmdLenLen    = 4
	CmdQuad      = 12
	CmdStart     = 31
)

// Status register bits.
const (
	StatusBusy  = 0
	StatusError = 1
)

// MaxOperands is the number of operand registers.
const MaxOperands = 2

// Status is the decoded controller status register.
type Status struct {
	Busy  bool
	Error bool
}

// DecodeStatus decodes a raw status register value.
func DecodeStatus(v uint32) Status {
	return Status{Busy: mmio.IsSet(v, StatusBusy), Error: mmio.IsSet(v, StatusError)}
}

// Transport issues flash commands.
type Transport interface {
	// Send performs one exchange: opcode op with operandLen operand bytes
	// taken from operands, using four data lines when quad is set. It returns
	// the response word once the controller is idle.
	Send(op Opcode, operandLen int, quad bool, operands ...uint32) (uint64, error)
	// Status reads the controller status register.
	Status() Status
}

// EncodeCmd builds a command register value with the start bit set.
func EncodeCmd(op Opcode, operandLen int, quad bool) uint32 {
	var v uint32
	v = mmio.WithField(v, CmdOpcodePos, CmdOpcodeLen, uint32(op))
	v = mmio.WithField(v, CmdLenPos, CmdLenLen, uint32(operandLen))
	if quad {
		v = mmio.WithField(v, CmdQuad, 1, 1)
	}
	return mmio.WithField(v, CmdStart, 1, 1)
}

// DecodeCmd splits a command register value into its fields.
func DecodeCmd(v uint32) (op Opcode, operandLen int, quad bool, start bool) {
	return Opcode(mmio.Field(v, CmdOpcodePos, CmdOpcodeLen)),
		int(mmio.Field(v, CmdLenPos, CmdLenLen)),
		mmio.IsSet(v, CmdQuad),
		mmio.IsSet(v, CmdStart)
}

var errBusy = errors.New("controller busy")

// WaitReady polls t until it reports idle, reading the status register at
// most limit times. A controller which stays busy yields a
// timeout-exhausted failure; one which flags an error a read failure.
func WaitReady(t Transport, limit int) error {
	if limit <= 0 {
		limit = 1
	}
	polls := 0
	op := func() error {
		polls++
		s := t.Status()
		switch {
		case s.Error:
			return backoff.Permanent(failure.Errorf(failure.ReadFailed, "flash", "controller error after %d polls", polls))
		case s.Busy:
			return errBusy
		}
		return nil
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(limit-1)))
	if errors.Is(err, errBusy) {
		return failure.Errorf(failure.TimeoutExhausted, "flash", "controller still busy after %d polls", polls)
	}
	return err
}

// QSPI is the memory-mapped controller.
type QSPI struct {
	Regs mmio.Registers
	Base uint64
	// Polls bounds each busy-wait on the status register.
	Polls int
}

var _ Transport = &QSPI{}

// Status implements Transport.
func (q *QSPI) Status() Status {
	return DecodeStatus(q.Regs.Read32(q.Base + RegStatus))
}

// Send implements Transport.
func (q *QSPI) Send(op Opcode, operandLen int, quad bool, operands ...uint32) (uint64, error) {
	if len(operands) > MaxOperands {
		return 0, fmt.Errorf("flash: %d operands, controller takes at most %d", len(operands), MaxOperands)
	}
	if operandLen < 0 || operandLen >= 1<<CmdLenLen {
		return 0, fmt.Errorf("flash: invalid operand length %d", operandLen)
	}
	if err := WaitReady(q, q.Polls); err != nil {
		return 0, err
	}
	for i, o := range operands {
		q.Regs.Write32(q.Base+RegAddr0+uint64(4*i), o)
	}
	q.Regs.Write32(q.Base+RegCmd, EncodeCmd(op, operandLen, quad))
	if err := WaitReady(q, q.Polls); err != nil {
		glog.V(2).Infof("flash: opcode 0x%02x %v failed: %v", op, operands, err)
		return 0, err
	}
	lo := q.Regs.Read32(q.Base + RegDataLo)
	hi := q.Regs.Read32(q.Base + RegDataHi)
	return uint64(hi)<<32 | uint64(lo), nil
}
