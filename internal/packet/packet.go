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

// Package packet encodes and decodes the boot file transfer protocol.
//
// The protocol is a reduced TFTP carried in ASCII: every packet starts with a
// two digit opcode. Data and acknowledgement packets follow it with a two
// digit block number, so block numbers wrap modulo 100.
//
//	RRQ   "01" filename
//	WRQ   "02" filename
//	DATA  "03" block payload
//	ACK   "04" block
//	ERROR "05" code message
package packet

import (
	"errors"
	"fmt"
)

// Opcode identifies a packet type.
type Opcode uint8

const (
	RRQ Opcode = iota + 1
	WRQ
	DATA
	ACK
	ERROR
)

func (o Opcode) String() string {
	switch o {
	case RRQ:
		return "RRQ"
	case WRQ:
		return "WRQ"
	case DATA:
		return "DATA"
	case ACK:
		return "ACK"
	case ERROR:
		return "ERROR"
	}
	return fmt.Sprintf("Opcode(%d)", o)
}

const (
	// MaxPayload is the largest DATA payload. A shorter payload ends a
	// transfer.
	MaxPayload = 512
	// MaxPacket bounds every packet on the wire.
	MaxPacket = 550
	// MaxFilename bounds the filename of a request.
	MaxFilename = 100

	opcodeLen = 2
	blockLen  = 2
	// HeaderLen is the length of a DATA packet header.
	HeaderLen = opcodeLen + blockLen
)

// Block is a data block number in [0, 100).
type Block uint8

// NumBlocks is the modulus of block numbers.
const NumBlocks = 100

// Next returns the block number following b.
func (b Block) Next() Block {
	return (b + 1) % NumBlocks
}

func (b Block) String() string {
	return fmt.Sprintf("%02d", uint8(b))
}

var (
	ErrTooShort        = errors.New("packet too short")
	ErrTooLong         = errors.New("packet too long")
	ErrBadDigits       = errors.New("malformed decimal field")
	ErrUnknownOpcode   = errors.New("unknown opcode")
	ErrFilenameTooLong = errors.New("filename too long")
)

// Packet is a decoded packet. Only the fields meaningful for Op are set.
type Packet struct {
	Op       Opcode
	Filename string
	Block    Block
	Payload  []byte
	Code     uint8
	Message  string
}

func digits(b []byte) (uint8, error) {
	if len(b) != 2 || b[0] < '0' || b[0] > '9' || b[1] < '0' || b[1] > '9' {
		return 0, ErrBadDigits
	}
	return (b[0]-'0')*10 + b[1] - '0', nil
}

func appendDigits(p []byte, v uint8) []byte {
	return append(p, '0'+v/10%10, '0'+v%10)
}

func request(op Opcode, filename string) ([]byte, error) {
	if len(filename) > MaxFilename {
		return nil, ErrFilenameTooLong
	}
	p := make([]byte, 0, opcodeLen+len(filename))
	p = appendDigits(p, uint8(op))
	return append(p, filename...), nil
}

// ReadRequest builds an RRQ for filename.
func ReadRequest(filename string) ([]byte, error) {
	return request(RRQ, filename)
}

// WriteRequest builds a WRQ for filename.
func WriteRequest(filename string) ([]byte, error) {
	return request(WRQ, filename)
}

// Data builds a DATA packet.
func Data(b Block, payload []byte) ([]byte, error) {
	if len(payload) > MaxPayload {
		return nil, ErrTooLong
	}
	p := make([]byte, 0, HeaderLen+len(payload))
	p = appendDigits(p, uint8(DATA))
	p = appendDigits(p, uint8(b))
	return append(p, payload...), nil
}

// Ack builds an ACK packet.
func Ack(b Block) []byte {
	p := make([]byte, 0, HeaderLen)
	p = appendDigits(p, uint8(ACK))
	return appendDigits(p, uint8(b))
}

// Error builds an ERROR packet.
func Error(code uint8, msg string) []byte {
	if max := MaxPacket - HeaderLen; len(msg) > max {
		msg = msg[:max]
	}
	p := make([]byte, 0, HeaderLen+len(msg))
	p = appendDigits(p, uint8(ERROR))
	p = appendDigits(p, code)
	return append(p, msg...)
}

// Parse decodes a packet. The returned Payload aliases p.
func Parse(p []byte) (Packet, error) {
	if len(p) < opcodeLen {
		return Packet{}, ErrTooShort
	}
	if len(p) > MaxPacket {
		return Packet{}, ErrTooLong
	}
	v, err := digits(p[:opcodeLen])
	if err != nil {
		return Packet{}, fmt.Errorf("opcode: %w", err)
	}
	pkt := Packet{Op: Opcode(v)}
	rest := p[opcodeLen:]
	switch pkt.Op {
	case RRQ, WRQ:
		if len(rest) > MaxFilename {
			return Packet{}, ErrFilenameTooLong
		}
		pkt.Filename = string(rest)
		return pkt, nil
	case DATA, ACK, ERROR:
	default:
		return Packet{}, fmt.Errorf("%w %q", ErrUnknownOpcode, p[:opcodeLen])
	}

	if len(rest) < blockLen {
		return Packet{}, ErrTooShort
	}
	n, err := digits(rest[:blockLen])
	if err != nil {
		return Packet{}, fmt.Errorf("%s block: %w", pkt.Op, err)
	}
	rest = rest[blockLen:]
	switch pkt.Op {
	case DATA:
		if len(rest) > MaxPayload {
			return Packet{}, ErrTooLong
		}
		pkt.Block, pkt.Payload = Block(n), rest
	case ACK:
		pkt.Block = Block(n)
	case ERROR:
		pkt.Code, pkt.Message = n, string(rest)
	}
	return pkt, nil
}
