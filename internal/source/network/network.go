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

// Package network stages a boot image fetched from a boot server with the
// stop-and-wait protocol implemented by the packet package.
package network

import (
	"errors"

	"github.com/cenkalti/backoff/v4"
	"github.com/golang/glog"
	"github.com/google/stageboot/internal/console"
	"github.com/google/stageboot/internal/datagram"
	"github.com/google/stageboot/internal/failure"
	"github.com/google/stageboot/internal/packet"
	"github.com/google/stageboot/internal/source"
	"github.com/google/stageboot/internal/staging"
)

var errNoResponse = errors.New("no response")

// Backend reads File from the peer at the other end of T.
type Backend struct {
	T    datagram.Transport
	File string
	// MaxRetries is how many times the last message is re-sent while
	// waiting for a single packet.
	MaxRetries int
	// PollSpins is how many empty polls make up one attempt.
	PollSpins int

	Console *console.Console
	Spinner *console.Spinner
}

var _ source.Backend = &Backend{}

// Name implements source.Backend.
func (b *Backend) Name() string {
	return "net"
}

func (b *Backend) send(p []byte) error {
	if _, err := b.T.Send(p); err != nil {
		return failure.New(failure.ReadFailed, "net send", err)
	}
	return nil
}

// receive polls for the next packet, re-sending last after every attempt
// which saw nothing.
func (b *Backend) receive(p, last []byte) (int, error) {
	attempts, n := 0, 0
	op := func() error {
		if attempts > 0 {
			glog.V(1).Infof("net: no response, re-sending %q (attempt %d)", last, attempts+1)
			if err := b.send(last); err != nil {
				return backoff.Permanent(err)
			}
		}
		attempts++
		for i := 0; i < b.PollSpins; i++ {
			got, err := b.T.Poll(p)
			if err != nil {
				return backoff.Permanent(failure.New(failure.ReadFailed, "net poll", err))
			}
			if got > 0 {
				n = got
				return nil
			}
		}
		return errNoResponse
	}
	err := backoff.Retry(op, backoff.WithMaxRetries(&backoff.ZeroBackOff{}, uint64(b.MaxRetries)))
	if errors.Is(err, errNoResponse) {
		return 0, failure.Errorf(failure.TimeoutExhausted, "net", "no response after %d attempts", attempts)
	}
	return n, err
}

// Acquire implements source.Backend.
func (b *Backend) Acquire(buf *staging.Buffer) (int, error) {
	rrq, err := packet.ReadRequest(b.File)
	if err != nil {
		return 0, failure.New(failure.ProtocolError, "net request", err)
	}
	if err := b.send(rrq); err != nil {
		return 0, err
	}
	b.Console.Printf("net: requested %s\n", b.File)

	var (
		last  = rrq
		acked bool
		prev  packet.Block
		want  = packet.Block(1)
		total int
		blk   int
		raw   = make([]byte, packet.MaxPacket)
	)
	for {
		n, err := b.receive(raw, last)
		if err != nil {
			return total, err
		}
		p, err := packet.Parse(raw[:n])
		if err != nil {
			return total, failure.New(failure.ProtocolError, "net", err)
		}
		switch p.Op {
		case packet.ERROR:
			return total, failure.Errorf(failure.ProtocolError, "net", "peer error %02d: %s", p.Code, p.Message)
		case packet.DATA:
		default:
			return total, failure.Errorf(failure.ProtocolError, "net", "unexpected %s packet", p.Op)
		}

		// Only the block after the last acknowledged one is written. A
		// repeat of the last one means our ACK was lost.
		switch {
		case acked && p.Block == prev:
			glog.V(1).Infof("net: duplicate block %s, re-sending %q", p.Block, last)
			if err := b.send(last); err != nil {
				return total, err
			}
			continue
		case p.Block != want:
			glog.V(1).Infof("net: discarding block %s, want %s", p.Block, want)
			continue
		}

		w, err := buf.Write(p.Payload)
		total += w
		if err != nil {
			return total, err
		}

		ack := packet.Ack(p.Block)
		if err := b.send(ack); err != nil {
			return total, err
		}
		last, acked = ack, true
		prev, want = p.Block, p.Block.Next()
		blk++
		b.Spinner.Tick()

		if len(p.Payload) < packet.MaxPayload {
			glog.Infof("net: received %s, %d bytes in %d blocks", b.File, total, blk)
			return total, nil
		}
	}
}
