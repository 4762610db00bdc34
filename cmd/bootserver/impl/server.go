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

// Package impl is the implementation of the boot image server.
package impl

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"os"
	"time"

	"github.com/golang/glog"
	"github.com/google/stageboot/internal/packet"
)

// Error codes sent in ERROR packets.
const (
	ErrCodeUndefined    = 0
	ErrCodeNotFound     = 1
	ErrCodeAccess       = 2
	ErrCodeIllegalOp    = 4
	ErrCodeTransferFail = 5
)

// Server serves files to boot loaders, one transfer at a time.
type Server struct {
	Conn net.PacketConn
	// Files holds the images which may be requested.
	Files fs.FS
	// Timeout is how long to wait for each ACK.
	Timeout time.Duration
	// Retries is how many times a block is re-sent before the transfer is
	// abandoned.
	Retries int
}

// Serve answers requests until ctx is done or the connection fails.
func (s *Server) Serve(ctx context.Context) error {
	go func() {
		<-ctx.Done()
		s.Conn.Close()
	}()

	buf := make([]byte, packet.MaxPacket)
	for {
		n, peer, err := s.Conn.ReadFrom(buf)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			return fmt.Errorf("read: %w", err)
		}
		p, err := packet.Parse(buf[:n])
		if err != nil {
			glog.Warningf("%s: malformed packet: %v", peer, err)
			s.send(peer, packet.Error(ErrCodeIllegalOp, err.Error()))
			continue
		}
		switch p.Op {
		case packet.RRQ:
			if err := s.transfer(peer, p.Filename); err != nil {
				glog.Warningf("%s: transfer of %q failed: %v", peer, p.Filename, err)
			}
		case packet.WRQ:
			s.send(peer, packet.Error(ErrCodeAccess, "write not supported"))
		default:
			glog.V(1).Infof("%s: ignoring stray %s", peer, p.Op)
		}
	}
}

func (s *Server) send(peer net.Addr, p []byte) error {
	_, err := s.Conn.WriteTo(p, peer)
	return err
}

func (s *Server) transfer(peer net.Addr, name string) error {
	if !fs.ValidPath(name) {
		s.send(peer, packet.Error(ErrCodeAccess, "invalid file name"))
		return fmt.Errorf("invalid file name %q", name)
	}
	data, err := fs.ReadFile(s.Files, name)
	if err != nil {
		code := uint8(ErrCodeUndefined)
		if errors.Is(err, fs.ErrNotExist) {
			code = ErrCodeNotFound
		}
		s.send(peer, packet.Error(code, "file not found"))
		return err
	}
	glog.Infof("%s: sending %s (%d bytes)", peer, name, len(data))

	blk := packet.Block(1)
	for off := 0; ; off += packet.MaxPayload {
		end := off + packet.MaxPayload
		if end > len(data) {
			end = len(data)
		}
		pkt, err := packet.Data(blk, data[off:end])
		if err != nil {
			return err
		}
		if err := s.sendBlock(peer, blk, pkt); err != nil {
			return err
		}
		if end-off < packet.MaxPayload {
			glog.Infof("%s: sent %s", peer, name)
			return nil
		}
		blk = blk.Next()
	}
}

// sendBlock sends pkt and waits for peer to acknowledge blk, re-sending on
// every timeout.
func (s *Server) sendBlock(peer net.Addr, blk packet.Block, pkt []byte) error {
	buf := make([]byte, packet.MaxPacket)
	for try := 0; try <= s.Retries; try++ {
		if err := s.send(peer, pkt); err != nil {
			return err
		}
		if err := s.Conn.SetReadDeadline(time.Now().Add(s.Timeout)); err != nil {
			return err
		}
		for {
			n, from, err := s.Conn.ReadFrom(buf)
			if errors.Is(err, os.ErrDeadlineExceeded) {
				glog.V(1).Infof("%s: block %s timed out (try %d)", peer, blk, try+1)
				break
			}
			if err != nil {
				return err
			}
			if from.String() != peer.String() {
				continue
			}
			p, err := packet.Parse(buf[:n])
			if err == nil && p.Op == packet.ACK && p.Block == blk {
				return s.Conn.SetReadDeadline(time.Time{})
			}
		}
	}
	s.Conn.SetReadDeadline(time.Time{})
	s.send(peer, packet.Error(ErrCodeTransferFail, "too many retries"))
	return fmt.Errorf("block %s not acknowledged after %d tries", blk, s.Retries+1)
}

// Opts encapsulates the parameters for running the server.
type Opts struct {
	Listen  string
	Root    string
	Timeout time.Duration
	Retries int
}

// Main listens on opts.Listen and serves files under opts.Root until ctx is
// done.
func Main(ctx context.Context, opts Opts) error {
	conn, err := net.ListenPacket("udp", opts.Listen)
	if err != nil {
		return fmt.Errorf("failed to listen on %q: %w", opts.Listen, err)
	}
	glog.Infof("Serving %s on %s", opts.Root, conn.LocalAddr())
	s := &Server{
		Conn:    conn,
		Files:   os.DirFS(opts.Root),
		Timeout: opts.Timeout,
		Retries: opts.Retries,
	}
	return s.Serve(ctx)
}
