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

// Package datagram provides the unreliable packet transport the network boot
// source runs over.
package datagram

import (
	"errors"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/golang/glog"
)

// Transport sends and polls for datagrams exchanged with a single peer.
type Transport interface {
	// Send transmits p as one datagram.
	Send(p []byte) (int, error)
	// Poll copies a pending datagram into p and returns its length, or 0 if
	// none is pending. It never blocks for long.
	Poll(p []byte) (int, error)
}

// DefaultPollWait is how long UDP.Poll waits for a datagram.
const DefaultPollWait = time.Millisecond

// UDP is a Transport over a connected UDP socket.
type UDP struct {
	conn *net.UDPConn
	// Wait is how long a Poll waits for a datagram before reporting none.
	Wait time.Duration
}

var _ Transport = &UDP{}

// DialUDP connects to the peer at addr.
func DialUDP(addr string) (*UDP, error) {
	raddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, fmt.Errorf("resolve %q: %w", addr, err)
	}
	c, err := net.DialUDP("udp", nil, raddr)
	if err != nil {
		return nil, fmt.Errorf("dial %s: %w", raddr, err)
	}
	glog.V(1).Infof("datagram: %s -> %s", c.LocalAddr(), c.RemoteAddr())
	return &UDP{conn: c, Wait: DefaultPollWait}, nil
}

// Send implements Transport.
func (u *UDP) Send(p []byte) (int, error) {
	return u.conn.Write(p)
}

// Poll implements Transport.
func (u *UDP) Poll(p []byte) (int, error) {
	if err := u.conn.SetReadDeadline(time.Now().Add(u.Wait)); err != nil {
		return 0, err
	}
	n, err := u.conn.Read(p)
	if errors.Is(err, os.ErrDeadlineExceeded) {
		return 0, nil
	}
	return n, err
}

// LocalAddr returns the local socket address.
func (u *UDP) LocalAddr() net.Addr {
	return u.conn.LocalAddr()
}

// Close closes the socket.
func (u *UDP) Close() error {
	return u.conn.Close()
}
