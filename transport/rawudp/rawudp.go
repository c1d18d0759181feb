/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package rawudp carries custom datagrams over a plain UDP socket with a
// 32-byte source-id prefix. It is demo-grade: peer authentication and
// integrity are left to the deployment, so use it only on trusted links
// (the protocol core assumes an authenticated transport).
package rawudp

import (
	"net"
	"sync"

	"github.com/pkg/errors"

	"github.com/overlaynet/rldp/transport"
)

const maxDatagram = 1 << 16

// Bind is one UDP endpoint with a peer table filled by AddPeer and by the
// source addresses of inbound frames from unknown peers.
type Bind struct {
	key  transport.KeyID
	conn *net.UDPConn

	mu        sync.Mutex
	addrs     map[transport.KeyID]*net.UDPAddr
	consumers []transport.Consumer
	closed    bool
}

var _ transport.Transport = (*Bind)(nil)

// Listen opens a UDP socket on addr for a peer whose id derives from name.
func Listen(addr, name string) (*Bind, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return nil, errors.Wrap(err, "rawudp: resolve")
	}
	conn, err := net.ListenUDP("udp", udpAddr)
	if err != nil {
		return nil, errors.Wrap(err, "rawudp: listen")
	}
	b := &Bind{
		key:   transport.KeyIDOf([]byte(name)),
		conn:  conn,
		addrs: make(map[transport.KeyID]*net.UDPAddr),
	}
	go b.receiveLoop()
	return b, nil
}

// Key reports the local peer id.
func (b *Bind) Key() transport.KeyID { return b.key }

// AddPeer maps a remote peer name to its address.
func (b *Bind) AddPeer(name, addr string) (transport.KeyID, error) {
	udpAddr, err := net.ResolveUDPAddr("udp", addr)
	if err != nil {
		return transport.KeyID{}, errors.Wrap(err, "rawudp: resolve peer")
	}
	key := transport.KeyIDOf([]byte(name))
	b.mu.Lock()
	b.addrs[key] = udpAddr
	b.mu.Unlock()
	return key, nil
}

// Subscribe registers a consumer for inbound datagrams.
func (b *Bind) Subscribe(c transport.Consumer) {
	b.mu.Lock()
	b.consumers = append(b.consumers, c)
	b.mu.Unlock()
}

func (b *Bind) SendCustom(data []byte, peers transport.Peers) error {
	b.mu.Lock()
	addr := b.addrs[peers.Other()]
	b.mu.Unlock()
	if addr == nil {
		return errors.Errorf("rawudp: unknown peer %v", peers.Other())
	}
	frame := make([]byte, 0, 32+len(data))
	local := peers.Local()
	frame = append(frame, local[:]...)
	frame = append(frame, data...)
	_, err := b.conn.WriteToUDP(frame, addr)
	return errors.Wrap(err, "rawudp: send")
}

func (b *Bind) receiveLoop() {
	buf := make([]byte, maxDatagram)
	for {
		n, from, err := b.conn.ReadFromUDP(buf)
		if err != nil {
			return
		}
		if n < 32 {
			continue
		}
		var src transport.KeyID
		copy(src[:], buf[:32])
		data := make([]byte, n-32)
		copy(data, buf[32:n])

		b.mu.Lock()
		if _, known := b.addrs[src]; !known {
			// Learn the return path for peers that dialed us.
			b.addrs[src] = from
		}
		consumers := b.consumers
		b.mu.Unlock()

		peers := transport.NewPeers(b.key, src)
		for _, c := range consumers {
			consumed, err := c.TryConsumeCustom(data, peers)
			if err != nil || consumed {
				break
			}
		}
	}
}

// Close shuts the socket down; the receive loop exits on the next read.
func (b *Bind) Close() error {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.closed {
		return nil
	}
	b.closed = true
	return b.conn.Close()
}
