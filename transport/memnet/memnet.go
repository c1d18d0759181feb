/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package memnet joins two endpoints with in-memory channels, so a pair of
// nodes can be exercised without network dependencies. A DropFunc hook makes
// loss injection deterministic in tests.
package memnet

import (
	"net"
	"sync"

	"github.com/overlaynet/rldp/transport"
)

const queueDepth = 8192

type packet struct {
	data  []byte
	peers transport.Peers
}

// Endpoint is one side of a memnet pair.
type Endpoint struct {
	key  transport.KeyID
	peer *Endpoint

	rx          chan packet
	closeSignal chan struct{}
	closeOnce   sync.Once

	mu        sync.Mutex
	consumers []transport.Consumer
	drop      func(data []byte) bool
}

var _ transport.Transport = (*Endpoint)(nil)

// NewPair creates two connected endpoints whose peer ids are derived from
// the given names.
func NewPair(nameA, nameB string) (*Endpoint, *Endpoint) {
	a := &Endpoint{
		key:         transport.KeyIDOf([]byte(nameA)),
		rx:          make(chan packet, queueDepth),
		closeSignal: make(chan struct{}),
	}
	b := &Endpoint{
		key:         transport.KeyIDOf([]byte(nameB)),
		rx:          make(chan packet, queueDepth),
		closeSignal: make(chan struct{}),
	}
	a.peer = b
	b.peer = a
	go a.deliverLoop()
	go b.deliverLoop()
	return a, b
}

// Key reports the endpoint's peer id.
func (e *Endpoint) Key() transport.KeyID { return e.key }

// Peers builds the (local, remote) pair for talking to the other side.
func (e *Endpoint) Peers() transport.Peers {
	return transport.NewPeers(e.key, e.peer.key)
}

// Subscribe registers a consumer for inbound datagrams.
func (e *Endpoint) Subscribe(c transport.Consumer) {
	e.mu.Lock()
	e.consumers = append(e.consumers, c)
	e.mu.Unlock()
}

// SetDropFunc installs a loss hook on the *outbound* path. Returning true
// discards the datagram.
func (e *Endpoint) SetDropFunc(drop func(data []byte) bool) {
	e.mu.Lock()
	e.drop = drop
	e.mu.Unlock()
}

func (e *Endpoint) SendCustom(data []byte, peers transport.Peers) error {
	if peers.Other() != e.peer.key {
		return net.ErrClosed
	}
	e.mu.Lock()
	drop := e.drop
	e.mu.Unlock()
	if drop != nil && drop(data) {
		return nil
	}
	buf := make([]byte, len(data))
	copy(buf, data)
	select {
	case <-e.peer.closeSignal:
		return net.ErrClosed
	case e.peer.rx <- packet{data: buf, peers: peers}:
		return nil
	default:
		// Lossy link: a full queue behaves like the wire dropping it.
		return nil
	}
}

func (e *Endpoint) deliverLoop() {
	for {
		select {
		case <-e.closeSignal:
			return
		case pkt := <-e.rx:
			e.mu.Lock()
			consumers := e.consumers
			e.mu.Unlock()
			for _, c := range consumers {
				consumed, err := c.TryConsumeCustom(pkt.data, pkt.peers.Swapped())
				if err != nil || consumed {
					break
				}
			}
		}
	}
}

// Close stops delivery on this endpoint.
func (e *Endpoint) Close() error {
	e.closeOnce.Do(func() { close(e.closeSignal) })
	return nil
}
