/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package transport defines the datagram layer consumed by the RLDP core.
//
// A Transport exchanges unreliable custom datagrams between identified
// peers. It guarantees peer authentication and message integrity but not
// delivery or ordering; everything above that is the protocol's job.
package transport

import (
	"encoding/base64"

	"golang.org/x/crypto/blake2s"
)

// KeyID identifies a peer: the short hash of its public key.
type KeyID [blake2s.Size]byte

// KeyIDOf derives the peer id for a public key.
func KeyIDOf(pub []byte) KeyID {
	return blake2s.Sum256(pub)
}

func (id KeyID) String() string {
	return base64.StdEncoding.EncodeToString(id[:])
}

// Peers is the ordered (local, remote) pair a datagram travels between.
type Peers struct {
	local  KeyID
	remote KeyID
}

func NewPeers(local, remote KeyID) Peers {
	return Peers{local: local, remote: remote}
}

// Local is this side's id: the sender on outbound datagrams, the receiver
// on inbound ones.
func (p Peers) Local() KeyID { return p.local }

// Other is the id of the remote side.
func (p Peers) Other() KeyID { return p.remote }

// Swapped reverses the pair for the reply direction.
func (p Peers) Swapped() Peers {
	return Peers{local: p.remote, remote: p.local}
}

// Transport sends raw custom datagrams.
type Transport interface {
	SendCustom(data []byte, peers Peers) error
}

// Consumer receives inbound custom datagrams from a transport. The transport
// offers each datagram to its consumers in registration order until one
// reports it consumed.
type Consumer interface {
	TryConsumeCustom(data []byte, peers Peers) (bool, error)
}
