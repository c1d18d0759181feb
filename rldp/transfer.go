/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import (
	"crypto/rand"
	"encoding/base64"
	"sync/atomic"

	"github.com/overlaynet/rldp/tl"
)

// TransferID identifies one direction of one logical exchange.
type TransferID [32]byte

func (id TransferID) String() string {
	return base64.StdEncoding.EncodeToString(id[:])
}

// complementID derives the paired transfer id: the bytewise complement.
// A query's receive id is the complement of its send id, and a responder
// answers on the complement of the inbound id.
func complementID(id TransferID) TransferID {
	for i := range id {
		id[i] ^= 0xFF
	}
	return id
}

func randomID() (id TransferID) {
	if _, err := rand.Read(id[:]); err != nil {
		panic(err)
	}
	return id
}

type transferKind int

const (
	transferRecv transferKind = iota
	transferSend
	transferDone
)

// transferEntry is the registry value. Inspections key off kind; entries are
// replaced wholesale on state change, never mutated in place.
type transferEntry struct {
	kind  transferKind
	queue chan *tl.MessagePart // transferRecv
	send  *sendState           // transferSend
}

var doneEntry = &transferEntry{kind: transferDone}

// recvState is the liveness signal the query driver watches.
type recvState struct {
	updates atomic.Uint32
}

func (s *recvState) get() uint32 {
	return s.updates.Load()
}

func (s *recvState) bump() {
	s.updates.Add(1)
}

// sendState is the atomics-only handle shared between the send loop, the
// dispatcher and the paired receive task.
type sendState struct {
	part      atomic.Uint32
	reply     atomic.Bool
	seqnoSent atomic.Uint32
	seqnoRecv atomic.Uint32
}

func (s *sendState) hasReply() bool {
	return s.reply.Load()
}

func (s *sendState) setReply() {
	s.reply.Store(true)
}

func (s *sendState) getPart() uint32 {
	return s.part.Load()
}

// setPart advances the current part to next on a Complete for next-1.
// Anything that does not match the exact prior value is a duplicate or a
// stray and is ignored.
func (s *sendState) setPart(next uint32) {
	s.part.CompareAndSwap(next-1, next)
}

func (s *sendState) getSeqnoSent() uint32 {
	return s.seqnoSent.Load()
}

func (s *sendState) setSeqnoSent(seqno uint32) {
	if cur := s.seqnoSent.Load(); cur < seqno {
		s.seqnoSent.CompareAndSwap(cur, seqno)
	}
}

func (s *sendState) getSeqnoRecv() uint32 {
	return s.seqnoRecv.Load()
}

// setSeqnoRecv advances the confirmed seqno monotonically, never past what
// was actually sent. Duplicate Confirms are idempotent.
func (s *sendState) setSeqnoRecv(seqno uint32) {
	if s.getSeqnoSent() >= seqno {
		if cur := s.seqnoRecv.Load(); cur < seqno {
			s.seqnoRecv.CompareAndSwap(cur, seqno)
		}
	}
}
