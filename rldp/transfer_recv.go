/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import (
	"github.com/pkg/errors"

	"github.com/overlaynet/rldp/fec"
	"github.com/overlaynet/rldp/tl"
)

// recvTransfer reassembles a possibly multi-part message from FEC-encoded
// fragments and produces the Confirm/Complete replies owed to the sender.
type recvTransfer struct {
	buf          []byte // scratch for serializing replies
	complete     tl.Complete
	confirm      tl.Confirm
	confirmCount int
	data         []byte
	decoder      *fec.Decoder
	part         uint32
	state        *recvState
	totalSize    int64
	hasTotal     bool
}

func newRecvTransfer(transferID TransferID) *recvTransfer {
	return &recvTransfer{
		complete: tl.Complete{TransferID: [32]byte(transferID)},
		confirm:  tl.Confirm{TransferID: [32]byte(transferID)},
		state:    &recvState{},
	}
}

func (t *recvTransfer) isComplete() bool {
	return t.hasTotal && int64(len(t.data)) == t.totalSize
}

// processChunk feeds one MessagePart through the transfer. It returns the
// serialized reply owed to the sender, if any; the returned slice aliases
// the transfer's scratch buffer and is only valid until the next call.
func (t *recvTransfer) processChunk(msg *tl.MessagePart) ([]byte, error) {
	if !msg.FEC.IsRaptorQ() {
		return nil, errors.New("unsupported FEC type in packet")
	}
	if t.hasTotal {
		if t.totalSize != msg.TotalSize {
			return nil, errors.Errorf("total size changed mid-transfer: %d vs %d", t.totalSize, msg.TotalSize)
		}
	} else {
		t.totalSize = msg.TotalSize
		t.hasTotal = true
		t.data = make([]byte, 0, msg.TotalSize)
	}
	part := uint32(msg.Part)
	params := fec.Params{
		DataSize:     msg.FEC.DataSize,
		SymbolSize:   msg.FEC.SymbolSize,
		SymbolsCount: msg.FEC.SymbolsCount,
	}
	switch {
	case part < t.part:
		// A slice we already finished; tell the sender to advance.
		t.complete.Part = msg.Part
		t.buf = t.complete.MarshalTo(t.buf[:0])
		return t.buf, nil
	case part > t.part:
		return nil, nil
	}
	if t.decoder != nil {
		if t.decoder.Params() != params {
			return nil, errors.New("FEC parameters changed mid-part")
		}
	} else {
		decoder, err := fec.NewDecoder(params)
		if err != nil {
			return nil, err
		}
		t.decoder = decoder
	}
	decoded, err := t.decoder.Decode(uint32(msg.Seqno), msg.Data)
	if err != nil {
		return nil, err
	}
	if decoded != nil {
		if int64(len(t.data)+len(decoded)) > t.totalSize {
			return nil, errors.New("transfer exceeds declared total size")
		}
		t.data = append(t.data, decoded...)
		if int64(len(t.data)) < t.totalSize {
			t.decoder = nil
			t.part++
			t.confirmCount = 0
		}
		t.complete.Part = msg.Part
		t.buf = t.complete.MarshalTo(t.buf[:0])
		return t.buf, nil
	}
	if t.confirmCount == 9 {
		t.confirm.Part = msg.Part
		t.confirm.Seqno = int32(t.decoder.Seqno())
		t.confirmCount = 0
		t.buf = t.confirm.MarshalTo(t.buf[:0])
		return t.buf, nil
	}
	t.confirmCount++
	return nil, nil
}
