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

// sendTransfer pages an immutable message through SLICE-sized parts, each
// encoded by its own FEC block, paced by the peer's Confirm feedback.
type sendTransfer struct {
	buf     []byte // scratch for serializing MessageParts
	data    []byte
	encoder *fec.Encoder
	message tl.MessagePart
	state   *sendState
}

func newSendTransfer(data []byte, transferID TransferID) *sendTransfer {
	return &sendTransfer{
		data: data,
		message: tl.MessagePart{
			TransferID: [32]byte(transferID),
			FEC:        tl.FEC{Tag: tl.TagFecRaptorQ, SymbolSize: Symbol},
		},
		state: &sendState{},
	}
}

// isFinished reports whether the peer has started replying and every slice
// has been acknowledged.
func (t *sendTransfer) isFinished() bool {
	return t.state.hasReply() &&
		(uint64(t.state.getPart())+1)*Slice >= uint64(len(t.data))
}

// isFinishedOrNextPart reports whether the slice loop for part may stop:
// either the transfer is finished or the peer completed this part. Any part
// value other than part or part+1 is an internal inconsistency.
func (t *sendTransfer) isFinishedOrNextPart(part uint32) (bool, error) {
	if t.isFinished() {
		return true, nil
	}
	switch t.state.getPart() {
	case part:
		return false, nil
	case part + 1:
		return true, nil
	}
	return false, errors.New("part number mismatch")
}

// startNextPart builds the encoder for the current slice and returns its
// symbol count, or 0 when the whole message has been transmitted.
func (t *sendTransfer) startNextPart() (uint32, error) {
	if t.isFinished() {
		return 0, nil
	}
	part := uint64(t.state.getPart())
	processed := part * Slice
	total := uint64(len(t.data))
	if processed >= total {
		return 0, nil
	}
	chunk := total - processed
	if chunk > Slice {
		chunk = Slice
	}
	encoder, err := fec.NewEncoder(t.data[processed : processed+chunk])
	if err != nil {
		return 0, err
	}
	t.encoder = encoder
	params := encoder.Params()
	t.message.Part = int32(part)
	t.message.TotalSize = int64(total)
	t.message.FEC.DataSize = params.DataSize
	t.message.FEC.SymbolsCount = params.SymbolsCount
	return uint32(params.SymbolsCount), nil
}

// prepareChunk serializes the next MessagePart. While the sending window has
// room the outbound cursor advances; when the window is full the same
// position is reissued until the peer's Confirm frees it. The returned slice
// aliases the transfer's scratch buffer.
func (t *sendTransfer) prepareChunk() ([]byte, error) {
	if t.encoder == nil {
		return nil, errors.New("encoder is not ready")
	}
	seqnoSent := t.state.getSeqnoSent()
	original := seqnoSent
	chunk, err := t.encoder.Encode(&seqnoSent)
	if err != nil {
		return nil, err
	}
	t.message.Seqno = int32(seqnoSent)
	t.message.Data = chunk
	if seqnoSent-t.state.getSeqnoRecv() <= Window {
		if original == seqnoSent {
			seqnoSent++
		}
		t.state.setSeqnoSent(seqnoSent)
	}
	t.buf = t.message.MarshalTo(t.buf[:0])
	return t.buf, nil
}
