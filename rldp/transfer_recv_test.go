/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import (
	"bytes"
	"math/rand"
	"testing"

	"github.com/overlaynet/rldp/fec"
	"github.com/overlaynet/rldp/tl"
)

// partSource emits the MessagePart stream a sender would produce for one
// slice, advancing seqno the way the window-open path does.
type partSource struct {
	encoder *fec.Encoder
	msg     tl.MessagePart
	seqno   uint32
}

func newPartSource(t *testing.T, transferID TransferID, data []byte, part int32, totalSize int64) *partSource {
	t.Helper()
	encoder, err := fec.NewEncoder(data)
	if err != nil {
		t.Fatal(err)
	}
	params := encoder.Params()
	return &partSource{
		encoder: encoder,
		msg: tl.MessagePart{
			TransferID: [32]byte(transferID),
			FEC: tl.FEC{
				Tag:          tl.TagFecRaptorQ,
				DataSize:     params.DataSize,
				SymbolSize:   params.SymbolSize,
				SymbolsCount: params.SymbolsCount,
			},
			Part:      part,
			TotalSize: totalSize,
		},
	}
}

func (s *partSource) next(t *testing.T) *tl.MessagePart {
	t.Helper()
	seqno := s.seqno
	data, err := s.encoder.Encode(&seqno)
	if err != nil {
		t.Fatal(err)
	}
	msg := s.msg
	msg.Seqno = int32(seqno)
	msg.Data = data
	s.seqno = seqno + 1
	return &msg
}

func TestProcessChunkAssemblesSlice(t *testing.T) {
	data := make([]byte, 4*Symbol+13)
	rand.New(rand.NewSource(2)).Read(data)
	id := randomID()
	src := newPartSource(t, id, data, 0, int64(len(data)))

	transfer := newRecvTransfer(id)
	for i := 0; i < 64; i++ {
		reply, err := transfer.processChunk(src.next(t))
		if err != nil {
			t.Fatal(err)
		}
		if transfer.isComplete() {
			if !bytes.Equal(transfer.data, data) {
				t.Fatal("assembled data differs from input")
			}
			decoded, err := tl.DecodePacket(reply)
			if err != nil {
				t.Fatal(err)
			}
			complete, ok := decoded.(*tl.Complete)
			if !ok || complete.Part != 0 {
				t.Fatalf("completion reply %#v, want Complete part 0", decoded)
			}
			return
		}
	}
	t.Fatal("slice did not assemble")
}

func TestProcessChunkConfirmCadence(t *testing.T) {
	data := make([]byte, 15*Symbol) // enough symbols that no decode fires early
	id := randomID()
	src := newPartSource(t, id, data, 0, int64(len(data)))

	transfer := newRecvTransfer(id)
	for i := 1; i <= 9; i++ {
		reply, err := transfer.processChunk(src.next(t))
		if err != nil {
			t.Fatal(err)
		}
		if reply != nil {
			t.Fatalf("reply before the 10th accepted symbol (symbol %d)", i)
		}
	}
	reply, err := transfer.processChunk(src.next(t))
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := tl.DecodePacket(reply)
	if err != nil {
		t.Fatal(err)
	}
	confirm, ok := decoded.(*tl.Confirm)
	if !ok {
		t.Fatalf("10th accepted symbol must produce a Confirm, got %#v", decoded)
	}
	if confirm.Part != 0 || confirm.Seqno != 9 {
		t.Fatalf("confirm carries part %d seqno %d, want 0/9", confirm.Part, confirm.Seqno)
	}
}

func TestProcessChunkTotalSizeSticky(t *testing.T) {
	data := make([]byte, Symbol)
	id := randomID()
	src := newPartSource(t, id, data, 0, int64(len(data)))

	transfer := newRecvTransfer(id)
	first := src.next(t)
	first.TotalSize = 1000
	if _, err := transfer.processChunk(first); err != nil {
		t.Fatal(err)
	}
	second := src.next(t)
	second.TotalSize = 2000
	if _, err := transfer.processChunk(second); err == nil {
		t.Fatal("total size change accepted")
	}
}

func TestProcessChunkPartRouting(t *testing.T) {
	data := make([]byte, Symbol)
	id := randomID()
	transfer := newRecvTransfer(id)
	transfer.part = 1
	transfer.hasTotal = true
	transfer.totalSize = 100000

	stale := newPartSource(t, id, data, 0, 100000).next(t)
	reply, err := transfer.processChunk(stale)
	if err != nil {
		t.Fatal(err)
	}
	decoded, err := tl.DecodePacket(reply)
	if err != nil {
		t.Fatal(err)
	}
	if complete, ok := decoded.(*tl.Complete); !ok || complete.Part != 0 {
		t.Fatalf("stale part must be answered with its Complete, got %#v", decoded)
	}

	future := newPartSource(t, id, data, 5, 100000).next(t)
	reply, err = transfer.processChunk(future)
	if err != nil {
		t.Fatal(err)
	}
	if reply != nil {
		t.Fatal("future part must be dropped silently")
	}
}

func TestProcessChunkRejectsForeignFEC(t *testing.T) {
	id := randomID()
	msg := newPartSource(t, id, make([]byte, Symbol), 0, Symbol).next(t)
	msg.FEC.Tag = tl.TagFecRoundRobin
	if _, err := newRecvTransfer(id).processChunk(msg); err == nil {
		t.Fatal("non-RaptorQ FEC accepted")
	}
}

func TestProcessChunkOverflow(t *testing.T) {
	data := make([]byte, 2*Symbol)
	id := randomID()
	src := newPartSource(t, id, data, 0, 10) // declared size far below the slice

	transfer := newRecvTransfer(id)
	var sawErr bool
	for i := 0; i < 8 && !sawErr; i++ {
		_, err := transfer.processChunk(src.next(t))
		sawErr = err != nil
	}
	if !sawErr {
		t.Fatal("slice overflowing total_size accepted")
	}
}

func TestProcessChunkParamsPinnedPerPart(t *testing.T) {
	id := randomID()
	src := newPartSource(t, id, make([]byte, 15*Symbol), 0, 15*Symbol)
	transfer := newRecvTransfer(id)
	if _, err := transfer.processChunk(src.next(t)); err != nil {
		t.Fatal(err)
	}
	altered := src.next(t)
	altered.FEC.SymbolsCount++
	if _, err := transfer.processChunk(altered); err == nil {
		t.Fatal("FEC parameter change mid-part accepted")
	}
}
