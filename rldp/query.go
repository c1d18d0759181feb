/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import (
	"time"

	"github.com/pkg/errors"

	"github.com/overlaynet/rldp/observability"
	"github.com/overlaynet/rldp/tl"
	"github.com/overlaynet/rldp/transport"
)

// Query sends data to the remote peer and waits for the paired answer.
//
// maxAnswerSize of 0 selects the default; roundtrip is the caller's
// estimate in milliseconds, 0 if unknown. The returned answer is nil when
// the exchange timed out or the responder declined to reply; the returned
// roundtrip is the updated estimate either way.
func (n *Node) Query(data []byte, maxAnswerSize int64, peers transport.Peers, roundtrip uint64) ([]byte, uint64, error) {
	n.observer.QueryStarted()
	answer, rtt, err := n.queryTransfer(data, maxAnswerSize, peers, roundtrip)
	switch {
	case err != nil:
		n.observer.QueryFinished(observability.QueryError, time.Duration(rtt)*time.Millisecond)
	case answer == nil:
		n.observer.QueryFinished(observability.QueryNoAnswer, time.Duration(rtt)*time.Millisecond)
	default:
		n.observer.QueryFinished(observability.QueryAnswered, time.Duration(rtt)*time.Millisecond)
	}
	return answer, rtt, err
}

func (n *Node) queryTransfer(data []byte, maxAnswerSize int64, peers transport.Peers, roundtrip uint64) ([]byte, uint64, error) {
	queryID := randomID()
	if maxAnswerSize <= 0 {
		maxAnswerSize = DefaultMaxAnswerSize
	}
	payload := (&tl.Query{
		QueryID:       [32]byte(queryID),
		MaxAnswerSize: maxAnswerSize,
		Timeout:       int32(time.Now().Unix()) + int32(TimeoutMaxMS/1000),
		Data:          data,
	}).Marshal()

	peer := n.peerState(peers.Other())
	peer.enter()

	sendTransferID := randomID()
	recvTransferID := complementID(sendTransferID)
	sendTransfer := newSendTransfer(payload, sendTransferID)
	n.transfers.Store(sendTransferID, &transferEntry{kind: transferSend, send: sendTransfer.state})
	queue := make(chan *tl.MessagePart, maxRecvQueue)
	n.transfers.Store(recvTransferID, &transferEntry{kind: transferRecv, queue: queue})
	n.observer.TransferOpened(observability.DirSend)
	n.observer.TransferOpened(observability.DirRecv)

	sendCtx := &sendContext{
		peers:      peers,
		transfer:   sendTransfer,
		transferID: sendTransferID,
	}
	recvCtx := &recvContext{
		peers:      peers,
		queue:      queue,
		transfer:   newRecvTransfer(recvTransferID),
		transferID: recvTransferID,
	}
	n.log.WithTransfer(sendTransferID).WithPeer(peers.Other()).
		Debugf("paired with %v, total to send %d", recvTransferID, len(payload))

	answer, rtt, err := n.queryTransferLoop(sendCtx, recvCtx, roundtrip)
	if err != nil {
		n.transfers.Store(sendTransferID, doneEntry)
	}
	n.transfers.Store(recvTransferID, doneEntry)
	go func() {
		time.Sleep(time.Duration(2*TimeoutMaxMS) * time.Millisecond)
		n.transfers.Delete(sendTransferID)
		n.transfers.Delete(recvTransferID)
		n.observer.TransferClosed(observability.DirSend)
		n.observer.TransferClosed(observability.DirRecv)
	}()

	peer.leave()

	if err != nil {
		return nil, rtt, err
	}
	if answer == nil {
		return nil, rtt, nil
	}
	decoded, err := tl.DecodeMessage(answer)
	if err != nil {
		return nil, rtt, err
	}
	reply, ok := decoded.(*tl.Answer)
	if !ok {
		return nil, rtt, errors.Errorf("unexpected reply %T to query", decoded)
	}
	if reply.QueryID != [32]byte(queryID) {
		return nil, rtt, errors.New("unknown query id in answer")
	}
	return reply.Data, rtt, nil
}

// queryTransferLoop runs the paired send and receive transfers: the query
// goes out through the send loop while a background receive loop assembles
// the answer, handed over through a single-use channel.
func (n *Node) queryTransferLoop(sendCtx *sendContext, recvCtx *recvContext, roundtrip uint64) ([]byte, uint64, error) {
	handoff := make(chan []byte, 1)
	recvState := recvCtx.transfer.state
	sendState := sendCtx.transfer.state
	go func() {
		n.receiveLoop(recvCtx, sendState)
		if recvCtx.transfer.isComplete() {
			handoff <- recvCtx.transfer.data
		}
	}()

	log := n.log.WithTransfer(sendCtx.transferID).WithPeer(sendCtx.peers.Other())
	ok, rtt, err := n.sendLoop(sendCtx, roundtrip)
	n.transfers.Store(sendCtx.transferID, doneEntry)
	if err != nil {
		return nil, rtt, err
	}
	timeout := calcTimeout(rtt)
	if !ok {
		log.Errorf("timeout (%d ms) on query", timeout)
		return nil, rtt, nil
	}
	log.Debugf("query sent, waiting for answer")

	start := time.Now()
	updates := recvState.get()
	for {
		time.Sleep(Spinner)
		if newUpdates := recvState.get(); newUpdates > updates {
			timeout = updateRoundtrip(&rtt, start)
			updates = newUpdates
			start = time.Now()
		} else if isTimedOut(timeout, updates, start) {
			log.Errorf("no activity in %d ms, aborting", timeout)
			break
		}
		select {
		case reply := <-handoff:
			updateRoundtrip(&rtt, start)
			return reply, rtt, nil
		default:
		}
	}
	return nil, rtt, nil
}

// receiveLoop drains the transfer's packet queue until the message is
// assembled. Replies owed to the sender go back through the transport;
// every processed packet bumps the liveness counter, and the first one sets
// the paired send transfer's reply flag. An idle deadline bounds the task
// when the peer goes silent.
func (n *Node) receiveLoop(ctx *recvContext, sendState *sendState) {
	log := n.log.WithTransfer(ctx.transferID).WithPeer(ctx.peers.Other())
	idle := time.NewTimer(time.Duration(TimeoutMaxMS) * time.Millisecond)
	defer idle.Stop()
	for {
		var msg *tl.MessagePart
		select {
		case msg = <-ctx.queue:
		case <-idle.C:
			return
		}
		begin := len(ctx.transfer.data) == 0
		reply, err := ctx.transfer.processChunk(msg)
		if err != nil {
			log.Errorf("receive: %v", err)
		} else if reply != nil {
			if err := n.transport.SendCustom(reply, ctx.peers); err != nil {
				log.Errorf("reply: %v", err)
			}
		}
		ctx.transfer.state.bump()
		if sendState != nil {
			sendState.setReply()
			sendState = nil
		}
		if begin && len(ctx.transfer.data) > 0 {
			log.Debugf("received first %d, total to receive %d",
				len(ctx.transfer.data), ctx.transfer.totalSize)
		}
		if ctx.transfer.isComplete() {
			log.Debugf("receive completed (%d)", ctx.transfer.totalSize)
			return
		}
		if !idle.Stop() {
			<-idle.C
		}
		idle.Reset(time.Duration(TimeoutMaxMS) * time.Millisecond)
	}
}

// sendLoop pushes every slice of the transfer through the transport in
// waves, pacing on the peer's Confirm/Complete feedback and the adaptive
// timeout. It reports whether the whole message was acknowledged and the
// final roundtrip estimate.
func (n *Node) sendLoop(ctx *sendContext, roundtrip uint64) (bool, uint64, error) {
	timeout := calcTimeout(roundtrip)
	rtt := roundtrip
	for {
		wave, err := ctx.transfer.startNextPart()
		if err != nil {
			return false, rtt, err
		}
		if wave == 0 {
			break
		}
		if wave > SizeTransferWave {
			wave = SizeTransferWave
		}
		part := ctx.transfer.state.getPart()
		start := time.Now()
		var recvSeqno uint32
	partLoop:
		for {
			for i := uint32(0); i < wave; i++ {
				chunk, err := ctx.transfer.prepareChunk()
				if err != nil {
					return false, rtt, err
				}
				if err := n.transport.SendCustom(chunk, ctx.peers); err != nil {
					return false, rtt, err
				}
				done, err := ctx.transfer.isFinishedOrNextPart(part)
				if err != nil {
					return false, rtt, err
				}
				if done {
					break partLoop
				}
			}
			time.Sleep(Spinner)
			done, err := ctx.transfer.isFinishedOrNextPart(part)
			if err != nil {
				return false, rtt, err
			}
			if done {
				break
			}
			if newRecvSeqno := ctx.transfer.state.getSeqnoRecv(); newRecvSeqno > recvSeqno {
				timeout = updateRoundtrip(&rtt, start)
				recvSeqno = newRecvSeqno
				start = time.Now()
			} else if isTimedOut(timeout, recvSeqno, start) {
				return false, minMS(rtt*2, TimeoutMaxMS), nil
			}
		}
		timeout = updateRoundtrip(&rtt, start)
	}
	return true, rtt, nil
}
