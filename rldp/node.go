/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package rldp implements a reliable large-datagram protocol on top of a
// connectionless authenticated datagram transport. Messages are split into
// FEC-encoded slices and carried by unreliable custom datagrams; a
// query/answer pattern pairs two transfers into a request.
package rldp

import (
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/overlaynet/rldp/observability"
	"github.com/overlaynet/rldp/tl"
	"github.com/overlaynet/rldp/transport"
)

// Subscriber serves inbound queries. The first subscriber that claims a
// query wins; a claim with a nil answer completes the exchange silently.
type Subscriber interface {
	TryConsumeQuery(query *tl.Query, peers transport.Peers) (claimed bool, answer *tl.Answer, err error)
}

func processQuery(subscribers []Subscriber, query *tl.Query, peers transport.Peers) (bool, *tl.Answer, error) {
	for _, s := range subscribers {
		claimed, answer, err := s.TryConsumeQuery(query, peers)
		if err != nil {
			return false, nil, err
		}
		if claimed {
			return true, answer, nil
		}
	}
	return false, nil, nil
}

// Node is the protocol engine bound to one transport.
type Node struct {
	transport   transport.Transport
	log         Logger
	subscribers []Subscriber
	observer    observability.Observer

	peers     sync.Map // transport.KeyID -> *peerState
	transfers sync.Map // TransferID -> *transferEntry
}

var _ transport.Consumer = (*Node)(nil)

func NewNode(tr transport.Transport, subscribers []Subscriber, logger Logger) *Node {
	return &Node{
		transport:   tr,
		log:         logger,
		subscribers: subscribers,
		observer:    observability.Nop(),
	}
}

// Observe replaces the metrics observer. Call before the node starts
// consuming traffic.
func (n *Node) Observe(obs observability.Observer) {
	n.observer = obs
}

type recvContext struct {
	peers      transport.Peers
	queue      chan *tl.MessagePart
	transfer   *recvTransfer
	transferID TransferID
}

type sendContext struct {
	peers      transport.Peers
	transfer   *sendTransfer
	transferID TransferID
}

func (n *Node) loadTransfer(id TransferID) *transferEntry {
	if e, ok := n.transfers.Load(id); ok {
		return e.(*transferEntry)
	}
	return nil
}

// TryConsumeCustom classifies one inbound datagram and routes it to the
// matching transfer. It reports false for datagrams that are not RLDP
// envelopes so other consumers on the transport can take them.
func (n *Node) TryConsumeCustom(data []byte, peers transport.Peers) (bool, error) {
	packet, err := tl.DecodePacket(data)
	if err != nil {
		return false, nil
	}
	switch msg := packet.(type) {
	case *tl.Complete:
		n.observer.PacketIn(observability.PacketComplete)
		if e := n.loadTransfer(TransferID(msg.TransferID)); e != nil && e.kind == transferSend {
			e.send.setPart(uint32(msg.Part) + 1)
		}
	case *tl.Confirm:
		n.observer.PacketIn(observability.PacketConfirm)
		if e := n.loadTransfer(TransferID(msg.TransferID)); e != nil && e.kind == transferSend {
			if e.send.getPart() == uint32(msg.Part) {
				e.send.setSeqnoRecv(uint32(msg.Seqno))
			}
		}
	case *tl.MessagePart:
		n.observer.PacketIn(observability.PacketMessagePart)
		n.consumeMessagePart(msg, peers)
	}
	return true, nil
}

func (n *Node) consumeMessagePart(msg *tl.MessagePart, peers transport.Peers) {
	transferID := TransferID(msg.TransferID)
	for {
		if e := n.loadTransfer(transferID); e != nil {
			if e.kind == transferRecv {
				select {
				case e.queue <- msg:
				default:
					// Bounded queue; repair symbols recover the loss.
					n.observer.PacketDropped(observability.DropQueueFull)
				}
			} else {
				// The transfer is over from our side; quiet the sender.
				n.replyClosed(msg, peers)
			}
			return
		}
		if queue := n.answerTransfer(transferID, peers); queue != nil {
			queue <- msg
			return
		}
		// Lost the insert race; the winner's entry is there now.
	}
}

// replyClosed answers a packet for a finished transfer with Confirm and
// Complete so the peer stops retransmitting.
func (n *Node) replyClosed(msg *tl.MessagePart, peers transport.Peers) {
	log := n.log.WithTransfer(TransferID(msg.TransferID)).WithPeer(peers.Other())
	confirm := tl.Confirm{TransferID: msg.TransferID, Part: msg.Part, Seqno: msg.Seqno}
	if err := n.transport.SendCustom(confirm.MarshalTo(nil), peers); err != nil {
		log.Errorf("confirm on closed transfer: %v", err)
		return
	}
	complete := tl.Complete{TransferID: msg.TransferID, Part: msg.Part}
	if err := n.transport.SendCustom(complete.MarshalTo(nil), peers); err != nil {
		log.Errorf("complete on closed transfer: %v", err)
		return
	}
	log.Infof("update on closed transfer, part %d, seqno %d", msg.Part, msg.Seqno)
}

// answerTransfer lazily creates the receive transfer for an unknown inbound
// id and spawns the responder task. It returns nil if another routine
// created the entry first.
func (n *Node) answerTransfer(transferID TransferID, peers transport.Peers) chan *tl.MessagePart {
	queue := make(chan *tl.MessagePart, maxRecvQueue)
	entry := &transferEntry{kind: transferRecv, queue: queue}
	if _, loaded := n.transfers.LoadOrStore(transferID, entry); loaded {
		return nil
	}
	n.observer.TransferOpened(observability.DirRecv)

	ctx := &recvContext{
		peers:      peers,
		queue:      queue,
		transfer:   newRecvTransfer(transferID),
		transferID: transferID,
	}
	go func() {
		n.receiveLoop(ctx, nil)
		n.transfers.Store(transferID, doneEntry)
		sendTransferID, err := n.answerTransferLoop(ctx)
		if err != nil {
			n.log.WithTransfer(transferID).WithPeer(peers.Other()).Errorf("%v", err)
		}
		time.Sleep(time.Duration(2*TimeoutMaxMS) * time.Millisecond)
		if sendTransferID != nil {
			n.transfers.Delete(*sendTransferID)
		}
		n.transfers.Delete(transferID)
		n.observer.TransferClosed(observability.DirRecv)
	}()

	// Bound the listener's lifetime in case the client goes silent.
	go func() {
		time.Sleep(time.Duration(TimeoutMaxMS) * time.Millisecond)
		n.transfers.Store(transferID, doneEntry)
	}()

	return queue
}

// answerTransferLoop parses the assembled query, consults the subscribers
// and streams the answer back on the complement transfer id.
func (n *Node) answerTransferLoop(ctx *recvContext) (*TransferID, error) {
	if !ctx.transfer.isComplete() {
		return nil, errors.New("query transfer ended incomplete")
	}
	decoded, err := tl.DecodeMessage(ctx.transfer.data)
	if err != nil {
		return nil, err
	}
	query, ok := decoded.(*tl.Query)
	if !ok {
		return nil, errors.Errorf("unexpected message %T in query transfer", decoded)
	}

	claimed, answer, err := processQuery(n.subscribers, query, ctx.peers)
	if err != nil {
		return nil, err
	}
	if !claimed {
		n.observer.QueryServed(false)
		return nil, errors.New("no subscriber claimed the query")
	}
	n.observer.QueryServed(true)
	if answer == nil {
		return nil, nil
	}
	if int64(len(answer.Data)) > query.MaxAnswerSize {
		return nil, errors.Errorf("answer exceeds limit: %d vs %d", len(answer.Data), query.MaxAnswerSize)
	}
	answer.QueryID = query.QueryID
	data := answer.Marshal()

	sendTransferID := complementID(ctx.transferID)
	log := n.log.WithTransfer(ctx.transferID).WithPeer(ctx.peers.Other())
	log.Debugf("answer to be sent in transfer %v", sendTransferID)

	sendTransfer := newSendTransfer(data, sendTransferID)
	n.transfers.Store(sendTransferID, &transferEntry{kind: transferSend, send: sendTransfer.state})
	n.observer.TransferOpened(observability.DirSend)
	defer n.observer.TransferClosed(observability.DirSend)

	sendCtx := &sendContext{
		peers:      ctx.peers,
		transfer:   sendTransfer,
		transferID: sendTransferID,
	}
	ok, _, err = n.sendLoop(sendCtx, 0)
	if err != nil {
		return &sendTransferID, err
	}
	if ok {
		log.Debugf("answer sent")
	} else {
		log.Errorf("timeout on answer")
	}
	return &sendTransferID, nil
}
