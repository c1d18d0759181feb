/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import (
	"runtime"
	"sync"
	"sync/atomic"

	"github.com/overlaynet/rldp/transport"
)

// peerState bounds concurrent outgoing queries per remote peer id; queries
// to the same remote from different local ids share one bound. Entrants beyond MaxQueries park on a rendezvous channel; each finishing
// query hands its slot to one waiter.
type peerState struct {
	queries atomic.Int32

	mu    sync.Mutex
	queue []chan struct{}
}

func (n *Node) peerState(remote transport.KeyID) *peerState {
	if p, ok := n.peers.Load(remote); ok {
		return p.(*peerState)
	}
	p, _ := n.peers.LoadOrStore(remote, &peerState{})
	return p.(*peerState)
}

func (p *peerState) push(ch chan struct{}) {
	p.mu.Lock()
	p.queue = append(p.queue, ch)
	p.mu.Unlock()
}

func (p *peerState) pop() chan struct{} {
	p.mu.Lock()
	defer p.mu.Unlock()
	if len(p.queue) == 0 {
		return nil
	}
	ch := p.queue[0]
	p.queue = p.queue[1:]
	return ch
}

func (p *peerState) enter() {
	if p.queries.Add(1)-1 >= MaxQueries {
		ch := make(chan struct{})
		p.push(ch)
		<-ch
	}
}

func (p *peerState) leave() {
	if p.queries.Add(-1)+1 > MaxQueries {
		// The waiter may not have enqueued itself yet; its counter
		// increment is already visible, so spin until the pop lands.
		for {
			if ch := p.pop(); ch != nil {
				ch <- struct{}{}
				break
			}
			runtime.Gosched()
		}
	}
}
