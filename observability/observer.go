/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package observability defines the metric hooks the protocol core emits.
// The default observer discards everything; the prom subpackage exports to
// Prometheus.
package observability

import "time"

type QueryResult string

const (
	QueryAnswered QueryResult = "answered"
	QueryNoAnswer QueryResult = "no_answer"
	QueryError    QueryResult = "error"
)

type Direction string

const (
	DirSend Direction = "send"
	DirRecv Direction = "recv"
)

type PacketKind string

const (
	PacketMessagePart PacketKind = "message_part"
	PacketConfirm     PacketKind = "confirm"
	PacketComplete    PacketKind = "complete"
)

type DropReason string

const (
	DropQueueFull DropReason = "queue_full"
)

// Observer receives protocol-level metric events.
type Observer interface {
	QueryStarted()
	QueryFinished(result QueryResult, roundtrip time.Duration)
	QueryServed(claimed bool)
	TransferOpened(dir Direction)
	TransferClosed(dir Direction)
	PacketIn(kind PacketKind)
	PacketDropped(reason DropReason)
}

type nopObserver struct{}

func (nopObserver) QueryStarted()                            {}
func (nopObserver) QueryFinished(QueryResult, time.Duration) {}
func (nopObserver) QueryServed(bool)                         {}
func (nopObserver) TransferOpened(Direction)                 {}
func (nopObserver) TransferClosed(Direction)                 {}
func (nopObserver) PacketIn(PacketKind)                      {}
func (nopObserver) PacketDropped(DropReason)                 {}

// Nop returns an observer that discards every event.
func Nop() Observer {
	return nopObserver{}
}
