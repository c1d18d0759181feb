/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import "time"

/* Protocol constants */

const (
	MaxQueries       = 3  // concurrent outgoing queries per peer
	SizeTransferWave = 10 // packets emitted per burst before yielding
	Slice            = 2000000
	Symbol           = 768
	Window           = 1000 // unconfirmed symbols the sender may run ahead

	TimeoutMinMS = uint64(500)
	TimeoutMaxMS = uint64(10000)
	Spinner      = 10 * time.Millisecond

	DefaultMaxAnswerSize = int64(128 * 1024)
)

/* Implementation constants */

const (
	// Bound on the per-transfer inbound packet queue. MessageParts above it
	// are dropped; FEC repair recovers them.
	maxRecvQueue = 1024
)
