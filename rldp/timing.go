/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package rldp

import "time"

// Roundtrip estimates are milliseconds; 0 means no estimate yet.

func elapsedMS(start time.Time) uint64 {
	return uint64(time.Since(start).Milliseconds())
}

func calcTimeout(roundtrip uint64) uint64 {
	if roundtrip == 0 {
		return TimeoutMaxMS
	}
	if roundtrip < TimeoutMinMS {
		return TimeoutMinMS
	}
	return roundtrip
}

// updateRoundtrip folds the elapsed time since start into the running
// estimate and returns the timeout derived from it.
func updateRoundtrip(roundtrip *uint64, start time.Time) uint64 {
	if *roundtrip == 0 {
		*roundtrip = elapsedMS(start)
	} else {
		*roundtrip = (*roundtrip + elapsedMS(start)) / 2
	}
	if *roundtrip == 0 {
		// Sub-millisecond loopback; keep the estimate distinguishable
		// from "no estimate".
		*roundtrip = 1
	}
	return calcTimeout(*roundtrip)
}

// isTimedOut widens the deadline linearly with observed progress, so a
// slow-but-alive transfer is not torn down.
func isTimedOut(timeout uint64, updates uint32, start time.Time) bool {
	return elapsedMS(start) > timeout+timeout*uint64(updates)/100
}

func minMS(a, b uint64) uint64 {
	if a < b {
		return a
	}
	return b
}
