/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package tl serializes the RLDP envelope family in the ambient TL scheme.
//
// Every boxed value starts with a 32-bit constructor tag, the CRC32-IEEE of
// its scheme line. Integers are little-endian, int256 is 32 raw bytes, and
// byte strings use the short/long length prefix padded to 4-byte alignment.
package tl

import (
	"encoding/binary"
	"hash/crc32"

	"github.com/pkg/errors"
)

const (
	schemeFecRaptorQ    = "fec.raptorQ data_size:int symbol_size:int symbols_count:int = fec.Type"
	schemeFecRoundRobin = "fec.roundRobin data_size:int symbol_size:int symbols_count:int = fec.Type"
	schemeFecOnline     = "fec.online data_size:int symbol_size:int symbols_count:int = fec.Type"

	schemeMessagePart = "rldp.messagePart transfer_id:int256 fec_type:fec.Type part:int total_size:long seqno:int data:bytes = rldp.MessagePart"
	schemeConfirm     = "rldp.confirm transfer_id:int256 part:int seqno:int = rldp.MessagePart"
	schemeComplete    = "rldp.complete transfer_id:int256 part:int = rldp.MessagePart"

	schemeMessage = "rldp.message id:int256 data:bytes = rldp.Message"
	schemeQuery   = "rldp.query query_id:int256 max_answer_size:long timeout:int data:bytes = rldp.Message"
	schemeAnswer  = "rldp.answer query_id:int256 data:bytes = rldp.Message"
)

var (
	TagFecRaptorQ    = crc32.ChecksumIEEE([]byte(schemeFecRaptorQ))
	TagFecRoundRobin = crc32.ChecksumIEEE([]byte(schemeFecRoundRobin))
	TagFecOnline     = crc32.ChecksumIEEE([]byte(schemeFecOnline))

	TagMessagePart = crc32.ChecksumIEEE([]byte(schemeMessagePart))
	TagConfirm     = crc32.ChecksumIEEE([]byte(schemeConfirm))
	TagComplete    = crc32.ChecksumIEEE([]byte(schemeComplete))

	TagMessage = crc32.ChecksumIEEE([]byte(schemeMessage))
	TagQuery   = crc32.ChecksumIEEE([]byte(schemeQuery))
	TagAnswer  = crc32.ChecksumIEEE([]byte(schemeAnswer))
)

var (
	errTruncated  = errors.New("tl: truncated value")
	errUnknownTag = errors.New("tl: unknown constructor")
)

func appendUint32(dst []byte, v uint32) []byte {
	return binary.LittleEndian.AppendUint32(dst, v)
}

func appendInt32(dst []byte, v int32) []byte {
	return binary.LittleEndian.AppendUint32(dst, uint32(v))
}

func appendInt64(dst []byte, v int64) []byte {
	return binary.LittleEndian.AppendUint64(dst, uint64(v))
}

func appendInt256(dst []byte, v [32]byte) []byte {
	return append(dst, v[:]...)
}

// appendBytes writes a TL byte string: one length byte below 254, otherwise
// 0xFE plus a 24-bit length, then the payload, zero-padded to 4 bytes.
func appendBytes(dst []byte, b []byte) []byte {
	written := len(b)
	if len(b) < 0xFE {
		dst = append(dst, byte(len(b)))
		written++
	} else {
		dst = append(dst, 0xFE, byte(len(b)), byte(len(b)>>8), byte(len(b)>>16))
		written += 4
	}
	dst = append(dst, b...)
	for written%4 != 0 {
		dst = append(dst, 0)
		written++
	}
	return dst
}

type reader struct {
	buf []byte
}

func (r *reader) uint32() (uint32, error) {
	if len(r.buf) < 4 {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint32(r.buf)
	r.buf = r.buf[4:]
	return v, nil
}

func (r *reader) int32() (int32, error) {
	v, err := r.uint32()
	return int32(v), err
}

func (r *reader) int64() (int64, error) {
	if len(r.buf) < 8 {
		return 0, errTruncated
	}
	v := binary.LittleEndian.Uint64(r.buf)
	r.buf = r.buf[8:]
	return int64(v), nil
}

func (r *reader) int256() (v [32]byte, err error) {
	if len(r.buf) < 32 {
		return v, errTruncated
	}
	copy(v[:], r.buf)
	r.buf = r.buf[32:]
	return v, nil
}

func (r *reader) bytes() ([]byte, error) {
	if len(r.buf) < 1 {
		return nil, errTruncated
	}
	var n, header int
	if r.buf[0] < 0xFE {
		n = int(r.buf[0])
		header = 1
	} else {
		if len(r.buf) < 4 {
			return nil, errTruncated
		}
		n = int(r.buf[1]) | int(r.buf[2])<<8 | int(r.buf[3])<<16
		header = 4
	}
	pad := 0
	for (header+n+pad)%4 != 0 {
		pad++
	}
	if len(r.buf) < header+n+pad {
		return nil, errTruncated
	}
	b := make([]byte, n)
	copy(b, r.buf[header:])
	r.buf = r.buf[header+n+pad:]
	return b, nil
}
