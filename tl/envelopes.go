/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

package tl

import "github.com/pkg/errors"

// FEC carries the fec.Type union. Only the raptorQ constructor is ever
// produced locally; the other two parse so the transfer layer can reject
// them by name.
type FEC struct {
	Tag          uint32
	DataSize     int32
	SymbolSize   int32
	SymbolsCount int32
}

func (f FEC) IsRaptorQ() bool { return f.Tag == TagFecRaptorQ }

// MessagePart is one FEC-encoded fragment of a transfer slice.
type MessagePart struct {
	TransferID [32]byte
	FEC        FEC
	Part       int32
	TotalSize  int64
	Seqno      int32
	Data       []byte
}

// Confirm reports the id of the encoding symbol the receiver most recently
// fed to its decoder for a part.
type Confirm struct {
	TransferID [32]byte
	Part       int32
	Seqno      int32
}

// Complete reports that a part has been fully decoded.
type Complete struct {
	TransferID [32]byte
	Part       int32
}

// Query is the request payload carried inside a transfer.
type Query struct {
	QueryID       [32]byte
	MaxAnswerSize int64
	Timeout       int32
	Data          []byte
}

// Answer is the response payload; QueryID echoes the query's.
type Answer struct {
	QueryID [32]byte
	Data    []byte
}

// Message is the plain one-way payload of the family.
type Message struct {
	ID   [32]byte
	Data []byte
}

func (m *MessagePart) MarshalTo(dst []byte) []byte {
	dst = appendUint32(dst, TagMessagePart)
	dst = appendInt256(dst, m.TransferID)
	dst = appendUint32(dst, m.FEC.Tag)
	dst = appendInt32(dst, m.FEC.DataSize)
	dst = appendInt32(dst, m.FEC.SymbolSize)
	dst = appendInt32(dst, m.FEC.SymbolsCount)
	dst = appendInt32(dst, m.Part)
	dst = appendInt64(dst, m.TotalSize)
	dst = appendInt32(dst, m.Seqno)
	return appendBytes(dst, m.Data)
}

func (c *Confirm) MarshalTo(dst []byte) []byte {
	dst = appendUint32(dst, TagConfirm)
	dst = appendInt256(dst, c.TransferID)
	dst = appendInt32(dst, c.Part)
	return appendInt32(dst, c.Seqno)
}

func (c *Complete) MarshalTo(dst []byte) []byte {
	dst = appendUint32(dst, TagComplete)
	dst = appendInt256(dst, c.TransferID)
	return appendInt32(dst, c.Part)
}

func (q *Query) Marshal() []byte {
	dst := appendUint32(nil, TagQuery)
	dst = appendInt256(dst, q.QueryID)
	dst = appendInt64(dst, q.MaxAnswerSize)
	dst = appendInt32(dst, q.Timeout)
	return appendBytes(dst, q.Data)
}

func (a *Answer) Marshal() []byte {
	dst := appendUint32(nil, TagAnswer)
	dst = appendInt256(dst, a.QueryID)
	return appendBytes(dst, a.Data)
}

func (m *Message) Marshal() []byte {
	dst := appendUint32(nil, TagMessage)
	dst = appendInt256(dst, m.ID)
	return appendBytes(dst, m.Data)
}

func parseFEC(r *reader) (f FEC, err error) {
	if f.Tag, err = r.uint32(); err != nil {
		return f, err
	}
	switch f.Tag {
	case TagFecRaptorQ, TagFecRoundRobin, TagFecOnline:
	default:
		return f, errors.Wrap(errUnknownTag, "fec.Type")
	}
	if f.DataSize, err = r.int32(); err != nil {
		return f, err
	}
	if f.SymbolSize, err = r.int32(); err != nil {
		return f, err
	}
	f.SymbolsCount, err = r.int32()
	return f, err
}

// DecodePacket parses one rldp.MessagePart envelope and returns
// *MessagePart, *Confirm or *Complete.
func DecodePacket(data []byte) (interface{}, error) {
	r := &reader{buf: data}
	tag, err := r.uint32()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagMessagePart:
		m := &MessagePart{}
		if m.TransferID, err = r.int256(); err != nil {
			return nil, err
		}
		if m.FEC, err = parseFEC(r); err != nil {
			return nil, err
		}
		if m.Part, err = r.int32(); err != nil {
			return nil, err
		}
		if m.TotalSize, err = r.int64(); err != nil {
			return nil, err
		}
		if m.Seqno, err = r.int32(); err != nil {
			return nil, err
		}
		if m.Data, err = r.bytes(); err != nil {
			return nil, err
		}
		return m, nil
	case TagConfirm:
		c := &Confirm{}
		if c.TransferID, err = r.int256(); err != nil {
			return nil, err
		}
		if c.Part, err = r.int32(); err != nil {
			return nil, err
		}
		if c.Seqno, err = r.int32(); err != nil {
			return nil, err
		}
		return c, nil
	case TagComplete:
		c := &Complete{}
		if c.TransferID, err = r.int256(); err != nil {
			return nil, err
		}
		if c.Part, err = r.int32(); err != nil {
			return nil, err
		}
		return c, nil
	}
	return nil, errors.Wrap(errUnknownTag, "rldp.MessagePart")
}

// DecodeMessage parses one rldp.Message envelope and returns *Query,
// *Answer or *Message.
func DecodeMessage(data []byte) (interface{}, error) {
	r := &reader{buf: data}
	tag, err := r.uint32()
	if err != nil {
		return nil, err
	}
	switch tag {
	case TagQuery:
		q := &Query{}
		if q.QueryID, err = r.int256(); err != nil {
			return nil, err
		}
		if q.MaxAnswerSize, err = r.int64(); err != nil {
			return nil, err
		}
		if q.Timeout, err = r.int32(); err != nil {
			return nil, err
		}
		if q.Data, err = r.bytes(); err != nil {
			return nil, err
		}
		return q, nil
	case TagAnswer:
		a := &Answer{}
		if a.QueryID, err = r.int256(); err != nil {
			return nil, err
		}
		if a.Data, err = r.bytes(); err != nil {
			return nil, err
		}
		return a, nil
	case TagMessage:
		m := &Message{}
		if m.ID, err = r.int256(); err != nil {
			return nil, err
		}
		if m.Data, err = r.bytes(); err != nil {
			return nil, err
		}
		return m, nil
	}
	return nil, errors.Wrap(errUnknownTag, "rldp.Message")
}
