/* SPDX-License-Identifier: MIT
 *
 * Copyright (C) 2023-2026 Overlaynet Authors. All Rights Reserved.
 */

// Package fec wraps the RaptorQ engine behind the symbol-stream interface
// the transfer layer works with: an encoder that yields packets keyed by
// encoding-symbol id, and a decoder that consumes them one at a time.
package fec

import (
	"github.com/pkg/errors"
	"github.com/xssnick/raptorq"
)

// SymbolSize is the fixed on-wire symbol size.
const SymbolSize = 768

// Params describes one encoded slice. The values travel inside every
// MessagePart and must be reproduced bit-exactly.
type Params struct {
	DataSize     int32
	SymbolSize   int32
	SymbolsCount int32
}

type symbol struct {
	id   uint32
	data []byte
}

// Encoder produces encoding symbols for a single slice: first the source
// symbols in forward id order, then repair symbols continuing the id space.
type Encoder struct {
	engine *raptorq.Encoder
	params Params
	// Source symbols are materialized in reverse so popping from the tail
	// emits them in forward order.
	source []symbol
}

// NewEncoder constructs an encoder over one slice of data.
func NewEncoder(data []byte) (*Encoder, error) {
	rq := raptorq.NewRaptorQ(SymbolSize)
	engine, err := rq.CreateEncoder(data)
	if err != nil {
		return nil, errors.Wrap(err, "fec: create encoder")
	}
	count := (len(data) + SymbolSize - 1) / SymbolSize
	source := make([]symbol, 0, count)
	for i := count; i > 0; i-- {
		id := uint32(i - 1)
		source = append(source, symbol{id: id, data: engine.GenSymbol(id)})
	}
	return &Encoder{
		engine: engine,
		params: Params{
			DataSize:     int32(len(data)),
			SymbolSize:   SymbolSize,
			SymbolsCount: int32(count),
		},
		source: source,
	}, nil
}

// Params reports the slice parameters.
func (e *Encoder) Params() Params { return e.params }

// Encode returns the next packet. While source symbols remain, one is popped
// and seqno is rewritten to its id; afterwards a repair symbol is generated
// for max(seqno, symbols_count) and seqno is rewritten to that id. The
// caller's seqno always ends up holding the emitted packet's id.
func (e *Encoder) Encode(seqno *uint32) ([]byte, error) {
	if n := len(e.source); n > 0 {
		s := e.source[n-1]
		e.source = e.source[:n-1]
		*seqno = s.id
		return s.data, nil
	}
	id := *seqno
	if id < uint32(e.params.SymbolsCount) {
		id = uint32(e.params.SymbolsCount)
	}
	data := e.engine.GenSymbol(id)
	if len(data) == 0 {
		return nil, errors.New("fec: cannot encode repair packet")
	}
	*seqno = id
	return data, nil
}

// Decoder reconstructs one slice from encoding symbols.
type Decoder struct {
	engine *raptorq.Decoder
	params Params
	seqno  uint32
}

// NewDecoder constructs a decoder for a slice with the given parameters.
// The wire fixes the symbol size; anything else is rejected up front.
func NewDecoder(params Params) (*Decoder, error) {
	if params.SymbolSize != SymbolSize {
		return nil, errors.Errorf("fec: unsupported symbol size %d", params.SymbolSize)
	}
	if params.DataSize <= 0 {
		return nil, errors.Errorf("fec: invalid data size %d", params.DataSize)
	}
	rq := raptorq.NewRaptorQ(SymbolSize)
	engine, err := rq.CreateDecoder(uint32(params.DataSize))
	if err != nil {
		return nil, errors.Wrap(err, "fec: create decoder")
	}
	return &Decoder{engine: engine, params: params}, nil
}

// Params reports the parameters the decoder was constructed with.
func (d *Decoder) Params() Params { return d.params }

// Seqno reports the id of the last symbol fed in; Confirm carries it.
func (d *Decoder) Seqno() uint32 { return d.seqno }

// Decode feeds one symbol. It returns the reconstructed slice once enough
// symbols have arrived, nil otherwise. Duplicate symbols are harmless.
func (d *Decoder) Decode(seqno uint32, data []byte) ([]byte, error) {
	d.seqno = seqno
	canTry, err := d.engine.AddSymbol(seqno, data)
	if err != nil {
		// Rejected symbols (duplicates, malformed) do not fail the slice.
		return nil, nil
	}
	if !canTry {
		return nil, nil
	}
	done, decoded, err := d.engine.Decode()
	if err != nil {
		return nil, errors.Wrap(err, "fec: decode")
	}
	if !done {
		return nil, nil
	}
	if len(decoded) > int(d.params.DataSize) {
		decoded = decoded[:d.params.DataSize]
	}
	return decoded, nil
}
