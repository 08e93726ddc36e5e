// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package entry implements the opaque per-entry TLV stream that makes up
// the body of a v3 file (PWSfileV3::WriteRecord/ReadRecord, which simply
// delegate to CItemData::Write/Read — the engine never interprets an
// entry's fields, only frames them).
package entry

import (
	"errors"

	"github.com/lumimaja/lumi3/internal/tlv"
)

// Field is one opaque (type, value) pair belonging to an entry. The
// owner of the entry's data (outside this module's scope) assigns
// meaning to Type; the engine only needs to preserve order.
type Field struct {
	Type  byte
	Value []byte
}

// Entry is an ordered sequence of fields, as read from or about to be
// written to one entry's TLV run.
type Entry struct {
	Fields []Field
}

// ErrTruncated is returned when the body ends partway through an entry,
// before its terminator was seen.
var ErrTruncated = errors.New("entry: truncated record")

// Write appends fields to enc as TLV records, followed by the sentinel
// record that marks the entry's end.
func Write(enc *tlv.Encoder, fields []Field) {
	for _, f := range fields {
		enc.Append(f.Type, f.Value)
	}
	enc.AppendEnd()
}

// Read drains TLV records from dec into a new Entry until the sentinel
// terminator. It returns (nil, nil) if the cursor was already at the end
// of the body — the caller's signal that there are no more entries —
// and ErrTruncated if the body runs out partway through one.
func Read(dec *tlv.Decoder) (*Entry, error) {
	var fields []Field
	for {
		typ, value, ok, err := dec.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			if len(fields) == 0 {
				return nil, nil
			}
			return nil, ErrTruncated
		}
		if typ == tlv.End {
			return &Entry{Fields: fields}, nil
		}
		fields = append(fields, Field{Type: typ, Value: append([]byte(nil), value...)})
	}
}
