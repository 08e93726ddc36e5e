// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package tlv implements the type-length-value record framing shared by
// the header block and the body's entry records: PWSfile::WriteRaw /
// PWSfile::ReadRaw in the original core, reworked around an in-memory
// buffer instead of a FILE*.
package tlv

import (
	"errors"
	"fmt"
	"math"
	"os"

	"github.com/lumimaja/lumi3/internal/byteutil"
)

// End is the sentinel record type terminating a header or an entry's
// field stream.
const End byte = 0xff

const headerLen = 1 + 4 // type:u8, length:u32-LE

// ErrMalformed is returned when a record's declared length overruns the
// remaining buffer.
var ErrMalformed = errors.New("tlv: malformed record")

// Encoder appends TLV records to a growing byte buffer.
type Encoder struct {
	buf []byte
}

// NewEncoder returns an empty Encoder.
func NewEncoder() *Encoder {
	return &Encoder{}
}

// Append adds one record. Values longer than math.MaxUint32 are
// truncated to fit the length field; this should never happen for any
// field this format actually carries, so it is logged rather than
// silently swallowed.
func (e *Encoder) Append(typ byte, value []byte) {
	if uint64(len(value)) > math.MaxUint32 {
		fmt.Fprintf(os.Stderr, "lumi3: tlv: truncating type 0x%02x value from %d to %d bytes\n",
			typ, len(value), math.MaxUint32)
		value = value[:math.MaxUint32]
	}
	rec := make([]byte, headerLen+len(value))
	rec[0] = typ
	byteutil.PutUint32(rec[1:5], uint32(len(value)))
	copy(rec[5:], value)
	e.buf = append(e.buf, rec...)
}

// AppendEnd appends the End sentinel record.
func (e *Encoder) AppendEnd() {
	e.Append(End, nil)
}

// Bytes returns the encoded buffer.
func (e *Encoder) Bytes() []byte {
	return e.buf
}

// Len returns the number of bytes encoded so far.
func (e *Encoder) Len() int {
	return len(e.buf)
}

// Decoder walks TLV records in a borrowed buffer without allocating.
type Decoder struct {
	buf []byte
	pos int
}

// NewDecoder returns a Decoder positioned at the start of buf. buf is
// borrowed, not copied; Next's returned value slices alias it.
func NewDecoder(buf []byte) *Decoder {
	return &Decoder{buf: buf}
}

// Pos returns the current cursor position.
func (d *Decoder) Pos() int {
	return d.pos
}

// Len returns the total buffer length.
func (d *Decoder) Len() int {
	return len(d.buf)
}

// Done reports whether the cursor has reached the end of the buffer.
func (d *Decoder) Done() bool {
	return d.pos >= len(d.buf)
}

// Next returns the next record's type and value (a slice into the
// underlying buffer, not a copy), advancing the cursor past it. ok is
// false with a nil error when the cursor has already reached the end of
// the buffer ("no more" is not an error). ErrMalformed is returned, and
// the cursor left unmoved, when the declared length overruns the
// remaining buffer.
//
// PWSfileV3::ReadHeader wraps its equivalent read (PWSfile::ReadRaw) in a
// maxFails=42 retry loop, because there m_rawpos can stall against the
// end of an already-fully-buffered m_rawdata vector for several loop
// iterations before HDR_END would normally have ended things, and the
// counter exists only to bound that spin. Next operates on a fixed,
// already-decrypted byte slice with no hidden state between calls: for a
// given cursor position its outcome never changes, so retrying the same
// call would just repeat the same ok/err pair up to 42 times for no
// effect. Retries accordingly have no home here; see DESIGN.md.
func (d *Decoder) Next() (typ byte, value []byte, ok bool, err error) {
	if d.pos >= len(d.buf) {
		return 0, nil, false, nil
	}
	if d.pos+headerLen > len(d.buf) {
		return 0, nil, false, ErrMalformed
	}
	typ = d.buf[d.pos]
	length := byteutil.Uint32(d.buf[d.pos+1 : d.pos+5])
	start := d.pos + headerLen
	end := start + int(length)
	if length > uint32(len(d.buf)-start) || end < start {
		return 0, nil, false, ErrMalformed
	}
	value = d.buf[start:end]
	d.pos = end
	return typ, value, true, nil
}
