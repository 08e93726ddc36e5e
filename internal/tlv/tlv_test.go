// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package tlv

import (
	"bytes"
	"testing"
)

func TestEncodeDecodeRoundTrip(t *testing.T) {
	enc := NewEncoder()
	enc.Append(0x01, []byte("hello"))
	enc.Append(0x02, nil)
	enc.Append(0x03, []byte{1, 2, 3})
	enc.AppendEnd()

	dec := NewDecoder(enc.Bytes())

	typ, value, ok, err := dec.Next()
	if err != nil || !ok || typ != 0x01 || !bytes.Equal(value, []byte("hello")) {
		t.Fatalf("record 1 = (%#x, %v, %v, %v)", typ, value, ok, err)
	}
	typ, value, ok, err = dec.Next()
	if err != nil || !ok || typ != 0x02 || len(value) != 0 {
		t.Fatalf("record 2 = (%#x, %v, %v, %v)", typ, value, ok, err)
	}
	typ, value, ok, err = dec.Next()
	if err != nil || !ok || typ != 0x03 || !bytes.Equal(value, []byte{1, 2, 3}) {
		t.Fatalf("record 3 = (%#x, %v, %v, %v)", typ, value, ok, err)
	}
	typ, _, ok, err = dec.Next()
	if err != nil || !ok || typ != End {
		t.Fatalf("terminator = (%#x, %v, %v)", typ, ok, err)
	}

	if dec.Pos() != dec.Len() {
		t.Errorf("Pos() = %d, want Len() = %d", dec.Pos(), dec.Len())
	}
	if !dec.Done() {
		t.Error("Done() = false after consuming every record")
	}

	_, _, ok, err = dec.Next()
	if ok || err != nil {
		t.Errorf("Next() past end = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDecoderMalformedLength(t *testing.T) {
	buf := []byte{0x01, 0xff, 0xff, 0xff, 0xff} // declares 4GiB-1 value bytes
	dec := NewDecoder(buf)
	pos := dec.Pos()
	_, _, ok, err := dec.Next()
	if ok || err != ErrMalformed {
		t.Fatalf("Next() = (ok=%v, err=%v), want ErrMalformed", ok, err)
	}
	if dec.Pos() != pos {
		t.Errorf("cursor moved on malformed record: %d != %d", dec.Pos(), pos)
	}
}

func TestDecoderShortHeader(t *testing.T) {
	dec := NewDecoder([]byte{0x01, 0x00})
	_, _, ok, err := dec.Next()
	if ok || err != ErrMalformed {
		t.Fatalf("Next() on short header = (ok=%v, err=%v), want ErrMalformed", ok, err)
	}
}

func TestDecoderEmptyBuffer(t *testing.T) {
	dec := NewDecoder(nil)
	if !dec.Done() {
		t.Error("Done() on empty buffer should be true")
	}
	_, _, ok, err := dec.Next()
	if ok || err != nil {
		t.Errorf("Next() on empty buffer = (%v, %v), want (false, nil)", ok, err)
	}
}

func TestDecoderDoesNotAllocate(t *testing.T) {
	buf := []byte{0x01, 0x03, 0x00, 0x00, 0x00, 'a', 'b', 'c'}
	dec := NewDecoder(buf)
	_, value, _, _ := dec.Next()
	if &value[0] != &buf[5] {
		t.Error("decoded value does not alias the source buffer")
	}
}
