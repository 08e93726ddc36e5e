// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package entry

import (
	"reflect"
	"testing"

	"github.com/lumimaja/lumi3/internal/tlv"
)

func TestWriteReadRoundTrip(t *testing.T) {
	fields := []Field{
		{Type: 0x03, Value: []byte("title")},
		{Type: 0x04, Value: []byte("user")},
		{Type: 0x06, Value: []byte("s3cr3t")},
	}

	enc := tlv.NewEncoder()
	Write(enc, fields)

	dec := tlv.NewDecoder(enc.Bytes())
	got, err := Read(dec)
	if err != nil {
		t.Fatalf("Read: %v", err)
	}
	if !reflect.DeepEqual(got.Fields, fields) {
		t.Errorf("Fields = %+v, want %+v", got.Fields, fields)
	}
	if !dec.Done() {
		t.Error("decoder should be exhausted after one entry")
	}
}

func TestReadMultipleEntriesPreservesOrder(t *testing.T) {
	enc := tlv.NewEncoder()
	Write(enc, []Field{{Type: 0x03, Value: []byte("first")}})
	Write(enc, []Field{{Type: 0x03, Value: []byte("second")}})

	dec := tlv.NewDecoder(enc.Bytes())

	e1, err := Read(dec)
	if err != nil || e1 == nil {
		t.Fatalf("Read #1: entry=%v err=%v", e1, err)
	}
	if string(e1.Fields[0].Value) != "first" {
		t.Errorf("entry #1 = %q, want %q", e1.Fields[0].Value, "first")
	}

	e2, err := Read(dec)
	if err != nil || e2 == nil {
		t.Fatalf("Read #2: entry=%v err=%v", e2, err)
	}
	if string(e2.Fields[0].Value) != "second" {
		t.Errorf("entry #2 = %q, want %q", e2.Fields[0].Value, "second")
	}

	e3, err := Read(dec)
	if err != nil || e3 != nil {
		t.Fatalf("Read #3 (no more) = (%v, %v), want (nil, nil)", e3, err)
	}
}

func TestReadTruncatedEntry(t *testing.T) {
	enc := tlv.NewEncoder()
	enc.Append(0x03, []byte("title")) // no terminator
	dec := tlv.NewDecoder(enc.Bytes())
	_, err := Read(dec)
	if err != ErrTruncated {
		t.Fatalf("Read = %v, want ErrTruncated", err)
	}
}

func TestReadEmptyBody(t *testing.T) {
	dec := tlv.NewDecoder(nil)
	e, err := Read(dec)
	if e != nil || err != nil {
		t.Fatalf("Read(empty) = (%v, %v), want (nil, nil)", e, err)
	}
}
