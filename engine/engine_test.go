// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package engine

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/lumimaja/lumi3/entry"
	"github.com/lumimaja/lumi3/internal/kdf"
	"github.com/lumimaja/lumi3/internal/rng"
)

func testParams() Params {
	return Params{Variant: kdf.VariantArgon2id, TCost: 1, MCostKiB: 65536, Lanes: 1}
}

// TestRoundTripS1 is scenario S1: write a database with one entry, close,
// reopen, and read the same entry back; the temp file must not survive a
// successful close.
func TestRoundTripS1(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.lumi3")
	passphrase := []byte("correct horse battery staple")
	fields := []entry.Field{
		{Type: 0x03, Value: []byte("title")},
		{Type: 0x04, Value: []byte("user")},
		{Type: 0x06, Value: []byte("secret")},
	}

	w := New(rng.New())
	if err := w.OpenWrite(path, passphrase, testParams()); err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := w.WriteRecord(fields); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	matches, _ := filepath.Glob(filepath.Join(filepath.Dir(path), "*.tmp"))
	if len(matches) != 0 {
		t.Errorf("temp file(s) left behind after successful close: %v", matches)
	}

	r := New(rng.New())
	if err := r.OpenRead(path, passphrase); err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer r.Close()

	got, err := r.ReadRecord()
	if err != nil {
		t.Fatalf("ReadRecord: %v", err)
	}
	if got == nil {
		t.Fatal("ReadRecord returned no entry")
	}
	if len(got.Fields) != len(fields) {
		t.Fatalf("got %d fields, want %d", len(got.Fields), len(fields))
	}
	for i, f := range fields {
		if got.Fields[i].Type != f.Type || string(got.Fields[i].Value) != string(f.Value) {
			t.Errorf("field %d = %+v, want %+v", i, got.Fields[i], f)
		}
	}

	end, err := r.ReadRecord()
	if err != nil || end != nil {
		t.Fatalf("ReadRecord at end = (%v, %v), want (nil, nil)", end, err)
	}
}

// TestWrongPassphraseS2 is scenario S2.
func TestWrongPassphraseS2(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.lumi3")
	w := New(rng.New())
	if err := w.OpenWrite(path, []byte("correct horse battery staple"), testParams()); err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := New(rng.New())
	err := r.OpenRead(path, []byte("Tr0ub4dor&3"))
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != WrongPassword {
		t.Fatalf("OpenRead(wrong passphrase) = %v, want WrongPassword", err)
	}
}

// TestCorruptionS3 is scenario S3: flip one bit in the body ciphertext.
func TestCorruptionS3(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.lumi3")
	passphrase := []byte("correct horse battery staple")

	w := New(rng.New())
	if err := w.OpenWrite(path, passphrase, testParams()); err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := w.WriteRecord([]entry.Field{{Type: 0x03, Value: []byte("title")}}); err != nil {
		t.Fatalf("WriteRecord: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data[len(data)-1] ^= 0x01 // corrupt the last byte of the body's AEAD tag
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	r := New(rng.New())
	err = r.OpenRead(path, passphrase)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != CryptoError {
		t.Fatalf("OpenRead(corrupted) = %v, want CryptoError", err)
	}
}

// TestTruncationS4 is scenario S4: truncate to preamble length + 5.
func TestTruncationS4(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.lumi3")
	passphrase := []byte("correct horse battery staple")

	w := New(rng.New())
	if err := w.OpenWrite(path, passphrase, testParams()); err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	if err := os.Truncate(path, kdf.PreambleSize+5); err != nil {
		t.Fatalf("Truncate: %v", err)
	}

	r := New(rng.New())
	err := r.OpenRead(path, passphrase)
	var ee *Error
	if !errors.As(err, &ee) || ee.Kind != Truncated {
		t.Fatalf("OpenRead(truncated) = %v, want Truncated", err)
	}
}

// TestTwoWritesDifferSaltsAndCiphertexts is invariant 8.
func TestTwoWritesDifferSaltsAndCiphertexts(t *testing.T) {
	dir := t.TempDir()
	path1 := filepath.Join(dir, "a.lumi3")
	path2 := filepath.Join(dir, "b.lumi3")
	passphrase := []byte("same passphrase")

	for _, p := range []string{path1, path2} {
		w := New(rng.New())
		if err := w.OpenWrite(p, passphrase, testParams()); err != nil {
			t.Fatalf("OpenWrite(%s): %v", p, err)
		}
		if err := w.WriteRecord([]entry.Field{{Type: 0x03, Value: []byte("title")}}); err != nil {
			t.Fatalf("WriteRecord(%s): %v", p, err)
		}
		if err := w.Close(); err != nil {
			t.Fatalf("Close(%s): %v", p, err)
		}
	}

	data1, err := os.ReadFile(path1)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	data2, err := os.ReadFile(path2)
	if err != nil {
		t.Fatalf("ReadFile: %v", err)
	}
	if string(data1) == string(data2) {
		t.Error("two independent writes of equivalent content produced identical files")
	}
	// The salt occupies preamble bytes [7:39).
	if string(data1[7:39]) == string(data2[7:39]) {
		t.Error("two independent writes reused the same salt")
	}
}

func TestHeaderPreservedAcrossRoundTrip(t *testing.T) {
	path := filepath.Join(t.TempDir(), "vault.lumi3")
	passphrase := []byte("hunter2")

	w := New(rng.New())
	if err := w.OpenWrite(path, passphrase, testParams()); err != nil {
		t.Fatalf("OpenWrite: %v", err)
	}
	w.Header().DBName = "My Vault"
	w.Header().DBDesc = "test database"
	if err := w.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	r := New(rng.New())
	if err := r.OpenRead(path, passphrase); err != nil {
		t.Fatalf("OpenRead: %v", err)
	}
	defer r.Close()

	if r.Header().DBName != "My Vault" || r.Header().DBDesc != "test database" {
		t.Errorf("header = %+v, want DBName/DBDesc preserved", r.Header())
	}
}

func TestCloseIsIdempotent(t *testing.T) {
	e := New(rng.New())
	if err := e.Close(); err != nil {
		t.Errorf("Close on idle engine: %v", err)
	}
	if err := e.Close(); err != nil {
		t.Errorf("second Close on idle engine: %v", err)
	}
}
