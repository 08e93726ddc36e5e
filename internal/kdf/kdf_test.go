// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package kdf

import (
	"bytes"
	"errors"
	"testing"
)

func testPreamble(t *testing.T) *Preamble {
	t.Helper()
	p := &Preamble{
		Magic:      Magic,
		KDFVariant: VariantArgon2id,
		AEAD:       AEADChaCha20Poly1305,
		Hash:       HashBLAKE2b,
		TCost:      1,
		MCostKiB:   minMCost,
		Lanes:      1,
	}
	copy(p.Salt[:], bytes.Repeat([]byte{0x42}, SaltLen))
	return p
}

func TestDeriveThenVerify(t *testing.T) {
	p := testPreamble(t)
	passphrase := []byte("correct horse battery staple")

	secrets, err := Derive(passphrase, p)
	if err != nil {
		t.Fatalf("Derive: %v", err)
	}
	defer secrets.Release()

	got, err := Verify(passphrase, p)
	if err != nil {
		t.Fatalf("Verify: %v", err)
	}
	defer got.Release()

	if !bytes.Equal(secrets.Key(), got.Key()) || !bytes.Equal(secrets.Nonce0(), got.Nonce0()) {
		t.Error("Verify derived different secrets than Derive for the same inputs")
	}
}

func TestVerifyWrongPassword(t *testing.T) {
	p := testPreamble(t)
	if _, err := Derive([]byte("correct horse battery staple"), p); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	_, err := Verify([]byte("Tr0ub4dor&3"), p)
	if !errors.Is(err, ErrWrongPassword) {
		t.Fatalf("Verify(wrong) = %v, want ErrWrongPassword", err)
	}
}

func TestPreambleMarshalRoundTrip(t *testing.T) {
	p := testPreamble(t)
	if _, err := Derive([]byte("x"), p); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	b := p.Marshal()
	if len(b) != PreambleSize {
		t.Fatalf("Marshal length = %d, want %d", len(b), PreambleSize)
	}
	got, err := UnmarshalPreamble(b)
	if err != nil {
		t.Fatalf("UnmarshalPreamble: %v", err)
	}
	if *got != *p {
		t.Error("UnmarshalPreamble(Marshal(p)) != p")
	}
}

func TestUnmarshalRejectsUnsupportedVariant(t *testing.T) {
	p := testPreamble(t)
	if _, err := Derive([]byte("x"), p); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	b := p.Marshal()
	b[4] = 0x7f // unknown kdf_variant
	_, err := UnmarshalPreamble(b)
	if !errors.Is(err, ErrUnsupported) {
		t.Fatalf("UnmarshalPreamble(bad variant) = %v, want ErrUnsupported", err)
	}
}

func TestUnmarshalRejectsBadMagic(t *testing.T) {
	p := testPreamble(t)
	if _, err := Derive([]byte("x"), p); err != nil {
		t.Fatalf("Derive: %v", err)
	}
	b := p.Marshal()
	b[0] = 'X'
	if _, err := UnmarshalPreamble(b); err == nil {
		t.Fatal("UnmarshalPreamble accepted bad magic")
	}
}

func TestSealOpenRoundTrip(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, KeyLen)
	nonce := bytes.Repeat([]byte{0x22}, NonceLen)
	plaintext := []byte("the quick brown fox")

	ct, err := Seal(key, nonce, plaintext)
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	pt, err := Open(key, nonce, ct)
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	if !bytes.Equal(pt, plaintext) {
		t.Errorf("Open(Seal(pt)) = %q, want %q", pt, plaintext)
	}
}

func TestOpenRejectsTamperedCiphertext(t *testing.T) {
	key := bytes.Repeat([]byte{0x11}, KeyLen)
	nonce := bytes.Repeat([]byte{0x22}, NonceLen)
	ct, err := Seal(key, nonce, []byte("the quick brown fox"))
	if err != nil {
		t.Fatalf("Seal: %v", err)
	}
	ct[0] ^= 0x01
	if _, err := Open(key, nonce, ct); !errors.Is(err, ErrCrypto) {
		t.Fatalf("Open(tampered) = %v, want ErrCrypto", err)
	}
}

func TestIncrementNonceWrapsOnlyFirstByte(t *testing.T) {
	nonce := make([]byte, NonceLen)
	nonce[0] = 0xff
	nonce[1] = 0x01
	got := IncrementNonce(nonce)
	if got[0] != 0x00 {
		t.Errorf("IncrementNonce first byte = %#x, want wraparound to 0x00", got[0])
	}
	if got[1] != 0x01 {
		t.Errorf("IncrementNonce must not carry into byte 1, got %#x", got[1])
	}
	// Original must be untouched.
	if nonce[0] != 0xff {
		t.Error("IncrementNonce mutated its input")
	}
}

func TestClamps(t *testing.T) {
	if ClampTCost(0) != minTCost {
		t.Errorf("ClampTCost(0) = %d, want %d", ClampTCost(0), minTCost)
	}
	if ClampTCost(10000) != maxTCost {
		t.Errorf("ClampTCost(10000) = %d, want %d", ClampTCost(10000), maxTCost)
	}
	if ClampMCostKiB(0) != minMCost {
		t.Errorf("ClampMCostKiB(0) = %d, want %d", ClampMCostKiB(0), minMCost)
	}
	if ClampLanes(0) != MinLanes {
		t.Errorf("ClampLanes(0) = %d, want %d", ClampLanes(0), MinLanes)
	}
	if ClampLanes(1000) != MaxLanes {
		t.Errorf("ClampLanes(1000) = %d, want %d", ClampLanes(1000), MaxLanes)
	}
}
