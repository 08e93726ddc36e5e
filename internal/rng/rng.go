// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package rng wraps the OS CSPRNG with unbiased range sampling, mirroring
// PWSrand from the PasswordSafe core: RangeRand's rejection sampling
// against the unbiased ceiling, and RandAZ's alphanumeric string draw.
package rng

import (
	"crypto/rand"
	"encoding/binary"
	"fmt"
	"io"
	"os"
)

const alphabet = "abcdefghijklmnopqrstuvwxyz0123456789"

// Source is the process-wide RNG. It has no state of its own beyond what
// the OS CSPRNG holds, but is modeled as an explicit value (rather than a
// package-level singleton with hidden lifetime) so callers can pass it
// around like any other dependency. New returns the one Source there is
// any reason to construct; Close exists for symmetry with the C++ core's
// PWSrand::DeleteInstance and currently has nothing to release.
type Source struct{}

// New returns a Source backed by the OS CSPRNG.
func New() *Source {
	return &Source{}
}

// Close releases any resources held by the Source. It is a no-op today;
// kept so callers have a deterministic teardown point if that changes.
func (s *Source) Close() error {
	return nil
}

// Fill fills out with cryptographically secure random bytes. A short read
// from crypto/rand (which is backed by getrandom(2)/ /dev/urandom on the
// platforms this module targets) is retried; persistent failure is an
// unrecoverable entropy-starvation condition and aborts the process,
// matching the spec's "abort on persistent failure" requirement.
func (s *Source) Fill(out []byte) {
	if _, err := io.ReadFull(rand.Reader, out); err != nil {
		fmt.Fprintf(os.Stderr, "lumi3: fatal: random source exhausted: %v\n", err)
		os.Exit(2)
	}
}

// Uint32 returns a uniformly distributed random uint32.
func (s *Source) Uint32() uint32 {
	var b [4]byte
	s.Fill(b[:])
	return binary.LittleEndian.Uint32(b[:])
}

// Uint64 returns a uniformly distributed random uint64.
func (s *Source) Uint64() uint64 {
	var b [8]byte
	s.Fill(b[:])
	return binary.LittleEndian.Uint64(b[:])
}

// Range returns a uniformly distributed random value in [0, n). Range(0)
// is undefined (the spec leaves it unspecified) and panics; Range(1)
// always returns 0.
//
// Uses rejection sampling against the unbiased ceiling (-n) % n so that
// no value of n introduces modulo bias, exactly as PWSrand::RangeRand
// does.
func (s *Source) Range(n uint32) uint32 {
	if n == 0 {
		panic("rng: Range(0)")
	}
	if n == 1 {
		return 0
	}
	ceil := -n % n
	for {
		r := s.Uint32()
		if r >= ceil {
			return r % n
		}
	}
}

// Range64 is the 64-bit analogue of Range.
func (s *Source) Range64(n uint64) uint64 {
	if n == 0 {
		panic("rng: Range64(0)")
	}
	if n == 1 {
		return 0
	}
	ceil := -n % n
	for {
		r := s.Uint64()
		if r >= ceil {
			return r % n
		}
	}
}

// RandAZ returns a random string of length n drawn from the 36-character
// alphabet a-z0-9, one Range(36) draw per position. Used both for the
// write-temp-file suffix and anywhere else an unguessable short token is
// needed.
func (s *Source) RandAZ(n int) string {
	buf := make([]byte, n)
	for i := range buf {
		buf[i] = alphabet[s.Range(uint32(len(alphabet)))]
	}
	return string(buf)
}
