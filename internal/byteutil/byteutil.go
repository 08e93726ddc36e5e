// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package byteutil provides little-endian packing helpers and secure
// memory handling for key material and passphrases.
package byteutil

import "runtime"

// PutUint16 writes v to b[0:2] little-endian. b must have length >= 2.
func PutUint16(b []byte, v uint16) {
	_ = b[1]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
}

// Uint16 reads a little-endian uint16 from b[0:2].
func Uint16(b []byte) uint16 {
	_ = b[1]
	return uint16(b[0]) | uint16(b[1])<<8
}

// PutUint32 writes v to b[0:4] little-endian. b must have length >= 4.
func PutUint32(b []byte, v uint32) {
	_ = b[3]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
}

// Uint32 reads a little-endian uint32 from b[0:4].
func Uint32(b []byte) uint32 {
	_ = b[3]
	return uint32(b[0]) | uint32(b[1])<<8 | uint32(b[2])<<16 | uint32(b[3])<<24
}

// PutUint64 writes v to b[0:8] little-endian. b must have length >= 8.
func PutUint64(b []byte, v uint64) {
	_ = b[7]
	b[0] = byte(v)
	b[1] = byte(v >> 8)
	b[2] = byte(v >> 16)
	b[3] = byte(v >> 24)
	b[4] = byte(v >> 32)
	b[5] = byte(v >> 40)
	b[6] = byte(v >> 48)
	b[7] = byte(v >> 56)
}

// Uint64 reads a little-endian uint64 from b[0:8].
func Uint64(b []byte) uint64 {
	_ = b[7]
	return uint64(b[0]) | uint64(b[1])<<8 | uint64(b[2])<<16 | uint64(b[3])<<24 |
		uint64(b[4])<<32 | uint64(b[5])<<40 | uint64(b[6])<<48 | uint64(b[7])<<56
}

// PutUint16BE writes v to b[0:2] big-endian, matching the named-policies
// header field's getInt16/putInt16 helpers, which stayed big-endian while
// the rest of the v3 format moved to little-endian.
func PutUint16BE(b []byte, v uint16) {
	_ = b[1]
	b[0] = byte(v >> 8)
	b[1] = byte(v)
}

// Uint16BE reads a big-endian uint16 from b[0:2].
func Uint16BE(b []byte) uint16 {
	_ = b[1]
	return uint16(b[0])<<8 | uint16(b[1])
}

// Zeroize overwrites buf with zeros. The runtime.KeepAlive call after the
// clearing write is a compiler barrier: without it, a sufficiently clever
// optimizer could prove the store is dead (buf is about to be freed) and
// elide it.
func Zeroize(buf []byte) {
	for i := range buf {
		buf[i] = 0
	}
	runtime.KeepAlive(buf)
}

// Secret is a scoped secret buffer: passphrase bytes, Argon2 tags, and
// derived key material all flow through one so that Release (deferred
// at the point of acquisition) zeroizes them regardless of which return
// path was taken.
type Secret struct {
	b []byte
}

// NewSecret wraps buf as a Secret. Ownership of buf transfers to the
// Secret; the caller must not retain other references to it.
func NewSecret(buf []byte) *Secret {
	return &Secret{b: buf}
}

// NewSecretLen allocates a zeroed Secret of the given length.
func NewSecretLen(n int) *Secret {
	return &Secret{b: make([]byte, n)}
}

// Bytes returns the underlying buffer. The slice is invalidated by Release.
func (s *Secret) Bytes() []byte {
	if s == nil {
		return nil
	}
	return s.b
}

// Len returns the buffer length, or 0 for a nil or released Secret.
func (s *Secret) Len() int {
	if s == nil {
		return 0
	}
	return len(s.b)
}

// Release zeroizes the underlying buffer. It is safe to call multiple
// times and on a nil Secret.
func (s *Secret) Release() {
	if s == nil || s.b == nil {
		return
	}
	Zeroize(s.b)
	s.b = nil
}
