// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package sig computes a cheap "has this file changed?" digest: BLAKE2b-256
// over the file's length plus either its whole content (small files) or
// its head and tail (large files). Because the body is AEAD-encrypted,
// any in-middle modification propagates into the tail's authentication
// tag, so head+tail hashing catches meaningful changes in O(1) time
// regardless of file size.
package sig

import (
	"crypto/subtle"
	"io"
	"os"

	"golang.org/x/crypto/blake2b"

	"github.com/lumimaja/lumi3/internal/byteutil"
)

const (
	wholeFileMax = 2048
	chunkSize    = 1024
)

// Sig is the fixed-size BLAKE2b-256 identity digest of a file.
type Sig [blake2b.Size256]byte

// Equal compares two Sigs in constant time.
func (s Sig) Equal(other Sig) bool {
	return subtle.ConstantTimeCompare(s[:], other[:]) == 1
}

// Of computes the Sig of the file at path.
func Of(path string) (Sig, error) {
	f, err := os.Open(path)
	if err != nil {
		return Sig{}, err
	}
	defer f.Close()

	st, err := f.Stat()
	if err != nil {
		return Sig{}, err
	}
	size := st.Size()

	h, err := blake2b.New256(nil)
	if err != nil {
		return Sig{}, err
	}

	var lenBuf [8]byte
	byteutil.PutUint64(lenBuf[:], uint64(size))
	h.Write(lenBuf[:])

	if size <= wholeFileMax {
		if _, err := io.Copy(h, f); err != nil {
			return Sig{}, err
		}
	} else {
		head := make([]byte, chunkSize)
		if _, err := io.ReadFull(f, head); err != nil {
			return Sig{}, err
		}
		h.Write(head)

		tail := make([]byte, chunkSize)
		if _, err := f.ReadAt(tail, size-chunkSize); err != nil {
			return Sig{}, err
		}
		h.Write(tail)
	}

	var out Sig
	copy(out[:], h.Sum(nil))
	return out, nil
}
