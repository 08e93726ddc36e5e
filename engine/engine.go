// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package engine implements the v3 file's open/close/read/write lifecycle:
// plaintext preamble, KDF verification, the two AEAD frames (size, then
// body), and the atomic temp-file-then-rename commit protocol. It is the
// Go analogue of PWSfileV3's Open/Close/ReadRecord/WriteRecord.
package engine

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/lumimaja/lumi3/entry"
	"github.com/lumimaja/lumi3/header"
	"github.com/lumimaja/lumi3/internal/byteutil"
	"github.com/lumimaja/lumi3/internal/kdf"
	"github.com/lumimaja/lumi3/internal/rng"
	"github.com/lumimaja/lumi3/internal/tlv"
	"github.com/lumimaja/lumi3/internal/trace"
)

// ErrKind is the flat, exhaustive set of error categories an Engine
// operation can fail with.
type ErrKind int

const (
	CantOpen ErrKind = iota
	Truncated
	NotOurFile
	Unsupported
	WrongPassword
	KDFError
	CryptoError
	Malformed
	IOError
)

func (k ErrKind) String() string {
	switch k {
	case CantOpen:
		return "cant-open"
	case Truncated:
		return "truncated"
	case NotOurFile:
		return "not-our-file"
	case Unsupported:
		return "unsupported"
	case WrongPassword:
		return "wrong-password"
	case KDFError:
		return "kdf-error"
	case CryptoError:
		return "crypto-error"
	case Malformed:
		return "malformed"
	case IOError:
		return "io-error"
	default:
		return "unknown"
	}
}

// Error is the typed error returned at the engine boundary. The
// underlying cause is always available via errors.Unwrap.
type Error struct {
	Kind ErrKind
	Err  error
}

func (e *Error) Error() string {
	if e.Err == nil {
		return fmt.Sprintf("engine: %s", e.Kind)
	}
	return fmt.Sprintf("engine: %s: %v", e.Kind, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

func newErr(kind ErrKind, err error) *Error {
	return &Error{Kind: kind, Err: err}
}

// Params are the Argon2 parameters used to derive the key for a newly
// written file.
type Params struct {
	Variant  kdf.Variant
	TCost    uint32
	MCostKiB uint32
	Lanes    uint32
}

// DefaultParams returns conservative interactive-use parameters.
func DefaultParams() Params {
	return Params{
		Variant:  kdf.VariantArgon2id,
		TCost:    8,
		MCostKiB: 1 << 20, // 1 GiB
		Lanes:    4,
	}
}

type state int

const (
	stateIdle state = iota
	stateReading
	stateWriting
	stateFailed
)

const (
	sizeFrameLen = 8 + kdf.Overhead // plaintext u64 + AEAD tag
	tempSuffix   = ".tmp"
)

// Engine is one file's open/read-or-write/close lifecycle, modeled as a
// single reusable instance rather than a one-shot value: calling one of
// the Open methods while already open first closes the prior state, and
// Close is safe to call repeatedly.
type Engine struct {
	rnd   *rng.Source
	state state

	path     string
	tempPath string
	tempFile *os.File

	preamble *kdf.Preamble
	secrets  *kdf.DerivedSecrets

	hdr *header.Record
	dec *tlv.Decoder // read mode: cursor over the plaintext body, past the header

	entriesEnc *tlv.Encoder // write mode: accumulated entry TLV stream
}

// New returns an idle Engine backed by rnd.
func New(rnd *rng.Source) *Engine {
	return &Engine{rnd: rnd, state: stateIdle}
}

// Header returns the currently loaded or pending header record.
func (e *Engine) Header() *header.Record {
	return e.hdr
}

// SetHeader replaces the pending header record. Only meaningful before
// Close in write mode.
func (e *Engine) SetHeader(h *header.Record) {
	e.hdr = h
}

func readExact(f *os.File, n int64) ([]byte, error) {
	buf := make([]byte, n)
	if _, err := io.ReadFull(f, buf); err != nil {
		return nil, err
	}
	return buf, nil
}

// OpenRead opens path read-only: it parses the preamble, verifies
// passphrase via the stored HPtag, decrypts the size frame and then the
// body, and parses the header up to its terminator. The cursor is left
// at the first entry record; ReadRecord drains them one at a time.
func (e *Engine) OpenRead(path string, passphrase []byte) error {
	if e.state != stateIdle {
		e.Close()
	}

	f, err := os.Open(path)
	if err != nil {
		return newErr(CantOpen, err)
	}
	defer f.Close()

	preambleBuf, err := readExact(f, kdf.PreambleSize)
	if err != nil {
		return newErr(Truncated, err)
	}
	p, err := kdf.UnmarshalPreamble(preambleBuf)
	if err != nil {
		if errors.Is(err, kdf.ErrUnsupported) {
			return newErr(Unsupported, err)
		}
		return newErr(NotOurFile, err)
	}

	secrets, err := kdf.Verify(passphrase, p)
	if err != nil {
		switch {
		case errors.Is(err, kdf.ErrWrongPassword):
			return newErr(WrongPassword, err)
		default:
			return newErr(KDFError, err)
		}
	}

	sizeCipher, err := readExact(f, sizeFrameLen)
	if err != nil {
		secrets.Release()
		return newErr(Truncated, err)
	}
	sizePlain, err := kdf.Open(secrets.Key(), secrets.Nonce0(), sizeCipher)
	if err != nil {
		secrets.Release()
		return newErr(CryptoError, err)
	}
	if len(sizePlain) != 8 {
		secrets.Release()
		return newErr(Malformed, errors.New("engine: malformed size frame"))
	}
	bodyLen := int64(byteutil.Uint64(sizePlain))

	bodyCipher, err := readExact(f, bodyLen+kdf.Overhead)
	if err != nil {
		secrets.Release()
		return newErr(Truncated, err)
	}
	nonce1 := kdf.IncrementNonce(secrets.Nonce0())
	bodyPlain, err := kdf.Open(secrets.Key(), nonce1, bodyCipher)
	if err != nil {
		secrets.Release()
		return newErr(CryptoError, err)
	}

	dec := tlv.NewDecoder(bodyPlain)
	hdr, err := header.Decode(dec)
	if err != nil {
		secrets.Release()
		switch {
		case errors.Is(err, header.ErrUnsupportedVersion):
			return newErr(Unsupported, err)
		case errors.Is(err, tlv.ErrMalformed), errors.Is(err, header.ErrMalformedField), errors.Is(err, header.ErrMissingEnd):
			return newErr(Malformed, err)
		default:
			return newErr(Malformed, err)
		}
	}

	e.path = path
	e.preamble = p
	e.secrets = secrets
	e.hdr = hdr
	e.dec = dec
	e.state = stateReading
	return nil
}

// OpenWrite prepares a new file at path: it creates a sibling temp file,
// mints a fresh salt and derives a key from it under params, and sets up
// a fresh default header (UUID, version) that the caller may overwrite
// with SetHeader before Close.
func (e *Engine) OpenWrite(path string, passphrase []byte, params Params) error {
	if e.state != stateIdle {
		e.Close()
	}

	dir := filepath.Dir(path)
	base := filepath.Base(path)
	tempPath := filepath.Join(dir, base+"."+e.rnd.RandAZ(8)+tempSuffix)

	tempFile, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		return newErr(IOError, err)
	}

	p := &kdf.Preamble{
		Magic:    kdf.Magic,
		KDFVariant: params.Variant,
		AEAD:     kdf.AEADChaCha20Poly1305,
		Hash:     kdf.HashBLAKE2b,
		TCost:    kdf.ClampTCost(params.TCost),
		MCostKiB: kdf.ClampMCostKiB(params.MCostKiB),
		Lanes:    kdf.ClampLanes(params.Lanes),
	}
	e.rnd.Fill(p.Salt[:])

	secrets, err := kdf.Derive(passphrase, p)
	if err != nil {
		tempFile.Close()
		os.Remove(tempPath)
		return newErr(KDFError, err)
	}

	e.path = path
	e.tempPath = tempPath
	e.tempFile = tempFile
	e.preamble = p
	e.secrets = secrets
	e.hdr = header.New(e.rnd)
	e.entriesEnc = tlv.NewEncoder()
	e.state = stateWriting
	return nil
}

// ReadRecord drains the next entry from the body, returning (nil, nil)
// once no more remain. Only valid while Reading.
func (e *Engine) ReadRecord() (*entry.Entry, error) {
	if e.state != stateReading {
		return nil, errors.New("engine: ReadRecord called outside read mode")
	}
	ent, err := entry.Read(e.dec)
	if err != nil {
		e.state = stateFailed
		switch {
		case errors.Is(err, tlv.ErrMalformed), errors.Is(err, entry.ErrTruncated):
			return nil, newErr(Malformed, err)
		default:
			return nil, newErr(Malformed, err)
		}
	}
	return ent, nil
}

// WriteRecord appends one entry's TLV fields to the pending body. Only
// valid while Writing.
func (e *Engine) WriteRecord(fields []entry.Field) error {
	if e.state != stateWriting {
		return errors.New("engine: WriteRecord called outside write mode")
	}
	entry.Write(e.entriesEnc, fields)
	return nil
}

// Close seals and commits a pending write, or releases read-mode
// resources; it is idempotent and safe to call from Idle. CloseSync is
// an alias kept for symmetry with the source API: both fsync before
// rename on every write-mode close, there is no separate buffered mode.
func (e *Engine) Close() error {
	return e.close()
}

// CloseSync is the explicit flushing variant of Close (see Close).
func (e *Engine) CloseSync() error {
	return e.close()
}

func (e *Engine) close() error {
	switch e.state {
	case stateIdle:
		return nil
	case stateReading, stateFailed:
		e.secrets.Release()
		e.secrets = nil
		e.preamble = nil
		e.dec = nil
		e.state = stateIdle
		return nil
	case stateWriting:
		return e.closeWrite()
	default:
		return nil
	}
}

func (e *Engine) closeWrite() error {
	defer func() {
		e.secrets.Release()
		e.secrets = nil
		e.preamble = nil
		e.entriesEnc = nil
		e.tempFile = nil
		e.state = stateIdle
	}()

	hdrEnc := tlv.NewEncoder()
	e.hdr.Encode(hdrEnc)
	body := append(hdrEnc.Bytes(), e.entriesEnc.Bytes()...)

	var lenBuf [8]byte
	byteutil.PutUint64(lenBuf[:], uint64(len(body)))

	sizeCipher, err := kdf.Seal(e.secrets.Key(), e.secrets.Nonce0(), lenBuf[:])
	if err != nil {
		e.tempFile.Close()
		return newErr(CryptoError, err)
	}
	nonce1 := kdf.IncrementNonce(e.secrets.Nonce0())
	bodyCipher, err := kdf.Seal(e.secrets.Key(), nonce1, body)
	if err != nil {
		e.tempFile.Close()
		return newErr(CryptoError, err)
	}

	if _, err := e.tempFile.Write(e.preamble.Marshal()); err != nil {
		e.tempFile.Close()
		return newErr(IOError, err)
	}
	if _, err := e.tempFile.Write(sizeCipher); err != nil {
		e.tempFile.Close()
		return newErr(IOError, err)
	}
	if _, err := e.tempFile.Write(bodyCipher); err != nil {
		e.tempFile.Close()
		return newErr(IOError, err)
	}
	if err := e.tempFile.Sync(); err != nil {
		e.tempFile.Close()
		return newErr(IOError, err)
	}
	if err := e.tempFile.Close(); err != nil {
		return newErr(IOError, err)
	}

	if err := os.Rename(e.tempPath, e.path); err != nil {
		trace.Printf("rename %s -> %s failed, keeping temp file: %v", e.tempPath, e.path, err)
		return newErr(IOError, err)
	}
	return nil
}
