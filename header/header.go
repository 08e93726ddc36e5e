// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package header models the typed fields carried in the v3 plaintext
// body's header block (PWSfileV3::WriteHeader/ReadHeader), encoded as a
// run of TLV records terminated by the 0xff sentinel.
package header

import (
	"errors"
	"sort"

	"github.com/google/uuid"

	"github.com/lumimaja/lumi3/internal/byteutil"
	"github.com/lumimaja/lumi3/internal/tlv"
)

// Field type identifiers, as laid out in the format's header table.
const (
	TypeVersion        byte = 0x00
	TypeUUID           byte = 0x01
	TypePrefs          byte = 0x02
	TypeDisplayStatus  byte = 0x03
	TypeLastSaveTime   byte = 0x04
	TypeLastSaveApp    byte = 0x06
	TypeLastSaveUser   byte = 0x07
	TypeLastSaveHost   byte = 0x08
	TypeDBName         byte = 0x09
	TypeDBDesc         byte = 0x0a
	TypeFilters        byte = 0x0b
	TypeRecentlyUsed   byte = 0x0f
	TypeNamedPolicies  byte = 0x10
	TypeEmptyGroup     byte = 0x11
	TypeYubiSK         byte = 0x12
	TypeEnd            byte = tlv.End
)

// CurrentMajor/CurrentMinor are the version numbers this package writes
// and the major version it requires on read; a minor version mismatch is
// assumed backward-compatible, matching the original core's comment that
// "minor version changes will be backward-compatible".
const (
	CurrentMajor byte = 0x03
	CurrentMinor byte = 0x0e

	maxRUE          = 255
	maxPolicyName   = 255
	maxPolicySymbol = 255
	yubiSKLen       = 20
)

var (
	ErrMalformedField     = errors.New("header: malformed field")
	ErrUnsupportedVersion = errors.New("header: unsupported major version")
	ErrMissingEnd         = errors.New("header: missing terminator")
)

// UnknownField is a header field of a type this package does not
// interpret. It is kept verbatim, in the order it was read, and
// re-emitted unchanged on the next write (spec invariant I6).
type UnknownField struct {
	Type  byte
	Value []byte
}

// NamedPolicy is one entry of the NAMED_POLICIES header field: a named,
// reusable password generation policy with per-class minimum lengths in
// addition to the plain flags/length/symbols a policy.Policy carries.
type NamedPolicy struct {
	Flags     uint16
	Length    uint16
	LowerMin  uint16
	UpperMin  uint16
	DigitMin  uint16
	SymbolMin uint16
	Symbols   string
}

// Record holds every header field the engine understands, plus the
// UnknownFields pass-through list for everything it doesn't.
type Record struct {
	VersionMinor byte
	VersionMajor byte

	UUID uuid.UUID

	Prefs         string
	DisplayStatus string
	LastSaveTime  int64
	LastSaveApp   string
	LastSaveUser  string
	LastSaveHost  string
	DBName        string
	DBDesc        string
	Filters       string

	RecentlyUsed  []uuid.UUID
	NamedPolicies map[string]NamedPolicy
	EmptyGroups   []string
	YubiSK        *[yubiSKLen]byte

	Unknown []UnknownField
}

// New returns a Record with the current format version and a fresh
// random UUID, ready to be filled in by a caller before a write.
func New(rnd interface{ Fill([]byte) }) *Record {
	r := &Record{VersionMajor: CurrentMajor, VersionMinor: CurrentMinor}
	var raw [16]byte
	rnd.Fill(raw[:])
	u, _ := uuid.FromBytes(raw[:])
	r.UUID = u
	return r
}

// Encode appends every field to enc in the same order PWSfileV3::
// WriteHeader does, followed by the unknown-field pass-through list,
// the optional YubiKey secret, and finally the END sentinel.
func (r *Record) Encode(enc *tlv.Encoder) {
	enc.Append(TypeVersion, []byte{r.VersionMinor, r.VersionMajor})
	enc.Append(TypeUUID, r.UUID[:])
	enc.Append(TypePrefs, []byte(r.Prefs))

	if r.DisplayStatus != "" {
		enc.Append(TypeDisplayStatus, []byte(r.DisplayStatus))
	}

	var t [8]byte
	byteutil.PutUint64(t[:], uint64(r.LastSaveTime))
	enc.Append(TypeLastSaveTime, t[:])

	enc.Append(TypeLastSaveUser, []byte(r.LastSaveUser))
	enc.Append(TypeLastSaveHost, []byte(r.LastSaveHost))
	enc.Append(TypeLastSaveApp, []byte(r.LastSaveApp))

	if r.DBName != "" {
		enc.Append(TypeDBName, []byte(r.DBName))
	}
	if r.DBDesc != "" {
		enc.Append(TypeDBDesc, []byte(r.DBDesc))
	}
	if r.Filters != "" {
		enc.Append(TypeFilters, []byte(r.Filters))
	}
	if len(r.RecentlyUsed) > 0 {
		enc.Append(TypeRecentlyUsed, encodeRUE(r.RecentlyUsed))
	}
	if len(r.NamedPolicies) > 0 {
		enc.Append(TypeNamedPolicies, encodeNamedPolicies(r.NamedPolicies))
	}
	for _, group := range r.EmptyGroups {
		enc.Append(TypeEmptyGroup, []byte(group))
	}
	for _, uf := range r.Unknown {
		enc.Append(uf.Type, uf.Value)
	}
	if r.YubiSK != nil {
		enc.Append(TypeYubiSK, r.YubiSK[:])
	}
	enc.AppendEnd()
}

// Decode reads fields from dec until the END sentinel, returning the
// populated Record. Any malformed outer TLV record aborts decoding and
// propagates the decoder's error (the caller, engine, maps this onto
// its own typed error before returning it to its own caller).
func Decode(dec *tlv.Decoder) (*Record, error) {
	r := &Record{}
	for {
		typ, value, ok, err := dec.Next()
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, ErrMissingEnd
		}
		switch typ {
		case TypeVersion:
			if len(value) != 2 {
				return nil, ErrMalformedField
			}
			r.VersionMinor, r.VersionMajor = value[0], value[1]
			if r.VersionMajor != CurrentMajor {
				return nil, ErrUnsupportedVersion
			}
		case TypeUUID:
			if len(value) != 16 {
				return nil, ErrMalformedField
			}
			u, err := uuid.FromBytes(value)
			if err != nil {
				return nil, ErrMalformedField
			}
			r.UUID = u
		case TypePrefs:
			r.Prefs = string(value)
		case TypeDisplayStatus:
			r.DisplayStatus = string(value)
		case TypeLastSaveTime:
			if len(value) != 8 {
				return nil, ErrMalformedField
			}
			r.LastSaveTime = int64(byteutil.Uint64(value))
		case TypeLastSaveApp:
			r.LastSaveApp = string(value)
		case TypeLastSaveUser:
			r.LastSaveUser = string(value)
		case TypeLastSaveHost:
			r.LastSaveHost = string(value)
		case TypeDBName:
			r.DBName = string(value)
		case TypeDBDesc:
			r.DBDesc = string(value)
		case TypeFilters:
			// XML filters are opaque to the core; no parse is attempted here
			// (the XML filter parser is an external collaborator).
			r.Filters = string(value)
		case TypeRecentlyUsed:
			r.RecentlyUsed = decodeRUE(value)
		case TypeNamedPolicies:
			r.NamedPolicies = decodeNamedPolicies(value)
		case TypeEmptyGroup:
			r.EmptyGroups = append(r.EmptyGroups, string(value))
		case TypeYubiSK:
			if len(value) != yubiSKLen {
				return nil, ErrMalformedField
			}
			var sk [yubiSKLen]byte
			copy(sk[:], value)
			r.YubiSK = &sk
		case TypeEnd:
			return r, nil
		default:
			r.Unknown = append(r.Unknown, UnknownField{
				Type:  typ,
				Value: append([]byte(nil), value...),
			})
		}
	}
}

func encodeRUE(list []uuid.UUID) []byte {
	n := len(list)
	if n > maxRUE {
		n = maxRUE
	}
	buf := make([]byte, 1+n*16)
	buf[0] = byte(n)
	for i := 0; i < n; i++ {
		copy(buf[1+i*16:1+(i+1)*16], list[i][:])
	}
	return buf
}

func decodeRUE(value []byte) []uuid.UUID {
	if len(value) == 0 {
		return nil
	}
	num := int(value[0])
	if len(value) != 1+num*16 {
		// PWSfileV3::ReadHeader silently drops a malformed RUE field
		// rather than failing the whole header read.
		return nil
	}
	out := make([]uuid.UUID, 0, num)
	for i := 0; i < num; i++ {
		var u uuid.UUID
		copy(u[:], value[1+i*16:1+(i+1)*16])
		if u != uuid.Nil {
			out = append(out, u)
		}
	}
	return out
}

func encodeNamedPolicies(m map[string]NamedPolicy) []byte {
	names := make([]string, 0, len(m))
	for name := range m {
		if len(name) > maxPolicyName {
			continue
		}
		names = append(names, name)
	}
	sort.Strings(names)
	if len(names) > 255 {
		names = names[:255]
	}

	buf := []byte{byte(len(names))}
	for _, name := range names {
		p := m[name]
		buf = append(buf, byte(len(name)))
		buf = append(buf, name...)

		var fixed [12]byte
		byteutil.PutUint16BE(fixed[0:2], p.Flags)
		byteutil.PutUint16BE(fixed[2:4], p.Length)
		byteutil.PutUint16BE(fixed[4:6], p.LowerMin)
		byteutil.PutUint16BE(fixed[6:8], p.UpperMin)
		byteutil.PutUint16BE(fixed[8:10], p.DigitMin)
		byteutil.PutUint16BE(fixed[10:12], p.SymbolMin)
		buf = append(buf, fixed[:]...)

		symbols := p.Symbols
		if len(symbols) > maxPolicySymbol {
			symbols = symbols[:maxPolicySymbol]
		}
		buf = append(buf, byte(len(symbols)))
		buf = append(buf, symbols...)
	}
	return buf
}

// decodeNamedPolicies mirrors PWSfileV3::ReadHeader's HDR_PSWDPOLICIES
// case: it stops parsing (keeping whatever it already decoded) the
// moment the data runs short, rather than failing the header read.
func decodeNamedPolicies(value []byte) map[string]NamedPolicy {
	const minLen = 1 + 1 + 1 + 12 + 1 // count + name-len + 1-char name + fixed fields + symbol-len
	if len(value) < minLen {
		return nil
	}
	num := int(value[0])
	pos := 1
	m := make(map[string]NamedPolicy, num)

	for i := 0; i < num; i++ {
		if pos+1 > len(value) {
			break
		}
		nameLen := int(value[pos])
		pos++
		if pos+nameLen > len(value) {
			break
		}
		name := string(value[pos : pos+nameLen])
		pos += nameLen

		if pos+12 > len(value) {
			break
		}
		var p NamedPolicy
		p.Flags = byteutil.Uint16BE(value[pos : pos+2])
		p.Length = byteutil.Uint16BE(value[pos+2 : pos+4])
		p.LowerMin = byteutil.Uint16BE(value[pos+4 : pos+6])
		p.UpperMin = byteutil.Uint16BE(value[pos+6 : pos+8])
		p.DigitMin = byteutil.Uint16BE(value[pos+8 : pos+10])
		p.SymbolMin = byteutil.Uint16BE(value[pos+10 : pos+12])
		pos += 12

		if pos+1 > len(value) {
			break
		}
		symLen := int(value[pos])
		pos++
		if symLen > 0 {
			if pos+symLen > len(value) {
				break
			}
			p.Symbols = string(value[pos : pos+symLen])
			pos += symLen
		}

		if _, dup := m[name]; dup {
			break
		}
		m[name] = p
	}
	return m
}
