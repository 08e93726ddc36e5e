// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

// Package pool builds the character alphabet a policy.Policy describes
// and generates passwords from it, either by uniform per-character draws
// or, for PRONOUNCEABLE policies, by a trigram-frequency random walk.
// Ported from CPasswordCharPool in PWCharPool.cpp/.h.
package pool

import (
	"errors"
	"strings"
	"unicode"

	"github.com/lumimaja/lumi3/internal/rng"
	"github.com/lumimaja/lumi3/policy"
)

const (
	lowerChars         = "abcdefghijklmnopqrstuvwxyz"
	upperChars         = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digitChars         = "0123456789"
	defaultSymbolChars = "+-=_@#$%^&;:,.<>/~\\[](){}?!|*"
)

// ErrNoClasses is returned by New when a policy selects no character
// class and isn't PRONOUNCEABLE either — there would be nothing to draw
// from.
var ErrNoClasses = errors.New("pool: policy selects no character classes")

// Strength is the result of Check.
type Strength int

const (
	TooShort Strength = iota
	Weak
	Strong
)

func (s Strength) String() string {
	switch s {
	case TooShort:
		return "too short"
	case Weak:
		return "weak"
	case Strong:
		return "strong"
	default:
		return "unknown"
	}
}

// CharPool is the alphabet and generation mode derived from a policy.
type CharPool struct {
	alphabet      string
	length        uint16
	useLower      bool
	useUpper      bool
	useDigit      bool
	pronounceable bool
	rnd           *rng.Source
}

// New builds a CharPool from p. defaultSymbols is the caller's preferred
// symbol set, consulted when the policy enables symbols but doesn't name
// any of its own (PWSprefs::DefaultSymbols in the original); pass "" to
// fall back to the built-in default set.
func New(p policy.Policy, defaultSymbols string, rnd *rng.Source) (*CharPool, error) {
	cp := &CharPool{
		length:        p.Length,
		useLower:      p.Flags&policy.UseLower != 0,
		useUpper:      p.Flags&policy.UseUpper != 0,
		useDigit:      p.Flags&policy.UseDigit != 0,
		pronounceable: p.Flags&policy.Pronounceable != 0,
		rnd:           rnd,
	}
	useSymbol := p.Flags&policy.UseSymbol != 0

	if !cp.useLower && !cp.useUpper && !cp.useDigit && !useSymbol && !cp.pronounceable {
		return nil, ErrNoClasses
	}

	var sb strings.Builder
	if cp.useLower {
		sb.WriteString(lowerChars)
	}
	if cp.useUpper {
		sb.WriteString(upperChars)
	}
	if cp.useDigit {
		sb.WriteString(digitChars)
	}
	if useSymbol {
		switch {
		case p.Symbols != "":
			sb.WriteString(p.Symbols)
		case defaultSymbols != "":
			sb.WriteString(defaultSymbols)
		default:
			sb.WriteString(defaultSymbolChars)
		}
	}
	cp.alphabet = sb.String()
	if cp.alphabet == "" && !cp.pronounceable {
		return nil, ErrNoClasses
	}
	return cp, nil
}

func (cp *CharPool) randomChar() byte {
	r := cp.rnd.Range(uint32(len(cp.alphabet)))
	return cp.alphabet[r]
}

func isAsciiAlpha(c byte) bool {
	return ('a' <= c && c <= 'z') || ('A' <= c && c <= 'Z')
}

func isAsciiDigit(c byte) bool {
	return '0' <= c && c <= '9'
}

// MakePassword generates one password following the policy this pool was
// built from.
func (cp *CharPool) MakePassword() string {
	if cp.pronounceable {
		return cp.makePronounceable()
	}

	for {
		buf := make([]byte, cp.length)
		hasAlpha := !cp.useLower && !cp.useUpper
		hasDigit := !cp.useDigit
		for i := range buf {
			c := cp.randomChar()
			buf[i] = c
			if isAsciiAlpha(c) {
				hasAlpha = true
			}
			if isAsciiDigit(c) {
				hasDigit = true
			}
		}
		if cp.length <= 4 || (hasAlpha && hasDigit) {
			return string(buf)
		}
	}
}

// makePronounceable runs the trigram-frequency random walk: draw a
// weighted seed trigram, then extend one letter at a time by drawing
// from the conditional distribution over the last two letters, until the
// requested length is reached or no continuation has positive frequency.
func (cp *CharPool) makePronounceable() string {
	password := make([]byte, cp.length)

	ranno := int64(cp.rnd.Range(uint32(sigma)))
	var sum int64
	var c1, c2, c3 int
outer:
	for c1 = 0; c1 < 26; c1++ {
		for c2 = 0; c2 < 26; c2++ {
			for c3 = 0; c3 < 26; c3++ {
				sum += int64(tris[c1][c2][c3])
				if sum > ranno {
					break outer
				}
			}
		}
	}
	if cp.length >= 1 {
		password[0] = 'a' + byte(c1)
	}
	if cp.length >= 2 {
		password[1] = 'a' + byte(c2)
	}
	if cp.length >= 3 {
		password[2] = 'a' + byte(c3)
	}

	nchar := 3
	if int(cp.length) < nchar {
		nchar = int(cp.length)
	}
	for nchar < int(cp.length) {
		c1 = int(password[nchar-2] - 'a')
		c2 = int(password[nchar-1] - 'a')
		var sumfreq int64
		for c3 = 0; c3 < 26; c3++ {
			sumfreq += int64(tris[c1][c2][c3])
		}
		if sumfreq == 0 {
			break
		}
		ranno = int64(cp.rnd.Range(uint32(sumfreq)))
		sum = 0
		for c3 = 0; c3 < 26; c3++ {
			sum += int64(tris[c1][c2][c3])
			if sum > ranno {
				password[nchar] = 'a' + byte(c3)
				nchar++
				break
			}
		}
	}
	password = password[:nchar]

	switch {
	case cp.useLower && !cp.useUpper:
		// already all-lowercase
	case !cp.useLower && cp.useUpper:
		for i, c := range password {
			if isAsciiAlpha(c) {
				password[i] = c - ('a' - 'A')
			}
		}
	case cp.useLower && cp.useUpper:
		for i, c := range password {
			if isAsciiAlpha(c) && cp.rnd.Range(2) == 1 {
				password[i] = c - ('a' - 'A')
			}
		}
	}

	return string(password)
}

// Check reports the strength of pw: Strong if at least 12 characters,
// TooShort under 8, and otherwise Strong only if it has at least one
// uppercase, one lowercase letter, and one digit-or-other character
// (CPasswordCharPool::CheckPassword/CheckPasswordClasses).
func Check(pw string) Strength {
	if len(pw) >= 12 {
		return Strong
	}
	if len(pw) < 8 {
		return TooShort
	}
	if hasClasses(pw) {
		return Strong
	}
	return Weak
}

func hasClasses(pw string) bool {
	var hasUpper, hasLower, hasDigit, hasOther bool
	for _, r := range pw {
		switch {
		case unicode.IsLower(r):
			hasLower = true
		case unicode.IsUpper(r):
			hasUpper = true
		case unicode.IsDigit(r):
			hasDigit = true
		default:
			hasOther = true
		}
	}
	return hasUpper && hasLower && (hasDigit || hasOther)
}
