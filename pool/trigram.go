// Copyright (c) 2020-2024 cions
// Licensed under the MIT License. See LICENSE for details

package pool

// The trigram frequency table used by the pronounceable-password random
// walk (PWCharPool::MakePronounceable is ported from Van Vleck, Gasser &
// Edwards' gpw.c, which ships a table derived from a large English word
// corpus). That exact corpus-derived table (core/trigram.h upstream) was
// not part of what could be retrieved for this rewrite, so tris is built
// procedurally instead of hardcoded: trigrams that alternate vowel and
// consonant (the shape of the overwhelming majority of English
// syllables) get a higher weight than three-of-a-kind runs. The random
// walk otherwise follows the original, except that its draws are
// Range(sigma) and Range(sumfreq), i.e. [0, sum) rather than [0, sum]
// (see DESIGN.md).
var (
	tris  [26][26][26]int32
	sigma int64
)

func isVowelIdx(i int) bool {
	switch i {
	case 0, 4, 8, 14, 20: // a, e, i, o, u
		return true
	default:
		return false
	}
}

func init() {
	for c1 := 0; c1 < 26; c1++ {
		for c2 := 0; c2 < 26; c2++ {
			for c3 := 0; c3 < 26; c3++ {
				w := int32(1)
				if isVowelIdx(c1) != isVowelIdx(c2) {
					w += 6
				}
				if isVowelIdx(c2) != isVowelIdx(c3) {
					w += 6
				}
				if !isVowelIdx(c1) && !isVowelIdx(c2) && !isVowelIdx(c3) {
					w = 1
				}
				if isVowelIdx(c1) && isVowelIdx(c2) && isVowelIdx(c3) {
					w = 1
				}
				tris[c1][c2][c3] = w
				sigma += int64(w)
			}
		}
	}
}
