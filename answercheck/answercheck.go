// Package answercheck implements the pure answer-matching function of
// §4.7 transition 6 / §8, isolated for property testing per Design
// Note "Answer check is a pure function".
package answercheck

import (
	"strings"
	"unicode"
)

// Check reports whether got matches any of the accepted answers, using
// normalized-string equality with bracket-stripping (§1 Non-goals,
// §4.7, §8).
func Check(got string, accepted []string) bool {
	gotVariants := variants(got)
	for _, want := range accepted {
		wantVariants := variants(want)
		for _, g := range gotVariants {
			for _, w := range wantVariants {
				if g == w {
					return true
				}
			}
		}
	}
	return false
}

// variants normalizes s (lowercase, ё→е, strip non-alphanumerics) and
// returns two forms: bracketed content kept, and bracketed content
// dropped. Four cross-comparisons between a got/want pair therefore
// cover "accept iff any of the four variants match" (§4.7, §8).
func variants(s string) [2]string {
	kept := normalize(stripNonAlnum(s))
	dropped := normalize(stripNonAlnum(stripBracketed(s)))
	return [2]string{kept, dropped}
}

func normalize(s string) string {
	s = strings.ToLower(s)
	s = strings.ReplaceAll(s, "ё", "е")
	return s
}

func stripBracketed(s string) string {
	var b strings.Builder
	depth := 0
	for _, r := range s {
		switch r {
		case '(', '[', '{':
			depth++
			continue
		case ')', ']', '}':
			if depth > 0 {
				depth--
			}
			continue
		}
		if depth == 0 {
			b.WriteRune(r)
		}
	}
	return b.String()
}

func stripNonAlnum(s string) string {
	var b strings.Builder
	for _, r := range s {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}
