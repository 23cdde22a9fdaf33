package parser

import (
	"strings"

	"golang.org/x/text/unicode/norm"
)

// cleanText puts extracted text into NFC so that decomposed Cyrillic
// (и + combining breve) compares equal to its precomposed form, and drops
// NUL and soft-hyphen characters some producers emit.
func cleanText(s string) string {
	if s == "" {
		return s
	}
	s = strings.Map(func(r rune) rune {
		switch r {
		case 0, '\u00ad':
			return -1
		}
		return r
	}, s)
	return norm.NFC.String(s)
}
