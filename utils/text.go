package utils

import (
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

var titleFolder = cases.Fold()

var punctuationVariants = strings.NewReplacer(
	"׳", "'", // hebrew geresh
	"״", `"`, // hebrew gershayim
	"‘", "'",
	"’", "'",
	"`", "'",
	"“", `"`,
	"”", `"`,
	"‐", " ",
	"–", " ",
	"—", " ",
	"−", " ",
	"-", " ",
	"_", " ",
)

// NormalizeTitle maps a vehicle title/trim string to its canonical id.
// The same physical trim must always produce the same id, since the id is
// the join key into the title statistics table.
func NormalizeTitle(s string) string {
	s = norm.NFKC.String(s)
	s = punctuationVariants.Replace(s)
	s = titleFolder.String(s)
	return CollapseSpace(s)
}

// CollapseSpace trims s and collapses internal whitespace runs to one space.
func CollapseSpace(s string) string {
	return strings.Join(strings.FieldsFunc(s, unicode.IsSpace), " ")
}

// FoldDigits rewrites every Unicode decimal digit in s as its ASCII form.
func FoldDigits(s string) string {
	s = norm.NFKC.String(s)
	var b strings.Builder
	b.Grow(len(s))
	for _, r := range s {
		if r > unicode.MaxASCII && unicode.IsDigit(r) {
			b.WriteByte(byte('0' + digitValue(r)))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

// digitValue relies on Unicode allocating decimal digits in contiguous
// runs of ten starting at zero.
func digitValue(r rune) int {
	start := r
	for unicode.IsDigit(start - 1) {
		start--
	}
	return int(r-start) % 10
}
