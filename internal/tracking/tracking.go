// Package tracking extracts and validates shipment tracking numbers from
// OCR output. The OCR itself happens upstream; this package only receives
// its raw text.
package tracking

import (
	"regexp"
	"strings"
)

// A SingPost tracking number is two letters, nine digits, then "SG".
var (
	strict = regexp.MustCompile(`^[A-Z]{2}\d{9}SG$`)

	// candidate tolerates the letters OCR most often misreads for digits
	// (O→0, I→1, S→5) inside the numeric segment.
	candidate = regexp.MustCompile(`[A-Z]{2}[0-9OIS]{9}SG`)
)

var digitFixes = strings.NewReplacer("O", "0", "I", "1", "S", "5")

// Extract finds a tracking number in raw OCR text. Whitespace is stripped,
// then OCR digit misreads are corrected inside the numeric segment only, so
// the "SG" suffix survives normalization. Returns "" if nothing valid is
// found.
func Extract(text string) string {
	if text == "" {
		return ""
	}

	clean := strings.ToUpper(text)
	clean = strings.Join(strings.Fields(clean), "")

	match := candidate.FindString(clean)
	if match == "" {
		return ""
	}

	fixed := match[:2] + digitFixes.Replace(match[2:11]) + match[11:]
	if !strict.MatchString(fixed) {
		return ""
	}
	return fixed
}

// Valid reports whether s is a well-formed tracking number as typed,
// for the manual fallback path when OCR fails.
func Valid(s string) bool {
	return strict.MatchString(strings.ToUpper(strings.TrimSpace(s)))
}
