package identity

import (
	"strconv"
	"unicode/utf16"
)

// Hash folds s into a short base-36 token. Each UTF-16 code unit c updates a
// signed 32-bit accumulator as h = h*31 + c with wrap-around; the result is
// the absolute value in base 36. The empty string hashes to "0".
func Hash(s string) string {
	if s == "" {
		return "0"
	}
	var h int32
	for _, c := range utf16.Encode([]rune(s)) {
		h = h*31 + int32(c)
	}
	// widen first so that |MinInt32| does not overflow
	v := int64(h)
	if v < 0 {
		v = -v
	}
	return strconv.FormatInt(v, 36)
}

// ValidToken reports whether tok looks like a Hash output.
func ValidToken(tok string) bool {
	if tok == "" || len(tok) > 7 {
		return false
	}
	for i := 0; i < len(tok); i++ {
		c := tok[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'z') {
			return false
		}
	}
	return true
}
