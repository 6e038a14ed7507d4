package dlp

import (
	"strings"
)

func digitsOf(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	for i := 0; i < len(s); i++ {
		if s[i] >= '0' && s[i] <= '9' {
			b.WriteByte(s[i])
		}
	}
	return b.String()
}

func allSame(s string) bool {
	for i := 1; i < len(s); i++ {
		if s[i] != s[0] {
			return false
		}
	}
	return true
}

// luhn reports whether a digit string passes the mod-10 checksum.
func luhn(digits string) bool {
	sum := 0
	double := false
	for i := len(digits) - 1; i >= 0; i-- {
		d := int(digits[i] - '0')
		if double {
			d *= 2
			if d > 9 {
				d -= 9
			}
		}
		sum += d
		double = !double
	}
	return sum%10 == 0
}

func prefixIn(digits string, n, lo, hi int) bool {
	if len(digits) < n {
		return false
	}
	v := 0
	for i := 0; i < n; i++ {
		v = v*10 + int(digits[i]-'0')
	}
	return v >= lo && v <= hi
}

// knownIssuer reports whether the length and prefix match a major card network.
func knownIssuer(d string) bool {
	n := len(d)
	switch {
	case d[0] == '4': // Visa
		return n == 13 || n == 16
	case prefixIn(d, 2, 51, 55), prefixIn(d, 4, 2221, 2720): // Mastercard
		return n == 16
	case prefixIn(d, 2, 34, 34), prefixIn(d, 2, 37, 37): // Amex
		return n == 15
	case prefixIn(d, 4, 6011, 6011), prefixIn(d, 2, 65, 65),
		prefixIn(d, 3, 644, 649), prefixIn(d, 6, 622126, 622925): // Discover
		return n == 16
	case prefixIn(d, 4, 3528, 3589): // JCB
		return n == 16
	case prefixIn(d, 3, 300, 305), prefixIn(d, 2, 36, 36),
		prefixIn(d, 2, 38, 39): // Diners Club
		return n == 14 || n == 16
	}
	return false
}

func validCard(candidate string) bool {
	d := digitsOf(candidate)
	if len(d) < 13 || len(d) > 16 || allSame(d) {
		return false
	}
	return knownIssuer(d) && luhn(d)
}

// validSSN rejects numbers never issued: area 000, 666 or 9xx, group 00,
// serial 0000.
func validSSN(candidate string) bool {
	d := digitsOf(candidate)
	if len(d) != 9 {
		return false
	}
	area, group, serial := d[:3], d[3:5], d[5:]
	if area == "000" || area == "666" || area[0] == '9' {
		return false
	}
	return group != "00" && serial != "0000"
}

// ibanMod97 reports whether a normalized IBAN passes ISO 7064 mod-97-10.
func ibanMod97(s string) bool {
	if len(s) < 5 {
		return false
	}
	rearranged := s[4:] + s[:4]
	rem := 0
	for i := 0; i < len(rearranged); i++ {
		c := rearranged[i]
		switch {
		case c >= '0' && c <= '9':
			rem = (rem*10 + int(c-'0')) % 97
		case c >= 'A' && c <= 'Z':
			rem = (rem*100 + int(c-'A') + 10) % 97
		default:
			return false
		}
	}
	return rem == 1
}

// ibanSpan finds the longest prefix of an IBAN candidate, between 15 and 34
// significant characters, that passes mod-97. It returns the byte length of
// that prefix in the original candidate.
func ibanSpan(candidate string) (int, bool) {
	var norm []byte
	var ends []int // ends[i] is the byte offset just past significant char i
	for i := 0; i < len(candidate); i++ {
		c := candidate[i]
		if c == ' ' {
			continue
		}
		if c >= 'a' && c <= 'z' {
			c -= 'a' - 'A'
		}
		norm = append(norm, c)
		ends = append(ends, i+1)
	}
	for n := min(34, len(norm)); n >= 15; n-- {
		if ibanMod97(string(norm[:n])) {
			return ends[n-1], true
		}
	}
	return 0, false
}
