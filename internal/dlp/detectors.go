package dlp

import (
	"regexp"
)

// span is a validated finding in a text.
type span struct {
	start, end int
	kind       Kind
	rule       string
}

// detector pairs a candidate pattern with a validator. The validator may
// shorten the match; it returns the accepted [start, end) or false. A
// detector with split instead returns every accepted span inside a match.
type detector struct {
	kind     Kind
	rule     string
	pattern  *regexp.Regexp
	validate func(text string, start, end int) (int, int, bool)
	split    func(text string, start, end int) [][2]int
}

var (
	emailPattern = regexp.MustCompile(`[A-Za-z0-9._%+\-]+@[A-Za-z0-9\-]+(?:\.[A-Za-z0-9\-]+)*\.[A-Za-z]{2,}`)
	ssnPattern   = regexp.MustCompile(`\b\d{3}-\d{2}-\d{4}\b`)
	cardPattern  = regexp.MustCompile(`\b\d(?:[ \-]?\d){12,}\b`)
	intlPhone    = regexp.MustCompile(`\+\d[\d ().\-]{8,24}\d`)
	usPhone      = regexp.MustCompile(`(?:\+?1[ .\-]?)?(?:\(\d{3}\)[ .\-]?|\d{3}[ .\-])\d{3}[ .\-]\d{4}(?:[ ]*(?:ext\.?|x|#)[ ]*\d{1,6})?`)

	// Upper and lower case forms are matched separately so a candidate does
	// not run on into the following lower case words.
	ibanPattern = regexp.MustCompile(`\b(?:[A-Z]{2}[0-9]{2}(?: ?[A-Z0-9]){11,32}|[a-z]{2}[0-9]{2}(?: ?[a-z0-9]){11,32})`)

	// BEGIN ... END blocks, or an unterminated header followed by key material.
	privateKeyPattern = regexp.MustCompile(`-----BEGIN (?:[A-Z0-9]+ )*PRIVATE KEY(?: BLOCK)?-----(?:[\s\S]*?-----END (?:[A-Z0-9]+ )*PRIVATE KEY(?: BLOCK)?-----|[A-Za-z0-9+/=\s]*)`)
)

func isDigit(c byte) bool { return c >= '0' && c <= '9' }

func isWordByte(c byte) bool {
	return isDigit(c) || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z' || c == '_'
}

func accept(_ string, start, end int) (int, int, bool) { return start, end, true }

// splitCards returns the valid card numbers inside a run of digit groups.
// Candidates start and end on group boundaries, so a card that follows an
// unrelated number in the same run is still found. The longest valid
// candidate from the earliest group wins.
func splitCards(text string, start, end int) [][2]int {
	var groups [][2]int
	for i := start; i < end; {
		j := i
		for j < end && isDigit(text[j]) {
			j++
		}
		groups = append(groups, [2]int{i, j})
		i = j + 1
	}

	var out [][2]int
	for g := 0; g < len(groups); {
		best, digits := -1, 0
		for h := g; h < len(groups); h++ {
			digits += groups[h][1] - groups[h][0]
			if digits > 16 {
				break
			}
			if digits >= 13 && validCard(text[groups[g][0]:groups[h][1]]) {
				best = h
			}
		}
		if best < 0 {
			g++
			continue
		}
		out = append(out, [2]int{groups[g][0], groups[best][1]})
		g = best + 1
	}
	return out
}

func validateSSN(text string, start, end int) (int, int, bool) {
	return start, end, validSSN(text[start:end])
}

func validateIBAN(text string, start, end int) (int, int, bool) {
	n, ok := ibanSpan(text[start:end])
	if !ok {
		return 0, 0, false
	}
	return start, start + n, true
}

// validateIntlPhone requires the "+" to start the text or follow whitespace
// or punctuation, never a formula's leading "=", and 10 to 15 digits. Extra
// trailing groups are dropped until the digit count fits.
func validateIntlPhone(text string, start, end int) (int, int, bool) {
	if start > 0 {
		prev := text[start-1]
		if isWordByte(prev) || prev == ']' || prev == '+' || (prev == '=' && start == 1) {
			return 0, 0, false
		}
	}
	if end < len(text) && isDigit(text[end]) {
		return 0, 0, false
	}
	for {
		n := len(digitsOf(text[start:end]))
		if n >= 10 && n <= 15 {
			return start, end, true
		}
		if n < 10 {
			return 0, 0, false
		}
		// Cut back to the previous separator that follows a digit.
		cut := -1
		for i := end - 1; i > start+1; i-- {
			if !isDigit(text[i]) && isDigit(text[i-1]) {
				cut = i
				break
			}
		}
		if cut < 0 {
			return 0, 0, false
		}
		end = cut
		for end > start && !isDigit(text[end-1]) {
			end--
		}
	}
}

// validateUSPhone requires a clean left boundary and 10 digits, or 11 with a
// leading country code 1, ignoring any extension.
func validateUSPhone(text string, start, end int) (int, int, bool) {
	if start > 0 {
		prev := text[start-1]
		if isWordByte(prev) || prev == '+' || prev == ']' || prev == '-' || prev == '.' {
			return 0, 0, false
		}
	}
	if end < len(text) && (isDigit(text[end]) || (text[end] == '-' && end+1 < len(text) && isDigit(text[end+1]))) {
		return 0, 0, false
	}
	number := text[start:end]
	if loc := extPattern.FindStringIndex(number); loc != nil {
		number = number[:loc[0]]
	}
	d := digitsOf(number)
	switch {
	case len(d) == 10:
	case len(d) == 11 && d[0] == '1':
	default:
		return 0, 0, false
	}
	return start, end, true
}

var extPattern = regexp.MustCompile(`[ ]*(?:ext\.?|x|#)[ ]*\d{1,6}$`)

func builtinDetectors() []detector {
	return []detector{
		{kind: KindPrivateKey, rule: "private-key", pattern: privateKeyPattern, validate: accept},
		{kind: KindEmail, rule: "email", pattern: emailPattern, validate: accept},
		{kind: KindSSN, rule: "ssn", pattern: ssnPattern, validate: validateSSN},
		{kind: KindCreditCard, rule: "credit-card", pattern: cardPattern, split: splitCards},
		{kind: KindIBAN, rule: "iban", pattern: ibanPattern, validate: validateIBAN},
		{kind: KindPhone, rule: "phone-international", pattern: intlPhone, validate: validateIntlPhone},
		{kind: KindPhone, rule: "phone-us", pattern: usPhone, validate: validateUSPhone},
	}
}
