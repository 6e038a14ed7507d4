package dlp

import (
	"regexp"
	"strings"
)

// Kind is a category of sensitive data.
type Kind string

const (
	KindEmail      Kind = "email"
	KindSSN        Kind = "ssn"
	KindCreditCard Kind = "credit_card"
	KindPhone      Kind = "phone_number"
	KindAPIKey     Kind = "api_key"
	KindIBAN       Kind = "iban"
	KindPrivateKey Kind = "private_key"
)

// Kinds lists every kind in reporting order.
var Kinds = []Kind{KindEmail, KindSSN, KindCreditCard, KindPhone, KindAPIKey, KindIBAN, KindPrivateKey}

func (k Kind) rank() int {
	for i, x := range Kinds {
		if x == k {
			return i
		}
	}
	return len(Kinds)
}

var placeholders = map[Kind]string{
	KindEmail:      "[REDACTED_EMAIL]",
	KindSSN:        "[REDACTED_SSN]",
	KindCreditCard: "[REDACTED_CREDIT_CARD]",
	KindPhone:      "[REDACTED_PHONE]",
	KindAPIKey:     "[REDACTED_API_KEY]",
	KindIBAN:       "[REDACTED_IBAN]",
	KindPrivateKey: "[REDACTED_PRIVATE_KEY]",
}

// Placeholder returns the replacement text for kind.
func Placeholder(k Kind) string {
	if p, ok := placeholders[k]; ok {
		return p
	}
	return "[REDACTED]"
}

var placeholderPattern = regexp.MustCompile(`\[REDACTED(?:_(?:EMAIL|SSN|CREDIT_CARD|PHONE|API_KEY|IBAN|PRIVATE_KEY))?\]`)

// Level is the sensitivity of a text.
type Level string

const (
	LevelPublic    Level = "public"
	LevelSensitive Level = "sensitive"
)

// Classification is the result of Classify.
type Classification struct {
	Level    Level  `json:"level"`
	Findings []Kind `json:"findings"`
}

// Public is the classification of text with no findings.
func Public() Classification {
	return Classification{Level: LevelPublic, Findings: []Kind{}}
}

// Has reports whether k was found.
func (c Classification) Has(k Kind) bool {
	for _, f := range c.Findings {
		if f == k {
			return true
		}
	}
	return false
}

// Merge returns the union of two classifications.
func (c Classification) Merge(o Classification) Classification {
	seen := make(map[Kind]bool, len(c.Findings)+len(o.Findings))
	for _, k := range c.Findings {
		seen[k] = true
	}
	for _, k := range o.Findings {
		seen[k] = true
	}
	return classificationOf(seen)
}

func classificationOf(seen map[Kind]bool) Classification {
	out := Public()
	for _, k := range Kinds {
		if seen[k] {
			out.Findings = append(out.Findings, k)
		}
	}
	if len(out.Findings) > 0 {
		out.Level = LevelSensitive
	}
	return out
}

// String renders the classification as "level" or "level: kind,kind".
func (c Classification) String() string {
	if len(c.Findings) == 0 {
		return string(c.Level)
	}
	parts := make([]string, len(c.Findings))
	for i, k := range c.Findings {
		parts[i] = string(k)
	}
	return string(c.Level) + ": " + strings.Join(parts, ",")
}
