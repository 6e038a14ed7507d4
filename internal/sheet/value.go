package sheet

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"
)

// Kind identifies the variant held by a Value.
type Kind uint8

const (
	KindEmpty Kind = iota
	KindNumber
	KindBoolean
	KindDate
	KindFormula
	KindText
	KindOpaque
)

// Fixed renderings for values whose content must not be exposed.
const (
	OpaqueMarker    = "[unsupported value]"
	ImageMarker     = "[image]"
	NonFiniteMarker = "[non-finite number]"
)

var kindNames = [...]string{
	KindEmpty:   "empty",
	KindNumber:  "number",
	KindBoolean: "boolean",
	KindDate:    "date",
	KindFormula: "formula",
	KindText:    "string",
	KindOpaque:  "opaque",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return "unknown"
}

// Value is a single spreadsheet cell.
type Value struct {
	kind Kind
	num  float64
	b    bool
	t    time.Time
	text string
}

// Empty returns the empty cell.
func Empty() Value { return Value{} }

// Number returns a numeric cell. Non-finite numbers become opaque.
func Number(f float64) Value {
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return Opaque(NonFiniteMarker)
	}
	return Value{kind: KindNumber, num: f}
}

// Bool returns a boolean cell.
func Bool(b bool) Value { return Value{kind: KindBoolean, b: b} }

// Date returns a date cell.
func Date(t time.Time) Value { return Value{kind: KindDate, t: t} }

// Formula returns a cell holding formula text such as "=SUM(A1:A3)".
func Formula(text string) Value { return Value{kind: KindFormula, text: text} }

// Text returns a string cell. Blank strings are empty cells.
func Text(s string) Value {
	if strings.TrimSpace(s) == "" {
		return Value{}
	}
	return Value{kind: KindText, text: s}
}

// Opaque returns a cell that always renders as marker.
func Opaque(marker string) Value { return Value{kind: KindOpaque, text: marker} }

// Kind returns the variant tag.
func (v Value) Kind() Kind { return v.kind }

// IsEmpty reports whether the cell holds nothing.
func (v Value) IsEmpty() bool { return v.kind == KindEmpty }

// Float returns the numeric payload of a number cell.
func (v Value) Float() (float64, bool) { return v.num, v.kind == KindNumber }

// Boolean returns the payload of a boolean cell.
func (v Value) Boolean() (bool, bool) { return v.b, v.kind == KindBoolean }

// Time returns the payload of a date cell.
func (v Value) Time() (time.Time, bool) { return v.t, v.kind == KindDate }

// String renders the cell. Opaque cells render as their marker.
func (v Value) String() string {
	switch v.kind {
	case KindNumber:
		return formatNumber(v.num)
	case KindBoolean:
		return strconv.FormatBool(v.b)
	case KindDate:
		if v.t.Hour() == 0 && v.t.Minute() == 0 && v.t.Second() == 0 && v.t.Nanosecond() == 0 {
			return v.t.Format("2006-01-02")
		}
		return v.t.Format(time.RFC3339)
	case KindFormula, KindText, KindOpaque:
		return v.text
	default:
		return ""
	}
}

// IsNumericText reports whether a text cell looks like a number.
func (v Value) IsNumericText() bool {
	return v.kind == KindText && IsNumericString(v.text)
}

func formatNumber(f float64) string {
	if math.Abs(f) >= 1e21 {
		return strconv.FormatFloat(f, 'g', -1, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// IsNumericString reports whether s is a plain decimal number, allowing
// surrounding whitespace, a sign, thousands separators and a trailing percent.
func IsNumericString(s string) bool {
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "%")
	if s == "" {
		return false
	}
	s = strings.ReplaceAll(s, ",", "")
	// ParseFloat accepts "NaN", "Inf", hex and underscores; none of those are
	// pure numeric strings in a spreadsheet.
	for _, r := range s {
		if !(r >= '0' && r <= '9') && r != '.' && r != '-' && r != '+' && r != 'e' && r != 'E' {
			return false
		}
	}
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

// FromAny classifies a host value. Only known shapes are inspected; anything
// else becomes an opaque marker without calling its String method.
func FromAny(x any) Value {
	switch v := x.(type) {
	case nil:
		return Empty()
	case Value:
		return v
	case string:
		if len(v) > 1 && v[0] == '=' {
			return Formula(v)
		}
		return Text(v)
	case bool:
		return Bool(v)
	case float64:
		return Number(v)
	case float32:
		return Number(float64(v))
	case int:
		return Number(float64(v))
	case int8:
		return Number(float64(v))
	case int16:
		return Number(float64(v))
	case int32:
		return Number(float64(v))
	case int64:
		return Number(float64(v))
	case uint:
		return Number(float64(v))
	case uint8:
		return Number(float64(v))
	case uint16:
		return Number(float64(v))
	case uint32:
		return Number(float64(v))
	case uint64:
		return Number(float64(v))
	case json.Number:
		f, err := v.Float64()
		if err != nil {
			return Opaque(OpaqueMarker)
		}
		return Number(f)
	case time.Time:
		return Date(v)
	case *time.Time:
		if v == nil {
			return Empty()
		}
		return Date(*v)
	case map[string]any:
		return fromObject(v)
	default:
		return Opaque(OpaqueMarker)
	}
}

// fromObject recognizes the small set of object shapes hosts use for cells.
func fromObject(m map[string]any) Value {
	if f, ok := m["formula"].(string); ok && f != "" {
		if f[0] != '=' {
			f = "=" + f
		}
		return Formula(f)
	}
	if d, ok := m["date"].(string); ok {
		for _, layout := range []string{time.RFC3339, "2006-01-02"} {
			if t, err := time.Parse(layout, d); err == nil {
				return Date(t)
			}
		}
	}
	if typ, ok := m["type"].(string); ok && strings.EqualFold(typ, "image") {
		return Opaque(ImageMarker)
	}
	return Opaque(OpaqueMarker)
}

// MarshalJSON renders the cell as a JSON scalar.
func (v Value) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindEmpty:
		return []byte("null"), nil
	case KindNumber:
		return []byte(formatNumber(v.num)), nil
	case KindBoolean:
		return json.Marshal(v.b)
	default:
		return json.Marshal(v.String())
	}
}

// UnmarshalJSON accepts JSON scalars and the object shapes known to FromAny.
func (v *Value) UnmarshalJSON(data []byte) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.UseNumber()
	var raw any
	if err := dec.Decode(&raw); err != nil {
		return err
	}
	*v = FromAny(raw)
	return nil
}
