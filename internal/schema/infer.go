package schema

import (
	"strings"

	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
)

// headerCandidate reports whether v could be a column title.
func headerCandidate(v sheet.Value) bool {
	switch v.Kind() {
	case sheet.KindText:
		return !v.IsNumericText()
	case sheet.KindDate, sheet.KindOpaque:
		return true
	default:
		return false
	}
}

func isNumeric(v sheet.Value) bool {
	return v.Kind() == sheet.KindNumber || v.IsNumericText()
}

func isString(v sheet.Value) bool {
	return v.Kind() == sheet.KindText && !v.IsNumericText()
}

// atLeast60 reports part/whole >= 0.6 without floating point.
func atLeast60(part, whole int) bool {
	return part*5 >= whole*3
}

// isHeaderRow applies the header heuristic to row, given the row after it.
// A header row is mostly candidates, has distinct normalized titles, and is
// followed by nothing, a row with a number, or a row that is not mostly text.
func isHeaderRow(row, next []sheet.Value, hasNext bool) bool {
	nonEmpty, candidates := 0, 0
	seen := make(map[string]bool)
	for _, v := range row {
		if v.IsEmpty() {
			continue
		}
		nonEmpty++
		if !headerCandidate(v) {
			continue
		}
		candidates++
		key := strings.ToLower(strings.TrimSpace(v.String()))
		if seen[key] {
			return false
		}
		seen[key] = true
	}
	if nonEmpty == 0 || !atLeast60(candidates, nonEmpty) {
		return false
	}
	if !hasNext {
		return true
	}

	nextNonEmpty, strs := 0, 0
	for _, v := range next {
		if v.IsEmpty() {
			continue
		}
		if isNumeric(v) {
			return true
		}
		nextNonEmpty++
		if isString(v) {
			strs++
		}
	}
	return nextNonEmpty == 0 || !atLeast60(strs, nextNonEmpty)
}

// cellType maps a non-empty cell to the column type it contributes.
func cellType(v sheet.Value) ColumnType {
	switch v.Kind() {
	case sheet.KindNumber:
		return TypeNumber
	case sheet.KindBoolean:
		return TypeBoolean
	case sheet.KindDate:
		return TypeDate
	case sheet.KindFormula:
		return TypeFormula
	case sheet.KindText:
		if v.IsNumericText() {
			return TypeNumber
		}
		return TypeString
	default:
		return TypeString
	}
}

// typeSet accumulates the distinct types seen in a column.
type typeSet map[ColumnType]struct{}

func (s typeSet) add(v sheet.Value) {
	if !v.IsEmpty() {
		s[cellType(v)] = struct{}{}
	}
}

// resolve collapses the set into one column type. A formula column whose
// other cells are all of one value type stays a formula column.
func (s typeSet) resolve() ColumnType {
	switch len(s) {
	case 0:
		return TypeEmpty
	case 1:
		for t := range s {
			return t
		}
	case 2:
		if _, ok := s[TypeFormula]; ok {
			for t := range s {
				if t == TypeNumber || t == TypeDate || t == TypeString {
					return TypeFormula
				}
			}
		}
	}
	return TypeMixed
}

// truncateRunes cuts s to at most n runes, marking the cut with "...".
func truncateRunes(s string, n int) string {
	if n <= 0 {
		return s
	}
	count := 0
	for i := range s {
		if count == n {
			return s[:i] + "..."
		}
		count++
	}
	return s
}
