package budget

import (
	"slices"
	"strings"

	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

// TrimSuffix marks a section whose text was cut to fit.
const TrimSuffix = "\n...[truncated]"

// Section is a named block of prompt text. Higher priorities pack first.
type Section struct {
	Key      string `json:"key"`
	Text     string `json:"text"`
	Priority int    `json:"priority"`
}

// SectionReport records what packing did to one section.
type SectionReport struct {
	Key            string `json:"key"`
	Priority       int    `json:"priority"`
	OriginalTokens int    `json:"originalTokens"`
	PackedTokens   int    `json:"packedTokens"`
	Trimmed        bool   `json:"trimmed"`
	Dropped        bool   `json:"dropped"`
}

// PackSections fits sections into maxTokens. See PackSectionsWithReport.
func PackSections(sections []Section, maxTokens int, est tokens.Estimator) []Section {
	packed, _ := PackSectionsWithReport(sections, maxTokens, est)
	return packed
}

// PackSectionsWithReport orders sections by descending priority (stable),
// then keeps each whole if it fits, trims it to the remaining budget if it
// does not, and drops everything once the budget is spent. Reports follow
// the packing order and include dropped sections.
func PackSectionsWithReport(sections []Section, maxTokens int, est tokens.Estimator) ([]Section, []SectionReport) {
	est = tokens.Or(est)
	ordered := slices.Clone(sections)
	slices.SortStableFunc(ordered, func(a, b Section) int { return b.Priority - a.Priority })

	remaining := max(0, maxTokens)
	packed := make([]Section, 0, len(ordered))
	costs := make([]int, 0, len(ordered))
	from := make([]int, 0, len(ordered))
	reports := make([]SectionReport, len(ordered))
	for i, s := range ordered {
		cost := tokens.Count(est, s.Text)
		reports[i] = SectionReport{Key: s.Key, Priority: s.Priority, OriginalTokens: cost}
		if remaining == 0 || s.Text == "" {
			reports[i].Dropped = true
			continue
		}
		if cost > remaining {
			s.Text, cost = tokens.Truncate(est, s.Text, remaining, TrimSuffix)
			reports[i].Trimmed = true
			if s.Text == "" {
				reports[i].Dropped = true
				continue
			}
		}
		reports[i].PackedTokens = cost
		remaining -= cost
		packed = append(packed, s)
		costs = append(costs, cost)
		from = append(from, i)
	}

	// Clamp against estimators that disagree with themselves.
	used := 0
	for _, c := range costs {
		used += c
	}
	for len(packed) > 0 && used > maxTokens {
		last := len(packed) - 1
		used -= costs[last]
		reports[from[last]].Dropped = true
		reports[from[last]].PackedTokens = 0
		packed, costs, from = packed[:last], costs[:last], from[:last]
	}
	return packed, reports
}

// Render joins sections as "## key" blocks separated by blank lines.
func Render(sections []Section) string {
	var b strings.Builder
	for i, s := range sections {
		if i > 0 {
			b.WriteString("\n\n")
		}
		b.WriteString("## ")
		b.WriteString(s.Key)
		b.WriteString("\n")
		b.WriteString(s.Text)
	}
	return b.String()
}

// HeaderTokens estimates what Render adds around the given keys.
func HeaderTokens(keys []string, est tokens.Estimator) int {
	n := 0
	for i, k := range keys {
		h := "## " + k + "\n"
		if i > 0 {
			h = "\n\n" + h
		}
		n += tokens.Count(est, h)
	}
	return n
}
