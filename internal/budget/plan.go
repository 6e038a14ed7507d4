// Package budget splits an LLM context window into reserved, fixed and
// content tokens, and packs prioritized text sections into what is left.
package budget

import (
	"cmp"
	"math/bits"
	"slices"

	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

// SectionTarget is a requested token allocation for a named section.
type SectionTarget struct {
	Key    string `json:"key" koanf:"key"`
	Tokens int    `json:"tokens" koanf:"tokens"`
}

// TargetsFromMap converts map-shaped targets into a list sorted by key, so
// the result does not depend on map iteration order.
func TargetsFromMap(m map[string]int) []SectionTarget {
	out := make([]SectionTarget, 0, len(m))
	for k, v := range m {
		out = append(out, SectionTarget{Key: k, Tokens: v})
	}
	slices.SortFunc(out, func(a, b SectionTarget) int { return cmp.Compare(a.Key, b.Key) })
	return out
}

// PlanRequest describes one context window.
type PlanRequest struct {
	MaxContextTokens       int
	ReserveForOutputTokens int
	SystemPrompt           string
	ToolDefinitions        string
	// MessageTokens is the precomputed cost of the conversation history.
	MessageTokens  int
	SectionTargets []SectionTarget
	Estimator      tokens.Estimator
}

// Allocation is the token share granted to one section.
type Allocation struct {
	Key    string `json:"key"`
	Tokens int    `json:"tokens"`
}

// Plan is the outcome of PlanTokenBudget.
type Plan struct {
	TotalTokens               int          `json:"totalTokens"`
	ReservedTokens            int          `json:"reservedTokens"`
	AvailableTokens           int          `json:"availableTokens"`
	FixedOverheadTokens       int          `json:"fixedOverheadTokens"`
	RemainingForContentTokens int          `json:"remainingForContentTokens"`
	SectionAllocations        []Allocation `json:"sectionAllocations,omitempty"`
	UnusedTokens              int          `json:"unusedTokens"`
}

// Allocation returns the tokens allocated to key.
func (p Plan) Allocation(key string) (int, bool) {
	for _, a := range p.SectionAllocations {
		if a.Key == key {
			return a.Tokens, true
		}
	}
	return 0, false
}

// PlanTokenBudget computes the reserved, overhead and content shares of the
// context window and splits the content share across section targets.
//
// Targets that fit are granted exactly. Otherwise every target is scaled by
// remaining/sum and floored, and leftover tokens go one at a time to the
// largest fractional remainders; ties go to the earlier target in input
// order, then to the lexicographically smaller key.
func PlanTokenBudget(req PlanRequest) Plan {
	est := tokens.Or(req.Estimator)
	total := max(0, req.MaxContextTokens)
	reserved := min(total, max(0, req.ReserveForOutputTokens))
	available := total - reserved
	overhead := tokens.Count(est, req.SystemPrompt) +
		tokens.Count(est, req.ToolDefinitions) +
		max(0, req.MessageTokens)
	remaining := max(0, available-overhead)

	plan := Plan{
		TotalTokens:               total,
		ReservedTokens:            reserved,
		AvailableTokens:           available,
		FixedOverheadTokens:       overhead,
		RemainingForContentTokens: remaining,
		UnusedTokens:              remaining,
	}
	if len(req.SectionTargets) == 0 {
		return plan
	}
	plan.SectionAllocations, plan.UnusedTokens = allocate(req.SectionTargets, remaining)
	return plan
}

func allocate(targets []SectionTarget, remaining int) ([]Allocation, int) {
	out := make([]Allocation, len(targets))
	var sum uint64
	for i, t := range targets {
		out[i] = Allocation{Key: t.Key, Tokens: max(0, t.Tokens)}
		sum += uint64(out[i].Tokens)
	}
	if sum <= uint64(remaining) {
		return out, remaining - int(sum)
	}

	// Exact integer scaling: share = want*remaining/sum with remainder rem.
	rems := make([]uint64, len(out))
	given := 0
	for i := range out {
		hi, lo := bits.Mul64(uint64(out[i].Tokens), uint64(remaining))
		q, r := bits.Div64(hi, lo, sum)
		out[i].Tokens = int(q)
		rems[i] = r
		given += int(q)
	}

	order := make([]int, len(out))
	for i := range order {
		order[i] = i
	}
	slices.SortFunc(order, func(a, b int) int {
		if c := cmp.Compare(rems[b], rems[a]); c != 0 {
			return c
		}
		if c := cmp.Compare(a, b); c != 0 {
			return c
		}
		return cmp.Compare(out[a].Key, out[b].Key)
	})
	for i, left := 0, remaining-given; left > 0 && i < len(order); i, left = i+1, left-1 {
		out[order[i]].Tokens++
	}
	return out, 0
}
