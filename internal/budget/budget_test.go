package budget

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

func TestPlanTokenBudget(t *testing.T) {
	t.Run("proportional allocation with tie-break", func(t *testing.T) {
		plan := PlanTokenBudget(PlanRequest{
			MaxContextTokens:       100,
			ReserveForOutputTokens: 20,
			SystemPrompt:           strings.Repeat("s", 64), // 16 tokens
			SectionTargets:         TargetsFromMap(map[string]int{"schema": 50, "retrieved": 50, "samples": 50}),
		})
		assert.Equal(t, 100, plan.TotalTokens)
		assert.Equal(t, 20, plan.ReservedTokens)
		assert.Equal(t, 80, plan.AvailableTokens)
		assert.Equal(t, 16, plan.FixedOverheadTokens)
		assert.Equal(t, 64, plan.RemainingForContentTokens)
		assert.Equal(t, []Allocation{
			{Key: "retrieved", Tokens: 22},
			{Key: "samples", Tokens: 21},
			{Key: "schema", Tokens: 21},
		}, plan.SectionAllocations)
		assert.Zero(t, plan.UnusedTokens)
	})

	t.Run("list input keeps caller order for ties", func(t *testing.T) {
		plan := PlanTokenBudget(PlanRequest{
			MaxContextTokens: 10,
			SectionTargets: []SectionTarget{
				{Key: "z", Tokens: 5},
				{Key: "a", Tokens: 5},
				{Key: "m", Tokens: 5},
			},
		})
		got, _ := plan.Allocation("z")
		assert.Equal(t, 4, got)
		got, _ = plan.Allocation("a")
		assert.Equal(t, 3, got)
		got, _ = plan.Allocation("m")
		assert.Equal(t, 3, got)
	})

	t.Run("larger remainder wins", func(t *testing.T) {
		plan := PlanTokenBudget(PlanRequest{
			MaxContextTokens: 10,
			SectionTargets:   []SectionTarget{{Key: "a", Tokens: 1}, {Key: "b", Tokens: 2}},
		})
		// Sum fits: allocated exactly.
		assert.Equal(t, 7, plan.UnusedTokens)

		plan = PlanTokenBudget(PlanRequest{
			MaxContextTokens: 4,
			SectionTargets:   []SectionTarget{{Key: "a", Tokens: 2}, {Key: "b", Tokens: 4}},
		})
		// 4*2/6 = 1.33, 4*4/6 = 2.67; b takes the leftover.
		assert.Equal(t, []Allocation{{Key: "a", Tokens: 1}, {Key: "b", Tokens: 3}}, plan.SectionAllocations)
	})

	t.Run("reserve larger than total", func(t *testing.T) {
		plan := PlanTokenBudget(PlanRequest{MaxContextTokens: 50, ReserveForOutputTokens: 80})
		assert.Equal(t, 50, plan.ReservedTokens)
		assert.Zero(t, plan.AvailableTokens)
		assert.Zero(t, plan.RemainingForContentTokens)
	})

	t.Run("overhead larger than available", func(t *testing.T) {
		plan := PlanTokenBudget(PlanRequest{
			MaxContextTokens: 10,
			MessageTokens:    30,
			SectionTargets:   []SectionTarget{{Key: "a", Tokens: 5}},
		})
		assert.Zero(t, plan.RemainingForContentTokens)
		assert.Equal(t, []Allocation{{Key: "a", Tokens: 0}}, plan.SectionAllocations)
	})

	t.Run("map order independence", func(t *testing.T) {
		m := map[string]int{"b": 7, "a": 7, "c": 7, "d": 7}
		first := PlanTokenBudget(PlanRequest{MaxContextTokens: 10, SectionTargets: TargetsFromMap(m)})
		for i := 0; i < 20; i++ {
			again := PlanTokenBudget(PlanRequest{MaxContextTokens: 10, SectionTargets: TargetsFromMap(m)})
			assert.Equal(t, first, again)
		}
	})
}

func TestPackSections(t *testing.T) {
	t.Run("priority order and drop", func(t *testing.T) {
		sections := []Section{
			{Key: "low", Text: strings.Repeat("l", 40), Priority: 1},
			{Key: "high", Text: strings.Repeat("h", 40), Priority: 10},
			{Key: "mid", Text: strings.Repeat("m", 40), Priority: 5},
		}
		packed, reports := PackSectionsWithReport(sections, 20, nil)
		require.Len(t, packed, 2)
		assert.Equal(t, "high", packed[0].Key)
		assert.Equal(t, "mid", packed[1].Key)

		require.Len(t, reports, 3)
		assert.Equal(t, SectionReport{Key: "high", Priority: 10, OriginalTokens: 10, PackedTokens: 10}, reports[0])
		assert.Equal(t, SectionReport{Key: "mid", Priority: 5, OriginalTokens: 10, PackedTokens: 10}, reports[1])
		assert.True(t, reports[2].Dropped)
	})

	t.Run("trims to remaining budget", func(t *testing.T) {
		sections := []Section{
			{Key: "a", Text: strings.Repeat("a", 40), Priority: 2},
			{Key: "b", Text: strings.Repeat("b", 400), Priority: 1},
		}
		packed, reports := PackSectionsWithReport(sections, 20, nil)
		require.Len(t, packed, 2)
		assert.True(t, strings.HasSuffix(packed[1].Text, TrimSuffix))
		assert.True(t, reports[1].Trimmed)
		assert.LessOrEqual(t, reports[0].PackedTokens+reports[1].PackedTokens, 20)
	})

	t.Run("stable for equal priorities", func(t *testing.T) {
		packed := PackSections([]Section{{Key: "x", Text: "1"}, {Key: "y", Text: "2"}}, 10, nil)
		assert.Equal(t, []string{"x", "y"}, []string{packed[0].Key, packed[1].Key})
	})

	t.Run("non-monotonic estimator is clamped", func(t *testing.T) {
		// Charges short strings more than long ones.
		odd := tokens.EstimatorFunc(func(s string) int {
			if len(s) < 10 {
				return 50
			}
			return 5
		})
		packed, _ := PackSectionsWithReport([]Section{
			{Key: "a", Text: strings.Repeat("a", 20), Priority: 2},
			{Key: "b", Text: "tiny", Priority: 1},
		}, 8, odd)
		total := 0
		for _, s := range packed {
			total += odd.Count(s.Text)
		}
		assert.LessOrEqual(t, total, 8)
	})

	t.Run("zero budget", func(t *testing.T) {
		packed, reports := PackSectionsWithReport([]Section{{Key: "a", Text: "x"}}, 0, nil)
		assert.Empty(t, packed)
		assert.True(t, reports[0].Dropped)
	})
}

func TestRender(t *testing.T) {
	out := Render([]Section{{Key: "schema", Text: `{"a":1}`}, {Key: "samples", Text: "[]"}})
	assert.Equal(t, "## schema\n{\"a\":1}\n\n## samples\n[]", out)
	assert.Equal(t, "", Render(nil))

	assert.Equal(t, tokens.Default().Count("## schema\n")+tokens.Default().Count("\n\n## samples\n"),
		HeaderTokens([]string{"schema", "samples"}, nil))
}
