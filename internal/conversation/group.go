package conversation

import (
	"context"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

// UnitKind classifies a Unit.
type UnitKind int

const (
	// UnitSingle is one standalone message.
	UnitSingle UnitKind = iota
	// UnitToolGroup is an assistant tool-call message followed by the
	// tool results answering it.
	UnitToolGroup
	// UnitOrphan is a tool result whose originating call is not
	// immediately before it.
	UnitOrphan
)

func (k UnitKind) String() string {
	switch k {
	case UnitToolGroup:
		return "tool_group"
	case UnitOrphan:
		return "orphan"
	default:
		return "single"
	}
}

// Unit is a run of messages that is kept or dropped as a whole.
type Unit struct {
	Kind     UnitKind
	Messages []Message
	// Index holds the position of each message in the grouped slice.
	Index []int
}

func (u Unit) cost(est tokens.Estimator) int { return TotalTokens(est, u.Messages) }

// Group splits msgs into units. With pairing enabled, an assistant message
// with tool calls absorbs the maximal run of tool messages that follows it;
// tool messages in that run answering one of its calls join the group and
// the rest, like any tool message outside a run, become orphans. With
// pairing disabled every message is its own single unit.
//
// Group stops with an Aborted error once ctx is done.
func Group(ctx context.Context, msgs []Message, pairing bool) ([]Unit, error) {
	units := make([]Unit, 0, len(msgs))
	for i := 0; i < len(msgs); i++ {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		m := msgs[i]
		if !pairing {
			units = append(units, Unit{Kind: UnitSingle, Messages: []Message{m}, Index: []int{i}})
			continue
		}
		switch {
		case m.HasToolCalls():
			ids := m.callIDs()
			g := Unit{Kind: UnitToolGroup, Messages: []Message{m}, Index: []int{i}}
			var orphans []Unit
			j := i + 1
			for ; j < len(msgs) && msgs[j].Role == RoleTool; j++ {
				if _, ok := ids[msgs[j].ToolCallID]; ok {
					g.Messages = append(g.Messages, msgs[j])
					g.Index = append(g.Index, j)
				} else {
					orphans = append(orphans, Unit{Kind: UnitOrphan, Messages: []Message{msgs[j]}, Index: []int{j}})
				}
			}
			units = append(units, g)
			units = append(units, orphans...)
			i = j - 1
		case m.Role == RoleTool:
			units = append(units, Unit{Kind: UnitOrphan, Messages: []Message{m}, Index: []int{i}})
		default:
			units = append(units, Unit{Kind: UnitSingle, Messages: []Message{m}, Index: []int{i}})
		}
	}
	return units, nil
}
