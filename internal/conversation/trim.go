package conversation

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"github.com/fyrsmithlabs/sheetctx/internal/budget"
	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

// Report section keys.
const (
	SectionSystem  = "system"
	SectionSummary = "summary"
	SectionHistory = "history"
)

// TrimOptions configures Trim.
type TrimOptions struct {
	// MaxTokens is the model context window.
	MaxTokens int `koanf:"max_tokens"`
	// ReserveForOutputTokens is held back for the reply.
	ReserveForOutputTokens int `koanf:"reserve_for_output_tokens"`
	// SummaryTokens caps the generated summary message. Zero disables the
	// summary unless nothing else of the history survives.
	SummaryTokens int `koanf:"summary_tokens"`
	// KeepLastMessages caps how many recent non-system messages are kept.
	// Zero means no cap.
	KeepLastMessages int `koanf:"keep_last_messages"`
	// DisableToolPairing treats every message as independent.
	DisableToolPairing bool `koanf:"disable_tool_pairing"`
	// DropToolGroupsFirst drops older tool-call groups before trimming
	// message content.
	DropToolGroupsFirst bool `koanf:"drop_tool_groups_first"`

	Estimator  tokens.Estimator `koanf:"-"`
	Summarizer Summarizer       `koanf:"-"`
}

// TrimReport describes what Trim did.
type TrimReport struct {
	AllowedTokens int `json:"allowedTokens"`
	TokensBefore  int `json:"tokensBefore"`
	TokensAfter   int `json:"tokensAfter"`

	Trimmed            bool `json:"trimmed"`
	SystemTrimmed      bool `json:"systemTrimmed"`
	Summarized         bool `json:"summarized"`
	SummarizedMessages int  `json:"summarizedMessages"`
	DroppedToolGroups  int  `json:"droppedToolGroups"`
	OrphanToolMessages int  `json:"orphanToolMessages"`
	TruncatedMessages  int  `json:"truncatedMessages"`

	Sections []budget.SectionReport `json:"sections"`
}

// Trim fits msgs into opts.MaxTokens minus the output reserve. See
// TrimWithReport.
func Trim(ctx context.Context, msgs []Message, opts TrimOptions) ([]Message, error) {
	out, _, err := TrimWithReport(ctx, msgs, opts)
	return out, err
}

// indexed remembers a message's position in the caller's slice.
type indexed struct {
	idx int
	msg Message
}

// TrimWithReport fits msgs into the allowed budget:
//
//  1. Histories that already fit are returned unchanged.
//  2. System messages are kept; if they alone exceed the budget the oldest
//     are truncated or dropped first.
//  3. If the remaining messages fit beside them, nothing else changes.
//  4. Otherwise messages are grouped (tool calls with their results),
//     orphaned tool results and earlier summaries are set aside for
//     summarization, and the KeepLastMessages cap is applied without
//     splitting a group.
//  5. The newest units are kept while they fit. When even the newest unit
//     does not fit its content is shrunk, filling from its last message
//     backwards.
//  6. Everything set aside is replaced by one summary message placed after
//     the system messages.
//  7. A final pass drops the oldest kept units until the total fits.
//
// The input slice is never modified.
func TrimWithReport(ctx context.Context, msgs []Message, opts TrimOptions) ([]Message, *TrimReport, error) {
	if err := cancel.Check(ctx); err != nil {
		return nil, nil, err
	}
	est := tokens.Or(opts.Estimator)
	allowed := max(0, opts.MaxTokens-max(0, opts.ReserveForOutputTokens))
	rep := &TrimReport{AllowedTokens: allowed, TokensBefore: TotalTokens(est, msgs)}

	if rep.TokensBefore <= allowed {
		out := make([]Message, len(msgs))
		for i, m := range msgs {
			out[i] = cloneMessage(m)
		}
		rep.TokensAfter = rep.TokensBefore
		return out, rep, nil
	}
	rep.Trimmed = true

	var system, rest []indexed
	for i, m := range msgs {
		if m.Role == RoleSystem && !m.IsSummary() {
			system = append(system, indexed{i, cloneMessage(m)})
		} else {
			rest = append(rest, indexed{i, cloneMessage(m)})
		}
	}
	sysBefore := totalIndexed(est, system)
	system, sysTokens := trimSystem(est, system, allowed)
	rep.SystemTrimmed = sysTokens < sysBefore
	rep.Sections = append(rep.Sections, sectionReport(SectionSystem, 3, sysBefore, sysTokens))
	restBudget := allowed - sysTokens

	restTokens := totalIndexed(est, rest)
	if restTokens <= restBudget {
		merged := append(slices.Clone(system), rest...)
		slices.SortFunc(merged, func(a, b indexed) int { return a.idx - b.idx })
		out := unwrap(merged)
		rep.Sections = append(rep.Sections, sectionReport(SectionHistory, 2, restTokens, restTokens))
		rep.TokensAfter = TotalTokens(est, out)
		return out, rep, nil
	}

	var aside []indexed
	var convo []Message
	var convoIdx []int
	for _, im := range rest {
		if im.msg.IsSummary() {
			aside = append(aside, im)
			continue
		}
		convo = append(convo, im.msg)
		convoIdx = append(convoIdx, im.idx)
	}
	setAside := func(u Unit) {
		for k, m := range u.Messages {
			aside = append(aside, indexed{convoIdx[u.Index[k]], m})
		}
	}

	units, err := Group(ctx, convo, !opts.DisableToolPairing)
	if err != nil {
		return nil, nil, err
	}
	var kept []Unit
	for _, u := range units {
		if u.Kind == UnitOrphan {
			rep.OrphanToolMessages++
			setAside(u)
			continue
		}
		kept = append(kept, u)
	}

	if limit := opts.KeepLastMessages; limit > 0 {
		cut, count := len(kept), 0
		for cut > 0 && count < limit {
			if err := cancel.Check(ctx); err != nil {
				return nil, nil, err
			}
			count += len(kept[cut-1].Messages)
			cut--
		}
		for _, u := range kept[:cut] {
			setAside(u)
		}
		kept = kept[cut:]
	}

	tailBudget := restBudget
	if opts.SummaryTokens > 0 && (len(aside) > 0 || unitsCost(est, kept) > restBudget) {
		tailBudget -= min(opts.SummaryTokens, restBudget)
	}

	if opts.DropToolGroupsFirst {
		for unitsCost(est, kept) > tailBudget {
			if err := cancel.Check(ctx); err != nil {
				return nil, nil, err
			}
			i := slices.IndexFunc(kept[:max(0, len(kept)-1)], func(u Unit) bool { return u.Kind == UnitToolGroup })
			if i < 0 {
				break
			}
			setAside(kept[i])
			kept = slices.Delete(kept, i, i+1)
			rep.DroppedToolGroups++
		}
	}

	used, start := 0, len(kept)
	for i := len(kept) - 1; i >= 0; i-- {
		if err := cancel.Check(ctx); err != nil {
			return nil, nil, err
		}
		c := kept[i].cost(est)
		if used+c <= tailBudget {
			used += c
			start = i
			continue
		}
		if i == len(kept)-1 {
			if shrunk, n, ok := shrinkUnit(est, kept[i], tailBudget-used); ok {
				kept[i] = shrunk
				used += n
				start = i
				rep.TruncatedMessages++
				continue
			}
		}
		break
	}
	for _, u := range kept[:start] {
		setAside(u)
	}
	tail := kept[start:]
	rep.Sections = append(rep.Sections, sectionReport(SectionHistory, 2, restTokens, used))

	var summary []Message
	if len(aside) > 0 {
		slices.SortFunc(aside, func(a, b indexed) int { return a.idx - b.idx })
		rep.SummarizedMessages = len(aside)
		dropped := unwrap(aside)

		avail := restBudget - used
		limit := min(max(0, opts.SummaryTokens), avail)
		if opts.SummaryTokens <= 0 && len(tail) == 0 {
			limit = avail
		}
		msg, err := summarize(ctx, est, opts.Summarizer, dropped, limit)
		if err != nil {
			return nil, nil, err
		}
		packed := 0
		if msg != nil {
			summary = []Message{*msg}
			packed = MessageTokens(est, *msg)
			rep.Summarized = true
		}
		rep.Sections = append(rep.Sections, sectionReport(SectionSummary, 1, TotalTokens(est, dropped), packed))
	}

	// Estimators are additive per message, so this only fires when one
	// disagrees with itself.
	for len(tail) > 0 && totalIndexed(est, system)+TotalTokens(est, summary)+unitsCost(est, tail) > allowed {
		tail = tail[1:]
	}
	if totalIndexed(est, system)+TotalTokens(est, summary) > allowed {
		summary = nil
		rep.Summarized = false
	}

	out := unwrap(system)
	out = append(out, summary...)
	for _, u := range tail {
		out = append(out, u.Messages...)
	}
	rep.TokensAfter = TotalTokens(est, out)
	return out, rep, nil
}

// trimSystem truncates, then drops, the oldest system messages until they
// fit in allowed.
func trimSystem(est tokens.Estimator, system []indexed, allowed int) ([]indexed, int) {
	total := totalIndexed(est, system)
	out := system[:0:0]
	for _, im := range system {
		if total <= allowed {
			out = append(out, im)
			continue
		}
		cost := MessageTokens(est, im.msg)
		bare := cost - tokens.Count(est, im.msg.Content)
		keep := cost - (total - allowed) - bare
		if keep > 0 {
			text, n := tokens.Truncate(est, im.msg.Content, keep, budget.TrimSuffix)
			if text != "" {
				im.msg.Content = text
				total += bare + n - cost
				out = append(out, im)
				continue
			}
		}
		total -= cost
	}
	return out, total
}

// shrinkUnit empties every message's content, then refills it from the last
// message backwards within limit. It fails when the bare frames alone do
// not fit.
func shrinkUnit(est tokens.Estimator, u Unit, limit int) (Unit, int, bool) {
	base := 0
	for _, m := range u.Messages {
		base += MessageOverheadTokens + frameTokens(est, m)
	}
	if base > limit {
		return u, 0, false
	}
	left := limit - base
	msgs := make([]Message, len(u.Messages))
	copy(msgs, u.Messages)
	for j := len(msgs) - 1; j >= 0; j-- {
		c := tokens.Count(est, msgs[j].Content)
		if c <= left {
			left -= c
			continue
		}
		text, n := tokens.Truncate(est, msgs[j].Content, left, budget.TrimSuffix)
		msgs[j].Content = text
		left -= n
	}
	u.Messages = msgs
	return u, limit - left, true
}

// summarize builds the summary message, or nil when limit leaves no room
// for the prefix or the summarizer had nothing to say.
func summarize(ctx context.Context, est tokens.Estimator, s Summarizer, dropped []Message, limit int) (*Message, error) {
	room := limit - MessageOverheadTokens - tokens.Count(est, SummaryPrefix)
	if room <= 0 {
		return nil, nil
	}
	if s == nil {
		s = NewExtractiveSummarizer(est)
	}
	text, err := s.Summarize(ctx, dropped, room)
	if err != nil {
		if cerr := cancel.Check(ctx); cerr != nil {
			return nil, cerr
		}
		return nil, fmt.Errorf("summarize conversation: %w", cancel.Wrap(err))
	}
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	if strings.TrimSpace(text) == "" {
		return nil, nil
	}
	content, _ := tokens.Truncate(est, SummaryPrefix+text, limit-MessageOverheadTokens, "")
	return &Message{Role: RoleSystem, Content: content}, nil
}

func sectionReport(key string, priority, original, packed int) budget.SectionReport {
	return budget.SectionReport{
		Key:            key,
		Priority:       priority,
		OriginalTokens: original,
		PackedTokens:   packed,
		Trimmed:        packed < original && packed > 0,
		Dropped:        packed == 0 && original > 0,
	}
}

func totalIndexed(est tokens.Estimator, ims []indexed) int {
	n := 0
	for _, im := range ims {
		n += MessageTokens(est, im.msg)
	}
	return n
}

func unitsCost(est tokens.Estimator, units []Unit) int {
	n := 0
	for _, u := range units {
		n += u.cost(est)
	}
	return n
}

func unwrap(ims []indexed) []Message {
	out := make([]Message, len(ims))
	for i, im := range ims {
		out[i] = im.msg
	}
	return out
}
