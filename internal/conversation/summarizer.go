package conversation

import (
	"context"
	"fmt"
	"strings"

	"github.com/fyrsmithlabs/sheetctx/internal/compression"
	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

// Summarizer condenses dropped messages into text of at most maxTokens.
type Summarizer interface {
	Summarize(ctx context.Context, msgs []Message, maxTokens int) (string, error)
}

// SummarizerFunc adapts a function to Summarizer.
type SummarizerFunc func(ctx context.Context, msgs []Message, maxTokens int) (string, error)

// Summarize calls f.
func (f SummarizerFunc) Summarize(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	return f(ctx, msgs, maxTokens)
}

// ExtractiveSummarizer renders messages as a transcript and keeps its
// highest scoring sentences. It needs no model and is deterministic.
type ExtractiveSummarizer struct {
	compressor *compression.ExtractiveCompressor
	est        tokens.Estimator
}

// NewExtractiveSummarizer returns a summarizer that sizes output with est.
func NewExtractiveSummarizer(est tokens.Estimator) *ExtractiveSummarizer {
	return &ExtractiveSummarizer{
		compressor: compression.NewExtractiveCompressor(compression.Config{}),
		est:        tokens.Or(est),
	}
}

// Summarize implements Summarizer.
func (s *ExtractiveSummarizer) Summarize(ctx context.Context, msgs []Message, maxTokens int) (string, error) {
	if maxTokens <= 0 || len(msgs) == 0 {
		return "", nil
	}
	transcript := Transcript(msgs)

	// Aim a little under the budget in bytes; the final cut is by tokens.
	res, err := s.compressor.CompressTo(ctx, transcript, maxTokens*4)
	if err != nil {
		return "", fmt.Errorf("summarize %d messages: %w", len(msgs), err)
	}
	text, _ := tokens.Truncate(s.est, res.Content, maxTokens, "...")
	return text, nil
}

// Transcript renders msgs one per line as "role: content". Tool calls are
// listed by name and earlier summaries lose their prefix.
func Transcript(msgs []Message) string {
	var b strings.Builder
	for _, m := range msgs {
		content := m.Content
		role := string(m.Role)
		if m.IsSummary() {
			content = strings.TrimPrefix(content, SummaryPrefix)
			role = "earlier"
		}
		line := strings.Join(strings.Fields(content), " ")
		if m.HasToolCalls() {
			names := make([]string, len(m.ToolCalls))
			for i, c := range m.ToolCalls {
				names[i] = c.Name
			}
			calls := "called " + strings.Join(names, ", ")
			if line == "" {
				line = calls
			} else {
				line = line + " (" + calls + ")"
			}
		}
		if line == "" {
			continue
		}
		if b.Len() > 0 {
			b.WriteByte('\n')
		}
		b.WriteString(role)
		b.WriteString(": ")
		b.WriteString(line)
	}
	return b.String()
}
