package dlp

import (
	"context"
	"regexp"
	"slices"
	"sort"
	"strings"
	"sync"

	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
)

// maxPasses bounds the redact-until-stable loop. Each pass consumes at least
// one character outside placeholders, so real inputs settle in two or three.
const maxPasses = 16

// Finding is one validated match. Offsets refer to the text as it was at
// the start of Pass (pass 0 is the caller's input).
type Finding struct {
	Kind   Kind   `json:"kind"`
	RuleID string `json:"rule_id"`
	Start  int    `json:"start"`
	End    int    `json:"end"`
	Pass   int    `json:"pass"`
}

// Result is the outcome of Scan.
type Result struct {
	Redacted       string         `json:"-"`
	Classification Classification `json:"classification"`
	Findings       []Finding      `json:"findings"`
}

// Changed reports whether anything was redacted.
func (r *Result) Changed() bool { return len(r.Findings) > 0 }

// Engine classifies and redacts text. It is safe for concurrent use.
type Engine struct {
	enabled   bool
	detectors []detector
	allow     []*regexp.Regexp
	secrets   *secretScanner
	logger    *zap.Logger
}

// New creates an Engine. If cfg is nil, DefaultConfig() is used.
func New(cfg *Config, logger *zap.Logger) (*Engine, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	e := &Engine{
		enabled:   cfg.Enabled,
		detectors: append(builtinDetectors(), cfg.compiledRules...),
		allow:     cfg.compiledAllowList,
		logger:    logger,
	}
	if cfg.Enabled && cfg.ExtendedSecretScan {
		s, err := newSecretScanner(e.allow, logger)
		if err != nil {
			return nil, err
		}
		e.secrets = s
	}
	return e, nil
}

// MustNew creates an Engine, panicking on error.
func MustNew(cfg *Config, logger *zap.Logger) *Engine {
	e, err := New(cfg, logger)
	if err != nil {
		panic(err)
	}
	return e
}

var defaultEngine = sync.OnceValue(func() *Engine { return MustNew(nil, nil) })

// Default returns a shared Engine with the default configuration.
func Default() *Engine { return defaultEngine() }

// Classify reports which kinds of sensitive data text contains.
func Classify(text string) Classification { return Default().Classify(text) }

// Redact replaces sensitive data in text with placeholders.
func Redact(text string) string { return Default().Redact(text) }

// Classify reports which kinds of sensitive data text contains.
func (e *Engine) Classify(text string) Classification {
	res, _ := e.Scan(context.Background(), text)
	return res.Classification
}

// Redact replaces every validated finding with its placeholder.
func (e *Engine) Redact(text string) string {
	res, _ := e.Scan(context.Background(), text)
	return res.Redacted
}

// ClassifyContext is Classify with cancellation.
func (e *Engine) ClassifyContext(ctx context.Context, text string) (Classification, error) {
	res, err := e.Scan(ctx, text)
	if err != nil {
		return Classification{}, err
	}
	return res.Classification, nil
}

// RedactContext is Redact with cancellation.
func (e *Engine) RedactContext(ctx context.Context, text string) (string, error) {
	res, err := e.Scan(ctx, text)
	if err != nil {
		return "", err
	}
	return res.Redacted, nil
}

// Scan detects and redacts in one call. The only possible error is an
// aborted context; the result is then nil.
func (e *Engine) Scan(ctx context.Context, text string) (*Result, error) {
	res := &Result{Redacted: text, Classification: Public(), Findings: []Finding{}}
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	if !e.enabled || text == "" {
		return res, nil
	}

	seen := make(map[Kind]bool)
	current := text
	for pass := 0; pass < maxPasses; pass++ {
		spans, err := e.find(ctx, current)
		if err != nil {
			return nil, err
		}
		if len(spans) == 0 {
			break
		}
		for _, s := range spans {
			seen[s.kind] = true
			res.Findings = append(res.Findings, Finding{Kind: s.kind, RuleID: s.rule, Start: s.start, End: s.end, Pass: pass})
		}
		current = apply(current, spans)
	}

	res.Redacted = current
	res.Classification = classificationOf(seen)
	if len(res.Findings) > 0 {
		e.logger.Debug("dlp findings",
			zap.Int("findings", len(res.Findings)),
			zap.Stringer("classification", res.Classification))
	}
	return res, nil
}

// find returns the non-overlapping validated spans in text, ordered by start.
func (e *Engine) find(ctx context.Context, text string) ([]span, error) {
	guards := placeholderPattern.FindAllStringIndex(text, -1)

	var all []span
	add := func(s span) {
		if overlapsAny(s, guards) || e.allowed(text[s.start:s.end]) {
			return
		}
		all = append(all, s)
	}

	for _, d := range e.detectors {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		for _, m := range d.pattern.FindAllStringIndex(text, -1) {
			if err := cancel.Check(ctx); err != nil {
				return nil, err
			}
			if d.split != nil {
				for _, sp := range d.split(text, m[0], m[1]) {
					add(span{start: sp[0], end: sp[1], kind: d.kind, rule: d.rule})
				}
				continue
			}
			start, end, ok := d.validate(text, m[0], m[1])
			if !ok || start >= end {
				continue
			}
			add(span{start: start, end: end, kind: d.kind, rule: d.rule})
		}
	}
	if e.secrets != nil {
		if err := cancel.Check(ctx); err != nil {
			return nil, err
		}
		for _, s := range e.secrets.find(text) {
			add(s)
		}
	}

	return selectSpans(all), nil
}

func (e *Engine) allowed(match string) bool {
	for _, pattern := range e.allow {
		if pattern.MatchString(match) {
			return true
		}
	}
	return false
}

// overlapsAny reports whether s intersects any guard. Guards are sorted and
// disjoint.
func overlapsAny(s span, guards [][]int) bool {
	i := sort.Search(len(guards), func(i int) bool { return guards[i][1] > s.start })
	return i < len(guards) && guards[i][0] < s.end
}

// selectSpans keeps the earliest span at each position, preferring the
// longest, then the kind listed first in Kinds.
func selectSpans(all []span) []span {
	slices.SortFunc(all, func(a, b span) int {
		if a.start != b.start {
			return a.start - b.start
		}
		if la, lb := a.end-a.start, b.end-b.start; la != lb {
			return lb - la
		}
		return a.kind.rank() - b.kind.rank()
	})
	out := all[:0]
	end := -1
	for _, s := range all {
		if s.start < end {
			continue
		}
		out = append(out, s)
		end = s.end
	}
	return out
}

// apply replaces spans, which must be sorted and disjoint.
func apply(text string, spans []span) string {
	var b strings.Builder
	b.Grow(len(text))
	last := 0
	for _, s := range spans {
		b.WriteString(text[last:s.start])
		b.WriteString(Placeholder(s.kind))
		last = s.end
	}
	b.WriteString(text[last:])
	return b.String()
}
