package assembler

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"

	"github.com/fyrsmithlabs/sheetctx/internal/budget"
	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/conversation"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
	"github.com/fyrsmithlabs/sheetctx/internal/schema"
	"github.com/fyrsmithlabs/sheetctx/internal/sheet"
	"github.com/fyrsmithlabs/sheetctx/internal/tokens"
)

var (
	// ErrMissingCollaborator is returned before any work starts when an
	// operation needs a collaborator that was not configured.
	ErrMissingCollaborator = errors.New("missing collaborator")
	// ErrInvalidConfig is returned for invalid assembler configuration.
	ErrInvalidConfig = errors.New("invalid assembler config")
	// ErrSheetNotFound is returned when a workbook request names an
	// unknown active sheet or has no sheets.
	ErrSheetNotFound = errors.New("sheet not found")
)

// Request is the input of BuildContext.
type Request struct {
	Sheet           sheet.Sheet
	Query           string
	SystemPrompt    string
	ToolDefinitions string
	Messages        []conversation.Message
	// Sampling overrides the configured sampling options.
	Sampling *SamplingOptions
	DLP      *DLPOptions
}

// WorkbookRequest is the input of BuildWorkbookContext. Samples come from
// ActiveSheet, or the first sheet when it is empty.
type WorkbookRequest struct {
	Sheets          []sheet.Sheet
	ActiveSheet     string
	Query           string
	SystemPrompt    string
	ToolDefinitions string
	Messages        []conversation.Message
	Sampling        *SamplingOptions
	DLP             *DLPOptions
}

// Context is the assembled LLM context. PromptContext is byte-identical for
// identical inputs and configuration.
type Context struct {
	Schema        *schema.SheetSchema `json:"schema"`
	Retrieved     []RetrievedChunk    `json:"retrieved"`
	SampledRows   [][]sheet.Value     `json:"sampledRows"`
	PromptContext string              `json:"promptContext"`

	Plan           budget.Plan            `json:"plan"`
	Sections       []budget.SectionReport `json:"sections"`
	Classification dlp.Classification     `json:"classification"`
	Redacted       bool                   `json:"redacted"`
}

// WorkbookContext adds the schema of every sheet.
type WorkbookContext struct {
	Context
	Schemas []*schema.SheetSchema `json:"schemas"`
}

// Assembler builds contexts. It is safe for concurrent use.
type Assembler struct {
	cfg       Config
	est       tokens.Estimator
	extractor *schema.Extractor
	dlp       *dlp.Engine
	retriever Retriever
	policy    PolicyEvaluator
	metrics   *Metrics
	logger    *zap.Logger
}

// Option configures an Assembler.
type Option func(*Assembler)

// WithEstimator sets the token estimator.
func WithEstimator(est tokens.Estimator) Option {
	return func(a *Assembler) { a.est = tokens.Or(est) }
}

// WithRetriever sets the retrieval collaborator.
func WithRetriever(r Retriever) Option {
	return func(a *Assembler) { a.retriever = r }
}

// WithDLPEngine sets the engine used to classify and redact sections.
func WithDLPEngine(e *dlp.Engine) Option {
	return func(a *Assembler) {
		if e != nil {
			a.dlp = e
		}
	}
}

// WithPolicyEvaluator replaces RedactSensitive.
func WithPolicyEvaluator(p PolicyEvaluator) Option {
	return func(a *Assembler) {
		if p != nil {
			a.policy = p
		}
	}
}

// WithMetrics sets the metrics instruments.
func WithMetrics(m *Metrics) Option {
	return func(a *Assembler) { a.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(a *Assembler) {
		if l != nil {
			a.logger = l
		}
	}
}

// New creates an Assembler. Zero config fields take DefaultConfig values.
func New(cfg Config, opts ...Option) (*Assembler, error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	a := &Assembler{
		cfg:    cfg,
		est:    tokens.Default(),
		dlp:    dlp.Default(),
		policy: RedactSensitive,
		logger: zap.NewNop(),
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.metrics == nil {
		a.metrics = NewMetrics(a.logger)
	}
	a.extractor = schema.NewExtractor(cfg.Schema, a.logger)
	return a, nil
}

// Config returns the effective configuration.
func (a *Assembler) Config() Config { return a.cfg }

// BuildContext assembles the context for one sheet. Retrieval runs only
// when a Retriever is configured and the query is not blank.
func (a *Assembler) BuildContext(ctx context.Context, req Request) (*Context, error) {
	start := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Assembler.BuildContext",
		trace.WithAttributes(attribute.String("sheet.name", req.Sheet.Name)))
	defer span.End()

	out, err := a.buildContext(ctx, req)
	a.finish(ctx, span, "build_context", start, err)
	return out, err
}

func (a *Assembler) buildContext(ctx context.Context, req Request) (*Context, error) {
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	opts := a.samplingOptions(req.Sampling)

	sch, err := a.extractor.Extract(ctx, req.Sheet)
	if err != nil {
		return nil, err
	}

	var retrieved []RetrievedChunk
	if a.retriever != nil && strings.TrimSpace(req.Query) != "" {
		key, err := a.retriever.Index(ctx, &req.Sheet, sch)
		if err != nil {
			return nil, fmt.Errorf("index sheet: %w", cancel.Wrap(err))
		}
		retrieved, err = a.retriever.Retrieve(ctx, req.Query, a.cfg.Retrieval.TopK, []string{key})
		if err != nil {
			return nil, fmt.Errorf("retrieve chunks: %w", cancel.Wrap(err))
		}
	}
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}

	rows, err := sampleTable(ctx, &req.Sheet, sch, opts)
	if err != nil {
		return nil, err
	}

	return a.assemble(ctx, &assembly{
		sheetName:       req.Sheet.Name,
		schema:          sch,
		retrieved:       retrieved,
		samples:         rows,
		systemPrompt:    req.SystemPrompt,
		toolDefinitions: req.ToolDefinitions,
		messages:        req.Messages,
		dlp:             req.DLP,
	})
}

// BuildWorkbookContext assembles the context for a workbook: schemas of
// every sheet, chunks retrieved across all of them, and samples from the
// active sheet. It fails with ErrMissingCollaborator when no Retriever is
// configured.
func (a *Assembler) BuildWorkbookContext(ctx context.Context, req WorkbookRequest) (*WorkbookContext, error) {
	if a.retriever == nil {
		return nil, fmt.Errorf("%w: workbook context requires a retriever", ErrMissingCollaborator)
	}
	start := time.Now()
	ctx, span := otel.Tracer(instrumentationName).Start(ctx, "Assembler.BuildWorkbookContext",
		trace.WithAttributes(attribute.Int("sheets", len(req.Sheets))))
	defer span.End()

	out, err := a.buildWorkbookContext(ctx, req)
	a.finish(ctx, span, "build_workbook_context", start, err)
	return out, err
}

func (a *Assembler) buildWorkbookContext(ctx context.Context, req WorkbookRequest) (*WorkbookContext, error) {
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}
	if len(req.Sheets) == 0 {
		return nil, fmt.Errorf("%w: workbook has no sheets", ErrSheetNotFound)
	}
	active := 0
	if req.ActiveSheet != "" {
		active = slices.IndexFunc(req.Sheets, func(s sheet.Sheet) bool { return s.Name == req.ActiveSheet })
		if active < 0 {
			return nil, fmt.Errorf("%w: %q", ErrSheetNotFound, req.ActiveSheet)
		}
	}
	opts := a.samplingOptions(req.Sampling)
	query := strings.TrimSpace(req.Query) != ""

	schemas := make([]*schema.SheetSchema, len(req.Sheets))
	keys := make([]string, 0, len(req.Sheets))
	for i := range req.Sheets {
		sch, err := a.extractor.Extract(ctx, req.Sheets[i])
		if err != nil {
			return nil, err
		}
		schemas[i] = sch
		if !query {
			continue
		}
		key, err := a.retriever.Index(ctx, &req.Sheets[i], sch)
		if err != nil {
			return nil, fmt.Errorf("index sheet %q: %w", req.Sheets[i].Name, cancel.Wrap(err))
		}
		keys = append(keys, key)
	}

	var retrieved []RetrievedChunk
	if query {
		var err error
		retrieved, err = a.retriever.Retrieve(ctx, req.Query, a.cfg.Retrieval.TopK, keys)
		if err != nil {
			return nil, fmt.Errorf("retrieve chunks: %w", cancel.Wrap(err))
		}
	}
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}

	rows, err := sampleTable(ctx, &req.Sheets[active], schemas[active], opts)
	if err != nil {
		return nil, err
	}

	in := &assembly{
		sheetName:       req.Sheets[active].Name,
		schema:          schemas[active],
		schemas:         schemas,
		retrieved:       retrieved,
		samples:         rows,
		systemPrompt:    req.SystemPrompt,
		toolDefinitions: req.ToolDefinitions,
		messages:        req.Messages,
		dlp:             req.DLP,
	}
	c, err := a.assemble(ctx, in)
	if err != nil {
		return nil, err
	}
	return &WorkbookContext{Context: *c, Schemas: in.schemas}, nil
}

func (a *Assembler) samplingOptions(override *SamplingOptions) SamplingOptions {
	if override == nil {
		return a.cfg.Sampling
	}
	return *override
}

func (a *Assembler) finish(ctx context.Context, span trace.Span, op string, start time.Time, err error) {
	a.metrics.recordBuild(ctx, op, time.Since(start), err)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// assembly is the material one build packs into a Context.
type assembly struct {
	sheetName       string
	schema          *schema.SheetSchema
	schemas         []*schema.SheetSchema
	retrieved       []RetrievedChunk
	samples         *samples
	systemPrompt    string
	toolDefinitions string
	messages        []conversation.Message
	dlp             *DLPOptions
}

// render encodes the sections that have content, in schema, retrieved,
// samples order.
func (a *Assembler) render(in *assembly) ([]budget.Section, error) {
	var out []budget.Section
	add := func(key string, v any) error {
		text, err := compactJSON(v)
		if err != nil {
			return err
		}
		out = append(out, budget.Section{Key: key, Text: text, Priority: a.cfg.priority(key)})
		return nil
	}
	if in.schemas != nil {
		if err := add(SectionSchema, in.schemas); err != nil {
			return nil, err
		}
	} else if in.schema != nil {
		if err := add(SectionSchema, in.schema); err != nil {
			return nil, err
		}
	}
	if len(in.retrieved) > 0 {
		if err := add(SectionRetrieved, in.retrieved); err != nil {
			return nil, err
		}
	}
	if in.samples != nil && len(in.samples.Rows) > 0 {
		if err := add(SectionSamples, in.samples); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (a *Assembler) assemble(ctx context.Context, in *assembly) (*Context, error) {
	sections, err := a.render(in)
	if err != nil {
		return nil, err
	}

	results := make(map[string]*dlp.Result, len(sections))
	classification := dlp.Public()
	for _, s := range sections {
		res, err := a.dlp.Scan(ctx, s.Text)
		if err != nil {
			return nil, err
		}
		results[s.Key] = res
		classification = classification.Merge(res.Classification)
	}

	var documentID string
	if in.dlp != nil {
		documentID = in.dlp.DocumentID
	}
	sheetID, records, err := resolveDLP(ctx, in.dlp, in.sheetName)
	if err != nil {
		return nil, err
	}
	var policy any
	if in.dlp != nil {
		policy = in.dlp.Policy
	}
	decision, err := a.policy.Evaluate(ctx, PolicyInput{
		Policy:         policy,
		DocumentID:     documentID,
		SheetID:        sheetID,
		SheetName:      in.sheetName,
		Classification: classification,
		Records:        records,
	})
	if err != nil {
		return nil, fmt.Errorf("evaluate dlp policy: %w", cancel.Wrap(err))
	}
	if err := cancel.Check(ctx); err != nil {
		return nil, err
	}

	redacted := false
	if decision.Redact {
		for _, res := range results {
			redacted = redacted || res.Changed()
		}
	}
	if redacted {
		r := &redactor{ctx: ctx, e: a.dlp}
		in.schema = r.schema(in.schema)
		if in.schemas != nil {
			schemas := make([]*schema.SheetSchema, len(in.schemas))
			for i, s := range in.schemas {
				schemas[i] = r.schema(s)
			}
			in.schemas = schemas
		}
		in.retrieved = r.retrieved(in.retrieved)
		in.samples = r.samples(in.samples)
		if r.err != nil {
			return nil, r.err
		}
		if sections, err = a.render(in); err != nil {
			return nil, err
		}
		// Findings can straddle JSON field boundaries.
		for i := range sections {
			if sections[i].Text, err = a.dlp.RedactContext(ctx, sections[i].Text); err != nil {
				return nil, err
			}
		}
	}

	for _, key := range decision.OmitSections {
		switch key {
		case SectionSchema:
			in.schema, in.schemas = nil, nil
		case SectionRetrieved:
			in.retrieved = nil
		case SectionSamples:
			in.samples = nil
		}
	}
	sections = slices.DeleteFunc(sections, func(s budget.Section) bool {
		return slices.Contains(decision.OmitSections, s.Key)
	})

	plan := budget.PlanTokenBudget(budget.PlanRequest{
		MaxContextTokens:       a.cfg.MaxContextTokens,
		ReserveForOutputTokens: a.cfg.ReserveForOutputTokens,
		SystemPrompt:           in.systemPrompt,
		ToolDefinitions:        in.toolDefinitions,
		MessageTokens:          conversation.TotalTokens(a.est, in.messages),
		SectionTargets:         budget.TargetsFromMap(a.cfg.SectionTargets),
		Estimator:              a.est,
	})

	original := make(map[string]int, len(sections))
	capped := make(map[string]bool, len(sections))
	keys := make([]string, len(sections))
	for i := range sections {
		s := &sections[i]
		keys[i] = s.Key
		original[s.Key] = tokens.Count(a.est, s.Text)
		if alloc, ok := plan.Allocation(s.Key); ok && original[s.Key] > alloc {
			s.Text, _ = tokens.Truncate(a.est, s.Text, alloc, budget.TrimSuffix)
			capped[s.Key] = true
		}
	}

	content := plan.RemainingForContentTokens - budget.HeaderTokens(keys, a.est)
	packed, reports := budget.PackSectionsWithReport(sections, content, a.est)
	for i := range reports {
		r := &reports[i]
		r.OriginalTokens = original[r.Key]
		if capped[r.Key] && !r.Dropped {
			r.Trimmed = true
		}
	}
	a.metrics.recordSections(ctx, reports)

	out := &Context{
		Schema:         in.schema,
		Retrieved:      in.retrieved,
		PromptContext:  budget.Render(packed),
		Plan:           plan,
		Sections:       reports,
		Classification: classification,
		Redacted:       redacted,
	}
	if in.samples != nil {
		out.SampledRows = in.samples.Rows
	}
	if out.Retrieved == nil {
		out.Retrieved = []RetrievedChunk{}
	}
	if out.SampledRows == nil {
		out.SampledRows = [][]sheet.Value{}
	}
	if !redacted {
		a.log(in, out)
		return out, nil
	}

	audit := dlp.NewAuditLog(documentID, sheetID, in.sheetName)
	for _, s := range sections {
		audit.Add(s.Key, results[s.Key])
	}
	a.metrics.recordRedactions(ctx, audit)
	if in.dlp != nil && in.dlp.AuditSink != nil && audit.HasRedactions() {
		if err := in.dlp.AuditSink.Audit(ctx, audit); err != nil {
			return nil, fmt.Errorf("write dlp audit log: %w", cancel.Wrap(err))
		}
	}
	a.log(in, out)
	return out, nil
}

func (a *Assembler) log(in *assembly, out *Context) {
	if ce := a.logger.Check(zap.DebugLevel, "context assembled"); ce != nil {
		packed := 0
		for _, r := range out.Sections {
			if !r.Dropped {
				packed++
			}
		}
		ce.Write(
			zap.String("sheet", in.sheetName),
			zap.Int("sections", len(out.Sections)),
			zap.Int("packed", packed),
			zap.Int("retrieved", len(out.Retrieved)),
			zap.Int("sampled_rows", len(out.SampledRows)),
			zap.Int("remaining_tokens", out.Plan.RemainingForContentTokens),
			zap.String("classification", out.Classification.String()),
			zap.Bool("redacted", out.Redacted),
		)
	}
}
