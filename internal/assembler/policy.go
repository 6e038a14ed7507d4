package assembler

import (
	"context"
	"fmt"

	"github.com/fyrsmithlabs/sheetctx/internal/cancel"
	"github.com/fyrsmithlabs/sheetctx/internal/dlp"
)

// ClassificationRecord is an externally supplied sensitivity label, for
// example from a data catalog. An empty Range labels the whole sheet.
type ClassificationRecord struct {
	SheetID string    `json:"sheetId"`
	Range   string    `json:"range,omitempty"`
	Level   dlp.Level `json:"level"`
	Labels  []string  `json:"labels,omitempty"`
}

// RecordProvider loads classification records for a sheet.
type RecordProvider interface {
	Records(ctx context.Context, documentID, sheetID string) ([]ClassificationRecord, error)
}

// SheetResolver maps a sheet name to the id used by records and audit logs.
type SheetResolver interface {
	SheetID(ctx context.Context, documentID, sheetName string) (string, error)
}

// AuditSink receives the audit log of a build that redacted something.
type AuditSink interface {
	Audit(ctx context.Context, log *dlp.AuditLog) error
}

// AuditSinkFunc adapts a function to AuditSink.
type AuditSinkFunc func(ctx context.Context, log *dlp.AuditLog) error

// Audit calls f.
func (f AuditSinkFunc) Audit(ctx context.Context, log *dlp.AuditLog) error { return f(ctx, log) }

// DLPOptions carries per-call data protection inputs. Policy is opaque here
// and only interpreted by the PolicyEvaluator.
type DLPOptions struct {
	Policy         any
	DocumentID     string
	SheetID        string
	Records        []ClassificationRecord
	RecordProvider RecordProvider
	SheetResolver  SheetResolver
	AuditSink      AuditSink
}

// PolicyInput is what a PolicyEvaluator decides on.
type PolicyInput struct {
	Policy         any
	DocumentID     string
	SheetID        string
	SheetName      string
	Classification dlp.Classification
	Records        []ClassificationRecord
}

// Decision tells the assembler how to treat sensitive content.
type Decision struct {
	// Redact replaces every finding in every section with its placeholder.
	Redact bool
	// OmitSections drops whole sections from the prompt context.
	OmitSections []string
}

// PolicyEvaluator turns classification results into a Decision.
type PolicyEvaluator interface {
	Evaluate(ctx context.Context, in PolicyInput) (Decision, error)
}

// PolicyEvaluatorFunc adapts a function to PolicyEvaluator.
type PolicyEvaluatorFunc func(ctx context.Context, in PolicyInput) (Decision, error)

// Evaluate calls f.
func (f PolicyEvaluatorFunc) Evaluate(ctx context.Context, in PolicyInput) (Decision, error) {
	return f(ctx, in)
}

// RedactSensitive is the default evaluator: redact whenever the content or
// any matching record is sensitive.
var RedactSensitive PolicyEvaluator = PolicyEvaluatorFunc(func(_ context.Context, in PolicyInput) (Decision, error) {
	if in.Classification.Level == dlp.LevelSensitive {
		return Decision{Redact: true}, nil
	}
	for _, r := range in.Records {
		if r.Level == dlp.LevelSensitive {
			return Decision{Redact: true}, nil
		}
	}
	return Decision{}, nil
})

// resolveDLP fills the sheet id and gathers records for one sheet.
func resolveDLP(ctx context.Context, opts *DLPOptions, sheetName string) (string, []ClassificationRecord, error) {
	if opts == nil {
		return "", nil, nil
	}
	sheetID := opts.SheetID
	if sheetID == "" && opts.SheetResolver != nil {
		id, err := opts.SheetResolver.SheetID(ctx, opts.DocumentID, sheetName)
		if err != nil {
			return "", nil, fmt.Errorf("resolve sheet id: %w", cancel.Wrap(err))
		}
		sheetID = id
	}

	var records []ClassificationRecord
	for _, r := range opts.Records {
		if r.SheetID == "" || sheetID == "" || r.SheetID == sheetID {
			records = append(records, r)
		}
	}
	if opts.RecordProvider != nil {
		more, err := opts.RecordProvider.Records(ctx, opts.DocumentID, sheetID)
		if err != nil {
			return "", nil, fmt.Errorf("load classification records: %w", cancel.Wrap(err))
		}
		records = append(records, more...)
	}
	return sheetID, records, nil
}
