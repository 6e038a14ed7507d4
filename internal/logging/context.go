package logging

import (
	"context"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"go.opentelemetry.io/otel/trace"
	"go.uber.org/zap"
)

type ctxKey int

const (
	requestKey ctxKey = iota
	documentKey
	sheetKey
)

const (
	maxIDLen = 128
	// Excel caps sheet names at 31 characters.
	maxSheetNameLen = 31
	// Characters Excel rejects in sheet names.
	sheetNameForbidden = `[]:*?/\`
)

var idPattern = regexp.MustCompile(`^[a-zA-Z0-9_.:-]+$`)

func validID(id string) bool {
	return len(id) <= maxIDLen && idPattern.MatchString(id)
}

func validSheetName(s string) bool {
	return strings.TrimSpace(s) != "" &&
		utf8.ValidString(s) &&
		utf8.RuneCountInString(s) <= maxSheetNameLen &&
		!strings.ContainsAny(s, sheetNameForbidden) &&
		strings.IndexFunc(s, unicode.IsControl) < 0
}

// WithRequestID tags entries logged under ctx with request.id. Ids come from
// clients, so anything that is not a short token of letters, digits and
// ._:- is dropped.
func WithRequestID(ctx context.Context, id string) context.Context {
	if !validID(id) {
		return ctx
	}
	return context.WithValue(ctx, requestKey, id)
}

// WithDocumentID tags entries logged under ctx with document.id. Invalid ids
// are dropped as in WithRequestID.
func WithDocumentID(ctx context.Context, id string) context.Context {
	if !validID(id) {
		return ctx
	}
	return context.WithValue(ctx, documentKey, id)
}

// WithSheetName tags entries logged under ctx with sheet.name. Names Excel
// would not accept are dropped.
func WithSheetName(ctx context.Context, name string) context.Context {
	if !validSheetName(name) {
		return ctx
	}
	return context.WithValue(ctx, sheetKey, name)
}

func contextFields(ctx context.Context) []zap.Field {
	var fields []zap.Field
	if sc := trace.SpanContextFromContext(ctx); sc.IsValid() {
		fields = append(fields,
			zap.String("trace_id", sc.TraceID().String()),
			zap.String("span_id", sc.SpanID().String()),
		)
	}
	for _, kv := range []struct {
		key   ctxKey
		field string
	}{
		{requestKey, "request.id"},
		{documentKey, "document.id"},
		{sheetKey, "sheet.name"},
	} {
		if v, ok := ctx.Value(kv.key).(string); ok {
			fields = append(fields, zap.String(kv.field, v))
		}
	}
	return fields
}
