package dlp

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

// AuditLog records what a context build redacted. It never holds secret
// text, only kinds, locations and lengths.
type AuditLog struct {
	ID         string      `json:"id"`
	Timestamp  time.Time   `json:"timestamp"`
	DocumentID string      `json:"document_id,omitempty"`
	SheetID    string      `json:"sheet_id,omitempty"`
	SheetName  string      `json:"sheet_name,omitempty"`
	Redactions []Redaction `json:"redactions"`
	Summary    Summary     `json:"summary"`
}

// Redaction is one replaced span.
type Redaction struct {
	Section     string `json:"section"`
	Kind        Kind   `json:"kind"`
	RuleID      string `json:"rule_id"`
	Offset      int    `json:"offset"`
	OriginalLen int    `json:"original_len"`
}

// Summary aggregates redactions.
type Summary struct {
	TotalRedactions int            `json:"total_redactions"`
	KindCounts      map[Kind]int   `json:"kind_counts"`
	Classification  Classification `json:"classification"`
}

// NewAuditLog starts an empty audit log.
func NewAuditLog(documentID, sheetID, sheetName string) *AuditLog {
	return &AuditLog{
		ID:         uuid.NewString(),
		Timestamp:  time.Now().UTC(),
		DocumentID: documentID,
		SheetID:    sheetID,
		SheetName:  sheetName,
		Redactions: []Redaction{},
		Summary:    Summary{KindCounts: map[Kind]int{}, Classification: Public()},
	}
}

// Add records the findings of one Scan under a section name.
func (a *AuditLog) Add(section string, res *Result) {
	if res == nil {
		return
	}
	for _, f := range res.Findings {
		a.Redactions = append(a.Redactions, Redaction{
			Section:     section,
			Kind:        f.Kind,
			RuleID:      f.RuleID,
			Offset:      f.Start,
			OriginalLen: f.End - f.Start,
		})
		a.Summary.KindCounts[f.Kind]++
	}
	a.Summary.TotalRedactions = len(a.Redactions)
	a.Summary.Classification = a.Summary.Classification.Merge(res.Classification)
}

// HasRedactions returns true if anything was redacted.
func (a *AuditLog) HasRedactions() bool {
	return len(a.Redactions) > 0
}

// JSON returns the audit log as compact JSON.
func (a *AuditLog) JSON() string {
	data, err := json.Marshal(a)
	if err != nil {
		return "{}"
	}
	return string(data)
}
