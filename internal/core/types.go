package core

import (
	"encoding/json"
	"strings"
	"time"
)

// Pipeline defaults. The scheduler keeps at most one batch in flight and
// waits PacingDelay between consecutive submissions.
const (
	DefaultBatchSize   = 50
	DefaultPacingDelay = 300 * time.Millisecond
)

// Shared parameter names, as used by Definition.RequiredParams and reported
// in ConfigurationError.
const (
	ParamCountry    = "countryId"
	ParamCategories = "categoryIds"
	ParamSpecialty  = "specialtyId"
)

// SharedParams are the foreign-key values chosen once per import and applied
// to every record, independent of the spreadsheet contents.
type SharedParams struct {
	CountryID   string   `json:"countryId"`
	CategoryIDs []string `json:"categoryIds,omitempty"`
	SpecialtyID string   `json:"specialtyId,omitempty"`
}

// Normalize trims every value and drops empty or repeated category ids,
// keeping the first occurrence order.
func (p SharedParams) Normalize() SharedParams {
	out := SharedParams{
		CountryID:   strings.TrimSpace(p.CountryID),
		SpecialtyID: strings.TrimSpace(p.SpecialtyID),
	}
	seen := make(map[string]bool, len(p.CategoryIDs))
	for _, id := range p.CategoryIDs {
		id = strings.TrimSpace(id)
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out.CategoryIDs = append(out.CategoryIDs, id)
	}
	return out
}

// Has reports whether the named parameter carries a value.
func (p SharedParams) Has(name string) bool {
	switch name {
	case ParamCountry:
		return strings.TrimSpace(p.CountryID) != ""
	case ParamCategories:
		for _, id := range p.CategoryIDs {
			if strings.TrimSpace(id) != "" {
				return true
			}
		}
		return false
	case ParamSpecialty:
		return strings.TrimSpace(p.SpecialtyID) != ""
	default:
		return false
	}
}

// IsZero reports whether no parameter has been chosen yet.
func (p SharedParams) IsZero() bool {
	return !p.Has(ParamCountry) && !p.Has(ParamCategories) && !p.Has(ParamSpecialty)
}

// MappedRecord is one submission-ready record. Position is its zero-based
// index in the full parsed sequence.
type MappedRecord struct {
	Position int `json:"position"`
	Payload  any `json:"payload"`
}

// Batch is a contiguous, order-preserving slice of records.
type Batch struct {
	Index   int // zero-based batch number
	Offset  int // position of the first record in the full sequence
	Records []MappedRecord
}

// Len returns the number of records in the batch.
func (b Batch) Len() int { return len(b.Records) }

// Payloads returns the record payloads in order, ready to be encoded.
func (b Batch) Payloads() []any {
	out := make([]any, len(b.Records))
	for i, rec := range b.Records {
		out[i] = rec.Payload
	}
	return out
}

// BatchSummary holds the endpoint's own aggregate counters for one batch.
type BatchSummary struct {
	Created int `json:"created"`
	Failed  int `json:"failed"`
}

// BatchResponse is the body returned by the submission endpoint on success.
type BatchResponse struct {
	Summary BatchSummary `json:"summary"`
	Errors  []RowError   `json:"errors"`
}

// RowError is a per-row validation failure inside a successful batch
// response. Index is local to the batch. Raw keeps the payload as received.
type RowError struct {
	Index  int
	Error  string
	Errors []string
	Raw    json.RawMessage
}

// UnmarshalJSON decodes leniently: fields with an unexpected shape are left
// empty rather than failing the whole batch response.
func (e *RowError) UnmarshalJSON(data []byte) error {
	e.Raw = append(json.RawMessage(nil), data...)

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		// Not an object; Raw alone describes it.
		return nil
	}
	if v, ok := fields["index"]; ok {
		_ = json.Unmarshal(v, &e.Index)
	}
	if v, ok := fields["error"]; ok {
		var s string
		if json.Unmarshal(v, &s) == nil {
			e.Error = s
		}
	}
	if v, ok := fields["errors"]; ok {
		var list []string
		if json.Unmarshal(v, &list) == nil {
			e.Errors = list
		}
	}
	return nil
}

// GlobalRowError is an error translated to the original file's numbering.
// RowNumber is 1-based. Batch is the 1-based batch number and is only set
// when the whole batch failed at the transport level.
type GlobalRowError struct {
	RowNumber int    `json:"rowNumber"`
	Message   string `json:"message"`
	Batch     int    `json:"batch,omitempty"`
}

// AggregateReport is the running or final tally of an import.
type AggregateReport struct {
	Total        int              `json:"total"`
	SuccessCount int              `json:"successCount"`
	FailedCount  int              `json:"failedCount"`
	Errors       []GlobalRowError `json:"errors"`
}

// State is the lifecycle state of an import session.
type State string

const (
	StateIdle        State = "idle"
	StateConfiguring State = "configuring"
	StateParsed      State = "parsed"
	StateUploading   State = "uploading"
	StateCompleted   State = "completed"
)

// Progress is published after every state change and every completed batch.
type Progress struct {
	SessionID    string `json:"sessionId"`
	Kind         string `json:"kind"`
	State        State  `json:"state"`
	Percent      int    `json:"percent"`
	BatchesDone  int    `json:"batchesDone"`
	BatchesTotal int    `json:"batchesTotal"`
	SuccessCount int    `json:"successCount"`
	FailedCount  int    `json:"failedCount"`
}

// ImportRun is a completed import as recorded in the history store. A
// session that is restarted and uploads again records a second run.
type ImportRun struct {
	ID           string           `json:"id"` // one per upload
	SessionID    string           `json:"sessionId"`
	Kind         string           `json:"kind"`
	FileName     string           `json:"fileName"`
	Params       SharedParams     `json:"params"`
	Total        int              `json:"total"`
	SuccessCount int              `json:"successCount"`
	FailedCount  int              `json:"failedCount"`
	Errors       []GlobalRowError `json:"errors,omitempty"`
	StartedAt    time.Time        `json:"startedAt"`
	FinishedAt   time.Time        `json:"finishedAt"`
}

// Duration returns how long the upload phase took.
func (r ImportRun) Duration() time.Duration {
	return r.FinishedAt.Sub(r.StartedAt)
}
