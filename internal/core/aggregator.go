package core

import (
	"fmt"
	"strings"
)

// rowErrorSeparator joins the messages of an `errors` array.
const rowErrorSeparator = "; "

// Aggregator accumulates batch outcomes into an AggregateReport.
//
// The endpoint's summary counters are authoritative for the totals; the
// itemized errors are translated and appended independently. The two are
// never reconciled against each other.
type Aggregator struct {
	report AggregateReport
}

// NewAggregator starts an empty report over total records.
func NewAggregator(total int) *Aggregator {
	return &Aggregator{report: AggregateReport{Total: total, Errors: []GlobalRowError{}}}
}

// Add folds one scheduler outcome into the report.
func (a *Aggregator) Add(out BatchOutcome) {
	if out.Err != nil {
		a.AddTransportFailure(out.Err)
		return
	}
	if out.Response != nil {
		a.AddResponse(out.Batch, *out.Response)
	}
}

// AddResponse records a successful batch response. Summary counts are
// clamped to the batch size so that success+failed never exceeds the
// number of records submitted.
func (a *Aggregator) AddResponse(batch Batch, resp BatchResponse) {
	size := batch.Len()
	created := clamp(resp.Summary.Created, 0, size)
	failed := clamp(resp.Summary.Failed, 0, size-created)

	a.report.SuccessCount += created
	a.report.FailedCount += failed

	for _, re := range resp.Errors {
		a.report.Errors = append(a.report.Errors, GlobalRowError{
			RowNumber: GlobalRowNumber(batch.Offset, re.Index),
			Message:   RowErrorMessage(re),
		})
	}
}

// AddTransportFailure marks every record of the batch as failed and records
// one batch-level error.
func (a *Aggregator) AddTransportFailure(err *TransportError) {
	a.report.FailedCount += err.Size
	a.report.Errors = append(a.report.Errors, GlobalRowError{
		RowNumber: err.Offset + 1,
		Message:   err.Error(),
		Batch:     err.Batch,
	})
}

// Report returns a copy of the current report.
func (a *Aggregator) Report() AggregateReport {
	r := a.report
	r.Errors = append([]GlobalRowError(nil), a.report.Errors...)
	return r
}

// GlobalRowNumber converts a batch-local index to a 1-based file row number.
func GlobalRowNumber(batchOffset, localIndex int) int {
	return batchOffset + localIndex + 1
}

// RowErrorMessage normalizes an endpoint row error: the `error` field if
// set, else the `errors` array joined, else the payload as received.
func RowErrorMessage(e RowError) string {
	if msg := strings.TrimSpace(e.Error); msg != "" {
		return msg
	}
	if len(e.Errors) > 0 {
		return strings.Join(e.Errors, rowErrorSeparator)
	}
	if raw := strings.TrimSpace(string(e.Raw)); raw != "" {
		return raw
	}
	return fmt.Sprintf("{index:%d}", e.Index)
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
