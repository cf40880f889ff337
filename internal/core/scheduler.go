package core

// scheduler.go partitions mapped records into batches and drives their
// submission.
//
// Batches are submitted strictly one at a time with a fixed pause between
// them; this is the only backpressure applied to the pharmacy API. A batch
// that fails at the transport level is reported and the run continues with
// the next batch.
//
// Run returns a lazy sequence: nothing is submitted until the caller ranges
// over it, and each outcome is handed over before the pacing pause, so tests
// can step through a run with a fake submitter and a no-op sleep.

import (
	"context"
	"errors"
	"iter"
	"math"
	"time"
)

// Submitter delivers one batch to the submission endpoint. A nil error means
// the endpoint answered with a well-formed batch response; any error is a
// transport failure for the whole batch.
type Submitter interface {
	SubmitBatch(ctx context.Context, def Definition, batch Batch) (*BatchResponse, error)
}

// SubmitterFunc adapts a function to Submitter.
type SubmitterFunc func(ctx context.Context, def Definition, batch Batch) (*BatchResponse, error)

// SubmitBatch calls f.
func (f SubmitterFunc) SubmitBatch(ctx context.Context, def Definition, batch Batch) (*BatchResponse, error) {
	return f(ctx, def, batch)
}

// SleepFunc waits for d or until ctx is done.
type SleepFunc func(ctx context.Context, d time.Duration) error

// Sleep is the production SleepFunc.
func Sleep(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// NoSleep skips pacing. Intended for tests.
func NoSleep(ctx context.Context, _ time.Duration) error { return ctx.Err() }

// Partition splits records into ceil(len/size) contiguous batches.
// A non-positive size falls back to DefaultBatchSize.
func Partition(records []MappedRecord, size int) []Batch {
	if size <= 0 {
		size = DefaultBatchSize
	}
	batches := make([]Batch, 0, (len(records)+size-1)/size)
	for offset := 0; offset < len(records); offset += size {
		end := min(offset+size, len(records))
		batches = append(batches, Batch{
			Index:   len(batches),
			Offset:  offset,
			Records: records[offset:end],
		})
	}
	return batches
}

// ProgressPercent returns round(done/total*100); 0 when total is 0.
func ProgressPercent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return int(math.Round(float64(done) / float64(total) * 100))
}

// SchedulerConfig holds the batching and pacing knobs.
type SchedulerConfig struct {
	BatchSize   int           // default: 50
	PacingDelay time.Duration // default: 300ms; negative disables pacing
	Sleep       SleepFunc     // default: Sleep
}

func (c SchedulerConfig) withDefaults() SchedulerConfig {
	if c.BatchSize <= 0 {
		c.BatchSize = DefaultBatchSize
	}
	if c.PacingDelay == 0 {
		c.PacingDelay = DefaultPacingDelay
	}
	if c.PacingDelay < 0 {
		c.PacingDelay = 0
	}
	if c.Sleep == nil {
		c.Sleep = Sleep
	}
	return c
}

// BatchOutcome is the result of submitting one batch. Exactly one of
// Response and Err is set.
type BatchOutcome struct {
	Batch    Batch
	Total    int // number of batches in the run
	Response *BatchResponse
	Err      *TransportError
	Percent  int // progress after this batch
}

// Scheduler drives the sequential submission of one import's batches.
type Scheduler struct {
	def     Definition
	batches []Batch
	submit  Submitter
	cfg     SchedulerConfig
}

// NewScheduler partitions records and prepares a run against submit.
func NewScheduler(def Definition, records []MappedRecord, submit Submitter, cfg SchedulerConfig) *Scheduler {
	cfg = cfg.withDefaults()
	return &Scheduler{
		def:     def,
		batches: Partition(records, cfg.BatchSize),
		submit:  submit,
		cfg:     cfg,
	}
}

// Batches returns the planned batches.
func (s *Scheduler) Batches() []Batch {
	return s.batches
}

// Run submits the batches in order, yielding one outcome per batch. The
// pacing pause runs between batches, after the previous outcome has been
// yielded. Iteration stops early if the consumer stops or ctx is done
// during a pause.
func (s *Scheduler) Run(ctx context.Context) iter.Seq[BatchOutcome] {
	return func(yield func(BatchOutcome) bool) {
		total := len(s.batches)
		for i, b := range s.batches {
			if i > 0 {
				if err := s.cfg.Sleep(ctx, s.cfg.PacingDelay); err != nil {
					return
				}
			}

			out := BatchOutcome{
				Batch:   b,
				Total:   total,
				Percent: ProgressPercent(i+1, total),
			}

			resp, err := s.submit.SubmitBatch(ctx, s.def, b)
			if err == nil && resp == nil {
				err = errors.New("empty batch response")
			}
			if err != nil {
				out.Err = &TransportError{Batch: b.Index + 1, Offset: b.Offset, Size: b.Len(), Err: err}
			} else {
				out.Response = resp
			}

			if !yield(out) {
				return
			}
		}
	}
}
