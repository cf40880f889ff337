package core

// session.go implements the import session lifecycle:
//
//	Idle -> Configuring -> Parsed -> Uploading -> Completed
//
// Transition is the pure transition table. Session applies it, owns all
// mutable pipeline state and is the only writer of that state. Mapped
// records are derived from (rows, params) on read, so a parameter change in
// Parsed is reflected in every later preview and upload.

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is an input to the session state machine.
type Event string

const (
	EventSetParams    Event = "set_params"
	EventParsed       Event = "parsed"
	EventParseFailed  Event = "parse_failed"
	EventStartUpload  Event = "start_upload"
	EventFinishUpload Event = "finish_upload"
	EventAbortUpload  Event = "abort_upload"
	EventRestart      Event = "restart"
)

// eventActions names events in StateError messages.
var eventActions = map[Event]string{
	EventSetParams:    "change parameters",
	EventParsed:       "select a file",
	EventParseFailed:  "select a file",
	EventStartUpload:  "start the upload",
	EventFinishUpload: "finish the upload",
	EventAbortUpload:  "abort the upload",
	EventRestart:      "restart",
}

// Transition returns the state that follows from applying ev in from.
// It has no side effects.
func Transition(from State, ev Event) (State, error) {
	invalid := func() (State, error) {
		return from, &StateError{State: from, Action: eventActions[ev]}
	}

	switch ev {
	case EventSetParams:
		switch from {
		case StateIdle, StateConfiguring:
			return StateConfiguring, nil
		case StateParsed:
			return StateParsed, nil
		}
	case EventParsed:
		switch from {
		case StateIdle, StateConfiguring, StateParsed, StateCompleted:
			return StateParsed, nil
		}
	case EventParseFailed:
		switch from {
		case StateIdle:
			return StateIdle, nil
		case StateConfiguring, StateParsed, StateCompleted:
			return StateConfiguring, nil
		}
	case EventStartUpload:
		if from == StateParsed {
			return StateUploading, nil
		}
	case EventFinishUpload:
		if from == StateUploading {
			return StateCompleted, nil
		}
	case EventAbortUpload:
		// Only before the first batch is submitted.
		if from == StateUploading {
			return StateParsed, nil
		}
	case EventRestart:
		if from != StateUploading {
			return StateIdle, nil
		}
	}
	return invalid()
}

// SessionOptions configures a Session.
type SessionOptions struct {
	Scheduler SchedulerConfig

	// OnSuccess is called once per upload, after completion, and only when
	// at least one record was created.
	OnSuccess func(report AggregateReport)

	// OnProgress is called after every state change and completed batch.
	// It runs on the writer goroutine and must not block for long.
	OnProgress func(Progress)

	Logger *slog.Logger
	Now    func() time.Time
}

// Snapshot is a read-only view of a session for display.
type Snapshot struct {
	ID         string           `json:"id"`
	Kind       string           `json:"kind"`
	RunID      string           `json:"runId,omitempty"`
	State      State            `json:"state"`
	Params     SharedParams     `json:"params"`
	FileName   string           `json:"fileName,omitempty"`
	Columns    []string         `json:"columns,omitempty"`
	Unmatched  []string         `json:"unmatchedColumns,omitempty"`
	RowCount   int              `json:"rowCount"`
	Progress   Progress         `json:"progress"`
	Report     *AggregateReport `json:"report,omitempty"`
	LastError  string           `json:"lastError,omitempty"`
	StartedAt  *time.Time       `json:"startedAt,omitempty"`
	FinishedAt *time.Time       `json:"finishedAt,omitempty"`
}

// Session coordinates parse, mapping, batching and reporting for one import.
type Session struct {
	id   string
	def  Definition
	opts SessionOptions
	log  *slog.Logger

	mu        sync.RWMutex
	state     State
	params    SharedParams
	paramsRev int
	fileName  string
	rows      []RawRow
	rowsRev   int
	parseSeq  int
	runID     string
	mapped    mappingCache
	report    *AggregateReport
	progress  Progress
	lastErr   string
	started   time.Time
	finished  time.Time
	touched   time.Time
}

// NewSession creates an Idle session for def.
func NewSession(id string, def Definition, opts SessionOptions) *Session {
	if opts.Now == nil {
		opts.Now = time.Now
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}
	s := &Session{
		id:    id,
		def:   def,
		opts:  opts,
		log:   logger.With("session_id", id, "kind", def.Key),
		state: StateIdle,
	}
	s.touched = opts.Now()
	s.progress = Progress{SessionID: id, Kind: def.Key, State: StateIdle}
	return s
}

// ID returns the session id.
func (s *Session) ID() string { return s.id }

// Definition returns the import kind definition.
func (s *Session) Definition() Definition { return s.def }

// State returns the current lifecycle state.
func (s *Session) State() State {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state
}

// LastActivity returns the time of the last mutation.
func (s *Session) LastActivity() time.Time {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.touched
}

// SetParams replaces the shared parameters. In Parsed the records are
// re-derived from the stored rows; removing a required parameter there is
// rejected with a ConfigurationError.
func (s *Session) SetParams(p SharedParams) error {
	s.mu.Lock()

	next, err := Transition(s.state, EventSetParams)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	p = p.Normalize()
	if next == StateParsed {
		if missing := s.def.MissingParams(p); len(missing) > 0 {
			s.mu.Unlock()
			return &ConfigurationError{Kind: s.def.Key, Missing: missing}
		}
	}

	s.params = p
	s.paramsRev++
	s.setStateLocked(next)
	s.lastErr = ""
	progress := s.progress
	s.mu.Unlock()

	s.log.Debug("parameters updated", "state", next, "country", p.CountryID, "categories", len(p.CategoryIDs))
	s.notify(progress)
	return nil
}

// Params returns the current shared parameters.
func (s *Session) Params() SharedParams {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.params
}

// Parse decodes a newly selected file. Required parameters must be set
// first. Any previous file, preview and report are discarded before the new
// file is read; on failure the session is left without a file.
//
// The file is decoded without holding the session lock. If another file is
// selected or the session is restarted meanwhile, the rows are dropped and
// ErrFileReplaced is returned.
func (s *Session) Parse(ctx context.Context, fileName string, data []byte) error {
	s.mu.Lock()

	if _, err := Transition(s.state, EventParsed); err != nil {
		s.mu.Unlock()
		return err
	}
	if missing := s.def.MissingParams(s.params); len(missing) > 0 {
		err := &ConfigurationError{Kind: s.def.Key, Missing: missing}
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}

	s.clearFileLocked()
	seq := s.parseSeq
	s.mu.Unlock()

	rows, err := Ingest(ctx, fileName, data)

	s.mu.Lock()
	if seq != s.parseSeq {
		s.mu.Unlock()
		s.log.Debug("parse result dropped", "file", fileName)
		return ErrFileReplaced
	}

	if err != nil {
		next, _ := Transition(s.state, EventParseFailed)
		if next == StateIdle && !s.params.IsZero() {
			next = StateConfiguring
		}
		s.setStateLocked(next)
		s.lastErr = err.Error()
		progress := s.progress
		s.mu.Unlock()

		s.log.Warn("parse failed", "file", fileName, "error", err)
		s.notify(progress)
		return err
	}

	next, err := Transition(s.state, EventParsed)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	if missing := s.def.MissingParams(s.params); len(missing) > 0 {
		err := &ConfigurationError{Kind: s.def.Key, Missing: missing}
		s.lastErr = err.Error()
		s.mu.Unlock()
		return err
	}
	s.fileName = fileName
	s.rows = rows
	s.rowsRev++
	s.setStateLocked(next)
	progress := s.progress
	s.mu.Unlock()

	s.log.Info("file parsed", "file", fileName, "rows", len(rows))
	s.notify(progress)
	return nil
}

// Records returns the mapped records for the current rows and parameters.
func (s *Session) Records() []MappedRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	recs := s.recordsLocked()
	out := make([]MappedRecord, len(recs))
	copy(out, recs)
	return out
}

// Preview returns up to limit mapped records; limit <= 0 returns all.
func (s *Session) Preview(limit int) []MappedRecord {
	recs := s.Records()
	if limit > 0 && len(recs) > limit {
		recs = recs[:limit]
	}
	return recs
}

// Upload submits all mapped records through the batch scheduler and blocks
// until every batch has been attempted. Transport failures are folded into
// the report; the returned error is non-nil only when the upload could not
// start or ctx ended the run early.
func (s *Session) Upload(ctx context.Context, submit Submitter) (AggregateReport, error) {
	pending, err := s.BeginUpload(submit)
	if err != nil {
		return AggregateReport{}, err
	}
	return pending.Run(ctx)
}

// PendingUpload is an upload that has locked the session's inputs but has
// not submitted anything yet. Exactly one of Run or Abort must be called.
type PendingUpload struct {
	s     *Session
	sched *Scheduler
	agg   *Aggregator
	run   ImportRun
}

// Result returns the completed run once Run has returned. It is not
// affected by a later restart of the session.
func (p *PendingUpload) Result() ImportRun { return p.run }

// BeginUpload moves a Parsed session to Uploading and fixes the records to
// submit. Parameter changes, new files and restarts are rejected from here
// on.
func (s *Session) BeginUpload(submit Submitter) (*PendingUpload, error) {
	s.mu.Lock()

	if s.state == StateIdle || s.state == StateConfiguring {
		s.mu.Unlock()
		return nil, ErrNoData
	}
	next, err := Transition(s.state, EventStartUpload)
	if err != nil {
		s.mu.Unlock()
		return nil, err
	}
	records := s.recordsLocked()
	if len(records) == 0 {
		s.lastErr = ErrNoData.Error()
		s.mu.Unlock()
		return nil, ErrNoData
	}

	sched := NewScheduler(s.def, records, submit, s.opts.Scheduler)
	agg := NewAggregator(len(records))
	report := agg.Report()

	s.report = &report
	s.runID = uuid.New().String()
	s.started = s.opts.Now()
	s.finished = time.Time{}
	s.lastErr = ""
	s.setStateLocked(next)
	s.progress.BatchesTotal = len(sched.Batches())
	s.progress.Percent = 0
	s.progress.BatchesDone = 0
	progress := s.progress
	runID := s.runID
	s.mu.Unlock()

	s.log.Info("upload started", "run_id", runID, "records", len(records), "batches", progress.BatchesTotal)
	s.notify(progress)

	return &PendingUpload{s: s, sched: sched, agg: agg}, nil
}

// Abort returns the session to Parsed without submitting anything. reason
// is kept as the session's last error.
func (p *PendingUpload) Abort(reason error) {
	s := p.s
	s.mu.Lock()
	next, err := Transition(s.state, EventAbortUpload)
	if err != nil {
		s.mu.Unlock()
		return
	}
	s.report = nil
	s.runID = ""
	s.started = time.Time{}
	if reason != nil {
		s.lastErr = reason.Error()
	}
	s.setStateLocked(next)
	s.progress.BatchesTotal = 0
	progress := s.progress
	s.mu.Unlock()

	s.log.Info("upload aborted before submission", "reason", reason)
	s.notify(progress)
}

// Run submits every batch and completes the session.
func (p *PendingUpload) Run(ctx context.Context) (AggregateReport, error) {
	s, agg := p.s, p.agg

	for out := range p.sched.Run(ctx) {
		agg.Add(out)
		report := agg.Report()

		if out.Err != nil {
			s.log.Warn("batch failed", "batch", out.Err.Batch, "size", out.Err.Size, "error", out.Err.Err)
		} else {
			s.log.Debug("batch submitted",
				"batch", out.Batch.Index+1,
				"created", out.Response.Summary.Created,
				"failed", out.Response.Summary.Failed,
				"row_errors", len(out.Response.Errors),
			)
		}

		s.mu.Lock()
		s.report = &report
		s.progress.BatchesDone = out.Batch.Index + 1
		s.progress.Percent = out.Percent
		s.progress.SuccessCount = report.SuccessCount
		s.progress.FailedCount = report.FailedCount
		s.touched = s.opts.Now()
		progress := s.progress
		s.mu.Unlock()

		s.notify(progress)
	}

	final := agg.Report()
	runErr := ctx.Err()

	s.mu.Lock()
	done, _ := Transition(s.state, EventFinishUpload)
	s.report = &final
	s.finished = s.opts.Now()
	if runErr != nil {
		s.lastErr = runErr.Error()
	}
	s.setStateLocked(done)
	p.run = s.runLocked()
	progress := s.progress
	elapsed := s.finished.Sub(s.started)
	s.mu.Unlock()

	s.log.Info("upload completed",
		"run_id", p.run.ID,
		"success", final.SuccessCount,
		"failed", final.FailedCount,
		"errors", len(final.Errors),
		"duration_ms", elapsed.Milliseconds(),
	)
	s.notify(progress)

	if final.SuccessCount > 0 && s.opts.OnSuccess != nil {
		s.opts.OnSuccess(final)
	}

	return final, runErr
}

// Report returns the in-progress or final report, or nil before upload.
func (s *Session) Report() *AggregateReport {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.report == nil {
		return nil
	}
	r := *s.report
	r.Errors = append([]GlobalRowError(nil), s.report.Errors...)
	return &r
}

// Restart clears file, parameters, preview and report and returns to Idle.
func (s *Session) Restart() error {
	s.mu.Lock()
	next, err := Transition(s.state, EventRestart)
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.clearFileLocked()
	s.params = SharedParams{}
	s.paramsRev++
	s.lastErr = ""
	s.setStateLocked(next)
	progress := s.progress
	s.mu.Unlock()

	s.log.Debug("session restarted")
	s.notify(progress)
	return nil
}

// Snapshot returns a consistent view of the session.
func (s *Session) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()

	snap := Snapshot{
		ID:        s.id,
		Kind:      s.def.Key,
		RunID:     s.runID,
		State:     s.state,
		Params:    s.params,
		FileName:  s.fileName,
		RowCount:  len(s.rows),
		Progress:  s.progress,
		LastError: s.lastErr,
	}
	if len(s.rows) > 0 {
		snap.Columns = s.rows[0].Columns()
		snap.Unmatched = s.def.Aliases.Unmatched(snap.Columns)
	}
	if s.report != nil {
		r := *s.report
		r.Errors = append([]GlobalRowError(nil), s.report.Errors...)
		snap.Report = &r
	}
	if !s.started.IsZero() {
		t := s.started
		snap.StartedAt = &t
	}
	if !s.finished.IsZero() {
		t := s.finished
		snap.FinishedAt = &t
	}
	return snap
}

// Run returns the completed run for history recording. ok is false unless
// the session is Completed.
func (s *Session) Run() (ImportRun, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.state != StateCompleted || s.report == nil {
		return ImportRun{}, false
	}
	return s.runLocked(), true
}

func (s *Session) runLocked() ImportRun {
	run := ImportRun{
		ID:         s.runID,
		SessionID:  s.id,
		Kind:       s.def.Key,
		FileName:   s.fileName,
		Params:     s.params,
		StartedAt:  s.started,
		FinishedAt: s.finished,
	}
	if s.report != nil {
		run.Total = s.report.Total
		run.SuccessCount = s.report.SuccessCount
		run.FailedCount = s.report.FailedCount
		run.Errors = append([]GlobalRowError(nil), s.report.Errors...)
	}
	return run
}

func (s *Session) recordsLocked() []MappedRecord {
	return s.mapped.get(s.def, s.rows, s.rowsRev, s.params, s.paramsRev)
}

// clearFileLocked drops the file and everything derived from it.
func (s *Session) clearFileLocked() {
	s.fileName = ""
	s.rows = nil
	s.rowsRev++
	s.parseSeq++
	s.runID = ""
	s.mapped.reset()
	s.report = nil
	s.started = time.Time{}
	s.finished = time.Time{}
	s.progress = Progress{SessionID: s.id, Kind: s.def.Key, State: s.state}
	if s.state == StateParsed || s.state == StateCompleted {
		if s.params.IsZero() {
			s.state = StateIdle
		} else {
			s.state = StateConfiguring
		}
		s.progress.State = s.state
	}
}

func (s *Session) setStateLocked(next State) {
	s.state = next
	s.progress.State = next
	s.touched = s.opts.Now()
}

func (s *Session) notify(p Progress) {
	if s.opts.OnProgress != nil {
		s.opts.OnProgress(p)
	}
}
