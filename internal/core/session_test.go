package core

import (
	"context"
	"errors"
	"slices"
	"strings"
	"sync"
	"testing"
	"time"
)

func TestTransition(t *testing.T) {
	tests := []struct {
		from    State
		ev      Event
		want    State
		wantErr bool
	}{
		{StateIdle, EventSetParams, StateConfiguring, false},
		{StateConfiguring, EventSetParams, StateConfiguring, false},
		{StateParsed, EventSetParams, StateParsed, false},
		{StateUploading, EventSetParams, StateUploading, true},
		{StateCompleted, EventSetParams, StateCompleted, true},

		{StateIdle, EventParsed, StateParsed, false},
		{StateConfiguring, EventParsed, StateParsed, false},
		{StateParsed, EventParsed, StateParsed, false},
		{StateCompleted, EventParsed, StateParsed, false},
		{StateUploading, EventParsed, StateUploading, true},

		{StateIdle, EventParseFailed, StateIdle, false},
		{StateParsed, EventParseFailed, StateConfiguring, false},
		{StateUploading, EventParseFailed, StateUploading, true},

		{StateParsed, EventStartUpload, StateUploading, false},
		{StateIdle, EventStartUpload, StateIdle, true},
		{StateConfiguring, EventStartUpload, StateConfiguring, true},
		{StateUploading, EventStartUpload, StateUploading, true},
		{StateCompleted, EventStartUpload, StateCompleted, true},

		{StateUploading, EventFinishUpload, StateCompleted, false},
		{StateParsed, EventFinishUpload, StateParsed, true},

		{StateUploading, EventAbortUpload, StateParsed, false},
		{StateCompleted, EventAbortUpload, StateCompleted, true},
		{StateParsed, EventAbortUpload, StateParsed, true},

		{StateCompleted, EventRestart, StateIdle, false},
		{StateParsed, EventRestart, StateIdle, false},
		{StateIdle, EventRestart, StateIdle, false},
		{StateUploading, EventRestart, StateUploading, true},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+string(tt.ev), func(t *testing.T) {
			got, err := Transition(tt.from, tt.ev)
			if (err != nil) != tt.wantErr {
				t.Fatalf("Transition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if got != tt.want {
				t.Errorf("Transition() = %s, want %s", got, tt.want)
			}
			var se *StateError
			if err != nil && !errors.As(err, &se) {
				t.Errorf("error %T is not a *StateError", err)
			}
		})
	}
}

type sessionRecorder struct {
	mu        sync.Mutex
	progress  []Progress
	successes []AggregateReport
}

func (r *sessionRecorder) options(batchSize int) SessionOptions {
	return SessionOptions{
		Scheduler: SchedulerConfig{BatchSize: batchSize, Sleep: NoSleep},
		OnProgress: func(p Progress) {
			r.mu.Lock()
			r.progress = append(r.progress, p)
			r.mu.Unlock()
		},
		OnSuccess: func(rep AggregateReport) {
			r.mu.Lock()
			r.successes = append(r.successes, rep)
			r.mu.Unlock()
		},
		Now: fixedClock(),
	}
}

func (r *sessionRecorder) uploadPercents() []int {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []int
	for _, p := range r.progress {
		if p.State == StateUploading && p.BatchesDone > 0 {
			out = append(out, p.Percent)
		}
	}
	return out
}

func parsedSession(t *testing.T, rec *sessionRecorder, rows int) *Session {
	t.Helper()
	s := NewSession("s1", peopleDefinition(), rec.options(50))
	if err := s.SetParams(SharedParams{CountryID: "ar"}); err != nil {
		t.Fatal(err)
	}
	if err := s.Parse(context.Background(), "people.csv", peopleCSV(rows)); err != nil {
		t.Fatal(err)
	}
	return s
}

func TestSession_FullUpload(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 120)
	sub := &fakeSubmitter{}

	report, err := s.Upload(context.Background(), sub)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if report.Total != 120 || report.SuccessCount != 120 || report.FailedCount != 0 {
		t.Errorf("report = %+v", report)
	}
	if got := rec.uploadPercents(); !slices.Equal(got, []int{33, 67, 100}) {
		t.Errorf("progress = %v, want [33 67 100]", got)
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %s, want completed", s.State())
	}
	if len(rec.successes) != 1 || rec.successes[0].SuccessCount != 120 {
		t.Errorf("OnSuccess calls = %+v", rec.successes)
	}

	run, ok := s.Run()
	if !ok || run.Kind != testKind || run.FileName != "people.csv" || run.SuccessCount != 120 {
		t.Errorf("Run() = %+v, %v", run, ok)
	}
	if run.SessionID != "s1" || run.ID == "" || run.ID == run.SessionID {
		t.Errorf("run ids = %q (session %q), want a run id of its own", run.ID, run.SessionID)
	}
	if !run.FinishedAt.After(run.StartedAt) {
		t.Errorf("FinishedAt %v not after StartedAt %v", run.FinishedAt, run.StartedAt)
	}

	// Payloads carry the shared parameters and keep file order.
	calls := sub.calls()
	first := calls[0].Records[0].Payload.(person)
	last := calls[2].Records[19].Payload.(person)
	if first.CountryID != "ar" || first.Name != "Person 1" || last.Name != "Person 120" {
		t.Errorf("payloads = %+v ... %+v", first, last)
	}
}

func TestSession_TransportFailureMidRun(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 120)
	sub := &fakeSubmitter{
		respond: func(b Batch) (*BatchResponse, error) {
			if b.Index == 1 {
				return nil, &TransportError{Batch: 2, Err: errors.New("boom")}
			}
			return &BatchResponse{Summary: BatchSummary{Created: b.Len()}}, nil
		},
	}

	report, err := s.Upload(context.Background(), sub)
	if err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if report.SuccessCount != 70 || report.FailedCount != 50 {
		t.Errorf("success=%d failed=%d, want 70/50", report.SuccessCount, report.FailedCount)
	}
	if len(report.Errors) != 1 || !strings.Contains(report.Errors[0].Message, "batch 2") {
		t.Errorf("errors = %+v", report.Errors)
	}
	if len(sub.calls()) != 3 {
		t.Errorf("submitted %d batches, want 3", len(sub.calls()))
	}
}

func TestSession_UnreadableFile(t *testing.T) {
	rec := &sessionRecorder{}
	s := NewSession("s1", peopleDefinition(), rec.options(50))
	_ = s.SetParams(SharedParams{CountryID: "ar"})

	err := s.Parse(context.Background(), "scan.pdf", []byte("%PDF\x00\x01"))
	var pe *ParseError
	if !errors.As(err, &pe) {
		t.Fatalf("Parse() error = %v, want *ParseError", err)
	}
	snap := s.Snapshot()
	if snap.State != StateConfiguring || snap.RowCount != 0 || snap.Report != nil || snap.LastError == "" {
		t.Errorf("snapshot after parse failure = %+v", snap)
	}

	sub := &fakeSubmitter{}
	if _, err := s.Upload(context.Background(), sub); !errors.Is(err, ErrNoData) {
		t.Errorf("Upload() error = %v, want ErrNoData", err)
	}
	if len(sub.calls()) != 0 {
		t.Error("batches were submitted after a parse failure")
	}
}

func TestSession_NoDataRejected(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 0)
	sub := &fakeSubmitter{}

	_, err := s.Upload(context.Background(), sub)
	if !errors.Is(err, ErrNoData) {
		t.Fatalf("Upload() error = %v, want ErrNoData", err)
	}
	if !strings.Contains(err.Error(), "no data") {
		t.Errorf("error %q is not descriptive", err)
	}
	if len(sub.calls()) != 0 {
		t.Error("batches were submitted for an empty file")
	}
	if s.State() != StateParsed {
		t.Errorf("state = %s, want parsed", s.State())
	}
	if len(rec.successes) != 0 {
		t.Error("OnSuccess called without an upload")
	}
}

func TestSession_ParseRequiresParams(t *testing.T) {
	s := NewSession("s1", peopleDefinition(), SessionOptions{})
	err := s.Parse(context.Background(), "people.csv", peopleCSV(1))

	var ce *ConfigurationError
	if !errors.As(err, &ce) || !slices.Equal(ce.Missing, []string{ParamCountry}) {
		t.Fatalf("Parse() error = %v, want missing countryId", err)
	}
	if s.State() != StateIdle {
		t.Errorf("state = %s, want idle", s.State())
	}
}

func TestSession_ParamChangeInParsedRemaps(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 2)

	if err := s.SetParams(SharedParams{CountryID: "cl", CategoryIDs: []string{"c9"}}); err != nil {
		t.Fatalf("SetParams() error = %v", err)
	}
	p := s.Preview(1)[0].Payload.(person)
	if p.CountryID != "cl" || !slices.Equal(p.Categories, []string{"c9"}) {
		t.Errorf("preview after param change = %+v", p)
	}
	if s.State() != StateParsed {
		t.Errorf("state = %s, want parsed", s.State())
	}

	var ce *ConfigurationError
	if err := s.SetParams(SharedParams{}); !errors.As(err, &ce) {
		t.Errorf("clearing a required param in parsed: %v", err)
	}
	if s.Params().CountryID != "cl" {
		t.Error("rejected params were applied")
	}
}

func TestSession_InputsLockedWhileUploading(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 3)
	sub := &fakeSubmitter{block: make(chan struct{})}

	done := make(chan error, 1)
	go func() {
		_, err := s.Upload(context.Background(), sub)
		done <- err
	}()

	deadline := time.Now().Add(2 * time.Second)
	for s.State() != StateUploading {
		if time.Now().After(deadline) {
			t.Fatal("upload never started")
		}
		time.Sleep(time.Millisecond)
	}

	checks := map[string]error{
		"set params": s.SetParams(SharedParams{CountryID: "cl"}),
		"parse":      s.Parse(context.Background(), "other.csv", peopleCSV(1)),
		"restart":    s.Restart(),
	}
	if _, err := s.Upload(context.Background(), sub); err == nil {
		t.Error("second Upload() succeeded while uploading")
	}
	for name, err := range checks {
		var se *StateError
		if !errors.As(err, &se) || se.State != StateUploading {
			t.Errorf("%s while uploading: %v", name, err)
		}
	}

	close(sub.block)
	if err := <-done; err != nil {
		t.Fatalf("Upload() error = %v", err)
	}
	if s.Params().CountryID != "ar" {
		t.Error("params changed during upload")
	}
}

func TestSession_OnSuccessOnlyWhenRecordsCreated(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 2)
	sub := &fakeSubmitter{respond: func(b Batch) (*BatchResponse, error) {
		return &BatchResponse{
			Summary: BatchSummary{Failed: b.Len()},
			Errors:  []RowError{{Index: 0, Error: "invalid"}, {Index: 1, Error: "invalid"}},
		}, nil
	}}

	report, err := s.Upload(context.Background(), sub)
	if err != nil {
		t.Fatal(err)
	}
	if report.FailedCount != 2 || len(report.Errors) != 2 {
		t.Errorf("report = %+v", report)
	}
	if len(rec.successes) != 0 {
		t.Error("OnSuccess called with zero created records")
	}
}

func TestSession_NewFileAfterCompletion(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 2)
	if _, err := s.Upload(context.Background(), &fakeSubmitter{}); err != nil {
		t.Fatal(err)
	}

	if err := s.Parse(context.Background(), "next.csv", peopleCSV(5)); err != nil {
		t.Fatalf("Parse() after completion error = %v", err)
	}
	snap := s.Snapshot()
	if snap.State != StateParsed || snap.RowCount != 5 || snap.Report != nil || snap.Params.CountryID != "ar" {
		t.Errorf("snapshot = %+v", snap)
	}
	if _, ok := s.Run(); ok {
		t.Error("Run() reported a completed run after a new file")
	}
}

func TestSession_Restart(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 2)
	if _, err := s.Upload(context.Background(), &fakeSubmitter{}); err != nil {
		t.Fatal(err)
	}
	if err := s.Restart(); err != nil {
		t.Fatal(err)
	}
	snap := s.Snapshot()
	if snap.State != StateIdle || snap.RowCount != 0 || snap.Report != nil || !snap.Params.IsZero() {
		t.Errorf("snapshot after restart = %+v", snap)
	}
}

func TestSession_CancelledUploadStillCompletes(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 120)
	ctx, cancel := context.WithCancel(context.Background())
	sub := &fakeSubmitter{respond: func(b Batch) (*BatchResponse, error) {
		cancel()
		return &BatchResponse{Summary: BatchSummary{Created: b.Len()}}, nil
	}}

	report, err := s.Upload(ctx, sub)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("Upload() error = %v, want context.Canceled", err)
	}
	if report.SuccessCount != 50 {
		t.Errorf("success = %d, want 50", report.SuccessCount)
	}
	if s.State() != StateCompleted {
		t.Errorf("state = %s, want completed", s.State())
	}
}

// hookContext runs hook the first time Err is called. Ingest checks the
// context before decoding, which lets a test act while a file is being read.
type hookContext struct {
	context.Context
	once sync.Once
	hook func()
}

func (c *hookContext) Err() error {
	c.once.Do(c.hook)
	return c.Context.Err()
}

func TestSession_ParseDoesNotHoldLock(t *testing.T) {
	rec := &sessionRecorder{}
	s := NewSession("s1", peopleDefinition(), rec.options(50))
	if err := s.SetParams(SharedParams{CountryID: "ar"}); err != nil {
		t.Fatal(err)
	}

	ctx := &hookContext{Context: context.Background(), hook: func() {
		done := make(chan struct{})
		go func() {
			_ = s.Snapshot()
			close(done)
		}()
		select {
		case <-done:
		case <-time.After(time.Second):
			t.Error("Snapshot() blocked while the file was being read")
		}
	}}
	if err := s.Parse(ctx, "people.csv", peopleCSV(3)); err != nil {
		t.Fatalf("Parse() error = %v", err)
	}
	if snap := s.Snapshot(); snap.State != StateParsed || snap.RowCount != 3 {
		t.Errorf("snapshot = %+v", snap)
	}
}

func TestSession_ParseReplacedWhileReading(t *testing.T) {
	tests := []struct {
		name      string
		during    func(s *Session) error
		wantState State
		wantFile  string
		wantRows  int
	}{
		{
			name: "newer file wins",
			during: func(s *Session) error {
				return s.Parse(context.Background(), "second.csv", peopleCSV(2))
			},
			wantState: StateParsed,
			wantFile:  "second.csv",
			wantRows:  2,
		},
		{
			name:      "restart drops the file",
			during:    func(s *Session) error { return s.Restart() },
			wantState: StateIdle,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := &sessionRecorder{}
			s := NewSession("s1", peopleDefinition(), rec.options(50))
			if err := s.SetParams(SharedParams{CountryID: "ar"}); err != nil {
				t.Fatal(err)
			}

			ctx := &hookContext{Context: context.Background(), hook: func() {
				if err := tt.during(s); err != nil {
					t.Errorf("concurrent action error = %v", err)
				}
			}}
			if err := s.Parse(ctx, "first.csv", peopleCSV(5)); !errors.Is(err, ErrFileReplaced) {
				t.Fatalf("Parse() = %v, want ErrFileReplaced", err)
			}

			snap := s.Snapshot()
			if snap.State != tt.wantState || snap.FileName != tt.wantFile || snap.RowCount != tt.wantRows {
				t.Errorf("snapshot = state %s file %q rows %d, want %s %q %d",
					snap.State, snap.FileName, snap.RowCount, tt.wantState, tt.wantFile, tt.wantRows)
			}
		})
	}
}

func TestSession_AbortBeforeSubmission(t *testing.T) {
	rec := &sessionRecorder{}
	s := parsedSession(t, rec, 3)
	sub := &fakeSubmitter{}

	pending, err := s.BeginUpload(sub)
	if err != nil {
		t.Fatalf("BeginUpload() error = %v", err)
	}
	if s.State() != StateUploading {
		t.Fatalf("state = %s, want uploading", s.State())
	}
	var se *StateError
	if err := s.SetParams(SharedParams{CountryID: "cl"}); !errors.As(err, &se) {
		t.Errorf("SetParams() after BeginUpload = %v, want *StateError", err)
	}

	pending.Abort(ErrTooManyUploads)

	snap := s.Snapshot()
	if snap.State != StateParsed || snap.Report != nil || snap.RunID != "" {
		t.Errorf("snapshot after abort = %+v", snap)
	}
	if snap.LastError != ErrTooManyUploads.Error() {
		t.Errorf("LastError = %q", snap.LastError)
	}
	if len(sub.calls()) != 0 {
		t.Errorf("submitted %d batches, want 0", len(sub.calls()))
	}
	if err := s.SetParams(SharedParams{CountryID: "cl"}); err != nil {
		t.Errorf("SetParams() after abort = %v", err)
	}
}
