package core

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// UploadTimeout bounds one session upload, including pacing.
var UploadTimeout = 30 * time.Minute

// historyTimeout bounds recording a finished run.
const historyTimeout = 10 * time.Second

// ServiceConfig configures a Service. Zero values take defaults.
type ServiceConfig struct {
	Scheduler     SchedulerConfig
	MaxConcurrent int
	MaxWait       time.Duration
	SessionTTL    time.Duration // idle sessions older than this are evicted (default: 1h)

	// OnSuccess runs once per upload that created at least one record.
	OnSuccess func(kind string, report AggregateReport)

	Logger *slog.Logger
}

// Service owns the import sessions of a running process.
type Service struct {
	submit  Submitter
	history HistoryStore
	limiter *UploadLimiter
	cfg     ServiceConfig
	log     *slog.Logger

	mu       sync.RWMutex
	sessions map[string]*trackedSession
}

// trackedSession adds progress fan-out and upload bookkeeping to a Session.
type trackedSession struct {
	*Session

	listenerMu sync.Mutex
	listeners  []chan Progress
	last       Progress
	running    bool
	done       chan struct{}
	result     AggregateReport
	resultErr  error
}

// NewService creates a Service that submits through submit and records runs
// in history. A nil history uses an unbounded MemoryHistory.
func NewService(submit Submitter, history HistoryStore, cfg ServiceConfig) *Service {
	if history == nil {
		history = NewMemoryHistory(0)
	}
	if cfg.SessionTTL <= 0 {
		cfg.SessionTTL = time.Hour
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		submit:   submit,
		history:  history,
		limiter:  NewUploadLimiter(cfg.MaxConcurrent, cfg.MaxWait),
		cfg:      cfg,
		log:      logger,
		sessions: make(map[string]*trackedSession),
	}
}

// Kinds returns every registered import kind.
func (s *Service) Kinds() []Definition {
	return All()
}

// CreateSession starts an Idle session for kind and returns its id.
func (s *Service) CreateSession(ctx context.Context, kind string) (string, error) {
	def, err := Lookup(kind)
	if err != nil {
		return "", err
	}

	id := uuid.New().String()
	ts := &trackedSession{}

	logger := s.log
	if c, ok := ClientFromContext(ctx); ok {
		logger = logger.With("client_ip", c.IP)
	}

	ts.Session = NewSession(id, def, SessionOptions{
		Scheduler:  s.cfg.Scheduler,
		OnProgress: ts.publish,
		OnSuccess: func(report AggregateReport) {
			if s.cfg.OnSuccess != nil {
				s.cfg.OnSuccess(def.Key, report)
			}
		},
		Logger: logger,
	})
	ts.last = ts.Snapshot().Progress

	s.mu.Lock()
	s.sessions[id] = ts
	s.mu.Unlock()

	logger.Info("import session created", "session_id", id, "kind", def.Key)
	return id, nil
}

func (s *Service) session(id string) (*trackedSession, error) {
	s.mu.RLock()
	ts, ok := s.sessions[id]
	s.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrSessionNotFound, id)
	}
	return ts, nil
}

// Session returns the session with the given id.
func (s *Service) Session(id string) (*Session, error) {
	ts, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return ts.Session, nil
}

// SetParams sets the shared parameters of a session.
func (s *Service) SetParams(id string, p SharedParams) (Snapshot, error) {
	ts, err := s.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ts.SetParams(p); err != nil {
		return Snapshot{}, err
	}
	return ts.Snapshot(), nil
}

// Parse decodes a file into the session.
func (s *Service) Parse(ctx context.Context, id, fileName string, data []byte) (Snapshot, error) {
	ts, err := s.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ts.Parse(ctx, fileName, data); err != nil {
		return Snapshot{}, err
	}
	return ts.Snapshot(), nil
}

// Preview returns up to limit mapped records.
func (s *Service) Preview(id string, limit int) ([]MappedRecord, error) {
	ts, err := s.session(id)
	if err != nil {
		return nil, err
	}
	return ts.Preview(limit), nil
}

// Snapshot returns the session view.
func (s *Service) Snapshot(id string) (Snapshot, error) {
	ts, err := s.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	return ts.Snapshot(), nil
}

// StartUpload moves the session to Uploading, takes a limiter slot and runs
// the upload in the background. Session inputs are locked before waiting on
// the limiter; if no slot is granted the session returns to Parsed. It
// returns once the upload has started; follow it with SubscribeProgress or
// Wait.
func (s *Service) StartUpload(ctx context.Context, id string) error {
	ts, err := s.session(id)
	if err != nil {
		return err
	}

	pending, err := ts.BeginUpload(s.submit)
	if err != nil {
		return err
	}

	ts.listenerMu.Lock()
	if ts.running {
		// The previous run is still recording its history.
		ts.listenerMu.Unlock()
		err := &StateError{State: StateUploading, Action: eventActions[EventStartUpload]}
		pending.Abort(err)
		return err
	}
	ts.running = true
	ts.done = make(chan struct{})
	ts.listenerMu.Unlock()

	if err := s.limiter.Acquire(ctx); err != nil {
		pending.Abort(err)
		ts.finish(AggregateReport{}, err)
		return err
	}

	go s.runUpload(ts, pending)
	return nil
}

func (s *Service) runUpload(ts *trackedSession, pending *PendingUpload) {
	ctx, cancel := context.WithTimeout(context.Background(), UploadTimeout)
	defer cancel()

	report, err := pending.Run(ctx)
	if err != nil {
		s.log.Warn("upload ended with error", "session_id", ts.ID(), "error", err)
	}

	run := pending.Result()
	hctx, hcancel := context.WithTimeout(context.Background(), historyTimeout)
	if herr := s.history.Record(hctx, run); herr != nil {
		s.log.Error("record import history", "session_id", ts.ID(), "run_id", run.ID, "error", herr)
	}
	hcancel()

	s.limiter.Release()
	ts.finish(report, err)
}

// Wait blocks until the session's current upload finishes and returns its
// report. It returns immediately with the last report when no upload is
// running.
func (s *Service) Wait(ctx context.Context, id string) (AggregateReport, error) {
	ts, err := s.session(id)
	if err != nil {
		return AggregateReport{}, err
	}

	ts.listenerMu.Lock()
	done := ts.done
	ts.listenerMu.Unlock()

	if done != nil {
		select {
		case <-done:
		case <-ctx.Done():
			return AggregateReport{}, ctx.Err()
		}
	}

	ts.listenerMu.Lock()
	defer ts.listenerMu.Unlock()
	if r := ts.Report(); r != nil {
		return *r, ts.resultErr
	}
	return ts.result, ts.resultErr
}

// SubscribeProgress returns a channel that receives the current progress
// right away and every update after it. The channel is closed when the
// session completes an upload or is closed.
func (s *Service) SubscribeProgress(id string) (<-chan Progress, error) {
	ts, err := s.session(id)
	if err != nil {
		return nil, err
	}

	ch := make(chan Progress, 16)

	ts.listenerMu.Lock()
	defer ts.listenerMu.Unlock()

	ch <- ts.last
	if ts.last.State == StateCompleted && !ts.running {
		close(ch)
		return ch, nil
	}
	ts.listeners = append(ts.listeners, ch)
	return ch, nil
}

// Restart returns the session to Idle.
func (s *Service) Restart(id string) (Snapshot, error) {
	ts, err := s.session(id)
	if err != nil {
		return Snapshot{}, err
	}
	if err := ts.Restart(); err != nil {
		return Snapshot{}, err
	}
	return ts.Snapshot(), nil
}

// Close removes a session. Sessions cannot be closed mid-upload.
func (s *Service) Close(id string) error {
	ts, err := s.session(id)
	if err != nil {
		return err
	}
	if ts.busy() {
		return &StateError{State: StateUploading, Action: "close the session"}
	}

	s.mu.Lock()
	delete(s.sessions, id)
	s.mu.Unlock()

	ts.closeListeners()
	s.log.Debug("import session closed", "session_id", id)
	return nil
}

// EvictIdle closes sessions without activity since before now-SessionTTL
// and returns how many were removed. Uploading sessions are kept.
func (s *Service) EvictIdle(now time.Time) int {
	cutoff := now.Add(-s.cfg.SessionTTL)

	var stale []*trackedSession
	s.mu.Lock()
	for id, ts := range s.sessions {
		if ts.busy() || !ts.LastActivity().Before(cutoff) {
			continue
		}
		delete(s.sessions, id)
		stale = append(stale, ts)
	}
	s.mu.Unlock()

	for _, ts := range stale {
		ts.closeListeners()
	}
	if len(stale) > 0 {
		s.log.Info("evicted idle import sessions", "count", len(stale))
	}
	return len(stale)
}

// RunJanitor evicts idle sessions every interval until ctx is done.
func (s *Service) RunJanitor(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case now := <-ticker.C:
			s.EvictIdle(now)
		}
	}
}

// SessionCount returns the number of tracked sessions.
func (s *Service) SessionCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sessions)
}

// History lists recorded runs for kind, newest first.
func (s *Service) History(ctx context.Context, kind string, limit int) ([]ImportRun, error) {
	if kind != "" {
		if _, err := Lookup(kind); err != nil {
			return nil, err
		}
	}
	return s.history.List(ctx, kind, limit)
}

// HistoryStore returns the store used for completed runs.
func (s *Service) HistoryStore() HistoryStore { return s.history }

// UploadStatus reports limiter occupancy.
func (s *Service) UploadStatus() UploadLimiterStatus {
	return s.limiter.Status()
}

// Shutdown waits for running uploads to finish or ctx to end.
func (s *Service) Shutdown(ctx context.Context) error {
	return s.limiter.WaitForDrain(ctx)
}

// publish records p as the latest progress and fans it out. Slow listeners
// miss intermediate updates. A Completed update closes every listener.
func (ts *trackedSession) publish(p Progress) {
	ts.listenerMu.Lock()
	defer ts.listenerMu.Unlock()

	ts.last = p
	for _, ch := range ts.listeners {
		select {
		case ch <- p:
		default:
		}
	}
	if p.State == StateCompleted {
		for _, ch := range ts.listeners {
			close(ch)
		}
		ts.listeners = nil
	}
}

func (ts *trackedSession) finish(report AggregateReport, err error) {
	ts.listenerMu.Lock()
	defer ts.listenerMu.Unlock()

	ts.result = report
	ts.resultErr = err
	ts.running = false
	if ts.last.State == StateCompleted {
		for _, ch := range ts.listeners {
			close(ch)
		}
		ts.listeners = nil
	}
	if ts.done != nil {
		select {
		case <-ts.done:
		default:
			close(ts.done)
		}
	}
}

// busy reports whether an upload has been started and not yet finished.
func (ts *trackedSession) busy() bool {
	ts.listenerMu.Lock()
	running := ts.running
	ts.listenerMu.Unlock()
	return running || ts.State() == StateUploading
}

func (ts *trackedSession) closeListeners() {
	ts.listenerMu.Lock()
	defer ts.listenerMu.Unlock()

	for _, ch := range ts.listeners {
		close(ch)
	}
	ts.listeners = nil
}
