package core

// history.go keeps a record of completed imports. Recording is best-effort:
// a failing store is logged and never affects the import result.

import (
	"context"
	"slices"
	"sync"
	"time"
)

// DefaultHistoryLimit caps List results when no limit is given.
const DefaultHistoryLimit = 50

// HistoryStore persists completed import runs.
type HistoryStore interface {
	Record(ctx context.Context, run ImportRun) error
	// List returns the most recent runs for kind, newest first. An empty
	// kind lists every kind.
	List(ctx context.Context, kind string, limit int) ([]ImportRun, error)
	// Purge deletes runs finished before cutoff and returns how many.
	Purge(ctx context.Context, cutoff time.Time) (int64, error)
}

// MemoryHistory is an in-process HistoryStore, used when no database is
// configured.
type MemoryHistory struct {
	mu   sync.RWMutex
	runs []ImportRun
	max  int
}

// NewMemoryHistory keeps at most max runs (oldest dropped first); max <= 0
// keeps everything.
func NewMemoryHistory(max int) *MemoryHistory {
	return &MemoryHistory{max: max}
}

func (h *MemoryHistory) Record(_ context.Context, run ImportRun) error {
	h.mu.Lock()
	defer h.mu.Unlock()

	run.Errors = slices.Clone(run.Errors)
	run.Params.CategoryIDs = slices.Clone(run.Params.CategoryIDs)
	h.runs = append(h.runs, run)
	if h.max > 0 && len(h.runs) > h.max {
		h.runs = slices.Delete(h.runs, 0, len(h.runs)-h.max)
	}
	return nil
}

func (h *MemoryHistory) List(_ context.Context, kind string, limit int) ([]ImportRun, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}

	h.mu.RLock()
	defer h.mu.RUnlock()

	out := make([]ImportRun, 0, min(limit, len(h.runs)))
	for i := len(h.runs) - 1; i >= 0 && len(out) < limit; i-- {
		if kind == "" || h.runs[i].Kind == kind {
			out = append(out, h.runs[i])
		}
	}
	return out, nil
}

func (h *MemoryHistory) Purge(_ context.Context, cutoff time.Time) (int64, error) {
	h.mu.Lock()
	defer h.mu.Unlock()

	before := len(h.runs)
	h.runs = slices.DeleteFunc(h.runs, func(r ImportRun) bool {
		return r.FinishedAt.Before(cutoff)
	})
	return int64(before - len(h.runs)), nil
}
