package core

import (
	"context"
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
)

type execCall struct {
	sql  string
	args []any
}

// fakeExecutor records Exec calls; Query is not supported.
type fakeExecutor struct {
	calls []execCall
	tag   pgconn.CommandTag
	err   error
}

func (f *fakeExecutor) Exec(_ context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	f.calls = append(f.calls, execCall{sql: sql, args: args})
	return f.tag, f.err
}

func (f *fakeExecutor) Query(context.Context, string, ...any) (pgx.Rows, error) {
	return nil, errors.New("query not supported")
}

func TestPostgresHistory_Record(t *testing.T) {
	db := &fakeExecutor{tag: pgconn.NewCommandTag("INSERT 0 1")}
	h := NewPostgresHistory(db)

	run := ImportRun{
		ID:           "9b2f6a52-6a0e-4c51-9f0e-5b4f1f0d2c11",
		SessionID:    "5d0c7a4e-0b7f-4a8e-9d55-2f1c3b6a9e70",
		Kind:         "doctors",
		FileName:     "doctors.xlsx",
		Params:       SharedParams{CountryID: "ar"},
		Total:        3,
		SuccessCount: 2,
		FailedCount:  1,
		StartedAt:    time.Date(2026, 2, 1, 10, 0, 0, 0, time.UTC),
		FinishedAt:   time.Date(2026, 2, 1, 10, 1, 0, 0, time.UTC),
	}
	if err := h.Record(context.Background(), run); err != nil {
		t.Fatalf("Record() error = %v", err)
	}
	if len(db.calls) != 1 || !strings.Contains(db.calls[0].sql, "INSERT INTO import_runs") {
		t.Fatalf("calls = %+v", db.calls)
	}
	args := db.calls[0].args
	if len(args) != 11 {
		t.Fatalf("got %d args, want 11", len(args))
	}
	if id := args[0].(pgtype.UUID); !id.Valid || uuid.UUID(id.Bytes).String() != run.ID {
		t.Errorf("id = %v, want the run id %s", id, run.ID)
	}
	if sid := args[1].(string); sid != run.SessionID {
		t.Errorf("session_id = %q, want %q", sid, run.SessionID)
	}
	var errs []GlobalRowError
	if err := json.Unmarshal(args[8].([]byte), &errs); err != nil || errs == nil {
		t.Errorf("errors column = %s (%v), want an empty JSON array", args[8], err)
	}
	if ts := args[10].(pgtype.Timestamptz); !ts.Valid || !ts.Time.Equal(run.FinishedAt) {
		t.Errorf("finished_at = %+v", ts)
	}
}

func TestPostgresHistory_PurgeAndSchema(t *testing.T) {
	db := &fakeExecutor{tag: pgconn.NewCommandTag("DELETE 3")}
	h := NewPostgresHistory(db)

	if err := h.EnsureSchema(context.Background()); err != nil {
		t.Fatal(err)
	}
	n, err := h.Purge(context.Background(), time.Now())
	if err != nil || n != 3 {
		t.Errorf("Purge() = %d, %v, want 3", n, err)
	}
	if !strings.Contains(db.calls[0].sql, "CREATE TABLE IF NOT EXISTS import_runs") {
		t.Errorf("schema sql = %q", db.calls[0].sql)
	}

	db.err = errors.New("conn closed")
	if _, err := h.Purge(context.Background(), time.Now()); err == nil {
		t.Error("Purge() should surface executor errors")
	}
	if _, err := h.List(context.Background(), "", 10); err == nil {
		t.Error("List() should surface query errors")
	}
}
