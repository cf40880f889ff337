package submit

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/JonMunkholm/pharmaimport/internal/core"
)

var testDef = core.Definition{
	Key:  "doctors",
	Path: "/doctors/bulk",
	Map:  func(core.RawRow, core.SharedParams) any { return nil },
}

func testBatch(n int) core.Batch {
	recs := make([]core.MappedRecord, n)
	for i := range recs {
		recs[i] = core.MappedRecord{Position: i, Payload: map[string]int{"n": i}}
	}
	return core.Batch{Index: 0, Offset: 0, Records: recs}
}

func newTestClient(t *testing.T, h http.HandlerFunc) *Client {
	t.Helper()
	srv := httptest.NewServer(h)
	t.Cleanup(srv.Close)

	c, err := New(Config{BaseURL: srv.URL + "/api/", Token: "secret", Timeout: 5 * time.Second})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return c
}

func TestSubmitBatch_Success(t *testing.T) {
	var (
		gotPath, gotAuth, gotReqID string
		gotBody                    []map[string]int
	)
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotAuth = r.Header.Get("Authorization")
		gotReqID = r.Header.Get(DefaultRequestIDHeader)
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode request body: %v", err)
		}
		w.WriteHeader(http.StatusCreated)
		_, _ = io.WriteString(w, `{"summary":{"created":2,"failed":1},"errors":[{"index":2,"error":"duplicate email"}]}`)
	})

	resp, err := c.SubmitBatch(context.Background(), testDef, testBatch(3))
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}

	if gotPath != "/api/doctors/bulk" {
		t.Errorf("path = %q, want /api/doctors/bulk", gotPath)
	}
	if gotAuth != "Bearer secret" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if gotReqID == "" {
		t.Error("request id header not set")
	}
	if len(gotBody) != 3 || gotBody[2]["n"] != 2 {
		t.Errorf("body = %v, want 3 records in order", gotBody)
	}

	if resp.Summary != (core.BatchSummary{Created: 2, Failed: 1}) {
		t.Errorf("summary = %+v", resp.Summary)
	}
	if len(resp.Errors) != 1 || resp.Errors[0].Index != 2 || resp.Errors[0].Error != "duplicate email" {
		t.Errorf("errors = %+v", resp.Errors)
	}
}

func TestSubmitBatch_NonSuccessWithSummaryIsAResponse(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = io.WriteString(w, `{"summary":{"created":0,"failed":2},"errors":[{"index":0,"errors":["a","b"]}]}`)
	})

	resp, err := c.SubmitBatch(context.Background(), testDef, testBatch(2))
	if err != nil {
		t.Fatalf("SubmitBatch: %v", err)
	}
	if resp.Summary.Failed != 2 {
		t.Errorf("failed = %d, want 2", resp.Summary.Failed)
	}
	if got := core.RowErrorMessage(resp.Errors[0]); got != "a; b" {
		t.Errorf("message = %q", got)
	}
}

func TestSubmitBatch_TransportFailures(t *testing.T) {
	tests := []struct {
		name    string
		status  int
		body    string
		wantErr string
	}{
		{"server error", http.StatusInternalServerError, "boom", "http status 500: boom"},
		{"gateway without body", http.StatusBadGateway, "", "http status 502"},
		{"ok without summary", http.StatusOK, `{"ok":true}`, "no summary"},
		{"ok not json", http.StatusOK, "<html>", "json unmarshal response"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
				w.WriteHeader(tt.status)
				_, _ = io.WriteString(w, tt.body)
			})
			resp, err := c.SubmitBatch(context.Background(), testDef, testBatch(1))
			if err == nil {
				t.Fatalf("expected error, got response %+v", resp)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("err = %q, want it to contain %q", err, tt.wantErr)
			}
		})
	}
}

func TestSubmitBatch_StatusErrorIsTyped(t *testing.T) {
	c := newTestClient(t, func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "nope", http.StatusServiceUnavailable)
	})
	_, err := c.SubmitBatch(context.Background(), testDef, testBatch(1))

	var se *StatusError
	if !errors.As(err, &se) || se.StatusCode != http.StatusServiceUnavailable {
		t.Fatalf("err = %v, want *StatusError 503", err)
	}
}

func TestSubmitBatch_NetworkError(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c, err := New(Config{BaseURL: url})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	if _, err := c.SubmitBatch(context.Background(), testDef, testBatch(1)); err == nil {
		t.Fatal("expected an error from a closed server")
	}
}

func TestNew_RejectsBadBaseURL(t *testing.T) {
	for _, raw := range []string{"", "not a url", "/relative"} {
		if _, err := New(Config{BaseURL: raw}); err == nil {
			t.Errorf("New(%q) should fail", raw)
		}
	}
}
