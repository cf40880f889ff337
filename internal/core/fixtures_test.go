package core

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"
)

// testKind is registered once for the session and service tests.
const testKind = "test_people"

type person struct {
	Name       string   `json:"name"`
	Email      string   `json:"email"`
	CountryID  string   `json:"countryId"`
	Categories []string `json:"categoryIds"`
}

var peopleAliases = AliasTable{
	{Field: "name", Headers: []string{"Name", "Nombre"}},
	{Field: "email", Headers: []string{"Email", "Correo Electrónico"}},
}

func peopleDefinition() Definition {
	return Definition{
		Key:            testKind,
		Label:          "People",
		Path:           "/people/bulk",
		Aliases:        peopleAliases,
		RequiredParams: []string{ParamCountry},
		Map: func(row RawRow, p SharedParams) any {
			return person{
				Name:       peopleAliases.Resolve(row, "name"),
				Email:      peopleAliases.Resolve(row, "email"),
				CountryID:  p.CountryID,
				Categories: p.CategoryIDs,
			}
		},
		Examples: [][]string{{"Ana García", "ana@example.com"}},
	}
}

func init() {
	Register(peopleDefinition())
}

// peopleCSV returns a CSV file with n data rows.
func peopleCSV(n int) []byte {
	var b strings.Builder
	b.WriteString("Name,Email\n")
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&b, "Person %d,p%d@example.com\n", i, i)
	}
	return []byte(b.String())
}

// testRecords returns n mapped records with Position set.
func testRecords(n int) []MappedRecord {
	out := make([]MappedRecord, n)
	for i := range out {
		out[i] = MappedRecord{Position: i, Payload: i}
	}
	return out
}

// fakeSubmitter records every batch and answers with respond, or with
// "everything created" when respond is nil.
type fakeSubmitter struct {
	mu       sync.Mutex
	batches  []Batch
	inFlight int
	maxSeen  int
	respond  func(b Batch) (*BatchResponse, error)
	block    chan struct{} // when set, each call waits for a receive
}

func (f *fakeSubmitter) SubmitBatch(ctx context.Context, _ Definition, b Batch) (*BatchResponse, error) {
	f.mu.Lock()
	f.batches = append(f.batches, b)
	f.inFlight++
	f.maxSeen = max(f.maxSeen, f.inFlight)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.inFlight--
		f.mu.Unlock()
	}()

	if f.block != nil {
		select {
		case <-f.block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if f.respond != nil {
		return f.respond(b)
	}
	return &BatchResponse{Summary: BatchSummary{Created: b.Len()}}, nil
}

func (f *fakeSubmitter) calls() []Batch {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]Batch(nil), f.batches...)
}

// sleepRecorder is a SleepFunc that returns immediately and remembers the
// requested pauses.
type sleepRecorder struct {
	mu     sync.Mutex
	pauses []time.Duration
}

func (s *sleepRecorder) sleep(ctx context.Context, d time.Duration) error {
	s.mu.Lock()
	s.pauses = append(s.pauses, d)
	s.mu.Unlock()
	return ctx.Err()
}

func (s *sleepRecorder) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pauses)
}

// fixedClock returns a Now func that advances one second per call.
func fixedClock() func() time.Time {
	var mu sync.Mutex
	t := time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)
	return func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		t = t.Add(time.Second)
		return t
	}
}
