package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func echoRemote() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(r.RemoteAddr))
	})
}

func TestTrustedRealIP(t *testing.T) {
	h := TrustedRealIP([]string{"10.0.0.0/8", "192.168.1.5", "not-an-ip"})(echoRemote())

	tests := []struct {
		name   string
		remote string
		header map[string]string
		want   string
	}{
		{
			name:   "trusted proxy X-Real-IP",
			remote: "10.1.2.3:5000",
			header: map[string]string{"X-Real-IP": "203.0.113.7"},
			want:   "203.0.113.7",
		},
		{
			name:   "trusted single address with X-Forwarded-For",
			remote: "192.168.1.5:5000",
			header: map[string]string{"X-Forwarded-For": "198.51.100.2, 10.1.2.3"},
			want:   "198.51.100.2",
		},
		{
			name:   "untrusted peer keeps its address",
			remote: "203.0.113.9:4000",
			header: map[string]string{"X-Real-IP": "1.2.3.4"},
			want:   "203.0.113.9:4000",
		},
		{
			name:   "garbage header ignored",
			remote: "10.1.2.3:5000",
			header: map[string]string{"X-Real-IP": "nope"},
			want:   "10.1.2.3:5000",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.header {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)
			if got := rec.Body.String(); got != tt.want {
				t.Errorf("RemoteAddr = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestRateLimit_PerClient(t *testing.T) {
	rejected := 0
	h := RateLimit(2, func(w http.ResponseWriter, r *http.Request) {
		rejected++
		w.WriteHeader(http.StatusTooManyRequests)
	})(echoRemote())

	send := func(addr string) int {
		req := httptest.NewRequest(http.MethodGet, "/", nil)
		req.RemoteAddr = addr
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	for i := range 2 {
		if code := send("198.51.100.1:1000"); code != http.StatusOK {
			t.Fatalf("request %d status = %d", i+1, code)
		}
	}
	// Different port, same client.
	if code := send("198.51.100.1:2000"); code != http.StatusTooManyRequests {
		t.Errorf("third request status = %d, want 429", code)
	}
	if code := send("198.51.100.2:1000"); code != http.StatusOK {
		t.Errorf("other client status = %d, want 200", code)
	}
	if rejected != 1 {
		t.Errorf("rejected = %d, want 1", rejected)
	}
}

func TestIPLimiter_ForgetsIdleClients(t *testing.T) {
	l := newIPLimiter(1)
	now := time.Now()
	if !l.allow("a", now) || l.allow("a", now) {
		t.Fatal("burst of one not enforced")
	}

	later := now.Add(visitorTTL + time.Minute)
	l.allow("b", later)
	if _, ok := l.visitors["a"]; ok {
		t.Error("idle client not collected")
	}
}

type flushRecorder struct {
	*httptest.ResponseRecorder
	flushed int
}

func (f *flushRecorder) Flush() { f.flushed++ }

func TestLogger_PassesFlushThrough(t *testing.T) {
	h := Logger(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		f, ok := w.(http.Flusher)
		if !ok {
			t.Fatal("wrapped writer is not a Flusher")
		}
		w.WriteHeader(http.StatusTeapot)
		w.WriteHeader(http.StatusOK) // ignored
		_, _ = w.Write([]byte("data: x\n\n"))
		f.Flush()
	}))

	rec := &flushRecorder{ResponseRecorder: httptest.NewRecorder()}
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/stream", nil))

	if rec.Code != http.StatusTeapot {
		t.Errorf("status = %d, want 418", rec.Code)
	}
	if rec.flushed != 1 {
		t.Errorf("flushed %d times, want 1", rec.flushed)
	}
}

func TestIsValidAPIKey(t *testing.T) {
	keys := []string{"alpha", "beta"}
	if !isValidAPIKey("beta", keys) || isValidAPIKey("gamma", keys) || isValidAPIKey("", nil) {
		t.Error("isValidAPIKey() mismatch")
	}
}
