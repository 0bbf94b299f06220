// Package telemetry records low-overhead request traces. Only a small
// sample of requests carries full span traces; everything else is
// ignored unless it crosses the slow-request threshold. Records are
// appended as JSON lines under <stateDir>/telemetry/telemetry.jsonl by
// a background writer that drops on backpressure rather than blocking
// a request.
package telemetry

import (
	"context"
	"encoding/json"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"sync/atomic"
	"time"
)

type traceKey struct{}

var (
	reqCounter  atomic.Uint64
	spanCounter atomic.Uint64

	// sampleEvery N requests get a full trace; forced via the
	// X-Debug-Telemetry header. 0 disables tracing entirely.
	sampleEvery   atomic.Int64
	slowThreshold atomic.Int64

	stateDir   string
	writerOnce sync.Once
	writerCh   chan []byte
)

func init() {
	sampleEvery.Store(1000)
	slowThreshold.Store(int64(200 * time.Millisecond))
}

// SetStateDir points the background writer at <dir>/telemetry. Call
// before the first request; the writer resolves the path once.
func SetStateDir(dir string) { stateDir = dir }

// SetSampleEvery sets full-trace sampling to one in n requests.
// n <= 0 disables sampled traces (slow-request records still appear).
func SetSampleEvery(n int) { sampleEvery.Store(int64(n)) }

// SetSlowThreshold sets the duration above which unsampled requests
// still produce a record.
func SetSlowThreshold(d time.Duration) { slowThreshold.Store(int64(d)) }

type span struct {
	ID      uint64 `json:"id"`
	Parent  uint64 `json:"parent,omitempty"`
	Op      string `json:"op"`
	StartMs int64  `json:"start_ms"`
	TookMs  int64  `json:"took_ms"`
}

type trace struct {
	start time.Time

	mu    sync.Mutex
	op    string
	spans []span
	stack []uint64
}

type record struct {
	Kind     string `json:"kind"`
	Request  string `json:"request"`
	Op       string `json:"op"`
	TookMs   int64  `json:"took_ms"`
	Status   int    `json:"status"`
	Spans    []span `json:"spans,omitempty"`
	LoggedAt string `json:"logged_at"`
}

// Middleware samples requests for tracing and logs slow ones.
func Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		reqID := "r-" + strconv.FormatUint(reqCounter.Add(1), 10)

		var tr *trace
		if sampled(r) {
			tr = &trace{start: start, op: r.URL.Path}
			root := spanCounter.Add(1)
			tr.spans = append(tr.spans, span{ID: root, Op: tr.op})
			tr.stack = append(tr.stack, root)
			r = r.WithContext(context.WithValue(r.Context(), traceKey{}, tr))
		}

		sw := &statusWriter{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(sw, r)
		took := time.Since(start)

		if tr != nil {
			tr.mu.Lock()
			rec := record{
				Kind:     "trace",
				Request:  reqID,
				Op:       tr.op,
				TookMs:   took.Milliseconds(),
				Status:   sw.status,
				LoggedAt: time.Now().UTC().Format(time.RFC3339),
			}
			// message sends are the hot path; keep their records flat
			if tr.op != "send_message" {
				rec.Spans = append([]span(nil), tr.spans...)
			}
			tr.mu.Unlock()
			emit(rec)
			return
		}

		if took > time.Duration(slowThreshold.Load()) {
			emit(record{
				Kind:     "slow",
				Request:  reqID,
				Op:       r.URL.Path,
				TookMs:   took.Milliseconds(),
				Status:   sw.status,
				LoggedAt: time.Now().UTC().Format(time.RFC3339),
			})
		}
	})
}

// StartSpan opens a span under the current request trace and returns
// its end function. Unsampled requests get a no-op end.
func StartSpan(ctx context.Context, op string) func() {
	tr, _ := ctx.Value(traceKey{}).(*trace)
	if tr == nil {
		return func() {}
	}
	startRel := time.Since(tr.start).Milliseconds()
	id := spanCounter.Add(1)

	tr.mu.Lock()
	var parent uint64
	if len(tr.stack) > 0 {
		parent = tr.stack[len(tr.stack)-1]
	}
	tr.spans = append(tr.spans, span{ID: id, Parent: parent, Op: op, StartMs: startRel})
	tr.stack = append(tr.stack, id)
	idx := len(tr.spans) - 1
	tr.mu.Unlock()

	return func() {
		endRel := time.Since(tr.start).Milliseconds()
		tr.mu.Lock()
		if idx < len(tr.spans) {
			tr.spans[idx].TookMs = endRel - tr.spans[idx].StartMs
		}
		if len(tr.stack) > 0 {
			tr.stack = tr.stack[:len(tr.stack)-1]
		}
		tr.mu.Unlock()
	}
}

// SetRequestOp names the top-level operation for the current trace.
// No-op for unsampled requests, so handlers can call it unconditionally.
func SetRequestOp(ctx context.Context, op string) {
	tr, _ := ctx.Value(traceKey{}).(*trace)
	if tr == nil {
		return
	}
	tr.mu.Lock()
	tr.op = op
	if len(tr.spans) > 0 {
		tr.spans[0].Op = op
	}
	tr.mu.Unlock()
}

func sampled(r *http.Request) bool {
	if r.Header.Get("X-Debug-Telemetry") == "1" {
		return true
	}
	every := sampleEvery.Load()
	if every <= 0 {
		return false
	}
	return int64(reqCounter.Load())%every == 0
}

func emit(rec record) {
	data, err := json.Marshal(rec)
	if err != nil {
		return
	}
	writerOnce.Do(startWriter)
	select {
	case writerCh <- data:
	default:
	}
}

func startWriter() {
	writerCh = make(chan []byte, 1024)
	go func() {
		dir := filepath.Join(".", "state", "telemetry")
		if stateDir != "" {
			dir = filepath.Join(stateDir, "telemetry")
		}
		_ = os.MkdirAll(dir, 0o755)
		f, err := os.OpenFile(filepath.Join(dir, "telemetry.jsonl"), os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
		if err != nil {
			for range writerCh {
			}
			return
		}
		defer f.Close()
		for b := range writerCh {
			_, _ = f.Write(append(b, '\n'))
		}
	}()
}

type statusWriter struct {
	http.ResponseWriter
	status int
}

func (w *statusWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

// Flush keeps SSE responses streaming through the middleware.
func (w *statusWriter) Flush() {
	if f, ok := w.ResponseWriter.(http.Flusher); ok {
		f.Flush()
	}
}
