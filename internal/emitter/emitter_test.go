package emitter

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docflow/internal/history"
	"docflow/internal/sla"
	"docflow/internal/testsupport"
)

func serveUntilDeadline(t *testing.T, e *Emitter, timeout time.Duration) *httptest.ResponseRecorder {
	t.Helper()
	e.tick = 10 * time.Millisecond

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	recorder := httptest.NewRecorder()
	if err := e.Serve(ctx, recorder); !errors.Is(err, context.DeadlineExceeded) {
		t.Fatalf("Serve = %v, want deadline exceeded", err)
	}
	return recorder
}

func TestServeStreamsRecentActivity(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	now := time.Now().UTC()

	testsupport.OpenEntry(t, store, "file-1", history.StagePrelims, "w-1", "Asha", now.Add(-2*time.Second))
	if err := store.UpsertWorkerStatus(context.Background(), "w-1", "busy", now.Add(-time.Second)); err != nil {
		t.Fatalf("UpsertWorkerStatus: %v", err)
	}
	// Old enough to fall out of the assignment window and into the stale scan.
	testsupport.OpenEntry(t, store, "file-old", history.StagePrelims, "w-2", "Ben", now.Add(-25*time.Hour))

	e := New(store, sla.NewPolicyTable(cfg), cfg, nil).WithClock(func() time.Time { return now })
	recorder := serveUntilDeadline(t, e, 150*time.Millisecond)

	body := recorder.Body.String()
	if recorder.Header().Get("Content-Type") != "text/event-stream" {
		t.Fatalf("Content-Type = %s", recorder.Header().Get("Content-Type"))
	}
	for _, want := range []string{
		"event: connected",
		"event: task_assigned",
		`"file_id":"file-1"`,
		"event: employee_status",
		`"status":"busy"`,
		"event: sla_breach",
		`"file_id":"file-old"`,
	} {
		if !strings.Contains(body, want) {
			t.Fatalf("stream missing %q:\n%s", want, body)
		}
	}
	// file-1 is two seconds old, nowhere near its threshold.
	if strings.Contains(body, `"file_id":"file-1","stage":"prelims","worker_id":"w-1","worker_name":"Asha","duration_minutes"`) {
		t.Fatalf("fresh entry reported as breach:\n%s", body)
	}
}

func TestServeSkipsEntriesOutsideLookback(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	now := time.Now().UTC()

	// Assigned a minute ago with a five second lookback window.
	testsupport.OpenEntry(t, store, "file-quiet", history.StagePrelims, "w-1", "Asha", now.Add(-time.Minute))

	e := New(store, sla.NewPolicyTable(cfg), cfg, nil).WithClock(func() time.Time { return now })
	recorder := serveUntilDeadline(t, e, 50*time.Millisecond)

	if body := recorder.Body.String(); strings.Contains(body, "file-quiet") {
		t.Fatalf("entry outside the window leaked into the stream:\n%s", body)
	}
}

type failingSource struct{}

func (failingSource) RecentAssignments(context.Context, time.Time) ([]*history.Entry, error) {
	return nil, errors.New("db unavailable")
}

func (failingSource) RecentWorkerStatus(context.Context, time.Time) ([]history.WorkerStatus, error) {
	return nil, errors.New("db unavailable")
}

func (failingSource) StaleOpenEntries(context.Context, time.Time, int) ([]*history.Entry, error) {
	return nil, errors.New("db unavailable")
}

func TestServeReportsQueryFailuresWithoutClosing(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	e := New(failingSource{}, sla.NewPolicyTable(cfg), cfg, nil)
	recorder := serveUntilDeadline(t, e, 150*time.Millisecond)

	body := recorder.Body.String()
	if !strings.Contains(body, "event: error") {
		t.Fatalf("stream missing error event:\n%s", body)
	}
	// The stream kept ticking after the first failure.
	if strings.Count(body, "event: error") < 2 {
		t.Fatalf("stream closed after first query failure:\n%s", body)
	}
}

type flushlessWriter struct {
	header http.Header
}

func (w *flushlessWriter) Header() http.Header {
	if w.header == nil {
		w.header = make(http.Header)
	}
	return w.header
}

func (w *flushlessWriter) Write(p []byte) (int, error) { return len(p), nil }
func (w *flushlessWriter) WriteHeader(int)             {}

func TestServeRequiresFlusher(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	e := New(failingSource{}, sla.NewPolicyTable(cfg), cfg, nil)

	if err := e.Serve(context.Background(), &flushlessWriter{}); err == nil {
		t.Fatal("Serve must reject writers that cannot flush")
	}
}
