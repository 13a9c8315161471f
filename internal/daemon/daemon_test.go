package daemon

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"docflow/internal/analytics"
	"docflow/internal/api"
	"docflow/internal/config"
	"docflow/internal/history"
	"docflow/internal/hub"
	"docflow/internal/notify"
	"docflow/internal/testsupport"
)

type eventRecorder struct {
	mu     sync.Mutex
	events []hub.Event
}

func (r *eventRecorder) WriteJSON(v any) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if event, ok := v.(hub.Event); ok {
		r.events = append(r.events, event)
	}
	return nil
}

func (r *eventRecorder) Close() error { return nil }

func (r *eventRecorder) typesSeen() map[hub.EventType]int {
	r.mu.Lock()
	defer r.mu.Unlock()
	seen := make(map[hub.EventType]int)
	for _, event := range r.events {
		seen[event.Type]++
	}
	return seen
}

type testDaemon struct {
	daemon        *Daemon
	cfg           *config.Config
	store         *history.Store
	notifications *notify.Store
	sink          *analytics.Sink
}

func newTestDaemon(t *testing.T) *testDaemon {
	t.Helper()
	cfg := testsupport.NewConfig(t)
	store := testsupport.MustOpenStore(t, cfg)
	notifications := testsupport.MustOpenNotifyStore(t, cfg)
	sink, err := analytics.OpenSink(cfg)
	if err != nil {
		t.Fatalf("OpenSink: %v", err)
	}
	t.Cleanup(func() { _ = sink.Close() })

	d, err := New(cfg, store, notifications, sink, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return &testDaemon{daemon: d, cfg: cfg, store: store, notifications: notifications, sink: sink}
}

func TestNewRequiresDependencies(t *testing.T) {
	if _, err := New(nil, nil, nil, nil, nil); err == nil {
		t.Fatal("New accepted nil dependencies")
	}
}

func TestCompleteStageBroadcastsProgression(t *testing.T) {
	td := newTestDaemon(t)
	ctx := context.Background()

	testsupport.OpenEntry(t, td.store, "file-1", history.StagePrelims, "w-1", "Asha", time.Now().UTC().Add(-10*time.Minute))

	recorder := &eventRecorder{}
	td.daemon.hub.Attach("observer", recorder)

	result, err := td.daemon.CompleteStage(ctx, "file-1", "w-1", "Asha")
	if err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if result.PreviousStage != history.StagePrelims || result.NextStage != history.StageProduction {
		t.Fatalf("result = %+v", result)
	}
	if result.Breach != nil {
		t.Fatalf("ten minute stage reported a breach: %+v", result.Breach)
	}

	seen := recorder.typesSeen()
	if seen[hub.EventStageCompleted] != 1 {
		t.Fatalf("stage_completed broadcasts = %d, want 1", seen[hub.EventStageCompleted])
	}
	if seen[hub.EventTaskAssigned] != 1 {
		t.Fatalf("task_assigned broadcasts = %d, want 1", seen[hub.EventTaskAssigned])
	}
}

func TestCompleteStageEscalatesBreachInline(t *testing.T) {
	td := newTestDaemon(t)
	ctx := context.Background()

	// Three hours in a one hour stage.
	testsupport.OpenEntry(t, td.store, "file-late", history.StagePrelims, "w-1", "Asha", time.Now().UTC().Add(-181*time.Minute))

	result, err := td.daemon.CompleteStage(ctx, "file-late", "w-1", "Asha")
	if err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if result.Breach == nil {
		t.Fatal("no breach on a three hour prelims stage")
	}

	// No directory entry for w-1, so the cascade falls back to an in-app
	// notification addressed to the worker directly.
	list, err := td.notifications.ListForRecipient(ctx, "w-1", false)
	if err != nil {
		t.Fatalf("ListForRecipient: %v", err)
	}
	if len(list) == 0 {
		t.Fatal("breach produced no in-app notification")
	}

	pending, err := td.sink.PendingBreachEvents(ctx, 0)
	if err != nil {
		t.Fatalf("PendingBreachEvents: %v", err)
	}
	if len(pending) != 1 || pending[0].FileID != "file-late" {
		t.Fatalf("pending events = %+v", pending)
	}
}

func TestSweepSLAEscalatesBreachOnce(t *testing.T) {
	td := newTestDaemon(t)
	ctx := context.Background()

	// Three hours in a one hour stage.
	testsupport.OpenEntry(t, td.store, "file-late", history.StagePrelims, "w-1", "Asha", time.Now().UTC().Add(-181*time.Minute))

	recorder := &eventRecorder{}
	td.daemon.hub.Attach("observer", recorder)

	td.daemon.sweepSLA(ctx)
	td.daemon.sweepSLA(ctx)

	list, err := td.notifications.ListForRecipient(ctx, "w-1", false)
	if err != nil {
		t.Fatalf("ListForRecipient: %v", err)
	}
	if len(list) != 1 {
		t.Fatalf("in-app notifications = %d, want exactly 1 across repeated sweeps", len(list))
	}

	pending, err := td.sink.PendingBreachEvents(ctx, 0)
	if err != nil {
		t.Fatalf("PendingBreachEvents: %v", err)
	}
	if len(pending) != 1 || pending[0].FileID != "file-late" {
		t.Fatalf("pending events = %+v", pending)
	}

	entry, err := td.store.OpenEntry(ctx, "file-late")
	if err != nil {
		t.Fatalf("OpenEntry: %v", err)
	}
	if entry == nil || !entry.EscalationSent {
		t.Fatalf("entry after sweep = %+v, want escalation recorded", entry)
	}

	// The sweep only buffers; real-time delivery belongs to the drain loop.
	if seen := recorder.typesSeen(); seen[hub.EventSLABreached] != 0 {
		t.Fatalf("sweep broadcast %d sla_breached events directly", seen[hub.EventSLABreached])
	}
}

func TestSweepSLARacesCompletion(t *testing.T) {
	td := newTestDaemon(t)
	ctx := context.Background()

	testsupport.OpenEntry(t, td.store, "file-late", history.StagePrelims, "w-1", "Asha", time.Now().UTC().Add(-181*time.Minute))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := td.daemon.CompleteStage(ctx, "file-late", "w-1", "Asha"); err != nil {
			t.Errorf("CompleteStage: %v", err)
		}
	}()
	td.daemon.sweepSLA(ctx)
	wg.Wait()

	// Whatever the interleaving, the progression happened exactly once.
	entries, err := td.store.EntriesForFile(ctx, "file-late")
	if err != nil {
		t.Fatalf("EntriesForFile: %v", err)
	}
	closedPrelims, openProduction := 0, 0
	var prelims *history.Entry
	for _, entry := range entries {
		switch {
		case entry.Stage == history.StagePrelims && !entry.Open():
			closedPrelims++
			prelims = entry
		case entry.Stage == history.StageProduction && entry.Open():
			openProduction++
		}
	}
	if closedPrelims != 1 || openProduction != 1 {
		t.Fatalf("closed prelims = %d, open production = %d, want 1/1", closedPrelims, openProduction)
	}
	if prelims == nil || !prelims.EscalationSent {
		t.Fatal("breached entry never marked escalated")
	}

	// Delivery to people is near-once: a sweep and an inline escalation can
	// both clear the escalated check before either marks it, but never more.
	list, err := td.notifications.ListForRecipient(ctx, "w-1", false)
	if err != nil {
		t.Fatalf("ListForRecipient: %v", err)
	}
	if len(list) < 1 || len(list) > 2 {
		t.Fatalf("in-app notifications = %d, want 1 or 2", len(list))
	}

	// The analytics buffer is at-least-once; consumers dedupe on file and
	// stage downstream.
	pending, err := td.sink.PendingBreachEvents(ctx, 0)
	if err != nil {
		t.Fatalf("PendingBreachEvents: %v", err)
	}
	if len(pending) < 1 || len(pending) > 2 {
		t.Fatalf("pending events = %d, want 1 or 2", len(pending))
	}
	for _, event := range pending {
		if event.FileID != "file-late" {
			t.Fatalf("unexpected pending event %+v", event)
		}
	}
}

func TestStatusReportsStoreAndHub(t *testing.T) {
	td := newTestDaemon(t)
	ctx := context.Background()

	testsupport.OpenEntry(t, td.store, "file-1", history.StagePrelims, "w-1", "Asha", time.Now().UTC())
	td.daemon.hub.Attach("alice", &eventRecorder{})

	status, err := td.daemon.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.Running {
		t.Fatal("Running = true before Start")
	}
	if status.PID <= 0 {
		t.Fatalf("PID = %d", status.PID)
	}
	if status.OpenByStage["prelims"] != 1 || status.TotalEntries != 1 {
		t.Fatalf("status = %+v", status)
	}
	if status.Connections != 1 || status.ConnectedUsers != 1 {
		t.Fatalf("hub counts = %d/%d", status.Connections, status.ConnectedUsers)
	}
	if status.DatabasePath != td.cfg.DatabasePath() {
		t.Fatalf("DatabasePath = %s", status.DatabasePath)
	}
}

func TestHTTPEndpoints(t *testing.T) {
	td := newTestDaemon(t)
	ctx := context.Background()

	testsupport.OpenEntry(t, td.store, "file-1", history.StagePrelims, "w-1", "Asha", time.Now().UTC().Add(-10*time.Minute))

	server := httptest.NewServer(td.daemon.server.server.Handler)
	defer server.Close()
	client := api.NewClient(server.URL)

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if status.OpenByStage["prelims"] != 1 {
		t.Fatalf("status = %+v", status)
	}

	result, err := client.CompleteStage(ctx, "file-1", api.CompleteRequest{WorkerID: "w-1", WorkerName: "Asha"})
	if err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if result.NextStage != "production" {
		t.Fatalf("NextStage = %s", result.NextStage)
	}

	trail, err := client.FileHistory(ctx, "file-1")
	if err != nil {
		t.Fatalf("FileHistory: %v", err)
	}
	if len(trail.Entries) != 2 {
		t.Fatalf("history entries = %d, want closed prelims plus open production", len(trail.Entries))
	}

	// The production entry opened unassigned; the assignment service
	// stamps a worker onto it.
	assigned, err := client.Assign(ctx, "file-1", api.AssignRequest{WorkerID: "w-9", WorkerName: "Ira"})
	if err != nil {
		t.Fatalf("Assign: %v", err)
	}
	if assigned.Entry.Stage != "production" || assigned.Entry.WorkerID != "w-9" {
		t.Fatalf("assigned entry = %+v", assigned.Entry)
	}

	if _, err := client.Assign(ctx, "file-unknown", api.AssignRequest{WorkerID: "w-9"}); err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("assign on unknown file = %v, want 409", err)
	}
	if _, err := client.Assign(ctx, "file-1", api.AssignRequest{}); err == nil || !strings.Contains(err.Error(), "400") {
		t.Fatalf("assign without worker = %v, want 400", err)
	}

	// Completing a file with no open entry is a conflict.
	if _, err := client.CompleteStage(ctx, "file-unknown", api.CompleteRequest{WorkerID: "w-1"}); err == nil || !strings.Contains(err.Error(), "409") {
		t.Fatalf("complete on unknown file = %v, want 409", err)
	}

	// Reassigning to a stage that is not the open one is unprocessable.
	if _, err := client.Reassign(ctx, "file-1", api.ReassignRequest{Stage: "prelims", WorkerID: "w-2"}); err == nil || !strings.Contains(err.Error(), "422") {
		t.Fatalf("illegal reassign = %v, want 422", err)
	}

	reassigned, err := client.Reassign(ctx, "file-1", api.ReassignRequest{Stage: "production", WorkerID: "w-2", WorkerName: "Ben"})
	if err != nil {
		t.Fatalf("Reassign: %v", err)
	}
	if reassigned.Entry.WorkerID != "w-2" || !reassigned.Entry.Open {
		t.Fatalf("reassigned entry = %+v", reassigned.Entry)
	}

	if err := client.MarkNotificationRead(ctx, "does-not-exist", "m-1"); err == nil || !strings.Contains(err.Error(), "404") {
		t.Fatalf("mark read on missing notification = %v, want 404", err)
	}

	// Raw request checks for validation paths the client cannot produce.
	resp, err := http.Get(server.URL + "/api/notifications")
	if err != nil {
		t.Fatalf("GET notifications: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("notifications without recipient = %d, want 400", resp.StatusCode)
	}

	resp, err = http.Post(server.URL+"/api/files/file-1/reassign", "application/json", strings.NewReader(`{"stage":"bogus","worker_id":"w-2"}`))
	if err != nil {
		t.Fatalf("POST reassign: %v", err)
	}
	var body map[string]string
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decode error body: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusUnprocessableEntity || !strings.Contains(body["error"], "bogus") {
		t.Fatalf("unknown stage reassign = %d %v", resp.StatusCode, body)
	}
}
