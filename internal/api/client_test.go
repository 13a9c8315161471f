package api

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"docflow/internal/history"
	"docflow/internal/sla"
)

func TestNewClientPromotesBareAddress(t *testing.T) {
	tests := []struct {
		address string
		want    string
	}{
		{"127.0.0.1:8744", "http://127.0.0.1:8744"},
		{"http://localhost:8744/", "http://localhost:8744"},
		{"  10.0.0.5:9000  ", "http://10.0.0.5:9000"},
		{"", ""},
	}
	for _, tt := range tests {
		if got := NewClient(tt.address).baseURL; got != tt.want {
			t.Errorf("NewClient(%q).baseURL = %q, want %q", tt.address, got, tt.want)
		}
	}
}

func TestClientRequiresAddress(t *testing.T) {
	client := NewClient("")
	if _, err := client.Status(context.Background()); err == nil {
		t.Fatal("Status succeeded without an address")
	}
}

func TestClientRoundTrips(t *testing.T) {
	var gotComplete CompleteRequest
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch {
		case r.Method == http.MethodGet && r.URL.Path == "/api/status":
			json.NewEncoder(w).Encode(DaemonStatus{Running: true, PID: 42, Connections: 3})
		case r.Method == http.MethodGet && r.URL.Path == "/api/files/contract 7/history":
			json.NewEncoder(w).Encode(FileHistoryResponse{FileID: "contract 7"})
		case r.Method == http.MethodPost && r.URL.Path == "/api/files/file-1/complete":
			if err := json.NewDecoder(r.Body).Decode(&gotComplete); err != nil {
				http.Error(w, err.Error(), http.StatusBadRequest)
				return
			}
			json.NewEncoder(w).Encode(CompleteResponse{FileID: "file-1", PreviousStage: "prelims", NextStage: "production"})
		case r.Method == http.MethodGet && r.URL.Path == "/api/notifications":
			json.NewEncoder(w).Encode(NotificationListResponse{
				Recipient: r.URL.Query().Get("recipient"),
			})
		default:
			http.NotFound(w, r)
		}
	}))
	defer server.Close()

	client := NewClient(server.URL)
	ctx := context.Background()

	status, err := client.Status(ctx)
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if !status.Running || status.PID != 42 || status.Connections != 3 {
		t.Fatalf("status = %+v", status)
	}

	// File ids with spaces survive path escaping.
	trail, err := client.FileHistory(ctx, "contract 7")
	if err != nil {
		t.Fatalf("FileHistory: %v", err)
	}
	if trail.FileID != "contract 7" {
		t.Fatalf("FileID = %q", trail.FileID)
	}

	result, err := client.CompleteStage(ctx, "file-1", CompleteRequest{WorkerID: "w-1", WorkerName: "Asha"})
	if err != nil {
		t.Fatalf("CompleteStage: %v", err)
	}
	if result.NextStage != "production" {
		t.Fatalf("NextStage = %s", result.NextStage)
	}
	if gotComplete.WorkerID != "w-1" || gotComplete.WorkerName != "Asha" {
		t.Fatalf("server saw request %+v", gotComplete)
	}

	list, err := client.Notifications(ctx, "m-1", false)
	if err != nil {
		t.Fatalf("Notifications: %v", err)
	}
	if list.Recipient != "m-1" {
		t.Fatalf("Recipient = %q", list.Recipient)
	}
}

func TestClientSurfacesAPIErrors(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusConflict)
		json.NewEncoder(w).Encode(map[string]string{"error": "no open stage entry for file"})
	}))
	defer server.Close()

	_, err := NewClient(server.URL).CompleteStage(context.Background(), "file-1", CompleteRequest{WorkerID: "w-1"})
	if err == nil {
		t.Fatal("CompleteStage succeeded against an error response")
	}
	if !strings.Contains(err.Error(), "no open stage entry") || !strings.Contains(err.Error(), "409") {
		t.Fatalf("error = %v", err)
	}
}

func TestFromEntryComputesLiveDuration(t *testing.T) {
	now := time.Date(2026, 3, 10, 12, 0, 0, 0, time.UTC)
	entered := now.Add(-95 * time.Minute)

	open := FromEntry(history.Entry{
		ID:        7,
		FileID:    "file-1",
		Stage:     history.StagePrelims,
		WorkerID:  "w-1",
		EnteredAt: entered,
	}, now)
	if open.DurationMinutes != 95 || !open.Open || open.CompletedAt != "" {
		t.Fatalf("open entry = %+v", open)
	}
	if open.EnteredAt != entered.Format(time.RFC3339) {
		t.Fatalf("EnteredAt = %s", open.EnteredAt)
	}

	completedAt := entered.Add(30 * time.Minute)
	closed := FromEntry(history.Entry{
		ID:          8,
		FileID:      "file-1",
		Stage:       history.StagePrelims,
		EnteredAt:   entered,
		CompletedAt: &completedAt,
	}, now)
	if closed.DurationMinutes != 30 || closed.Open {
		t.Fatalf("closed entry = %+v", closed)
	}
	if closed.CompletedAt != completedAt.Format(time.RFC3339) {
		t.Fatalf("CompletedAt = %s", closed.CompletedAt)
	}
}

func TestFromBreachPreservesAccounting(t *testing.T) {
	report := FromBreach(sla.Breach{
		EntryID:         3,
		FileID:          "file-1",
		Stage:           history.StageProduction,
		DurationMinutes: 541,
		MaxMinutes:      480,
		MinutesOver:     61,
		PenaltyPoints:   20,
		Open:            true,
	})
	if report.Stage != "production" || report.MinutesOver != 61 || report.PenaltyPoints != 20 {
		t.Fatalf("report = %+v", report)
	}
}
