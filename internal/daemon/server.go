package daemon

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"docflow/internal/api"
	"docflow/internal/config"
	"docflow/internal/history"
	"docflow/internal/logging"
	"docflow/internal/notify"
	"docflow/internal/progress"
)

type apiServer struct {
	bind   string
	logger *slog.Logger
	daemon *Daemon

	listener net.Listener
	server   *http.Server
}

func newAPIServer(cfg *config.Config, d *Daemon, logger *slog.Logger) *apiServer {
	bind := strings.TrimSpace(cfg.Paths.APIBind)
	if bind == "" {
		return nil
	}

	srv := &apiServer{
		bind:   bind,
		logger: logging.WithComponent(logger, "api-server"),
		daemon: d,
	}

	router := mux.NewRouter()
	router.HandleFunc("/api/status", srv.handleStatus).Methods(http.MethodGet)
	router.HandleFunc("/api/files/{id}/history", srv.handleFileHistory).Methods(http.MethodGet)
	router.HandleFunc("/api/files/{id}/complete", srv.handleComplete).Methods(http.MethodPost)
	router.HandleFunc("/api/files/{id}/assign", srv.handleAssign).Methods(http.MethodPost)
	router.HandleFunc("/api/files/{id}/reassign", srv.handleReassign).Methods(http.MethodPost)
	router.HandleFunc("/api/breaches", srv.handleBreaches).Methods(http.MethodGet)
	router.HandleFunc("/api/notifications", srv.handleNotifications).Methods(http.MethodGet)
	router.HandleFunc("/api/notifications/{id}/read", srv.handleMarkRead).Methods(http.MethodPost)
	router.Handle("/ws", d.ws).Methods(http.MethodGet)
	router.HandleFunc("/events", srv.handleEvents).Methods(http.MethodGet)

	srv.server = &http.Server{
		Handler:           router,
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       15 * time.Second,
		IdleTimeout:       60 * time.Second,
		// No WriteTimeout: /ws and /events hold their connections open.
	}
	return srv
}

func (s *apiServer) start(ctx context.Context) error {
	if s == nil {
		return nil
	}
	listener, err := net.Listen("tcp", s.bind)
	if err != nil {
		return fmt.Errorf("api listen: %w", err)
	}
	s.listener = listener

	go func() {
		if err := s.server.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("api server error", logging.Error(err))
		}
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}()

	s.logger.Info("api server listening", logging.String("address", listener.Addr().String()))
	return nil
}

func (s *apiServer) stop() {
	if s == nil {
		return
	}
	if s.server != nil {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = s.server.Shutdown(shutdownCtx)
	}
	if s.listener != nil {
		_ = s.listener.Close()
		s.listener = nil
	}
}

func (s *apiServer) handleStatus(w http.ResponseWriter, r *http.Request) {
	status, err := s.daemon.Status(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, status)
}

func (s *apiServer) handleFileHistory(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	entries, err := s.daemon.store.EntriesForFile(r.Context(), fileID)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	now := time.Now().UTC()
	payload := api.FileHistoryResponse{FileID: fileID, Entries: make([]api.HistoryEntry, 0, len(entries))}
	for _, entry := range entries {
		payload.Entries = append(payload.Entries, api.FromEntry(*entry, now))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleComplete(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	var req api.CompleteRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}

	result, err := s.daemon.CompleteStage(r.Context(), fileID, req.WorkerID, req.WorkerName)
	if err != nil {
		s.writeProgressError(w, fileID, err)
		return
	}

	payload := api.CompleteResponse{
		FileID:          result.FileID,
		PreviousStage:   string(result.PreviousStage),
		DurationMinutes: result.DurationMinutes,
		NextStage:       string(result.NextStage),
		Delivered:       result.Delivered,
	}
	if result.Breach != nil {
		breach := api.FromBreach(*result.Breach)
		payload.Breach = &breach
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleAssign(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	var req api.AssignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if strings.TrimSpace(req.WorkerID) == "" {
		s.writeError(w, http.StatusBadRequest, "worker_id is required")
		return
	}

	entry, err := s.daemon.AssignWorker(r.Context(), fileID, req.WorkerID, req.WorkerName)
	if err != nil {
		s.writeProgressError(w, fileID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.AssignResponse{Entry: api.FromEntry(*entry, time.Now().UTC())})
}

func (s *apiServer) handleReassign(w http.ResponseWriter, r *http.Request) {
	fileID := mux.Vars(r)["id"]
	var req api.ReassignRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	stage, ok := history.ParseStage(req.Stage)
	if !ok {
		s.writeError(w, http.StatusUnprocessableEntity, fmt.Sprintf("unknown stage %q", req.Stage))
		return
	}

	entry, err := s.daemon.Reassign(r.Context(), fileID, stage, req.WorkerID, req.WorkerName)
	if err != nil {
		s.writeProgressError(w, fileID, err)
		return
	}
	s.writeJSON(w, http.StatusOK, api.ReassignResponse{Entry: api.FromEntry(*entry, time.Now().UTC())})
}

func (s *apiServer) handleBreaches(w http.ResponseWriter, r *http.Request) {
	breaches, err := s.daemon.Breaches(r.Context())
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.BreachListResponse{
		GeneratedAt:   time.Now().UTC().Format(time.RFC3339),
		Breaches:      make([]api.BreachReport, 0, len(breaches)),
		EntriesScored: len(breaches),
	}
	for _, breach := range breaches {
		payload.Breaches = append(payload.Breaches, api.FromBreach(breach))
		payload.TotalPenalty += breach.PenaltyPoints
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleNotifications(w http.ResponseWriter, r *http.Request) {
	recipient := strings.TrimSpace(r.URL.Query().Get("recipient"))
	if recipient == "" {
		s.writeError(w, http.StatusBadRequest, "recipient query parameter is required")
		return
	}
	unreadOnly := r.URL.Query().Get("unread") == "true"

	notifications, err := s.daemon.notifications.ListForRecipient(r.Context(), recipient, unreadOnly)
	if err != nil {
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	payload := api.NotificationListResponse{
		Recipient:     recipient,
		Notifications: make([]api.NotificationView, 0, len(notifications)),
	}
	for _, n := range notifications {
		payload.Notifications = append(payload.Notifications, api.FromNotification(n))
	}
	s.writeJSON(w, http.StatusOK, payload)
}

func (s *apiServer) handleMarkRead(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	recipient := strings.TrimSpace(r.URL.Query().Get("recipient"))
	if recipient == "" {
		s.writeError(w, http.StatusBadRequest, "recipient query parameter is required")
		return
	}
	if err := s.daemon.notifications.MarkRead(r.Context(), id, recipient); err != nil {
		if errors.Is(err, notify.ErrNotFound) {
			s.writeError(w, http.StatusNotFound, "notification not found")
			return
		}
		s.writeError(w, http.StatusInternalServerError, err.Error())
		return
	}
	s.writeJSON(w, http.StatusOK, map[string]string{"status": "read"})
}

func (s *apiServer) handleEvents(w http.ResponseWriter, r *http.Request) {
	if err := s.daemon.emitter.Serve(r.Context(), w); err != nil && !errors.Is(err, context.Canceled) {
		s.logger.Warn("event stream ended", logging.Error(err))
	}
}

// writeProgressError maps domain errors onto HTTP statuses: missing open
// entry and lost completion races are conflicts, illegal stage order is
// unprocessable.
func (s *apiServer) writeProgressError(w http.ResponseWriter, fileID string, err error) {
	switch {
	case errors.Is(err, history.ErrNoActiveStage):
		s.logger.Error("no active stage for file", logging.String(logging.FieldFileID, fileID))
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, history.ErrAlreadyCompleted):
		s.writeError(w, http.StatusConflict, err.Error())
	case errors.Is(err, progress.ErrInvalidTransition):
		s.writeError(w, http.StatusUnprocessableEntity, err.Error())
	default:
		s.writeError(w, http.StatusInternalServerError, err.Error())
	}
}

func (s *apiServer) writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if payload == nil {
		return
	}
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		s.logger.Error("failed to encode response", logging.Error(err))
	}
}

func (s *apiServer) writeError(w http.ResponseWriter, status int, message string) {
	s.writeJSON(w, status, map[string]string{"error": message})
}
