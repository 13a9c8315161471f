package hub

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"docflow/internal/logging"
)

// PresenceStore persists employee status reported over the socket.
type PresenceStore interface {
	UpsertWorkerStatus(ctx context.Context, workerID, status string, at time.Time) error
}

// inboundFrame is the client's control message shape. Anything outside the
// known types is logged and dropped.
type inboundFrame struct {
	Type      string `json:"type"`
	Timestamp string `json:"timestamp,omitempty"`
	Status    string `json:"status,omitempty"`
}

// WSHandler upgrades HTTP requests to websocket connections and bridges
// them into the hub.
type WSHandler struct {
	hub      *Hub
	presence PresenceStore
	upgrader websocket.Upgrader
	logger   *slog.Logger
}

// NewWSHandler builds the websocket endpoint handler.
func NewWSHandler(h *Hub, presence PresenceStore, logger *slog.Logger) *WSHandler {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &WSHandler{
		hub:      h,
		presence: presence,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			// The daemon fronts an internal tool; origin policy is the
			// reverse proxy's job.
			CheckOrigin: func(*http.Request) bool { return true },
		},
		logger: logging.WithComponent(logger, "ws"),
	}
}

func (h *WSHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	employeeID := r.URL.Query().Get("employee")

	conn, err := h.upgrader.Upgrade(w, r, nil)
	if err != nil {
		h.logger.Error("websocket upgrade failed", logging.Error(err))
		return
	}

	if employeeID == "" {
		closeMsg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, "employee identity required")
		_ = conn.WriteControl(websocket.CloseMessage, closeMsg, time.Now().Add(time.Second))
		_ = conn.Close()
		return
	}

	attached := h.hub.Attach(employeeID, conn)
	defer h.hub.Detach(attached)

	for {
		_, raw, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure, websocket.CloseAbnormalClosure) {
				h.logger.Warn("websocket read failed",
					logging.String(logging.FieldWorker, employeeID),
					logging.Error(err))
			}
			return
		}

		var frame inboundFrame
		if err := json.Unmarshal(raw, &frame); err != nil {
			h.logger.Warn("ignoring malformed frame",
				logging.String(logging.FieldWorker, employeeID),
				logging.Error(err))
			continue
		}
		h.handleFrame(r.Context(), attached, frame)
	}
}

func (h *WSHandler) handleFrame(ctx context.Context, conn *Connection, frame inboundFrame) {
	switch frame.Type {
	case "ping":
		if err := conn.writeRaw(Pong{Type: EventPong, Timestamp: frame.Timestamp}); err != nil {
			h.hub.evict(conn, err)
		}
	case "status_update":
		if frame.Status == "" {
			h.logger.Warn("ignoring status_update without status",
				logging.String(logging.FieldWorker, conn.ActorID))
			return
		}
		if h.presence != nil {
			if err := h.presence.UpsertWorkerStatus(ctx, conn.ActorID, frame.Status, time.Now().UTC()); err != nil {
				h.logger.Error("persisting worker status failed",
					logging.String(logging.FieldWorker, conn.ActorID),
					logging.Error(err))
			}
		}
		h.hub.BroadcastExcept(conn.ActorID, NewEvent(EventEmployeeStatus, Presence{
			EmployeeCode: conn.ActorID,
			Status:       frame.Status,
		}))
	default:
		h.logger.Warn("ignoring unknown frame type",
			logging.String("frame_type", frame.Type),
			logging.String(logging.FieldWorker, conn.ActorID))
	}
}
