package hub

import (
	"fmt"
	"log/slog"
	"sync"

	"github.com/google/uuid"

	"docflow/internal/logging"
)

// sink is the narrow transport surface a connection writes through.
// *websocket.Conn satisfies it; tests substitute an in-memory recorder.
type sink interface {
	WriteJSON(v any) error
	Close() error
}

// Connection is one attached transport for an actor. An actor may hold
// several concurrent connections; each gets its own Connection value.
type Connection struct {
	ID      string
	ActorID string

	mu   sync.Mutex
	dest sink
}

func (c *Connection) write(event Event) error {
	return c.writeRaw(event)
}

// writeRaw sends a frame that is not wrapped in the Event envelope, such as
// the pong reply.
func (c *Connection) writeRaw(v any) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.dest.WriteJSON(v)
}

// Hub fans events out to attached connections. Registry mutations hold the
// lock; writes happen on a snapshot outside it so a slow client cannot
// stall an attach.
type Hub struct {
	mu     sync.RWMutex
	actors map[string]map[string]*Connection

	logger *slog.Logger
}

// New returns an empty hub.
func New(logger *slog.Logger) *Hub {
	if logger == nil {
		logger = logging.NewNop()
	}
	return &Hub{
		actors: make(map[string]map[string]*Connection),
		logger: logging.WithComponent(logger, "hub"),
	}
}

// Attach registers a transport for an actor, acknowledges it with a welcome
// event, and announces the actor to everyone else.
func (h *Hub) Attach(actorID string, dest sink) *Connection {
	conn := &Connection{
		ID:      uuid.NewString(),
		ActorID: actorID,
		dest:    dest,
	}

	h.mu.Lock()
	set, ok := h.actors[actorID]
	if !ok {
		set = make(map[string]*Connection)
		h.actors[actorID] = set
	}
	set[conn.ID] = conn
	total := h.connectionCountLocked()
	h.mu.Unlock()

	h.logger.Info("connection attached",
		logging.String("connection_id", conn.ID),
		logging.String(logging.FieldWorker, actorID),
		logging.Int("total_connections", total))

	welcome := NewEvent(EventConnection, Welcome{
		ConnectionID: conn.ID,
		EmployeeCode: actorID,
		Message:      "connected",
	})
	if err := conn.write(welcome); err != nil {
		h.evict(conn, err)
		return conn
	}

	h.BroadcastExcept(actorID, NewEvent(EventEmployeeConnected, Presence{EmployeeCode: actorID}))
	return conn
}

// Detach removes a connection and, when it was the actor's last one,
// announces the disconnect to the remaining clients.
func (h *Hub) Detach(conn *Connection) {
	if conn == nil {
		return
	}
	if !h.remove(conn) {
		return
	}
	_ = conn.dest.Close()

	h.logger.Info("connection detached",
		logging.String("connection_id", conn.ID),
		logging.String(logging.FieldWorker, conn.ActorID))

	if !h.ActorConnected(conn.ActorID) {
		h.Broadcast(NewEvent(EventEmployeeDisconnected, Presence{EmployeeCode: conn.ActorID}))
	}
}

// SendToActor delivers an event to every connection the actor holds.
func (h *Hub) SendToActor(actorID string, event Event) {
	h.mu.RLock()
	targets := make([]*Connection, 0, len(h.actors[actorID]))
	for _, conn := range h.actors[actorID] {
		targets = append(targets, conn)
	}
	h.mu.RUnlock()
	h.deliver(targets, event)
}

// Broadcast delivers an event to every attached connection.
func (h *Hub) Broadcast(event Event) {
	h.deliver(h.snapshot(""), event)
}

// BroadcastExcept delivers an event to every connection not owned by the
// named actor. Used for presence changes the actor already knows about.
func (h *Hub) BroadcastExcept(actorID string, event Event) {
	h.deliver(h.snapshot(actorID), event)
}

// ActorConnected reports whether the actor holds at least one connection.
func (h *Hub) ActorConnected(actorID string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actors[actorID]) > 0
}

// ConnectionCount returns the number of attached connections.
func (h *Hub) ConnectionCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return h.connectionCountLocked()
}

// ActorCount returns the number of distinct connected actors.
func (h *Hub) ActorCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.actors)
}

func (h *Hub) connectionCountLocked() int {
	total := 0
	for _, set := range h.actors {
		total += len(set)
	}
	return total
}

func (h *Hub) snapshot(excludeActor string) []*Connection {
	h.mu.RLock()
	defer h.mu.RUnlock()
	var targets []*Connection
	for actorID, set := range h.actors {
		if excludeActor != "" && actorID == excludeActor {
			continue
		}
		for _, conn := range set {
			targets = append(targets, conn)
		}
	}
	return targets
}

func (h *Hub) deliver(targets []*Connection, event Event) {
	for _, conn := range targets {
		if err := conn.write(event); err != nil {
			h.evict(conn, err)
		}
	}
}

// evict drops a connection whose transport failed. Send errors stop at the
// hub boundary; callers of Broadcast never see them.
func (h *Hub) evict(conn *Connection, cause error) {
	if !h.remove(conn) {
		return
	}
	_ = conn.dest.Close()
	h.logger.Warn("evicting connection after write failure",
		logging.String("connection_id", conn.ID),
		logging.String(logging.FieldWorker, conn.ActorID),
		logging.Error(fmt.Errorf("write event: %w", cause)))
}

// remove unregisters a connection, reporting whether it was still present.
// Detach and evict can race on the same connection; only one wins.
func (h *Hub) remove(conn *Connection) bool {
	h.mu.Lock()
	defer h.mu.Unlock()
	set, ok := h.actors[conn.ActorID]
	if !ok {
		return false
	}
	if _, ok := set[conn.ID]; !ok {
		return false
	}
	delete(set, conn.ID)
	if len(set) == 0 {
		delete(h.actors, conn.ActorID)
	}
	return true
}
