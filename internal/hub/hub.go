// Package hub owns websocket connection multiplexing. It delivers the
// dispatcher's outbound events and feeds inbound location messages into the
// user registry.
package hub

import (
	"encoding/json"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/roadwatch/go-road-hazards/internal/geo"
	"github.com/roadwatch/go-road-hazards/internal/models"
	"github.com/roadwatch/go-road-hazards/internal/observability"
	"github.com/roadwatch/go-road-hazards/internal/registry"
)

// Outbound event names.
const (
	EventHazardReported = "hazard_reported"
	EventProximityAlert = "proximity_alert"
	EventNearbyHazards  = "nearby_hazards"
	EventHazardResolved = "hazard_resolved"
	EventError          = "error"
)

// Inbound message types.
const (
	msgRegisterLocation = "register_location"
	msgUpdateLocation   = "update_location"
)

type Hub struct {
	mu         sync.RWMutex
	clients    map[string]*client // keyed by connection id
	registry   *registry.Registry
	metrics    *observability.Metrics
	sendBuffer int
	upgrader   websocket.Upgrader
	pumps      sync.WaitGroup

	// OnLocationChange is wired to the dispatcher at startup. It runs after
	// the registry mutation has committed.
	OnLocationChange func(userID, connectionID string, loc models.Coordinates)
}

type client struct {
	id   string
	conn *websocket.Conn
	send chan []byte
}

func New(reg *registry.Registry, metrics *observability.Metrics, sendBuffer int) *Hub {
	return &Hub{
		clients:    make(map[string]*client),
		registry:   reg,
		metrics:    metrics,
		sendBuffer: sendBuffer,
		upgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 1024,
			CheckOrigin:     func(r *http.Request) bool { return true },
		},
	}
}

// ServeWS upgrades the request and pumps messages until the client goes away.
func (h *Hub) ServeWS(c *gin.Context) {
	conn, err := h.upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		slog.Error("websocket upgrade failed", "error", err)
		return
	}

	cl := &client{
		id:   uuid.NewString(),
		conn: conn,
		send: make(chan []byte, h.sendBuffer),
	}

	h.mu.Lock()
	h.clients[cl.id] = cl
	h.mu.Unlock()
	h.metrics.ConnectedUsers.Inc()
	slog.Info("client connected", "connection_id", cl.id)

	h.pumps.Add(2)
	go func() {
		defer h.pumps.Done()
		cl.writePump()
	}()
	defer h.pumps.Done()
	h.readPump(cl)
}

func (h *Hub) readPump(cl *client) {
	defer h.drop(cl)

	for {
		_, data, err := cl.conn.ReadMessage()
		if err != nil {
			slog.Info("client disconnected", "connection_id", cl.id)
			return
		}
		h.handleMessage(cl, data)
	}
}

func (cl *client) writePump() {
	for msg := range cl.send {
		if err := cl.conn.WriteMessage(websocket.TextMessage, msg); err != nil {
			break
		}
	}
	cl.conn.Close()
}

// drop detaches the client and cleans up its registry entry. Idempotent: the
// send channel is closed exactly once, under the hub lock.
func (h *Hub) drop(cl *client) {
	h.mu.Lock()
	_, ok := h.clients[cl.id]
	if ok {
		delete(h.clients, cl.id)
		close(cl.send)
	}
	h.mu.Unlock()

	cl.conn.Close()
	if ok {
		h.registry.RemoveByConnection(cl.id)
		h.metrics.ConnectedUsers.Dec()
	}
}

type inboundMessage struct {
	Type      string  `json:"type"`
	UserID    string  `json:"user_id"`
	Latitude  float64 `json:"lat"`
	Longitude float64 `json:"lon"`
}

func (h *Hub) handleMessage(cl *client, data []byte) {
	var msg inboundMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		h.sendError(cl, "malformed message")
		return
	}
	if msg.UserID == "" {
		h.sendError(cl, "user_id is required")
		return
	}
	if err := geo.ValidateCoordinates(msg.Latitude, msg.Longitude); err != nil {
		h.sendError(cl, err.Error())
		return
	}

	loc := models.Coordinates{Latitude: msg.Latitude, Longitude: msg.Longitude}

	switch msg.Type {
	case msgRegisterLocation:
		h.registry.RegisterLocation(msg.UserID, cl.id, loc)
		if h.OnLocationChange != nil {
			h.OnLocationChange(msg.UserID, cl.id, loc)
		}
	case msgUpdateLocation:
		u, ok := h.registry.UpdateLocation(msg.UserID, loc)
		if !ok {
			// Stale update from a user no longer registered; drop it.
			return
		}
		if h.OnLocationChange != nil {
			h.OnLocationChange(msg.UserID, u.ConnectionID, loc)
		}
	default:
		h.sendError(cl, "unknown message type: "+msg.Type)
	}
}

type envelope struct {
	Event string `json:"event"`
	Data  any    `json:"data"`
}

type proximityPayload struct {
	Hazard     *models.Hazard `json:"hazard"`
	DistanceKm float64        `json:"distance_km"`
}

type nearbyPayload struct {
	Hazards []models.HazardWithDistance `json:"hazards"`
}

type resolutionPayload struct {
	HazardID   int64      `json:"hazard_id"`
	ResolvedAt *time.Time `json:"resolved_at"`
	ResolvedBy string     `json:"resolved_by"`
}

// BroadcastHazard sends the full hazard record to every connection.
func (h *Hub) BroadcastHazard(hz *models.Hazard) {
	h.broadcast(marshal(EventHazardReported, hz))
}

// NotifyProximity alerts one nearby user about a newly reported hazard.
func (h *Hub) NotifyProximity(connectionID string, hz *models.Hazard, distanceKm float64) {
	h.sendTo(connectionID, marshal(EventProximityAlert, proximityPayload{
		Hazard:     hz,
		DistanceKm: distanceKm,
	}))
}

// SendNearbySnapshot pushes the active hazards around a user's latest position.
func (h *Hub) SendNearbySnapshot(connectionID string, hazards []models.HazardWithDistance) {
	h.sendTo(connectionID, marshal(EventNearbyHazards, nearbyPayload{Hazards: hazards}))
}

// BroadcastResolution tells every connection a hazard was cleared.
func (h *Hub) BroadcastResolution(hz *models.Hazard) {
	h.broadcast(marshal(EventHazardResolved, resolutionPayload{
		HazardID:   hz.ID,
		ResolvedAt: hz.ResolvedAt,
		ResolvedBy: hz.ResolvedBy,
	}))
}

func (h *Hub) sendError(cl *client, message string) {
	h.mu.RLock()
	defer h.mu.RUnlock()
	h.push(cl, marshal(EventError, gin.H{"message": message}))
}

func (h *Hub) sendTo(connectionID string, msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	cl, ok := h.clients[connectionID]
	if !ok {
		// Already disconnected; delivery is best-effort.
		return
	}
	h.push(cl, msg)
}

func (h *Hub) broadcast(msg []byte) {
	h.mu.RLock()
	defer h.mu.RUnlock()

	for _, cl := range h.clients {
		h.push(cl, msg)
	}
}

// push must run under the hub lock so the send channel cannot be closed
// mid-send. Full buffers drop the message rather than block the dispatcher.
func (h *Hub) push(cl *client, msg []byte) {
	if msg == nil {
		return
	}
	select {
	case cl.send <- msg:
	default:
		h.metrics.DroppedMessages.Inc()
	}
}

func marshal(event string, data any) []byte {
	msg, err := json.Marshal(envelope{Event: event, Data: data})
	if err != nil {
		slog.Error("failed to marshal outbound event", "event", event, "error", err)
		return nil
	}
	return msg
}

func (h *Hub) ClientCount() int {
	h.mu.RLock()
	defer h.mu.RUnlock()
	return len(h.clients)
}

// Close tears down every connection and waits for their pumps to finish,
// e.g. on shutdown. The lock is released before waiting: closing the
// connections unblocks each readPump, whose cleanup needs the lock.
func (h *Hub) Close() {
	h.mu.Lock()
	for id, cl := range h.clients {
		delete(h.clients, id)
		close(cl.send)
		cl.conn.Close()
		h.registry.RemoveByConnection(id)
		h.metrics.ConnectedUsers.Dec()
	}
	h.mu.Unlock()

	h.pumps.Wait()
}
