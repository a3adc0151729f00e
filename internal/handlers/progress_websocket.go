package handlers

import (
	"encoding/json"
	"log"
	"sync"
	"time"

	"github.com/gofiber/contrib/websocket"

	"lorehub/internal/services"
)

const (
	progressReadDeadline = 120 * time.Second
	progressPingInterval = 30 * time.Second
)

// ProgressWebSocketHandler streams synthesis progress for one project to
// websocket clients
type ProgressWebSocketHandler struct {
	hub    *services.ProgressHub
	runner *services.SynthesisRunner
}

// NewProgressWebSocketHandler creates a new progress websocket handler
func NewProgressWebSocketHandler(hub *services.ProgressHub, runner *services.SynthesisRunner) *ProgressWebSocketHandler {
	return &ProgressWebSocketHandler{
		hub:    hub,
		runner: runner,
	}
}

// progressMessage is the wire envelope for progress events
type progressMessage struct {
	Type string `json:"type"`
	services.ProgressUpdate
}

// clientMessage is the envelope parsed from client frames
type clientMessage struct {
	Type string `json:"type"`
}

// progressConn serializes JSON writes; the hub forwarder and the
// heartbeat reply path both write to the same connection
type progressConn struct {
	conn    *websocket.Conn
	writeMu sync.Mutex
}

func (pc *progressConn) writeJSON(v interface{}) error {
	pc.writeMu.Lock()
	defer pc.writeMu.Unlock()
	return pc.conn.WriteJSON(v)
}

// Handle serves one websocket connection subscribed to a project's
// progress stream
func (h *ProgressWebSocketHandler) Handle(c *websocket.Conn) {
	projectID := c.Params("id")
	if projectID == "" {
		return
	}

	if m := services.GetMetrics(); m != nil {
		m.RecordWebSocketConnect()
	}

	pc := &progressConn{conn: c}
	subID, updates := h.hub.Subscribe(projectID)
	done := make(chan struct{})
	defer func() {
		close(done)
		h.hub.Unsubscribe(projectID, subID)
		if m := services.GetMetrics(); m != nil {
			m.RecordWebSocketDisconnect()
		}
	}()

	// Current state first, so a client attaching mid-run sees where the
	// run is instead of waiting for the next event
	state := h.runner.State(projectID)
	if err := pc.writeJSON(progressMessage{
		Type: "connected",
		ProgressUpdate: services.ProgressUpdate{
			ProjectID: projectID,
			Progress:  state.Progress,
			Message:   state.Message,
			Status:    state.Status,
		},
	}); err != nil {
		log.Printf("❌ [PROGRESS-WS] Initial write failed for project %s: %v", projectID, err)
		return
	}

	c.SetReadDeadline(time.Now().Add(progressReadDeadline))
	c.SetPongHandler(func(string) error {
		c.SetReadDeadline(time.Now().Add(progressReadDeadline))
		return nil
	})

	go h.pingLoop(c, done)
	go h.writeLoop(pc, projectID, updates)

	h.readLoop(pc, projectID)
}

// pingLoop keeps the connection alive through proxies during long runs.
// WriteControl may be called concurrently with other write methods.
func (h *ProgressWebSocketHandler) pingLoop(c *websocket.Conn, done <-chan struct{}) {
	ticker := time.NewTicker(progressPingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-done:
			return
		case <-ticker.C:
			if err := c.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
				return
			}
		}
	}
}

// writeLoop forwards hub updates to the client until the subscription
// channel is closed
func (h *ProgressWebSocketHandler) writeLoop(pc *progressConn, projectID string, updates <-chan services.ProgressUpdate) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("❌ [PROGRESS-WS] Panic in write loop: %v", r)
		}
	}()

	for update := range updates {
		if err := pc.writeJSON(progressMessage{Type: "progress", ProgressUpdate: update}); err != nil {
			log.Printf("⚠️ [PROGRESS-WS] Write failed for project %s: %v", projectID, err)
			return
		}
	}
}

// readLoop consumes client frames, answering heartbeats, until the
// connection drops
func (h *ProgressWebSocketHandler) readLoop(pc *progressConn, projectID string) {
	for {
		_, msg, err := pc.conn.ReadMessage()
		if err != nil {
			return
		}
		pc.conn.SetReadDeadline(time.Now().Add(progressReadDeadline))

		var clientMsg clientMessage
		if err := json.Unmarshal(msg, &clientMsg); err != nil {
			continue
		}
		if clientMsg.Type == "ping" {
			if err := pc.writeJSON(progressMessage{Type: "pong", ProgressUpdate: services.ProgressUpdate{ProjectID: projectID}}); err != nil {
				return
			}
		}
	}
}
