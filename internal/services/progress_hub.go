package services

import (
	"log"
	"sync"
)

// ProgressUpdate is one progress event delivered to stream subscribers.
type ProgressUpdate struct {
	ProjectID string `json:"project_id"`
	Progress  int    `json:"progress"`
	Message   string `json:"message"`
	Status    string `json:"status"`
}

// ProgressHub fans synthesis progress out to in-process subscribers
// (websocket connections). Updates from other instances arrive through
// Redis pub/sub and are published here too.
type ProgressHub struct {
	mutex       sync.RWMutex
	subscribers map[string]map[int]chan ProgressUpdate
	nextID      int
}

// NewProgressHub creates an empty hub
func NewProgressHub() *ProgressHub {
	return &ProgressHub{
		subscribers: make(map[string]map[int]chan ProgressUpdate),
	}
}

// Subscribe registers a listener for one project's progress and returns
// its subscription ID plus the event channel. The channel is buffered;
// a slow consumer drops updates instead of blocking the run.
func (h *ProgressHub) Subscribe(projectID string) (int, <-chan ProgressUpdate) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	h.nextID++
	id := h.nextID
	ch := make(chan ProgressUpdate, 16)

	if h.subscribers[projectID] == nil {
		h.subscribers[projectID] = make(map[int]chan ProgressUpdate)
	}
	h.subscribers[projectID][id] = ch

	log.Printf("✅ Progress subscriber added for project %s (total: %d)", projectID, len(h.subscribers[projectID]))
	return id, ch
}

// Unsubscribe removes a listener and closes its channel
func (h *ProgressHub) Unsubscribe(projectID string, id int) {
	h.mutex.Lock()
	defer h.mutex.Unlock()

	subs, exists := h.subscribers[projectID]
	if !exists {
		return
	}
	if ch, ok := subs[id]; ok {
		close(ch)
		delete(subs, id)
		log.Printf("❌ Progress subscriber removed for project %s (total: %d)", projectID, len(subs))
	}
	if len(subs) == 0 {
		delete(h.subscribers, projectID)
	}
}

// Publish delivers an update to every subscriber of its project
func (h *ProgressHub) Publish(update ProgressUpdate) {
	h.mutex.RLock()
	defer h.mutex.RUnlock()

	for _, ch := range h.subscribers[update.ProjectID] {
		select {
		case ch <- update:
		default:
			// Subscriber is not keeping up; skip this update for it
		}
	}
}

// SubscriberCount returns the number of listeners for a project
func (h *ProgressHub) SubscriberCount(projectID string) int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.subscribers[projectID])
}
