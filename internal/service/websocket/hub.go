package websocket

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"sync"
	"time"

	"eventcam/internal/frame"
	"eventcam/internal/logger"
	"eventcam/internal/metrics"
	"eventcam/internal/model"
	"eventcam/internal/service/risk"

	"github.com/gorilla/websocket"
)

const writeWait = 2 * time.Second

// FrameMessage is the preview pushed to viewers.
type FrameMessage struct {
	Type       string            `json:"type"`
	Source     string            `json:"source,omitempty"`
	Image      string            `json:"image"` // base64 JPEG
	Detections []model.Detection `json:"detections"`
	Trigger    string            `json:"trigger,omitempty"`
	Collision  bool              `json:"collision"`
}

// EventMessage announces a saved clip or an ingested image.
type EventMessage struct {
	Type  string      `json:"type"`
	Event model.Event `json:"event"`
}

// HubService keeps the set of viewer connections and is their only writer.
type HubService struct {
	clients    map[*websocket.Conn]bool
	broadcast  chan []byte
	register   chan *websocket.Conn
	unregister chan *websocket.Conn
	stopped    chan struct{}
	mutex      sync.RWMutex
	logger     *logger.Logger
	metrics    *metrics.Metrics
	source     string
}

func NewHubService(logger *logger.Logger, m *metrics.Metrics) *HubService {
	return &HubService{
		clients:    make(map[*websocket.Conn]bool),
		broadcast:  make(chan []byte, 16),
		register:   make(chan *websocket.Conn),
		unregister: make(chan *websocket.Conn),
		stopped:    make(chan struct{}),
		logger:     logger,
		metrics:    m,
	}
}

// Run serves register/unregister/broadcast until ctx is canceled, then
// closes every connection.
func (h *HubService) Run(ctx context.Context) {
	for {
		select {
		case <-ctx.Done():
			close(h.stopped)
			h.mutex.Lock()
			for client := range h.clients {
				client.Close()
				delete(h.clients, client)
			}
			h.mutex.Unlock()
			h.updateGauge()
			return

		case client := <-h.register:
			h.mutex.Lock()
			h.clients[client] = true
			h.mutex.Unlock()
			h.updateGauge()
			h.logger.Info("Viewer connected. Total: %d", h.GetClientCount())

		case client := <-h.unregister:
			h.mutex.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				client.Close()
			}
			h.mutex.Unlock()
			h.updateGauge()
			h.logger.Info("Viewer disconnected. Total: %d", h.GetClientCount())

		case message := <-h.broadcast:
			h.mutex.Lock()
			for client := range h.clients {
				client.SetWriteDeadline(time.Now().Add(writeWait))
				if err := client.WriteMessage(websocket.TextMessage, message); err != nil {
					h.logger.Error("Error sending message: %v", err)
					delete(h.clients, client)
					client.Close()
				}
			}
			h.mutex.Unlock()
			h.updateGauge()
		}
	}
}

// Register adds a viewer. After Run returned the connection is closed instead.
func (h *HubService) Register(client *websocket.Conn) {
	select {
	case h.register <- client:
	case <-h.stopped:
		client.Close()
	}
}

func (h *HubService) Unregister(client *websocket.Conn) {
	select {
	case h.unregister <- client:
	case <-h.stopped:
	}
}

// Broadcast queues message for every viewer. Messages are dropped while the
// queue is full so a slow viewer never stalls the frame pump.
func (h *HubService) Broadcast(message []byte) bool {
	select {
	case h.broadcast <- message:
		return true
	default:
		return false
	}
}

// SetSource names the source shown in frame messages.
func (h *HubService) SetSource(name string) {
	h.mutex.Lock()
	defer h.mutex.Unlock()
	h.source = name
}

// PublishFrame encodes the annotated frame and broadcasts it. Nothing is
// encoded when no viewer is connected.
func (h *HubService) PublishFrame(f frame.Frame, detections []model.Detection, decision risk.Decision) {
	if h.GetClientCount() == 0 {
		return
	}
	enc, ok := f.(frame.Encoder)
	if !ok {
		return
	}
	jpeg, err := enc.JPEG()
	if err != nil {
		h.logger.Warning("Failed to encode preview: %v", err)
		return
	}

	h.mutex.RLock()
	source := h.source
	h.mutex.RUnlock()

	msg := FrameMessage{
		Type:       "frame",
		Source:     source,
		Image:      base64.StdEncoding.EncodeToString(jpeg),
		Detections: detections,
		Collision:  decision.Collision,
	}
	if decision.Trigger {
		msg.Trigger = decision.Label
	}
	h.send(msg)
}

// HandleEvent implements notify.Subscriber.
func (h *HubService) HandleEvent(event model.Event) {
	h.send(EventMessage{Type: "event", Event: event})
}

func (h *HubService) send(v interface{}) {
	data, err := json.Marshal(v)
	if err != nil {
		h.logger.Error("Failed to marshal viewer message: %v", err)
		return
	}
	h.Broadcast(data)
}

func (h *HubService) GetClientCount() int {
	h.mutex.RLock()
	defer h.mutex.RUnlock()
	return len(h.clients)
}

func (h *HubService) updateGauge() {
	if h.metrics != nil {
		h.metrics.ViewerClients.Store(int64(h.GetClientCount()))
	}
}
