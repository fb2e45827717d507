package websocket

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"eventcam/internal/frame/frametest"
	"eventcam/internal/logger"
	"eventcam/internal/metrics"
	"eventcam/internal/model"
	"eventcam/internal/service/risk"

	"github.com/gorilla/websocket"
)

func startHub(t *testing.T) (*HubService, *metrics.Metrics, *websocket.Conn) {
	t.Helper()

	m := metrics.New()
	hub := NewHubService(logger.Discard(), m)
	ctx, cancel := context.WithCancel(context.Background())
	go hub.Run(ctx)
	t.Cleanup(cancel)

	upgrader := websocket.Upgrader{}
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		hub.Register(conn)
	}))
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial failed: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	deadline := time.Now().Add(5 * time.Second)
	for hub.GetClientCount() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("Viewer was never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}
	return hub, m, client
}

func readMessage(t *testing.T, conn *websocket.Conn, v interface{}) {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	if err != nil {
		t.Fatalf("ReadMessage failed: %v", err)
	}
	if err := json.Unmarshal(data, v); err != nil {
		t.Fatalf("Invalid JSON %s: %v", data, err)
	}
}

func TestHub_BroadcastsEvents(t *testing.T) {
	hub, m, client := startHub(t)

	if m.ViewerClients.Load() != 1 {
		t.Errorf("Expected viewer gauge 1, got %d", m.ViewerClients.Load())
	}

	hub.HandleEvent(model.Event{Kind: model.EventClip, Label: "collision", Filename: "collision_20250615_143000.mp4"})

	var msg EventMessage
	readMessage(t, client, &msg)
	if msg.Type != "event" || msg.Event.Filename != "collision_20250615_143000.mp4" {
		t.Errorf("Unexpected message: %+v", msg)
	}
}

func TestHub_PublishesFrames(t *testing.T) {
	hub, _, client := startHub(t)
	hub.SetSource("camera:0")

	dets := []model.Detection{{ClassID: 3, Label: "forklift", Confidence: 0.8}}
	hub.PublishFrame(frametest.New(7, 8, 8), dets, risk.Decision{Trigger: true, Label: "collision", Collision: true})

	var msg FrameMessage
	readMessage(t, client, &msg)
	if msg.Type != "frame" || msg.Source != "camera:0" || msg.Image == "" {
		t.Errorf("Unexpected frame message: %+v", msg)
	}
	if msg.Trigger != "collision" || !msg.Collision || len(msg.Detections) != 1 {
		t.Errorf("Frame message should carry the decision: %+v", msg)
	}
}

func TestHub_BroadcastNeverBlocks(t *testing.T) {
	hub := NewHubService(logger.Discard(), nil)

	dropped := false
	for i := 0; i < 100; i++ {
		if !hub.Broadcast([]byte("x")) {
			dropped = true
		}
	}
	if !dropped {
		t.Error("Broadcast without a running hub should drop once the queue is full")
	}
}
