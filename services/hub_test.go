package services

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/drishti/backend/natsserver"
	"github.com/gorilla/websocket"
)

func startHub(t *testing.T, snapshot SnapshotFunc) (*natsserver.EmbeddedNATS, *LiveHub, string) {
	t.Helper()
	cfg := natsserver.DefaultConfig()
	cfg.Port = -1
	ns, err := natsserver.New(cfg)
	if err != nil {
		t.Fatalf("nats: %v", err)
	}
	t.Cleanup(ns.Shutdown)

	hub := NewLiveHub(ns.Conn(), snapshot)
	go hub.Run()
	t.Cleanup(hub.Stop)

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewLiveClient(hub, conn, "tester", r.RemoteAddr)
		hub.Register(client)
		go client.WritePump()
		go client.ReadPump()
	}))
	t.Cleanup(srv.Close)

	return ns, hub, "ws" + strings.TrimPrefix(srv.URL, "http")
}

func readMessage(t *testing.T, conn *websocket.Conn) LiveMessage {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(3 * time.Second))
	var msg LiveMessage
	if err := conn.ReadJSON(&msg); err != nil {
		t.Fatalf("read: %v", err)
	}
	return msg
}

func TestLiveHubSnapshotThenUpdates(t *testing.T) {
	topic := "drishti.ev1.analysis"
	ns, hub, url := startHub(t, func(requested string) ([]byte, bool) {
		if requested == topic {
			return []byte(`{"cam-webcam":{"crowdCount":0}}`), true
		}
		return nil, false
	})

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	if err := conn.WriteJSON(LiveMessage{Type: "subscribe", Topic: topic}); err != nil {
		t.Fatalf("write: %v", err)
	}

	first := readMessage(t, conn)
	if first.Type != "update" || first.Topic != topic {
		t.Fatalf("first message = %+v", first)
	}
	if !strings.Contains(string(first.Data), `"crowdCount":0`) {
		t.Fatalf("snapshot data = %s", first.Data)
	}

	if err := ns.Publish(topic, []byte(`{"cam-webcam":{"crowdCount":12}}`)); err != nil {
		t.Fatalf("publish: %v", err)
	}

	update := readMessage(t, conn)
	var payload map[string]struct {
		CrowdCount int `json:"crowdCount"`
	}
	if err := json.Unmarshal(update.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload["cam-webcam"].CrowdCount != 12 {
		t.Fatalf("update = %s", update.Data)
	}

	if stats := hub.Stats(); stats.Subscriptions != 1 {
		t.Fatalf("subscriptions = %d", stats.Subscriptions)
	}
}

func TestLiveHubRejectsWildcards(t *testing.T) {
	_, hub, url := startHub(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	for _, topic := range []string{"drishti.>", "other.ev1.analysis", "drishti."} {
		if err := conn.WriteJSON(LiveMessage{Type: "subscribe", Topic: topic}); err != nil {
			t.Fatalf("write: %v", err)
		}
		msg := readMessage(t, conn)
		if msg.Type != "error" || msg.Topic != topic {
			t.Fatalf("topic %q: got %+v", topic, msg)
		}
	}

	if stats := hub.Stats(); stats.Subscriptions != 0 {
		t.Fatalf("subscriptions = %d", stats.Subscriptions)
	}
}

func TestLiveHubPing(t *testing.T) {
	_, _, url := startHub(t, nil)

	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	conn.WriteJSON(LiveMessage{Type: "ping"})
	if msg := readMessage(t, conn); msg.Type != "pong" {
		t.Fatalf("got %+v", msg)
	}
}

func TestLiveHubDisconnectAfterStop(t *testing.T) {
	hub := NewLiveHub(nil, nil)
	go hub.Run()

	done := make(chan struct{})
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			return
		}
		client := NewLiveClient(hub, conn, "tester", r.RemoteAddr)
		hub.Register(client)
		go client.WritePump()
		client.ReadPump()
		close(done)
	}))
	defer srv.Close()

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	conn.WriteJSON(LiveMessage{Type: "ping"})
	if msg := readMessage(t, conn); msg.Type != "pong" {
		t.Fatalf("got %+v", msg)
	}

	hub.Stop()
	conn.Close()

	select {
	case <-done:
	case <-time.After(3 * time.Second):
		t.Fatal("client read loop stuck after hub stop")
	}
}

func TestLiveHubStoppedNeverBlocks(t *testing.T) {
	hub := NewLiveHub(nil, nil)
	hub.Stop()
	hub.Stop()

	done := make(chan struct{})
	go func() {
		client := &LiveClient{hub: hub, send: make(chan []byte, 1), topics: make(map[string]bool)}
		hub.Register(client)
		hub.Unregister(client)
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("register or unregister blocked on a stopped hub")
	}
}
