// Package services provides business logic services
package services

import (
	"encoding/json"
	"fmt"
	"log"
	"strings"
	"sync"

	"github.com/gorilla/websocket"
	"github.com/nats-io/nats.go"
)

// TopicPrefix is the subject namespace clients may subscribe to
const TopicPrefix = "drishti."

// SnapshotFunc returns the current state of a topic for new subscribers
type SnapshotFunc func(topic string) ([]byte, bool)

// LiveHub fans realtime bus subjects out to WebSocket clients. One bus
// subscription is shared by every client watching the same topic.
type LiveHub struct {
	natsConn *nats.Conn
	snapshot SnapshotFunc

	// WebSocket connections
	clients   map[*LiveClient]bool
	clientsMu sync.RWMutex

	// Topic subscriptions (subject -> subscription)
	topics   map[string]*topicSubscription
	topicsMu sync.RWMutex

	register   chan *LiveClient
	unregister chan *LiveClient
	stop       chan struct{}
	stopOnce   sync.Once
}

type topicSubscription struct {
	topic     string
	natsSub   *nats.Subscription
	viewers   map[*LiveClient]bool
	viewersMu sync.RWMutex
	last      []byte
}

// LiveClient represents a WebSocket client watching topics
type LiveClient struct {
	hub        *LiveHub
	conn       *websocket.Conn
	send       chan []byte
	topics     map[string]bool
	topicsMu   sync.RWMutex
	userID     string
	remoteAddr string
}

// LiveMessage is a message sent to/from clients
type LiveMessage struct {
	Type  string          `json:"type"` // subscribe, unsubscribe, update, error, ping, pong
	Topic string          `json:"topic,omitempty"`
	Data  json.RawMessage `json:"data,omitempty"`
	Error string          `json:"error,omitempty"`
}

// NewLiveHub creates a new hub. snapshot may be nil.
func NewLiveHub(natsConn *nats.Conn, snapshot SnapshotFunc) *LiveHub {
	return &LiveHub{
		natsConn:   natsConn,
		snapshot:   snapshot,
		clients:    make(map[*LiveClient]bool),
		topics:     make(map[string]*topicSubscription),
		register:   make(chan *LiveClient),
		unregister: make(chan *LiveClient),
		stop:       make(chan struct{}),
	}
}

// Register adds a client to the hub. It returns without registering once
// the hub has stopped.
func (h *LiveHub) Register(client *LiveClient) {
	select {
	case h.register <- client:
	case <-h.stop:
	}
}

// Unregister removes a client and its topic subscriptions. Like Register it
// never blocks on a stopped hub.
func (h *LiveHub) Unregister(client *LiveClient) {
	select {
	case h.unregister <- client:
	case <-h.stop:
	}
}

// Stop ends the hub loop
func (h *LiveHub) Stop() {
	h.stopOnce.Do(func() { close(h.stop) })
}

// Run starts the hub's main loop
func (h *LiveHub) Run() {
	log.Println("📺 Live hub started")

	for {
		select {
		case <-h.stop:
			return

		case client := <-h.register:
			h.clientsMu.Lock()
			h.clients[client] = true
			h.clientsMu.Unlock()
			log.Printf("📺 Client connected: %s (%s)", client.remoteAddr, client.userID)

		case client := <-h.unregister:
			h.clientsMu.Lock()
			if _, ok := h.clients[client]; ok {
				delete(h.clients, client)
				close(client.send)
			}
			h.clientsMu.Unlock()

			for _, topic := range client.topicList() {
				h.unsubscribeClient(client, topic)
			}

			log.Printf("📺 Client disconnected: %s", client.remoteAddr)
		}
	}
}

// Subscribe subscribes a client to a topic and sends it the current state
func (h *LiveHub) Subscribe(client *LiveClient, topic string) error {
	if err := validateTopic(topic); err != nil {
		return err
	}

	h.topicsMu.Lock()
	sub, exists := h.topics[topic]
	if !exists {
		sub = &topicSubscription{
			topic:   topic,
			viewers: make(map[*LiveClient]bool),
		}
		natsSub, err := h.natsConn.Subscribe(topic, func(msg *nats.Msg) {
			h.broadcast(topic, msg.Data)
		})
		if err != nil {
			h.topicsMu.Unlock()
			return fmt.Errorf("failed to subscribe to %s: %w", topic, err)
		}
		sub.natsSub = natsSub
		h.topics[topic] = sub
		log.Printf("📺 Created subscription for %s", topic)
	}
	h.topicsMu.Unlock()

	sub.viewersMu.Lock()
	sub.viewers[client] = true
	initial := sub.last
	sub.viewersMu.Unlock()

	client.topicsMu.Lock()
	client.topics[topic] = true
	client.topicsMu.Unlock()

	if initial == nil && h.snapshot != nil {
		if data, ok := h.snapshot(topic); ok {
			initial = data
		}
	}
	if initial != nil {
		client.enqueue(encodeUpdate(topic, initial))
	}

	log.Printf("📺 Client %s subscribed to %s", client.remoteAddr, topic)
	return nil
}

// Unsubscribe removes a client from a topic
func (h *LiveHub) Unsubscribe(client *LiveClient, topic string) {
	h.unsubscribeClient(client, topic)
}

func (h *LiveHub) unsubscribeClient(client *LiveClient, topic string) {
	h.topicsMu.Lock()
	defer h.topicsMu.Unlock()

	sub, exists := h.topics[topic]
	if !exists {
		return
	}

	sub.viewersMu.Lock()
	delete(sub.viewers, client)
	viewerCount := len(sub.viewers)
	sub.viewersMu.Unlock()

	client.topicsMu.Lock()
	delete(client.topics, topic)
	client.topicsMu.Unlock()

	// If no more viewers, unsubscribe from NATS
	if viewerCount == 0 {
		if sub.natsSub != nil {
			sub.natsSub.Unsubscribe()
		}
		delete(h.topics, topic)
		log.Printf("📺 Removed subscription for %s (no viewers)", topic)
	}
}

// broadcast sends an update to all viewers of a topic
func (h *LiveHub) broadcast(topic string, data []byte) {
	h.topicsMu.RLock()
	sub, exists := h.topics[topic]
	h.topicsMu.RUnlock()
	if !exists {
		return
	}

	msg := encodeUpdate(topic, data)

	sub.viewersMu.Lock()
	sub.last = data
	for client := range sub.viewers {
		client.enqueue(msg)
	}
	sub.viewersMu.Unlock()
}

func encodeUpdate(topic string, data []byte) []byte {
	msg, _ := json.Marshal(LiveMessage{Type: "update", Topic: topic, Data: data})
	return msg
}

func validateTopic(topic string) error {
	if !strings.HasPrefix(topic, TopicPrefix) || len(topic) == len(TopicPrefix) {
		return fmt.Errorf("invalid topic %q (expected %s<event>.<stream>)", topic, TopicPrefix)
	}
	if strings.ContainsAny(topic, "*> \t") {
		return fmt.Errorf("wildcards are not allowed in topic %q", topic)
	}
	return nil
}

// HubStats returns hub statistics
type HubStats struct {
	Clients       int      `json:"clients"`
	Subscriptions int      `json:"subscriptions"`
	Topics        []string `json:"topics"`
}

func (h *LiveHub) Stats() HubStats {
	h.clientsMu.RLock()
	clientCount := len(h.clients)
	h.clientsMu.RUnlock()

	h.topicsMu.RLock()
	topics := make([]string, 0, len(h.topics))
	for topic := range h.topics {
		topics = append(topics, topic)
	}
	h.topicsMu.RUnlock()

	return HubStats{
		Clients:       clientCount,
		Subscriptions: len(topics),
		Topics:        topics,
	}
}
