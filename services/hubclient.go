package services

import (
	"encoding/json"
	"log"
	"time"

	"github.com/gorilla/websocket"
)

const (
	// Time allowed to write a message to the peer
	writeWait = 10 * time.Second

	// Time allowed to read the next pong message from the peer
	pongWait = 60 * time.Second

	// Send pings to peer with this period. Must be less than pongWait
	pingPeriod = (pongWait * 9) / 10

	// Maximum message size allowed from peer
	maxMessageSize = 64 * 1024

	sendBufferSize = 256
)

// NewLiveClient creates a new live client
func NewLiveClient(hub *LiveHub, conn *websocket.Conn, userID, remoteAddr string) *LiveClient {
	return &LiveClient{
		hub:        hub,
		conn:       conn,
		send:       make(chan []byte, sendBufferSize),
		topics:     make(map[string]bool),
		userID:     userID,
		remoteAddr: remoteAddr,
	}
}

func (c *LiveClient) topicList() []string {
	c.topicsMu.RLock()
	defer c.topicsMu.RUnlock()
	topics := make([]string, 0, len(c.topics))
	for topic := range c.topics {
		topics = append(topics, topic)
	}
	return topics
}

// enqueue drops the message when the client is too slow to keep up
func (c *LiveClient) enqueue(msg []byte) {
	defer func() {
		// send may already be closed by the hub
		recover()
	}()
	select {
	case c.send <- msg:
	default:
	}
}

// ReadPump pumps messages from the WebSocket connection to the hub
func (c *LiveClient) ReadPump() {
	defer func() {
		c.hub.Unregister(c)
		c.conn.Close()
	}()

	c.conn.SetReadLimit(maxMessageSize)
	c.conn.SetReadDeadline(time.Now().Add(pongWait))
	c.conn.SetPongHandler(func(string) error {
		c.conn.SetReadDeadline(time.Now().Add(pongWait))
		return nil
	})

	for {
		_, message, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				log.Printf("⚠️ WebSocket error: %v", err)
			}
			break
		}

		var msg LiveMessage
		if err := json.Unmarshal(message, &msg); err != nil {
			log.Printf("⚠️ Invalid message from %s: %v", c.remoteAddr, err)
			continue
		}

		switch msg.Type {
		case "subscribe":
			if err := c.hub.Subscribe(c, msg.Topic); err != nil {
				log.Printf("⚠️ Subscribe failed: %v", err)
				c.sendControl(LiveMessage{Type: "error", Topic: msg.Topic, Error: err.Error()})
			}

		case "unsubscribe":
			if msg.Topic != "" {
				c.hub.Unsubscribe(c, msg.Topic)
			}

		case "ping":
			c.sendControl(LiveMessage{Type: "pong"})

		default:
			log.Printf("⚠️ Unknown message type: %s", msg.Type)
		}
	}
}

// WritePump pumps messages from the hub to the WebSocket connection
func (c *LiveClient) WritePump() {
	ticker := time.NewTicker(pingPeriod)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case message, ok := <-c.send:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if !ok {
				// Hub closed the channel
				c.conn.WriteMessage(websocket.CloseMessage, []byte{})
				return
			}
			if err := c.conn.WriteMessage(websocket.TextMessage, message); err != nil {
				return
			}

		case <-ticker.C:
			c.conn.SetWriteDeadline(time.Now().Add(writeWait))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *LiveClient) sendControl(msg LiveMessage) {
	b, _ := json.Marshal(msg)
	c.enqueue(b)
}
