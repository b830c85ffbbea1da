package handlers

import (
	"log"
	"net/http"

	"github.com/drishti/backend/natsserver"
	"github.com/drishti/backend/services"
	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
)

var (
	liveHub  *services.LiveHub
	bus      *natsserver.EmbeddedNATS
	upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 64 * 1024,
		CheckOrigin: func(r *http.Request) bool {
			return true
		},
	}
)

// SetLiveHub sets the hub backing /ws/live
func SetLiveHub(hub *services.LiveHub) {
	liveHub = hub
}

// SetBus exposes the embedded NATS server statistics
func SetBus(n *natsserver.EmbeddedNATS) {
	bus = n
}

// HandleLiveWebSocket upgrades the connection and attaches a live client.
// Clients then subscribe to drishti.* topics.
func HandleLiveWebSocket(c *gin.Context) {
	if liveHub == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Live hub not initialized"})
		return
	}

	conn, err := upgrader.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		log.Printf("⚠️ WebSocket upgrade failed: %v", err)
		return
	}

	userID := c.GetString("userID")
	if userID == "" {
		userID = "anonymous"
	}

	client := services.NewLiveClient(liveHub, conn, userID, c.ClientIP())
	liveHub.Register(client)

	go client.WritePump()
	go client.ReadPump()
}

// GetLiveStats handles GET /api/live/stats
func GetLiveStats(c *gin.Context) {
	resp := gin.H{"enabled": liveHub != nil}
	if liveHub != nil {
		st := liveHub.Stats()
		resp["clients"] = st.Clients
		resp["subscriptions"] = st.Subscriptions
		resp["topics"] = st.Topics
	}
	if bus != nil {
		resp["nats"] = bus.GetStats()
	}
	c.JSON(http.StatusOK, resp)
}
