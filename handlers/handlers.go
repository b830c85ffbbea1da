package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/drishti/backend/assistant"
	"github.com/drishti/backend/heatmap"
	"github.com/drishti/backend/incident"
	"github.com/drishti/backend/metrics"
	"github.com/drishti/backend/services"
	"github.com/drishti/backend/stats"
	"github.com/drishti/backend/storage"
	"github.com/drishti/backend/store"
	"github.com/gin-gonic/gin"
)

var (
	dataStore    *store.Store
	monitor      *services.Monitor
	materializer *incident.Materializer
	tracker      *stats.Tracker
	heatmaps     *heatmap.Aggregator
	commandAI    *assistant.Assistant
	objects      storage.ObjectStore
	appMetrics   *metrics.Metrics
)

// SetStore sets the store used by every handler
func SetStore(s *store.Store) {
	dataStore = s
}

// SetMonitor sets the per-event analysis monitor
func SetMonitor(m *services.Monitor) {
	monitor = m
}

func SetMaterializer(m *incident.Materializer) {
	materializer = m
}

func SetTracker(t *stats.Tracker) {
	tracker = t
}

func SetHeatmap(a *heatmap.Aggregator) {
	heatmaps = a
}

// SetAssistant enables the command center, speech and summaries
func SetAssistant(a *assistant.Assistant) {
	commandAI = a
}

// SetObjectStore enables video uploads
func SetObjectStore(o storage.ObjectStore) {
	objects = o
}

func SetMetrics(m *metrics.Metrics) {
	appMetrics = m
}

// respondStoreError maps store errors to HTTP answers
func respondStoreError(c *gin.Context, err error, what string) {
	switch {
	case errors.Is(err, store.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	case errors.Is(err, store.ErrInvalidStatus):
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
	default:
		log.Printf("❌ %s: %v", what, err)
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process " + what})
	}
}
