package handlers

import (
	"errors"
	"log"
	"net/http"

	"github.com/drishti/backend/assistant"
	"github.com/gin-gonic/gin"
)

// AskCommandCenter handles POST /api/events/:eventId/assistant
func AskCommandCenter(c *gin.Context) {
	if commandAI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant not configured"})
		return
	}
	var req struct {
		Query string `json:"query"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	answer, err := commandAI.Ask(c.Request.Context(), c.Param("eventId"), req.Query)
	if err != nil {
		if errors.Is(err, assistant.ErrEmptyQuery) {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Query is required"})
			return
		}
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Failed to process query"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"answer": answer})
}

// TextToSpeech handles POST /api/assistant/speech and returns a WAV data URI
func TextToSpeech(c *gin.Context) {
	if commandAI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant not configured"})
		return
	}
	var req struct {
		Text string `json:"text" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Text is required"})
		return
	}

	media, err := commandAI.Speak(c.Request.Context(), req.Text)
	if err != nil {
		log.Printf("⚠️ Speech synthesis failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to synthesize speech"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"media": media})
}
