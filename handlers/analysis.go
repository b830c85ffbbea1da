package handlers

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"

	"github.com/drishti/backend/models"
	"github.com/drishti/backend/stats"
	"github.com/gin-gonic/gin"
)

// maxFrameSize bounds the body of a pushed webcam frame
const maxFrameSize = 10 << 20

func requireMonitor(c *gin.Context) bool {
	if monitor == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Analysis not initialized"})
		return false
	}
	return true
}

// StartAnalysis handles POST /api/events/:eventId/analysis/start
func StartAnalysis(c *gin.Context) {
	if !requireMonitor(c) {
		return
	}
	eventID := c.Param("eventId")
	if err := monitor.Start(c.Request.Context(), eventID); err != nil {
		respondStoreError(c, err, "Analysis")
		return
	}
	c.JSON(http.StatusOK, gin.H{"running": true})
}

// StopAnalysis handles POST /api/events/:eventId/analysis/stop
func StopAnalysis(c *gin.Context) {
	if !requireMonitor(c) {
		return
	}
	monitor.Stop(c.Param("eventId"))
	c.JSON(http.StatusOK, gin.H{"running": false})
}

// GetAnalysisStatus handles GET /api/events/:eventId/analysis/status
func GetAnalysisStatus(c *gin.Context) {
	if !requireMonitor(c) {
		return
	}
	st, ok := monitor.Status(c.Param("eventId"))
	if !ok {
		c.JSON(http.StatusOK, gin.H{"running": false, "cameras": []interface{}{}})
		return
	}
	c.JSON(http.StatusOK, st)
}

// GetAnalysisResults handles GET /api/events/:eventId/analysis
func GetAnalysisResults(c *gin.Context) {
	results, err := dataStore.ListAnalysisResults(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		respondStoreError(c, err, "Analysis results")
		return
	}
	c.JSON(http.StatusOK, results)
}

// ResetAnalysis handles POST /api/events/:eventId/analysis/reset
func ResetAnalysis(c *gin.Context) {
	eventID := c.Param("eventId")
	var err error
	if monitor != nil {
		err = monitor.Reset(c.Request.Context(), eventID)
	} else {
		err = dataStore.ResetAnalysis(c.Request.Context(), eventID)
	}
	if err != nil {
		respondStoreError(c, err, "Analysis reset")
		return
	}
	c.JSON(http.StatusOK, gin.H{
		"success": true,
		"message": "All persisted AI analysis data for this event has been cleared.",
	})
}

// PushWebcamFrame handles POST /api/events/:eventId/analysis/webcam/frame.
// The body is either a raw JPEG or JSON {"frame": "data:image/jpeg;base64,..."}.
func PushWebcamFrame(c *gin.Context) {
	frame, err := readFrame(c)
	var tooLarge *http.MaxBytesError
	if errors.As(err, &tooLarge) {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Frame too large"})
		return
	}
	if err != nil || len(frame) == 0 {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Frame must be a JPEG or a base64 data URI"})
		return
	}
	if !requireMonitor(c) {
		return
	}
	if err := monitor.PushWebcamFrame(c.Request.Context(), c.Param("eventId"), frame); err != nil {
		respondStoreError(c, err, "Webcam frame")
		return
	}
	c.Status(http.StatusAccepted)
}

func readFrame(c *gin.Context) ([]byte, error) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxFrameSize)
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return nil, err
	}
	if !strings.HasPrefix(c.ContentType(), "application/json") {
		return body, nil
	}

	var req struct {
		Frame string `json:"frame"`
	}
	if err := json.Unmarshal(body, &req); err != nil {
		return nil, err
	}
	payload := req.Frame
	if i := strings.Index(payload, ","); strings.HasPrefix(payload, "data:") && i >= 0 {
		payload = payload[i+1:]
	}
	return base64.StdEncoding.DecodeString(payload)
}

// SetWebcamPaused handles POST /api/events/:eventId/analysis/webcam/pause
func SetWebcamPaused(c *gin.Context) {
	if !requireMonitor(c) {
		return
	}
	var req struct {
		Paused bool `json:"paused"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	if err := monitor.SetWebcamPaused(c.Request.Context(), c.Param("eventId"), req.Paused); err != nil {
		respondStoreError(c, err, "Webcam")
		return
	}
	c.JSON(http.StatusOK, gin.H{"paused": req.Paused})
}

// GetDetections handles GET /api/events/:eventId/detections?cameraId=
func GetDetections(c *gin.Context) {
	cameraID := c.DefaultQuery("cameraId", models.WebcamID)
	points, err := dataStore.ListDetectionPoints(c.Request.Context(), c.Param("eventId"), cameraID)
	if err != nil {
		respondStoreError(c, err, "Detections")
		return
	}
	c.JSON(http.StatusOK, points)
}

// GetCrowdHistory handles GET /api/events/:eventId/history?minutes=15
func GetCrowdHistory(c *gin.Context) {
	minutes, _ := strconv.Atoi(c.DefaultQuery("minutes", "15"))
	points, err := dataStore.CrowdHistory(c.Request.Context(), c.Param("eventId"), minutes)
	if err != nil {
		respondStoreError(c, err, "Crowd history")
		return
	}
	c.JSON(http.StatusOK, points)
}

// GetHeatmap handles GET /api/events/:eventId/heatmap and returns a PNG
func GetHeatmap(c *gin.Context) {
	if heatmaps == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Heatmap not initialized"})
		return
	}
	eventID := c.Param("eventId")
	if cameraID := c.Query("cameraId"); cameraID != "" && cameraID != heatmaps.Selected(eventID) {
		heatmaps.Select(eventID, cameraID)
	}
	png, err := heatmaps.RenderPNG(c.Request.Context(), eventID)
	if err != nil {
		respondStoreError(c, err, "Heatmap")
		return
	}
	c.Header("Cache-Control", "no-store")
	c.Header("X-Heatmap-Camera", heatmaps.Selected(eventID))
	c.Data(http.StatusOK, "image/png", png)
}

// SelectHeatmapCamera handles PUT /api/events/:eventId/heatmap/camera
func SelectHeatmapCamera(c *gin.Context) {
	if heatmaps == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Heatmap not initialized"})
		return
	}
	var req struct {
		CameraID string `json:"cameraId"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}
	eventID := c.Param("eventId")
	heatmaps.Select(eventID, req.CameraID)
	c.JSON(http.StatusOK, gin.H{"cameraId": heatmaps.Selected(eventID)})
}

// GetStats handles GET /api/events/:eventId/stats?refresh=
// A read never appends to the crowd history.
func GetStats(c *gin.Context) {
	eventID := c.Param("eventId")
	if tracker == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Stats not initialized"})
		return
	}
	var (
		summary stats.Summary
		err     error
	)
	if cached, ok := tracker.Latest(eventID); ok && c.Query("refresh") != "true" {
		summary = cached
	} else if summary, err = tracker.Recompute(c.Request.Context(), eventID); err != nil {
		respondStoreError(c, err, "Stats")
		return
	}
	c.JSON(http.StatusOK, summary)
}
