package handlers

import (
	"log"
	"net/http"
	"strconv"
	"strings"

	"github.com/drishti/backend/models"
	"github.com/drishti/backend/store"
	"github.com/gin-gonic/gin"
)

// ListIncidents handles GET /api/events/:eventId/incidents?status=&limit=
func ListIncidents(c *gin.Context) {
	q := store.IncidentQuery{Status: models.IncidentStatus(c.Query("status"))}
	if q.Status != "" && !q.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}
	if limit, err := strconv.Atoi(c.Query("limit")); err == nil && limit > 0 {
		q.Limit = limit
	}

	incidents, err := dataStore.ListIncidents(c.Request.Context(), c.Param("eventId"), q)
	if err != nil {
		respondStoreError(c, err, "Incidents")
		return
	}
	c.JSON(http.StatusOK, incidents)
}

// GetIncident handles GET /api/incidents/:id
func GetIncident(c *gin.Context) {
	inc, err := dataStore.GetIncident(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Incident")
		return
	}
	c.JSON(http.StatusOK, inc)
}

// UpdateIncidentStatus handles PATCH /api/incidents/:id/status
func UpdateIncidentStatus(c *gin.Context) {
	var req struct {
		Status models.IncidentStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	var (
		inc *models.Incident
		err error
	)
	if materializer != nil {
		inc, err = materializer.UpdateStatus(c.Request.Context(), c.Param("id"), req.Status)
	} else {
		inc, err = dataStore.UpdateIncidentStatus(c.Request.Context(), c.Param("id"), req.Status)
	}
	if err != nil {
		respondStoreError(c, err, "Incident")
		return
	}
	refreshStats(c.Request.Context(), inc.EventID)
	c.JSON(http.StatusOK, inc)
}

// SummarizeIncident handles POST /api/incidents/summary.
// The body carries a camera frame data URI with the incident type and location.
func SummarizeIncident(c *gin.Context) {
	if commandAI == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Assistant not configured"})
		return
	}
	var req struct {
		CameraStream string `json:"cameraStream" binding:"required"`
		IncidentType string `json:"incidentType" binding:"required"`
		Location     string `json:"location" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "cameraStream, incidentType and location are required"})
		return
	}

	summary, err := commandAI.SummarizeIncident(c.Request.Context(), req.CameraStream, req.IncidentType, req.Location)
	if err != nil {
		log.Printf("⚠️ Incident summary failed: %v", err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to summarize incident"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"summary": summary})
}

// ListAlerts handles GET /api/events/:eventId/alerts
func ListAlerts(c *gin.Context) {
	limit, _ := strconv.Atoi(c.Query("limit"))
	alerts, err := dataStore.ListAlerts(c.Request.Context(), c.Param("eventId"), limit)
	if err != nil {
		respondStoreError(c, err, "Alerts")
		return
	}
	c.JSON(http.StatusOK, alerts)
}

// AcknowledgeAlert handles POST /api/alerts/:id/acknowledge
func AcknowledgeAlert(c *gin.Context) {
	alert, err := dataStore.AcknowledgeAlert(c.Request.Context(), c.Param("id"), c.GetString("userID"))
	if err != nil {
		respondStoreError(c, err, "Alert")
		return
	}
	c.JSON(http.StatusOK, alert)
}

// ListCommanders handles GET /api/events/:eventId/commanders
func ListCommanders(c *gin.Context) {
	commanders, err := dataStore.ListCommanders(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		respondStoreError(c, err, "Commanders")
		return
	}
	c.JSON(http.StatusOK, commanders)
}

// AddCommander handles POST /api/events/:eventId/commanders
func AddCommander(c *gin.Context) {
	var req struct {
		Name             string `json:"name" binding:"required"`
		ContactNumber    string `json:"contactNumber" binding:"required"`
		AssignedCameraID string `json:"assignedCameraId" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Name, contact number and camera are required"})
		return
	}

	commander := models.Commander{
		EventID:          c.Param("eventId"),
		Name:             strings.TrimSpace(req.Name),
		ContactNumber:    strings.TrimSpace(req.ContactNumber),
		AssignedCameraID: req.AssignedCameraID,
	}
	if err := dataStore.AddCommander(c.Request.Context(), &commander); err != nil {
		respondStoreError(c, err, "Commander")
		return
	}
	c.JSON(http.StatusCreated, commander)
}

// DeleteCommander handles DELETE /api/commanders/:id
func DeleteCommander(c *gin.Context) {
	if err := dataStore.DeleteCommander(c.Request.Context(), c.Param("id")); err != nil {
		respondStoreError(c, err, "Commander")
		return
	}
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// TriggerEmergency handles POST /api/events/:eventId/emergency.
// cameraId "global" (or empty) broadcasts without creating an incident;
// status None cancels the signal.
func TriggerEmergency(c *gin.Context) {
	if materializer == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Incidents not initialized"})
		return
	}
	var req struct {
		CameraID string               `json:"cameraId"`
		Status   models.EmergencyType `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid emergency status"})
		return
	}

	eventID := c.Param("eventId")
	inc, err := materializer.TriggerEmergency(c.Request.Context(), eventID, req.CameraID, req.Status)
	if err != nil {
		respondStoreError(c, err, "Emergency")
		return
	}
	if inc != nil {
		refreshStats(c.Request.Context(), eventID)
	}
	c.JSON(http.StatusOK, gin.H{"status": req.Status, "incident": inc})
}

// GetEmergencyStatus handles GET /api/events/:eventId/emergency?cameraId=
func GetEmergencyStatus(c *gin.Context) {
	scope, cameraID := models.GlobalIoTScope, ""
	if cam := c.Query("cameraId"); cam != "" && cam != "global" {
		scope, cameraID = c.Param("eventId"), cam
	}
	status, err := dataStore.GetIoTStatus(c.Request.Context(), scope, cameraID)
	if err != nil {
		respondStoreError(c, err, "Emergency status")
		return
	}
	c.JSON(http.StatusOK, gin.H{"scope": scope, "cameraId": cameraID, "status": status})
}
