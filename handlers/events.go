package handlers

import (
	"context"
	"log"
	"net/http"
	"path/filepath"
	"strings"
	"time"

	"github.com/drishti/backend/models"
	"github.com/drishti/backend/storage"
	"github.com/gin-gonic/gin"
)

// maxVideoSize bounds uploaded camera videos
const maxVideoSize = 512 << 20

// ListEvents handles GET /api/events
func ListEvents(c *gin.Context) {
	userID := c.GetString("userID")
	if c.Query("all") == "true" && models.Role(c.GetString("role")) == models.RoleAdmin {
		userID = ""
	}
	events, err := dataStore.ListEvents(c.Request.Context(), userID)
	if err != nil {
		respondStoreError(c, err, "Events")
		return
	}
	c.JSON(http.StatusOK, events)
}

// CreateEvent handles POST /api/events
func CreateEvent(c *gin.Context) {
	var req struct {
		Name string `json:"name" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Event name is required"})
		return
	}

	ev, err := dataStore.CreateEvent(c.Request.Context(), req.Name, c.GetString("userID"))
	if err != nil {
		respondStoreError(c, err, "Event")
		return
	}
	log.Printf("✅ Event %s created (%s)", ev.ID, ev.Name)
	c.JSON(http.StatusCreated, ev)
}

// GetEvent handles GET /api/events/:eventId
func GetEvent(c *gin.Context) {
	ev, err := dataStore.GetEvent(c.Request.Context(), c.Param("eventId"))
	if err != nil {
		respondStoreError(c, err, "Event")
		return
	}
	c.JSON(http.StatusOK, ev)
}

// ListCameras handles GET /api/events/:eventId/cameras.
// The local webcam is appended unless withWebcam=false.
func ListCameras(c *gin.Context) {
	eventID := c.Param("eventId")
	cams, err := dataStore.ListCameras(c.Request.Context(), eventID)
	if err != nil {
		respondStoreError(c, err, "Cameras")
		return
	}
	if c.Query("withWebcam") != "false" {
		cams = append([]models.Camera{models.WebcamCamera(eventID)}, cams...)
	}
	c.JSON(http.StatusOK, cams)
}

type cameraRequest struct {
	ID          string              `json:"id"`
	Name        string              `json:"name" binding:"required"`
	Location    string              `json:"location"`
	Status      models.CameraStatus `json:"status"`
	Coordinates models.Coordinates  `json:"coordinates"`
	Zone        string              `json:"zone"`
	StreamURL   string              `json:"streamUrl"`
	StreamImage string              `json:"streamImage"`
}

// AddCamera handles POST /api/events/:eventId/cameras
func AddCamera(c *gin.Context) {
	var req cameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Camera name is required"})
		return
	}
	if req.ID == models.WebcamID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Camera id is reserved"})
		return
	}

	cam := models.Camera{
		ID:          req.ID,
		EventID:     c.Param("eventId"),
		Name:        req.Name,
		Location:    req.Location,
		Status:      req.Status,
		Coordinates: req.Coordinates,
		Zone:        req.Zone,
		StreamURL:   req.StreamURL,
		StreamImage: req.StreamImage,
	}
	if err := dataStore.AddCamera(c.Request.Context(), &cam); err != nil {
		respondStoreError(c, err, "Camera")
		return
	}
	syncCameras(c.Request.Context(), cam.EventID)
	c.JSON(http.StatusCreated, cam)
}

// UploadCameraVideo handles POST /api/events/:eventId/cameras/upload.
// The video is stored in the object store and becomes the stream of a new camera.
func UploadCameraVideo(c *gin.Context) {
	if objects == nil {
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Object storage not configured"})
		return
	}

	file, err := c.FormFile("video")
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Video file is required"})
		return
	}
	if file.Size > maxVideoSize {
		c.JSON(http.StatusRequestEntityTooLarge, gin.H{"error": "Video file too large"})
		return
	}

	name := strings.TrimSpace(c.PostForm("name"))
	if name == "" {
		name = strings.TrimSuffix(file.Filename, filepath.Ext(file.Filename))
	}
	if name == "" {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Camera name is required"})
		return
	}

	f, err := file.Open()
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Failed to read video"})
		return
	}
	defer f.Close()

	contentType := file.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "application/octet-stream"
	}

	eventID := c.Param("eventId")
	key := storage.VideoKey(eventID, file.Filename, time.Now())
	url, err := objects.Put(c.Request.Context(), key, f, file.Size, contentType)
	if err != nil {
		log.Printf("❌ Failed to upload video %s: %v", key, err)
		c.JSON(http.StatusBadGateway, gin.H{"error": "Failed to upload video"})
		return
	}

	location := strings.TrimSpace(c.PostForm("location"))
	if location == "" {
		location = "Uploaded Video"
	}
	cam := models.Camera{
		EventID:   eventID,
		Name:      name,
		Location:  location,
		StreamURL: url,
	}
	if err := dataStore.AddCamera(c.Request.Context(), &cam); err != nil {
		respondStoreError(c, err, "Camera")
		return
	}
	log.Printf("📹 Video uploaded as camera %s (%s)", cam.ID, url)
	syncCameras(c.Request.Context(), eventID)
	c.JSON(http.StatusCreated, cam)
}

// UpdateCamera handles PUT /api/cameras/:id
func UpdateCamera(c *gin.Context) {
	existing, err := dataStore.GetCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Camera")
		return
	}

	var req cameraRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid request body"})
		return
	}

	existing.Name = req.Name
	existing.Location = req.Location
	existing.Coordinates = req.Coordinates
	existing.Zone = req.Zone
	existing.StreamURL = req.StreamURL
	existing.StreamImage = req.StreamImage
	if req.Status != "" {
		existing.Status = req.Status
	}

	if err := dataStore.UpdateCamera(c.Request.Context(), existing); err != nil {
		respondStoreError(c, err, "Camera")
		return
	}
	syncCameras(c.Request.Context(), existing.EventID)
	c.JSON(http.StatusOK, existing)
}

// UpdateCameraStatus handles PATCH /api/cameras/:id/status
func UpdateCameraStatus(c *gin.Context) {
	var req struct {
		Status models.CameraStatus `json:"status" binding:"required"`
	}
	if err := c.ShouldBindJSON(&req); err != nil || !req.Status.Valid() {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid status"})
		return
	}

	var (
		cam *models.Camera
		err error
	)
	if monitor != nil {
		cam, err = monitor.SetCameraStatus(c.Request.Context(), c.Param("id"), req.Status)
	} else {
		cam, err = dataStore.UpdateCameraStatus(c.Request.Context(), c.Param("id"), req.Status)
	}
	if err != nil {
		respondStoreError(c, err, "Camera")
		return
	}
	refreshStats(c.Request.Context(), cam.EventID)
	c.JSON(http.StatusOK, cam)
}

// DeleteCamera handles DELETE /api/cameras/:id
func DeleteCamera(c *gin.Context) {
	cam, err := dataStore.GetCamera(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondStoreError(c, err, "Camera")
		return
	}
	if err := dataStore.DeleteCamera(c.Request.Context(), cam.ID); err != nil {
		respondStoreError(c, err, "Camera")
		return
	}
	syncCameras(c.Request.Context(), cam.EventID)
	c.JSON(http.StatusOK, gin.H{"success": true})
}

// syncCameras pushes camera list changes to the sampler and the dashboard
func syncCameras(ctx context.Context, eventID string) {
	if monitor != nil {
		if err := monitor.SyncCameras(ctx, eventID); err != nil {
			log.Printf("⚠️ Failed to sync cameras of %s: %v", eventID, err)
		}
	}
	refreshStats(ctx, eventID)
}

func refreshStats(ctx context.Context, eventID string) {
	if tracker == nil {
		return
	}
	if _, err := tracker.Recompute(ctx, eventID); err != nil {
		log.Printf("⚠️ Failed to refresh stats of %s: %v", eventID, err)
	}
}
