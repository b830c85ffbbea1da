package handlers

import (
	"github.com/drishti/backend/models"
	"github.com/gin-gonic/gin"
)

// RegisterRoutes mounts every HTTP and WebSocket route on router
func RegisterRoutes(router *gin.Engine) {
	router.GET("/health", Health)
	if appMetrics != nil {
		router.GET("/metrics", gin.WrapH(appMetrics.Handler()))
	}

	// Browsers cannot set headers on WebSocket upgrades, so the token may
	// arrive as ?token=
	router.GET("/ws/live", AuthMiddleware(), HandleLiveWebSocket)

	api := router.Group("/api")
	{
		api.POST("/auth/login", Login)

		authed := api.Group("", AuthMiddleware())
		authed.GET("/auth/me", Me)
		authed.GET("/live/stats", GetLiveStats)
		authed.GET("/system/resources", GetSystemResources)

		// Events and dashboard data
		events := authed.Group("/events", RequireAccess(models.ResourceDashboard))
		{
			events.GET("", ListEvents)
			events.POST("", CreateEvent)
			events.GET("/:eventId", GetEvent)
			events.GET("/:eventId/cameras", ListCameras)
			events.GET("/:eventId/stats", GetStats)
			events.GET("/:eventId/history", GetCrowdHistory)
			events.GET("/:eventId/detections", GetDetections)
			events.GET("/:eventId/heatmap", GetHeatmap)
			events.PUT("/:eventId/heatmap/camera", SelectHeatmapCamera)

			events.GET("/:eventId/analysis", GetAnalysisResults)
			events.GET("/:eventId/analysis/status", GetAnalysisStatus)
			events.POST("/:eventId/analysis/start", StartAnalysis)
			events.POST("/:eventId/analysis/stop", StopAnalysis)
			events.POST("/:eventId/analysis/reset", ResetAnalysis)
			events.POST("/:eventId/analysis/webcam/frame", PushWebcamFrame)
			events.POST("/:eventId/analysis/webcam/pause", SetWebcamPaused)

			events.GET("/:eventId/alerts", ListAlerts)
		}

		// Camera management
		cameras := authed.Group("", RequireAccess(models.ResourceCameras))
		{
			cameras.POST("/events/:eventId/cameras", AddCamera)
			cameras.POST("/events/:eventId/cameras/upload", UploadCameraVideo)
			cameras.PUT("/cameras/:id", UpdateCamera)
			cameras.PATCH("/cameras/:id/status", UpdateCameraStatus)
			cameras.DELETE("/cameras/:id", DeleteCamera)
		}

		incidents := authed.Group("", RequireAccess(models.ResourceIncidents))
		{
			incidents.GET("/events/:eventId/incidents", ListIncidents)
			incidents.GET("/incidents/:id", GetIncident)
			incidents.PATCH("/incidents/:id/status", UpdateIncidentStatus)
			incidents.POST("/incidents/summary", SummarizeIncident)
			incidents.POST("/alerts/:id/acknowledge", AcknowledgeAlert)
		}

		commanders := authed.Group("", RequireAccess(models.ResourceCommanders))
		{
			commanders.GET("/events/:eventId/commanders", ListCommanders)
			commanders.POST("/events/:eventId/commanders", AddCommander)
			commanders.DELETE("/commanders/:id", DeleteCommander)
		}

		emergency := authed.Group("/events/:eventId/emergency", RequireAccess(models.ResourceEmergency))
		{
			emergency.GET("", GetEmergencyStatus)
			emergency.POST("", TriggerEmergency)
		}

		ai := authed.Group("", RequireAccess(models.ResourceCommandCenter))
		{
			ai.POST("/events/:eventId/assistant", AskCommandCenter)
			ai.POST("/assistant/speech", TextToSpeech)
		}

		users := authed.Group("/users", RequireAccess(models.ResourceUsers))
		{
			users.GET("", ListUsers)
			users.POST("", AddUser)
			users.DELETE("/:id", DeleteUser)
		}
	}
}
