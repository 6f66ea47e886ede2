package api

import (
	"github.com/gin-gonic/gin"

	"continuouscare/internal/config"
	"continuouscare/internal/logging"
	"continuouscare/internal/processor"
)

func NewRouter(proc *processor.Processor, logger *logging.Logger, cfg config.Config) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(RequestLoggingMiddleware(logger))

	h := NewHandler(proc, logger)
	api := r.Group(cfg.API.BasePath)
	{
		// Accounts and sessions
		api.POST("/signup", h.Signup)
		api.POST("/signin", h.Signin)
		api.GET("/logout", h.Logout)

		authed := api.Group("", AuthMiddleware(proc))
		{
			// Devices
			authed.GET("/devices", h.GetDevices)
			authed.POST("/devices", h.AddDevice)
			authed.PUT("/devices", h.UpdateDevice)
			authed.DELETE("/devices", h.DeleteDevice)

			// Profile
			authed.GET("/profile", h.GetProfile)
			authed.PUT("/profile", h.UpdateProfile)
			authed.DELETE("/profile", h.DeleteProfile)

			// Self-reported mood
			authed.POST("/mood", h.RegisterMood)
			authed.DELETE("/mood", h.DeleteMood)

			// Stored readings
			authed.GET("/data/:category", h.GetData)

			// Permission workflow
			authed.POST("/permissions", h.UploadPermission)
			authed.GET("/permissions", h.GetAllPermissions)
			authed.GET("/permissions/pending", h.GetPendingPermissions)
			authed.POST("/permissions/accept", h.AcceptPermission)
			authed.POST("/permissions/reject", h.RejectPermission)
			authed.DELETE("/permissions/pending", h.RemovePendingPermission)
			authed.DELETE("/permissions/accepted", h.RemoveAcceptedPermission)

			// Push channel
			authed.GET("/ws", h.AttachWebSocket)
		}

		api.GET("/supported-devices", h.GetSupportedDevices)

		// Anonymized research export
		api.GET("/download", h.Download)
	}
	return r
}
