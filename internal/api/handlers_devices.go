package api

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"continuouscare/internal/models"
)

func (h *Handler) GetDevices(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	devices, err := h.proc.Devices(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, devices)
}

func (h *Handler) GetSupportedDevices(c *gin.Context) {
	devices, err := h.proc.SupportedDevices(c.Request.Context())
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, devices)
}

type deviceRequest struct {
	ID        string            `json:"id"`
	Type      string            `json:"type"`
	Auth      map[string]string `json:"authentication_fields"`
	Latitude  *float64          `json:"latitude"`
	Longitude *float64          `json:"longitude"`
}

func (h *Handler) AddDevice(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Type == "" {
		badRequest(c, `Argument errors : "type" is mandatory`)
		return
	}

	id, err := h.proc.AddDevice(c.Request.Context(), models.Device{
		Username:  user,
		Type:      req.Type,
		Auth:      req.Auth,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	})
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"id": id.String()})
}

func (h *Handler) UpdateDevice(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	var req deviceRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.ID == "" {
		badRequest(c, `Argument errors : "id" is mandatory`)
		return
	}
	id, err := uuid.Parse(req.ID)
	if err != nil {
		badRequest(c, "Argument errors : malformed device id")
		return
	}

	if err := h.proc.UpdateDevice(c.Request.Context(), models.Device{
		ID:        id,
		Username:  user,
		Auth:      req.Auth,
		Latitude:  req.Latitude,
		Longitude: req.Longitude,
	}); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) DeleteDevice(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	raw := c.Query("id")
	if raw == "" {
		badRequest(c, `Argument errors : "id" is mandatory`)
		return
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		badRequest(c, "Argument errors : malformed device id")
		return
	}

	if err := h.proc.DeleteDevice(c.Request.Context(), user, id); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
