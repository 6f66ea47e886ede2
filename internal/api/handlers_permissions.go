package api

import (
	"github.com/gin-gonic/gin"

	"continuouscare/internal/models"
)

type permissionRequest struct {
	Username string `json:"username"`
	Duration int    `json:"duration"`
}

// UploadPermission files a permission row. A medic requests access to a
// patient; a patient grants access to a medic directly.
func (h *Handler) UploadPermission(c *gin.Context) {
	user, role := sessionUser(c)

	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Duration <= 0 {
		badRequest(c, `Argument errors : "username" and a positive "duration" are mandatory`)
		return
	}

	var err error
	if role == models.RoleMedic {
		err = h.proc.RequestPermission(c.Request.Context(), user, req.Username, req.Duration)
	} else {
		err = h.proc.GrantPermission(c.Request.Context(), user, req.Username, req.Duration)
	}
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) GetAllPermissions(c *gin.Context) {
	user, _ := sessionUser(c)
	perms, err := h.proc.AllPermissions(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, perms)
}

func (h *Handler) GetPendingPermissions(c *gin.Context) {
	user, _ := sessionUser(c)
	perms, err := h.proc.PendingPermissions(c.Request.Context(), user)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, perms)
}

func (h *Handler) AcceptPermission(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		badRequest(c, `Argument errors : "username" is mandatory`)
		return
	}

	if err := h.proc.AcceptPermission(c.Request.Context(), user, req.Username); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) RejectPermission(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	var req permissionRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" {
		badRequest(c, `Argument errors : "username" is mandatory`)
		return
	}

	if err := h.proc.RejectPermission(c.Request.Context(), user, req.Username); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// RemovePendingPermission lets a medic withdraw a request they filed.
func (h *Handler) RemovePendingPermission(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleMedic {
		logical(c, "Only accessible to medics")
		return
	}

	client := c.Query("username")
	if client == "" {
		badRequest(c, `Argument errors : "username" is mandatory`)
		return
	}

	if err := h.proc.RemovePermission(c.Request.Context(), user, client); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

// RemoveAcceptedPermission lets a patient revoke access they granted.
func (h *Handler) RemoveAcceptedPermission(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	medic := c.Query("username")
	if medic == "" {
		badRequest(c, `Argument errors : "username" is mandatory`)
		return
	}

	if err := h.proc.RemovePermission(c.Request.Context(), medic, user); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
