package api

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"continuouscare/internal/db"
	"continuouscare/internal/logging"
	"continuouscare/internal/models"
	"continuouscare/internal/processor"
)

// Response status codes kept from the original protocol:
// 0 successful, -1 internal error, 1 logical error, 2 argument error,
// 3 unauthorized path, 4 invalid token.
const (
	statusOK             = 0
	statusInternal       = -1
	statusLogical        = 1
	statusArguments      = 2
	statusUnauthorized   = 3
	statusAuthentication = 4
)

type Handler struct {
	proc   *processor.Processor
	logger *logging.Logger
}

func NewHandler(proc *processor.Processor, logger *logging.Logger) *Handler {
	return &Handler{proc: proc, logger: logger}
}

func ok(c *gin.Context, data any) {
	body := gin.H{"status": statusOK, "msg": "Successful operation."}
	if data != nil {
		body["data"] = data
	}
	c.JSON(http.StatusOK, body)
}

func fail(c *gin.Context, err error) {
	switch {
	case errors.Is(err, db.ErrDuplicateUser), errors.Is(err, db.ErrInvalidCredentials):
		c.JSON(http.StatusNotAcceptable, gin.H{"status": statusLogical, "msg": err.Error()})
	default:
		c.JSON(http.StatusInternalServerError, gin.H{"status": statusInternal, "msg": "Server internal error. " + err.Error()})
	}
}

func badRequest(c *gin.Context, msg string) {
	c.JSON(http.StatusBadRequest, gin.H{"status": statusArguments, "msg": msg})
}

func forbidden(c *gin.Context, msg string) {
	c.JSON(http.StatusForbidden, gin.H{"status": statusUnauthorized, "msg": msg})
}

func logical(c *gin.Context, msg string) {
	c.JSON(http.StatusNotAcceptable, gin.H{"status": statusLogical, "msg": msg})
}

func sessionUser(c *gin.Context) (string, models.Role) {
	return c.GetString("username"), c.MustGet("role").(models.Role)
}

type signupRequest struct {
	models.Profile
	Password string `json:"password"`
}

func (h *Handler) Signup(c *gin.Context) {
	var req signupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Argument errors : "+err.Error())
		return
	}
	if req.Username == "" || req.Password == "" || req.Name == "" || req.Email == "" {
		badRequest(c, "Argument errors : username, password, name and email are mandatory")
		return
	}
	if req.Role != models.RoleClient && req.Role != models.RoleMedic {
		badRequest(c, `Type can only be "client" or "medic"`)
		return
	}

	if err := h.proc.Signup(c.Request.Context(), req.Profile, req.Password); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type signinRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

func (h *Handler) Signin(c *gin.Context) {
	var req signinRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Username == "" || req.Password == "" {
		badRequest(c, "Argument errors : username and password are mandatory")
		return
	}

	token, err := h.proc.Signin(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, gin.H{"token": token})
}

func (h *Handler) Logout(c *gin.Context) {
	token := c.GetHeader("AuthToken")
	if token == "" {
		badRequest(c, `This path requires an authentication token on headers named "AuthToken"`)
		return
	}
	if !h.proc.Logout(token) {
		c.JSON(http.StatusUnauthorized, gin.H{"status": statusAuthentication, "msg": "Invalid Token."})
		return
	}
	ok(c, nil)
}

func (h *Handler) GetProfile(c *gin.Context) {
	user, role := sessionUser(c)

	target := user
	if role == models.RoleMedic {
		if patient := c.Query("patient"); patient != "" {
			target = patient
		}
	}

	p, err := h.proc.Profile(c.Request.Context(), target, user, role)
	if err != nil {
		fail(c, err)
		return
	}
	ok(c, p)
}

type updateProfileRequest struct {
	models.Profile
	Password string `json:"password"`
}

func (h *Handler) UpdateProfile(c *gin.Context) {
	user, role := sessionUser(c)

	var req updateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		badRequest(c, "Argument errors : "+err.Error())
		return
	}
	req.Username = user
	req.Role = role

	if err := h.proc.UpdateProfile(c.Request.Context(), req.Profile, req.Password); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) DeleteProfile(c *gin.Context) {
	user, _ := sessionUser(c)
	if err := h.proc.DeleteProfile(c.Request.Context(), user); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

type moodRequest struct {
	Moods []string `json:"moods"`
	Time  int64    `json:"time"`
}

func (h *Handler) RegisterMood(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	var req moodRequest
	if err := c.ShouldBindJSON(&req); err != nil || len(req.Moods) == 0 {
		badRequest(c, `Argument errors : "moods" must be a non-empty list`)
		return
	}

	if err := h.proc.RegisterMood(c.Request.Context(), user, req.Moods); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}

func (h *Handler) DeleteMood(c *gin.Context) {
	user, role := sessionUser(c)
	if role != models.RoleClient {
		logical(c, "Only accessible to patients")
		return
	}

	var req moodRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.Time == 0 {
		badRequest(c, `Argument errors : "time" is mandatory`)
		return
	}

	if err := h.proc.DeleteMood(c.Request.Context(), user, req.Time); err != nil {
		fail(c, err)
		return
	}
	ok(c, nil)
}
