package requests

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /clearance/requests
	r.POST("/clearance/requests", h.Submit)
	// POST /clearance/requests/:request_ulid/open
	r.POST("/clearance/requests/:request_ulid/open", h.Open)
	// POST /clearance/requests/:request_ulid/decide
	r.POST("/clearance/requests/:request_ulid/decide", h.Decide)
	// GET /clearance/requests (一覧)
	r.GET("/clearance/requests", h.List)
	// GET /clearance/requests/:request_ulid
	r.GET("/clearance/requests/:request_ulid", h.Get)
}

// ---------- handlers ----------

func (h *Handler) Submit(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	res, err := h.svc.Submit(c.Request.Context(), actor)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	c.Header("Location", "/clearance/requests/"+res.RequestULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Open(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	res, err := h.svc.Open(c.Request.Context(), actor, c.Param("request_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Decide(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	var req DecideRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Decide(c.Request.Context(), actor, c.Param("request_ulid"), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	res, err := h.svc.Get(c.Request.Context(), actor, c.Param("request_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	f := Filter{
		UserID: c.Query("user_id"),
		Status: c.Query("status"),
		Limit:  parseIntDefault(c.Query("limit"), 50),
		Offset: parseIntDefault(c.Query("offset"), 0),
	}

	res, err := h.svc.List(c.Request.Context(), actor, f)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func parseIntDefault(s string, d int) int {
	if s == "" {
		return d
	}
	v, err := strconv.Atoi(s)
	if err != nil {
		return d
	}
	return v
}
