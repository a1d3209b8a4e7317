package profiles

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/auth"
	"LECS-backend/internal/platform/rbac"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// GET /profiles (一覧・検索)
	r.GET("/profiles", h.List)
	// GET /profiles/:user_id
	r.GET("/profiles/:user_id", h.Get)
	// PUT /profiles/:user_id
	r.PUT("/profiles/:user_id", h.Update)
	// PATCH /profiles/:user_id/deactivate
	r.PATCH("/profiles/:user_id/deactivate", h.Deactivate)
}

// ---------- handlers ----------

func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	userID := c.Param("user_id")

	// 本人か、アカウント管理権限があるか
	if actor.UserID != userID && !actor.Can(rbac.PermManageAccounts) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	res, err := h.svc.Get(c.Request.Context(), userID)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	if !actor.Can(rbac.PermManageAccounts) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	f := Filter{
		Role:       c.Query("role"),
		Department: c.Query("department"),
		Lab:        c.Query("lab"),
		ActiveOnly: c.Query("active") == "1" || c.Query("active") == "true",
		Limit:      parseIntDefault(c.Query("limit"), 50),
		Offset:     parseIntDefault(c.Query("offset"), 0),
	}
	res, err := h.svc.List(c.Request.Context(), f)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Update(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	if !actor.Can(rbac.PermManageAccounts) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	var req UpdateProfileRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Update(c.Request.Context(), c.Param("user_id"), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Deactivate(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	if !actor.Can(rbac.PermManageAccounts) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	if err := h.svc.Deactivate(c.Request.Context(), c.Param("user_id")); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "deactivated"})
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
