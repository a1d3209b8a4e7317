package issues

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

	// POST /labs/:schema/issues
	r.POST("/labs/:schema/issues", h.Report)
	// POST /labs/:schema/issues/:issue_ulid/resolve
	r.POST("/labs/:schema/issues/:issue_ulid/resolve", h.Resolve)
	// POST /labs/:schema/issues/:issue_ulid/pay
	r.POST("/labs/:schema/issues/:issue_ulid/pay", h.MarkPaid)
	// GET /labs/:schema/issues (一覧・検索)
	r.GET("/labs/:schema/issues", h.List)
	// POST /labs/:schema/issues/auto-resolve (メンテナンス)
	r.POST("/labs/:schema/issues/auto-resolve", h.AutoResolve)
}

// ---------- handlers ----------

func (h *Handler) Report(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	schema := c.Param("schema")
	if !actor.CanAccessLab(schema) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("lab out of scope")))
		return
	}

	var req ReportIssueRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	res, err := h.svc.Report(c.Request.Context(), schema, actor.UserID, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	c.Header("Location", "/labs/"+schema+"/issues/"+res.IssueULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Resolve(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	schema := c.Param("schema")
	if !actor.Can(rbac.PermManageEquipment) || !actor.CanAccessLab(schema) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	var req ResolveRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid json")))
		return
	}

	res, err := h.svc.Resolve(c.Request.Context(), schema, c.Param("issue_ulid"), req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) MarkPaid(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	schema := c.Param("schema")
	if !actor.Can(rbac.PermManageEquipment) || !actor.CanAccessLab(schema) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	res, err := h.svc.MarkPaid(c.Request.Context(), schema, c.Param("issue_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) List(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	schema := c.Param("schema")
	if !actor.CanAccessLab(schema) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("lab out of scope")))
		return
	}

	f := Filter{
		ReporterID:      c.Query("reporter_id"),
		Status:          c.Query("status"),
		IssueType:       c.Query("issue_type"),
		OnlyOutstanding: c.Query("only_outstanding") == "true" || c.Query("only_outstanding") == "1",
		Limit:           parseIntDefault(c.Query("limit"), 50),
		Offset:          parseIntDefault(c.Query("offset"), 0),
	}
	if v := c.Query("equipment_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.EquipmentID = &id
		}
	}

	if !actor.Can(rbac.PermManageEquipment) {
		f.ReporterID = actor.UserID
	}

	res, err := h.svc.List(c.Request.Context(), schema, f)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) AutoResolve(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	schema := c.Param("schema")
	if !actor.Can(rbac.PermManageEquipment) || !actor.CanAccessLab(schema) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	days := parseIntDefault(c.Query("days"), 0)
	n, err := h.svc.AutoResolve(c.Request.Context(), schema, days)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, gin.H{"resolved": n})
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
