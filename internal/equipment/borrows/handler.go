package borrows

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

	// POST /labs/:schema/borrows
	r.POST("/labs/:schema/borrows", h.CreateBorrow)
	// POST /labs/:schema/borrows/:borrow_ulid/return
	r.POST("/labs/:schema/borrows/:borrow_ulid/return", h.Return)
	// GET /labs/:schema/borrows (一覧・検索)
	r.GET("/labs/:schema/borrows", h.List)
	// GET /labs/:schema/equipment/:equipment_id/availability
	r.GET("/labs/:schema/equipment/:equipment_id/availability", h.Availability)
}

// ---------- handlers ----------

func (h *Handler) CreateBorrow(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	schema := c.Param("schema")
	if !actor.CanAccessLab(schema) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("lab out of scope")))
		return
	}

	var req CreateBorrowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid json or missing required fields")))
		return
	}

	// 学生は自分名義の貸出のみ
	if !actor.Can(rbac.PermManageEquipment) && req.BorrowerID != actor.UserID {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("cannot borrow on behalf of others")))
		return
	}

	res, err := h.svc.CreateBorrow(c.Request.Context(), schema, req)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	c.Header("Location", "/labs/"+schema+"/borrows/"+res.BorrowULID)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Return(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	schema := c.Param("schema")
	if !actor.Can(rbac.PermManageEquipment) || !actor.CanAccessLab(schema) {
		c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
		return
	}

	var req ReturnRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid json")))
		return
	}
	if req.ProcessedByID == nil {
		uid := actor.UserID
		req.ProcessedByID = &uid
	}

	res, err := h.svc.Return(c.Request.Context(), schema, c.Param("borrow_ulid"), req)
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
		BorrowerID:      c.Query("borrower_id"),
		OnlyOutstanding: c.Query("only_outstanding") == "true" || c.Query("only_outstanding") == "1",
		Limit:           parseIntDefault(c.Query("limit"), 50),
		Offset:          parseIntDefault(c.Query("offset"), 0),
	}
	if v := c.Query("equipment_id"); v != "" {
		if id, err := strconv.ParseInt(v, 10, 64); err == nil {
			f.EquipmentID = &id
		}
	}

	// 装置管理権限がなければ自分の貸出だけ見える
	if !actor.Can(rbac.PermManageEquipment) {
		f.BorrowerID = actor.UserID
	}

	res, err := h.svc.List(c.Request.Context(), schema, f)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Availability(c *gin.Context) {
	schema := c.Param("schema")
	id, err := strconv.ParseInt(c.Param("equipment_id"), 10, 64)
	if err != nil || id <= 0 {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("equipment_id must be a positive integer")))
		return
	}

	res, err := h.svc.Availability(c.Request.Context(), schema, id)
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
