package analytics

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"LECS-backend/internal/platform/apperr"
)

type Handler struct{ svc *Service }

// view_analytics 前提のグループに載せる
func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// GET /analytics/borrows?from=&to=
	r.GET("/analytics/borrows", h.BorrowStats)
	// GET /analytics/outstanding
	r.GET("/analytics/outstanding", h.Outstanding)
	// GET /analytics/issues
	r.GET("/analytics/issues", h.IssueStats)
	// GET /analytics/clearance?from=&to=
	r.GET("/analytics/clearance", h.ClearanceStats)
	// GET /analytics/export (cp932 CSV)
	r.GET("/analytics/export", h.ExportCSV)
}

// ---------- handlers ----------

func (h *Handler) BorrowStats(c *gin.Context) {
	res, err := h.svc.BorrowStats(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) Outstanding(c *gin.Context) {
	res, err := h.svc.OutstandingByLab(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) IssueStats(c *gin.Context) {
	res, err := h.svc.IssueStats(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ClearanceStats(c *gin.Context) {
	res, err := h.svc.ClearanceStats(c.Request.Context(), c.Query("from"), c.Query("to"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}

func (h *Handler) ExportCSV(c *gin.Context) {
	b, err := h.svc.ExportOutstandingCSV(c.Request.Context())
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.Header("Content-Disposition", `attachment; filename="outstanding.csv"`)
	c.Data(http.StatusOK, "text/csv; charset=Shift_JIS", b)
}
