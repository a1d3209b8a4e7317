package audit

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"go.uber.org/zap"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/logging"
)

type Handler struct{ store *Store }

// view_audit 前提のグループに載せる
func RegisterRoutes(r gin.IRoutes, store *Store) {
	h := &Handler{store: store}
	r.GET("/audit", h.List)
}

func (h *Handler) List(c *gin.Context) {
	f := Filter{
		ActorID: c.Query("actor_id"),
		Action:  c.Query("action"),
		Entity:  c.Query("entity"),
		Limit:   parseIntDefault(c.Query("limit"), 50),
		Offset:  parseIntDefault(c.Query("offset"), 0),
	}

	res, err := h.store.List(c.Request.Context(), f)
	if err != nil {
		logging.L().Error("audit list failed", zap.String("op", "audit.List"), zap.Error(err))
		e := apperr.ErrInternal("audit list failed")
		c.JSON(apperr.ToHTTPStatus(e), apperr.Payload(e))
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
