package certificates

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/auth"
)

type Handler struct{ svc *Service }

func RegisterRoutes(r gin.IRoutes, svc *Service) {
	h := &Handler{svc: svc}

	// POST /clearance/requests/:request_ulid/certificate
	r.POST("/clearance/requests/:request_ulid/certificate", h.Issue)
	// GET /certificates/:number
	r.GET("/certificates/:number", h.Get)
}

func (h *Handler) Issue(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	res, err := h.svc.Issue(c.Request.Context(), actor, c.Param("request_ulid"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	c.Header("Location", "/certificates/"+res.Number)
	c.JSON(http.StatusCreated, res)
}

func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)

	res, err := h.svc.GetByNumber(c.Request.Context(), actor, c.Param("number"))
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
