package eligibility

import (
	"context"
	"net/http"

	"github.com/gin-gonic/gin"

	"LECS-backend/internal/platform/apperr"
	"LECS-backend/internal/platform/auth"
	"LECS-backend/internal/platform/rbac"
)

// Profiles: 対象ユーザの担当研究室を引く（profilesパッケージが実装）
type Profiles interface {
	AssignedLabs(ctx context.Context, userID string) ([]string, error)
}

type Handler struct {
	svc      *Service
	profiles Profiles
}

func RegisterRoutes(r gin.IRoutes, svc *Service, profiles Profiles) {
	h := &Handler{svc: svc, profiles: profiles}

	// GET /clearance/eligibility/:user_id
	r.GET("/clearance/eligibility/:user_id", h.Get)
}

// 本人はいつでも自分の評価を見られる。他人の評価は review_clearance 持ちで、
// かつ対象ユーザの全研究室が担当範囲に収まっている場合のみ
func (h *Handler) Get(c *gin.Context) {
	actor, _ := auth.ActorFrom(c)
	target := c.Param("user_id")

	userLabs, err := h.profiles.AssignedLabs(c.Request.Context(), target)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	if actor.UserID != target {
		if !actor.Can(rbac.PermReviewClearance) {
			c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("forbidden")))
			return
		}
		scope := userLabs
		if len(scope) == 0 {
			scope = h.svc.AllSchemas()
		}
		if !actor.CoversLabs(scope) {
			c.JSON(http.StatusForbidden, apperr.Payload(apperr.ErrForbidden("user labs outside reviewer scope")))
			return
		}
	}

	res, err := h.svc.Evaluate(c.Request.Context(), target, userLabs)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}
	c.JSON(http.StatusOK, res)
}
