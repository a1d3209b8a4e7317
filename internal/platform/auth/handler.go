package auth

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"LECS-backend/internal/platform/apperr"
)

type AuthHandler struct {
	svc        *Service
	cookieName string
	ttlSeconds int
}

// RegisterPublicRoutes: 認証前でも叩けるエンドポイント
func RegisterPublicRoutes(r gin.IRoutes, svc *Service, cookieName string, ttlSeconds int) {
	h := &AuthHandler{svc: svc, cookieName: cookieName, ttlSeconds: ttlSeconds}
	r.POST("/login", h.Login)
	r.POST("/logout", h.Logout)
}

// RegisterAdminRoutes: アカウント管理（manage_accounts 前提のグループに載せる）
func RegisterAdminRoutes(r gin.IRoutes, svc *Service, cookieName string, ttlSeconds int) {
	h := &AuthHandler{svc: svc, cookieName: cookieName, ttlSeconds: ttlSeconds}
	r.POST("/register", h.Register)
	r.PATCH("/accounts/:id/disable", h.DisableAccount)
}

type LoginRequest struct {
	ID       string `json:"id" binding:"required"`
	Password string `json:"password" binding:"required"`
}

func (h *AuthHandler) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid request")))
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.ID, req.Password)
	if err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	c.SetCookie(h.cookieName, res.SessionID, h.ttlSeconds, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{
		"token":   res.Token,
		"role":    res.Role,
		"message": "Login successful",
	})
}

func (h *AuthHandler) Logout(c *gin.Context) {
	if ck, err := c.Request.Cookie(h.cookieName); err == nil && ck.Value != "" {
		_ = h.svc.Logout(c.Request.Context(), ck.Value)
	}
	c.SetCookie(h.cookieName, "", -1, "/", "", true, true)
	c.JSON(http.StatusOK, gin.H{"message": "logged out"})
}

type RegisterRequest struct {
	ID       string  `json:"id" binding:"required"`
	Password string  `json:"password" binding:"required"`
	Role     *string `json:"role,omitempty"` // 未指定なら student
}

func (h *AuthHandler) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, apperr.Payload(apperr.ErrInvalid("invalid request")))
		return
	}

	role := "student"
	if req.Role != nil && *req.Role != "" {
		role = *req.Role
	}

	if err := h.svc.Register(c.Request.Context(), req.ID, req.Password, role); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	c.JSON(http.StatusCreated, gin.H{"message": "registered"})
}

func (h *AuthHandler) DisableAccount(c *gin.Context) {
	id := c.Param("id")

	if err := h.svc.Disable(c.Request.Context(), id); err != nil {
		c.JSON(apperr.ToHTTPStatus(err), apperr.Payload(err))
		return
	}

	c.JSON(http.StatusOK, gin.H{"message": "disabled"})
}
