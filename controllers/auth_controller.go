package controllers

import (
	"net/http"
	"strings"

	"hardware_ledger/app"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

type AuthController struct{ *Srv }

func NewAuthController(s *Srv) *AuthController { return &AuthController{Srv: s} }

// GET /api/auth/whoami
func (ac *AuthController) WhoAmI(c *gin.Context) {
	c.JSON(http.StatusOK, app.H{
		"userID":   c.GetString(app.CtxUserID),
		"username": c.GetString(app.CtxUsername),
		"role":     c.GetString(app.CtxRole),
	})
}

// POST /api/auth/logout：删 Redis 会话，Cookie 置空
func (ac *AuthController) Logout(c *gin.Context) {
	if ac.AppSess != nil {
		if ck, err := c.Request.Cookie(app.AppSessionCookie); err == nil && ck.Value != "" {
			if err := ac.AppSess.Delete(c.Request.Context(), ck.Value); err != nil {
				ac.Logger.Warn("delete session", zap.Error(err))
			}
		}
	}
	ac.clearCookie(c)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

// POST /api/auth/logout-all 撤销当前操作员的全部会话
func (ac *AuthController) LogoutAll(c *gin.Context) {
	uid := c.GetString(app.CtxUserID)
	if ac.AppSess != nil && uid != "" {
		if err := ac.AppSess.RevokeAllForUser(c.Request.Context(), uid); err != nil {
			ac.Logger.Error("revoke sessions", zap.String("user_id", uid), zap.Error(err))
			c.JSON(http.StatusInternalServerError, app.H{"message": "Unable to sign out."})
			return
		}
	}
	ac.clearCookie(c)
	c.JSON(http.StatusOK, app.H{"ok": true})
}

func (ac *AuthController) clearCookie(c *gin.Context) {
	http.SetCookie(c.Writer, &http.Cookie{
		Name:     app.AppSessionCookie,
		Value:    "",
		Path:     "/",
		MaxAge:   -1,
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
		Secure:   strings.HasPrefix(ac.WebOrigin, "https://"),
	})
}
