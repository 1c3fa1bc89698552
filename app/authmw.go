package app

import (
	"context"
	"net/http"
	"strings"

	"hardware_ledger/session"

	"github.com/gin-gonic/gin"
)

const (
	AppSessionCookie = "app_session"
	TokenHeader      = "x-auth-token"

	CtxUserID   = "userID"
	CtxUsername = "username"
	CtxRole     = "role"
)

// SessionLookup resolves an app_session cookie value.
type SessionLookup interface {
	Get(ctx context.Context, id string) (*session.AppSession, error)
}

func bearerToken(c *gin.Context) string {
	if h := c.GetHeader("Authorization"); h != "" {
		if tok, ok := strings.CutPrefix(h, "Bearer "); ok {
			return strings.TrimSpace(tok)
		}
	}
	return strings.TrimSpace(c.GetHeader(TokenHeader))
}

// AuthRequired accepts a bearer token (Authorization or x-auth-token) or the
// app_session cookie, and puts the caller identity on the context.
// sessions may be nil when redis is not configured.
func AuthRequired(tokens *TokenManager, sessions SessionLookup) gin.HandlerFunc {
	return func(c *gin.Context) {
		if raw := bearerToken(c); raw != "" {
			claims, err := tokens.Validate(raw)
			if err != nil {
				c.AbortWithStatusJSON(http.StatusUnauthorized, H{"message": "Invalid or expired token."})
				return
			}
			c.Set(CtxUserID, claims.UserID)
			c.Set(CtxUsername, claims.Username)
			c.Set(CtxRole, claims.Role)
			c.Next()
			return
		}

		if sessions != nil {
			if ck, err := c.Request.Cookie(AppSessionCookie); err == nil && ck.Value != "" {
				as, err := sessions.Get(c.Request.Context(), ck.Value)
				if err != nil {
					c.AbortWithStatusJSON(http.StatusUnauthorized, H{"message": "Session expired. Please sign in again."})
					return
				}
				c.Set(CtxUserID, as.UserID)
				c.Set(CtxUsername, as.Username)
				c.Set(CtxRole, as.Role)
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusUnauthorized, H{"message": "Authentication required."})
	}
}
