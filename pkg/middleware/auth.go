package middleware

import (
	"context"
	"strings"

	"cesworld/pkg/access"
	"cesworld/pkg/auth"
	"cesworld/pkg/errutil"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"
)

const sessionKey = "session"

type Session struct {
	UserID string
	Role   string
}

// RoleLookup resolves a user's role when the session token carries none.
// An unknown user resolves to an empty role.
type RoleLookup interface {
	RoleOf(ctx context.Context, userID string) (string, error)
}

// Authenticate parses the bearer token when present. A missing or invalid
// token leaves the request without a session; the route guards decide.
func Authenticate(tokens *auth.Tokens) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		scheme, raw, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || raw == "" {
			c.Next()
			return
		}

		claims, err := tokens.Parse(strings.TrimSpace(raw))
		if err != nil {
			zap.L().Debug("rejected session token", zap.String("request_id", RequestID(c)), zap.Error(err))
			c.Next()
			return
		}

		c.Set(sessionKey, Session{UserID: claims.UserID, Role: claims.Role})
		c.Next()
	}
}

func SessionFrom(c *gin.Context) (Session, bool) {
	v, ok := c.Get(sessionKey)
	if !ok {
		return Session{}, false
	}
	s, ok := v.(Session)
	return s, ok
}

// Authenticated guards customer routes.
func Authenticated() gin.HandlerFunc {
	return func(c *gin.Context) {
		if _, ok := SessionFrom(c); !ok {
			c.Error(errutil.Unauthorized("not authenticated", nil))
			c.Abort()
			return
		}
		c.Next()
	}
}

// AdminOnly guards every admin route. The role comes from the session token,
// falling back to the account store. A failed lookup is reported as
// permission_check_failed, never as forbidden.
func AdminOnly(lookup RoleLookup, enforcer access.Enforcer) gin.HandlerFunc {
	return func(c *gin.Context) {
		session, ok := SessionFrom(c)
		if !ok {
			c.Error(errutil.Unauthorized("not authenticated", nil))
			c.Abort()
			return
		}

		role := session.Role
		if role == "" {
			resolved, err := lookup.RoleOf(c.Request.Context(), session.UserID)
			if err != nil {
				c.Error(errutil.PermissionCheckFailed("permission check failed", err))
				c.Abort()
				return
			}
			role = resolved
		}

		allowed, err := enforcer.Allow(role, c.Request.URL.Path, c.Request.Method)
		if err != nil {
			c.Error(errutil.PermissionCheckFailed("permission check failed", err))
			c.Abort()
			return
		}
		if !allowed {
			zap.L().Warn("admin access denied",
				zap.String("request_id", RequestID(c)),
				zap.String("user_id", session.UserID),
				zap.String("role", role),
				zap.String("path", c.Request.URL.Path),
			)
			c.Error(errutil.Forbidden("forbidden", nil))
			c.Abort()
			return
		}

		c.Set(sessionKey, Session{UserID: session.UserID, Role: role})
		c.Next()
	}
}
