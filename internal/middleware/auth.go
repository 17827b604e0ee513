package middleware

import (
	"net/http"

	"ib-compliance/internal/access"
	"ib-compliance/internal/models"

	"github.com/gin-contrib/sessions"
	"github.com/gin-gonic/gin"
)

// ключи сессии, которые пишет handlers.Login
const (
	SessionUserID   = "user_id"
	SessionRole     = "role"
	SessionTenantID = "tenant_id"
)

const execContextKey = "exec_context"

func RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		if uid, ok := sess.Get(SessionUserID).(uint); !ok || uid == 0 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error": gin.H{"code": "unauthorized", "message": "login required"},
			})
			return
		}
		c.Next()
	}
}

// InjectExecContext собирает контекст выполнения из сессии. Дальше он
// передаётся в сервисы явным параметром.
func InjectExecContext(checker access.Checker) gin.HandlerFunc {
	return func(c *gin.Context) {
		sess := sessions.Default(c)
		uid, _ := sess.Get(SessionUserID).(uint)
		role, _ := sess.Get(SessionRole).(string)
		tenantID, _ := sess.Get(SessionTenantID).(uint)

		ec := access.NewExecContext(tenantID, uid, models.UserRole(role), RequestIDFrom(c), checker)
		c.Set(execContextKey, ec)
		c.Next()
	}
}

// ExecContext достаёт контекст, положенный InjectExecContext; nil, если его нет.
func ExecContext(c *gin.Context) *access.ExecContext {
	v, ok := c.Get(execContextKey)
	if !ok {
		return nil
	}
	ec, _ := v.(*access.ExecContext)
	return ec
}
