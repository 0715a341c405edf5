package middleware

import (
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace/internal/identity"
	"marketplace/internal/models"
)

type TokenVerifier interface {
	Verify(raw string) (identity.Principal, error)
}

// AuthGuard validates the bearer token and stores the caller's principal in
// the context. With allowedRoles set, any other role is rejected with 403.
func AuthGuard(verifier TokenVerifier, allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader("Authorization"))
		if raw == "" {
			log.Println("[AUTH] [ERROR] missing token")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}

		parts := strings.Split(raw, " ")
		if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
			log.Println("[AUTH] [ERROR] invalid token format")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}

		principal, err := verifier.Verify(parts[1])
		if err != nil {
			log.Println("[AUTH] [ERROR] token validation failed:", err)
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !principal.Role.Valid() {
			log.Printf("[AUTH] [ERROR] unknown role %q", principal.Role)
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		if !hasRole(principal, allowedRoles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// RequireRole narrows a route already behind AuthGuard to the given roles
// without verifying the token again.
func RequireRole(allowedRoles ...models.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		principal, ok := CurrentPrincipal(c)
		if !ok {
			log.Println("[AUTH] [ERROR] role check without an authenticated principal")
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		if !hasRole(principal, allowedRoles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden"})
			return
		}
		c.Next()
	}
}

func hasRole(principal identity.Principal, allowedRoles []models.Role) bool {
	if len(allowedRoles) == 0 {
		return true
	}
	for _, r := range allowedRoles {
		if principal.Role == r {
			return true
		}
	}
	return false
}

func AdminAuth(verifier TokenVerifier) gin.HandlerFunc {
	return AuthGuard(verifier, models.RoleAdmin)
}
