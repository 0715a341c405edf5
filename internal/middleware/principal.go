package middleware

import (
	"github.com/gin-gonic/gin"

	"marketplace/internal/identity"
)

const principalKey = "principal"

// CurrentPrincipal returns the principal AuthGuard stored for this request.
func CurrentPrincipal(c *gin.Context) (identity.Principal, bool) {
	value, ok := c.Get(principalKey)
	if !ok {
		return identity.Principal{}, false
	}
	principal, ok := value.(identity.Principal)
	return principal, ok
}
