package auth

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"gatepass/internal/logging"
)

const claimsKey = "claims"

// OperatorAuth enforces bearer JWT tokens signed with HS256 that have not
// been revoked.
func OperatorAuth(signer *Signer, revoked Revocations, log logging.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := signer.Parse(tokenStr)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		if revoked != nil {
			gone, err := revoked.Revoked(c.Request.Context(), claims.ID)
			if err != nil {
				log.Error(c.Request.Context(), "revocation lookup failed", "err", err)
				c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": "auth unavailable"})
				return
			}
			if gone {
				c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "token revoked"})
				return
			}
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// RequireRole rejects requests whose token lacks role. It must run after
// OperatorAuth.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := ClaimsFrom(c)
		if !ok || claims.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "insufficient role"})
			return
		}
		c.Next()
	}
}

// ClaimsFrom returns the claims OperatorAuth stored on the request.
func ClaimsFrom(c *gin.Context) (Claims, bool) {
	v, ok := c.Get(claimsKey)
	if !ok {
		return Claims{}, false
	}
	claims, ok := v.(Claims)
	return claims, ok
}
