package web

import (
	"crypto/subtle"
	"github.com/RezaEskandarii/genfire/internal/constants"
	"github.com/gin-gonic/gin"
	"net/http"
	"strings"
)

const (
	authCookie      = "genfire_auth"
	claimsKey       = "claims"
	requestorKey    = "requestor_id"
	bearerPrefix    = "Bearer "
	internalMissing = "internal secret is not configured"
)

// requireOperator accepts a JWT from the Authorization header or the auth cookie.
func (s *Server) requireOperator() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := tokenFromRequest(c)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "authentication required"})
			return
		}
		claims, err := parseAuthToken(token, s.cfg.JWTSecret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired token"})
			return
		}
		c.Set(claimsKey, claims)
		c.Next()
	}
}

// requireRequestor takes the requestor id from a header set by the session layer in front of us.
func requireRequestor() gin.HandlerFunc {
	return func(c *gin.Context) {
		requestorID := strings.TrimSpace(c.GetHeader(constants.RequestorHeader))
		if requestorID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": constants.RequestorHeader + " header is required"})
			return
		}
		c.Set(requestorKey, requestorID)
		c.Next()
	}
}

// requireSecret guards the internal routes with a shared secret header.
func requireSecret(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, gin.H{"error": internalMissing})
			return
		}
		got := c.GetHeader(constants.TriggerSecretHeader)
		if subtle.ConstantTimeCompare([]byte(got), []byte(secret)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid secret"})
			return
		}
		c.Next()
	}
}

func tokenFromRequest(c *gin.Context) string {
	if header := c.GetHeader("Authorization"); strings.HasPrefix(header, bearerPrefix) {
		return strings.TrimPrefix(header, bearerPrefix)
	}
	if cookie, err := c.Cookie(authCookie); err == nil {
		return cookie
	}
	return ""
}
