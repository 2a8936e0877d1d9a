package middleware

import (
	"crypto/sha256"
	"crypto/subtle"
	"log/slog"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/siteprobe/models"
)

// IdentityKey is the gin context key holding the authenticated API key.
const IdentityKey = "api_key"

// Auth accepts requests carrying one of apiKeys in X-API-Key or
// Authorization: Bearer. Keys are compared as SHA-256 digests in constant
// time. An empty key list disables the check.
func Auth(apiKeys []string) gin.HandlerFunc {
	var digests [][sha256.Size]byte
	for _, k := range apiKeys {
		if k != "" {
			digests = append(digests, sha256.Sum256([]byte(k)))
		}
	}
	if len(digests) == 0 {
		return func(c *gin.Context) { c.Next() }
	}
	logger := slog.With("component", "auth")

	return func(c *gin.Context) {
		key := apiKeyFrom(c)
		if key == "" {
			reject(c, "missing API key: provide X-API-Key header or Authorization: Bearer <key>")
			return
		}

		sum := sha256.Sum256([]byte(key))
		valid := 0
		for i := range digests {
			valid |= subtle.ConstantTimeCompare(sum[:], digests[i][:])
		}
		if valid != 1 {
			logger.Warn("rejected API key", "client_ip", c.ClientIP(), "path", c.FullPath())
			reject(c, "invalid API key")
			return
		}

		c.Set(IdentityKey, key)
		c.Next()
	}
}

func apiKeyFrom(c *gin.Context) string {
	if key := strings.TrimSpace(c.GetHeader("X-API-Key")); key != "" {
		return key
	}
	if auth := c.GetHeader("Authorization"); len(auth) > 7 && strings.EqualFold(auth[:7], "Bearer ") {
		return strings.TrimSpace(auth[7:])
	}
	return ""
}

func reject(c *gin.Context, msg string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, models.ErrorResponse{
		Success: false,
		Error: &models.ErrorDetail{
			Code:    models.ErrCodeUnauthorized,
			Message: msg,
		},
	})
}
