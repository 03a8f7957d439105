package middleware

import (
	"context"
	"crypto/subtle"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/IBigIBruce/MTGA-Backend/cache"
	"github.com/IBigIBruce/MTGA-Backend/config"
	"github.com/gin-gonic/gin"
)

const (
	AccountIDKey   = "account_id"
	CharacterIDKey = "char_id"
	SessionPrefix  = "session:"
)

// BearerToken returns the token of an "Authorization: Bearer" header.
func BearerToken(c *gin.Context) string {
	header := c.GetHeader("Authorization")
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

// Authenticate validates a token and its cached session and returns the
// account id.
func Authenticate(ctx context.Context, c cache.Cache, secret, token string) (int64, bool) {
	claims, err := ParseToken(token, secret)
	if err != nil {
		return 0, false
	}
	cacheCtx, cancel := context.WithTimeout(ctx, 2*time.Second)
	defer cancel()
	exists, err := c.Exists(cacheCtx, SessionPrefix+token)
	if err != nil || !exists {
		return 0, false
	}
	return claims.AccountID, true
}

// Auth validates the Bearer JWT token and checks the session cache.
func Auth(sec config.SecurityConfig, c cache.Cache) gin.HandlerFunc {
	return func(ctx *gin.Context) {
		token := BearerToken(ctx)
		if token == "" {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing token"})
			return
		}
		accountID, ok := Authenticate(ctx.Request.Context(), c, sec.JWTSecret, token)
		if !ok {
			ctx.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid or expired session"})
			return
		}
		ctx.Set(AccountIDKey, accountID)
		ctx.Next()
	}
}

// GetAccountID retrieves the authenticated account ID from the Gin context.
func GetAccountID(c *gin.Context) int64 {
	if v, exists := c.Get(AccountIDKey); exists {
		return v.(int64)
	}
	return 0
}

// Authorizer reports whether a character belongs to an account.
type Authorizer interface {
	Authorize(ctx context.Context, charID, accountID int64) error
}

// CharacterAccess parses the :id route parameter and lets the request through
// only when the character belongs to the authenticated account. Unknown and
// foreign characters both answer 404.
func CharacterAccess(a Authorizer) gin.HandlerFunc {
	return func(c *gin.Context) {
		charID, err := strconv.ParseInt(c.Param("id"), 10, 64)
		if err != nil || charID <= 0 {
			c.AbortWithStatusJSON(http.StatusBadRequest, gin.H{"error": "invalid character id"})
			return
		}
		if err := a.Authorize(c.Request.Context(), charID, GetAccountID(c)); err != nil {
			c.AbortWithStatusJSON(http.StatusNotFound, gin.H{"error": "character not found"})
			return
		}
		c.Set(CharacterIDKey, charID)
		c.Next()
	}
}

// GetCharacterID retrieves the character id set by CharacterAccess.
func GetCharacterID(c *gin.Context) int64 {
	if v, exists := c.Get(CharacterIDKey); exists {
		return v.(int64)
	}
	return 0
}

// AdminAuth checks the X-Admin-Key header. With an empty key every admin
// route answers 503.
func AdminAuth(adminKey string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if adminKey == "" {
			c.AbortWithStatusJSON(http.StatusServiceUnavailable,
				gin.H{"error": "admin endpoints disabled: set server.admin_key in config"})
			return
		}
		key := c.GetHeader("X-Admin-Key")
		if subtle.ConstantTimeCompare([]byte(key), []byte(adminKey)) != 1 {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		c.Next()
	}
}
