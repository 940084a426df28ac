package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/example/wc-matomo-tracking/internal/api/httpdto"
	"github.com/example/wc-matomo-tracking/internal/auth"
	"github.com/gin-gonic/gin"
)

// ClaimsKey is the gin context key holding *auth.Claims.
const ClaimsKey = "claims"

// ExtractToken extracts JWT token from cookie or Authorization header
func ExtractToken(c *gin.Context) string {
	// Try cookie first (for browser)
	if cookie, err := c.Cookie("access_token"); err == nil && cookie != "" {
		return cookie
	}
	// Fall back to Authorization header (for API clients)
	parts := strings.SplitN(c.GetHeader("Authorization"), " ", 2)
	if len(parts) == 2 && strings.EqualFold(parts[0], "Bearer") {
		return strings.TrimSpace(parts[1])
	}
	return ""
}

// AuthMiddleware validates JWT tokens and stores the claims on the context
func AuthMiddleware(jwtService *auth.JWTService) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := ExtractToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			return
		}

		claims, err := jwtService.ValidateToken(tokenString)
		if err != nil {
			code := "INVALID_TOKEN"
			if errors.Is(err, auth.ErrExpiredToken) {
				code = "TOKEN_EXPIRED"
			}
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.NewErrorResponse(err.Error(), code))
			return
		}

		c.Set(ClaimsKey, claims)
		c.Next()
	}
}

// RequireRole checks if the caller has one of the required roles
func RequireRole(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims, ok := GetClaims(c)
		if !ok {
			c.AbortWithStatusJSON(http.StatusUnauthorized, httpdto.NewErrorResponse("unauthorized", "UNAUTHORIZED"))
			return
		}

		for _, role := range roles {
			if claims.Role == role {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden, httpdto.NewErrorResponse("forbidden", "FORBIDDEN"))
	}
}

// GetClaims retrieves the caller's claims from the context
func GetClaims(c *gin.Context) (*auth.Claims, bool) {
	v, ok := c.Get(ClaimsKey)
	if !ok {
		return nil, false
	}
	claims, ok := v.(*auth.Claims)
	return claims, ok
}
