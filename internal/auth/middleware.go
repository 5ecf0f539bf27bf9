package auth

import (
	"errors"
	"log"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/Dilip0552/PresenSync/internal/users"
)

const (
	// ContextClaims is the gin context key holding the verified token claims.
	ContextClaims = "claims"
	// ContextProfile is the gin context key holding the caller's profile.
	ContextProfile = "profile"
)

// Middleware enforces bearer JWT tokens and resolves the caller's profile.
// Unauthenticated callers never reach the handlers behind it.
func Middleware(signingKey, issuer string, profiles *users.Repository) gin.HandlerFunc {
	return func(c *gin.Context) {
		authz := c.GetHeader("Authorization")
		if authz == "" || !strings.HasPrefix(strings.ToLower(authz), "bearer ") {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credential", "detail": "missing bearer token"})
			return
		}
		tokenStr := strings.TrimSpace(authz[len("bearer "):])
		claims, err := Verify(tokenStr, signingKey, issuer)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_credential", "detail": "invalid token"})
			return
		}

		profile, err := profiles.Get(c.Request.Context(), claims.UID)
		if errors.Is(err, users.ErrProfileNotFound) {
			// Authenticated users always have a profile; treat the absence as a
			// credential problem rather than admitting a profileless caller.
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "profile_not_found", "detail": "user profile not found"})
			return
		}
		if err != nil {
			log.Printf("profile lookup for %s failed: %v", claims.UID, err)
			c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{"error": "storage_error", "detail": "could not load caller profile"})
			return
		}

		c.Set(ContextClaims, claims)
		c.Set(ContextProfile, profile)
		c.Next()
	}
}

// RequireRole aborts with 403 unless the caller's profile carries the role.
func RequireRole(role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		profile, ok := CallerProfile(c)
		if !ok || profile.Role != role {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{"error": "forbidden", "detail": "not authorized to perform this action"})
			return
		}
		c.Next()
	}
}

// CallerProfile returns the profile stored by Middleware.
func CallerProfile(c *gin.Context) (users.Profile, bool) {
	v, ok := c.Get(ContextProfile)
	if !ok {
		return users.Profile{}, false
	}
	profile, ok := v.(users.Profile)
	return profile, ok
}
