package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/Kareem-Elnokali/system-creator/internal/policy"
)

const CallerKey = "caller"

// AuthRequired validates the bearer token issued by the external identity
// provider and places the caller identity in the request context. The
// superuser claim is the only privilege bit the panel consumes.
func AuthRequired(jwtSecret, superuserClaim string) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Authorization header required"})
			c.Abort()
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == authHeader {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Bearer token required"})
			c.Abort()
			return
		}

		claims := jwt.MapClaims{}
		token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
			return []byte(jwtSecret), nil
		}, jwt.WithValidMethods([]string{"HS256"}))

		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid token"})
			c.Abort()
			return
		}

		sub, _ := claims["sub"].(string)
		callerID, err := uuid.Parse(sub)
		if err != nil {
			c.JSON(http.StatusUnauthorized, gin.H{"error": "Invalid subject claim"})
			c.Abort()
			return
		}

		isSuperuser, _ := claims[superuserClaim].(bool)

		c.Set(CallerKey, policy.Caller{
			ID:          callerID,
			IsSuperuser: isSuperuser,
		})
		c.Next()
	}
}

// RequireSuperuser guards admin-only routes.
func RequireSuperuser() gin.HandlerFunc {
	return func(c *gin.Context) {
		caller, ok := CallerFrom(c)
		if !ok || !caller.IsSuperuser {
			c.JSON(http.StatusForbidden, gin.H{
				"error": "only system administrators can access this resource",
				"code":  "PERMISSION_DENIED",
			})
			c.Abort()
			return
		}
		c.Next()
	}
}

func CallerFrom(c *gin.Context) (policy.Caller, bool) {
	v, exists := c.Get(CallerKey)
	if !exists {
		return policy.Caller{}, false
	}
	caller, ok := v.(policy.Caller)
	return caller, ok
}

func CORS() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Writer.Header().Set("Access-Control-Allow-Origin", "*")
		c.Writer.Header().Set("Access-Control-Allow-Methods", "GET, POST, PUT, DELETE, OPTIONS")
		c.Writer.Header().Set("Access-Control-Allow-Headers", "Origin, Content-Type, Authorization")

		if c.Request.Method == "OPTIONS" {
			c.AbortWithStatus(204)
			return
		}

		c.Next()
	}
}
