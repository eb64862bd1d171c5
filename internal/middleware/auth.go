package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"

	"theralink-server/internal/utils"
)

const sharedPatientKey = "sharedPatientID"

// ShareTokenMiddleware authorises read-only access through a patient share
// link. The token is taken from the :token path parameter, or from a Bearer
// Authorization header when the route has no such parameter.
func ShareTokenMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := c.Param("token")
		if tokenString == "" {
			authHeader := c.GetHeader("Authorization")
			parts := strings.Split(authHeader, " ")
			if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
				utils.Unauthorized(c, "Share token required")
				c.Abort()
				return
			}
			tokenString = parts[1]
		}

		claims, err := utils.ValidateShareToken(tokenString, secret)
		if err != nil {
			utils.Unauthorized(c, "Invalid share token")
			c.Abort()
			return
		}

		c.Set(sharedPatientKey, claims.PatientID)
		c.Next()
	}
}

// GetSharedPatientID returns the patient a share token was issued for.
func GetSharedPatientID(c *gin.Context) (string, bool) {
	patientID, exists := c.Get(sharedPatientKey)
	if !exists {
		return "", false
	}
	idStr, ok := patientID.(string)
	return idStr, ok
}
