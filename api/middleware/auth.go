package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/auth"
	"github.com/invepin-international-LLC/invepin-command-center-sub001/internal/service"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// Device credential headers
const (
	APIKeyHeader    = "X-Device-API-Key"
	SignatureHeader = "X-Device-Signature"
)

// Context keys
const (
	OperatorKey = "operator"
	DeviceIDKey = "device_id"
)

// TokenValidator validates operator bearer tokens
type TokenValidator interface {
	ValidateToken(token string) (*auth.Claims, error)
}

// OperatorAuth validates the operator JWT from the Authorization header
func OperatorAuth(tokens TokenValidator, log *logrus.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			abortUnauthorized(c, "Authorization header required")
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || parts[0] != "Bearer" {
			abortUnauthorized(c, "Invalid Authorization header format. Expected: 'Bearer {token}'")
			return
		}

		claims, err := tokens.ValidateToken(parts[1])
		if err != nil {
			log.WithError(err).WithField("request_id", GetRequestID(c)).Warn("Invalid operator token")
			abortUnauthorized(c, "Invalid or expired token")
			return
		}

		c.Set(OperatorKey, service.Operator{
			UserID:         claims.UserID,
			OrganizationID: claims.OrganizationID,
		})
		c.Next()
	}
}

// RequireDeviceSignature rejects requests without a device signature header.
// Verifying the signature belongs to the device identity service.
func RequireDeviceSignature() gin.HandlerFunc {
	return func(c *gin.Context) {
		if strings.TrimSpace(c.GetHeader(SignatureHeader)) == "" {
			abortUnauthorized(c, "Device signature required")
			return
		}
		c.Next()
	}
}

// GetOperator retrieves the authenticated operator from the context
func GetOperator(c *gin.Context) (service.Operator, error) {
	value, exists := c.Get(OperatorKey)
	if !exists {
		return service.Operator{}, errors.New("operator not found in context")
	}

	operator, ok := value.(service.Operator)
	if !ok {
		return service.Operator{}, errors.New("operator in context has incorrect type")
	}
	return operator, nil
}

func abortUnauthorized(c *gin.Context, message string) {
	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   message,
		"code":    service.KindAuthentication,
	})
}
