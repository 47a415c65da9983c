package middleware

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/infra/security"
)

const (
	claimsKey      = "claims"
	accessTokenKey = "access_token"
)

// AccessTokenVerifier validates bearer tokens presented to protected routes.
type AccessTokenVerifier interface {
	Verify(ctx context.Context, token string) (*security.AccessClaims, error)
}

// ErrorResponse matches the handlers.ErrorResponse structure
type ErrorResponse struct {
	Error   string `json:"error"`
	Code    string `json:"code,omitempty"`
	TraceID string `json:"trace_id,omitempty"`
}

func newErrorResponse(c *gin.Context, errorMsg string, code domain.ErrorCode) ErrorResponse {
	return ErrorResponse{
		Error:   errorMsg,
		Code:    string(code),
		TraceID: GetTraceID(c),
	}
}

// RequireAccessToken validates the Authorization header and stores the token claims.
func RequireAccessToken(verifier AccessTokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing authorization header", domain.ErrorCodeInvalidAuthorizationFormat))
			return
		}

		scheme, token, ok := strings.Cut(authHeader, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "invalid authorization format: expected 'Bearer <token>'", domain.ErrorCodeInvalidAuthorizationFormat))
			return
		}

		token = strings.TrimSpace(token)
		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				newErrorResponse(c, "missing access token", domain.ErrorCodeInvalidToken))
			return
		}

		claims, err := verifier.Verify(c.Request.Context(), token)
		if err != nil {
			var authErr *domain.AuthorizationError
			switch {
			case errors.As(err, &authErr) && authErr.Code == domain.ErrorCodeExpiredToken:
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "access token expired", authErr.Code))
			case errors.As(err, &authErr):
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					newErrorResponse(c, "invalid access token", authErr.Code))
			default:
				c.AbortWithStatusJSON(http.StatusInternalServerError,
					newErrorResponse(c, "authentication failed", domain.ErrorCodeGenericAuthFailure))
			}
			return
		}

		c.Set(EntityIDKey, claims.Subject)
		c.Set(claimsKey, claims)
		c.Set(accessTokenKey, token)

		if reqCtx := GetRequestContext(c); reqCtx != nil {
			reqCtx.EntityID = claims.Subject
		}

		c.Next()
	}
}

// GetAuthenticatedEntityID retrieves the entity ID from context (helper for handlers)
func GetAuthenticatedEntityID(c *gin.Context) (string, bool) {
	entityID, exists := c.Get(EntityIDKey)
	if !exists {
		return "", false
	}

	if id, ok := entityID.(string); ok && id != "" {
		return id, true
	}

	return "", false
}

// GetAccessToken returns the raw bearer token accepted by RequireAccessToken.
func GetAccessToken(c *gin.Context) string {
	return c.GetString(accessTokenKey)
}

// GetAccessClaims returns the verified claims, or nil on unauthenticated routes.
func GetAccessClaims(c *gin.Context) *security.AccessClaims {
	if value, exists := c.Get(claimsKey); exists {
		if claims, ok := value.(*security.AccessClaims); ok {
			return claims
		}
	}
	return nil
}
