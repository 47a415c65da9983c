package handlers

import (
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/transport/http/middleware"
	"github.com/arklim/iam-exchange/internal/usecase"
)

// ExchangeAttemptHandler lets an authenticated entity read its own exchange history.
type ExchangeAttemptHandler struct {
	attempts *usecase.ExchangeAttemptService
	verifier middleware.AccessTokenVerifier
}

// NewExchangeAttemptHandler constructs ExchangeAttemptHandler.
func NewExchangeAttemptHandler(attempts *usecase.ExchangeAttemptService, verifier middleware.AccessTokenVerifier) *ExchangeAttemptHandler {
	return &ExchangeAttemptHandler{attempts: attempts, verifier: verifier}
}

// RegisterRoutes binds exchange attempt routes.
func (h *ExchangeAttemptHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.GET("", middleware.RequireAccessToken(h.verifier), h.list)
}

// list accepts optional "from" (RFC 3339) and "exchange" query parameters.
// "exchange" only narrows the result together with "from".
func (h *ExchangeAttemptHandler) list(c *gin.Context) {
	entityID, ok := middleware.GetAuthenticatedEntityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	query := domain.ExchangeAttemptsQuery{
		EntityID:     entityID,
		FromExchange: strings.TrimSpace(c.Query("exchange")),
	}
	if raw := strings.TrimSpace(c.Query("from")); raw != "" {
		from, err := time.Parse(time.RFC3339, raw)
		if err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "from must be an RFC 3339 timestamp"))
			return
		}
		from = from.UTC()
		query.FromTimestamp = &from
	}

	attempts, err := h.attempts.Find(c.Request.Context(), query)
	if err != nil {
		RespondWithMappedError(c, err, nil, http.StatusInternalServerError, "failed to list exchange attempts")
		return
	}

	resp := ExchangeAttemptListResponse{
		EntityID: entityID,
		Attempts: make([]ExchangeAttemptPayload, 0, len(attempts)),
	}
	for _, attempt := range attempts {
		resp.Attempts = append(resp.Attempts, newExchangeAttemptPayload(attempt))
	}

	c.JSON(http.StatusOK, resp)
}
