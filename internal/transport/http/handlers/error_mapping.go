package handlers

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/arklim/iam-exchange/internal/core/domain"
)

// ErrorCase maps a sentinel error to an HTTP status code and response message.
type ErrorCase struct {
	Err     error
	Status  int
	Message string
}

// exchangeErrorCases is ordered: lock rejections are authorization errors too.
var exchangeErrorCases = []ErrorCase{
	{Err: domain.ErrUnknownExchange, Status: http.StatusBadRequest, Message: "unsupported exchange"},
	{Err: domain.ErrAccountLocked, Status: http.StatusForbidden, Message: "account is locked"},
	{Err: domain.ErrAuthorization, Status: http.StatusUnauthorized, Message: "authentication failed"},
	{Err: domain.ErrIdempotentKeyRequired, Status: http.StatusBadRequest, Message: "X-IdempotentKey header is required"},
}

// RespondWithMappedError resolves the provided error against known cases or falls back to a generic response.
// Authorization failures carry their error code in the body.
func RespondWithMappedError(c *gin.Context, err error, cases []ErrorCase, fallbackStatus int, fallbackMessage string) {
	if err == nil {
		c.Status(http.StatusOK)
		return
	}

	for _, cs := range cases {
		if cs.Err == nil {
			continue
		}
		if errors.Is(err, cs.Err) {
			c.JSON(cs.Status, withErrorCode(NewErrorResponse(c, cs.Message), err))
			return
		}
	}

	_ = c.Error(err)
	resp := NewErrorResponse(c, fallbackMessage)
	resp.Code = string(domain.ErrorCodeGenericAuthFailure)
	c.JSON(fallbackStatus, resp)
}

func withErrorCode(resp ErrorResponse, err error) ErrorResponse {
	var authErr *domain.AuthorizationError
	switch {
	case errors.As(err, &authErr):
		resp.Code = string(authErr.Code)
	case errors.Is(err, domain.ErrUnknownExchange):
		resp.Code = string(domain.ErrorCodeUnknownExchange)
	case errors.Is(err, domain.ErrIdempotentKeyRequired):
		resp.Code = string(domain.ErrorCodeIdempotency)
	}
	return resp
}
