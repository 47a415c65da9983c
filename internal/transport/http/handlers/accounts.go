package handlers

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/arklim/iam-exchange/internal/core/domain"
	"github.com/arklim/iam-exchange/internal/transport/http/middleware"
	"github.com/arklim/iam-exchange/internal/usecase"
)

// IdempotentKeyHeader carries the client-chosen key guarding creation requests.
const IdempotentKeyHeader = "X-IdempotentKey"

var accountErrorCases = []ErrorCase{
	{Err: usecase.ErrEmailRequired, Status: http.StatusBadRequest, Message: "email is required"},
	{Err: usecase.ErrPasswordRequired, Status: http.StatusBadRequest, Message: "password is required"},
	{Err: usecase.ErrWeakPassword, Status: http.StatusBadRequest, Message: "password does not meet requirements"},
	{Err: domain.ErrIdempotentKeyRequired, Status: http.StatusBadRequest, Message: IdempotentKeyHeader + " header is required"},
	{Err: usecase.ErrIdentifierTaken, Status: http.StatusConflict, Message: "email already registered"},
	{Err: usecase.ErrAccountNotFound, Status: http.StatusNotFound, Message: "account not found"},
}

// AccountHandler exposes account provisioning endpoints.
type AccountHandler struct {
	accounts *usecase.AccountService
	verifier middleware.AccessTokenVerifier
}

// NewAccountHandler constructs AccountHandler.
func NewAccountHandler(accounts *usecase.AccountService, verifier middleware.AccessTokenVerifier) *AccountHandler {
	return &AccountHandler{accounts: accounts, verifier: verifier}
}

// RegisterRoutes binds account routes.
func (h *AccountHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("", h.create)
	r.GET("/me", middleware.RequireAccessToken(h.verifier), h.me)
}

func (h *AccountHandler) create(c *gin.Context) {
	var req AccountCreateRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid account payload"))
		return
	}

	key := strings.TrimSpace(c.GetHeader(IdempotentKeyHeader))
	account, err := h.accounts.CreateAccount(c.Request.Context(), key,
		domain.Account{Email: req.Email, Domain: req.Domain}, req.Password)
	if err != nil {
		var conflict *domain.IdempotencyConflictError
		if errors.As(err, &conflict) {
			h.respondConflict(c, conflict)
			return
		}
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to create account")
		return
	}

	c.JSON(http.StatusCreated, newAccountResponse(account))
}

// respondConflict resolves a replayed key to the entity the first request created.
func (h *AccountHandler) respondConflict(c *gin.Context, conflict *domain.IdempotencyConflictError) {
	resp := IdempotencyConflictResponse{
		Error:      "request with this idempotent key was already processed",
		Code:       string(domain.ErrorCodeIdempotency),
		EntityType: string(conflict.Record.EntityType),
		EntityID:   conflict.Record.EntityID,
		TraceID:    middleware.GetTraceID(c),
	}

	if conflict.Record.EntityType == domain.EntityTypeAccount {
		if account, err := h.accounts.GetByID(c.Request.Context(), conflict.Record.EntityID); err == nil {
			payload := newAccountResponse(account)
			resp.Account = &payload
		} else {
			_ = c.Error(err)
		}
	}

	c.JSON(http.StatusConflict, resp)
}

func (h *AccountHandler) me(c *gin.Context) {
	entityID, ok := middleware.GetAuthenticatedEntityID(c)
	if !ok {
		c.JSON(http.StatusUnauthorized, NewErrorResponse(c, "authentication required"))
		return
	}

	account, err := h.accounts.GetByID(c.Request.Context(), entityID)
	if err != nil {
		RespondWithMappedError(c, err, accountErrorCases, http.StatusInternalServerError, "failed to load account")
		return
	}

	c.JSON(http.StatusOK, newAccountResponse(account))
}
