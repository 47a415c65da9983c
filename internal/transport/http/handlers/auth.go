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

// AuthHandler exposes authentication and token exchange endpoints.
type AuthHandler struct {
	auth      *usecase.AuthenticationService
	exchanges *usecase.ExchangeService
	verifier  middleware.AccessTokenVerifier
	now       func() time.Time
}

// AuthHandlerOption configures optional AuthHandler dependencies.
type AuthHandlerOption func(*AuthHandler)

// WithExchangeService enables the generic exchange endpoint.
func WithExchangeService(exchanges *usecase.ExchangeService) AuthHandlerOption {
	return func(h *AuthHandler) {
		h.exchanges = exchanges
	}
}

// WithHandlerClock overrides the clock used to compute expires_in.
func WithHandlerClock(clock func() time.Time) AuthHandlerOption {
	return func(h *AuthHandler) {
		if clock != nil {
			h.now = clock
		}
	}
}

// NewAuthHandler constructs AuthHandler.
func NewAuthHandler(auth *usecase.AuthenticationService, verifier middleware.AccessTokenVerifier, opts ...AuthHandlerOption) *AuthHandler {
	handler := &AuthHandler{
		auth:     auth,
		verifier: verifier,
		now:      func() time.Time { return time.Now().UTC() },
	}

	for _, opt := range opts {
		if opt != nil {
			opt(handler)
		}
	}

	return handler
}

// RegisterRoutes binds authentication routes.
func (h *AuthHandler) RegisterRoutes(r *gin.RouterGroup) {
	r.POST("/authenticate", h.authenticate)
	r.POST("/refresh", h.refresh)
	r.POST("/logout", middleware.RequireAccessToken(h.verifier), h.logout)

	if h.exchanges != nil {
		r.POST("/exchange", h.exchange)
	}
}

func (h *AuthHandler) authenticate(c *gin.Context) {
	var req AuthenticateRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid authentication payload"))
			return
		}
	}

	authReq := newAuthRequest(c)
	authReq.Identifier = strings.TrimSpace(req.Identifier)
	authReq.Password = req.Password
	authReq.ExternalSessionID = strings.TrimSpace(req.ExternalSessionID)
	authReq.Restrictions = req.Restrictions.toDomain()

	if header := c.GetHeader("Authorization"); len(header) > 6 && strings.EqualFold(header[:6], "basic ") {
		authReq.Token = header
	}

	tokens, err := h.auth.Authenticate(c.Request.Context(), authReq, middleware.GetRequestContext(c).Exchange())
	if err != nil {
		RespondWithMappedError(c, err, exchangeErrorCases, http.StatusInternalServerError, "failed to authenticate")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(tokens, h.now()))
}

func (h *AuthHandler) refresh(c *gin.Context) {
	var req RefreshRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "refresh_token is required"))
		return
	}

	authReq := newAuthRequest(c)
	authReq.Token = strings.TrimSpace(req.RefreshToken)

	tokens, err := h.auth.Refresh(c.Request.Context(), authReq, middleware.GetRequestContext(c).Exchange())
	if err != nil {
		RespondWithMappedError(c, err, exchangeErrorCases, http.StatusInternalServerError, "failed to refresh token")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(tokens, h.now()))
}

func (h *AuthHandler) logout(c *gin.Context) {
	authReq := newAuthRequest(c)
	authReq.Token = middleware.GetAccessToken(c)

	if _, err := h.auth.Logout(c.Request.Context(), authReq); err != nil {
		RespondWithMappedError(c, err, exchangeErrorCases, http.StatusInternalServerError, "failed to logout")
		return
	}

	c.Status(http.StatusNoContent)
}

func (h *AuthHandler) exchange(c *gin.Context) {
	from := strings.TrimSpace(c.Query("from"))
	to := strings.TrimSpace(c.Query("to"))
	if from == "" || to == "" {
		c.JSON(http.StatusBadRequest, NewErrorResponse(c, "from and to query parameters are required"))
		return
	}

	var req ExchangeRequest
	if c.Request.ContentLength != 0 {
		if err := c.ShouldBindJSON(&req); err != nil {
			c.JSON(http.StatusBadRequest, NewErrorResponse(c, "invalid exchange payload"))
			return
		}
	}

	authReq := newAuthRequest(c)
	authReq.Identifier = strings.TrimSpace(req.Identifier)
	authReq.Password = req.Password
	authReq.Token = strings.TrimSpace(req.Token)

	ctx := c.Request.Context()
	reqCtx := middleware.GetRequestContext(c).Exchange()

	var (
		tokens domain.Tokens
		err    error
	)
	if restrictions := req.Restrictions.toDomain(); !restrictions.IsEmpty() {
		tokens, err = h.exchanges.ExchangeWithRestrictions(ctx, authReq, from, to, *restrictions, reqCtx)
	} else {
		tokens, err = h.exchanges.Exchange(ctx, authReq, from, to, reqCtx)
	}
	if err != nil {
		RespondWithMappedError(c, err, exchangeErrorCases, http.StatusInternalServerError, "exchange failed")
		return
	}

	c.JSON(http.StatusOK, newTokenResponse(tokens, h.now()))
}

// newAuthRequest copies the caller metadata gathered by EnrichContext.
func newAuthRequest(c *gin.Context) domain.AuthRequest {
	reqCtx := middleware.GetRequestContext(c)
	return domain.AuthRequest{
		ClientID:  reqCtx.ClientID,
		DeviceID:  reqCtx.DeviceID,
		SourceIP:  reqCtx.IP,
		UserAgent: reqCtx.UserAgent,
	}
}
