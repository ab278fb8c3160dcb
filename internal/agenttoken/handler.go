package agenttoken

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/OutfinityResearch/ploinky-sub006/internal/common/logger"
)

// Handler exposes the mint endpoint and the auth-gate middleware.
type Handler struct {
	store   *CredentialStore
	service *Service
	log     *logger.Logger
}

// NewHandler builds a Handler.
func NewHandler(store *CredentialStore, service *Service, log *logger.Logger) *Handler {
	if log == nil {
		log = logger.Default()
	}
	return &Handler{store: store, service: service, log: log.With(zap.String("component", "agenttoken"))}
}

type mintAgentTokenRequest struct {
	ClientID     string `json:"client_id" binding:"required"`
	ClientSecret string `json:"client_secret" binding:"required"`
}

// MintToken handles POST /auth/agent-token (spec §4.4 "Mint"). Failures
// are written directly as {"ok":false,"error":"..."} — the same literal
// shape cache.go's mintResponse.Error expects to unmarshal, so the
// client-side Cache can parse a real failure from this handler.
func (h *Handler) MintToken(c *gin.Context) {
	var req mintAgentTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"ok": false, "error": "invalid request body"})
		return
	}

	allowedTargets, ok := h.store.Verify(req.ClientID, req.ClientSecret)
	if !ok {
		c.JSON(http.StatusUnauthorized, gin.H{"ok": false, "error": "invalid client credentials"})
		return
	}

	accessToken, expiresIn, err := h.service.Mint(req.ClientID, allowedTargets)
	if err != nil {
		h.log.Error("failed to mint agent token", zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"ok": false, "error": "failed to mint token"})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"ok":           true,
		"access_token": accessToken,
		"expires_in":   expiresIn,
		"token_type":   "Bearer",
	})
}

// principalKey is the gin.Context key the RequireToken middleware
// stashes the verified TokenPrincipal under.
const principalKey = "agenttoken.principal"

// RequireToken verifies the Authorization: Bearer header and, on
// success, stores the TokenPrincipal in the gin context for downstream
// handlers (spec §4.4 "Verify").
func (h *Handler) RequireToken() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		token, ok := strings.CutPrefix(authHeader, "Bearer ")
		if !ok || token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		principal, err := h.service.Verify(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid_token"})
			return
		}

		c.Set(principalKey, principal)
		c.Next()
	}
}

// PrincipalFromContext retrieves the TokenPrincipal a prior RequireToken
// middleware attached to the request.
func PrincipalFromContext(c *gin.Context) (*TokenPrincipal, bool) {
	v, ok := c.Get(principalKey)
	if !ok {
		return nil, false
	}
	principal, ok := v.(*TokenPrincipal)
	return principal, ok
}
