package httpapi

import (
	"errors"
	"net/http"
	"time"

	"appeals-platform/internal/audit"
	"appeals-platform/internal/auth"
	"appeals-platform/internal/problem"
	"appeals-platform/internal/rbac"

	"github.com/gin-gonic/gin"
)

type loginRequest struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type refreshRequest struct {
	RefreshToken string `json:"refreshToken"`
}

type tokenResponse struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken"`
	TokenType    string `json:"tokenType"`
	ExpiresIn    int64  `json:"expiresIn"`
}

// Login exchanges admin credentials for a token pair.
func (h *Handlers) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "request body must be JSON")
		return
	}

	p := problem.New(http.StatusBadRequest, problem.CodeValidationError, "one or more fields are invalid")
	if req.Email == "" {
		p.Errors = append(p.Errors, "email: is required")
	}
	if req.Password == "" {
		p.Errors = append(p.Errors, "password: is required")
	}
	if len(p.Errors) > 0 {
		problem.AbortProblem(c, p)
		return
	}

	u, err := h.Admins.FindByEmail(c.Request.Context(), req.Email)
	if errors.Is(err, rbac.ErrNotFound) {
		// Same response as a bad password; do not reveal which part failed.
		problem.Abort(c, http.StatusUnauthorized, problem.CodeAuthenticationRequired, "invalid credentials")
		return
	}
	if err != nil {
		h.failUpstream(c, err)
		return
	}

	if err := auth.VerifyPassword(u.PasswordHash, req.Password); err != nil {
		h.record(c, u, audit.Entry{Action: "auth.login", Status: audit.StatusDenied})
		problem.Abort(c, http.StatusUnauthorized, problem.CodeAuthenticationRequired, "invalid credentials")
		return
	}

	pair, err := h.Tokens.IssuePair(time.Now().UTC(), u.ID, u.Role, string(u.TenantType))
	if err != nil {
		h.failUpstream(c, err)
		return
	}

	h.record(c, u, audit.Entry{Action: "auth.login", Status: audit.StatusSuccess})
	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.Cfg.Auth.AccessTokenTTL.Seconds()),
	})
}

// Refresh issues a fresh token pair from a refresh token. The admin record is
// reloaded so role changes take effect on rotation.
func (h *Handlers) Refresh(c *gin.Context) {
	var req refreshRequest
	if err := c.ShouldBindJSON(&req); err != nil || req.RefreshToken == "" {
		problem.Abort(c, http.StatusBadRequest, problem.CodeValidationError, "refreshToken is required")
		return
	}

	claims, err := h.Tokens.Verify(req.RefreshToken, auth.TokenTypeRefresh, time.Now().UTC())
	if err != nil {
		problem.Abort(c, http.StatusUnauthorized, problem.CodeAuthenticationRequired, "invalid or expired refresh token")
		return
	}

	u, err := h.Admins.FindByID(c.Request.Context(), claims.UserID)
	if errors.Is(err, rbac.ErrNotFound) {
		problem.Abort(c, http.StatusUnauthorized, problem.CodeAuthenticationRequired, "account no longer exists")
		return
	}
	if err != nil {
		h.failUpstream(c, err)
		return
	}

	pair, err := h.Tokens.IssuePair(time.Now().UTC(), u.ID, u.Role, string(u.TenantType))
	if err != nil {
		h.failUpstream(c, err)
		return
	}

	c.JSON(http.StatusOK, tokenResponse{
		AccessToken:  pair.AccessToken,
		RefreshToken: pair.RefreshToken,
		TokenType:    "Bearer",
		ExpiresIn:    int64(h.Cfg.Auth.AccessTokenTTL.Seconds()),
	})
}
