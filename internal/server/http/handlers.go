package http

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/dmitrijs2005/greenmission/internal/common"
	"github.com/dmitrijs2005/greenmission/internal/server/auth"
	"github.com/dmitrijs2005/greenmission/internal/server/models"
	"github.com/dmitrijs2005/greenmission/internal/server/services"
)

// ProfileService is what the handlers need from services.ProfileService.
type ProfileService interface {
	Login(ctx context.Context, idToken string) (*services.LoginResult, error)
	RegisterNGO(ctx context.Context, name, email, password string) (*services.LoginResult, error)
	LoginNGO(ctx context.Context, email, password string) (*services.LoginResult, error)
	Authenticate(ctx context.Context, token string) (*auth.Claims, error)
	Me(ctx context.Context, userID int64) (*models.User, error)
	Patch(ctx context.Context, userID int64, upd models.ProfileUpdate) (*models.User, error)
	Logout(ctx context.Context, claims *auth.Claims) error
	AvatarUpload(ctx context.Context, userID int64, contentType string) (*services.AvatarUpload, error)
}

type Handler struct {
	svc ProfileService
}

func NewHandler(svc ProfileService) *Handler {
	return &Handler{svc: svc}
}

type loginRequest struct {
	IDToken string `json:"id_token" binding:"required"`
}

type loginResponse struct {
	Token     string       `json:"token"`
	TokenType string       `json:"token_type"`
	ExpiresAt time.Time    `json:"expires_at"`
	User      *models.User `json:"user"`
}

// Login trades a provider ID token for a bearer credential.
func (h *Handler) Login(c *gin.Context) {
	var req loginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "id_token is required")
		return
	}

	res, err := h.svc.Login(c.Request.Context(), req.IDToken)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, newLoginResponse(res))
}

func newLoginResponse(res *services.LoginResult) loginResponse {
	return loginResponse{
		Token:     res.Token,
		TokenType: common.TokenType,
		ExpiresAt: res.ExpiresAt,
		User:      res.User,
	}
}

type ngoRegisterRequest struct {
	Name     string `json:"name" binding:"required"`
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type ngoLoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// RegisterNGO creates an NGO account and signs it in.
func (h *Handler) RegisterNGO(c *gin.Context) {
	var req ngoRegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "name, email and password are required")
		return
	}

	res, err := h.svc.RegisterNGO(c.Request.Context(), req.Name, req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusCreated, newLoginResponse(res))
}

func (h *Handler) LoginNGO(c *gin.Context) {
	var req ngoLoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "email and password are required")
		return
	}

	res, err := h.svc.LoginNGO(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, newLoginResponse(res))
}

func (h *Handler) Me(c *gin.Context) {
	u, err := h.svc.Me(c.Request.Context(), claimsFrom(c).UserID)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

// patchRequest tells an absent wallet_address apart from an explicit null,
// which clears the wallet.
type patchRequest struct {
	upd models.ProfileUpdate
}

func (p *patchRequest) UnmarshalJSON(b []byte) error {
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(b, &raw); err != nil {
		return err
	}
	var err error
	if p.upd.Name, err = optionalString(raw["name"]); err != nil {
		return err
	}
	if p.upd.PhotoURL, err = optionalString(raw["photo_url"]); err != nil {
		return err
	}
	if v, ok := raw["wallet_address"]; ok {
		p.upd.SetWallet = true
		if p.upd.WalletAddress, err = optionalString(v); err != nil {
			return err
		}
	}
	return nil
}

func optionalString(v json.RawMessage) (*string, error) {
	if v == nil || bytes.Equal(v, []byte("null")) {
		return nil, nil
	}
	var s string
	if err := json.Unmarshal(v, &s); err != nil {
		return nil, err
	}
	return &s, nil
}

// PatchMe partially updates the profile. {"wallet_address": null} unlinks
// the wallet.
func (h *Handler) PatchMe(c *gin.Context) {
	var req patchRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "invalid JSON body")
		return
	}

	u, err := h.svc.Patch(c.Request.Context(), claimsFrom(c).UserID, req.upd)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, u)
}

func (h *Handler) Logout(c *gin.Context) {
	if err := h.svc.Logout(c.Request.Context(), claimsFrom(c)); err != nil {
		failErr(c, err)
		return
	}
	c.JSON(http.StatusOK, envelope{Success: true, Message: "logged out"})
}

type avatarRequest struct {
	ContentType string `json:"content_type" binding:"required"`
}

// Avatar hands out a presigned upload URL for a new profile photo.
func (h *Handler) Avatar(c *gin.Context) {
	var req avatarRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		fail(c, http.StatusBadRequest, "content_type is required")
		return
	}

	up, err := h.svc.AvatarUpload(c.Request.Context(), claimsFrom(c).UserID, req.ContentType)
	if err != nil {
		failErr(c, err)
		return
	}
	respond(c, http.StatusOK, up)
}
