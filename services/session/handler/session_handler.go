package handler

import (
	"context"
	"net/http"

	"auction-house/internal/account"
	"auction-house/internal/auctionerrors"
	"auction-house/internal/auth"
	model "auction-house/internal/models"
	"auction-house/services/helpers"
	"auction-house/utils"

	"github.com/gin-gonic/gin"
)

type AccountServiceInterface interface {
	Signup(ctx context.Context, in account.SignupInput) (model.User, error)
	Login(ctx context.Context, email, password string) (model.User, auth.TokenPair, error)
	Refresh(ctx context.Context, refreshToken string) (auth.TokenPair, error)
	Logout(ctx context.Context, sessionID string) error
	Me(ctx context.Context, userID string) (model.User, error)
	ChangePassword(ctx context.Context, userID, current, next, confirm string) error
}

type SessionHandler struct {
	service AccountServiceInterface
	cookies auth.Cookies
}

func NewSessionHandler(service AccountServiceInterface, cookies auth.Cookies) *SessionHandler {
	return &SessionHandler{service: service, cookies: cookies}
}

// SignupHandler handles POST /signup
func (h *SessionHandler) SignupHandler(c *gin.Context) {
	var req helpers.SignupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "SignupHandler", err)
		return
	}

	user, err := h.service.Signup(c.Request.Context(), account.SignupInput{
		Username:        req.Username,
		Email:           req.Email,
		Password:        req.Password,
		ConfirmPassword: req.ConfirmPassword,
		FullName:        req.FullName,
		Location:        req.Location,
	})
	if err != nil {
		helpers.RespondError(c, "SignupHandler", err, map[string]any{"username": req.Username})
		return
	}

	utils.JSONResponse(c, http.StatusCreated, helpers.NewUserResponse(user), "account created successfully")
	helpers.LogSuccess("SignupHandler", "account created", map[string]any{"user_id": user.UserID})
}

// LoginHandler handles POST /login
func (h *SessionHandler) LoginHandler(c *gin.Context) {
	var req helpers.LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "LoginHandler", err)
		return
	}

	user, pair, err := h.service.Login(c.Request.Context(), req.Email, req.Password)
	if err != nil {
		helpers.RespondError(c, "LoginHandler", err, nil)
		return
	}

	h.cookies.Set(c, pair)
	utils.JSONResponse(c, http.StatusOK, helpers.NewUserResponse(user), "logged in successfully")
	helpers.LogSuccess("LoginHandler", "logged in", map[string]any{"user_id": user.UserID})
}

// RefreshHandler handles POST /refresh
func (h *SessionHandler) RefreshHandler(c *gin.Context) {
	_, refresh := auth.Read(c)
	if refresh == "" {
		utils.JSONError(c, http.StatusUnauthorized, auctionerrors.KindUnauthorized.String(), "refresh token required")
		return
	}

	pair, err := h.service.Refresh(c.Request.Context(), refresh)
	if err != nil {
		h.cookies.Clear(c)
		status, _, _ := helpers.MapErrorToHTTP(err)
		if status == http.StatusInternalServerError {
			helpers.RespondError(c, "RefreshHandler", err, nil)
			return
		}
		utils.JSONError(c, http.StatusUnauthorized, auctionerrors.KindAuthExpired.String(), "authentication expired")
		utils.Warn("RefreshHandler: refresh rejected", map[string]any{"error": err.Error()})
		return
	}

	h.cookies.Set(c, pair)
	utils.JSONResponse(c, http.StatusOK, gin.H{"access_expires_at": pair.AccessExpiresAt}, "session refreshed")
}

// LogoutHandler handles POST /logout
func (h *SessionHandler) LogoutHandler(c *gin.Context) {
	sessionID := c.GetString(utils.ContextSessionIDKey)
	userID, _ := utils.UserID(c)

	if err := h.service.Logout(c.Request.Context(), sessionID); err != nil && auctionerrors.KindOf(err) != auctionerrors.KindNotFound {
		helpers.RespondError(c, "LogoutHandler", err, map[string]any{"user_id": userID})
		return
	}

	h.cookies.Clear(c)
	utils.JSONResponse(c, http.StatusOK, nil, "logged out successfully")
	helpers.LogSuccess("LogoutHandler", "logged out", map[string]any{"user_id": userID})
}

// MeHandler handles GET /me
func (h *SessionHandler) MeHandler(c *gin.Context) {
	userID, _ := utils.UserID(c)

	user, err := h.service.Me(c.Request.Context(), userID)
	if err != nil {
		helpers.RespondError(c, "MeHandler", err, map[string]any{"user_id": userID})
		return
	}
	utils.JSONResponse(c, http.StatusOK, helpers.NewUserResponse(user), "user retrieved successfully")
}

// ChangePasswordHandler handles PUT /change-password
func (h *SessionHandler) ChangePasswordHandler(c *gin.Context) {
	var req helpers.ChangePasswordRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		helpers.HandleBindError(c, "ChangePasswordHandler", err)
		return
	}
	userID, _ := utils.UserID(c)

	if err := h.service.ChangePassword(c.Request.Context(), userID, req.CurrentPassword, req.NewPassword, req.ConfirmPassword); err != nil {
		helpers.RespondError(c, "ChangePasswordHandler", err, map[string]any{"user_id": userID})
		return
	}

	utils.JSONResponse(c, http.StatusOK, nil, "password changed successfully")
	helpers.LogSuccess("ChangePasswordHandler", "password changed", map[string]any{"user_id": userID})
}
