package handler

import (
	"context"
	"net/http"

	"github.com/riicode/rcbuilder/internal/metrics"
	"github.com/riicode/rcbuilder/internal/model"
)

// AuthServiceInterface はログインハンドラーが必要とするサービスインターフェース。
type AuthServiceInterface interface {
	Login(ctx context.Context, username, password string) (*model.LoginUser, error)
}

// AuthHandler はログインのHTTPハンドラー。
type AuthHandler struct {
	service AuthServiceInterface
	metrics metrics.MetricsCollector
}

// NewAuthHandler はAuthHandlerを生成する。
func NewAuthHandler(service AuthServiceInterface, mc metrics.MetricsCollector) *AuthHandler {
	return &AuthHandler{service: service, metrics: mc}
}

type loginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

type loginResponse struct {
	Success bool             `json:"success"`
	User    *model.LoginUser `json:"user"`
}

// Login はユーザー名とパスワードを検証し、ユーザー情報とトークンを返す。
// POST /api/auth/login
func (h *AuthHandler) Login(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	user, err := h.service.Login(r.Context(), req.Username, req.Password)
	if err != nil {
		if isCode(err, model.ErrCodeInvalidCredentials) {
			h.metrics.RecordLogin(false)
		}
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordLogin(true)

	writeJSON(w, http.StatusOK, loginResponse{Success: true, User: user})
}
