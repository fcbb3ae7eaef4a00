package handler

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/riicode/rcbuilder/internal/metrics"
	"github.com/riicode/rcbuilder/internal/model"
)

// --- モック ---

type mockAuthService struct {
	loginFn func(ctx context.Context, username, password string) (*model.LoginUser, error)
}

func (m *mockAuthService) Login(ctx context.Context, username, password string) (*model.LoginUser, error) {
	return m.loginFn(ctx, username, password)
}

// loginCounter はログイン結果を記録するメトリクスモック。
type loginCounter struct {
	metrics.NopCollector
	success int
	failure int
}

func (c *loginCounter) RecordLogin(success bool) {
	if success {
		c.success++
	} else {
		c.failure++
	}
}

// --- POST /api/auth/login テスト ---

func TestAuthHandler_Login_Success(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.LoginUser, error) {
			if username != "admin" || password != "admin123" {
				t.Errorf("credentials = %q/%q, want admin/admin123", username, password)
			}
			return &model.LoginUser{Username: "admin", Role: model.RoleAdmin, Expired: "Lifetime", Token: "tok"}, nil
		},
	}
	mc := &loginCounter{}
	h := NewAuthHandler(svc, mc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"admin123"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want %d", w.Code, http.StatusOK)
	}
	resp := decodeBody[loginResponse](t, w)
	if !resp.Success {
		t.Error("success should be true")
	}
	if resp.User == nil || resp.User.Role != model.RoleAdmin {
		t.Errorf("user = %+v, want role admin", resp.User)
	}
	if resp.User.Token != "tok" {
		t.Errorf("token = %q, want tok", resp.User.Token)
	}
	if mc.success != 1 || mc.failure != 0 {
		t.Errorf("login metrics = %d/%d, want 1/0", mc.success, mc.failure)
	}
}

func TestAuthHandler_Login_InvalidCredentials_ReturnsUnauthorized(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.LoginUser, error) {
			return nil, model.NewInvalidCredentialsError()
		},
	}
	mc := &loginCounter{}
	h := NewAuthHandler(svc, mc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"admin","password":"wrong"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusUnauthorized {
		t.Errorf("status = %d, want %d", w.Code, http.StatusUnauthorized)
	}
	errResp := parseAPIErrorResponse(t, w)
	if errResp["error"] != "Invalid credentials" {
		t.Errorf("error = %q, want %q", errResp["error"], "Invalid credentials")
	}
	if mc.failure != 1 {
		t.Errorf("failure count = %d, want 1", mc.failure)
	}
}

func TestAuthHandler_Login_MissingFields_ReturnsBadRequest(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.LoginUser, error) {
			return nil, model.NewValidationError("Username and password are required")
		},
	}
	mc := &loginCounter{}
	h := NewAuthHandler(svc, mc)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":""}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
	if mc.failure != 0 {
		t.Errorf("validation errors should not count as login failure, got %d", mc.failure)
	}
}

func TestAuthHandler_Login_InvalidJSON_ReturnsBadRequest(t *testing.T) {
	h := NewAuthHandler(&mockAuthService{}, metrics.NopCollector{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{invalid`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusBadRequest {
		t.Errorf("status = %d, want %d", w.Code, http.StatusBadRequest)
	}
}

func TestAuthHandler_Login_StoreFailure_ReturnsInternalServerError(t *testing.T) {
	svc := &mockAuthService{
		loginFn: func(ctx context.Context, username, password string) (*model.LoginUser, error) {
			return nil, errors.New("disk on fire")
		},
	}
	h := NewAuthHandler(svc, metrics.NopCollector{})

	req := httptest.NewRequest(http.MethodPost, "/api/auth/login", strings.NewReader(`{"username":"a","password":"b"}`))
	w := httptest.NewRecorder()
	h.Login(w, req)

	if w.Code != http.StatusInternalServerError {
		t.Errorf("status = %d, want %d", w.Code, http.StatusInternalServerError)
	}
}
