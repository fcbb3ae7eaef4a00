package handler

import (
	"context"
	"net/http"

	"github.com/riicode/rcbuilder/internal/account"
	"github.com/riicode/rcbuilder/internal/model"
)

// AccountServiceInterface は管理画面のユーザー操作に必要なサービスインターフェース。
type AccountServiceInterface interface {
	List(ctx context.Context) ([]model.UserAccount, error)
	Create(ctx context.Context, in account.CreateInput) (*model.UserAccount, error)
	Update(ctx context.Context, username string, in account.UpdateInput) (*model.UserAccount, error)
	Delete(ctx context.Context, username string) error
}

// CatalogServiceInterface は管理画面のモデル操作に必要なサービスインターフェース。
type CatalogServiceInterface interface {
	List(ctx context.Context) ([]model.ModelEntry, error)
	Add(ctx context.Context, name, id string) (*model.ModelEntry, error)
	Update(ctx context.Context, id, name, newID string) (*model.ModelEntry, error)
	Delete(ctx context.Context, id string) error
}

// AdminHandler はユーザーとモデルの管理用HTTPハンドラー。
// 認証は行わない。
type AdminHandler struct {
	accounts AccountServiceInterface
	catalog  CatalogServiceInterface
}

// NewAdminHandler はAdminHandlerを生成する。
func NewAdminHandler(accounts AccountServiceInterface, catalog CatalogServiceInterface) *AdminHandler {
	return &AdminHandler{accounts: accounts, catalog: catalog}
}

type usersResponse struct {
	Users []model.UserAccount `json:"users"`
}

type userRequest struct {
	Username string     `json:"username"`
	Password string     `json:"password"`
	Role     model.Role `json:"role"`
	Exp      string     `json:"exp"`
}

type modelsResponse struct {
	Models []model.ModelEntry `json:"models"`
}

type modelRequest struct {
	Name  string `json:"name"`
	ID    string `json:"id"`
	NewID string `json:"newId"`
}

// ListUsers は全ユーザーをパスワードを含めて返す。
// GET /api/admin/users
func (h *AdminHandler) ListUsers(w http.ResponseWriter, r *http.Request) {
	users, err := h.accounts.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, usersResponse{Users: users})
}

// CreateUser はユーザーを作成する。
// POST /api/admin/users
func (h *AdminHandler) CreateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	_, err := h.accounts.Create(r.Context(), account.CreateInput{
		Username: req.Username,
		Password: req.Password,
		Role:     req.Role,
		Exp:      req.Exp,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, "User created successfully")
}

// UpdateUser はパスワード・ロール・有効期限のうち指定されたものを更新する。
// PUT /api/admin/users/{username}
func (h *AdminHandler) UpdateUser(w http.ResponseWriter, r *http.Request) {
	var req userRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	username, ok := urlParam(w, r, "username")
	if !ok {
		return
	}

	_, err := h.accounts.Update(r.Context(), username, account.UpdateInput{
		Password: req.Password,
		Role:     req.Role,
		Exp:      req.Exp,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, "User updated successfully")
}

// DeleteUser はユーザーを削除する。セッションディレクトリは残る。
// DELETE /api/admin/users/{username}
func (h *AdminHandler) DeleteUser(w http.ResponseWriter, r *http.Request) {
	username, ok := urlParam(w, r, "username")
	if !ok {
		return
	}
	if err := h.accounts.Delete(r.Context(), username); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, "User deleted successfully")
}

// ListModels はモデル一覧を返す。
// GET /api/admin/models
func (h *AdminHandler) ListModels(w http.ResponseWriter, r *http.Request) {
	models, err := h.catalog.List(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, modelsResponse{Models: models})
}

// AddModel はモデルを追加する。
// POST /api/admin/models
func (h *AdminHandler) AddModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	if _, err := h.catalog.Add(r.Context(), req.Name, req.ID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, "Model added successfully")
}

// UpdateModel はモデル名またはIDを変更する。
// PUT /api/admin/models/{id}
func (h *AdminHandler) UpdateModel(w http.ResponseWriter, r *http.Request) {
	var req modelRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	id, ok := urlParam(w, r, "id")
	if !ok {
		return
	}
	if _, err := h.catalog.Update(r.Context(), id, req.Name, req.NewID); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, "Model updated successfully")
}

// DeleteModel はモデルを削除する。
// DELETE /api/admin/models/{id}
func (h *AdminHandler) DeleteModel(w http.ResponseWriter, r *http.Request) {
	id, ok := urlParam(w, r, "id")
	if !ok {
		return
	}
	if err := h.catalog.Delete(r.Context(), id); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, "Model deleted successfully")
}
