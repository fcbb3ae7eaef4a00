// Package handler はHTTPハンドラーを提供する。
package handler

import (
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/url"

	"github.com/go-chi/chi/v5"
	"github.com/riicode/rcbuilder/internal/middleware"
	"github.com/riicode/rcbuilder/internal/model"
	"github.com/riicode/rcbuilder/internal/store"
)

// successResponse は状態変更系エンドポイントの共通レスポンス。
type successResponse struct {
	Success bool   `json:"success"`
	Message string `json:"message"`
}

// writeJSON はステータスコード200以外も含めてJSONレスポンスを書き込む。
func writeJSON(w http.ResponseWriter, statusCode int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("failed to encode response", slog.String("error", err.Error()))
	}
}

// writeSuccess は {success:true, message} を200で書き込む。
func writeSuccess(w http.ResponseWriter, message string) {
	writeJSON(w, http.StatusOK, successResponse{Success: true, Message: message})
}

// decodeJSON はリクエストボディをvにデコードする。
// 失敗した場合はエラーレスポンスを書き込みfalseを返す。
func decodeJSON(w http.ResponseWriter, r *http.Request, v any) bool {
	err := json.NewDecoder(r.Body).Decode(v)
	if err == nil {
		return true
	}

	var maxErr *http.MaxBytesError
	switch {
	case errors.As(err, &maxErr):
		middleware.WriteErrorResponse(w, http.StatusRequestEntityTooLarge,
			model.NewValidationError("Request body too large"))
	case errors.Is(err, io.EOF):
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Request body is required"))
	default:
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Invalid JSON body"))
	}
	return false
}

// handleServiceError はサービス層から返されたエラーを適切なHTTPステータスコードに変換する。
func handleServiceError(w http.ResponseWriter, err error) {
	var apiErr *model.APIError
	if errors.As(err, &apiErr) {
		middleware.WriteErrorResponse(w, mapAPIErrorToHTTPStatus(apiErr), apiErr)
		return
	}

	var storeErr *store.StoreError
	if errors.As(err, &storeErr) {
		slog.Error("store error",
			slog.String("op", storeErr.Op),
			slog.String("path", storeErr.Path),
			slog.String("error", err.Error()),
		)
		middleware.WriteErrorResponse(w, http.StatusInternalServerError, model.NewStoreFailedError())
		return
	}

	// APIError以外のエラーは内部サーバーエラーとして扱う
	slog.Error("internal server error", slog.String("error", err.Error()))
	middleware.WriteInternalServerError(w)
}

// urlParam はパーセントエンコードを解除したURLパラメータを返す。
// chiはエンコード済みのパスでルーティングするため、%2F などはここで復元する。
// 不正なエスケープの場合は400を書き込みfalseを返す。
func urlParam(w http.ResponseWriter, r *http.Request, key string) (string, bool) {
	v, err := url.PathUnescape(chi.URLParam(r, key))
	if err != nil {
		middleware.WriteErrorResponse(w, http.StatusBadRequest,
			model.NewValidationError("Invalid path parameter: "+key))
		return "", false
	}
	return v, true
}

// mapAPIErrorToHTTPStatus はAPIErrorコードからHTTPステータスコードにマッピングする。
// 重複エラーは既存クライアントとの互換のため409ではなく400を返す。
func mapAPIErrorToHTTPStatus(apiErr *model.APIError) int {
	switch apiErr.Code {
	case model.ErrCodeInvalidRequest, model.ErrCodeInvalidPath,
		model.ErrCodeUsernameExists, model.ErrCodeModelIDExists:
		return http.StatusBadRequest
	case model.ErrCodeInvalidCredentials:
		return http.StatusUnauthorized
	case model.ErrCodeUserNotFound, model.ErrCodeModelNotFound, model.ErrCodeSessionNotFound,
		model.ErrCodeRouteNotFound:
		return http.StatusNotFound
	case model.ErrCodeMethodNotAllowed:
		return http.StatusMethodNotAllowed
	case model.ErrCodeUpstreamTimeout:
		return http.StatusRequestTimeout
	default:
		return http.StatusInternalServerError
	}
}

// isCode はerrが指定コードのAPIErrorかを返す。
func isCode(err error, code string) bool {
	var apiErr *model.APIError
	return errors.As(err, &apiErr) && apiErr.Code == code
}
