// Package model はドメインモデルを定義する。
package model

import "fmt"

// APIError は統一エラーフォーマットを表す。
// クライアントに返すエラーコード、メッセージ、カテゴリを含む。
type APIError struct {
	Code     string // エラーコード
	Message  string // エラーメッセージ
	Category string // カテゴリ: auth, validation, session, upstream, system
}

// Error はerrorインターフェースを実装する。
func (e *APIError) Error() string {
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// 定義済みエラーコード
const (
	ErrCodeInvalidRequest     = "INVALID_REQUEST"
	ErrCodeInvalidCredentials = "INVALID_CREDENTIALS"
	ErrCodeUsernameExists     = "USERNAME_EXISTS"
	ErrCodeModelIDExists      = "MODEL_ID_EXISTS"
	ErrCodeUserNotFound       = "USER_NOT_FOUND"
	ErrCodeModelNotFound      = "MODEL_NOT_FOUND"
	ErrCodeSessionNotFound    = "SESSION_NOT_FOUND"
	ErrCodeInvalidPath        = "INVALID_PATH"
	ErrCodeUpstreamTimeout    = "UPSTREAM_TIMEOUT"
	ErrCodeUpstreamFailed     = "UPSTREAM_FAILED"
	ErrCodeEmptyResponse      = "EMPTY_RESPONSE"
	ErrCodeStoreFailed        = "STORE_FAILED"
	ErrCodeRouteNotFound      = "ROUTE_NOT_FOUND"
	ErrCodeMethodNotAllowed   = "METHOD_NOT_ALLOWED"
	ErrCodeInternal           = "INTERNAL_ERROR"
)

// NewValidationError は必須フィールド不足などの入力エラーを生成する。
func NewValidationError(message string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidRequest,
		Message:  message,
		Category: "validation",
	}
}

// NewInvalidCredentialsError はログイン失敗エラーを生成する。
// ユーザー名の存在有無は区別しない。
func NewInvalidCredentialsError() *APIError {
	return &APIError{
		Code:     ErrCodeInvalidCredentials,
		Message:  "Invalid credentials",
		Category: "auth",
	}
}

// NewUsernameExistsError はユーザー名の重複エラーを生成する。
func NewUsernameExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeUsernameExists,
		Message:  "Username already exists",
		Category: "validation",
	}
}

// NewModelIDExistsError はモデルIDの重複エラーを生成する。
func NewModelIDExistsError() *APIError {
	return &APIError{
		Code:     ErrCodeModelIDExists,
		Message:  "Model ID already exists",
		Category: "validation",
	}
}

// NewUserNotFoundError はユーザーが見つからない場合のエラーを生成する。
func NewUserNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeUserNotFound,
		Message:  "User not found",
		Category: "auth",
	}
}

// NewModelNotFoundError はモデルが見つからない場合のエラーを生成する。
func NewModelNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeModelNotFound,
		Message:  "Model not found",
		Category: "validation",
	}
}

// NewSessionNotFoundError はセッションが見つからない場合のエラーを生成する。
func NewSessionNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeSessionNotFound,
		Message:  "Session not found",
		Category: "session",
	}
}

// NewInvalidPathError はセッションディレクトリ外を指すパスのエラーを生成する。
func NewInvalidPathError(path string) *APIError {
	return &APIError{
		Code:     ErrCodeInvalidPath,
		Message:  fmt.Sprintf("Invalid path: %s", path),
		Category: "validation",
	}
}

// NewRouteNotFoundError は存在しないエンドポイントへのリクエストのエラーを生成する。
func NewRouteNotFoundError() *APIError {
	return &APIError{
		Code:     ErrCodeRouteNotFound,
		Message:  "Not found",
		Category: "validation",
	}
}

// NewMethodNotAllowedError はエンドポイントが対応しないHTTPメソッドのエラーを生成する。
func NewMethodNotAllowedError() *APIError {
	return &APIError{
		Code:     ErrCodeMethodNotAllowed,
		Message:  "Method not allowed",
		Category: "validation",
	}
}

// NewUpstreamTimeoutError はAI APIのタイムアウトエラーを生成する。
func NewUpstreamTimeoutError() *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamTimeout,
		Message:  "Request timeout",
		Category: "upstream",
	}
}

// NewUpstreamFailedError はAI API呼び出し失敗エラーを生成する。
func NewUpstreamFailedError(reason string) *APIError {
	return &APIError{
		Code:     ErrCodeUpstreamFailed,
		Message:  reason,
		Category: "upstream",
	}
}

// NewEmptyResponseError はAI APIが本文を返さなかった場合のエラーを生成する。
func NewEmptyResponseError() *APIError {
	return &APIError{
		Code:     ErrCodeEmptyResponse,
		Message:  "Empty response from AI",
		Category: "upstream",
	}
}

// NewStoreFailedError はフラットファイルの読み書き失敗エラーを生成する。
// 詳細はログのみに記録する。
func NewStoreFailedError() *APIError {
	return &APIError{
		Code:     ErrCodeStoreFailed,
		Message:  "Database error",
		Category: "system",
	}
}

// NewInternalError は内部エラーを生成する。
func NewInternalError() *APIError {
	return &APIError{
		Code:     ErrCodeInternal,
		Message:  "Server error",
		Category: "system",
	}
}
