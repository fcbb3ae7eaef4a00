package handler

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"

	"github.com/riicode/rcbuilder/internal/metrics"
	"github.com/riicode/rcbuilder/internal/model"
	"github.com/riicode/rcbuilder/internal/sessionfs"
)

// SessionTreeInterface はセッションハンドラーが必要とするセッションディレクトリ操作のインターフェース。
type SessionTreeInterface interface {
	Save(ctx context.Context, username, sessionName string, files []model.SessionFile) error
	List(ctx context.Context, username string) ([]model.SessionSummary, error)
	ListAll(ctx context.Context) ([]model.SessionSummary, error)
	Resolve(username, sessionName string) (string, error)
	Lookup(ctx context.Context, sessionName string) (username, dir string, err error)
	Delete(ctx context.Context, username, sessionName string) error
}

// ArchiveWriter はセッションディレクトリをzipとして書き出すインターフェース。
type ArchiveWriter interface {
	Write(ctx context.Context, w io.Writer, dir string) (int, error)
}

// SessionHandler はセッション関連のHTTPハンドラー。
type SessionHandler struct {
	tree     SessionTreeInterface
	archiver ArchiveWriter
	metrics  metrics.MetricsCollector
}

// NewSessionHandler はSessionHandlerを生成する。
func NewSessionHandler(tree SessionTreeInterface, archiver ArchiveWriter, mc metrics.MetricsCollector) *SessionHandler {
	return &SessionHandler{tree: tree, archiver: archiver, metrics: mc}
}

type saveSessionRequest struct {
	Username    string              `json:"username"`
	SessionName string              `json:"sessionName"`
	Files       []model.SessionFile `json:"files"`
}

type saveSessionResponse struct {
	Success     bool   `json:"success"`
	Message     string `json:"message"`
	SessionName string `json:"sessionName"`
}

type sessionsResponse struct {
	Sessions []model.SessionSummary `json:"sessions"`
}

// SaveSession はファイル群をセッションディレクトリに書き込む。
// sessionNameが省略された場合は新しい名前を採番する。
// POST /api/sessions/save
func (h *SessionHandler) SaveSession(w http.ResponseWriter, r *http.Request) {
	var req saveSessionRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if req.Username == "" {
		handleServiceError(w, model.NewValidationError("Username is required"))
		return
	}
	if req.Files == nil {
		handleServiceError(w, model.NewValidationError("Files must be an array"))
		return
	}
	if req.SessionName == "" {
		req.SessionName = sessionfs.NewSessionName()
	}

	if err := h.tree.Save(r.Context(), req.Username, req.SessionName, req.Files); err != nil {
		handleServiceError(w, err)
		return
	}
	h.metrics.RecordSessionSaved(len(req.Files))

	writeJSON(w, http.StatusOK, saveSessionResponse{
		Success:     true,
		Message:     "Session saved successfully",
		SessionName: req.SessionName,
	})
}

// ListSessions は全ユーザーのセッション一覧を返す。
// クエリパラメータusernameがあればそのユーザーに絞り込む。
// GET /api/sessions
func (h *SessionHandler) ListSessions(w http.ResponseWriter, r *http.Request) {
	if username := r.URL.Query().Get("username"); username != "" {
		h.listUser(w, r, username)
		return
	}

	sessions, err := h.tree.ListAll(r.Context())
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

// ListUserSessions は1ユーザーのセッション一覧を返す。
// GET /api/sessions/user/{username}
func (h *SessionHandler) ListUserSessions(w http.ResponseWriter, r *http.Request) {
	username, ok := urlParam(w, r, "username")
	if !ok {
		return
	}
	h.listUser(w, r, username)
}

func (h *SessionHandler) listUser(w http.ResponseWriter, r *http.Request, username string) {
	sessions, err := h.tree.List(r.Context(), username)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sessionsResponse{Sessions: sessions})
}

// DownloadUserSession はユーザー名とセッション名で指定したセッションをzipで返す。
// GET /api/sessions/user/{username}/{sessionName}/download
func (h *SessionHandler) DownloadUserSession(w http.ResponseWriter, r *http.Request) {
	username, ok := urlParam(w, r, "username")
	if !ok {
		return
	}
	sessionName, ok := urlParam(w, r, "sessionName")
	if !ok {
		return
	}
	dir, err := h.tree.Resolve(username, sessionName)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.download(w, r, sessionName, dir)
}

// DownloadSession はセッション名だけでセッションを探してzipで返す。
// 同名セッションが複数ユーザーにある場合はユーザー名順で最初のものを返す。
// GET /api/sessions/{sessionName}/download
func (h *SessionHandler) DownloadSession(w http.ResponseWriter, r *http.Request) {
	sessionName, ok := urlParam(w, r, "sessionName")
	if !ok {
		return
	}
	_, dir, err := h.tree.Lookup(r.Context(), sessionName)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.download(w, r, sessionName, dir)
}

// download はzipをストリーミングで書き出す。
// 本文の書き込み開始後に失敗した場合はステータスを変更できないため接続を中断する。
func (h *SessionHandler) download(w http.ResponseWriter, r *http.Request, sessionName, dir string) {
	cw := &countingWriter{w: w}
	w.Header().Set("Content-Type", "application/zip")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", sessionName+".zip"))

	files, err := h.archiver.Write(r.Context(), cw, dir)
	if err != nil {
		if cw.n == 0 {
			w.Header().Del("Content-Disposition")
			handleServiceError(w, err)
			return
		}
		slog.Error("failed to stream session archive",
			slog.String("session", sessionName),
			slog.Int64("bytes_written", cw.n),
			slog.String("error", err.Error()),
		)
		panic(http.ErrAbortHandler)
	}
	h.metrics.RecordArchiveExported(files)
}

// DeleteUserSession はユーザー名とセッション名で指定したセッションを削除する。
// DELETE /api/sessions/user/{username}/{sessionName}
func (h *SessionHandler) DeleteUserSession(w http.ResponseWriter, r *http.Request) {
	username, ok := urlParam(w, r, "username")
	if !ok {
		return
	}
	sessionName, ok := urlParam(w, r, "sessionName")
	if !ok {
		return
	}
	h.delete(w, r, username, sessionName)
}

// DeleteSession はセッション名だけでセッションを探して削除する。
// DELETE /api/sessions/{sessionName}
func (h *SessionHandler) DeleteSession(w http.ResponseWriter, r *http.Request) {
	sessionName, ok := urlParam(w, r, "sessionName")
	if !ok {
		return
	}
	username, _, err := h.tree.Lookup(r.Context(), sessionName)
	if err != nil {
		handleServiceError(w, err)
		return
	}
	h.delete(w, r, username, sessionName)
}

func (h *SessionHandler) delete(w http.ResponseWriter, r *http.Request, username, sessionName string) {
	if err := h.tree.Delete(r.Context(), username, sessionName); err != nil {
		handleServiceError(w, err)
		return
	}
	writeSuccess(w, "Session deleted successfully")
}

// countingWriter は書き込んだバイト数を数える。
type countingWriter struct {
	w io.Writer
	n int64
}

func (c *countingWriter) Write(p []byte) (int, error) {
	n, err := c.w.Write(p)
	c.n += int64(n)
	return n, err
}

