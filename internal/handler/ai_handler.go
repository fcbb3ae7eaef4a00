package handler

import (
	"context"
	"net/http"
	"strings"

	"github.com/riicode/rcbuilder/internal/codeblock"
	"github.com/riicode/rcbuilder/internal/generation"
	"github.com/riicode/rcbuilder/internal/model"
)

// GenerationServiceInterface はAIハンドラーが必要とするサービスインターフェース。
type GenerationServiceInterface interface {
	Chat(ctx context.Context, messages []model.ChatMessage, modelID string) (string, error)
	Generate(ctx context.Context, req generation.GenerateRequest) (*generation.GenerateResult, error)
}

// AIHandler はチャット・コード生成・コードブロック抽出のHTTPハンドラー。
type AIHandler struct {
	service GenerationServiceInterface
}

// NewAIHandler はAIHandlerを生成する。
func NewAIHandler(service GenerationServiceInterface) *AIHandler {
	return &AIHandler{service: service}
}

type chatRequest struct {
	Messages []model.ChatMessage `json:"messages"`
	Model    string              `json:"model"`
}

type chatResponse struct {
	Success  bool   `json:"success"`
	Response string `json:"response"`
}

// Chat は会話履歴を上流AIに転送し、最初の選択肢の本文を返す。
// POST /api/chat
func (h *AIHandler) Chat(w http.ResponseWriter, r *http.Request) {
	var req chatRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	reply, err := h.service.Chat(r.Context(), req.Messages, req.Model)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	writeJSON(w, http.StatusOK, chatResponse{Success: true, Response: reply})
}

type generateRequest struct {
	Prompt   string              `json:"prompt"`
	Model    string              `json:"model"`
	Username string              `json:"username"`
	History  []model.ChatMessage `json:"history"`
}

type generateResponse struct {
	Success     bool     `json:"success"`
	Response    string   `json:"response"`
	SessionName string   `json:"sessionName,omitempty"`
	Files       []string `json:"files"`
}

// Generate はコードを生成し、ユーザー名があればセッションとして保存する。
// POST /api/generate
func (h *AIHandler) Generate(w http.ResponseWriter, r *http.Request) {
	var req generateRequest
	if !decodeJSON(w, r, &req) {
		return
	}

	result, err := h.service.Generate(r.Context(), generation.GenerateRequest{
		Prompt:   req.Prompt,
		Model:    req.Model,
		Username: strings.TrimSpace(req.Username),
		History:  req.History,
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	files := result.Files
	if files == nil {
		files = []string{}
	}
	writeJSON(w, http.StatusOK, generateResponse{
		Success:     true,
		Response:    result.Response,
		SessionName: result.SessionName,
		Files:       files,
	})
}

type extractRequest struct {
	Content string `json:"content"`
}

type extractResponse struct {
	Parts []codeblock.Part    `json:"parts"`
	Files []model.SessionFile `json:"files"`
}

// Extract は任意のテキストをテキスト部分とコードブロックに分割する。
// 上流AIは呼び出さない。
// POST /api/extract
func (h *AIHandler) Extract(w http.ResponseWriter, r *http.Request) {
	var req extractRequest
	if !decodeJSON(w, r, &req) {
		return
	}
	if strings.TrimSpace(req.Content) == "" {
		handleServiceError(w, model.NewValidationError("Content is required"))
		return
	}

	writeJSON(w, http.StatusOK, extractResponse{
		Parts: codeblock.Split(req.Content),
		Files: codeblock.Files(req.Content),
	})
}
