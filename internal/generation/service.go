// Package generation はチャットとコード生成のユースケースを提供する。
// システム指示を付与して上流AI APIを呼び出し、生成結果をセッションとして保存する。
package generation

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/riicode/rcbuilder/internal/codeblock"
	"github.com/riicode/rcbuilder/internal/metrics"
	"github.com/riicode/rcbuilder/internal/model"
	"github.com/riicode/rcbuilder/internal/sessionfs"
	"github.com/riicode/rcbuilder/internal/upstream"
)

// GeneratedFileName はコード生成の応答全文を保存するファイル名。
const GeneratedFileName = "generated_code.txt"

// Completer は上流AI APIの呼び出しインターフェース。
type Completer interface {
	Complete(ctx context.Context, conversation []model.ChatMessage, modelID string) (string, error)
}

// SessionWriter はセッションディレクトリへの書き込みインターフェース。
type SessionWriter interface {
	Save(ctx context.Context, username, sessionName string, files []model.SessionFile) error
}

// GenerateRequest はコード生成の入力。
type GenerateRequest struct {
	Prompt   string
	Model    string
	Username string              // 空の場合はセッションを保存しない
	History  []model.ChatMessage // プロンプトの前に挿入する過去の会話
}

// GenerateResult はコード生成の結果。
type GenerateResult struct {
	Response    string
	SessionName string   // 保存しなかった場合は空
	Files       []string // 保存したファイル名
}

// Service はチャットとコード生成を行うサービス。
type Service struct {
	completer      Completer
	sessions       SessionWriter
	metrics        metrics.MetricsCollector
	logger         *slog.Logger
	newSessionName func() string
}

// NewService はServiceの新しいインスタンスを生成する。
func NewService(completer Completer, sessions SessionWriter, mc metrics.MetricsCollector, logger *slog.Logger) *Service {
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		completer:      completer,
		sessions:       sessions,
		metrics:        mc,
		logger:         logger,
		newSessionName: sessionfs.NewSessionName,
	}
}

// Chat は会話にチャット用のシステム指示を付与してAIに送り、応答本文を返す。
// 会話の先頭が既にsystemメッセージの場合は指示を付与しない。
func (s *Service) Chat(ctx context.Context, messages []model.ChatMessage, modelID string) (string, error) {
	if len(messages) == 0 || modelID == "" {
		return "", model.NewValidationError("Messages and model are required")
	}
	if err := validateMessages(messages); err != nil {
		return "", err
	}

	conversation := messages
	if messages[0].Role != "system" {
		conversation = make([]model.ChatMessage, 0, len(messages)+1)
		conversation = append(conversation, model.ChatMessage{Role: "system", Content: ChatInstruction})
		conversation = append(conversation, messages...)
	}

	return s.complete(ctx, "chat", conversation, modelID)
}

// Generate はプロンプトにコード生成用のシステム指示を付与してAIに送る。
// Usernameが指定されていれば、応答全文と抽出したファイルを新しいセッションとして保存する。
func (s *Service) Generate(ctx context.Context, req GenerateRequest) (*GenerateResult, error) {
	if req.Prompt == "" || req.Model == "" {
		return nil, model.NewValidationError("Prompt and model are required")
	}
	if err := validateMessages(req.History); err != nil {
		return nil, err
	}
	if req.Username != "" {
		if err := sessionfs.ValidateName("username", req.Username); err != nil {
			return nil, err
		}
	}

	conversation := make([]model.ChatMessage, 0, len(req.History)+2)
	conversation = append(conversation, model.ChatMessage{Role: "system", Content: GeneratorInstruction})
	conversation = append(conversation, req.History...)
	conversation = append(conversation, model.ChatMessage{Role: "user", Content: req.Prompt})

	content, err := s.complete(ctx, "generate", conversation, req.Model)
	if err != nil {
		return nil, err
	}

	result := &GenerateResult{Response: content, Files: []string{}}
	if req.Username == "" {
		return result, nil
	}

	files := s.sessionFiles(content)
	sessionName := s.newSessionName()
	if err := s.sessions.Save(ctx, req.Username, sessionName, files); err != nil {
		var apiErr *model.APIError
		if errors.As(err, &apiErr) {
			return nil, apiErr
		}
		return nil, fmt.Errorf("failed to save generated session: %w", err)
	}
	s.metrics.RecordSessionSaved(len(files))

	result.SessionName = sessionName
	for _, f := range files {
		result.Files = append(result.Files, f.FileName)
	}

	s.logger.Info("generated session saved",
		slog.String("username", req.Username),
		slog.String("session", sessionName),
		slog.Int("files", len(files)),
	)
	return result, nil
}

// sessionFiles は応答全文のファイルと、応答から抽出したファイルを並べる。
// セッション外を指すファイル名、全文ファイルと同じ名前、先に採用したファイルと
// ファイルとディレクトリの関係で衝突する名前は捨てる。
func (s *Service) sessionFiles(content string) []model.SessionFile {
	files := []model.SessionFile{{FileName: GeneratedFileName, Content: content}}
	for _, f := range codeblock.Files(content) {
		name := filepath.Clean(filepath.FromSlash(f.FileName))
		if !filepath.IsLocal(name) || name == GeneratedFileName || conflictsWith(files, f.FileName) {
			s.logger.Warn("skipping extracted file",
				slog.String("file", f.FileName),
			)
			continue
		}
		files = append(files, f)
	}
	return files
}

func conflictsWith(files []model.SessionFile, name string) bool {
	for _, f := range files {
		if sessionfs.PathsConflict(f.FileName, name) {
			return true
		}
	}
	return false
}

// complete は上流APIを呼び出し、失敗をAPIErrorに変換する。
func (s *Service) complete(ctx context.Context, op string, conversation []model.ChatMessage, modelID string) (string, error) {
	start := time.Now()
	content, err := s.completer.Complete(ctx, conversation, modelID)
	s.metrics.RecordUpstreamLatency(op, time.Since(start))
	if err == nil {
		return content, nil
	}

	switch {
	case errors.Is(err, upstream.ErrTimeout):
		s.metrics.RecordUpstreamFailure(op, "timeout")
		return "", model.NewUpstreamTimeoutError()
	case errors.Is(err, upstream.ErrEmptyResponse):
		s.metrics.RecordUpstreamFailure(op, "empty")
		return "", model.NewEmptyResponseError()
	default:
		s.metrics.RecordUpstreamFailure(op, "error")
		s.logger.Error("upstream call failed",
			slog.String("operation", op),
			slog.String("model", modelID),
			slog.String("error", err.Error()),
		)
		reason := "Chat failed"
		if op == "generate" {
			reason = "AI generation failed"
		}
		return "", model.NewUpstreamFailedError(reason)
	}
}

func validateMessages(messages []model.ChatMessage) error {
	for _, m := range messages {
		switch m.Role {
		case "system", "user", "assistant":
		default:
			return model.NewValidationError(fmt.Sprintf("Invalid message role: %q", m.Role))
		}
	}
	return nil
}
