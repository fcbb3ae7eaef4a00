// Package upstream は外部のOpenAI互換チャット補完APIへのプロキシクライアントを提供する。
// 1回の呼び出しにつき非ストリーミングのリクエストを1回だけ送信し、リトライは行わない。
package upstream

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	openai "github.com/meguminnnnnnnnn/go-openai"

	"github.com/riicode/rcbuilder/internal/model"
)

const (
	// DefaultBaseURL はチャット補完APIのベースURL。/chat/completions が付加される。
	DefaultBaseURL = "https://api.deepinfra.com/v1/openai"
	// DefaultTimeout は1リクエストあたりの上限時間。
	DefaultTimeout = 500 * time.Second
)

var (
	// ErrTimeout は上流APIが制限時間内に応答しなかったことを表す。
	ErrTimeout = errors.New("upstream request timed out")
	// ErrEmptyResponse は上流APIの応答から本文を取り出せなかったことを表す。
	ErrEmptyResponse = errors.New("empty response from upstream")
)

// Error はタイムアウト以外の上流API呼び出し失敗を表す。
type Error struct {
	StatusCode int // 上流のHTTPステータス。送信前や接続エラーでは0
	Err        error
}

// Error はerrorインターフェースを実装する。
func (e *Error) Error() string {
	if e.StatusCode != 0 {
		return fmt.Sprintf("upstream returned status %d: %v", e.StatusCode, e.Err)
	}
	return fmt.Sprintf("upstream request failed: %v", e.Err)
}

// Unwrap は原因エラーを返す。
func (e *Error) Unwrap() error {
	return e.Err
}

// DefaultHeaders は上流APIへ常に付与するヘッダー。
func DefaultHeaders() map[string]string {
	return map[string]string{
		"X-Deepinfra-Source": "web-page",
		"Accept":             "application/json",
		"User-Agent":         "Mozilla/5.0 (Linux; Android 10; K) AppleWebKit/537.36",
		"Referer":            "https://deepinfra.com/chat",
	}
}

// Config はClientの設定。
type Config struct {
	BaseURL    string
	APIKey     string
	Timeout    time.Duration
	Headers    map[string]string
	HTTPClient *http.Client // nilの場合はhttp.DefaultTransportを使う
}

// Client はチャット補完APIのクライアント。
type Client struct {
	api     *openai.Client
	timeout time.Duration
	logger  *slog.Logger
}

// NewClient はClientの新しいインスタンスを生成する。
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Headers == nil {
		cfg.Headers = DefaultHeaders()
	}

	var base http.RoundTripper = http.DefaultTransport
	if cfg.HTTPClient != nil && cfg.HTTPClient.Transport != nil {
		base = cfg.HTTPClient.Transport
	}

	oc := openai.DefaultConfig(cfg.APIKey)
	oc.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	oc.HTTPClient = &http.Client{
		Transport: &headerTransport{base: base, headers: cfg.Headers},
	}

	return &Client{
		api:     openai.NewClientWithConfig(oc),
		timeout: cfg.Timeout,
		logger:  logger,
	}
}

// Complete は会話をそのまま上流APIへ送信し、最初の候補のメッセージ本文を返す。
// 失敗時は ErrTimeout、ErrEmptyResponse、*Error のいずれかを返す。
func (c *Client) Complete(ctx context.Context, conversation []model.ChatMessage, modelID string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	messages := make([]openai.ChatCompletionMessage, len(conversation))
	for i, m := range conversation {
		messages[i] = openai.ChatCompletionMessage{
			Role:    m.Role,
			Content: m.Content,
		}
	}

	start := time.Now()
	resp, err := c.api.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    modelID,
		Messages: messages,
		Stream:   false,
	})
	if err != nil {
		classified := classify(ctx, err)
		c.logger.Error("upstream chat completion failed",
			slog.String("model", modelID),
			slog.Int("messages", len(messages)),
			slog.Duration("elapsed", time.Since(start)),
			slog.String("error", err.Error()),
		)
		return "", classified
	}

	if len(resp.Choices) == 0 || resp.Choices[0].Message.Content == "" {
		c.logger.Warn("upstream returned no content",
			slog.String("model", modelID),
			slog.Int("choices", len(resp.Choices)),
		)
		return "", ErrEmptyResponse
	}

	c.logger.Info("upstream chat completion succeeded",
		slog.String("model", modelID),
		slog.Duration("elapsed", time.Since(start)),
	)
	return resp.Choices[0].Message.Content, nil
}

// classify はSDKが返したエラーをタイムアウトとそれ以外に分類する。
func classify(ctx context.Context, err error) error {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return fmt.Errorf("%w: %v", ErrTimeout, err)
	}

	var apiErr *openai.APIError
	if errors.As(err, &apiErr) {
		return &Error{StatusCode: apiErr.HTTPStatusCode, Err: err}
	}
	var reqErr *openai.RequestError
	if errors.As(err, &reqErr) {
		return &Error{StatusCode: reqErr.HTTPStatusCode, Err: err}
	}
	return &Error{Err: err}
}

// headerTransport は全リクエストに固定ヘッダーを付与する。
type headerTransport struct {
	base    http.RoundTripper
	headers map[string]string
}

// RoundTrip はhttp.RoundTripperを実装する。
func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	req = req.Clone(req.Context())
	for k, v := range t.headers {
		req.Header.Set(k, v)
	}
	return t.base.RoundTrip(req)
}
