package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/riicode/rcbuilder/internal/account"
	"github.com/riicode/rcbuilder/internal/archive"
	"github.com/riicode/rcbuilder/internal/catalog"
	"github.com/riicode/rcbuilder/internal/config"
	"github.com/riicode/rcbuilder/internal/generation"
	"github.com/riicode/rcbuilder/internal/handler"
	"github.com/riicode/rcbuilder/internal/logger"
	"github.com/riicode/rcbuilder/internal/metrics"
	"github.com/riicode/rcbuilder/internal/middleware"
	"github.com/riicode/rcbuilder/internal/model"
	"github.com/riicode/rcbuilder/internal/sessionfs"
	"github.com/riicode/rcbuilder/internal/store"
	"github.com/riicode/rcbuilder/internal/upstream"
)

// defaultModel は初期化時にmodels.jsonへ投入するモデル。
var defaultModel = model.ModelEntry{
	Name: "Llama 3.3 70B",
	ID:   "meta-llama/Llama-3.3-70B-Instruct",
}

// Init はアプリケーションの初期化を行う。
// 環境変数（と .env）からConfigを読み込み、JSON構造化ログをセットアップする。
// writerが指定された場合はログ出力先としてそのwriterを使用する。
func Init(w io.Writer) (*config.Config, *slog.Logger, error) {
	// 1. ログの初期化（設定読み込み前にログを使えるようにする）
	log := logger.SetupDefault(w, slog.LevelInfo)

	// 2. 環境変数から設定を読み込む
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to load config: %w", err)
	}

	// 3. 設定されたログレベルで再設定
	if level := logger.ParseLevel(cfg.LogLevel); level != slog.LevelInfo {
		log = logger.SetupDefault(w, level)
	}

	return cfg, log, nil
}

// Run はアプリケーションのメインエントリーポイント。
// コマンドライン引数からサブコマンドを解析し、対応するモードで起動する。
// argsにはos.Args[1:]を渡す。
func Run(w io.Writer, args []string) error {
	cmd := ParseCommand(args)

	// healthcheck は軽量サブコマンドのため、フル初期化をスキップする
	if cmd == CommandHealthcheck {
		port := os.Getenv("SERVER_PORT")
		if port == "" {
			port = config.DefaultServerPort
		}
		return runHealthcheck(port)
	}

	cfg, log, err := Init(w)
	if err != nil {
		return fmt.Errorf("initialization failed: %w", err)
	}

	log.Info("starting application",
		slog.String("command", string(cmd)),
		slog.String("port", cfg.ServerPort),
		slog.String("data_dir", cfg.DataDir),
	)

	switch cmd {
	case CommandInit:
		return runInit(context.Background(), cfg, log)
	default:
		ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()
		return runServe(ctx, cfg, log)
	}
}

// runInit はデータディレクトリ、セッションディレクトリ、acc.json、models.jsonを作成する。
// 既存のファイルは変更しない。
func runInit(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := sessionfs.New(cfg.SessionsDir).EnsureRoot(); err != nil {
		return fmt.Errorf("failed to create sessions directory: %w", err)
	}

	users := store.New[model.UserAccount](cfg.UsersFile)
	created, err := users.Init(ctx, []model.UserAccount{{
		Username: cfg.AdminUsername,
		Password: cfg.AdminPassword,
		Role:     model.RoleAdmin,
		Exp:      model.DefaultExp,
	}})
	if err != nil {
		return fmt.Errorf("failed to initialize users: %w", err)
	}
	if created {
		log.Info("users file created",
			slog.String("path", users.Path()),
			slog.String("admin", cfg.AdminUsername),
		)
	}

	models := store.New[model.ModelEntry](cfg.ModelsFile)
	created, err = models.Init(ctx, []model.ModelEntry{defaultModel})
	if err != nil {
		return fmt.Errorf("failed to initialize models: %w", err)
	}
	if created {
		log.Info("models file created", slog.String("path", models.Path()))
	}

	return nil
}

// newHandler は全依存関係をワイヤリングしたHTTPハンドラーを構築する。
// 返されるcleanupはレート制限のクリーンアップgoroutineを停止する。
func newHandler(cfg *config.Config, log *slog.Logger, reg *prometheus.Registry) (http.Handler, func()) {
	// 1. ストアの初期化
	users := store.New[model.UserAccount](cfg.UsersFile)
	models := store.New[model.ModelEntry](cfg.ModelsFile)
	tree := sessionfs.New(cfg.SessionsDir)

	// 2. メトリクス
	mc := metrics.NewCollector(reg)

	// 3. 上流AIクライアント
	client := upstream.NewClient(upstream.Config{
		BaseURL: cfg.UpstreamURL,
		APIKey:  cfg.UpstreamAPIKey,
		Timeout: cfg.UpstreamTimeout,
		Headers: upstream.DefaultHeaders(),
	}, log)

	// 4. ドメインサービスの初期化
	accountService := account.NewService(users)
	catalogService := catalog.NewService(models)
	generationService := generation.NewService(client, tree, mc, log)

	// 5. ルーターの構築
	rateLimiter := middleware.NewRateLimiter(
		middleware.NewRateLimiterConfig(cfg.RateLimitGeneral, cfg.RateLimitGenerate),
	)

	router := handler.NewRouter(&handler.RouterDeps{
		Logger:            log,
		CORSAllowedOrigin: cfg.CORSAllowedOrigin,
		TrustedProxies:    cfg.TrustedProxies,
		MaxBodyBytes:      cfg.MaxBodyBytes,
		RateLimiter:       rateLimiter,
		Metrics:           mc,
		MetricsGatherer:   reg,

		AuthService:       accountService,
		GenerationService: generationService,

		SessionTree: tree,
		Archiver:    archive.NewExporter(),

		AccountService: accountService,
		CatalogService: catalogService,
	})

	return router, rateLimiter.Stop
}

// runServe はAPIサーバーモードで起動する。
// 不足しているデータファイルを作成し、全依存関係をワイヤリングしてHTTPサーバーを起動する。
// ctxがキャンセルされるとグレースフルシャットダウンを行う。
func runServe(ctx context.Context, cfg *config.Config, log *slog.Logger) error {
	if err := runInit(ctx, cfg, log); err != nil {
		return err
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	router, cleanup := newHandler(cfg, log, reg)
	defer cleanup()

	// 書き込みタイムアウトは上流のタイムアウトより長くする
	server := &http.Server{
		Addr:              ":" + cfg.ServerPort,
		Handler:           router,
		ReadHeaderTimeout: 15 * time.Second,
		WriteTimeout:      cfg.UpstreamTimeout + 30*time.Second,
		IdleTimeout:       60 * time.Second,
	}

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", server.Addr, err)
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("API server starting",
			slog.String("addr", ln.Addr().String()),
		)
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server listen error: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down API server...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown failed: %w", err)
	}

	log.Info("API server stopped gracefully")
	return nil
}

// runHealthcheck はヘルスチェックを実行する。
// distroless環境でのDockerヘルスチェック用サブコマンド。
// /api/health エンドポイントにHTTPリクエストを送り、結果を返す。
func runHealthcheck(port string) error {
	url := fmt.Sprintf("http://localhost:%s/api/health", port)
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(url)
	if err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("health check returned status %d", resp.StatusCode)
	}

	return nil
}
