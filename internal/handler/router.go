package handler

import (
	"log/slog"
	"net/http"
	"net/netip"

	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/riicode/rcbuilder/internal/metrics"
	"github.com/riicode/rcbuilder/internal/middleware"
	"github.com/riicode/rcbuilder/internal/model"
)

// defaultMaxBodyBytes はRouterDeps.MaxBodyBytesが未設定の場合のボディ上限。
const defaultMaxBodyBytes = 50 << 20

// RouterDeps はNewRouterに必要な依存関係をまとめた構造体。
type RouterDeps struct {
	// ミドルウェア依存
	Logger            *slog.Logger
	CORSAllowedOrigin string
	TrustedProxies    []netip.Prefix // X-Forwarded-For を信頼するプロキシ
	MaxBodyBytes      int64
	RateLimiter       *middleware.RateLimiter
	Metrics           metrics.MetricsCollector
	MetricsGatherer   prometheus.Gatherer // nilの場合は/metricsを公開しない

	// 認証
	AuthService AuthServiceInterface

	// AI
	GenerationService GenerationServiceInterface

	// セッション
	SessionTree SessionTreeInterface
	Archiver    ArchiveWriter

	// 管理
	AccountService AccountServiceInterface
	CatalogService CatalogServiceInterface
}

// NewRouter は全APIエンドポイントのルーティングとミドルウェアチェーンを構成したchi.Routerを返す。
//
// ミドルウェアスタックの実行順序:
//
//	Recovery → SecurityHeaders → CORS → ClientKey → Logging → Metrics → BodyLimit → RateLimit(General)
//
// /api/chat と /api/generate には生成用の厳しいレート制限を追加する。
// /metrics はミドルウェアチェーンの外に配置する。
func NewRouter(deps *RouterDeps) http.Handler {
	mc := deps.Metrics
	if mc == nil {
		mc = metrics.NopCollector{}
	}
	logger := deps.Logger
	if logger == nil {
		logger = slog.Default()
	}
	maxBody := deps.MaxBodyBytes
	if maxBody <= 0 {
		maxBody = defaultMaxBodyBytes
	}

	r := chi.NewRouter()
	r.NotFound(notFound)
	r.MethodNotAllowed(methodNotAllowed)

	if deps.MetricsGatherer != nil {
		r.Handle("/metrics", metrics.SetupMetricsRoute(deps.MetricsGatherer))
	}

	authHandler := NewAuthHandler(deps.AuthService, mc)
	aiHandler := NewAIHandler(deps.GenerationService)
	sessionHandler := NewSessionHandler(deps.SessionTree, deps.Archiver, mc)
	adminHandler := NewAdminHandler(deps.AccountService, deps.CatalogService)

	r.Route("/api", func(r chi.Router) {
		r.Use(middleware.NewRecoveryMiddleware())
		r.Use(middleware.NewSecurityHeadersMiddleware())
		r.Use(middleware.NewCORSMiddleware(deps.CORSAllowedOrigin))
		r.Use(middleware.NewClientKeyMiddleware(deps.TrustedProxies))
		r.Use(middleware.NewLoggingMiddleware(logger))
		r.Use(middleware.NewMetricsMiddleware(mc))
		r.Use(middleware.NewBodyLimitMiddleware(maxBody))
		r.Use(deps.RateLimiter.GeneralMiddleware())

		r.Get("/health", Health)

		r.Post("/auth/login", authHandler.Login)

		// AI（生成用レート制限を追加）
		r.Group(func(r chi.Router) {
			r.Use(deps.RateLimiter.GenerateMiddleware())
			r.Post("/chat", aiHandler.Chat)
			r.Post("/generate", aiHandler.Generate)
		})
		r.Post("/extract", aiHandler.Extract)

		// セッション管理
		r.Route("/sessions", func(r chi.Router) {
			r.Get("/", sessionHandler.ListSessions)
			r.Post("/save", sessionHandler.SaveSession)

			r.Route("/user/{username}", func(r chi.Router) {
				r.Get("/", sessionHandler.ListUserSessions)
				r.Get("/{sessionName}/download", sessionHandler.DownloadUserSession)
				r.Delete("/{sessionName}", sessionHandler.DeleteUserSession)
			})

			// セッション名だけで探す旧形式のルート
			r.Get("/{sessionName}/download", sessionHandler.DownloadSession)
			r.Delete("/{sessionName}", sessionHandler.DeleteSession)
		})

		// 管理画面
		r.Route("/admin", func(r chi.Router) {
			r.Route("/users", func(r chi.Router) {
				r.Get("/", adminHandler.ListUsers)
				r.Post("/", adminHandler.CreateUser)
				r.Put("/{username}", adminHandler.UpdateUser)
				r.Delete("/{username}", adminHandler.DeleteUser)
			})
			r.Route("/models", func(r chi.Router) {
				r.Get("/", adminHandler.ListModels)
				r.Post("/", adminHandler.AddModel)
				r.Put("/{id}", adminHandler.UpdateModel)
				r.Delete("/{id}", adminHandler.DeleteModel)
			})
		})
	})

	return r
}

// notFound は未定義ルートに統一エラーフォーマットで404を返す。
func notFound(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusNotFound, model.NewRouteNotFoundError())
}

func methodNotAllowed(w http.ResponseWriter, _ *http.Request) {
	middleware.WriteErrorResponse(w, http.StatusMethodNotAllowed, model.NewMethodNotAllowedError())
}
