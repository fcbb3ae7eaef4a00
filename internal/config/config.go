// Package config は環境変数からアプリケーション設定を読み込む。
package config

import (
	"errors"
	"fmt"
	"io/fs"
	"net/netip"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
)

// 既定値
const (
	DefaultServerPort      = "3001"
	DefaultDataDir         = "./data"
	DefaultUpstreamURL     = "https://api.deepinfra.com/v1/openai"
	DefaultUpstreamTimeout = 500 * time.Second
	DefaultMaxBodyBytes    = 50 << 20
)

// Config はアプリケーション全体の設定を保持する。
// 環境変数から起動時に1回読み込み、イミュータブルとして扱う。
type Config struct {
	// Server
	ServerPort   string
	MaxBodyBytes int64

	// Storage
	DataDir     string
	UsersFile   string
	ModelsFile  string
	SessionsDir string

	// Upstream
	UpstreamURL     string
	UpstreamAPIKey  string
	UpstreamTimeout time.Duration

	// Rate Limit (requests per minute)
	RateLimitGeneral  int
	RateLimitGenerate int

	// CORS
	CORSAllowedOrigin string

	// X-Forwarded-For を信頼するリバースプロキシ。空なら常にRemoteAddrで識別する
	TrustedProxies []netip.Prefix

	// Logging
	LogLevel string

	// init コマンドで投入する管理者アカウント
	AdminUsername string
	AdminPassword string
}

// Load は .env ファイルを読み込んだ後、環境変数からConfigを読み込む。
// 既に設定済みの環境変数は .env の値で上書きされない。
func Load() (*Config, error) {
	if err := loadEnvFile(); err != nil {
		return nil, err
	}

	cfg := &Config{}

	cfg.ServerPort = getEnvString("SERVER_PORT", DefaultServerPort)
	cfg.MaxBodyBytes = getEnvInt64("MAX_BODY_BYTES", DefaultMaxBodyBytes)
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}

	cfg.DataDir = getEnvString("DATA_DIR", DefaultDataDir)
	cfg.UsersFile = getEnvString("USERS_FILE", filepath.Join(cfg.DataDir, "acc.json"))
	cfg.ModelsFile = getEnvString("MODELS_FILE", filepath.Join(cfg.DataDir, "models.json"))
	cfg.SessionsDir = getEnvString("SESSIONS_DIR", filepath.Join(cfg.DataDir, "sessions"))

	cfg.UpstreamURL = getEnvString("UPSTREAM_URL", DefaultUpstreamURL)
	u, err := url.Parse(cfg.UpstreamURL)
	if err != nil || !u.IsAbs() || u.Host == "" {
		return nil, fmt.Errorf("UPSTREAM_URL must be an absolute URL: %q", cfg.UpstreamURL)
	}
	cfg.UpstreamAPIKey = os.Getenv("UPSTREAM_API_KEY")
	cfg.UpstreamTimeout = getEnvDuration("UPSTREAM_TIMEOUT", DefaultUpstreamTimeout)
	if cfg.UpstreamTimeout <= 0 {
		cfg.UpstreamTimeout = DefaultUpstreamTimeout
	}

	cfg.RateLimitGeneral = getEnvInt("RATE_LIMIT_GENERAL", 120)
	cfg.RateLimitGenerate = getEnvInt("RATE_LIMIT_GENERATE", 20)
	cfg.CORSAllowedOrigin = getEnvString("CORS_ALLOWED_ORIGIN", "*")
	cfg.TrustedProxies, err = parseTrustedProxies(os.Getenv("TRUSTED_PROXIES"))
	if err != nil {
		return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
	}
	cfg.LogLevel = getEnvString("LOG_LEVEL", "info")
	cfg.AdminUsername = getEnvString("ADMIN_USERNAME", "admin")
	cfg.AdminPassword = getEnvString("ADMIN_PASSWORD", "admin123")

	return cfg, nil
}

// loadEnvFile はENV_FILE、未指定ならカレントディレクトリの .env を読み込む。
// 既定の .env が存在しないことはエラーとしない。
func loadEnvFile() error {
	if path := os.Getenv("ENV_FILE"); path != "" {
		if err := godotenv.Load(path); err != nil {
			return fmt.Errorf("failed to load env file %s: %w", path, err)
		}
		return nil
	}
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("failed to load .env: %w", err)
	}
	return nil
}

func getEnvString(key, defaultVal string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultVal
}

func getEnvInt(key string, defaultVal int) int {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.Atoi(v)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvInt64(key string, defaultVal int64) int64 {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	i, err := strconv.ParseInt(v, 10, 64)
	if err != nil {
		return defaultVal
	}
	return i
}

func getEnvDuration(key string, defaultVal time.Duration) time.Duration {
	v := os.Getenv(key)
	if v == "" {
		return defaultVal
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return defaultVal
	}
	return d
}

// parseTrustedProxies はカンマ区切りのIPアドレスまたはCIDRを解析する。
// 単一アドレスはそのアドレスだけを含むプレフィックスになる。
func parseTrustedProxies(s string) ([]netip.Prefix, error) {
	var prefixes []netip.Prefix
	for _, field := range strings.Split(s, ",") {
		field = strings.TrimSpace(field)
		if field == "" {
			continue
		}
		if strings.Contains(field, "/") {
			p, err := netip.ParsePrefix(field)
			if err != nil {
				return nil, err
			}
			prefixes = append(prefixes, p.Masked())
			continue
		}
		addr, err := netip.ParseAddr(field)
		if err != nil {
			return nil, err
		}
		addr = addr.Unmap()
		prefixes = append(prefixes, netip.PrefixFrom(addr, addr.BitLen()))
	}
	return prefixes, nil
}
