// Package middleware はHTTPミドルウェアを提供する。
package middleware

import (
	"context"
	"net"
	"net/http"
	"net/netip"
	"strings"
)

// contextKey はコンテキストに値を格納するための型安全なキー。
type contextKey string

// clientKeyContextKey はリクエストコンテキストにクライアントキーを格納するためのキー。
var clientKeyContextKey = contextKey("client_key")

// NewClientKeyMiddleware はリクエスト元を識別するクライアントキーを
// リクエストコンテキストに注入するミドルウェアを返す。
// キーはRemoteAddrのホスト部分。RemoteAddrがtrustedProxiesに含まれる場合に限り
// X-Forwarded-Forの先頭ホップを使う。
// レート制限とアクセスログで使用する。
func NewClientKeyMiddleware(trustedProxies []netip.Prefix) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := ContextWithClientKey(r.Context(), clientKey(r, trustedProxies))
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// ClientKeyFromContext はリクエストコンテキストからクライアントキーを取得する。
// ミドルウェアを通過していない場合は空文字を返す。
func ClientKeyFromContext(ctx context.Context) string {
	key, _ := ctx.Value(clientKeyContextKey).(string)
	return key
}

// ContextWithClientKey はコンテキストにクライアントキーを注入する。
// テストやミドルウェア以外のコンテキスト生成で使用する。
func ContextWithClientKey(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, clientKeyContextKey, key)
}

func clientKey(r *http.Request, trustedProxies []netip.Prefix) string {
	host := remoteHost(r)
	if !isTrustedProxy(host, trustedProxies) {
		return host
	}
	if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
		first, _, _ := strings.Cut(xff, ",")
		if first = strings.TrimSpace(first); first != "" {
			return first
		}
	}
	return host
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func isTrustedProxy(host string, trustedProxies []netip.Prefix) bool {
	if len(trustedProxies) == 0 {
		return false
	}
	addr, err := netip.ParseAddr(host)
	if err != nil {
		return false
	}
	addr = addr.Unmap()
	for _, p := range trustedProxies {
		if p.Contains(addr) {
			return true
		}
	}
	return false
}
