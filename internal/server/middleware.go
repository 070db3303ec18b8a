package server

import (
	"context"
	"log/slog"
	"net"
	"net/http"

	"github.com/google/uuid"
)

type contextKey string

const (
	contextRequestIDKey contextKey = "request_id"
	contextClientIPKey  contextKey = "client_ip"
)

// RequestIDMiddleware tags every request with a generated id and logs the
// request line with it.
func RequestIDMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		reqID := uuid.New().String()
		ctx := context.WithValue(r.Context(), contextRequestIDKey, reqID)
		slog.Info("incoming request",
			slog.String("req_id", reqID),
			slog.String("method", r.Method),
			slog.String("path", r.URL.Path),
			slog.String("ip", clientIP(ctx)))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// ClientIPMiddleware resolves the caller's address. Behind Cloudflare the
// connecting peer is an edge node, so the toggle switches resolution to
// the CF-Connecting-IP header.
func ClientIPMiddleware(cloudflare bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ip := ""
			if cloudflare {
				ip = r.Header.Get("CF-Connecting-IP")
			}
			if ip == "" {
				host, _, err := net.SplitHostPort(r.RemoteAddr)
				if err != nil {
					host = r.RemoteAddr
				}
				ip = host
			}
			ctx := context.WithValue(r.Context(), contextClientIPKey, ip)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

func clientIP(ctx context.Context) string {
	ip, _ := ctx.Value(contextClientIPKey).(string)
	return ip
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(contextRequestIDKey).(string)
	return id
}
