package server

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"
	"github.com/google/uuid"
	"github.com/mssola/useragent"
)

// HeaderRequestID 会被透传：客户端给了就沿用，否则生成 uuid。
const HeaderRequestID = "X-Request-ID"

type contextKeyRequestID struct{}

// RequestID 从 ctx 中取出请求 ID。
func RequestID(ctx context.Context) string {
	if id, ok := ctx.Value(contextKeyRequestID{}).(string); ok {
		return id
	}
	return ""
}

func requestID(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		id := strings.TrimSpace(r.Header.Get(HeaderRequestID))
		if id == "" || len(id) > 128 {
			id = uuid.NewString()
		}
		w.Header().Set(HeaderRequestID, id)
		ctx := context.WithValue(r.Context(), contextKeyRequestID{}, id)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// accessLog 记录每个请求，并按路由模板计数（避免把查询串打进指标标签）。
func (s *Server) accessLog(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		ww := chimw.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := routePattern(r)
		if s.metrics != nil {
			s.metrics.ObserveHTTP(route, status)
		}

		level := slog.LevelInfo
		if status >= 500 {
			level = slog.LevelError
		}
		attrs := []slog.Attr{
			slog.String("request_id", RequestID(r.Context())),
			slog.String("method", r.Method),
			slog.String("route", route),
			slog.Int("status", status),
			slog.Int("bytes", ww.BytesWritten()),
			slog.String("remote", r.RemoteAddr),
			slog.Int64("duration_ms", time.Since(start).Milliseconds()),
		}
		attrs = append(attrs, clientAttrs(r.UserAgent())...)
		s.logger.LogAttrs(r.Context(), level, "http request", attrs...)
	})
}

func routePattern(r *http.Request) string {
	if rc := chi.RouteContext(r.Context()); rc != nil {
		if p := rc.RoutePattern(); p != "" {
			return p
		}
	}
	return "unmatched"
}

// clientAttrs 把 User-Agent 拆成浏览器/系统，便于区分脚本调用与人工调用。
func clientAttrs(raw string) []slog.Attr {
	if raw == "" {
		return nil
	}
	ua := useragent.New(raw)
	name, version := ua.Browser()
	attrs := []slog.Attr{
		slog.String("ua_browser", strings.TrimSpace(name+" "+version)),
		slog.Bool("ua_bot", ua.Bot()),
	}
	if osName := ua.OS(); osName != "" {
		attrs = append(attrs, slog.String("ua_os", osName))
	}
	return attrs
}
