// Package server 以 HTTP/JSON 暴露地址解析：单条查询、批量查询、健康检查与指标。
package server

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	"github.com/John-Robertt/jusox/internal/app/run"
	"github.com/John-Robertt/jusox/internal/config"
	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/metrics"
)

const (
	// MaxBatchLines 限制单次 /v1/batch 的行数；更大的批次请走 CLI。
	MaxBatchLines = 1000
	maxBodyBytes  = 4 << 20

	shutdownTimeout = 10 * time.Second
)

// HealthFunc 用于 /healthz 检查外部依赖（例如 Redis 缓存）。
type HealthFunc func(ctx context.Context) error

type Option func(*Server)

func WithLogger(l *slog.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

func WithMetrics(m *metrics.Metrics) Option {
	return func(s *Server) { s.metrics = m }
}

func WithHealth(f HealthFunc) Option {
	return func(s *Server) { s.health = f }
}

// Server 持有解析流水线与生效配置；所有请求共享同一个调度器。
type Server struct {
	res     run.Resolver
	eff     config.EffectiveConfig
	logger  *slog.Logger
	metrics *metrics.Metrics
	health  HealthFunc
}

func New(res run.Resolver, eff config.EffectiveConfig, opts ...Option) *Server {
	s := &Server{
		res:    res,
		eff:    eff,
		logger: slog.Default(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// Routes 构建路由。
func (s *Server) Routes() http.Handler {
	r := chi.NewRouter()
	r.Use(chimw.RealIP)
	r.Use(requestID)
	r.Use(s.accessLog)
	r.Use(chimw.Recoverer)

	r.Get("/healthz", s.handleHealth)
	if s.metrics != nil {
		r.Method(http.MethodGet, "/metrics", s.metrics.Handler())
	}
	r.Route("/v1", func(r chi.Router) {
		r.Get("/resolve", s.handleResolve)
		r.Post("/batch", s.handleBatch)
	})
	return r
}

// ListenAndServe 监听 addr，直到 ctx 结束后优雅退出。
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s.Routes(),
		ReadHeaderTimeout: 5 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("http server listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	s.logger.Info("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return err
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if s.health != nil {
		if err := s.health(r.Context()); err != nil {
			s.logger.WarnContext(r.Context(), "health check failed", "error", err)
			writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "degraded", "error": err.Error()})
			return
		}
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (s *Server) handleResolve(w http.ResponseWriter, r *http.Request) {
	q := strings.TrimSpace(r.URL.Query().Get("q"))
	if q == "" {
		writeError(w, http.StatusBadRequest, "missing_query", "缺少查询参数 q")
		return
	}
	lang, err := s.language(r.URL.Query().Get("lang"))
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_language", err.Error())
		return
	}

	res := s.res.Resolve(r.Context(), q, lang)
	writeJSON(w, http.StatusOK, res)
}

// BatchRequest 是 POST /v1/batch 的请求体。
type BatchRequest struct {
	Lines    []string `json:"lines"`
	Language string   `json:"language"`
}

func (s *Server) handleBatch(w http.ResponseWriter, r *http.Request) {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()

	var req BatchRequest
	if err := dec.Decode(&req); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			writeError(w, http.StatusRequestEntityTooLarge, "body_too_large", "请求体过大")
			return
		}
		writeError(w, http.StatusBadRequest, "invalid_json", "请求体不是合法 JSON："+err.Error())
		return
	}
	if len(req.Lines) == 0 {
		writeError(w, http.StatusBadRequest, "empty_batch", "lines 不能为空")
		return
	}
	if len(req.Lines) > MaxBatchLines {
		writeError(w, http.StatusRequestEntityTooLarge, "batch_too_large", "单次最多 1000 行")
		return
	}
	lang, err := s.language(req.Language)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid_language", err.Error())
		return
	}

	eff := s.eff
	eff.Language = lang
	rr := run.Execute(r.Context(), eff, s.res, req.Lines)
	rr.Input = "api"
	writeJSON(w, http.StatusOK, rr)
}

// language 解析请求中的语言提示；为空时使用配置默认值。
func (s *Server) language(raw string) (domain.Language, error) {
	lang, err := domain.ParseLanguage(raw)
	if err != nil {
		return "", err
	}
	if lang == "" {
		lang = s.eff.Language
	}
	return lang, nil
}

type errorBody struct {
	Error   string `json:"error"`
	Message string `json:"message"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	writeJSON(w, status, errorBody{Error: code, Message: msg})
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
