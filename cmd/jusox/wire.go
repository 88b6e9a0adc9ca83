package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"

	"go.opentelemetry.io/otel"

	"github.com/John-Robertt/jusox/internal/config"
	"github.com/John-Robertt/jusox/internal/infra/cache"
	"github.com/John-Robertt/jusox/internal/infra/httpx"
	"github.com/John-Robertt/jusox/internal/lookup"
	"github.com/John-Robertt/jusox/internal/lookup/juso"
	"github.com/John-Robertt/jusox/internal/metrics"
	"github.com/John-Robertt/jusox/internal/resolve"
	"github.com/John-Robertt/jusox/internal/schedule"
)

// stack 是一次进程内共享的组件集合：一个调度器、一个（可选的）缓存、一条流水线。
type stack struct {
	pipeline *resolve.Pipeline
	sched    *schedule.Scheduler
	redis    *cache.RedisStore
}

func (s *stack) Close() {
	if s.redis != nil {
		_ = s.redis.Close()
	}
}

// health 只在使用 Redis 缓存时有意义；文件缓存与无缓存总是健康。
func (s *stack) health(ctx context.Context) error {
	if s.redis == nil {
		return nil
	}
	return s.redis.Health(ctx)
}

func buildStack(ctx context.Context, eff config.EffectiveConfig, logger *slog.Logger, m *metrics.Metrics) (*stack, error) {
	hc, err := httpx.NewClient(httpx.Options{
		ProxyURL: eff.ProxyURL,
		Timeout:  eff.Timeout,
		RetryMax: eff.RetryMax,
	})
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: fmt.Errorf("proxy.url 无效：%w", err)}
	}

	client, err := juso.New(juso.Config{
		BaseURL: eff.BaseURL,
		KorKey:  eff.KorKey,
		EngKey:  eff.EngKey,
	}, hc)
	if err != nil {
		return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: err}
	}

	schedOpts := []schedule.Option{}
	popts := []resolve.Option{
		resolve.WithLogger(logger),
		resolve.WithTracer(otel.Tracer("github.com/John-Robertt/jusox")),
	}
	if m != nil {
		schedOpts = append(schedOpts, schedule.WithMetrics(m))
		popts = append(popts, resolve.WithMetrics(m))
	}
	sched := schedule.New(eff.Concurrency, eff.MinInterval, schedOpts...)

	st := &stack{sched: sched}
	var store lookup.Store
	switch {
	case eff.CacheRedisURL != "":
		rs, err := cache.NewRedisStore(ctx, eff.CacheRedisURL, eff.CacheReadOnly)
		if err != nil {
			return nil, &config.Error{Code: config.ErrCodeInvalid, Path: eff.ConfigPath, Err: fmt.Errorf("连接 cache.redis_url 失败：%w", err)}
		}
		st.redis = rs
		store = rs
	case eff.CacheDir != "":
		store = cache.NewFileStore(eff.CacheDir, eff.CacheReadOnly)
	}
	if store != nil {
		popts = append(popts, resolve.WithCache(store, eff.CacheTTL))
	}

	st.pipeline = resolve.New(client, sched, resolve.Options{
		DefaultLanguage: eff.Language,
		EnglishPageSize: eff.EnglishPageSize,
		KoreanPageSize:  eff.KoreanPageSize,
		DisableFallback: !eff.FallbackZipOnly,
	}, popts...)
	return st, nil
}

// newLogger 按配置构造 slog；level 为空时使用 def。
func newLogger(w io.Writer, level, format string, def slog.Level) *slog.Logger {
	if w == nil {
		w = os.Stderr
	}
	lv := def
	switch strings.ToLower(level) {
	case "debug":
		lv = slog.LevelDebug
	case "info":
		lv = slog.LevelInfo
	case "warn":
		lv = slog.LevelWarn
	case "error":
		lv = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: lv}
	if format == "json" {
		return slog.New(slog.NewJSONHandler(w, opts))
	}
	return slog.New(slog.NewTextHandler(w, opts))
}
