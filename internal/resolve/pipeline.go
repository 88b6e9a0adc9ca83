// Package resolve 把一行自由文本地址解析为按相关度排序的候选地址。
//
// 流程（每条查询）：
//
//	forward search ──失败──▶ failed
//	      │ 0 条 ──────────▶ no_match
//	      ▼
//	detail 逐条精查 ──有候选──────────────┐
//	      │ 0 条                          │
//	      ▼                               ▼
//	二次关键词检索（前 3 条）──有候选──▶ 去重 / 打分 / 排序
//	      │ 0 条
//	      ▼
//	zip-only fallback（partial）或 no_match
package resolve

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/lookup"
	"github.com/John-Robertt/jusox/internal/schedule"
)

const (
	DefaultEnglishPageSize   = 7
	DefaultKoreanPageSize    = 10
	DefaultSecondaryPageSize = 5
	DefaultSecondaryHits     = 3

	minPageSize = 5
	maxPageSize = 10
)

// Options 是解析策略参数；零值字段取默认值。
type Options struct {
	DefaultLanguage   domain.Language
	EnglishPageSize   int
	KoreanPageSize    int
	SecondaryPageSize int
	SecondaryHits     int

	// DisableFallback 为 true 时不产出 zip-only 候选，直接 no_match。
	DisableFallback bool
}

func (o Options) withDefaults() Options {
	if o.DefaultLanguage == "" {
		o.DefaultLanguage = domain.LanguageEnglish
	}
	o.EnglishPageSize = clampPage(o.EnglishPageSize, DefaultEnglishPageSize)
	o.KoreanPageSize = clampPage(o.KoreanPageSize, DefaultKoreanPageSize)
	o.SecondaryPageSize = clampPage(o.SecondaryPageSize, DefaultSecondaryPageSize)
	if o.SecondaryHits <= 0 {
		o.SecondaryHits = DefaultSecondaryHits
	}
	return o
}

func clampPage(n, def int) int {
	if n == 0 {
		return def
	}
	return max(minPageSize, min(maxPageSize, n))
}

// Metrics 接收解析过程的统计（可选）。
type Metrics interface {
	lookup.CacheMetrics
	ObserveLookup(op, result string, d time.Duration)
	ObserveResolution(outcome string, d time.Duration)
}

type Option func(*Pipeline)

func WithLogger(l *slog.Logger) Option {
	return func(p *Pipeline) {
		if l != nil {
			p.logger = l
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(p *Pipeline) { p.metrics = m }
}

func WithTracer(t trace.Tracer) Option {
	return func(p *Pipeline) {
		if t != nil {
			p.tracer = t
		}
	}
}

// WithCache 在调度器外层加响应缓存：命中时不占用调度槽位。
func WithCache(store lookup.Store, ttl time.Duration) Option {
	return func(p *Pipeline) {
		p.cacheStore = store
		p.cacheTTL = ttl
	}
}

// Pipeline 可被多个 goroutine 并发使用；唯一的共享可变状态在 Scheduler 内部。
type Pipeline struct {
	client lookup.Client
	opts   Options

	logger  *slog.Logger
	metrics Metrics
	tracer  trace.Tracer

	cacheStore lookup.Store
	cacheTTL   time.Duration
}

// New 组装 Cached(Scheduled(client))。sched 由调用方持有并在整个进程内共享。
func New(client lookup.Client, sched *schedule.Scheduler, opts Options, options ...Option) *Pipeline {
	p := &Pipeline{
		opts:   opts.withDefaults(),
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
		tracer: otel.Tracer("github.com/John-Robertt/jusox/internal/resolve"),
	}
	for _, o := range options {
		o(p)
	}

	var c lookup.Client = lookup.NewScheduled(client, sched)
	if p.cacheStore != nil {
		copts := []lookup.CachedOption{lookup.WithCacheLogger(p.logger)}
		if p.metrics != nil {
			copts = append(copts, lookup.WithCacheMetrics(p.metrics))
		}
		c = lookup.NewCached(c, p.cacheStore, p.cacheTTL, copts...)
	}
	p.client = c
	return p
}

// Options 返回生效的（已套默认值的）策略参数。
func (p *Pipeline) Options() Options { return p.opts }

// Resolve 解析一行输入。从不 panic、从不返回 error：所有失败都编码在结果里。
func (p *Pipeline) Resolve(ctx context.Context, line string, lang domain.Language) (res domain.ResolutionResult) {
	start := time.Now()
	q := domain.Query{Text: strings.TrimSpace(line), Language: lang}
	if q.Language == "" {
		q.Language = p.opts.DefaultLanguage
	}

	ctx, span := p.tracer.Start(ctx, "resolve.Resolve", trace.WithAttributes(
		attribute.String("language", string(q.Language)),
	))
	defer func() {
		if r := recover(); r != nil {
			res = failed(q, domain.ErrCodeInternal, fmt.Errorf("panic: %v", r), res.Attempts)
		}
		span.SetAttributes(
			attribute.String("outcome", res.Outcome),
			attribute.Int("candidates", len(res.Candidates)),
		)
		if res.Outcome == domain.OutcomeFailed {
			span.SetStatus(codes.Error, res.ErrorCode)
		}
		span.End()
		if p.metrics != nil {
			p.metrics.ObserveResolution(res.Outcome, time.Since(start))
		}
	}()

	return p.resolve(ctx, q)
}

func (p *Pipeline) resolve(ctx context.Context, q domain.Query) domain.ResolutionResult {
	res := domain.ResolutionResult{Query: q.Text, Language: q.Language, Candidates: []domain.Candidate{}}
	if q.Text == "" {
		res.Outcome = domain.OutcomeNoMatch
		res.Note = domain.NoteNoMatch
		return res
	}

	// Stage 1
	hits, err := p.forward(ctx, q, &res.Attempts)
	if err != nil {
		return failed(q, lookup.ErrorCode(err), err, res.Attempts)
	}
	if len(hits) == 0 {
		res.Outcome = domain.OutcomeNoMatch
		res.Note = domain.NoteNoMatch
		return res
	}

	// Stage 2
	cands := p.refine(ctx, hits, &res.Attempts)

	// Stage 3
	if len(cands) == 0 {
		cands = p.secondary(ctx, hits, &res.Attempts)
	}

	// 调用方已放弃：不再产出降级结果。
	if err := ctx.Err(); err != nil && len(cands) == 0 {
		return failed(q, lookup.ErrorCode(err), err, res.Attempts)
	}

	if len(cands) == 0 {
		zip := strings.TrimSpace(hits[0].ZipNo)
		if p.opts.DisableFallback || zip == "" {
			res.Outcome = domain.OutcomeNoMatch
			res.Note = domain.NoteNoMatch
			return res
		}
		c := domain.Candidate{ZipNo: domain.ZipStr(zip), Source: domain.SourceFallback}
		c.Score = Score(c, q.Text)
		res.Candidates = []domain.Candidate{c}
		res.Best = &res.Candidates[0]
		res.Outcome = domain.OutcomePartial
		res.Note = domain.NoteFallbackZipOnly
		return res
	}

	// Stage 4
	_, span := p.tracer.Start(ctx, "resolve.rank")
	ranked := Rank(cands, q.Text)
	span.SetAttributes(attribute.Int("candidates", len(ranked)))
	span.End()

	res.Candidates = ranked
	best := ranked[0]
	res.Best = &best
	res.Outcome = domain.OutcomeResolved
	if len(ranked) > 1 {
		res.Note = domain.MultipleMatchesNote(len(ranked))
	}
	return res
}

func (p *Pipeline) forward(ctx context.Context, q domain.Query, attempts *[]domain.Attempt) ([]domain.RawHit, error) {
	ctx, span := p.tracer.Start(ctx, "resolve.forward")
	defer span.End()

	size := p.opts.KoreanPageSize
	if q.Language == domain.LanguageEnglish {
		size = p.opts.EnglishPageSize
	}
	r, err := p.search(ctx, "forward", lookup.SearchRequest{Keyword: q.Text, Page: 1, PageSize: size, Language: q.Language})
	*attempts = append(*attempts, attempt("forward", q.Text, r, err))
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, lookup.ErrorCode(err))
		p.logger.InfoContext(ctx, "forward search failed", "query", q.Text, "error", err)
		return nil, err
	}
	span.SetAttributes(attribute.Int("hits", len(r.Hits)))
	return r.Hits, nil
}

// refine 对每条带可用行政键的命中逐条做 detail 精查；单条失败只记录，不中断。
func (p *Pipeline) refine(ctx context.Context, hits []domain.RawHit, attempts *[]domain.Attempt) []domain.Candidate {
	ctx, span := p.tracer.Start(ctx, "resolve.detail")
	defer span.End()

	var out []domain.Candidate
	for _, h := range hits {
		key := h.Key()
		if !key.Usable() {
			continue
		}
		if ctx.Err() != nil {
			break
		}
		start := time.Now()
		r, err := p.client.DetailLookup(ctx, key)
		p.observe("detail", err, start)
		*attempts = append(*attempts, attempt("detail", key.AdmCd+"/"+key.RnMgtSn+"/"+key.BuldMnnm, r, err))
		if err != nil {
			p.logger.DebugContext(ctx, "detail lookup failed", "adm_cd", key.AdmCd, "rn_mgt_sn", key.RnMgtSn, "error", err)
			continue
		}
		if len(r.Hits) == 0 {
			continue
		}
		out = append(out, detailCandidate(r.Hits[0], h))
	}
	span.SetAttributes(attribute.Int("candidates", len(out)))
	return out
}

// detailCandidate 以 detail 记录为准；detail 缺的字段用 forward 命中补齐。
func detailCandidate(d, from domain.RawHit) domain.Candidate {
	if strings.TrimSpace(d.RoadAddr) == "" {
		d.RoadAddr = from.RoadAddr
	}
	if strings.TrimSpace(d.JibunAddr) == "" {
		d.JibunAddr = from.JibunAddr
	}
	if strings.TrimSpace(d.ZipNo) == "" {
		d.ZipNo = from.ZipNo
	}
	if strings.TrimSpace(d.BuldMnnm) == "" {
		d.BuldMnnm, d.BuldSlno = from.BuldMnnm, from.BuldSlno
	}
	return domain.CandidateFromHit(d, domain.SourceDetail)
}

func (p *Pipeline) secondary(ctx context.Context, hits []domain.RawHit, attempts *[]domain.Attempt) []domain.Candidate {
	ctx, span := p.tracer.Start(ctx, "resolve.secondary")
	defer span.End()

	var out []domain.Candidate
	for i, h := range hits {
		if i >= p.opts.SecondaryHits || ctx.Err() != nil {
			break
		}
		kw := SecondaryKeyword(h)
		if kw == "" {
			continue
		}
		r, err := p.search(ctx, "secondary", lookup.SearchRequest{
			Keyword: kw, Page: 1, PageSize: p.opts.SecondaryPageSize, Language: domain.LanguageKorean,
		})
		*attempts = append(*attempts, attempt("secondary", kw, r, err))
		if err != nil {
			p.logger.DebugContext(ctx, "secondary search failed", "keyword", kw, "error", err)
			continue
		}
		for _, sh := range r.Hits {
			out = append(out, domain.CandidateFromHit(sh, domain.SourceSecondarySearch))
		}
	}
	span.SetAttributes(attribute.Int("candidates", len(out)))
	return out
}

func (p *Pipeline) search(ctx context.Context, op string, req lookup.SearchRequest) (lookup.SearchResult, error) {
	start := time.Now()
	r, err := p.client.ForwardSearch(ctx, req)
	p.observe(op, err, start)
	return r, err
}

func (p *Pipeline) observe(op string, err error, start time.Time) {
	if p.metrics == nil {
		return
	}
	result := "ok"
	if err != nil {
		result = lookup.ErrorCode(err)
	}
	p.metrics.ObserveLookup(op, result, time.Since(start))
}

func attempt(stage, keyword string, r lookup.SearchResult, err error) domain.Attempt {
	a := domain.Attempt{Stage: stage, Keyword: keyword, Hits: len(r.Hits)}
	if err != nil {
		a.ErrorCode = lookup.ErrorCode(err)
		a.ErrorMsg = err.Error()
	}
	return a
}

func failed(q domain.Query, code string, err error, attempts []domain.Attempt) domain.ResolutionResult {
	return domain.ResolutionResult{
		Query:      q.Text,
		Language:   q.Language,
		Candidates: []domain.Candidate{},
		Outcome:    domain.OutcomeFailed,
		Note:       domain.NoteError,
		ErrorCode:  code,
		ErrorMsg:   err.Error(),
		Err:        err,
		Attempts:   attempts,
	}
}
