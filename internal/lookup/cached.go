package lookup

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/John-Robertt/jusox/internal/domain"
)

// Store 是响应缓存的最小读写接口（文件 / Redis 两种实现见 infra/cache）。
type Store interface {
	Get(ctx context.Context, key string) ([]byte, bool, error)
	Set(ctx context.Context, key string, b []byte, ttl time.Duration) error
}

// CacheMetrics 接收缓存命中统计（可选）。
type CacheMetrics interface {
	CacheHit(op string)
	CacheMiss(op string)
}

// Cached 在 Client 外层加响应缓存。
//
// 规则：
// - 只缓存成功（errorCode=="0"）的响应；失败永不落缓存
// - 同 key 的并发调用合并为一次下游调用（singleflight）
// - 合并后的下游调用不随任一调用方取消；每个调用方只按自己的 ctx 放弃等待
// - 缓存读写失败只记日志，不影响查询本身
type Cached struct {
	next    Client
	store   Store
	ttl     time.Duration
	group   singleflight.Group
	metrics CacheMetrics
	logger  *slog.Logger
}

var _ Client = (*Cached)(nil)

// CachedOption 配置 Cached。
type CachedOption func(*Cached)

func WithCacheMetrics(m CacheMetrics) CachedOption {
	return func(c *Cached) { c.metrics = m }
}

func WithCacheLogger(l *slog.Logger) CachedOption {
	return func(c *Cached) { c.logger = l }
}

func NewCached(next Client, store Store, ttl time.Duration, opts ...CachedOption) *Cached {
	c := &Cached{
		next:   next,
		store:  store,
		ttl:    ttl,
		logger: slog.New(slog.NewTextHandler(io.Discard, nil)),
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

// ForwardSearch 先把关键词空白折叠，缓存键与实际下发的请求一致。
func (c *Cached) ForwardSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	req.Keyword = domain.CollapseSpace(req.Keyword)
	key := CacheKey("forward", string(req.Language), req.Keyword,
		fmt.Sprint(req.Page), fmt.Sprint(req.PageSize))
	return c.do(ctx, "forward", key, func(ctx context.Context) (SearchResult, error) {
		return c.next.ForwardSearch(ctx, req)
	})
}

func (c *Cached) DetailLookup(ctx context.Context, k domain.AdministrativeKey) (SearchResult, error) {
	key := CacheKey("detail", k.AdmCd, k.RnMgtSn, k.UdrtYn, k.BuldMnnm, k.BuldSlno)
	return c.do(ctx, "detail", key, func(ctx context.Context) (SearchResult, error) {
		return c.next.DetailLookup(ctx, k)
	})
}

type cachedResult struct {
	StatusCode    string          `json:"status_code"`
	StatusMessage string          `json:"status_message"`
	TotalCount    int             `json:"total_count"`
	Hits          []domain.RawHit `json:"hits"`
}

func (c *Cached) do(ctx context.Context, op, key string, call func(context.Context) (SearchResult, error)) (SearchResult, error) {
	if b, ok, err := c.store.Get(ctx, key); err != nil {
		c.logger.WarnContext(ctx, "lookup cache read failed", "op", op, "error", err)
	} else if ok {
		var cr cachedResult
		if e := json.Unmarshal(b, &cr); e == nil {
			c.hit(op)
			return SearchResult(cr), nil
		}
		// 坏缓存：忽略，走网络后覆盖。
	}
	c.miss(op)

	ch := c.group.DoChan(key, func() (any, error) {
		// 总时长由 HTTP 客户端超时约束。
		sctx := context.WithoutCancel(ctx)
		res, err := call(sctx)
		if err != nil {
			return res, err
		}
		if res.OK() {
			c.write(sctx, op, key, res)
		}
		return res, nil
	})

	select {
	case r := <-ch:
		res, _ := r.Val.(SearchResult)
		return res, r.Err
	case <-ctx.Done():
		return SearchResult{}, Classify(op, ctx.Err())
	}
}

func (c *Cached) write(ctx context.Context, op, key string, res SearchResult) {
	if rs, ok := c.store.(interface{ ReadOnly() bool }); ok && rs.ReadOnly() {
		return
	}
	b, err := json.Marshal(cachedResult(res))
	if err != nil {
		return
	}
	if err := c.store.Set(ctx, key, b, c.ttl); err != nil {
		c.logger.WarnContext(ctx, "lookup cache write failed", "op", op, "error", err)
	}
}

func (c *Cached) hit(op string) {
	if c.metrics != nil {
		c.metrics.CacheHit(op)
	}
}

func (c *Cached) miss(op string) {
	if c.metrics != nil {
		c.metrics.CacheMiss(op)
	}
}

// CacheKey 由 op 与参数生成稳定的缓存键（sha256 十六进制）。
func CacheKey(op string, parts ...string) string {
	h := sha256.New()
	h.Write([]byte(op))
	for _, p := range parts {
		h.Write([]byte{0})
		h.Write([]byte(strings.TrimSpace(p)))
	}
	return op + "-" + hex.EncodeToString(h.Sum(nil))
}
