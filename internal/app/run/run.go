package run

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/John-Robertt/jusox/internal/config"
	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/lookup"
)

// Resolver 是 BatchRunner 对解析流水线的全部依赖（*resolve.Pipeline 满足该接口）。
type Resolver interface {
	Resolve(ctx context.Context, line string, lang domain.Language) domain.ResolutionResult
}

// Execute 解析一批输入行，并返回对外稳定的 RunReport。
// 单行失败只影响该行；批次本身总能完成。
func Execute(ctx context.Context, eff config.EffectiveConfig, res Resolver, lines []string) domain.RunReport {
	return ExecuteWithObserver(ctx, eff, res, lines, nil)
}

// ExecuteWithObserver 与 Execute 相同，但允许传入 Observer 以输出进度/阶段信息（由上层决定是否启用）。
func ExecuteWithObserver(ctx context.Context, eff config.EffectiveConfig, res Resolver, lines []string, obs Observer) domain.RunReport {
	started := time.Now().UTC()

	if obs != nil {
		obs.OnStart(eff)
	}

	rr := domain.RunReport{
		RunID:     uuid.NewString(),
		Language:  eff.Language,
		StartedAt: started,
	}

	inputStarted := time.Now()
	queries := cleanLines(lines)
	if obs != nil {
		obs.OnPhaseDone("input", map[string]any{
			"lines":   len(queries),
			"dropped": len(lines) - len(queries),
		}, time.Since(inputStarted))
	}

	workers := eff.Workers
	if workers < 1 {
		workers = 1
	}
	if obs != nil {
		obs.OnPhaseDone("exec", map[string]any{
			"workers": workers,
			"total":   len(queries),
		}, 0)
	}

	// 按 index 落位：完成顺序不可依赖。
	rows := make([]domain.Row, len(queries))
	var done atomic.Int64

	var g errgroup.Group
	g.SetLimit(workers)
	for i, q := range queries {
		g.Go(func() error {
			oneStarted := time.Now()
			row := resolveOne(ctx, res, i+1, q, eff.Language)
			rows[i] = row
			if obs != nil {
				obs.OnItemDone(int(done.Add(1)), len(queries), row, time.Since(oneStarted))
			}
			return nil
		})
	}
	_ = g.Wait()

	rr.Rows = rows
	rr.FinishedAt = time.Now().UTC()
	rr.Finalize()
	return rr
}

// cleanLines 去掉首尾空白并丢弃空行；保留下来的行按出现顺序从 1 编号。
func cleanLines(lines []string) []string {
	out := make([]string, 0, len(lines))
	for _, l := range lines {
		if l = strings.TrimSpace(l); l != "" {
			out = append(out, l)
		}
	}
	return out
}

func resolveOne(ctx context.Context, res Resolver, index int, line string, lang domain.Language) (row domain.Row) {
	defer func() {
		// Resolver 实现约定不 panic；这里兜底，保证批次完成。
		if r := recover(); r != nil {
			row = domain.RowFromResult(index, line, domain.ResolutionResult{
				Outcome:   domain.OutcomeFailed,
				ErrorCode: domain.ErrCodeInternal,
				ErrorMsg:  fmt.Sprintf("panic: %v", r),
			})
		}
	}()

	result := res.Resolve(ctx, line, lang)
	row = domain.RowFromResult(index, line, result)
	if result.Outcome == domain.OutcomeFailed && result.Err != nil {
		row.ErrorMsg = humanizeLookupError(result.Err)
	}
	return row
}

// humanizeLookupError 把注册表调用失败翻译为可操作的提示（进入报告的 error_msg）。
func humanizeLookupError(err error) string {
	if err == nil {
		return "地址检索失败"
	}
	if errors.Is(err, context.Canceled) {
		return "已取消（收到中断信号或调用方断开）"
	}

	var le *lookup.Error
	if errors.As(err, &le) && le.Kind == lookup.KindAPI {
		switch le.Code {
		case "E0001":
			return fmt.Sprintf("注册表拒绝了 confmKey（%s：%s）。请检查 keys.kor / keys.eng 或环境变量 JUSO_KOR_KEY / JUSO_ENG_KEY。", le.Code, le.Message)
		default:
			return fmt.Sprintf("注册表返回错误 %s：%s", le.Code, le.Message)
		}
	}

	// HTTP 非 2xx：尽量给出可操作提示（限流/拦截是最常见问题）。
	var hs *lookup.HTTPStatusError
	if errors.As(err, &hs) {
		switch {
		case hs.StatusCode == 403 || hs.StatusCode == 429:
			return fmt.Sprintf("注册表返回 HTTP %d（可能触发限流/拦截）。建议调大 rate.min_interval_ms、降低 rate.concurrency，或配置 proxy.url。", hs.StatusCode)
		case hs.StatusCode >= 500:
			return fmt.Sprintf("注册表返回 HTTP %d（服务端异常）。请稍后重试。", hs.StatusCode)
		default:
			return fmt.Sprintf("注册表返回 HTTP %d。", hs.StatusCode)
		}
	}

	low := strings.ToLower(err.Error())
	if lookup.KindOf(err) == lookup.KindTimeout || strings.Contains(low, "timeout") {
		return "注册表请求超时。建议检查网络/代理，或调大 api.timeout 后重试。"
	}
	if strings.Contains(low, "tls") || strings.Contains(low, "handshake") || strings.Contains(low, "x509") {
		return "连接注册表失败（TLS/SSL 握手异常）。建议检查系统证书或配置 proxy.url。"
	}
	return fmt.Sprintf("地址检索失败：%v", err)
}
