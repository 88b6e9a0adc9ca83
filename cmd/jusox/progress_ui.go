package main

import (
	"fmt"
	"io"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/John-Robertt/jusox/internal/app/run"
	"github.com/John-Robertt/jusox/internal/config"
	"github.com/John-Robertt/jusox/internal/domain"
)

var _ run.Observer = (*progressUI)(nil)

// progressUI 是一个“简洁版”的交互终端进度输出。
//
// 设计目标：
// - 所有过程信息写到 stderr（或 fallback 到 stdout），不污染 stdout 的 JSON 输出契约
// - 事件驱动：run 层只发事件，CLI 决定如何展示
// - keepalive：长时间无条目完成时也会定期输出一行，降低等待焦虑
type progressUI struct {
	w io.Writer

	mu          sync.Mutex
	startedAt   time.Time
	lastPrinted time.Time

	workers int
	total   int
	done    int
	ok      int
	warn    int
	fail    int

	styles statusStyles

	keepaliveThreshold time.Duration
	tickerInterval     time.Duration

	stopCh        chan struct{}
	tickerStarted bool
}

// statusStyles 按输出目标探测配色能力；非终端时退化为纯文本。
type statusStyles struct {
	ok, warn, err, dim lipgloss.Style
}

func newStatusStyles(w io.Writer) statusStyles {
	r := lipgloss.NewRenderer(w)
	return statusStyles{
		ok:   r.NewStyle().Foreground(lipgloss.Color("2")).Bold(true),
		warn: r.NewStyle().Foreground(lipgloss.Color("3")).Bold(true),
		err:  r.NewStyle().Foreground(lipgloss.Color("1")).Bold(true),
		dim:  r.NewStyle().Faint(true),
	}
}

func newProgressUI(w io.Writer) *progressUI {
	return &progressUI{
		w:                  w,
		styles:             newStatusStyles(w),
		keepaliveThreshold: 6 * time.Second,
		tickerInterval:     2 * time.Second,
	}
}

func (p *progressUI) OnStart(eff config.EffectiveConfig) {
	now := time.Now()

	p.mu.Lock()
	if p.startedAt.IsZero() {
		p.startedAt = now
	}

	fmt.Fprintf(p.w, "[%s] jusox run\n", now.Format("15:04:05"))
	fmt.Fprintln(p.w, "配置（生效）:")
	if eff.ConfigFound {
		fmt.Fprintf(p.w, "  config: %s\n", eff.ConfigPath)
	} else {
		fmt.Fprintln(p.w, "  config: (未找到，使用默认值与环境变量)")
	}
	fmt.Fprintf(p.w, "  language: %s\n", eff.Language)
	fmt.Fprintf(p.w, "  api: %s (timeout=%s retry=%d)\n", truncate(eff.BaseURL, 120), eff.Timeout, eff.RetryMax)
	fmt.Fprintf(p.w, "  rate: concurrency=%d min_interval=%s\n", eff.Concurrency, eff.MinInterval)
	fmt.Fprintf(p.w, "  workers: %d\n", eff.Workers)
	fmt.Fprintf(p.w, "  page_size: english=%d korean=%d\n", eff.EnglishPageSize, eff.KoreanPageSize)
	fmt.Fprintf(p.w, "  fallback_zip_only: %s\n", onOff(eff.FallbackZipOnly))
	fmt.Fprintf(p.w, "  proxy: %s\n", formatProxy(eff.ProxyURL))
	fmt.Fprintf(p.w, "  cache: %s\n", formatCache(eff))
	fmt.Fprintln(p.w)

	p.lastPrinted = time.Now()
	p.mu.Unlock()
}

func (p *progressUI) OnPhaseDone(name string, fields map[string]any, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	switch name {
	case "input":
		fmt.Fprintf(p.w, "输入: lines=%d dropped=%d (%s)\n",
			intField(fields, "lines"), intField(fields, "dropped"), formatShortDuration(dur),
		)
	case "exec":
		p.workers = intField(fields, "workers")
		p.total = intField(fields, "total")
		fmt.Fprintf(p.w, "执行: workers=%d total=%d\n\n", p.workers, p.total)
		if p.total > 0 && !p.tickerStarted {
			p.startTickerLocked()
		}
	default:
		// 兜底：未知阶段也不要静默（便于调试/演进）。
		fmt.Fprintf(p.w, "%s (%s)\n", name, formatShortDuration(dur))
	}

	p.lastPrinted = time.Now()
}

func (p *progressUI) OnItemDone(idx, total int, row domain.Row, dur time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	// idx/total 由 run 层给出；这里同时维护自己的计数，供 keepalive 使用。
	p.done = idx
	p.total = total

	switch row.Status {
	case domain.StatusOK:
		p.ok++
	case domain.StatusWarn:
		p.warn++
	case domain.StatusErr:
		p.fail++
	}

	fmt.Fprintf(p.w, "[%d/%d] #%d %s %s %s\n",
		idx, total, row.Index, p.statusLabel(row.Status), formatRow(row), p.styles.dim.Render("("+formatShortDuration(dur)+")"),
	)

	p.lastPrinted = time.Now()

	// 最后一条完成：停止 ticker，避免在结束打印后又冒出 keepalive。
	if p.tickerStarted && p.done >= p.total {
		close(p.stopCh)
		p.tickerStarted = false
	}
}

func (p *progressUI) OnProgress(done, total, ok, warn, fail, active int, elapsed time.Duration) {
	p.mu.Lock()
	defer p.mu.Unlock()

	fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d warn=%d err=%d active=%d elapsed=%s\n",
		done, total, ok, warn, fail, active, formatElapsed(elapsed),
	)
	p.lastPrinted = time.Now()
}

func (p *progressUI) statusLabel(status string) string {
	switch status {
	case domain.StatusOK:
		return p.styles.ok.Render("OK")
	case domain.StatusWarn:
		return p.styles.warn.Render("WARN")
	default:
		return p.styles.err.Render("ERR")
	}
}

func (p *progressUI) startTickerLocked() {
	p.stopCh = make(chan struct{})
	p.tickerStarted = true

	interval := p.tickerInterval
	if interval <= 0 {
		interval = 2 * time.Second
	}
	threshold := p.keepaliveThreshold
	if threshold <= 0 {
		threshold = 6 * time.Second
	}
	stopCh := p.stopCh

	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()

		for {
			select {
			case <-t.C:
				p.mu.Lock()
				// 已完成：安全退出（OnItemDone 会 close stopCh，但这里也做兜底）。
				if p.total > 0 && p.done >= p.total {
					p.mu.Unlock()
					return
				}
				if p.total > 0 && time.Since(p.lastPrinted) > threshold {
					active := min(p.workers, p.total-p.done)
					fmt.Fprintf(p.w, "进度: done=%d/%d ok=%d warn=%d err=%d active=%d elapsed=%s\n",
						p.done, p.total, p.ok, p.warn, p.fail, active, formatElapsed(time.Since(p.startedAt)),
					)
					p.lastPrinted = time.Now()
				}
				p.mu.Unlock()
			case <-stopCh:
				return
			}
		}
	}()
}

// formatRow 生成单行结果摘要：成功行显示地址与邮编，失败行显示错误码与提示。
func formatRow(row domain.Row) string {
	switch {
	case row.Status == domain.StatusErr && row.ErrorCode != "":
		return fmt.Sprintf("%s %s: %s", truncate(row.Input, 60), row.ErrorCode, truncate(row.ErrorMsg, 160))
	case row.Status == domain.StatusErr:
		return fmt.Sprintf("%s %s", truncate(row.Input, 60), row.Note)
	}

	s := fmt.Sprintf("%s -> %s [%s]", truncate(row.Input, 60), truncate(row.MatchedAddress, 100), row.PostalCode)
	if row.MatchedAddress == "" {
		s = fmt.Sprintf("%s -> [%s]", truncate(row.Input, 60), row.PostalCode)
	}
	if row.Source != "" {
		s += " source=" + string(row.Source)
	}
	if row.Note != "" {
		s += " note=" + row.Note
	}
	return s
}

func onOff(v bool) string {
	if v {
		return "on"
	}
	return "off"
}

func formatProxy(raw string) string {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "off"
	}
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return "on (" + truncate(raw, 120) + ")"
	}
	auth := "off"
	if u.User != nil {
		auth = "on"
	}
	return fmt.Sprintf("on (%s://%s, auth=%s)", u.Scheme, u.Host, auth)
}

func formatCache(eff config.EffectiveConfig) string {
	mode := ""
	if eff.CacheReadOnly {
		mode = ", read-only"
	}
	switch {
	case eff.CacheRedisURL != "":
		u, err := url.Parse(eff.CacheRedisURL)
		if err != nil {
			return "redis" + mode
		}
		return fmt.Sprintf("redis (%s, ttl=%s%s)", u.Host, eff.CacheTTL, mode)
	case eff.CacheDir != "":
		return fmt.Sprintf("dir (%s, ttl=%s%s)", eff.CacheDir, eff.CacheTTL, mode)
	default:
		return "off"
	}
}

func truncate(s string, max int) string {
	s = strings.TrimSpace(s)
	r := []rune(s)
	if max <= 0 || len(r) <= max {
		return s
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}

func formatShortDuration(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	return fmt.Sprintf("%.1fs", d.Seconds())
}

func formatElapsed(d time.Duration) string {
	if d < 0 {
		d = 0
	}
	sec := int(d.Seconds())
	h := sec / 3600
	m := (sec % 3600) / 60
	s := sec % 60
	return fmt.Sprintf("%02d:%02d:%02d", h, m, s)
}

func intField(fields map[string]any, key string) int {
	if fields == nil {
		return 0
	}
	v, ok := fields[key]
	if !ok {
		return 0
	}
	switch x := v.(type) {
	case int:
		return x
	case int32:
		return int(x)
	case int64:
		return int(x)
	default:
		return 0
	}
}
