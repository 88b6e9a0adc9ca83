package httpx

import (
	"errors"
	"net/http"
	"net/url"
	"strings"
	"time"
)

const (
	DefaultTimeout   = 30 * time.Second
	DefaultUserAgent = "jusox/1 (+https://github.com/John-Robertt/jusox)"
)

// Options 描述注册表 HTTP client 的网络策略。
type Options struct {
	ProxyURL  string
	Timeout   time.Duration // <=0 时取 DefaultTimeout
	RetryMax  int           // 不含首次尝试；<0 视为 0
	UserAgent string        // 空时取 DefaultUserAgent
}

// Transport 把“固定 UA + 代理 + keep-alive 策略 + 有界重试”固化为统一策略。
//
// 注册表客户端只负责“拼参数 + 解 JSON”，不关心网络策略细节。
type Transport struct {
	Base *http.Transport

	UserAgent string

	// RetryMax 表示最大重试次数（不含首次尝试）。例如 2 表示最多 3 次尝试。
	// 只重试传输层错误；HTTP 状态码与业务错误不在这里重试。
	RetryMax int

	// DisableKeepAlives 决定是否对 Request 设置 Close=true。
	// 真正禁用 keep-alive 依赖 Base.DisableKeepAlives。
	DisableKeepAlives bool
}

func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	if req == nil {
		return nil, errors.New("nil request")
	}
	if t.Base == nil {
		return nil, errors.New("nil base transport")
	}

	// 只对“可重放”的请求做重试：GET/HEAD 且无 body。
	canRetry := (req.Method == http.MethodGet || req.Method == http.MethodHead) && req.Body == nil
	max := t.RetryMax
	if max < 0 || !canRetry {
		max = 0
	}

	var lastErr error
	for attempt := 0; attempt <= max; attempt++ {
		r := req.Clone(req.Context())
		if r.Header.Get("User-Agent") == "" && t.UserAgent != "" {
			r.Header.Set("User-Agent", t.UserAgent)
		}
		if t.DisableKeepAlives {
			r.Close = true
		}

		resp, err := t.Base.RoundTrip(r)
		if err == nil {
			return resp, nil
		}
		lastErr = err
		if req.Context().Err() != nil {
			// ctx 已取消：不再重试。
			return nil, lastErr
		}
	}
	return nil, lastErr
}

// NewClient 构造访问地址注册表的 HTTP client。
//
// 规则：
// - ProxyURL 非空：必须走代理，且禁用 keep-alive（每请求新连接）
// - 有界重试 + 总超时（默认 30s）
func NewClient(opts Options) (*http.Client, error) {
	base := &http.Transport{
		Proxy:                 nil,
		TLSHandshakeTimeout:   10 * time.Second,
		ResponseHeaderTimeout: 20 * time.Second,
		MaxIdleConnsPerHost:   8,
	}
	disableKeepAlives := false

	if p := strings.TrimSpace(opts.ProxyURL); p != "" {
		u, err := url.Parse(p)
		if err != nil {
			return nil, err
		}
		if u.Scheme == "" || u.Host == "" {
			return nil, errors.New("proxy.url 必须包含 scheme 与 host")
		}
		base.Proxy = http.ProxyURL(u)
		base.DisableKeepAlives = true
		disableKeepAlives = true
	}

	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	ua := strings.TrimSpace(opts.UserAgent)
	if ua == "" {
		ua = DefaultUserAgent
	}

	return &http.Client{
		Transport: &Transport{
			Base:              base,
			UserAgent:         ua,
			RetryMax:          opts.RetryMax,
			DisableKeepAlives: disableKeepAlives,
		},
		Timeout: timeout,
	}, nil
}
