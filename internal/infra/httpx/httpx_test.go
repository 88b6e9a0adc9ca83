package httpx

import (
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"
)

func TestNewClient_ProxyDisablesKeepAlive(t *testing.T) {
	c, err := NewClient(Options{ProxyURL: "http://127.0.0.1:8080"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr, ok := c.Transport.(*Transport)
	if !ok {
		t.Fatalf("期望 *Transport，实际 %T", c.Transport)
	}
	if tr.Base.Proxy == nil {
		t.Fatalf("期望启用代理，但 Proxy=nil")
	}
	if !tr.Base.DisableKeepAlives {
		t.Fatalf("期望禁用 keep-alive，但 Base.DisableKeepAlives=false")
	}
	if !tr.DisableKeepAlives {
		t.Fatalf("期望设置 Request.Close=true，但 DisableKeepAlives=false")
	}
}

func TestNewClient_Defaults(t *testing.T) {
	c, err := NewClient(Options{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	tr := c.Transport.(*Transport)
	if tr.Base.Proxy != nil {
		t.Fatalf("不期望启用代理，但 Proxy!=nil")
	}
	if tr.Base.DisableKeepAlives {
		t.Fatalf("不期望禁用 keep-alive")
	}
	if c.Timeout != DefaultTimeout {
		t.Fatalf("Timeout 期望 %s，实际 %s", DefaultTimeout, c.Timeout)
	}
	if tr.UserAgent != DefaultUserAgent {
		t.Fatalf("UserAgent 期望默认值，实际 %q", tr.UserAgent)
	}
	if tr.RetryMax != 0 {
		t.Fatalf("RetryMax 期望 0，实际 %d", tr.RetryMax)
	}
}

func TestNewClient_InvalidProxyURL(t *testing.T) {
	if _, err := NewClient(Options{ProxyURL: "http://[::1"}); err == nil {
		t.Fatalf("期望错误，但得到 nil")
	}
	if _, err := NewClient(Options{ProxyURL: "127.0.0.1:8080"}); err == nil {
		t.Fatalf("缺少 scheme 时期望错误")
	}
}

func TestTransport_SetsUserAgent(t *testing.T) {
	var got atomic.Value
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got.Store(r.Header.Get("User-Agent"))
	}))
	defer srv.Close()

	c, err := NewClient(Options{Timeout: 5 * time.Second, UserAgent: "jusox-test"})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp, err := c.Get(srv.URL)
	if err != nil {
		t.Fatalf("请求失败：%v", err)
	}
	resp.Body.Close()
	if got.Load() != "jusox-test" {
		t.Fatalf("User-Agent 期望 jusox-test，实际 %v", got.Load())
	}
}

func TestTransport_RetryStillFailsOnDeadPort(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	defer srv.Close()

	closed := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	addr := closed.URL
	closed.Close()

	tr := &Transport{Base: &http.Transport{}, RetryMax: 2}
	req, _ := http.NewRequest(http.MethodGet, addr, nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatalf("连接已关闭的端口期望错误")
	}

	req2, _ := http.NewRequest(http.MethodGet, srv.URL, nil)
	resp, err := tr.RoundTrip(req2)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	resp.Body.Close()
}

func TestTransport_NilGuards(t *testing.T) {
	tr := &Transport{}
	if _, err := tr.RoundTrip(nil); err == nil {
		t.Fatalf("nil request 期望错误")
	}
	req, _ := http.NewRequest(http.MethodGet, "http://example.invalid", nil)
	if _, err := tr.RoundTrip(req); err == nil {
		t.Fatalf("nil base 期望错误")
	}
}
