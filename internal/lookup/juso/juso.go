// Package juso 实现 business.juso.go.kr addrlink 接口的 lookup.Client。
package juso

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"

	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/lookup"
)

const DefaultBaseURL = "https://business.juso.go.kr/addrlink"

const (
	pathKorean  = "/addrLinkApi.do"
	pathEnglish = "/addrEngApi.do"
	pathDetail  = "/addrDetailApi.do"

	// 注册表响应通常只有几 KB；上限用于防御异常响应。
	maxBodyBytes = 4 << 20
)

// Config 在构造后不可变。
// detail 接口与韩文检索共用 KorKey。
type Config struct {
	BaseURL string
	KorKey  string
	EngKey  string
}

type Client struct {
	cfg  Config
	http *http.Client
}

var _ lookup.Client = (*Client)(nil)

// New 构造注册表客户端；hc 为 nil 时使用 http.DefaultClient（仅测试场景）。
func New(cfg Config, hc *http.Client) (*Client, error) {
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if _, err := url.Parse(cfg.BaseURL); err != nil {
		return nil, fmt.Errorf("base_url 无效：%w", err)
	}
	cfg.KorKey = strings.TrimSpace(cfg.KorKey)
	cfg.EngKey = strings.TrimSpace(cfg.EngKey)
	if hc == nil {
		hc = http.DefaultClient
	}
	return &Client{cfg: cfg, http: hc}, nil
}

func (c *Client) ForwardSearch(ctx context.Context, req lookup.SearchRequest) (lookup.SearchResult, error) {
	path, key := pathKorean, c.cfg.KorKey
	if req.Language == domain.LanguageEnglish {
		path, key = pathEnglish, c.cfg.EngKey
	}
	page := req.Page
	if page < 1 {
		page = 1
	}
	size := req.PageSize
	if size < 1 {
		size = 10
	}
	q := url.Values{}
	q.Set("confmKey", key)
	q.Set("currentPage", strconv.Itoa(page))
	q.Set("countPerPage", strconv.Itoa(size))
	q.Set("keyword", req.Keyword)
	q.Set("resultType", "json")
	return c.call(ctx, "forward", path, q)
}

func (c *Client) DetailLookup(ctx context.Context, k domain.AdministrativeKey) (lookup.SearchResult, error) {
	q := url.Values{}
	q.Set("confmKey", c.cfg.KorKey)
	q.Set("admCd", k.AdmCd)
	q.Set("rnMgtSn", k.RnMgtSn)
	q.Set("udrtYn", k.UdrtYn)
	q.Set("buldMnnm", k.BuldMnnm)
	q.Set("buldSlno", k.BuldSlno)
	q.Set("resultType", "json")
	return c.call(ctx, "detail", pathDetail, q)
}

func (c *Client) call(ctx context.Context, op, path string, q url.Values) (lookup.SearchResult, error) {
	u := c.cfg.BaseURL + path + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return lookup.SearchResult{}, lookup.Classify(op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return lookup.SearchResult{}, lookup.Classify(op, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
		return lookup.SearchResult{}, lookup.Classify(op, &lookup.HTTPStatusError{
			URL:        redactKey(u),
			StatusCode: resp.StatusCode,
			Location:   resp.Header.Get("Location"),
		})
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return lookup.SearchResult{}, lookup.Classify(op, err)
	}
	res, err := decode(body)
	if err != nil {
		return lookup.SearchResult{}, &lookup.Error{Kind: lookup.KindTransport, Op: op, Err: err}
	}
	if !res.OK() {
		return res, lookup.APIError(op, res.StatusCode, res.StatusMessage)
	}
	return res, nil
}

type envelope struct {
	Results struct {
		Common struct {
			ErrorCode    flexString `json:"errorCode"`
			ErrorMessage string     `json:"errorMessage"`
			TotalCount   flexString `json:"totalCount"`
		} `json:"common"`
		Juso []wireHit `json:"juso"`
	} `json:"results"`
}

type wireHit struct {
	RoadAddr  string     `json:"roadAddr"`
	JibunAddr string     `json:"jibunAddr"`
	ZipNo     flexString `json:"zipNo"`
	AdmCd     flexString `json:"admCd"`
	RnMgtSn   flexString `json:"rnMgtSn"`
	UdrtYn    flexString `json:"udrtYn"`
	BuldMnnm  flexString `json:"buldMnnm"`
	BuldSlno  flexString `json:"buldSlno"`
	SiNm      string     `json:"siNm"`
	SggNm     string     `json:"sggNm"`
	EmdNm     string     `json:"emdNm"`
	Rn        string     `json:"rn"`
	EngAddr   string     `json:"engAddr"`
	KorAddr   string     `json:"korAddr"`
}

func decode(body []byte) (lookup.SearchResult, error) {
	body = bytes.TrimSpace(body)
	if len(body) == 0 {
		return lookup.SearchResult{}, errors.New("空响应")
	}
	var env envelope
	if err := json.Unmarshal(body, &env); err != nil {
		return lookup.SearchResult{}, fmt.Errorf("响应不是有效 JSON：%w", err)
	}
	common := env.Results.Common
	if common.ErrorCode == "" {
		return lookup.SearchResult{}, errors.New("响应缺少 results.common.errorCode")
	}
	total, _ := strconv.Atoi(string(common.TotalCount))

	hits := make([]domain.RawHit, 0, len(env.Results.Juso))
	for _, w := range env.Results.Juso {
		hits = append(hits, domain.RawHit{
			RoadAddr:  strings.TrimSpace(w.RoadAddr),
			JibunAddr: strings.TrimSpace(w.JibunAddr),
			ZipNo:     string(w.ZipNo),
			AdmCd:     string(w.AdmCd),
			RnMgtSn:   string(w.RnMgtSn),
			UdrtYn:    string(w.UdrtYn),
			BuldMnnm:  string(w.BuldMnnm),
			BuldSlno:  string(w.BuldSlno),
			SiNm:      strings.TrimSpace(w.SiNm),
			SggNm:     strings.TrimSpace(w.SggNm),
			EmdNm:     strings.TrimSpace(w.EmdNm),
			Rn:        strings.TrimSpace(w.Rn),
			EngAddr:   strings.TrimSpace(w.EngAddr),
			KorAddr:   strings.TrimSpace(w.KorAddr),
		})
	}
	return lookup.SearchResult{
		StatusCode:    string(common.ErrorCode),
		StatusMessage: strings.TrimSpace(common.ErrorMessage),
		TotalCount:    total,
		Hits:          hits,
	}, nil
}

// flexString 同时接受 JSON 字符串与数字（注册表对数值字段的编码并不统一）。
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	if b[0] == '"' {
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(strings.TrimSpace(s))
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(b, &n); err != nil {
		return err
	}
	*f = flexString(n.String())
	return nil
}

func redactKey(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	q := u.Query()
	if q.Has("confmKey") {
		q.Set("confmKey", "***")
		u.RawQuery = q.Encode()
	}
	return u.String()
}
