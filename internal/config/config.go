package config

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/John-Robertt/jusox/internal/domain"
)

const (
	// ErrCodeNotFound 表示 --config 指定的文件不存在。
	ErrCodeNotFound = domain.ErrCodeConfigNotFound
	// ErrCodeInvalid 表示配置文件无法读取/解析，或字段不合法。
	ErrCodeInvalid = domain.ErrCodeConfigInvalid
	// ErrCodeMissingKey 表示缺少所需语言的 confmKey（配置文件与环境变量都没有）。
	ErrCodeMissingKey = domain.ErrCodeConfigMissingKey
)

const (
	FileName = "jusox.yaml"

	EnvKorKey = "JUSO_KOR_KEY"
	EnvEngKey = "JUSO_ENG_KEY"

	DefaultLanguage        = domain.LanguageEnglish
	DefaultBaseURL         = "https://business.juso.go.kr/addrlink"
	DefaultTimeout         = 30 * time.Second
	DefaultConcurrency     = 3
	DefaultMinInterval     = 90 * time.Millisecond
	DefaultWorkers         = 8
	DefaultEnglishPageSize = 7
	DefaultKoreanPageSize  = 10
	DefaultCacheTTL        = 24 * time.Hour
	DefaultServerAddr      = ":8080"

	maxConcurrency = 16
	maxWorkers     = 64
)

// 通过可替换的函数指针，让测试不依赖真实环境变量。
var getenv = os.Getenv

// CLIArgs 只包含 CLI 暴露的入口，并保留“是否显式指定”的信息。
// 这能保证覆盖优先级可实现：例如 --lang korean 必须能覆盖 language: english。
type CLIArgs struct {
	// ConfigPath 非空时该文件必须存在；为空时读取 <cwd>/jusox.yaml（可选）。
	ConfigPath string

	Language    string
	LanguageSet bool

	Addr    string
	AddrSet bool

	// RequireAllKeys 要求韩文与英文 key 同时存在（serve 模式下请求语言不可预知）。
	RequireAllKeys bool
}

// FileConfig 对应 jusox.yaml 的解析结构。
type FileConfig struct {
	Language string `yaml:"language"`
	Keys     struct {
		Kor string `yaml:"kor"`
		Eng string `yaml:"eng"`
	} `yaml:"keys"`
	API struct {
		BaseURL  string `yaml:"base_url"`
		Timeout  string `yaml:"timeout"`
		RetryMax int    `yaml:"retry_max"`
	} `yaml:"api"`
	Rate struct {
		Concurrency   int  `yaml:"concurrency"`
		MinIntervalMS *int `yaml:"min_interval_ms"`
	} `yaml:"rate"`
	Workers  int `yaml:"workers"`
	PageSize struct {
		English int `yaml:"english"`
		Korean  int `yaml:"korean"`
	} `yaml:"page_size"`
	FallbackZipOnly *bool `yaml:"fallback_zip_only"`
	Proxy           struct {
		URL string `yaml:"url"`
	} `yaml:"proxy"`
	Cache struct {
		Dir      string `yaml:"dir"`
		RedisURL string `yaml:"redis_url"`
		TTL      string `yaml:"ttl"`
		ReadOnly bool   `yaml:"read_only"`
	} `yaml:"cache"`
	Server struct {
		Addr string `yaml:"addr"`
	} `yaml:"server"`
	Log struct {
		Level  string `yaml:"level"`
		Format string `yaml:"format"`
	} `yaml:"log"`
}

// EffectiveConfig 是合并并做最小规范化后的最终配置（实现层直接消费，不再做二次默认/优先级判断）。
type EffectiveConfig struct {
	ConfigPath  string
	ConfigFound bool

	Language domain.Language
	KorKey   string
	EngKey   string

	BaseURL  string
	Timeout  time.Duration
	RetryMax int

	Concurrency int
	MinInterval time.Duration
	Workers     int

	EnglishPageSize int
	KoreanPageSize  int
	FallbackZipOnly bool

	ProxyURL string

	CacheDir      string
	CacheRedisURL string
	CacheTTL      time.Duration
	CacheReadOnly bool

	ServerAddr string

	LogLevel  string
	LogFormat string
}

// CacheEnabled 表示是否配置了任一缓存后端（Redis 优先）。
func (e EffectiveConfig) CacheEnabled() bool {
	return e.CacheDir != "" || e.CacheRedisURL != ""
}

// Error 是配置阶段的结构化错误（带 error_code）。
type Error struct {
	Code string
	Path string
	Err  error
}

func (e *Error) Error() string {
	switch e.Code {
	case ErrCodeNotFound:
		return fmt.Sprintf("%s：未找到配置文件 %q", e.Code, e.Path)
	case ErrCodeMissingKey:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return fmt.Sprintf("%s：缺少 confmKey", e.Code)
	case ErrCodeInvalid:
		if e.Err != nil {
			return fmt.Sprintf("%s：配置文件 %q 无效：%v", e.Code, e.Path, e.Err)
		}
		return fmt.Sprintf("%s：配置文件 %q 无效", e.Code, e.Path)
	default:
		if e.Err != nil {
			return fmt.Sprintf("%s：%v", e.Code, e.Err)
		}
		return e.Code
	}
}

func (e *Error) Unwrap() error { return e.Err }

// Code 从 error 中提取 error_code；若不是 *Error 则返回空串。
func Code(err error) string {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return ""
}

// LoadEffective 发现并读取配置文件，然后与 CLI 参数、环境变量合并为最终配置。
//
// 发现规则（固定）：
// 1) CLI 提供 --config：必须存在
// 2) 否则读取 <cwd>/jusox.yaml（可选）
//
// 覆盖优先级（固定）：
// - language / server.addr：CLI > config > 默认
// - keys：config > 环境变量 JUSO_KOR_KEY / JUSO_ENG_KEY
// - 其他字段：仅由 config 控制（CLI 不暴露）
func LoadEffective(cwd string, cli CLIArgs) (EffectiveConfig, error) {
	cwdAbs, err := filepath.Abs(cwd)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cwd, Err: err}
	}

	var cfgPath string
	if strings.TrimSpace(cli.ConfigPath) != "" {
		cfgPath = absCleanFrom(cwdAbs, cli.ConfigPath)
	} else {
		cfgPath = filepath.Join(cwdAbs, FileName)
	}

	fc, exists, err := readFileConfig(cfgPath)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if !exists && strings.TrimSpace(cli.ConfigPath) != "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeNotFound, Path: cfgPath, Err: os.ErrNotExist}
	}

	// 相对路径（cache.dir）以配置文件所在目录为基准。
	base := cwdAbs
	if exists {
		base = filepath.Dir(cfgPath)
	}
	eff, err := merge(base, cli, fc, cfgPath)
	if err != nil {
		return EffectiveConfig{}, err
	}
	eff.ConfigFound = exists
	return eff, nil
}

func merge(base string, cli CLIArgs, fc FileConfig, cfgPath string) (EffectiveConfig, error) {
	invalid := func(format string, args ...any) error {
		return &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: fmt.Errorf(format, args...)}
	}

	// language：CLI > config > 默认
	rawLang := fc.Language
	if cli.LanguageSet {
		rawLang = cli.Language
	}
	lang, err := domain.ParseLanguage(rawLang)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	if lang == "" {
		lang = DefaultLanguage
	}

	// keys：config > env
	korKey := firstNonEmpty(fc.Keys.Kor, getenv(EnvKorKey))
	engKey := firstNonEmpty(fc.Keys.Eng, getenv(EnvEngKey))
	// detail 与二次检索总是走韩文接口，因此韩文 key 永远必需。
	if korKey == "" {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingKey, Path: cfgPath,
			Err: fmt.Errorf("缺少韩文检索 key（keys.kor 或 %s）", EnvKorKey)}
	}
	if engKey == "" && (lang == domain.LanguageEnglish || cli.RequireAllKeys) {
		return EffectiveConfig{}, &Error{Code: ErrCodeMissingKey, Path: cfgPath,
			Err: fmt.Errorf("缺少英文检索 key（keys.eng 或 %s）", EnvEngKey)}
	}

	baseURL := strings.TrimRight(strings.TrimSpace(fc.API.BaseURL), "/")
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	if err := validateHTTPURL(baseURL); err != nil {
		return EffectiveConfig{}, invalid("api.base_url 无效：%v", err)
	}

	timeout, err := parseDuration(fc.API.Timeout, DefaultTimeout)
	if err != nil || timeout <= 0 {
		return EffectiveConfig{}, invalid("api.timeout 无效：%q", fc.API.Timeout)
	}
	if fc.API.RetryMax < 0 || fc.API.RetryMax > 5 {
		return EffectiveConfig{}, invalid("api.retry_max 必须在 [0, 5]，实际是 %d", fc.API.RetryMax)
	}

	concurrency := fc.Rate.Concurrency
	if concurrency == 0 {
		concurrency = DefaultConcurrency
	}
	// 超出范围截断（与 workers 一致）。
	concurrency = max(1, min(maxConcurrency, concurrency))

	minInterval := DefaultMinInterval
	if fc.Rate.MinIntervalMS != nil {
		if *fc.Rate.MinIntervalMS < 0 {
			return EffectiveConfig{}, invalid("rate.min_interval_ms 不能为负数：%d", *fc.Rate.MinIntervalMS)
		}
		minInterval = time.Duration(*fc.Rate.MinIntervalMS) * time.Millisecond
	}

	workers := fc.Workers
	if workers == 0 {
		workers = DefaultWorkers
	}
	workers = max(1, min(maxWorkers, workers))

	engSize, err := pageSize("page_size.english", fc.PageSize.English, DefaultEnglishPageSize)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}
	korSize, err := pageSize("page_size.korean", fc.PageSize.Korean, DefaultKoreanPageSize)
	if err != nil {
		return EffectiveConfig{}, &Error{Code: ErrCodeInvalid, Path: cfgPath, Err: err}
	}

	fallback := true
	if fc.FallbackZipOnly != nil {
		fallback = *fc.FallbackZipOnly
	}

	proxyURL := strings.TrimSpace(fc.Proxy.URL)
	if proxyURL != "" {
		if err := validateProxyURL(proxyURL); err != nil {
			return EffectiveConfig{}, invalid("proxy.url 无效：%v", err)
		}
	}

	cacheDir := ""
	if d := strings.TrimSpace(fc.Cache.Dir); d != "" {
		cacheDir = absCleanFrom(base, d)
	}
	redisURL := strings.TrimSpace(fc.Cache.RedisURL)
	if redisURL != "" {
		u, err := url.Parse(redisURL)
		if err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			return EffectiveConfig{}, invalid("cache.redis_url 必须是 redis:// 或 rediss://：%q", redisURL)
		}
	}
	ttl, err := parseDuration(fc.Cache.TTL, DefaultCacheTTL)
	if err != nil || ttl < 0 {
		return EffectiveConfig{}, invalid("cache.ttl 无效：%q", fc.Cache.TTL)
	}

	addr := strings.TrimSpace(fc.Server.Addr)
	if cli.AddrSet {
		addr = strings.TrimSpace(cli.Addr)
	}
	if addr == "" {
		addr = DefaultServerAddr
	}

	level := strings.ToLower(strings.TrimSpace(fc.Log.Level))
	switch level {
	case "", "debug", "info", "warn", "error":
	default:
		return EffectiveConfig{}, invalid("log.level 只能是 debug/info/warn/error，实际是 %q", fc.Log.Level)
	}
	format := strings.ToLower(strings.TrimSpace(fc.Log.Format))
	switch format {
	case "":
		format = "text"
	case "text", "json":
	default:
		return EffectiveConfig{}, invalid("log.format 只能是 text 或 json，实际是 %q", fc.Log.Format)
	}

	return EffectiveConfig{
		ConfigPath:      cfgPath,
		Language:        lang,
		KorKey:          korKey,
		EngKey:          engKey,
		BaseURL:         baseURL,
		Timeout:         timeout,
		RetryMax:        fc.API.RetryMax,
		Concurrency:     concurrency,
		MinInterval:     minInterval,
		Workers:         workers,
		EnglishPageSize: engSize,
		KoreanPageSize:  korSize,
		FallbackZipOnly: fallback,
		ProxyURL:        proxyURL,
		CacheDir:        cacheDir,
		CacheRedisURL:   redisURL,
		CacheTTL:        ttl,
		CacheReadOnly:   fc.Cache.ReadOnly,
		ServerAddr:      addr,
		LogLevel:        level,
		LogFormat:       format,
	}, nil
}

func pageSize(field string, v, def int) (int, error) {
	if v == 0 {
		return def, nil
	}
	if v < 5 || v > 10 {
		return 0, fmt.Errorf("%s 必须在 [5, 10]，实际是 %d", field, v)
	}
	return v, nil
}

func parseDuration(s string, def time.Duration) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return def, nil
	}
	return time.ParseDuration(s)
}

func validateHTTPURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return fmt.Errorf("必须是 http/https：%q", raw)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

func validateProxyURL(raw string) error {
	u, err := url.Parse(raw)
	if err != nil {
		return err
	}
	switch u.Scheme {
	case "http", "https", "socks5":
	default:
		return fmt.Errorf("不支持的 scheme：%q", u.Scheme)
	}
	if u.Host == "" {
		return fmt.Errorf("缺少 host：%q", raw)
	}
	return nil
}

func firstNonEmpty(vs ...string) string {
	for _, v := range vs {
		if v = strings.TrimSpace(v); v != "" {
			return v
		}
	}
	return ""
}

// absCleanFrom 以 base 为基准，把 p 变为 clean + absolute。
func absCleanFrom(base, p string) string {
	p = strings.TrimSpace(p)
	if p == "" {
		return ""
	}
	p = filepath.Clean(p)
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Clean(filepath.Join(base, p))
}

// readFileConfig 读取并解析 YAML 配置文件（拒绝未知字段）。
// 返回值 exists 表示该文件是否存在（不存在不算错误）。
func readFileConfig(path string) (fc FileConfig, exists bool, err error) {
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return FileConfig{}, false, nil
		}
		return FileConfig{}, false, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(b))
	dec.KnownFields(true)
	if err := dec.Decode(&fc); err != nil && !errors.Is(err, io.EOF) {
		return FileConfig{}, true, err
	}
	return fc, true, nil
}
