package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/jusox/internal/domain"
)

// withEnv 替换 getenv，避免依赖宿主机的 JUSO_* 变量。
func withEnv(t *testing.T, env map[string]string) {
	t.Helper()
	old := getenv
	getenv = func(k string) string { return env[k] }
	t.Cleanup(func() { getenv = old })
}

func TestLoadEffective_ExplicitConfigNotFound(t *testing.T) {
	withEnv(t, nil)
	cwd := t.TempDir()

	_, err := LoadEffective(cwd, CLIArgs{ConfigPath: "missing.yaml"})
	if Code(err) != ErrCodeNotFound {
		t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeNotFound, err, Code(err))
	}
}

func TestLoadEffective_NoFileUsesEnvAndDefaults(t *testing.T) {
	withEnv(t, map[string]string{EnvKorKey: "kor-key", EnvEngKey: "eng-key"})
	cwd := t.TempDir()

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.ConfigFound {
		t.Fatalf("期望 ConfigFound=false")
	}
	if eff.KorKey != "kor-key" || eff.EngKey != "eng-key" {
		t.Fatalf("key 应来自环境变量，实际 kor=%q eng=%q", eff.KorKey, eff.EngKey)
	}
	if eff.Language != domain.LanguageEnglish {
		t.Fatalf("默认语言应为 english，实际=%q", eff.Language)
	}
	if eff.BaseURL != DefaultBaseURL || eff.Timeout != DefaultTimeout {
		t.Fatalf("默认 api 配置不符：%q %v", eff.BaseURL, eff.Timeout)
	}
	if eff.Concurrency != DefaultConcurrency || eff.MinInterval != DefaultMinInterval {
		t.Fatalf("默认限速不符：concurrency=%d min_interval=%v", eff.Concurrency, eff.MinInterval)
	}
	if eff.Workers != DefaultWorkers {
		t.Fatalf("默认 workers=%d，实际=%d", DefaultWorkers, eff.Workers)
	}
	if eff.EnglishPageSize != 7 || eff.KoreanPageSize != 10 {
		t.Fatalf("默认页大小不符：eng=%d kor=%d", eff.EnglishPageSize, eff.KoreanPageSize)
	}
	if !eff.FallbackZipOnly {
		t.Fatalf("默认应启用 FALLBACK_ZIP_ONLY")
	}
	if eff.CacheEnabled() {
		t.Fatalf("未配置缓存时不应启用")
	}
	if eff.ServerAddr != DefaultServerAddr || eff.LogFormat != "text" {
		t.Fatalf("默认 server/log 不符：%q %q", eff.ServerAddr, eff.LogFormat)
	}
}

func TestLoadEffective_FileOverridesEnvKeys(t *testing.T) {
	withEnv(t, map[string]string{EnvKorKey: "env-kor", EnvEngKey: "env-eng"})
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("keys:\n  kor: file-kor\n"))

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.KorKey != "file-kor" {
		t.Fatalf("配置文件中的 key 应优先，实际=%q", eff.KorKey)
	}
	if eff.EngKey != "env-eng" {
		t.Fatalf("配置缺省时应回落到环境变量，实际=%q", eff.EngKey)
	}
}

func TestLoadEffective_LanguageMergeOrder(t *testing.T) {
	withEnv(t, map[string]string{EnvKorKey: "k", EnvEngKey: "e"})
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), []byte("language: korean\n"))

	// CLI 未指定，则使用配置文件中的 korean。
	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff.Language != domain.LanguageKorean {
		t.Fatalf("期望 language=korean，实际=%q", eff.Language)
	}

	// CLI 显式指定，则覆盖配置文件。
	eff2, err := LoadEffective(cwd, CLIArgs{Language: "en", LanguageSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if eff2.Language != domain.LanguageEnglish {
		t.Fatalf("期望 language=english，实际=%q", eff2.Language)
	}
}

func TestLoadEffective_MissingKeys(t *testing.T) {
	cwd := t.TempDir()

	withEnv(t, map[string]string{EnvEngKey: "e"})
	_, err := LoadEffective(cwd, CLIArgs{})
	if Code(err) != ErrCodeMissingKey {
		t.Fatalf("缺少韩文 key 时期望 %q，实际 err=%v", ErrCodeMissingKey, err)
	}

	withEnv(t, map[string]string{EnvKorKey: "k"})
	if _, err := LoadEffective(cwd, CLIArgs{}); Code(err) != ErrCodeMissingKey {
		t.Fatalf("english 模式缺少英文 key 时期望 %q，实际 err=%v", ErrCodeMissingKey, err)
	}

	// korean 模式不需要英文 key。
	eff, err := LoadEffective(cwd, CLIArgs{Language: "korean", LanguageSet: true})
	if err != nil {
		t.Fatalf("korean 模式不应要求英文 key：%v", err)
	}
	if eff.EngKey != "" {
		t.Fatalf("期望 EngKey 为空，实际=%q", eff.EngKey)
	}

	// serve 模式要求两种 key。
	_, err = LoadEffective(cwd, CLIArgs{Language: "korean", LanguageSet: true, RequireAllKeys: true})
	if Code(err) != ErrCodeMissingKey {
		t.Fatalf("RequireAllKeys 时期望 %q，实际 err=%v", ErrCodeMissingKey, err)
	}
}

func TestLoadEffective_FullFile(t *testing.T) {
	withEnv(t, nil)
	cwd := t.TempDir()
	cfgDir := filepath.Join(cwd, "conf")
	writeFile(t, filepath.Join(cfgDir, "custom.yaml"), []byte(`
language: english
keys:
  kor: k
  eng: e
api:
  base_url: http://127.0.0.1:9999/addrlink/
  timeout: 5s
  retry_max: 2
rate:
  concurrency: 99
  min_interval_ms: 0
workers: 0
page_size:
  english: 5
  korean: 8
fallback_zip_only: false
proxy:
  url: socks5://127.0.0.1:1080
cache:
  dir: .cache
  ttl: 1h
  read_only: true
server:
  addr: 127.0.0.1:9000
log:
  level: DEBUG
  format: json
`))

	eff, err := LoadEffective(cwd, CLIArgs{ConfigPath: "conf/custom.yaml", Addr: ":7000", AddrSet: true})
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !eff.ConfigFound || eff.ConfigPath != filepath.Join(cfgDir, "custom.yaml") {
		t.Fatalf("配置路径不符：found=%v path=%q", eff.ConfigFound, eff.ConfigPath)
	}
	if eff.BaseURL != "http://127.0.0.1:9999/addrlink" {
		t.Fatalf("base_url 应去掉末尾 /，实际=%q", eff.BaseURL)
	}
	if eff.Timeout != 5*time.Second || eff.RetryMax != 2 {
		t.Fatalf("api 配置不符：timeout=%v retry=%d", eff.Timeout, eff.RetryMax)
	}
	if eff.Concurrency != maxConcurrency {
		t.Fatalf("concurrency 应截断为 %d，实际=%d", maxConcurrency, eff.Concurrency)
	}
	if eff.MinInterval != 0 {
		t.Fatalf("显式 min_interval_ms=0 应生效，实际=%v", eff.MinInterval)
	}
	if eff.Workers != DefaultWorkers {
		t.Fatalf("workers=0 应使用默认值，实际=%d", eff.Workers)
	}
	if eff.EnglishPageSize != 5 || eff.KoreanPageSize != 8 {
		t.Fatalf("页大小不符：eng=%d kor=%d", eff.EnglishPageSize, eff.KoreanPageSize)
	}
	if eff.FallbackZipOnly {
		t.Fatalf("fallback_zip_only=false 应生效")
	}
	if eff.ProxyURL != "socks5://127.0.0.1:1080" {
		t.Fatalf("proxy 不符：%q", eff.ProxyURL)
	}
	// 相对路径以配置文件目录为基准。
	if eff.CacheDir != filepath.Join(cfgDir, ".cache") {
		t.Fatalf("cache.dir 应相对配置文件目录，实际=%q", eff.CacheDir)
	}
	if eff.CacheTTL != time.Hour || !eff.CacheReadOnly || !eff.CacheEnabled() {
		t.Fatalf("cache 配置不符：ttl=%v ro=%v", eff.CacheTTL, eff.CacheReadOnly)
	}
	if eff.ServerAddr != ":7000" {
		t.Fatalf("CLI --addr 应覆盖配置文件，实际=%q", eff.ServerAddr)
	}
	if eff.LogLevel != "debug" || eff.LogFormat != "json" {
		t.Fatalf("log 配置不符：%q %q", eff.LogLevel, eff.LogFormat)
	}
}

func TestLoadEffective_Invalid(t *testing.T) {
	withEnv(t, map[string]string{EnvKorKey: "k", EnvEngKey: "e"})
	cases := map[string]string{
		"unknown_field":   "langauge: korean\n",
		"bad_yaml":        "language: [\n",
		"bad_language":    "language: japanese\n",
		"page_too_small":  "page_size:\n  english: 4\n",
		"page_too_large":  "page_size:\n  korean: 11\n",
		"negative_rate":   "rate:\n  min_interval_ms: -1\n",
		"bad_timeout":     "api:\n  timeout: soon\n",
		"bad_base_url":    "api:\n  base_url: ftp://x\n",
		"retry_too_large": "api:\n  retry_max: 9\n",
		"bad_proxy":       "proxy:\n  url: 127.0.0.1:8080\n",
		"bad_redis":       "cache:\n  redis_url: http://localhost:6379\n",
		"bad_log_level":   "log:\n  level: trace\n",
		"bad_log_format":  "log:\n  format: xml\n",
	}
	for name, body := range cases {
		t.Run(name, func(t *testing.T) {
			cwd := t.TempDir()
			writeFile(t, filepath.Join(cwd, FileName), []byte(body))
			_, err := LoadEffective(cwd, CLIArgs{})
			if Code(err) != ErrCodeInvalid {
				t.Fatalf("期望 %q，实际 err=%v (code=%q)", ErrCodeInvalid, err, Code(err))
			}
		})
	}
}

func TestLoadEffective_EmptyFileIsValid(t *testing.T) {
	withEnv(t, map[string]string{EnvKorKey: "k", EnvEngKey: "e"})
	cwd := t.TempDir()
	writeFile(t, filepath.Join(cwd, FileName), nil)

	eff, err := LoadEffective(cwd, CLIArgs{})
	if err != nil {
		t.Fatalf("空配置文件不应报错：%v", err)
	}
	if !eff.ConfigFound {
		t.Fatalf("期望 ConfigFound=true")
	}
}

func TestError_Messages(t *testing.T) {
	e := &Error{Code: ErrCodeNotFound, Path: "/x/jusox.yaml"}
	if got := e.Error(); got != `config_not_found：未找到配置文件 "/x/jusox.yaml"` {
		t.Fatalf("错误信息不符：%q", got)
	}
	if Code(os.ErrNotExist) != "" {
		t.Fatalf("非 *Error 应返回空 code")
	}
}

func writeFile(t *testing.T, path string, data []byte) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		t.Fatalf("写入文件失败：%v", err)
	}
}
