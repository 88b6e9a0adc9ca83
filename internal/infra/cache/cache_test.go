package cache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/John-Robertt/jusox/internal/lookup"
)

func TestFileStore_ReadWrite(t *testing.T) {
	root := t.TempDir()
	ctx := context.Background()
	key := lookup.CacheKey("forward", "english", "Sejong-ro 1", "1", "7")

	s := NewFileStore(root, false)
	if err := s.Set(ctx, key, []byte(`{"status_code":"0"}`), time.Hour); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}

	b, ok, err := s.Get(ctx, key)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if !ok {
		t.Fatalf("期望命中缓存，但 ok=false")
	}
	if string(b) != `{"status_code":"0"}` {
		t.Fatalf("内容不一致：%q", string(b))
	}

	path, err := s.Path(key)
	if err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if filepath.Base(filepath.Dir(path)) != "forward" {
		t.Fatalf("期望按 op 分目录，实际：%s", path)
	}
	if _, err := os.Stat(path); err != nil {
		t.Fatalf("期望文件存在，但 Stat 失败：%v", err)
	}
}

func TestFileStore_ReadOnlyRejectWrite(t *testing.T) {
	root := t.TempDir()
	key := lookup.CacheKey("detail", "1111011900")

	s := NewFileStore(root, true)
	if !s.ReadOnly() {
		t.Fatalf("期望 ReadOnly()=true")
	}
	err := s.Set(context.Background(), key, []byte(`{}`), 0)
	if !errors.Is(err, ErrReadOnly) {
		t.Fatalf("期望 ErrReadOnly，实际：%v", err)
	}

	path, _ := s.Path(key)
	if _, err := os.Stat(path); !os.IsNotExist(err) {
		t.Fatalf("期望文件不存在，但 Stat err=%v", err)
	}
}

func TestFileStore_ExpiredIsMiss(t *testing.T) {
	s := NewFileStore(t.TempDir(), false)
	now := time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC)
	s.now = func() time.Time { return now }
	ctx := context.Background()
	key := lookup.CacheKey("forward", "korean", "세종대로")

	if err := s.Set(ctx, key, []byte("x"), time.Minute); err != nil {
		t.Fatalf("不期望错误：%v", err)
	}
	if _, ok, _ := s.Get(ctx, key); !ok {
		t.Fatalf("未过期时应命中")
	}

	now = now.Add(time.Minute)
	if _, ok, _ := s.Get(ctx, key); ok {
		t.Fatalf("过期后不应命中")
	}
}

func TestFileStore_CorruptFileIsMiss(t *testing.T) {
	s := NewFileStore(t.TempDir(), false)
	key := lookup.CacheKey("forward", "x")
	path, _ := s.Path(key)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatalf("创建目录失败：%v", err)
	}
	if err := os.WriteFile(path, []byte("{not json"), 0o644); err != nil {
		t.Fatalf("写入失败：%v", err)
	}

	_, ok, err := s.Get(context.Background(), key)
	if err != nil || ok {
		t.Fatalf("坏文件应按未命中处理：ok=%v err=%v", ok, err)
	}
}

func TestFileStore_RejectsTraversalKeys(t *testing.T) {
	s := NewFileStore(t.TempDir(), false)
	for _, k := range []string{"", "../etc-passwd", "forward-../../x", "no_dash"} {
		if _, err := s.Path(k); err == nil {
			t.Fatalf("期望拒绝非法 key：%q", k)
		}
	}
}

// FileStore 必须满足 lookup.Store，并让 Cached 能识别只读模式。
var (
	_ lookup.Store                 = (*FileStore)(nil)
	_ lookup.Store                 = (*RedisStore)(nil)
	_ interface{ ReadOnly() bool } = (*FileStore)(nil)
)
