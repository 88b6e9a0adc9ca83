package cache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/John-Robertt/jusox/internal/infra/fsx"
)

// FileStore 提供 <root>/lookup/ 下的注册表响应文件缓存。
//
// 约束：
// - ReadOnly=true：只允许读（Set 返回 ErrReadOnly）
// - 过期条目在读取时视为未命中；不做后台清理
type FileStore struct {
	root     string
	readOnly bool
	now      func() time.Time
}

var ErrReadOnly = errors.New("cache: read-only")

func NewFileStore(root string, readOnly bool) *FileStore {
	return &FileStore{
		root:     filepath.Clean(strings.TrimSpace(root)),
		readOnly: readOnly,
		now:      time.Now,
	}
}

func (s *FileStore) Root() string   { return s.root }
func (s *FileStore) ReadOnly() bool { return s.readOnly }

// entry 是落盘格式；Data 为上层给出的原始字节。
type entry struct {
	ExpiresAt time.Time `json:"expires_at,omitempty"`
	Data      []byte    `json:"data"`
}

// Path 返回 key 对应缓存文件的绝对路径。key 形如 "forward-<sha256>"。
func (s *FileStore) Path(key string) (string, error) {
	k, err := cleanKey(key)
	if err != nil {
		return "", err
	}
	op, _, _ := strings.Cut(k, "-")
	return filepath.Join(s.root, "lookup", op, k+".json"), nil
}

func (s *FileStore) Get(ctx context.Context, key string) ([]byte, bool, error) {
	path, err := s.Path(key)
	if err != nil {
		return nil, false, err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, false, nil
		}
		return nil, false, err
	}
	var e entry
	if err := json.Unmarshal(b, &e); err != nil {
		// 坏文件按未命中处理，下次写入会覆盖。
		return nil, false, nil
	}
	if !e.ExpiresAt.IsZero() && !s.now().Before(e.ExpiresAt) {
		return nil, false, nil
	}
	return e.Data, true, nil
}

// Set 原子写入；ttl<=0 表示永不过期。
func (s *FileStore) Set(ctx context.Context, key string, b []byte, ttl time.Duration) error {
	if s.readOnly {
		return ErrReadOnly
	}
	path, err := s.Path(key)
	if err != nil {
		return err
	}
	e := entry{Data: b}
	if ttl > 0 {
		e.ExpiresAt = s.now().Add(ttl).UTC()
	}
	raw, err := json.Marshal(e)
	if err != nil {
		return err
	}
	return fsx.WriteFileAtomic(filepath.Dir(path), filepath.Base(path), raw)
}

var keyRE = regexp.MustCompile(`^[a-z0-9_]+-[a-z0-9_-]+$`)

func cleanKey(k string) (string, error) {
	k = strings.ToLower(strings.TrimSpace(k))
	if k == "" {
		return "", fmt.Errorf("cache key 不能为空")
	}
	// 最小约束：避免路径穿越。
	if !keyRE.MatchString(k) || len(k) > 200 {
		return "", fmt.Errorf("非法 cache key：%q", k)
	}
	return k, nil
}
