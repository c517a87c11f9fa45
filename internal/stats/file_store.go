package stats

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
)

// FileStore 将计数保存为 JSON 文档 {"win_count":…, "loss_count":…}。
type FileStore struct {
	path string
}

// NewFileStore 创建文件存储。
func NewFileStore(path string) *FileStore {
	return &FileStore{path: path}
}

// Load 读取统计文件，文件不存在时返回的错误满足 errors.Is(err, fs.ErrNotExist)。
func (s *FileStore) Load(_ context.Context) (Counter, error) {
	raw, err := os.ReadFile(s.path)
	if err != nil {
		return Counter{}, fmt.Errorf("stats: 读取 %s 失败: %w", s.path, err)
	}
	var c Counter
	if err := json.Unmarshal(raw, &c); err != nil {
		return Counter{}, fmt.Errorf("stats: 解析 %s 失败: %w", s.path, err)
	}
	if c.Wins < 0 || c.Losses < 0 {
		return Counter{}, fmt.Errorf("stats: %s 中计数为负", s.path)
	}
	return c, nil
}

// Save 先写临时文件再原子替换。
func (s *FileStore) Save(_ context.Context, c Counter) error {
	raw, err := json.Marshal(c)
	if err != nil {
		return fmt.Errorf("stats: 序列化失败: %w", err)
	}

	dir := filepath.Dir(s.path)
	if dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("stats: 创建目录失败: %w", err)
		}
	}

	tmp, err := os.CreateTemp(dir, ".stats-*.json")
	if err != nil {
		return fmt.Errorf("stats: 创建临时文件失败: %w", err)
	}
	defer os.Remove(tmp.Name())

	if _, err := tmp.Write(raw); err != nil {
		_ = tmp.Close()
		return fmt.Errorf("stats: 写入临时文件失败: %w", err)
	}
	if err := tmp.Close(); err != nil {
		return fmt.Errorf("stats: 关闭临时文件失败: %w", err)
	}
	if err := os.Rename(tmp.Name(), s.path); err != nil {
		return fmt.Errorf("stats: 替换 %s 失败: %w", s.path, err)
	}
	return nil
}
