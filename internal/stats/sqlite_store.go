package stats

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"time"

	"channel-trader/internal/store"
)

const (
	keyWins   = "win_count"
	keyLosses = "loss_count"
)

// SQLiteStore 将计数保存在 trade_stats 表中。
type SQLiteStore struct {
	st *store.Store
}

// NewSQLiteStore 创建 SQLite 统计存储并初始化表结构。
func NewSQLiteStore(ctx context.Context, st *store.Store) (*SQLiteStore, error) {
	if st == nil {
		return nil, errors.New("stats: store 不能为空")
	}
	err := st.Migrate(ctx, `CREATE TABLE IF NOT EXISTS trade_stats (
		stat_key TEXT PRIMARY KEY,
		value INTEGER NOT NULL,
		updated_at TEXT NOT NULL
	);`)
	if err != nil {
		return nil, err
	}
	return &SQLiteStore{st: st}, nil
}

// Load 读取计数，表中尚无记录时返回 fs.ErrNotExist。
func (s *SQLiteStore) Load(ctx context.Context) (Counter, error) {
	rows, err := s.st.DB().QueryContext(ctx, `SELECT stat_key, value FROM trade_stats WHERE stat_key IN (?, ?)`, keyWins, keyLosses)
	if err != nil {
		return Counter{}, fmt.Errorf("stats: 查询统计失败: %w", err)
	}
	defer rows.Close()

	var (
		c     Counter
		found int
	)
	for rows.Next() {
		var (
			key   string
			value int64
		)
		if err := rows.Scan(&key, &value); err != nil {
			return Counter{}, fmt.Errorf("stats: 读取统计失败: %w", err)
		}
		switch key {
		case keyWins:
			c.Wins = value
		case keyLosses:
			c.Losses = value
		}
		found++
	}
	if err := rows.Err(); err != nil {
		return Counter{}, fmt.Errorf("stats: 遍历统计失败: %w", err)
	}
	if found == 0 {
		return Counter{}, fmt.Errorf("stats: trade_stats 为空: %w", fs.ErrNotExist)
	}
	return c, nil
}

// Save 在一个事务内写入两项计数。
func (s *SQLiteStore) Save(ctx context.Context, c Counter) error {
	now := time.Now().UTC().Format(time.RFC3339)
	return s.st.WithTx(ctx, func(tx *sql.Tx) error {
		for _, kv := range []struct {
			key   string
			value int64
		}{{keyWins, c.Wins}, {keyLosses, c.Losses}} {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO trade_stats (stat_key, value, updated_at) VALUES (?, ?, ?)
				 ON CONFLICT(stat_key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
				kv.key, kv.value, now,
			); err != nil {
				return fmt.Errorf("stats: 写入 %s 失败: %w", kv.key, err)
			}
		}
		return nil
	})
}
