// Package store 提供持久化的键值存储，对应扩展中的 chrome.storage.local。
//
// 目前只有两个键：apiKey（以 sk- 开头的密钥）和 currentStatus（最近一次状态，
// 供界面重新打开时恢复显示）。
package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	_ "modernc.org/sqlite" // SQLite driver
)

// 持久化键名
const (
	KeyAPIKey        = "apiKey"
	KeyCurrentStatus = "currentStatus"
)

// dbFileName 数据库文件名
const dbFileName = "examassist.db"

// Store SQLite 键值存储
type Store struct {
	db     *sql.DB
	dbPath string
}

// Open 打开（必要时创建）dir 下的数据库
func Open(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("创建数据目录失败: %w", err)
	}

	dbPath := filepath.Join(dir, dbFileName)
	db, err := sql.Open("sqlite", dbPath+"?mode=rwc")
	if err != nil {
		return nil, fmt.Errorf("打开数据库失败: %w", err)
	}

	// SQLite 只支持一个写入者
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(time.Hour)

	ctx := context.Background()
	if _, err := db.ExecContext(ctx, "PRAGMA journal_mode=WAL"); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("启用WAL失败: %w", err)
	}

	const schema = `
		CREATE TABLE IF NOT EXISTS kv (
			key        TEXT PRIMARY KEY,
			value      TEXT NOT NULL,
			updated_at INTEGER NOT NULL
		)`
	if _, err := db.ExecContext(ctx, schema); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("创建数据表失败: %w", err)
	}

	return &Store{db: db, dbPath: dbPath}, nil
}

// Close 关闭数据库
func (s *Store) Close() error {
	return s.db.Close()
}

// Path 数据库文件路径
func (s *Store) Path() string {
	return s.dbPath
}

// Get 读取键值，键不存在时 ok 为 false
func (s *Store) Get(ctx context.Context, key string) (value string, ok bool, err error) {
	row := s.db.QueryRowContext(ctx, "SELECT value FROM kv WHERE key = ?", key)
	if err := row.Scan(&value); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", false, nil
		}
		return "", false, fmt.Errorf("读取 %s 失败: %w", key, err)
	}
	return value, true, nil
}

// Set 写入键值，已存在则覆盖
func (s *Store) Set(ctx context.Context, key, value string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO kv (key, value, updated_at) VALUES (?, ?, ?)
		ON CONFLICT(key) DO UPDATE SET value = excluded.value, updated_at = excluded.updated_at`,
		key, value, time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("写入 %s 失败: %w", key, err)
	}
	return nil
}

// Delete 删除键，键不存在不算错误
func (s *Store) Delete(ctx context.Context, key string) error {
	if _, err := s.db.ExecContext(ctx, "DELETE FROM kv WHERE key = ?", key); err != nil {
		return fmt.Errorf("删除 %s 失败: %w", key, err)
	}
	return nil
}

// SaveStatus 缓存最近一次状态文本
func (s *Store) SaveStatus(ctx context.Context, status string) error {
	return s.Set(ctx, KeyCurrentStatus, status)
}

// Status 读取缓存的状态文本，没有缓存时返回空字符串
func (s *Store) Status(ctx context.Context) (string, error) {
	v, _, err := s.Get(ctx, KeyCurrentStatus)
	return v, err
}
