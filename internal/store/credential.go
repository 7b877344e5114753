package store

import (
	"context"
	"errors"
	"strings"
)

// APIKeyPrefix 合法密钥的前缀
const APIKeyPrefix = "sk-"

var (
	// ErrMissingAPIKey 未设置密钥
	ErrMissingAPIKey = errors.New("API密钥未设置")

	// ErrInvalidAPIKey 密钥格式无效（不以 sk- 开头）
	ErrInvalidAPIKey = errors.New("API密钥格式无效")
)

// ValidateAPIKey 只做前缀格式检查
func ValidateAPIKey(key string) error {
	if key == "" {
		return ErrMissingAPIKey
	}
	if !strings.HasPrefix(key, APIKeyPrefix) {
		return ErrInvalidAPIKey
	}
	return nil
}

// MaskAPIKey 脱敏显示密钥
func MaskAPIKey(key string) string {
	if len(key) <= 5 {
		return key
	}
	return key[:5] + "..."
}

// SaveAPIKey 校验后保存密钥
func (s *Store) SaveAPIKey(ctx context.Context, key string) error {
	key = strings.TrimSpace(key)
	if err := ValidateAPIKey(key); err != nil {
		return err
	}
	return s.Set(ctx, KeyAPIKey, key)
}

// APIKey 读取已保存的密钥并校验格式
func (s *Store) APIKey(ctx context.Context) (string, error) {
	key, ok, err := s.Get(ctx, KeyAPIKey)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", ErrMissingAPIKey
	}
	if err := ValidateAPIKey(key); err != nil {
		return "", err
	}
	return key, nil
}

// ClearAPIKey 删除已保存的密钥
func (s *Store) ClearAPIKey(ctx context.Context) error {
	return s.Delete(ctx, KeyAPIKey)
}
