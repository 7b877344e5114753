// Package logging 配置全局 slog 日志，并在输出前屏蔽 API 密钥等敏感字段。
package logging

import (
	"context"
	"io"
	"log/slog"
	"regexp"
	"strings"
)

// MaskValue 敏感值的替换文本
const MaskValue = "[MASKED]"

var sensitiveKeys = map[string]bool{
	"api_key":       true,
	"apikey":        true,
	"authorization": true,
	"cookie":        true,
	"password":      true,
	"token":         true,
}

var apiKeyPattern = regexp.MustCompile(`sk-[A-Za-z0-9_-]{4,}`)

// MaskingHandler 包装另一个 slog.Handler，屏蔽敏感属性
type MaskingHandler struct {
	next slog.Handler
}

// NewMaskingHandler 创建屏蔽处理器
func NewMaskingHandler(next slog.Handler) *MaskingHandler {
	return &MaskingHandler{next: next}
}

func (h *MaskingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.next.Enabled(ctx, level)
}

func (h *MaskingHandler) Handle(ctx context.Context, r slog.Record) error {
	masked := slog.NewRecord(r.Time, r.Level, apiKeyPattern.ReplaceAllString(r.Message, MaskValue), r.PC)
	r.Attrs(func(a slog.Attr) bool {
		masked.AddAttrs(maskAttr(a))
		return true
	})
	return h.next.Handle(ctx, masked)
}

func (h *MaskingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	cleaned := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		cleaned[i] = maskAttr(a)
	}
	return &MaskingHandler{next: h.next.WithAttrs(cleaned)}
}

func (h *MaskingHandler) WithGroup(name string) slog.Handler {
	return &MaskingHandler{next: h.next.WithGroup(name)}
}

func maskAttr(a slog.Attr) slog.Attr {
	if sensitiveKeys[strings.ToLower(a.Key)] {
		return slog.String(a.Key, MaskValue)
	}
	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if apiKeyPattern.MatchString(s) {
			return slog.String(a.Key, apiKeyPattern.ReplaceAllString(s, MaskValue))
		}
	case slog.KindGroup:
		group := a.Value.Group()
		cleaned := make([]any, len(group))
		for i, g := range group {
			cleaned[i] = maskAttr(g)
		}
		return slog.Group(a.Key, cleaned...)
	}
	return a
}

// Setup 安装默认日志处理器；verbose 时输出调试日志
func Setup(w io.Writer, verbose bool) *slog.Logger {
	level := slog.LevelInfo
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(NewMaskingHandler(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
	slog.SetDefault(logger)
	return logger
}
