// Package relay 把题目分组发送给模型并汇总答案
package relay

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"examassist/internal/config"
	"examassist/internal/extractor"
	"examassist/internal/scanner"
	"examassist/internal/status"
	"examassist/internal/store"
)

const (
	defaultGroupSize    = config.DefaultGroupSize
	defaultGroupTimeout = config.DefaultGroupTimeout
)

var (
	// ErrNoQuestions 没有可处理的题目
	ErrNoQuestions = errors.New("无效的题目数据")

	// ErrNoAnswers 模型响应中提取不到任何答案
	ErrNoAnswers = errors.New(status.MsgNoValidAnswers)
)

// QueryError 某一组题目处理失败，Group 从 1 开始
type QueryError struct {
	Group int
	Err   error
}

func (e *QueryError) Error() string {
	return fmt.Sprintf("第%d组题目处理失败: %v", e.Group, e.Err)
}

func (e *QueryError) Unwrap() error {
	return e.Err
}

// Querier 发送提示词并返回模型原始文本
type Querier interface {
	Query(ctx context.Context, apiKey, prompt string) (string, error)
}

// Result 一次批量处理的结果
type Result struct {
	Success        bool     `json:"success"`
	Answers        []string `json:"answers,omitempty"`
	ProcessedCount int      `json:"processedCount"`
}

// Processor 顺序处理所有题目组
type Processor struct {
	Querier      Querier
	Notifier     status.Publisher
	GroupSize    int
	GroupTimeout time.Duration
}

// NewProcessor 创建处理器，notifier 为 nil 时丢弃状态消息
func NewProcessor(q Querier, notifier status.Publisher, cfg config.ConfigFile) *Processor {
	if notifier == nil {
		notifier = status.Discard
	}
	return &Processor{
		Querier:      q,
		Notifier:     notifier,
		GroupSize:    cfg.GroupSize,
		GroupTimeout: time.Duration(cfg.GroupTimeoutSec) * time.Second,
	}
}

func (p *Processor) notify(e status.Event) {
	if p.Notifier != nil {
		p.Notifier.Publish(e)
	}
}

// ProcessAll 处理全部题目，成功时答案数量与题目数量一致。
// 任意一组失败都会中止后续处理。
func (p *Processor) ProcessAll(ctx context.Context, questions []scanner.Question, apiKey string) (Result, error) {
	if len(questions) == 0 {
		return Result{}, ErrNoQuestions
	}
	if err := store.ValidateAPIKey(apiKey); err != nil {
		return Result{}, err
	}

	groupTimeout := p.GroupTimeout
	if groupTimeout <= 0 {
		groupTimeout = defaultGroupTimeout
	}

	groups := Groups(questions, p.GroupSize)
	slog.Info("开始处理题目", "questions", len(questions), "groups", len(groups))
	p.notify(status.Message(status.MsgStart))

	answers := make([]string, 0, len(questions))
	for i, group := range groups {
		p.notify(status.GroupMessage(i + 1))

		groupAnswers, err := p.processGroup(ctx, group, apiKey, groupTimeout)
		if err != nil {
			slog.Error("处理题目组失败", "group", i+1, "error", err)
			return Result{ProcessedCount: i}, &QueryError{Group: i + 1, Err: err}
		}
		answers = append(answers, groupAnswers...)

		p.notify(status.Progress(status.Percent(i+1, len(groups))))
	}

	answers = Reconcile(answers, len(questions))
	p.notify(status.Message(status.MsgCompleted))
	slog.Info("所有题目处理完成", "answers", len(answers))

	return Result{Success: true, Answers: answers, ProcessedCount: len(groups)}, nil
}

func (p *Processor) processGroup(ctx context.Context, group []scanner.Question, apiKey string, timeout time.Duration) ([]string, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	raw, err := p.Querier.Query(ctx, apiKey, BuildPrompt(group))
	if err != nil {
		return nil, err
	}
	slog.Debug("收到模型响应", "length", len(raw))

	found := extractor.Extract(raw, group)
	if len(found) == 0 {
		slog.Debug("未能解析到答案", "response", raw)
		p.notify(status.Message(status.MsgNoValidAnswers))
		return nil, ErrNoAnswers
	}
	return Reconcile(found, len(group)), nil
}

// Reconcile 把答案数量对齐到题目数量：不足时用 unknown 补齐，多余时截断
func Reconcile(answers []string, n int) []string {
	out := make([]string, n)
	copy(out, answers)

	switch {
	case len(answers) < n:
		slog.Warn("答案数量少于题目数量，使用默认值补齐",
			"answers", len(answers), "questions", n, "padded", n-len(answers))
		for i := len(answers); i < n; i++ {
			out[i] = scanner.Unknown
		}
	case len(answers) > n:
		slog.Warn("答案数量多于题目数量，截断多余答案",
			"answers", len(answers), "questions", n, "dropped", len(answers)-n)
	}
	return out
}
