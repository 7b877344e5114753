package messaging

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"examassist/internal/config"
	"examassist/internal/relay"
	"examassist/internal/scanner"
	"examassist/internal/status"
)

const (
	maxSendAttempts = 3
	sendRetryPause  = time.Second
)

var (
	// ErrNoPage 当前没有打开的页面
	ErrNoPage = errors.New("没有可处理的页面")

	// ErrNoQuestionsFound 页面上没有题目
	ErrNoQuestionsFound = errors.New("未在页面上检测到题目，请确保您正在浏览包含考试题目的页面")

	// ErrBackstopTimeout 整体等待超时
	ErrBackstopTimeout = errors.New("等待AI查询响应超时，请检查网络连接或重试")

	// ErrEmptyAnswers 查询成功但没有答案
	ErrEmptyAnswers = errors.New("AI返回的响应中没有有效的答案")
)

// Page 可以扫描和标注的页面
type Page interface {
	Questions(ctx context.Context) ([]scanner.Question, error)
	Annotate(ctx context.Context, questions []scanner.Question, answers []string) (int, error)
}

// KeySource 提供已保存的 API 密钥
type KeySource interface {
	APIKey(ctx context.Context) (string, error)
}

// PageAgent 页面一侧的处理流程：扫描、查询、标注
type PageAgent struct {
	Page      Page
	Keys      KeySource
	Transport Transport
	Status    status.Publisher

	BatchTimeout time.Duration
	ReadyRetries int
}

// GetQuestions 扫描页面题目，查询答案并标注到页面上，返回扫描到的题目
func (a *PageAgent) GetQuestions(ctx context.Context) (questions []scanner.Question, err error) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("页面处理流程异常", "panic", r)
			questions, err = nil, fmt.Errorf("页面处理异常: %v", r)
		}
	}()

	questions, err = a.Page.Questions(ctx)
	if err != nil {
		return nil, fmt.Errorf("扫描页面失败: %w", err)
	}
	if len(questions) == 0 {
		a.publish(status.Message(status.MsgNoQuestions))
		return nil, ErrNoQuestionsFound
	}
	slog.Info("检测到题目", "count", len(questions))

	key, err := a.Keys.APIKey(ctx)
	if err != nil {
		a.publish(status.Message("错误: " + err.Error()))
		return nil, err
	}

	timeout := a.BatchTimeout
	if timeout <= 0 {
		timeout = config.DefaultBatchTimeout
	}
	batchCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	resp, err := a.query(batchCtx, questions, key)
	if errors.Is(batchCtx.Err(), context.DeadlineExceeded) && ctx.Err() == nil {
		err = ErrBackstopTimeout
	} else if err == nil && !resp.Success {
		err = errors.New(resp.Error)
		if resp.Error == "" {
			err = errors.New("查询失败")
		}
	}
	if err != nil {
		slog.Error("AI查询失败", "error", err)
		a.publish(status.Message("错误: " + err.Error()))
		return nil, err
	}

	if len(resp.Answers) == 0 {
		a.publish(status.Message(status.MsgNoValidAnswers))
		return nil, ErrEmptyAnswers
	}

	answers := relay.Reconcile(resp.Answers, len(questions))
	n, err := a.Page.Annotate(ctx, questions, answers)
	if err != nil {
		return nil, fmt.Errorf("显示答案失败: %w", err)
	}
	slog.Info("答案已显示", "annotated", n, "questions", len(questions))

	return questions, nil
}

// query 发送 queryAI，通信失败时最多重试 3 次
func (a *PageAgent) query(ctx context.Context, questions []scanner.Question, key string) (Response, error) {
	var lastErr error
	for attempt := 0; attempt < maxSendAttempts; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return Response{}, ctx.Err()
			case <-time.After(sendRetryPause):
			}
		}

		if err := WaitReady(ctx, a.Transport, a.ReadyRetries); err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			lastErr = err
			slog.Warn("后台未就绪，稍后重试", "attempt", attempt+1)
			continue
		}

		resp, err := a.Transport.Send(ctx, Request{
			Action:    ActionQueryAI,
			Questions: questions,
			APIKey:    key,
		})
		if err != nil {
			if ctx.Err() != nil {
				return Response{}, ctx.Err()
			}
			lastErr = err
			slog.Warn("发送查询失败，稍后重试", "attempt", attempt+1, "error", err)
			continue
		}
		return resp, nil
	}
	return Response{}, fmt.Errorf("通信错误: %w, 请刷新页面后重试", lastErr)
}

func (a *PageAgent) publish(e status.Event) {
	if a.Status != nil {
		a.Status.Publish(e)
	}
}
