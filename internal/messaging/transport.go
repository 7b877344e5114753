package messaging

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"
)

const (
	// MessagePath 消息接口路径
	MessagePath = "/api/message"

	readyTimeout    = time.Second
	readyRetryPause = 500 * time.Millisecond

	// DefaultReadyRetries 就绪检查的默认次数
	DefaultReadyRetries = 3
)

// ErrNotReady 后台在重试次数内没有就绪
var ErrNotReady = errors.New("后台未能在指定尝试次数内就绪")

// Transport 发送一条消息并等待响应
type Transport interface {
	Send(ctx context.Context, req Request) (Response, error)
}

// Local 进程内直接调用处理器
type Local struct {
	Handler *Handler
}

// Send 直接调用处理器
func (l Local) Send(ctx context.Context, req Request) (Response, error) {
	if l.Handler == nil {
		return Response{}, errors.New("无法连接到后台")
	}
	if err := ctx.Err(); err != nil {
		return Response{}, err
	}
	return l.Handler.Handle(ctx, req), nil
}

// HTTPClient 通过 HTTP 把消息发送到运行中的服务
type HTTPClient struct {
	BaseURL string
	Client  *http.Client
}

// Send POST 到 BaseURL + /api/message
func (c HTTPClient) Send(ctx context.Context, req Request) (Response, error) {
	body, err := json.Marshal(req)
	if err != nil {
		return Response{}, fmt.Errorf("序列化请求失败: %w", err)
	}

	url := strings.TrimSuffix(c.BaseURL, "/") + MessagePath
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return Response{}, fmt.Errorf("创建请求失败: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	client := c.Client
	if client == nil {
		client = http.DefaultClient
	}
	httpResp, err := client.Do(httpReq)
	if err != nil {
		return Response{}, fmt.Errorf("请求失败: %w", err)
	}
	defer httpResp.Body.Close()

	data, err := io.ReadAll(io.LimitReader(httpResp.Body, maxRequestSize))
	if err != nil {
		return Response{}, fmt.Errorf("读取响应失败: %w", err)
	}

	var resp Response
	if err := json.Unmarshal(data, &resp); err != nil {
		return Response{}, fmt.Errorf("解析响应失败: %w, status: %d", err, httpResp.StatusCode)
	}
	return resp, nil
}

// WaitReady 发送 isReady 直到后台就绪，每次等待 1 秒，失败后暂停 500 毫秒
func WaitReady(ctx context.Context, t Transport, retries int) error {
	if retries <= 0 {
		retries = DefaultReadyRetries
	}
	for i := 0; i < retries; i++ {
		probeCtx, cancel := context.WithTimeout(ctx, readyTimeout)
		resp, err := t.Send(probeCtx, Request{Action: ActionIsReady})
		cancel()

		if err == nil && resp.Ready {
			return nil
		}
		slog.Debug("后台未就绪", "attempt", i+1, "retries", retries, "error", err)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(readyRetryPause):
		}
	}
	return ErrNotReady
}
