package models

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strings"
	"sync"
	"time"

	"examassist/internal/config"
)

const (
	httpTimeout     = 90 * time.Second
	maxResponseSize = 4 << 20

	pingSystemPrompt = "你好"
	pingUserPrompt   = "测试连接"
)

var (
	// ErrTimeout 请求在截止时间内没有完成
	ErrTimeout = errors.New("API调用超时")

	// ErrBadResponse 响应缺少 output.choices[0].message
	ErrBadResponse = errors.New("API返回数据格式错误")
)

// APIError 接口返回非 200 状态码
type APIError struct {
	StatusCode int
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API调用失败: %d - %s", e.StatusCode, e.Body)
}

var (
	sharedHTTPClient *http.Client
	httpClientOnce   sync.Once
)

// getHTTPClient 获取共享的 HTTP 客户端
func getHTTPClient() *http.Client {
	httpClientOnce.Do(func() {
		sharedHTTPClient = &http.Client{
			Timeout: httpTimeout,
			Transport: &http.Transport{
				MaxIdleConns:        100,
				MaxIdleConnsPerHost: 10,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	})
	return sharedHTTPClient
}

// Message 对话消息
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerationRequest DashScope 文本生成请求
type GenerationRequest struct {
	Model string `json:"model"`
	Input struct {
		Messages []Message `json:"messages"`
	} `json:"input"`
	Parameters struct {
		ResultFormat string `json:"result_format"`
	} `json:"parameters"`
}

// GenerationResponse DashScope 文本生成响应
type GenerationResponse struct {
	RequestID string `json:"request_id"`
	Output    struct {
		Choices []struct {
			Message      *Message `json:"message"`
			FinishReason string   `json:"finish_reason"`
		} `json:"choices"`
	} `json:"output"`
	Usage struct {
		InputTokens  int `json:"input_tokens"`
		OutputTokens int `json:"output_tokens"`
		TotalTokens  int `json:"total_tokens"`
	} `json:"usage"`
}

// Client DashScope 对话客户端
type Client struct {
	Endpoint          string
	Model             string
	SystemPrompt      string
	ConnectionTimeout time.Duration

	// HTTPClient 为空时使用共享客户端
	HTTPClient *http.Client
}

// NewClient 根据配置创建客户端
func NewClient(cfg config.ConfigFile) *Client {
	return &Client{
		Endpoint:          cfg.Endpoint,
		Model:             cfg.Model,
		SystemPrompt:      cfg.SystemPrompt,
		ConnectionTimeout: time.Duration(cfg.ConnectionTimeout) * time.Second,
	}
}

func (c *Client) httpClient() *http.Client {
	if c.HTTPClient != nil {
		return c.HTTPClient
	}
	return getHTTPClient()
}

// Query 发送一次对话请求，返回模型生成的原始文本
func (c *Client) Query(ctx context.Context, apiKey, prompt string) (string, error) {
	if prompt == "" {
		return "", fmt.Errorf("题目内容为空")
	}
	return c.generate(ctx, apiKey, c.SystemPrompt, prompt)
}

// Ping 用一条简短消息测试密钥和网络是否可用
func (c *Client) Ping(ctx context.Context, apiKey string) error {
	timeout := c.ConnectionTimeout
	if timeout <= 0 {
		timeout = config.DefaultConnectionTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	if _, err := c.generate(ctx, apiKey, pingSystemPrompt, pingUserPrompt); err != nil {
		if errors.Is(err, ErrTimeout) {
			return fmt.Errorf("API连接超时: %w", err)
		}
		return err
	}
	return nil
}

func (c *Client) generate(ctx context.Context, apiKey, system, user string) (string, error) {
	var reqBody GenerationRequest
	reqBody.Model = c.Model
	reqBody.Input.Messages = []Message{
		{Role: "system", Content: system},
		{Role: "user", Content: user},
	}
	reqBody.Parameters.ResultFormat = "message"

	jsonData, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("序列化请求失败: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.Endpoint, bytes.NewReader(jsonData))
	if err != nil {
		return "", fmt.Errorf("创建请求失败: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+apiKey)

	resp, err := c.httpClient().Do(req)
	if err != nil {
		if isTimeout(ctx, err) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("API网络错误: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		if isTimeout(ctx, err) {
			return "", ErrTimeout
		}
		return "", fmt.Errorf("读取响应失败: %w", err)
	}

	if resp.StatusCode != http.StatusOK {
		return "", &APIError{StatusCode: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}

	var genResp GenerationResponse
	if err := json.Unmarshal(body, &genResp); err != nil {
		return "", fmt.Errorf("%w: %v", ErrBadResponse, err)
	}
	if len(genResp.Output.Choices) == 0 || genResp.Output.Choices[0].Message == nil {
		return "", ErrBadResponse
	}

	return genResp.Output.Choices[0].Message.Content, nil
}

func isTimeout(ctx context.Context, err error) bool {
	if errors.Is(err, context.DeadlineExceeded) || errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
