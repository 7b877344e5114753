// Package browser 通过 chromedp 驱动真实浏览器中的考试页面
package browser

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"examassist/internal/page"
	"examassist/internal/scanner"
)

const (
	userAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"

	pageLoadWaitTime = 3 * time.Second
	browserTimeout   = 30 * time.Minute
)

// ErrNotStarted 浏览器尚未启动
var ErrNotStarted = errors.New("浏览器未启动")

// Options 浏览器启动参数
type Options struct {
	ChromeBinaryPath string
	Headless         bool
	// Cookie 打开页面前注入，格式同浏览器复制的 Cookie 头
	Cookie string
}

// Session 一个浏览器标签页
type Session struct {
	opts Options

	mu            sync.Mutex
	allocCtx      context.Context
	allocCancel   context.CancelFunc
	ctx           context.Context
	cancel        context.CancelFunc
	timeoutCancel context.CancelFunc
	url           string
}

// NewSession 创建会话，调用 Start 后才会启动浏览器
func NewSession(opts Options) *Session {
	return &Session{opts: opts}
}

// Start 启动浏览器
func (s *Session) Start() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ctx != nil {
		return nil
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", s.opts.Headless),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("disable-blink-features", "AutomationControlled"),
		chromedp.UserAgent(userAgent),
	)
	if s.opts.ChromeBinaryPath != "" {
		opts = append(opts, chromedp.ExecPath(s.opts.ChromeBinaryPath))
	}

	s.allocCtx, s.allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	s.ctx, s.cancel = chromedp.NewContext(s.allocCtx)
	s.ctx, s.timeoutCancel = context.WithTimeout(s.ctx, browserTimeout)

	// 第一次 Run 才会真正拉起浏览器进程
	if err := chromedp.Run(s.ctx); err != nil {
		s.stopLocked()
		return fmt.Errorf("启动浏览器失败: %w", err)
	}
	slog.Info("浏览器已启动", "headless", s.opts.Headless)
	return nil
}

// Stop 关闭浏览器
func (s *Session) Stop() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.stopLocked()
}

func (s *Session) stopLocked() {
	if s.timeoutCancel != nil {
		s.timeoutCancel()
		s.timeoutCancel = nil
	}
	if s.cancel != nil {
		s.cancel()
		s.cancel = nil
	}
	if s.allocCancel != nil {
		s.allocCancel()
		s.allocCancel = nil
	}
	s.ctx = nil
	slog.Debug("浏览器已关闭")
}

// run 在标签页上执行动作，调用方的 ctx 取消时中止
func (s *Session) run(ctx context.Context, actions ...chromedp.Action) error {
	s.mu.Lock()
	tab := s.ctx
	s.mu.Unlock()
	if tab == nil {
		return ErrNotStarted
	}

	runCtx, cancel := context.WithCancel(tab)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	return chromedp.Run(runCtx, actions...)
}

// Open 注入 Cookie 后打开页面
func (s *Session) Open(ctx context.Context, url string) error {
	cookies := page.ParseCookies(s.opts.Cookie)

	err := s.run(ctx,
		chromedp.ActionFunc(func(ctx context.Context) error {
			for _, c := range cookies {
				if err := network.SetCookie(c.Name, c.Value).WithURL(url).Do(ctx); err != nil {
					return fmt.Errorf("设置Cookie失败: %w", err)
				}
			}
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
		chromedp.Sleep(pageLoadWaitTime),
	)
	if err != nil {
		return fmt.Errorf("打开页面失败: %w", err)
	}

	s.mu.Lock()
	s.url = url
	s.mu.Unlock()
	slog.Info("页面已打开", "url", url, "cookies", len(cookies))
	return nil
}

// URL 当前打开的页面
func (s *Session) URL() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.url
}

// Questions 读取当前 DOM 并扫描题目
func (s *Session) Questions(ctx context.Context) ([]scanner.Question, error) {
	var html string
	if err := s.run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return nil, fmt.Errorf("读取页面失败: %w", err)
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("解析页面失败: %w", err)
	}
	return scanner.Scan(doc), nil
}

type hintData struct {
	GroupKey string `json:"groupKey"`
	Text     string `json:"text"`
	Style    string `json:"style"`
}

type selectors struct {
	Item  string `json:"item"`
	Title string `json:"title"`
	Hint  string `json:"hint"`
}

const annotateScript = `
(function(hints, sel) {
	var count = 0;
	hints.forEach(function(h) {
		if (!h.groupKey) return;
		var inputs = document.getElementsByName(h.groupKey);
		if (!inputs.length) return;
		var item = inputs[0].closest(sel.item);
		if (!item) return;
		var title = item.querySelector(sel.title);
		if (!title) return;
		var span = title.querySelector('.' + sel.hint);
		if (!span) {
			span = document.createElement('span');
			span.className = sel.hint;
			title.appendChild(span);
		}
		span.textContent = h.text;
		span.style.cssText = h.style;
		count++;
	});
	return count;
})(%s, %s)`

const clearScript = `
(function(hint) {
	var nodes = document.querySelectorAll('.' + hint);
	nodes.forEach(function(n) { n.remove(); });
	return nodes.length;
})(%s)`

// Annotate 在页面上显示答案，返回成功标注的题目数
func (s *Session) Annotate(ctx context.Context, questions []scanner.Question, answers []string) (int, error) {
	hints := make([]hintData, len(questions))
	for i, q := range questions {
		answer := scanner.Unknown
		if i < len(answers) {
			answer = answers[i]
		}
		h := scanner.HintFor(q, answer)
		hints[i] = hintData{GroupKey: q.GroupKey, Text: h.Text, Style: h.Style()}
	}

	hintJSON, err := json.Marshal(hints)
	if err != nil {
		return 0, fmt.Errorf("序列化答案失败: %w", err)
	}
	selJSON, err := json.Marshal(selectors{
		Item:  scanner.ItemSelector,
		Title: scanner.TitleSelector,
		Hint:  scanner.HintClass,
	})
	if err != nil {
		return 0, fmt.Errorf("序列化选择器失败: %w", err)
	}

	var count int
	script := fmt.Sprintf(annotateScript, hintJSON, selJSON)
	if err := s.run(ctx, chromedp.Evaluate(script, &count)); err != nil {
		return 0, fmt.Errorf("显示答案失败: %w", err)
	}
	slog.Debug("页面标注完成", "annotated", count, "questions", len(questions))
	return count, nil
}

// ClearAnnotations 移除页面上的答案提示
func (s *Session) ClearAnnotations(ctx context.Context) (int, error) {
	hintJSON, _ := json.Marshal(scanner.HintClass)
	var count int
	if err := s.run(ctx, chromedp.Evaluate(fmt.Sprintf(clearScript, hintJSON), &count)); err != nil {
		return 0, fmt.Errorf("清除答案失败: %w", err)
	}
	return count, nil
}

// Cookies 导出当前页面的 Cookie 字符串
func (s *Session) Cookies(ctx context.Context) (string, error) {
	var cookies []*network.Cookie
	err := s.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		var err error
		cookies, err = network.GetCookies().Do(ctx)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("获取Cookie失败: %w", err)
	}

	parts := make([]string, 0, len(cookies))
	for _, c := range cookies {
		parts = append(parts, fmt.Sprintf("%s=%s", c.Name, c.Value))
	}
	return strings.Join(parts, "; "), nil
}
