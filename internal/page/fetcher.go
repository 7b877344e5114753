// Package page 提供静态页面来源：通过 HTTP 抓取或从本地文件读取
package page

import (
	"context"
	"fmt"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
)

const (
	userAgent    = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/136.0.0.0 Safari/537.36"
	fetchTimeout = 30 * time.Second
)

// Fetcher 带登录 Cookie 的页面抓取器
type Fetcher struct {
	client  *http.Client
	cookies []*http.Cookie
}

// NewFetcher 创建抓取器，cookie 为浏览器复制的 "k=v; k2=v2" 格式
func NewFetcher(cookie string) (*Fetcher, error) {
	jar, err := cookiejar.New(nil)
	if err != nil {
		return nil, fmt.Errorf("创建cookie jar失败: %w", err)
	}
	return &Fetcher{
		client: &http.Client{
			Jar:     jar,
			Timeout: fetchTimeout,
		},
		cookies: ParseCookies(cookie),
	}, nil
}

// ParseCookies 解析cookie字符串
func ParseCookies(cookieStr string) []*http.Cookie {
	var cookies []*http.Cookie
	for _, pair := range strings.Split(cookieStr, ";") {
		pair = strings.TrimSpace(pair)
		if pair == "" {
			continue
		}
		parts := strings.SplitN(pair, "=", 2)
		if len(parts) == 2 {
			cookies = append(cookies, &http.Cookie{
				Name:  strings.TrimSpace(parts[0]),
				Value: strings.TrimSpace(parts[1]),
			})
		}
	}
	return cookies
}

// Fetch 抓取页面并解析为文档
func (f *Fetcher) Fetch(ctx context.Context, rawURL string) (*goquery.Document, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("无效的页面地址: %w", err)
	}
	if len(f.cookies) > 0 {
		f.client.Jar.SetCookies(u, f.cookies)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Referer", u.Scheme+"://"+u.Host)

	resp, err := f.client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("请求失败，状态码: %d", resp.StatusCode)
	}

	return goquery.NewDocumentFromReader(resp.Body)
}
