package page

import (
	"context"
	"fmt"
	"io"
	"os"
	"strings"
	"sync"

	"github.com/PuerkitoBio/goquery"

	"examassist/internal/scanner"
)

// Document 一份已加载的静态页面
type Document struct {
	Source string

	mu  sync.Mutex
	doc *goquery.Document
}

// IsURL 判断来源是否为 http(s) 地址
func IsURL(source string) bool {
	return strings.HasPrefix(source, "http://") || strings.HasPrefix(source, "https://")
}

// Load 从 URL 或本地文件加载页面
func Load(ctx context.Context, f *Fetcher, source string) (*Document, error) {
	if IsURL(source) {
		if f == nil {
			var err error
			if f, err = NewFetcher(""); err != nil {
				return nil, err
			}
		}
		doc, err := f.Fetch(ctx, source)
		if err != nil {
			return nil, fmt.Errorf("获取页面失败: %w", err)
		}
		return &Document{Source: source, doc: doc}, nil
	}

	file, err := os.Open(source)
	if err != nil {
		return nil, fmt.Errorf("打开页面文件失败: %w", err)
	}
	defer file.Close()
	return FromReader(file, source)
}

// FromReader 从 HTML 流创建页面
func FromReader(r io.Reader, source string) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return nil, fmt.Errorf("解析页面失败: %w", err)
	}
	return &Document{Source: source, doc: doc}, nil
}

// Questions 扫描页面上的题目
func (d *Document) Questions(context.Context) ([]scanner.Question, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return scanner.Scan(d.doc), nil
}

// Annotate 把答案标注到页面上
func (d *Document) Annotate(_ context.Context, questions []scanner.Question, answers []string) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return scanner.Annotate(d.doc, questions, answers), nil
}

// ClearAnnotations 清除页面上的答案提示
func (d *Document) ClearAnnotations(context.Context) (int, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return scanner.ClearAnnotations(d.doc), nil
}

// HTML 返回当前页面（含标注）的 HTML
func (d *Document) HTML() (string, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.doc.Html()
}

// WriteFile 把标注后的页面写入文件
func (d *Document) WriteFile(path string) error {
	html, err := d.HTML()
	if err != nil {
		return fmt.Errorf("生成页面失败: %w", err)
	}
	if err := os.WriteFile(path, []byte(html), 0644); err != nil {
		return fmt.Errorf("写入页面失败: %w", err)
	}
	return nil
}
