package web

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"examassist/internal/browser"
	"examassist/internal/config"
	"examassist/internal/messaging"
	"examassist/internal/page"
	"examassist/internal/relay"
	"examassist/internal/status"
	"examassist/internal/store"
)

// handleKey 查看、保存或删除 API 密钥
func (s *Server) handleKey(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		key, err := s.store.APIKey(r.Context())
		if err != nil {
			writeJSON(w, http.StatusOK, map[string]any{"has_key": false, "message": err.Error()})
			return
		}
		writeJSON(w, http.StatusOK, map[string]any{"has_key": true, "masked": store.MaskAPIKey(key)})

	case http.MethodPost:
		var req struct {
			APIKey string `json:"apiKey"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if err := s.store.SaveAPIKey(r.Context(), req.APIKey); err != nil {
			writeResult(w, false, err.Error())
			return
		}
		slog.Info("API密钥已保存", "key", store.MaskAPIKey(strings.TrimSpace(req.APIKey)))
		writeResult(w, true, "API密钥已保存")

	case http.MethodDelete:
		if err := s.store.ClearAPIKey(r.Context()); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
		writeResult(w, true, "API密钥已清除")

	default:
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
	}
}

// handleTestKey 测试 API 连接，未传密钥时使用已保存的
func (s *Server) handleTestKey(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		APIKey string `json:"apiKey"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil && !errors.Is(err, io.EOF) {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}

	key := strings.TrimSpace(req.APIKey)
	if key == "" {
		var err error
		if key, err = s.store.APIKey(r.Context()); err != nil {
			writeResult(w, false, err.Error())
			return
		}
	} else if err := store.ValidateAPIKey(key); err != nil {
		writeResult(w, false, err.Error())
		return
	}

	s.broadcaster.Publish(status.Message("正在验证API连接..."))
	if err := s.model.Ping(r.Context(), key); err != nil {
		msg := fmt.Sprintf("API连接测试失败: %v", err)
		s.broadcaster.Publish(status.Message(msg))
		writeResult(w, false, msg)
		return
	}
	s.broadcaster.Publish(status.Message("API连接测试成功"))
	writeResult(w, true, "API密钥有效，连接正常")
}

// StatusResponse /api/status 的响应
type StatusResponse struct {
	Message  string `json:"message"`
	Progress *int   `json:"progress,omitempty"`
	State    string `json:"state"`
	CanStart bool   `json:"canStart"`
}

// handleStatus 获取状态
func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	resp := StatusResponse{
		Message:  `请点击"开始解答"按钮开始分析题目`,
		State:    s.tracker.State().String(),
		CanStart: s.tracker.CanStart(),
	}
	if last, ok := s.broadcaster.Last(r.Context()); ok {
		resp.Message = last.Message
		resp.Progress = last.Progress
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleStart 打开页面并开始解答，处理中时拒绝
func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req struct {
		URL     string `json:"url"`
		Browser bool   `json:"browser"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	}
	req.URL = strings.TrimSpace(req.URL)
	if req.URL == "" {
		writeResult(w, false, "请输入考试页面地址")
		return
	}
	if req.Browser && !page.IsURL(req.URL) {
		writeResult(w, false, "浏览器模式只支持 http(s) 地址")
		return
	}

	if !s.tracker.Begin() {
		writeJSON(w, http.StatusConflict, map[string]any{"success": false, "message": "任务正在运行中"})
		return
	}

	// 先取得所有权，上一次任务可能还在标注页面
	s.mu.Lock()
	s.runID++
	id := s.runID
	prevCancel, prevDone := s.runCancel, s.runDone
	s.mu.Unlock()
	if !waitRun(prevDone, runExitTimeout) && prevCancel != nil {
		slog.Warn("上一次任务未能及时结束，已取消")
		prevCancel()
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	s.mu.Lock()
	if s.runID != id {
		// 等待期间被停止
		s.mu.Unlock()
		cancel()
		writeResult(w, false, "任务已停止")
		return
	}
	s.runCancel, s.runDone = cancel, done
	s.mu.Unlock()

	go func() {
		defer close(done)
		s.run(ctx, id, req.URL, req.Browser)
	}()

	writeResult(w, true, "任务已启动")
}

// runPublisher 只转发仍拥有状态机的任务的消息
func (s *Server) runPublisher(id uint64) status.Publisher {
	return status.Func(func(e status.Event) {
		s.mu.RLock()
		defer s.mu.RUnlock()
		if s.runID != id {
			slog.Debug("丢弃已停止任务的状态", "message", e.Message)
			return
		}
		s.broadcaster.Publish(e)
	})
}

// run 异步执行一次完整的解答流程
func (s *Server) run(ctx context.Context, id uint64, url string, useBrowser bool) {
	pub := s.runPublisher(id)
	defer func() {
		if rec := recover(); rec != nil {
			slog.Error("解答任务异常", "panic", rec)
			pub.Publish(status.Message(fmt.Sprintf("错误: %v", rec)))
		}
		// 流程异常退出时不能停留在处理中
		s.mu.RLock()
		if s.runID == id && s.tracker.State() == status.StateProcessing {
			s.tracker.Fail()
		}
		s.mu.RUnlock()
	}()

	p, err := s.openPage(ctx, pub, url, useBrowser)
	if err != nil {
		slog.Error("打开页面失败", "url", url, "error", err)
		pub.Publish(status.Message("错误: " + err.Error()))
		return
	}
	if n, err := p.ClearAnnotations(ctx); err == nil && n > 0 {
		slog.Debug("已清除旧的答案提示", "count", n)
	}

	snapshot := s.cfg.Snapshot()
	handler := &messaging.Handler{
		Processor: relay.NewProcessor(s.model, pub, snapshot),
		Status:    pub,
	}
	agent := &messaging.PageAgent{
		Page:         p,
		Keys:         s.store,
		Transport:    messaging.Local{Handler: handler},
		Status:       pub,
		BatchTimeout: batchTimeout(snapshot.BatchTimeoutSec),
	}
	handler.Pages = agent
	s.mu.Lock()
	s.agent = agent
	s.mu.Unlock()

	resp, err := messaging.Local{Handler: handler}.Send(ctx, messaging.Request{Action: messaging.ActionGetQuestions})
	if err != nil {
		pub.Publish(status.Message("错误: " + err.Error()))
		return
	}
	if resp.Error != "" {
		slog.Warn("解答失败", "error", resp.Error)
		return
	}
	slog.Info("解答完成", "questions", len(resp.Questions))
}

// openPage 关闭上一次的浏览器，按模式打开新页面
func (s *Server) openPage(ctx context.Context, pub status.Publisher, url string, useBrowser bool) (annotatedPage, error) {
	snapshot := s.cfg.Snapshot()

	s.mu.Lock()
	previous := s.session
	s.session = nil
	s.document = nil
	s.mu.Unlock()
	if previous != nil {
		previous.Stop()
	}

	if useBrowser {
		pub.Publish(status.Message("正在启动浏览器..."))
		session := browser.NewSession(browser.Options{
			ChromeBinaryPath: snapshot.ChromeBinaryPath,
			Cookie:           snapshot.Cookie,
		})
		if err := session.Start(); err != nil {
			return nil, err
		}
		if err := session.Open(ctx, url); err != nil {
			session.Stop()
			return nil, err
		}
		if cookie, err := session.Cookies(ctx); err == nil && cookie != "" {
			if err := s.cfg.UpdateCookie(cookie); err != nil {
				slog.Warn("保存Cookie失败", "error", err)
			}
		}
		s.mu.Lock()
		s.session = session
		s.mu.Unlock()
		return session, nil
	}

	fetcher, err := page.NewFetcher(snapshot.Cookie)
	if err != nil {
		return nil, err
	}
	doc, err := page.Load(ctx, fetcher, url)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	s.document = doc
	s.mu.Unlock()
	return doc, nil
}

// handleStop 停止当前任务
func (s *Server) handleStop(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.Lock()
	s.runID++
	cancel, done := s.runCancel, s.runDone
	s.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	if !waitRun(done, runExitTimeout) {
		slog.Warn("任务未能及时退出")
	}

	s.tracker.Reset()
	s.broadcaster.Publish(status.Message("任务已停止"))
	writeResult(w, true, "任务已停止")
}

// waitRun 等待任务退出，超时返回 false
func waitRun(done <-chan struct{}, timeout time.Duration) bool {
	if done == nil {
		return true
	}
	select {
	case <-done:
		return true
	case <-time.After(timeout):
		return false
	}
}

// handlePage 返回最近一次静态页面（含答案标注）的 HTML
func (s *Server) handlePage(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	s.mu.RLock()
	doc := s.document
	s.mu.RUnlock()
	if doc == nil {
		http.Error(w, messaging.ErrNoPage.Error(), http.StatusNotFound)
		return
	}

	html, err := doc.HTML()
	if err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "text/html; charset=utf-8")
	_, _ = io.WriteString(w, html)
}

// handleSSE SSE事件流，连接后先发送最近一条状态
func (s *Server) handleSSE(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "Streaming unsupported", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")

	events, cancel := s.broadcaster.Subscribe()
	defer cancel()

	if last, ok := s.broadcaster.Last(r.Context()); ok {
		writeEvent(w, last)
	}
	flusher.Flush()

	for {
		select {
		case e, ok := <-events:
			if !ok {
				return
			}
			writeEvent(w, e)
			flusher.Flush()
		case <-r.Context().Done():
			return
		}
	}
}

func writeEvent(w io.Writer, e status.Event) {
	data, err := json.Marshal(e)
	if err != nil {
		return
	}
	fmt.Fprintf(w, "data: %s\n\n", data)
}

func batchTimeout(sec int) time.Duration {
	if sec <= 0 {
		return config.DefaultBatchTimeout
	}
	return time.Duration(sec) * time.Second
}
