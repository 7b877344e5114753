package web

import (
	"context"
	"embed"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"examassist/internal/browser"
	"examassist/internal/config"
	"examassist/internal/messaging"
	"examassist/internal/page"
	"examassist/internal/relay"
	"examassist/internal/scanner"
	"examassist/internal/status"
	"examassist/internal/store"
)

//go:embed static
var staticFiles embed.FS

const (
	shutdownTimeout   = 5 * time.Second
	readHeaderTimeout = 10 * time.Second
	runExitTimeout    = 5 * time.Second
)

// Model 对话模型：查询答案和测试连接
type Model interface {
	relay.Querier
	Ping(ctx context.Context, apiKey string) error
}

// annotatedPage 可以清除旧标注的页面
type annotatedPage interface {
	messaging.Page
	ClearAnnotations(ctx context.Context) (int, error)
}

// Server Web服务器，同时充当后台和界面
type Server struct {
	cfg         *config.Config
	store       *store.Store
	model       Model
	broadcaster *status.Broadcaster
	tracker     *status.Tracker
	handler     *messaging.Handler

	mu       sync.RWMutex
	agent    *messaging.PageAgent
	document *page.Document
	session  *browser.Session

	// runID 标识当前拥有状态机的任务，旧任务的状态消息会被丢弃
	runID     uint64
	runCancel context.CancelFunc
	runDone   chan struct{}
}

// NewServer 创建服务器
func NewServer(cfg *config.Config, st *store.Store, model Model) *Server {
	snapshot := cfg.Snapshot()
	tracker := status.NewTracker()
	broadcaster := status.NewBroadcaster(st, tracker)

	s := &Server{
		cfg:         cfg,
		store:       st,
		model:       model,
		broadcaster: broadcaster,
		tracker:     tracker,
	}
	s.handler = &messaging.Handler{
		Processor: relay.NewProcessor(model, broadcaster, snapshot),
		Status:    broadcaster,
		Pages:     s,
	}
	return s
}

// Broadcaster 状态广播器
func (s *Server) Broadcaster() *status.Broadcaster {
	return s.broadcaster
}

// Handler 返回全部路由
func (s *Server) Handler() (http.Handler, error) {
	mux := http.NewServeMux()

	mux.Handle(messaging.MessagePath, s.handler)
	mux.HandleFunc("/api/events", s.handleSSE)
	mux.HandleFunc("/api/status", s.handleStatus)
	mux.HandleFunc("/api/key", s.handleKey)
	mux.HandleFunc("/api/key/test", s.handleTestKey)
	mux.HandleFunc("/api/start", s.handleStart)
	mux.HandleFunc("/api/stop", s.handleStop)
	mux.HandleFunc("/api/page", s.handlePage)

	staticFS, err := fs.Sub(staticFiles, "static")
	if err != nil {
		return nil, err
	}
	mux.Handle("/", http.FileServer(http.FS(staticFS)))

	return recoverMiddleware(mux), nil
}

// Run 启动服务器，ctx 结束时优雅关闭
func (s *Server) Run(ctx context.Context, port int) error {
	handler, err := s.Handler()
	if err != nil {
		return err
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf("127.0.0.1:%d", port),
		Handler:           handler,
		ReadHeaderTimeout: readHeaderTimeout,
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("服务器已启动", "url", "http://"+srv.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		s.Close()
		return srv.Shutdown(shutdownCtx)
	})
	return g.Wait()
}

// Close 取消正在运行的任务并关闭浏览器
func (s *Server) Close() {
	s.mu.Lock()
	s.runID++
	if s.runCancel != nil {
		s.runCancel()
		s.runCancel = nil
	}
	session := s.session
	s.session = nil
	s.mu.Unlock()

	if session != nil {
		session.Stop()
	}
	s.broadcaster.Close()
}

// GetQuestions 在当前页面上执行处理流程
func (s *Server) GetQuestions(ctx context.Context) ([]scanner.Question, error) {
	s.mu.RLock()
	agent := s.agent
	s.mu.RUnlock()
	if agent == nil {
		return nil, messaging.ErrNoPage
	}
	return agent.GetQuestions(ctx)
}

func recoverMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if rec := recover(); rec != nil {
				slog.Error("处理请求时发生异常", "path", r.URL.Path, "panic", rec)
				http.Error(w, "Internal Server Error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("写入响应失败", "error", err)
	}
}

func writeResult(w http.ResponseWriter, success bool, message string) {
	writeJSON(w, http.StatusOK, map[string]any{"success": success, "message": message})
}
