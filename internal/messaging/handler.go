package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"examassist/internal/relay"
	"examassist/internal/scanner"
	"examassist/internal/status"
	"examassist/internal/store"
)

const maxRequestSize = 4 << 20

// BatchProcessor 批量查询答案
type BatchProcessor interface {
	ProcessAll(ctx context.Context, questions []scanner.Question, apiKey string) (relay.Result, error)
}

// QuestionSource 执行一次完整的页面处理流程
type QuestionSource interface {
	GetQuestions(ctx context.Context) ([]scanner.Question, error)
}

// Handler 后台消息分发
type Handler struct {
	Processor BatchProcessor
	Status    status.Publisher

	// Pages 为空时 getQuestions 返回错误
	Pages QuestionSource
}

// Handle 处理一条消息，错误通过 Response.Error 返回
func (h *Handler) Handle(ctx context.Context, req Request) (resp Response) {
	defer func() {
		if r := recover(); r != nil {
			slog.Error("处理消息时发生异常", "action", req.Action, "panic", r)
			resp = Response{Error: fmt.Sprintf("处理消息异常: %v", r)}
		}
	}()

	switch req.Action {
	case ActionIsReady:
		return Response{Ready: true, Success: true}

	case ActionCheckAPIStatus:
		if err := store.ValidateAPIKey(req.APIKey); err != nil {
			return errorResponse(err)
		}
		return Response{Success: true}

	case ActionQueryAI:
		return h.queryAI(ctx, req)

	case ActionGetQuestions:
		if h.Pages == nil {
			return errorResponse(ErrNoPage)
		}
		questions, err := h.Pages.GetQuestions(ctx)
		if err != nil {
			return errorResponse(err)
		}
		return Response{Success: true, Questions: questions}

	case ActionUpdateStatus, ActionUpdatePopupStatus:
		if req.Status != "" {
			e := status.Message(req.Status)
			if req.Timestamp > 0 {
				e.Timestamp = time.UnixMilli(req.Timestamp)
			}
			h.publish(e)
		}
		return Response{Success: true}

	case ActionUpdateProgress:
		if req.Progress != nil {
			h.publish(status.Progress(*req.Progress))
		}
		return Response{Success: true}

	default:
		slog.Warn("未知的消息动作", "action", req.Action)
		return Response{Error: fmt.Sprintf("未知的操作: %s", req.Action)}
	}
}

func (h *Handler) queryAI(ctx context.Context, req Request) Response {
	if len(req.Questions) == 0 {
		return errorResponse(relay.ErrNoQuestions)
	}
	if h.Processor == nil {
		return Response{Error: "后台未就绪"}
	}

	res, err := h.Processor.ProcessAll(ctx, req.Questions, req.APIKey)
	if err != nil {
		slog.Error("AI查询过程出错", "error", err, "processed", res.ProcessedCount)
		return Response{Success: false, Error: err.Error(), ProcessedCount: res.ProcessedCount}
	}
	return Response{Success: true, Answers: res.Answers, ProcessedCount: res.ProcessedCount}
}

func (h *Handler) publish(e status.Event) {
	if h.Status != nil {
		h.Status.Publish(e)
	}
}

// ServeHTTP 以 JSON 接收消息
func (h *Handler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	var req Request
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxRequestSize)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, Response{Error: "无效的请求: " + err.Error()})
		return
	}

	writeJSON(w, http.StatusOK, h.Handle(r.Context(), req))
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Debug("写入响应失败", "error", err)
	}
}
