// Package messaging 实现页面、后台和界面之间的请求/响应协议
package messaging

import "examassist/internal/scanner"

// 支持的动作
const (
	ActionIsReady           = "isReady"
	ActionCheckAPIStatus    = "checkAPIStatus"
	ActionQueryAI           = "queryAI"
	ActionGetQuestions      = "getQuestions"
	ActionUpdateStatus      = "updateStatus"
	ActionUpdateProgress    = "updateProgress"
	ActionUpdatePopupStatus = "updatePopupStatus"
)

// Request 一条消息请求，字段按动作取用
type Request struct {
	Action    string             `json:"action"`
	APIKey    string             `json:"apiKey,omitempty"`
	Questions []scanner.Question `json:"questions,omitempty"`
	Status    string             `json:"status,omitempty"`
	Progress  *int               `json:"progress,omitempty"`
	Timestamp int64              `json:"timestamp,omitempty"`
}

// Response 一条消息响应
type Response struct {
	Ready          bool               `json:"ready,omitempty"`
	Success        bool               `json:"success"`
	Answers        []string           `json:"answers,omitempty"`
	Questions      []scanner.Question `json:"questions,omitempty"`
	Error          string             `json:"error,omitempty"`
	ProcessedCount int                `json:"processedCount,omitempty"`
}

func errorResponse(err error) Response {
	return Response{Success: false, Error: err.Error()}
}
