// Package status 负责处理状态的广播、缓存和状态机
package status

import (
	"fmt"
	"strings"
	"time"
)

// 处理流程中使用的状态文本
const (
	MsgStart          = "开始处理题目..."
	MsgCompleted      = "解答完成，已显示全部答案"
	MsgNoValidAnswers = "AI未返回有效答案，请重试"
	MsgNoQuestions    = "未检测到题目"
)

// criticalErrors 即使已完成也要显示的错误
var criticalErrors = []string{
	"AI未返回有效答案",
	"AI没有生成答案",
	"未能解析到答案",
}

var errorMarkers = []string{"无法连接", "错误", "失败", "Error", "failed", MsgNoQuestions}

// Event 一条状态消息
type Event struct {
	Message   string    `json:"message"`
	Progress  *int      `json:"progress,omitempty"`
	Timestamp time.Time `json:"timestamp"`
}

// Message 创建普通状态消息
func Message(msg string) Event {
	return Event{Message: msg, Timestamp: time.Now()}
}

// GroupMessage 第 n 组（从 1 开始）开始处理
func GroupMessage(n int) Event {
	return Message(fmt.Sprintf("正在处理第%d组题目...", n))
}

// Progress 创建进度消息，百分比限制在 0~100
func Progress(percent int) Event {
	percent = max(0, min(100, percent))
	return Event{
		Message:   fmt.Sprintf("处理进度: %d%%", percent),
		Progress:  &percent,
		Timestamp: time.Now(),
	}
}

// Percent 计算 done/total 的四舍五入百分比
func Percent(done, total int) int {
	if total <= 0 {
		return 0
	}
	return (done*200 + total) / (total * 2)
}

// Terminal 是否为完成消息
func (e Event) Terminal() bool {
	if e.Progress != nil && *e.Progress == 100 {
		return true
	}
	return strings.Contains(e.Message, "解答完成") || strings.Contains(e.Message, "已显示全部答案")
}

// Critical 是否为必须显示的错误
func (e Event) Critical() bool {
	for _, s := range criticalErrors {
		if strings.Contains(e.Message, s) {
			return true
		}
	}
	return false
}

// IsError 是否为错误消息
func (e Event) IsError() bool {
	if e.Critical() {
		return true
	}
	for _, s := range errorMarkers {
		if strings.Contains(e.Message, s) {
			return true
		}
	}
	return false
}
