package report

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examassist/internal/scanner"
)

func TestWrite(t *testing.T) {
	sheet := &Sheet{
		Source: "exam.html",
		Model:  "qwen-plus",
		Questions: []scanner.Question{
			{Text: "1. 麻黄的功效", Type: scanner.QuestionTypeSingle, Ordinal: "1"},
			{Text: "补气药 | 有哪些", Type: scanner.QuestionTypeMultiple},
			{Text: strings.Repeat("长", 60), Type: scanner.QuestionTypeSingle, Ordinal: "3"},
		},
		Answers:   []string{"A", "ACD", scanner.Unknown},
		Generated: time.Date(2026, 10, 17, 9, 30, 0, 0, time.UTC),
	}
	assert.Equal(t, 1, sheet.Unknown())

	var buf bytes.Buffer
	require.NoError(t, Write(&buf, sheet))
	out := buf.String()

	assert.Contains(t, out, "# 答题卡")
	assert.Contains(t, out, "2026-10-17 09:30:00")
	assert.Contains(t, out, "qwen-plus")
	assert.Contains(t, out, "mermaid")
	assert.Contains(t, out, "1 道题未能确定答案")
	assert.Contains(t, out, "{答案: A}")
	assert.Contains(t, out, "{多选答案: A C D}")
	assert.Contains(t, out, "{答案: 未知}")
	assert.Contains(t, out, "补气药 ｜ 有哪些")
	assert.Contains(t, out, strings.Repeat("长", 40)+"...")
}

func TestWriteEmpty(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, Write(&buf, &Sheet{Source: "empty.html"}))
	assert.Contains(t, buf.String(), "页面上没有检测到题目")
	assert.NotContains(t, buf.String(), "## 答案")
}
