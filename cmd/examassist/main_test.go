package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testKey = "sk-test1234567890"

const examPage = `<html><body>
<div class="exam-item">
  <div class="exam-item-title"><span class="exam-stem">1. 下列哪项属于解表药？</span></div>
  <ul>
    <li><input type="radio" id="q1a" name="danxuan┣1"><label for="q1a">A. 麻黄</label></li>
    <li><input type="radio" id="q1b" name="danxuan┣1"><label for="q1b">B. 大黄</label></li>
  </ul>
</div>
<div class="exam-item">
  <div class="exam-item-title"><span class="exam-stem">2. 以下属于补气药的是</span></div>
  <ul>
    <li><span><input type="checkbox" name="duoxuan_2">A. 人参</span></li>
    <li><span><input type="checkbox" name="duoxuan_2">B. 黄芪</span></li>
    <li><span><input type="checkbox" name="duoxuan_2">C. 附子</span></li>
  </ul>
</div>
</body></html>`

// writeConfig 写入指向 endpoint 的配置，数据目录放在临时目录
func writeConfig(t *testing.T, endpoint string) string {
	t.Helper()
	dir := t.TempDir()
	data, err := json.Marshal(map[string]any{
		"endpoint": endpoint,
		"data_dir": filepath.Join(dir, "data"),
	})
	require.NoError(t, err)

	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, data, 0o600))
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCommand()
	cmd.SetOut(&out)
	cmd.SetErr(io.Discard)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestKeyCommands(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	out, err := run(t, "--config", cfgPath, "key", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "尚未设置API密钥")

	_, err = run(t, "--config", cfgPath, "key", "set", "bad-key")
	assert.EqualError(t, err, "API密钥格式无效")

	out, err = run(t, "--config", cfgPath, "key", "set", testKey)
	require.NoError(t, err)
	assert.Contains(t, out, "sk-te...")

	out, err = run(t, "--config", cfgPath, "key", "show")
	require.NoError(t, err)
	assert.Equal(t, "sk-te...\n", out)

	out, err = run(t, "--config", cfgPath, "key", "clear")
	require.NoError(t, err)
	assert.Contains(t, out, "API密钥已清除")

	out, err = run(t, "--config", cfgPath, "key", "show")
	require.NoError(t, err)
	assert.Contains(t, out, "尚未设置API密钥")
}

type fakePinger struct{ err error }

func (p fakePinger) Ping(context.Context, string) error { return p.err }

func TestKeyTestCommand(t *testing.T) {
	opts := &globalOptions{configPath: writeConfig(t, "http://127.0.0.1:1")}

	var out bytes.Buffer
	cmd := newKeyTestCommand(opts, fakePinger{})
	cmd.SetOut(&out)
	cmd.SetArgs([]string{testKey})
	require.NoError(t, cmd.Execute())
	assert.Contains(t, out.String(), "连接正常")

	cmd = newKeyTestCommand(opts, fakePinger{err: errors.New("API调用失败: 401 - denied")})
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{testKey})
	assert.ErrorContains(t, cmd.Execute(), "API连接测试失败")

	// 没有保存的密钥
	cmd = newKeyTestCommand(opts, fakePinger{})
	cmd.SetOut(io.Discard)
	cmd.SetArgs([]string{})
	assert.EqualError(t, cmd.Execute(), "API密钥未设置")
}

func TestInvalidConfig(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"group_size": -1}`), 0o600))

	_, err := run(t, "--config", path, "key", "show")
	assert.ErrorContains(t, err, "group_size")
}

func TestAnswerStaticFile(t *testing.T) {
	var prompts []string
	api := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			Input struct {
				Messages []struct {
					Content string `json:"content"`
				} `json:"messages"`
			} `json:"input"`
		}
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&req))
		if n := len(req.Input.Messages); n > 0 {
			prompts = append(prompts, req.Input.Messages[n-1].Content)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = io.WriteString(w, `{"output":{"choices":[{"message":{"role":"assistant",
			"content":"问题1：麻黄发汗解表\n{答案: A}\n问题2：人参黄芪补气\n{答案: A,B}"}}]}}`)
	}))
	defer api.Close()

	cfgPath := writeConfig(t, api.URL)
	_, err := run(t, "--config", cfgPath, "key", "set", testKey)
	require.NoError(t, err)

	dir := t.TempDir()
	examPath := filepath.Join(dir, "exam.html")
	require.NoError(t, os.WriteFile(examPath, []byte(examPage), 0o600))
	annotated := filepath.Join(dir, "annotated.html")
	reportPath := filepath.Join(dir, "answers.md")

	out, err := run(t, "--config", cfgPath, "answer", examPath, "--out", annotated, "--report", reportPath)
	require.NoError(t, err)

	require.Len(t, prompts, 1)
	assert.Contains(t, prompts[0], "下列哪项属于解表药")
	assert.Contains(t, out, "1. 【单选题】 {答案: A}")
	assert.Contains(t, out, "2. 【多选题】 {多选答案: A, B}")

	html, err := os.ReadFile(annotated)
	require.NoError(t, err)
	assert.Contains(t, string(html), "{答案: A}")
	assert.Contains(t, string(html), "answer-hint")

	md, err := os.ReadFile(reportPath)
	require.NoError(t, err)
	assert.Contains(t, string(md), "# 答题卡")
	assert.Contains(t, string(md), "{多选答案: A, B}")
}

func TestAnswerFlagValidation(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")

	_, err := run(t, "--config", cfgPath, "answer", "exam.html", "--browser")
	assert.EqualError(t, err, "浏览器模式只支持 http(s) 地址")

	_, err = run(t, "--config", cfgPath, "answer", "https://example.com", "--browser", "--out", "x.html")
	assert.EqualError(t, err, "--out 只支持静态页面")
}

func TestAnswerMissingKey(t *testing.T) {
	cfgPath := writeConfig(t, "http://127.0.0.1:1")
	examPath := filepath.Join(t.TempDir(), "exam.html")
	require.NoError(t, os.WriteFile(examPath, []byte(examPage), 0o600))

	_, err := run(t, "--config", cfgPath, "answer", examPath)
	assert.EqualError(t, err, "API密钥未设置")
}
