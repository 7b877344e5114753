package relay

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examassist/internal/models"
	"examassist/internal/scanner"
	"examassist/internal/status"
	"examassist/internal/store"
)

type fakeQuerier struct {
	mu      sync.Mutex
	prompts []string
	reply   func(call int, prompt string) (string, error)
}

func (f *fakeQuerier) Query(ctx context.Context, apiKey, prompt string) (string, error) {
	f.mu.Lock()
	f.prompts = append(f.prompts, prompt)
	call := len(f.prompts)
	f.mu.Unlock()
	return f.reply(call, prompt)
}

type recorder struct {
	mu     sync.Mutex
	events []status.Event
}

func (r *recorder) Publish(e status.Event) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, e)
}

func (r *recorder) messages() []string {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]string, len(r.events))
	for i, e := range r.events {
		out[i] = e.Message
	}
	return out
}

func makeQuestions(n int) []scanner.Question {
	qs := make([]scanner.Question, n)
	for i := range qs {
		qs[i] = scanner.Question{
			Text:     fmt.Sprintf("第%d题", i+1),
			Options:  []string{"A. 甲", "B. 乙"},
			Type:     scanner.QuestionTypeSingle,
			GroupKey: fmt.Sprintf("danxuan┣%d", i+1),
		}
	}
	return qs
}

// answerAll 按提示词中的题目数量逐题回答 B
func answerAll(_ int, prompt string) (string, error) {
	n := strings.Count(prompt, "选项：")
	var sb strings.Builder
	for i := 1; i <= n; i++ {
		fmt.Fprintf(&sb, "问题%d：答案：{答案: B}\n", i)
	}
	return sb.String(), nil
}

func newTestProcessor(q Querier, n status.Publisher) *Processor {
	return &Processor{Querier: q, Notifier: n, GroupSize: 10, GroupTimeout: time.Second}
}

func TestGroups(t *testing.T) {
	assert.Len(t, Groups(makeQuestions(10), 10), 1)

	groups := Groups(makeQuestions(11), 10)
	require.Len(t, groups, 2)
	assert.Len(t, groups[0], 10)
	assert.Len(t, groups[1], 1)
	assert.Equal(t, "第11题", groups[1][0].Text)

	assert.Empty(t, Groups(nil, 10))
	assert.Len(t, Groups(makeQuestions(25), 0), 3)
}

func TestBuildPrompt(t *testing.T) {
	prompt := BuildPrompt([]scanner.Question{
		{Text: "<b>1.</b> 麻黄的功效", Options: []string{"A. 发汗", "B. 泻下"}, Type: scanner.QuestionTypeSingle},
		{Text: "补气药有", Options: []string{"A. 人参", "B. 黄芪"}, Type: scanner.QuestionTypeMultiple},
	})

	assert.Contains(t, prompt, "{答案: X}")
	assert.Contains(t, prompt, "{答案: X,Y,Z}")
	assert.Contains(t, prompt, "问题1【单选题】：1. 麻黄的功效\n选项：A. 发汗、B. 泻下\n")
	assert.Contains(t, prompt, "问题2【多选题】：补气药有\n选项：A. 人参、B. 黄芪\n")
	assert.NotContains(t, prompt, "<b>")
}

func TestProcessAll(t *testing.T) {
	q := &fakeQuerier{reply: answerAll}
	rec := &recorder{}

	res, err := newTestProcessor(q, rec).ProcessAll(context.Background(), makeQuestions(11), "sk-test")
	require.NoError(t, err)
	assert.True(t, res.Success)
	assert.Len(t, res.Answers, 11)
	assert.Equal(t, 2, res.ProcessedCount)
	for _, a := range res.Answers {
		assert.Equal(t, "B", a)
	}

	require.Len(t, q.prompts, 2)
	assert.Contains(t, q.prompts[1], "问题1【单选题】：第11题")

	assert.Equal(t, []string{
		status.MsgStart,
		"正在处理第1组题目...",
		"处理进度: 50%",
		"正在处理第2组题目...",
		"处理进度: 100%",
		status.MsgCompleted,
	}, rec.messages())
}

func TestProcessAllPadsMissingAnswers(t *testing.T) {
	q := &fakeQuerier{reply: func(int, string) (string, error) {
		var sb strings.Builder
		for i := 1; i <= 7; i++ {
			fmt.Fprintf(&sb, "问题%d：答案：A\n", i)
		}
		return sb.String(), nil
	}}

	res, err := newTestProcessor(q, nil).ProcessAll(context.Background(), makeQuestions(10), "sk-test")
	require.NoError(t, err)
	require.Len(t, res.Answers, 10)
	assert.Equal(t, []string{"A", "A", "A", "A", "A", "A", "A", scanner.Unknown, scanner.Unknown, scanner.Unknown}, res.Answers)
}

func TestProcessAllAbortsOnAPIError(t *testing.T) {
	q := &fakeQuerier{reply: func(call int, prompt string) (string, error) {
		if call == 2 {
			return "", &models.APIError{StatusCode: 429, Body: "rate limited"}
		}
		return answerAll(call, prompt)
	}}

	res, err := newTestProcessor(q, nil).ProcessAll(context.Background(), makeQuestions(25), "sk-test")
	require.Error(t, err)
	assert.False(t, res.Success)
	assert.Equal(t, 1, res.ProcessedCount)
	assert.Len(t, q.prompts, 2, "no group is sent after a failure")

	var qerr *QueryError
	require.True(t, errors.As(err, &qerr))
	assert.Equal(t, 2, qerr.Group)

	var apiErr *models.APIError
	require.True(t, errors.As(err, &apiErr))
	assert.Equal(t, 429, apiErr.StatusCode)
}

func TestProcessAllNoAnswers(t *testing.T) {
	q := &fakeQuerier{reply: func(int, string) (string, error) {
		return "抱歉，我无法回答这些问题。", nil
	}}
	rec := &recorder{}

	_, err := newTestProcessor(q, rec).ProcessAll(context.Background(), makeQuestions(3), "sk-test")
	assert.ErrorIs(t, err, ErrNoAnswers)
	assert.Contains(t, rec.messages(), status.MsgNoValidAnswers)
	assert.NotContains(t, rec.messages(), status.MsgCompleted)
}

func TestProcessAllGroupTimeout(t *testing.T) {
	q := &fakeQuerier{reply: func(int, string) (string, error) { return "", models.ErrTimeout }}

	_, err := newTestProcessor(q, nil).ProcessAll(context.Background(), makeQuestions(1), "sk-test")
	assert.ErrorIs(t, err, models.ErrTimeout)
}

// blockingQuerier 阻塞到 ctx 结束
type blockingQuerier struct {
	mu       sync.Mutex
	deadline time.Time
	hasDL    bool
}

func (b *blockingQuerier) Query(ctx context.Context, apiKey, prompt string) (string, error) {
	b.mu.Lock()
	b.deadline, b.hasDL = ctx.Deadline()
	b.mu.Unlock()
	<-ctx.Done()
	return "", ctx.Err()
}

func TestProcessGroupAppliesGroupTimeout(t *testing.T) {
	q := &blockingQuerier{}
	p := &Processor{Querier: q, GroupSize: 10, GroupTimeout: 50 * time.Millisecond}

	start := time.Now()
	res, err := p.ProcessAll(context.Background(), makeQuestions(11), "sk-test")
	elapsed := time.Since(start)

	require.Error(t, err)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	var qerr *QueryError
	require.ErrorAs(t, err, &qerr)
	assert.Equal(t, 1, qerr.Group)
	assert.Equal(t, 0, res.ProcessedCount)
	assert.Less(t, elapsed, time.Second)

	q.mu.Lock()
	defer q.mu.Unlock()
	require.True(t, q.hasDL)
	assert.WithinDuration(t, start.Add(50*time.Millisecond), q.deadline, 40*time.Millisecond)
}

func TestProcessAllValidatesInput(t *testing.T) {
	q := &fakeQuerier{reply: answerAll}
	p := newTestProcessor(q, nil)

	_, err := p.ProcessAll(context.Background(), nil, "sk-test")
	assert.ErrorIs(t, err, ErrNoQuestions)

	_, err = p.ProcessAll(context.Background(), makeQuestions(1), "")
	assert.ErrorIs(t, err, store.ErrMissingAPIKey)

	_, err = p.ProcessAll(context.Background(), makeQuestions(1), "abc")
	assert.ErrorIs(t, err, store.ErrInvalidAPIKey)

	assert.Empty(t, q.prompts)
}

func TestReconcile(t *testing.T) {
	for _, n := range []int{0, 1, 5, 10} {
		for _, got := range [][]string{nil, {"A"}, {"A", "B", "C", "D", "A", "B", "C", "D", "A", "B", "C", "D"}} {
			assert.Len(t, Reconcile(got, n), n)
		}
	}
	assert.Equal(t, []string{"A", "B"}, Reconcile([]string{"A", "B", "C"}, 2))
	assert.Equal(t, []string{"A", scanner.Unknown}, Reconcile([]string{"A"}, 2))
}
