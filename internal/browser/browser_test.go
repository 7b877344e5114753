package browser

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"examassist/internal/scanner"
)

func TestSessionNotStarted(t *testing.T) {
	s := NewSession(Options{Headless: true})
	ctx := context.Background()

	_, err := s.Questions(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = s.Annotate(ctx, []scanner.Question{{GroupKey: "q1"}}, []string{"A"})
	assert.ErrorIs(t, err, ErrNotStarted)

	_, err = s.ClearAnnotations(ctx)
	assert.ErrorIs(t, err, ErrNotStarted)

	assert.ErrorIs(t, s.Open(ctx, "https://example.com"), ErrNotStarted)
	assert.Empty(t, s.URL())

	// 未启动时关闭不会出错
	s.Stop()
}

func TestAnnotateScriptEmbedsEscapedData(t *testing.T) {
	hints, err := json.Marshal([]hintData{{GroupKey: `danxuan┣1"'`, Text: "{答案: A}", Style: "color: red;"}})
	require.NoError(t, err)
	sel, err := json.Marshal(selectors{Item: scanner.ItemSelector, Title: scanner.TitleSelector, Hint: scanner.HintClass})
	require.NoError(t, err)

	script := fmt.Sprintf(annotateScript, hints, sel)
	assert.Contains(t, script, `"groupKey":"danxuan┣1\"'"`)
	assert.Contains(t, script, `"title":".exam-item-title .exam-stem"`)
	assert.Contains(t, script, `"hint":"answer-hint"`)
}
