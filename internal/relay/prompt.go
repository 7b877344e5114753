package relay

import (
	"fmt"
	"regexp"
	"strings"

	"examassist/internal/scanner"
)

const promptPreamble = "你是一个医学专家，精通中医学和西医学。接下来，我会给你问题和答案选项，你需要找到正确的答案并回答。\n\n" +
	"对于单选题，请回答{答案: X}，其中X是选项字母如A、B、C、D或E。\n" +
	"对于多选题，请回答{答案: X,Y,Z}，其中X,Y,Z是多个正确选项的字母，如A,B,C。\n\n"

var htmlTag = regexp.MustCompile(`<[^>]*>`)

// cleanText 去掉题干中的 HTML 标签
func cleanText(text string) string {
	return strings.TrimSpace(htmlTag.ReplaceAllString(text, ""))
}

// BuildPrompt 为一组题目构建提示词，题号在组内从 1 开始
func BuildPrompt(questions []scanner.Question) string {
	var sb strings.Builder
	sb.WriteString(promptPreamble)
	for i, q := range questions {
		fmt.Fprintf(&sb, "问题%d%s：%s\n选项：%s\n\n",
			i+1, q.Type.Label(), cleanText(q.Text), strings.Join(q.Options, "、"))
	}
	return sb.String()
}

// Groups 按顺序切分为每组最多 size 道题
func Groups(questions []scanner.Question, size int) [][]scanner.Question {
	if size <= 0 {
		size = defaultGroupSize
	}
	groups := make([][]scanner.Question, 0, (len(questions)+size-1)/size)
	for start := 0; start < len(questions); start += size {
		end := min(start+size, len(questions))
		groups = append(groups, questions[start:end])
	}
	return groups
}
