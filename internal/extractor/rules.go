package extractor

import (
	"regexp"
	"strings"
)

// Rule 一条命名的答案提取规则，第一个捕获组是答案文本。
// 只捕获到空白的匹配不算命中。
type Rule struct {
	Name    string
	pattern *regexp.Regexp
}

func newRule(name, expr string) Rule {
	return Rule{Name: name, pattern: regexp.MustCompile(expr)}
}

// Find 返回文本中第一个匹配的答案
func (r Rule) Find(text string) (string, bool) {
	for _, m := range r.pattern.FindAllStringSubmatch(text, -1) {
		if strings.TrimSpace(m[1]) != "" {
			return m[1], true
		}
	}
	return "", false
}

// FindAll 按出现顺序返回文本中全部匹配的答案
func (r Rule) FindAll(text string) []string {
	matches := r.pattern.FindAllStringSubmatch(text, -1)
	answers := make([]string, 0, len(matches))
	for _, m := range matches {
		if strings.TrimSpace(m[1]) != "" {
			answers = append(answers, m[1])
		}
	}
	return answers
}

// Rules 固定优先级的规则表：同一段文本第一个命中的规则生效，后面的规则不再尝试
var Rules = []Rule{
	newRule("answer-colon", `答案[：:]\s*([A-Z,，\s]+)`),
	newRule("choose", `选择\s*([A-Z,，\s]+)`),
	newRule("correct-answer", `正确答案[是为：:]\s*([A-Z,，\s]+)`),
	newRule("answer-is", `答案是\s*([A-Z,，\s]+)`),
	newRule("option-is-correct", `选项\s*([A-Z,，\s]+)\s*是正确的`),
	newRule("braced-answer", `\{答案[:：]\s*([A-Z,，\s]+)\}`),
	newRule("answer-colon-tight", `答案[:：]([A-Z,，\s]+)`),
	newRule("choose-tight", `选择([A-Z,，\s]+)`),
	newRule("letter-is-correct", `([A-Z])\s*[是为]\s*正确的`),
	newRule("correct-option-is", `正确选项[是为]([A-Z])`),
	newRule("correct-answer-option", `正确答案[:：]\s*选项([A-Z])`),

	newRule("question-colon", `问题\s*\d+\s*[:：]\s*([A-Z,，]+)`),
	newRule("question-answer", `问题\s*\d+\s*答案[:：]\s*([A-Z,，]+)`),
	newRule("numbered", `\d+\s*[\.。]\s*([A-Z,，]+)`),
	newRule("numbered-answer", `\d+\s*[\.。]\s*答案[:：]\s*([A-Z,，]+)`),

	newRule("should-choose", `应该选择\s*([A-Z,，]+)`),
	newRule("i-choose", `我选择\s*([A-Z,，]+)`),
	newRule("i-think", `我认为是\s*([A-Z,，]+)`),
	newRule("this-answer-is", `这道题的答案是\s*([A-Z,，]+)`),
	newRule("this-one-is", `这题选\s*([A-Z,，]+)`),
}

// 兜底扫描使用的字母表与模式
var (
	bracketLetter = regexp.MustCompile(`[{\[（(]([A-D])[}\]）)]`)
	bareLetter    = regexp.MustCompile(`\b([A-D])\b`)
)
