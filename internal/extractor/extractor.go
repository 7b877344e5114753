// Package extractor 从模型返回的自由文本中恢复每道题的选项字母。
//
// 提取分两个阶段：先按“问题N”把文本切成段，逐段套用规则表；
// 切不出段或没有任何一段解出答案时，再对整段文本套用规则表，
// 最后依次退化为括号字母扫描和裸字母扫描。
package extractor

import (
	"log/slog"
	"regexp"
	"strings"

	"examassist/internal/scanner"
)

// maxLooseLetters 裸字母兜底时最多保留的不同字母数
const maxLooseLetters = 3

var (
	questionMarker = regexp.MustCompile(`问题\s*\d+`)
	lineBreaks     = regexp.MustCompile(`[\n\r]+`)
	separatorSpace = regexp.MustCompile(`\s*([,，])\s*`)
)

// Extract 提取答案。返回值长度与题目数无关，由调用方负责补齐或截断。
// questions 为空时跳过分段阶段。相同输入总是得到相同输出。
func Extract(raw string, questions []scanner.Question) []string {
	if len(questions) > 0 {
		if answers := extractSegments(raw, questions); answers != nil {
			return answers
		}
	}
	return extractWhole(raw)
}

// Segments 以包含“问题N”的行为起点切分文本，每段延续到下一个起点之前
func Segments(raw string) []string {
	lines := lineBreaks.Split(raw, -1)

	var starts []int
	for i, line := range lines {
		if questionMarker.MatchString(line) {
			starts = append(starts, i)
		}
	}

	segments := make([]string, 0, len(starts))
	for i, start := range starts {
		end := len(lines)
		if i+1 < len(starts) {
			end = starts[i+1]
		}
		segments = append(segments, strings.Join(lines[start:end], "\n"))
	}
	return segments
}

// extractSegments 分段阶段；没有任何一段解出答案时返回 nil
func extractSegments(raw string, questions []scanner.Question) []string {
	segments := Segments(raw)
	if len(segments) == 0 {
		return nil
	}

	answers := make([]string, 0, len(segments))
	resolved := false
	for i, segment := range segments {
		multiple := i < len(questions) && questions[i].IsMultiple()
		answer, ok := matchSegment(segment, multiple)
		if !ok {
			slog.Debug("问题无法确定答案，使用默认值", "question", i+1)
			answer = scanner.Unknown
		} else {
			resolved = true
		}
		answers = append(answers, answer)
	}

	if !resolved {
		slog.Debug("分段匹配失败，尝试整体匹配", "segments", len(segments))
		return nil
	}
	return answers
}

// matchSegment 对单段文本依次尝试规则表和字母兜底
func matchSegment(segment string, multiple bool) (string, bool) {
	for _, rule := range Rules {
		if answer, ok := rule.Find(segment); ok {
			return Format(answer), true
		}
	}
	return letterFallback(segment, multiple)
}

// letterFallback 多选题收集去重后的全部字母；单选题先找括号字母，
// 再在不同字母不超过 3 个时取第一个裸字母
func letterFallback(segment string, multiple bool) (string, bool) {
	letters := uniqueLetters(segment)

	if multiple {
		if len(letters) == 0 {
			return "", false
		}
		return strings.Join(letters, ""), true
	}

	if m := bracketLetter.FindStringSubmatch(segment); m != nil {
		return m[1], true
	}
	if len(letters) > 0 && len(letters) <= maxLooseLetters {
		return letters[0], true
	}
	return "", false
}

// extractWhole 整体匹配阶段
func extractWhole(raw string) []string {
	for _, rule := range Rules {
		found := rule.FindAll(raw)
		if len(found) == 0 {
			continue
		}
		slog.Debug("整体匹配命中规则", "rule", rule.Name, "count", len(found))
		answers := make([]string, len(found))
		for i, f := range found {
			answers[i] = Format(f)
		}
		return answers
	}

	if matches := bracketLetter.FindAllStringSubmatch(raw, -1); len(matches) > 0 {
		answers := make([]string, len(matches))
		for i, m := range matches {
			answers[i] = m[1]
		}
		return answers
	}

	letters := uniqueLetters(raw)
	if len(letters) > maxLooseLetters {
		letters = letters[:maxLooseLetters]
	}
	if len(letters) == 0 {
		slog.Debug("未能解析到答案")
	}
	return letters
}

// uniqueLetters 按出现顺序返回去重后的裸字母
func uniqueLetters(text string) []string {
	seen := make(map[string]bool)
	letters := []string{}
	for _, m := range bareLetter.FindAllStringSubmatch(text, -1) {
		if !seen[m[1]] {
			seen[m[1]] = true
			letters = append(letters, m[1])
		}
	}
	return letters
}

// Format 规范化答案：含逗号时把分隔符两侧的空白收拢为“分隔符+空格”
func Format(answer string) string {
	answer = strings.TrimSpace(answer)
	if strings.ContainsAny(answer, ",，") {
		return strings.TrimSpace(separatorSpace.ReplaceAllString(answer, "${1} "))
	}
	return answer
}
