package scanner

import (
	"log/slog"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// Unknown 无法确定答案时使用的占位值
const Unknown = "unknown"

const (
	// HintClass 答案提示元素的 class
	HintClass = "answer-hint"

	// ResolvedColor 已解出答案的颜色
	ResolvedColor = "#2E7D32"
	// UnknownColor 占位答案的颜色
	UnknownColor = "#FFA000"

	unknownDisplay = "未知"
)

// Hint 页面上标注的答案文本与颜色
type Hint struct {
	Text  string `json:"text"`
	Color string `json:"color"`
}

// HintFor 根据题型格式化答案：单选 {答案: X}，多选 {多选答案: X}
func HintFor(q Question, answer string) Hint {
	if answer == "" || answer == Unknown {
		if q.IsMultiple() {
			return Hint{Text: "{多选答案: " + unknownDisplay + "}", Color: UnknownColor}
		}
		return Hint{Text: "{答案: " + unknownDisplay + "}", Color: UnknownColor}
	}

	if !q.IsMultiple() {
		return Hint{Text: "{答案: " + answer + "}", Color: ResolvedColor}
	}

	formatted := answer
	if !strings.ContainsAny(answer, ",，") {
		formatted = strings.Join(strings.Split(answer, ""), " ")
	}
	return Hint{Text: "{多选答案: " + formatted + "}", Color: ResolvedColor}
}

// Style 提示元素的内联样式
func (h Hint) Style() string {
	return "color: " + h.Color + "; font-weight: bold; margin-left: 10px;"
}

// Annotate 把答案写到每道题标题后面的 span.answer-hint 中，已存在则更新。
// 返回成功标注的题目数。
func Annotate(doc *goquery.Document, questions []Question, answers []string) int {
	annotated := 0
	for i, q := range questions {
		answer := Unknown
		if i < len(answers) {
			answer = answers[i]
		}

		title := titleFor(doc, q)
		if title == nil {
			slog.Debug("未找到题目标题，跳过标注", "index", i+1, "group", q.GroupKey)
			continue
		}

		span := title.Find("." + HintClass).First()
		if span.Length() == 0 {
			title.AppendHtml(`<span class="` + HintClass + `"></span>`)
			span = title.Find("." + HintClass).Last()
		}

		hint := HintFor(q, answer)
		span.SetText(hint.Text)
		span.SetAttr("style", hint.Style())
		annotated++
	}
	return annotated
}

// ClearAnnotations 移除页面上已有的答案提示
func ClearAnnotations(doc *goquery.Document) int {
	hints := doc.Find("." + HintClass)
	n := hints.Length()
	hints.Remove()
	return n
}

// titleFor 通过 name 找到题目所在的 exam-item 的标题元素
func titleFor(doc *goquery.Document, q Question) *goquery.Selection {
	if q.GroupKey == "" {
		return nil
	}
	input := doc.Find("input[name]").FilterFunction(func(_ int, s *goquery.Selection) bool {
		name, _ := s.Attr("name")
		return name == q.GroupKey
	}).First()
	if input.Length() == 0 {
		return nil
	}

	title := input.Closest(ItemSelector).Find(TitleSelector).First()
	if title.Length() == 0 {
		return nil
	}
	return title
}
