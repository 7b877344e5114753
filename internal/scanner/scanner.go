// Package scanner 从考试页面的 DOM 中提取选择题，并把答案标注回页面。
package scanner

import (
	"errors"
	"fmt"
	"log/slog"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/text/width"
)

const (
	// ItemSelector 题目容器
	ItemSelector = ".exam-item"
	// TitleSelector 题目标题，答案提示追加在这里
	TitleSelector = ".exam-item-title .exam-stem"

	nameSeparator = "┣"
)

// 单选、多选输入框的选择器，按优先级排列，先命中的生效
var (
	radioSelectors = []string{
		`input[name^="danxuan"], input[type="radio"]`,
		`input[name*="DanXuan"], input[name*="danxuan"], input[id*="DanXuan"], input[id*="danxuan"]`,
	}
	checkboxSelectors = []string{
		`input[name^="duoxuan"], input[type="checkbox"]`,
		`input[name*="DuoXuan"], input[name*="duoxuan"], input[id*="DuoXuan"], input[id*="duoxuan"]`,
	}
	tableInputSelector = `input[type="radio"], input[type="checkbox"]`
)

var ordinalPattern = regexp.MustCompile(`^\d+\.?\d*`)

var (
	errNoTitle   = errors.New("没有找到题目标题元素")
	errNoOptions = errors.New("没有选项或无法识别题目类型")
)

// Scan 扫描文档中的全部题目。
// 单个题目解析失败只记录日志并跳过；页面上没有题目时返回空切片而不是错误。
func Scan(doc *goquery.Document) []Question {
	items := doc.Find(ItemSelector)
	slog.Debug("找到exam-item元素", "count", items.Length())

	questions := make([]Question, 0, items.Length())
	if items.Length() == 0 {
		return questions
	}

	labels := labelIndex(doc)

	items.Each(func(i int, item *goquery.Selection) {
		q, err := scanItem(item, labels)
		if err != nil {
			if !errors.Is(err, errNoOptions) {
				slog.Debug("跳过题目", "index", i+1, "error", err)
			}
			return
		}
		questions = append(questions, q)
	})

	slog.Debug("题目扫描完成", "total", items.Length(), "valid", len(questions))
	return questions
}

// scanItem 解析单个 exam-item
func scanItem(item *goquery.Selection, labels map[string]string) (q Question, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("解析题目时出错: %v", r)
		}
	}()

	title := item.Find(TitleSelector).First()
	if title.Length() == 0 {
		return Question{}, errNoTitle
	}
	text := strings.TrimSpace(title.Text())

	inputs, qType := findInputs(item)
	if inputs == nil || inputs.Length() == 0 {
		return Question{}, errNoOptions
	}

	options := make([]string, 0, inputs.Length())
	inputs.Each(func(_ int, input *goquery.Selection) {
		options = append(options, optionLabel(input, labels))
	})

	name, _ := inputs.First().Attr("name")

	return Question{
		Text:     text,
		Options:  options,
		Type:     qType,
		GroupKey: name,
		Ordinal:  ordinal(name, text),
	}, nil
}

// findInputs 按单选、多选、表格的顺序查找选项输入框
func findInputs(item *goquery.Selection) (*goquery.Selection, QuestionType) {
	if radios := firstMatch(item, radioSelectors); radios != nil {
		return radios, QuestionTypeSingle
	}
	if boxes := firstMatch(item, checkboxSelectors); boxes != nil {
		return boxes, QuestionTypeMultiple
	}

	table := item.Find("table").First()
	if table.Length() == 0 {
		return nil, ""
	}
	inputs := table.Find(tableInputSelector)
	if inputs.Length() == 0 {
		return nil, ""
	}
	if t, _ := inputs.First().Attr("type"); t == "checkbox" {
		return inputs, QuestionTypeMultiple
	}
	return inputs, QuestionTypeSingle
}

func firstMatch(item *goquery.Selection, selectors []string) *goquery.Selection {
	for _, sel := range selectors {
		if found := item.Find(sel); found.Length() > 0 {
			return found
		}
	}
	return nil
}

// labelIndex 建立 label[for] 到文本的索引，同一个 for 取文档中第一个
func labelIndex(doc *goquery.Document) map[string]string {
	index := make(map[string]string)
	doc.Find("label[for]").Each(func(_ int, label *goquery.Selection) {
		id, _ := label.Attr("for")
		if _, seen := index[id]; !seen {
			index[id] = strings.TrimSpace(label.Text())
		}
	})
	return index
}

// optionLabel 优先使用关联的 label，否则取输入框父元素的文本
func optionLabel(input *goquery.Selection, labels map[string]string) string {
	if id, ok := input.Attr("id"); ok && id != "" {
		if text, found := labels[id]; found {
			return text
		}
	}
	return strings.TrimSpace(input.Parent().Text())
}

// ordinal 从输入框 name（形如 xxx┣12）或题干开头的数字提取题号
func ordinal(name, text string) string {
	if strings.Contains(name, nameSeparator) {
		parts := strings.Split(name, nameSeparator)
		return parts[1]
	}
	prefix := ordinalPattern.FindString(width.Narrow.String(text))
	return strings.TrimSuffix(prefix, ".")
}
