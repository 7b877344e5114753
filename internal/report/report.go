// Package report 生成 Markdown 格式的答题卡
package report

import (
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/nao1215/markdown"
	"github.com/nao1215/markdown/mermaid/piechart"

	"examassist/internal/scanner"
)

// Sheet 一次处理的结果
type Sheet struct {
	Source    string
	Model     string
	Questions []scanner.Question
	Answers   []string
	Generated time.Time
}

// Unknown 未能确定答案的题目数
func (s *Sheet) Unknown() int {
	n := 0
	for i := range s.Questions {
		if i >= len(s.Answers) || s.Answers[i] == "" || s.Answers[i] == scanner.Unknown {
			n++
		}
	}
	return n
}

// Write 把答题卡写入 w
func Write(w io.Writer, sheet *Sheet) error {
	md := markdown.NewMarkdown(w)

	writeHeader(md, sheet)
	writeSummary(md, sheet)
	writeAnswers(md, sheet)

	return md.Build()
}

func writeHeader(md *markdown.Markdown, sheet *Sheet) {
	md.H1("答题卡")
	md.PlainText("")

	generated := sheet.Generated
	if generated.IsZero() {
		generated = time.Now()
	}
	md.Table(markdown.TableSet{
		Header: []string{"项目", "内容"},
		Rows: [][]string{
			{"页面", "`" + sheet.Source + "`"},
			{"模型", sheet.Model},
			{"生成时间", generated.Format("2006-01-02 15:04:05")},
			{"题目数量", strconv.Itoa(len(sheet.Questions))},
		},
	})
	md.PlainText("")
}

func writeSummary(md *markdown.Markdown, sheet *Sheet) {
	total := len(sheet.Questions)
	unknown := sheet.Unknown()
	resolved := total - unknown

	md.H2("统计")
	md.PlainText("")

	if total > 0 {
		chart := piechart.NewPieChart(
			io.Discard,
			piechart.WithTitle("答案分布"),
			piechart.WithShowData(true),
		)
		if resolved > 0 {
			chart.LabelAndIntValue("已解答", uint64(resolved))
		}
		if unknown > 0 {
			chart.LabelAndIntValue("未知", uint64(unknown))
		}
		md.CodeBlocks(markdown.SyntaxHighlightMermaid, chart.String())
		md.PlainText("")
	}

	switch {
	case total == 0:
		md.Note("页面上没有检测到题目。")
	case unknown > 0:
		md.Warningf("%d 道题未能确定答案，请人工核对。", unknown)
	default:
		md.Tip("全部题目均已给出答案。")
	}
	md.PlainText("")
}

func writeAnswers(md *markdown.Markdown, sheet *Sheet) {
	if len(sheet.Questions) == 0 {
		return
	}
	md.H2("答案")
	md.PlainText("")

	rows := make([][]string, len(sheet.Questions))
	for i, q := range sheet.Questions {
		answer := scanner.Unknown
		if i < len(sheet.Answers) {
			answer = sheet.Answers[i]
		}
		hint := scanner.HintFor(q, answer)

		number := q.Ordinal
		if number == "" {
			number = strconv.Itoa(i + 1)
		}
		rows[i] = []string{
			number,
			q.Type.Label(),
			truncate(oneLine(q.Text), 40),
			hint.Text,
		}
	}

	md.Table(markdown.TableSet{
		Header: []string{"题号", "题型", "题目", "答案"},
		Rows:   rows,
	})
	md.PlainText("")
}

func oneLine(s string) string {
	s = strings.ReplaceAll(s, "|", "｜")
	return strings.Join(strings.Fields(s), " ")
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	return string(r[:n]) + "..."
}
