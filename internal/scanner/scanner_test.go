package scanner

import (
	"strings"
	"testing"

	"github.com/PuerkitoBio/goquery"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const examPage = `<html><body>
<div class="exam-item">
  <div class="exam-item-title"><span class="exam-stem">1. 下列哪项属于解表药？</span></div>
  <ul>
    <li><input type="radio" id="q1a" name="danxuan┣101"><label for="q1a">A. 麻黄</label></li>
    <li><input type="radio" id="q1b" name="danxuan┣101"><label for="q1b">B. 大黄</label></li>
  </ul>
</div>
<div class="exam-item">
  <div class="exam-item-title"><span class="exam-stem">２．以下属于补气药的是</span></div>
  <ul>
    <li><span><input type="checkbox" name="duoxuan_2">A. 人参</span></li>
    <li><span><input type="checkbox" name="duoxuan_2">B. 黄芪</span></li>
    <li><span><input type="checkbox" name="duoxuan_2">C. 附子</span></li>
  </ul>
</div>
<div class="exam-item">
  <div class="exam-item-title"><span class="exam-stem">没有选项的题</span></div>
</div>
<div class="exam-item">
  <p>没有标题</p>
  <input type="radio" name="orphan">
</div>
<div class="exam-item">
  <div class="exam-item-title"><span class="exam-stem">3 表格题</span></div>
  <table><tr>
    <td><input type="checkbox" name="tbl3" id="t3a"></td><td><label for="t3a">A. 甲</label></td>
    <td><input type="checkbox" name="tbl3" id="t3b"></td><td><label for="t3b">B. 乙</label></td>
  </tr></table>
</div>
</body></html>`

func parse(t *testing.T, html string) *goquery.Document {
	t.Helper()
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	require.NoError(t, err)
	return doc
}

func TestScan(t *testing.T) {
	questions := Scan(parse(t, examPage))
	require.Len(t, questions, 3)

	single := questions[0]
	assert.Equal(t, "1. 下列哪项属于解表药？", single.Text)
	assert.Equal(t, QuestionTypeSingle, single.Type)
	assert.Equal(t, []string{"A. 麻黄", "B. 大黄"}, single.Options)
	assert.Equal(t, "danxuan┣101", single.GroupKey)
	assert.Equal(t, "101", single.Ordinal)

	multi := questions[1]
	assert.Equal(t, QuestionTypeMultiple, multi.Type)
	assert.Equal(t, []string{"A. 人参", "B. 黄芪", "C. 附子"}, multi.Options)
	assert.Equal(t, "duoxuan_2", multi.GroupKey)
	assert.Equal(t, "2", multi.Ordinal)

	table := questions[2]
	assert.Equal(t, QuestionTypeMultiple, table.Type)
	assert.Equal(t, []string{"A. 甲", "B. 乙"}, table.Options)
	assert.Equal(t, "3", table.Ordinal)
}

func TestScanEmptyPage(t *testing.T) {
	questions := Scan(parse(t, `<html><body><p>nothing here</p></body></html>`))
	assert.NotNil(t, questions)
	assert.Empty(t, questions)
}

func TestScanNameVariants(t *testing.T) {
	page := `<div class="exam-item">
	  <div class="exam-item-title"><span class="exam-stem">题</span></div>
	  <input id="xDanXuan1" name="answer1"><label for="xDanXuan1">A</label>
	  <input id="xDanXuan2" name="answer1"><label for="xDanXuan2">B</label>
	</div>`
	questions := Scan(parse(t, page))
	require.Len(t, questions, 1)
	assert.Equal(t, QuestionTypeSingle, questions[0].Type)
	assert.Equal(t, []string{"A", "B"}, questions[0].Options)
	assert.Empty(t, questions[0].Ordinal)
}

func TestScanRadioWinsOverCheckbox(t *testing.T) {
	page := `<div class="exam-item">
	  <div class="exam-item-title"><span class="exam-stem">题</span></div>
	  <label><input type="radio" name="r">甲</label>
	  <label><input type="checkbox" name="c">乙</label>
	</div>`
	questions := Scan(parse(t, page))
	require.Len(t, questions, 1)
	assert.Equal(t, QuestionTypeSingle, questions[0].Type)
	assert.Equal(t, []string{"甲"}, questions[0].Options)
}
