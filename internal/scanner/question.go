package scanner

// QuestionType 题目类型
type QuestionType string

const (
	QuestionTypeSingle   QuestionType = "single"
	QuestionTypeMultiple QuestionType = "multiple"
)

// Label 提示词中使用的题型标记
func (t QuestionType) Label() string {
	if t == QuestionTypeMultiple {
		return "【多选题】"
	}
	return "【单选题】"
}

// Question 页面上扫描到的一道选择题，扫描后不再修改。
// 题目没有持久 ID，身份就是它在本批中的位置。
type Question struct {
	Text     string       `json:"text"`
	Options  []string     `json:"options"`
	Type     QuestionType `json:"type"`
	GroupKey string       `json:"groupKey"`
	Ordinal  string       `json:"ordinal,omitempty"`
}

// IsMultiple 是否多选题
func (q Question) IsMultiple() bool {
	return q.Type == QuestionTypeMultiple
}
