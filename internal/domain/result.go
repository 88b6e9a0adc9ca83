package domain

import "fmt"

// Outcome 是单条查询的终态分类。
const (
	OutcomeResolved = "resolved"
	OutcomePartial  = "partial"
	OutcomeNoMatch  = "no_match"
	OutcomeFailed   = "failed"
)

const (
	// NoteFallbackZipOnly 表示地址文本无法解析，只保留了首条命中的邮编。
	NoteFallbackZipOnly = "FALLBACK_ZIP_ONLY"
	NoteNoMatch         = "NO_MATCH"
	NoteError           = "ERROR"
)

// MultipleMatchesNote 生成多候选提示。
func MultipleMatchesNote(n int) string {
	return fmt.Sprintf("multiple matches: %d", n)
}

// Attempt 记录一次注册表调用（用于解释失败/降级原因）。
type Attempt struct {
	Stage     string `json:"stage"` // "forward" / "detail" / "secondary"
	Keyword   string `json:"keyword,omitempty"`
	Hits      int    `json:"hits"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`
}

// ResolutionResult 是一条查询的完整结果。
//
// 约束：
// - Candidates 已去重并按分数降序（同分保持先见顺序）
// - Best 为 Candidates[0] 的拷贝；无候选时为 nil
// - Outcome=failed 时 ErrorCode 非空，且 Candidates 为空
type ResolutionResult struct {
	Query      string      `json:"query"`
	Language   Language    `json:"language"`
	Best       *Candidate  `json:"best"`
	Candidates []Candidate `json:"candidates"`

	Outcome   string `json:"outcome"`
	Note      string `json:"note"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Attempts []Attempt `json:"attempts,omitempty"`

	// Err 保留 failed 的原始错误，供上层生成提示；不序列化。
	Err error `json:"-"`
}

// Empty 表示没有任何候选（无论是失败还是无匹配）。
func (r ResolutionResult) Empty() bool { return len(r.Candidates) == 0 }
