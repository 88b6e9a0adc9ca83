package domain

import (
	"encoding/json"
	"sort"
	"strconv"
	"time"
)

const (
	StatusOK   = "ok"
	StatusWarn = "warn"
	StatusErr  = "err"
)

// ChoiceAuto 表示采用了流水线的最佳候选。
const ChoiceAuto = "auto"

const (
	ErrCodeTransport = "transport_error"
	ErrCodeTimeout   = "timeout"
	ErrCodeAPI       = "api_error"
	ErrCodeCanceled  = "canceled"
	ErrCodeInternal  = "internal_error"

	ErrCodeInputFailed      = "input_failed"
	ErrCodeConfigNotFound   = "config_not_found"
	ErrCodeConfigInvalid    = "config_invalid"
	ErrCodeConfigMissingKey = "config_missing_key"
)

// RunReport 是对外稳定输出（stdout JSON / 服务端响应）的结构。
type RunReport struct {
	RunID    string   `json:"run_id"`
	Input    string   `json:"input"`
	Language Language `json:"language"`

	StartedAt  time.Time `json:"started_at"`
	FinishedAt time.Time `json:"finished_at"`

	Summary ReportSummary `json:"summary"`
	Rows    []Row         `json:"rows"`
}

// ReportSummary 中 warn 与 ok 可以重叠：多候选的行同时计入二者。
type ReportSummary struct {
	Total int `json:"total"`
	OK    int `json:"ok"`
	Warn  int `json:"warn"`
	Err   int `json:"err"`
}

// Row 对应导出表格的一行：[index, input, matched, zip, choice, note]，
// 其余字段只出现在 JSON 报告中。
type Row struct {
	Index          int    `json:"index"`
	Input          string `json:"input"`
	MatchedAddress string `json:"matched_addr"`
	PostalCode     string `json:"zip_no"`
	Choice         string `json:"choice"`
	Note           string `json:"note"`

	Status    string `json:"status"`
	Source    Source `json:"source,omitempty"`
	ErrorCode string `json:"error_code,omitempty"`
	ErrorMsg  string `json:"error_msg,omitempty"`

	Candidates []Candidate `json:"candidates"`
	Attempts   []Attempt   `json:"-"`
}

// Record 返回导出用的六列。
func (r Row) Record() []string {
	idx := ""
	if r.Index > 0 {
		idx = strconv.Itoa(r.Index)
	}
	return []string{idx, r.Input, r.MatchedAddress, r.PostalCode, r.Choice, r.Note}
}

// RowFromResult 把一条 ResolutionResult 映射为报告行。
//
// 规则：
// - failed：err，note=ERROR
// - no_match：err，note=NO_MATCH
// - partial：warn，只有邮编，note=FALLBACK_ZIP_ONLY
// - resolved：ok；多候选时同时计为 warn（note=multiple matches: N）
func RowFromResult(index int, input string, res ResolutionResult) Row {
	row := Row{
		Index:      index,
		Input:      input,
		Candidates: append([]Candidate{}, res.Candidates...),
		Attempts:   res.Attempts,
	}

	switch res.Outcome {
	case OutcomeFailed:
		row.Status = StatusErr
		row.Note = NoteError
		row.ErrorCode = res.ErrorCode
		row.ErrorMsg = res.ErrorMsg
		if row.ErrorCode == "" {
			row.ErrorCode = ErrCodeInternal
		}
		return row
	case OutcomeNoMatch:
		row.Status = StatusErr
		row.Note = NoteNoMatch
		return row
	}

	if res.Best == nil {
		row.Status = StatusErr
		row.Note = NoteNoMatch
		return row
	}

	row.MatchedAddress = res.Best.DisplayAddr()
	row.PostalCode = res.Best.ZipNo
	row.Choice = ChoiceAuto
	row.Source = res.Best.Source
	row.Note = res.Note
	row.Status = StatusOK
	if res.Outcome == OutcomePartial || res.Note != "" {
		row.Status = StatusWarn
	}
	return row
}

// Finalize 做三件事：
// 1) 时间统一为 UTC
// 2) rows 按 index 稳定排序（完成顺序不可依赖）
// 3) summary 由 rows 计算得出
func (r *RunReport) Finalize() {
	r.StartedAt = r.StartedAt.UTC()
	r.FinishedAt = r.FinishedAt.UTC()
	if r.Rows == nil {
		r.Rows = []Row{}
	}

	sort.SliceStable(r.Rows, func(i, j int) bool {
		a, b := r.Rows[i].Index, r.Rows[j].Index
		// index<=0 的合成行（配置/输入错误）排在最后。
		if a <= 0 {
			return false
		}
		if b <= 0 {
			return true
		}
		return a < b
	})

	var s ReportSummary
	for _, row := range r.Rows {
		s.Total++
		switch row.Status {
		case StatusOK:
			s.OK++
		case StatusWarn:
			// partial 只算 warn；多候选同时算 ok + warn。
			if row.Note != NoteFallbackZipOnly {
				s.OK++
			}
			s.Warn++
		case StatusErr:
			s.Err++
		}
	}
	r.Summary = s
}

// MarshalJSON 保证 rows/candidates 输出为 [] 而不是 null。
func (r RunReport) MarshalJSON() ([]byte, error) {
	type Alias RunReport
	a := Alias(r)
	a.Rows = make([]Row, len(r.Rows))
	copy(a.Rows, r.Rows)
	for i := range a.Rows {
		if a.Rows[i].Candidates == nil {
			a.Rows[i].Candidates = []Candidate{}
		}
	}
	return json.Marshal(a)
}
