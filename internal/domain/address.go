package domain

import (
	"fmt"
	"strconv"
	"strings"
)

// Language 决定 forward search 使用哪个检索入口（韩文 / 英文）。
type Language string

const (
	LanguageKorean  Language = "korean"
	LanguageEnglish Language = "english"
)

// ParseLanguage 解析语言提示；空串返回 ("", nil)，由上层套用默认值。
func ParseLanguage(s string) (Language, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "":
		return "", nil
	case "korean", "kor", "ko":
		return LanguageKorean, nil
	case "english", "eng", "en":
		return LanguageEnglish, nil
	default:
		return "", fmt.Errorf("language 只能是 korean 或 english，实际是 %q", s)
	}
}

// Query 是一条待解析的输入行。
type Query struct {
	Text     string
	Language Language
}

// RawHit 是注册表检索返回的一条原始记录。
// 数值类字段（建筑本番/副番等）一律保留为字符串，由使用方按需解析。
type RawHit struct {
	RoadAddr  string `json:"roadAddr"`
	JibunAddr string `json:"jibunAddr"`
	ZipNo     string `json:"zipNo"`

	AdmCd    string `json:"admCd"`
	RnMgtSn  string `json:"rnMgtSn"`
	UdrtYn   string `json:"udrtYn"`
	BuldMnnm string `json:"buldMnnm"`
	BuldSlno string `json:"buldSlno"`

	SiNm  string `json:"siNm"`
	SggNm string `json:"sggNm"`
	EmdNm string `json:"emdNm"`
	Rn    string `json:"rn"`

	EngAddr string `json:"engAddr,omitempty"`
	KorAddr string `json:"korAddr,omitempty"`
}

// Key 取出用于 detail 查询的行政键。
func (h RawHit) Key() AdministrativeKey {
	return AdministrativeKey{
		AdmCd:    strings.TrimSpace(h.AdmCd),
		RnMgtSn:  strings.TrimSpace(h.RnMgtSn),
		UdrtYn:   strings.TrimSpace(h.UdrtYn),
		BuldMnnm: strings.TrimSpace(h.BuldMnnm),
		BuldSlno: strings.TrimSpace(h.BuldSlno),
	}
}

// BuildingSub 返回建筑副番；无法解析时返回 0。
func (h RawHit) BuildingSub() int {
	return atoiOrZero(h.BuldSlno)
}

// AdministrativeKey 唯一定位一条道路/建筑记录。
type AdministrativeKey struct {
	AdmCd    string `json:"admCd"`
	RnMgtSn  string `json:"rnMgtSn"`
	UdrtYn   string `json:"udrtYn"`
	BuldMnnm string `json:"buldMnnm"`
	BuldSlno string `json:"buldSlno"`
}

// Usable 要求 admCd / rnMgtSn / buldMnnm 同时存在。
func (k AdministrativeKey) Usable() bool {
	return k.AdmCd != "" && k.RnMgtSn != "" && k.BuldMnnm != ""
}

// Source 标记候选来自哪一阶段。
type Source string

const (
	SourceDetail          Source = "detail"
	SourceSecondarySearch Source = "secondarySearch"
	SourceFallback        Source = "fallback"
)

// Candidate 是规范化后的候选地址；打分后不再修改。
type Candidate struct {
	RoadAddr  string `json:"roadAddr"`
	JibunAddr string `json:"jibunAddr"`
	ZipNo     string `json:"zipNo"`
	Source    Source `json:"source"`
	Score     int    `json:"score"`

	// 结构化加分项来自原始记录；json 不输出。
	BuldMnnm string `json:"-"`
	BuldSlno string `json:"-"`
}

// CandidateFromHit 把一条原始记录规范化为候选（zipNo 固定 5 位）。
func CandidateFromHit(h RawHit, src Source) Candidate {
	return Candidate{
		RoadAddr:  strings.TrimSpace(h.RoadAddr),
		JibunAddr: strings.TrimSpace(h.JibunAddr),
		ZipNo:     ZipStr(h.ZipNo),
		Source:    src,
		BuldMnnm:  strings.TrimSpace(h.BuldMnnm),
		BuldSlno:  strings.TrimSpace(h.BuldSlno),
	}
}

// DisplayAddr 优先道路名地址，其次地番地址。
func (c Candidate) DisplayAddr() string {
	if c.RoadAddr != "" {
		return c.RoadAddr
	}
	return c.JibunAddr
}

// ZipStr 把邮编规范为 5 个字符：去空白、左补 0、保留最右 5 位。
func ZipStr(v string) string {
	s := strings.TrimSpace(v)
	if n := len(s); n < 5 {
		s = strings.Repeat("0", 5-n) + s
	}
	return s[len(s)-5:]
}

// CollapseSpace 把连续空白折叠为单个空格并去掉首尾空白。
func CollapseSpace(s string) string { return strings.Join(strings.Fields(s), " ") }

func atoiOrZero(s string) int {
	n, err := strconv.Atoi(strings.TrimSpace(s))
	if err != nil {
		return 0
	}
	return n
}
