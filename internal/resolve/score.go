package resolve

import (
	"regexp"
	"strings"
	"unicode"

	"github.com/John-Robertt/jusox/internal/domain"
)

// 权重层级：来源 > 子串 > 词元 > 结构。
// 低层级的最大累计值始终小于高层级的最小单项，保证层级严格优先。
const (
	scoreDetail    = 10000
	scoreSecondary = 5000

	scoreRoadSubstr  = 80
	scoreJibunSubstr = 60

	scoreRoadToken  = 20
	scoreJibunToken = 10
	tokenScoreCap   = scoreJibunSubstr - 1

	scoreZip      = 3
	scoreBuldMain = 2
	scoreBuldSub  = 1
)

// Score 计算候选与原始输入的相关度。纯函数，对任意输入都有定义，结果非负。
func Score(c domain.Candidate, hint string) int {
	s := 0
	switch c.Source {
	case domain.SourceDetail:
		s += scoreDetail
	case domain.SourceSecondarySearch:
		s += scoreSecondary
	}

	q := normalize(hint)
	road := normalize(c.RoadAddr)
	jibun := normalize(c.JibunAddr)

	if mutualContains(q, road) {
		s += scoreRoadSubstr
	}
	if mutualContains(q, jibun) {
		s += scoreJibunSubstr
	}

	if q != "" {
		t := 0
		for _, tok := range tokens(c.RoadAddr) {
			if strings.Contains(q, tok) {
				t += scoreRoadToken
			}
		}
		for _, tok := range tokens(c.JibunAddr) {
			if strings.Contains(q, tok) {
				t += scoreJibunToken
			}
		}
		s += min(t, tokenScoreCap)
	}

	if c.ZipNo != "" && strings.Trim(c.ZipNo, "0") != "" {
		s += scoreZip
	}
	mainNo, subNo := buildingNumbers(c)
	if mainNo != "" {
		s += scoreBuldMain
	}
	if subNo > 0 {
		s += scoreBuldSub
	}
	return s
}

// normalize 去掉全部空白并转小写。
func normalize(s string) string {
	return strings.Map(func(r rune) rune {
		if unicode.IsSpace(r) {
			return -1
		}
		return unicode.ToLower(r)
	}, s)
}

func mutualContains(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	return strings.Contains(a, b) || strings.Contains(b, a)
}

// tokens 按数字串（以及空白、标点）切分地址，保留长度 >1 的文字词元，去重保序。
func tokens(addr string) []string {
	fields := strings.FieldsFunc(strings.ToLower(addr), func(r rune) bool {
		return !unicode.IsLetter(r)
	})
	out := make([]string, 0, len(fields))
	seen := make(map[string]struct{}, len(fields))
	for _, f := range fields {
		if len([]rune(f)) <= 1 {
			continue
		}
		if _, ok := seen[f]; ok {
			continue
		}
		seen[f] = struct{}{}
		out = append(out, f)
	}
	return out
}

// 道路名地址中的建筑番号："세종대로 209"、"Teheran-ro 7-12 (…)"。
var reBuildingNo = regexp.MustCompile(`(\d+)(?:-(\d+))?\s*(?:\(|,|$)`)

func buildingNumbers(c domain.Candidate) (string, int) {
	if c.BuldMnnm != "" {
		return c.BuldMnnm, domain.RawHit{BuldSlno: c.BuldSlno}.BuildingSub()
	}
	m := reBuildingNo.FindStringSubmatch(strings.TrimSpace(c.RoadAddr))
	if m == nil {
		return "", 0
	}
	return m[1], domain.RawHit{BuldSlno: m[2]}.BuildingSub()
}
