package resolve

import (
	"sort"
	"strconv"
	"strings"

	"github.com/John-Robertt/jusox/internal/domain"
)

// SecondaryKeyword 用原始记录的行政区划字段合成二次检索关键词：
// siNm sggNm emdNm rn buldMnnm [buldSlno]，副番仅在 >0 时追加。
func SecondaryKeyword(h domain.RawHit) string {
	parts := []string{h.SiNm, h.SggNm, h.EmdNm, h.Rn, h.BuldMnnm}
	if sub := h.BuildingSub(); sub > 0 {
		parts = append(parts, strconv.Itoa(sub))
	}
	return domain.CollapseSpace(strings.Join(parts, " "))
}

// Dedup 按 (roadAddr, zipNo) 去重，保留首次出现。
func Dedup(cs []domain.Candidate) []domain.Candidate {
	type key struct{ road, zip string }
	seen := make(map[key]struct{}, len(cs))
	out := make([]domain.Candidate, 0, len(cs))
	for _, c := range cs {
		k := key{c.RoadAddr, c.ZipNo}
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		out = append(out, c)
	}
	return out
}

// Rank 去重、打分并稳定降序排序；返回新切片。
func Rank(cs []domain.Candidate, hint string) []domain.Candidate {
	out := Dedup(cs)
	for i := range out {
		out[i].Score = Score(out[i], hint)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
