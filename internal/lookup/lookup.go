package lookup

//go:generate mockgen -source=lookup.go -destination=mocks/mocks.go -package=mocks Client

import (
	"context"

	"github.com/John-Robertt/jusox/internal/domain"
)

// StatusOK 是注册表表示成功的 errorCode。
const StatusOK = "0"

// SearchRequest 是一次关键词检索。
type SearchRequest struct {
	Keyword  string
	Page     int
	PageSize int
	Language domain.Language
}

// SearchResult 是注册表响应的统一形状（检索与 detail 共用）。
type SearchResult struct {
	StatusCode    string
	StatusMessage string
	TotalCount    int
	Hits          []domain.RawHit
}

func (r SearchResult) OK() bool { return r.StatusCode == StatusOK }

// Client 把“注册表如何被访问”限制在实现内部；解析流水线只依赖该接口。
//
// 约束：
// - 失败统一返回 *Error（transport / timeout / api 三类）
// - errorCode != "0" 视为 api 错误，同时返回已解析的 SearchResult
// - 实现不做限速、不做缓存（由 Scheduled / Cached 装饰）
type Client interface {
	ForwardSearch(ctx context.Context, req SearchRequest) (SearchResult, error)
	DetailLookup(ctx context.Context, key domain.AdministrativeKey) (SearchResult, error)
}
