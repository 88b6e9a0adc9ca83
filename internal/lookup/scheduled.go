package lookup

import (
	"context"

	"github.com/John-Robertt/jusox/internal/domain"
	"github.com/John-Robertt/jusox/internal/schedule"
)

// Scheduled 让每次注册表调用都经过共享的 Scheduler（限并发 + 最小间隔）。
type Scheduled struct {
	next  Client
	sched *schedule.Scheduler
}

var _ Client = (*Scheduled)(nil)

func NewScheduled(next Client, sched *schedule.Scheduler) *Scheduled {
	return &Scheduled{next: next, sched: sched}
}

func (s *Scheduled) ForwardSearch(ctx context.Context, req SearchRequest) (SearchResult, error) {
	res, err := schedule.Do(ctx, s.sched, func(ctx context.Context) (SearchResult, error) {
		return s.next.ForwardSearch(ctx, req)
	})
	return res, Classify("forward", err)
}

func (s *Scheduled) DetailLookup(ctx context.Context, key domain.AdministrativeKey) (SearchResult, error) {
	res, err := schedule.Do(ctx, s.sched, func(ctx context.Context) (SearchResult, error) {
		return s.next.DetailLookup(ctx, key)
	})
	return res, Classify("detail", err)
}
