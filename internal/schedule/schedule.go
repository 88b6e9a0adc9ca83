package schedule

import (
	"context"
	"fmt"
	"sync"
	"time"
)

// Metrics 接收调度器的状态变化（可选）。
type Metrics interface {
	SchedulerState(queued, running int)
	ObserveDispatchWait(d time.Duration)
}

// Option 配置 Scheduler。
type Option func(*Scheduler)

// WithMetrics 注入状态上报。
func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

// WithClock 替换时间源（测试用）；只影响间隔计算，不影响实际等待。
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// Scheduler 是“有界并发 + 最小派发间隔”的 FIFO 任务派发器。
//
// 约束：
// - 同时执行的任务数不超过 concurrency
// - 相邻两次派发的开始时间间隔不小于 minInterval
// - running 在派发时立即占位（而不是等待结束后），避免等待窗口内超发
// - 任务失败/panic 只影响自己的 Future，不影响调度器与其他排队任务
//
// running / queue / lastAt 是唯一的共享可变状态，全部由 mu 保护。
type Scheduler struct {
	concurrency int
	minInterval time.Duration

	mu      sync.Mutex
	running int
	queue   []job
	lastAt  time.Time

	metrics Metrics
	now     func() time.Time
}

// New 创建调度器。concurrency<1 视为 1；minInterval<0 视为 0。
func New(concurrency int, minInterval time.Duration, opts ...Option) *Scheduler {
	if concurrency < 1 {
		concurrency = 1
	}
	if minInterval < 0 {
		minInterval = 0
	}
	s := &Scheduler{
		concurrency: concurrency,
		minInterval: minInterval,
		now:         time.Now,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// job 是排队中的一次调用；ctx 是提交方的上下文。
type job struct {
	ctx context.Context
	run func()
}

// Stats 是调度器状态的快照。
type Stats struct {
	Running int
	Queued  int
}

// Stats 返回当前执行中与排队中的任务数。
func (s *Scheduler) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return Stats{Running: s.running, Queued: len(s.queue)}
}

// Concurrency 返回生效的并发上限（已钳制）。
func (s *Scheduler) Concurrency() int { return s.concurrency }

// MinInterval 返回生效的最小派发间隔（已钳制）。
func (s *Scheduler) MinInterval() time.Duration { return s.minInterval }

func (s *Scheduler) enqueue(ctx context.Context, run func()) {
	s.mu.Lock()
	s.queue = append(s.queue, job{ctx: ctx, run: run})
	s.mu.Unlock()
	s.dispatch()
}

// dispatch 在有空闲槽位时依次弹出队首任务并安排执行。
// 每个任务的开始时间 = max(now, lastAt+minInterval)，并把 lastAt 推进到该时间点，
// 因此同一轮内连续派发的任务也保持间隔。
// 提交方 ctx 已结束的任务不占槽位、不推进 lastAt，直接在锁外结束其 Future。
func (s *Scheduler) dispatch() {
	var dropped []job
	defer func() {
		for _, j := range dropped {
			j.run()
		}
	}()

	s.mu.Lock()
	defer s.mu.Unlock()

	for s.running < s.concurrency && len(s.queue) > 0 {
		j := s.queue[0]
		s.queue[0] = job{}
		s.queue = s.queue[1:]

		if j.ctx.Err() != nil {
			dropped = append(dropped, j)
			continue
		}

		now := s.now()
		var wait time.Duration
		if !s.lastAt.IsZero() {
			wait = s.minInterval - now.Sub(s.lastAt)
			if wait < 0 {
				wait = 0
			}
		}
		s.lastAt = now.Add(wait)
		s.running++

		if s.metrics != nil {
			s.metrics.ObserveDispatchWait(wait)
		}
		go s.execute(j, wait)
	}

	if s.metrics != nil {
		s.metrics.SchedulerState(len(s.queue), s.running)
	}
}

// execute 在预留的时间点执行任务；等待期间提交方放弃则提前释放槽位。
func (s *Scheduler) execute(j job, wait time.Duration) {
	if wait > 0 {
		t := time.NewTimer(wait)
		select {
		case <-t.C:
		case <-j.ctx.Done():
			t.Stop()
		}
	}

	j.run()

	s.mu.Lock()
	if now := s.now(); now.After(s.lastAt) {
		s.lastAt = now
	}
	s.running--
	s.mu.Unlock()

	s.dispatch()
}

// Future 是一次 Submit 的结果句柄。
type Future[T any] struct {
	done chan struct{}
	val  T
	err  error
}

// Done 在任务结束（成功/失败/panic）后关闭。
func (f *Future[T]) Done() <-chan struct{} { return f.done }

// Wait 等待任务结束；ctx 结束时提前返回 ctx.Err()（任务本身不会被撤回）。
func (f *Future[T]) Wait(ctx context.Context) (T, error) {
	select {
	case <-f.done:
		return f.val, f.err
	case <-ctx.Done():
		var zero T
		return zero, ctx.Err()
	}
}

// PanicError 表示任务 panic（被调度器捕获）。
type PanicError struct {
	Value any
}

func (e *PanicError) Error() string { return fmt.Sprintf("task panic: %v", e.Value) }

// Submit 把任务排入 s 的 FIFO 队列。
// 若轮到执行时 ctx 已结束，任务不会被调用，Future 以 ctx.Err() 结束。
func Submit[T any](ctx context.Context, s *Scheduler, task func(context.Context) (T, error)) *Future[T] {
	f := &Future[T]{done: make(chan struct{})}
	s.enqueue(ctx, func() {
		defer close(f.done)
		defer func() {
			if r := recover(); r != nil {
				f.err = &PanicError{Value: r}
			}
		}()
		if err := ctx.Err(); err != nil {
			f.err = err
			return
		}
		f.val, f.err = task(ctx)
	})
	return f
}

// Do 是 Submit + Wait 的简写。
func Do[T any](ctx context.Context, s *Scheduler, task func(context.Context) (T, error)) (T, error) {
	return Submit(ctx, s, task).Wait(ctx)
}
