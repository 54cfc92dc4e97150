package jobs

import (
	"context"
	"log"
	"time"
)

// Job — периодическая фоновая задача. Ошибка не останавливает расписание.
type Job func(ctx context.Context) error

type Runner struct {
	ctx context.Context
}

func New(ctx context.Context) *Runner { return &Runner{ctx: ctx} }

// Every запускает задачу сразу и дальше по тикеру, пока жив контекст.
// Немедленный первый прогон нужен, чтобы gauge долгов не пустовал до первого тика.
func (r *Runner) Every(interval time.Duration, name string, fn Job) {
	go func() {
		t := time.NewTicker(interval)
		defer t.Stop()
		r.runOnce(name, fn)
		for {
			select {
			case <-r.ctx.Done():
				return
			case <-t.C:
				r.runOnce(name, fn)
			}
		}
	}()
}

func (r *Runner) runOnce(name string, fn Job) {
	start := time.Now()
	if err := fn(r.ctx); err != nil {
		log.Printf("jobs: %s: %v", name, err)
		jobErrors.WithLabelValues(name).Inc()
	}
	jobRuns.WithLabelValues(name).Inc()
	jobDuration.WithLabelValues(name).Observe(time.Since(start).Seconds())
}
