// Package reaper runs the background sweep that deletes delivered and
// expired task_ins/task_res rows on a timer, additive to the synchronous
// delete_tasks call in pkg/queue.
package reaper

import (
	"context"
	"time"

	"github.com/ygrebnov/workers"

	"github.com/cuemby/flower/pkg/log"
	"github.com/cuemby/flower/pkg/metrics"
)

// Sweeper is the subset of *queue.Queue the reaper depends on.
type Sweeper interface {
	Sweep() (insDeleted, resDeleted int, err error)
}

// Reaper ticks on interval and runs one Sweeper.Sweep per tick through a
// single-slot worker pool, in the manager's ticker-loop style. An interval of
// zero disables the reaper: Start becomes a no-op.
type Reaper struct {
	sweeper  Sweeper
	interval time.Duration
	stopCh   chan struct{}
}

// New constructs a Reaper. interval <= 0 disables it.
func New(sweeper Sweeper, interval time.Duration) *Reaper {
	return &Reaper{sweeper: sweeper, interval: interval, stopCh: make(chan struct{})}
}

// Start begins the sweep loop in a background goroutine. It returns
// immediately; call Stop to end it.
func (r *Reaper) Start() {
	if r.interval <= 0 {
		return
	}
	ticker := time.NewTicker(r.interval)
	go func() {
		for {
			select {
			case <-ticker.C:
				r.sweepOnce()
			case <-r.stopCh:
				ticker.Stop()
				return
			}
		}
	}()
}

// Stop ends the sweep loop.
func (r *Reaper) Stop() {
	close(r.stopCh)
}

func (r *Reaper) sweepOnce() {
	ctx := context.Background()
	task := workers.TaskError[struct{}](func(context.Context) error {
		insDeleted, resDeleted, err := r.sweeper.Sweep()
		if err != nil {
			return err
		}
		metrics.ReaperSweepsTotal.Inc()
		metrics.ReaperDeletedTotal.WithLabelValues("task_ins").Add(float64(insDeleted))
		metrics.ReaperDeletedTotal.WithLabelValues("task_res").Add(float64(resDeleted))
		log.WithComponent("reaper").Debug().
			Int("task_ins_deleted", insDeleted).
			Int("task_res_deleted", resDeleted).
			Msg("sweep complete")
		return nil
	})

	_, err := workers.RunAll[struct{}](ctx, []workers.Task[struct{}]{task}, workers.WithFixedPool(1))
	if err != nil {
		log.WithComponent("reaper").Error().Err(err).Msg("sweep failed")
	}
}
