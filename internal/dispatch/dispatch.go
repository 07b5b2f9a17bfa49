// Package dispatch drives pipeline execution: a fixed pool of workers
// drains one shared task queue so webhook ingestion never waits on
// script execution.
package dispatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"alerthub/internal/config"
	"alerthub/internal/domain"
	"alerthub/internal/dsl"
	"alerthub/internal/matcher"
	"alerthub/internal/metrics"
)

type task struct {
	alert domain.Alert
}

// Pool runs pipeline scripts for ingested alerts on a fixed set of
// workers. Tasks are unordered relative to each other; one alert is
// processed sequentially inside one worker.
// Params: runner, matcher, logger, pool sizing.
// Returns: started pool accepting Enqueue until Stop.
type Pool struct {
	runner      *dsl.Runner
	matcher     *matcher.Matcher
	log         *slog.Logger
	tasks       chan task
	wg          sync.WaitGroup
	stopOnce    sync.Once
	stopTimeout time.Duration
}

// New builds and starts the worker pool.
// Params: script runner, schedule matcher, logger, pipeline config.
// Returns: running pool.
func New(runner *dsl.Runner, m *matcher.Matcher, log *slog.Logger, cfg config.PipelineConfig) *Pool {
	p := &Pool{
		runner:      runner,
		matcher:     m,
		log:         log,
		tasks:       make(chan task, cfg.QueueSize),
		stopTimeout: cfg.StopTimeout(),
	}
	for i := 0; i < cfg.Workers; i++ {
		p.wg.Add(1)
		go p.worker()
	}
	log.Info("dispatch pool started", "workers", cfg.Workers, "queue_size", cfg.QueueSize)
	return p
}

// Enqueue hands one alert to the pool without blocking.
// Params: persisted alert.
// Returns: false when the queue is full and the task was dropped.
func (p *Pool) Enqueue(alert domain.Alert) bool {
	select {
	case p.tasks <- task{alert: alert}:
		metrics.TasksEnqueued.Inc()
		metrics.QueueDepth.Set(float64(len(p.tasks)))
		return true
	default:
		metrics.TasksDropped.Inc()
		p.log.Error("dispatch queue full, dropping alert", "alert_id", alert.Fingerprint)
		return false
	}
}

// Stop closes the queue and joins the workers.
// Params: none.
// Returns: error when workers did not drain within the stop timeout;
// remaining workers are abandoned.
func (p *Pool) Stop() error {
	p.stopOnce.Do(func() {
		close(p.tasks)
	})

	done := make(chan struct{})
	go func() {
		p.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		p.log.Info("dispatch pool stopped")
		return nil
	case <-time.After(p.stopTimeout):
		return fmt.Errorf("dispatch pool did not stop within %s", p.stopTimeout)
	}
}

func (p *Pool) worker() {
	defer p.wg.Done()
	for t := range p.tasks {
		metrics.QueueDepth.Set(float64(len(p.tasks)))
		p.process(t.alert)
	}
}

// process resolves who is on call right now and runs each matching
// schedule's pipeline against the alert. In-flight runs are never
// cancelled, so the context is not tied to Stop.
func (p *Pool) process(alert domain.Alert) {
	ctx := context.Background()

	schedules, err := p.matcher.ActiveSchedules(ctx)
	if err != nil {
		p.log.Error("schedule lookup failed", "alert_id", alert.Fingerprint, "error", err)
		return
	}
	if len(schedules) == 0 {
		p.log.Info("no matching schedules", "alert_id", alert.Fingerprint)
		return
	}

	windows, err := p.matcher.ActiveMaintenance(ctx)
	if err != nil {
		p.log.Error("maintenance lookup failed", "alert_id", alert.Fingerprint, "error", err)
		windows = nil
	}

	for _, schedule := range schedules {
		if schedule.PipelineID == 0 || schedule.Name == "" {
			continue
		}
		name, source := p.matcher.PipelineYAML(ctx, schedule.PipelineID)
		if name == "" {
			continue
		}
		p.log.Info("running pipeline",
			"pipeline", name,
			"schedule", schedule.Name,
			"alert_id", alert.Fingerprint,
			"status", alert.Status)
		metrics.PipelineRunsTotal.Inc()
		p.runner.Run(ctx, source, alert, schedule, windows)
	}
}
