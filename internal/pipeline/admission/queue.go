// Copyright (c) 2025 ManuGH
// Licensed under the PolyForm Noncommercial License 1.0.0
// Since v2.0.0, this software is restricted to non-commercial use only.

// Package admission gates how many render jobs may run concurrently (spec
// §4.3 "Concurrent renders are bounded by max_concurrent_jobs checked
// before accepting a new job"), with priority scheduling across preview
// renders, queued batch exports, and interactive "render now" requests.
package admission

import (
	"context"
	"time"

	"github.com/veditcore/engine/internal/enginerr"
	"github.com/veditcore/engine/internal/log"
	"github.com/veditcore/engine/internal/metrics"
	"golang.org/x/sync/semaphore"
)

// Priority orders which waiting job is admitted first when a slot frees up.
type Priority int

const (
	// PriorityPreview covers cheap, throwaway preview-frame renders
	// triggered by scrubbing the timeline.
	PriorityPreview Priority = 0
	// PriorityBatch covers queued, unattended export jobs.
	PriorityBatch Priority = 1
	// PriorityInteractive covers a user-initiated "render now" export the
	// UI is actively waiting on.
	PriorityInteractive Priority = 2
)

func (p Priority) String() string {
	switch p {
	case PriorityPreview:
		return "preview"
	case PriorityBatch:
		return "batch"
	case PriorityInteractive:
		return "interactive"
	default:
		return "unknown"
	}
}

// Config controls admission limits.
type Config struct {
	MaxConcurrentJobs int64
	MaxQueueSize      int
	MaxWaitTime       time.Duration
}

// DefaultConfig returns conservative desktop-app defaults.
func DefaultConfig() Config {
	return Config{
		MaxConcurrentJobs: 2,
		MaxQueueSize:      50,
		MaxWaitTime:       30 * time.Minute,
	}
}

type ticket struct {
	priority  Priority
	createdAt time.Time
	deadline  time.Time
	granted   chan error
}

// Queue admits jobs up to Config.MaxConcurrentJobs, preferring
// higher-priority waiters when a slot frees up.
type Queue struct {
	config Config
	sem    *semaphore.Weighted

	queues [3]chan *ticket

	ctx    context.Context
	cancel context.CancelFunc
}

// NewQueue creates a Queue and starts its dispatcher goroutine.
func NewQueue(config Config) *Queue {
	ctx, cancel := context.WithCancel(context.Background())
	q := &Queue{
		config: config,
		sem:    semaphore.NewWeighted(config.MaxConcurrentJobs),
		ctx:    ctx,
		cancel: cancel,
	}
	for i := range q.queues {
		q.queues[i] = make(chan *ticket, config.MaxQueueSize)
	}
	go q.dispatch()
	return q
}

// Acquire blocks until a concurrency slot is granted, the queue is full, the
// wait exceeds MaxWaitTime, or ctx is cancelled. On success it returns a
// release function the caller must invoke exactly once when the job
// finishes.
func (q *Queue) Acquire(ctx context.Context, priority Priority) (release func(), err error) {
	t := &ticket{
		priority:  priority,
		createdAt: time.Now(),
		granted:   make(chan error, 1),
	}
	t.deadline = t.createdAt.Add(q.config.MaxWaitTime)

	metrics.JobsQueued.WithLabelValues(priority.String()).Inc()
	select {
	case q.queues[priority] <- t:
	case <-time.After(1 * time.Second):
		metrics.JobsQueued.WithLabelValues(priority.String()).Dec()
		metrics.IncJobRejected("queue_full")
		return nil, enginerr.New(enginerr.KindTooManyActiveJobs, "admission queue full")
	case <-ctx.Done():
		metrics.JobsQueued.WithLabelValues(priority.String()).Dec()
		return nil, ctx.Err()
	case <-q.ctx.Done():
		metrics.JobsQueued.WithLabelValues(priority.String()).Dec()
		return nil, enginerr.New(enginerr.KindCancelled, "admission queue shutting down")
	}

	select {
	case err := <-t.granted:
		metrics.JobsQueued.WithLabelValues(priority.String()).Dec()
		if err != nil {
			return nil, err
		}
		metrics.JobsActive.Inc()
		released := false
		return func() {
			if released {
				return
			}
			released = true
			metrics.JobsActive.Dec()
			q.sem.Release(1)
		}, nil
	case <-ctx.Done():
		metrics.JobsQueued.WithLabelValues(priority.String()).Dec()
		return nil, ctx.Err()
	case <-q.ctx.Done():
		metrics.JobsQueued.WithLabelValues(priority.String()).Dec()
		return nil, enginerr.New(enginerr.KindCancelled, "admission queue shutting down")
	}
}

// dispatch grants tickets in priority order as slots become available.
func (q *Queue) dispatch() {
	for {
		t := q.next()
		if t == nil {
			return
		}

		if time.Now().After(t.deadline) {
			metrics.IncJobRejected("timeout")
			t.granted <- enginerr.TimeoutError("admission wait", time.Since(t.createdAt).Seconds())
			continue
		}

		if err := q.sem.Acquire(q.ctx, 1); err != nil {
			t.granted <- err
			continue
		}
		t.granted <- nil
	}
}

func (q *Queue) next() *ticket {
	select {
	case t := <-q.queues[PriorityInteractive]:
		return t
	case <-q.ctx.Done():
		return nil
	default:
	}
	select {
	case t := <-q.queues[PriorityInteractive]:
		return t
	case t := <-q.queues[PriorityBatch]:
		return t
	case t := <-q.queues[PriorityPreview]:
		return t
	case <-q.ctx.Done():
		return nil
	}
}

// Stop shuts the queue down; waiters receive an error.
func (q *Queue) Stop() {
	log.L().Info().Msg("stopping render admission queue")
	q.cancel()
}
