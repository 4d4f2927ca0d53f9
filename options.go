// Copyright 2025 Joseph Cumines
//
// Permission to use, copy, modify, and distribute this software for any
// purpose with or without fee is hereby granted, provided that this copyright
// notice appears in all copies.

package loomrt

import "time"

// defaultTimerResolution is how finely the TimerWheel batches near-
// simultaneous deadlines when no WithTimerResolution option is given.
const defaultTimerResolution = 10 * time.Millisecond

// defaultReactorFailureBudget is the number of reactor poll failures
// tolerated per worker per second (see WithReactorFailureBudget) before
// that worker's loop stops and the process is expected to exit.
const defaultReactorFailureBudget = 5

// schedulerOptions holds configuration resolved once, at the scheduler's
// first construction (see SetWorkers / globalScheduler).
type schedulerOptions struct {
	workers              int
	timerResolution      time.Duration
	metricsEnabled       bool
	reactorFailureBudget int
	logger               Logger
}

func defaultSchedulerOptions() schedulerOptions {
	return schedulerOptions{
		timerResolution:      defaultTimerResolution,
		metricsEnabled:       true,
		reactorFailureBudget: defaultReactorFailureBudget,
		logger:               NewDefaultLogger(),
	}
}

// Option configures the Scheduler. Options are resolved once, at the
// scheduler's first use; see SetWorkers.
type Option func(*schedulerOptions)

// WithWorkers sets the number of worker OS threads (goroutines) the
// scheduler drives. Defaults to runtime.GOMAXPROCS(0).
func WithWorkers(n int) Option {
	return func(o *schedulerOptions) {
		o.workers = n
	}
}

// WithTimerResolution sets how finely the timer wheel batches
// near-simultaneous deadlines together into a single wakeup.
func WithTimerResolution(d time.Duration) Option {
	return func(o *schedulerOptions) {
		if d > 0 {
			o.timerResolution = d
		}
	}
}

// WithMetrics enables or disables the scheduler's runtime counters
// (ready-queue depth, poll-latency percentiles, completion throughput).
// Per-worker steal counts are kept regardless and are not part of Metrics.
func WithMetrics(enabled bool) Option {
	return func(o *schedulerOptions) {
		o.metricsEnabled = enabled
	}
}

// WithReactorFailureBudget sets how many reactor poll failures per second a
// single worker tolerates (via a sliding-window rate limiter) before its
// loop gives up and stops, per spec's "repeated failures propagate to
// process exit" policy.
func WithReactorFailureBudget(n int) Option {
	return func(o *schedulerOptions) {
		if n > 0 {
			o.reactorFailureBudget = n
		}
	}
}

// WithLogger sets the Logger used for scheduler/reactor/poison events.
func WithLogger(l Logger) Option {
	return func(o *schedulerOptions) {
		if l != nil {
			o.logger = l
		}
	}
}
