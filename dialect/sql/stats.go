package sql

import (
	"context"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/weavedb/loom/dialect"
)

// QueryStats holds query execution statistics.
type QueryStats struct {
	// TotalQueries is the total number of queries executed.
	TotalQueries atomic.Int64
	// TotalExecs is the total number of exec statements executed.
	TotalExecs atomic.Int64
	// TotalDuration is the total time spent executing queries.
	TotalDuration atomic.Int64 // nanoseconds
	// SlowQueries is the count of queries exceeding the slow threshold.
	SlowQueries atomic.Int64
	// Errors is the count of query errors.
	Errors atomic.Int64
}

// Stats returns a snapshot of the current statistics.
func (s *QueryStats) Stats() StatsSnapshot {
	return StatsSnapshot{
		TotalQueries:  s.TotalQueries.Load(),
		TotalExecs:    s.TotalExecs.Load(),
		TotalDuration: time.Duration(s.TotalDuration.Load()),
		SlowQueries:   s.SlowQueries.Load(),
		Errors:        s.Errors.Load(),
	}
}

// Reset resets all statistics to zero.
func (s *QueryStats) Reset() {
	s.TotalQueries.Store(0)
	s.TotalExecs.Store(0)
	s.TotalDuration.Store(0)
	s.SlowQueries.Store(0)
	s.Errors.Store(0)
}

// StatsSnapshot is a point-in-time snapshot of query statistics.
type StatsSnapshot struct {
	TotalQueries  int64
	TotalExecs    int64
	TotalDuration time.Duration
	SlowQueries   int64
	Errors        int64
}

// Total returns the total number of statements (queries and execs).
func (s StatsSnapshot) Total() int64 {
	return s.TotalQueries + s.TotalExecs
}

// AvgQueryDuration returns the average query duration.
func (s StatsSnapshot) AvgQueryDuration() time.Duration {
	total := s.Total()
	if total == 0 {
		return 0
	}
	return s.TotalDuration / time.Duration(total)
}

// String returns a human-readable summary of the statistics.
func (s StatsSnapshot) String() string {
	return fmt.Sprintf(
		"queries=%d execs=%d duration=%s avg=%s slow=%d errors=%d",
		s.TotalQueries, s.TotalExecs, s.TotalDuration, s.AvgQueryDuration(),
		s.SlowQueries, s.Errors,
	)
}

// SlowQueryHook is a function called when a slow query is detected.
type SlowQueryHook func(ctx context.Context, query string, args []any, duration time.Duration)

// StatsDriver wraps a Driver with query statistics collection.
// It is the instrumentation hook used to assert query counts in tests
// (e.g. that an eager load issues exactly one batched statement).
type StatsDriver struct {
	dialect.Driver
	stats     *QueryStats
	threshold time.Duration
	onSlow    SlowQueryHook
	logger    *slog.Logger
}

// StatsOption configures a StatsDriver.
type StatsOption func(*StatsDriver)

// WithSlowQueryThreshold sets the duration above which a statement is
// counted (and logged) as slow.
func WithSlowQueryThreshold(d time.Duration) StatsOption {
	return func(s *StatsDriver) { s.threshold = d }
}

// WithSlowQueryHook sets a hook invoked for each slow statement.
func WithSlowQueryHook(h SlowQueryHook) StatsOption {
	return func(s *StatsDriver) { s.onSlow = h }
}

// WithStatsLogger sets the logger used for slow-query warnings.
func WithStatsLogger(l *slog.Logger) StatsOption {
	return func(s *StatsDriver) { s.logger = l }
}

// WithStats wraps the given driver with a StatsDriver.
func WithStats(drv dialect.Driver, opts ...StatsOption) *StatsDriver {
	s := &StatsDriver{
		Driver: drv,
		stats:  &QueryStats{},
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Stats returns a snapshot of the collected statistics.
func (s *StatsDriver) Stats() StatsSnapshot { return s.stats.Stats() }

// ResetStats resets the collected statistics.
func (s *StatsDriver) ResetStats() { s.stats.Reset() }

// Exec collects statistics and calls the underlying driver Exec method.
func (s *StatsDriver) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := s.Driver.Exec(ctx, query, args, v)
	s.observe(ctx, &s.stats.TotalExecs, query, args, time.Since(start), err)
	return err
}

// Query collects statistics and calls the underlying driver Query method.
func (s *StatsDriver) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := s.Driver.Query(ctx, query, args, v)
	s.observe(ctx, &s.stats.TotalQueries, query, args, time.Since(start), err)
	return err
}

// Tx wraps the transaction returned by the underlying driver so that
// statements inside the transaction are counted as well.
func (s *StatsDriver) Tx(ctx context.Context) (dialect.Tx, error) {
	tx, err := s.Driver.Tx(ctx)
	if err != nil {
		return nil, err
	}
	return &statsTx{Tx: tx, drv: s, ctx: ctx}, nil
}

func (s *StatsDriver) observe(ctx context.Context, counter *atomic.Int64, query string, args any, d time.Duration, err error) {
	counter.Add(1)
	s.stats.TotalDuration.Add(int64(d))
	if err != nil {
		s.stats.Errors.Add(1)
	}
	if s.threshold > 0 && d >= s.threshold {
		s.stats.SlowQueries.Add(1)
		argv, _ := args.([]any)
		s.logger.WarnContext(ctx, "slow query", "query", query, "args", argv, "duration", d)
		if s.onSlow != nil {
			s.onSlow(ctx, query, argv, d)
		}
	}
}

type statsTx struct {
	dialect.Tx
	drv *StatsDriver
	ctx context.Context
}

func (t *statsTx) Exec(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := t.Tx.Exec(ctx, query, args, v)
	t.drv.observe(ctx, &t.drv.stats.TotalExecs, query, args, time.Since(start), err)
	return err
}

func (t *statsTx) Query(ctx context.Context, query string, args, v any) error {
	start := time.Now()
	err := t.Tx.Query(ctx, query, args, v)
	t.drv.observe(ctx, &t.drv.stats.TotalQueries, query, args, time.Since(start), err)
	return err
}
