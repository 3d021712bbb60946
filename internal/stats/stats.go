// Package stats is the long-lived interval reporter spec.md §5 describes
// ("a global long-lived stats reporter runs on its own thread, waking on
// an interval to log counters/values drained from a shared map guarded by
// a mutex"), grounded on original_source/src/stats.rs's StatsLogger.
package stats

import (
	"context"
	"sort"
	"sync"
	"time"

	"go.uber.org/zap"
)

// Logger accumulates named counters and named string values from any
// number of goroutines and periodically drains and logs them.
type Logger struct {
	log      *zap.Logger
	ident    string
	interval time.Duration

	mu       sync.Mutex
	counters map[string]int64
	values   map[string]string
}

func New(log *zap.Logger, ident string, interval time.Duration) *Logger {
	return &Logger{
		log:      log,
		ident:    ident,
		interval: interval,
		counters: make(map[string]int64),
		values:   make(map[string]string),
	}
}

// Add increments a named counter by n.
func (l *Logger) Add(field string, n int64) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.counters[field] += n
}

// Set overwrites a named value, e.g. a cursor or current level.
func (l *Logger) Set(field, value string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[field] = value
}

// Run blocks, waking every interval to drain and log the accumulated
// counters/values, until ctx is cancelled.
func (l *Logger) Run(ctx context.Context) {
	l.log.Info("starting stats reporter", zap.String("ident", l.ident), zap.Duration("interval", l.interval))
	ticker := time.NewTicker(l.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			l.report()
		}
	}
}

func (l *Logger) report() {
	counters, values := l.drain()
	if len(counters) == 0 && len(values) == 0 {
		return
	}

	fields := make([]zap.Field, 0, len(counters)+len(values)+1)
	fields = append(fields, zap.Duration("interval", l.interval))
	for _, k := range sortedKeys(counters) {
		c := counters[k]
		perMinute := float64(c) * 60 / l.interval.Seconds()
		fields = append(fields, zap.Int64(k+"_total", c), zap.Float64(k+"_per_minute", perMinute))
	}
	for _, k := range sortedStringKeys(values) {
		fields = append(fields, zap.String(k, values[k]))
	}
	l.log.Info(l.ident+" report", fields...)
}

func (l *Logger) drain() (map[string]int64, map[string]string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	counters, values := l.counters, l.values
	l.counters = make(map[string]int64)
	l.values = make(map[string]string)
	return counters, values
}

func sortedKeys(m map[string]int64) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sortedStringKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
