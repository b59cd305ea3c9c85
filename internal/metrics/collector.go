// Package metrics provides in-memory timing collection for the import
// pipeline.
package metrics

import (
	"math"
	"sync"
	"time"
)

// OperationMetrics holds aggregated timings for a single phase.
type OperationMetrics struct {
	Count     int64
	TotalTime time.Duration
	MinTime   time.Duration
	MaxTime   time.Duration
}

// OperationSnapshot provides computed stats from raw metrics.
type OperationSnapshot struct {
	Count       int64
	TotalTimeMs int64
	AvgTimeMs   float64
	MinTimeMs   int64
	MaxTimeMs   int64
}

// Snapshot represents the full pipeline timings at a point in time.
type Snapshot struct {
	UptimeSeconds float64
	Upload        *OperationSnapshot
	Watch         *OperationSnapshot
	Materialize   *OperationSnapshot
	Reconcile     *OperationSnapshot
}

// Phase names for the collector.
const (
	OpUpload      = "upload"
	OpWatch       = "watch"
	OpMaterialize = "materialize"
	OpReconcile   = "reconcile"
)

// Collector aggregates in-memory pipeline timings.
// All methods are thread-safe.
type Collector struct {
	mu        sync.RWMutex
	startTime time.Time
	ops       map[string]*OperationMetrics
}

// NewCollector creates a new metrics collector.
func NewCollector() *Collector {
	return &Collector{
		startTime: time.Now(),
		ops:       make(map[string]*OperationMetrics),
	}
}

// getOrCreate returns existing metrics or creates new ones for a phase.
// Caller must hold write lock.
func (c *Collector) getOrCreate(op string) *OperationMetrics {
	m, ok := c.ops[op]
	if !ok {
		m = &OperationMetrics{
			MinTime: time.Duration(math.MaxInt64),
		}
		c.ops[op] = m
	}
	return m
}

// RecordTiming records one timed run of a pipeline phase.
func (c *Collector) RecordTiming(op string, duration time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()

	m := c.getOrCreate(op)
	m.Count++
	m.TotalTime += duration

	if duration < m.MinTime {
		m.MinTime = duration
	}
	if duration > m.MaxTime {
		m.MaxTime = duration
	}
}

// Time runs fn and records its duration under op.
func (c *Collector) Time(op string, fn func() error) error {
	start := time.Now()
	err := fn()
	c.RecordTiming(op, time.Since(start))
	return err
}

// snapshotOp creates a snapshot for a phase, returning nil if no data.
func snapshotOp(m *OperationMetrics) *OperationSnapshot {
	if m == nil || m.Count == 0 {
		return nil
	}

	return &OperationSnapshot{
		Count:       m.Count,
		TotalTimeMs: m.TotalTime.Milliseconds(),
		AvgTimeMs:   float64(m.TotalTime.Milliseconds()) / float64(m.Count),
		MinTimeMs:   m.MinTime.Milliseconds(),
		MaxTimeMs:   m.MaxTime.Milliseconds(),
	}
}

// Snapshot returns a point-in-time snapshot of all metrics.
func (c *Collector) Snapshot() Snapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()

	return Snapshot{
		UptimeSeconds: time.Since(c.startTime).Seconds(),
		Upload:        snapshotOp(c.ops[OpUpload]),
		Watch:         snapshotOp(c.ops[OpWatch]),
		Materialize:   snapshotOp(c.ops[OpMaterialize]),
		Reconcile:     snapshotOp(c.ops[OpReconcile]),
	}
}
