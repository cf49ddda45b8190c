// Copyright (C) 2025 CardinalHQ, Inc
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as
// published by the Free Software Foundation, version 3.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Affero General Public License for more details.
//
// You should have received a copy of the GNU Affero General Public License
// along with this program. If not, see <http://www.gnu.org/licenses/>.

// Package perftest measures generation trials: wall time, Go heap, process
// RSS, and per-stage breakdowns.
package perftest

import (
	"context"
	"fmt"
	"os"
	"runtime"
	"slices"
	"sync/atomic"
	"time"

	"github.com/shirou/gopsutil/v4/process"
)

const mb = 1024 * 1024

// Metrics captures performance measurements for a test run
type Metrics struct {
	Duration      time.Duration `yaml:"duration"`
	Rows          int64         `yaml:"rows"`
	StartMemoryMB int64         `yaml:"start_memory_mb"`
	PeakMemoryMB  int64         `yaml:"peak_memory_mb"`
	PeakRSSMB     int64         `yaml:"peak_rss_mb"`
	AllocsMB      int64         `yaml:"allocs_mb"`
	NumGC         uint32        `yaml:"num_gc"`
}

// Report generates a human-readable summary
func (m *Metrics) Report(name string) string {
	rowsPerSec := float64(m.Rows) / m.Duration.Seconds()

	return fmt.Sprintf(`%s Results:
  Duration:        %v
  Rows:            %d (%.0f/sec)
  Memory:          %d MB start, %d MB peak heap, %d MB peak RSS, %d MB allocs
  GC:              %d collections
  Cores:           %d`,
		name,
		m.Duration,
		m.Rows, rowsPerSec,
		m.StartMemoryMB, m.PeakMemoryMB, m.PeakRSSMB, m.AllocsMB,
		m.NumGC,
		runtime.GOMAXPROCS(0))
}

// Timer helps measure performance of operations
type Timer struct {
	startTime    time.Time
	startMem     runtime.MemStats
	proc         *process.Process
	rows         atomic.Int64
	peakMemoryMB atomic.Int64
	peakRSSMB    atomic.Int64
}

// NewTimer creates a new performance timer. RSS is sampled only when the
// process handle can be opened.
func NewTimer() *Timer {
	t := &Timer{
		startTime: time.Now(),
	}
	if proc, err := process.NewProcess(int32(os.Getpid())); err == nil {
		t.proc = proc
	}
	runtime.ReadMemStats(&t.startMem)
	t.UpdateMemory()
	return t
}

// AddRows increments the row counter (thread-safe)
func (t *Timer) AddRows(count int64) {
	t.rows.Add(count)
}

// UpdateMemory samples current memory usage
func (t *Timer) UpdateMemory() {
	var m runtime.MemStats
	runtime.ReadMemStats(&m)
	storeMax(&t.peakMemoryMB, int64(m.HeapAlloc/mb))

	if t.proc == nil {
		return
	}
	if info, err := t.proc.MemoryInfo(); err == nil {
		storeMax(&t.peakRSSMB, int64(info.RSS/mb))
	}
}

func storeMax(v *atomic.Int64, current int64) {
	for {
		peak := v.Load()
		if current <= peak {
			return
		}
		if v.CompareAndSwap(peak, current) {
			return
		}
	}
}

// Stop finalizes measurements and returns metrics
func (t *Timer) Stop() *Metrics {
	duration := time.Since(t.startTime)
	t.UpdateMemory()

	var endMem runtime.MemStats
	runtime.ReadMemStats(&endMem)

	return &Metrics{
		Duration:      duration,
		Rows:          t.rows.Load(),
		StartMemoryMB: int64(t.startMem.HeapAlloc / mb),
		PeakMemoryMB:  t.peakMemoryMB.Load(),
		PeakRSSMB:     t.peakRSSMB.Load(),
		AllocsMB:      int64((endMem.TotalAlloc - t.startMem.TotalAlloc) / mb),
		NumGC:         endMem.NumGC - t.startMem.NumGC,
	}
}

// StageTimer accumulates time per named stage across trials.
type StageTimer struct {
	order  []string
	stages map[string]*stageMeasurement
}

type stageMeasurement struct {
	duration time.Duration
	count    int
}

// NewStageTimer creates a timer for tracking multiple stages
func NewStageTimer() *StageTimer {
	return &StageTimer{
		stages: make(map[string]*stageMeasurement),
	}
}

// Add records one execution of a stage.
func (st *StageTimer) Add(name string, d time.Duration) {
	s, ok := st.stages[name]
	if !ok {
		s = &stageMeasurement{}
		st.stages[name] = s
		st.order = append(st.order, name)
	}
	s.duration += d
	s.count++
}

// Mean returns the average duration of a stage, or zero if it never ran.
func (st *StageTimer) Mean(name string) time.Duration {
	s, ok := st.stages[name]
	if !ok || s.count == 0 {
		return 0
	}
	return s.duration / time.Duration(s.count)
}

// Names returns the stage names in the order they were first seen.
func (st *StageTimer) Names() []string {
	return slices.Clone(st.order)
}

// MemorySampler periodically samples memory usage during a test
type MemorySampler struct {
	ctx       context.Context
	cancel    context.CancelFunc
	timer     *Timer
	interval  time.Duration
	doneChan  chan struct{}
	isRunning atomic.Bool
}

// NewMemorySampler creates a background memory sampler
func NewMemorySampler(ctx context.Context, timer *Timer, interval time.Duration) *MemorySampler {
	ctx, cancel := context.WithCancel(ctx)
	return &MemorySampler{
		ctx:      ctx,
		cancel:   cancel,
		timer:    timer,
		interval: interval,
		doneChan: make(chan struct{}),
	}
}

// Start begins memory sampling in the background
func (ms *MemorySampler) Start() {
	if !ms.isRunning.CompareAndSwap(false, true) {
		return // Already running
	}

	go func() {
		defer close(ms.doneChan)
		ticker := time.NewTicker(ms.interval)
		defer ticker.Stop()

		for {
			select {
			case <-ms.ctx.Done():
				return
			case <-ticker.C:
				ms.timer.UpdateMemory()
			}
		}
	}()
}

// Stop halts memory sampling
func (ms *MemorySampler) Stop() {
	if !ms.isRunning.CompareAndSwap(true, false) {
		return // Not running
	}
	ms.cancel()
	<-ms.doneChan
}
