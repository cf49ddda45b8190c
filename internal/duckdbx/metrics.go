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

package duckdbx

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

type memoryGauges struct {
	dbSize      metric.Int64Gauge
	blockSize   metric.Int64Gauge
	totalBlocks metric.Int64Gauge
	usedBlocks  metric.Int64Gauge
	freeBlocks  metric.Int64Gauge
	walSize     metric.Int64Gauge
	memoryUsage metric.Int64Gauge
	memoryLimit metric.Int64Gauge
}

func newMemoryGauges() (*memoryGauges, error) {
	meter := otel.Meter("github.com/cardinalhq/companygen/internal/duckdbx")
	g := &memoryGauges{}
	for _, spec := range []struct {
		dst  *metric.Int64Gauge
		name string
		desc string
		unit string
	}{
		{&g.dbSize, "companygen.duckdb.memory.database_size", "DuckDB database size", "By"},
		{&g.blockSize, "companygen.duckdb.memory.block_size", "DuckDB block size", "By"},
		{&g.totalBlocks, "companygen.duckdb.memory.total_blocks", "DuckDB total blocks", "1"},
		{&g.usedBlocks, "companygen.duckdb.memory.used_blocks", "DuckDB used blocks", "1"},
		{&g.freeBlocks, "companygen.duckdb.memory.free_blocks", "DuckDB free blocks", "1"},
		{&g.walSize, "companygen.duckdb.memory.wal_size", "DuckDB WAL size", "By"},
		{&g.memoryUsage, "companygen.duckdb.memory.memory_usage", "DuckDB memory usage", "By"},
		{&g.memoryLimit, "companygen.duckdb.memory.memory_limit", "DuckDB memory limit", "By"},
	} {
		gauge, err := meter.Int64Gauge(spec.name,
			metric.WithDescription(spec.desc),
			metric.WithUnit(spec.unit),
		)
		if err != nil {
			return nil, fmt.Errorf("create %s: %w", spec.name, err)
		}
		*spec.dst = gauge
	}
	return g, nil
}

// recordMemoryStats reads PRAGMA database_size once and records it on the
// memory gauges.
func (d *DB) recordMemoryStats(ctx context.Context, g *memoryGauges) error {
	conn, release, err := d.GetConnection(ctx)
	if err != nil {
		return err
	}
	stats, err := GetDuckDBMemoryStats(ctx, conn)
	release()
	if err != nil {
		return err
	}

	for _, stat := range stats {
		attributes := []attribute.KeyValue{
			attribute.String("database_name", stat.DatabaseName),
			attribute.String("database_type", "duckdb"),
		}
		if d.name != "" {
			attributes = append(attributes, attribute.String("instance_name", d.name))
		}
		attr := metric.WithAttributeSet(attribute.NewSet(attributes...))
		g.dbSize.Record(ctx, stat.DatabaseSize, attr)
		g.blockSize.Record(ctx, stat.BlockSize, attr)
		g.totalBlocks.Record(ctx, stat.TotalBlocks, attr)
		g.usedBlocks.Record(ctx, stat.UsedBlocks, attr)
		g.freeBlocks.Record(ctx, stat.FreeBlocks, attr)
		g.walSize.Record(ctx, stat.WALSize, attr)
		g.memoryUsage.Record(ctx, stat.MemoryUsage, attr)
		g.memoryLimit.Record(ctx, stat.MemoryLimit, attr)
	}
	return nil
}

// pollMemoryMetrics periodically polls DuckDB memory statistics and records
// them as OpenTelemetry metrics until ctx is done.
func (d *DB) pollMemoryMetrics(ctx context.Context) {
	gauges, err := newMemoryGauges()
	if err != nil {
		slog.Error("failed to create duckdb memory metrics", "error", err)
		return
	}

	for {
		if err := d.recordMemoryStats(ctx, gauges); err != nil {
			if ctx.Err() != nil {
				return
			}
			slog.Error("failed to get memory stats", "name", d.name, "error", err)
		}

		select {
		case <-ctx.Done():
			return
		case <-time.After(d.metricsPeriod):
		}
	}
}
