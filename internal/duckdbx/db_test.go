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
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

// Test that two connections from the pool share the same database state
func TestDB_SharedDataBetweenConnections(t *testing.T) {
	for _, tc := range []struct {
		name string
		opts []DBOption
	}{
		{"temp file", nil},
		{"in memory", []DBOption{WithInMemory()}},
	} {
		t.Run(tc.name, func(t *testing.T) {
			ctx := context.Background()
			db, err := NewDB(tc.opts...)
			require.NoError(t, err)
			defer func() { require.NoError(t, db.Close()) }()

			conn1, release1, err := db.GetConnection(ctx)
			require.NoError(t, err)
			defer release1()

			_, err = conn1.ExecContext(ctx, `CREATE TABLE test_shared (id INTEGER, name VARCHAR)`)
			require.NoError(t, err)
			_, err = conn1.ExecContext(ctx, `INSERT INTO test_shared VALUES (1, 'Alice'), (2, 'Bob'), (3, 'Charlie')`)
			require.NoError(t, err)

			conn2, release2, err := db.GetConnection(ctx)
			require.NoError(t, err)
			defer release2()

			var count int
			require.NoError(t, conn2.QueryRowContext(ctx, `SELECT COUNT(*) FROM test_shared`).Scan(&count))
			require.Equal(t, 3, count)
		})
	}
}

func TestDB_PoolSizeLimits(t *testing.T) {
	ctx := context.Background()

	db, err := NewDB(WithInMemory(), WithDuckDBSettings(DuckDBSettings{PoolSize: 2, Threads: 2}))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	conn1, release1, err := db.GetConnection(ctx)
	require.NoError(t, err)
	conn2, release2, err := db.GetConnection(ctx)
	require.NoError(t, err)

	_, err = conn1.ExecContext(ctx, `SELECT 1`)
	require.NoError(t, err)
	_, err = conn2.ExecContext(ctx, `SELECT 1`)
	require.NoError(t, err)

	release1()

	conn3, release3, err := db.GetConnection(ctx)
	require.NoError(t, err)
	defer release3()
	_, err = conn3.ExecContext(ctx, `SELECT 1`)
	require.NoError(t, err)

	release2()
}

func TestDB_ConcurrentAccess(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(WithInMemory())
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	conn, release, err := db.GetConnection(ctx)
	require.NoError(t, err)
	_, err = conn.ExecContext(ctx, `CREATE TABLE counter (worker INTEGER)`)
	require.NoError(t, err)
	release()

	var wg sync.WaitGroup
	errs := make(chan error, 8)
	for w := range 8 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c, rel, err := db.GetConnection(ctx)
			if err != nil {
				errs <- err
				return
			}
			defer rel()
			_, err = c.ExecContext(ctx, fmt.Sprintf(`INSERT INTO counter VALUES (%d)`, w))
			if err != nil {
				errs <- err
			}
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		require.NoError(t, err)
	}

	conn, release, err = db.GetConnection(ctx)
	require.NoError(t, err)
	defer release()
	var count int
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*) FROM counter`).Scan(&count))
	assert.Equal(t, 8, count)
}

func TestNewAppender(t *testing.T) {
	ctx := context.Background()
	db, err := NewDB(WithInMemory())
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	conn, release, err := db.GetConnection(ctx)
	require.NoError(t, err)
	defer release()

	_, err = conn.ExecContext(ctx, `CREATE TABLE appended (id BIGINT, name VARCHAR)`)
	require.NoError(t, err)

	appender, err := NewAppender(conn, "main", "appended")
	require.NoError(t, err)
	for i := range 100 {
		require.NoError(t, appender.AppendRow(int64(i), fmt.Sprintf("row-%d", i)))
	}
	require.NoError(t, appender.Close())

	var count, sum int64
	require.NoError(t, conn.QueryRowContext(ctx, `SELECT COUNT(*), SUM(id) FROM appended`).Scan(&count, &sum))
	assert.Equal(t, int64(100), count)
	assert.Equal(t, int64(4950), sum)
}

func TestBuildDSN(t *testing.T) {
	dsn := buildDSN("/tmp/x.ddb", &DuckDBSettings{
		MemoryLimitMB:        512,
		TempDirectory:        "/scratch",
		MaxTempDirectorySize: "10GB",
	}, 4)
	assert.Equal(t, "/tmp/x.ddb?memory_limit=512MB&threads=4&temp_directory=/scratch&max_temp_directory_size=10GB", dsn)

	assert.Equal(t, "?threads=2", buildDSN("", &DuckDBSettings{}, 2))
}

func TestEscapeSingle(t *testing.T) {
	assert.Equal(t, "it''s", EscapeSingle("it's"))
	assert.Equal(t, "plain", EscapeSingle("plain"))
}

func TestParseSize(t *testing.T) {
	tests := []struct {
		in   string
		want int64
	}{
		{"0 bytes", 0},
		{"512 bytes", 512},
		{"1.5 KiB", 1536},
		{"2 MiB", 2 << 20},
		{"1 GiB", 1 << 30},
		{"1.2 MB", 1_200_000},
		{"3 GB", 3_000_000_000},
		{"42", 42},
		{"", 0},
		{"x MB", 0},
		{"5 furlongs", 0},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, parseSize(tt.in))
		})
	}
}

func TestRecordMemoryStats(t *testing.T) {
	ctx := context.Background()
	reader := sdkmetric.NewManualReader()
	provider := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	prev := otel.GetMeterProvider()
	otel.SetMeterProvider(provider)
	defer otel.SetMeterProvider(prev)

	db, err := NewDB(WithInMemory(), WithName("test"))
	require.NoError(t, err)
	defer func() { require.NoError(t, db.Close()) }()

	gauges, err := newMemoryGauges()
	require.NoError(t, err)
	require.NoError(t, db.recordMemoryStats(ctx, gauges))

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(ctx, &rm))

	found := false
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != "companygen.duckdb.memory.block_size" {
				continue
			}
			gauge, ok := m.Data.(metricdata.Gauge[int64])
			require.True(t, ok)
			require.NotEmpty(t, gauge.DataPoints)
			name, ok := gauge.DataPoints[0].Attributes.Value("instance_name")
			require.True(t, ok)
			assert.Equal(t, "test", name.AsString())
			found = true
		}
	}
	assert.True(t, found, "block_size gauge not recorded")
}

func TestWithDatabasePathEmptyPanics(t *testing.T) {
	defer func() {
		r := recover()
		require.NotNil(t, r, "WithDatabasePath(\"\") should panic")
		require.Contains(t, fmt.Sprintf("%v", r), "must not be empty")
	}()

	cfg := &dbConfig{}
	opt := WithDatabasePath("")
	opt(cfg)
}

func TestGetDatabasePath(t *testing.T) {
	db1, err := NewDB()
	require.NoError(t, err)
	defer func() { _ = db1.Close() }()
	require.Contains(t, db1.GetDatabasePath(), "global.ddb")

	testPath := filepath.Join(t.TempDir(), "test.ddb")
	db2, err := NewDB(WithDatabasePath(testPath))
	require.NoError(t, err)
	defer func() { _ = db2.Close() }()
	require.Equal(t, testPath, db2.GetDatabasePath())

	db3, err := NewDB(WithInMemory())
	require.NoError(t, err)
	defer func() { _ = db3.Close() }()
	require.Empty(t, db3.GetDatabasePath())
}

// DB.Close only removes directories it created itself.
func TestCloseDoesNotDeleteUserProvidedPaths(t *testing.T) {
	ctx := context.Background()

	t.Run("UserProvidedPath", func(t *testing.T) {
		testDir := t.TempDir()
		dbPath := filepath.Join(testDir, "my.ddb")
		otherFile := filepath.Join(testDir, "important.txt")
		require.NoError(t, os.WriteFile(otherFile, []byte("important data"), 0644))

		db, err := NewDB(WithDatabasePath(dbPath))
		require.NoError(t, err)
		conn, release, err := db.GetConnection(ctx)
		require.NoError(t, err)
		_, err = conn.ExecContext(ctx, `SELECT 1`)
		require.NoError(t, err)
		release()
		require.NoError(t, db.Close())

		_, err = os.Stat(otherFile)
		require.NoError(t, err, "other files in user-provided directory should still exist")
		_, err = os.Stat(dbPath)
		require.NoError(t, err, "database file should still exist")
	})

	t.Run("InternalTempPath", func(t *testing.T) {
		db, err := NewDB()
		require.NoError(t, err)
		dbDir := filepath.Dir(db.GetDatabasePath())

		conn, release, err := db.GetConnection(ctx)
		require.NoError(t, err)
		_, err = conn.ExecContext(ctx, `SELECT 1`)
		require.NoError(t, err)
		release()
		require.NoError(t, db.Close())

		_, err = os.Stat(dbDir)
		require.True(t, os.IsNotExist(err), "temp directory should not exist")
	})
}
