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

package resultwriter

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cardinalhq/companygen/internal/relation"
)

func sampleTable(n int) *relation.Table {
	t := relation.NewTable(n)
	countries := []string{"united states", "united kingdom", "india"}
	for i := range n {
		t.Append(relation.ResultRow{
			PersonID:  int64(i / 2),
			CompanyID: int64(1000 + i%7),
			Locality:  "city " + countries[i%3],
			Country:   countries[i%3],
			Age:       int64(25 + i%40),
		})
	}
	return t
}

func TestWriteFile_RoundTrip(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "result.parquet")
	want := sampleTable(1000)

	require.NoError(t, WriteFile(ctx, path, want, Options{ChunkSize: 128}))

	got, err := ReadFile(ctx, path)
	require.NoError(t, err)
	assert.True(t, want.Equal(got), "first difference at row %d", want.Diff(got))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file left behind")
}

func TestWriteFile_Empty(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "empty.parquet")

	require.NoError(t, WriteFile(ctx, path, relation.NewTable(0), Options{}))

	got, err := ReadFile(ctx, path)
	require.NoError(t, err)
	assert.Equal(t, 0, got.NumRows())
}

func TestWrite_Allocations(t *testing.T) {
	mem := memory.NewCheckedAllocator(memory.NewGoAllocator())
	defer mem.AssertSize(t, 0)

	var buf bytes.Buffer
	require.NoError(t, Write(context.Background(), &buf, sampleTable(300), Options{ChunkSize: 100, Allocator: mem}))
	assert.Equal(t, "PAR1", string(buf.Bytes()[:4]))
}

func TestWrite_Canceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	var buf bytes.Buffer
	err := Write(ctx, &buf, sampleTable(10), Options{})
	assert.ErrorIs(t, err, context.Canceled)
}

func TestWriteFile_MissingDirectory(t *testing.T) {
	path := filepath.Join(t.TempDir(), "nope", "result.parquet")
	err := WriteFile(context.Background(), path, sampleTable(1), Options{})
	assert.Error(t, err)
}

func TestReadFile_NotParquet(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "companies.parquet")
	require.NoError(t, os.WriteFile(path, []byte("not parquet"), 0o644))

	_, err := ReadFile(ctx, path)
	assert.Error(t, err)
}
