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

package perftest

import (
	"bytes"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func trial(engine string, d time.Duration) *Trial {
	t := NewTrial(engine, 0, false)
	t.Duration = d
	t.Rows = 300
	t.Digest = "00c0ffee00c0ffee"
	t.Stages = []StageTime{{Name: "read", Duration: d / 2}, {Name: "join", Duration: d / 2}}
	t.Metrics = &Metrics{Duration: d, Rows: 300, PeakRSSMB: 100, AllocsMB: 20}
	return t
}

func TestSummarize(t *testing.T) {
	warm := trial("duckdb", time.Hour)
	warm.Warmup = true
	failed := NewTrial("duckdb", 4, false)
	failed.Error = "boom"

	trials := []*Trial{
		warm,
		trial("duckdb", 100*time.Millisecond),
		trial("arrow", 50*time.Millisecond),
		trial("duckdb", 300*time.Millisecond),
		trial("duckdb", 200*time.Millisecond),
		failed,
	}
	trials[3].Metrics.PeakRSSMB = 250

	summaries, err := Summarize(trials)
	require.NoError(t, err)
	require.Len(t, summaries, 2)

	d := summaries[0]
	assert.Equal(t, "duckdb", d.Engine)
	assert.Equal(t, 3, d.Trials)
	assert.Equal(t, 1, d.Failed)
	assert.Equal(t, 100*time.Millisecond, d.Min)
	assert.Equal(t, 300*time.Millisecond, d.Max)
	assert.Equal(t, 200*time.Millisecond, d.Mean)
	assert.InDelta(t, float64(200*time.Millisecond), float64(d.P50), float64(5*time.Millisecond))
	assert.LessOrEqual(t, d.P90, d.Max)
	assert.GreaterOrEqual(t, d.P90, d.P50)
	assert.Equal(t, int64(250), d.PeakRSSMB)
	require.Len(t, d.Stages, 2)
	assert.Equal(t, "read", d.Stages[0].Name)
	assert.Equal(t, 100*time.Millisecond, d.Stages[0].Duration)

	a := summaries[1]
	assert.Equal(t, "arrow", a.Engine)
	assert.Equal(t, 1, a.Trials)
	assert.Equal(t, a.Min, a.P50)
	assert.Equal(t, a.Max, a.P90)
}

func TestSummarize_AllFailed(t *testing.T) {
	failed := NewTrial("sqlite", 0, false)
	failed.Error = "boom"

	summaries, err := Summarize([]*Trial{failed})
	require.NoError(t, err)
	require.Len(t, summaries, 1)
	assert.Equal(t, 0, summaries[0].Trials)
	assert.Equal(t, 1, summaries[0].Failed)
	assert.Zero(t, summaries[0].P50)
}

func TestNewTrial_UniqueIDs(t *testing.T) {
	a := NewTrial("duckdb", 0, false)
	b := NewTrial("duckdb", 0, false)
	assert.NotEqual(t, a.ID, b.ID)
	assert.Len(t, a.ID, 36)
}

func TestReport_YAMLRoundTrip(t *testing.T) {
	r := NewReport(Params{
		InputFile:    "companies.parquet",
		Engines:      []string{"duckdb", "arrow"},
		NumPersons:   200,
		NumPositions: 300,
		Seed:         37,
		Trials:       2,
	})
	r.Add(trial("duckdb", 120*time.Millisecond))
	r.Add(trial("arrow", 80*time.Millisecond))
	require.NoError(t, r.Finish())

	var buf bytes.Buffer
	require.NoError(t, r.WriteYAML(&buf))
	assert.Contains(t, buf.String(), "duration: 120ms")
	assert.Contains(t, buf.String(), "digest: 00c0ffee00c0ffee")

	got, err := ReadReport(&buf)
	require.NoError(t, err)
	assert.Len(t, got.ID, 26)
	assert.Equal(t, r.ID, got.ID)
	assert.Equal(t, r.Params, got.Params)
	require.Len(t, got.Summaries, 2)
	assert.Equal(t, r.Summaries[0].Min, got.Summaries[0].Min)
	require.Len(t, got.Trials, 2)
	assert.Equal(t, r.Trials[1].Stages, got.Trials[1].Stages)
	assert.Equal(t, "00c0ffee00c0ffee", got.Trials[0].Digest)
}

func TestReport_Print(t *testing.T) {
	r := NewReport(Params{Engines: []string{"sqlite"}})
	r.Add(trial("sqlite", 1500*time.Millisecond))
	require.NoError(t, r.Finish())

	var buf bytes.Buffer
	require.NoError(t, r.Print(&buf))
	out := buf.String()
	assert.Contains(t, out, "engine")
	assert.Contains(t, out, "sqlite")
	assert.Contains(t, out, "1.5s")
	assert.Contains(t, out, "sqlite stages (mean):")
}

func TestNewReport_IDsSortByStart(t *testing.T) {
	a := NewReport(Params{})
	b := NewReport(Params{})
	assert.Less(t, a.ID, b.ID)
}
