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
	"fmt"
	"time"

	"github.com/DataDog/sketches-go/ddsketch"
	"github.com/google/uuid"
)

// Trial is one timed run of one engine.
type Trial struct {
	ID       string        `yaml:"id"`
	Engine   string        `yaml:"engine"`
	Index    int           `yaml:"index"`
	Warmup   bool          `yaml:"warmup,omitempty"`
	Duration time.Duration `yaml:"duration"`
	Rows     int           `yaml:"rows"`
	Digest   string        `yaml:"digest,omitempty"`
	Stages   []StageTime   `yaml:"stages,omitempty"`
	Metrics  *Metrics      `yaml:"metrics,omitempty"`
	Error    string        `yaml:"error,omitempty"`
}

// StageTime is the duration of one named pipeline stage.
type StageTime struct {
	Name     string        `yaml:"name"`
	Duration time.Duration `yaml:"duration"`
}

// NewTrial returns a trial with a fresh id.
func NewTrial(engine string, index int, warmup bool) *Trial {
	return &Trial{
		ID:     uuid.NewString(),
		Engine: engine,
		Index:  index,
		Warmup: warmup,
	}
}

// Failed reports whether the trial ended in an error.
func (t *Trial) Failed() bool {
	return t.Error != ""
}

// Summary aggregates the measured trials of one engine.
type Summary struct {
	Engine    string        `yaml:"engine"`
	Trials    int           `yaml:"trials"`
	Failed    int           `yaml:"failed,omitempty"`
	Min       time.Duration `yaml:"min"`
	P50       time.Duration `yaml:"p50"`
	P90       time.Duration `yaml:"p90"`
	Max       time.Duration `yaml:"max"`
	Mean      time.Duration `yaml:"mean"`
	PeakRSSMB int64         `yaml:"peak_rss_mb"`
	AllocsMB  int64         `yaml:"allocs_mb"`
	// Stages holds the mean duration of each pipeline stage.
	Stages []StageTime `yaml:"stages,omitempty"`
}

// Summarize groups trials by engine, in order of first appearance. Warmup
// trials are ignored and failed trials are only counted. Quantiles are
// DDSketch estimates with 1% relative accuracy.
func Summarize(trials []*Trial) ([]Summary, error) {
	type acc struct {
		summary Summary
		sketch  *ddsketch.DDSketch
		stages  *StageTimer
		total   time.Duration
	}

	var order []string
	byEngine := make(map[string]*acc)
	for _, t := range trials {
		if t.Warmup {
			continue
		}
		a, ok := byEngine[t.Engine]
		if !ok {
			sketch, err := ddsketch.NewDefaultDDSketch(0.01)
			if err != nil {
				return nil, fmt.Errorf("create duration sketch: %w", err)
			}
			a = &acc{summary: Summary{Engine: t.Engine}, sketch: sketch, stages: NewStageTimer()}
			byEngine[t.Engine] = a
			order = append(order, t.Engine)
		}
		if t.Failed() {
			a.summary.Failed++
			continue
		}

		s := &a.summary
		if s.Trials == 0 || t.Duration < s.Min {
			s.Min = t.Duration
		}
		s.Max = max(s.Max, t.Duration)
		s.Trials++
		a.total += t.Duration
		if err := a.sketch.Add(t.Duration.Seconds()); err != nil {
			return nil, fmt.Errorf("add duration: %w", err)
		}
		if t.Metrics != nil {
			s.PeakRSSMB = max(s.PeakRSSMB, t.Metrics.PeakRSSMB)
			s.AllocsMB = max(s.AllocsMB, t.Metrics.AllocsMB)
		}
		for _, st := range t.Stages {
			a.stages.Add(st.Name, st.Duration)
		}
	}

	out := make([]Summary, 0, len(order))
	for _, engine := range order {
		a := byEngine[engine]
		s := a.summary
		if s.Trials > 0 {
			s.Mean = a.total / time.Duration(s.Trials)
			qs, err := a.sketch.GetValuesAtQuantiles([]float64{0.5, 0.9})
			if err != nil {
				return nil, fmt.Errorf("duration quantiles: %w", err)
			}
			s.P50 = clamp(seconds(qs[0]), s.Min, s.Max)
			s.P90 = clamp(seconds(qs[1]), s.Min, s.Max)
			for _, name := range a.stages.Names() {
				s.Stages = append(s.Stages, StageTime{Name: name, Duration: a.stages.Mean(name)})
			}
		}
		out = append(out, s)
	}
	return out, nil
}

func seconds(v float64) time.Duration {
	return time.Duration(v * float64(time.Second))
}

func clamp(d, lo, hi time.Duration) time.Duration {
	return min(max(d, lo), hi)
}
