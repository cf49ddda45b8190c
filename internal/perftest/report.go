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
	"io"
	"os"
	"runtime"
	"text/tabwriter"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/companygen/internal/idgen"
)

var reportIDs = idgen.NewULIDGenerator()

// Host describes the machine a benchmark ran on.
type Host struct {
	GOOS       string `yaml:"goos"`
	GOARCH     string `yaml:"goarch"`
	NumCPU     int    `yaml:"num_cpu"`
	GOMAXPROCS int    `yaml:"gomaxprocs"`
	GoVersion  string `yaml:"go_version"`
}

// CurrentHost returns the description of the running process's host.
func CurrentHost() Host {
	return Host{
		GOOS:       runtime.GOOS,
		GOARCH:     runtime.GOARCH,
		NumCPU:     runtime.NumCPU(),
		GOMAXPROCS: runtime.GOMAXPROCS(0),
		GoVersion:  runtime.Version(),
	}
}

// Params records the inputs of a benchmark run.
type Params struct {
	InputFile    string   `yaml:"input_file"`
	Engines      []string `yaml:"engines"`
	NumPersons   int      `yaml:"num_persons"`
	NumPositions int      `yaml:"num_positions"`
	Limit        int64    `yaml:"limit,omitempty"`
	Seed         uint64   `yaml:"seed"`
	Reseed       bool     `yaml:"reseed"`
	Trials       int      `yaml:"trials"`
	Warmup       int      `yaml:"warmup"`
}

// Report is the full record of a benchmark run.
type Report struct {
	ID        string    `yaml:"id"`
	StartedAt time.Time `yaml:"started_at"`
	Host      Host      `yaml:"host"`
	Params    Params    `yaml:"params"`
	Summaries []Summary `yaml:"summaries"`
	Trials    []*Trial  `yaml:"trials"`
}

// NewReport starts a report for the given parameters. Report ids sort by
// start time.
func NewReport(params Params) *Report {
	now := time.Now().UTC()
	return &Report{
		ID:        reportIDs.Make(now),
		StartedAt: now,
		Host:      CurrentHost(),
		Params:    params,
	}
}

// Add appends a finished trial.
func (r *Report) Add(t *Trial) {
	r.Trials = append(r.Trials, t)
}

// Finish computes the per-engine summaries.
func (r *Report) Finish() error {
	summaries, err := Summarize(r.Trials)
	if err != nil {
		return err
	}
	r.Summaries = summaries
	return nil
}

// WriteYAML encodes the report as YAML.
func (r *Report) WriteYAML(w io.Writer) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(r); err != nil {
		return fmt.Errorf("encode report: %w", err)
	}
	return enc.Close()
}

// WriteFile writes the YAML report to path.
func (r *Report) WriteFile(path string) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create report: %w", err)
	}
	if err := r.WriteYAML(f); err != nil {
		_ = f.Close()
		return err
	}
	return f.Close()
}

// ReadReport decodes a YAML report.
func ReadReport(rd io.Reader) (*Report, error) {
	var r Report
	if err := yaml.NewDecoder(rd).Decode(&r); err != nil {
		return nil, fmt.Errorf("decode report: %w", err)
	}
	return &r, nil
}

// Print writes the per-engine summary table.
func (r *Report) Print(w io.Writer) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "engine\ttrials\tfailed\tmin\tp50\tp90\tmax\tpeak rss\tallocs\t")
	for _, s := range r.Summaries {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%v\t%v\t%v\t%v\t%d MB\t%d MB\t\n",
			s.Engine, s.Trials, s.Failed,
			round(s.Min), round(s.P50), round(s.P90), round(s.Max),
			s.PeakRSSMB, s.AllocsMB)
	}
	if err := tw.Flush(); err != nil {
		return err
	}

	for _, s := range r.Summaries {
		if len(s.Stages) == 0 {
			continue
		}
		fmt.Fprintf(w, "\n%s stages (mean):\n", s.Engine)
		for _, st := range s.Stages {
			fmt.Fprintf(w, "  %-8s %v\n", st.Name, round(st.Duration))
		}
	}
	return nil
}

func round(d time.Duration) time.Duration {
	switch {
	case d >= time.Second:
		return d.Round(time.Millisecond)
	case d >= time.Millisecond:
		return d.Round(time.Microsecond)
	default:
		return d
	}
}
