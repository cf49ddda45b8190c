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

package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math/rand/v2"
	"time"

	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/cardinalhq/companygen/config"
	"github.com/cardinalhq/companygen/internal/engine"
	"github.com/cardinalhq/companygen/internal/generate"
	"github.com/cardinalhq/companygen/internal/perftest"
	"github.com/cardinalhq/companygen/internal/relation"
	"github.com/cardinalhq/companygen/internal/sampler"
)

const memorySampleInterval = 100 * time.Millisecond

type benchOptions struct {
	engines   []engine.Type
	params    generate.Params
	seed      uint64
	trials    int
	warmup    int
	reseed    bool
	report    string
	engineCfg engine.Config
}

func init() {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "bench",
		Short: "Run the pipeline on every engine and compare timings",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			cfg.Generate.NumPersons = cfg.Bench.NumPersons
			cfg.Generate.NumPositions = cfg.Bench.NumPositions
			applyPipelineFlags(c.Flags(), &cfg.Generate)

			fs := c.Flags()
			if fs.Changed("engines") {
				cfg.Bench.Engines, _ = fs.GetStringSlice("engines")
			}
			if fs.Changed("trials") {
				cfg.Bench.Trials, _ = fs.GetInt("trials")
			}
			if fs.Changed("warmup") {
				cfg.Bench.Warmup, _ = fs.GetInt("warmup")
			}
			if fs.Changed("reseed") {
				cfg.Bench.Reseed, _ = fs.GetBool("reseed")
			}

			types, err := engine.ParseTypes(cfg.Bench.EngineNames())
			if err != nil {
				return err
			}
			opts := benchOptions{
				engines:   types,
				params:    cfg.Generate.Params(),
				seed:      cfg.Generate.Seed,
				trials:    cfg.Bench.Trials,
				warmup:    cfg.Bench.Warmup,
				reseed:    cfg.Bench.Reseed,
				engineCfg: cfg.EngineConfig(),
			}
			opts.report, _ = fs.GetString("report")

			return withTelemetry("companygen-bench", func(ctx context.Context) error {
				return runBench(ctx, c.OutOrStdout(), opts)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().StringSlice("engines", engine.TypeNames(), "Engines to benchmark")
	cmd.Flags().Int("trials", defaults.Bench.Trials, "Measured trials per engine")
	cmd.Flags().Int("warmup", defaults.Bench.Warmup, "Unmeasured warmup trials per engine")
	cmd.Flags().Bool("reseed", false, "Reseed the random source before every trial")
	cmd.Flags().String("report", "", "Write a YAML report to this file")
	addPipelineFlags(cmd.Flags(), defaults.Bench.NumPersons, defaults.Bench.NumPositions)
}

func (o benchOptions) validate() error {
	switch {
	case len(o.engines) == 0:
		return &relation.ParamError{Field: "engines", Message: "at least one engine is required"}
	case o.trials <= 0:
		return &relation.ParamError{Field: "trials", Message: fmt.Sprintf("must be positive, got %d", o.trials)}
	case o.warmup < 0:
		return &relation.ParamError{Field: "warmup", Message: fmt.Sprintf("must not be negative, got %d", o.warmup)}
	}
	return o.params.Validate()
}

// benchResult is the first measured table an engine produced. Every engine
// starts from the same seed and runs the same number of warmups, so these
// tables must be equal. Only the reference table is retained.
type benchResult struct {
	engine string
	table  *relation.Table
}

func runBench(ctx context.Context, out io.Writer, opts benchOptions) error {
	if err := opts.validate(); err != nil {
		return err
	}
	if err := relation.CheckInput(opts.params.InputPath); err != nil {
		return err
	}

	names := make([]string, len(opts.engines))
	for i, t := range opts.engines {
		names[i] = string(t)
	}
	report := perftest.NewReport(perftest.Params{
		InputFile:    opts.params.InputPath,
		Engines:      names,
		NumPersons:   opts.params.NumPersons,
		NumPositions: opts.params.NumPositions,
		Limit:        opts.params.Limit,
		Seed:         opts.seed,
		Reseed:       opts.reseed,
		Trials:       opts.trials,
		Warmup:       opts.warmup,
	})
	slog.Info("Starting benchmark", slog.String("reportID", report.ID), slog.Any("engines", names),
		slog.Int("numPersons", opts.params.NumPersons), slog.Int("numPositions", opts.params.NumPositions))

	var errs *multierror.Error
	var ref *benchResult
	compared := 0
	for _, t := range opts.engines {
		first, err := benchEngine(ctx, t, opts, report)
		if ctx.Err() != nil {
			return ctx.Err()
		}
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("%s: %w", t, err))
		}
		if first == nil {
			continue
		}
		cur := &benchResult{engine: string(t), table: first}
		if ref == nil {
			ref = cur
			compared++
			continue
		}
		if err := compareResults(ref, cur); err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		compared++
	}

	if err := report.Finish(); err != nil {
		return err
	}
	if err := report.Print(out); err != nil {
		return err
	}
	if opts.report != "" {
		if err := report.WriteFile(opts.report); err != nil {
			return err
		}
		slog.Info("Wrote benchmark report", slog.String("path", opts.report))
	}

	if errs.ErrorOrNil() == nil && compared > 1 {
		fmt.Fprintf(out, "\nall %d engines produced identical results\n", compared)
	}
	return errs.ErrorOrNil()
}

// benchEngine runs the warmup and measured trials of one engine and
// returns the table of its first measured trial.
func benchEngine(ctx context.Context, t engine.Type, opts benchOptions, report *perftest.Report) (*relation.Table, error) {
	eng, err := engine.New(t, opts.engineCfg)
	if err != nil {
		return nil, err
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("Failed to close engine", slog.String("engine", eng.Name()), slog.Any("error", err))
		}
	}()

	var first *relation.Table
	var firstDigest string
	rng := sampler.NewRand(opts.seed)
	for i := range opts.warmup + opts.trials {
		if opts.reseed {
			rng = sampler.NewRand(opts.seed)
		}
		warmup := i < opts.warmup
		tr := perftest.NewTrial(eng.Name(), i, warmup)
		table, err := runTrial(ctx, eng, opts.params, rng, tr)
		report.Add(tr)
		if err != nil {
			return first, err
		}
		if i == 0 {
			firstDigest = tr.Digest
		} else if opts.reseed && tr.Digest != firstDigest {
			return first, fmt.Errorf("trial %d digest %s differs from trial 0 digest %s after reseeding", i, tr.Digest, firstDigest)
		}
		if first == nil && !warmup {
			first = table
		}
		slog.Info("Trial complete",
			slog.String("engine", eng.Name()),
			slog.Int("trial", i),
			slog.Bool("warmup", warmup),
			slog.Duration("duration", tr.Duration))
		gc(ctx)
	}
	return first, nil
}

func runTrial(ctx context.Context, eng engine.Engine, p generate.Params, rng *rand.Rand, tr *perftest.Trial) (*relation.Table, error) {
	timer := perftest.NewTimer()
	ms := perftest.NewMemorySampler(ctx, timer, memorySampleInterval)
	ms.Start()
	res, err := generate.Run(ctx, eng, p, rng)
	ms.Stop()
	tr.Metrics = timer.Stop()
	if err != nil {
		tr.Error = err.Error()
		return nil, err
	}

	tr.Duration = res.Elapsed
	tr.Rows = res.Table.NumRows()
	tr.Digest = fmt.Sprintf("%016x", res.Table.Digest())
	tr.Metrics.Rows = int64(tr.Rows)
	for _, st := range res.Stages {
		tr.Stages = append(tr.Stages, perftest.StageTime{Name: string(st.Stage), Duration: st.Duration})
	}

	if err := checkShape(res.Table, p); err != nil {
		tr.Error = err.Error()
		return nil, err
	}
	return res.Table, nil
}

// checkShape verifies one row per position and the five result columns.
func checkShape(t *relation.Table, p generate.Params) error {
	rows, cols := t.Shape()
	if cols != len(relation.ResultColumns) {
		return fmt.Errorf("result has %d columns, expected %d", cols, len(relation.ResultColumns))
	}
	if !p.Policy.DedupAssignments && rows != p.NumPositions {
		return &relation.DomainMismatchError{Expected: p.NumPositions, Got: rows}
	}
	return nil
}

var errResultsDiffer = errors.New("engines produced different results")

func compareResults(ref, r *benchResult) error {
	if ref.table.Equal(r.table) {
		return nil
	}
	return fmt.Errorf("%w: %s and %s differ at row %d", errResultsDiffer, ref.engine, r.engine, ref.table.Diff(r.table))
}
