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
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/cardinalhq/companygen/config"
	"github.com/cardinalhq/companygen/internal/engine"
	"github.com/cardinalhq/companygen/internal/generate"
	"github.com/cardinalhq/companygen/internal/idgen"
	"github.com/cardinalhq/companygen/internal/perftest"
	"github.com/cardinalhq/companygen/internal/resultstats"
	"github.com/cardinalhq/companygen/internal/resultwriter"
	"github.com/cardinalhq/companygen/internal/sampler"
)

type generateOptions struct {
	engine    string
	params    generate.Params
	seed      uint64
	head      int
	output    string
	stats     bool
	engineCfg engine.Config
}

func init() {
	defaults := config.DefaultConfig()

	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Run the pipeline once and print the result",
		RunE: func(c *cobra.Command, _ []string) error {
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("failed to load config: %w", err)
			}
			applyPipelineFlags(c.Flags(), &cfg.Generate)

			opts := generateOptions{
				seed:      cfg.Generate.Seed,
				params:    cfg.Generate.Params(),
				engineCfg: cfg.EngineConfig(),
			}
			opts.engine, _ = c.Flags().GetString("engine")
			opts.head, _ = c.Flags().GetInt("head")
			opts.output, _ = c.Flags().GetString("output")
			opts.stats, _ = c.Flags().GetBool("stats")

			return withTelemetry("companygen-generate", func(ctx context.Context) error {
				return runGenerate(ctx, c.OutOrStdout(), opts)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().String("engine", string(engine.DefaultType), fmt.Sprintf("Engine to run %v", engine.TypeNames()))
	cmd.Flags().Int("head", 5, "Number of result rows to print")
	cmd.Flags().String("output", "", "Write the result to this parquet file")
	cmd.Flags().Bool("stats", false, "Print result statistics and resource usage")
	addPipelineFlags(cmd.Flags(), defaults.Generate.NumPersons, defaults.Generate.NumPositions)
}

// addPipelineFlags registers the flags shared by generate and bench.
func addPipelineFlags(fs *pflag.FlagSet, numPersons, numPositions int) {
	defaults := config.DefaultConfig().Generate
	fs.Int("num_persons", numPersons, "Number of persons to sample")
	fs.Int("num_positions", numPositions, "Number of positions to sample")
	fs.String("input_file", defaults.InputFile, "Company parquet file")
	fs.Int64("limit", 0, "Read only the first N companies (0 reads all)")
	fs.Uint64("seed", defaults.Seed, "Random seed")
	fs.Int("top_countries", defaults.TopCountries, "Number of countries to keep")
	fs.Bool("require_year_founded", false, "Drop companies without a founding year")
	fs.Bool("dedup_assignments", false, "Remove repeated (person, company) pairs")
}

// applyPipelineFlags copies explicitly set flags over the loaded config.
func applyPipelineFlags(fs *pflag.FlagSet, g *config.GenerateConfig) {
	if fs.Changed("num_persons") {
		g.NumPersons, _ = fs.GetInt("num_persons")
	}
	if fs.Changed("num_positions") {
		g.NumPositions, _ = fs.GetInt("num_positions")
	}
	if fs.Changed("input_file") {
		g.InputFile, _ = fs.GetString("input_file")
	}
	if fs.Changed("limit") {
		g.Limit, _ = fs.GetInt64("limit")
	}
	if fs.Changed("seed") {
		g.Seed, _ = fs.GetUint64("seed")
	}
	if fs.Changed("top_countries") {
		g.TopCountries, _ = fs.GetInt("top_countries")
	}
	if fs.Changed("require_year_founded") {
		g.RequireYearFounded, _ = fs.GetBool("require_year_founded")
	}
	if fs.Changed("dedup_assignments") {
		g.DedupAssignments, _ = fs.GetBool("dedup_assignments")
	}
}

func runGenerate(ctx context.Context, out io.Writer, opts generateOptions) error {
	t, err := engine.ParseType(opts.engine)
	if err != nil {
		return err
	}
	eng, err := engine.New(t, opts.engineCfg)
	if err != nil {
		return fmt.Errorf("failed to create %s engine: %w", t, err)
	}
	defer func() {
		if err := eng.Close(); err != nil {
			slog.Error("Failed to close engine", slog.String("engine", eng.Name()), slog.Any("error", err))
		}
	}()

	runID := idgen.NextBase32ID()
	slog.Info("Starting generation",
		slog.String("runID", runID),
		slog.String("engine", eng.Name()),
		slog.String("input", opts.params.InputPath),
		slog.Int("numPersons", opts.params.NumPersons),
		slog.Int("numPositions", opts.params.NumPositions),
		slog.Uint64("seed", opts.seed))

	timer := perftest.NewTimer()
	res, err := generate.Run(ctx, eng, opts.params, sampler.NewRand(opts.seed))
	if err != nil {
		return err
	}
	timer.AddRows(int64(res.Table.NumRows()))
	metrics := timer.Stop()

	rows, cols := res.Table.Shape()
	fmt.Fprintf(out, "shape: (%d, %d)\n", rows, cols)
	if opts.head > 0 {
		if err := res.Table.Head(opts.head).Print(out); err != nil {
			return err
		}
	}

	if opts.output != "" {
		if err := resultwriter.WriteFile(ctx, opts.output, res.Table, resultwriter.Options{}); err != nil {
			return fmt.Errorf("failed to write %s: %w", opts.output, err)
		}
		slog.Info("Wrote result", slog.String("runID", runID), slog.String("path", opts.output), slog.Int("rows", rows))
	}

	if opts.stats {
		stats, err := resultstats.Compute(res.Table)
		if err != nil {
			return err
		}
		fmt.Fprintln(out)
		if err := stats.Print(out); err != nil {
			return err
		}
		fmt.Fprintln(out)
		for _, st := range res.Stages {
			fmt.Fprintf(out, "%-8s %v\n", st.Stage, st.Duration)
		}
		fmt.Fprintln(out, metrics.Report(eng.Name()))
	}
	return nil
}
