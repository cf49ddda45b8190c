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

	"github.com/cardinalhq/companygen/config"
	"github.com/cardinalhq/companygen/internal/companyfile"
	"github.com/cardinalhq/companygen/internal/sampler"
)

type makeCompaniesOptions struct {
	output string
	seed   uint64
	synth  companyfile.SyntheticOptions
}

func init() {
	cmd := &cobra.Command{
		Use:   "make-companies",
		Short: "Write a synthetic company parquet file in the public dataset layout",
		RunE: func(c *cobra.Command, _ []string) error {
			var opts makeCompaniesOptions
			opts.output, _ = c.Flags().GetString("output")
			opts.seed, _ = c.Flags().GetUint64("seed")
			opts.synth.Rows, _ = c.Flags().GetInt("rows")
			opts.synth.Countries, _ = c.Flags().GetInt("countries")
			opts.synth.NullFraction, _ = c.Flags().GetFloat64("null-fraction")

			return withTelemetry("companygen-make-companies", func(ctx context.Context) error {
				return runMakeCompanies(ctx, c.OutOrStdout(), opts)
			})
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().String("output", config.DefaultInputFile, "Parquet file to write")
	cmd.Flags().Int("rows", 100_000, "Number of companies")
	cmd.Flags().Int("countries", 20, "Number of distinct countries")
	cmd.Flags().Uint64("seed", config.DefaultSeed, "Random seed")
	cmd.Flags().Float64("null-fraction", 0.05, "Probability that a nullable attribute is null")
}

func runMakeCompanies(ctx context.Context, out io.Writer, opts makeCompaniesOptions) error {
	gen, err := companyfile.NewSyntheticGenerator(sampler.NewRand(opts.seed), opts.synth)
	if err != nil {
		return err
	}
	rows := gen.Rows()
	if err := companyfile.WriteFile(ctx, opts.output, companyfile.DatasetLayout, rows); err != nil {
		return fmt.Errorf("failed to write %s: %w", opts.output, err)
	}
	slog.Info("Wrote synthetic companies", slog.String("path", opts.output), slog.Int("rows", len(rows)))
	fmt.Fprintf(out, "wrote %d companies to %s\n", len(rows), opts.output)
	return nil
}
