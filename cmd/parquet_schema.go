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
	"fmt"
	"io"
	"text/tabwriter"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/cardinalhq/companygen/internal/companyfile"
)

func init() {
	cmd := &cobra.Command{
		Use:   "parquet-schema",
		Short: "Print the schema of a company parquet file",
		RunE: func(c *cobra.Command, _ []string) error {
			filename, err := c.Flags().GetString("file")
			if err != nil {
				return fmt.Errorf("failed to get file flag: %w", err)
			}
			asYAML, _ := c.Flags().GetBool("yaml")

			return runParquetSchema(c.OutOrStdout(), filename, asYAML)
		},
	}

	rootCmd.AddCommand(cmd)

	cmd.Flags().String("file", "", "Parquet file to read")
	cmd.Flags().Bool("yaml", false, "Print the schema as YAML")
	if err := cmd.MarkFlagRequired("file"); err != nil {
		panic(fmt.Errorf("failed to mark file flag as required: %w", err))
	}
}

func runParquetSchema(out io.Writer, filename string, asYAML bool) error {
	d, err := companyfile.Describe(filename)
	if err != nil {
		return fmt.Errorf("failed to load schema for file %s: %w", filename, err)
	}

	if asYAML {
		enc := yaml.NewEncoder(out)
		enc.SetIndent(2)
		if err := enc.Encode(d); err != nil {
			return err
		}
		if err := enc.Close(); err != nil {
			return err
		}
	} else {
		fmt.Fprintf(out, "%s: %d rows\n", d.Path, d.NumRows)
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "column\tnormalized\ttype\tlogical\toptional\trole")
		for _, c := range d.Columns {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%t\t%s\n",
				c.Name, c.Normalized, c.PhysicalType, c.LogicalType, c.Optional, c.Role)
		}
		if err := tw.Flush(); err != nil {
			return err
		}
	}

	if d.SchemaErr != nil {
		fmt.Fprintf(out, "not usable as a company table: %v\n", d.SchemaErr)
	}
	return nil
}
