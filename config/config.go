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

package config

import (
	"reflect"
	"strings"
	"time"

	"github.com/spf13/viper"

	"github.com/cardinalhq/companygen/internal/engine"
	"github.com/cardinalhq/companygen/internal/generate"
	"github.com/cardinalhq/companygen/internal/relation"
)

// DefaultInputFile is the company dataset read when no path is configured.
const DefaultInputFile = "companies_sorted.parquet"

// DefaultSeed seeds the sampler when no seed is configured.
const DefaultSeed = 37

// Config aggregates configuration for the application.
type Config struct {
	Generate GenerateConfig `mapstructure:"generate"`
	Bench    BenchConfig    `mapstructure:"bench"`
	DuckDB   DuckDBConfig   `mapstructure:"duckdb"`
	Engine   EngineConfig   `mapstructure:"engine"`
}

// GenerateConfig holds the pipeline parameters of a single run.
type GenerateConfig struct {
	InputFile          string `mapstructure:"input_file"`
	NumPersons         int    `mapstructure:"num_persons"`
	NumPositions       int    `mapstructure:"num_positions"`
	Limit              int64  `mapstructure:"limit"`
	Seed               uint64 `mapstructure:"seed"`
	TopCountries       int    `mapstructure:"top_countries"`
	RequireYearFounded bool   `mapstructure:"require_year_founded"`
	DedupAssignments   bool   `mapstructure:"dedup_assignments"`
}

// Policy returns the null-filter and dedup policy.
func (g GenerateConfig) Policy() relation.Policy {
	return relation.Policy{
		RequireYearFounded: g.RequireYearFounded,
		DedupAssignments:   g.DedupAssignments,
	}
}

// Params returns the pipeline parameters.
func (g GenerateConfig) Params() generate.Params {
	return generate.Params{
		InputPath:    g.InputFile,
		NumPersons:   g.NumPersons,
		NumPositions: g.NumPositions,
		Limit:        g.Limit,
		TopK:         g.TopCountries,
		Policy:       g.Policy(),
	}
}

// BenchConfig holds the benchmark harness settings. The pipeline inputs
// other than the sizes come from GenerateConfig.
type BenchConfig struct {
	Engines      []string `mapstructure:"engines"`
	Trials       int      `mapstructure:"trials"`
	Warmup       int      `mapstructure:"warmup"`
	NumPersons   int      `mapstructure:"num_persons"`
	NumPositions int      `mapstructure:"num_positions"`
	Reseed       bool     `mapstructure:"reseed"`
}

// EngineNames returns the configured engines, or all of them.
func (b BenchConfig) EngineNames() []string {
	if len(b.Engines) == 0 {
		return engine.TypeNames()
	}
	return b.Engines
}

// EngineConfig holds settings shared by all engines.
type EngineConfig struct {
	BatchSize     int           `mapstructure:"batch_size"`
	Workers       int           `mapstructure:"workers"`
	TmpDir        string        `mapstructure:"tmp_dir"`
	MetricsPeriod time.Duration `mapstructure:"metrics_period"`
}

// DefaultConfig returns the configuration used when nothing is set.
func DefaultConfig() *Config {
	return &Config{
		Generate: GenerateConfig{
			InputFile:    DefaultInputFile,
			NumPersons:   200,
			NumPositions: 300,
			Seed:         DefaultSeed,
			TopCountries: relation.DefaultTopCountries,
		},
		Bench: BenchConfig{
			Trials:       5,
			Warmup:       1,
			NumPersons:   1_000_000,
			NumPositions: 10_000_000,
		},
		DuckDB: DefaultDuckDBConfig(),
	}
}

// Load reads configuration from files and environment variables.
// Environment variables use the prefix "COMPANYGEN" and the dot character
// in keys is replaced by an underscore. For example, "generate.num_persons"
// becomes "COMPANYGEN_GENERATE_NUM_PERSONS".
func Load() (*Config, error) {
	cfg := DefaultConfig()

	v := viper.New()
	v.SetConfigName("config")
	v.AddConfigPath(".")
	v.SetEnvPrefix("COMPANYGEN")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	bindEnvs(v, cfg)
	_ = v.ReadInConfig()

	if err := v.Unmarshal(cfg); err != nil {
		return nil, err
	}
	if e := v.GetString("bench.engines"); e != "" {
		cfg.Bench.Engines = splitList(e)
	}
	return cfg, nil
}

// EngineConfig returns the engine settings, DuckDB included.
func (c *Config) EngineConfig() engine.Config {
	return engine.Config{
		BatchSize:     c.Engine.BatchSize,
		Workers:       c.Engine.Workers,
		TmpDir:        c.Engine.TmpDir,
		DuckDB:        c.DuckDB.Settings(),
		MetricsPeriod: c.Engine.MetricsPeriod,
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// bindEnvs registers all keys within cfg so that viper will look up
// corresponding environment variables when unmarshalling.
func bindEnvs(v *viper.Viper, cfg any, parts ...string) {
	val := reflect.ValueOf(cfg)
	typ := reflect.TypeOf(cfg)
	if typ.Kind() == reflect.Ptr {
		val = val.Elem()
		typ = typ.Elem()
	}
	for i := 0; i < typ.NumField(); i++ {
		f := typ.Field(i)
		tag := f.Tag.Get("mapstructure")
		if tag == "" {
			tag = strings.ToLower(f.Name)
		}
		key := append(parts, tag)
		if f.Type.Kind() == reflect.Struct {
			bindEnvs(v, val.Field(i).Interface(), key...)
			continue
		}
		_ = v.BindEnv(strings.Join(key, "."))
	}
}
