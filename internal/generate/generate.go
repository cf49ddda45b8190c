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

// Package generate drives one dataset generation run on an engine.
package generate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	otelmetric "go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"

	"github.com/cardinalhq/companygen/internal/engine"
	"github.com/cardinalhq/companygen/internal/relation"
	"github.com/cardinalhq/companygen/internal/sampler"
)

// Stage names one step of a run.
type Stage string

const (
	StageRead   Stage = "read"
	StageRank   Stage = "rank"
	StageFilter Stage = "filter"
	StageSample Stage = "sample"
	StageJoin   Stage = "join"
)

// Params are the inputs of a run.
type Params struct {
	InputPath    string
	NumPersons   int
	NumPositions int
	// Limit keeps the first Limit company rows. Zero reads all rows.
	Limit int64
	// TopK is the number of countries to keep. Zero means DefaultTopCountries.
	TopK   int
	Policy relation.Policy
}

// Validate checks the numeric parameters.
func (p Params) Validate() error {
	switch {
	case p.NumPersons <= 0:
		return &relation.ParamError{Field: "num_persons", Message: fmt.Sprintf("must be positive, got %d", p.NumPersons)}
	case p.NumPositions < 0:
		return &relation.ParamError{Field: "num_positions", Message: fmt.Sprintf("must not be negative, got %d", p.NumPositions)}
	case p.Limit < 0:
		return &relation.ParamError{Field: "limit", Message: fmt.Sprintf("must not be negative, got %d", p.Limit)}
	case p.TopK < 0:
		return &relation.ParamError{Field: "top_countries", Message: fmt.Sprintf("must not be negative, got %d", p.TopK)}
	}
	return nil
}

func (p Params) topK() int {
	if p.TopK == 0 {
		return relation.DefaultTopCountries
	}
	return p.TopK
}

// StageDuration is the wall time of one stage.
type StageDuration struct {
	Stage    Stage         `yaml:"stage"`
	Duration time.Duration `yaml:"duration"`
}

// Result is the outcome of a successful run.
type Result struct {
	Engine       string
	Table        *relation.Table
	Countries    []relation.CountryCount
	CompanyCount int
	Assignments  int
	Elapsed      time.Duration
	Stages       []StageDuration
}

// StageTime returns the duration of stage s, or zero if it did not run.
func (r *Result) StageTime(s Stage) time.Duration {
	for _, st := range r.Stages {
		if st.Stage == s {
			return st.Duration
		}
	}
	return 0
}

type run struct {
	ctx    context.Context
	engine string
	stages []StageDuration
}

func (r *run) timed(s Stage, fn func() error) error {
	_, span := tracer.Start(r.ctx, "generate."+string(s), trace.WithAttributes(
		attribute.String("engine", r.engine),
	))
	defer span.End()

	start := time.Now()
	err := fn()
	d := time.Since(start)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	r.stages = append(r.stages, StageDuration{Stage: s, Duration: d})
	stageDuration.Record(r.ctx, d.Seconds(), otelmetric.WithAttributes(
		attribute.String("engine", r.engine),
		attribute.String("stage", string(s)),
		attribute.Bool("error", err != nil),
	))
	if err != nil {
		return fmt.Errorf("%s stage: %w", s, err)
	}
	slog.Debug("stage complete", slog.String("engine", r.engine), slog.String("stage", string(s)), slog.Duration("duration", d))
	return nil
}

// Run executes check input, load, rank, filter, sample, join and verify on
// eng. The random source is used only by the sampler. Any failure aborts
// the run without a partial result.
func Run(ctx context.Context, eng engine.Engine, p Params, rng *rand.Rand) (*Result, error) {
	if err := p.Validate(); err != nil {
		return nil, err
	}
	if err := relation.CheckInput(p.InputPath); err != nil {
		return nil, err
	}

	ctx, span := tracer.Start(ctx, "generate.run", trace.WithAttributes(
		attribute.String("engine", eng.Name()),
		attribute.Int("num_persons", p.NumPersons),
		attribute.Int("num_positions", p.NumPositions),
	))
	defer span.End()

	start := time.Now()
	r := &run{ctx: ctx, engine: eng.Name()}
	res := &Result{Engine: eng.Name()}

	if err := r.timed(StageRead, func() error {
		return eng.Load(ctx, p.InputPath, p.Limit)
	}); err != nil {
		return nil, err
	}

	if err := r.timed(StageRank, func() error {
		var err error
		res.Countries, err = eng.TopCountries(ctx, p.topK(), p.Policy)
		return err
	}); err != nil {
		return nil, err
	}
	countries := relation.CountryNames(res.Countries)

	var ids []int64
	if err := r.timed(StageFilter, func() error {
		var err error
		ids, err = eng.SelectCompanies(ctx, countries, p.Policy)
		if err == nil && len(ids) == 0 {
			err = &relation.EmptyDomainError{Countries: countries}
		}
		return err
	}); err != nil {
		return nil, err
	}
	res.CompanyCount = len(ids)

	var persons *relation.PersonAges
	var assignments *relation.Assignments
	if err := r.timed(StageSample, func() error {
		var err error
		persons, assignments, err = sampler.Sample(rng, sampler.Options{
			NumPersons:   p.NumPersons,
			NumPositions: p.NumPositions,
			Dedup:        p.Policy.DedupAssignments,
		}, ids)
		return err
	}); err != nil {
		return nil, err
	}
	res.Assignments = assignments.Len()

	if err := r.timed(StageJoin, func() error {
		table, err := eng.Assemble(ctx, persons, assignments)
		if err != nil {
			return err
		}
		if table.NumRows() != assignments.Len() {
			return &relation.DomainMismatchError{Expected: assignments.Len(), Got: table.NumRows()}
		}
		res.Table = table
		return nil
	}); err != nil {
		return nil, err
	}

	res.Elapsed = time.Since(start)
	res.Stages = r.stages
	resultRows.Add(ctx, int64(res.Table.NumRows()), otelmetric.WithAttributes(attribute.String("engine", eng.Name())))

	slog.Info("generation complete",
		slog.String("engine", eng.Name()),
		slog.Int("countries", len(res.Countries)),
		slog.Int("companies", res.CompanyCount),
		slog.Int("rows", res.Table.NumRows()),
		slog.Duration("elapsed", res.Elapsed))
	return res, nil
}
