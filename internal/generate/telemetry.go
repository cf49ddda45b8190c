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

package generate

import (
	"fmt"

	"go.opentelemetry.io/otel"
	otelmetric "go.opentelemetry.io/otel/metric"
)

var tracer = otel.Tracer("github.com/cardinalhq/companygen/internal/generate")

var (
	stageDuration otelmetric.Float64Histogram
	resultRows    otelmetric.Int64Counter
)

func init() {
	meter := otel.Meter("github.com/cardinalhq/companygen/internal/generate")

	var err error
	stageDuration, err = meter.Float64Histogram(
		"companygen.stage.duration",
		otelmetric.WithDescription("Wall time of one generation stage"),
		otelmetric.WithUnit("s"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create stage.duration histogram: %w", err))
	}

	resultRows, err = meter.Int64Counter(
		"companygen.result.rows",
		otelmetric.WithDescription("Number of rows produced by generation runs"),
	)
	if err != nil {
		panic(fmt.Errorf("failed to create result.rows counter: %w", err))
	}
}
