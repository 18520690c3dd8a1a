package transport

import (
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/lasertag/tagserver/internal/transport"

func meter() metric.Meter {
	return otel.Meter(instrumentationName)
}
