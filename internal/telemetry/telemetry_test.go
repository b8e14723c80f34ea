package telemetry

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel"
)

func TestSetupDisabledIsNoop(t *testing.T) {
	shutdown, err := Setup(Config{Enabled: false})
	require.NoError(t, err)
	require.NoError(t, shutdown(context.Background()))
}

func TestSetupEnabledRequiresWriter(t *testing.T) {
	_, err := Setup(Config{Enabled: true})
	require.Error(t, err)
}

func TestSetupEnabledExportsSpans(t *testing.T) {
	var buf bytes.Buffer
	shutdown, err := Setup(Config{
		Enabled:        true,
		Writer:         &buf,
		ServiceVersion: "test",
		MetricInterval: time.Hour, // flush happens at shutdown, not on a timer
	})
	require.NoError(t, err)

	_, span := otel.Tracer("telemetry_test").Start(context.Background(), "primitive.store")
	span.End()

	require.NoError(t, shutdown(context.Background()))
	require.Contains(t, buf.String(), "primitive.store")
}
