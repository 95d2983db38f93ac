package otelcol

import (
	"context"
	"testing"

	"smallbiznis-tenancy/pkg/config"

	"github.com/stretchr/testify/require"
	"go.uber.org/fx/fxtest"
)

func TestNewTracerProviderWithoutCollector(t *testing.T) {
	lc := fxtest.NewLifecycle(t)
	cfg := &config.Config{AppName: "tenancy"}

	tp, err := NewTracerProvider(lc, cfg)
	require.NoError(t, err)

	_, span := tp.Tracer("test").Start(context.Background(), "op")
	require.True(t, span.SpanContext().IsValid())
	span.End()

	lc.RequireStart().RequireStop()
}

func TestNewTracerProviderRejectsUnknownProtocol(t *testing.T) {
	cfg := &config.Config{}
	cfg.Otel.Addr = "collector:4317"
	cfg.Otel.Protocol = "carrier-pigeon"

	_, err := NewTracerProvider(fxtest.NewLifecycle(t), cfg)
	require.Error(t, err)
}
