package telemetry

import (
	"context"
	"testing"
	"time"

	"github.com/BaSui01/dailycrew/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"go.opentelemetry.io/otel"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/zap/zaptest"
)

// saveAndRestoreGlobalProviders 测试结束后恢复全局 provider
func saveAndRestoreGlobalProviders(t *testing.T) {
	t.Helper()
	origTP := otel.GetTracerProvider()
	origMP := otel.GetMeterProvider()
	t.Cleanup(func() {
		otel.SetTracerProvider(origTP)
		otel.SetMeterProvider(origMP)
	})
}

func TestInit_Disabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	p, err := Init(context.Background(), config.TelemetryConfig{Enabled: false}, "", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.tp)
	assert.Nil(t, p.mp)
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestInit_EnabledRequiresEndpoint(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	_, err := Init(context.Background(), config.TelemetryConfig{Enabled: true}, "v1", nil)
	assert.Error(t, err)
}

func TestInit_Enabled(t *testing.T) {
	saveAndRestoreGlobalProviders(t)

	cfg := config.TelemetryConfig{
		Enabled:      true,
		OTLPEndpoint: "localhost:4317",
		ServiceName:  "dailycrew-test",
		SampleRate:   0.5,
	}
	p, err := Init(context.Background(), cfg, "v0.0.1", zaptest.NewLogger(t))
	require.NoError(t, err)
	require.NotNil(t, p)
	t.Cleanup(func() {
		ctx, cancel := context.WithTimeout(context.Background(), time.Second)
		defer cancel()
		_ = p.Shutdown(ctx)
	})

	assert.True(t, p.Enabled())
	_, tpIsSDK := otel.GetTracerProvider().(*sdktrace.TracerProvider)
	_, mpIsSDK := otel.GetMeterProvider().(*sdkmetric.MeterProvider)
	assert.True(t, tpIsSDK)
	assert.True(t, mpIsSDK)
}

func TestProviders_Shutdown_Nil(t *testing.T) {
	var p *Providers
	assert.NoError(t, p.Shutdown(context.Background()))
	assert.False(t, p.Enabled())
}

func TestClampRatio(t *testing.T) {
	assert.Equal(t, 0.0, clampRatio(-1))
	assert.Equal(t, 0.25, clampRatio(0.25))
	assert.Equal(t, 1.0, clampRatio(3))
}

func TestBuildVersion(t *testing.T) {
	assert.Equal(t, "dev", buildVersion())
}

func TestInstruments_Record(t *testing.T) {
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	in, err := NewInstruments(mp.Meter("test"))
	require.NoError(t, err)

	in.RecordTurn("message", "concatenate", "ok", 120*time.Millisecond)
	in.RecordTurn("message", "first_result", "ok", 80*time.Millisecond)
	in.RecordSpecialist("Planner", "ok", "", 40*time.Millisecond)
	in.RecordOnboarding("welcome", "github_setup", "skip")
	in.RecordCredentialCheck("github", "present")
	in.RecordSchedulerFire("daily_welcome", "fired")

	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))
	require.Len(t, rm.ScopeMetrics, 1)

	sums := map[string]int64{}
	for _, m := range rm.ScopeMetrics[0].Metrics {
		if s, ok := m.Data.(metricdata.Sum[int64]); ok {
			var total int64
			for _, dp := range s.DataPoints {
				total += dp.Value
			}
			sums[m.Name] = total
		}
	}
	assert.Equal(t, int64(2), sums["dailycrew.turn.total"])
	assert.Equal(t, int64(1), sums["dailycrew.specialist.total"])
	assert.Equal(t, int64(1), sums["dailycrew.onboarding.transition.total"])
	assert.Equal(t, int64(1), sums["dailycrew.credential.check.total"])
	assert.Equal(t, int64(1), sums["dailycrew.scheduler.fire.total"])
}
