package telemetry

import (
	"context"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const instrumentationName = "github.com/BaSui01/dailycrew"

// Instruments 协调器与调度器的 OTel 指标，方法签名与 metrics.Collector 一致
type Instruments struct {
	turns            metric.Int64Counter
	turnDuration     metric.Float64Histogram
	specialistCalls  metric.Int64Counter
	specialistTime   metric.Float64Histogram
	onboardingSteps  metric.Int64Counter
	credentialChecks metric.Int64Counter
	schedulerFires   metric.Int64Counter
}

// NewInstruments 在给定 meter 上注册指标，meter 为 nil 时使用全局 MeterProvider
func NewInstruments(meter metric.Meter) (*Instruments, error) {
	if meter == nil {
		meter = otel.Meter(instrumentationName)
	}
	in := &Instruments{}
	var err error

	if in.turns, err = meter.Int64Counter("dailycrew.turn.total",
		metric.WithDescription("Coordinator turns by event kind, strategy and outcome"),
		metric.WithUnit("{turn}")); err != nil {
		return nil, err
	}
	if in.turnDuration, err = meter.Float64Histogram("dailycrew.turn.duration",
		metric.WithDescription("Coordinator turn duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30)); err != nil {
		return nil, err
	}
	if in.specialistCalls, err = meter.Int64Counter("dailycrew.specialist.total",
		metric.WithDescription("Specialist invocations by status"),
		metric.WithUnit("{call}")); err != nil {
		return nil, err
	}
	if in.specialistTime, err = meter.Float64Histogram("dailycrew.specialist.duration",
		metric.WithDescription("Specialist invocation duration in seconds"),
		metric.WithUnit("s"),
		metric.WithExplicitBucketBoundaries(0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10, 20)); err != nil {
		return nil, err
	}
	if in.onboardingSteps, err = meter.Int64Counter("dailycrew.onboarding.transition.total",
		metric.WithDescription("Onboarding step transitions"),
		metric.WithUnit("{transition}")); err != nil {
		return nil, err
	}
	if in.credentialChecks, err = meter.Int64Counter("dailycrew.credential.check.total",
		metric.WithDescription("Integration capability checks by result"),
		metric.WithUnit("{check}")); err != nil {
		return nil, err
	}
	if in.schedulerFires, err = meter.Int64Counter("dailycrew.scheduler.fire.total",
		metric.WithDescription("Scheduled events by kind and result"),
		metric.WithUnit("{event}")); err != nil {
		return nil, err
	}
	return in, nil
}

// RecordTurn 记录一个回合
func (in *Instruments) RecordTurn(kind, strategy, outcome string, duration time.Duration) {
	ctx := context.Background()
	attrs := metric.WithAttributes(
		attribute.String("event.kind", kind),
		attribute.String("strategy", strategy),
		attribute.String("outcome", outcome),
	)
	in.turns.Add(ctx, 1, attrs)
	in.turnDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("event.kind", kind)))
}

// RecordSpecialist 记录一次专家调用
func (in *Instruments) RecordSpecialist(name, status, code string, duration time.Duration) {
	ctx := context.Background()
	in.specialistCalls.Add(ctx, 1, metric.WithAttributes(
		attribute.String("specialist", name),
		attribute.String("status", status),
		attribute.String("error.code", code),
	))
	in.specialistTime.Record(ctx, duration.Seconds(), metric.WithAttributes(attribute.String("specialist", name)))
}

// RecordOnboarding 记录引导状态迁移
func (in *Instruments) RecordOnboarding(from, to, input string) {
	in.onboardingSteps.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("from", from),
		attribute.String("to", to),
		attribute.String("input", input),
	))
}

// RecordCredentialCheck 记录凭证能力检查
func (in *Instruments) RecordCredentialCheck(integration, result string) {
	in.credentialChecks.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("integration", integration),
		attribute.String("result", result),
	))
}

// RecordSchedulerFire 记录定时事件
func (in *Instruments) RecordSchedulerFire(kind, result string) {
	in.schedulerFires.Add(context.Background(), 1, metric.WithAttributes(
		attribute.String("event.kind", kind),
		attribute.String("result", result),
	))
}
