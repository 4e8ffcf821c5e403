package main

import "time"

// domainRecorder 协调器与调度器共用的指标接口。
// *metrics.Collector（Prometheus）与 *telemetry.Instruments（OTel）都实现了它。
type domainRecorder interface {
	RecordTurn(kind, strategy, outcome string, duration time.Duration)
	RecordSpecialist(name, status, code string, duration time.Duration)
	RecordOnboarding(from, to, input string)
	RecordCredentialCheck(integration, result string)
	RecordSchedulerFire(kind, result string)
}

// teeRecorder 把同一条指标写到多个后端，nil 项被跳过
type teeRecorder []domainRecorder

func (t teeRecorder) RecordTurn(kind, strategy, outcome string, duration time.Duration) {
	for _, r := range t {
		if r != nil {
			r.RecordTurn(kind, strategy, outcome, duration)
		}
	}
}

func (t teeRecorder) RecordSpecialist(name, status, code string, duration time.Duration) {
	for _, r := range t {
		if r != nil {
			r.RecordSpecialist(name, status, code, duration)
		}
	}
}

func (t teeRecorder) RecordOnboarding(from, to, input string) {
	for _, r := range t {
		if r != nil {
			r.RecordOnboarding(from, to, input)
		}
	}
}

func (t teeRecorder) RecordCredentialCheck(integration, result string) {
	for _, r := range t {
		if r != nil {
			r.RecordCredentialCheck(integration, result)
		}
	}
}

func (t teeRecorder) RecordSchedulerFire(kind, result string) {
	for _, r := range t {
		if r != nil {
			r.RecordSchedulerFire(kind, result)
		}
	}
}
