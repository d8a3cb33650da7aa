package event

import (
	"github.com/danielemariani/domain-events/pkg/domainevents/config"
	"github.com/danielemariani/domain-events/pkg/domainevents/observability"
)

// BusConfigFromConfig builds a BusConfig from a config section.
//
// Recognized keys:
//   - scheduler: "goroutine" (default) or "queue"
//   - max_concurrency: bound for the goroutine scheduler, 0 = unbounded
//   - metrics: enable OpenTelemetry metrics
//   - tracing: enable OpenTelemetry tracing
//
// Unknown scheduler names fall back to the default. Logger, Failures, and
// OnError are left for the caller to set.
func BusConfigFromConfig(cfg config.Config) BusConfig {
	out := DefaultBusConfig

	switch kind := cfg.String("scheduler", SchedulerGoroutine); kind {
	case SchedulerGoroutine, SchedulerQueue:
		out.SchedulerKind = kind
	}

	if n := cfg.Int("max_concurrency", 0); n > 0 {
		out.MaxConcurrency = n
	}
	if cfg.Bool("metrics", false) {
		out.Metrics = observability.NewMetricsRecorder()
	}
	if cfg.Bool("tracing", false) {
		out.Spans = observability.NewSpanManager()
	}
	return out
}
