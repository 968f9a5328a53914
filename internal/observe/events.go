package observe

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/dialverse/dialcore/internal/event"
)

// EventHandler returns a bus handler that folds pipeline events into m's
// counters. Subscribe it once at startup.
func EventHandler(m *Metrics) event.Handler {
	ctx := context.Background()
	return func(ev event.Event) {
		switch ev.Type {
		case event.TypeInterruptionDetected:
			m.Interruptions.Add(ctx, 1)
		case event.TypeLanguageChanged:
			m.LanguageSwitches.Add(ctx, 1,
				metric.WithAttributes(
					attribute.String("from", ev.FromLanguage),
					attribute.String("to", ev.ToLanguage),
				),
			)
		case event.TypeSynthesisFallbackUsed:
			m.SynthesisFallbacks.Add(ctx, 1,
				metric.WithAttributes(attribute.String("category", ev.ErrorCategory)),
			)
		case event.TypeCallFailed:
			m.CallFailures.Add(ctx, 1)
		}
	}
}
