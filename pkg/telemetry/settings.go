// Package telemetry wires llmcore's workers into an OpenTelemetry tracer
// supplied by the host. The core never configures an exporter itself — spec
// §9 calls this out explicitly ("logging is delegated to an external tracer
// the host configures"); Settings.Tracer is that seam.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Settings configures tracing for a chat/embedding/rerank worker.
// Telemetry is disabled by default and must be explicitly enabled.
type Settings struct {
	// IsEnabled controls whether spans are created at all. Defaults to false.
	IsEnabled bool

	// RecordText is carried for hosts; no span this module creates attaches
	// message, prompt or generated text, whatever its value.
	RecordText bool

	// WorkerID identifies the chat/embedding/rerank worker instance that
	// produced a span, for grouping traces by worker in a host running many.
	WorkerID string

	// Metadata contains additional key-value pairs attached to every span.
	Metadata map[string]attribute.Value

	// Tracer is a custom OpenTelemetry tracer. If nil, the global tracer is used.
	Tracer trace.Tracer
}

// DefaultSettings returns Settings with sensible defaults.
func DefaultSettings() *Settings {
	return &Settings{
		IsEnabled:  false,
		RecordText: true,
		Metadata:   make(map[string]attribute.Value),
	}
}

// WithEnabled returns a copy of Settings with IsEnabled set to the given value.
func (s *Settings) WithEnabled(enabled bool) *Settings {
	cp := *s
	cp.IsEnabled = enabled
	return &cp
}

// WithRecordText returns a copy of Settings with RecordText set to the given value.
func (s *Settings) WithRecordText(record bool) *Settings {
	cp := *s
	cp.RecordText = record
	return &cp
}

// WithWorkerID returns a copy of Settings with WorkerID set to the given value.
func (s *Settings) WithWorkerID(id string) *Settings {
	cp := *s
	cp.WorkerID = id
	return &cp
}

// WithTracer returns a copy of Settings with Tracer set to the given value.
func (s *Settings) WithTracer(tracer trace.Tracer) *Settings {
	cp := *s
	cp.Tracer = tracer
	return &cp
}
