// Package chatworker implements the chat worker and generation loop
// described in spec §4.4 (C6): a single goroutine that serializes every
// host request, owns the conversation store and context manager, and
// drives token-by-token generation with stop-word detection, tool-call
// interception, streaming and cancellation. Grounded on the teacher's
// pkg/agent.ToolLoopAgent (the run-a-turn-then-maybe-invoke-tools-then-
// continue shape) and pkg/ai.Stream (the streaming-channel contract),
// generalized from "call a remote provider, optionally loop on tool calls"
// to "own a persistent KV-cache-backed conversation across many turns."
package chatworker

import (
	"github.com/localrt/llmcore/pkg/telemetry"
)

// Config configures a Worker at construction (spec §4.4 "new"). The six
// parameters spec.md names directly — model, system prompt, tools, sampler
// config, context size, allow_thinking — are New's positional arguments;
// everything else here is an ambient knob with a functional-option setter,
// matching the teacher's DefaultAgentConfig/WithXxx pattern.
type Config struct {
	RetentionTail    int
	GenerationMargin int
	MaxTokens        int
	StopWords        []string
	Telemetry        *telemetry.Settings
}

// DefaultConfig returns Config with the defaults New falls back to when an
// Option leaves a field at its zero value: a retention tail of one
// user+assistant exchange (2 messages), a 256-token generation margin, a
// generous max-tokens ceiling, no stop words, telemetry disabled.
func DefaultConfig() Config {
	return Config{
		RetentionTail:    2,
		GenerationMargin: 256,
		MaxTokens:        2048,
		Telemetry:        telemetry.DefaultSettings(),
	}
}

// Option mutates a Config being built by New.
type Option func(*Config)

// WithRetentionTail sets the minimum number of most-recent messages
// context shift must never evict (spec §4.4 "Context shift").
func WithRetentionTail(n int) Option { return func(c *Config) { c.RetentionTail = n } }

// WithGenerationMargin reserves extra token budget beyond the rendered
// prefix so a turn's own output never itself overflows the context.
func WithGenerationMargin(n int) Option { return func(c *Config) { c.GenerationMargin = n } }

// WithMaxTokens caps how many tokens a single turn may generate before the
// max-tokens stop condition fires (spec §4.4 step 3f).
func WithMaxTokens(n int) Option { return func(c *Config) { c.MaxTokens = n } }

// WithStopWords sets the turn's stop-word list (spec §4.4 "Stop-word
// detection"); matching is against decoded text and suffix-based, checked
// after every token; when several words are suffixes at once, the longest
// one is stripped.
func WithStopWords(words ...string) Option { return func(c *Config) { c.StopWords = words } }

// WithTelemetry installs tracer settings (spec §9 "logging is delegated to
// an external tracer the host configures").
func WithTelemetry(s *telemetry.Settings) Option { return func(c *Config) { c.Telemetry = s } }
