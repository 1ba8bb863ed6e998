// Package config defines publisher configuration structures and loading hooks.
//
// Conventions:
// - Durations are plain integer milliseconds in files and env; accessors
//   convert them to time.Duration.
// - Provide New(ctx) to build a Config with defaults.
// - External errors must be wrapped via this package's error helpers.
package config

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"
)

// Config contains process configuration.
type Config struct {
	// LogLevel controls verbosity: debug, info, warn, error.
	LogLevel string `koanf:"log_level"`

	// LogFormat selects text or json log lines.
	LogFormat string `koanf:"log_format"`

	// Addr configures the health and metrics listen address, e.g. ":9090".
	// Empty disables the listener.
	Addr string `koanf:"addr"`

	// DatabaseDSN is the gameserver Postgres DSN.
	DatabaseDSN string `koanf:"database_dsn"`

	// QueryTimeoutMS bounds every database call.
	QueryTimeoutMS int `koanf:"query_timeout_ms"`

	// BrokerURL is the MQTT broker, e.g. tcp://localhost:1883.
	BrokerURL string `koanf:"broker_url"`

	// BrokerTopic is where status events are published.
	BrokerTopic string `koanf:"broker_topic"`

	// BrokerClientPrefix prefixes the per-event MQTT client id.
	BrokerClientPrefix string `koanf:"broker_client_prefix"`

	// BrokerQoS is the MQTT quality of service, 0 to 2.
	BrokerQoS int `koanf:"broker_qos"`

	// BrokerRetained publishes status events as retained messages.
	BrokerRetained bool `koanf:"broker_retained"`

	// ConnectTimeoutMS and PublishTimeoutMS bound the broker calls.
	ConnectTimeoutMS int `koanf:"connect_timeout_ms"`
	PublishTimeoutMS int `koanf:"publish_timeout_ms"`

	// DryRun logs payloads instead of publishing them.
	DryRun bool `koanf:"dry_run"`

	// TimestampOffsetSeconds is added to timestamp and FinishTime in every
	// payload. Subscribers read them as local wall-clock seconds.
	TimestampOffsetSeconds int `koanf:"timestamp_offset_seconds"`

	// PollIntervalMS is the pause between loop iterations.
	PollIntervalMS int `koanf:"poll_interval_ms"`

	// ConfigBackoffMS is the pause while the game window is not configured.
	ConfigBackoffMS int `koanf:"config_backoff_ms"`

	// TickSettleMS lets the gameserver finish writing a tick before reading it.
	TickSettleMS int `koanf:"tick_settle_ms"`

	// CaptureSpacingMS separates successive capture events.
	CaptureSpacingMS int `koanf:"capture_spacing_ms"`

	// FinishGraceMS delays Finish past the window end.
	FinishGraceMS int `koanf:"finish_grace_ms"`

	// PublishFailureThreshold is how many consecutive publish failures mark
	// the publisher unhealthy.
	PublishFailureThreshold int `koanf:"publish_failure_threshold"`

	// SLAPrecision is the number of decimals kept on SLA percentages.
	SLAPrecision int `koanf:"sla_precision"`

	// RebuildOnStart folds captures already in the store into the counters
	// when the game starts, so a restart does not lose history.
	RebuildOnStart bool `koanf:"rebuild_on_start"`
}

// New creates a Config with defaults. Context is accepted first to satisfy
// the project-wide convention.
func New(_ context.Context) *Config {
	return &Config{
		LogLevel:                "info",
		LogFormat:               "text",
		Addr:                    ":9090",
		QueryTimeoutMS:          5000,
		BrokerURL:               "tcp://localhost:1883",
		BrokerTopic:             "status",
		BrokerClientPrefix:      "ctf-status",
		ConnectTimeoutMS:        5000,
		PublishTimeoutMS:        5000,
		TimestampOffsetSeconds:  7200,
		PollIntervalMS:          1000,
		ConfigBackoffMS:         30_000,
		TickSettleMS:            2000,
		CaptureSpacingMS:        1000,
		FinishGraceMS:           2000,
		PublishFailureThreshold: 3,
		RebuildOnStart:          true,
	}
}

// Validate checks value ranges. It does not require a DSN; see RequireDatabase.
func (c *Config) Validate() error {
	var problems []string

	switch strings.ToLower(c.LogLevel) {
	case "debug", "info", "warn", "warning", "error":
	default:
		problems = append(problems, fmt.Sprintf("log_level %q is not one of debug, info, warn, error", c.LogLevel))
	}
	switch strings.ToLower(c.LogFormat) {
	case "text", "json":
	default:
		problems = append(problems, fmt.Sprintf("log_format %q is not text or json", c.LogFormat))
	}
	if !c.DryRun && c.BrokerURL == "" {
		problems = append(problems, "broker_url must not be empty unless dry_run is set")
	}
	if c.BrokerTopic == "" {
		problems = append(problems, "broker_topic must not be empty")
	}
	if c.BrokerQoS < 0 || c.BrokerQoS > 2 {
		problems = append(problems, fmt.Sprintf("broker_qos %d is outside 0..2", c.BrokerQoS))
	}
	if c.SLAPrecision < 0 || c.SLAPrecision > 6 {
		problems = append(problems, fmt.Sprintf("sla_precision %d is outside 0..6", c.SLAPrecision))
	}
	if c.PublishFailureThreshold < 1 {
		problems = append(problems, "publish_failure_threshold must be at least 1")
	}
	for name, v := range map[string]int{
		"query_timeout_ms":   c.QueryTimeoutMS,
		"connect_timeout_ms": c.ConnectTimeoutMS,
		"publish_timeout_ms": c.PublishTimeoutMS,
		"poll_interval_ms":   c.PollIntervalMS,
		"config_backoff_ms":  c.ConfigBackoffMS,
	} {
		if v <= 0 {
			problems = append(problems, fmt.Sprintf("%s must be positive", name))
		}
	}
	for name, v := range map[string]int{
		"tick_settle_ms":     c.TickSettleMS,
		"capture_spacing_ms": c.CaptureSpacingMS,
		"finish_grace_ms":    c.FinishGraceMS,
	} {
		if v < 0 {
			problems = append(problems, fmt.Sprintf("%s must not be negative", name))
		}
	}

	if len(problems) > 0 {
		sort.Strings(problems)
		return fmt.Errorf("%w: %s", ErrInvalidConfig, strings.Join(problems, "; "))
	}
	return nil
}

// RequireDatabase reports ErrInvalidConfig when no DSN is set.
func (c *Config) RequireDatabase() error {
	if strings.TrimSpace(c.DatabaseDSN) == "" {
		return fmt.Errorf("%w: database_dsn must be set", ErrInvalidConfig)
	}
	return nil
}

// QueryTimeout returns the database call bound.
func (c *Config) QueryTimeout() time.Duration { return ms(c.QueryTimeoutMS) }

// ConnectTimeout returns the broker connect bound.
func (c *Config) ConnectTimeout() time.Duration { return ms(c.ConnectTimeoutMS) }

// PublishTimeout returns the broker publish bound.
func (c *Config) PublishTimeout() time.Duration { return ms(c.PublishTimeoutMS) }

// TimestampOffset returns the payload timestamp shift.
func (c *Config) TimestampOffset() time.Duration {
	return time.Duration(c.TimestampOffsetSeconds) * time.Second
}

// PollInterval returns the pause between iterations.
func (c *Config) PollInterval() time.Duration { return ms(c.PollIntervalMS) }

// ConfigBackoff returns the pause while the window is not configured.
func (c *Config) ConfigBackoff() time.Duration { return ms(c.ConfigBackoffMS) }

// TickSettle returns the tick settle delay.
func (c *Config) TickSettle() time.Duration { return ms(c.TickSettleMS) }

// CaptureSpacing returns the gap between capture events.
func (c *Config) CaptureSpacing() time.Duration { return ms(c.CaptureSpacingMS) }

// FinishGrace returns the delay past the window end.
func (c *Config) FinishGrace() time.Duration { return ms(c.FinishGraceMS) }

func ms(v int) time.Duration { return time.Duration(v) * time.Millisecond }
