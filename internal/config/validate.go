package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validate performs the structural checks that do not need a live
// dependency. Driver-specific checks happen when the app maps each section.
func Validate(cfg *Config) error {
	if cfg == nil {
		return fmt.Errorf("config is nil")
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Store.Driver)) {
	case "", "redis", "sqlite", "sqlite3", "file", "memory", "mem":
	default:
		return fmt.Errorf("store.driver: unknown %q", cfg.Store.Driver)
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Identity.Driver)) {
	case "", "iam":
	case "static":
		if strings.TrimSpace(cfg.Identity.Static.Label) == "" {
			return fmt.Errorf("identity.static.label is required when identity.driver=static")
		}
	default:
		return fmt.Errorf("identity.driver: unknown %q", cfg.Identity.Driver)
	}
	for i, r := range cfg.Identity.Rules {
		if r.Contains == "" || r.Label == "" {
			return fmt.Errorf("identity.rules[%d]: contains and label are required", i)
		}
	}
	switch strings.ToLower(strings.TrimSpace(cfg.Sink.Driver)) {
	case "", "slack", "slack_webhook", "telegram":
	default:
		return fmt.Errorf("sink.driver: unknown %q", cfg.Sink.Driver)
	}
	if cfg.Notifier != nil {
		if cfg.Notifier.RatePerSec < 0 {
			return fmt.Errorf("notifier.rate_per_sec must be >= 0")
		}
		if cfg.Notifier.HistorySize < 0 {
			return fmt.Errorf("notifier.history_size must be >= 0")
		}
		if _, err := ParseDurationField("notifier.timeout", cfg.Notifier.Timeout); err != nil {
			return err
		}
	}
	durations := []struct{ path, raw string }{
		{"store.ttl", cfg.Store.TTL},
		{"store.dial_timeout", cfg.Store.DialTimeout},
		{"store.busy_timeout", cfg.Store.BusyTimeout},
		{"sink.timeout", cfg.Sink.Timeout},
		{"relay.timeout", cfg.Relay.Timeout},
		{"http.read_timeout", cfg.HTTP.ReadTimeout},
		{"http.write_timeout", cfg.HTTP.WriteTimeout},
		{"http.idle_timeout", cfg.HTTP.IdleTimeout},
	}
	for _, d := range durations {
		if _, err := ParseDurationField(d.path, d.raw); err != nil {
			return err
		}
	}
	if spec := strings.TrimSpace(cfg.Health.Schedule); spec != "" {
		if _, err := cron.ParseStandard(spec); err != nil {
			return fmt.Errorf("health.schedule: invalid %q: %w", spec, err)
		}
	}
	return nil
}

func ParseDurationField(path, raw string) (time.Duration, error) {
	s := strings.TrimSpace(raw)
	if s == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(s)
	if err != nil {
		return 0, fmt.Errorf("%s: invalid duration %q: %w", path, raw, err)
	}
	if d < 0 {
		return 0, fmt.Errorf("%s: duration must be >= 0", path)
	}
	return d, nil
}

func ParseDurationOrDefault(path, raw string, def time.Duration) (time.Duration, error) {
	d, err := ParseDurationField(path, raw)
	if err != nil {
		return 0, err
	}
	if d <= 0 {
		return def, nil
	}
	return d, nil
}
