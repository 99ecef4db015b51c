package config

import (
	"reflect"
	"sort"
	"strings"

	logx "ecsrelay/pkg/logx"
)

// Sections whose changes only take effect after a restart: they select
// drivers that hold connections.
var restartSections = map[string]bool{
	"store":    true,
	"identity": true,
	"sink":     true,
	"http":     true,
}

// SummarizeConfigChange returns the changed sections and safe structured
// attrs for logging. Secrets (sink token, http token) are reported only as
// "_set" booleans.
func SummarizeConfigChange(oldCfg, newCfg *Config) ([]string, []logx.Field) {
	if oldCfg == nil {
		oldCfg = &Config{}
	}
	if newCfg == nil {
		newCfg = &Config{}
	}

	changed := make([]string, 0, 8)
	attrs := make([]logx.Field, 0, 16)

	if !reflect.DeepEqual(oldCfg.Logging, newCfg.Logging) {
		changed = append(changed, "logging")
		attrs = append(attrs,
			logx.String("logging.level", newCfg.Logging.Level),
			logx.Bool("logging.console", newCfg.Logging.Console),
			logx.Bool("logging.file_enabled", newCfg.Logging.File.Enabled),
		)
	}

	if !reflect.DeepEqual(oldCfg.Store, newCfg.Store) {
		changed = append(changed, "store")
		attrs = append(attrs,
			logx.String("store.driver", strings.TrimSpace(newCfg.Store.Driver)),
			logx.Bool("store.addr_set", strings.TrimSpace(newCfg.Store.Addr) != ""),
			logx.String("store.ttl", strings.TrimSpace(newCfg.Store.TTL)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Identity, newCfg.Identity) {
		changed = append(changed, "identity")
		attrs = append(attrs,
			logx.String("identity.driver", strings.TrimSpace(newCfg.Identity.Driver)),
			logx.Int("identity.rules", len(newCfg.Identity.Rules)),
		)
	}

	if oldCfg.Sink != newCfg.Sink {
		ns := newCfg.Sink
		changed = append(changed, "sink")
		attrs = append(attrs,
			logx.String("sink.driver", strings.TrimSpace(ns.Driver)),
			logx.Bool("sink.token_set", ns.Token != ""),
			logx.Bool("sink.webhook_set", ns.WebhookURL != ""),
		)
	}

	if !reflect.DeepEqual(oldCfg.Gate, newCfg.Gate) {
		changed = append(changed, "gate")
		attrs = append(attrs,
			logx.Int("gate.migration_markers", len(newCfg.Gate.MigrationMarkers)),
			logx.Int("gate.autoscaling_markers", len(newCfg.Gate.AutoscalingMarkers)),
			logx.Int("gate.suppressed_stop_codes", len(newCfg.Gate.SuppressedStopCodes)),
		)
	}

	if !reflect.DeepEqual(oldCfg.Relay, newCfg.Relay) {
		changed = append(changed, "relay")
		attrs = append(attrs,
			logx.String("relay.channel", newCfg.Relay.Channel),
			logx.String("relay.username", newCfg.Relay.Username),
		)
	}

	defN := &NotifierConfig{}
	oldN, newN := oldCfg.Notifier, newCfg.Notifier
	if oldN == nil {
		oldN = defN
	}
	if newN == nil {
		newN = defN
	}
	if oldN.IsEnabled() != newN.IsEnabled() || oldN.RatePerSec != newN.RatePerSec ||
		oldN.Timeout != newN.Timeout || oldN.HistorySize != newN.HistorySize {
		changed = append(changed, "notifier")
		attrs = append(attrs,
			logx.Bool("notifier.enabled", newN.IsEnabled()),
			logx.Int("notifier.rate_per_sec", newN.RatePerSec),
		)
	}

	if oldCfg.HTTP != newCfg.HTTP {
		changed = append(changed, "http")
		attrs = append(attrs,
			logx.String("http.addr", newCfg.HTTP.Addr),
			logx.Bool("http.token_set", newCfg.HTTP.Token != ""),
			logx.Bool("http.pprof", newCfg.HTTP.Pprof),
		)
	}

	if oldCfg.Health != newCfg.Health {
		changed = append(changed, "health")
		attrs = append(attrs, logx.String("health.schedule", newCfg.Health.Schedule))
	}

	sort.Strings(changed)
	return changed, attrs
}

// RestartRequired filters sections down to those that cannot be hot-applied.
func RestartRequired(sections []string) []string {
	var out []string
	for _, s := range sections {
		if restartSections[s] {
			out = append(out, s)
		}
	}
	return out
}
