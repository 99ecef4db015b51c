package config

import (
	"os"
	"strings"
)

// Environment variables that override the file. Each has an upper-case name
// and the lower-case alias used by existing Lambda deployments.
var (
	envSinkToken  = []string{"SLACK_INFRA_ALERT_BOT", "slack_infra_alert_bot"}
	envStoreAddr  = []string{"REDIS_URL", "redis_url"}
	envChannel    = []string{"NAME_CHANNEL", "name_channel"}
	envLogLevel   = []string{"ECSRELAY_LOG_LEVEL"}
	envHTTPToken  = []string{"ECSRELAY_HTTP_TOKEN"}
	envSinkDriver = []string{"ECSRELAY_SINK"}
)

// ApplyEnv overlays environment values onto cfg. getenv is os.Getenv in
// production; tests pass a map lookup.
func ApplyEnv(cfg *Config, getenv func(string) string) {
	if cfg == nil {
		return
	}
	if getenv == nil {
		getenv = os.Getenv
	}
	if v := firstEnv(getenv, envSinkToken); v != "" {
		cfg.Sink.Token = v
	}
	if v := firstEnv(getenv, envSinkDriver); v != "" {
		cfg.Sink.Driver = v
	}
	if v := firstEnv(getenv, envStoreAddr); v != "" {
		cfg.Store.Addr = v
	}
	if v := firstEnv(getenv, envChannel); v != "" {
		cfg.Relay.Channel = v
	}
	if v := firstEnv(getenv, envLogLevel); v != "" {
		cfg.Logging.Level = v
	}
	if v := firstEnv(getenv, envHTTPToken); v != "" {
		cfg.HTTP.Token = v
	}
}

func firstEnv(getenv func(string) string, names []string) string {
	for _, n := range names {
		if v := strings.TrimSpace(getenv(n)); v != "" {
			return v
		}
	}
	return ""
}
