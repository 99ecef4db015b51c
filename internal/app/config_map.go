package app

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ecsrelay/internal/config"
	"ecsrelay/internal/gate"
	"ecsrelay/internal/health"
	"ecsrelay/internal/identity"
	"ecsrelay/internal/ingress/httpapi"
	"ecsrelay/internal/notifier"
	"ecsrelay/internal/relay"
	"ecsrelay/internal/storage"
	"ecsrelay/internal/transport"
	"ecsrelay/internal/transport/slack"
	"ecsrelay/internal/transport/telegram"
	logx "ecsrelay/pkg/logx"
)

func mapLoggingConfig(cfg *config.Config) logx.Config {
	return logx.Config{
		Level:   cfg.Logging.Level,
		Console: cfg.Logging.Console,
		Format:  cfg.Logging.Format,
		File: logx.FileConfig{
			Enabled: cfg.Logging.File.Enabled,
			Path:    cfg.Logging.File.Path,
		},
	}
}

func mapStoreConfig(cfg *config.Config) (storage.Config, error) {
	sc := cfg.Store
	driver := strings.ToLower(strings.TrimSpace(sc.Driver))
	if driver == "" {
		driver = "redis"
	}
	out := storage.Config{Driver: driver, Addr: strings.TrimSpace(sc.Addr), Path: strings.TrimSpace(sc.Path)}

	var err error
	switch driver {
	case "redis":
		if out.Addr == "" {
			return storage.Config{}, fmt.Errorf("store.addr is required when store.driver=redis (or set REDIS_URL)")
		}
		if out.TTL, err = config.ParseDurationField("store.ttl", sc.TTL); err != nil {
			return storage.Config{}, err
		}
		if out.DialTimeout, err = config.ParseDurationOrDefault("store.dial_timeout", sc.DialTimeout, 5*time.Second); err != nil {
			return storage.Config{}, err
		}
	case "sqlite", "sqlite3":
		if out.Path == "" {
			return storage.Config{}, fmt.Errorf("store.path is required when store.driver=sqlite")
		}
		if out.BusyTimeout, err = config.ParseDurationOrDefault("store.busy_timeout", sc.BusyTimeout, time.Second); err != nil {
			return storage.Config{}, err
		}
	case "file", "memory", "mem":
	default:
		return storage.Config{}, fmt.Errorf("unknown store.driver: %s", sc.Driver)
	}
	return out, nil
}

func mapGateConfig(cfg *config.Config) gate.Config {
	return gate.Config{
		KeyPrefix:           cfg.Gate.KeyPrefix,
		MigrationMarkers:    cfg.Gate.MigrationMarkers,
		AutoscalingMarkers:  cfg.Gate.AutoscalingMarkers,
		SuppressedStopCodes: cfg.Gate.SuppressedStopCodes,
	}
}

func mapIdentityRules(cfg *config.Config) []identity.Rule {
	if len(cfg.Identity.Rules) == 0 {
		return nil
	}
	out := make([]identity.Rule, 0, len(cfg.Identity.Rules))
	for _, r := range cfg.Identity.Rules {
		out = append(out, identity.Rule{Contains: r.Contains, Label: r.Label, Color: r.Color})
	}
	return out
}

// newResolver builds the environment resolver. The IAM driver only loads
// credentials here; the first API call happens on the first emitted alert.
func newResolver(ctx context.Context, cfg *config.Config) (identity.Resolver, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Identity.Driver)) {
	case "", "iam":
		return identity.NewIAMFromEnv(ctx, strings.TrimSpace(cfg.Identity.Region), mapIdentityRules(cfg))
	case "static":
		st := cfg.Identity.Static
		if strings.TrimSpace(st.Label) == "" {
			return nil, fmt.Errorf("identity.static.label is required when identity.driver=static")
		}
		return identity.Static{Env: identity.Environment{Label: st.Label, Color: st.Color}}, nil
	default:
		return nil, fmt.Errorf("unknown identity.driver: %s", cfg.Identity.Driver)
	}
}

func newSink(cfg *config.Config) (transport.Sink, error) {
	sc := cfg.Sink
	switch strings.ToLower(strings.TrimSpace(sc.Driver)) {
	case "", "slack":
		return slack.New(slack.Config{Token: sc.Token, APIURL: sc.APIURL})
	case "slack_webhook":
		return slack.NewWebhook(sc.WebhookURL)
	case "telegram":
		timeout, err := config.ParseDurationOrDefault("sink.timeout", sc.Timeout, 10*time.Second)
		if err != nil {
			return nil, err
		}
		return telegram.New(telegram.Config{Token: sc.Token, APIURL: sc.APIURL, ThreadID: sc.ThreadID, Timeout: timeout})
	default:
		return nil, fmt.Errorf("unknown sink.driver: %s", sc.Driver)
	}
}

// mapNotifierConfig enables the notifier when the section is omitted.
func mapNotifierConfig(cfg *config.Config) (notifier.Config, error) {
	if cfg.Notifier == nil {
		return notifier.Config{Enabled: true, Timeout: 10 * time.Second}, nil
	}
	nc := cfg.Notifier
	if nc.RatePerSec < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.rate_per_sec must be >= 0")
	}
	if nc.HistorySize < 0 {
		return notifier.Config{}, fmt.Errorf("notifier.history_size must be >= 0")
	}
	timeout, err := config.ParseDurationOrDefault("notifier.timeout", nc.Timeout, 10*time.Second)
	if err != nil {
		return notifier.Config{}, err
	}
	return notifier.Config{
		Enabled:     nc.IsEnabled(),
		RatePerSec:  nc.RatePerSec,
		Timeout:     timeout,
		HistorySize: nc.HistorySize,
	}, nil
}

func mapRelayConfig(cfg *config.Config) (relay.Config, error) {
	rc := cfg.Relay
	timeout, err := config.ParseDurationField("relay.timeout", rc.Timeout)
	if err != nil {
		return relay.Config{}, err
	}
	return relay.Config{
		Channel:      strings.TrimSpace(rc.Channel),
		Username:     rc.Username,
		IconEmoji:    rc.IconEmoji,
		AuthorPrefix: rc.AuthorPrefix,
		Timeout:      timeout,
	}, nil
}

func mapHTTPConfig(cfg *config.Config) (httpapi.Config, error) {
	hc := cfg.HTTP
	out := httpapi.Config{
		Addr:          strings.TrimSpace(hc.Addr),
		Token:         strings.TrimSpace(hc.Token),
		AllowInsecure: hc.AllowInsecure,
		Pprof:         hc.Pprof,
	}
	if out.Addr == "" {
		out.Addr = httpapi.DefaultAddr
	}
	var err error
	if out.ReadTimeout, err = config.ParseDurationOrDefault("http.read_timeout", hc.ReadTimeout, 10*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	// /events blocks on the store, IAM and the chat API in turn.
	if out.WriteTimeout, err = config.ParseDurationOrDefault("http.write_timeout", hc.WriteTimeout, 30*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	if out.IdleTimeout, err = config.ParseDurationOrDefault("http.idle_timeout", hc.IdleTimeout, 60*time.Second); err != nil {
		return httpapi.Config{}, err
	}
	return out, nil
}

func mapHealthConfig(cfg *config.Config) health.Config {
	return health.Config{Schedule: strings.TrimSpace(cfg.Health.Schedule)}
}

// validateMapped runs every mapper that can fail without touching the network.
func validateMapped(cfg *config.Config) error {
	if err := config.Validate(cfg); err != nil {
		return err
	}
	if _, err := mapStoreConfig(cfg); err != nil {
		return err
	}
	if _, err := mapNotifierConfig(cfg); err != nil {
		return err
	}
	if _, err := mapRelayConfig(cfg); err != nil {
		return err
	}
	if _, err := mapHTTPConfig(cfg); err != nil {
		return err
	}
	return nil
}
