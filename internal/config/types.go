package config

// Config is the on-disk configuration (JSON or YAML). Every section may be
// omitted; the app applies defaults when mapping it to service configs.
type Config struct {
	Logging  LoggingConfig   `json:"logging"`
	Store    StoreConfig     `json:"store"`
	Identity IdentityConfig  `json:"identity"`
	Sink     SinkConfig      `json:"sink"`
	Gate     GateConfig      `json:"gate"`
	Relay    RelayConfig     `json:"relay"`
	Notifier *NotifierConfig `json:"notifier,omitempty"`
	HTTP     HTTPConfig      `json:"http"`
	Health   HealthConfig    `json:"health"`
}

type LoggingConfig struct {
	Level   string      `json:"level"`
	Console bool        `json:"console"`
	Format  string      `json:"format,omitempty"` // "pretty" (default) or "json"
	File    LoggingFile `json:"file"`
}

type LoggingFile struct {
	Enabled bool   `json:"enabled"`
	Path    string `json:"path"`
}

// StoreConfig selects the task state backend.
//
// Example:
//
//	"store": { "driver": "redis", "addr": "redis.internal", "ttl": "168h" }
type StoreConfig struct {
	Driver      string `json:"driver"` // redis (default), sqlite, file, memory
	Addr        string `json:"addr,omitempty"`
	Path        string `json:"path,omitempty"`
	TTL         string `json:"ttl,omitempty"`          // Go duration; redis only
	DialTimeout string `json:"dial_timeout,omitempty"` // Go duration; redis only
	BusyTimeout string `json:"busy_timeout,omitempty"` // Go duration; sqlite only
}

type IdentityConfig struct {
	Driver string         `json:"driver"` // iam (default) or static
	Region string         `json:"region,omitempty"`
	Rules  []IdentityRule `json:"rules,omitempty"`
	Static StaticEnv      `json:"static,omitempty"`
}

type IdentityRule struct {
	Contains string `json:"contains"`
	Label    string `json:"label"`
	Color    string `json:"color"`
}

type StaticEnv struct {
	Label string `json:"label"`
	Color string `json:"color"`
}

// SinkConfig selects the chat transport. Token is a secret and is never logged.
type SinkConfig struct {
	Driver     string `json:"driver"` // slack (default), slack_webhook, telegram
	Token      string `json:"token,omitempty"`
	APIURL     string `json:"api_url,omitempty"`
	WebhookURL string `json:"webhook_url,omitempty"`
	ThreadID   int    `json:"thread_id,omitempty"` // telegram forum topic
	Timeout    string `json:"timeout,omitempty"`
}

// GateConfig holds the literal filter markers. Omitted lists use the defaults.
type GateConfig struct {
	KeyPrefix           string   `json:"key_prefix,omitempty"`
	MigrationMarkers    []string `json:"migration_markers,omitempty"`
	AutoscalingMarkers  []string `json:"autoscaling_markers,omitempty"`
	SuppressedStopCodes []string `json:"suppressed_stop_codes,omitempty"`
}

type RelayConfig struct {
	Channel      string `json:"channel"`
	Username     string `json:"username,omitempty"`
	IconEmoji    string `json:"icon_emoji,omitempty"`
	AuthorPrefix string `json:"author_prefix,omitempty"`
	Timeout      string `json:"timeout,omitempty"`
}

// NotifierConfig controls delivery. If the section or its enabled key is
// omitted the notifier is enabled.
type NotifierConfig struct {
	Enabled     *bool  `json:"enabled,omitempty"`
	RatePerSec  int    `json:"rate_per_sec"`
	Timeout     string `json:"timeout,omitempty"`
	HistorySize int    `json:"history_size,omitempty"`
}

// IsEnabled reports whether delivery is on; nil and a nil Enabled mean on.
func (n *NotifierConfig) IsEnabled() bool {
	return n == nil || n.Enabled == nil || *n.Enabled
}

// HTTPConfig controls the HTTP ingress.
//
// Security note: when binding to a non-loopback address set a token or
// explicitly allow_insecure.
type HTTPConfig struct {
	Addr          string `json:"addr,omitempty"`  // default "127.0.0.1:8080"
	Token         string `json:"token,omitempty"` // optional bearer token (do not log)
	AllowInsecure bool   `json:"allow_insecure,omitempty"`
	Pprof         bool   `json:"pprof,omitempty"` // mount /debug/pprof/

	ReadTimeout  string `json:"read_timeout,omitempty"`
	WriteTimeout string `json:"write_timeout,omitempty"`
	IdleTimeout  string `json:"idle_timeout,omitempty"`
}

type HealthConfig struct {
	// Schedule is a robfig/cron spec, e.g. "@every 1m". Empty disables the probe.
	Schedule string `json:"schedule"`
}
