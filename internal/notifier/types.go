package notifier

import "time"

// Config controls delivery. Zero values pick the defaults in applyLocked.
type Config struct {
	Enabled bool
	// RatePerSec caps sends per second; 0 disables the limiter.
	RatePerSec int
	// Timeout bounds a single sink call.
	Timeout     time.Duration
	HistorySize int
}

type HistoryItem struct {
	At      time.Time `json:"at"`
	Sink    string    `json:"sink"`
	Channel string    `json:"channel"`
	Text    string    `json:"text"`
	Error   string    `json:"error,omitempty"`
}

// NotificationEvent is published on the event bus after every delivery attempt.
type NotificationEvent struct {
	Sink    string    `json:"sink"`
	Channel string    `json:"channel"`
	Subject string    `json:"subject"`
	At      time.Time `json:"at"`
	Error   string    `json:"error,omitempty"`
}
