package config

import "time"

// TelegramConfig configures the Bot API transport.
// Token is NEVER read from config.json (secret); it only comes from env SUBGATE_TELEGRAM_TOKEN.
type TelegramConfig struct {
	Token       string  `json:"-"`                      // from env SUBGATE_TELEGRAM_TOKEN only
	Proxy       string  `json:"proxy,omitempty"`        // HTTP proxy URL for Bot API calls
	PollTimeout int     `json:"poll_timeout,omitempty"` // long polling timeout in seconds (default 30)
	SendRPS     float64 `json:"send_rps,omitempty"`     // outbound send/delete rate (default 25/s)
	SendBurst   int     `json:"send_burst,omitempty"`   // outbound burst size (default 5)
}

// PollTimeoutDuration returns the long polling timeout.
func (t TelegramConfig) PollTimeoutDuration() time.Duration {
	return time.Duration(t.PollTimeout) * time.Second
}
