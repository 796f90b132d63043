package sender

import "time"

// Config bounds the dispatch and resign loop.
type Config struct {
	// MaxRounds counts dispatch rounds, the first one included. Payloads
	// still unconfirmed after the last round fail with ErrRetriesExhausted.
	MaxRounds int
	// ExpiryPollInterval is how often the token source is asked whether the
	// round's token has lapsed.
	ExpiryPollInterval time.Duration
	// ObservationTimeout caps one round's observation window even if the
	// token source never reports expiry.
	ObservationTimeout time.Duration
	// TokenRefreshInterval paces polling for a token newer than the last one.
	TokenRefreshInterval time.Duration
	// SendConcurrency caps concurrent Submit calls; 0 leaves the bound to the
	// transport.
	SendConcurrency int
}

func DefaultConfig() Config {
	return Config{
		MaxRounds:            5,
		ExpiryPollInterval:   time.Second,
		ObservationTimeout:   90 * time.Second,
		TokenRefreshInterval: 400 * time.Millisecond,
	}
}

func (c Config) withDefaults() Config {
	d := DefaultConfig()
	if c.MaxRounds <= 0 {
		c.MaxRounds = d.MaxRounds
	}
	if c.ExpiryPollInterval <= 0 {
		c.ExpiryPollInterval = d.ExpiryPollInterval
	}
	if c.ObservationTimeout <= 0 {
		c.ObservationTimeout = d.ObservationTimeout
	}
	if c.TokenRefreshInterval <= 0 {
		c.TokenRefreshInterval = d.TokenRefreshInterval
	}
	if c.SendConcurrency < 0 {
		c.SendConcurrency = 0
	}
	return c
}
