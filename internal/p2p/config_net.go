package p2p

import "time"

// NetConfig carries runtime options for the direct leader transport.
type NetConfig struct {
	Leader       string   // leader multiaddr including /p2p/<id>
	Listen       []string // optional listen multiaddrs; empty => dial-only host
	DialTimeout  time.Duration
	WriteTimeout time.Duration
	MaxInFlight  int64
}

func DefaultNetConfig() NetConfig {
	return NetConfig{
		DialTimeout:  5 * time.Second,
		WriteTimeout: 2 * time.Second,
		MaxInFlight:  256,
	}
}

func (c NetConfig) withDefaults() NetConfig {
	d := DefaultNetConfig()
	if c.DialTimeout <= 0 {
		c.DialTimeout = d.DialTimeout
	}
	if c.WriteTimeout <= 0 {
		c.WriteTimeout = d.WriteTimeout
	}
	if c.MaxInFlight == 0 {
		c.MaxInFlight = d.MaxInFlight
	}
	return c
}
