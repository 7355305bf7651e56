package config

import "time"

// Default values for optional configuration fields.
const (
	DefaultServerURL          = "wss://api-pub.bitfinex.com/ws/2"
	DefaultHandshakeTimeout   = 10 * time.Second
	DefaultWriteTimeout       = 5 * time.Second
	DefaultMessageBufferSize  = 4096
	DefaultReconnectBaseDelay = 10 * time.Second
	DefaultReconnectMaxDelay  = 60 * time.Second
	DefaultPongTimeout        = 5 * time.Second
	DefaultStaleSweepInterval = 5 * time.Minute
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
)

func (c *AppConfig) applyDefaults() {
	// Server defaults
	if c.Server.URL == "" {
		c.Server.URL = DefaultServerURL
	}
	if c.Server.HandshakeTimeout == 0 {
		c.Server.HandshakeTimeout = DefaultHandshakeTimeout
	}
	if c.Server.WriteTimeout == 0 {
		c.Server.WriteTimeout = DefaultWriteTimeout
	}
	if c.Server.MessageBufferSize == 0 {
		c.Server.MessageBufferSize = DefaultMessageBufferSize
	}

	// Stream defaults
	if c.Stream.ReconnectBaseDelay == 0 {
		c.Stream.ReconnectBaseDelay = DefaultReconnectBaseDelay
	}
	if c.Stream.ReconnectMaxDelay == 0 {
		c.Stream.ReconnectMaxDelay = DefaultReconnectMaxDelay
	}
	if c.Stream.PongTimeout == 0 {
		c.Stream.PongTimeout = DefaultPongTimeout
	}
	if c.Stream.StaleSweepInterval == 0 {
		c.Stream.StaleSweepInterval = DefaultStaleSweepInterval
	}

	// Logging defaults
	if c.Logging.Level == "" {
		c.Logging.Level = DefaultLogLevel
	}
	if c.Logging.Format == "" {
		c.Logging.Format = DefaultLogFormat
	}
}
