package config

import "time"

type Config struct {
	Server     ServerConfig
	Transport  TransportConfig
	Relay      RelayConfig
	Encryption EncryptionConfig
	Log        LogConfig
}

type ServerConfig struct {
	Address         string
	ConnectionLimit ConnectionLimitConfig `mapstructure:"connectionLimit"`
}

// ConnectionLimitConfig caps concurrent WebSocket connections per client IP.
// A MaxPerIP of zero disables the limiter.
type ConnectionLimitConfig struct {
	MaxPerIP int `mapstructure:"maxPerIP"`
}

type TransportConfig struct {
	ReadTimeout  time.Duration `mapstructure:"readTimeout"`
	WriteTimeout time.Duration `mapstructure:"writeTimeout"`
}

type RelayConfig struct {
	// DeliveryFailureEvents switches on `delivery-failed` notifications to the
	// sender when a targeted relay finds the recipient offline. Off by default:
	// the relay is best-effort and drops silently.
	DeliveryFailureEvents bool `mapstructure:"deliveryFailureEvents"`
	// RingTimeout expires a never-answered call. Zero disables expiry.
	RingTimeout time.Duration `mapstructure:"ringTimeout"`
}

type EncryptionConfig struct {
	// Passphrase derives the at-rest message key. When empty a random
	// per-process key is used; stored messages do not survive a restart
	// either way.
	Passphrase string `mapstructure:"passphrase"`
}

type LogConfig struct {
	Level string `mapstructure:"level"`
}
