package config

import "time"

type Config struct {
	Port     int    `mapstructure:"port"`
	LogLevel string `mapstructure:"log_level"`
	LogFile  string `mapstructure:"log_file"`
	NATSURL  string `mapstructure:"nats_url"`
	RedisURL string `mapstructure:"redis_url"`

	// InstanceID identifies this server process in broadcast envelopes.
	// Generated at startup when left empty.
	InstanceID string `mapstructure:"instance_id"`

	// Timezone is the IANA zone used for "rooms die at local midnight".
	Timezone string `mapstructure:"timezone"`

	SessionTTLSeconds   int `mapstructure:"session_ttl_seconds"`
	SyncIntervalSeconds int `mapstructure:"sync_interval_seconds"`
	MaxMessageLength    int `mapstructure:"max_message_length"`
	AuthTimeoutSeconds  int `mapstructure:"auth_timeout_seconds"`
}

func (c Config) SessionTTL() time.Duration {
	if c.SessionTTLSeconds <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.SessionTTLSeconds) * time.Second
}

func (c Config) SyncInterval() time.Duration {
	if c.SyncIntervalSeconds <= 0 {
		return 5 * time.Minute
	}
	return time.Duration(c.SyncIntervalSeconds) * time.Second
}

func (c Config) AuthTimeout() time.Duration {
	if c.AuthTimeoutSeconds <= 0 {
		return 10 * time.Second
	}
	return time.Duration(c.AuthTimeoutSeconds) * time.Second
}

func (c Config) MessageLimit() int {
	if c.MaxMessageLength <= 0 {
		return 500
	}
	return c.MaxMessageLength
}

// Location resolves the configured timezone, defaulting to the system zone.
func (c Config) Location() *time.Location {
	if c.Timezone == "" {
		return time.Local
	}
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.Local
	}
	return loc
}
