// Package config exposes the application configuration, sourced from
// environment variables with sensible defaults.
package config

import "time"

type Config interface {
	EnvConfig
	AuthConfig
	TelemetryConfig
}

type EnvConfig interface {
	GetAppName() string
	GetEnv() string
}

type AuthConfig interface {
	GetAuthority() string
	GetClientID() string
	GetScopes() []string
	GetRedirectURL() string
	GetLoginEmail() string
}

type TelemetryConfig interface {
	GetTelemetryEndpoint() string
	GetPollInterval() time.Duration
	GetLogoutDelay() time.Duration
}

type mainConfig struct {
	EnvVars
	Auth
	Telemetry
}

func New() Config {
	return mainConfig{}
}
