package config

import (
	"strconv"
	"time"
)

const (
	telemetryEndpointVar = "TELEMETRY_ENDPOINT"
	pollIntervalVar      = "POLL_INTERVAL_SECONDS"
	logoutDelayVar       = "LOGOUT_DELAY_SECONDS"

	defaultPollInterval = 5 * time.Second
	defaultLogoutDelay  = 2 * time.Second
)

type Telemetry struct{}

var _ TelemetryConfig = Telemetry{}

func (Telemetry) GetTelemetryEndpoint() string {
	return GetEnv(telemetryEndpointVar, "")
}

func (Telemetry) GetPollInterval() time.Duration {
	return secondsEnv(pollIntervalVar, defaultPollInterval)
}

func (Telemetry) GetLogoutDelay() time.Duration {
	return secondsEnv(logoutDelayVar, defaultLogoutDelay)
}

func secondsEnv(envVar string, defaultValue time.Duration) time.Duration {
	value := GetEnv(envVar, "")
	if value == "" {
		return defaultValue
	}
	seconds, err := strconv.Atoi(value)
	if err != nil || seconds <= 0 {
		return defaultValue
	}
	return time.Duration(seconds) * time.Second
}
