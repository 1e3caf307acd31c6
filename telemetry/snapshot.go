// Package telemetry keeps a machine-status snapshot fresh by polling the
// telemetry API at a fixed interval while the session is authenticated.
package telemetry

import (
	"encoding/json"
	"errors"
	"time"
)

var (
	// AuthExpiredErr classifies a fetch rejected with 401; it terminates
	// the session after a short delay.
	AuthExpiredErr = errors.New("authentication expired")
	// TransientFetchErr classifies every other fetch failure; the next poll
	// tick is the retry.
	TransientFetchErr = errors.New("telemetry fetch failed")
)

// MachineStatus is the payload published by the machine status endpoint.
type MachineStatus struct {
	DeviceID         string  `json:"deviceId"`
	MachineState     string  `json:"machineState"`
	BagCount         int     `json:"bagCount"`
	BagsPerMinute    float64 `json:"bagsPerMinute"`
	UptimePercentage float64 `json:"uptimePercentage"`
}

// Snapshot is the last successfully fetched payload plus metadata. It is
// replaced wholesale, never partially updated: a failed fetch keeps the prior
// Raw/Status and only records the classified error.
type Snapshot struct {
	Raw       json.RawMessage
	Status    *MachineStatus
	FetchedAt time.Time
	Err       error
}
