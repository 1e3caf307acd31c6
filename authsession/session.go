// Package authsession owns the authenticated-identity state machine: it
// resolves an identity at startup, runs the interactive login paths, keeps an
// access credential valid for dependents and tears the session down on logout.
package authsession

import (
	"time"

	"github.com/incasautomation/telemetrix/identity"
)

// Status is the authentication state of the application instance.
type Status string

const (
	StatusUninitialized   Status = "uninitialized"
	StatusInitializing    Status = "initializing"
	StatusAuthenticated   Status = "authenticated"
	StatusUnauthenticated Status = "unauthenticated"
	StatusError           Status = "error"
)

// Session is the read-only projection of the authentication state exposed to
// the rest of the application. Account is present iff Status is
// StatusAuthenticated.
type Session struct {
	Status        Status
	Account       *identity.Account
	EstablishedAt time.Time
	LastAuthError error
}
