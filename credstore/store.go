// Package credstore provides the session-scoped key-value area used to carry
// transient authentication markers across page loads, such as the intentional
// logout flag and the provider's interaction status.
package credstore

import "errors"

// Keys known to the session manager. Both markers are cleared on successful
// initialization and on logout.
const (
	IntentionalLogoutKey = "intentional-logout"
	InteractionStatusKey = "interaction-status"
)

var NotFoundErr = errors.New("key not found")

// Store is the contract for a session-scoped persistent key-value area.
type Store interface {
	Set(key, value string) error
	Get(key string) (string, error)
	Delete(key string) error
	Clear() error
}
