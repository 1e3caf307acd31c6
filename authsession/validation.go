package authsession

import (
	"strings"

	"github.com/incasautomation/telemetrix/identity"
	"github.com/pkg/errors"
)

// Consumer email domains that cannot be used for a work account login.
var personalEmailDomains = map[string]struct{}{
	"gmail.com":   {},
	"yahoo.com":   {},
	"hotmail.com": {},
	"outlook.com": {},
	"live.com":    {},
}

// ValidateWorkEmail checks a work account login email before any provider
// call is made. Failures wrap ValidationErr.
func ValidateWorkEmail(email string) error {
	if strings.TrimSpace(email) == "" {
		return errors.Wrap(ValidationErr, "email is required")
	}
	domain := identity.EmailDomain(email)
	if domain == "" {
		return errors.Wrap(ValidationErr, "invalid email address")
	}
	if _, ok := personalEmailDomains[domain]; ok {
		return errors.Wrap(ValidationErr, "personal email addresses cannot be used, use a work or school account")
	}
	return nil
}
