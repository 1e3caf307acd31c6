package authsession

import "errors"

var (
	ValidationErr       = errors.New("validation failed")
	UserCancelledErr    = errors.New("login was cancelled")
	PopupBlockedErr     = errors.New("login window was blocked")
	ProviderErr         = errors.New("identity provider failure")
	NotAuthenticatedErr = errors.New("not authenticated")
	SessionExpiredErr   = errors.New("session expired, sign in again")
	LoginInProgressErr  = errors.New("another login is already in progress")
)
