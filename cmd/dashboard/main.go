package main

import (
	"context"
	"log"
	"os"
	"os/signal"
	"runtime/debug"
	"syscall"
	"time"

	"github.com/common-nighthawk/go-figure"
	"github.com/incasautomation/telemetrix/authsession"
	"github.com/incasautomation/telemetrix/credstore"
	"github.com/incasautomation/telemetrix/identity/oidcgateway"
	"github.com/incasautomation/telemetrix/internal/config"
	"github.com/incasautomation/telemetrix/telemetry"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

func main() {
	if err := run(); err != nil {
		log.Fatalf("Error running dashboard: %s\n", err)
	}
	log.Printf("Dashboard stopped\n")
}

func run() (returnError error) {
	defer func() {
		if r := recover(); r != nil {
			debug.PrintStack()
			returnError = errors.Errorf("panic recovered: %v", r)
		}
	}()

	c := config.New()
	displayAppname(c.GetAppName())
	logger := newLogger(c)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	gateway := oidcgateway.New(oidcgateway.Config{
		Authority:   c.GetAuthority(),
		ClientID:    c.GetClientID(),
		RedirectURL: c.GetRedirectURL(),
		Prompt: func(verificationURI, userCode string) {
			logger.Info().
				Str("verification_uri", verificationURI).
				Str("user_code", userCode).
				Msg("complete the sign-in in your browser")
		},
	})

	manager, err := authsession.NewManager(gateway, credstore.NewMemoryStore(), c.GetScopes(),
		authsession.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "session manager")
	}
	if err := manager.Initialize(ctx); err != nil {
		return errors.Wrap(err, "session initialization")
	}

	if manager.Status() != authsession.StatusAuthenticated {
		email := c.GetLoginEmail()
		if email == "" {
			return errors.New("no active session and DASHBOARD_LOGIN_EMAIL is not set")
		}
		if err := manager.LoginWithWorkAccount(ctx, email); err != nil {
			return errors.Wrap(err, "login")
		}
	}

	poller, err := telemetry.NewPoller(manager, c.GetTelemetryEndpoint(), c.GetScopes(),
		telemetry.WithInterval(c.GetPollInterval()),
		telemetry.WithLogoutDelay(c.GetLogoutDelay()),
		telemetry.WithLogger(logger))
	if err != nil {
		return errors.Wrap(err, "telemetry poller")
	}
	if err := poller.Start(ctx); err != nil {
		return errors.Wrap(err, "starting poller")
	}

	watchSnapshots(ctx, poller, manager, logger)

	poller.Stop()
	manager.Logout(context.Background())
	return nil
}

// watchSnapshots logs each new snapshot until the process is interrupted or
// the session ends.
func watchSnapshots(ctx context.Context, poller *telemetry.Poller, manager *authsession.Manager, logger zerolog.Logger) {
	ticker := time.NewTicker(time.Second)
	defer ticker.Stop()

	var lastFetch time.Time
	var lastErr error
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if manager.Status() != authsession.StatusAuthenticated {
				logger.Info().Msg("session ended")
				return
			}
			snapshot := poller.Snapshot()
			if snapshot.Err != nil && (lastErr == nil || snapshot.Err.Error() != lastErr.Error()) {
				logger.Warn().Err(snapshot.Err).Msg("telemetry degraded, showing last known data")
			}
			lastErr = snapshot.Err
			if snapshot.Status != nil && snapshot.FetchedAt.After(lastFetch) {
				lastFetch = snapshot.FetchedAt
				logger.Info().
					Str("device_id", snapshot.Status.DeviceID).
					Str("machine_state", snapshot.Status.MachineState).
					Int("bag_count", snapshot.Status.BagCount).
					Float64("bags_per_minute", snapshot.Status.BagsPerMinute).
					Float64("uptime_pct", snapshot.Status.UptimePercentage).
					Msg("machine status")
			}
		}
	}
}

func newLogger(c config.Config) zerolog.Logger {
	if c.GetEnv() == "DEV" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).With().Timestamp().Logger()
	}
	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}

func displayAppname(appname string) {
	myFigure := figure.NewFigure(appname, "cybermedium", true)
	myFigure.Print()
}
