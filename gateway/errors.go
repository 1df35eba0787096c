package gateway

import (
	"fmt"
	"time"

	sdklogging "github.com/Layr-Labs/eigensdk-go/logging"
	"github.com/getsentry/sentry-go"

	"github.com/AvaProtocol/ap-filters/version"
)

// goSafe runs fn in a goroutine that reports a panic to Sentry before re-panicking.
func goSafe(fn func()) {
	go func() {
		defer func() {
			if r := recover(); r != nil {
				sentryRecover(r)
				panic(r)
			}
		}()
		fn()
	}()
}

// sentryRecover is a no-op until sentry.Init has run.
func sentryRecover(rec interface{}) {
	sentry.CurrentHub().Recover(rec)
	sentry.Flush(2 * time.Second)
}

func (g *Gateway) initSentry() bool {
	if g.config.SentryDsn == "" {
		g.logger.Info("Sentry DSN not configured, error reporting is disabled")
		return false
	}

	env := "production"
	if g.config.Environment == sdklogging.Development {
		env = "development"
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              g.config.SentryDsn,
		ServerName:       g.config.ServerName,
		Environment:      env,
		Release:          fmt.Sprintf("%s@%s", version.Get(), version.GetRevision()),
		AttachStacktrace: true,
		TracesSampleRate: 1.0,
	})
	if err != nil {
		g.logger.Errorf("Sentry initialization failed: %v", err)
		return false
	}
	g.logger.Info("Sentry initialized", "environment", env, "server_name", g.config.ServerName)
	return true
}

func sentryFlushSafely() {
	sentry.Flush(2 * time.Second)
}
