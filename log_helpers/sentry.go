package log_helpers

import (
	"fmt"
	"nftminter"
	"nftminter/mint"

	"github.com/getsentry/sentry-go"
	"github.com/ninja-software/terror/v2"
	"github.com/rs/zerolog"
)

const (
	DEVELOPMENT string = "development"
	TESTING     string = "testing"
	TRAINING    string = "training"
	STAGING     string = "staging"
	PRODUCTION  string = "production"
)

var (
	ErrSentryInitEnvironment = fmt.Errorf("sentry init skipped: invalid environment should be one of %v", []string{DEVELOPMENT, TESTING, TRAINING, STAGING, PRODUCTION})
	ErrSentryInitDSN         = fmt.Errorf("sentry init skipped: dsn missing")
	ErrSentryInitVersion     = fmt.Errorf("sentry init skipped: version missing")
)

// SentryInit configures the global sentry client. Outside production a missing
// DSN or version only logs a warning and leaves sentry disabled.
func SentryInit(sentryDSNBackend, sentryServerName, version string, sentryEnvironment string, sentryTraceRate float64, log *zerolog.Logger) error {
	switch sentryEnvironment {
	case DEVELOPMENT, TESTING, TRAINING, STAGING, PRODUCTION:
		break
	default:
		return terror.Panic(ErrSentryInitEnvironment, "got", sentryEnvironment)
	}

	if len(sentryDSNBackend) == 0 {
		if sentryEnvironment == PRODUCTION {
			return terror.Panic(ErrSentryInitDSN)
		}
		log.Warn().Err(ErrSentryInitDSN).Msg("")
		return nil
	}
	if len(version) == 0 {
		if sentryEnvironment == PRODUCTION {
			return terror.Panic(ErrSentryInitVersion)
		}
		log.Warn().Err(ErrSentryInitVersion).Msg("")
		return nil
	}

	err := sentry.Init(sentry.ClientOptions{
		Dsn:              sentryDSNBackend,
		ServerName:       sentryServerName,
		Environment:      sentryEnvironment,
		Release:          version,
		TracesSampleRate: sentryTraceRate,
		// terror rewrites the stack so every captured trace looks alike
		AttachStacktrace: false,
	})
	if err != nil {
		return terror.Error(fmt.Errorf("sentry init failed: %v", err))
	}
	log.Info().Msg("Sentry Initialised")
	return nil
}

// MintTags labels an event with the error kind and, for pipeline failures, the stage that failed
func MintTags(err error) map[string]string {
	tags := map[string]string{"kind": nftminter.KindName(err)}
	if stage := mint.StageOf(err); stage != "" {
		tags["stage"] = string(stage)
	}
	return tags
}

func LogToSentry(sentryHub *sentry.Hub, level sentry.Level, msg string, echo string, tags map[string]string) {
	sentryHub.WithScope(func(scope *sentry.Scope) {
		scope.SetLevel(level)
		scope.SetTags(tags)
		scope.SetExtra("friendly_message", msg)
		scope.SetExtra("echo", echo)

		sentryHub.CaptureMessage(msg)
	})
}
