package log_helpers

import (
	"errors"

	"github.com/getsentry/sentry-go"
	"github.com/ninja-software/terror/v2"
	"github.com/rs/zerolog"
)

// TerrorEcho logs err at its terror level and forwards it, tagged with MintTags, to sentry when a hub is given
func TerrorEcho(sentryHub *sentry.Hub, err error, log *zerolog.Logger) {
	msg := err.Error()
	level := terror.GetLevel(err)
	var bErr *terror.TError
	if errors.As(err, &bErr) {
		msg = bErr.Message
		// pipeline errors wrap the terror, so read the level from the one found
		level = bErr.Level
	}

	sentryLevel := sentry.LevelError
	var evt *zerolog.Event
	switch level {
	case terror.ErrLevelPanic:
		sentryLevel = sentry.LevelFatal
		// using WithLevel to prevent zerolog from calling `panic()`
		evt = log.WithLevel(zerolog.PanicLevel)
	case terror.ErrLevelError:
		evt = log.Error()
	case terror.ErrLevelWarn:
		sentryLevel = sentry.LevelWarning
		evt = log.Warn()
	default:
		evt = log.Info()
	}
	evt.Err(err).Msg(msg)

	if sentryHub != nil {
		LogToSentry(sentryHub, sentryLevel, msg, terror.Echo(err, false), MintTags(err))
	}
}
