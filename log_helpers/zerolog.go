package log_helpers

import (
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

func NamedLogger(logger *zerolog.Logger, name string) *zerolog.Logger {
	log := logger.With().Str("name", name).Logger()
	return &log
}

// LoggerInitZero builds the console logger. level accepts zerolog names ("debug")
// or the long form used in env files ("DebugLevel").
func LoggerInitZero(environment string, level string) *zerolog.Logger {
	output := loggerStdout(environment)
	log := zerolog.New(output).With().Timestamp().Logger()

	if lvl, ok := parseLevel(level); ok {
		zerolog.SetGlobalLevel(lvl)
	}
	return &log
}

func parseLevel(level string) (zerolog.Level, bool) {
	level = strings.TrimSuffix(strings.ToLower(strings.TrimSpace(level)), "level")
	if level == "" {
		return zerolog.NoLevel, false
	}
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		return zerolog.NoLevel, false
	}
	return lvl, true
}

func loggerStdout(environment string) zerolog.ConsoleWriter {
	output := zerolog.NewConsoleWriter()

	if environment != DEVELOPMENT {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
		output.TimeFormat = time.RFC3339

		output.FormatLevel = func(i interface{}) string {
			return strings.ToUpper(fmt.Sprintf("| %-6s|", i))
		}
		output.FormatMessage = func(i interface{}) string {
			if i == nil {
				return "no msg"
			}
			return fmt.Sprintf("%s", i)
		}
	} else {
		zerolog.SetGlobalLevel(zerolog.TraceLevel)
	}
	return output
}
