package passlog

import (
	"bytes"
	"encoding/json"
	"net/http"
	"nftminter/log_helpers"
	"os"
	"runtime/debug"
	"strings"
	"time"

	"github.com/DataDog/gostackparse"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"
)

var L *zerolog.Logger

func New(environment, level string) *zerolog.Logger {
	log := log_helpers.LoggerInitZero(environment, level)
	if environment == log_helpers.PRODUCTION || environment == log_helpers.STAGING {
		logPtr := zerolog.New(os.Stdout)
		logPtr = logPtr.With().Timestamp().Caller().Logger()
		log = &logPtr
	}
	log.Info().Msg("zerolog initialised")
	if L != nil {
		panic("passlog already initialised")
	}
	L = log
	return L
}

// LogPanicRecovery is intended to be used inside of a recover block.
//
// `r interface{}` is the empty interface returned from `recover()`
func LogPanicRecovery(msg string, r interface{}) {
	event := L.WithLevel(zerolog.PanicLevel).Interface("panic", r)
	s := debug.Stack()
	stack, errs := gostackparse.Parse(bytes.NewReader(s))
	if len(errs) != 0 {
		event = event.Errs("stack_parsing_errors", errs)
	}
	jStack, err := json.Marshal(stack)
	if err != nil {
		event.AnErr("stack_marshal_error", err).Msg(msg)
		return
	}
	event.RawJSON("stack", jStack).Msg(msg)
}

func ChiLogger(lvl zerolog.Level) func(next http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return middleware.RequestLogger(logFormatter{lvl: lvl})(next)
	}
}

type logFormatter struct {
	lvl zerolog.Level
}

func (l logFormatter) NewLogEntry(r *http.Request) middleware.LogEntry {
	return logEntry{
		requestID: middleware.GetReqID(r.Context()),
		userAgent: r.Header.Get("user-agent"),
		method:    r.Method,
		from:      r.RemoteAddr,
		path:      r.URL.Path,
		protocol:  r.Proto,
		lvl:       l.lvl,
	}
}

type logEntry struct {
	requestID string
	userAgent string
	method    string
	from      string
	path      string
	protocol  string
	lvl       zerolog.Level
}

func (l logEntry) Write(status int, bytes int, header http.Header, elapsed time.Duration, extra interface{}) {
	if strings.HasPrefix(l.path, "/health_check") || strings.HasPrefix(l.path, "/metrics") {
		return
	}

	L.WithLevel(l.lvl).
		Str("user_agent", l.userAgent).
		Str("request_id", l.requestID).
		Str("method", l.method).
		Str("from", l.from).
		Str("request_path", l.path).
		Str("protocol", l.protocol).
		Int("status", status).
		Int("bytes", bytes).
		Dur("duration", elapsed).
		Send()
}

func (l logEntry) Panic(v interface{}, stack []byte) {
	LogPanicRecovery("http handler panic", v)
}
