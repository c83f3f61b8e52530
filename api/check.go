package api

import (
	"context"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"
)

// HealthCheck is one dependency probe run by /health_check
type HealthCheck struct {
	Name  string
	Check func(ctx context.Context) error
}

// CheckController holds the probes for handlers
type CheckController struct {
	Checks []HealthCheck
	Log    *zerolog.Logger
}

func CheckRouter(log *zerolog.Logger, checks ...HealthCheck) chi.Router {
	c := &CheckController{
		Checks: checks,
		Log:    log,
	}
	r := chi.NewRouter()
	r.Get("/", c.Check)

	return r
}

func (c *CheckController) Check(w http.ResponseWriter, r *http.Request) {
	for _, check := range c.Checks {
		err := check.Check(r.Context())
		if err != nil {
			c.Log.Warn().Err(err).Str("check", check.Name).Msg("health check failed")
			w.WriteHeader(http.StatusServiceUnavailable)
			_, err = w.Write([]byte(check.Name + " unavailable"))
			if err != nil {
				c.Log.Err(err).Msg("failed to send")
			}
			return
		}
	}
	_, err := w.Write([]byte("ok"))
	if err != nil {
		c.Log.Err(err).Msg("failed to send")
	}
}
