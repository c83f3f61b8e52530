package api

import (
	"context"
	"net/http"
	"nftminter"
	"nftminter/ledger"
	"nftminter/log_helpers"
	"nftminter/mint"
	"nftminter/passlog"
	"time"

	"github.com/ethereum/go-ethereum/common"
	sentryhttp "github.com/getsentry/sentry-go/http"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/microcosm-cc/bluemonday"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
)

type Minter interface {
	MintOne(ctx context.Context, req *mint.OneRequest) (*mint.Outcome, error)
	MintBatch(ctx context.Context, req *mint.BatchRequest) (*mint.Outcome, error)
}

type RecordReader interface {
	NFTRecord(ctx context.Context, tokenID uint64) (*nftminter.NFTRecord, error)
	GasRecord(ctx context.Context, txHash common.Hash) (*nftminter.GasRecord, error)
}

type ListingReader interface {
	GetNFTItem(ctx context.Context, tokenID uint64) (*ledger.NFTItem, error)
}

// API server
type API struct {
	Log          *zerolog.Logger
	Routes       chi.Router
	Addr         string
	HTMLSanitize *bluemonday.Policy

	Minter   Minter
	Records  RecordReader
	Listings ListingReader
}

type Config struct {
	Addr           string
	AllowedOrigins []string
	// MaxUploadBytes caps the multipart body of mint requests
	MaxUploadBytes int64
}

// NewAPI registers routes
func NewAPI(
	log *zerolog.Logger,
	config *Config,
	htmlSanitize *bluemonday.Policy,
	minter Minter,
	records RecordReader,
	listings ListingReader,
	checks ...HealthCheck,
) *API {
	api := &API{
		Log:          log_helpers.NamedLogger(log, "api"),
		Routes:       chi.NewRouter(),
		Addr:         config.Addr,
		HTMLSanitize: htmlSanitize,
		Minter:       minter,
		Records:      records,
		Listings:     listings,
	}

	maxUpload := config.MaxUploadBytes
	if maxUpload <= 0 {
		maxUpload = defaultMaxUploadBytes
	}

	api.Routes.Use(middleware.RequestID)
	api.Routes.Use(middleware.RealIP)
	api.Routes.Use(passlog.ChiLogger(zerolog.InfoLevel))
	api.Routes.Use(middleware.Recoverer)
	api.Routes.Use(cors.New(cors.Options{
		AllowedOrigins: config.AllowedOrigins,
		AllowedMethods: []string{http.MethodGet, http.MethodPost, http.MethodOptions},
	}).Handler)

	api.Routes.Handle("/metrics", promhttp.Handler())
	api.Routes.Mount("/health_check", CheckRouter(log_helpers.NamedLogger(log, "check router"), checks...))
	api.Routes.Route("/api", func(r chi.Router) {
		sentryHandler := sentryhttp.New(sentryhttp.Options{})
		r.Use(sentryHandler.Handle)

		mc := &MintController{API: api, maxUploadBytes: maxUpload}
		r.Post("/mint", WithError(api.Log, mc.MintOne))
		r.Post("/mint/batch", WithError(api.Log, mc.MintBatch))

		r.Get("/nfts/{token_id}", WithError(api.Log, api.NFTRecordGet))
		r.Get("/nfts/{token_id}/listing", WithError(api.Log, api.ListingGet))
		r.Get("/gas/{tx_hash}", WithError(api.Log, api.GasRecordGet))
	})

	return api
}

// Run the API service
func (api *API) Run(ctx context.Context) error {
	api.Log.Info().Str("addr", api.Addr).Msg("Starting API")

	server := &http.Server{
		Addr:              api.Addr,
		Handler:           api.Routes,
		ReadHeaderTimeout: 10 * time.Second,
	}

	go func() {
		<-ctx.Done()
		api.Log.Info().Msg("Stopping API")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		err := server.Shutdown(shutdownCtx)
		if err != nil {
			api.Log.Warn().Err(err).Msg("")
		}
	}()

	err := server.ListenAndServe()
	if err == http.ErrServerClosed {
		return nil
	}
	return err
}
