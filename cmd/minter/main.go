package main

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"nftminter"
	"nftminter/api"
	"nftminter/db"
	"nftminter/ipfs"
	"nftminter/ledger"
	"nftminter/log_helpers"
	"nftminter/metadata"
	"nftminter/mint"
	"nftminter/passlog"
	"os"
	"os/signal"
	"path/filepath"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/go-co-op/gocron"
	"github.com/jackc/pgx/v4"
	"github.com/jackc/pgx/v4/pgxpool"
	_ "github.com/lib/pq" //postgres drivers for initialization
	"github.com/microcosm-cc/bluemonday"
	"github.com/ninja-software/terror/v2"
	"github.com/oklog/run"
	"github.com/rs/zerolog"
	"github.com/urfave/cli/v2"
)

// Variable passed in at compile time using `-ldflags`
var (
	Version          string // -X main.Version=$(git describe --tags --abbrev=0)
	GitHash          string // -X main.GitHash=$(git rev-parse HEAD)
	GitBranch        string // -X main.GitBranch=$(git rev-parse --abbrev-ref HEAD)
	BuildDate        string // -X main.BuildDate=$(date -u +%Y%m%d%H%M%S)
	UnCommittedFiles string // -X main.UnCommittedFiles=$(git status --porcelain | wc -l)"
)

const SentryReleasePrefix = "nftminter_api"
const envPrefix = "MINTER"

func envVars(name string, fallbacks ...string) []string {
	return append([]string{envPrefix + "_" + name}, fallbacks...)
}

func databaseFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "database_user", Value: "minter", EnvVars: envVars("DATABASE_USER", "DATABASE_USER"), Usage: "The database user"},
		&cli.StringFlag{Name: "database_pass", Value: "dev", EnvVars: envVars("DATABASE_PASS", "DATABASE_PASS"), Usage: "The database pass"},
		&cli.StringFlag{Name: "database_host", Value: "localhost", EnvVars: envVars("DATABASE_HOST", "DATABASE_HOST"), Usage: "The database host"},
		&cli.StringFlag{Name: "database_port", Value: "5432", EnvVars: envVars("DATABASE_PORT", "DATABASE_PORT"), Usage: "The database port"},
		&cli.StringFlag{Name: "database_name", Value: "minter", EnvVars: envVars("DATABASE_NAME", "DATABASE_NAME"), Usage: "The database name"},
		&cli.StringFlag{Name: "database_application_name", Value: "API Server", EnvVars: envVars("DATABASE_APPLICATION_NAME"), Usage: "Postgres database name"},
	}
}

func logFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{Name: "environment", Value: "development", DefaultText: "development", EnvVars: envVars("ENVIRONMENT", "ENVIRONMENT"), Usage: "This program environment (development, testing, training, staging, production), it sets the log levels"},
		&cli.StringFlag{Name: "log_level", Value: "DebugLevel", EnvVars: envVars("LOG_LEVEL"), Usage: "Set the log level for zerolog (Options: PanicLevel, FatalLevel, ErrorLevel, WarnLevel, InfoLevel, DebugLevel, TraceLevel"},
	}
}

func pipelineFlags() []cli.Flag {
	return []cli.Flag{
		// storage network
		&cli.StringFlag{Name: "pinning_api_url", Value: ipfs.DefaultAPIURL, EnvVars: envVars("PINNING_API_URL"), Usage: "Base URL of the IPFS pinning service"},
		&cli.StringFlag{Name: "pinning_jwt", Value: "", EnvVars: envVars("PINNING_JWT"), Usage: "Bearer token for the pinning service"},
		&cli.StringFlag{Name: "gateway_host", Value: "gateway.pinata.cloud", EnvVars: envVars("GATEWAY_HOST"), Usage: "Public IPFS gateway host used in metadata image links"},
		&cli.Float64Flag{Name: "uploads_per_second", Value: 3, EnvVars: envVars("UPLOADS_PER_SECOND"), Usage: "Local upload rate in front of the pinning service, 0 to disable"},
		&cli.Int64Flag{Name: "upload_burst", Value: 3, EnvVars: envVars("UPLOAD_BURST"), Usage: "Uploads allowed in a burst"},
		&cli.DurationFlag{Name: "upload_timeout", Value: 60 * time.Second, EnvVars: envVars("UPLOAD_TIMEOUT"), Usage: "Timeout of a single upload request"},

		// ledger
		&cli.StringFlag{Name: "node_addr", Value: "http://127.0.0.1:8545", EnvVars: envVars("NODE_ADDR"), Usage: "JSON-RPC or WS node URL"},
		&cli.Int64Flag{Name: "chain_id", Value: 31337, EnvVars: envVars("CHAIN_ID"), Usage: "Chain ID used when signing"},
		&cli.StringFlag{Name: "contract_addr", Value: "", EnvVars: envVars("CONTRACT_ADDR"), Usage: "Collectible contract address"},
		&cli.StringFlag{Name: "signer_private_key", Value: "", EnvVars: envVars("SIGNER_PRIVATE_KEY"), Usage: "Private key of the minting account"},
		&cli.DurationFlag{Name: "confirm_timeout", Value: 5 * time.Minute, EnvVars: envVars("CONFIRM_TIMEOUT"), Usage: "How long to wait for a mint transaction receipt"},
	}
}

func main() {
	app := &cli.App{
		Compiled: time.Now(),
		Usage:    "Run the NFT minting server or database administration commands",
		Flags:    []cli.Flag{},
		Commands: []*cli.Command{
			{
				// This is not using the built in version so ansible can more easily read the version
				Name: "version",
				Flags: []cli.Flag{
					&cli.BoolFlag{Name: "full", Usage: "Prints full version and build info", Value: false},
				},
				Action: func(c *cli.Context) error {
					if c.Bool("full") {
						fmt.Printf("Version=%s\n", Version)
						fmt.Printf("Commit=%s\n", GitHash)
						fmt.Printf("Branch=%s\n", GitBranch)
						fmt.Printf("BuildDate=%s\n", BuildDate)
						fmt.Printf("WorkingCopyState=%s uncommitted\n", UnCommittedFiles)
						return nil
					}
					fmt.Printf("%s-\n", Version)
					return nil
				},
			},
			{
				Name:    "serve",
				Aliases: []string{"s"},
				Flags: concat(databaseFlags(), logFlags(), pipelineFlags(), []cli.Flag{
					&cli.StringFlag{Name: "sentry_dsn_backend", Value: "", EnvVars: envVars("SENTRY_DSN_BACKEND", "SENTRY_DSN_BACKEND"), Usage: "Sends error to remote server. If set, it will send error."},
					&cli.StringFlag{Name: "sentry_server_name", Value: "dev-pc", EnvVars: envVars("SENTRY_SERVER_NAME", "SENTRY_SERVER_NAME"), Usage: "The machine name that this program is running on."},
					&cli.Float64Flag{Name: "sentry_sample_rate", Value: 1, EnvVars: envVars("SENTRY_SAMPLE_RATE", "SENTRY_SAMPLE_RATE"), Usage: "The percentage of trace sample to collect (0.0-1)"},

					&cli.StringFlag{Name: "api_addr", Value: ":8086", EnvVars: envVars("API_ADDR", "API_ADDR"), Usage: "host:port to run the API"},
					&cli.StringSliceFlag{Name: "allowed_origins", Value: cli.NewStringSlice("http://localhost:5003"), EnvVars: envVars("ALLOWED_ORIGINS"), Usage: "Origins allowed by CORS"},
					&cli.Int64Flag{Name: "max_upload_bytes", Value: 200 << 20, EnvVars: envVars("MAX_UPLOAD_BYTES"), Usage: "Largest accepted mint request body"},
				}),
				Usage: "run server",
				Action: func(c *cli.Context) error {
					ctx, cancel := context.WithCancel(c.Context)
					defer cancel()
					log := passlog.New(c.String("environment"), c.String("log_level"))

					g := &run.Group{}
					// Listen for os.interrupt
					g.Add(run.SignalHandler(ctx, os.Interrupt))
					// start the server
					g.Add(func() error { return ServeFunc(ctx, c, log) }, func(err error) { cancel() })

					err := g.Run()
					if errors.Is(err, run.SignalError{Signal: os.Interrupt}) {
						err = terror.Warn(err)
					}
					if err != nil {
						log_helpers.TerrorEcho(nil, err, log)
					}
					return nil
				},
			},
			{
				Name:  "db",
				Usage: "database administration commands",
				Subcommands: []*cli.Command{
					{
						Name:  "migrate",
						Flags: concat(databaseFlags(), logFlags()),
						Usage: "apply database migrations",
						Action: func(c *cli.Context) error {
							log := passlog.New(c.String("environment"), c.String("log_level"))

							conn, err := sqlConnect(
								c.String("database_user"),
								c.String("database_pass"),
								c.String("database_host"),
								c.String("database_port"),
								c.String("database_name"),
							)
							if err != nil {
								return terror.Error(err)
							}
							defer conn.Close()

							err = db.Migrate(conn)
							if err != nil {
								return terror.Error(err, "could not migrate database")
							}
							log.Info().Msg("database migrated")
							return nil
						},
					},
				},
			},
			{
				Name: "mint",
				Flags: concat(databaseFlags(), logFlags(), pipelineFlags(), []cli.Flag{
					&cli.StringFlag{Name: "file", Required: true, Usage: "Path of the image to mint"},
					&cli.StringFlag{Name: "name", Required: true, Usage: "Token name"},
					&cli.StringFlag{Name: "description", Required: true, Usage: "Token description"},
					&cli.StringFlag{Name: "attributes", Value: "", Usage: "JSON list of trait_type and value"},
					&cli.IntFlag{Name: "royalty", Value: api.DefaultRoyaltyNumerator, Usage: "Royalty numerator over 10000, at most 1000"},
					&cli.StringFlag{Name: "recipient", Required: true, Usage: "Address receiving the token"},
				}),
				Usage: "mint a single image from the command line",
				Action: func(c *cli.Context) error {
					log := passlog.New(c.String("environment"), c.String("log_level"))
					ctx := c.Context

					data, err := os.ReadFile(c.String("file"))
					if err != nil {
						return terror.Error(err, "could not read image")
					}
					asset, err := nftminter.AssetFromBytes(filepath.Base(c.String("file")), data)
					if err != nil {
						return err
					}
					var attributes []nftminter.Attribute
					if raw := c.String("attributes"); raw != "" {
						err = json.Unmarshal([]byte(raw), &attributes)
						if err != nil {
							return nftminter.ValidationError(err, "Attributes must be a JSON list of trait_type and value.")
						}
					}
					recipient, err := nftminter.ParseRecipient(c.String("recipient"))
					if err != nil {
						return err
					}

					deps, err := connectPipeline(ctx, c, log)
					if err != nil {
						return err
					}
					defer deps.close()

					out, err := deps.orchestrator.MintOne(ctx, &mint.OneRequest{
						Asset:            asset,
						Name:             c.String("name"),
						Description:      c.String("description"),
						Attributes:       attributes,
						RoyaltyNumerator: c.Int("royalty"),
						Recipient:        recipient,
					})
					printJSON(out)
					return err
				},
			},
			{
				Name: "reconcile",
				Flags: concat(databaseFlags(), logFlags(), pipelineFlags(), []cli.Flag{
					&cli.IntFlag{Name: "limit", Value: 100, Usage: "Most recent gas records to check"},
					&cli.DurationFlag{Name: "every", Value: 0, Usage: "Repeat the check on this interval instead of running once"},
				}),
				Usage: "report confirmed mints whose NFT records are missing",
				Action: func(c *cli.Context) error {
					log := passlog.New(c.String("environment"), c.String("log_level"))
					ctx, stop := signal.NotifyContext(c.Context, os.Interrupt)
					defer stop()

					deps, err := connectPipeline(ctx, c, log)
					if err != nil {
						return err
					}
					defer deps.close()

					reconciler := mint.NewReconciler(deps.ledger, deps.store, c.Int("limit"), log)
					check := func() {
						report, err := reconciler.Run(ctx)
						if err != nil {
							log_helpers.TerrorEcho(nil, err, log)
							return
						}
						printJSON(report)
					}

					every := c.Duration("every")
					if every <= 0 {
						check()
						return nil
					}

					s := gocron.NewScheduler(time.UTC)
					_, err = s.Every(every).Do(check)
					if err != nil {
						return terror.Error(err, "could not schedule reconcile")
					}
					go func() {
						<-ctx.Done()
						s.Stop()
					}()
					s.StartBlocking()
					return nil
				},
			},
		},
	}

	err := app.Run(os.Args)
	if err != nil {
		terror.Echo(err)
		os.Exit(1) // so ci knows it no good
	}
}

func concat(sets ...[]cli.Flag) []cli.Flag {
	var out []cli.Flag
	for _, s := range sets {
		out = append(out, s...)
	}
	return out
}

func printJSON(v interface{}) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		terror.Echo(err)
		return
	}
	fmt.Println(string(b))
}

// pipeline holds the connected components shared by serve, mint and reconcile
type pipeline struct {
	pool         *pgxpool.Pool
	store        *db.Store
	ledger       *ledger.Client
	orchestrator *mint.Orchestrator
}

func (p *pipeline) close() {
	p.pool.Close()
}

func pipelineConfig(c *cli.Context) (*nftminter.Config, error) {
	contractAddr := c.String("contract_addr")
	if !common.IsHexAddress(contractAddr) {
		return nil, terror.Error(fmt.Errorf("invalid contract address %q", contractAddr), "missing contract address")
	}
	return &nftminter.Config{
		Environment: c.String("environment"),
		StorageParams: &nftminter.StorageParams{
			PinningAPIURL:    c.String("pinning_api_url"),
			PinningJWT:       c.String("pinning_jwt"),
			GatewayHost:      c.String("gateway_host"),
			UploadsPerSecond: c.Float64("uploads_per_second"),
			UploadBurst:      c.Int64("upload_burst"),
			RequestTimeout:   c.Duration("upload_timeout"),
		},
		LedgerParams: &nftminter.LedgerParams{
			NodeAddr:         c.String("node_addr"),
			ChainID:          c.Int64("chain_id"),
			ContractAddr:     common.HexToAddress(contractAddr),
			SignerPrivateKey: c.String("signer_private_key"),
			ConfirmTimeout:   c.Duration("confirm_timeout"),
			PollMin:          time.Second,
			PollMax:          15 * time.Second,
		},
	}, nil
}

func connectPipeline(ctx context.Context, c *cli.Context, log *zerolog.Logger) (*pipeline, error) {
	config, err := pipelineConfig(c)
	if err != nil {
		return nil, err
	}

	pgxconn, err := pgxconnect(
		c.String("database_user"),
		c.String("database_pass"),
		c.String("database_host"),
		c.String("database_port"),
		c.String("database_name"),
		c.String("database_application_name"),
		Version,
	)
	if err != nil {
		return nil, terror.Error(err)
	}

	ledgerClient, err := ledger.Dial(ctx, config.LedgerParams, log_helpers.NamedLogger(log, "ledger"))
	if err != nil {
		pgxconn.Close()
		return nil, err
	}

	storage := ipfs.NewClient(config.StorageParams, log_helpers.NamedLogger(log, "ipfs"))
	store := db.NewStore(pgxconn, log_helpers.NamedLogger(log, "store"))
	composer := metadata.NewComposer(storage, storage.GatewayHost())

	orchestrator := mint.NewOrchestrator(
		storage,
		composer,
		ledgerClient,
		store,
		log_helpers.NamedLogger(log, "mint"),
		mint.WithStager(store),
	)

	return &pipeline{
		pool:         pgxconn,
		store:        store,
		ledger:       ledgerClient,
		orchestrator: orchestrator,
	}, nil
}

func ServeFunc(ctx context.Context, ctxCLI *cli.Context, log *zerolog.Logger) error {
	environment := ctxCLI.String("environment")
	sentryDSNBackend := ctxCLI.String("sentry_dsn_backend")
	sentryServerName := ctxCLI.String("sentry_server_name")
	sentryTraceRate := ctxCLI.Float64("sentry_sample_rate")
	sentryRelease := fmt.Sprintf("%s@%s", SentryReleasePrefix, Version)
	err := log_helpers.SentryInit(sentryDSNBackend, sentryServerName, sentryRelease, environment, sentryTraceRate, log)
	switch errors.Unwrap(err) {
	case log_helpers.ErrSentryInitEnvironment:
		return terror.Error(err, fmt.Sprintf("got environment %s", environment))
	case log_helpers.ErrSentryInitDSN, log_helpers.ErrSentryInitVersion:
		if terror.GetLevel(err) == terror.ErrLevelPanic {
			// if the level is panic then in a prod environment
			// so keep panicing
			return terror.Panic(err)
		}
	default:
		if err != nil {
			return terror.Error(err)
		}
	}

	deps, err := connectPipeline(ctx, ctxCLI, log)
	if err != nil {
		return err
	}
	defer deps.close()

	checks := []api.HealthCheck{
		{
			Name: "database",
			Check: func(ctx context.Context) error {
				dirty, err := db.SchemaDirty(ctx, deps.pool)
				if err != nil {
					return err
				}
				if dirty {
					return fmt.Errorf("schema migration left dirty")
				}
				return nil
			},
		},
		{Name: "ledger", Check: deps.ledger.Ping},
	}

	apiServer := api.NewAPI(
		log,
		&api.Config{
			Addr:           ctxCLI.String("api_addr"),
			AllowedOrigins: ctxCLI.StringSlice("allowed_origins"),
			MaxUploadBytes: ctxCLI.Int64("max_upload_bytes"),
		},
		bluemonday.StrictPolicy(),
		deps.orchestrator,
		deps.store,
		deps.ledger,
		checks...,
	)

	return apiServer.Run(ctx)
}

func pgxconnect(
	DatabaseUser string,
	DatabasePass string,
	DatabaseHost string,
	DatabasePort string,
	DatabaseName string,
	DatabaseApplicationName string,
	APIVersion string,
) (*pgxpool.Pool, error) {
	params := url.Values{}
	params.Add("sslmode", "disable")
	if DatabaseApplicationName != "" {
		params.Add("application_name", fmt.Sprintf("%s %s", DatabaseApplicationName, APIVersion))
	}

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?%s",
		DatabaseUser,
		DatabasePass,
		DatabaseHost,
		DatabasePort,
		DatabaseName,
		params.Encode(),
	)

	poolConfig, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, terror.Panic(err, "could not initialise database")
	}
	poolConfig.ConnConfig.LogLevel = pgx.LogLevelTrace
	poolConfig.MaxConns = 20

	ctx := context.Background()
	conn, err := pgxpool.ConnectConfig(ctx, poolConfig)
	if err != nil {
		return nil, terror.Panic(err, "could not initialise database")
	}

	return conn, nil
}

func sqlConnect(
	databaseUser string,
	databasePass string,
	databaseHost string,
	databasePort string,
	databaseName string,
) (*sql.DB, error) {
	params := url.Values{}
	params.Add("sslmode", "disable")

	connString := fmt.Sprintf("postgres://%s:%s@%s:%s/%s?%s",
		databaseUser,
		databasePass,
		databaseHost,
		databasePort,
		databaseName,
		params.Encode(),
	)

	conn, err := sql.Open("postgres", connString)
	if err != nil {
		return nil, terror.Error(err)
	}

	return conn, nil
}
