package main

import (
	"context"
	"crypto/ecdsa"
	"errors"
	"fmt"
	"io/fs"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/ardanlabs/conf/v3"
	"github.com/ardanlabs/faucet/app/services/faucet/handlers"
	"github.com/ardanlabs/faucet/business/core/faucet"
	"github.com/ardanlabs/faucet/business/core/faucet/stores/memstore"
	"github.com/ardanlabs/faucet/business/core/faucet/stores/redisstore"
	"github.com/ardanlabs/faucet/business/core/faucet/stores/sqlstore"
	"github.com/ardanlabs/faucet/foundation/events"
	"github.com/ardanlabs/faucet/foundation/keystore"
	"github.com/ardanlabs/faucet/foundation/ledger"
	"github.com/ardanlabs/faucet/foundation/logger"
	"github.com/joho/godotenv"
	"go.uber.org/zap"
)

// build is the git version of this program. It is set using build flags in the makefile.
var build = "develop"

func main() {

	// Construct the application logger.
	log, err := logger.New("FAUCET")
	if err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
	defer log.Sync()

	// Perform the startup and shutdown sequence.
	if err := run(log); err != nil {
		log.Errorw("startup", "ERROR", err)
		log.Sync()
		os.Exit(1)
	}
}

func run(log *zap.SugaredLogger) error {

	// =========================================================================
	// Configuration

	// Values in a .env file are loaded into the environment first so they
	// can be overridden by the real environment and command line flags.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("loading .env file: %w", err)
	}

	// This is all the configuration for the application and the default values.
	// Configuration values will be passed through the application as individual
	// values.
	cfg := struct {
		conf.Version
		Web struct {
			ReadTimeout     time.Duration `conf:"default:5s"`
			WriteTimeout    time.Duration `conf:"default:60s"`
			IdleTimeout     time.Duration `conf:"default:120s"`
			ShutdownTimeout time.Duration `conf:"default:20s"`
			DebugHost       string        `conf:"default:0.0.0.0:7080"`
			PublicHost      string        `conf:"default:0.0.0.0:5500"`
			CorsOrigin      string        `conf:"default:*"`
			TrustProxy      bool          `conf:"default:false"`
		}
		Ledger struct {
			URL         string
			PrivateKey  string        `conf:"mask"`
			KeyFolder   string        `conf:"default:zblock/accounts/"`
			KeyName     string
			DialTimeout time.Duration `conf:"default:10s"`
		}
		Faucet struct {
			DripAmount         string        `conf:"default:0.05"`
			Cooldown           time.Duration `conf:"default:24h"`
			Difficulty         int           `conf:"default:4"`
			ChallengeRetention time.Duration `conf:"default:15m"`
			ChallengeValidity  time.Duration `conf:"default:10m"`
			ClaimRetention     time.Duration `conf:"default:48h"`
			SweepInterval      time.Duration `conf:"default:1h"`
			CooldownKey        string        `conf:"default:both"`
			WaitConfirm        bool          `conf:"default:true"`
			ConfirmTimeout     time.Duration `conf:"default:30s"`
		}
		Store struct {
			Backend    string `conf:"default:memory"`
			RedisURL   string `conf:"default:redis://localhost:6379/0,mask"`
			SQLitePath string `conf:"default:zblock/faucet.db"`
		}
	}{
		Version: conf.Version{
			Build: build,
			Desc:  "proof of work testnet faucet",
		},
	}

	// Parse will set the defaults and then look for any overriding values
	// in environment variables and command line flags.
	const prefix = "FAUCET"
	help, err := conf.Parse(prefix, &cfg)
	if err != nil {
		if errors.Is(err, conf.ErrHelpWanted) {
			fmt.Println(help)
			return nil
		}
		return fmt.Errorf("parsing config: %w", err)
	}

	// =========================================================================
	// App Starting

	log.Infow("starting service", "version", build)
	defer log.Infow("shutdown complete")

	// Display the current configuration to the logs.
	out, err := conf.String(&cfg)
	if err != nil {
		return fmt.Errorf("generating config for output: %w", err)
	}
	log.Infow("startup", "config", out)

	drip, err := ledger.ParseEther(cfg.Faucet.DripAmount)
	if err != nil {
		return fmt.Errorf("parsing drip amount: %w", err)
	}

	keyPolicy, err := faucet.ParseKeyPolicy(cfg.Faucet.CooldownKey)
	if err != nil {
		return err
	}

	// =========================================================================
	// Store Support

	log.Infow("startup", "status", "initializing stores", "backend", cfg.Store.Backend)

	var challenges faucet.ChallengeStore
	var claims faucet.ClaimStore
	var ping func(ctx context.Context) error

	switch cfg.Store.Backend {
	case "memory":
		challenges = memstore.NewChallenges(nil)
		claims = memstore.NewClaims()

	case "redis":
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Ledger.DialTimeout)
		client, err := redisstore.Open(ctx, cfg.Store.RedisURL)
		cancel()
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer client.Close()

		challenges = redisstore.NewChallenges(client)
		claims = redisstore.NewClaims(client, cfg.Faucet.ClaimRetention)
		ping = func(ctx context.Context) error { return client.Ping(ctx).Err() }

	case "sqlite":
		db, err := sqlstore.Open(cfg.Store.SQLitePath, nil)
		if err != nil {
			return fmt.Errorf("opening sqlite: %w", err)
		}
		defer db.Close()

		challenges = db.Challenges()
		claims = db.Claims()
		ping = db.Ping

	default:
		return fmt.Errorf("unknown store backend %q", cfg.Store.Backend)
	}

	// =========================================================================
	// Ledger Support

	// A faucet without a treasury still serves challenges and info but every
	// claim is refused.
	var treasury faucet.Ledger

	eth, err := dialLedger(log, cfg.Ledger.URL, cfg.Ledger.PrivateKey, cfg.Ledger.KeyFolder, cfg.Ledger.KeyName, cfg.Ledger.DialTimeout)
	switch {
	case err != nil:
		log.Errorw("startup", "status", "ledger not configured", "ERROR", err)
	case eth == nil:
		log.Infow("startup", "status", "ledger not configured", "reason", "no rpc url or treasury key")
	default:
		defer eth.Close()
		treasury = eth
		log.Infow("startup", "status", "ledger connected", "treasury", eth.Address(), "chainid", eth.ChainID())
	}

	// =========================================================================
	// Faucet Support

	// The faucet core accepts a function of this signature to allow the
	// application to log. These raw messages are also sent to any websocket
	// client that is connected into the system through the events package.
	evts := events.New()
	ev := func(v string, args ...any) {
		s := fmt.Sprintf(v, args...)
		log.Infow(s, "traceid", "00000000-0000-0000-0000-000000000000")
		evts.Send(s)
	}

	core, err := faucet.NewCore(faucet.Config{
		Log:                log,
		Ledger:             treasury,
		Challenges:         challenges,
		Claims:             claims,
		DripAmount:         drip,
		Difficulty:         cfg.Faucet.Difficulty,
		Cooldown:           cfg.Faucet.Cooldown,
		CooldownKey:        keyPolicy,
		ChallengeRetention: cfg.Faucet.ChallengeRetention,
		ChallengeValidity:  cfg.Faucet.ChallengeValidity,
		ClaimRetention:     cfg.Faucet.ClaimRetention,
		WaitConfirm:        cfg.Faucet.WaitConfirm,
		ConfirmTimeout:     cfg.Faucet.ConfirmTimeout,
		EvHandler:          ev,
	})
	if err != nil {
		return fmt.Errorf("constructing faucet: %w", err)
	}

	// The sweeper keeps the cooldown records from growing without bound.
	sweeper := core.StartSweeper(cfg.Faucet.SweepInterval)
	defer sweeper.Shutdown()

	// =========================================================================
	// Start Debug Service

	log.Infow("startup", "status", "debug v1 router started", "host", cfg.Web.DebugHost)

	// The Debug function returns a mux to listen and serve on for all the debug
	// related endpoints. This includes the standard library endpoints.

	// Construct the mux for the debug calls.
	debugMux := handlers.DebugMux(build, log, ping)

	// Start the service listening for debug requests.
	// Not concerned with shutting this down with load shedding.
	go func() {
		if err := http.ListenAndServe(cfg.Web.DebugHost, debugMux); err != nil {
			log.Errorw("shutdown", "status", "debug v1 router closed", "host", cfg.Web.DebugHost, "ERROR", err)
		}
	}()

	// =========================================================================
	// Service Start/Stop Support

	// Make a channel to listen for an interrupt or terminate signal from the OS.
	// Use a buffered channel because the signal package requires it.
	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	// Make a channel to listen for errors coming from the listener. Use a
	// buffered channel so the goroutine can exit if we don't collect this error.
	serverErrors := make(chan error, 1)

	// =========================================================================
	// Start Public Service

	log.Infow("startup", "status", "initializing V1 public API support")

	// Construct the mux for the public API calls.
	publicMux := handlers.PublicMux(handlers.MuxConfig{
		Shutdown:   shutdown,
		Log:        log,
		Core:       core,
		Evts:       evts,
		CorsOrigin: cfg.Web.CorsOrigin,
		TrustProxy: cfg.Web.TrustProxy,
	})

	// Construct a server to service the requests against the mux.
	public := http.Server{
		Addr:         cfg.Web.PublicHost,
		Handler:      publicMux,
		ReadTimeout:  cfg.Web.ReadTimeout,
		WriteTimeout: cfg.Web.WriteTimeout,
		IdleTimeout:  cfg.Web.IdleTimeout,
		ErrorLog:     zap.NewStdLog(log.Desugar()),
	}

	// Start the service listening for api requests.
	go func() {
		log.Infow("startup", "status", "public api router started", "host", public.Addr)
		serverErrors <- public.ListenAndServe()
	}()

	// =========================================================================
	// Shutdown

	// Blocking main and waiting for shutdown.
	select {
	case err := <-serverErrors:
		return fmt.Errorf("server error: %w", err)

	case sig := <-shutdown:
		log.Infow("shutdown", "status", "shutdown started", "signal", sig)
		defer log.Infow("shutdown", "status", "shutdown complete", "signal", sig)

		// Release any web sockets that are currently active.
		log.Infow("shutdown", "status", "shutdown web socket channels")
		evts.Shutdown()

		// Give outstanding requests a deadline for completion.
		ctx, cancel := context.WithTimeout(context.Background(), cfg.Web.ShutdownTimeout)
		defer cancel()

		// Asking listener to shut down and shed load.
		if err := public.Shutdown(ctx); err != nil {
			public.Close()
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
	}

	return nil
}

// dialLedger connects to the node with the treasury key. The key comes from
// the hex value if provided, otherwise from the named key file. A nil ledger
// with no error means the treasury was not configured.
func dialLedger(log *zap.SugaredLogger, url string, hexKey string, folder string, name string, timeout time.Duration) (*ledger.Ethereum, error) {
	if url == "" || (hexKey == "" && name == "") {
		return nil, nil
	}

	var pk *ecdsa.PrivateKey
	switch {
	case hexKey != "":
		key, err := keystore.ParseHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("parsing treasury key: %w", err)
		}
		pk = key

	default:
		ks, err := keystore.New(folder)
		if err != nil {
			return nil, fmt.Errorf("loading key folder: %w", err)
		}
		key, err := ks.Lookup(name)
		if err != nil {
			return nil, fmt.Errorf("looking up treasury key: %w", err)
		}
		pk = key
	}

	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	eth, err := ledger.Dial(ctx, url, pk)
	if err != nil {
		return nil, fmt.Errorf("dialing node: %w", err)
	}

	log.Infow("startup", "status", "treasury key loaded", "account", keystore.Address(pk))

	return eth, nil
}
