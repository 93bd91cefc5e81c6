package main

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/dgraph-io/badger/v3"
	"github.com/spf13/cobra"

	"github.com/squall-chua/mongofacade/auth"
	"github.com/squall-chua/mongofacade/backend"
	"github.com/squall-chua/mongofacade/backend/olap"
	"github.com/squall-chua/mongofacade/backend/oltp"
	"github.com/squall-chua/mongofacade/executor"
	"github.com/squall-chua/mongofacade/logging"
	"github.com/squall-chua/mongofacade/metrics"
	"github.com/squall-chua/mongofacade/wire"
)

var serveFlags struct {
	wireAddr string
	rpcAddr  string
	dataDir  string

	disableOLAP bool

	rowThreshold   int
	preferOlapAggs bool
	disableRouting bool
	redisAddr      string

	tlsEnabled  bool
	tlsCertFile string
	tlsKeyFile  string
	tlsCAFile   string

	authEnabled  bool
	authUser     string
	authPassword string
	authDB       string

	rpcAuthEnabled bool
	jwtSecret      string

	logLevel  string
	logFormat string
}

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the wire listener, the RPC surface, and the health/metrics endpoints",
		RunE:  runServe,
	}

	cmd.Flags().StringVar(&serveFlags.wireAddr, "wire-addr", ":27017", "address the BSON wire listener binds to")
	cmd.Flags().StringVar(&serveFlags.rpcAddr, "rpc-addr", ":8080", "address the HTTP/JSON RPC and health/metrics server binds to")
	cmd.Flags().StringVar(&serveFlags.dataDir, "data-dir", "mongofacade-data", "directory the OLTP backend stores its Badger files in")
	cmd.Flags().BoolVar(&serveFlags.disableOLAP, "disable-olap", false, "run with no OLAP backend; every read goes to OLTP")

	cmd.Flags().IntVar(&serveFlags.rowThreshold, "row-threshold", 0, "estimated-row-count floor that routes a read to OLAP (0 keeps the default)")
	cmd.Flags().BoolVar(&serveFlags.preferOlapAggs, "prefer-olap-aggregations", false, "route aggregate ops to OLAP when no other routing heuristic has decided the backend")
	cmd.Flags().BoolVar(&serveFlags.disableRouting, "disable-auto-routing", false, "force every read to OLTP; an explicit hint still applies")
	cmd.Flags().StringVar(&serveFlags.redisAddr, "redis-addr", "", "Redis address for sharing routing decisions across facade processes (empty keeps the cache in-process)")

	cmd.Flags().BoolVar(&serveFlags.tlsEnabled, "tls", false, "terminate TLS on the wire listener")
	cmd.Flags().StringVar(&serveFlags.tlsCertFile, "tls-cert-file", "", "PEM certificate file")
	cmd.Flags().StringVar(&serveFlags.tlsKeyFile, "tls-key-file", "", "PEM private key file")
	cmd.Flags().StringVar(&serveFlags.tlsCAFile, "tls-ca-file", "", "PEM CA bundle for verifying client certificates")

	cmd.Flags().BoolVar(&serveFlags.authEnabled, "auth", false, "require SCRAM-SHA-256 authentication on the wire listener")
	cmd.Flags().StringVar(&serveFlags.authUser, "auth-bootstrap-user", "", "username to provision in the in-memory credential store at startup")
	cmd.Flags().StringVar(&serveFlags.authPassword, "auth-bootstrap-password", "", "password for --auth-bootstrap-user")
	cmd.Flags().StringVar(&serveFlags.authDB, "auth-bootstrap-db", "admin", "authentication database recorded for --auth-bootstrap-user")

	cmd.Flags().BoolVar(&serveFlags.rpcAuthEnabled, "rpc-auth", false, "require a bearer JWT on the RPC surface")
	cmd.Flags().StringVar(&serveFlags.jwtSecret, "jwt-secret", "", "HMAC secret validating RPC bearer tokens, required when --rpc-auth is set")

	cmd.Flags().StringVar(&serveFlags.logLevel, "log-level", "info", "debug, info, warn, or error")
	cmd.Flags().StringVar(&serveFlags.logFormat, "log-format", "json", "json or text")

	return cmd
}

func runServe(cmd *cobra.Command, args []string) error {
	flags := serveFlags

	if flags.rpcAuthEnabled && flags.jwtSecret == "" {
		return fmt.Errorf("--jwt-secret is required when --rpc-auth is set")
	}

	logger := logging.New(logging.Config{Level: flags.logLevel, Format: flags.logFormat})
	log := logger.WithOperation("serve")

	oltpOpts := badger.DefaultOptions(flags.dataDir).WithLogger(nil)
	oltpStore, err := oltp.Open(oltpOpts)
	if err != nil {
		return fmt.Errorf("opening OLTP store: %w", err)
	}
	defer oltpStore.Close()

	var olapStore backend.Backend
	if !flags.disableOLAP {
		olapStore = olap.New()
	}

	engine := executor.New(oltpStore, olapStore)
	engine.Logger = logger
	engine.Metrics = metrics.Global()
	if flags.rowThreshold > 0 {
		engine.RouterConfig.RowThreshold = flags.rowThreshold
		engine.RouterConfig.LargeSampleThreshold = flags.rowThreshold
	}
	engine.RouterConfig.PreferOlapForAggregations = flags.preferOlapAggs
	engine.RouterConfig.AutoRoutingEnabled = !flags.disableRouting
	if flags.redisAddr != "" {
		engine.Cache = executor.NewChainedDecisionCache(flags.redisAddr, 5*time.Minute)
	} else {
		engine.Cache = executor.NewMemoryDecisionCache(5 * time.Minute)
	}

	var authSrv *auth.Server
	if flags.authEnabled {
		store := auth.NewMemoryStore()
		if flags.authUser != "" {
			if flags.authPassword == "" {
				return fmt.Errorf("--auth-bootstrap-password is required alongside --auth-bootstrap-user")
			}
			creds, err := auth.GenerateCredentials(flags.authDB, flags.authUser, flags.authPassword)
			if err != nil {
				return fmt.Errorf("provisioning bootstrap user: %w", err)
			}
			if err := store.Upsert(cmd.Context(), creds); err != nil {
				return fmt.Errorf("storing bootstrap user: %w", err)
			}
		}
		authSrv = auth.NewServer(store)
	}

	tlsCfg := wire.TLSConfig{
		Enabled:  flags.tlsEnabled,
		CertFile: flags.tlsCertFile,
		KeyFile:  flags.tlsKeyFile,
		CAFile:   flags.tlsCAFile,
	}
	wireSrv, err := wire.NewServer(engine, authSrv, tlsCfg, logger)
	if err != nil {
		return fmt.Errorf("building wire server: %w", err)
	}

	rpcRouter := wire.NewRPCRouter(engine, wire.RPCConfig{
		AuthEnabled: flags.rpcAuthEnabled,
		JWTSecret:   flags.jwtSecret,
	}, logger)
	rpcRouter.Handle("/metrics", metrics.Global().Handler())

	httpSrv := &http.Server{
		Addr:         flags.rpcAddr,
		Handler:      rpcRouter,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	wireLn, err := net.Listen("tcp", flags.wireAddr)
	if err != nil {
		return fmt.Errorf("binding wire listener: %w", err)
	}

	ctx, cancelServe := context.WithCancel(context.Background())
	defer cancelServe()

	wireErrs := make(chan error, 1)
	go func() { wireErrs <- wireSrv.Serve(ctx, wireLn) }()

	httpErrs := make(chan error, 1)
	go func() {
		log.Info("rpc surface listening", "addr", flags.rpcAddr)
		if err := httpSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			httpErrs <- err
			return
		}
		httpErrs <- nil
	}()

	log.Info("wire listener listening", "addr", flags.wireAddr, "tls", flags.tlsEnabled, "auth", flags.authEnabled)

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quit:
		log.Info("shutting down")
	case err := <-wireErrs:
		if err != nil {
			log.Error("wire listener failed", "error", err)
		}
	case err := <-httpErrs:
		if err != nil {
			log.Error("rpc server failed", "error", err)
		}
	}

	cancelServe()
	wireSrv.Drainer().StartDrain()
	// Closing the listener unblocks the accept loop so it can observe the
	// drain; new connections are refused from here on.
	_ = wireLn.Close()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := httpSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("rpc server forced shutdown", "error", err)
	}
	if err := wireSrv.Drainer().Wait(shutdownCtx); err != nil {
		log.Warn("wire connections did not drain in time", "error", err)
	}

	log.Info("stopped")
	return nil
}
