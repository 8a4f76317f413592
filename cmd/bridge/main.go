package main

import (
	"context"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"

	"printbridge/pkg/api"
	"printbridge/pkg/config"
	"printbridge/pkg/health"
	"printbridge/pkg/logger"
	"printbridge/pkg/pool"
	"printbridge/pkg/session"
	"printbridge/pkg/spool"
	"printbridge/pkg/storage"
)

const bridgeVersion = "1.0.0"

func main() {
	configPath := flag.String("config", "", "Config file path (optional)")
	controllerURL := flag.String("controller", "", "Controller WebSocket URL (overrides config)")
	identity := flag.String("identity", "", "Bridge identity (overrides config)")
	apiAddr := flag.String("addr", "", "Local API address (overrides config)")
	logLevel := flag.String("log-level", "", "Log level: debug, info, warn, error")
	logFormat := flag.String("log-format", "", "Log format: text or json")
	noUplink := flag.Bool("no-uplink", false, "Run without a controller session (local API only)")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Command-line flags win over file and environment
	if *controllerURL != "" {
		cfg.Controller.URL = *controllerURL
	}
	if *identity != "" {
		cfg.Controller.Identity = *identity
	}
	if *apiAddr != "" {
		cfg.API.Address = *apiAddr
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	if *logFormat != "" {
		cfg.Logging.Format = *logFormat
	}
	if cfg.Controller.Identity == "" {
		hostname, _ := os.Hostname()
		cfg.Controller.Identity = hostname
	}

	logger.Init(logger.Level(cfg.Logging.Level), cfg.Logging.Format)
	log := logger.Get()

	log.Info("bridge starting", "version", bridgeVersion, "identity", cfg.Controller.Identity)

	monitor := health.NewMonitor()

	// Printer registry
	store, err := storage.NewStore(cfg.Database)
	if err != nil {
		log.ErrorWithErr("failed to open printer registry", err, "type", cfg.Database.Type)
		monitor.SetComponentStatus(health.ComponentStorage, health.StatusUnhealthy, err.Error())
		store = nil
	} else {
		monitor.SetComponentStatus(health.ComponentStorage, health.StatusHealthy, "registry open")
		defer store.Close()
	}

	// Printer connection pool
	pools := pool.NewManager(pool.Config{
		MaxConnsPerEndpoint: cfg.Pool.MaxConnsPerEndpoint,
		ConnectTimeout:      time.Duration(cfg.Pool.ConnectTimeoutMs) * time.Millisecond,
		WaitTimeout:         time.Duration(cfg.Pool.WaitTimeoutMs) * time.Millisecond,
		IdleTimeout:         time.Duration(cfg.Pool.IdleTimeoutSec) * time.Second,
		CleanupInterval:     time.Duration(cfg.Pool.CleanupIntervalSec) * time.Second,
	})
	defer pools.CloseAll()
	monitor.SetComponentStatus(health.ComponentPool, health.StatusHealthy, "pool ready")

	cleanerCtx, stopCleaner := context.WithCancel(context.Background())
	defer stopCleaner()
	pools.StartCleaner(cleanerCtx)

	spooler := spool.NewService(pools, log)

	// Controller uplink
	var sess *session.Session
	if !*noUplink {
		var resolver session.EndpointResolver
		if store != nil {
			resolver = storage.NewPrinterResolver(store)
		}

		sess = session.NewSession(session.Config{
			URL:                  cfg.Controller.URL,
			Identity:             cfg.Controller.Identity,
			Version:              bridgeVersion,
			HandshakeTimeout:     time.Duration(cfg.Controller.HandshakeTimeout) * time.Second,
			HeartbeatInterval:    time.Duration(cfg.Controller.HeartbeatInterval) * time.Second,
			ReconnectBaseDelay:   time.Duration(cfg.Controller.ReconnectBaseDelayMs) * time.Millisecond,
			ReconnectMaxDelay:    time.Duration(cfg.Controller.ReconnectMaxDelayMs) * time.Millisecond,
			MaxReconnectAttempts: cfg.Controller.MaxReconnectAttempts,
			InsecureSkipVerify:   cfg.Controller.InsecureSkipVerify,
		}, spooler, resolver, monitor, log)

		if err := sess.Connect(); err != nil {
			// The local API keeps serving; the operator can restart once
			// the controller is reachable
			log.ErrorWithErr("initial controller connection failed", err, "url", cfg.Controller.URL)
		}
		defer sess.Disconnect()
	} else {
		log.Info("running without controller uplink")
	}

	// Local HTTP API
	if cfg.Logging.Level != "debug" {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery())

	handler := api.NewHandler(spooler, pools, store, sess, monitor, cfg.API.Token, log)
	handler.RegisterRoutes(router)

	srv := &http.Server{
		Addr:    cfg.API.Address,
		Handler: router,
	}

	errorChan := make(chan error, 1)
	go func() {
		log.Info("local API listening", "address", cfg.API.Address)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errorChan <- err
		}
	}()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGQUIT)

	select {
	case sig := <-sigChan:
		log.Info("received signal", "signal", sig.String())
	case err := <-errorChan:
		log.ErrorWithErr("local API failed", err)
	}

	log.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.ErrorWithErr("error during API shutdown", err)
	}

	log.Info("bridge stopped")
}
