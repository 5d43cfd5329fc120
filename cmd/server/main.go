package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aristath/trigger-engine/internal/broker"
	"github.com/aristath/trigger-engine/internal/broker/httpbroker"
	"github.com/aristath/trigger-engine/internal/config"
	"github.com/aristath/trigger-engine/internal/dispatcher"
	"github.com/aristath/trigger-engine/internal/httpapi"
	"github.com/aristath/trigger-engine/internal/maintenance"
	"github.com/aristath/trigger-engine/internal/notify"
	"github.com/aristath/trigger-engine/internal/quote"
	"github.com/aristath/trigger-engine/internal/quote/httpsource"
	"github.com/aristath/trigger-engine/internal/registry"
	"github.com/aristath/trigger-engine/internal/scheduler"
	"github.com/aristath/trigger-engine/internal/store"
	"github.com/aristath/trigger-engine/pkg/logger"
)

func main() {
	log := logger.New(logger.Config{Level: "info", Pretty: true})
	logger.SetGlobalLogger(log)

	log.Info().Msg("starting trigger engine")

	cfg, err := config.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("failed to load configuration")
	}
	log = logger.New(logger.Config{Level: cfg.LogLevel, Pretty: cfg.DevMode})

	fileStore, err := store.New(cfg.StoreRoot, cfg.LockTimeout, log)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to open store")
	}

	reg := registry.New(fileStore, log)

	maint := maintenance.New(log)
	maint.Start()
	defer maint.Stop()

	brokerServiceURL := envOr("BROKER_SERVICE_URL", "http://localhost:9100")
	pool := broker.NewPool(
		func(brokerName string) broker.Adapter { return httpbroker.New(brokerServiceURL, brokerName, log) },
		cfg.BrokerSessionTTL,
		cfg.BrokerSessionMax,
		maint,
		log,
	)
	defer pool.Stop()

	quoteCache := quote.NewCache(cfg.QuoteTTL)
	quoteSource := httpsource.New(envOr("QUOTE_SERVICE_URL", "http://localhost:9200/quotes"))

	notifier := notify.NewLogNotifier(log)

	dispatch := dispatcher.New(reg, pool, credentialsFromEnv, notifier, log)

	sched := scheduler.New(scheduler.Config{
		CheckInterval:    cfg.CheckInterval,
		MaxQuoteWorkers:  cfg.MaxQuoteWorkers,
		QuoteFetchBudget: cfg.QuoteFetchBudget,
		CondEpsilon:      cfg.CondEpsilon,
	}, reg, quoteCache, quoteSource, dispatch, log)

	schedCtx, cancelSched := context.WithCancel(context.Background())
	go sched.Run(schedCtx)
	defer cancelSched()

	ops := httpapi.New(httpapi.Config{
		Port:    cfg.Port,
		DevMode: cfg.DevMode,
		Log:     log,
		Stats: func() map[string]any {
			st := sched.Stats()
			return map[string]any{
				"checks":    st.Checks,
				"errors":    st.Errors,
				"lastCheck": st.LastCheck,
			}
		},
	})

	go func() {
		if err := ops.Start(); err != nil {
			log.Error().Err(err).Msg("ops http server stopped")
		}
	}()
	log.Info().Int("port", cfg.Port).Msg("ops http server started")

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)
	<-quitCh

	log.Info().Msg("shutting down")
	cancelSched()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := ops.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("ops http server forced to shutdown")
	}

	log.Info().Msg("trigger engine stopped")
}

// credentialsFromEnv resolves brokerage credentials from environment
// variables named BROKER_{BROKERNAME}_{TENANTID}_{KEY}. Real deployments
// are expected to front this with a proper secrets store; the engine
// itself never persists brokerage credentials.
func credentialsFromEnv(tenantID, brokerName string) (map[string]string, error) {
	prefix := "BROKER_" + brokerName + "_" + tenantID + "_"
	return map[string]string{
		"apiKey":    os.Getenv(prefix + "API_KEY"),
		"apiSecret": os.Getenv(prefix + "API_SECRET"),
		"tenantId":  tenantID,
	}, nil
}

func envOr(key, defaultValue string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return defaultValue
}
