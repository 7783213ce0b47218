package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"odinsweep/internal/cfg"
	"odinsweep/internal/exchange/odin"
	"odinsweep/internal/ledger"
	"odinsweep/internal/metrics"
	"odinsweep/internal/rates"
	"odinsweep/internal/session"
	"odinsweep/internal/sweep"
	"odinsweep/internal/wallet"

	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

func main() {
	var (
		botsFlag    = flag.String("bots", "", "comma-separated bot names to withdraw from")
		amountFlag  = flag.String("amount", "all", "amount in sats, or 'all' for the entire balance")
		everyFlag   = flag.Duration("every", 0, "run continuously with this interval (overrides config)")
		verboseFlag = flag.Bool("verbose", false, "enable debug logging")
	)
	flag.Parse()

	_ = godotenv.Load()
	setupLogging(*verboseFlag)

	if *botsFlag == "" {
		log.Fatal().Msg("at least one bot is required (-bots bot-1,bot-2)")
	}
	bots := splitBots(*botsFlag)

	c, err := cfg.Load()
	if err != nil {
		log.Fatal().Err(err).Msg("config load failed")
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Destination wallet is resolved up front: a missing credential must
	// fail before any funds move.
	w, err := wallet.Load(c.WalletPEM)
	if err != nil {
		printResults(failAll(bots, sweep.StepWallet, err.Error()))
		os.Exit(1)
	}

	exchangeClient := odin.NewClient(c.GatewayURL, c.TradingCanisterID, c.RESTTimeout)
	ledgerClient := ledger.NewClient(c.GatewayURL, c.LedgerCanisterID, c.RESTTimeout)

	sessions, err := session.NewProvider(c.SessionPath, exchangeClient.SIWBLogin, log.Logger)
	if err != nil {
		log.Fatal().Err(err).Msg("session store init failed")
	}
	defer sessions.Close()

	m := metrics.New()
	mw := metrics.NewWrapper(m)
	startMetricsServer(ctx, c)

	orch := sweep.New(exchangeClient, ledgerClient, sessions, w.Principal, c, mw, log.Logger)
	setDisplayRate(ctx, orch, c)

	interval := c.SweepInterval
	if *everyFlag > 0 {
		interval = *everyFlag
	}

	if interval == 0 {
		results := sweep.RunAll(ctx, orch, bots, *amountFlag, c.Workers)
		printResults(results)
		code := exitCode(results)
		sessions.Close()
		os.Exit(code)
	}

	runLoop(ctx, cancel, orch, bots, *amountFlag, c.Workers, interval)
}

func setupLogging(verbose bool) {
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if verbose {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
	log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339})
}

func splitBots(v string) []string {
	var bots []string
	for _, b := range strings.Split(v, ",") {
		if b = strings.TrimSpace(b); b != "" {
			bots = append(bots, b)
		}
	}
	return bots
}

// setDisplayRate fetches the BTC/USD rate for log decoration. Failures
// are tolerated; amounts are never derived from it.
func setDisplayRate(ctx context.Context, orch *sweep.Orchestrator, c cfg.Settings) {
	rctx, cancel := context.WithTimeout(ctx, c.RESTTimeout)
	defer cancel()
	rate, err := rates.NewClient(c.RESTTimeout).BTCUSD(rctx)
	if err != nil {
		log.Debug().Err(err).Msg("BTC/USD rate unavailable, logging sats only")
		return
	}
	orch.SetDisplayRate(rate)
}

// startMetricsServer exposes /metrics and /health when a port is
// configured; interval mode keeps the process alive long enough for
// scraping to matter.
func startMetricsServer(ctx context.Context, c cfg.Settings) {
	if c.MetricsPort == 0 {
		return
	}
	go func() {
		mux := http.NewServeMux()
		mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
			w.Write([]byte("OK"))
		})
		mux.Handle("/metrics", promhttp.Handler())

		server := &http.Server{
			Addr:              fmt.Sprintf(":%d", c.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 10 * time.Second,
			ReadTimeout:       30 * time.Second,
			WriteTimeout:      30 * time.Second,
			IdleTimeout:       60 * time.Second,
		}

		go func() {
			<-ctx.Done()
			if err := server.Shutdown(context.Background()); err != nil {
				log.Error().Err(err).Msg("failed to shutdown metrics server")
			}
		}()

		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error().Err(err).Msg("metrics server failed")
		}
	}()
}

// runLoop sweeps the fleet on a fixed interval until a shutdown signal.
func runLoop(ctx context.Context, cancel context.CancelFunc, orch *sweep.Orchestrator, bots []string, amount string, workers int, interval time.Duration) {
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	log.Info().Dur("interval", interval).Int("bots", len(bots)).Msg("starting sweep loop")
	printResults(sweep.RunAll(ctx, orch, bots, amount, workers))

	for {
		select {
		case <-ticker.C:
			printResults(sweep.RunAll(ctx, orch, bots, amount, workers))
		case <-sigChan:
			log.Info().Msg("shutdown signal received")
			cancel()
			return
		case <-ctx.Done():
			return
		}
	}
}

func failAll(bots []string, step, msg string) []sweep.BotResult {
	results := make([]sweep.BotResult, len(bots))
	for i, bot := range bots {
		results[i] = sweep.BotResult{Bot: bot, Outcome: sweep.Fail(step, msg)}
	}
	return results
}

func printResults(results []sweep.BotResult) {
	out, err := json.MarshalIndent(results, "", "  ")
	if err != nil {
		log.Error().Err(err).Msg("failed to encode results")
		return
	}
	fmt.Println(string(out))
}

func exitCode(results []sweep.BotResult) int {
	for _, r := range results {
		if r.Outcome.Status == sweep.StatusError {
			return 1
		}
	}
	return 0
}
