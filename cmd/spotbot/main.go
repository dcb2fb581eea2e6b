// Command spotbot runs the spot strategy for one symbol against Bybit.
//
//	spotbot [flags] trade SYMBOL
//	spotbot [flags] instrument SYMBOL
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/evdnx/spotbot/bybit"
	"github.com/evdnx/spotbot/config"
	"github.com/evdnx/spotbot/executor"
	"github.com/evdnx/spotbot/instrument"
	"github.com/evdnx/spotbot/logger"
	"github.com/evdnx/spotbot/strategy"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"
	"github.com/shopspring/decimal"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("spotbot", flag.ContinueOnError)
	cfgPath := fs.String("config", "", "strategy YAML file (defaults apply when empty)")
	envFile := fs.String("env", ".env", "optional .env file")
	paper := fs.Bool("paper", false, "simulate fills against live market data")
	paperEquity := fs.Float64("paper-equity", 10_000, "starting equity in paper mode")
	paperFee := fs.Float64("paper-fee", 0.001, "taker fee rate in paper mode")
	schedule := fs.String("schedule", "", "cron spec; run repeatedly instead of once")
	fs.Usage = func() {
		fmt.Fprintln(fs.Output(), "usage: spotbot [flags] trade|instrument SYMBOL")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() != 2 {
		fs.Usage()
		return 2
	}
	cmd, symbol := fs.Arg(0), strings.ToUpper(fs.Arg(1))

	app, err := config.LoadApp(*envFile)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	log, err := logger.NewZapLogger(app.LogLevel)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	cfg := config.Default()
	if *cfgPath != "" {
		if cfg, err = config.Load(*cfgPath); err != nil {
			log.Error("config_invalid", logger.String("path", *cfgPath), logger.Err(err))
			return 1
		}
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if app.MetricsAddr != "" {
		srv := serveMetrics(app.MetricsAddr, log)
		defer shutdown(srv)
	}

	client := bybit.NewClient(app.Bybit, log)
	store := instrument.NewStore(newCache(ctx, app.Redis, log), client, app.Redis.TTL, log)

	switch cmd {
	case "instrument":
		ic, err := store.Constraint(ctx, cfg.Category, symbol)
		if err != nil {
			log.Error("instrument_lookup_failed", logger.String("symbol", symbol), logger.Err(err))
			return 1
		}
		fmt.Printf("%s min_order_qty=%s\n", ic.Symbol, ic.MinOrderQty)
		return 0

	case "trade":
		var gw executor.Gateway = client
		if *paper {
			gw = executor.NewPaperGateway(client, *paperEquity, decimal.NewFromFloat(*paperFee), log)
		} else if err := app.RequireCredentials(); err != nil {
			log.Error("config_invalid", logger.Err(err))
			return 1
		}
		ctrl, err := strategy.NewController(gw, cfg, strategy.RealClock(), log)
		if err != nil {
			log.Error("config_invalid", logger.Err(err))
			return 1
		}
		once := func() error {
			ic, err := store.Constraint(ctx, cfg.Category, symbol)
			if err != nil {
				log.Error("instrument_lookup_failed", logger.String("symbol", symbol), logger.Err(err))
				return err
			}
			return ctrl.Run(ctx, symbol, ic)
		}
		if *schedule == "" {
			if err := once(); err != nil {
				return 1
			}
			return 0
		}
		return runScheduled(ctx, *schedule, once, log)

	default:
		fs.Usage()
		return 2
	}
}

// runScheduled runs job on the cron spec until ctx is cancelled. A run that
// is still monitoring a position makes the next tick a no-op.
func runScheduled(ctx context.Context, spec string, job func() error, log logger.Logger) int {
	c := cron.New(cron.WithChain(cron.SkipIfStillRunning(cron.DiscardLogger)))
	if _, err := c.AddFunc(spec, func() { _ = job() }); err != nil {
		log.Error("schedule_invalid", logger.String("spec", spec), logger.Err(err))
		return 1
	}
	log.Info("schedule_started", logger.String("spec", spec))
	c.Start()
	<-ctx.Done()
	<-c.Stop().Done()
	log.Info("schedule_stopped")
	return 0
}

// newCache returns a Redis-backed cache, or nil when Redis is not
// configured or unreachable.
func newCache(ctx context.Context, cfg config.RedisConfig, log logger.Logger) instrument.Cache {
	if cfg.Addr == "" {
		return nil
	}
	rdb := redis.NewClient(&redis.Options{Addr: cfg.Addr, Password: cfg.Password, DB: cfg.DB})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := rdb.Ping(pingCtx).Err(); err != nil {
		log.Warn("redis_unavailable", logger.String("addr", cfg.Addr), logger.Err(err))
		_ = rdb.Close()
		return nil
	}
	return instrument.NewRedisCache(rdb)
}

func serveMetrics(addr string, log logger.Logger) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	srv := &http.Server{Addr: addr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("metrics_server_failed", logger.String("addr", addr), logger.Err(err))
		}
	}()
	log.Info("metrics_listening", logger.String("addr", addr))
	return srv
}

func shutdown(srv *http.Server) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	_ = srv.Shutdown(ctx)
}
