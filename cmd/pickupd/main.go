package main

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	flag "github.com/spf13/pflag"

	"github.com/ernie/pickup-coordinator/internal/bridge"
	"github.com/ernie/pickup-coordinator/internal/collector"
	"github.com/ernie/pickup-coordinator/internal/config"
	"github.com/ernie/pickup-coordinator/internal/eventbus"
	"github.com/ernie/pickup-coordinator/internal/logging"
	"github.com/ernie/pickup-coordinator/internal/registry"
)

var version = "dev"

const defaultConfigPath = "/etc/pickupd/config.yml"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "serve":
		cmdServe(os.Args[2:])
	case "version":
		fmt.Printf("pickupd %s\n", version)
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `Usage: pickupd <command> [options]

Commands:
  serve     Run the log relay pipeline
  version   Print version

Use "pickupd <command> --help" for command options.
`)
}

func cmdServe(args []string) {
	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	fs.Parse(args)

	cfgPath := *configPath
	if cfgPath == "" {
		if _, err := os.Stat(defaultConfigPath); err == nil {
			cfgPath = defaultConfigPath
		} else {
			log.Fatalf("No config file found at %s. Use --config to specify a config file.", defaultConfigPath)
		}
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	logger := logging.New(cfg.Logging.Level, cfg.Logging.Format)
	log.Printf("pickupd %s starting...", version)

	// Pick the match registry backing the secret lookup
	var reg registry.Lookup
	var redisReg *registry.Redis
	switch {
	case cfg.Registry.Redis.Addr != "":
		redisReg, err = registry.NewRedis(registry.RedisConfig{
			Addr:      cfg.Registry.Redis.Addr,
			Password:  cfg.Registry.Redis.Password,
			DB:        cfg.Registry.Redis.DB,
			KeyPrefix: cfg.Registry.Redis.KeyPrefix,
		})
		if err != nil {
			log.Fatalf("Failed to connect to match registry: %v", err)
		}
		reg = redisReg
		log.Printf("Match registry: redis at %s", cfg.Registry.Redis.Addr)
	case len(cfg.Registry.Secrets) > 0:
		reg = registry.NewStatic(cfg.Registry.Secrets)
		log.Printf("Match registry: static map with %d secrets", len(cfg.Registry.Secrets))
	default:
		log.Fatalf("No match registry configured: set registry.redis.addr or registry.secrets")
	}

	bus := eventbus.New(logger)

	pipe := collector.NewPipeline(collector.Config{
		ListenAddr:      cfg.LogRelay.Addr(),
		QueueSize:       cfg.LogRelay.QueueSize,
		RestartAttempts: cfg.LogRelay.RestartAttempts,
		RestartBackoff:  cfg.LogRelay.RestartBackoff,
	}, reg, bus, logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := pipe.Start(ctx); err != nil {
		log.Fatalf("Failed to start pipeline: %v", err)
	}
	log.Printf("Log relay listening on %s", cfg.LogRelay.Addr())

	// Optional NATS bridge for out-of-process subscribers
	var natsBridge *bridge.NATS
	if cfg.NATS.URL != "" {
		natsBridge, err = bridge.NewNATS(cfg.NATS.URL, cfg.NATS.SubjectPrefix, logger)
		if err != nil {
			log.Fatalf("Failed to connect NATS bridge: %v", err)
		}
		natsBridge.Attach(bus)
		log.Printf("NATS bridge publishing to %s.* at %s", cfg.NATS.SubjectPrefix, cfg.NATS.URL)
	}

	// Optional metrics endpoint
	var metricsServer *http.Server
	if cfg.Metrics.ListenAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		metricsServer = &http.Server{
			Addr:         cfg.Metrics.ListenAddr,
			Handler:      mux,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
		}
		go func() {
			log.Printf("Metrics available at http://%s/metrics", cfg.Metrics.ListenAddr)
			if err := metricsServer.ListenAndServe(); err != http.ErrServerClosed {
				log.Printf("Metrics server error: %v", err)
			}
		}()
	}

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	sig := <-sigCh
	log.Printf("Received signal %v, shutting down...", sig)

	// Sequential shutdown: stop ingesting, then detach subscribers
	pipe.Stop()
	if natsBridge != nil {
		natsBridge.Close()
	}
	bus.Close()
	if redisReg != nil {
		redisReg.Close()
	}
	if metricsServer != nil {
		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer shutdownCancel()
		metricsServer.Shutdown(shutdownCtx)
	}

	log.Println("Shutdown complete")
}
