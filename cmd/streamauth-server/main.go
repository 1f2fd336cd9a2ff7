// Command streamauth-server serves the streamauth HTTP API backed by Redis
// and Postgres.
//
// Configuration is read from the YAML file given by -config, then from
// STREAMAUTH_* environment variables. JWT secrets are only read from
// STREAMAUTH_JWT_ACCESS_SECRET and STREAMAUTH_JWT_REFRESH_SECRET.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/MrEthical07/streamauth/internal/bootstrap"
)

func main() {
	configPath := flag.String("config", "configs/streamauth.yaml", "path to the YAML config file")
	flag.Parse()

	cfg, err := bootstrap.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config: %v\n", err)
		os.Exit(2)
	}
	logger := bootstrap.NewLogger(os.Stdout, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rt, err := bootstrap.NewRuntime(ctx, cfg, logger)
	if err != nil {
		logger.Error("bootstrap failed", "module", "bootstrap", "error", err)
		os.Exit(1)
	}
	if err := rt.Run(ctx); err != nil {
		logger.Error("server stopped with error", "module", "bootstrap", "error", err)
		os.Exit(1)
	}
}
