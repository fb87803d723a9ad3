package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
	"golang.org/x/sync/errgroup"

	"github.com/mk6i/matrix-irc-bridge/config"
	"github.com/mk6i/matrix-irc-bridge/fabric"
	"github.com/mk6i/matrix-irc-bridge/internal/bridgelog"
	"github.com/mk6i/matrix-irc-bridge/legacy"
)

// errNoCollaborator marks the two collaborators this build leaves
// external: the fabric HTTP API client and the legacy network
// connection. A concrete deployment supplies both by replacing
// newFabricClient/dialLegacy with adapters over
// *mautrix.Client/appservice.IntentAPI and a real TCP+line-parser
// connection, respectively.
var errNoCollaborator = errors.New("bridge: no collaborator wired for this build")

func newFabricClient(cfg config.Config) (fabric.Client, error) {
	return nil, fmt.Errorf("%w: fabric.Client", errNoCollaborator)
}

func dialLegacy(ctx context.Context, network string) (legacy.Conn, error) {
	return nil, fmt.Errorf("%w: legacy.Conn for network %q", errNoCollaborator, network)
}

func main() {
	envFile := flag.String("config", ".env", "Path to .env config file")
	flag.Parse()

	if err := godotenv.Load(*envFile); err != nil && !os.IsNotExist(err) {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	var cfg config.Config
	if err := envconfig.Process("", &cfg); err != nil {
		fmt.Fprintf(os.Stderr, "loading config: %v\n", err)
		os.Exit(1)
	}

	logger := bridgelog.New(cfg.LogLevel)

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	client, err := newFabricClient(cfg)
	if err != nil {
		logger.Error("failed to build fabric client", "err", err)
		os.Exit(1)
	}

	c := MakeCommonDeps(cfg, logger, client, dialLegacy)

	if err := c.loadRooms(ctx); err != nil {
		logger.Error("failed to load persisted rooms", "err", err)
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return c.runSync(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("bridge exited with error", "err", err)
		os.Exit(1)
	}
}
