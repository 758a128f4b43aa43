package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"

	"github.com/thepaulm/tripstore"
	"github.com/thepaulm/tripstore/internal/logging"
)

func syntax() {
	fmt.Printf("tripstore: store trip data in memory\n")
	fmt.Printf("\t-p (--port): port to listen on for trip generators\n")
	fmt.Printf("\t-q (--query-port): port to listen on for queries\n")
	fmt.Printf("\t-v (--verbose): verbose output\n")
	fmt.Printf("\t-h (--help): this message\n")
	fmt.Printf("By default tripstore will listen on %d for trip data and "+
		"%d for queries.\n", tripstore.DefaultIngestPort, tripstore.DefaultQueryPort)
	fmt.Printf("REPORT3 timestamps are parsed in the server's local time zone.\n")
}

func main() {
	var (
		port      = pflag.IntP("port", "p", tripstore.DefaultIngestPort, "port to listen on for trip generators")
		queryPort = pflag.IntP("query-port", "q", tripstore.DefaultQueryPort, "port to listen on for queries")
		verbose   = pflag.BoolP("verbose", "v", false, "verbose output")
		help      = pflag.BoolP("help", "h", false, "this message")
	)
	pflag.Usage = syntax
	pflag.Parse()

	if *help {
		syntax()
		os.Exit(0)
	}

	// Set up logging
	logConfig := logging.DefaultConfig()
	if *verbose {
		logConfig.Level = logging.LevelDebug
	}
	logger := logging.NewLogger(logConfig)
	logging.SetDefault(logger)

	srv, err := tripstore.NewServer(tripstore.Config{
		Port:      *port,
		QueryPort: *queryPort,
		Logger:    logger,
	})
	if err != nil {
		logger.Error("failed to start server", "error", err)
		os.Exit(1)
	}

	fmt.Printf("listening on port %d for trip data, %d for queries.\n",
		srv.Port(), srv.QueryPort())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ctx)
	}()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case sig := <-sigCh:
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
		<-errCh
	case err := <-errCh:
		if err != nil {
			logger.Error("event loop failed", "error", err)
			srv.Close()
			os.Exit(1)
		}
	}

	if err := srv.Close(); err != nil {
		logger.Error("error during shutdown", "error", err)
		os.Exit(1)
	}

	snap := srv.MetricsSnapshot()
	logger.Info("server stopped",
		"trips_begun", snap.BeginEvents,
		"trips_ended", snap.EndEvents,
		"queries", snap.Queries)
}
