// Command storagenode runs the storage-node process (C1, C2, C7):
// a block store backend behind a dialect-B TCP server.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssbd-io/blockplane/internal/config"
	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/internal/metrics"
	"github.com/ssbd-io/blockplane/storagenode/blockstore"
	"github.com/ssbd-io/blockplane/storagenode/server"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	cfgFile     string
	listenAddr  string
	metricsOn   bool
	versionFlag bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "storagenode",
		Short: "Run a block storage plane storage node",
		RunE:  runStart,
	}
	cmd.Flags().StringVar(&cfgFile, "config", "", "path to config file")
	cmd.Flags().StringVar(&listenAddr, "listen", "", "override listen address (host:port)")
	cmd.Flags().BoolVar(&metricsOn, "metrics", false, "enable Prometheus metrics collection")
	cmd.Flags().BoolVar(&versionFlag, "version", false, "print version and exit")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	if versionFlag {
		fmt.Printf("storagenode %s (commit %s)\n", version, commit)
		return nil
	}

	cfg, err := config.Load(cfgFile)
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}

	if err := logger.Init(logger.Config{
		Level:  cfg.Logging.Level,
		Format: cfg.Logging.Format,
		Output: cfg.Logging.Output,
	}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if metricsOn {
		metrics.Enable()
	}
	storeMetrics := metrics.NewStorageMetrics()

	store, err := blockstore.Open(string(cfg.StorageType), cfg.DataDir)
	if err != nil {
		return fmt.Errorf("open block store: %w", err)
	}
	defer store.Close()

	addr := listenAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	}

	srv := server.New(server.Config{Addr: addr, Store: store, Metrics: storeMetrics})

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("storagenode: shutdown signal received")
		cancel()
	}()

	logger.Info("storagenode: starting", "addr", addr, "storage_type", cfg.StorageType)
	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}
