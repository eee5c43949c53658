// Command worker runs a data-function worker process (C4, C5, C6, C8): an
// I/O driver against the storage nodes, a read cache, per-file strands, and
// a control channel registered against the proxy, behind a dialect-A TCP
// server.
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssbd-io/blockplane/internal/config"
	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/internal/metrics"
	"github.com/ssbd-io/blockplane/worker/cache"
	"github.com/ssbd-io/blockplane/worker/control"
	workerio "github.com/ssbd-io/blockplane/worker/io"
	"github.com/ssbd-io/blockplane/worker/service"
	"github.com/ssbd-io/blockplane/worker/strand"
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
		Use:   "worker",
		Short: "Run a block storage plane data-function worker",
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
		fmt.Printf("worker %s (commit %s)\n", version, commit)
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
	cacheMetrics := metrics.NewCacheMetrics()

	driver := workerio.NewDriver(workerio.Config{
		Hosts:             cfg.HostAddrs(),
		ReplicationFactor: int(cfg.ReplicationSize),
		BlockSize:         uint32(cfg.BlockSize),
	}, nil)
	defer driver.Close()

	var svcCache service.Cache
	var cacheExporter control.CacheExporter
	if cfg.CacheEnabled {
		c := cache.New(cache.Config{Policy: cfg.CachePolicy, MaxBytes: cfg.CacheSize.Uint64()})
		svcCache = c
		cacheExporter = c
		logger.Info("worker: cache configured",
			"policy", cfg.CachePolicy,
			"budget", cfg.CacheSize.String(),
			"blocks", cfg.CacheSize.BlockCapacity(cfg.BlockSize))
	}

	svc := service.New(service.Config{
		Driver:  driver,
		Cache:   svcCache,
		Strands: strand.NewPool(strand.DefaultQuiescence),
		Metrics: cacheMetrics,
	})

	addr := listenAddr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.ListenHost, cfg.ListenPort)
	}
	srv := service.NewServer(addr, svc)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("worker: shutdown signal received")
		cancel()
	}()

	go runController(ctx, cfg, addr, cacheExporter)

	logger.Info("worker: starting", "addr", addr, "proxy", fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort))
	if err := srv.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	return nil
}

// runController registers this worker with its proxy and serves the
// control channel until ctx is cancelled, at which point it deregisters
// and closes (spec §4.8).
func runController(ctx context.Context, cfg *config.Config, listenAddr string, exporter control.CacheExporter) {
	host, portStr, err := net.SplitHostPort(listenAddr)
	if err != nil {
		logger.Error("worker: bad listen address for control registration", "error", err)
		return
	}
	port, err := strconv.ParseUint(portStr, 10, 16)
	if err != nil {
		logger.Error("worker: bad listen port for control registration", "error", err)
		return
	}
	if host == "" || host == "0.0.0.0" {
		host = "127.0.0.1"
	}

	ctl := control.New(control.Config{
		ProxyAddr:  fmt.Sprintf("%s:%d", cfg.ProxyHost, cfg.ProxyPort),
		WorkerIP:   host,
		WorkerPort: uint16(port),
		Cache:      exporter,
	})

	go func() {
		<-ctx.Done()
		ctl.Close()
	}()

	if err := ctl.Run(); err != nil {
		logger.Error("worker: control channel exited", "error", err)
	}
}
