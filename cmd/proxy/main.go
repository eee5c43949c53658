// Command proxy runs the client-facing router boundary (C10): a
// consistent-hash ring over known proxies, forwarding each client request to
// the proxy that owns it, and a control-channel registration endpoint
// workers connect to. Ring membership is config-driven static discovery;
// spec.md names ZooKeeper-based discovery and the proxy's own
// load-balancing/launch policy internals as out of scope, so this binary
// only wires the boundary.
package main

import (
	"context"
	"crypto/sha256"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/ssbd-io/blockplane/internal/logger"
	"github.com/ssbd-io/blockplane/proxy/router"
)

var (
	version = "dev"
	commit  = "none"
)

var (
	selfAddr      string
	peerAddrs     []string
	clientListen  string
	controlListen string
	versionFlag   bool
)

func main() {
	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "proxy",
		Short: "Run a block storage plane router/proxy boundary",
		RunE:  runStart,
	}
	cmd.Flags().StringVar(&selfAddr, "self-addr", "", "this proxy's forwarding-facing address, as advertised to the ring (host:port)")
	cmd.Flags().StringSliceVar(&peerAddrs, "peers", nil, "comma-separated forwarding-facing addresses of sibling proxies")
	cmd.Flags().StringVar(&clientListen, "listen", ":9400", "client-facing listen address")
	cmd.Flags().StringVar(&controlListen, "control-listen", ":9401", "worker control-channel listen address")
	cmd.Flags().BoolVar(&versionFlag, "version", false, "print version and exit")
	return cmd
}

func runStart(cmd *cobra.Command, args []string) error {
	if versionFlag {
		fmt.Printf("proxy %s (commit %s)\n", version, commit)
		return nil
	}

	if err := logger.Init(logger.Config{Level: "INFO", Format: "text", Output: "stdout"}); err != nil {
		return fmt.Errorf("init logger: %w", err)
	}

	if selfAddr == "" {
		selfAddr = clientListen
	}

	ring := router.New()
	ring.Set(buildMembership(selfAddr, peerAddrs))

	rt := router.NewRouter(ring)

	clientSrv := router.NewServer(clientListen, rt)
	registrationSrv := router.NewRegistrationServer(controlListen, rt)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		logger.Info("proxy: shutdown signal received")
		cancel()
	}()

	errCh := make(chan error, 2)
	go func() { errCh <- registrationSrv.Serve(ctx) }()
	go func() {
		<-registrationSrv.Ready()
		logger.Info("proxy: registration endpoint started", "addr", registrationSrv.Addr())
	}()

	logger.Info("proxy: starting", "client_addr", clientListen, "control_addr", controlListen, "members", len(ring.Members()))
	if err := clientSrv.Serve(ctx); err != nil {
		return fmt.Errorf("serve: %w", err)
	}
	registrationSrv.Stop()
	if err := <-errCh; err != nil {
		logger.Debug("proxy: registration server exited", "error", err)
	}
	return nil
}

// buildMembership derives a stable ProxyID for self and each peer by
// hashing its advertised address, matching the ring's [32]byte key space.
func buildMembership(self string, peers []string) []router.Proxy {
	addrs := append([]string{self}, peers...)
	members := make([]router.Proxy, 0, len(addrs))
	seen := make(map[string]struct{}, len(addrs))

	for _, addr := range addrs {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		if _, ok := seen[addr]; ok {
			continue
		}
		seen[addr] = struct{}{}

		sum := sha256.Sum256([]byte(addr))
		members = append(members, router.Proxy{ID: router.ProxyID(sum), Addr: addr})
	}
	return members
}
