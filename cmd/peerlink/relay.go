package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/rescp17/peerlink/api"
	"github.com/rescp17/peerlink/pkg/discovery"
	"github.com/rescp17/peerlink/pkg/relay"
)

const shutdownTimeout = 5 * time.Second

func newRelayCmd() *cobra.Command {
	var (
		addr     string
		announce bool
	)
	cmd := &cobra.Command{
		Use:   "relay",
		Short: "Run the signaling relay",
		RunE: func(cmd *cobra.Command, args []string) error {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
			return runRelay(cmd.Context(), addr, announce)
		},
	}
	cmd.Flags().StringVar(&addr, "addr", ":8765", "Address to listen on")
	cmd.Flags().BoolVar(&announce, "announce", true, "Announce the relay on the local network over mDNS")
	return cmd
}

func runRelay(ctx context.Context, addr string, announce bool) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}
	port := ln.Addr().(*net.TCPAddr).Port

	hub := relay.NewHub(slog.Default())
	server := &http.Server{
		Handler:           api.NewAPI(hub),
		ReadHeaderTimeout: 10 * time.Second,
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		slog.Info("Relay listening", "addr", ln.Addr().String())
		if err := server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("relay server failed: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-ctx.Done()
		hub.Close()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()
		return server.Shutdown(shutdownCtx)
	})
	if announce {
		g.Go(func() error {
			hostname, err := os.Hostname()
			if err != nil {
				hostname = "peerlink"
			}
			err = (&discovery.MDNSAdapter{}).Announce(ctx, discovery.ServiceInfo{
				Name:   hostname,
				Type:   discovery.RelayServiceType,
				Domain: discovery.DefaultDomain,
				Port:   port,
				Text:   map[string]string{discovery.RelayPathKey: "/ws"},
			})
			if err != nil {
				// The relay still works for clients given --relay.
				slog.Warn("mDNS announcement failed", "error", err)
			}
			return nil
		})
	}
	return g.Wait()
}
