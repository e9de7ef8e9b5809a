package main

import (
	"context"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	dnssdlog "github.com/brutella/dnssd/log"
	"github.com/charmbracelet/fang"
	"github.com/spf13/cobra"

	"github.com/rescp17/peerlink/pkg/transfer"
)

const logFileName = "peerlink.log"

type clientOptions struct {
	relayURL  string
	stun      []string
	chunkSize int
	outDir    string
	checksum  bool
	noTUI     bool
}

func main() {
	dnssdlog.Info.SetOutput(io.Discard)
	dnssdlog.Debug.SetOutput(io.Discard)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := fang.Execute(ctx, newRootCmd()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var opts clientOptions

	cmd := &cobra.Command{
		Use:   "peerlink",
		Short: "Send a file straight to another machine over WebRTC",
	}
	cmd.PersistentFlags().StringVar(&opts.relayURL, "relay", "", "Relay WebSocket URL, e.g. ws://host:8765/ws (default: discover over mDNS)")
	cmd.PersistentFlags().StringSliceVar(&opts.stun, "stun", nil, "STUN/TURN server URLs")
	cmd.PersistentFlags().BoolVar(&opts.noTUI, "no-tui", false, "Print plain log lines instead of the interactive view")

	cmd.AddCommand(newRelayCmd())
	cmd.AddCommand(newShareCmd(&opts))
	cmd.AddCommand(newReceiveCmd(&opts))
	return cmd
}

func newShareCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "share <file>",
		Short: "Offer a file and print its share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog := setupLogging(opts.noTUI)
			defer closeLog()
			return runShare(cmd.Context(), *opts, args[0])
		},
	}
	cmd.Flags().IntVar(&opts.chunkSize, "chunk-size", transfer.DefaultChunkSize, "Bytes per data channel message")
	cmd.Flags().BoolVar(&opts.checksum, "checksum", true, "Send a SHA-256 checksum for the receiver to verify")
	return cmd
}

func newReceiveCmd(opts *clientOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "receive <link>",
		Short: "Download the file behind a share link",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			closeLog := setupLogging(opts.noTUI)
			defer closeLog()
			return runReceive(cmd.Context(), *opts, args[0])
		},
	}
	cmd.Flags().StringVar(&opts.outDir, "out", ".", "Directory to save the file in")
	return cmd
}

// setupLogging sends logs to a file while the TUI owns the terminal, and to
// stderr otherwise. pion logs through the standard logger, so it is
// redirected too.
func setupLogging(noTUI bool) func() {
	if noTUI {
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, nil)))
		return func() {}
	}
	f, err := os.OpenFile(logFileName, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		slog.Warn("failed to open log file, logging is disabled", "error", err)
		log.SetOutput(io.Discard)
		slog.SetDefault(slog.New(slog.NewTextHandler(io.Discard, nil)))
		return func() {}
	}
	log.SetOutput(f)
	slog.SetDefault(slog.New(slog.NewTextHandler(f, &slog.HandlerOptions{Level: slog.LevelDebug})))
	return func() {
		if err := f.Close(); err != nil {
			slog.Warn("failed to close log file", "error", err)
		}
	}
}
