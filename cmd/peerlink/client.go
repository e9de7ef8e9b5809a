package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"golang.org/x/sync/errgroup"

	appevents "github.com/rescp17/peerlink/internal/app_events"
	receiverEvent "github.com/rescp17/peerlink/internal/app_events/receiver"
	senderEvent "github.com/rescp17/peerlink/internal/app_events/sender"
	"github.com/rescp17/peerlink/internal/util"
	"github.com/rescp17/peerlink/pkg/client"
	"github.com/rescp17/peerlink/pkg/discovery"
	"github.com/rescp17/peerlink/pkg/ui"
	"github.com/rescp17/peerlink/pkg/webrtc"
)

func (o clientOptions) config() (client.Config, error) {
	cfg := client.DefaultConfig()
	cfg.RelayURL = o.relayURL
	cfg.WebRTC.ICEServers = webrtc.ICEServersFromURLs(o.stun)
	cfg.Checksum = o.checksum
	if o.chunkSize > 0 {
		cfg.Transfer.ChunkSize = o.chunkSize
	}
	if o.outDir != "" {
		dir, err := util.ResolveOutputDir(o.outDir)
		if err != nil {
			return client.Config{}, err
		}
		cfg.OutputDir = dir
	}
	return cfg, nil
}

func runShare(ctx context.Context, opts clientOptions, path string) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	app, err := client.Connect(ctx, cfg, &discovery.MDNSAdapter{}, slog.Default())
	if err != nil {
		return err
	}
	if _, err := app.Share(path); err != nil {
		return err
	}
	return runApp(ctx, opts, ui.ShareMode, app)
}

func runReceive(ctx context.Context, opts clientOptions, link string) error {
	cfg, err := opts.config()
	if err != nil {
		return err
	}
	app, err := client.Connect(ctx, cfg, &discovery.MDNSAdapter{}, slog.Default())
	if err != nil {
		return err
	}
	if _, err := app.Download(link); err != nil {
		return err
	}
	return runApp(ctx, opts, ui.ReceiveMode, app)
}

// runApp drives the app alongside either the interactive view or a plain
// printer.
func runApp(ctx context.Context, opts clientOptions, mode ui.Mode, app *client.App) error {
	g, gctx := errgroup.WithContext(ctx)
	appCtx, cancelApp := context.WithCancel(gctx)
	defer cancelApp()

	g.Go(func() error {
		return app.Run(appCtx)
	})

	if opts.noTUI {
		g.Go(func() error {
			printMessages(os.Stdout, app)
			return nil
		})
	} else {
		g.Go(func() error {
			// Quitting the view stops the app if it is still running.
			defer cancelApp()
			if _, err := tea.NewProgram(ui.NewModel(mode, app)).Run(); err != nil {
				return fmt.Errorf("error running program: %w", err)
			}
			return nil
		})
	}

	err := g.Wait()
	if errors.Is(err, context.Canceled) || errors.Is(err, client.ErrCancelled) {
		return nil
	}
	return err
}

// printMessages writes app updates as plain lines until the app stops.
func printMessages(w io.Writer, app *client.App) {
	for {
		select {
		case <-app.Done():
			// Flush whatever was queued before the app stopped.
			for {
				select {
				case msg := <-app.UIMessages():
					printMessage(w, msg)
				default:
					return
				}
			}
		case msg := <-app.UIMessages():
			printMessage(w, msg)
		}
	}
}

func printMessage(w io.Writer, msg tea.Msg) {
	switch m := msg.(type) {
	case senderEvent.ShareReadyMsg:
		fmt.Fprintf(w, "Sharing %s (%s)\n", m.Metadata.Name, util.FormatSize(m.Metadata.Size))
		fmt.Fprintf(w, "Share link: %s\n", m.Link)
	case senderEvent.PeerRequestedMsg:
		fmt.Fprintf(w, "Receiver %s connected\n", m.PeerID)
	case receiverEvent.OfferAckMsg:
		fmt.Fprintf(w, "Receiving %s (%s)\n", m.Metadata.Name, util.FormatSize(m.Metadata.Size))
	case appevents.StatusMsg:
		fmt.Fprintln(w, m.Message)
	case appevents.ProgressMsg:
		if m.Snapshot.Percent%10 == 0 {
			fmt.Fprintf(w, "%3d%%  %s / %s\n", m.Snapshot.Percent,
				util.FormatSize(m.Snapshot.BytesTransferred), util.FormatSize(m.Snapshot.Metadata.Size))
		}
	case appevents.TransferCompleteMsg:
		if m.Artifact != nil && m.Artifact.Path != "" {
			fmt.Fprintf(w, "Transfer complete, saved to %s\n", m.Artifact.Path)
		} else {
			fmt.Fprintln(w, "Transfer complete")
		}
	case appevents.ErrorMsg:
		fmt.Fprintf(w, "Error: %v\n", m.Err)
	}
}
