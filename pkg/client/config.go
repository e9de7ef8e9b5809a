package client

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/rescp17/peerlink/pkg/discovery"
	"github.com/rescp17/peerlink/pkg/signaling"
	"github.com/rescp17/peerlink/pkg/transfer"
	"github.com/rescp17/peerlink/pkg/webrtc"
)

const DefaultDiscoveryTimeout = 5 * time.Second

// Config holds everything needed to run one share or download.
type Config struct {
	// RelayURL is the relay's WebSocket endpoint. When empty the relay is
	// looked up over mDNS.
	RelayURL         string
	DiscoveryTimeout time.Duration

	WebRTC   webrtc.Config
	Transfer *transfer.Config

	// OutputDir receives downloaded files unless Sink is set.
	OutputDir string
	Sink      transfer.SinkFactory

	// Checksum makes the sharer hash the file and the receiver verify it.
	Checksum bool
}

func DefaultConfig() Config {
	return Config{
		DiscoveryTimeout: DefaultDiscoveryTimeout,
		Transfer:         transfer.DefaultConfig(),
		OutputDir:        ".",
		Checksum:         true,
	}
}

func (c *Config) setDefaults() {
	if c.Transfer == nil {
		c.Transfer = transfer.DefaultConfig()
	}
	if c.OutputDir == "" {
		c.OutputDir = "."
	}
	if c.Sink == nil {
		c.Sink = transfer.FileSinkFactory(c.OutputDir)
	}
	if c.DiscoveryTimeout <= 0 {
		c.DiscoveryTimeout = DefaultDiscoveryTimeout
	}
}

func (c *Config) Validate() error {
	if err := c.Transfer.Validate(); err != nil {
		return fmt.Errorf("invalid transfer config: %w", err)
	}
	return nil
}

// Connect resolves and dials the relay and returns an app using pion for
// peer connections.
func Connect(ctx context.Context, cfg Config, adapter discovery.Adapter, logger *slog.Logger) (*App, error) {
	cfg.setDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	url, err := ResolveRelay(ctx, cfg, adapter)
	if err != nil {
		return nil, err
	}
	relay, err := signaling.Dial(ctx, url, logger)
	if err != nil {
		return nil, err
	}
	app, err := NewApp(cfg, relay, webrtc.NewAPI(cfg.WebRTC), logger)
	if err != nil {
		relay.Close()
		return nil, err
	}
	return app, nil
}

// ResolveRelay returns cfg.RelayURL, or the first relay announced on the
// local network when it is empty.
func ResolveRelay(ctx context.Context, cfg Config, adapter discovery.Adapter) (string, error) {
	if cfg.RelayURL != "" {
		return cfg.RelayURL, nil
	}
	if adapter == nil {
		adapter = &discovery.MDNSAdapter{}
	}
	timeout := cfg.DiscoveryTimeout
	if timeout <= 0 {
		timeout = DefaultDiscoveryTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	slog.Info("Looking for a relay on the local network", "timeout", timeout)
	relay, err := discovery.FirstRelay(ctx, adapter)
	if err != nil {
		return "", fmt.Errorf("no --relay given and discovery failed: %w", err)
	}
	url := relay.RelayURL()
	slog.Info("Found relay", "name", relay.Name, "url", url)
	return url, nil
}
