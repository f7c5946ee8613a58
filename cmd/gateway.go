package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/crystaldolphin/chatbridge/internal/bus"
	"github.com/crystaldolphin/chatbridge/internal/channels"
	"github.com/crystaldolphin/chatbridge/internal/container"
	"github.com/crystaldolphin/chatbridge/internal/logging"
)

const stopTimeout = 10 * time.Second

var (
	gatewayVerbose bool
	gatewayCLI     bool
)

var gatewayCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Start the bridge: channels, event stream and maintenance jobs",
	RunE:  runGateway,
}

func init() {
	gatewayCmd.Flags().BoolVarP(&gatewayVerbose, "verbose", "v", false, "Verbose logging")
	gatewayCmd.Flags().BoolVar(&gatewayCLI, "cli", false, "Also chat from this terminal")
}

func runGateway(_ *cobra.Command, _ []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	logging.Setup(cfg.Logging, gatewayVerbose)

	if gatewayCLI {
		cfg.Channels.CLI.Enabled = true
	}

	c, err := container.New(cfg)
	if err != nil {
		return fmt.Errorf("build services: %w", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	channelMgr := c.Channels()
	if ch, ok := channelMgr.Get(bus.ChannelCLI.String()); ok {
		if cli, ok := ch.(*channels.CLIChannel); ok {
			cli.OnExit(cancel)
		}
	}

	if enabled := channelMgr.EnabledChannels(); len(enabled) > 0 {
		fmt.Printf("✓ Channels enabled: %s\n", strings.Join(enabled, ", "))
	} else {
		fmt.Println("Warning: no channels enabled")
	}
	fmt.Printf("%s Agent server: %s\n", logo, cfg.Backend.ServerURL)

	engine := c.Engine()
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return engine.Run(gctx) })
	g.Go(func() error { return engine.ConsumeInbound(gctx, c.MessageBus()) })
	g.Go(func() error { return channelMgr.StartAll(gctx) })
	g.Go(func() error { return c.CronService().Start(gctx) })
	if hb := c.Heartbeat(); hb != nil {
		g.Go(func() error { return hb.Start(gctx) })
	}

	fmt.Printf("%s Gateway running. Press Ctrl+C to stop.\n", logo)

	runErr := g.Wait()

	stopCtx, stopCancel := context.WithTimeout(context.Background(), stopTimeout)
	defer stopCancel()
	if err := channelMgr.StopAll(stopCtx); err != nil {
		slog.Warn("gateway: stopping channels", "err", err)
	}

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		fmt.Fprintf(os.Stderr, "gateway error: %v\n", runErr)
		return runErr
	}
	fmt.Println("\nShutdown complete.")
	return nil
}
