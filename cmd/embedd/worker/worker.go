package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/app"
	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/config"
)

var Cmd = &cobra.Command{
	Use:   "worker",
	Short: "Run the embedding worker loop against a parent process",
	RunE:  runWorker,
}

func init() {
	flags := Cmd.Flags()

	flags.String("transport", "stdio", "Message channel transport: 'stdio' or 'tcp'")
	flags.Int("tcp-port", 8421, "Port for the tcp transport")
	flags.Int("poll-timeout-ms", 1000, "Receive poll interval in milliseconds")

	viper.BindPFlag("transport", flags.Lookup("transport"))
	viper.BindPFlag("tcp_port", flags.Lookup("tcp-port"))
	viper.BindPFlag("poll_timeout_ms", flags.Lookup("poll-timeout-ms"))
}

func runWorker(_ *cobra.Command, _ []string) error {
	a, err := app.New(config.MustGetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	cfg := a.Config()

	ch, err := newChannel(cfg, a.Logger())
	if err != nil {
		return err
	}
	defer ch.Close()

	loop, err := a.NewWorkerLoop(ch)
	if err != nil {
		return err
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig := <-signalc
		a.Logger().Info("signal received, shutting down", zap.String("signal", sig.String()))
		cancel()
	}()

	return loop.Run(ctx)
}

func newChannel(cfg *config.Config, logger *zap.Logger) (channel.Channel, error) {
	switch cfg.Transport {
	case config.TransportStdio, "":
		return channel.NewStdio(os.Stdin, os.Stdout, cfg.PollTimeout()), nil
	case config.TransportTCP:
		addr := fmt.Sprintf("%s:%d", cfg.Host, cfg.TCPPort)
		return channel.NewTCP(addr, cfg.PollTimeout(), logger)
	default:
		return nil, fmt.Errorf("unknown transport: %s", cfg.Transport)
	}
}
