package cmd

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/app"
	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/config"
	"github.com/embedworks/embedd/internal/server"
	"github.com/embedworks/embedd/pkg/client"
)

var Cmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP embedding gateway",
	RunE:  runServe,
}

func init() {
	flags := Cmd.Flags()

	flags.Int("port", 8420, "Port to run the gateway on")
	flags.String("host", "localhost", "Host to run the gateway on")

	viper.BindPFlag("port", flags.Lookup("port"))
	viper.BindPFlag("host", flags.Lookup("host"))
}

func runServe(_ *cobra.Command, _ []string) error {
	a, err := app.New(config.MustGetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// The worker loop runs in-process; the gateway talks to it over a
	// memory channel exactly like an external parent would over pipes.
	ch, peer := channel.NewMemoryPair(4, a.Config().PollTimeout())
	loop, err := a.NewWorkerLoop(ch)
	if err != nil {
		return err
	}

	errc := make(chan error, 2)
	go func() {
		errc <- loop.Run(ctx)
	}()

	c, err := client.NewMemory(ctx, peer)
	if err != nil {
		return err
	}
	defer c.Close()

	srv := server.NewServer(a.Config(), c)
	go func() {
		a.Logger().Info("gateway started",
			zap.String("host", a.Config().Host),
			zap.Int("port", a.Config().Port),
			zap.String("model", c.Model()),
		)
		errc <- srv.Start()
	}()

	signalc := make(chan os.Signal, 1)
	signal.Notify(signalc, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-errc:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-signalc:
		a.Logger().Info("shutting down")
		srv.Stop(ctx)
		return nil
	}
}
