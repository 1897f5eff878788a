package cmd

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"

	"github.com/embedworks/embedd/internal/app"
	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/config"
	"github.com/embedworks/embedd/pkg/client"
)

var Cmd = &cobra.Command{
	Use:   "batch",
	Short: "Embed texts from stdin, one per line, printing JSON per line",
	RunE:  runBatch,
}

func init() {
	flags := Cmd.Flags()

	flags.String("model", "", "Model to load before embedding (default: the configured default model)")

	viper.BindPFlag("batch_model", flags.Lookup("model"))
}

func runBatch(_ *cobra.Command, _ []string) error {
	a, err := app.New(config.MustGetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	ctx := context.Background()

	ch, peer := channel.NewMemoryPair(4, a.Config().PollTimeout())
	loop, err := a.NewWorkerLoop(ch)
	if err != nil {
		return err
	}

	errc := make(chan error, 1)
	go func() {
		errc <- loop.Run(ctx)
	}()

	c, err := client.NewMemory(ctx, peer)
	if err != nil {
		return err
	}

	if model := viper.GetString("batch_model"); model != "" {
		if err := c.LoadModel(ctx, model); err != nil {
			c.Close()
			return err
		}
	}

	scanner := bufio.NewScanner(os.Stdin)
	for scanner.Scan() {
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}

		embeddings, err := c.Embed(ctx, []string{text})
		if err != nil {
			a.Logger().Error("failed to embed text", zap.Error(err))
			continue
		}

		out, err := json.Marshal(map[string]any{
			"text":      text,
			"embedding": embeddings[0],
		})
		if err != nil {
			a.Logger().Error("failed to marshal output", zap.Error(err))
			continue
		}
		fmt.Println(string(out))
	}

	if err := c.Close(); err != nil {
		return err
	}
	if err := <-errc; err != nil {
		return err
	}
	return scanner.Err()
}
