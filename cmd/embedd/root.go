package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	batch "github.com/embedworks/embedd/cmd/embedd/batch"
	serve "github.com/embedworks/embedd/cmd/embedd/serve"
	worker "github.com/embedworks/embedd/cmd/embedd/worker"
	"github.com/embedworks/embedd/internal/app"
	"github.com/embedworks/embedd/internal/channel"
	"github.com/embedworks/embedd/internal/config"
	"github.com/embedworks/embedd/pkg/client"
)

const envPrefix = "EMBEDD"

var Cmd = &cobra.Command{
	Use:   "embedd [text to embed]",
	Short: "Resident text-embedding worker",
	Long:  "A long-running embedding worker that keeps its model loaded between requests, plus an HTTP gateway and batch tooling around it",
	Args:  cobra.ArbitraryArgs,

	// Runs before this command and any subcommands
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		viper.SetEnvPrefix(envPrefix)
		viper.SetEnvKeyReplacer(strings.NewReplacer(
			`-`, `_`,
			`.`, `_`,
		))
		viper.AutomaticEnv()

		if err := viper.BindPFlags(cmd.Flags()); err != nil {
			return err
		}
		if err := viper.BindPFlags(cmd.PersistentFlags()); err != nil {
			return err
		}

		return config.LoadEnvAndConfigFiles()
	},

	RunE: embedOnce,
}

func Execute() {
	if err := Cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	pflags := Cmd.PersistentFlags()

	pflags.String("environment", "dev", "Environment configuration")
	pflags.String("default-model", "all-MiniLM-L6-v2", "Model loaded at startup and used when no explicit load is issued")
	pflags.String("provider", "local", "Embedding backend: 'local' or 'openai'")

	viper.BindPFlag("environment", pflags.Lookup("environment"))
	viper.BindPFlag("default_model", pflags.Lookup("default-model"))
	viper.BindPFlag("provider", pflags.Lookup("provider"))

	Cmd.AddCommand(worker.Cmd, serve.Cmd, batch.Cmd)
	Cmd.CompletionOptions.HiddenDefaultCmd = true
}

// embedOnce embeds the positional arguments as one text and prints the
// result, running the worker loop in-process.
func embedOnce(cmd *cobra.Command, args []string) error {
	if len(args) == 0 {
		return cmd.Help()
	}

	a, err := app.New(config.MustGetConfig())
	if err != nil {
		return err
	}
	defer a.Close()

	ch, peer := channel.NewMemoryPair(4, a.Config().PollTimeout())
	loop, err := a.NewWorkerLoop(ch)
	if err != nil {
		return err
	}

	ctx := context.Background()
	errc := make(chan error, 1)
	go func() {
		errc <- loop.Run(ctx)
	}()

	c, err := client.NewMemory(ctx, peer)
	if err != nil {
		return err
	}

	text := strings.Join(args, " ")
	embeddings, err := c.Embed(ctx, []string{text})
	if err != nil {
		c.Close()
		return err
	}
	if err := c.Close(); err != nil {
		return err
	}
	if err := <-errc; err != nil {
		return err
	}

	out, err := json.MarshalIndent(map[string]any{
		"text":      text,
		"embedding": embeddings[0],
		"dimension": len(embeddings[0]),
		"model":     c.Model(),
	}, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(out))

	return nil
}
