// Package cli implements the appraise command: submit items for appraisal
// and watch requests until their result is stored.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/curio-market/backend/internal/client"
	"github.com/curio-market/backend/internal/config"
	"github.com/curio-market/backend/internal/poller"
	"github.com/spf13/cobra"
)

type globals struct {
	cfg    *config.Config
	apiURL string
	token  string
	quiet  bool
}

func (g *globals) client() *client.Client {
	cfg := *g.cfg
	cfg.Client.BaseURL = g.apiURL
	cfg.Client.Token = g.token
	return client.NewClient(&cfg)
}

func (g *globals) poller(cmd *cobra.Command) *poller.Poller {
	var opts []poller.Option
	if !g.quiet {
		opts = append(opts, poller.WithObserver(progressObserver(cmd.ErrOrStderr())))
	}
	return poller.New(g.client(), poller.FromConfig(g.cfg.Poller), opts...)
}

// RootCmd returns the appraise command tree
func RootCmd(cfg *config.Config) *cobra.Command {
	g := &globals{cfg: cfg}

	root := &cobra.Command{
		Use:   "appraise",
		Short: "Submit items to Curio for appraisal and follow their results",
		Long: `appraise talks to the Curio API.

Submit an item, then wait for the appraisal with --wait or with the watch
command. Waiting polls with exponential backoff and stops at the first
terminal state: found, failed, not found or exhausted.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&g.apiURL, "api-url", cfg.Client.BaseURL, "base URL of the Curio API (API_BASE_URL)")
	root.PersistentFlags().StringVar(&g.token, "token", cfg.Client.Token, "bearer token for protected routes (API_TOKEN)")
	root.PersistentFlags().BoolVarP(&g.quiet, "quiet", "q", false, "do not print poll progress")

	root.AddCommand(submitCmd(g))
	root.AddCommand(watchCmd(g))
	root.AddCommand(showCmd(g))

	return root
}

// Execute runs the command tree, cancelling on SIGINT/SIGTERM
func Execute() int {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := RootCmd(config.LoadClient()).ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return 1
	}
	return 0
}
