// Package cmd defines and implements the CLI commands for the opinionscan executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/opinionscan/internal/api"
	"github.com/JakeFAU/opinionscan/internal/app"
	"github.com/JakeFAU/opinionscan/internal/config"
	"github.com/JakeFAU/opinionscan/internal/logging"
	"github.com/JakeFAU/opinionscan/internal/progress"
	"github.com/JakeFAU/opinionscan/internal/source"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App defines the application interface that commands will use.
// This allows us to inject a fake app during tests.
type App interface {
	Logger() *zap.Logger
	Sources() *source.Registry
	Extractor() api.Extractor
	DeepCrawl() api.DeepCrawler
	Store() app.Store
	Emitter() progress.Emitter
	APIServer() *api.Server
	Close(ctx context.Context) error
}

// newApp is the application factory. It's a variable so tests can replace it.
var newApp = func(ctx context.Context, cfgPath string) (App, *config.Config, error) {
	cfg, err := config.Load(cfgPath)
	if err != nil {
		return nil, nil, err
	}
	logger, err := logging.New(logging.Options{Development: cfg.Logging.Development, Level: cfg.Logging.Level})
	if err != nil {
		return nil, nil, err
	}
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	return a, &cfg, nil
}

type appState struct {
	app App
	cfg *config.Config
}

// newRootCmd creates and configures the root command.
func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "opinionscan",
		Short: "Collects public opinion items from search and news listings.",
		Long: `opinionscan scrapes listing pages from search engines and news indexes,
resolves intermediate links, validates candidates and deep-crawls article
bodies with self-healing per-site extraction rules.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			appInstance, cfg, err := newApp(cmd.Context(), cfgFile)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			ctx := context.WithValue(cmd.Context(), appKey, &appState{app: appInstance, cfg: cfg})
			cmd.SetContext(ctx)
			return nil
		},

		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			state, ok := cmd.Context().Value(appKey).(*appState)
			if !ok || state == nil {
				return nil
			}
			if err := state.app.Close(context.WithoutCancel(cmd.Context())); err != nil {
				return fmt.Errorf("close application: %w", err)
			}
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); env vars use the OPINION_ prefix")

	cmd.AddCommand(newScrapeCmd(), newExtractCmd(), newDeepCrawlCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (*appState, error) {
	state, ok := ctx.Value(appKey).(*appState)
	if !ok || state == nil || state.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return state, nil
}

// Execute is the main entry point.
func Execute(ctx context.Context) {
	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
