// Package cmd defines the CLI commands for the validator executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/crawl-validator/internal/app"
	"github.com/JakeFAU/crawl-validator/internal/config"
	"github.com/JakeFAU/crawl-validator/internal/logging"
	"github.com/JakeFAU/crawl-validator/internal/validation"
)

// appKeyType is the key for storing the App in the context.
type appKeyType string

const appKey appKeyType = "app"

// App is the surface the subcommands need, so tests can inject a fake.
type App interface {
	RunOnce(ctx context.Context, inputPath string) (validation.Outcome, error)
	Serve(ctx context.Context) error
	Logger() *zap.Logger
	Close(ctx context.Context)
}

// newApp is the application factory. It is a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (App, error) {
	return app.Build(ctx, cfg, logger)
}

// newRootCmd builds the command tree. onBuild receives the application once it is
// initialized so the caller can close it however the command exits.
func newRootCmd(onBuild func(App)) *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:   "validator",
		Short: "Validates the results of finished crawler runs.",
		Long: `validator checks a finished crawler execution, actor run or dataset:
it samples the produced records, applies quality rules, stores the error list
as OUTPUT and notifies or triggers a follow-up job depending on the outcome.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development, cfg.Logging.Level)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			appInstance, err := newApp(cmd.Context(), cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to initialize application services: %w", err)
			}
			if onBuild != nil {
				onBuild(appInstance)
			}
			cmd.SetContext(context.WithValue(cmd.Context(), appKey, appInstance))
			return nil
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (YAML); environment variables use the VALIDATOR_ prefix")
	cmd.AddCommand(newRunCmd(), newServeCmd())
	return cmd
}

func resolveApp(ctx context.Context) (App, error) {
	appInstance, ok := ctx.Value(appKey).(App)
	if !ok || appInstance == nil {
		return nil, errors.New("application services not initialized")
	}
	return appInstance, nil
}

// executeRoot runs the command tree and closes the application afterwards. cobra
// skips post-run hooks when a command fails, so closing happens here instead.
func executeRoot(ctx context.Context, args []string) error {
	var instance App
	root := newRootCmd(func(a App) { instance = a })
	if args != nil {
		root.SetArgs(args)
	}
	err := root.ExecuteContext(ctx)
	if instance != nil {
		instance.Close(context.WithoutCancel(ctx))
	}
	return err
}

// Execute is the main entry point.
func Execute() {
	if err := executeRoot(context.Background(), nil); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
