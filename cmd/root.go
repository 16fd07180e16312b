// Package cmd defines and implements the CLI commands for the proxyharvest executable.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/proxyharvest/internal/app"
	"github.com/JakeFAU/proxyharvest/internal/config"
	"github.com/JakeFAU/proxyharvest/internal/export"
	"github.com/JakeFAU/proxyharvest/internal/logging"
	"github.com/JakeFAU/proxyharvest/internal/pipeline"
)

// annotationNoServices marks commands that only need configuration.
const annotationNoServices = "proxyharvest/no-services"

// runtimeKeyType is the key for storing the runtime in the command context.
type runtimeKeyType string

const runtimeKey runtimeKeyType = "runtime"

// Services is what the subcommands use. *app.App backs it in production and
// tests substitute a fake.
type Services interface {
	Run(ctx context.Context) pipeline.Summary
	Export(ctx context.Context) (export.Report, error)
	ExportPaths(now time.Time) []string
	Close()
}

type appServices struct {
	*app.App
}

func (s appServices) Run(ctx context.Context) pipeline.Summary {
	return s.Runner().Run(ctx)
}

func (s appServices) Export(ctx context.Context) (export.Report, error) {
	return s.Exporter().Export(ctx)
}

func (s appServices) ExportPaths(now time.Time) []string {
	return s.Exporter().Paths(now)
}

// newServices is the service factory. It's a variable so tests can replace it.
var newServices = func(ctx context.Context, cfg config.Config, logger *zap.Logger) (Services, error) {
	a, err := app.New(ctx, cfg, logger)
	if err != nil {
		return nil, err
	}
	return appServices{App: a}, nil
}

// runtime carries what PersistentPreRunE built into the subcommands.
type runtime struct {
	cfg      config.Config
	logger   *zap.Logger
	services Services

	closeOnce sync.Once
}

// close releases the services and flushes the logger once.
func (rt *runtime) close() {
	rt.closeOnce.Do(func() {
		if rt.services != nil {
			rt.services.Close()
		}
		_ = rt.logger.Sync()
	})
}

func newRootCmd() *cobra.Command {
	var cfgFile string

	cmd := &cobra.Command{
		Use:   "proxyharvest",
		Short: "Harvests, deduplicates and exports public proxy share links.",
		Long: `proxyharvest searches GitHub and cyberspace search platforms for proxy
subscription sources, extracts the share links they publish, stores each
distinct live link once and exports subscription files grouped by origin.`,
		SilenceUsage: true,

		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := config.Load(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			applyFlagOverrides(cmd, &cfg)

			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("init logger: %w", err)
			}
			rt := &runtime{cfg: cfg, logger: logger}

			if cmd.Annotations[annotationNoServices] == "" {
				rt.services, err = newServices(cmd.Context(), cfg, logger)
				if err != nil {
					return fmt.Errorf("failed to initialize application services: %w", err)
				}
			}
			cmd.SetContext(context.WithValue(cmd.Context(), runtimeKey, rt))
			return nil
		},

		PersistentPostRun: func(cmd *cobra.Command, _ []string) {
			if rt, ok := cmd.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
				rt.close()
			}
		},
	}

	cmd.PersistentFlags().StringVar(&cfgFile, "config", "", "optional YAML config file (environment variables override it)")

	cmd.AddCommand(newRunCmd(), newExportCmd(), newKeywordsCmd())
	return cmd
}

// applyFlagOverrides folds command flags into the loaded config. Only flags
// the user actually set take effect.
func applyFlagOverrides(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("skip-github") {
		skip, _ := flags.GetBool("skip-github")
		cfg.Harvest.RunGitHub = !skip
	}
	if flags.Changed("skip-platforms") {
		skip, _ := flags.GetBool("skip-platforms")
		cfg.Harvest.RunPlatforms = !skip
	}
	if flags.Changed("workers") {
		cfg.Harvest.MaxWorkers, _ = flags.GetInt("workers")
	}
	if flags.Changed("limit") && cmd.Name() == "export" {
		cfg.Export.Limit, _ = flags.GetInt("limit")
	}
}

func resolveRuntime(ctx context.Context) (*runtime, error) {
	rt, ok := ctx.Value(runtimeKey).(*runtime)
	if !ok || rt == nil {
		return nil, errors.New("application runtime not initialized")
	}
	return rt, nil
}

func resolveServices(ctx context.Context) (*runtime, error) {
	rt, err := resolveRuntime(ctx)
	if err != nil {
		return nil, err
	}
	if rt.services == nil {
		return nil, errors.New("application services not initialized")
	}
	return rt, nil
}

// executeCommand runs root and then closes the executed command's runtime.
// Cobra skips PersistentPostRun when RunE fails, so the close happens here too.
func executeCommand(ctx context.Context, root *cobra.Command) error {
	executed, err := root.ExecuteContextC(ctx)
	if executed != nil && executed.Context() != nil {
		if rt, ok := executed.Context().Value(runtimeKey).(*runtime); ok && rt != nil {
			rt.close()
		}
	}
	return err
}

// Execute is the main entry point. SIGINT and SIGTERM cancel the run.
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := executeCommand(ctx, newRootCmd())
	stop()
	if err == nil {
		return
	}
	logger, lerr := logging.New(false)
	if lerr != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
	logger.Fatal("command execution failed", zap.Error(err))
}
