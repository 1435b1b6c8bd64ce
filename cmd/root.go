// Package cmd defines the bbdcbot CLI commands.
package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/JakeFAU/bbdc-slot-bot/internal/booking"
	"github.com/JakeFAU/bbdc-slot-bot/internal/config"
	"github.com/JakeFAU/bbdc-slot-bot/internal/logging"
	notifymemory "github.com/JakeFAU/bbdc-slot-bot/internal/notify/memory"
	"github.com/JakeFAU/bbdc-slot-bot/internal/server"
	"github.com/JakeFAU/bbdc-slot-bot/internal/worker"
)

// version is overridden at build time with -ldflags "-X".
var version = "dev"

const (
	annotationNeedsApp = "bbdcbot/needs-app"
	flagDryRun         = "dry-run"
)

type stateKeyType struct{}

var stateKey stateKeyType

// App is the slice of the application the commands use. Tests swap in fakes
// through newApp.
type App interface {
	Run(ctx context.Context) error
	RunOnce(ctx context.Context) (worker.Result, error)
	Scan(ctx context.Context, username string) (booking.Slots, error)
	Users() []*booking.User
	Recorded() []notifymemory.Message
	Close(ctx context.Context) error
}

// state is what PersistentPreRunE hands to subcommands.
type state struct {
	cfg    *config.Config
	logger *zap.Logger
	app    App
	dryRun bool
}

// newApp is the application factory; a variable so tests can replace it.
var newApp = func(ctx context.Context, cfg *config.Config, logger *zap.Logger, opts server.Options) (App, error) {
	app, err := server.Build(ctx, cfg, logger, opts)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// loadConfig is swapped in tests to avoid touching the filesystem.
var loadConfig = func(path string) (config.Config, error) {
	return config.Load(config.ResolvePath(path))
}

func newRootCmd() *cobra.Command {
	var cfgFile string
	cmd := &cobra.Command{
		Use:           "bbdcbot",
		Short:         "Polls BBDC for released practical slots and books preferred ones.",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cfgFile)
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			logger, err := logging.New(cfg.Logging.Development)
			if err != nil {
				return fmt.Errorf("logger init failed: %w", err)
			}
			zap.ReplaceGlobals(logger)

			st := &state{cfg: &cfg, logger: logger}
			if flag := cmd.Flags().Lookup(flagDryRun); flag != nil {
				st.dryRun = flag.Value.String() == "true"
			}
			if cmd.Annotations[annotationNeedsApp] == "true" {
				st.app, err = newApp(cmd.Context(), st.cfg, logger, server.Options{DryRun: st.dryRun, Version: version})
				if err != nil {
					return fmt.Errorf("failed to initialize application services: %w", err)
				}
			}
			cmd.SetContext(context.WithValue(cmd.Context(), stateKey, st))
			return nil
		},
		PersistentPostRunE: func(cmd *cobra.Command, _ []string) error {
			st, ok := cmd.Context().Value(stateKey).(*state)
			if !ok {
				return nil
			}
			var err error
			if st.app != nil {
				err = st.app.Close(context.WithoutCancel(cmd.Context()))
			}
			_ = st.logger.Sync()
			return err
		},
	}
	cmd.PersistentFlags().StringVar(&cfgFile, "config", "",
		fmt.Sprintf("config file (default $%s or %s)", config.PathEnv, config.DefaultPath))

	cmd.AddCommand(newRunCmd(), newOnceCmd(), newSlotsCmd(), newConfigCmd())
	return cmd
}

// Execute is the main entry point.
func Execute() {
	if err := execute(context.Background(), os.Args[1:], os.Stdout); err != nil {
		logger, lerr := logging.New(false)
		if lerr != nil {
			fmt.Fprintln(os.Stderr, err)
			os.Exit(1)
		}
		logger.Fatal("command execution failed", zap.Error(err))
	}
}

func execute(ctx context.Context, args []string, out io.Writer) error {
	root := newRootCmd()
	root.SetArgs(args)
	root.SetOut(out)
	if err := root.ExecuteContext(ctx); err != nil {
		return fmt.Errorf("bbdcbot: %w", err)
	}
	return nil
}

func resolveState(ctx context.Context) (*state, error) {
	st, ok := ctx.Value(stateKey).(*state)
	if !ok || st == nil {
		return nil, errors.New("configuration not loaded")
	}
	return st, nil
}

func resolveApp(ctx context.Context) (*state, error) {
	st, err := resolveState(ctx)
	if err != nil {
		return nil, err
	}
	if st.app == nil {
		return nil, errors.New("application services not initialized")
	}
	return st, nil
}

func needsApp() map[string]string {
	return map[string]string{annotationNeedsApp: "true"}
}
