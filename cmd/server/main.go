// Command server runs the land registry API.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/automaxprocs/maxprocs"

	"landregistry/internal/platform/config"
	"landregistry/internal/platform/logger"
)

const programName = "landregistry"

var globalFlags = struct {
	configFile string
	debug      bool
}{}

type cliContextKey struct{}

type cliEnv struct {
	cfg    *config.Config
	logger *slog.Logger
}

func envFrom(cmd *cobra.Command) *cliEnv {
	env, _ := cmd.Context().Value(cliContextKey{}).(*cliEnv)
	return env
}

func main() {
	rootCmd := &cobra.Command{
		Use:           programName,
		Short:         "Land registry API server",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), envFrom(cmd))
		},
	}
	rootCmd.PersistentFlags().StringVar(&globalFlags.configFile, "config", "", "path to a YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&globalFlags.debug, "debug", "D", false, "enable debug logging")

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, _ []string) error {
		cfg, err := config.Load(globalFlags.configFile)
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		if globalFlags.debug {
			cfg.Log.Level = "debug"
		}
		log := logger.New(cfg.Log.Format, cfg.Log.Level).With("component", programName)
		slog.SetDefault(log)
		if _, err := maxprocs.Set(maxprocs.Logger(func(format string, v ...any) {
			log.Info(fmt.Sprintf(format, v...))
		})); err != nil {
			log.Warn("failed to set GOMAXPROCS", "error", err)
		}
		cmd.SetContext(context.WithValue(cmd.Context(), cliContextKey{}, &cliEnv{cfg: cfg, logger: log}))
		return nil
	}

	rootCmd.AddCommand(serveCommand(), migrateCommand(), bootstrapAdminCommand())

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		slog.Error("command failed", "error", err)
		os.Exit(1)
	}
}

func serveCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Run the HTTP API (default)",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return serve(cmd.Context(), envFrom(cmd))
		},
	}
}

func migrateCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "migrate",
		Short: "Create or upgrade the database schema",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := envFrom(cmd)
			b, err := openBackends(cmd.Context(), env.cfg, env.logger, nil)
			if err != nil {
				return err
			}
			defer b.Close()
			for _, version := range b.migrated {
				env.logger.Info("migration applied", "version", version)
			}
			env.logger.Info("schema up to date", "driver", env.cfg.Database.Driver)
			return nil
		},
	}
}

func bootstrapAdminCommand() *cobra.Command {
	var flags struct {
		username   string
		password   string
		nationalID string
		email      string
	}
	cmd := &cobra.Command{
		Use:   "bootstrap-admin",
		Short: "Create the first administrator account",
		RunE: func(cmd *cobra.Command, _ []string) error {
			env := envFrom(cmd)
			if flags.password == "" {
				flags.password = os.Getenv("LANDREG_BOOTSTRAP_PASSWORD")
			}
			b, err := openBackends(cmd.Context(), env.cfg, env.logger, nil)
			if err != nil {
				return err
			}
			defer b.Close()
			admin, err := bootstrapAdmin(cmd.Context(), b, env.logger, flags.username, flags.password, flags.nationalID, flags.email)
			if err != nil {
				return err
			}
			env.logger.Info("administrator created", "user_id", admin.ID, "username", admin.Username)
			return nil
		},
	}
	cmd.Flags().StringVar(&flags.username, "username", "admin", "administrator username")
	cmd.Flags().StringVar(&flags.password, "password", "", "administrator password (or LANDREG_BOOTSTRAP_PASSWORD)")
	cmd.Flags().StringVar(&flags.nationalID, "national-id", "", "administrator national id")
	cmd.Flags().StringVar(&flags.email, "email", "", "administrator email")
	_ = cmd.MarkFlagRequired("national-id")
	return cmd
}
