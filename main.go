package main

import (
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"webhelp-server/src/config"
	"webhelp-server/src/license"
	"webhelp-server/src/server"
)

var errInvalidLicense = errors.New("license key is invalid")

func main() {
	_ = godotenv.Load()

	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "webhelp-server [port] [static-dir]",
		Short:        "Serve Terma WebHelp files behind a license key check",
		Args:         cobra.MaximumNArgs(2),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(args)
			if err != nil {
				return err
			}

			logger := newLogger(cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			srv, err := server.New(cfg, logger)
			if err != nil {
				return fmt.Errorf("failed to start server: %w", err)
			}
			defer func() {
				if err := srv.Close(); err != nil {
					logger.Warn().Err(err).Msg("failed to close session database")
				}
			}()

			return srv.Run(ctx)
		},
	}

	cmd.AddCommand(newCheckCmd())

	return cmd
}

// newCheckCmd reports whether a key is in the license file.
func newCheckCmd() *cobra.Command {
	return &cobra.Command{
		Use:          "check <key>",
		Short:        "Check a license key against the license file",
		Args:         cobra.ExactArgs(1),
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load()
			if err != nil {
				return err
			}

			licenses, err := license.Load(cfg.LicenseFile)
			if err != nil {
				return err
			}

			if !licenses.Verify(args[0]) {
				fmt.Fprintln(cmd.OutOrStdout(), "invalid")
				return errInvalidLicense
			}

			fmt.Fprintln(cmd.OutOrStdout(), "valid")
			return nil
		},
	}
}

// loadConfig reads the environment, then lets the positional port and
// static-dir arguments override it.
func loadConfig(args []string) (config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return config.Config{}, err
	}

	if len(args) > 0 {
		port, err := strconv.Atoi(args[0])
		if err != nil {
			return config.Config{}, fmt.Errorf("invalid port %q: %w", args[0], err)
		}
		cfg.Port = port
	}
	if len(args) > 1 {
		cfg.StaticDir = args[1]
	}

	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}

	return cfg, nil
}

func newLogger(level string) zerolog.Logger {
	lvl, err := zerolog.ParseLevel(level)
	if err != nil {
		lvl = zerolog.InfoLevel
	}

	return log.Output(zerolog.ConsoleWriter{Out: os.Stderr}).
		With().
		Caller().
		Logger().
		Level(lvl)
}
