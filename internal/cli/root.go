// Package cli implements the vault command line.
package cli

import (
	"crypto/rand"
	"errors"
	"io"
	"os"

	"github.com/filecoin-project/go-clock"
	"github.com/spf13/cobra"

	"github.com/dtroode/gophkeeper-vault/internal/config"
	"github.com/dtroode/gophkeeper-vault/internal/logger"
)

var errPasswordRequired = errors.New("password is required (use --password or VAULT_PASSWORD)")

// BuildInfo is printed by the version command.
type BuildInfo struct {
	Version string
	Date    string
	Commit  string
}

// App holds the dependencies shared by all commands.
type App struct {
	cfg    *config.Config
	logger *logger.Logger
	build  BuildInfo
	clock  clock.Clock
	rand   io.Reader

	password  string
	storeName string
}

// Option configures an App.
type Option func(*App)

// WithBuildInfo sets the build metadata.
func WithBuildInfo(b BuildInfo) Option {
	return func(a *App) { a.build = b }
}

// WithClock replaces the clock used to version key identifiers.
func WithClock(c clock.Clock) Option {
	return func(a *App) { a.clock = c }
}

// WithRandom replaces the source of generated keys, salts and nonces.
func WithRandom(r io.Reader) Option {
	return func(a *App) { a.rand = r }
}

func New(cfg *config.Config, logger *logger.Logger, opts ...Option) *App {
	a := &App{
		cfg:    cfg,
		logger: logger,
		build:  BuildInfo{Version: "N/A", Date: "N/A", Commit: "N/A"},
		clock:  clock.New(),
		rand:   rand.Reader,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Command builds the root command.
func (a *App) Command() *cobra.Command {
	root := &cobra.Command{
		Use:   "vault",
		Short: "Password-protected key store and file encryption",
		Long: `vault derives keys from passwords with Argon2id, encrypts files and text
with ChaCha20-Poly1305 and keeps named 32-byte keys in an encrypted key store.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(os.Stdout)

	root.PersistentFlags().StringVar(&a.password, "password", "", "password (or use VAULT_PASSWORD env var)")

	root.AddCommand(
		a.deriveCommand(),
		a.encryptCommand(),
		a.decryptCommand(),
		a.keystoreCommand(),
		a.versionCommand(),
	)

	NewLogging(a.logger).Wrap(root)

	return root
}

func (a *App) requirePassword() (string, error) {
	if a.password != "" {
		return a.password, nil
	}
	if a.cfg.Password != "" {
		return a.cfg.Password, nil
	}
	return "", errPasswordRequired
}

func (a *App) versionCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print build information",
		Args:  cobra.NoArgs,
		Run: func(cmd *cobra.Command, _ []string) {
			cmd.Printf("Build version: %s\nBuild date: %s\nBuild commit: %s\n",
				a.build.Version, a.build.Date, a.build.Commit)
		},
	}
}
