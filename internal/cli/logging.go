package cli

import (
	"time"

	"github.com/spf13/cobra"

	"github.com/dtroode/gophkeeper-vault/internal/logger"
	"github.com/dtroode/gophkeeper-vault/internal/model"
)

// Logging wraps command handlers to log their name, duration and outcome.
type Logging struct {
	logger *logger.Logger
}

// NewLogging creates a new Logging middleware.
func NewLogging(logger *logger.Logger) *Logging {
	return &Logging{logger: logger}
}

// Wrap installs the middleware on cmd and every subcommand with a RunE.
func (l *Logging) Wrap(cmd *cobra.Command) {
	for _, c := range cmd.Commands() {
		l.Wrap(c)
	}
	if cmd.RunE == nil {
		return
	}

	next := cmd.RunE
	cmd.RunE = func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		name := cmd.CommandPath()

		l.logger.Debug("Command started", "command", name)

		err := next(cmd, args)

		duration := time.Since(start)

		if err != nil {
			l.logger.Error("Command failed",
				"command", name,
				"duration_ms", duration.Milliseconds(),
				"kind", string(model.KindOf(err)),
				"error", err.Error())
			return err
		}

		l.logger.Debug("Command completed",
			"command", name,
			"duration_ms", duration.Milliseconds())

		return nil
	}
}
