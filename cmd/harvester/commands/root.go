package commands

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/nexconsult/quote-harvester/internal/config"
	"github.com/nexconsult/quote-harvester/internal/logger"
	"github.com/nexconsult/quote-harvester/internal/services"
)

// app holds what every subcommand needs once the root has loaded configuration
type app struct {
	cfg    *config.Config
	logger *logrus.Logger
}

func newRootCmd() *cobra.Command {
	a := &app{}

	root := &cobra.Command{
		Use:           "harvester",
		Short:         "harvester collects quotation events and their line items from the supplier portal.",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			// a missing .env is fine, the environment may be set already
			_ = godotenv.Load()

			cfg, err := config.Load()
			if err != nil {
				err = fmt.Errorf("load configuration: %w", err)
				startupLog := logger.NewWithOutput("info", "text", cmd.ErrOrStderr())
				services.NotifyStartupFailure(cmd.Context(), config.LoadNotify(), logger.Component(startupLog, "startup"), err)
				return err
			}
			a.cfg = cfg
			a.logger = logger.NewWithOutput(cfg.Log.Level, cfg.Log.Format, cmd.ErrOrStderr())
			return nil
		},
	}

	root.AddCommand(
		newRunCmd(a, "discover", "Walk the event listing of every tenant and store new events and links."),
		newRunCmd(a, "items", "Extract line items of pending events inside the lookback window."),
		newRunCmd(a, "reconcile", "Mark pending events that already have line items as included."),
		newRunCmd(a, "run", "Run discover, items and reconcile in order."),
		newEncryptCmd(a),
		newKeygenCmd(),
		newCredentialsCmd(a),
	)
	return root
}

// ExecuteContext runs the CLI and returns the process exit code
func ExecuteContext(ctx context.Context) int {
	root := newRootCmd()
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(root.ErrOrStderr(), "error:", err)
		return 1
	}
	return 0
}

// readSecret reads a secret from r. Only the first line counts, without its
// line ending.
func readSecret(r io.Reader) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r, 64<<10))
	if err != nil {
		return "", fmt.Errorf("read stdin: %w", err)
	}

	line, _, _ := strings.Cut(string(raw), "\n")
	line = strings.TrimRight(line, "\r")
	if line == "" {
		return "", fmt.Errorf("no secret on stdin")
	}
	return line, nil
}
