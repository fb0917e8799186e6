package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/poolminer/internal/config"
	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/link"
	"github.com/spf13/cobra"
)

var connectCmd = &cobra.Command{
	Use:   "connect",
	Short: "Join the configured network and report the outcome",
	Long: `Run only the link negotiation: start the radio, associate with the
configured network and retry on disconnects until an address is acquired or
the retry budget is exhausted. Exits non-zero unless the link is up.`,
	RunE: runConnect,
}

func init() {
	rootCmd.AddCommand(connectCmd)
}

func runConnect(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := event.NewBus().WithLogger(logger)
	r, err := newRadio(cfg, bus, logger)
	if err != nil {
		return err
	}
	defer r.Close()

	outcome, result, err := connectLink(ctx, cfg, bus, r, logger)
	out := cmd.OutOrStdout()
	switch outcome {
	case link.OutcomeConnected:
		fmt.Fprintf(out, "connected to %q with address %s after %d attempt(s)\n", result.SSID, result.Address, result.Attempts)
		return nil
	case link.OutcomeFailed:
		fmt.Fprintf(out, "failed to connect to %q after %d attempt(s)\n", result.SSID, result.Attempts)
	default:
		fmt.Fprintln(out, "link outcome undetermined")
	}
	return err
}
