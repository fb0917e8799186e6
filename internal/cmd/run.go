package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/Iron-Ham/poolminer/internal/config"
	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/Iron-Ham/poolminer/internal/event"
	"github.com/Iron-Ham/poolminer/internal/link"
	"github.com/Iron-Ham/poolminer/internal/logging"
	"github.com/Iron-Ham/poolminer/internal/miner"
	"github.com/Iron-Ham/poolminer/internal/pool"
	"github.com/Iron-Ham/poolminer/internal/session"
	"github.com/Iron-Ham/poolminer/internal/shares"
	"github.com/Iron-Ham/poolminer/internal/storage"
	"github.com/Iron-Ham/poolminer/internal/tui"
	"github.com/sourcegraph/conc"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

// Boot milestones signalled on the indicator.
const linkSettledSignal = 2

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Join the network and mine until interrupted",
	Long: `Run the full boot sequence: open the share ledger, join the configured
wireless network, then connect to the pool and mine until interrupted.

The pool session reconnects on its own after any failure. Share totals are
logged periodically and once more on shutdown.`,
	RunE: runRun,
}

var runTUI bool

func init() {
	runCmd.Flags().BoolVar(&runTUI, "tui", false, "Show a live dashboard (requires a terminal)")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	if errs := cfg.RequirePool(); len(errs) > 0 {
		return config.ValidationErrors(errs)
	}
	if runTUI && !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.NewValidationError("--tui requires an interactive terminal").WithField("tui")
	}

	logger, err := newLogger(cfg)
	if err != nil {
		return fmt.Errorf("failed to create logger: %w", err)
	}
	defer logger.Close()

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	opts := bootOptions{out: cmd.OutOrStdout(), tui: runTUI}
	if err := boot(ctx, cfg, logger, opts); err != nil {
		logger.Error("boot failed", "error", err.Error())
		return err
	}
	return nil
}

type bootOptions struct {
	out io.Writer
	tui bool
	// radio overrides the configured radio driver.
	radio func(*event.Bus) (radio, error)
	// dialer overrides the pool dialer.
	dialer pool.Dialer
	// mining, when set, is called once the session and reporter are
	// running, with the accountant they share.
	mining func(*shares.Accountant)
}

// boot runs the device lifecycle until ctx is done. It returns an error
// only when a boot step fails; once mining starts it runs until shutdown.
func boot(ctx context.Context, cfg *config.Config, logger *logging.Logger, opts bootOptions) error {
	logger.Info("booting", "version", Version, "pool", cfg.Pool.Endpoint(), "ssid", cfg.Network.SSID)
	bus := event.NewBus().WithLogger(logger)

	var (
		led    *ledger
		bootID int64
	)
	if cfg.Storage.Enabled {
		var err error
		led, err = openLedger(cfg.Storage.ResolvePath(), logger)
		if err != nil {
			return errors.Wrap(err, "storage init")
		}
		defer led.Close()

		bootID, err = led.store.RecordBoot(ctx, storage.Boot{Version: Version, SSID: cfg.Network.SSID})
		if err != nil {
			return errors.Wrap(err, "storage init")
		}
	}

	ind, closeIndicator := newIndicator(cfg, logger)
	defer closeIndicator()
	ind.Hold(true)

	newR := opts.radio
	if newR == nil {
		newR = func(bus *event.Bus) (radio, error) { return newRadio(cfg, bus, logger) }
	}
	r, err := newR(bus)
	if err != nil {
		ind.Hold(false)
		return err
	}
	defer r.Close()

	outcome, result, err := connectLink(ctx, cfg, bus, r, logger)
	ind.Hold(false)
	if led != nil {
		if uerr := led.store.UpdateLink(context.WithoutCancel(ctx), bootID, result.Outcome, result.Address); uerr != nil {
			logger.Warn("failed to record link outcome", "error", uerr.Error())
		}
	}
	if ctx.Err() != nil {
		return nil
	}
	if outcome != link.OutcomeConnected {
		if cfg.Network.HaltOnFailure {
			return err
		}
		logger.Warn("continuing without a confirmed link", "outcome", outcome.String())
	}
	ind.Signal(linkSettledSignal)

	eval, err := miner.NewEvaluator(cfg.Miner.Evaluator)
	if err != nil {
		return err
	}
	searcher := miner.NewSearcher(eval, cfg.Miner.MaxSeedLength, pool.Job{Difficulty: cfg.Miner.Difficulty}.Limit())
	acct := shares.NewAccountant()

	sessOpts := []session.Option{
		session.WithBus(bus),
		session.WithIndicator(ind),
		session.WithLogger(logger),
	}
	if led != nil {
		sessOpts = append(sessOpts, session.WithLedger(led.store, bootID))
	}
	if opts.dialer != nil {
		sessOpts = append(sessOpts, session.WithDialer(opts.dialer))
	}
	sess := session.New(session.FromConfig(cfg), searcher, acct, sessOpts...)
	reporter := shares.NewReporter(acct, cfg.Reporter.Interval(), logger)

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	var wg conc.WaitGroup
	wg.Go(func() { sess.Run(runCtx) })
	wg.Go(func() { reporter.Run(runCtx) })
	if opts.mining != nil {
		opts.mining(acct)
	}

	if opts.tui {
		app := tui.New(bus, acct, tui.Info{
			Endpoint:   cfg.Pool.Endpoint(),
			Identity:   cfg.Pool.Identity,
			Evaluator:  cfg.Miner.Evaluator,
			Difficulty: cfg.Miner.Difficulty,
			SSID:       cfg.Network.SSID,
			Link:       result.Outcome,
			Address:    result.Address,
		})
		if err := app.Run(runCtx); err != nil {
			logger.Error("dashboard failed", "error", err.Error())
		}
		cancel()
	} else {
		fmt.Fprintf(opts.out, "mining against %s as %s (press Ctrl+C to stop)\n", cfg.Pool.Endpoint(), cfg.Pool.Identity)
		<-runCtx.Done()
	}

	wg.Wait()
	snap := acct.Snapshot()
	fmt.Fprintf(opts.out, "shares: %d accepted, %d rejected\n", snap.Accepted, snap.Rejected)
	return nil
}
