package cmd

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/Iron-Ham/poolminer/internal/config"
	"github.com/Iron-Ham/poolminer/internal/storage"
	"github.com/spf13/cobra"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show share totals from the ledger",
	Long: `Display accepted and rejected share totals recorded in the ledger across
all boots, along with the most recent boot and shares.`,
	RunE: runStats,
}

var (
	statsJSON   bool // Output as JSON
	statsRecent int  // Number of recent shares to list
)

func init() {
	statsCmd.Flags().BoolVar(&statsJSON, "json", false, "Output statistics as JSON")
	statsCmd.Flags().IntVarP(&statsRecent, "recent", "n", 5, "Number of recent shares to list")
	rootCmd.AddCommand(statsCmd)
}

// statsReport is the --json output.
type statsReport struct {
	Ledger string          `json:"ledger"`
	Totals storage.Totals  `json:"totals"`
	Recent []storage.Share `json:"recent"`
}

func runStats(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	path := cfg.Storage.ResolvePath()
	if _, err := os.Stat(path); err != nil {
		if os.IsNotExist(err) {
			fmt.Fprintf(cmd.OutOrStdout(), "No ledger at %s\n", path)
			return nil
		}
		return fmt.Errorf("failed to stat ledger: %w", err)
	}

	store, err := storage.Open(path, nil)
	if err != nil {
		return err
	}
	defer store.Close()

	ctx := cmd.Context()
	totals, err := store.Totals(ctx)
	if err != nil {
		return err
	}
	recent, err := store.RecentShares(ctx, statsRecent)
	if err != nil {
		return err
	}

	report := statsReport{Ledger: store.Path(), Totals: totals, Recent: recent}
	if report.Recent == nil {
		report.Recent = []storage.Share{}
	}

	if statsJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	printStats(cmd.OutOrStdout(), report)
	return nil
}

func printStats(w io.Writer, r statsReport) {
	fmt.Fprintf(w, "Ledger: %s\n\n", r.Ledger)
	fmt.Fprintf(w, "Boots:    %d\n", r.Totals.Boots)
	fmt.Fprintf(w, "Accepted: %d\n", r.Totals.Accepted)
	fmt.Fprintf(w, "Rejected: %d\n", r.Totals.Rejected)
	if total := r.Totals.Accepted + r.Totals.Rejected; total > 0 {
		fmt.Fprintf(w, "Accept rate: %.1f%%\n", 100*float64(r.Totals.Accepted)/float64(total))
	}

	if b := r.Totals.LastBoot; b != nil {
		fmt.Fprintf(w, "\nLast boot: %s (version %s, ssid %q, link %s",
			b.BootedAt.Local().Format(time.DateTime), b.Version, b.SSID, orDash(b.LinkOutcome))
		if b.Address != "" {
			fmt.Fprintf(w, ", address %s", b.Address)
		}
		fmt.Fprintln(w, ")")
	}

	if len(r.Recent) == 0 {
		return
	}
	fmt.Fprintln(w, "\nRecent shares:")
	for _, sh := range r.Recent {
		verdict := "accepted"
		if !sh.Accepted {
			verdict = "rejected"
			if sh.Reason != "" {
				verdict += " (" + sh.Reason + ")"
			}
		}
		fmt.Fprintf(w, "  %s  %-20s nonce %-8d %s\n",
			sh.SubmittedAt.Local().Format(time.DateTime), sh.Seed, sh.Nonce, verdict)
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
