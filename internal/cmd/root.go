package cmd

import (
	"fmt"
	"io"
	"strings"

	"github.com/Iron-Ham/poolminer/internal/config"
	"github.com/Iron-Ham/poolminer/internal/errors"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

// Version is set at build time with -ldflags "-X .../internal/cmd.Version=...".
var Version = "dev"

var rootCmd = &cobra.Command{
	Use:   "poolminer",
	Short: "Proof-of-work pool client for small networked devices",
	Long: `Poolminer joins a wireless network, connects to a work-distribution pool
over TCP and searches each job's nonce range for a matching proof, reporting
accepted and rejected shares.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command and reports any error on stderr.
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// reportError prints err with a hint matching its classification.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	switch {
	case errors.IsRetryable(err):
		fmt.Fprintln(w, "The failure may be transient; try again.")
	case !errors.IsUserFacing(err):
		fmt.Fprintln(w, "Run 'poolminer --help' for usage.")
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	// Global flags
	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $HOME/.config/poolminer/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))
}

func initConfig() {
	// Set defaults first so they're available even without a config file
	config.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(config.ConfigDir())
		viper.AddConfigPath("/etc/poolminer")
		viper.AddConfigPath(".")
	}

	viper.AutomaticEnv()
	viper.SetEnvPrefix("POOLMINER")
	// e.g. POOLMINER_POOL_ADDRESS for pool.address
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// Read config file if it exists (ignore error if not found)
	_ = viper.ReadInConfig()
}
