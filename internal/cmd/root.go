package cmd

import (
	"fmt"
	"io"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/Iron-Ham/loopbridge/internal/cmd/config"
	appconfig "github.com/Iron-Ham/loopbridge/internal/config"
	"github.com/Iron-Ham/loopbridge/internal/errors"
)

var rootCmd = &cobra.Command{
	Use:   "loopbridge",
	Short: "Drive an application on a dedicated event-loop thread",
	Long: `Loopbridge hosts an application on a single event-loop thread and lets
any number of worker goroutines schedule work on it, or tear it down,
through a command pipe registered with the loop.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

// Execute runs the root command
func Execute() error {
	err := rootCmd.Execute()
	if err != nil {
		reportError(rootCmd.ErrOrStderr(), err)
	}
	return err
}

// reportError prints err for the person running the command. Bridge
// failures not meant for users also get their severity and a pointer to the
// log.
func reportError(w io.Writer, err error) {
	fmt.Fprintf(w, "Error: %v\n", err)
	var bridgeErr errors.BridgeError
	if !errors.IsUserFacing(err) && errors.As(err, &bridgeErr) {
		fmt.Fprintf(w, "  internal %s failure, see the log for details\n", errors.GetSeverity(err))
	}
}

func init() {
	cobra.OnInitialize(initConfig)

	rootCmd.PersistentFlags().StringP("config", "c", "", "config file (default is $XDG_CONFIG_HOME/loopbridge/config.yaml)")
	_ = viper.BindPFlag("config", rootCmd.PersistentFlags().Lookup("config"))

	config.Register(rootCmd)
}

func initConfig() {
	// Defaults first so they apply without a config file
	appconfig.SetDefaults()

	if cfgFile := viper.GetString("config"); cfgFile != "" {
		viper.SetConfigFile(cfgFile)
	} else {
		viper.SetConfigName("config")
		viper.SetConfigType("yaml")
		viper.AddConfigPath(appconfig.ConfigDir())
		viper.AddConfigPath(".")
	}

	// LOOPBRIDGE_BRIDGE_WORKERS overrides bridge.workers
	appconfig.BindEnv(viper.GetViper())

	// A missing config file is fine
	_ = viper.ReadInConfig()
}
