package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"stageq/internal/banner"
)

const envPrefix = "STAGEQ"

// NewRootCmd builds the command tree with its own viper instance so that
// flag, env and config file lookups never leak between invocations.
func NewRootCmd() *cobra.Command {
	v := viper.New()
	var cfgFile string

	root := &cobra.Command{
		Use:   "stageq",
		Short: "stageq - staged concurrent load tests",
		Long: `
stageq runs many workers across time-boxed, possibly overlapping stages
against a payment REST service and prints a throughput/error report.

Plans come from a YAML/JSON file (--plan) or a built-in preset (--preset).
Every run flag can also be set in $HOME/.stageq.yaml or as STAGEQ_<FLAG>.`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			return initConfig(v, cfgFile)
		},
	}

	root.SetHelpFunc(func(cmd *cobra.Command, args []string) {
		fmt.Fprintln(cmd.OutOrStdout(), banner.GetString())
		cmd.Usage()
	})

	root.PersistentFlags().StringVar(&cfgFile, "config", "", "config file (default is $HOME/.stageq.yaml)")
	root.PersistentFlags().String("log-level", "info", "log level: debug, info, warn, error, disabled")
	v.BindPFlag("log_level", root.PersistentFlags().Lookup("log-level"))

	root.AddCommand(newRunCmd(v), newPresetsCmd(), newDummyCmd(v))
	return root
}

func Execute() {
	if err := NewRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "❌", err)
		os.Exit(1)
	}
}

func initConfig(v *viper.Viper, cfgFile string) error {
	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
	} else {
		home, err := os.UserHomeDir()
		if err == nil {
			v.AddConfigPath(home)
			v.SetConfigType("yaml")
			v.SetConfigName(".stageq")
		}
	}
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// the default file is optional, an explicit one is not
		var notFound viper.ConfigFileNotFoundError
		if cfgFile != "" || !errors.As(err, &notFound) {
			return fmt.Errorf("read config: %w", err)
		}
	}
	return nil
}
