package cmd

import (
	"fmt"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"stageq/internal/config"
)

func newPresetsCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "presets [name]",
		Short: "Print built-in plans as YAML",
		Long:  "Print built-in plans as YAML. The output is a valid --plan file.",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			names := config.PresetNames()
			if len(args) == 1 {
				names = args
			}

			out := cmd.OutOrStdout()
			for i, name := range names {
				specs, err := config.Preset(name)
				if err != nil {
					return err
				}
				data, err := yaml.Marshal(config.FromSpecs(specs))
				if err != nil {
					return fmt.Errorf("encode preset %s: %w", name, err)
				}
				if i > 0 {
					fmt.Fprintln(out, "---")
				}
				fmt.Fprintf(out, "# preset: %s\n%s", name, data)
			}
			return nil
		},
	}
}
