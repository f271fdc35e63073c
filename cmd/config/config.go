// Package config provides the command that prints the effective settings.
package config

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiostream/internal/conf"
)

// Command creates the config command.
func Command(settings *conf.Settings) *cobra.Command {
	var output string

	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the effective configuration as YAML",
		Long:  "Print the configuration after defaults, the config file, environment variables and flags are merged. With --output the YAML is also saved to a file.",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := conf.Dump(settings)
			if err != nil {
				return err
			}
			if _, err := fmt.Fprint(cmd.OutOrStdout(), string(data)); err != nil {
				return err
			}
			if output == "" {
				return nil
			}
			return conf.SaveYAMLConfig(output, settings)
		},
	}

	cmd.Flags().StringVarP(&output, "output", "o", "", "Also save the configuration to this file")
	return cmd
}
