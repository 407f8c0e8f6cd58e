package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"bratseval/pkg/config"
)

var initConfigCMD = &cobra.Command{
	Use:   "init-config [PATH]",
	Short: "Write a configuration file with default values",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := rootFlags.config
		if len(args) == 1 {
			path = args[0]
		}
		if _, err := os.Stat(path); err == nil && !initFlags.force {
			return fmt.Errorf("%s already exists (use --force to overwrite)", path)
		}
		if err := config.CreateDefaultConfigFile(path); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "default configuration written to %s\n", path)
		return nil
	},
}

var initFlags = struct {
	force bool
}{}

func init() {
	initConfigCMD.Flags().BoolVarP(&initFlags.force, "force", "f", false,
		"overwrite an existing file")
}
