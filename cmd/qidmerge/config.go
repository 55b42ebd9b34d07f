package main

import (
	"github.com/spf13/cobra"

	"github.com/openenergytransition/qidmerge/internal/app"
)

func newConfigCmd() *cobra.Command {
	var cf configFlags
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Print the resolved configuration",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			cfg, err := loadConfig(cmd, cf)
			if err != nil {
				return err
			}
			app.RenderConfig(cmd.OutOrStdout(), cfg)
			return nil
		},
	}
	addConfigFlags(cmd.Flags(), &cf)
	return cmd
}
