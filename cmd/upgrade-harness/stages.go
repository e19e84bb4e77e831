package main

import (
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/spf13/cobra"
)

var stagesCmd = &cobra.Command{
	Use:   "stages",
	Short: "List the pipeline stages in order",
	RunE: func(cmd *cobra.Command, args []string) error {
		withDowngrade, _ := cmd.Flags().GetBool("with-downgrade")

		for i, stage := range types.Pipeline(withDowngrade) {
			fmt.Fprintf(cmd.OutOrStdout(), "%2d. %s\n", i+1, stage)
		}
		return nil
	},
}

func init() {
	stagesCmd.Flags().Bool("with-downgrade", false, "Include the downgrade stages")
}
