package main

import (
	"fmt"

	"github.com/cuemby/upgrade-harness/pkg/ci"
	"github.com/spf13/cobra"
)

var triggerFlags optionFlags

var triggerCmd = &cobra.Command{
	Use:   "trigger",
	Short: "Run the upgrade pipeline on CI",
	Long: `Trigger a CI pipeline that runs the upgrade with the given options.

The API token is read from HARNESS_CI_TOKEN (or ci.token in the config file).`,
	RunE: func(cmd *cobra.Command, args []string) error {
		opts, err := triggerFlags.options()
		if err != nil {
			return err
		}
		app, err := newApp(cmd)
		if err != nil {
			return err
		}

		pipeline, err := ci.NewClient(app.cfg.CI).Trigger(cmd.Context(), opts, app.runID)
		if err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Pipeline #%d triggered on %s\n", pipeline.Number, app.cfg.CI.Project)
		fmt.Fprintf(cmd.OutOrStdout(), "  ID: %s\n", pipeline.ID)
		fmt.Fprintf(cmd.OutOrStdout(), "  Run ID: %s\n", app.runID)
		return nil
	},
}

func init() {
	triggerFlags.register(triggerCmd, true)
}
