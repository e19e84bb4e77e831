package main

import (
	"github.com/cuemby/upgrade-harness/pkg/orchestrator"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/spf13/cobra"
)

var runFlags optionFlags

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the upgrade pipeline",
	Long: `Run every stage of the upgrade pipeline, or a single stage with --stage.

Infrastructure is torn down at the end unless --skip-cleanup is given.`,
	Example: `  upgrade-harness run --from-tag 4.10.0 --to-tag 4.11.0 --db-type mongo --provider cluster
  upgrade-harness run --from-tag 4.10.0 --to-tag 4.11.0 --stage verify-all --skip-cleanup`,
	RunE: func(cmd *cobra.Command, args []string) error {
		skipCleanup, _ := cmd.Flags().GetBool("skip-cleanup")

		opts, err := runFlags.options()
		if err != nil {
			return err
		}
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		return app.run(cmd.Context(), opts, opts.Stages(), orchestrator.RunOptions{SkipCleanup: skipCleanup})
	},
}

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Deploy the from version and leave it running",
	Long: `Clean, prepare the infrastructure and deploy --from-tag, then exit without
cleaning up so the deployment can be inspected or tested by hand.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		// nothing is upgraded, but the options require a target
		setupFlags.toTag = setupFlags.fromTag
		opts, err := setupFlags.options()
		if err != nil {
			return err
		}
		app, err := newApp(cmd)
		if err != nil {
			return err
		}
		stages := []types.Stage{types.StageClean, types.StageClusterSetup, types.StageDeployFrom}
		return app.run(cmd.Context(), opts, stages, orchestrator.RunOptions{SkipCleanup: true})
	},
}

var setupFlags optionFlags

func init() {
	runFlags.register(runCmd, true)
	runCmd.Flags().Bool("skip-cleanup", false, "Leave infrastructure running after the run")

	setupFlags.register(setupCmd, false)
}
