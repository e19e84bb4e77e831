package main

import (
	"context"
	"fmt"
	"os"

	"github.com/cuemby/upgrade-harness/pkg/cluster"
	"github.com/cuemby/upgrade-harness/pkg/kubectl"
	"github.com/cuemby/upgrade-harness/pkg/state"
	"github.com/cuemby/upgrade-harness/pkg/tunnel"
	"github.com/cuemby/upgrade-harness/pkg/types"
	"github.com/spf13/cobra"
)

var teardownCmd = &cobra.Command{
	Use:   "teardown",
	Short: "Delete the local kind cluster",
	Long: `Delete the kind cluster created by the cluster backend, together with its
exported kubeconfig and the recorded tunnel state.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		app, err := newApp(cmd)
		if err != nil {
			return err
		}

		cfg := app.cfg.Cluster
		target := &types.KubeTarget{Context: cfg.Context}
		fwd := tunnel.NewKubectlForwarder(app.runner, target, cfg.Namespace)
		if err := clearTunnelState(cmd.Context(), fwd, cfg.StateFile); err != nil {
			return err
		}

		kind := cluster.NewKind(app.runner, kubectl.NewClient(app.runner, target), target, cluster.Options{
			Name:    cfg.Name,
			Context: cfg.Context,
		})
		if err := kind.Delete(cmd.Context()); err != nil {
			return err
		}

		fmt.Fprintf(cmd.OutOrStdout(), "Cluster %s deleted\n", cfg.Name)
		return nil
	},
}

// clearTunnelState stops every tunnel recorded in the state file, then
// removes the file. The file is kept when a tunnel cannot be stopped.
func clearTunnelState(ctx context.Context, fwd tunnel.Forwarder, path string) error {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		return nil
	}

	store, err := state.Open(path)
	if err != nil {
		return err
	}
	reclaimErr := tunnel.NewTable(fwd, store).ReclaimLeaked(ctx)
	if err := store.Close(); err != nil {
		return fmt.Errorf("failed to close state file: %w", err)
	}
	if reclaimErr != nil {
		return fmt.Errorf("failed to stop recorded tunnels: %w", reclaimErr)
	}

	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		return fmt.Errorf("failed to remove state file: %w", err)
	}
	return nil
}
