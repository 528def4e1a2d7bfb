package cmd

import (
	"context"
	"io"

	"conformance/internal/containerizer"
	"conformance/internal/formatting"
	"conformance/internal/orchestrator"
	"conformance/internal/testing"

	"github.com/spf13/cobra"
)

var (
	cleanupRun              string
	cleanupDryRun           bool
	cleanupVerbose          bool
	cleanupContainerRuntime string
)

// cleanupCmd represents the cleanup command
var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Remove containers and networks left behind by earlier runs",
	Long: `Remove the containers and networks of earlier conformance runs.

Deployments kept with --retain, and deployments of runs that were killed
before their teardown, stay around until they are removed. Every resource
created by the harness carries the label of its run, so cleanup finds them
without touching anything else.

Examples:
  conformance cleanup --dry-run      # List what would be removed
  conformance cleanup --run cf-1a2b3c4d`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		rt, err := containerizer.NewContainerRuntime(cmd.Context(), cleanupContainerRuntime)
		if err != nil {
			return err
		}
		return runCleanup(cmd.Context(), rt, cmd.OutOrStdout(), cmd.ErrOrStderr())
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)

	cleanupCmd.Flags().StringVar(&cleanupRun, "run", "", "Only remove the resources of this run id")
	cleanupCmd.Flags().BoolVar(&cleanupDryRun, "dry-run", false, "List the resources without removing them")
	cleanupCmd.Flags().BoolVar(&cleanupVerbose, "verbose", false, "Print every removed resource")
	cleanupCmd.Flags().StringVar(&cleanupContainerRuntime, "container-runtime", string(containerizer.RuntimeTypeDocker), "Container engine to clean up")
}

func runCleanup(ctx context.Context, rt containerizer.ContainerRuntime, out, errOut io.Writer) error {
	logger := testing.NewWriterLogger(out, errOut, true, cleanupVerbose)
	report, err := testing.CleanupStaleResources(ctx, rt, testing.CleanupOptions{
		Run:    cleanupRun,
		DryRun: cleanupDryRun,
	}, logger)
	if err != nil {
		return err
	}
	if cleanupDryRun {
		return formatting.Render(out, formatting.Options{Color: testing.ColorEnabled(out)}, cleanupTable(report))
	}
	return nil
}

// cleanupTable lists the resources of a cleanup report, containers first.
func cleanupTable(report testing.CleanupReport) formatting.Table {
	data := formatting.Table{
		Title:  "Stale resources",
		Header: []string{"Kind", "Name", "Run"},
	}
	for _, c := range report.Containers {
		data.Rows = append(data.Rows, []string{"container", c.Name, c.Labels[orchestrator.LabelRun]})
	}
	for _, n := range report.Networks {
		data.Rows = append(data.Rows, []string{"network", n.Name, n.Labels[orchestrator.LabelRun]})
	}
	return data
}
