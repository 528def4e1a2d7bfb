package testing

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"conformance/internal/containerizer"
	"conformance/internal/orchestrator"
)

// CleanupOptions controls CleanupStaleResources.
type CleanupOptions struct {
	// CurrentRun is never touched.
	CurrentRun string
	// Run limits the cleanup to one earlier run. Empty means every run.
	Run string
	// DryRun only lists what would be removed.
	DryRun bool
}

func (o CleanupOptions) stale(r containerizer.Resource) (string, bool) {
	run := r.Labels[orchestrator.LabelRun]
	return run, o.CurrentRun == "" || run != o.CurrentRun
}

// CleanupReport lists the resources found by CleanupStaleResources.
type CleanupReport struct {
	Containers []containerizer.Resource
	Networks   []containerizer.Resource
	// Runs are the run ids the resources belonged to.
	Runs []string
}

// CleanupStaleResources removes containers and networks left behind by
// earlier harness runs, identified by their run label. Retained deployments
// and runs killed before teardown are the usual source.
//
// Containers are removed before networks. Removal is best-effort: every
// resource is attempted and the errors are joined.
func CleanupStaleResources(ctx context.Context, rt containerizer.ContainerRuntime, opts CleanupOptions, logger TestLogger) (CleanupReport, error) {
	selector := map[string]string{orchestrator.LabelRun: opts.Run}

	containers, err := rt.ListContainers(ctx, selector)
	if err != nil {
		return CleanupReport{}, err
	}
	networks, err := rt.ListNetworks(ctx, selector)
	if err != nil {
		return CleanupReport{}, err
	}

	var report CleanupReport
	runs := make(map[string]bool)
	for _, c := range containers {
		if run, ok := opts.stale(c); ok {
			report.Containers = append(report.Containers, c)
			runs[run] = true
		}
	}
	for _, n := range networks {
		if run, ok := opts.stale(n); ok {
			report.Networks = append(report.Networks, n)
			runs[run] = true
		}
	}
	for run := range runs {
		report.Runs = append(report.Runs, run)
	}
	sort.Strings(report.Runs)

	if len(report.Containers) == 0 && len(report.Networks) == 0 {
		logger.Debug("No stale conformance resources found\n")
		return report, nil
	}
	if opts.DryRun {
		return report, nil
	}

	var errs []error
	for _, c := range report.Containers {
		if err := rt.RemoveContainer(ctx, c.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Debug("Removed stale container %s\n", c.Name)
	}
	for _, n := range report.Networks {
		if err := rt.RemoveNetwork(ctx, n.ID); err != nil {
			errs = append(errs, err)
			continue
		}
		logger.Debug("Removed stale network %s\n", n.Name)
	}

	logger.Info("Cleaned up %d container(s) and %d network(s) of %d earlier run(s)\n",
		len(report.Containers), len(report.Networks), len(report.Runs))
	if len(errs) > 0 {
		return report, fmt.Errorf("cleanup incomplete: %w", errors.Join(errs...))
	}
	return report, nil
}
