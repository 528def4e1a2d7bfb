package cmd

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"conformance/internal/config"
	"conformance/internal/containerizer"
	"conformance/internal/orchestrator"
	"conformance/internal/scenarios"
	"conformance/internal/testing"
	"conformance/pkg/logging"

	"github.com/briandowns/spinner"
	"github.com/jedib0t/go-pretty/v6/text"
	"github.com/spf13/cobra"
)

var (
	runSuites           []string
	runSuitesFile       string
	runTags             string
	runParallel         int
	runStdout           bool
	runReportDir        string
	runTimeout          time.Duration
	runRetain           bool
	runConfigPath       string
	runContainerRuntime string
	runFailFast         bool
	runVerbose          bool
	runDebug            bool
)

// runCmd represents the run command
var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run conformance suites against the runtime under test",
	Long: `The run command executes one or more conformance suites.

Every test class gets a fresh deployment: a private network, one runtime
container and the test service containers it declares. Services are
registered with the runtime before the first test method runs, and the
deployment is torn down when the class finished unless --retain is set.

Suites are named batches of tests sharing a tag filter and runtime
environment overrides:
  default           every test
  alwaysSuspending  tests marked always-suspending, with invocations
                    suspending immediately
  singlePartition   every test against a single-partition runtime
  lazyState         tests marked lazy-state, with eager state disabled

Each suite writes report.xml, report.json, metrics.prom and its transcripts
to <report-dir>/<suite>/. Container logs of every class go to
<report-dir>/<suite>/<class>/.

The command exits with code 0 when no selected test failed or aborted, and
with code 2 otherwise. Tests that skip themselves are neutral: they are
reported as skipped but do not change the exit code. Any other error, such
as an unreachable container engine, exits with code 1.

Example usage:
  conformance run                                   # Run the default suite
  conformance run --suite alwaysSuspending,lazyState
  conformance run --tags 'state & !kill'           # Override the tag filter
  conformance run --parallel 4 --stdout             # Four classes at a time, live output
  conformance run --retain --suite default --tags upgrade`,
	RunE: runConformance,
}

func init() {
	rootCmd.AddCommand(runCmd)

	// Test selection
	runCmd.Flags().StringSliceVar(&runSuites, "suite", nil, "Suite(s) to run, repeatable or comma-separated (default: default)")
	runCmd.Flags().StringVar(&runSuitesFile, "suites-file", "", "YAML file replacing the built-in suite catalog")
	runCmd.Flags().StringVar(&runTags, "tags", "", "Tag expression overriding the suites' own filters, e.g. 'state & !kill'")

	// Execution control
	runCmd.Flags().IntVar(&runParallel, "parallel", 1, "Number of test classes run concurrently (1-50)")
	runCmd.Flags().DurationVar(&runTimeout, "timeout", 30*time.Minute, "Timeout of each suite (0 disables it)")
	runCmd.Flags().BoolVar(&runFailFast, "fail-fast", false, "Stop scheduling test classes after the first failure")
	runCmd.Flags().BoolVar(&runRetain, "retain", false, "Keep deployments running after their class finished")

	// Configuration
	runCmd.Flags().StringVar(&runConfigPath, "config", "", "Path to the harness configuration file (YAML)")
	runCmd.Flags().StringVar(&runContainerRuntime, "container-runtime", string(containerizer.RuntimeTypeDocker), "Container engine to deploy to")

	// Output and debugging
	runCmd.Flags().BoolVar(&runStdout, "stdout", false, "Print test progress to stdout as well as to the suite transcript")
	runCmd.Flags().StringVar(&runReportDir, "report-dir", "test_report", "Directory receiving one report directory per suite")
	runCmd.Flags().BoolVar(&runVerbose, "verbose", false, "Enable verbose test output")
	runCmd.Flags().BoolVar(&runDebug, "debug", false, "Enable debug logging")

	_ = runCmd.RegisterFlagCompletionFunc("suite", completeSuiteFlag)

	runCmd.PreRunE = func(cmd *cobra.Command, args []string) error {
		return validateRunFlags()
	}
}

// completeSuiteFlag provides shell completion for the suite flag.
func completeSuiteFlag(cmd *cobra.Command, args []string, toComplete string) ([]string, cobra.ShellCompDirective) {
	var names []string
	for _, s := range testing.DefaultSuites() {
		names = append(names, s.Name)
	}
	return names, cobra.ShellCompDirectiveNoFileComp
}

func validateRunFlags() error {
	if runParallel < 1 || runParallel > 50 {
		return fmt.Errorf("parallel classes must be between 1 and 50, got %d", runParallel)
	}
	if runTimeout < 0 {
		return fmt.Errorf("timeout must not be negative, got %s", runTimeout)
	}
	if _, err := testing.ParseTagFilter(runTags); err != nil {
		return fmt.Errorf("invalid --tags: %w", err)
	}
	return nil
}

// loadCatalog returns the built-in suites, or the suites of path when set.
func loadCatalog(path string) ([]testing.Suite, error) {
	if path == "" {
		return testing.DefaultSuites(), nil
	}
	return testing.LoadSuites(path)
}

// loadRunConfig loads the harness configuration, applies the command line
// overrides and registers the result process-wide.
func loadRunConfig() (config.GlobalConfig, error) {
	cfg, err := config.Load(runConfigPath)
	if err != nil {
		return config.GlobalConfig{}, err
	}
	if runRetain {
		cfg.RetainAfterEnd = true
	}
	err = config.Register(cfg)
	if errors.Is(err, config.ErrAlreadyRegistered) {
		err = config.Replace(cfg)
	}
	if err != nil {
		return config.GlobalConfig{}, err
	}
	return config.Current()
}

func runConformance(cmd *cobra.Command, args []string) error {
	ctx, cancel := context.WithCancel(cmd.Context())
	defer cancel()

	// Handle interrupts gracefully
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigChan)
	go func() {
		select {
		case <-sigChan:
			fmt.Fprintln(cmd.ErrOrStderr(), "\nReceived interrupt signal, stopping tests gracefully...")
			cancel()
		case <-ctx.Done():
		}
	}()

	level := logging.LevelInfo
	if runDebug {
		level = logging.LevelDebug
	}
	logging.InitForCLI(level, cmd.ErrOrStderr())

	cfg, err := loadRunConfig()
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(runSuitesFile)
	if err != nil {
		return fmt.Errorf("failed to load suites: %w", err)
	}
	suites, err := testing.FindSuites(catalog, runSuites)
	if err != nil {
		return err
	}

	registry := testing.NewRegistry()
	if err := scenarios.Register(registry); err != nil {
		return fmt.Errorf("failed to register test classes: %w", err)
	}

	rt, err := containerizer.NewContainerRuntime(ctx, runContainerRuntime)
	if err != nil {
		return fmt.Errorf("failed to create container runtime: %w", err)
	}
	if err := rt.Ping(ctx); err != nil {
		return fmt.Errorf("container engine is not reachable: %w", err)
	}
	orch := orchestrator.New(orchestrator.Config{Runtime: rt})
	logging.Info("Run", "Starting run %s with %d suite(s), reports in %s", orch.RunID(), len(suites), runReportDir)

	var failed []string
	for _, suite := range suites {
		result, err := runSuite(ctx, cmd, registry, orch, cfg, suite)
		if err != nil {
			return err
		}
		if !runStdout {
			printSuiteSummary(cmd.OutOrStdout(), result)
		}
		if !result.Succeeded() {
			failed = append(failed, suite.Name)
		}
	}
	if len(failed) > 0 {
		return &TestsFailedError{Suites: failed}
	}
	return nil
}

// suiteConfig builds the execution settings of one suite from the flags.
func suiteConfig(suite testing.Suite, cfg config.GlobalConfig) testing.SuiteConfig {
	return testing.SuiteConfig{
		Suite:    suite,
		Tags:     runTags,
		Parallel: runParallel,
		FailFast: runFailFast,
		Timeout:  runTimeout,
		Config:   cfg,
	}
}

func runSuite(ctx context.Context, cmd *cobra.Command, registry *testing.Registry, orch *orchestrator.Orchestrator, cfg config.GlobalConfig, suite testing.Suite) (testing.SuiteResult, error) {
	opts := testing.OutputOptions{BaseDir: runReportDir, Verbose: runVerbose, Debug: runDebug}
	if runStdout {
		opts.Echo = cmd.OutOrStdout()
		opts.EchoErr = cmd.ErrOrStderr()
		opts.Color = testing.ColorEnabled(cmd.OutOrStdout())
	}
	out, err := testing.OpenSuiteOutput(opts, suite.Name)
	if err != nil {
		return testing.SuiteResult{}, err
	}

	var s *spinner.Spinner
	if !runStdout {
		s = spinner.New(spinner.CharSets[14], 100*time.Millisecond, spinner.WithWriter(cmd.ErrOrStderr()))
		s.Suffix = fmt.Sprintf(" Running suite %s...", suite.Name)
		s.Start()
	}

	runner := out.NewRunner(registry, orch, orch.ContainerRuntime())
	result, runErr := runner.Run(ctx, out.Configure(suiteConfig(suite, cfg)))

	if s != nil {
		s.Stop()
	}
	closeErr := out.Close()
	if runErr != nil {
		return result, fmt.Errorf("suite %s: %w", suite.Name, runErr)
	}
	if closeErr != nil {
		return result, fmt.Errorf("failed to write reports of suite %s: %w", suite.Name, closeErr)
	}
	return result, nil
}

// printSuiteSummary prints the one-line outcome of a suite.
func printSuiteSummary(w io.Writer, result testing.SuiteResult) {
	paint := func(c text.Color, s string) string {
		if testing.ColorEnabled(w) {
			return c.Sprint(s)
		}
		return s
	}
	icon, c := "✅", text.FgGreen
	if !result.Succeeded() {
		icon, c = "❌", text.FgRed
	}
	fmt.Fprintf(w, "%s %s: %d passed, %d failed, %d aborted, %d skipped (%s)\n",
		icon, paint(c, "Suite "+result.Suite),
		result.Passed, result.Failed, result.Aborted, result.Skipped,
		result.Duration.Round(time.Millisecond))
}
