package cmd

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
)

// Exit codes for CLI commands.
const (
	// ExitCodeSuccess indicates successful execution.
	ExitCodeSuccess = 0
	// ExitCodeError indicates a general error (command failed, invalid arguments).
	ExitCodeError = 1
	// ExitCodeTestsFailed indicates that at least one requested suite had a
	// test that did not pass.
	ExitCodeTestsFailed = 2
)

// TestsFailedError is returned by the run command when a suite did not
// succeed.
type TestsFailedError struct {
	Suites []string
}

func (e *TestsFailedError) Error() string {
	return fmt.Sprintf("tests failed in suite(s): %s", strings.Join(e.Suites, ", "))
}

// rootCmd represents the base command for the conformance application.
// It is the entry point when the application is called without any subcommands.
var rootCmd = &cobra.Command{
	Use:   "conformance",
	Short: "Run conformance suites against a durable execution runtime",
	Long: `conformance deploys the runtime under test together with its test
services in containers and runs the conformance suites against it.

Each suite writes its reports (JUnit XML, JSON, Prometheus metrics) and
transcripts to its own directory below the report directory.`,
	// SilenceUsage prevents Cobra from printing the usage message on errors that are handled by the application.
	SilenceUsage: true,
}

// SetVersion sets the version for the root command.
// This function is typically called from the main package to inject the application version at build time.
func SetVersion(v string) {
	rootCmd.Version = v
}

// GetVersion returns the current version of the application.
func GetVersion() string {
	return rootCmd.Version
}

// Execute is the main entry point for the CLI application.
// This function is called by main.main().
func Execute() {
	rootCmd.SetVersionTemplate(`{{printf "conformance version %s\n" .Version}}`)

	err := rootCmd.Execute()
	if err != nil {
		os.Exit(getExitCode(err))
	}
}

// getExitCode determines the appropriate exit code based on the error type.
func getExitCode(err error) int {
	if err == nil {
		return ExitCodeSuccess
	}
	var failed *TestsFailedError
	if errors.As(err, &failed) {
		return ExitCodeTestsFailed
	}
	return ExitCodeError
}

func init() {
	rootCmd.AddCommand(newVersionCmd())
}
