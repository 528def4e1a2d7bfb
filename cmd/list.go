package cmd

import (
	"fmt"
	"path"
	"strings"

	"conformance/internal/formatting"
	"conformance/internal/scenarios"
	"conformance/internal/testing"

	"github.com/spf13/cobra"
)

var (
	listOutputFormat string
	listSuites       []string
	listSuitesFile   string
	listTags         string
	listFilter       string
)

// listCmd represents the list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List the tests selected by suites and tag filters",
	Long: `List the test methods every suite would run, with their effective tags.

Without --suite every suite of the catalog is listed. --tags overrides the
suites' own tag filters, exactly as it does for the run command.

Examples:
  conformance list
  conformance list --suite lazyState
  conformance list --tags 'kill | cancel' -o json
  conformance list --filter 'State/*'`,
	Args: cobra.NoArgs,
	RunE: runList,
}

func init() {
	rootCmd.AddCommand(listCmd)

	listCmd.Flags().StringVarP(&listOutputFormat, "output", "o", "table", "Output format (table, json, yaml)")
	listCmd.Flags().StringSliceVar(&listSuites, "suite", nil, "Suite(s) to list, repeatable or comma-separated (default: all)")
	listCmd.Flags().StringVar(&listSuitesFile, "suites-file", "", "YAML file replacing the built-in suite catalog")
	listCmd.Flags().StringVar(&listTags, "tags", "", "Tag expression overriding the suites' own filters")
	listCmd.Flags().StringVar(&listFilter, "filter", "", "Only list tests whose class or Class/method matches the wildcard pattern")

	_ = listCmd.RegisterFlagCompletionFunc("suite", completeSuiteFlag)
}

func runList(cmd *cobra.Command, args []string) error {
	format, err := formatting.ParseFormat(listOutputFormat)
	if err != nil {
		return err
	}
	catalog, err := loadCatalog(listSuitesFile)
	if err != nil {
		return fmt.Errorf("failed to load suites: %w", err)
	}
	suites := catalog
	if len(listSuites) > 0 {
		if suites, err = testing.FindSuites(catalog, listSuites); err != nil {
			return err
		}
	}

	registry := testing.NewRegistry()
	if err := scenarios.Register(registry); err != nil {
		return fmt.Errorf("failed to register test classes: %w", err)
	}
	data, err := buildListTable(registry, suites, listTags, listFilter)
	if err != nil {
		return err
	}
	opts := formatting.Options{Format: format, Color: testing.ColorEnabled(cmd.OutOrStdout())}
	return formatting.Render(cmd.OutOrStdout(), opts, data)
}

// buildListTable lists one row per selected test method of every suite.
func buildListTable(registry *testing.Registry, suites []testing.Suite, tags, filter string) (formatting.Table, error) {
	data := formatting.Table{
		Title:  "Conformance tests",
		Header: []string{"Suite", "Class", "Method", "Tags"},
	}
	for _, suite := range suites {
		classes, err := registry.Resolve(suite, tags)
		if err != nil {
			return formatting.Table{}, err
		}
		for _, class := range classes {
			for _, m := range class.Methods {
				if !matchesWildcard(class.Name, filter) && !matchesWildcard(class.Name+"/"+m.Name, filter) {
					continue
				}
				data.Rows = append(data.Rows, []string{
					suite.Name,
					class.Name,
					m.Name,
					strings.Join(testing.EffectiveTags(class, m), ","),
				})
			}
		}
	}
	return data, nil
}

// matchesWildcard checks if a name matches a wildcard pattern.
// Supports * (any sequence) and ? (any single character).
// Empty pattern matches everything.
func matchesWildcard(name, pattern string) bool {
	if pattern == "" {
		return true
	}
	// path.Match uses the same wildcard syntax we want
	matched, err := path.Match(pattern, name)
	if err != nil {
		// Invalid pattern - return false
		return false
	}
	return matched
}
