package testing

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"gopkg.in/yaml.v3"
)

// ErrUnknownSuite is returned when a requested suite is not in the catalog.
var ErrUnknownSuite = errors.New("unknown suite")

// Tags used by the built-in suites.
const (
	TagAlwaysSuspending = "always-suspending"
	TagLazyState        = "lazy-state"
)

// DefaultSuites returns the built-in suite catalog.
func DefaultSuites() []Suite {
	return []Suite{
		{
			Name:        "default",
			Description: "Every test against a runtime with default settings",
		},
		{
			Name:        "alwaysSuspending",
			Description: "Invocations suspend as soon as they wait for anything",
			Tags:        TagAlwaysSuspending,
			Env: map[string]string{
				"RESTATE_WORKER__INVOKER__INACTIVITY_TIMEOUT": "0s",
			},
		},
		{
			Name:        "singlePartition",
			Description: "Every test against a runtime with a single partition",
			Env: map[string]string{
				"RESTATE_BOOTSTRAP_NUM_PARTITIONS": "1",
			},
		},
		{
			Name:        "lazyState",
			Description: "State is fetched on demand instead of eagerly",
			Tags:        TagLazyState,
			Env: map[string]string{
				"RESTATE_WORKER__INVOKER__DISABLE_EAGER_STATE": "true",
			},
		},
	}
}

// suiteFile is the layout of a suite catalog file.
type suiteFile struct {
	Suites []Suite `yaml:"suites"`
}

// LoadSuites reads a suite catalog from a YAML file:
//
//	suites:
//	  - name: singlePartition
//	    tags: "!slow"
//	    env:
//	      RESTATE_BOOTSTRAP_NUM_PARTITIONS: "1"
func LoadSuites(path string) ([]Suite, error) {
	content, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read suite file %s: %w", path, err)
	}

	var f suiteFile
	if err := yaml.Unmarshal(content, &f); err != nil {
		return nil, fmt.Errorf("failed to parse YAML in %s: %w", path, err)
	}
	if err := validateSuites(f.Suites); err != nil {
		return nil, fmt.Errorf("invalid suite catalog in %s: %w", path, err)
	}
	return f.Suites, nil
}

func validateSuites(suites []Suite) error {
	if len(suites) == 0 {
		return fmt.Errorf("no suites defined")
	}
	seen := make(map[string]bool, len(suites))
	for i, s := range suites {
		if strings.TrimSpace(s.Name) == "" {
			return fmt.Errorf("suite %d has no name", i)
		}
		if seen[s.Name] {
			return fmt.Errorf("duplicate suite %q", s.Name)
		}
		seen[s.Name] = true
		if _, err := ParseTagFilter(s.Tags); err != nil {
			return fmt.Errorf("suite %q: %w", s.Name, err)
		}
	}
	return nil
}

// FindSuites picks the named suites from catalog, in the order requested.
// Each name may itself be a comma-separated list. No names selects the
// first suite of the catalog.
func FindSuites(catalog []Suite, names []string) ([]Suite, error) {
	var wanted []string
	for _, n := range names {
		for _, part := range strings.Split(n, ",") {
			part = strings.TrimSpace(part)
			if part != "" && !slices.Contains(wanted, part) {
				wanted = append(wanted, part)
			}
		}
	}
	if len(wanted) == 0 {
		if len(catalog) == 0 {
			return nil, fmt.Errorf("%w: catalog is empty", ErrUnknownSuite)
		}
		return catalog[:1], nil
	}

	var out []Suite
	for _, name := range wanted {
		idx := slices.IndexFunc(catalog, func(s Suite) bool { return s.Name == name })
		if idx < 0 {
			return nil, fmt.Errorf("%w: %s (available: %s)", ErrUnknownSuite, name, strings.Join(suiteNames(catalog), ", "))
		}
		out = append(out, catalog[idx])
	}
	return out, nil
}

func suiteNames(suites []Suite) []string {
	names := make([]string, len(suites))
	for i, s := range suites {
		names[i] = s.Name
	}
	return names
}
