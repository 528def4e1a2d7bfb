package cmd

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"conformance/internal/scenarios"
	harness "conformance/internal/testing"
)

func TestMatchesWildcard(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		pattern  string
		expected bool
	}{
		// Empty pattern matches everything
		{
			name:     "empty pattern matches any name",
			input:    "State/add",
			pattern:  "",
			expected: true,
		},
		// Exact match
		{
			name:     "exact match",
			input:    "State/add",
			pattern:  "State/add",
			expected: true,
		},
		{
			name:     "exact match fails on different name",
			input:    "State/add",
			pattern:  "State/getAfterReset",
			expected: false,
		},
		// Class wildcard
		{
			name:     "every method of a class",
			input:    "Kill/killInvocation",
			pattern:  "Kill/*",
			expected: true,
		},
		{
			name:     "star does not cross the separator",
			input:    "Kill/killInvocation",
			pattern:  "*Invocation",
			expected: false,
		},
		// Contains wildcard
		{
			name:     "contains wildcard matches",
			input:    "Cancel/cancelBlockedOnSLEEP",
			pattern:  "*/*Blocked*",
			expected: true,
		},
		// Question mark single character
		{
			name:     "question mark matches single character",
			input:    "IsolationFirst",
			pattern:  "Isolation?irst",
			expected: true,
		},
		{
			name:     "question mark fails on multiple characters",
			input:    "IsolationSecond",
			pattern:  "Isolation?",
			expected: false,
		},
		// Invalid pattern
		{
			name:     "invalid pattern never matches",
			input:    "State",
			pattern:  "[State",
			expected: false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			result := matchesWildcard(tt.input, tt.pattern)
			if result != tt.expected {
				t.Errorf("matchesWildcard(%q, %q) = %v, expected %v",
					tt.input, tt.pattern, result, tt.expected)
			}
		})
	}
}

func newScenarioRegistry(t *testing.T) *harness.Registry {
	t.Helper()
	registry := harness.NewRegistry()
	if err := scenarios.Register(registry); err != nil {
		t.Fatalf("Failed to register scenarios: %v", err)
	}
	return registry
}

func TestBuildListTable(t *testing.T) {
	registry := newScenarioRegistry(t)
	suites, err := harness.FindSuites(harness.DefaultSuites(), []string{"default,lazyState"})
	if err != nil {
		t.Fatalf("FindSuites failed: %v", err)
	}

	data, err := buildListTable(registry, suites, "kill | cancel", "Kill/*")
	if err != nil {
		t.Fatalf("buildListTable failed: %v", err)
	}

	if len(data.Rows) != 2 {
		t.Fatalf("Expected one Kill row per suite, got %v", data.Rows)
	}
	for i, suite := range []string{"default", "lazyState"} {
		row := data.Rows[i]
		if row[0] != suite || row[1] != "Kill" || row[2] != "killInvocation" {
			t.Errorf("Unexpected row %d: %v", i, row)
		}
		if !strings.Contains(row[3], scenarios.TagKill) {
			t.Errorf("Expected tags of row %d to contain %q, got %q", i, scenarios.TagKill, row[3])
		}
	}
}

func TestBuildListTable_SuiteFilter(t *testing.T) {
	registry := newScenarioRegistry(t)
	suites, err := harness.FindSuites(harness.DefaultSuites(), []string{"lazyState"})
	if err != nil {
		t.Fatalf("FindSuites failed: %v", err)
	}

	data, err := buildListTable(registry, suites, "", "")
	if err != nil {
		t.Fatalf("buildListTable failed: %v", err)
	}
	if len(data.Rows) == 0 {
		t.Fatal("Expected the lazyState suite to select tests")
	}
	for _, row := range data.Rows {
		if row[1] != "State" {
			t.Errorf("Expected only State tests in lazyState, got %v", row)
		}
	}
}

func TestBuildListTable_InvalidTags(t *testing.T) {
	registry := newScenarioRegistry(t)
	_, err := buildListTable(registry, harness.DefaultSuites(), "state &", "")
	if err == nil {
		t.Fatal("Expected an invalid tag expression to fail")
	}
}

func TestRunList_JSON(t *testing.T) {
	defer func() {
		listOutputFormat, listSuites, listTags, listFilter = "table", nil, "", ""
	}()
	listOutputFormat = "json"
	listSuites = []string{"default"}
	listTags = scenarios.TagFailing

	var buf bytes.Buffer
	listCmd.SetOut(&buf)
	defer listCmd.SetOut(nil)

	if err := runList(listCmd, nil); err != nil {
		t.Fatalf("runList failed: %v", err)
	}

	var records []map[string]string
	if err := json.Unmarshal(buf.Bytes(), &records); err != nil {
		t.Fatalf("Output is not JSON: %v\n%s", err, buf.String())
	}
	if len(records) != 1 {
		t.Fatalf("Expected one failing test, got %v", records)
	}
	if records[0]["class"] != "Failing" || records[0]["suite"] != "default" {
		t.Errorf("Unexpected record %v", records[0])
	}
}

func TestRunList_UnknownFormat(t *testing.T) {
	defer func() { listOutputFormat = "table" }()
	listOutputFormat = "xml"

	if err := runList(listCmd, nil); err == nil {
		t.Fatal("Expected an unsupported format to fail")
	}
}
