package testing

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"conformance/internal/config"
	"conformance/internal/formatting"

	"github.com/fatih/color"
	"github.com/jedib0t/go-pretty/v6/table"
	"golang.org/x/term"
)

// consoleReporter prints one glyph line per test and a summary table per suite.
type consoleReporter struct {
	mu           sync.Mutex
	out          io.Writer
	verbose      bool
	debug        bool
	parallelMode bool
	// buffers holds start messages of tests whose line is printed on completion
	buffers map[string]string
	// open is the test whose start message ends the current line
	open string

	green, red, magenta, yellow, bold *color.Color
}

// NewConsoleReporter creates a reporter printing human-readable progress to out.
func NewConsoleReporter(out io.Writer, verbose, debug, colorize bool) TestReporter {
	r := &consoleReporter{
		out:     out,
		verbose: verbose,
		debug:   debug,
		buffers: make(map[string]string),
		green:   color.New(color.FgGreen),
		red:     color.New(color.FgRed),
		magenta: color.New(color.FgMagenta),
		yellow:  color.New(color.FgYellow),
		bold:    color.New(color.Bold),
	}
	for _, c := range []*color.Color{r.green, r.red, r.magenta, r.yellow, r.bold} {
		if colorize {
			c.EnableColor()
		} else {
			c.DisableColor()
		}
	}
	return r
}

// ColorEnabled reports whether w is a terminal that should receive colors.
func ColorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	if !ok || os.Getenv("NO_COLOR") != "" {
		return false
	}
	return term.IsTerminal(int(f.Fd()))
}

// SetParallelMode enables or disables parallel output buffering
func (r *consoleReporter) SetParallelMode(parallel bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.parallelMode = parallel
	if parallel {
		r.buffers = make(map[string]string)
	}
}

func (r *consoleReporter) printf(format string, args ...interface{}) {
	fmt.Fprintf(r.out, format, args...)
}

// ReportStart is called when the suite begins
func (r *consoleReporter) ReportStart(cfg SuiteConfig) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.printf("🧪 Starting suite %s\n", r.bold.Sprint(cfg.Suite.Name))
	if r.verbose {
		r.printf("\n⚙️  Configuration:\n")
		r.printf("   • Tags: %s\n", stringOrDefault(cfg.TagExpression(), "all"))
		r.printf("   • Parallel classes: %d\n", max(cfg.Parallel, 1))
		r.printf("   • Fail fast: %t\n", cfg.FailFast)
		r.printf("   • Timeout: %s\n", durationOrDefault(cfg.Timeout, "none"))
		r.printf("   • Runtime image: %s\n", cfg.Config.RuntimeImage)
		r.printf("   • Service image: %s\n", cfg.Config.ServiceImage)
		r.printf("   • Retain after end: %t\n", cfg.Config.RetainAfterEnd)
		for _, kv := range config.EnvList(cfg.Suite.Env) {
			r.printf("   • Env: %s\n", kv)
		}
		r.printf("\n")
	}
}

// ReportClassStart is called before a class deployment is started
func (r *consoleReporter) ReportClassStart(class TestClass) {
	if !r.verbose {
		return
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeOpenLine()
	r.printf("🏗️  Deploying %s (%d tests)\n", class.Name, len(class.Methods))
	if len(class.Tags) > 0 {
		r.printf("   🏷️  Tags: %s\n", strings.Join(class.Tags, ", "))
	}
}

// ReportTestStart is called when a test method begins
func (r *consoleReporter) ReportTestStart(class, method string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := class + "/" + method
	start := fmt.Sprintf("🎯 %s... ", id)
	if r.parallelMode || r.open != "" {
		r.buffers[id] = start
		return
	}
	r.printf("%s", start)
	r.open = id
}

// ReportTestResult is called when a test method completes
func (r *consoleReporter) ReportTestResult(outcome TestOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	id := outcome.ID()
	result := fmt.Sprintf("%s (%v)", r.glyph(outcome.Status), outcome.Duration.Round(time.Millisecond))
	if r.open == id {
		r.printf("%s\n", result)
		r.open = ""
	} else {
		start, ok := r.buffers[id]
		if ok {
			delete(r.buffers, id)
		} else {
			start = fmt.Sprintf("🎯 %s... ", id)
		}
		r.closeOpenLine()
		r.printf("%s%s\n", start, result)
	}

	if outcome.Failure != "" && (outcome.Status == StatusFailed || r.verbose) {
		r.printf("%s\n", indentText(trimText(outcome.Failure, 2000), "   "))
	}
	if r.debug {
		for _, line := range outcome.Logs {
			r.printf("   📝 %s\n", line)
		}
	}
}

// ReportClassResult is called after a class was torn down
func (r *consoleReporter) ReportClassResult(outcome ClassOutcome) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if outcome.Aborted && outcome.Error != "" {
		r.closeOpenLine()
		r.printf("%s Class %s aborted: %s\n", r.magenta.Sprint("💥"), outcome.Name, outcome.Error)
	}
	if outcome.TeardownError != "" {
		r.closeOpenLine()
		r.printf("%s Teardown of %s: %s\n", r.yellow.Sprint("⚠️"), outcome.Name, outcome.TeardownError)
	}
	if outcome.Retained {
		r.closeOpenLine()
		r.printf("📌 Deployment of %s retained\n", outcome.Name)
	}
	if r.verbose && len(outcome.LogFiles) > 0 {
		r.printf("   📄 Container logs: %s\n", strings.Join(outcome.LogFiles, ", "))
	}
}

// ReportSuiteResult is called when all classes complete
func (r *consoleReporter) ReportSuiteResult(result SuiteResult) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closeOpenLine()

	r.printf("\n🏁 Suite %s complete\n", r.bold.Sprint(result.Suite))
	r.printf("⏱️  Duration: %v\n", result.Duration.Round(time.Millisecond))
	if result.TimedOut {
		r.printf("%s Suite timeout exceeded\n", r.magenta.Sprint("⏰"))
	}

	t := formatting.NewTable(r.out)
	t.AppendHeader(table.Row{"Result", "Count"})
	t.AppendRow(table.Row{"✅ " + r.green.Sprint("Passed"), result.Passed})
	t.AppendRow(table.Row{"❌ " + r.red.Sprint("Failed"), result.Failed})
	t.AppendRow(table.Row{"💥 " + r.magenta.Sprint("Aborted"), result.Aborted})
	t.AppendRow(table.Row{"⏭️  " + r.yellow.Sprint("Skipped"), result.Skipped})
	t.AppendFooter(table.Row{"Total", result.Total})
	t.Render()

	successRate := 0.0
	if result.Total > 0 {
		successRate = float64(result.Passed) / float64(result.Total) * 100
	}
	r.printf("📏 Success Rate: %.1f%%\n", successRate)

	if result.Succeeded() {
		r.printf("\n🎉 %s\n", r.green.Sprint("All tests passed!"))
		return
	}
	r.printf("\n💔 %s\n", r.red.Sprint("Some tests failed"))
	for _, o := range result.Tests() {
		if o.Status == StatusFailed || o.Status == StatusAborted {
			r.printf("   %s %s\n", r.glyph(o.Status), o.ID())
		}
	}
}

// closeOpenLine terminates a start message still waiting for its result.
func (r *consoleReporter) closeOpenLine() {
	if r.open != "" {
		r.printf("\n")
		r.open = ""
	}
}

func (r *consoleReporter) glyph(status Status) string {
	switch status {
	case StatusPassed:
		return r.green.Sprint("✅")
	case StatusFailed:
		return r.red.Sprint("❌")
	case StatusAborted:
		return r.magenta.Sprint("💥")
	case StatusSkipped:
		return r.yellow.Sprint("⏭️")
	default:
		return "❓"
	}
}

// trimText trims text to a reasonable length for display
func trimText(s string, maxChars int) string {
	if len(s) <= maxChars {
		return s
	}

	truncated := s[:maxChars]
	if lastNewline := strings.LastIndex(truncated, "\n"); lastNewline > maxChars/2 {
		truncated = s[:lastNewline]
	}
	return truncated + "\n... (truncated, see report.json for the complete output)"
}

// indentText adds indentation to each line of text
func indentText(text string, indent string) string {
	if text == "" {
		return ""
	}
	lines := strings.Split(text, "\n")
	for i, line := range lines {
		lines[i] = indent + line
	}
	return strings.Join(lines, "\n")
}

// stringOrDefault returns the string if not empty, otherwise returns the default
func stringOrDefault(s, defaultValue string) string {
	if s == "" {
		return defaultValue
	}
	return s
}

func durationOrDefault(d time.Duration, defaultValue string) string {
	if d <= 0 {
		return defaultValue
	}
	return d.String()
}
