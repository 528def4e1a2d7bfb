// Package logging provides the structured logging used throughout conformance.
//
// It is built on Go's standard slog package. Every record carries a subsystem
// identifier, an optional error and, when the record is logged with a context
// prepared by WithTest, the identity of the test that produced it. The test
// identity is what keeps interleaved output of concurrently running tests
// attributable.
//
// # Usage
//
//	logging.InitForCLI(logging.LevelInfo, os.Stderr)
//	logging.Info("Bootstrap", "starting %d suites", len(suites))
//	logging.Error("Orchestrator", err, "failed to stop %s", name)
//
// Suite runs use a dedicated instance so that each suite writes its own
// testrunner.log:
//
//	logger := logging.NewLogger(logging.LevelDebug, logFile)
//	ctx = logging.WithTest(ctx, "state.CounterTest/add")
//	logger.Info(ctx, "Runner", "test started")
//	// time=... level=INFO msg="test started" subsystem=Runner test=state.CounterTest/add
//
// # Subsystems
//
//   - **Bootstrap**: CLI start-up and configuration
//   - **Runner**: suite and class scheduling
//   - **Orchestrator**: deployment start and stop
//   - **Docker**: container engine calls
//   - **Ready**: readiness probing
//   - **Admin** / **Ingress**: calls to the runtime under test
package logging
