// Package config holds the harness-wide GlobalConfig.
//
// Configuration is assembled by Load from built-in defaults, an optional YAML
// file and CONFORMANCE_* environment variables:
//
//	runtime_image: ghcr.io/restatedev/restate:1.1
//	retain_after_end: false
//	runtime_env:
//	  RESTATE_LOG_FILTER: restate=debug
//	readiness_timeout: 90s
//
//	CONFORMANCE_RETAIN_AFTER_END=true
//	CONFORMANCE_ADDITIONAL_RUNTIME_ENV=RESTATE_WORKER__INVOKER__INACTIVITY_TIMEOUT=0s
//
// The loaded value is registered once with Register and read with Current.
// Values are treated as immutable: per-suite settings are applied to a copy
// obtained from WithRuntimeEnv or WithOverrides, never to the registered value.
package config
