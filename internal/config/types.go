package config

import (
	"fmt"
	"maps"
	"slices"
	"sort"
	"strings"
	"time"
)

// PullPolicy controls when container images are pulled before a deployment starts.
type PullPolicy string

const (
	PullAlways  PullPolicy = "always"
	PullMissing PullPolicy = "missing"
	PullNever   PullPolicy = "never"
)

// GlobalConfig is the harness-wide configuration shared by every suite.
//
// A GlobalConfig value is never mutated after it has been registered. Suites
// that need different settings derive a copy with WithRuntimeEnv or
// WithOverrides and pass that copy down explicitly.
type GlobalConfig struct {
	// RuntimeImage is the container image of the runtime under test.
	RuntimeImage string `mapstructure:"runtime_image" yaml:"runtime_image"`
	// ServiceImage is the container image hosting the test services.
	ServiceImage string `mapstructure:"service_image" yaml:"service_image"`
	// PullPolicy decides whether images are pulled before use.
	PullPolicy PullPolicy `mapstructure:"pull_policy" yaml:"pull_policy"`

	// RuntimeEnv is injected into every runtime container.
	RuntimeEnv map[string]string `mapstructure:"runtime_env" yaml:"runtime_env"`
	// AdditionalRuntimeEnv holds KEY=VALUE pairs, typically supplied through
	// the environment, merged on top of RuntimeEnv.
	AdditionalRuntimeEnv []string `mapstructure:"additional_runtime_env" yaml:"additional_runtime_env"`

	// RetainAfterEnd keeps deployments alive after their test class finished.
	RetainAfterEnd bool `mapstructure:"retain_after_end" yaml:"retain_after_end"`

	IngressPort int `mapstructure:"ingress_port" yaml:"ingress_port"`
	AdminPort   int `mapstructure:"admin_port" yaml:"admin_port"`
	ServicePort int `mapstructure:"service_port" yaml:"service_port"`
	// NodePort is the runtime's internal gRPC port. Zero disables the gRPC
	// readiness probe.
	NodePort int `mapstructure:"node_port" yaml:"node_port"`

	ReadinessTimeout time.Duration `mapstructure:"readiness_timeout" yaml:"readiness_timeout"`
	RequestTimeout   time.Duration `mapstructure:"request_timeout" yaml:"request_timeout"`
	AwaitInterval    time.Duration `mapstructure:"await_interval" yaml:"await_interval"`
	AwaitTimeout     time.Duration `mapstructure:"await_timeout" yaml:"await_timeout"`
	ClassTimeout     time.Duration `mapstructure:"class_timeout" yaml:"class_timeout"`
	TeardownTimeout  time.Duration `mapstructure:"teardown_timeout" yaml:"teardown_timeout"`
}

// Clone returns a deep copy of the configuration.
func (c GlobalConfig) Clone() GlobalConfig {
	out := c
	out.RuntimeEnv = maps.Clone(c.RuntimeEnv)
	out.AdditionalRuntimeEnv = slices.Clone(c.AdditionalRuntimeEnv)
	return out
}

// WithRuntimeEnv returns a copy of c whose runtime environment is extended
// with env. Entries in env win over existing ones.
func (c GlobalConfig) WithRuntimeEnv(env map[string]string) GlobalConfig {
	out := c.Clone()
	if len(env) == 0 {
		return out
	}
	if out.RuntimeEnv == nil {
		out.RuntimeEnv = make(map[string]string, len(env))
	}
	for k, v := range env {
		out.RuntimeEnv[k] = v
	}
	return out
}

// WithOverrides returns a copy of c after applying fn to it.
func (c GlobalConfig) WithOverrides(fn func(*GlobalConfig)) GlobalConfig {
	out := c.Clone()
	if fn != nil {
		fn(&out)
	}
	return out
}

// EffectiveRuntimeEnv merges RuntimeEnv and AdditionalRuntimeEnv.
func (c GlobalConfig) EffectiveRuntimeEnv() map[string]string {
	env := maps.Clone(c.RuntimeEnv)
	if env == nil {
		env = make(map[string]string)
	}
	for _, kv := range c.AdditionalRuntimeEnv {
		k, v, _ := strings.Cut(kv, "=")
		if k = strings.TrimSpace(k); k != "" {
			env[k] = v
		}
	}
	return env
}

// EnvList renders an env map as sorted KEY=VALUE pairs.
func EnvList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, fmt.Sprintf("%s=%s", k, v))
	}
	sort.Strings(out)
	return out
}
