package config

import (
	"errors"
	"fmt"
	"strings"
)

// Validate checks the configuration for values the harness cannot work with.
func (c GlobalConfig) Validate() error {
	var errs []error

	if strings.TrimSpace(c.RuntimeImage) == "" {
		errs = append(errs, errors.New("runtime_image must not be empty"))
	}
	if strings.TrimSpace(c.ServiceImage) == "" {
		errs = append(errs, errors.New("service_image must not be empty"))
	}
	switch c.PullPolicy {
	case PullAlways, PullMissing, PullNever:
	default:
		errs = append(errs, fmt.Errorf("pull_policy %q is not one of always, missing, never", c.PullPolicy))
	}
	for name, port := range map[string]int{"ingress_port": c.IngressPort, "admin_port": c.AdminPort, "service_port": c.ServicePort} {
		if port <= 0 || port > 65535 {
			errs = append(errs, fmt.Errorf("%s %d is out of range", name, port))
		}
	}
	if c.NodePort < 0 || c.NodePort > 65535 {
		errs = append(errs, fmt.Errorf("node_port %d is out of range", c.NodePort))
	}
	if c.ReadinessTimeout <= 0 {
		errs = append(errs, errors.New("readiness_timeout must be positive"))
	}
	if c.AwaitInterval <= 0 || c.AwaitTimeout <= 0 {
		errs = append(errs, errors.New("await_interval and await_timeout must be positive"))
	}
	if c.AwaitInterval > c.AwaitTimeout {
		errs = append(errs, fmt.Errorf("await_interval %s exceeds await_timeout %s", c.AwaitInterval, c.AwaitTimeout))
	}
	for _, kv := range c.AdditionalRuntimeEnv {
		if k, _, ok := strings.Cut(kv, "="); !ok || strings.TrimSpace(k) == "" {
			errs = append(errs, fmt.Errorf("additional_runtime_env entry %q is not KEY=VALUE", kv))
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("%w: %w", ErrInvalid, errors.Join(errs...))
	}
	return nil
}
