package config

import "time"

const (
	DefaultRuntimeImage = "ghcr.io/restatedev/restate:main"
	DefaultServiceImage = "ghcr.io/restatedev/e2e-node-services:main"

	DefaultIngressPort = 8080
	DefaultAdminPort   = 9070
	DefaultServicePort = 9080
	DefaultNodePort    = 5122
)

// Default returns the configuration used when nothing else is specified.
func Default() GlobalConfig {
	return GlobalConfig{
		RuntimeImage:     DefaultRuntimeImage,
		ServiceImage:     DefaultServiceImage,
		PullPolicy:       PullMissing,
		RuntimeEnv:       map[string]string{},
		IngressPort:      DefaultIngressPort,
		AdminPort:        DefaultAdminPort,
		ServicePort:      DefaultServicePort,
		NodePort:         DefaultNodePort,
		ReadinessTimeout: 60 * time.Second,
		RequestTimeout:   10 * time.Second,
		AwaitInterval:    100 * time.Millisecond,
		AwaitTimeout:     20 * time.Second,
		ClassTimeout:     10 * time.Minute,
		TeardownTimeout:  30 * time.Second,
	}
}
