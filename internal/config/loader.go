package config

import (
	"fmt"
	"strings"

	"conformance/pkg/logging"

	"github.com/spf13/viper"
)

// EnvPrefix is the prefix of every environment variable read by Load.
const EnvPrefix = "CONFORMANCE"

// Load builds a GlobalConfig from defaults, the optional YAML file at path and
// CONFORMANCE_* environment variables, in increasing order of precedence.
func Load(path string) (GlobalConfig, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_", "-", "_"))
	v.AutomaticEnv()

	setDefaults(v, Default())

	if path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return GlobalConfig{}, fmt.Errorf("error loading config from %s: %w", path, err)
		}
		logging.Info("ConfigLoader", "Loaded configuration from %s", path)
	}

	var cfg GlobalConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return GlobalConfig{}, fmt.Errorf("error decoding configuration: %w", err)
	}
	cfg.RuntimeEnv = upperKeys(cfg.RuntimeEnv)
	if err := cfg.Validate(); err != nil {
		return GlobalConfig{}, err
	}
	return cfg, nil
}

// upperKeys restores the conventional case of environment variable names,
// which viper lowercases while reading maps.
func upperKeys(env map[string]string) map[string]string {
	out := make(map[string]string, len(env))
	for k, v := range env {
		out[strings.ToUpper(k)] = v
	}
	return out
}

// setDefaults registers every key with viper. AutomaticEnv only binds keys
// viper already knows about when unmarshalling.
func setDefaults(v *viper.Viper, d GlobalConfig) {
	v.SetDefault("runtime_image", d.RuntimeImage)
	v.SetDefault("service_image", d.ServiceImage)
	v.SetDefault("pull_policy", string(d.PullPolicy))
	v.SetDefault("runtime_env", d.RuntimeEnv)
	v.SetDefault("additional_runtime_env", []string{})
	v.SetDefault("retain_after_end", d.RetainAfterEnd)
	v.SetDefault("ingress_port", d.IngressPort)
	v.SetDefault("admin_port", d.AdminPort)
	v.SetDefault("service_port", d.ServicePort)
	v.SetDefault("node_port", d.NodePort)
	v.SetDefault("readiness_timeout", d.ReadinessTimeout)
	v.SetDefault("request_timeout", d.RequestTimeout)
	v.SetDefault("await_interval", d.AwaitInterval)
	v.SetDefault("await_timeout", d.AwaitTimeout)
	v.SetDefault("class_timeout", d.ClassTimeout)
	v.SetDefault("teardown_timeout", d.TeardownTimeout)
}
