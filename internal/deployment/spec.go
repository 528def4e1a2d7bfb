package deployment

import (
	"maps"
	"regexp"
	"slices"
	"strings"
)

// DefaultSpecName is the name of the spec created by DefaultSpec.
const DefaultSpecName = "default"

// ServiceSpec describes one service deployment: a container hosting a set of
// test services.
//
// ServiceSpec values are built with DefaultSpec or NamedSpec and refined with
// the With* methods, each of which returns a modified copy.
type ServiceSpec struct {
	name             string
	services         []string
	env              map[string]string
	skipRegistration bool
	image            string
	port             int
	healthPath       string
}

// DefaultSpec returns the default spec hosting services.
func DefaultSpec(services ...string) ServiceSpec {
	return NamedSpec(DefaultSpecName, services...)
}

// NamedSpec returns a spec called name hosting services.
func NamedSpec(name string, services ...string) ServiceSpec {
	return ServiceSpec{name: name, services: slices.Clone(services)}
}

// WithServices adds services to the spec.
func (s ServiceSpec) WithServices(services ...string) ServiceSpec {
	out := s.clone()
	out.services = append(out.services, services...)
	return out
}

// WithEnv sets an environment variable of the service container. Values may
// use template actions, see RenderEnv.
func (s ServiceSpec) WithEnv(key, value string) ServiceSpec {
	out := s.clone()
	if out.env == nil {
		out.env = make(map[string]string)
	}
	out.env[key] = value
	return out
}

// SkipRegistration deploys the container without registering it with the
// runtime. The deployment can be registered later through the running
// deployment.
func (s ServiceSpec) SkipRegistration() ServiceSpec {
	out := s.clone()
	out.skipRegistration = true
	return out
}

// WithImage overrides the configured service image for this spec.
func (s ServiceSpec) WithImage(image string) ServiceSpec {
	out := s.clone()
	out.image = image
	return out
}

// WithPort overrides the configured service port for this spec.
func (s ServiceSpec) WithPort(port int) ServiceSpec {
	out := s.clone()
	out.port = port
	return out
}

// WithHealthPath makes readiness use an HTTP probe against path instead of a
// TCP probe.
func (s ServiceSpec) WithHealthPath(path string) ServiceSpec {
	out := s.clone()
	out.healthPath = path
	return out
}

func (s ServiceSpec) Name() string { return s.name }
func (s ServiceSpec) Services() []string { return slices.Clone(s.services) }
func (s ServiceSpec) Env() map[string]string { return maps.Clone(s.env) }
func (s ServiceSpec) SkipsRegistration() bool { return s.skipRegistration }
func (s ServiceSpec) Image() string { return s.image }
func (s ServiceSpec) Port() int { return s.port }
func (s ServiceSpec) HealthPath() string { return s.healthPath }
func (s ServiceSpec) IsDefault() bool { return s.name == DefaultSpecName }
func (s ServiceSpec) Hosts(service string) bool { return slices.Contains(s.services, service) }

// Alias returns the network alias of the spec's container, derived from its name.
func (s ServiceSpec) Alias() string {
	return "service-" + sanitizeName(s.name)
}

// ServicesEnv is the variable telling the service image which services to host.
const ServicesEnv = "SERVICES"

func (s ServiceSpec) clone() ServiceSpec {
	out := s
	out.services = slices.Clone(s.services)
	out.env = maps.Clone(s.env)
	return out
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

// sanitizeName turns an arbitrary name into a valid DNS label fragment.
func sanitizeName(name string) string {
	name = invalidNameChars.ReplaceAllString(strings.ToLower(name), "-")
	return strings.Trim(name, "-")
}
