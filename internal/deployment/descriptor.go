package deployment

import (
	"errors"
	"fmt"
	"maps"
	"slices"
	"strings"

	"conformance/internal/services"
)

var (
	// ErrUnknownService is returned when a spec references a service the
	// service image does not host.
	ErrUnknownService = errors.New("unknown service")
	// ErrDuplicateSpec is returned when two specs share a name.
	ErrDuplicateSpec = errors.New("duplicate service spec")
	// ErrNoSpecs is returned when a descriptor declares no service deployment.
	ErrNoSpecs = errors.New("descriptor declares no service specs")
)

// Descriptor is the immutable description of a deployment: the runtime plus
// one container per ServiceSpec.
type Descriptor struct {
	specs          []ServiceSpec
	parallelStart  bool
	retainAfterEnd bool
	runtimeEnv     map[string]string
}

// Specs returns the service specs in declaration order.
func (d Descriptor) Specs() []ServiceSpec {
	out := make([]ServiceSpec, len(d.specs))
	for i, s := range d.specs {
		out[i] = s.clone()
	}
	return out
}

// Spec returns the spec called name.
func (d Descriptor) Spec(name string) (ServiceSpec, bool) {
	i := slices.IndexFunc(d.specs, func(s ServiceSpec) bool { return s.name == name })
	if i < 0 {
		return ServiceSpec{}, false
	}
	return d.specs[i].clone(), true
}

// ParallelStart reports whether service containers may start concurrently.
func (d Descriptor) ParallelStart() bool { return d.parallelStart }

// RetainAfterEnd reports whether the descriptor asks for the deployment to be
// kept after the test class finished.
func (d Descriptor) RetainAfterEnd() bool { return d.retainAfterEnd }

// RuntimeEnv returns the environment added to the runtime container.
func (d Descriptor) RuntimeEnv() map[string]string { return maps.Clone(d.runtimeEnv) }

// Builder collects the configuration of a Descriptor.
type Builder struct {
	specs          []ServiceSpec
	parallelStart  bool
	retainAfterEnd bool
	runtimeEnv     map[string]string
}

// WithServiceSpec appends a service spec.
func (b *Builder) WithServiceSpec(spec ServiceSpec) *Builder {
	b.specs = append(b.specs, spec.clone())
	return b
}

// WithRuntimeEnv sets an environment variable of the runtime container.
func (b *Builder) WithRuntimeEnv(key, value string) *Builder {
	if b.runtimeEnv == nil {
		b.runtimeEnv = make(map[string]string)
	}
	b.runtimeEnv[key] = value
	return b
}

// WithParallelStart lets service containers start concurrently.
func (b *Builder) WithParallelStart(parallel bool) *Builder {
	b.parallelStart = parallel
	return b
}

// RetainAfterEnd keeps the deployment alive after the test class finished.
func (b *Builder) RetainAfterEnd() *Builder {
	b.retainAfterEnd = true
	return b
}

// Build runs configure against a fresh Builder and validates the result.
func Build(configure func(b *Builder)) (Descriptor, error) {
	b := &Builder{parallelStart: true}
	if configure != nil {
		configure(b)
	}
	d := Descriptor{
		specs:          b.specs,
		parallelStart:  b.parallelStart,
		retainAfterEnd: b.retainAfterEnd,
		runtimeEnv:     maps.Clone(b.runtimeEnv),
	}
	if err := d.validate(); err != nil {
		return Descriptor{}, err
	}
	return d, nil
}

func (d Descriptor) validate() error {
	if len(d.specs) == 0 {
		return ErrNoSpecs
	}
	var errs []error
	names := make(map[string]bool, len(d.specs))
	aliases := make(map[string]string, len(d.specs))
	for _, s := range d.specs {
		if strings.TrimSpace(s.name) == "" {
			errs = append(errs, errors.New("service spec without a name"))
			continue
		}
		if names[s.name] {
			errs = append(errs, fmt.Errorf("%w: %q", ErrDuplicateSpec, s.name))
		}
		names[s.name] = true
		if other, ok := aliases[s.Alias()]; ok && other != s.name {
			errs = append(errs, fmt.Errorf("%w: %q and %q map to the same container alias", ErrDuplicateSpec, other, s.name))
		}
		aliases[s.Alias()] = s.name

		if len(s.services) == 0 {
			errs = append(errs, fmt.Errorf("service spec %q hosts no services", s.name))
		}
		for _, svc := range s.services {
			if !services.IsKnown(svc) {
				errs = append(errs, fmt.Errorf("service spec %q: %w %q", s.name, ErrUnknownService, svc))
			}
		}
		for k, v := range s.env {
			if _, err := parseTemplate(k, v); err != nil {
				errs = append(errs, fmt.Errorf("service spec %q: %w", s.name, err))
			}
		}
	}
	return errors.Join(errs...)
}
