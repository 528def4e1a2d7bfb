package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"sync"

	"conformance/internal/admin"
	"conformance/internal/config"
	"conformance/internal/deployment"
	"conformance/pkg/logging"

	"al.essio.dev/pkg/shellescape"
)

// ErrUnknownSpec is returned by Register for a spec the deployment does not have.
var ErrUnknownSpec = errors.New("unknown service spec")

// resource is a container or network created for a deployment.
type resource struct {
	id   string
	name string
	// alias names the log file of a container.
	alias      string
	cancelExit func()
}

func (r *resource) disarm() {
	if r != nil && r.cancelExit != nil {
		r.cancelExit()
		r.cancelExit = nil
	}
}

// ServiceDeployment is the running container of one ServiceSpec.
type ServiceDeployment struct {
	Spec deployment.ServiceSpec
	// URI is the address the runtime reaches the container at.
	URI   string
	Ports PortView

	container  *resource
	registered bool
}

// ContainerID returns the ID of the service container.
func (s *ServiceDeployment) ContainerID() string {
	if s.container == nil {
		return ""
	}
	return s.container.id
}

// RunningDeployment is the runtime under test plus the service deployments of
// one test class.
type RunningDeployment struct {
	Name       string
	AdminURL   string
	IngressURL string
	// RuntimePorts covers the ingress, admin and node ports of the runtime.
	RuntimePorts PortView

	cfg    config.GlobalConfig
	retain bool
	admin  *admin.Client

	mu       sync.Mutex
	network  *resource
	runtime  *resource
	services []*ServiceDeployment
	stopped  bool
}

// Retained reports whether the deployment outlives its test class.
func (d *RunningDeployment) Retained() bool {
	return d.retain
}

// Services returns the service deployments in declaration order.
func (d *RunningDeployment) Services() []*ServiceDeployment {
	d.mu.Lock()
	defer d.mu.Unlock()
	return slices.Clone(d.services)
}

// Service returns the deployment of the named spec.
func (d *RunningDeployment) Service(specName string) (*ServiceDeployment, bool) {
	for _, s := range d.Services() {
		if s != nil && s.Spec.Name() == specName {
			return s, true
		}
	}
	return nil, false
}

// IsRegistered reports whether the named spec is registered with the runtime.
func (d *RunningDeployment) IsRegistered(specName string) bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	for _, s := range d.services {
		if s != nil && s.Spec.Name() == specName {
			return s.registered
		}
	}
	return false
}

// Register registers a service deployment that was started with
// SkipRegistration. Registering an already registered spec is a no-op.
func (d *RunningDeployment) Register(ctx context.Context, specName string) error {
	svc, ok := d.Service(specName)
	if !ok {
		return fmt.Errorf("%w: %s", ErrUnknownSpec, specName)
	}
	return d.register(ctx, svc)
}

func (d *RunningDeployment) register(ctx context.Context, svc *ServiceDeployment) error {
	d.mu.Lock()
	done := svc.registered
	d.mu.Unlock()
	if done {
		return nil
	}

	resp, err := d.admin.RegisterDeployment(ctx, svc.URI, true)
	if err != nil {
		return fmt.Errorf("service spec %s: %w", svc.Spec.Name(), err)
	}

	d.mu.Lock()
	svc.registered = true
	d.mu.Unlock()
	logging.FromContext(ctx).Info(ctx, orchestratorSubsystem, "Registered %s at %s as deployment %s", svc.Spec.Name(), svc.URI, resp.ID)
	return nil
}

// containers returns service containers in reverse declaration order followed
// by the runtime container, i.e. teardown order.
func (d *RunningDeployment) containers() []*resource {
	d.mu.Lock()
	defer d.mu.Unlock()
	var out []*resource
	for i := len(d.services) - 1; i >= 0; i-- {
		if s := d.services[i]; s != nil && s.container != nil {
			out = append(out, s.container)
		}
	}
	if d.runtime != nil {
		out = append(out, d.runtime)
	}
	return out
}

// CleanupCommand returns a shell command removing everything the deployment
// created.
func (d *RunningDeployment) CleanupCommand() string {
	var parts []string
	if containers := d.containers(); len(containers) > 0 {
		names := []string{"docker", "rm", "-f"}
		for _, c := range containers {
			names = append(names, shellescape.Quote(c.name))
		}
		parts = append(parts, strings.Join(names, " "))
	}
	d.mu.Lock()
	network := d.network
	d.mu.Unlock()
	if network != nil {
		parts = append(parts, "docker network rm "+shellescape.Quote(network.name))
	}
	return strings.Join(parts, " && ")
}

// LogSource returns the logs of a container.
type LogSource interface {
	GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error)
}

// SaveLogs writes the logs of every container to dir/<alias>.log and returns
// the written paths. Containers whose logs cannot be read are skipped.
func (d *RunningDeployment) SaveLogs(ctx context.Context, src LogSource, dir string) ([]string, error) {
	containers := d.containers()
	if len(containers) == 0 {
		return nil, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("creating log directory %s: %w", dir, err)
	}

	var written []string
	var errs []error
	for _, c := range containers {
		path := filepath.Join(dir, c.alias+".log")
		if err := saveLog(ctx, src, c.id, path); err != nil {
			errs = append(errs, err)
			continue
		}
		written = append(written, path)
	}
	return written, errors.Join(errs...)
}

func saveLog(ctx context.Context, src LogSource, containerID, path string) error {
	rc, err := src.GetContainerLogs(ctx, containerID)
	if err != nil {
		return err
	}
	defer rc.Close()

	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("creating %s: %w", path, err)
	}
	defer f.Close()
	if _, err := io.Copy(f, rc); err != nil {
		return fmt.Errorf("writing %s: %w", path, err)
	}
	return nil
}
