package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"sync"
	"time"

	"conformance/internal/admin"
	"conformance/internal/config"
	"conformance/internal/containerizer"
	"conformance/internal/deployment"
	"conformance/internal/ready"
	"conformance/pkg/logging"

	"github.com/google/uuid"
	"github.com/matgreaves/run"
	"github.com/matgreaves/run/onexit"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

const orchestratorSubsystem = "Orchestrator"

// Labels put on every container and network the orchestrator creates.
const (
	LabelRun   = "conformance.run"
	LabelClass = "conformance.class"
	LabelRole  = "conformance.role"
)

// RuntimeAlias is the network alias of the runtime container.
const RuntimeAlias = "runtime"

// PortEnv tells the service image which port to listen on.
const PortEnv = "PORT"

// imagePullTimeout bounds a single image pull.
const imagePullTimeout = 10 * time.Minute

// stopGracePeriod is how long a container may take to stop before it is killed.
const stopGracePeriod = 5 * time.Second

// Config configures an Orchestrator.
type Config struct {
	// Runtime is the container engine.
	Runtime containerizer.ContainerRuntime
	// RunID identifies the harness run in container names and labels.
	RunID string
	// HTTPClient is used for admin API calls.
	HTTPClient *http.Client
	// DisableExitCleanup skips registering "docker rm -f" commands that run
	// if the harness process dies before Stop.
	DisableExitCleanup bool
}

// Orchestrator starts and stops deployments of the runtime under test and
// its service containers.
type Orchestrator struct {
	runtime     containerizer.ContainerRuntime
	runID       string
	httpClient  *http.Client
	exitCleanup bool

	pullMu sync.Mutex
	pulled map[string]bool
	pulls  singleflight.Group
}

// New creates a new orchestrator.
func New(cfg Config) *Orchestrator {
	runID := cfg.RunID
	if runID == "" {
		runID = NewRunID()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		httpClient = &http.Client{Timeout: 30 * time.Second}
	}
	return &Orchestrator{
		runtime:     cfg.Runtime,
		runID:       runID,
		httpClient:  httpClient,
		exitCleanup: !cfg.DisableExitCleanup,
		pulled:      make(map[string]bool),
	}
}

// NewRunID returns a short random run identifier.
func NewRunID() string {
	return "cf-" + uuid.NewString()[:8]
}

// RunID returns the identifier of the harness run.
func (o *Orchestrator) RunID() string {
	return o.runID
}

// ContainerRuntime returns the container engine the orchestrator drives.
func (o *Orchestrator) ContainerRuntime() containerizer.ContainerRuntime {
	return o.runtime
}

var invalidNameChars = regexp.MustCompile(`[^a-z0-9-]+`)

func nameFragment(s string) string {
	return strings.Trim(invalidNameChars.ReplaceAllString(strings.ToLower(s), "-"), "-")
}

func (o *Orchestrator) resourceName(class string) string {
	return fmt.Sprintf("%s-%s-%s", o.runID, nameFragment(class), uuid.NewString()[:8])
}

func (o *Orchestrator) labels(class, role string) map[string]string {
	return map[string]string{LabelRun: o.runID, LabelClass: class, LabelRole: role}
}

// Start deploys the runtime and every service spec of d for the test class
// named class.
//
// The phases run in order: network, runtime, readiness of the admin API,
// service containers (concurrently when d allows it), and registration of
// each service once it is ready. On error the returned deployment holds what
// was created so far and must still be passed to Stop.
func (o *Orchestrator) Start(ctx context.Context, class string, cfg config.GlobalConfig, d deployment.Descriptor) (*RunningDeployment, error) {
	rd := &RunningDeployment{
		Name:   class,
		cfg:    cfg,
		retain: cfg.RetainAfterEnd || d.RetainAfterEnd(),
	}

	// The sequence decorates errors with step indices; the first domain
	// error is returned instead.
	var cause error
	step := func(fn func(ctx context.Context) error) run.Runner {
		return run.Func(func(ctx context.Context) error {
			if err := fn(ctx); err != nil {
				if cause == nil {
					cause = err
				}
				return err
			}
			return nil
		})
	}

	seq := run.Sequence{
		step(func(ctx context.Context) error { return o.ensureImages(ctx, cfg, d) }),
		step(func(ctx context.Context) error { return o.createNetwork(ctx, rd) }),
		step(func(ctx context.Context) error { return o.startRuntime(ctx, rd, d) }),
		step(func(ctx context.Context) error { return o.startServices(ctx, rd, d) }),
	}

	logging.FromContext(ctx).Info(ctx, orchestratorSubsystem, "Starting deployment for %s", class)
	if err := seq.Run(ctx); err != nil {
		if cause == nil {
			cause = err
		}
		return rd, fmt.Errorf("starting deployment for %s: %w", class, cause)
	}
	logging.FromContext(ctx).Info(ctx, orchestratorSubsystem, "Deployment for %s ready (ingress %s, admin %s)", class, rd.IngressURL, rd.AdminURL)
	return rd, nil
}

func (o *Orchestrator) ensureImages(ctx context.Context, cfg config.GlobalConfig, d deployment.Descriptor) error {
	images := []string{cfg.RuntimeImage}
	for _, spec := range d.Specs() {
		img := spec.Image()
		if img == "" {
			img = cfg.ServiceImage
		}
		images = append(images, img)
	}

	seen := make(map[string]bool)
	for _, img := range images {
		if seen[img] {
			continue
		}
		seen[img] = true
		if err := o.ensureImage(ctx, cfg.PullPolicy, img); err != nil {
			return err
		}
	}
	return nil
}

// ensureImage applies the pull policy to img. A successful pull is
// remembered for the rest of the harness run; concurrent callers share one
// pull, which is detached from ctx and bounded by imagePullTimeout.
func (o *Orchestrator) ensureImage(ctx context.Context, policy config.PullPolicy, img string) error {
	if policy == config.PullNever {
		return nil
	}

	o.pullMu.Lock()
	done := o.pulled[img]
	o.pullMu.Unlock()
	if done {
		return nil
	}

	ch := o.pulls.DoChan(img, func() (any, error) {
		pctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), imagePullTimeout)
		defer cancel()
		if err := o.pullImage(pctx, policy, img); err != nil {
			return nil, err
		}
		o.pullMu.Lock()
		o.pulled[img] = true
		o.pullMu.Unlock()
		return nil, nil
	})

	select {
	case res := <-ch:
		if res.Err != nil {
			return fmt.Errorf("ensuring image %s: %w", img, res.Err)
		}
		return nil
	case <-ctx.Done():
		return fmt.Errorf("ensuring image %s: %w", img, context.Cause(ctx))
	}
}

func (o *Orchestrator) pullImage(ctx context.Context, policy config.PullPolicy, img string) error {
	if policy == config.PullMissing {
		exists, err := o.runtime.ImageExists(ctx, img)
		if err != nil {
			return err
		}
		if exists {
			logging.FromContext(ctx).Debug(ctx, orchestratorSubsystem, "Image %s present locally", img)
			return nil
		}
	}
	return o.runtime.PullImage(ctx, img)
}

func (o *Orchestrator) armExitCleanup(format string, args ...any) func() {
	if !o.exitCleanup {
		return nil
	}
	cancel, err := onexit.OnExitF(format, args...)
	if err != nil || cancel == nil {
		logging.Debug(orchestratorSubsystem, "Exit cleanup unavailable: %v", err)
		return nil
	}
	return func() { cancel() }
}

func (o *Orchestrator) createNetwork(ctx context.Context, rd *RunningDeployment) error {
	name := o.resourceName(rd.Name)
	id, err := o.runtime.CreateNetwork(ctx, name, o.labels(rd.Name, "network"))
	if err != nil {
		return err
	}
	rd.mu.Lock()
	rd.network = &resource{id: id, name: name, cancelExit: o.armExitCleanup("docker network rm %s", id)}
	rd.mu.Unlock()
	return nil
}

func (o *Orchestrator) startContainer(ctx context.Context, rd *RunningDeployment, role, alias string, cfg containerizer.ContainerConfig) (*resource, *containerizer.ContainerInfo, error) {
	cfg.Name = o.resourceName(rd.Name)
	cfg.Labels = o.labels(rd.Name, role)
	cfg.Aliases = []string{alias}
	rd.mu.Lock()
	cfg.Network = rd.network.id
	rd.mu.Unlock()

	id, err := o.runtime.StartContainer(ctx, cfg)
	if err != nil {
		return nil, nil, err
	}
	res := &resource{id: id, name: cfg.Name, alias: alias, cancelExit: o.armExitCleanup("docker rm -f %s", id)}

	info, err := o.runtime.InspectContainer(ctx, id)
	if err != nil {
		return res, nil, err
	}
	return res, info, nil
}

func (o *Orchestrator) startRuntime(ctx context.Context, rd *RunningDeployment, d deployment.Descriptor) error {
	cfg := rd.cfg
	env := cfg.EffectiveRuntimeEnv()
	maps.Copy(env, d.RuntimeEnv())

	ports := []int{cfg.IngressPort, cfg.AdminPort}
	if cfg.NodePort > 0 {
		ports = append(ports, cfg.NodePort)
	}

	res, info, err := o.startContainer(ctx, rd, "runtime", RuntimeAlias, containerizer.ContainerConfig{
		Image: cfg.RuntimeImage,
		Env:   env,
		Ports: ports,
	})
	if res != nil {
		rd.mu.Lock()
		rd.runtime = res
		rd.mu.Unlock()
	}
	if err != nil {
		return fmt.Errorf("runtime container: %w", err)
	}

	view := NewPortView(info, ports...)
	rd.RuntimePorts = view
	if rd.AdminURL, err = view.URL(cfg.AdminPort); err != nil {
		return fmt.Errorf("runtime admin endpoint: %w", err)
	}
	if rd.IngressURL, err = view.URL(cfg.IngressPort); err != nil {
		return fmt.Errorf("runtime ingress endpoint: %w", err)
	}
	rd.admin = admin.New(rd.AdminURL, o.httpClient)

	probes := []probe{
		{cfg.AdminPort, &ready.HTTP{Path: "/health", RequireSuccess: true}},
		{cfg.IngressPort, ready.TCP{}},
	}
	if cfg.NodePort > 0 {
		probes = append(probes, probe{cfg.NodePort, ready.GRPC{}})
	}
	for _, p := range probes {
		if err := o.awaitReady(ctx, rd, res, view, p.port, p.checker); err != nil {
			return err
		}
	}
	return nil
}

type probe struct {
	port    int
	checker ready.Checker
}

func (o *Orchestrator) awaitReady(ctx context.Context, rd *RunningDeployment, res *resource, view PortView, port int, checker ready.Checker) error {
	hp, err := view.HostPort(port)
	if err != nil {
		return fmt.Errorf("container %s: %w", res.alias, err)
	}
	target := ready.Target{Container: res.alias, Host: hp.Host, Port: hp.Port}
	logging.FromContext(ctx).Debug(ctx, orchestratorSubsystem, "Waiting for %s", target)
	return ready.Poll(ctx, target, checker, ready.Options{
		Timeout: rd.cfg.ReadinessTimeout,
		OnFailure: func(err error) {
			logging.FromContext(ctx).Debug(ctx, orchestratorSubsystem, "%s not ready yet: %v", target, err)
		},
	})
}

func (o *Orchestrator) startServices(ctx context.Context, rd *RunningDeployment, d deployment.Descriptor) error {
	specs := d.Specs()
	rd.mu.Lock()
	rd.services = make([]*ServiceDeployment, len(specs))
	rd.mu.Unlock()

	if !d.ParallelStart() {
		for i, spec := range specs {
			if err := o.startService(ctx, rd, i, spec); err != nil {
				return err
			}
		}
		return nil
	}

	g, gctx := errgroup.WithContext(ctx)
	for i, spec := range specs {
		g.Go(func() error {
			return o.startService(gctx, rd, i, spec)
		})
	}
	return g.Wait()
}

func (o *Orchestrator) startService(ctx context.Context, rd *RunningDeployment, index int, spec deployment.ServiceSpec) error {
	cfg := rd.cfg
	image := spec.Image()
	if image == "" {
		image = cfg.ServiceImage
	}
	port := spec.Port()
	if port == 0 {
		port = cfg.ServicePort
	}

	env, err := deployment.RenderEnv(spec.Env(), deployment.TemplateData{
		SpecName:     spec.Name(),
		Alias:        spec.Alias(),
		Port:         port,
		RuntimeAlias: RuntimeAlias,
	})
	if err != nil {
		return fmt.Errorf("service spec %s: %w", spec.Name(), err)
	}
	env[deployment.ServicesEnv] = strings.Join(spec.Services(), ",")
	env[PortEnv] = strconv.Itoa(port)

	res, info, err := o.startContainer(ctx, rd, "service", spec.Alias(), containerizer.ContainerConfig{
		Image: image,
		Env:   env,
		Ports: []int{port},
	})
	svc := &ServiceDeployment{
		Spec:      spec,
		URI:       fmt.Sprintf("http://%s:%d", spec.Alias(), port),
		container: res,
	}
	rd.mu.Lock()
	rd.services[index] = svc
	rd.mu.Unlock()
	if err != nil {
		return fmt.Errorf("service spec %s: %w", spec.Name(), err)
	}
	svc.Ports = NewPortView(info, port)

	var checker ready.Checker = ready.TCP{}
	if spec.HealthPath() != "" {
		checker = &ready.HTTP{Path: spec.HealthPath()}
	}
	if err := o.awaitReady(ctx, rd, res, svc.Ports, port, checker); err != nil {
		return err
	}

	if spec.SkipsRegistration() {
		logging.FromContext(ctx).Info(ctx, orchestratorSubsystem, "Service spec %s started without registration", spec.Name())
		return nil
	}
	return rd.register(ctx, svc)
}

// Stop removes the containers and the network of rd: service containers in
// reverse declaration order, then the runtime, then the network. It is safe
// to call more than once and after a partial Start. Retained deployments are
// left running and the command to remove them is logged.
func (o *Orchestrator) Stop(ctx context.Context, rd *RunningDeployment) error {
	if rd == nil {
		return nil
	}
	rd.mu.Lock()
	if rd.stopped {
		rd.mu.Unlock()
		return nil
	}
	rd.stopped = true
	network := rd.network
	rd.mu.Unlock()

	containers := rd.containers()

	if rd.retain {
		for _, c := range containers {
			c.disarm()
		}
		network.disarm()
		if cmd := rd.CleanupCommand(); cmd != "" {
			logging.FromContext(ctx).Info(ctx, orchestratorSubsystem, "Retaining deployment %s (ingress %s, admin %s). Remove it with: %s",
				rd.Name, rd.IngressURL, rd.AdminURL, cmd)
		}
		return nil
	}

	var errs []error
	for _, c := range containers {
		if err := o.runtime.StopContainer(ctx, c.id, stopGracePeriod); err != nil {
			logging.FromContext(ctx).Warn(ctx, orchestratorSubsystem, "Failed to stop %s: %v", c.name, err)
		}
		if err := o.runtime.RemoveContainer(ctx, c.id); err != nil {
			errs = append(errs, err)
			continue
		}
		c.disarm()
	}
	if network != nil {
		if err := o.runtime.RemoveNetwork(ctx, network.id); err != nil {
			errs = append(errs, err)
		} else {
			network.disarm()
		}
	}

	if err := errors.Join(errs...); err != nil {
		logging.FromContext(ctx).Error(ctx, orchestratorSubsystem, err, "Teardown of %s incomplete", rd.Name)
		return fmt.Errorf("stopping deployment for %s: %w", rd.Name, err)
	}
	logging.FromContext(ctx).Info(ctx, orchestratorSubsystem, "Deployment for %s removed", rd.Name)
	return nil
}
