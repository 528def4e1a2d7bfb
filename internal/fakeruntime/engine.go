package fakeruntime

import (
	"context"
	"fmt"
	"io"
	"maps"
	"net/url"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"

	"conformance/internal/containerizer"
	"conformance/internal/deployment"
)

// PortsFunc resolves the published ports of a container.
type PortsFunc func(cfg containerizer.ContainerConfig) map[int]containerizer.HostPort

type fakeContainer struct {
	id      string
	cfg     containerizer.ContainerConfig
	running bool
}

type fakeNetwork struct {
	id     string
	name   string
	labels map[string]string
}

// Engine implements containerizer.ContainerRuntime in memory. It records
// every create, start and remove in order so tests can assert on the
// lifecycle of a deployment.
type Engine struct {
	mu         sync.Mutex
	seq        int
	images     map[string]bool
	pulls      []string
	networks   map[string]*fakeNetwork
	containers map[string]*fakeContainer
	started    []containerizer.ContainerConfig
	events     []string
	failStart  map[string]error
	ports      PortsFunc
}

// NewEngine creates an empty engine. Containers publish no ports until
// SetPorts is called.
func NewEngine() *Engine {
	return &Engine{
		images:     map[string]bool{},
		networks:   map[string]*fakeNetwork{},
		containers: map[string]*fakeContainer{},
		failStart:  map[string]error{},
		ports: func(containerizer.ContainerConfig) map[int]containerizer.HostPort {
			return map[int]containerizer.HostPort{}
		},
	}
}

func (f *Engine) record(format string, args ...any) {
	f.events = append(f.events, fmt.Sprintf(format, args...))
}

// SetPorts replaces the port resolution of all containers.
func (f *Engine) SetPorts(fn PortsFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.ports = fn
}

// Ports returns the current port resolution.
func (f *Engine) Ports() PortsFunc {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.ports
}

// FailStart makes starting the container with the given first alias fail.
func (f *Engine) FailStart(alias string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStart[alias] = err
}

// AddImage marks an image as present locally.
func (f *Engine) AddImage(image string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.images[image] = true
}

// Pulls returns the images pulled so far, in order.
func (f *Engine) Pulls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.pulls)
}

// Events returns the recorded lifecycle events, e.g. "start runtime".
func (f *Engine) Events() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.events)
}

// Removals returns the recorded remove events.
func (f *Engine) Removals() []string {
	var out []string
	for _, e := range f.Events() {
		if strings.HasPrefix(e, "remove") {
			out = append(out, e)
		}
	}
	return out
}

// Live returns the number of containers and networks not yet removed.
func (f *Engine) Live() (containers, networks int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.containers), len(f.networks)
}

// ByAlias returns the configuration of the live container with alias.
func (f *Engine) ByAlias(alias string) (containerizer.ContainerConfig, bool) {
	return f.byAlias("", alias)
}

func (f *Engine) byAlias(network, alias string) (containerizer.ContainerConfig, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.containers {
		if network != "" && c.cfg.Network != network {
			continue
		}
		if slices.Contains(c.cfg.Aliases, alias) {
			return c.cfg, true
		}
	}
	return containerizer.ContainerConfig{}, false
}

// Discover resolves a deployment URI to the services and env of the
// container whose alias is the URI host.
func (f *Engine) Discover(uri string) (Endpoint, error) {
	return f.DiscoverIn("", uri)
}

// DiscoverIn is Discover restricted to the containers attached to network.
// An empty network matches every container.
func (f *Engine) DiscoverIn(network, uri string) (Endpoint, error) {
	u, err := url.Parse(uri)
	if err != nil {
		return Endpoint{}, err
	}
	cfg, ok := f.byAlias(network, u.Hostname())
	if !ok {
		return Endpoint{}, fmt.Errorf("no container with alias %s", u.Hostname())
	}
	return Endpoint{Services: strings.Split(cfg.Env[deployment.ServicesEnv], ","), Env: maps.Clone(cfg.Env)}, nil
}

// Started returns the configuration of every container started so far,
// including removed ones, in start order.
func (f *Engine) Started() []containerizer.ContainerConfig {
	f.mu.Lock()
	defer f.mu.Unlock()
	return slices.Clone(f.started)
}

func (f *Engine) Ping(context.Context) error { return nil }

func (f *Engine) ImageExists(_ context.Context, image string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.images[image], nil
}

func (f *Engine) PullImage(_ context.Context, image string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.pulls = append(f.pulls, image)
	f.images[image] = true
	return nil
}

func (f *Engine) CreateNetwork(_ context.Context, name string, labels map[string]string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seq++
	id := "net-" + strconv.Itoa(f.seq)
	f.networks[id] = &fakeNetwork{id: id, name: name, labels: maps.Clone(labels)}
	f.record("create network")
	return id, nil
}

func (f *Engine) RemoveNetwork(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if _, ok := f.networks[id]; ok {
		delete(f.networks, id)
		f.record("remove network")
	}
	return nil
}

func (f *Engine) StartContainer(_ context.Context, cfg containerizer.ContainerConfig) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	alias := cfg.Name
	if len(cfg.Aliases) > 0 {
		alias = cfg.Aliases[0]
	}
	if err := f.failStart[alias]; err != nil {
		return "", err
	}
	if _, ok := f.networks[cfg.Network]; !ok && cfg.Network != "" {
		return "", fmt.Errorf("network %s does not exist", cfg.Network)
	}
	f.seq++
	id := "ctr-" + strconv.Itoa(f.seq)
	f.containers[id] = &fakeContainer{id: id, cfg: cfg, running: true}
	f.started = append(f.started, cfg)
	f.record("start %s", alias)
	return id, nil
}

func (f *Engine) StopContainer(_ context.Context, id string, _ time.Duration) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		c.running = false
	}
	return nil
}

func (f *Engine) RemoveContainer(_ context.Context, id string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if c, ok := f.containers[id]; ok {
		f.record("remove %s", c.alias())
		delete(f.containers, id)
	}
	return nil
}

func (c *fakeContainer) alias() string {
	if len(c.cfg.Aliases) > 0 {
		return c.cfg.Aliases[0]
	}
	return c.cfg.Name
}

func (f *Engine) InspectContainer(_ context.Context, id string) (*containerizer.ContainerInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("no such container %s", id)
	}
	return &containerizer.ContainerInfo{ID: id, Name: c.cfg.Name, Running: c.running, Ports: f.ports(c.cfg)}, nil
}

func (f *Engine) GetContainerLogs(_ context.Context, id string) (io.ReadCloser, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	c, ok := f.containers[id]
	if !ok {
		return nil, fmt.Errorf("no such container %s", id)
	}
	return io.NopCloser(strings.NewReader("logs of " + c.alias() + "\n")), nil
}

func (f *Engine) ListContainers(_ context.Context, labels map[string]string) ([]containerizer.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []containerizer.Resource
	for _, c := range f.containers {
		if matchLabels(c.cfg.Labels, labels) {
			out = append(out, containerizer.Resource{ID: c.id, Name: c.cfg.Name, Labels: maps.Clone(c.cfg.Labels)})
		}
	}
	slices.SortFunc(out, func(a, b containerizer.Resource) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

func (f *Engine) ListNetworks(_ context.Context, labels map[string]string) ([]containerizer.Resource, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []containerizer.Resource
	for _, n := range f.networks {
		if matchLabels(n.labels, labels) {
			out = append(out, containerizer.Resource{ID: n.id, Name: n.name, Labels: maps.Clone(n.labels)})
		}
	}
	slices.SortFunc(out, func(a, b containerizer.Resource) int { return strings.Compare(a.Name, b.Name) })
	return out, nil
}

// matchLabels applies the docker label filter semantics: every selector
// label must be present, and match when it has a value.
func matchLabels(have, selector map[string]string) bool {
	for k, v := range selector {
		got, ok := have[k]
		if !ok || (v != "" && got != v) {
			return false
		}
	}
	return true
}
