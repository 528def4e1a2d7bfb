package fakeruntime

import (
	"fmt"
	"net"
	"net/url"
	"slices"
	"strconv"
	"sync"
	"time"

	"conformance/internal/config"
	"conformance/internal/containerizer"
)

// RuntimeAlias is the network alias the orchestrator gives the runtime
// container. The Stack serves the fake runtime behind it.
const RuntimeAlias = "runtime"

// Stack is an Engine whose runtime containers are fake Runtimes and whose
// service containers all publish one idle TCP listener, so a deployment
// started through the orchestrator passes every readiness probe without
// touching a container engine.
//
// Every runtime container gets its own Runtime, which only discovers service
// containers attached to the same network. Concurrent deployments therefore
// share no state, as they would with real containers.
type Stack struct {
	Engine *Engine

	cfg      config.GlobalConfig
	listener net.Listener
	opts     []Option

	mu       sync.Mutex
	runtimes map[string]*stackRuntime
	order    []*Runtime
	closed   bool
}

type stackRuntime struct {
	admin   containerizer.HostPort
	ingress containerizer.HostPort
}

// NewStack creates the engine and a listener for service containers.
// Runtimes are started on demand, the first time a runtime container is
// inspected, with opts applied to each of them.
func NewStack(opts ...Option) (*Stack, error) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		return nil, fmt.Errorf("listening for service containers: %w", err)
	}
	go acceptAndClose(ln)

	s := &Stack{
		Engine:   NewEngine(),
		listener: ln,
		opts:     opts,
		runtimes: make(map[string]*stackRuntime),
		cfg: config.Default().WithOverrides(func(c *config.GlobalConfig) {
			c.NodePort = 0
			c.PullPolicy = config.PullNever
			c.ReadinessTimeout = 5 * time.Second
		}),
	}

	servicePort := ln.Addr().(*net.TCPAddr).Port
	s.Engine.SetPorts(func(cc containerizer.ContainerConfig) map[int]containerizer.HostPort {
		out := map[int]containerizer.HostPort{}
		for _, p := range cc.Ports {
			out[p] = containerizer.HostPort{Host: "127.0.0.1", Port: servicePort}
		}
		if len(cc.Aliases) > 0 && cc.Aliases[0] == RuntimeAlias {
			if rt, ok := s.runtimeFor(cc); ok {
				out[s.cfg.AdminPort] = rt.admin
				out[s.cfg.IngressPort] = rt.ingress
			}
		}
		return out
	})
	return s, nil
}

// runtimeFor returns the Runtime serving the runtime container cc, starting
// it on first use.
func (s *Stack) runtimeFor(cc containerizer.ContainerConfig) (*stackRuntime, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if rt, ok := s.runtimes[cc.Name]; ok {
		return rt, true
	}
	if s.closed {
		return nil, false
	}

	network := cc.Network
	opts := append(slices.Clone(s.opts), WithDiscover(func(uri string) (Endpoint, error) {
		return s.Engine.DiscoverIn(network, uri)
	}))
	rt := New(opts...)
	adminURL, ingressURL := rt.Start()
	adminHP, err := hostPort(adminURL)
	if err != nil {
		rt.Close()
		return nil, false
	}
	ingressHP, err := hostPort(ingressURL)
	if err != nil {
		rt.Close()
		return nil, false
	}

	sr := &stackRuntime{admin: adminHP, ingress: ingressHP}
	s.runtimes[cc.Name] = sr
	s.order = append(s.order, rt)
	return sr, true
}

// Runtimes returns the Runtimes started so far, one per runtime container.
func (s *Stack) Runtimes() []*Runtime {
	s.mu.Lock()
	defer s.mu.Unlock()
	return slices.Clone(s.order)
}

// Config returns a configuration matching the stack: no image pulls, no gRPC
// node port and a short readiness timeout.
func (s *Stack) Config() config.GlobalConfig {
	return s.cfg.Clone()
}

// Close stops every Runtime and the service listener.
func (s *Stack) Close() {
	s.mu.Lock()
	s.closed = true
	runtimes := s.order
	s.mu.Unlock()
	for _, rt := range runtimes {
		rt.Close()
	}
	s.listener.Close()
}

func acceptAndClose(ln net.Listener) {
	for {
		conn, err := ln.Accept()
		if err != nil {
			return
		}
		conn.Close()
	}
}

func hostPort(rawURL string) (containerizer.HostPort, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return containerizer.HostPort{}, err
	}
	port, err := strconv.Atoi(u.Port())
	if err != nil {
		return containerizer.HostPort{}, fmt.Errorf("parsing port of %s: %w", rawURL, err)
	}
	return containerizer.HostPort{Host: u.Hostname(), Port: port}, nil
}
