package containerizer

import (
	"context"
	"fmt"
	"io"
	"time"
)

// ContainerRuntime defines the interface for container runtime operations
type ContainerRuntime interface {
	// Ping checks that the container engine is reachable
	Ping(ctx context.Context) error

	// ImageExists reports whether an image is present locally
	ImageExists(ctx context.Context, image string) (bool, error)

	// PullImage pulls a container image
	PullImage(ctx context.Context, image string) error

	// CreateNetwork creates a bridge network and returns its ID
	CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error)

	// RemoveNetwork removes a network
	RemoveNetwork(ctx context.Context, networkID string) error

	// StartContainer creates and starts a container with the given configuration
	StartContainer(ctx context.Context, config ContainerConfig) (string, error)

	// StopContainer stops a running container, killing it after timeout
	StopContainer(ctx context.Context, containerID string, timeout time.Duration) error

	// RemoveContainer removes a container
	RemoveContainer(ctx context.Context, containerID string) error

	// InspectContainer returns the state and published ports of a container
	InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error)

	// GetContainerLogs returns a reader for the logs written so far
	GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error)

	// ListContainers lists containers carrying all given labels
	ListContainers(ctx context.Context, labels map[string]string) ([]Resource, error)

	// ListNetworks lists networks carrying all given labels
	ListNetworks(ctx context.Context, labels map[string]string) ([]Resource, error)
}

// ContainerConfig holds configuration for starting a container
type ContainerConfig struct {
	Name    string            // Container name
	Image   string            // Container image
	Env     map[string]string // Environment variables
	Ports   []int             // Container ports published on a random host port
	Network string            // Network to attach to
	Aliases []string          // Network aliases
	Labels  map[string]string // Labels identifying the owner
	Cmd     []string          // Command override
}

// HostPort is a published port as seen from the host.
type HostPort struct {
	Host string
	Port int
}

func (h HostPort) String() string {
	return fmt.Sprintf("%s:%d", h.Host, h.Port)
}

// ContainerInfo is a snapshot of a container.
type ContainerInfo struct {
	ID      string
	Name    string
	Running bool
	// Ports maps container ports to their published host address.
	Ports map[int]HostPort
}

// Port returns the host address a container port is published on.
func (c *ContainerInfo) Port(containerPort int) (HostPort, bool) {
	if c == nil {
		return HostPort{}, false
	}
	hp, ok := c.Ports[containerPort]
	return hp, ok
}

// Resource is a container or network found by a label query.
type Resource struct {
	ID     string
	Name   string
	Labels map[string]string
}
