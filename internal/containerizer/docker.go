package containerizer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"conformance/pkg/logging"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

const dockerSubsystem = "Docker"

// DockerRuntime implements ContainerRuntime using the Docker Engine API
type DockerRuntime struct {
	cli *client.Client
}

var (
	sharedClient *client.Client
	clientOnce   sync.Once
	clientErr    error
)

// dockerClient returns a process-wide Docker client. If DOCKER_HOST is not
// set, common socket locations are probed.
func dockerClient() (*client.Client, error) {
	clientOnce.Do(func() {
		opts := []client.Opt{client.FromEnv, client.WithAPIVersionNegotiation()}
		if os.Getenv("DOCKER_HOST") == "" {
			if sock := findSocket(); sock != "" {
				opts = append(opts, client.WithHost("unix://"+sock))
			}
		}
		sharedClient, clientErr = client.NewClientWithOpts(opts...)
	})
	return sharedClient, clientErr
}

func findSocket() string {
	candidates := []string{"/var/run/docker.sock"}
	if home, err := os.UserHomeDir(); err == nil {
		candidates = append(candidates,
			filepath.Join(home, ".docker", "run", "docker.sock"),
			filepath.Join(home, ".colima", "default", "docker.sock"),
		)
	}
	for _, p := range candidates {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// NewDockerRuntime creates a new Docker runtime instance
func NewDockerRuntime(ctx context.Context) (*DockerRuntime, error) {
	cli, err := dockerClient()
	if err != nil {
		return nil, fmt.Errorf("docker client: %w", err)
	}
	d := &DockerRuntime{cli: cli}
	if err := d.Ping(ctx); err != nil {
		return nil, err
	}
	return d, nil
}

// Ping checks that the Docker daemon is accessible
func (d *DockerRuntime) Ping(ctx context.Context) error {
	if _, err := d.cli.Ping(ctx); err != nil {
		return fmt.Errorf("docker daemon not accessible: %w", err)
	}
	return nil
}

// ImageExists reports whether an image is present locally
func (d *DockerRuntime) ImageExists(ctx context.Context, ref string) (bool, error) {
	_, _, err := d.cli.ImageInspectWithRaw(ctx, ref)
	if err == nil {
		return true, nil
	}
	if client.IsErrNotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("docker inspect %s: %w", ref, err)
}

// PullImage pulls a container image
func (d *DockerRuntime) PullImage(ctx context.Context, ref string) error {
	logging.Info(dockerSubsystem, "Pulling image %s", ref)
	rc, err := d.cli.ImagePull(ctx, ref, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	defer rc.Close()
	// The pull isn't done until the response body is fully read.
	if _, err := io.Copy(io.Discard, rc); err != nil {
		return fmt.Errorf("failed to pull image %s: %w", ref, err)
	}
	return nil
}

// CreateNetwork creates a bridge network and returns its ID
func (d *DockerRuntime) CreateNetwork(ctx context.Context, name string, labels map[string]string) (string, error) {
	resp, err := d.cli.NetworkCreate(ctx, name, network.CreateOptions{
		Driver: "bridge",
		Labels: labels,
	})
	if err != nil {
		return "", fmt.Errorf("failed to create network %s: %w", name, err)
	}
	logging.Debug(dockerSubsystem, "Created network %s with ID %s", name, shortID(resp.ID))
	return resp.ID, nil
}

// RemoveNetwork removes a network
func (d *DockerRuntime) RemoveNetwork(ctx context.Context, networkID string) error {
	if err := d.cli.NetworkRemove(ctx, networkID); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to remove network %s: %w", shortID(networkID), err)
	}
	return nil
}

// StartContainer creates and starts a container with the given configuration
func (d *DockerRuntime) StartContainer(ctx context.Context, cfg ContainerConfig) (string, error) {
	portBindings, exposedPorts := buildPortBindings(cfg.Ports)

	config := &container.Config{
		Image:        cfg.Image,
		Env:          envList(cfg.Env),
		ExposedPorts: exposedPorts,
		Labels:       cfg.Labels,
	}
	if len(cfg.Cmd) > 0 {
		config.Cmd = cfg.Cmd
	}

	hostConfig := &container.HostConfig{
		PortBindings: portBindings,
		ExtraHosts:   []string{"host.docker.internal:host-gateway"},
	}

	var networking *network.NetworkingConfig
	if cfg.Network != "" {
		networking = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				cfg.Network: {Aliases: cfg.Aliases},
			},
		}
	}

	resp, err := d.cli.ContainerCreate(ctx, config, hostConfig, networking, nil, cfg.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container %s: %w", cfg.Name, err)
	}

	if err := d.cli.ContainerStart(ctx, resp.ID, container.StartOptions{}); err != nil {
		// Leave no half-started container behind.
		_ = d.cli.ContainerRemove(context.Background(), resp.ID, container.RemoveOptions{Force: true})
		return "", fmt.Errorf("failed to start container %s: %w", cfg.Name, err)
	}

	logging.Info(dockerSubsystem, "Started container %s with ID %s", cfg.Name, shortID(resp.ID))
	return resp.ID, nil
}

// StopContainer stops a running container
func (d *DockerRuntime) StopContainer(ctx context.Context, containerID string, timeout time.Duration) error {
	logging.Debug(dockerSubsystem, "Stopping container %s", shortID(containerID))
	seconds := int(timeout.Seconds())
	if err := d.cli.ContainerStop(ctx, containerID, container.StopOptions{Timeout: &seconds}); err != nil {
		if client.IsErrNotFound(err) {
			return nil
		}
		return fmt.Errorf("failed to stop container %s: %w", shortID(containerID), err)
	}
	return nil
}

// RemoveContainer removes a container
func (d *DockerRuntime) RemoveContainer(ctx context.Context, containerID string) error {
	err := d.cli.ContainerRemove(ctx, containerID, container.RemoveOptions{Force: true, RemoveVolumes: true})
	if err != nil && !client.IsErrNotFound(err) {
		return fmt.Errorf("failed to remove container %s: %w", shortID(containerID), err)
	}
	return nil
}

// InspectContainer returns the state and published ports of a container
func (d *DockerRuntime) InspectContainer(ctx context.Context, containerID string) (*ContainerInfo, error) {
	inspect, err := d.cli.ContainerInspect(ctx, containerID)
	if err != nil {
		return nil, fmt.Errorf("failed to inspect container %s: %w", shortID(containerID), err)
	}

	info := &ContainerInfo{
		ID:    inspect.ID,
		Name:  strings.TrimPrefix(inspect.Name, "/"),
		Ports: map[int]HostPort{},
	}
	if inspect.State != nil {
		info.Running = inspect.State.Running
	}
	if inspect.NetworkSettings != nil {
		info.Ports = publishedPorts(inspect.NetworkSettings.Ports)
	}
	return info, nil
}

// GetContainerLogs returns a reader for the logs written so far, with stdout
// and stderr demultiplexed into one stream
func (d *DockerRuntime) GetContainerLogs(ctx context.Context, containerID string) (io.ReadCloser, error) {
	rc, err := d.cli.ContainerLogs(ctx, containerID, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to get logs of container %s: %w", shortID(containerID), err)
	}
	defer rc.Close()

	var buf bytes.Buffer
	if _, err := stdcopy.StdCopy(&buf, &buf, rc); err != nil {
		return nil, fmt.Errorf("failed to read logs of container %s: %w", shortID(containerID), err)
	}
	return io.NopCloser(&buf), nil
}

// ListContainers lists containers, running or not, carrying all given labels
func (d *DockerRuntime) ListContainers(ctx context.Context, labels map[string]string) ([]Resource, error) {
	list, err := d.cli.ContainerList(ctx, container.ListOptions{All: true, Filters: labelFilters(labels)})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}
	out := make([]Resource, 0, len(list))
	for _, c := range list {
		name := ""
		if len(c.Names) > 0 {
			name = strings.TrimPrefix(c.Names[0], "/")
		}
		out = append(out, Resource{ID: c.ID, Name: name, Labels: c.Labels})
	}
	return out, nil
}

// ListNetworks lists networks carrying all given labels
func (d *DockerRuntime) ListNetworks(ctx context.Context, labels map[string]string) ([]Resource, error) {
	list, err := d.cli.NetworkList(ctx, network.ListOptions{Filters: labelFilters(labels)})
	if err != nil {
		return nil, fmt.Errorf("failed to list networks: %w", err)
	}
	out := make([]Resource, 0, len(list))
	for _, n := range list {
		out = append(out, Resource{ID: n.ID, Name: n.Name, Labels: n.Labels})
	}
	return out, nil
}

// buildPortBindings publishes every port on a random loopback port of the host.
func buildPortBindings(ports []int) (nat.PortMap, nat.PortSet) {
	portBindings := make(nat.PortMap)
	exposedPorts := make(nat.PortSet)
	for _, p := range ports {
		port := nat.Port(fmt.Sprintf("%d/tcp", p))
		exposedPorts[port] = struct{}{}
		portBindings[port] = []nat.PortBinding{{HostIP: "127.0.0.1", HostPort: ""}}
	}
	return portBindings, exposedPorts
}

// publishedPorts converts Docker's port map into container port to host address.
func publishedPorts(ports nat.PortMap) map[int]HostPort {
	out := make(map[int]HostPort, len(ports))
	for port, bindings := range ports {
		if port.Proto() != "tcp" || len(bindings) == 0 {
			continue
		}
		for _, b := range bindings {
			hostPort, err := strconv.Atoi(b.HostPort)
			if err != nil || hostPort == 0 {
				continue
			}
			host := b.HostIP
			if host == "" || host == "0.0.0.0" || host == "::" {
				host = "127.0.0.1"
			}
			out[port.Int()] = HostPort{Host: host, Port: hostPort}
			break
		}
	}
	return out
}

// labelFilters matches every label; an empty value only requires the label
// to be present.
func labelFilters(labels map[string]string) filters.Args {
	args := filters.NewArgs()
	for k, v := range labels {
		if v == "" {
			args.Add("label", k)
			continue
		}
		args.Add("label", k+"="+v)
	}
	return args
}

func envList(env map[string]string) []string {
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	sort.Strings(out)
	return out
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}
