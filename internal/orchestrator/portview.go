package orchestrator

import (
	"fmt"
	"slices"

	"conformance/internal/containerizer"
)

// PortView exposes the published ports of a container, restricted to the
// ports the harness declared as significant for it. Readiness probes and
// endpoint URLs are derived from a PortView, never from the raw container
// info, so undeclared ports the image happens to expose stay invisible.
type PortView struct {
	info  *containerizer.ContainerInfo
	ports []int
}

// NewPortView restricts info to ports.
func NewPortView(info *containerizer.ContainerInfo, ports ...int) PortView {
	return PortView{info: info, ports: slices.Clone(ports)}
}

// Ports returns the significant container ports.
func (v PortView) Ports() []int {
	return slices.Clone(v.ports)
}

// HostPort returns the host address a significant port is published on.
func (v PortView) HostPort(port int) (containerizer.HostPort, error) {
	if !slices.Contains(v.ports, port) {
		return containerizer.HostPort{}, fmt.Errorf("port %d is not declared for this container", port)
	}
	hp, ok := v.info.Port(port)
	if !ok {
		return containerizer.HostPort{}, fmt.Errorf("port %d is not published", port)
	}
	return hp, nil
}

// URL returns the http base URL of a significant port.
func (v PortView) URL(port int) (string, error) {
	hp, err := v.HostPort(port)
	if err != nil {
		return "", err
	}
	return "http://" + hp.String(), nil
}
