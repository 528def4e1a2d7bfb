// Package containerizer provides the container runtime abstraction used to
// deploy the runtime under test and its service containers.
//
// # Core Components
//
// ContainerRuntime: Interface that abstracts container operations
//   - Ping: Check the engine is reachable
//   - ImageExists / PullImage: Make images available
//   - CreateNetwork / RemoveNetwork: Per-deployment bridge networks
//   - StartContainer / StopContainer / RemoveContainer: Container lifecycle
//   - InspectContainer: State and published ports
//   - GetContainerLogs: Logs written so far
//   - ListContainers / ListNetworks: Label queries used to find leftovers
//
// DockerRuntime: Implementation on top of the Docker Engine API client. All
// published ports are bound to a random port on 127.0.0.1, so concurrently
// running deployments never collide.
//
// # Usage Example
//
//	rt, err := containerizer.NewContainerRuntime(ctx, "docker")
//	if err != nil {
//	    return err
//	}
//
//	netID, err := rt.CreateNetwork(ctx, "run-1234", map[string]string{"conformance.run": "1234"})
//	id, err := rt.StartContainer(ctx, containerizer.ContainerConfig{
//	    Name:    "run-1234-runtime",
//	    Image:   "ghcr.io/restatedev/restate:main",
//	    Ports:   []int{8080, 9070},
//	    Network: netID,
//	    Aliases: []string{"runtime"},
//	})
//	info, err := rt.InspectContainer(ctx, id)
//	admin, _ := info.Port(9070)
//
// # Thread Safety
//
// All runtime implementations are safe for concurrent use.
package containerizer
