package docker

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/compose-network/rollup-job-handler/internal/driver"
	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
	"github.com/docker/docker/pkg/stdcopy"
	"github.com/docker/go-connections/nat"
)

var _ driver.Runtime = (*Client)(nil)

// Inspect looks a container up by id or name.
func (c *Client) Inspect(ctx context.Context, ref string) (driver.ContainerState, error) {
	resp, err := c.cli.ContainerInspect(ctx, ref)
	if err != nil {
		return driver.ContainerState{}, err
	}
	if resp.ContainerJSONBase == nil {
		return driver.ContainerState{}, fmt.Errorf("docker returned no details for container %s", ref)
	}

	state := driver.ContainerState{
		ID:   resp.ID,
		Name: strings.TrimPrefix(resp.Name, "/"),
	}
	if resp.State != nil {
		state.Running = resp.State.Running
		state.Status = string(resp.State.Status)
	}

	return state, nil
}

// Create creates, without starting, a rollup container attached to the rollup network.
func (c *Client) Create(ctx context.Context, spec driver.ContainerSpec) (string, error) {
	if err := c.EnsureNetwork(ctx); err != nil {
		return "", err
	}

	config, hostConfig, err := c.containerConfig(spec)
	if err != nil {
		return "", err
	}

	var networkingConfig *network.NetworkingConfig
	if c.opts.NetworkName != "" {
		networkingConfig = &network.NetworkingConfig{
			EndpointsConfig: map[string]*network.EndpointSettings{
				c.opts.NetworkName: {Aliases: []string{spec.Name}},
			},
		}
	}

	resp, err := c.cli.ContainerCreate(ctx, config, hostConfig, networkingConfig, nil, spec.Name)
	if err != nil {
		return "", fmt.Errorf("failed to create container: %w", err)
	}
	for _, w := range resp.Warnings {
		c.logger.With("container", spec.Name).Warn(w)
	}

	c.logger.With("container", spec.Name, "id", resp.ID).Info("container created")

	return resp.ID, nil
}

func (c *Client) Start(ctx context.Context, id string) error {
	return c.cli.ContainerStart(ctx, id, container.StartOptions{})
}

func (c *Client) Stop(ctx context.Context, id string, timeout time.Duration) error {
	secs := int(timeout.Seconds())
	return c.cli.ContainerStop(ctx, id, container.StopOptions{Timeout: &secs})
}

func (c *Client) Remove(ctx context.Context, id string) error {
	return c.cli.ContainerRemove(ctx, id, container.RemoveOptions{Force: true, RemoveVolumes: true})
}

// Logs copies the stdout and stderr of a container to stdout and stderr. tail limits the
// output to the last lines, "all" or empty for everything.
func (c *Client) Logs(ctx context.Context, ref, tail string, stdout, stderr io.Writer) error {
	rc, err := c.cli.ContainerLogs(ctx, ref, container.LogsOptions{
		ShowStdout: true,
		ShowStderr: true,
		Timestamps: true,
		Tail:       tail,
	})
	if err != nil {
		return fmt.Errorf("failed to fetch logs of container %s: %w", ref, err)
	}
	defer rc.Close()

	if _, err := stdcopy.StdCopy(stdout, stderr, rc); err != nil {
		return fmt.Errorf("failed to read logs of container %s: %w", ref, err)
	}
	return nil
}

// ListManaged returns the state of every container this handler created.
func (c *Client) ListManaged(ctx context.Context) ([]driver.ContainerState, error) {
	containers, err := c.cli.ContainerList(ctx, container.ListOptions{
		All:     true,
		Filters: filters.NewArgs(filters.Arg("label", driver.LabelManagedBy+"="+driver.ManagedByValue)),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list containers: %w", err)
	}

	out := make([]driver.ContainerState, 0, len(containers))
	for _, s := range containers {
		var name string
		if len(s.Names) > 0 {
			name = strings.TrimPrefix(s.Names[0], "/")
		}
		out = append(out, driver.ContainerState{
			ID:      s.ID,
			Name:    name,
			Running: string(s.State) == "running",
			Status:  s.Status,
		})
	}

	return out, nil
}

func (c *Client) containerConfig(spec driver.ContainerSpec) (*container.Config, *container.HostConfig, error) {
	config := &container.Config{
		Image:  spec.Image,
		Env:    spec.Env,
		Labels: spec.Labels,
	}
	hostConfig := &container.HostConfig{
		RestartPolicy: container.RestartPolicy{Name: container.RestartPolicyUnlessStopped},
	}

	if c.opts.RPCPort == 0 {
		return config, hostConfig, nil
	}

	port, err := nat.NewPort("tcp", strconv.Itoa(c.opts.RPCPort))
	if err != nil {
		return nil, nil, fmt.Errorf("invalid rpc port %d: %w", c.opts.RPCPort, err)
	}
	config.ExposedPorts = nat.PortSet{port: struct{}{}}
	// empty host port lets docker pick a free one per rollup
	hostConfig.PortBindings = nat.PortMap{
		port: []nat.PortBinding{{HostIP: c.opts.HostIP, HostPort: ""}},
	}

	return config, hostConfig, nil
}
