package docker

import (
	"context"
	"errors"

	"github.com/compose-network/rollup-job-handler/internal/driver"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/filters"
	"github.com/docker/docker/api/types/network"
)

// EnsureNetwork creates the bridge network rollup containers join, unless it already exists.
func (c *Client) EnsureNetwork(ctx context.Context) error {
	if c.opts.NetworkName == "" {
		return nil
	}

	args := filters.NewArgs()
	args.Add("name", c.opts.NetworkName)

	networks, err := c.cli.NetworkList(ctx, network.ListOptions{Filters: args})
	if err != nil {
		return errors.Join(err, errors.New("failed to list Docker network"))
	}

	// name filters match on substrings
	for _, n := range networks {
		if n.Name == c.opts.NetworkName {
			return nil
		}
	}

	_, err = c.cli.NetworkCreate(ctx, c.opts.NetworkName, network.CreateOptions{
		Driver: "bridge",
		Labels: map[string]string{driver.LabelManagedBy: driver.ManagedByValue},
	})
	if err != nil && !errdefs.IsConflict(err) {
		return errors.Join(err, errors.New("failed to create a network"))
	}

	c.logger.With("network", c.opts.NetworkName).Info("docker network ready")

	return nil
}
