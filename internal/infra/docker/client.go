package docker

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"

	"github.com/compose-network/rollup-job-handler/internal/logger"
	"github.com/containerd/errdefs"
	"github.com/docker/docker/api/types/build"
	"github.com/docker/docker/api/types/image"
	"github.com/docker/docker/client"
	"github.com/moby/go-archive"
)

type (
	Options struct {
		NetworkName string
		RPCPort     int
		HostIP      string
		// BuildContext, when set, is used to build missing images instead of pulling them.
		BuildContext string
		Dockerfile   string
	}

	// Client is the Docker backed container runtime for rollups.
	Client struct {
		cli    *client.Client
		opts   Options
		logger *slog.Logger
	}
)

// New creates a new Docker client.
func New(opts Options) (*Client, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, err
	}

	if opts.Dockerfile == "" {
		opts.Dockerfile = "Dockerfile"
	}

	return &Client{cli: cli, opts: opts, logger: logger.Named("docker_client")}, nil
}

// Close closes the Docker client connection.
func (c *Client) Close() error {
	return c.cli.Close()
}

// Ping checks the daemon is reachable.
func (c *Client) Ping(ctx context.Context) error {
	if _, err := c.cli.Ping(ctx); err != nil {
		return fmt.Errorf("failed to reach docker daemon: %w", err)
	}
	return nil
}

// EnsureImage makes imageName available locally, building or pulling it when missing.
func (c *Client) EnsureImage(ctx context.Context, imageName string) error {
	exists, err := c.ImageExists(ctx, imageName)
	if err != nil {
		return fmt.Errorf("failed to inspect image: %w", err)
	}
	if exists {
		return nil
	}

	if c.opts.BuildContext != "" {
		return c.BuildImage(ctx, c.opts.Dockerfile, c.opts.BuildContext, imageName, nil)
	}
	return c.PullImage(ctx, imageName)
}

// ImageExists checks if a Docker image exists locally.
func (c *Client) ImageExists(ctx context.Context, imageName string) (bool, error) {
	_, err := c.cli.ImageInspect(ctx, imageName)
	if err != nil {
		if errdefs.IsNotFound(err) {
			return false, nil
		}
		return false, err
	}

	return true, nil
}

// PullImage pulls a Docker image from a registry.
func (c *Client) PullImage(ctx context.Context, imageName string) error {
	c.logger.With("image", imageName).Info("pulling docker image")

	resp, err := c.cli.ImagePull(ctx, imageName, image.PullOptions{})
	if err != nil {
		return fmt.Errorf("failed to pull image: %w", err)
	}
	defer resp.Close()

	if err := c.drainProgress(resp, "pull"); err != nil {
		return err
	}

	c.logger.With("image", imageName).Info("docker image pulled successfully")
	return nil
}

// BuildImage builds a Docker image from a Dockerfile.
func (c *Client) BuildImage(ctx context.Context, dockerfilePath, contextPath, tag string, buildArgs map[string]*string) error {
	c.logger.With("tag", tag, "context", contextPath).Info("building docker image")

	buildContext, err := archive.TarWithOptions(contextPath, &archive.TarOptions{})
	if err != nil {
		return fmt.Errorf("failed to create build context: %w", err)
	}
	defer buildContext.Close()

	buildOptions := build.ImageBuildOptions{
		Tags:       []string{tag},
		Dockerfile: dockerfilePath,
		Remove:     true,
		BuildArgs:  buildArgs,
	}

	resp, err := c.cli.ImageBuild(ctx, buildContext, buildOptions)
	if err != nil {
		return fmt.Errorf("failed to build image: %w", err)
	}
	defer resp.Body.Close()

	if err := c.drainProgress(resp.Body, "build"); err != nil {
		return err
	}

	c.logger.With("tag", tag).Info("docker image built successfully")
	return nil
}

// drainProgress consumes a JSON progress stream and returns the last error it reported.
func (c *Client) drainProgress(r io.Reader, action string) error {
	scanner := bufio.NewScanner(r)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	var streamErr error
	for scanner.Scan() {
		line := scanner.Bytes()
		c.logger.Debug(string(line))

		if msg := progressError(line); msg != "" {
			streamErr = fmt.Errorf("%s failed: %s", action, msg)
			c.logger.Error("docker "+action+" error", "error", msg)
		}
	}

	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error reading %s output: %w", action, err)
	}

	return streamErr
}

func progressError(line []byte) string {
	var msg struct {
		Error       string `json:"error"`
		ErrorDetail struct {
			Message string `json:"message"`
		} `json:"errorDetail"`
	}
	if err := json.Unmarshal(line, &msg); err != nil {
		return ""
	}
	if msg.Error != "" {
		return msg.Error
	}
	return msg.ErrorDetail.Message
}
