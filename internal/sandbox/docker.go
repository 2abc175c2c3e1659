package sandbox

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/docker/docker/api/types/container"
	"github.com/docker/docker/api/types/mount"
	"github.com/docker/docker/client"
	"github.com/docker/docker/pkg/stdcopy"

	"github.com/svngoku/sandbox-runtime/internal/config"
	"github.com/svngoku/sandbox-runtime/internal/errdefs"
)

const dockerPingTimeout = 5 * time.Second

// DockerSandbox executes commands inside a long-lived container instead of
// wrapping them on the host.
type DockerSandbox struct {
	cli         *client.Client
	cfg         *config.DockerConfig
	containerID string
	debug       bool
}

// NewDockerSandbox connects to the Docker daemon and verifies it is
// reachable.
func NewDockerSandbox(cfg *config.DockerConfig, debug bool) (*DockerSandbox, error) {
	cli, err := client.NewClientWithOpts(client.FromEnv, client.WithAPIVersionNegotiation())
	if err != nil {
		return nil, errdefs.Wrap(errdefs.KindDocker, err, "failed to create docker client")
	}

	ctx, cancel := context.WithTimeout(context.Background(), dockerPingTimeout)
	defer cancel()
	if _, err := cli.Ping(ctx); err != nil {
		cli.Close()
		return nil, errdefs.Wrap(errdefs.KindDocker, err, "docker daemon is not reachable")
	}

	return &DockerSandbox{cli: cli, cfg: cfg, debug: debug}, nil
}

// CreateContainer creates the container from the configured image. The
// container idles so commands can be exec'd into it.
func (d *DockerSandbox) CreateContainer(ctx context.Context) error {
	containerCfg := &container.Config{
		Image:      d.cfg.Image,
		WorkingDir: d.cfg.Workdir,
		User:       d.cfg.User,
		Env:        dockerEnvList(d.cfg.Env),
		Cmd:        []string{"sleep", "infinity"},
	}

	hostCfg := &container.HostConfig{
		AutoRemove: false,
	}
	if d.cfg.NetworkMode != "" {
		hostCfg.NetworkMode = container.NetworkMode(d.cfg.NetworkMode)
	}
	if d.cfg.CPULimit > 0 {
		hostCfg.Resources.NanoCPUs = int64(d.cfg.CPULimit * 1e9)
	}
	if d.cfg.MemoryLimit > 0 {
		hostCfg.Resources.Memory = d.cfg.MemoryLimit
	}
	mounts, err := dockerMounts(d.cfg.Volumes)
	if err != nil {
		return err
	}
	hostCfg.Mounts = mounts

	resp, err := d.cli.ContainerCreate(ctx, containerCfg, hostCfg, nil, nil, d.cfg.Name)
	if err != nil {
		return errdefs.Wrap(errdefs.KindDocker, err, "failed to create container")
	}
	d.containerID = resp.ID
	d.logDebug("created container %s from %s", shortID(resp.ID), d.cfg.Image)
	return nil
}

// StartContainer starts the previously created container.
func (d *DockerSandbox) StartContainer(ctx context.Context) error {
	if d.containerID == "" {
		return errdefs.New(errdefs.KindDocker, "no container has been created")
	}
	if err := d.cli.ContainerStart(ctx, d.containerID, container.StartOptions{}); err != nil {
		return errdefs.Wrap(errdefs.KindDocker, err, "failed to start container")
	}
	d.logDebug("started container %s", shortID(d.containerID))
	return nil
}

// ExecuteCommand runs a shell command inside the container, streaming its
// output to the host stdio, and returns the command's exit code.
func (d *DockerSandbox) ExecuteCommand(ctx context.Context, command string) (int, error) {
	if d.containerID == "" {
		return -1, errdefs.New(errdefs.KindDocker, "no container has been created")
	}

	execCfg := container.ExecOptions{
		Cmd:          []string{"sh", "-c", command},
		AttachStdout: true,
		AttachStderr: true,
		WorkingDir:   d.cfg.Workdir,
		User:         d.cfg.User,
	}
	execResp, err := d.cli.ContainerExecCreate(ctx, d.containerID, execCfg)
	if err != nil {
		return -1, errdefs.Wrap(errdefs.KindDocker, err, "failed to create exec")
	}

	attachResp, err := d.cli.ContainerExecAttach(ctx, execResp.ID, container.ExecStartOptions{})
	if err != nil {
		return -1, errdefs.Wrap(errdefs.KindDocker, err, "failed to attach to exec")
	}
	defer attachResp.Close()

	if _, err := stdcopy.StdCopy(os.Stdout, os.Stderr, attachResp.Reader); err != nil {
		return -1, errdefs.Wrap(errdefs.KindDocker, err, "failed to stream exec output")
	}

	inspectResp, err := d.cli.ContainerExecInspect(ctx, execResp.ID)
	if err != nil {
		return -1, errdefs.Wrap(errdefs.KindDocker, err, "failed to inspect exec")
	}
	return inspectResp.ExitCode, nil
}

// RemoveContainer force-removes the container. Safe to call when no
// container exists.
func (d *DockerSandbox) RemoveContainer(ctx context.Context) error {
	if d.containerID == "" {
		return nil
	}
	if err := d.cli.ContainerRemove(ctx, d.containerID, container.RemoveOptions{Force: true}); err != nil {
		return errdefs.Wrap(errdefs.KindDocker, err, "failed to remove container")
	}
	d.logDebug("removed container %s", shortID(d.containerID))
	d.containerID = ""
	return nil
}

// ContainerID returns the ID of the created container, or empty.
func (d *DockerSandbox) ContainerID() string {
	return d.containerID
}

// Close releases the Docker client.
func (d *DockerSandbox) Close() error {
	if d.cli == nil {
		return nil
	}
	return d.cli.Close()
}

// dockerEnvList flattens the env map into docker's KEY=VALUE form.
func dockerEnvList(env map[string]string) []string {
	if len(env) == 0 {
		return nil
	}
	out := make([]string, 0, len(env))
	for k, v := range env {
		out = append(out, k+"="+v)
	}
	return out
}

// dockerMounts converts "host:container[:ro]" volume specs into bind mounts.
func dockerMounts(volumes []string) ([]mount.Mount, error) {
	var mounts []mount.Mount
	for _, vol := range volumes {
		parts := strings.Split(vol, ":")
		if len(parts) < 2 || len(parts) > 3 {
			return nil, errdefs.Newf(errdefs.KindConfig, "invalid volume spec %q, expected host:container[:ro]", vol)
		}
		src, err := ExpandPath(parts[0])
		if err != nil {
			return nil, err
		}
		m := mount.Mount{
			Type:   mount.TypeBind,
			Source: src,
			Target: parts[1],
		}
		if len(parts) == 3 {
			if parts[2] != "ro" && parts[2] != "rw" {
				return nil, errdefs.Newf(errdefs.KindConfig, "invalid volume mode %q in %q", parts[2], vol)
			}
			m.ReadOnly = parts[2] == "ro"
		}
		mounts = append(mounts, m)
	}
	return mounts, nil
}

func shortID(id string) string {
	if len(id) > 12 {
		return id[:12]
	}
	return id
}

func (d *DockerSandbox) logDebug(format string, args ...any) {
	if d.debug {
		fmt.Fprintf(os.Stderr, "[srt:docker] "+format+"\n", args...)
	}
}
