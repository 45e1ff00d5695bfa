package launcher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/screenbridge/hostcore/internal/errs"
	"github.com/screenbridge/hostcore/internal/logging"
)

var log = logging.L("adbcli")

// maxOutputSize bounds captured stdout/stderr, mirroring the executor's
// defensive cap against a runaway debug-tool invocation.
const maxOutputSize = 1024 * 1024

// Client is a thin wrapper around the debug-tool CLI surface listed in
// §6: devices -l, shell, push, install, forward, pair, connect,
// disconnect. The long-lived track-devices stream is run by
// internal/inventory, not by this type.
type Client struct {
	// BinaryPath is the configured debug-tool location; empty resolves
	// from PATH.
	BinaryPath string
}

// NewClient returns a Client resolving the binary from binaryPath, or
// from PATH if binaryPath is empty.
func NewClient(binaryPath string) *Client {
	return &Client{BinaryPath: binaryPath}
}

// Resolve locates the debug-tool binary, returning errs.ErrToolMissing if it
// cannot be found.
func (c *Client) Resolve() (string, error) {
	if c.BinaryPath != "" {
		if _, err := exec.LookPath(c.BinaryPath); err == nil {
			return c.BinaryPath, nil
		}
		return "", fmt.Errorf("%w: %s", errs.ErrToolMissing, c.BinaryPath)
	}
	path, err := exec.LookPath("adb")
	if err != nil {
		return "", fmt.Errorf("%w: adb not found on PATH", errs.ErrToolMissing)
	}
	return path, nil
}

// Run invokes the debug tool with args, bounded by timeout, and returns
// combined stdout/stderr.
func (c *Client) Run(ctx context.Context, timeout time.Duration, args ...string) (string, error) {
	path, err := c.Resolve()
	if err != nil {
		return "", err
	}

	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, args...)
	setProcessGroup(cmd)

	var out bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &out, limit: maxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &out, limit: maxOutputSize}

	err = cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return out.String(), fmt.Errorf("%w: %s timed out after %s", errs.ErrCommandFailure, strings.Join(args, " "), timeout)
	}
	if err != nil {
		return out.String(), fmt.Errorf("%w: %s: %v", errs.ErrCommandFailure, strings.Join(args, " "), err)
	}
	return out.String(), nil
}

// DevicesSnapshot runs a synchronous "devices -l" query, distinct from
// the continuous track-devices stream owned by internal/inventory
// (the SPEC_FULL "device-list snapshot command" addition).
func (c *Client) DevicesSnapshot(ctx context.Context, timeout time.Duration) (string, error) {
	return c.Run(ctx, timeout, "devices", "-l")
}

// Shell runs "-s <serial> shell <cmd...>" and returns its stdout.
func (c *Client) Shell(ctx context.Context, timeout time.Duration, serial string, cmd ...string) (string, error) {
	args := append([]string{"-s", serial, "shell"}, cmd...)
	return c.Run(ctx, timeout, args...)
}

// Push copies a local file to the device.
func (c *Client) Push(ctx context.Context, timeout time.Duration, serial, local, remote string) error {
	_, err := c.Run(ctx, timeout, "-s", serial, "push", local, remote)
	return err
}

// Install installs an APK on the device.
func (c *Client) Install(ctx context.Context, timeout time.Duration, serial, apkPath string) error {
	_, err := c.Run(ctx, timeout, "-s", serial, "install", apkPath)
	return err
}

// Forward sets up "forward tcp:<localPort> localabstract:<name>".
func (c *Client) Forward(ctx context.Context, timeout time.Duration, serial string, localPort int, socketName string) error {
	_, err := c.Run(ctx, timeout,
		"-s", serial, "forward",
		fmt.Sprintf("tcp:%d", localPort),
		fmt.Sprintf("localabstract:%s", socketName),
	)
	return err
}

type limitedWriter struct {
	buf     *bytes.Buffer
	limit   int
	written int
}

func (w *limitedWriter) Write(p []byte) (int, error) {
	if w.written >= w.limit {
		return len(p), nil
	}
	remaining := w.limit - w.written
	if len(p) > remaining {
		p = p[:remaining]
	}
	n, err := w.buf.Write(p)
	w.written += n
	return len(p), err
}
