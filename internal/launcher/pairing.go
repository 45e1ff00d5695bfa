package launcher

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/screenbridge/hostcore/internal/errs"
)

// pairingDeadline bounds the whole pair exchange, including the time a
// human takes to read the on-screen code and this process relays it.
const pairingDeadline = 30 * time.Second

// connectTimeout bounds a one-shot "connect <ip>:<port>" call.
const connectTimeout = 10 * time.Second

// Pair runs "pair <addr>", writing code to the process's stdin once it
// has started, and succeeds only if the combined output confirms the
// pairing. addr is a "host:port" as shown by the device's wireless
// pairing screen.
func (c *Client) Pair(ctx context.Context, addr, code string) error {
	path, err := c.Resolve()
	if err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, pairingDeadline)
	defer cancel()

	cmd := exec.CommandContext(ctx, path, "pair", addr)
	setProcessGroup(cmd)

	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("launcher: pair stdin pipe: %w", err)
	}
	var out bytes.Buffer
	cmd.Stdout = &limitedWriter{buf: &out, limit: maxOutputSize}
	cmd.Stderr = &limitedWriter{buf: &out, limit: maxOutputSize}

	if err := cmd.Start(); err != nil {
		return fmt.Errorf("%w: launcher: start pair: %v", errs.ErrTransientConnect, err)
	}

	fmt.Fprintln(stdin, code)
	stdin.Close()

	err = cmd.Wait()
	if ctx.Err() == context.DeadlineExceeded {
		killProcessGroup(cmd)
		return fmt.Errorf("%w: pairing to %s timed out", errs.ErrCommandFailure, addr)
	}

	output := strings.ToLower(out.String())
	if strings.Contains(output, "successfully paired") || strings.Contains(output, "paired to") {
		return nil
	}
	if err != nil {
		return fmt.Errorf("%w: pair %s: %v (%s)", errs.ErrCommandFailure, addr, err, out.String())
	}
	return fmt.Errorf("%w: pair %s: unrecognized response: %s", errs.ErrCommandFailure, addr, out.String())
}

// Connect runs "connect <ip>:<port>" against an already-paired device.
func (c *Client) Connect(ctx context.Context, addr string) error {
	out, err := c.Run(ctx, connectTimeout, "connect", addr)
	lower := strings.ToLower(out)
	if strings.Contains(lower, "connected to") || strings.Contains(lower, "already connected") {
		return nil
	}
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: connect %s: unrecognized response: %s", errs.ErrCommandFailure, addr, out)
}

// Disconnect tears down a wireless ADB connection to addr.
func (c *Client) Disconnect(ctx context.Context, addr string) error {
	_, err := c.Run(ctx, connectTimeout, "disconnect", addr)
	return err
}
