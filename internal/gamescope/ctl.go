// Package gamescope wraps the gamescopectl helper and inspects the session
// the backend runs in.
package gamescope

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
)

// DefaultCtl is the helper binary name
const DefaultCtl = "gamescopectl"

// Ctl runs gamescopectl subcommands
type Ctl struct {
	path string
}

// NewCtl creates a runner for the helper at path (looked up in $PATH when bare)
func NewCtl(path string) *Ctl {
	if path == "" {
		path = DefaultCtl
	}
	return &Ctl{path: path}
}

// Path returns the helper path
func (c *Ctl) Path() string {
	return c.path
}

// Version runs `gamescopectl version` and returns its trimmed output
func (c *Ctl) Version(ctx context.Context) (string, error) {
	out, err := c.run(ctx, "version")
	if err != nil {
		return "", err
	}
	return out, nil
}

// Screenshot runs `gamescopectl screenshot <dest>` and waits for it to exit.
// The file may still be written after the helper returned.
func (c *Ctl) Screenshot(ctx context.Context, dest string) error {
	_, err := c.run(ctx, "screenshot", dest)
	return err
}

func (c *Ctl) run(ctx context.Context, args ...string) (string, error) {
	cmd := exec.CommandContext(ctx, c.path, args...)
	var output bytes.Buffer
	cmd.Stdout = &output
	cmd.Stderr = &output

	if err := cmd.Run(); err != nil {
		out := strings.TrimSpace(output.String())
		if out != "" {
			return "", fmt.Errorf("%s %s: %w: %s", c.path, args[0], err, out)
		}
		return "", fmt.Errorf("%s %s: %w", c.path, args[0], err)
	}
	return strings.TrimSpace(output.String()), nil
}
