// Package adb lists sideloaded applications on an Android TV through the
// adb command line tool. It is optional: devices with ADB debugging disabled
// simply skip this source of launchable apps.
package adb

import (
	"context"
	"fmt"
	"net"
	"os/exec"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog/log"
)

const (
	defaultPort    = "5555"
	commandTimeout = 20 * time.Second
)

// InstalledApp is one sideloaded package with its market launch link.
type InstalledApp struct {
	PackageID string
	URL       string
}

// Client shells out to the adb binary for one device address.
type Client struct {
	binary string
	target string
}

// NewClient creates a client for the device at host. The adb binary must be
// on PATH.
func NewClient(host string) *Client {
	return &Client{
		binary: "adb",
		target: net.JoinHostPort(host, defaultPort),
	}
}

// Connect establishes the adb TCP connection to the device.
func (c *Client) Connect(ctx context.Context) error {
	out, err := c.run(ctx, "connect", c.target)
	if err != nil {
		return fmt.Errorf("adb connect %s: %w", c.target, err)
	}
	if strings.Contains(out, "failed") || strings.Contains(out, "cannot") {
		return fmt.Errorf("adb connect %s: %s", c.target, strings.TrimSpace(out))
	}
	return nil
}

// Disconnect drops the adb TCP connection. Errors are logged only.
func (c *Client) Disconnect(ctx context.Context) {
	if _, err := c.run(ctx, "disconnect", c.target); err != nil {
		log.Debug().Err(err).Str("target", c.target).Msg("adb disconnect failed")
	}
}

// IsAuthorized reports whether the device accepted our key. A device that
// shows the authorization dialog but was not confirmed fails the probe.
func (c *Client) IsAuthorized(ctx context.Context) bool {
	out, err := c.shell(ctx, "echo", "ADB_OK")
	if err != nil {
		return false
	}
	return strings.Contains(out, "ADB_OK")
}

// InstalledApps returns the enabled third-party packages, sorted by package
// identifier, each with a market:// launch link.
func (c *Client) InstalledApps(ctx context.Context) ([]InstalledApp, error) {
	out, err := c.shell(ctx, "pm", "list", "packages", "-3", "-e")
	if err != nil {
		return nil, fmt.Errorf("list packages: %w", err)
	}

	var packages []string
	for _, line := range strings.Split(out, "\n") {
		pkg := strings.TrimSpace(strings.TrimPrefix(line, "package:"))
		if pkg != "" {
			packages = append(packages, pkg)
		}
	}
	sort.Strings(packages)

	apps := make([]InstalledApp, 0, len(packages))
	for _, pkg := range packages {
		apps = append(apps, InstalledApp{
			PackageID: pkg,
			URL:       "market://launch?id=" + pkg,
		})
	}
	return apps, nil
}

func (c *Client) shell(ctx context.Context, args ...string) (string, error) {
	full := append([]string{"-s", c.target, "shell"}, args...)
	return c.run(ctx, full...)
}

func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, commandTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, c.binary, args...)
	out, err := cmd.CombinedOutput()
	if err != nil {
		return string(out), fmt.Errorf("%s %s: %w", c.binary, strings.Join(args, " "), err)
	}
	return string(out), nil
}
