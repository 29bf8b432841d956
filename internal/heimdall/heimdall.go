// Package heimdall wraps the download-mode firmware flasher.
//
// heimdall expects its options after the action verb, so the tool is built
// with ActionFirst.
package heimdall

import (
	"context"
	"errors"
	"slices"
	"time"

	"github.com/danmuck/devctl/internal/argsmodel"
	"github.com/danmuck/devctl/internal/classify"
	"github.com/danmuck/devctl/internal/poll"
	"github.com/danmuck/devctl/internal/tools"
)

const Name = "heimdall"

var Schema = argsmodel.MustSchema(
	argsmodel.Option{Name: "noReboot", Flag: "--no-reboot", Default: false, Boolean: true},
	argsmodel.Option{Name: "resume", Flag: "--resume", Default: false, Boolean: true},
	argsmodel.Option{Name: "verbose", Flag: "--verbose", Default: false, Boolean: true},
	argsmodel.Option{Name: "usbLogLevel", Flag: "--usb-log-level", Default: ""},
)

var Rules = []classify.Rule{
	{Reason: classify.NoDevice, Match: classify.OutputContains(
		"Failed to detect compatible download-mode device",
	)},
	{Reason: classify.Unauthorized, Match: classify.OutputContains(
		"Failed to access device",
		"libusb error: -3",
	)},
	{Reason: classify.DeviceOffline, Match: classify.OutputContains(
		"Failed to claim interface",
		"Failed to send handshake",
		"Failed to receive handshake",
		"Protocol initialisation failed",
	)},
}

// Client is a configured heimdall instance.
type Client struct {
	tool     *tools.Tool
	interval time.Duration
}

func New(spec tools.Spec) (*Client, error) {
	spec.Name = Name
	spec.Schema = Schema
	spec.Rules = append(slices.Clone(Rules), spec.Rules...)
	spec.ActionFirst = true
	t, err := tools.New(spec)
	if err != nil {
		return nil, err
	}
	return &Client{tool: t, interval: poll.DefaultInterval}, nil
}

func (c *Client) Tool() *tools.Tool {
	return c.tool
}

func (c *Client) with(t *tools.Tool) *Client {
	return &Client{tool: t, interval: c.interval}
}

func (c *Client) WithConfig(cfg argsmodel.Config) (*Client, error) {
	t, err := c.tool.WithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return c.with(t), nil
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	return c.with(c.tool.WithTimeout(d))
}

func (c *Client) WithPollInterval(d time.Duration) *Client {
	out := c.with(c.tool)
	if d > 0 {
		out.interval = d
	}
	return out
}

// Detect succeeds when a download-mode device is attached.
func (c *Client) Detect(ctx context.Context) error {
	_, err := c.tool.Exec(ctx, "detect")
	return err
}

func (c *Client) HasAccess(ctx context.Context) (bool, error) {
	if err := c.Detect(ctx); err != nil {
		if errors.Is(err, classify.ErrNoDevice) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (c *Client) WaitForDevice(ctx context.Context) error {
	return c.tool.WaitFor(ctx, c.interval, c.HasAccess)
}
