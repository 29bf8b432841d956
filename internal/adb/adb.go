// Package adb wraps the Android debug bridge.
//
// Ownership boundary:
// - adb option schema and failure rules
//
// - buffered device queries and state changes
//
// - push with byte-level progress from the trace channel
package adb

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"slices"
	"strings"
	"time"

	"github.com/danmuck/devctl/internal/argsmodel"
	"github.com/danmuck/devctl/internal/classify"
	"github.com/danmuck/devctl/internal/poll"
	"github.com/danmuck/devctl/internal/tools"
)

const Name = "adb"

// DefaultPort is the adb server port.
const DefaultPort = 5037

var ErrInvalidState = errors.New("adb: invalid state")

// Schema is the adb global option set.
var Schema = argsmodel.MustSchema(
	argsmodel.Option{Name: "serial", Flag: "-s", Default: ""},
	argsmodel.Option{Name: "allInterfaces", Flag: "-a", Default: false, Boolean: true},
	argsmodel.Option{Name: "useUsb", Flag: "-d", Default: false, Boolean: true},
	argsmodel.Option{Name: "useTcpIp", Flag: "-e", Default: false, Boolean: true},
	argsmodel.Option{Name: "host", Flag: "-H", Default: ""},
	argsmodel.Option{Name: "port", Flag: "-P", Default: DefaultPort},
)

// Rules are checked in order; the more specific device conditions come
// before the generic no-device match.
var Rules = []classify.Rule{
	{Reason: classify.Unauthorized, Match: classify.OutputContains(
		"device unauthorized",
		"device still authorizing",
	)},
	{Reason: classify.DeviceOffline, Match: classify.OutputContains(
		"device offline",
		"protocol fault",
	)},
	{Reason: classify.MultipleDevices, Match: classify.OutputContains(
		"more than one device",
	)},
	{Reason: classify.NoDevice, Match: classify.Any(
		classify.OutputContains("no devices/emulators found", "no devices found"),
		classify.StderrMatches(regexp.MustCompile(`device '[^']*' not found`)),
	)},
}

// Client is a configured adb instance. Derivations return new clients.
type Client struct {
	tool     *tools.Tool
	interval time.Duration
}

// New builds an adb client. Name, Schema and Rules in spec are filled in.
func New(spec tools.Spec) (*Client, error) {
	spec.Name = Name
	spec.Schema = Schema
	spec.Rules = append(slices.Clone(Rules), spec.Rules...)
	spec.ActionFirst = false
	t, err := tools.New(spec)
	if err != nil {
		return nil, err
	}
	return &Client{tool: t, interval: poll.DefaultInterval}, nil
}

// Tool exposes the underlying invoker.
func (c *Client) Tool() *tools.Tool {
	return c.tool
}

func (c *Client) with(t *tools.Tool) *Client {
	return &Client{tool: t, interval: c.interval}
}

// WithSerial targets a single device.
func (c *Client) WithSerial(serial string) (*Client, error) {
	t, err := c.tool.WithOption("serial", serial)
	if err != nil {
		return nil, err
	}
	return c.with(t), nil
}

func (c *Client) WithTimeout(d time.Duration) *Client {
	return c.with(c.tool.WithTimeout(d))
}

// WithPollInterval sets the delay between WaitForDevice attempts.
func (c *Client) WithPollInterval(d time.Duration) *Client {
	out := c.with(c.tool)
	if d > 0 {
		out.interval = d
	}
	return out
}

func (c *Client) StartServer(ctx context.Context) error {
	_, err := c.tool.Exec(ctx, "start-server")
	return err
}

func (c *Client) KillServer(ctx context.Context) error {
	_, err := c.tool.Exec(ctx, "kill-server")
	return err
}

// Device is one entry of `adb devices`.
type Device struct {
	Serial string
	State  string
}

// Devices lists attached devices.
func (c *Client) Devices(ctx context.Context) ([]Device, error) {
	out, err := c.tool.Exec(ctx, "devices")
	if err != nil {
		return nil, err
	}
	return parseDevices(out), nil
}

func parseDevices(out string) []Device {
	var devices []Device
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "*") || strings.HasPrefix(line, "List of devices") {
			continue
		}
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Device{Serial: fields[0], State: fields[1]})
	}
	return devices
}

var serialPattern = regexp.MustCompile(`^[0-9A-Za-z._:-]+$`)

// GetSerialno returns the serial of the targeted device.
func (c *Client) GetSerialno(ctx context.Context) (string, error) {
	out, err := c.tool.Exec(ctx, "get-serialno")
	if err != nil {
		return "", err
	}
	if out == "unknown" || !serialPattern.MatchString(out) {
		return "", classify.Unexpected(Name, out)
	}
	return out, nil
}

func (c *Client) GetState(ctx context.Context) (string, error) {
	return c.tool.Exec(ctx, "get-state")
}

// Shell runs a command on the device and returns its output.
func (c *Client) Shell(ctx context.Context, command ...string) (string, error) {
	return c.tool.Exec(ctx, append([]string{"shell"}, command...)...)
}

// Getprop reads one system property. An empty value is unexpected output.
func (c *Client) Getprop(ctx context.Context, prop string) (string, error) {
	out, err := c.Shell(ctx, "getprop", prop)
	if err != nil {
		return "", err
	}
	if out == "" {
		return "", classify.Unexpected(Name, out)
	}
	return out, nil
}

var rebootStates = []string{"", "system", "bootloader", "recovery", "sideload", "sideload-auto-reboot", "fastboot", "edl"}

// Reboot restarts the device into state; "" and "system" boot normally.
func (c *Client) Reboot(ctx context.Context, state string) error {
	if !slices.Contains(rebootStates, state) {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	op := []string{"reboot"}
	if state != "" && state != "system" {
		op = append(op, state)
	}
	out, err := c.tool.Exec(ctx, op...)
	if err != nil {
		return err
	}
	if strings.Contains(out, "failed") {
		return classify.Unexpected(Name, out)
	}
	return nil
}

var waitStates = []string{"device", "recovery", "rescue", "sideload", "bootloader", "disconnect"}

// Wait blocks until a device reaches state on any transport.
func (c *Client) Wait(ctx context.Context, state string) error {
	if state == "" {
		state = "device"
	}
	if !slices.Contains(waitStates, state) {
		return fmt.Errorf("%w: %q", ErrInvalidState, state)
	}
	_, err := c.tool.Exec(ctx, "wait-for-any-"+state)
	return err
}

// HasAccess reports whether a device answers a shell round trip.
// A missing device is not an error.
func (c *Client) HasAccess(ctx context.Context) (bool, error) {
	out, err := c.Shell(ctx, "echo", ".")
	if err != nil {
		if errors.Is(err, classify.ErrNoDevice) {
			return false, nil
		}
		return false, err
	}
	return out == ".", nil
}

// WaitForDevice polls HasAccess until it reports true.
func (c *Client) WaitForDevice(ctx context.Context) error {
	return c.tool.WaitFor(ctx, c.interval, c.HasAccess)
}
