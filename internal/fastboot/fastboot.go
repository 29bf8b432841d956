// Package fastboot wraps the bootloader flashing tool.
package fastboot

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/danmuck/devctl/internal/argsmodel"
	"github.com/danmuck/devctl/internal/classify"
	"github.com/danmuck/devctl/internal/poll"
	"github.com/danmuck/devctl/internal/tools"
)

const Name = "fastboot"

var ErrInvalidSlot = errors.New("fastboot: invalid slot")

// Schema is the fastboot global option set.
var Schema = argsmodel.MustSchema(
	argsmodel.Option{Name: "serial", Flag: "-s", Default: ""},
	argsmodel.Option{Name: "wipe", Flag: "-w", Default: false, Boolean: true},
	argsmodel.Option{Name: "disableVerity", Flag: "--disable-verity", Default: false, Boolean: true},
	argsmodel.Option{Name: "disableVerification", Flag: "--disable-verification", Default: false, Boolean: true},
	argsmodel.Option{Name: "skipReboot", Flag: "--skip-reboot", Default: false, Boolean: true},
	argsmodel.Option{Name: "slot", Flag: "--slot", Default: ""},
	argsmodel.Option{Name: "maxSize", Flag: "-S", Default: ""},
)

var Rules = []classify.Rule{
	{Reason: classify.BootloaderLocked, Match: classify.OutputContains(
		"not allowed in Lock State",
		"not allowed in locked state",
		"Device is locked",
		"device is locked",
	)},
	{Reason: classify.EnableUnlocking, Match: classify.OutputContains(
		"Flashing Unlock is not allowed",
		"unlock is not allowed",
		"Unlock is not allowed",
		"enable OEM unlocking",
	)},
	{Reason: classify.LowBattery, Match: classify.OutputContains(
		"low power",
		"low battery",
		"Low battery",
		"battery too low",
		"Battery level",
	)},
	{Reason: classify.FailedToBoot, Match: classify.OutputContains(
		"failed to load/authenticate boot image",
		"Failed to boot",
		"failed to boot",
	)},
	{Reason: classify.NoDevice, Match: classify.OutputContains(
		"no devices",
		"no such device",
		"< waiting for",
		"device not found",
	)},
}

// Client is a configured fastboot instance.
type Client struct {
	tool     *tools.Tool
	interval time.Duration
}

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

func (c *Client) Tool() *tools.Tool {
	return c.tool
}

func (c *Client) with(t *tools.Tool) *Client {
	return &Client{tool: t, interval: c.interval}
}

// WithConfig returns a client with option overrides applied.
func (c *Client) WithConfig(cfg argsmodel.Config) (*Client, error) {
	t, err := c.tool.WithConfig(cfg)
	if err != nil {
		return nil, err
	}
	return c.with(t), nil
}

func (c *Client) WithSerial(serial string) (*Client, error) {
	return c.WithConfig(argsmodel.Config{"serial": serial})
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

func (c *Client) run(ctx context.Context, op ...string) error {
	_, err := c.tool.Exec(ctx, op...)
	return err
}

// Boot downloads and boots a kernel image without flashing it.
func (c *Client) Boot(ctx context.Context, image string) error {
	return c.run(ctx, "boot", image)
}

func (c *Client) Erase(ctx context.Context, partition string) error {
	return c.run(ctx, "erase", partition)
}

// Format formats a partition. fsType and size are optional; size is only
// used together with fsType.
func (c *Client) Format(ctx context.Context, partition, fsType, size string) error {
	cmd := "format"
	if fsType != "" {
		cmd += ":" + fsType
		if size != "" {
			cmd += ":" + size
		}
	}
	return c.run(ctx, cmd, partition)
}

// Update flashes a full update package. The wipe option clears userdata.
func (c *Client) Update(ctx context.Context, pkg string) error {
	return c.run(ctx, "update", pkg)
}

func (c *Client) Reboot(ctx context.Context) error {
	return c.run(ctx, "reboot")
}

func (c *Client) RebootBootloader(ctx context.Context) error {
	return c.run(ctx, "reboot", "bootloader")
}

// RebootFastboot reboots into userspace fastboot.
func (c *Client) RebootFastboot(ctx context.Context) error {
	return c.run(ctx, "reboot", "fastboot")
}

func (c *Client) RebootRecovery(ctx context.Context) error {
	return c.run(ctx, "reboot", "recovery")
}

// Continue resumes the normal boot flow.
func (c *Client) Continue(ctx context.Context) error {
	return c.run(ctx, "continue")
}

var slots = []string{"a", "b", "other", "all"}

// SetActive marks slot as the active boot slot.
func (c *Client) SetActive(ctx context.Context, slot string) error {
	slot = strings.TrimPrefix(slot, "_")
	if !slices.Contains(slots, slot) {
		return fmt.Errorf("%w: %q", ErrInvalidSlot, slot)
	}
	return c.run(ctx, "set_active", slot)
}

// OemUnlock unlocks the bootloader, passing code when the vendor needs one.
func (c *Client) OemUnlock(ctx context.Context, code string) error {
	return c.run(ctx, "oem", "unlock", code)
}

func (c *Client) OemLock(ctx context.Context) error {
	return c.run(ctx, "oem", "lock")
}

func (c *Client) FlashingUnlock(ctx context.Context) error {
	return c.run(ctx, "flashing", "unlock")
}

func (c *Client) FlashingLock(ctx context.Context) error {
	return c.run(ctx, "flashing", "lock")
}

// Getvar reads one bootloader variable.
func (c *Client) Getvar(ctx context.Context, name string) (string, error) {
	out, err := c.tool.Exec(ctx, "getvar", name)
	if err != nil {
		return "", err
	}
	value, ok := parseGetvar(out, name)
	if !ok {
		return "", classify.Unexpected(Name, out)
	}
	return value, nil
}

// parseGetvar finds the "name: value" line. fastboot prints it on stderr
// next to a timing line.
func parseGetvar(out, name string) (string, bool) {
	prefix := name + ":"
	for _, line := range strings.Split(out, "\n") {
		line = strings.TrimSpace(line)
		if rest, ok := strings.CutPrefix(line, prefix); ok {
			value := strings.TrimSpace(rest)
			if value == "" {
				return "", false
			}
			return value, true
		}
	}
	return "", false
}

// Device is one entry of `fastboot devices`.
type Device struct {
	Serial string
	Mode   string
}

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
		fields := strings.Fields(line)
		if len(fields) < 2 {
			continue
		}
		devices = append(devices, Device{Serial: fields[0], Mode: fields[1]})
	}
	return devices
}

// HasAccess reports whether a device is listed in fastboot mode, restricted
// to the configured serial when one is set.
func (c *Client) HasAccess(ctx context.Context) (bool, error) {
	devices, err := c.Devices(ctx)
	if err != nil {
		if errors.Is(err, classify.ErrNoDevice) {
			return false, nil
		}
		return false, err
	}
	serial, _ := c.tool.Option("serial")
	want, _ := serial.(string)
	for _, d := range devices {
		if want == "" || d.Serial == want {
			return true, nil
		}
	}
	return false, nil
}

func (c *Client) WaitForDevice(ctx context.Context) error {
	return c.tool.WaitFor(ctx, c.interval, c.HasAccess)
}
