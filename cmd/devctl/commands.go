package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"

	"github.com/danmuck/devctl/internal/abort"
	"github.com/danmuck/devctl/internal/adb"
	"github.com/danmuck/devctl/internal/config"
	"github.com/danmuck/devctl/internal/fastboot"
	"github.com/danmuck/devctl/internal/heimdall"
	"github.com/danmuck/devctl/internal/progress"
	"github.com/danmuck/devctl/internal/tools"
)

var errUsage = errors.New("usage")

type app struct {
	cfg      config.Config
	root     *abort.Signal
	observer tools.Observer
	serial   string
	stdout   io.Writer
	stderr   io.Writer
}

func (a *app) spec(t config.ToolConfig) tools.Spec {
	spec := a.cfg.Spec(t)
	spec.Signal = a.root
	spec.Observer = a.observer
	return spec
}

func (a *app) adb() (*adb.Client, error) {
	c, err := adb.New(a.spec(a.cfg.ADB))
	if err != nil {
		return nil, err
	}
	c = c.WithPollInterval(a.cfg.PollInterval)
	if a.serial != "" {
		return c.WithSerial(a.serial)
	}
	return c, nil
}

func (a *app) fastboot() (*fastboot.Client, error) {
	c, err := fastboot.New(a.spec(a.cfg.Fastboot))
	if err != nil {
		return nil, err
	}
	c = c.WithPollInterval(a.cfg.PollInterval)
	if a.serial != "" {
		return c.WithSerial(a.serial)
	}
	return c, nil
}

func (a *app) heimdall() (*heimdall.Client, error) {
	c, err := heimdall.New(a.spec(a.cfg.Heimdall))
	if err != nil {
		return nil, err
	}
	return c.WithPollInterval(a.cfg.PollInterval), nil
}

func (a *app) dispatch(sig *abort.Signal, cmd string, args []string) error {
	switch cmd {
	case "devices":
		return a.devices(sig)
	case "wait":
		if len(args) != 1 {
			return fmt.Errorf("%w: wait <adb|fastboot|heimdall>", errUsage)
		}
		return a.wait(sig, args[0])
	case "reboot":
		if len(args) > 1 {
			return fmt.Errorf("%w: reboot [state]", errUsage)
		}
		c, err := a.adb()
		if err != nil {
			return err
		}
		state := ""
		if len(args) == 1 {
			state = args[0]
		}
		return c.Reboot(sig, state)
	case "push":
		if len(args) < 2 {
			return fmt.Errorf("%w: push <dest> <file>...", errUsage)
		}
		c, err := a.adb()
		if err != nil {
			return err
		}
		return a.withBar(func(fn progress.Func) error {
			return c.Push(sig, args[1:], args[0], fn)
		})
	case "flash":
		return a.flash(sig, args)
	case "getvar":
		if len(args) != 1 {
			return fmt.Errorf("%w: getvar <name>", errUsage)
		}
		c, err := a.fastboot()
		if err != nil {
			return err
		}
		value, err := c.Getvar(sig, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintln(a.stdout, value)
		return nil
	case "pit":
		return a.pit(sig, args)
	default:
		return fmt.Errorf("%w: unknown command %q", errUsage, cmd)
	}
}

func (a *app) devices(sig *abort.Signal) error {
	ac, err := a.adb()
	if err != nil {
		return err
	}
	list, err := ac.Devices(sig)
	if err != nil {
		return err
	}
	for _, d := range list {
		fmt.Fprintf(a.stdout, "adb\t%s\t%s\n", d.Serial, d.State)
	}

	fc, err := a.fastboot()
	if err != nil {
		return err
	}
	fbList, err := fc.Devices(sig)
	if err != nil {
		return err
	}
	for _, d := range fbList {
		fmt.Fprintf(a.stdout, "fastboot\t%s\t%s\n", d.Serial, d.Mode)
	}

	hc, err := a.heimdall()
	if err != nil {
		return err
	}
	ok, err := hc.HasAccess(sig)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(a.stdout, "heimdall\t-\tdownload")
	}
	return nil
}

func (a *app) wait(sig *abort.Signal, tool string) error {
	switch tool {
	case adb.Name:
		c, err := a.adb()
		if err != nil {
			return err
		}
		return c.WaitForDevice(sig)
	case fastboot.Name:
		c, err := a.fastboot()
		if err != nil {
			return err
		}
		return c.WaitForDevice(sig)
	case heimdall.Name:
		c, err := a.heimdall()
		if err != nil {
			return err
		}
		return c.WaitForDevice(sig)
	default:
		return fmt.Errorf("%w: unknown tool %q", errUsage, tool)
	}
}

func (a *app) flash(sig *abort.Signal, args []string) error {
	fs := flag.NewFlagSet("flash", flag.ContinueOnError)
	fs.SetOutput(a.stderr)
	tool := fs.String("tool", fastboot.Name, "fastboot or heimdall")
	if err := fs.Parse(args); err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	pairs, err := parseImages(fs.Args())
	if err != nil {
		return err
	}

	switch *tool {
	case fastboot.Name:
		c, err := a.fastboot()
		if err != nil {
			return err
		}
		images := make([]fastboot.Image, 0, len(pairs))
		for _, p := range pairs {
			images = append(images, fastboot.Image{Partition: p[0], File: p[1]})
		}
		return a.withBar(func(fn progress.Func) error {
			return c.Flash(sig, images, fn)
		})
	case heimdall.Name:
		c, err := a.heimdall()
		if err != nil {
			return err
		}
		images := make([]heimdall.Image, 0, len(pairs))
		for _, p := range pairs {
			images = append(images, heimdall.Image{Partition: p[0], File: p[1]})
		}
		return a.withBar(func(fn progress.Func) error {
			return c.Flash(sig, images, fn)
		})
	default:
		return fmt.Errorf("%w: flash -tool %q", errUsage, *tool)
	}
}

// parseImages splits part=file arguments.
func parseImages(args []string) ([][2]string, error) {
	if len(args) == 0 {
		return nil, fmt.Errorf("%w: flash <part=file>...", errUsage)
	}
	out := make([][2]string, 0, len(args))
	for _, arg := range args {
		part, file, ok := strings.Cut(arg, "=")
		part, file = strings.TrimSpace(part), strings.TrimSpace(file)
		if !ok || part == "" || file == "" {
			return nil, fmt.Errorf("%w: image %q is not part=file", errUsage, arg)
		}
		out = append(out, [2]string{part, file})
	}
	return out, nil
}

func (a *app) pit(sig *abort.Signal, args []string) error {
	if len(args) > 1 {
		return fmt.Errorf("%w: pit [file]", errUsage)
	}
	c, err := a.heimdall()
	if err != nil {
		return err
	}
	file := ""
	if len(args) == 1 {
		file = args[0]
	}
	entries, err := c.PrintPit(sig, file)
	if err != nil {
		return err
	}
	for _, e := range entries {
		fmt.Fprintf(a.stdout, "%d\t%s\t%s\t%d\n", e.Identifier, e.PartitionName, e.FlashFilename, e.BlockCount)
	}
	return nil
}

// withBar renders progress as a percentage line on stderr.
func (a *app) withBar(op func(progress.Func) error) error {
	err := op(func(v float64) {
		fmt.Fprintf(a.stderr, "\r%3.0f%%", v*100)
	})
	fmt.Fprintln(a.stderr)
	return err
}
