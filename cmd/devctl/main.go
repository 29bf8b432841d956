package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/danmuck/devctl/internal/abort"
	"github.com/danmuck/devctl/internal/config"
	"github.com/danmuck/devctl/internal/logging"
	"github.com/danmuck/devctl/internal/observability"
	"github.com/joho/godotenv"
	"github.com/rs/zerolog/log"
)

const usage = `usage: devctl [flags] <command> [args]

commands:
  devices                         list adb, fastboot and download-mode devices
  wait <adb|fastboot|heimdall>    block until the tool can reach a device
  reboot [state]                  adb reboot (bootloader, recovery, fastboot, ...)
  push <dest> <file>...           adb push with progress
  flash [-tool t] <part=file>...  flash images with fastboot (default) or heimdall
  getvar <name>                   read a fastboot variable
  pit [file]                      print the heimdall partition table

flags:
`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

func run(args []string, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("devctl", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "path to devctl.toml (defaults when empty)")
	timeout := fs.Duration("timeout", 0, "operation deadline, overrides the config value")
	serial := fs.String("serial", "", "target device serial (adb and fastboot)")
	envFile := fs.String("env-file", "", "dotenv file loaded before logging starts (default .env when present)")
	fs.Usage = func() {
		fmt.Fprint(stderr, usage)
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		return 2
	}
	if fs.NArg() == 0 {
		fs.Usage()
		return 2
	}

	if *envFile != "" {
		if err := godotenv.Load(*envFile); err != nil {
			fmt.Fprintf(stderr, "devctl: env file: %v\n", err)
			return 1
		}
	} else {
		_ = godotenv.Load()
	}

	logger := observability.InitLogger("devctl")
	observability.RegisterMetrics()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			log.Error().Err(err).Str("path", *configPath).Msg("failed to load config")
			return 1
		}
		cfg = loaded
		log.Debug().Str("path", *configPath).Msg("loaded config")
	}
	logging.SetLevel(cfg.LogLevel)
	if *timeout > 0 {
		cfg.Timeout = *timeout
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	root := abort.FromContext(ctx)
	if cfg.Timeout > 0 {
		root = root.WithTimeout(cfg.Timeout)
	}

	a := &app{
		cfg:      cfg,
		root:     root,
		observer: observability.Default(logger),
		serial:   *serial,
		stdout:   stdout,
		stderr:   stderr,
	}
	err := a.dispatch(root, fs.Arg(0), fs.Args()[1:])
	root.Abort(nil)

	if cfg.MetricsFile != "" {
		if werr := observability.WriteTextfile(cfg.MetricsFile); werr != nil {
			log.Warn().Err(werr).Str("path", cfg.MetricsFile).Msg("failed to write metrics")
		}
	}

	if err != nil {
		if errors.Is(err, errUsage) {
			fmt.Fprintf(stderr, "devctl: %v\n", err)
			fs.Usage()
			return 2
		}
		fmt.Fprintf(stderr, "devctl: %v\n", err)
		return 1
	}
	return 0
}
