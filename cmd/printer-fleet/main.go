package main

import (
	"fmt"
	"os"

	"github.com/nantokaworks/printer-fleet/internal/channel"
	"github.com/nantokaworks/printer-fleet/internal/dashboard"
	"github.com/nantokaworks/printer-fleet/internal/env"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"github.com/nantokaworks/printer-fleet/internal/shared/paths"
	"github.com/nantokaworks/printer-fleet/internal/version"
	"github.com/spf13/pflag"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func run() error {
	var origin string
	var logOutput string
	var showVersion bool

	flagSet := pflag.NewFlagSet("printer-fleet", pflag.ContinueOnError)
	flagSet.StringVar(&origin, "origin", env.Value.Origin, "backend origin; the channel is <origin>/ws")
	flagSet.StringVar(&logOutput, "log-output", env.Value.DashboardLog, "file to write logs to while the dashboard owns the terminal")
	flagSet.BoolVar(&showVersion, "version", false, "print the version and exit")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if showVersion {
		fmt.Println(version.Banner("printer-fleet"))
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	if err := paths.EnsureDataDirs(); err != nil {
		return err
	}
	if err := logger.Configure(logOutput); err != nil {
		return fmt.Errorf("opening log output %s: %w", logOutput, err)
	}
	defer logger.Sync()

	manager, err := channel.ConnectOrigin(origin, channel.WithBackoff(channel.Backoff{
		Min:    env.Value.ReconnectMin,
		Max:    env.Value.ReconnectMax,
		Factor: 2,
	}))
	if err != nil {
		return err
	}
	defer manager.Close()

	return dashboard.Run(manager, dashboard.WithLogBuffer(logger.GetLogBuffer()))
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `printer-fleet: terminal dashboard for the printer fleet backend.

Connects to <origin>/ws and shows one panel per printer. Commands typed
here go out over the same connection.

Usage:
  printer-fleet [flags]

Flags:
`)
	flagSet.PrintDefaults()
}
