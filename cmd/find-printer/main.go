package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/env"
	"github.com/nantokaworks/printer-fleet/internal/printer"
	"github.com/nantokaworks/printer-fleet/internal/protocol"
	"github.com/spf13/pflag"
)

func main() {
	var outputFile string
	var port int
	var timeout time.Duration

	flagSet := pflag.NewFlagSet("find-printer", pflag.ExitOnError)
	flagSet.StringVarP(&outputFile, "output", "o", "", "Output file path to save the report")
	flagSet.IntVar(&port, "port", env.Value.PrinterPort, "printer UDP port")
	flagSet.DurationVar(&timeout, "timeout", env.Value.GcodeTimeout, "time to wait for each reply")
	flagSet.Parse(os.Args[1:])

	ips := flagSet.Args()
	if len(ips) == 0 {
		fmt.Fprintln(os.Stderr, "usage: find-printer [flags] <ip> [<ip>...]")
		os.Exit(2)
	}

	client := printer.NewClient(port, timeout)
	ctx := context.Background()

	var b strings.Builder
	fmt.Fprintf(&b, "Printer Probe - %s\n", time.Now().Format("2006-01-02 15:04:05"))
	fmt.Fprintf(&b, "==========================================\n\n")

	found := 0
	for _, ip := range ips {
		fmt.Printf("Probing %s...\n", ip)
		fmt.Fprintf(&b, "%s\n", ip)
		if !protocol.ValidIPv4(ip) {
			fmt.Fprintf(&b, "  not a dotted-quad IPv4 address\n\n")
			continue
		}

		state, err := client.Status(ctx, ip)
		progress := printer.ProgressFrom(state, err)
		if err != nil {
			fmt.Fprintf(&b, "  status: %s (%v)\n\n", progress, err)
			continue
		}
		found++
		fmt.Fprintf(&b, "  status:   %s\n", progress)
		fmt.Fprintf(&b, "  bed:      %d/%d\n", state.B.Current, state.B.Target)
		fmt.Fprintf(&b, "  nozzle:   %d/%d\n", state.E1.Current, state.E1.Target)
		fmt.Fprintf(&b, "  position: X%.2f Y%.2f Z%.2f\n", state.X, state.Y, state.Z)
		if state.D.Paused {
			fmt.Fprintf(&b, "  paused\n")
		}

		files, err := client.ListFiles(ctx, ip)
		if err != nil {
			fmt.Fprintf(&b, "  files: error (%v)\n\n", err)
			continue
		}
		fmt.Fprintf(&b, "  files (%d):\n", len(files))
		for i, f := range files {
			fmt.Fprintf(&b, "  %3d. %s\n", i+1, f)
		}
		fmt.Fprintf(&b, "\n")
	}

	fmt.Fprintf(&b, "==========================================\n")
	fmt.Fprintf(&b, "Responding printers: %d of %d\n", found, len(ips))

	report := b.String()
	fmt.Print("\n" + report)

	if outputFile != "" {
		if err := os.WriteFile(outputFile, []byte(report), 0644); err != nil {
			fmt.Fprintf(os.Stderr, "Failed to write %s: %v\n", outputFile, err)
			os.Exit(1)
		}
		fmt.Printf("\nReport saved to: %s\n", outputFile)
	}
}
