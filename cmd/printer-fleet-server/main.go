package main

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nantokaworks/printer-fleet/internal/broadcast"
	"github.com/nantokaworks/printer-fleet/internal/env"
	"github.com/nantokaworks/printer-fleet/internal/monitor"
	"github.com/nantokaworks/printer-fleet/internal/printer"
	"github.com/nantokaworks/printer-fleet/internal/registry"
	"github.com/nantokaworks/printer-fleet/internal/shared/logger"
	"github.com/nantokaworks/printer-fleet/internal/shared/paths"
	"github.com/nantokaworks/printer-fleet/internal/version"
	"github.com/nantokaworks/printer-fleet/internal/webserver"
	"go.uber.org/zap"
)

func main() {
	fmt.Println("🖨️  " + version.Banner("printer-fleet-server"))
	fmt.Println()

	if err := paths.EnsureDataDirs(); err != nil {
		log.Fatal(err)
	}

	reg, err := registry.Open(env.Value.DBPath)
	if err != nil {
		log.Fatal(err)
	}
	defer reg.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if env.Value.SeedFile != "" {
		imported, err := reg.ImportSeed(ctx, env.Value.SeedFile)
		if err != nil {
			logger.Error("Failed to import printer seed file", zap.String("path", env.Value.SeedFile), zap.Error(err))
		} else {
			logger.Info("Imported printer seed file", zap.String("path", env.Value.SeedFile), zap.Int("printers", imported))
		}
	}

	client := printer.NewClient(env.Value.PrinterPort, env.Value.GcodeTimeout)
	mon := monitor.New(reg, client, monitor.WithInterval(env.Value.PollInterval))

	server := webserver.NewServer(mon, env.Value.StaticDir)
	broadcast.SetBroadcaster(server.Hub())
	if err := server.Start(ctx, env.Value.ListenAddr()); err != nil {
		logger.Fatal("Failed to start web server", zap.Error(err))
	}

	fmt.Printf("Dashboard channel: ws://localhost:%d/ws\n", env.Value.ServerPort)
	fmt.Println("Ctrl+C で終了できます")

	go mon.Run(ctx)

	<-ctx.Done()
	fmt.Println("\n終了します...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("Web server shutdown failed", zap.Error(err))
	}
	logger.Sync()
}
