// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/takama/daemon"

	"github.com/relabs-tech/leveler/internal/app"
	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/logger"
)

const (
	name        = "leveler"
	description = "MPU6050 servo leveling controller"
)

// Service has embedded daemon
type Service struct {
	daemon.Daemon
}

// Manage by daemon commands or run the controller in the foreground.
func (service *Service) Manage() (string, error) {
	configPath := flag.String("config", "", "KEY=VALUE config file (empty uses the built-in defaults)")
	flag.Parse()

	usage := "Usage: " + name + " [-config file] install | remove | start | stop | status"
	if flag.NArg() > 0 {
		switch flag.Arg(0) {
		case "install":
			var args []string
			if *configPath != "" {
				abs, err := filepath.Abs(*configPath)
				if err != nil {
					return "", err
				}
				args = append(args, "-config", abs)
			}
			return service.Install(args...)
		case "remove":
			return service.Remove()
		case "start":
			return service.Start()
		case "stop":
			return service.Stop()
		case "status":
			return service.Status()
		default:
			return usage, nil
		}
	}

	if err := config.InitGlobal(*configPath); err != nil {
		return "", fmt.Errorf("failed to load config: %w", err)
	}

	zl, err := logger.New(config.Get().LogLevel)
	if err != nil {
		return "", err
	}
	defer zl.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunLeveler(ctx, zl); err != nil {
		return "", err
	}
	return "leveler stopped", nil
}

func main() {
	srv, err := daemon.New(name, description, daemon.SystemDaemon)
	if err != nil {
		log.Fatalf("daemon: %v", err)
	}
	service := &Service{srv}
	status, err := service.Manage()
	if err != nil {
		log.Printf("%s\nError: %v", status, err)
		os.Exit(1)
	}
	fmt.Println(status)
}
