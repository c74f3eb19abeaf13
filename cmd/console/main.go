// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/relabs-tech/leveler/internal/app"
	"github.com/relabs-tech/leveler/internal/config"
	"github.com/relabs-tech/leveler/internal/logger"
)

func main() {
	configPath := flag.String("config", "", "KEY=VALUE config file (empty uses the built-in defaults)")
	flag.Parse()

	if err := config.InitGlobal(*configPath); err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	zl, err := logger.New(config.Get().LogLevel)
	if err != nil {
		log.Fatalf("logger: %v", err)
	}
	defer zl.Sync()
	zl.Info("starting leveler (mock console)")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := app.RunMockConsole(ctx, os.Stdout, zl); err != nil {
		zl.Fatal("mock console failed", zap.Error(err))
	}
}
