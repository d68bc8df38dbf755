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

	"github.com/relabs-tech/rpy_stream/internal/app"
	"github.com/relabs-tech/rpy_stream/internal/config"
)

func main() {
	configPath := flag.String("config", "./rpy_config.txt", "path to configuration file")
	estimator := flag.String("estimator", "", "tilt, gyro or madgwick (default: ESTIMATOR from config)")
	flag.Parse()

	log.Println("starting rpy-stream orientation consumer (websocket stream → estimator)")

	loaded, err := config.InitGlobalOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !loaded {
		log.Printf("config %s not found, using defaults", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunConsumer(ctx, config.Get(), *estimator); err != nil {
		log.Fatalf("fatal: %v", err)
	}
}
