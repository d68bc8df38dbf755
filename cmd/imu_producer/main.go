// Copyright (c) 2026 Daniel Alarcon Rubio / Relabs Tech
// SPDX-License-Identifier: MIT
// See LICENSE file for full license text

package main

import (
	"context"
	"errors"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/relabs-tech/rpy_stream/internal/app"
	"github.com/relabs-tech/rpy_stream/internal/config"
	"github.com/relabs-tech/rpy_stream/internal/transport"
)

func main() {
	configPath := flag.String("config", "./rpy_config.txt", "path to configuration file")
	flag.Parse()

	log.Println("starting rpy-stream IMU producer (IMU → websocket stream)")

	loaded, err := config.InitGlobalOptional(*configPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}
	if !loaded {
		log.Printf("config %s not found, using defaults", *configPath)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := app.RunProducer(ctx, config.Get()); err != nil {
		var be *transport.BindError
		if errors.As(err, &be) {
			log.Fatalf("could not bind streaming endpoint %s: %v", be.Addr, be.Err)
		}
		log.Fatalf("fatal: %v", err)
	}
}
