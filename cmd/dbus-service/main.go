package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"github.com/saiset-co/dbus-service/config"
	"github.com/saiset-co/dbus-service/service"
)

func main() {
	configPath := flag.String("config", "", "path to the YAML config file (defaults and environment apply when empty)")
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
		os.Exit(1)
	}

	svc, err := service.NewService(context.Background(), cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create service: %v\n", err)
		os.Exit(1)
	}

	if err := svc.Start(); err != nil {
		fmt.Fprintf(os.Stderr, "service failed: %v\n", err)
		os.Exit(1)
	}
}
