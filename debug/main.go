package main

import (
	"os"
	"strconv"

	"github.com/emrgen/linksync/internal/config"
	"github.com/emrgen/linksync/internal/server"
	"github.com/sirupsen/logrus"
)

func main() {
	cfg, err := config.Load(nil)
	if err != nil {
		logrus.Fatal(err)
	}

	if httpPort := os.Getenv("HTTP_PORT"); httpPort != "" {
		port, err := strconv.Atoi(httpPort)
		if err != nil {
			logrus.Fatalf("invalid HTTP_PORT: %v", err)
		}
		cfg.Server.HTTPPort = port
	}

	if err := server.Start(cfg); err != nil {
		logrus.Fatal(err)
	}
}
