package main

import (
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"zap-backend/internal/app"
	"zap-backend/internal/config"
	"zap-backend/internal/db"
	"zap-backend/internal/router"

	"github.com/sirupsen/logrus"
)

func main() {
	var configPath string
	flag.StringVar(&configPath, "config", "", "Path to config file (optional, defaults to config.local.yaml / config.yaml)")
	flag.Parse()

	logrus.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})

	if err := config.LoadConfig(configPath); err != nil {
		logrus.WithError(err).Fatal("Failed to load config")
	}

	if err := db.InitDB(); err != nil {
		logrus.WithError(err).Fatal("Failed to initialize database")
	}

	container, err := app.InitializeContainer()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to initialize services")
	}
	defer container.Shutdown()

	r := router.SetupRouter(container)

	addr := fmt.Sprintf("%s:%d", config.AppConfig.Server.Host, config.AppConfig.Server.Port)
	logrus.WithField("addr", addr).Info("Starting zap-backend server")

	go func() {
		if err := r.Run(addr); err != nil {
			logrus.WithError(err).Fatal("Server stopped")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down")
}
