package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/canteen/internal/app"
	"github.com/vladislavdragonenkov/canteen/internal/version"
)

const (
	envLogLevel  = "CANTEEN_LOG_LEVEL"
	envLogFormat = "CANTEEN_LOG_FORMAT"
)

// setupLogger настраивает формат и уровень логирования для сервиса.
func setupLogger(lookup envLookup) []string {
	var warnings []string

	formatter := log.Formatter(&log.TextFormatter{FullTimestamp: true})
	if raw, ok := lookup(envLogFormat); ok {
		switch strings.ToLower(strings.TrimSpace(raw)) {
		case "json":
			formatter = &log.JSONFormatter{}
		case "", "text":
		default:
			warnings = append(warnings, envLogFormat+": expected text or json, using text")
		}
	}
	log.SetFormatter(formatter)

	level := log.InfoLevel
	if raw, ok := lookup(envLogLevel); ok && strings.TrimSpace(raw) != "" {
		parsed, err := log.ParseLevel(strings.TrimSpace(raw))
		if err != nil {
			warnings = append(warnings, envLogLevel+": "+err.Error())
		} else {
			level = parsed
		}
	}
	log.SetLevel(level)
	return warnings
}

func main() {
	warnings := setupLogger(os.LookupEnv)
	cfg, cfgWarnings := readConfigFromEnv(os.LookupEnv)
	for _, w := range append(warnings, cfgWarnings...) {
		log.Warn(w)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"grpc_addr":      cfg.GRPCAddr,
		"http_addr":      cfg.HTTPAddr,
		"storage_driver": cfg.StorageDriver,
		"catalog_driver": cfg.CatalogDriver,
		"version":        version.String(),
	}).Info("запускаем canteen-service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("canteen-service остановлен")
}
