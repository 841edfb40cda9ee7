package main

import (
	"context"
	"errors"
	"flag"
	"os"
	"os/signal"
	"strings"
	"syscall"

	log "github.com/sirupsen/logrus"

	"github.com/vladislavdragonenkov/billing/internal/app"
	"github.com/vladislavdragonenkov/billing/internal/version"
)

const envConfigPath = "BILLING_CONFIG"

type envLookup func(key string) (string, bool)

// configPath выбирает файл конфигурации: флаг --config важнее BILLING_CONFIG.
func configPath(args []string, lookup envLookup) (string, error) {
	fs := flag.NewFlagSet("billing-service", flag.ContinueOnError)
	path := fs.String("config", "", "path to config file (yaml, json or toml)")
	if err := fs.Parse(args); err != nil {
		return "", err
	}
	if strings.TrimSpace(*path) != "" {
		return strings.TrimSpace(*path), nil
	}
	if v, ok := lookup(envConfigPath); ok {
		return strings.TrimSpace(v), nil
	}
	return "", nil
}

func main() {
	log.SetFormatter(&log.TextFormatter{FullTimestamp: true})

	path, err := configPath(os.Args[1:], os.LookupEnv)
	if err != nil {
		log.WithError(err).Fatal("некорректные аргументы запуска")
	}
	cfg, err := app.LoadConfig(path)
	if err != nil {
		log.WithError(err).Fatal("не удалось загрузить конфигурацию")
	}
	cfg.ConfigureLogger()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	log.WithFields(log.Fields{
		"http_addr":    cfg.HTTPAddr,
		"grpc_addr":    cfg.GRPCAddr,
		"metrics_addr": cfg.MetricsAddr,
		"storage":      cfg.StorageDriver,
		"kafka":        cfg.KafkaBrokers != "",
		"version":      version.String(),
	}).Info("запускаем billing service")

	if err := app.Run(ctx, cfg); err != nil && !errors.Is(err, context.Canceled) {
		log.WithError(err).Fatal("приложение завершилось с ошибкой")
	}

	log.Info("billing service остановлен")
}
