// Package config содержит логику чтения конфигурации сервиса учёта бронирований.
package config

import (
	"flag"
	"fmt"

	"github.com/caarlos0/env/v11"
)

const (
	defaultRunAddress        = "localhost:8080"
	defaultInvoiceGraceDays  = 15
	defaultInvoiceSchedule   = "0 2 1 * *"
	defaultAnalyticsSchedule = "@hourly"
	defaultLogLevel          = "info"
)

// Config содержит параметры конфигурации сервиса.
type Config struct {
	RunAddress        string `env:"RUN_ADDRESS"`
	DatabaseURI       string `env:"DATABASE_URI"`
	RateSourceAddress string `env:"RATE_SOURCE_ADDRESS"`
	InvoiceGraceDays  int
	InvoiceSchedule   string `env:"INVOICE_SCHEDULE"`
	AnalyticsSchedule string `env:"ANALYTICS_SCHEDULE"`
	LogLevel          string `env:"LOG_LEVEL"`
}

// graceEnv отделяет явно заданный INVOICE_GRACE_DAYS=0 от отсутствующей переменной.
type graceEnv struct {
	Days *int `env:"INVOICE_GRACE_DAYS"`
}

// Parse считывает конфигурацию из флагов командной строки и переменных окружения.
// Переменные окружения имеют приоритет над флагами.
func Parse() (*Config, error) {
	envCfg := Config{}
	if err := env.Parse(&envCfg); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}
	var envGrace graceEnv
	if err := env.Parse(&envGrace); err != nil {
		return nil, fmt.Errorf("parse env: %w", err)
	}

	cfg := &Config{}

	flag.StringVar(&cfg.RunAddress, "a", defaultRunAddress, "address and port for HTTP server")
	flag.StringVar(&cfg.DatabaseURI, "d", "", "database URI, in-memory storage when empty")
	flag.StringVar(&cfg.RateSourceAddress, "r", "", "commission rate source address")
	flag.IntVar(&cfg.InvoiceGraceDays, "g", defaultInvoiceGraceDays, "days between invoice issue and due date")
	flag.StringVar(&cfg.InvoiceSchedule, "s", defaultInvoiceSchedule, "cron schedule of monthly invoice generation")
	flag.StringVar(&cfg.AnalyticsSchedule, "n", defaultAnalyticsSchedule, "cron schedule of analytics refresh")
	flag.StringVar(&cfg.LogLevel, "l", defaultLogLevel, "log level")

	flag.Parse()

	if envCfg.RunAddress != "" {
		cfg.RunAddress = envCfg.RunAddress
	}
	if envCfg.DatabaseURI != "" {
		cfg.DatabaseURI = envCfg.DatabaseURI
	}
	if envCfg.RateSourceAddress != "" {
		cfg.RateSourceAddress = envCfg.RateSourceAddress
	}
	if envGrace.Days != nil {
		cfg.InvoiceGraceDays = *envGrace.Days
	}
	if envCfg.InvoiceSchedule != "" {
		cfg.InvoiceSchedule = envCfg.InvoiceSchedule
	}
	if envCfg.AnalyticsSchedule != "" {
		cfg.AnalyticsSchedule = envCfg.AnalyticsSchedule
	}
	if envCfg.LogLevel != "" {
		cfg.LogLevel = envCfg.LogLevel
	}

	if cfg.RunAddress == "" {
		cfg.RunAddress = defaultRunAddress
	}
	if cfg.InvoiceGraceDays < 0 {
		return nil, fmt.Errorf("invoice grace days must not be negative, got %d", cfg.InvoiceGraceDays)
	}

	return cfg, nil
}
