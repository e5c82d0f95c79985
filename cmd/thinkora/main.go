package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/pflag"

	"thinkora-client/internal/app"
	"thinkora-client/internal/config"
	"thinkora-client/internal/logger"
)

func main() {
	if err := run(); err != nil {
		slog.Error("application run failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	var (
		envFile    string
		port       string
		apiBaseURL string
		storeKind  string
		logLevel   string
		noColor    bool
	)

	flagSet := pflag.NewFlagSet("thinkora", pflag.ContinueOnError)
	flagSet.StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
	flagSet.StringVar(&port, "port", "", "listen port (overrides SERVER_PORT)")
	flagSet.StringVar(&apiBaseURL, "api-base-url", "", "Thinkora API base URL (overrides API_BASE_URL)")
	flagSet.StringVar(&storeKind, "store", "", "credential store: file, postgres, redis or memory (overrides STORE_BACKEND)")
	flagSet.StringVar(&logLevel, "log-level", "", "debug, info, warn or error (overrides LOG_LEVEL)")
	flagSet.BoolVar(&noColor, "no-color", false, "disable colored log output")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if err == pflag.ErrHelp {
			return nil
		}
		return err
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}

	cfg, err := config.Load(envFile)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	if flagSet.Changed("port") {
		cfg.ServerPort = port
	}
	if flagSet.Changed("api-base-url") {
		cfg.APIBaseURL = strings.TrimRight(apiBaseURL, "/")
	}
	if flagSet.Changed("store") {
		cfg.StoreBackend = strings.ToLower(storeKind)
	}
	if flagSet.Changed("log-level") {
		cfg.LogLevel = strings.ToLower(logLevel)
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	level, _ := config.ParseLevel(cfg.LogLevel)
	handler := logger.NewPrettyHandler(os.Stdout, &slog.HandlerOptions{Level: level})
	if noColor {
		handler = handler.WithoutColors()
	}
	log := slog.New(handler)
	slog.SetDefault(log)

	ctx := context.Background()
	application, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("failed to initialize application: %w", err)
	}

	return application.Run(ctx)
}
