package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"syscall"

	"github.com/brandalign/engine/internal/server"
)

const version = "0.1.0-dev"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "version":
			fmt.Printf("brandalign-engine %s\n", version)
			os.Exit(0)
		case "serve":
			os.Exit(serve())
		}
	}
	fmt.Fprintln(os.Stderr, "Usage: brandalign-engine <command>")
	fmt.Fprintln(os.Stderr, "Commands: serve, version")
	os.Exit(1)
}

// serve runs the NDJSON JSON-RPC engine over stdin/stdout. Logs go to stderr
// so they never interleave with protocol output.
func serve() int {
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
		Level: logLevel(),
	}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	s := server.NewWithConcurrency(os.Stdin, os.Stdout, logger, envInt("BRANDALIGN_MAX_CONCURRENT", 1))
	if err := server.RegisterBuiltinHandlers(s); err != nil {
		logger.Error("engine setup failed", "err", err)
		return 1
	}

	logger.Info("brandalign engine listening on stdin", "version", version)
	if err := s.Run(ctx); err != nil && ctx.Err() == nil {
		logger.Error("server terminated", "err", err)
		return 1
	}
	return 0
}

func logLevel() slog.Level {
	switch os.Getenv("BRANDALIGN_LOG_LEVEL") {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

func envInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
