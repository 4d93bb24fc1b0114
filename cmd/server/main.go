package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"

	"github.com/VaagenIM-CardSharp/intern-chat/internal/server"
	"github.com/VaagenIM-CardSharp/intern-chat/internal/store"
)

// Exit codes to provide meaningful status to the operating system or
// service manager.
const (
	exitOK      = 0
	exitRuntime = 1
	exitConfig  = 2
)

func main() {
	// main is a thin wrapper: run() owns the lifecycle so deferred cleanup
	// executes before the process exits.
	code, err := run()
	if err != nil {
		fmt.Fprintf(os.Stderr, "intern-chat terminated with error: %v\n", err)
	}
	os.Exit(code)
}

func run() (int, error) {
	cfg, err := server.LoadConfig()
	if err != nil {
		return exitConfig, fmt.Errorf("config error: %w", err)
	}

	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()

	st, err := store.Open(cfg.DBPath)
	if err != nil {
		return exitRuntime, fmt.Errorf("open message store: %w", err)
	}
	defer func() {
		if err := st.Close(); err != nil {
			logger.Warn().Err(err).Msg("error while closing message store")
		}
	}()

	srv := server.New(cfg, st, logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := srv.Run(ctx); err != nil {
		return exitRuntime, err
	}
	return exitOK, nil
}
