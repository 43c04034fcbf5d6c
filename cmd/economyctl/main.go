package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/quizarena/economy-api/internal/cli"
	"github.com/quizarena/economy-api/internal/pkg/logger"
)

func main() {
	level := os.Getenv("LOG_LEVEL")
	if level == "" {
		level = "warn"
	}
	if err := logger.Init(logger.Config{
		Level:       level,
		Environment: os.Getenv("ENV"),
		Service:     "economyctl",
		Output:      os.Stderr,
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to initialise logger")
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	err := cli.NewRootCommand().ExecuteContext(ctx)
	stop()
	if err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
	}
	os.Exit(cli.ExitCode(err))
}
