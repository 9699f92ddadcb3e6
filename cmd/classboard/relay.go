package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"classboard/internal/app"
	"classboard/internal/config"
)

var relayCmd = &cobra.Command{
	Use:   "relay",
	Short: "Run the classroom message relay",
	RunE:  runRelay,
}

func runRelay(cmd *cobra.Command, args []string) error {
	log := newLogger()
	cfg := config.LoadWithPrecedence(configPath)

	application, err := app.NewApplication(cfg, log)
	if err != nil {
		return err
	}

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := application.Start(ctx); err != nil {
		return err
	}

	<-ctx.Done()
	log.Info().Msg("shutdown signal received")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	return application.Stop(shutdownCtx)
}
