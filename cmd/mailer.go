/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/eduaventuras/apiserver/config"
	"github.com/eduaventuras/apiserver/internal/i18n"
	"github.com/eduaventuras/apiserver/internal/logging"
	"github.com/eduaventuras/apiserver/internal/mailer"
	"github.com/eduaventuras/apiserver/internal/mq"
	"github.com/spf13/cobra"
)

// mailerCmd consumes recovery messages and delivers them over SMTP.
var mailerCmd = &cobra.Command{
	Use:   "mailer",
	Short: "Deliver password recovery e-mails",
	Long: `Consumes the password recovery channel and sends each message over SMTP.
Run it alongside the server when MQ_BACKEND is rabbitmq or pubsub. Usage:

	eduaventuras mailer
`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		if cfg.MQ.Backend == "memory" {
			return errors.New("the memory queue is consumed inside the server process")
		}
		logger := logging.New(cfg.Log)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		bundle, err := i18n.Load()
		if err != nil {
			return err
		}
		queue, err := mq.Open(ctx, cfg)
		if err != nil {
			return fmt.Errorf("open message queue: %w", err)
		}
		defer func() {
			_ = queue.Close()
		}()

		sender := mailer.New(cfg.SMTP, bundle, logger.WithField("component", "mailer"))
		logger.WithField("channel", queue.RecoveryChannel()).Info("recovery mailer started")
		if err := queue.SubscribeRecovery(ctx, sender.Handle); err != nil && !errors.Is(err, context.Canceled) {
			return fmt.Errorf("recovery consumer: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(mailerCmd)
}
