/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/driveclone/apiserver/config"
	"github.com/driveclone/apiserver/internal/logging"
	"github.com/driveclone/apiserver/internal/mq"
	"github.com/driveclone/apiserver/types"
)

var eventsCmd = &cobra.Command{
	Use:   "events",
	Short: "Inspect upload events on the message queue",
}

var eventsTailCmd = &cobra.Command{
	Use:   "tail",
	Short: "Log every upload event published to the upload channel",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.LoadConfig()
		logger := logging.New(cfg)

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		queue, err := mq.Open(ctx, cfg.MQ)
		if err != nil {
			return err
		}
		defer queue.Close()

		logger.Info().Str("channel", cfg.MQ.UploadChannel).Str("driver", cfg.MQ.Driver).Msg("tailing upload events")
		err = queue.Subscribe(ctx, cfg.MQ.UploadChannel, func(_ context.Context, msg mq.Message) error {
			var event types.UploadEvent
			if err := json.Unmarshal(msg.Data, &event); err != nil {
				// Ack undecodable messages; redelivery cannot fix them.
				logger.Warn().Err(err).Str("message_id", msg.ID).Msg("skipping malformed event")
				return nil
			}
			logger.Info().
				Str("message_id", msg.ID).
				Str("type", event.Type).
				Str("file_path", event.Path).
				Int64("size", event.Size).
				Str("owner_id", event.OwnerID).
				Time("uploaded_at", event.UploadedAt).
				Msg("upload event")
			return nil
		})
		if errors.Is(err, context.Canceled) {
			return nil
		}
		return err
	},
}

func init() {
	rootCmd.AddCommand(eventsCmd)
	eventsCmd.AddCommand(eventsTailCmd)
}
