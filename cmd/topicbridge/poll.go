package main

import (
	"context"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newPollCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "poll",
		Short: "Receive Telegram updates via getUpdates long polling",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := buildApp(cmd)
			if err != nil {
				return err
			}

			pollTimeout := flagOrViperDuration(cmd, "telegram-poll-timeout", "telegram.poll_timeout")
			if pollTimeout <= 0 {
				pollTimeout = 30 * time.Second
			}

			ctx := cmd.Context()
			if ctx == nil {
				ctx = context.Background()
			}

			me, err := a.client.GetMe(ctx)
			if err != nil {
				return err
			}
			a.logger.Info("poll_start", "bot_username", me.Username, "bot_id", me.ID, "poll_timeout", pollTimeout.String())

			sweepCtx, stopSweep := context.WithCancel(ctx)
			defer stopSweep()
			startSweep(sweepCtx, a)

			var offset int64
			for {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				updates, next, err := a.client.GetUpdates(ctx, offset, pollTimeout)
				if err != nil {
					a.logger.Warn("poll_get_updates_error", "error", err.Error())
					time.Sleep(1 * time.Second)
					continue
				}
				offset = next
				for _, u := range updates {
					a.orch.HandleUpdate(ctx, u)
				}
			}
		},
	}

	addCommonFlags(cmd)
	cmd.Flags().Duration("telegram-poll-timeout", 30*time.Second, "Long polling timeout for getUpdates.")

	return cmd
}

func addCommonFlags(cmd *cobra.Command) {
	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().String("telegram-base-url", "https://api.telegram.org", "Telegram API base URL.")
	cmd.Flags().Int64("telegram-group-id", 0, "Staff supergroup id (forum topics enabled).")
	cmd.Flags().String("store-dsn", "", "SQLite path for the shared store (default: ~/.topicbridge/topicbridge.sqlite).")
}

func startSweep(ctx context.Context, a *app) {
	interval := viper.GetDuration("store.sweep_interval")
	if interval <= 0 {
		return
	}
	a.queue.Every(ctx, interval, "kv_sweep", func() {
		n, err := a.store.SweepExpired(context.Background())
		if err != nil {
			a.logger.Warn("kv_sweep_failed", "error", err.Error())
			return
		}
		if n > 0 {
			a.logger.Debug("kv_sweep_removed", "entries", n)
		}
	})
}
