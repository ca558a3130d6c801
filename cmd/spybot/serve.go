package main

import (
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/sheraliortiqboyev4-del/spy-bot/internal/app"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/logutil"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the bot: poll business updates, resume sessions and report changes",
		RunE: func(cmd *cobra.Command, args []string) error {
			logger, closer, err := logutil.LoggerFromViper()
			if err != nil {
				return err
			}
			defer closer.Close()
			slog.SetDefault(logger)

			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			a, err := app.New(ctx, appConfigFromViper(), logger)
			if err != nil {
				return err
			}
			if err := a.Run(ctx); err != nil && ctx.Err() == nil {
				logger.Error("spybot_exit", "error", err.Error())
				return err
			}
			logger.Info("spybot_stopped")
			return nil
		},
	}

	cmd.Flags().String("telegram-bot-token", "", "Telegram bot token.")
	cmd.Flags().Int64("telegram-admin-id", 0, "Telegram user id allowed to use /stats.")
	cmd.Flags().Bool("gateway", false, "Enable the session gateway for /login and resumed sessions.")
	cmd.Flags().Bool("server", false, "Serve /healthz and connection lookups over HTTP.")
	cmd.Flags().Int("server-port", 0, "HTTP port for --server.")
	_ = viper.BindPFlag("telegram.bot_token", cmd.Flags().Lookup("telegram-bot-token"))
	_ = viper.BindPFlag("telegram.admin_id", cmd.Flags().Lookup("telegram-admin-id"))
	_ = viper.BindPFlag("gateway.enabled", cmd.Flags().Lookup("gateway"))
	_ = viper.BindPFlag("server.enabled", cmd.Flags().Lookup("server"))
	_ = viper.BindPFlag("server.port", cmd.Flags().Lookup("server-port"))
	return cmd
}
