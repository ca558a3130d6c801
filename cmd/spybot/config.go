package main

import (
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/app"
	"github.com/sheraliortiqboyev4-del/spy-bot/internal/statepaths"
	"github.com/spf13/viper"
)

func appConfigFromViper() app.Config {
	return app.Config{
		BotToken:    viper.GetString("telegram.bot_token"),
		BotBaseURL:  viper.GetString("telegram.base_url"),
		PollTimeout: viper.GetDuration("telegram.poll_timeout"),
		AdminID:     viper.GetInt64("telegram.admin_id"),

		MaxPerConversation: viper.GetInt("cache.max_per_conversation"),
		StateDir:           statepaths.FileStateDir(),
		MediaDir:           statepaths.MediaDir(),
		RecoveryMaxBytes:   viper.GetInt64("recovery.max_bytes"),
		Coalesce:           viper.GetBool("recovery.coalesce"),
		Signature:          viper.GetString("notify.signature"),
		CaptureNotice:      viper.GetBool("notify.on_capture"),
		MaxConcurrency:     viper.GetInt("monitor.max_concurrency"),

		StoreDriver: viper.GetString("store.driver"),
		SQLiteDSN:   statepaths.SQLiteDSN(),

		GatewayEnabled: viper.GetBool("gateway.enabled"),
		GatewayURL:     viper.GetString("gateway.url"),
		GatewayToken:   viper.GetString("gateway.token"),

		ServerEnabled: viper.GetBool("server.enabled"),
		ServerBind:    viper.GetString("server.bind"),
		ServerPort:    viper.GetInt("server.port"),
	}
}
