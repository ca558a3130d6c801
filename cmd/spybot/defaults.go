package main

import (
	"time"

	"github.com/sheraliortiqboyev4-del/spy-bot/internal/botapi"
	"github.com/sheraliortiqboyev4-del/spy-bot/monitor"
	"github.com/sheraliortiqboyev4-del/spy-bot/recovery"
	"github.com/sheraliortiqboyev4-del/spy-bot/shadow"
	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Global
	viper.SetDefault("file_state_dir", "~/.spybot")
	viper.SetDefault("media.dir_name", "media")

	// Telegram
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.base_url", botapi.DefaultBaseURL)
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)
	viper.SetDefault("telegram.admin_id", int64(0))

	// Shadow cache and recovery
	viper.SetDefault("cache.max_per_conversation", shadow.DefaultMaxPerConversation)
	viper.SetDefault("recovery.max_bytes", recovery.DefaultMaxBytes)
	viper.SetDefault("recovery.coalesce", false)
	viper.SetDefault("monitor.max_concurrency", monitor.DefaultMaxConcurrency)

	// Notifications
	viper.SetDefault("notify.signature", "")
	viper.SetDefault("notify.on_capture", false)

	// Durable store
	viper.SetDefault("store.driver", "file")
	viper.SetDefault("db.dsn", "")

	// Session gateway
	viper.SetDefault("gateway.enabled", false)
	viper.SetDefault("gateway.url", "http://127.0.0.1:8790")
	viper.SetDefault("gateway.token", "")

	// Health server
	viper.SetDefault("server.enabled", false)
	viper.SetDefault("server.bind", "127.0.0.1")
	viper.SetDefault("server.port", 8787)

	// Logging
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
	viper.SetDefault("logging.file", "")
	viper.SetDefault("logging.file_max_bytes", int64(10*1024*1024))
	viper.SetDefault("trace", false)
}
