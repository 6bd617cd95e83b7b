package main

import (
	"time"

	"github.com/spf13/viper"
)

func initViperDefaults() {
	// Telegram
	viper.SetDefault("telegram.base_url", "https://api.telegram.org")
	viper.SetDefault("telegram.bot_token", "")
	viper.SetDefault("telegram.group_id", int64(0))
	viper.SetDefault("telegram.poll_timeout", 30*time.Second)

	// Store
	viper.SetDefault("store.dsn", "")
	viper.SetDefault("store.sweep_interval", 5*time.Minute)

	// Relay
	viper.SetDefault("relay.quiet_period", 2*time.Second)
	viper.SetDefault("relay.challenge_ttl", 300*time.Second)
	viper.SetDefault("relay.verified_ttl", 30*24*time.Hour)
	viper.SetDefault("relay.buffer_ttl", 60*time.Second)
	viper.SetDefault("relay.questions_file", "")
	viper.SetDefault("relay.auto_replies_file", "")

	// Translation
	viper.SetDefault("translate.enabled", true)
	viper.SetDefault("translate.base_url", "https://translate.googleapis.com")
	viper.SetDefault("translate.staff_language", "zh-CN")
	viper.SetDefault("translate.user_language", "en")

	// Webhook server
	viper.SetDefault("server.bind", "127.0.0.1")
	viper.SetDefault("server.port", 8788)
	viper.SetDefault("server.webhook_secret", "")

	// Logging
	viper.SetDefault("logging.level", "info")
	viper.SetDefault("logging.format", "text")
	viper.SetDefault("logging.add_source", false)
}
