package main

import (
	"fmt"
	"log/slog"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/quailyquaily/topicbridge/internal/autoreply"
	"github.com/quailyquaily/topicbridge/internal/kvstore"
	"github.com/quailyquaily/topicbridge/internal/relay"
	"github.com/quailyquaily/topicbridge/internal/telegram"
	"github.com/quailyquaily/topicbridge/internal/translate"
	"github.com/quailyquaily/topicbridge/internal/workqueue"
)

// Built-in canned replies, overridable via relay.auto_replies_file.
func defaultAutoReplies() map[string]string {
	return map[string]string{
		"你好": "😎 请稍等，我看到后会马上回复。",
		"在吗": "👋 在的，请稍等，我看到后会马上回复。",
		"多久": "💖 马上，马上，快了，宝贝儿！",
		"教程": "📖 请发送 /start 查看置顶教程。",
	}
}

type app struct {
	logger *slog.Logger
	store  *kvstore.SQLiteStore
	queue  *workqueue.Queue
	client *telegram.Client
	orch   *relay.Orchestrator
}

func buildApp(cmd *cobra.Command) (*app, error) {
	logger, err := loggerFromViper()
	if err != nil {
		return nil, err
	}
	slog.SetDefault(logger)

	token := strings.TrimSpace(flagOrViperString(cmd, "telegram-bot-token", "telegram.bot_token"))
	if token == "" {
		return nil, fmt.Errorf("missing telegram.bot_token (set via --telegram-bot-token or TOPICBRIDGE_TELEGRAM_BOT_TOKEN)")
	}
	groupID := flagOrViperInt64(cmd, "telegram-group-id", "telegram.group_id")
	if groupID == 0 {
		return nil, fmt.Errorf("missing telegram.group_id (set via --telegram-group-id or TOPICBRIDGE_TELEGRAM_GROUP_ID)")
	}
	baseURL := strings.TrimSpace(flagOrViperString(cmd, "telegram-base-url", "telegram.base_url"))

	storeCfg := kvstore.DefaultConfig()
	storeCfg.DSN = strings.TrimSpace(flagOrViperString(cmd, "store-dsn", "store.dsn"))
	store, err := kvstore.OpenSQLite(storeCfg)
	if err != nil {
		return nil, err
	}

	var translator translate.Translator
	if viper.GetBool("translate.enabled") {
		translator = translate.NewGoogleTranslator(nil, viper.GetString("translate.base_url"), logger)
	}

	questions := relay.DefaultQuestions()
	if path := strings.TrimSpace(viper.GetString("relay.questions_file")); path != "" {
		questions, err = relay.LoadQuestionsFile(path)
		if err != nil {
			return nil, err
		}
	}

	replies := autoreply.New(defaultAutoReplies())
	if path := strings.TrimSpace(viper.GetString("relay.auto_replies_file")); path != "" {
		replies, err = autoreply.LoadFile(path)
		if err != nil {
			return nil, err
		}
	}

	queue := workqueue.New(logger)
	client := telegram.NewClient(nil, baseURL, token)

	orch, err := relay.New(relay.Options{
		Config: relay.Config{
			GroupID:          groupID,
			TranslateEnabled: viper.GetBool("translate.enabled"),
			StaffLanguage:    viper.GetString("translate.staff_language"),
			UserLanguage:     viper.GetString("translate.user_language"),
			QuietPeriod:      viper.GetDuration("relay.quiet_period"),
			ChallengeTTL:     viper.GetDuration("relay.challenge_ttl"),
			VerifiedTTL:      viper.GetDuration("relay.verified_ttl"),
			BufferTTL:        viper.GetDuration("relay.buffer_ttl"),
		},
		Store:       store,
		Sender:      client,
		Scheduler:   queue,
		Translator:  translator,
		AutoReplies: replies,
		Questions:   questions,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &app{
		logger: logger,
		store:  store,
		queue:  queue,
		client: client,
		orch:   orch,
	}, nil
}
