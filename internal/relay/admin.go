package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/topicbridge/internal/kvstore"
	"github.com/quailyquaily/topicbridge/internal/telegram"
)

// Admin interprets staff directives issued inside a user's topic and relays
// everything else back to the user.
type Admin struct {
	store  kvstore.Store
	send   Sender
	router *Router
	cfg    Config
	logger *slog.Logger
}

func NewAdmin(store kvstore.Store, send Sender, router *Router, cfg Config, logger *slog.Logger) *Admin {
	if logger == nil {
		logger = slog.Default()
	}
	return &Admin{
		store:  store,
		send:   send,
		router: router,
		cfg:    cfg.withDefaults(),
		logger: logger,
	}
}

// HandleTopicMessage processes one staff message inside a topic. Messages in
// topics with no known user are dropped; unrecognized slash commands are
// ignored without a reply.
func (a *Admin) HandleTopicMessage(ctx context.Context, msg *telegram.Message) error {
	threadID := msg.MessageThreadID
	userID, ok, err := a.router.UserIDByThread(ctx, threadID)
	if err != nil {
		return err
	}
	if !ok {
		a.logger.Debug("admin_unknown_thread", "thread_id", threadID)
		return nil
	}

	text := strings.TrimSpace(msg.Text)
	if strings.HasPrefix(text, "/") {
		return a.runCommand(ctx, text, userID, threadID)
	}
	return a.router.DeliverToUser(ctx, userID, msg)
}

func (a *Admin) runCommand(ctx context.Context, command string, userID, threadID int64) error {
	switch command {
	case "/close":
		if _, ok, err := a.router.setClosed(ctx, userID, true); err != nil || !ok {
			return err
		}
		if err := a.send.CloseForumTopic(ctx, a.cfg.GroupID, threadID); err != nil {
			a.logger.Warn("admin_close_topic_failed", "thread_id", threadID, "error", err.Error())
		}
		return a.confirm(ctx, threadID, "🚫 **对话已强制关闭**")
	case "/open":
		if _, ok, err := a.router.setClosed(ctx, userID, false); err != nil || !ok {
			return err
		}
		if err := a.send.ReopenForumTopic(ctx, a.cfg.GroupID, threadID); err != nil {
			a.logger.Warn("admin_reopen_topic_failed", "thread_id", threadID, "error", err.Error())
		}
		return a.confirm(ctx, threadID, "✅ **对话已恢复**")
	case "/ban":
		if err := a.store.Put(ctx, banKey(userID), "1", 0); err != nil {
			return err
		}
		a.logger.Info("admin_user_banned", "user_id", userID)
		return a.confirm(ctx, threadID, "🚫 **用户已封禁**")
	case "/unban":
		if err := a.store.Delete(ctx, banKey(userID)); err != nil {
			return err
		}
		a.logger.Info("admin_user_unbanned", "user_id", userID)
		return a.confirm(ctx, threadID, "✅ **用户已解封**")
	case "/info":
		info := fmt.Sprintf("👤 **用户:** `%d`\n🔗 [点击私聊](tg://user?id=%d)", userID, userID)
		return a.confirm(ctx, threadID, info)
	case "/reset":
		if err := a.store.Delete(ctx, verifiedKey(userID)); err != nil {
			return err
		}
		a.logger.Info("admin_verification_reset", "user_id", userID)
		return a.confirm(ctx, threadID, "🔄 **验证已重置**")
	default:
		// Unknown directives are ignored: no relay, no error.
		return nil
	}
}

func (a *Admin) confirm(ctx context.Context, threadID int64, text string) error {
	_, err := a.send.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:          a.cfg.GroupID,
		MessageThreadID: threadID,
		Text:            text,
		ParseMode:       "Markdown",
	})
	return err
}
