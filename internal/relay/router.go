package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/topicbridge/internal/kvstore"
	"github.com/quailyquaily/topicbridge/internal/telegram"
	"github.com/quailyquaily/topicbridge/internal/translate"
)

// Router owns the user→topic mapping and the forward/fallback delivery
// protocol in both directions.
type Router struct {
	store      kvstore.Store
	send       Sender
	agg        *Aggregator
	translator translate.Translator
	cfg        Config
	logger     *slog.Logger
}

func NewRouter(store kvstore.Store, send Sender, agg *Aggregator, translator translate.Translator, cfg Config, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{
		store:      store,
		send:       send,
		agg:        agg,
		translator: translator,
		cfg:        cfg.withDefaults(),
		logger:     logger,
	}
}

func (r *Router) conversation(ctx context.Context, userID int64) (Conversation, bool, error) {
	var conv Conversation
	found, err := kvstore.GetJSON(ctx, r.store, conversationKey(userID), &conv)
	return conv, found, err
}

// createConversation opens a fresh staff topic for userID and overwrites the
// stored mapping. Also the recreation path when the platform lost the topic.
func (r *Router) createConversation(ctx context.Context, userID int64, from *telegram.User) (Conversation, error) {
	title := deriveTitle(from)
	topic, err := r.send.CreateForumTopic(ctx, r.cfg.GroupID, title)
	if err != nil {
		if telegram.IsChatNotFound(err) {
			return Conversation{}, fmt.Errorf("staff group %d is not reachable: %w", r.cfg.GroupID, err)
		}
		return Conversation{}, fmt.Errorf("create topic for user %d: %w", userID, err)
	}
	conv := Conversation{ThreadID: topic.MessageThreadID, Title: title, Closed: false}
	if err := kvstore.PutJSON(ctx, r.store, conversationKey(userID), conv, 0); err != nil {
		return Conversation{}, err
	}
	r.logger.Info("conversation_created", "user_id", userID, "thread_id", conv.ThreadID, "title", title)
	return conv, nil
}

// RelayFromUser delivers one allowed private message into the user's topic.
// Primary path is a verbatim forward; a missing topic triggers exactly one
// recreate-and-retry, an invalid group is fatal, anything else degrades to a
// content copy.
func (r *Router) RelayFromUser(ctx context.Context, msg *telegram.Message) error {
	userID := msg.Chat.ID

	conv, found, err := r.conversation(ctx, userID)
	if err != nil {
		return err
	}
	if found && conv.Closed {
		_, _ = r.send.SendMessage(ctx, telegram.SendMessageParams{
			ChatID: userID,
			Text:   "🚫 当前对话已被管理员关闭。",
		})
		return nil
	}
	if !found || conv.ThreadID == 0 {
		conv, err = r.createConversation(ctx, userID, msg.From)
		if err != nil {
			return err
		}
	}

	var extra string
	if r.cfg.TranslateEnabled && r.translator != nil && strings.TrimSpace(msg.Text) != "" {
		if trans, ok := r.translator.Translate(ctx, msg.Text, r.cfg.StaffLanguage); ok && !strings.EqualFold(trans, msg.Text) {
			extra = trans
		}
	}

	if msg.MediaGroupID != "" {
		return r.agg.Absorb(ctx, DirectionUserToTopic, msg, Destination{
			ChatID:   r.cfg.GroupID,
			ThreadID: conv.ThreadID,
		})
	}

	_, err = r.send.ForwardMessage(ctx, telegram.ForwardMessageParams{
		ChatID:          r.cfg.GroupID,
		MessageThreadID: conv.ThreadID,
		FromChatID:      userID,
		MessageID:       msg.MessageID,
	})
	if err != nil {
		switch {
		case telegram.IsThreadNotFound(err):
			// The topic was deleted on the platform; recreate and retry the
			// forward once. A second failure is not retried further.
			conv, err = r.createConversation(ctx, userID, msg.From)
			if err != nil {
				return err
			}
			if _, retryErr := r.send.ForwardMessage(ctx, telegram.ForwardMessageParams{
				ChatID:          r.cfg.GroupID,
				MessageThreadID: conv.ThreadID,
				FromChatID:      userID,
				MessageID:       msg.MessageID,
			}); retryErr != nil {
				r.logger.Warn("relay_forward_retry_failed", "user_id", userID, "thread_id", conv.ThreadID, "error", retryErr.Error())
			}
		case telegram.IsChatNotFound(err):
			return fmt.Errorf("staff group %d is not reachable: %w", r.cfg.GroupID, err)
		default:
			// Loses the "forwarded from" provenance but keeps the content.
			if copyErr := r.send.CopyMessage(ctx, telegram.CopyMessageParams{
				ChatID:          r.cfg.GroupID,
				MessageThreadID: conv.ThreadID,
				FromChatID:      userID,
				MessageID:       msg.MessageID,
			}); copyErr != nil {
				r.logger.Warn("relay_copy_failed", "user_id", userID, "thread_id", conv.ThreadID, "error", copyErr.Error())
			}
		}
	}

	if extra != "" {
		if _, err := r.send.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:          r.cfg.GroupID,
			MessageThreadID: conv.ThreadID,
			Text:            fmt.Sprintf("📝 <b>翻译助手:</b>\n(译: %s)", extra),
			ParseMode:       "HTML",
		}); err != nil {
			r.logger.Warn("relay_translation_send_failed", "user_id", userID, "error", err.Error())
		}
	}
	return nil
}

// DeliverToUser carries a staff topic message back to the user. Copy keeps
// stickers and photos working; a translated rendering substitutes a plain
// text message instead.
func (r *Router) DeliverToUser(ctx context.Context, userID int64, msg *telegram.Message) error {
	text := strings.TrimSpace(msg.Text)

	reply := text
	if r.cfg.TranslateEnabled && r.translator != nil && text != "" && translate.ContainsHan(text) {
		if trans, ok := r.translator.Translate(ctx, text, r.cfg.UserLanguage); ok {
			reply = text + "\n\n🇬🇧 " + trans
		}
	}

	if msg.MediaGroupID != "" {
		return r.agg.Absorb(ctx, DirectionTopicToUser, msg, Destination{ChatID: userID})
	}

	if reply != text {
		_, err := r.send.SendMessage(ctx, telegram.SendMessageParams{ChatID: userID, Text: reply})
		return err
	}
	return r.send.CopyMessage(ctx, telegram.CopyMessageParams{
		ChatID:     userID,
		FromChatID: msg.Chat.ID,
		MessageID:  msg.MessageID,
	})
}

// UserIDByThread resolves the user owning a staff topic by scanning all
// conversation records. Linear, but conversation counts stay small.
func (r *Router) UserIDByThread(ctx context.Context, threadID int64) (int64, bool, error) {
	keys, err := r.store.ListKeys(ctx, conversationPrefix)
	if err != nil {
		return 0, false, err
	}
	for _, key := range keys {
		var conv Conversation
		found, err := kvstore.GetJSON(ctx, r.store, key, &conv)
		if err != nil || !found {
			continue
		}
		if conv.ThreadID != threadID {
			continue
		}
		if userID, ok := userIDFromConversationKey(key); ok {
			return userID, true, nil
		}
	}
	return 0, false, nil
}

// SetClosedByThread syncs the closed flag when staff close or reopen the
// topic via the platform UI rather than a command.
func (r *Router) SetClosedByThread(ctx context.Context, threadID int64, closed bool) error {
	keys, err := r.store.ListKeys(ctx, conversationPrefix)
	if err != nil {
		return err
	}
	for _, key := range keys {
		var conv Conversation
		found, err := kvstore.GetJSON(ctx, r.store, key, &conv)
		if err != nil || !found || conv.ThreadID != threadID {
			continue
		}
		conv.Closed = closed
		if err := kvstore.PutJSON(ctx, r.store, key, conv, 0); err != nil {
			return err
		}
		r.logger.Info("conversation_closed_state_synced", "key", key, "thread_id", threadID, "closed", closed)
	}
	return nil
}

// setClosed toggles the stored closed flag for a known user.
func (r *Router) setClosed(ctx context.Context, userID int64, closed bool) (Conversation, bool, error) {
	conv, found, err := r.conversation(ctx, userID)
	if err != nil || !found {
		return conv, false, err
	}
	conv.Closed = closed
	if err := kvstore.PutJSON(ctx, r.store, conversationKey(userID), conv, 0); err != nil {
		return conv, false, err
	}
	return conv, true, nil
}

func deriveTitle(from *telegram.User) string {
	if from == nil {
		return "User"
	}
	title := strings.TrimSpace(strings.TrimSpace(from.FirstName) + " " + strings.TrimSpace(from.LastName))
	if title == "" {
		return "User"
	}
	return title
}
