package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/quailyquaily/topicbridge/internal/kvstore"
	"github.com/quailyquaily/topicbridge/internal/telegram"
)

// GateResult is the outcome of admitting an inbound user message.
type GateResult int

const (
	// GateAllowed lets the message through to the relay.
	GateAllowed GateResult = iota
	// GateChallenged means a verification question was sent instead.
	GateChallenged
	// GateDropped is the silent terminal outcome for banned users.
	GateDropped
)

const callbackVerifyPrefix = "verify:"

// Gate decides whether an inbound user gets relayed, and verifies challenge
// answers arriving as button presses.
type Gate struct {
	store  kvstore.Store
	send   Sender
	cfg    Config
	bank   []Question
	logger *slog.Logger

	// replay re-enters the withheld message into the normal admit-and-relay
	// path after a successful verification. Wired by the orchestrator.
	replay func(ctx context.Context, msg *telegram.Message)
}

func NewGate(store kvstore.Store, send Sender, cfg Config, bank []Question, logger *slog.Logger) *Gate {
	if len(bank) == 0 {
		bank = DefaultQuestions()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Gate{
		store:  store,
		send:   send,
		cfg:    cfg.withDefaults(),
		bank:   bank,
		logger: logger,
	}
}

// Admit gates one private message. Banned users are dropped without any
// outbound call; unverified users get a challenge and their message id is
// recorded for replay unless this is first contact (/start).
func (g *Gate) Admit(ctx context.Context, msg *telegram.Message) (GateResult, error) {
	userID := msg.Chat.ID

	_, banned, err := g.store.Get(ctx, banKey(userID))
	if err != nil {
		return GateDropped, err
	}
	if banned {
		g.logger.Debug("gate_banned_drop", "user_id", userID)
		return GateDropped, nil
	}

	_, verified, err := g.store.Get(ctx, verifiedKey(userID))
	if err != nil {
		return GateDropped, err
	}
	if verified {
		return GateAllowed, nil
	}

	var pending int64
	if strings.TrimSpace(msg.Text) != "/start" {
		pending = msg.MessageID
	}
	if err := g.sendChallenge(ctx, userID, pending); err != nil {
		return GateChallenged, err
	}
	return GateChallenged, nil
}

func (g *Gate) sendChallenge(ctx context.Context, userID, pendingMessageID int64) error {
	q, options := pickChallenge(g.bank)
	token := newChallengeToken()

	chal := Challenge{Answer: q.CorrectAnswer, PendingMessageID: pendingMessageID}
	if err := kvstore.PutJSON(ctx, g.store, challengeKey(token), chal, g.cfg.ChallengeTTL); err != nil {
		return err
	}

	buttons := make([]telegram.InlineKeyboardButton, 0, len(options))
	for _, opt := range options {
		buttons = append(buttons, telegram.InlineKeyboardButton{
			Text:         opt,
			CallbackData: callbackVerifyPrefix + token + ":" + truncateAnswer(opt),
		})
	}
	var rows [][]telegram.InlineKeyboardButton
	for i := 0; i < len(buttons); i += 2 {
		end := i + 2
		if end > len(buttons) {
			end = len(buttons)
		}
		rows = append(rows, buttons[i:end])
	}

	_, err := g.send.SendMessage(ctx, telegram.SendMessageParams{
		ChatID:      userID,
		Text:        fmt.Sprintf("🛡️ **人机验证**\n\n%s\n\n(回答正确后将自动发送您的消息)", q.Question),
		ParseMode:   "Markdown",
		ReplyMarkup: &telegram.InlineKeyboardMarkup{InlineKeyboard: rows},
	})
	if err != nil {
		return err
	}
	g.logger.Info("gate_challenge_sent", "user_id", userID, "pending_message_id", pendingMessageID)
	return nil
}

// HandleCallback verifies a button-press answer. Only the challenge matching
// the token in the payload is consumed; other outstanding challenges for the
// same user stay valid.
func (g *Gate) HandleCallback(ctx context.Context, query *telegram.CallbackQuery) error {
	if query == nil || query.From == nil {
		return nil
	}
	data := query.Data
	if !strings.HasPrefix(data, callbackVerifyPrefix) {
		return nil
	}
	parts := strings.SplitN(data, ":", 3)
	if len(parts) < 3 {
		return nil
	}
	token, answer := parts[1], parts[2]
	userID := query.From.ID

	var chal Challenge
	found, err := kvstore.GetJSON(ctx, g.store, challengeKey(token), &chal)
	if err != nil {
		return err
	}
	if !found {
		return g.send.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            "❌ 验证过期，请重发消息",
			ShowAlert:       true,
		})
	}

	if answer != truncateAnswer(chal.Answer) {
		// Wrong answer; the challenge stays valid until it expires.
		return g.send.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{
			CallbackQueryID: query.ID,
			Text:            "❌ 错误，请重试",
			ShowAlert:       true,
		})
	}

	if err := g.send.AnswerCallbackQuery(ctx, telegram.AnswerCallbackQueryParams{
		CallbackQueryID: query.ID,
		Text:            "✅ 验证通过",
	}); err != nil {
		return err
	}
	if err := g.store.Put(ctx, verifiedKey(userID), "1", g.cfg.VerifiedTTL); err != nil {
		return err
	}
	if err := g.store.Delete(ctx, challengeKey(token)); err != nil {
		return err
	}
	if query.Message != nil {
		_ = g.send.EditMessageText(ctx, telegram.EditMessageTextParams{
			ChatID:    userID,
			MessageID: query.Message.MessageID,
			Text:      "✅ **验证成功，您可以开始对话了**",
			ParseMode: "Markdown",
		})
	}
	g.logger.Info("gate_verified", "user_id", userID)

	if chal.PendingMessageID != 0 {
		_, _ = g.send.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:           userID,
			Text:             "📩 刚才的消息已帮您自动送达。",
			ReplyToMessageID: chal.PendingMessageID,
		})
		if g.replay != nil {
			// Re-enter the withheld message through the normal path so it
			// still reaches the conversation.
			g.replay(ctx, &telegram.Message{
				MessageID: chal.PendingMessageID,
				Chat:      &telegram.Chat{ID: userID, Type: "private"},
				From:      query.From,
			})
		}
	}
	return nil
}
