package relay

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/quailyquaily/topicbridge/internal/autoreply"
	"github.com/quailyquaily/topicbridge/internal/kvstore"
	"github.com/quailyquaily/topicbridge/internal/telegram"
	"github.com/quailyquaily/topicbridge/internal/translate"
)

type Options struct {
	Config      Config
	Store       kvstore.Store
	Sender      Sender
	Scheduler   Scheduler
	Translator  translate.Translator
	AutoReplies *autoreply.Table
	Questions   []Question
	Logger      *slog.Logger
}

// Orchestrator sequences gate → (admin | router → aggregator) for every
// inbound update. It is the only component the entry points talk to.
type Orchestrator struct {
	cfg     Config
	send    Sender
	gate    *Gate
	router  *Router
	admin   *Admin
	replies *autoreply.Table
	logger  *slog.Logger
}

func New(opts Options) (*Orchestrator, error) {
	if opts.Store == nil {
		return nil, fmt.Errorf("store is required")
	}
	if opts.Sender == nil {
		return nil, fmt.Errorf("sender is required")
	}
	if opts.Scheduler == nil {
		return nil, fmt.Errorf("scheduler is required")
	}
	cfg := opts.Config.withDefaults()
	if !strings.HasPrefix(strconv.FormatInt(cfg.GroupID, 10), "-100") {
		return nil, fmt.Errorf("telegram.group_id %d is not a supergroup id", cfg.GroupID)
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.Default()
	}

	agg := NewAggregator(opts.Store, opts.Sender, opts.Scheduler, cfg, logger)
	router := NewRouter(opts.Store, opts.Sender, agg, opts.Translator, cfg, logger)
	admin := NewAdmin(opts.Store, opts.Sender, router, cfg, logger)
	gate := NewGate(opts.Store, opts.Sender, cfg, opts.Questions, logger)

	o := &Orchestrator{
		cfg:     cfg,
		send:    opts.Sender,
		gate:    gate,
		router:  router,
		admin:   admin,
		replies: opts.AutoReplies,
		logger:  logger,
	}
	gate.replay = func(ctx context.Context, msg *telegram.Message) {
		if err := o.handlePrivateMessage(ctx, msg); err != nil {
			o.logger.Warn("replay_failed", "user_id", msg.Chat.ID, "error", err.Error())
		}
	}
	return o, nil
}

// HandleUpdate processes one decoded platform update to completion. The
// boundary contract is "acknowledge receipt regardless of internal outcome":
// failures are logged, never returned to the platform.
func (o *Orchestrator) HandleUpdate(ctx context.Context, update telegram.Update) {
	eventID := "evt_" + uuid.NewString()

	if update.CallbackQuery != nil {
		if err := o.gate.HandleCallback(ctx, update.CallbackQuery); err != nil {
			o.logger.Error("callback_error", "event_id", eventID, "error", err.Error())
		}
		return
	}

	msg := update.Message
	if msg == nil || msg.Chat == nil {
		return
	}

	switch {
	case msg.Chat.Type == "private":
		if err := o.handlePrivateMessage(ctx, msg); err != nil {
			o.logger.Error("private_message_error", "event_id", eventID, "user_id", msg.Chat.ID, "error", err.Error())
		}
	case msg.Chat.ID == o.cfg.GroupID:
		if err := o.handleGroupMessage(ctx, msg); err != nil {
			o.logger.Error("group_message_error", "event_id", eventID, "thread_id", msg.MessageThreadID, "error", err.Error())
		}
	}
}

func (o *Orchestrator) handlePrivateMessage(ctx context.Context, msg *telegram.Message) error {
	text := strings.TrimSpace(msg.Text)
	// Slash commands other than /start are not relayed.
	if strings.HasPrefix(text, "/") && text != "/start" {
		return nil
	}

	result, err := o.gate.Admit(ctx, msg)
	if err != nil {
		return err
	}
	if result != GateAllowed {
		return nil
	}

	for _, reply := range o.replies.Match(msg.Text) {
		if _, err := o.send.SendMessage(ctx, telegram.SendMessageParams{
			ChatID:           msg.Chat.ID,
			Text:             reply,
			ReplyToMessageID: msg.MessageID,
		}); err != nil {
			o.logger.Warn("auto_reply_failed", "user_id", msg.Chat.ID, "error", err.Error())
		}
	}

	return o.router.RelayFromUser(ctx, msg)
}

func (o *Orchestrator) handleGroupMessage(ctx context.Context, msg *telegram.Message) error {
	if msg.MessageThreadID == 0 {
		return nil
	}
	// Topic close/reopen via the platform UI keeps the stored state in sync.
	if msg.ForumTopicClosed != nil {
		return o.router.SetClosedByThread(ctx, msg.MessageThreadID, true)
	}
	if msg.ForumTopicReopened != nil {
		return o.router.SetClosedByThread(ctx, msg.MessageThreadID, false)
	}
	return o.admin.HandleTopicMessage(ctx, msg)
}
