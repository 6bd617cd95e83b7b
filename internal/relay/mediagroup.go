package relay

import (
	"context"
	"log/slog"
	"time"

	"github.com/quailyquaily/topicbridge/internal/kvstore"
	"github.com/quailyquaily/topicbridge/internal/telegram"
)

// Aggregator coalesces the items of a multi-item submission into one batched
// delivery. The platform sends each item as its own update with a shared
// group id and no completion signal, so every absorbed item races a private
// deferred check: only the check whose captured timestamp still equals the
// buffer's live timestamp performs the flush.
type Aggregator struct {
	store  kvstore.Store
	send   Sender
	sched  Scheduler
	cfg    Config
	logger *slog.Logger

	now func() time.Time
}

func NewAggregator(store kvstore.Store, send Sender, sched Scheduler, cfg Config, logger *slog.Logger) *Aggregator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Aggregator{
		store:  store,
		send:   send,
		sched:  sched,
		cfg:    cfg.withDefaults(),
		logger: logger,
		now:    time.Now,
	}
}

// Absorb buffers one item of msg's media group bound for dest and schedules
// the deferred flush check. Messages without a supported media kind bypass
// the buffer and are copied to dest immediately.
func (a *Aggregator) Absorb(ctx context.Context, direction string, msg *telegram.Message, dest Destination) error {
	item, ok := extractMedia(msg)
	if !ok {
		return a.send.CopyMessage(ctx, telegram.CopyMessageParams{
			ChatID:          dest.ChatID,
			MessageThreadID: dest.ThreadID,
			FromChatID:      msg.Chat.ID,
			MessageID:       msg.MessageID,
		})
	}
	item.MessageID = msg.MessageID

	key := mediaGroupKey(direction, msg.MediaGroupID)
	var buf MediaGroupBuffer
	found, err := kvstore.GetJSON(ctx, a.store, key, &buf)
	if err != nil {
		return err
	}
	if !found {
		buf = MediaGroupBuffer{
			Direction:    direction,
			TargetChatID: dest.ChatID,
			ThreadID:     dest.ThreadID,
		}
	}

	buf.Items = append(buf.Items, item)
	stamp := a.now().UnixMilli()
	if stamp <= buf.LastUpdateMs {
		// Two items in the same millisecond would let both deferred checks
		// see a matching stamp and flush twice; keep the token monotonic.
		stamp = buf.LastUpdateMs + 1
	}
	buf.LastUpdateMs = stamp

	if err := kvstore.PutJSON(ctx, a.store, key, buf, a.cfg.BufferTTL); err != nil {
		return err
	}

	a.sched.After(a.cfg.QuietPeriod, "media_group_flush", func() {
		a.flushIfQuiet(key, stamp)
	})
	return nil
}

// flushIfQuiet re-reads the buffer after the quiet period. A changed stamp
// means a later item rescheduled its own check and this one is a no-op; a
// matching stamp is the canceling write and performs the single flush.
func (a *Aggregator) flushIfQuiet(key string, stamp int64) {
	ctx := context.Background()

	var buf MediaGroupBuffer
	found, err := kvstore.GetJSON(ctx, a.store, key, &buf)
	if err != nil {
		a.logger.Warn("media_group_read_failed", "key", key, "error", err.Error())
		return
	}
	if !found || buf.LastUpdateMs != stamp {
		return
	}
	if len(buf.Items) == 0 {
		_ = a.store.Delete(ctx, key)
		return
	}

	media := make([]telegram.InputMedia, 0, len(buf.Items))
	for i, it := range buf.Items {
		caption := ""
		if i == 0 {
			caption = it.Caption
		}
		media = append(media, telegram.InputMedia{
			Type:    it.Kind,
			Media:   it.FileID,
			Caption: caption,
		})
	}

	err = a.send.SendMediaGroup(ctx, telegram.SendMediaGroupParams{
		ChatID:          buf.TargetChatID,
		MessageThreadID: buf.ThreadID,
		Media:           media,
	})
	if err != nil {
		a.logger.Warn("media_group_send_failed", "key", key, "items", len(buf.Items), "error", err.Error())
	} else {
		a.logger.Info("media_group_flushed", "key", key, "items", len(buf.Items))
	}
	if err := a.store.Delete(ctx, key); err != nil {
		a.logger.Warn("media_group_retire_failed", "key", key, "error", err.Error())
	}
}

// extractMedia pulls the supported media descriptor out of a message. For
// photos the largest (last) size is used.
func extractMedia(msg *telegram.Message) (MediaItem, bool) {
	switch {
	case len(msg.Photo) > 0:
		return MediaItem{Kind: "photo", FileID: msg.Photo[len(msg.Photo)-1].FileID, Caption: msg.Caption}, true
	case msg.Video != nil:
		return MediaItem{Kind: "video", FileID: msg.Video.FileID, Caption: msg.Caption}, true
	case msg.Document != nil:
		return MediaItem{Kind: "document", FileID: msg.Document.FileID, Caption: msg.Caption}, true
	default:
		return MediaItem{}, false
	}
}
