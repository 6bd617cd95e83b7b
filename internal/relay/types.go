// Package relay implements the conversation-state engine that bridges
// anonymous Telegram users with a staff group, one forum topic per user.
// Every inbound update is handled run-to-completion against the shared
// key-value store; nothing is cached across updates.
package relay

import (
	"context"
	"time"

	"github.com/quailyquaily/topicbridge/internal/telegram"
)

// Sender is the outbound boundary to the messaging platform. Implemented by
// *telegram.Client; tests substitute a recording fake.
type Sender interface {
	SendMessage(ctx context.Context, p telegram.SendMessageParams) (*telegram.Message, error)
	ForwardMessage(ctx context.Context, p telegram.ForwardMessageParams) (*telegram.Message, error)
	CopyMessage(ctx context.Context, p telegram.CopyMessageParams) error
	SendMediaGroup(ctx context.Context, p telegram.SendMediaGroupParams) error
	AnswerCallbackQuery(ctx context.Context, p telegram.AnswerCallbackQueryParams) error
	EditMessageText(ctx context.Context, p telegram.EditMessageTextParams) error
	CreateForumTopic(ctx context.Context, chatID int64, name string) (*telegram.ForumTopic, error)
	CloseForumTopic(ctx context.Context, chatID, threadID int64) error
	ReopenForumTopic(ctx context.Context, chatID, threadID int64) error
}

// Scheduler runs deferred work after the current update has been answered.
// Handlers must be reentrant and are never cancelled.
type Scheduler interface {
	After(d time.Duration, name string, fn func())
}

// Config is the injected runtime configuration. Zero durations fall back to
// the defaults below.
type Config struct {
	GroupID int64

	TranslateEnabled bool
	// StaffLanguage is what user messages are translated into for staff to
	// read; UserLanguage is the reverse direction.
	StaffLanguage string
	UserLanguage  string

	QuietPeriod  time.Duration
	ChallengeTTL time.Duration
	VerifiedTTL  time.Duration
	BufferTTL    time.Duration
}

const (
	defaultQuietPeriod  = 2 * time.Second
	defaultChallengeTTL = 300 * time.Second
	defaultVerifiedTTL  = 30 * 24 * time.Hour
	defaultBufferTTL    = 60 * time.Second

	defaultStaffLanguage = "zh-CN"
	defaultUserLanguage  = "en"
)

func (c Config) withDefaults() Config {
	if c.QuietPeriod <= 0 {
		c.QuietPeriod = defaultQuietPeriod
	}
	if c.ChallengeTTL <= 0 {
		c.ChallengeTTL = defaultChallengeTTL
	}
	if c.VerifiedTTL <= 0 {
		c.VerifiedTTL = defaultVerifiedTTL
	}
	if c.BufferTTL <= 0 {
		c.BufferTTL = defaultBufferTTL
	}
	if c.StaffLanguage == "" {
		c.StaffLanguage = defaultStaffLanguage
	}
	if c.UserLanguage == "" {
		c.UserLanguage = defaultUserLanguage
	}
	return c
}

// Conversation maps a user to their dedicated staff topic. Never deleted;
// recreated in place when the platform loses the topic.
type Conversation struct {
	ThreadID int64  `json:"thread_id"`
	Title    string `json:"title"`
	Closed   bool   `json:"closed"`
}

// Challenge is one outstanding human-verification question, keyed by a random
// token. PendingMessageID is the withheld message to replay after success;
// zero when the challenge was triggered by first contact.
type Challenge struct {
	Answer           string `json:"answer"`
	PendingMessageID int64  `json:"pending_message_id,omitempty"`
}

// Relay directions for media-group buffers.
const (
	DirectionUserToTopic = "p2t"
	DirectionTopicToUser = "t2p"
)

// MediaItem is one buffered element of a multi-item submission.
type MediaItem struct {
	Kind      string `json:"type"`
	FileID    string `json:"file_id"`
	Caption   string `json:"caption,omitempty"`
	MessageID int64  `json:"message_id"`
}

// MediaGroupBuffer accumulates the items of one media group until the quiet
// period passes. LastUpdateMs is the debounce token: only the deferred check
// that still sees its own stamp performs the flush.
type MediaGroupBuffer struct {
	Direction    string      `json:"direction"`
	TargetChatID int64       `json:"target_chat_id"`
	ThreadID     int64       `json:"thread_id,omitempty"`
	Items        []MediaItem `json:"items"`
	LastUpdateMs int64       `json:"last_update_ms"`
}

// Destination is where a buffered media group gets flushed to.
type Destination struct {
	ChatID   int64
	ThreadID int64
}
