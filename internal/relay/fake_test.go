package relay

import (
	"context"
	"sync"
	"time"

	"github.com/quailyquaily/topicbridge/internal/telegram"
)

// fakeSender records every outbound call and plays back scripted failures.
type fakeSender struct {
	mu sync.Mutex

	sent        []telegram.SendMessageParams
	forwarded   []telegram.ForwardMessageParams
	copied      []telegram.CopyMessageParams
	mediaGroups []telegram.SendMediaGroupParams
	callbacks   []telegram.AnswerCallbackQueryParams
	edits       []telegram.EditMessageTextParams
	created     []string
	closed      []int64
	reopened    []int64

	forwardErrs    []error // consumed one per ForwardMessage call
	copyErr        error
	createTopicErr error

	nextThreadID int64
	calls        int
}

func newFakeSender() *fakeSender {
	return &fakeSender{nextThreadID: 100}
}

func (f *fakeSender) totalCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

func (f *fakeSender) SendMessage(_ context.Context, p telegram.SendMessageParams) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.sent = append(f.sent, p)
	return &telegram.Message{MessageID: int64(9000 + len(f.sent))}, nil
}

func (f *fakeSender) ForwardMessage(_ context.Context, p telegram.ForwardMessageParams) (*telegram.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.forwarded = append(f.forwarded, p)
	if len(f.forwardErrs) > 0 {
		err := f.forwardErrs[0]
		f.forwardErrs = f.forwardErrs[1:]
		if err != nil {
			return nil, err
		}
	}
	return &telegram.Message{MessageID: p.MessageID}, nil
}

func (f *fakeSender) CopyMessage(_ context.Context, p telegram.CopyMessageParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.copied = append(f.copied, p)
	return f.copyErr
}

func (f *fakeSender) SendMediaGroup(_ context.Context, p telegram.SendMediaGroupParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.mediaGroups = append(f.mediaGroups, p)
	return nil
}

func (f *fakeSender) AnswerCallbackQuery(_ context.Context, p telegram.AnswerCallbackQueryParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.callbacks = append(f.callbacks, p)
	return nil
}

func (f *fakeSender) EditMessageText(_ context.Context, p telegram.EditMessageTextParams) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.edits = append(f.edits, p)
	return nil
}

func (f *fakeSender) CreateForumTopic(_ context.Context, chatID int64, name string) (*telegram.ForumTopic, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.createTopicErr != nil {
		return nil, f.createTopicErr
	}
	f.nextThreadID++
	f.created = append(f.created, name)
	return &telegram.ForumTopic{MessageThreadID: f.nextThreadID, Name: name}, nil
}

func (f *fakeSender) CloseForumTopic(_ context.Context, _ int64, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.closed = append(f.closed, threadID)
	return nil
}

func (f *fakeSender) ReopenForumTopic(_ context.Context, _ int64, threadID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	f.reopened = append(f.reopened, threadID)
	return nil
}

// manualScheduler collects deferred tasks so tests decide when each deferred
// check fires.
type manualScheduler struct {
	mu    sync.Mutex
	tasks []scheduledTask
}

type scheduledTask struct {
	delay time.Duration
	name  string
	fn    func()
}

func (s *manualScheduler) After(d time.Duration, name string, fn func()) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.tasks = append(s.tasks, scheduledTask{delay: d, name: name, fn: fn})
}

func (s *manualScheduler) pending() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.tasks)
}

// fireAll runs every collected task in scheduling order and clears the list.
func (s *manualScheduler) fireAll() {
	s.mu.Lock()
	tasks := s.tasks
	s.tasks = nil
	s.mu.Unlock()
	for _, t := range tasks {
		t.fn()
	}
}

// fakeTranslator returns a fixed rendering for any input.
type fakeTranslator struct {
	out string
	ok  bool
}

func (f *fakeTranslator) Translate(_ context.Context, text, _ string) (string, bool) {
	if !f.ok {
		return "", false
	}
	return f.out, true
}

const testGroupID = int64(-1001234567890)

func privateText(userID, messageID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID: messageID,
		Chat:      &telegram.Chat{ID: userID, Type: "private"},
		From:      &telegram.User{ID: userID, FirstName: "Ada", LastName: "L"},
		Text:      text,
	}
}

func topicText(threadID, messageID int64, text string) *telegram.Message {
	return &telegram.Message{
		MessageID:       messageID,
		MessageThreadID: threadID,
		Chat:            &telegram.Chat{ID: testGroupID, Type: "supergroup"},
		From:            &telegram.User{ID: 42, FirstName: "Staff"},
		Text:            text,
	}
}
