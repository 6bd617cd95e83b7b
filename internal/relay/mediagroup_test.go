package relay

import (
	"context"
	"testing"
	"time"

	"github.com/quailyquaily/topicbridge/internal/kvstore"
	"github.com/quailyquaily/topicbridge/internal/telegram"
)

func newTestAggregator(store kvstore.Store, send Sender, sched Scheduler) *Aggregator {
	return NewAggregator(store, send, sched, Config{GroupID: testGroupID}, nil)
}

func photoMessage(userID, messageID int64, groupID, fileID, caption string) *telegram.Message {
	return &telegram.Message{
		MessageID:    messageID,
		Chat:         &telegram.Chat{ID: userID, Type: "private"},
		From:         &telegram.User{ID: userID, FirstName: "Ada"},
		MediaGroupID: groupID,
		Caption:      caption,
		Photo: []telegram.PhotoSize{
			{FileID: fileID + "_small"},
			{FileID: fileID},
		},
	}
}

func TestAggregator_BatchFlushesOnceInOrder(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	send := newFakeSender()
	sched := &manualScheduler{}
	agg := newTestAggregator(store, send, sched)

	dest := Destination{ChatID: testGroupID, ThreadID: 500}
	msgs := []*telegram.Message{
		photoMessage(7, 10, "g1", "file_a", "three photos"),
		photoMessage(7, 11, "g1", "file_b", ""),
		photoMessage(7, 12, "g1", "file_c", ""),
	}
	for _, msg := range msgs {
		if err := agg.Absorb(ctx, DirectionUserToTopic, msg, dest); err != nil {
			t.Fatalf("Absorb() error = %v", err)
		}
	}
	if sched.pending() != 3 {
		t.Fatalf("scheduled %d deferred checks, want 3 (one per item)", sched.pending())
	}

	sched.fireAll()

	if len(send.mediaGroups) != 1 {
		t.Fatalf("flushed %d batches, want exactly 1", len(send.mediaGroups))
	}
	batch := send.mediaGroups[0]
	if batch.ChatID != testGroupID || batch.MessageThreadID != 500 {
		t.Fatalf("batch destination = chat %d thread %d", batch.ChatID, batch.MessageThreadID)
	}
	if len(batch.Media) != 3 {
		t.Fatalf("batch has %d items, want 3", len(batch.Media))
	}
	wantFiles := []string{"file_a", "file_b", "file_c"}
	for i, m := range batch.Media {
		if m.Media != wantFiles[i] {
			t.Fatalf("item %d = %q, want %q (submission order)", i, m.Media, wantFiles[i])
		}
	}
	if batch.Media[0].Caption != "three photos" {
		t.Fatalf("first caption = %q, want the group caption", batch.Media[0].Caption)
	}
	if batch.Media[1].Caption != "" || batch.Media[2].Caption != "" {
		t.Fatal("caption must appear on the first item only")
	}

	key := mediaGroupKey(DirectionUserToTopic, "g1")
	if _, ok, _ := store.Get(ctx, key); ok {
		t.Fatal("buffer still stored after flush")
	}
}

func TestAggregator_StaleStampDoesNotFlush(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	send := newFakeSender()
	sched := &manualScheduler{}
	agg := newTestAggregator(store, send, sched)

	dest := Destination{ChatID: testGroupID, ThreadID: 500}
	if err := agg.Absorb(ctx, DirectionUserToTopic, photoMessage(7, 10, "g1", "file_a", ""), dest); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	if err := agg.Absorb(ctx, DirectionUserToTopic, photoMessage(7, 11, "g1", "file_b", ""), dest); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}

	// Fire only the first item's check; its captured stamp is stale.
	first := sched.tasks[0]
	first.fn()
	if len(send.mediaGroups) != 0 {
		t.Fatal("stale check flushed the buffer")
	}

	// The second item's check holds the live stamp and flushes everything.
	second := sched.tasks[1]
	second.fn()
	if len(send.mediaGroups) != 1 {
		t.Fatalf("flushed %d batches, want 1", len(send.mediaGroups))
	}
	if got := len(send.mediaGroups[0].Media); got != 2 {
		t.Fatalf("batch has %d items, want 2", got)
	}
}

func TestAggregator_SameMillisecondItemsFlushOnce(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	send := newFakeSender()
	sched := &manualScheduler{}
	agg := newTestAggregator(store, send, sched)
	fixed := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return fixed }

	dest := Destination{ChatID: testGroupID, ThreadID: 500}
	if err := agg.Absorb(ctx, DirectionUserToTopic, photoMessage(7, 10, "g1", "file_a", ""), dest); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	if err := agg.Absorb(ctx, DirectionUserToTopic, photoMessage(7, 11, "g1", "file_b", ""), dest); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}

	sched.fireAll()

	if len(send.mediaGroups) != 1 {
		t.Fatalf("flushed %d batches for same-millisecond items, want 1", len(send.mediaGroups))
	}
}

func TestAggregator_SeparateQuietWindowsFlushSeparately(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	send := newFakeSender()
	sched := &manualScheduler{}
	agg := newTestAggregator(store, send, sched)

	clock := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	agg.now = func() time.Time { return clock }

	dest := Destination{ChatID: testGroupID, ThreadID: 500}
	if err := agg.Absorb(ctx, DirectionUserToTopic, photoMessage(7, 10, "g1", "file_a", ""), dest); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	sched.fireAll()

	// A later item for the same group id after the first batch flushed starts
	// a fresh buffer.
	clock = clock.Add(3 * time.Second)
	if err := agg.Absorb(ctx, DirectionUserToTopic, photoMessage(7, 11, "g1", "file_b", ""), dest); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	sched.fireAll()

	if len(send.mediaGroups) != 2 {
		t.Fatalf("flushed %d batches, want 2 for items outside one quiet window", len(send.mediaGroups))
	}
	if len(send.mediaGroups[0].Media) != 1 || len(send.mediaGroups[1].Media) != 1 {
		t.Fatal("each quiet window must carry only its own item")
	}
}

func TestAggregator_UnsupportedKindBypassesBuffer(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	send := newFakeSender()
	sched := &manualScheduler{}
	agg := newTestAggregator(store, send, sched)

	msg := &telegram.Message{
		MessageID:    10,
		Chat:         &telegram.Chat{ID: 7, Type: "private"},
		MediaGroupID: "g1",
		// No photo, video, or document payload.
	}
	dest := Destination{ChatID: testGroupID, ThreadID: 500}
	if err := agg.Absorb(ctx, DirectionUserToTopic, msg, dest); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	if len(send.copied) != 1 {
		t.Fatalf("copied %d messages, want 1 immediate bypass", len(send.copied))
	}
	if sched.pending() != 0 {
		t.Fatal("bypassed item scheduled a deferred check")
	}
	if _, ok, _ := store.Get(ctx, mediaGroupKey(DirectionUserToTopic, "g1")); ok {
		t.Fatal("bypassed item was buffered")
	}
}

func TestAggregator_DirectionsKeepSeparateBuffers(t *testing.T) {
	ctx := context.Background()
	store := kvstore.NewMemoryStore()
	send := newFakeSender()
	sched := &manualScheduler{}
	agg := newTestAggregator(store, send, sched)

	if err := agg.Absorb(ctx, DirectionUserToTopic, photoMessage(7, 10, "g1", "file_a", ""),
		Destination{ChatID: testGroupID, ThreadID: 500}); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}
	if err := agg.Absorb(ctx, DirectionTopicToUser, photoMessage(7, 11, "g1", "file_b", ""),
		Destination{ChatID: 7}); err != nil {
		t.Fatalf("Absorb() error = %v", err)
	}

	sched.fireAll()

	if len(send.mediaGroups) != 2 {
		t.Fatalf("flushed %d batches, want 2: one per direction", len(send.mediaGroups))
	}
}

func TestExtractMedia_PicksLargestPhoto(t *testing.T) {
	msg := photoMessage(7, 10, "g1", "file_big", "cap")
	item, ok := extractMedia(msg)
	if !ok {
		t.Fatal("extractMedia() = false for a photo message")
	}
	if item.Kind != "photo" || item.FileID != "file_big" || item.Caption != "cap" {
		t.Fatalf("item = %+v", item)
	}
}
