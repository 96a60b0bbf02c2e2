package agent

import (
	"context"
	"errors"
	"slices"
	"sync"
	"testing"
	"time"

	"dmcontrol/internal/domain"

	"pgregory.net/rapid"
)

const ownerID = "1"

type fakeInbox struct {
	mu       sync.Mutex
	messages []domain.Message
	fetchErr error
	sendErr  error
	sinces   []domain.MessageID
	sent     []string
	onSend   func()
}

func (f *fakeInbox) Name() string { return "fake" }

func (f *fakeInbox) Fetch(_ context.Context, since domain.MessageID) ([]domain.Message, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sinces = append(f.sinces, since)
	if f.fetchErr != nil {
		return nil, f.fetchErr
	}
	// Like the real providers, return everything and let the loop filter.
	return append([]domain.Message(nil), f.messages...), nil
}

func (f *fakeInbox) Send(_ context.Context, recipientID, text string) error {
	f.mu.Lock()
	f.sent = append(f.sent, recipientID+"|"+text)
	hook := f.onSend
	err := f.sendErr
	f.mu.Unlock()
	if hook != nil {
		hook()
	}
	return err
}

func (f *fakeInbox) sentCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.sent)
}

type fakeHistory struct {
	mu      sync.Mutex
	records []domain.CommandRecord
}

func (h *fakeHistory) Record(_ context.Context, rec domain.CommandRecord) error {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.records = append(h.records, rec)
	return nil
}

func (h *fakeHistory) Recent(context.Context, int) ([]domain.CommandRecord, error) {
	return nil, nil
}

func (h *fakeHistory) Close() error { return nil }

func (h *fakeHistory) messageIDs() []domain.MessageID {
	h.mu.Lock()
	defer h.mu.Unlock()
	var ids []domain.MessageID
	for _, r := range h.records {
		ids = append(ids, r.MessageID)
	}
	return ids
}

func selfMsg(id domain.MessageID, text string) domain.Message {
	return domain.Message{ID: id, SenderID: ownerID, RecipientID: ownerID, Text: text}
}

type loopFixture struct {
	loop    *Loop
	inbox   *fakeInbox
	history *fakeHistory
	saves   *saveRecorder
	cp      *Checkpoint
	media   *fakeMedia
}

func newLoopFixture(lastSeen domain.MessageID, msgs ...domain.Message) *loopFixture {
	d, m := newTestDispatcher()
	f := &loopFixture{
		inbox:   &fakeInbox{messages: msgs},
		history: &fakeHistory{},
		saves:   &saveRecorder{},
		media:   m,
	}
	f.cp = NewCheckpoint(lastSeen, f.saves.save, testLogger())
	f.loop = NewLoop(LoopConfig{
		Inbox:      f.inbox,
		Dispatcher: d,
		Checkpoint: f.cp,
		History:    f.history,
		OwnerID:    ownerID,
		Prefix:     "!",
		Interval:   time.Hour,
		Logger:     testLogger(),
	})
	return f
}

func TestPollOnce_ProcessesInAscendingOrder(t *testing.T) {
	f := newLoopFixture(0,
		selfMsg(10, "!show: Ten"),
		selfMsg(7, "!show: Seven"),
		selfMsg(12, "!show: Twelve"),
	)

	n, err := f.loop.PollOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 3 {
		t.Fatalf("expected 3 processed, got %d", n)
	}
	want := []string{"Seven", "Ten", "Twelve"}
	if !slices.Equal(f.media.series.calls, want) {
		t.Errorf("expected order %v, got %v", want, f.media.series.calls)
	}
	if f.cp.LastSeen() != 12 {
		t.Errorf("expected checkpoint 12, got %d", f.cp.LastSeen())
	}
	if got := f.saves.calls(); len(got) != 1 || got[0] != 12 {
		t.Errorf("expected one save of 12, got %v", got)
	}
	if f.inbox.sent[0] != ownerID+"|Show added to my list (Seven)" {
		t.Errorf("unexpected first reply %q", f.inbox.sent[0])
	}
}

func TestPollOnce_SkipsNonSelfAddressed(t *testing.T) {
	f := newLoopFixture(0,
		domain.Message{ID: 20, SenderID: "2", RecipientID: ownerID, Text: "!stats"},
		selfMsg(21, "just a note to self"),
		selfMsg(22, "!stats"),
	)

	n, err := f.loop.PollOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 2 {
		t.Errorf("expected 2 self-addressed messages processed, got %d", n)
	}
	if f.media.queue.calls != 1 {
		t.Errorf("expected one stats call, got %d", f.media.queue.calls)
	}
	if f.inbox.sentCount() != 1 {
		t.Errorf("expected one reply, got %d", f.inbox.sentCount())
	}
	if f.cp.LastSeen() != 22 {
		t.Errorf("expected checkpoint 22, got %d", f.cp.LastSeen())
	}
}

func TestPollOnce_NothingNewDoesNotPersist(t *testing.T) {
	f := newLoopFixture(50,
		selfMsg(40, "!stats"),
		selfMsg(50, "!stats"),
		domain.Message{ID: 60, SenderID: "2", RecipientID: ownerID, Text: "!stats"},
	)

	n, err := f.loop.PollOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected nothing processed, got %d", n)
	}
	if len(f.saves.calls()) != 0 {
		t.Error("checkpoint should not be written when nothing was processed")
	}
	if f.cp.LastSeen() != 50 {
		t.Errorf("expected checkpoint to stay at 50, got %d", f.cp.LastSeen())
	}
}

func TestPollOnce_FetchError(t *testing.T) {
	f := newLoopFixture(5)
	f.inbox.fetchErr = errors.New("rate limited")

	if _, err := f.loop.PollOnce(context.Background()); err == nil {
		t.Fatal("expected fetch error")
	}
	if f.cp.LastSeen() != 5 || len(f.saves.calls()) != 0 {
		t.Error("failed fetch should leave the checkpoint untouched")
	}
}

func TestPollOnce_SendFailureStillAdvances(t *testing.T) {
	f := newLoopFixture(0, selfMsg(3, "!help"))
	f.inbox.sendErr = errors.New("network down")

	n, err := f.loop.PollOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 1 || f.cp.LastSeen() != 3 {
		t.Errorf("expected message 3 processed despite send failure, got n=%d last_seen=%d", n, f.cp.LastSeen())
	}
}

func TestPollOnce_SaveErrorReported(t *testing.T) {
	f := newLoopFixture(0, selfMsg(3, "!help"))
	f.saves.err = errors.New("read-only file system")

	if _, err := f.loop.PollOnce(context.Background()); err == nil {
		t.Fatal("expected save error")
	}
	if !f.cp.Dirty() {
		t.Error("checkpoint should stay dirty after a failed save")
	}
}

func TestPollOnce_RefetchDoesNotReprocess(t *testing.T) {
	f := newLoopFixture(0, selfMsg(1, "!movie: tt0111161"), selfMsg(2, "!stats"))

	if _, err := f.loop.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	n, err := f.loop.PollOnce(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("expected no reprocessing, got %d", n)
	}
	if len(f.media.movies.calls) != 1 || f.media.queue.calls != 1 {
		t.Error("commands should run once across cycles")
	}
	if f.inbox.sinces[1] != 2 {
		t.Errorf("expected second fetch since 2, got %d", f.inbox.sinces[1])
	}
}

func TestPollOnce_MultipleCommandsInOneMessage(t *testing.T) {
	f := newLoopFixture(0, selfMsg(9, "!show: Dark\n!movie: tt1375666\n!bogus"))

	if _, err := f.loop.PollOnce(context.Background()); err != nil {
		t.Fatal(err)
	}
	if f.inbox.sentCount() != 3 {
		t.Fatalf("expected 3 replies, got %d", f.inbox.sentCount())
	}
	if got := f.inbox.sent[2]; got != ownerID+"|"+ReplyUnknown {
		t.Errorf("expected unknown reply last, got %q", got)
	}
	if len(f.history.records) != 3 {
		t.Fatalf("expected 3 history records, got %d", len(f.history.records))
	}
	rec := f.history.records[0]
	if rec.MessageID != 9 || rec.Name != "show" || rec.Args != "Dark" || rec.CycleID == "" {
		t.Errorf("unexpected history record %+v", rec)
	}
	if rec.CycleID != f.history.records[2].CycleID {
		t.Error("records from one cycle should share a cycle id")
	}
}

func TestRun_PersistsOnCancel(t *testing.T) {
	f := newLoopFixture(0, selfMsg(5, "!help"))
	// The in-cycle save fails, so only the shutdown path can write 5.
	var failOnce sync.Once
	saver := f.saves
	f.cp.save = func(lastSeen int64) error {
		var err error
		failOnce.Do(func() { err = errors.New("temporarily unavailable") })
		if err != nil {
			return err
		}
		return saver.save(lastSeen)
	}

	ctx, cancel := context.WithCancel(context.Background())
	f.inbox.onSend = cancel

	done := make(chan struct{})
	go func() {
		f.loop.Run(ctx)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancel")
	}

	if got := saver.calls(); len(got) != 1 || got[0] != 5 {
		t.Errorf("expected shutdown to save 5 once, got %v", got)
	}
}

func TestRun_CancelledBeforeStart(t *testing.T) {
	f := newLoopFixture(0, selfMsg(5, "!help"))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	f.loop.Run(ctx)

	if len(f.inbox.sinces) != 0 {
		t.Error("no cycle should run after cancellation")
	}
	if len(f.saves.calls()) != 0 {
		t.Error("nothing changed, so nothing should be saved")
	}
}

func TestOrderBatch(t *testing.T) {
	batch := orderBatch([]domain.Message{
		selfMsg(9, "a"), selfMsg(3, "b"), selfMsg(9, "dup"), selfMsg(2, "old"), selfMsg(5, "c"),
	}, 2)
	var ids []domain.MessageID
	for _, m := range batch {
		ids = append(ids, m.ID)
	}
	if !slices.Equal(ids, []domain.MessageID{3, 5, 9}) {
		t.Errorf("expected [3 5 9], got %v", ids)
	}
}

func TestPollOnce_CheckpointIsMaxProcessedProperty(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		since := domain.MessageID(rapid.Int64Range(0, 100).Draw(t, "since"))
		raw := rapid.SliceOf(rapid.Int64Range(1, 300)).Draw(t, "ids")

		var msgs []domain.Message
		want := since
		for _, id := range raw {
			msgs = append(msgs, selfMsg(domain.MessageID(id), "!help"))
			if domain.MessageID(id) > want {
				want = domain.MessageID(id)
			}
		}

		f := newLoopFixture(since, msgs...)
		if _, err := f.loop.PollOnce(context.Background()); err != nil {
			t.Fatal(err)
		}
		if f.cp.LastSeen() != want {
			t.Fatalf("expected checkpoint %d, got %d", want, f.cp.LastSeen())
		}

		ids := f.history.messageIDs()
		if !slices.IsSorted(ids) {
			t.Fatalf("messages processed out of order: %v", ids)
		}
		if len(slices.Compact(slices.Clone(ids))) != len(ids) {
			t.Fatalf("message processed twice: %v", ids)
		}
		for _, id := range ids {
			if id <= since {
				t.Fatalf("message %d at or below checkpoint %d was processed", id, since)
			}
		}
	})
}
