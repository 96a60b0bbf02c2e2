package agent

import (
	"cmp"
	"context"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"dmcontrol/internal/domain"
	"dmcontrol/internal/metrics"

	"github.com/google/uuid"
)

const defaultInterval = 120 * time.Second

// Loop polls the inbox, dispatches commands from self-addressed messages,
// replies, and advances the checkpoint. Cycles run strictly one after another.
type Loop struct {
	inbox        domain.Inbox
	dispatcher   *Dispatcher
	checkpoint   *Checkpoint
	history      domain.HistoryStore
	ownerID      string
	prefix       string
	interval     time.Duration
	cycleTimeout time.Duration
	logger       *slog.Logger
}

// LoopConfig holds the loop's dependencies and timing.
type LoopConfig struct {
	Inbox        domain.Inbox
	Dispatcher   *Dispatcher
	Checkpoint   *Checkpoint
	History      domain.HistoryStore // optional
	OwnerID      string              // replies go here
	Prefix       string              // command_start_character
	Interval     time.Duration       // default 120s
	CycleTimeout time.Duration       // default Interval
	Logger       *slog.Logger
}

func NewLoop(cfg LoopConfig) *Loop {
	if cfg.Interval <= 0 {
		cfg.Interval = defaultInterval
	}
	if cfg.CycleTimeout <= 0 {
		cfg.CycleTimeout = cfg.Interval
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	return &Loop{
		inbox:        cfg.Inbox,
		dispatcher:   cfg.Dispatcher,
		checkpoint:   cfg.Checkpoint,
		history:      cfg.History,
		ownerID:      cfg.OwnerID,
		prefix:       cfg.Prefix,
		interval:     cfg.Interval,
		cycleTimeout: cfg.CycleTimeout,
		logger:       cfg.Logger,
	}
}

// Run polls until ctx is cancelled. Cancellation saves the checkpoint right
// away, even while the loop is sleeping or mid-cycle; a running cycle still
// finishes its replies before the loop stops. Shutdown always succeeds.
func (l *Loop) Run(ctx context.Context) {
	l.logger.Info("checking inbox",
		"provider", l.inbox.Name(),
		"interval", l.interval,
		"prefix", l.prefix,
		"reply_to", l.ownerID,
	)

	stop := context.AfterFunc(ctx, func() {
		l.logger.Warn("termination requested - saving the config")
		l.persist()
	})
	defer stop()

	for {
		if ctx.Err() != nil {
			l.logger.Info("shutdown detected - exiting")
			l.persist()
			return
		}

		l.cycle(ctx)

		timer := time.NewTimer(l.interval)
		select {
		case <-ctx.Done():
		case <-timer.C:
		}
		timer.Stop()
	}
}

func (l *Loop) cycle(ctx context.Context) {
	cycleCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), l.cycleTimeout)
	defer cancel()

	if _, err := l.PollOnce(cycleCtx); err != nil {
		l.logger.Warn("poll cycle failed, retrying next tick", "err", err)
	}
}

func (l *Loop) persist() {
	if err := l.checkpoint.Persist(); err != nil {
		l.logger.Error("failed to save checkpoint", "last_seen", l.checkpoint.LastSeen(), "err", err)
	}
}

// PollOnce runs one fetch, dispatch, reply and checkpoint cycle and returns
// the number of self-addressed messages processed.
func (l *Loop) PollOnce(ctx context.Context) (int, error) {
	cycleID := uuid.NewString()
	logger := l.logger.With("cycle", cycleID)
	start := time.Now()
	defer func() {
		metrics.PollLatency.Observe(time.Since(start).Seconds())
	}()

	since := l.checkpoint.LastSeen()
	logger.Debug("checking inbox now", "since", since)

	metrics.PollsTotal.Inc()
	msgs, err := l.inbox.Fetch(ctx, since)
	if err != nil {
		metrics.PollErrors.Inc()
		return 0, fmt.Errorf("fetch messages: %w", err)
	}

	batch := orderBatch(msgs, since)
	logger.Debug("got messages", "count", len(batch))

	processed := 0
	for _, msg := range batch {
		if !msg.SelfAddressed() {
			continue
		}
		logger.Debug("found a self-addressed message", "id", msg.ID)

		for _, cmd := range ParseCommands(msg.Text, l.prefix) {
			reply := l.dispatcher.Dispatch(ctx, cmd)
			if err := l.inbox.Send(ctx, l.ownerID, reply); err != nil {
				metrics.ReplyFailures.Inc()
				logger.Error("failed to send reply", "command", cmd.Name, "err", err)
			} else {
				logger.Debug("sent reply", "reply", reply)
			}
			l.record(ctx, cycleID, msg.ID, cmd, reply)
		}

		l.checkpoint.Advance(msg.ID)
		metrics.MessagesProcessed.Inc()
		processed++
	}

	metrics.LastSeen.Set(int64(l.checkpoint.LastSeen()))

	if processed == 0 {
		return 0, nil
	}
	logger.Debug("saving the config - last_seen has changed", "last_seen", l.checkpoint.LastSeen())
	if err := l.checkpoint.Persist(); err != nil {
		return processed, fmt.Errorf("save checkpoint: %w", err)
	}
	return processed, nil
}

func (l *Loop) record(ctx context.Context, cycleID string, id domain.MessageID, cmd domain.Command, reply string) {
	if l.history == nil {
		return
	}
	err := l.history.Record(ctx, domain.CommandRecord{
		CycleID:   cycleID,
		MessageID: id,
		Name:      cmd.Name,
		Args:      cmd.Args,
		Reply:     reply,
		CreatedAt: time.Now(),
	})
	if err != nil {
		l.logger.Warn("failed to record command", "message_id", id, "err", err)
	}
}

// orderBatch drops messages at or below the checkpoint, removes duplicate
// ids, and sorts ascending so processing order is deterministic.
func orderBatch(msgs []domain.Message, since domain.MessageID) []domain.Message {
	seen := make(map[domain.MessageID]bool, len(msgs))
	batch := make([]domain.Message, 0, len(msgs))
	for _, m := range msgs {
		if m.ID <= since || seen[m.ID] {
			continue
		}
		seen[m.ID] = true
		batch = append(batch, m)
	}
	slices.SortFunc(batch, func(a, b domain.Message) int {
		return cmp.Compare(a.ID, b.ID)
	})
	return batch
}
