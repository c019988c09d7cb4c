package app

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/skobkin/cncbridge/internal/bus"
	"github.com/skobkin/cncbridge/internal/connectors"
	"github.com/skobkin/cncbridge/internal/persistence"
)

// JournalStore is the write side of the traffic journal.
type JournalStore interface {
	Insert(ctx context.Context, rec connectors.MessageRecord) (int64, error)
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// JournalRecorder persists every gateway message record published on the bus.
type JournalRecorder struct {
	bus       bus.MessageBus
	writer    *persistence.WriterQueue
	store     JournalStore
	retention time.Duration
	logger    *slog.Logger
	now       func() time.Time
	stopped   chan struct{}
}

// journalBarrier is published behind pending records; the recorder acks it once
// everything ahead of it on the same topic has been enqueued.
type journalBarrier struct {
	ack chan struct{}
}

var errRecorderStopped = errors.New("journal recorder stopped")

func NewJournalRecorder(
	messageBus bus.MessageBus,
	writer *persistence.WriterQueue,
	store JournalStore,
	retentionDays int,
	logger *slog.Logger,
) *JournalRecorder {
	if logger == nil {
		logger = slog.Default().With("component", "app.journal")
	}

	return &JournalRecorder{
		bus:       messageBus,
		writer:    writer,
		store:     store,
		retention: time.Duration(retentionDays) * 24 * time.Hour,
		logger:    logger,
		now:       time.Now,
	}
}

// Start prunes entries past retention and records traffic until ctx is done.
func (r *JournalRecorder) Start(ctx context.Context) {
	if r == nil || r.bus == nil || r.writer == nil || r.store == nil {
		return
	}

	if r.retention > 0 {
		cutoff := r.now().Add(-r.retention)
		r.writer.Enqueue("journal.prune", func(ctx context.Context) error {
			removed, err := r.store.DeleteOlderThan(ctx, cutoff)
			if err != nil {
				return err
			}
			if removed > 0 {
				r.logger.Info("journal pruned", "removed", removed, "cutoff", cutoff)
			}
			return nil
		})
	}

	inSub := r.bus.Subscribe(connectors.TopicMessageIn)
	outSub := r.bus.Subscribe(connectors.TopicMessageOut)
	r.stopped = make(chan struct{})

	go func() {
		defer close(r.stopped)
		defer r.bus.Unsubscribe(inSub, connectors.TopicMessageIn)
		defer r.bus.Unsubscribe(outSub, connectors.TopicMessageOut)

		for {
			select {
			case <-ctx.Done():
				return
			case raw, ok := <-inSub:
				if !ok {
					return
				}
				r.record(raw)
			case raw, ok := <-outSub:
				if !ok {
					return
				}
				r.record(raw)
			}
		}
	}()
}

// Sync returns once every record published before the call has been written.
func (r *JournalRecorder) Sync(ctx context.Context) error {
	if r == nil || r.stopped == nil {
		return nil
	}

	acks := make([]chan struct{}, 0, 2)
	for _, topic := range []string{connectors.TopicMessageIn, connectors.TopicMessageOut} {
		ack := make(chan struct{})
		r.bus.Publish(topic, journalBarrier{ack: ack})
		acks = append(acks, ack)
	}
	for _, ack := range acks {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-r.stopped:
			return errRecorderStopped
		case <-ack:
		}
	}

	return r.writer.WaitContext(ctx)
}

func (r *JournalRecorder) record(raw any) {
	if barrier, ok := raw.(journalBarrier); ok {
		close(barrier.ack)
		return
	}
	rec, ok := raw.(connectors.MessageRecord)
	if !ok {
		return
	}
	r.writer.Enqueue("journal.insert", func(ctx context.Context) error {
		_, err := r.store.Insert(ctx, rec)
		return err
	})
}
