package publisher

import (
	"context"
	"time"

	"github.com/okoshkin/go_market/internal/repository"
	"github.com/segmentio/kafka-go"
	"go.uber.org/zap"
)

// Repo is what the poller needs from persistence: the outbox rows and
// the stale-session reaper.
type Repo interface {
	repository.OutboxRepository
	repository.SessionRepository
}

// messageWriter is satisfied by *kafka.Writer.
type messageWriter interface {
	WriteMessages(ctx context.Context, msgs ...kafka.Message) error
}

// OutboxPoller drains the transactional outbox into Kafka and fails
// checkout sessions stuck in SUBMITTING. Orders and their events are
// written in one database transaction; this poller is the only component
// that talks to the broker, so a broker outage delays events instead of
// losing them.
type OutboxPoller struct {
	eventTick    time.Duration
	recoveryTick time.Duration
	staleAfter   time.Duration
	repo         Repo
	writer       messageWriter
	logger       *zap.Logger
}

func NewOutboxPoller(repo Repo, logger *zap.Logger, brokers ...string) *OutboxPoller {
	w := &kafka.Writer{
		Addr:                   kafka.TCP(brokers...),
		Topic:                  "order-events",
		Balancer:               &kafka.LeastBytes{},
		AllowAutoTopicCreation: true,
	}
	return &OutboxPoller{
		eventTick:    time.Second,
		recoveryTick: 5 * time.Second,
		staleAfter:   10 * time.Minute,
		repo:         repo,
		writer:       w,
		logger:       logger,
	}
}

func (p *OutboxPoller) Run(ctx context.Context) {
	eventTicker := time.NewTicker(p.eventTick)
	recoveryTicker := time.NewTicker(p.recoveryTick)
	defer eventTicker.Stop()
	defer recoveryTicker.Stop()
	for {
		select {
		case <-eventTicker.C:
			p.processUnpublishedEvents(ctx)
		case <-recoveryTicker.C:
			p.recoverStuckSessions(ctx)
		case <-ctx.Done():
			return
		}
	}
}

func (p *OutboxPoller) processUnpublishedEvents(ctx context.Context) {
	events, err := p.repo.GetUnprocessedEvents(ctx, 100)
	if err != nil {
		p.logger.Error("fetch outbox events", zap.Error(err))
		return
	}

	for _, event := range events {
		if err := p.publishToKafka(ctx, event); err != nil {
			p.logger.Error("publish outbox event",
				zap.Int64("event_id", event.ID), zap.Error(err))
			continue
		}
		if err := p.repo.MarkEventAsProcessed(ctx, event.ID); err != nil {
			p.logger.Error("mark outbox event processed",
				zap.Int64("event_id", event.ID), zap.Error(err))
		}
	}
}

// recoverStuckSessions fails sessions that have sat in SUBMITTING past
// the deadline, e.g. when the process died mid-submission.
func (p *OutboxPoller) recoverStuckSessions(ctx context.Context) {
	n, err := p.repo.FailStaleSubmitting(ctx, p.staleAfter)
	if err != nil {
		p.logger.Error("fail stale submitting sessions", zap.Error(err))
		return
	}
	if n > 0 {
		p.logger.Warn("failed stale checkout sessions", zap.Int64("count", n))
	}
}

func (p *OutboxPoller) publishToKafka(ctx context.Context, event *repository.OutboxEvent) error {
	msg := kafka.Message{
		Key:   []byte(event.AggregateID), // order id, keeps per-order ordering
		Value: event.Payload,
		Headers: []kafka.Header{
			{Key: "event_type", Value: []byte(event.EventType)},
		},
	}
	return p.writer.WriteMessages(ctx, msg)
}
