package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/events"
	"github.com/spec-kit/job-tracker/internal/observability"
)

// NotificationService records every job change seen on the feed, whichever
// replica made it.
type NotificationService struct {
	feed     events.Feed
	logger   *zap.Logger
	metrics  *observability.Metrics
	handlers map[events.EventType]events.EventHandler
}

// NewNotificationService creates the service.
func NewNotificationService(feed events.Feed, logger *zap.Logger, metrics *observability.Metrics) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	n := &NotificationService{feed: feed, logger: logger, metrics: metrics}
	n.handlers = map[events.EventType]events.EventHandler{
		events.EventJobCreated:       n.handleJobCreated,
		events.EventJobsImported:     n.handleJobsImported,
		events.EventJobAllocated:     n.handleJobAllocated,
		events.EventJobClaimed:       n.handleJobAllocated,
		events.EventJobStatusChanged: n.handleJobStatusChanged,
		events.EventJobEdited:        n.handleJobChanged,
		events.EventJobDeleted:       n.handleJobChanged,
	}
	return n
}

// Subscribe opens the feed subscription the service consumes.
func (n *NotificationService) Subscribe(ctx context.Context) (events.Subscription, error) {
	return n.feed.Subscribe(ctx, events.MaskAll)
}

// Run handles events from sub until it ends or ctx is done.
func (n *NotificationService) Run(ctx context.Context, sub events.Subscription) {
	events.Consume(ctx, sub, n.Handle, func(event events.Event, err error) {
		n.logger.Warn("job event handler failed",
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
			zap.Error(err))
	})
}

// Handle dispatches one event.
func (n *NotificationService) Handle(ctx context.Context, event events.Event) error {
	n.metrics.RecordJobEvent(string(event.Type))
	handler, ok := n.handlers[event.Type]
	if !ok {
		n.logger.Debug("unhandled job event", zap.String("event_type", string(event.Type)))
		return nil
	}
	return handler(ctx, event)
}

func (n *NotificationService) handleJobCreated(_ context.Context, event events.Event) error {
	n.logger.Info("JobCreated", zap.Strings("job_ids", event.JobIDs), zap.String("actor_id", event.ActorID))
	return nil
}

func (n *NotificationService) handleJobsImported(_ context.Context, event events.Event) error {
	n.logger.Info("JobsImported",
		zap.Int("count", len(event.JobIDs)),
		zap.String("actor_id", event.ActorID))
	return nil
}

func (n *NotificationService) handleJobAllocated(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type),
		zap.Strings("job_ids", event.JobIDs),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleJobStatusChanged(_ context.Context, event events.Event) error {
	n.logger.Info("JobStatusChanged",
		zap.Strings("job_ids", event.JobIDs),
		zap.String("actor_id", event.ActorID),
		zap.Any("payload", event.Payload))
	return nil
}

func (n *NotificationService) handleJobChanged(_ context.Context, event events.Event) error {
	n.logger.Info(string(event.Type), zap.Strings("job_ids", event.JobIDs), zap.String("actor_id", event.ActorID))
	return nil
}
