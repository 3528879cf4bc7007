package worker

import (
	"context"

	"go.uber.org/zap"

	"github.com/spec-kit/job-tracker/internal/service"
)

// StartNotificationWorker subscribes the notification service to the feed and
// runs it until ctx is done. The returned channel closes once the worker has
// stopped.
func StartNotificationWorker(ctx context.Context, notificationService *service.NotificationService, logger *zap.Logger) (<-chan struct{}, error) {
	done := make(chan struct{})
	if notificationService == nil {
		close(done)
		return done, nil
	}
	sub, err := notificationService.Subscribe(ctx)
	if err != nil {
		return nil, err
	}
	go func() {
		defer close(done)
		defer func() { _ = sub.Close() }()
		notificationService.Run(ctx, sub)
		logger.Info("notification worker stopped")
	}()
	return done, nil
}
