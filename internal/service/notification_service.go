package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/jobs"
)

type notificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	MarkDelivered(ctx context.Context, id string) error
	ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error)
}

// Sender delivers a notification over an out-of-band channel (push, email,
// SMS). Implementations must be safe for concurrent use.
type Sender interface {
	Send(ctx context.Context, n models.Notification) error
}

// LogSender is the default Sender: it only logs. Deployments plug in a real
// channel via the Sender interface.
type LogSender struct {
	Logger *zap.Logger
}

// Send logs the notification.
func (s LogSender) Send(_ context.Context, n models.Notification) error {
	logger := s.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger.Info("notification",
		zap.String("recipient_id", n.RecipientID),
		zap.String("issue_id", n.IssueID),
		zap.String("kind", string(n.Kind)),
		zap.String("message", n.Message))
	return nil
}

// NotificationService persists notifications and hands them to the dispatch
// pool. The row is written synchronously so the in-app feed never misses an
// event; out-of-band delivery rides the dispatcher and may lag or fail
// without affecting the caller.
type NotificationService struct {
	store      notificationStore
	sender     Sender
	dispatcher *jobs.Dispatcher
	logger     *zap.Logger
}

// NewNotificationService wires the service and its dispatcher. Start must be
// called before notifications flow.
func NewNotificationService(store notificationStore, sender Sender, opts jobs.Options, logger *zap.Logger) *NotificationService {
	if logger == nil {
		logger = zap.NewNop()
	}
	if sender == nil {
		sender = LogSender{Logger: logger}
	}
	s := &NotificationService{store: store, sender: sender, logger: logger}
	s.dispatcher = jobs.NewDispatcher("notifications", s.deliver, opts, logger)
	return s
}

// Start launches the delivery workers.
func (s *NotificationService) Start(ctx context.Context) {
	s.dispatcher.Start(ctx)
}

// Stop drains the delivery workers.
func (s *NotificationService) Stop() {
	s.dispatcher.Stop()
}

// Notify persists the notification and queues its delivery. Only the persist
// step can fail the call.
func (s *NotificationService) Notify(ctx context.Context, n models.Notification) error {
	if err := s.store.Create(ctx, &n); err != nil {
		return fmt.Errorf("persist notification: %w", err)
	}

	if err := s.dispatcher.Submit(jobs.Task{ID: n.ID, Kind: string(n.Kind), Payload: n}); err != nil {
		s.logger.Warn("notification delivery not queued",
			zap.String("notification_id", n.ID), zap.Error(err))
	}
	return nil
}

// NotifyAll fans one event out to several recipients. Persist failures for
// individual recipients are logged and skipped so one bad row cannot starve
// the rest of the fan-out.
func (s *NotificationService) NotifyAll(ctx context.Context, recipients []models.User, build func(recipient models.User) models.Notification) {
	for _, recipient := range recipients {
		n := build(recipient)
		n.RecipientID = recipient.ID
		if err := s.Notify(ctx, n); err != nil {
			s.logger.Error("notification fan-out entry failed",
				zap.String("recipient_id", recipient.ID),
				zap.String("issue_id", n.IssueID),
				zap.Error(err))
		}
	}
}

// ListForRecipient returns the recipient's recent feed.
func (s *NotificationService) ListForRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	return s.store.ListByRecipient(ctx, recipientID, limit)
}

// deliver is the dispatcher handler: send, then flag the row.
func (s *NotificationService) deliver(ctx context.Context, task jobs.Task) error {
	n, ok := task.Payload.(models.Notification)
	if !ok {
		s.logger.Error("notification task with unexpected payload", zap.String("task_id", task.ID))
		return nil
	}

	if err := s.sender.Send(ctx, n); err != nil {
		return fmt.Errorf("send notification %s: %w", n.ID, err)
	}

	if err := s.store.MarkDelivered(ctx, n.ID); err != nil {
		s.logger.Warn("notification sent but not flagged delivered",
			zap.String("notification_id", n.ID), zap.Error(err))
	}
	return nil
}
