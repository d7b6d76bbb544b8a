package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/civicgrid/civicgrid-api/internal/models"
	"github.com/civicgrid/civicgrid-api/pkg/jobs"
)

type stubNotificationStore struct {
	mu        sync.Mutex
	created   []models.Notification
	delivered []string
	createErr error
}

func (s *stubNotificationStore) Create(ctx context.Context, n *models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.createErr != nil {
		return s.createErr
	}
	if n.ID == "" {
		n.ID = "n-" + n.RecipientID
	}
	s.created = append(s.created, *n)
	return nil
}

func (s *stubNotificationStore) MarkDelivered(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.delivered = append(s.delivered, id)
	return nil
}

func (s *stubNotificationStore) ListByRecipient(ctx context.Context, recipientID string, limit int) ([]models.Notification, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []models.Notification
	for _, n := range s.created {
		if n.RecipientID == recipientID {
			out = append(out, n)
		}
	}
	return out, nil
}

type recordingSender struct {
	mu   sync.Mutex
	sent []models.Notification
}

func (s *recordingSender) Send(ctx context.Context, n models.Notification) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sent = append(s.sent, n)
	return nil
}

func (s *recordingSender) count() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.sent)
}

func TestNotificationServicePersistsAndDelivers(t *testing.T) {
	store := &stubNotificationStore{}
	sender := &recordingSender{}
	svc := NewNotificationService(store, sender, jobs.Options{Workers: 1}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	err := svc.Notify(context.Background(), models.Notification{
		IssueID:     "issue-1",
		RecipientID: "staff-1",
		Kind:        models.NotificationAssigned,
		Message:     "New pothole report assigned to you",
	})
	require.NoError(t, err)

	require.Eventually(t, func() bool { return sender.count() == 1 }, 2*time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.created, 1)
	require.Len(t, store.delivered, 1)
}

func TestNotificationServiceFanOut(t *testing.T) {
	store := &stubNotificationStore{}
	sender := &recordingSender{}
	svc := NewNotificationService(store, sender, jobs.Options{Workers: 2}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	recipients := []models.User{{ID: "sup-1"}, {ID: "sup-2"}, {ID: "sup-3"}}
	svc.NotifyAll(context.Background(), recipients, func(recipient models.User) models.Notification {
		return models.Notification{
			IssueID: "issue-1",
			Kind:    models.NotificationEscalated,
			Message: "Issue escalated to supervisor level",
		}
	})

	require.Eventually(t, func() bool { return sender.count() == 3 }, 2*time.Second, 10*time.Millisecond)

	store.mu.Lock()
	defer store.mu.Unlock()
	require.Len(t, store.created, 3)
	ids := map[string]bool{}
	for _, n := range store.created {
		ids[n.RecipientID] = true
	}
	require.Len(t, ids, 3)
}

func TestNotificationServicePersistFailureSurfaces(t *testing.T) {
	store := &stubNotificationStore{createErr: context.DeadlineExceeded}
	svc := NewNotificationService(store, &recordingSender{}, jobs.Options{Workers: 1}, nil)
	svc.Start(context.Background())
	defer svc.Stop()

	err := svc.Notify(context.Background(), models.Notification{IssueID: "issue-1", RecipientID: "u-1"})
	require.Error(t, err)
}
