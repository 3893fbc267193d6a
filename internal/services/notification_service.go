package services

import (
	"context"
	"errors"
	"time"

	"medisync-backend/internal/models"
	"medisync-backend/internal/repositories"
	"medisync-backend/internal/timeutil"
)

// NotificationService exposes a patient's notification feed and read/ack
// state. All operations are scoped to the owning patient so one patient
// cannot touch another's rows.
type NotificationService struct {
	Store   repositories.NotificationStore
	NowFunc func() time.Time
}

func NewNotificationService(store repositories.NotificationStore) *NotificationService {
	return &NotificationService{Store: store, NowFunc: timeutil.Now}
}

func (s *NotificationService) List(ctx context.Context, patientID int64, limit int) ([]*models.Notification, error) {
	list, err := s.Store.ListByPatient(ctx, patientID, limit)
	if err != nil {
		return nil, storeErr(err)
	}
	return list, nil
}

func (s *NotificationService) MarkRead(ctx context.Context, id, patientID int64) error {
	err := s.Store.MarkRead(ctx, id, patientID)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return storeErr(err)
	}
	return err
}

func (s *NotificationService) MarkAllRead(ctx context.Context, patientID int64) error {
	if err := s.Store.MarkAllRead(ctx, patientID); err != nil {
		return storeErr(err)
	}
	return nil
}

// ConfirmDelivery records the client-side delivery acknowledgement for a
// websocket notification.
func (s *NotificationService) ConfirmDelivery(ctx context.Context, id, patientID int64) error {
	now := timeutil.Now()
	if s.NowFunc != nil {
		now = s.NowFunc()
	}
	err := s.Store.ConfirmDelivery(ctx, id, patientID, now)
	if err != nil && !errors.Is(err, models.ErrNotFound) {
		return storeErr(err)
	}
	return err
}
