package repositories

import (
	"context"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"

	"medisync-backend/internal/models"
)

const notificationColumns = `id, patient_id, message, channel, delivery_status,
	is_read, sent_at, delivered_at, delivery_attempts, created_at`

// NotificationStore persists patient notifications with delivery tracking.
type NotificationStore interface {
	Create(ctx context.Context, n *models.Notification) error
	ListByPatient(ctx context.Context, patientID int64, limit int) ([]*models.Notification, error)
	MarkRead(ctx context.Context, id, patientID int64) error
	MarkAllRead(ctx context.Context, patientID int64) error
	ConfirmDelivery(ctx context.Context, id, patientID int64, at time.Time) error
}

type NotificationRepository struct {
	DB *pgxpool.Pool
}

func NewNotificationRepository(db *pgxpool.Pool) *NotificationRepository {
	return &NotificationRepository{DB: db}
}

func (r *NotificationRepository) Create(ctx context.Context, n *models.Notification) error {
	query := `
		INSERT INTO notifications
			(patient_id, message, channel, delivery_status, sent_at, delivery_attempts)
		VALUES ($1, $2, $3, $4, $5, $6)
		RETURNING id, created_at
	`
	return r.DB.QueryRow(ctx, query,
		n.PatientID, n.Message, n.Channel, n.DeliveryStatus, n.SentAt, n.DeliveryAttempts,
	).Scan(&n.ID, &n.CreatedAt)
}

func (r *NotificationRepository) ListByPatient(ctx context.Context, patientID int64, limit int) ([]*models.Notification, error) {
	if limit <= 0 {
		limit = 10
	}
	rows, err := r.DB.Query(ctx, `
		SELECT `+notificationColumns+`
		FROM notifications
		WHERE patient_id = $1
		ORDER BY created_at DESC
		LIMIT $2
	`, patientID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []*models.Notification
	for rows.Next() {
		n := &models.Notification{}
		if err := rows.Scan(
			&n.ID, &n.PatientID, &n.Message, &n.Channel, &n.DeliveryStatus,
			&n.IsRead, &n.SentAt, &n.DeliveredAt, &n.DeliveryAttempts, &n.CreatedAt,
		); err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, rows.Err()
}

func (r *NotificationRepository) MarkRead(ctx context.Context, id, patientID int64) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE id = $1 AND patient_id = $2
	`, id, patientID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (r *NotificationRepository) MarkAllRead(ctx context.Context, patientID int64) error {
	_, err := r.DB.Exec(ctx, `
		UPDATE notifications SET is_read = TRUE
		WHERE patient_id = $1 AND is_read = FALSE
	`, patientID)
	return err
}

func (r *NotificationRepository) ConfirmDelivery(ctx context.Context, id, patientID int64, at time.Time) error {
	tag, err := r.DB.Exec(ctx, `
		UPDATE notifications
		SET delivery_status = 'delivered', delivered_at = $3
		WHERE id = $1 AND patient_id = $2
	`, id, patientID, at)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return models.ErrNotFound
	}
	return nil
}

// MemoryNotificationStore is the in-memory NotificationStore for tests.
type MemoryNotificationStore struct {
	mu     sync.Mutex
	nextID int64
	rows   map[int64]*models.Notification

	CreateErr error
}

func NewMemoryNotificationStore() *MemoryNotificationStore {
	return &MemoryNotificationStore{rows: make(map[int64]*models.Notification)}
}

func (m *MemoryNotificationStore) Create(_ context.Context, n *models.Notification) error {
	if m.CreateErr != nil {
		return m.CreateErr
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	n.ID = m.nextID
	if n.CreatedAt.IsZero() {
		n.CreatedAt = time.Now()
	}
	clone := *n
	m.rows[n.ID] = &clone
	return nil
}

func (m *MemoryNotificationStore) ListByPatient(_ context.Context, patientID int64, limit int) ([]*models.Notification, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []*models.Notification
	for _, n := range m.rows {
		if n.PatientID == patientID {
			clone := *n
			out = append(out, &clone)
		}
	}
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (m *MemoryNotificationStore) MarkRead(_ context.Context, id, patientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.PatientID != patientID {
		return models.ErrNotFound
	}
	n.IsRead = true
	return nil
}

func (m *MemoryNotificationStore) MarkAllRead(_ context.Context, patientID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, n := range m.rows {
		if n.PatientID == patientID {
			n.IsRead = true
		}
	}
	return nil
}

func (m *MemoryNotificationStore) ConfirmDelivery(_ context.Context, id, patientID int64, at time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	n, ok := m.rows[id]
	if !ok || n.PatientID != patientID {
		return models.ErrNotFound
	}
	n.DeliveryStatus = models.DeliveryDelivered
	n.DeliveredAt = &at
	return nil
}
