package models

import "time"

// Notification delivery channels.
const (
	ChannelWebSocket = "websocket"
	ChannelEmail     = "email"
	ChannelSMS       = "sms"
	ChannelPush      = "push"
)

// Notification delivery states.
const (
	DeliveryPending   = "pending"
	DeliverySent      = "sent"
	DeliveryDelivered = "delivered"
	DeliveryFailed    = "failed"
)

// Notification is a persisted message to a patient about their queue
// status ("your ticket is being served"). Writing one is always
// best-effort: a failed insert never fails the queue operation that
// produced it.
type Notification struct {
	ID               int64      `json:"id"`
	PatientID        int64      `json:"patient_id"`
	Message          string     `json:"message"`
	Channel          string     `json:"channel"`
	DeliveryStatus   string     `json:"delivery_status"`
	IsRead           bool       `json:"is_read"`
	SentAt           *time.Time `json:"sent_at,omitempty"`
	DeliveredAt      *time.Time `json:"delivered_at,omitempty"`
	DeliveryAttempts int        `json:"delivery_attempts"`
	CreatedAt        time.Time  `json:"created_at"`
}
