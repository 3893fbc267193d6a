package handlers_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gorilla/mux"

	"medisync-backend/internal/handlers"
	"medisync-backend/internal/models"
	"medisync-backend/internal/repositories"
	"medisync-backend/internal/services"
)

func newNotificationRouter(t *testing.T) (*mux.Router, *repositories.MemoryNotificationStore) {
	t.Helper()
	store := repositories.NewMemoryNotificationStore()
	h := handlers.NewNotificationHandler(services.NewNotificationService(store))

	r := mux.NewRouter()
	r.HandleFunc("/api/notifications", h.ListNotifications).Methods("GET")
	r.HandleFunc("/api/notifications/read-all", h.MarkAllRead).Methods("POST")
	r.HandleFunc("/api/notifications/{id}/read", h.MarkRead).Methods("PATCH")
	r.HandleFunc("/api/notifications/{id}/confirm-delivery", h.ConfirmDelivery).Methods("POST")
	return r, store
}

func TestNotificationLifecycle(t *testing.T) {
	router, store := newNotificationRouter(t)
	ctx := context.Background()

	n := &models.Notification{
		PatientID:      1,
		Message:        "It is your turn",
		Channel:        models.ChannelWebSocket,
		DeliveryStatus: models.DeliverySent,
	}
	if err := store.Create(ctx, n); err != nil {
		t.Fatalf("seed: %v", err)
	}

	// List
	req := asPatient(httptest.NewRequest(http.MethodGet, "/api/notifications", nil), 1)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("list status = %d", rec.Code)
	}
	var list []*models.Notification
	json.Unmarshal(rec.Body.Bytes(), &list)
	if len(list) != 1 || list[0].Message != "It is your turn" {
		t.Fatalf("unexpected list: %+v", list)
	}

	// Confirm delivery
	req = asPatient(httptest.NewRequest(http.MethodPost, "/api/notifications/1/confirm-delivery", nil), 1)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("confirm status = %d", rec.Code)
	}

	// Mark read
	req = asPatient(httptest.NewRequest(http.MethodPatch, "/api/notifications/1/read", nil), 1)
	rec = httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNoContent {
		t.Fatalf("mark read status = %d", rec.Code)
	}

	rows, _ := store.ListByPatient(ctx, 1, 10)
	if !rows[0].IsRead || rows[0].DeliveryStatus != models.DeliveryDelivered {
		t.Fatalf("row not updated: %+v", rows[0])
	}
}

func TestNotificationOwnershipIsEnforced(t *testing.T) {
	router, store := newNotificationRouter(t)

	store.Create(context.Background(), &models.Notification{PatientID: 1, Message: "hi", Channel: models.ChannelWebSocket, DeliveryStatus: models.DeliverySent})

	// Patient 2 cannot touch patient 1's notification.
	req := asPatient(httptest.NewRequest(http.MethodPatch, "/api/notifications/1/read", nil), 2)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusNotFound {
		t.Fatalf("cross-patient mark read status = %d, want 404", rec.Code)
	}
}

func TestNotificationRequiresIdentity(t *testing.T) {
	router, _ := newNotificationRouter(t)

	req := httptest.NewRequest(http.MethodGet, "/api/notifications", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("anonymous list status = %d, want 401", rec.Code)
	}
}
