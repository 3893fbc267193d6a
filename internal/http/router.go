package http

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"medisync-backend/internal/handlers"
	"medisync-backend/internal/middleware"
)

func NewRouter(
	queueHandler *handlers.QueueHandler,
	notificationHandler *handlers.NotificationHandler,
	streamHandler *handlers.StreamHandler,
	healthHandler *handlers.HealthHandler,
	authMiddleware *middleware.AuthMiddleware,
) *mux.Router {
	r := mux.NewRouter()

	// Health endpoints for Kubernetes probes (no auth)
	r.HandleFunc("/health", healthHandler.BasicHealth).Methods("GET")
	r.HandleFunc("/health/ready", healthHandler.ReadinessHealth).Methods("GET")
	r.HandleFunc("/health/detailed", healthHandler.DetailedHealth).Methods("GET")

	// Websocket event stream. The dashboard authenticates over the first
	// frame at the application level, not with a bearer header.
	r.HandleFunc("/ws/queue", streamHandler.StreamQueue).Methods("GET")

	// Protected API routes - Queue
	queueAPI := r.PathPrefix("/api/queue").Subrouter()
	queueAPI.Use(authMiddleware.Authenticate)
	queueAPI.HandleFunc("/join", queueHandler.JoinQueue).Methods("POST")
	queueAPI.HandleFunc("/cancel", queueHandler.CancelQueue).Methods("POST")
	queueAPI.HandleFunc("/availability", queueHandler.GetAvailability).Methods("GET")
	queueAPI.HandleFunc("/stats", queueHandler.GetStats).Methods("GET")

	// Operator-only queue routes
	queueAPI.HandleFunc("/advance", authMiddleware.RequireRole("nurse", "doctor", "admin")(http.HandlerFunc(queueHandler.AdvanceQueue)).ServeHTTP).Methods("POST")
	queueAPI.HandleFunc("/patients", authMiddleware.RequireRole("nurse", "doctor", "admin")(http.HandlerFunc(queueHandler.ListWaiting)).ServeHTTP).Methods("GET")
	queueAPI.HandleFunc("/archive", authMiddleware.RequireRole("admin")(http.HandlerFunc(queueHandler.ArchiveDay)).ServeHTTP).Methods("POST")

	// Protected API routes - Notifications
	notificationsAPI := r.PathPrefix("/api/notifications").Subrouter()
	notificationsAPI.Use(authMiddleware.Authenticate)
	notificationsAPI.HandleFunc("", notificationHandler.ListNotifications).Methods("GET")
	notificationsAPI.HandleFunc("/read-all", notificationHandler.MarkAllRead).Methods("POST")
	notificationsAPI.HandleFunc("/{id}/read", notificationHandler.MarkRead).Methods("PATCH")
	notificationsAPI.HandleFunc("/{id}/confirm-delivery", notificationHandler.ConfirmDelivery).Methods("POST")

	// Prometheus metrics
	r.Handle("/metrics", promhttp.Handler())

	return r
}
