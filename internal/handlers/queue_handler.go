package handlers

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"medisync-backend/internal/cache"
	"medisync-backend/internal/middleware"
	"medisync-backend/internal/models"
	"medisync-backend/internal/services"
	"medisync-backend/internal/timeutil"
)

type QueueHandler struct {
	Service *services.QueueService
	Archive *services.ArchiveService

	// StatsCacheTTL bounds staleness of the cached stats snapshot.
	StatsCacheTTL time.Duration
}

func NewQueueHandler(s *services.QueueService, archive *services.ArchiveService, statsCacheTTL time.Duration) *QueueHandler {
	if statsCacheTTL <= 0 {
		statsCacheTTL = 15 * time.Second
	}
	return &QueueHandler{Service: s, Archive: archive, StatsCacheTTL: statsCacheTTL}
}

// JoinQueue handles POST /api/queue/join. A fresh ticket returns 201; an
// idempotent re-join returns the existing entry with 200.
func (h *QueueHandler) JoinQueue(w http.ResponseWriter, r *http.Request) {
	var req models.JoinQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	patientID := req.PatientID
	if patientID == 0 {
		if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
			patientID = id
		}
	}
	if patientID == 0 {
		http.Error(w, "patient_id is required", http.StatusBadRequest)
		return
	}

	entry, existing, err := h.Service.JoinQueue(r.Context(), patientID, req.Department)
	if err != nil {
		writeQueueError(w, err)
		return
	}

	cache.InvalidateQueueCaches(r.Context(), req.Department)

	w.Header().Set("Content-Type", "application/json")
	if existing {
		w.WriteHeader(http.StatusOK)
	} else {
		w.WriteHeader(http.StatusCreated)
	}
	json.NewEncoder(w).Encode(entry)
}

// AdvanceQueue handles POST /api/queue/advance. Staff only; completes the
// current patient and calls the next. An empty queue returns 200 with
// success=false.
func (h *QueueHandler) AdvanceQueue(w http.ResponseWriter, r *http.Request) {
	var req models.AdvanceQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	resp, err := h.Service.AdvanceQueue(r.Context(), req.Department)
	if err != nil {
		writeQueueError(w, err)
		return
	}

	cache.InvalidateQueueCaches(r.Context(), req.Department)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(resp)
}

// CancelQueue handles POST /api/queue/cancel.
func (h *QueueHandler) CancelQueue(w http.ResponseWriter, r *http.Request) {
	var req models.JoinQueueRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	patientID := req.PatientID
	if patientID == 0 {
		if id, ok := middleware.GetUserIDFromContext(r.Context()); ok {
			patientID = id
		}
	}

	entry, err := h.Service.CancelQueue(r.Context(), patientID, req.Department)
	if err != nil {
		if errors.Is(err, models.ErrNoActiveEntry) {
			http.Error(w, "No active queue entry", http.StatusNotFound)
			return
		}
		writeQueueError(w, err)
		return
	}

	cache.InvalidateQueueCaches(r.Context(), req.Department)

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entry)
}

// GetAvailability handles GET /api/queue/availability. Returns the live
// waiting list with the caller's own position flagged.
func (h *QueueHandler) GetAvailability(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	entries, err := h.Service.WaitingList(r.Context(), department)
	if err != nil {
		writeQueueError(w, err)
		return
	}

	callerID, _ := middleware.GetUserIDFromContext(r.Context())
	position := 0
	for i, e := range entries {
		if e.PatientID == callerID {
			position = i + 1
			break
		}
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"department": department,
		"is_open":    true,
		"waiting":    len(entries),
		"position":   position,
		"entries":    entries,
	})
}

// ListWaiting handles GET /api/queue/patients. Staff view of the waiting
// list in service order.
func (h *QueueHandler) ListWaiting(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	entries, err := h.Service.WaitingList(r.Context(), department)
	if err != nil {
		writeQueueError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(entries)
}

// GetStats handles GET /api/queue/stats with a short Redis-backed cache.
func (h *QueueHandler) GetStats(w http.ResponseWriter, r *http.Request) {
	department := r.URL.Query().Get("department")
	if department == "" {
		http.Error(w, "department parameter is required", http.StatusBadRequest)
		return
	}

	key := cache.StatsKey(department)
	if data, ok := cache.GetCached(r.Context(), key); ok {
		w.Header().Set("Content-Type", "application/json")
		w.Header().Set("X-Cache", "HIT")
		w.Write(data)
		return
	}

	stats, err := h.Service.Stats(r.Context(), department)
	if err != nil {
		writeQueueError(w, err)
		return
	}

	data, _ := json.Marshal(stats)
	cache.SetCached(r.Context(), key, data, h.StatsCacheTTL)

	w.Header().Set("Content-Type", "application/json")
	w.Write(data)
}

// ArchiveDay handles POST /api/queue/archive. Admin only; exports a day's
// completed entries to object storage.
func (h *QueueHandler) ArchiveDay(w http.ResponseWriter, r *http.Request) {
	if h.Archive == nil {
		http.Error(w, "Archiving is not configured", http.StatusServiceUnavailable)
		return
	}

	var req struct {
		Department string `json:"department"`
		Date       string `json:"date"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "Invalid request body", http.StatusBadRequest)
		return
	}

	day := timeutil.Now()
	if req.Date != "" {
		parsed, err := time.ParseInLocation(timeutil.DateLayout, req.Date, timeutil.IST)
		if err != nil {
			http.Error(w, "Invalid date, expected YYYY-MM-DD", http.StatusBadRequest)
			return
		}
		day = parsed
	}

	key, count, err := h.Archive.ArchiveDay(r.Context(), req.Department, day)
	if err != nil {
		writeQueueError(w, err)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	json.NewEncoder(w).Encode(map[string]interface{}{
		"key":   key,
		"count": count,
	})
}

// writeQueueError maps service errors onto HTTP status codes.
func writeQueueError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, models.ErrInvalidDepartment):
		http.Error(w, "department is required", http.StatusBadRequest)
	case errors.Is(err, models.ErrPatientNotFound):
		http.Error(w, "Patient not found", http.StatusNotFound)
	case errors.Is(err, models.ErrStoreUnavailable):
		http.Error(w, "Queue is temporarily unavailable, please retry", http.StatusServiceUnavailable)
	default:
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
