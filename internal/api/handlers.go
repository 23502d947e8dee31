package api

import (
	"errors"
	"io"
	"net/http"
	"net/url"
	"time"

	"github.com/bytedance/sonic"
	"github.com/go-chi/chi/v5"

	"recordstore/logging"
	"recordstore/recordstore"
	"recordstore/utils"
)

// Error message constants
const (
	ErrInvalidRequestBody  = "Invalid request body"
	ErrRecordNotFound      = "Record not found"
	ErrStoreUnavailable    = "Record store not available"
	ErrOperationFailed     = "Record store operation failed"
	ErrInvalidRecordFields = "Invalid record fields"
	ErrInvalidRecordID     = "Invalid record ID in path"
)

// Constants for headers
const (
	HeaderContentType = "Content-Type"
	ContentTypeJSON   = "application/json"
)

// Success message constants
const (
	MsgRecordRetrieved  = "Record retrieved successfully"
	MsgRecordsRetrieved = "Records retrieved successfully"
	MsgRecordWritten    = "Record written successfully"
	MsgRecordUpdated    = "Record updated successfully"
	MsgRecordDeleted    = "Record deleted successfully"
	MsgRecordsDeleted   = "Records deleted successfully"
	MsgStatsRetrieved   = "Statistics retrieved successfully"
)

// API route constants
const (
	HealthPath  = "/health"
	RecordsPath = "/api/v1/records"
	StatsPath   = "/api/v1/stats"
)

const maxBodyBytes = 1 << 20

// Handler holds the dependencies for API handlers
type Handler struct {
	logger  logging.Logger
	manager *recordstore.Manager
	store   *recordstore.Store
}

// NewHandler creates a new Handler instance
func NewHandler(logger logging.Logger, manager *recordstore.Manager) *Handler {
	return &Handler{
		logger:  logger.WithField("component", "api"),
		manager: manager,
		store:   manager.Store(),
	}
}

// Routes builds the chi router serving the record API.
func (h *Handler) Routes() http.Handler {
	r := chi.NewRouter()
	h.SetupRoutes(r)
	return r
}

// SetupRoutes sets up the API routes
func (h *Handler) SetupRoutes(r chi.Router) {
	r.Use(traceMiddleware)
	r.Use(h.requestLogger)
	r.Use(recoverer(h.logger))
	r.Use(corsMiddleware)

	r.Get(HealthPath, h.HealthCheck)
	r.Get(StatsPath, h.GetStats)

	r.Route(RecordsPath, func(r chi.Router) {
		r.Get("/", h.ListRecords)
		r.Post("/", h.CreateRecord)
		r.Delete("/", h.DeleteAllRecords)

		r.Get("/{id}", h.GetRecord)
		r.Put("/{id}", h.PutRecord)
		r.Patch("/{id}", h.UpdateRecord)
		r.Delete("/{id}", h.DeleteRecord)
	})
}

// writeJSON writes a JSON response
func writeJSON(w http.ResponseWriter, status int, data interface{}) {
	body, err := sonic.Marshal(data)
	if err != nil {
		http.Error(w, ErrOperationFailed, http.StatusInternalServerError)
		return
	}
	w.Header().Set(HeaderContentType, ContentTypeJSON)
	w.WriteHeader(status)
	_, _ = w.Write(body)
}

// writeStoreError maps a record store failure to a status code.
func (h *Handler) writeStoreError(w http.ResponseWriter, r *http.Request, err error) {
	status, msg := http.StatusInternalServerError, ErrOperationFailed
	switch {
	case errors.Is(err, recordstore.ErrInvalidArgument):
		status, msg = http.StatusBadRequest, ErrInvalidRecordFields
	case errors.Is(err, recordstore.ErrNotConnected), errors.Is(err, recordstore.ErrConnection):
		status, msg = http.StatusServiceUnavailable, ErrStoreUnavailable
	}
	utils.WithTraceLogger(h.logger, r.Context()).WithError(err).Warnw("Request failed", "status", status, "path", r.URL.Path)
	writeJSON(w, status, ErrorResponse{Error: msg, Details: err.Error()})
}

// HealthCheck reports whether the record store answers a ping.
func (h *Handler) HealthCheck(w http.ResponseWriter, r *http.Request) {
	health := HealthResponse{
		Status:    "healthy",
		Timestamp: time.Now(),
		Version:   Version,
		Store:     h.manager.State().Backend,
	}
	if err := h.manager.Ping(r.Context()); err != nil {
		health.Status = "unhealthy"
		health.Error = err.Error()
		writeJSON(w, http.StatusServiceUnavailable, health)
		return
	}
	writeJSON(w, http.StatusOK, health)
}

// GetStats returns the record count and connection details.
func (h *Handler) GetStats(w http.ResponseWriter, r *http.Request) {
	count, err := h.store.Count(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	st := h.manager.State()
	opts := h.manager.Options()
	writeJSON(w, http.StatusOK, SuccessResponse{
		Message: MsgStatsRetrieved,
		Data: StatsResponse{
			Records:     count,
			Backend:     st.Backend,
			URI:         st.URI,
			Collection:  opts.Collection,
			SchemaName:  opts.SchemaName,
			ConnectedAt: st.ConnectedAt,
		},
	})
}

// ListRecords handles GET /api/v1/records
func (h *Handler) ListRecords(w http.ResponseWriter, r *http.Request) {
	recs, err := h.store.ReadAll(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: MsgRecordsRetrieved, Data: recs})
}

// DeleteAllRecords handles DELETE /api/v1/records
func (h *Handler) DeleteAllRecords(w http.ResponseWriter, r *http.Request) {
	summary, err := h.store.DeleteAll(r.Context())
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: MsgRecordsDeleted, Data: summary})
}

// pathID returns the decoded {id} segment. chi routes on the escaped path
// whenever the request has one, so an ID holding "/" arrives as "%2F".
func pathID(r *http.Request) (string, error) {
	id := chi.URLParam(r, "id")
	if r.URL.RawPath == "" {
		return id, nil
	}
	return url.PathUnescape(id)
}

func (h *Handler) requirePathID(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, err := pathID(r)
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrInvalidRecordID, Details: err.Error()})
		return "", false
	}
	return id, true
}

// GetRecord handles GET /api/v1/records/{id}
func (h *Handler) GetRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requirePathID(w, r)
	if !ok {
		return
	}
	rec, err := h.store.Read(r.Context(), id)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	if rec == nil {
		writeJSON(w, http.StatusNotFound, ErrorResponse{Error: ErrRecordNotFound})
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: MsgRecordRetrieved, Data: rec})
}

// CreateRecord handles POST /api/v1/records with the ID in the body.
func (h *Handler) CreateRecord(w http.ResponseWriter, r *http.Request) {
	payload, ok := h.decode(w, r)
	if !ok {
		return
	}
	if !payload.hasID {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrInvalidRequestBody, Details: errMissingID.Error()})
		return
	}
	h.write(w, r, payload.id, payload.data, http.StatusCreated)
}

// PutRecord handles PUT /api/v1/records/{id}. A body ID, if present, must match the path.
func (h *Handler) PutRecord(w http.ResponseWriter, r *http.Request) {
	id, payload, ok := h.decodeForPath(w, r)
	if !ok {
		return
	}
	h.write(w, r, id, payload.data, http.StatusOK)
}

func (h *Handler) write(w http.ResponseWriter, r *http.Request, id string, data float64, status int) {
	rec, err := h.store.Write(r.Context(), id, data)
	if err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, status, SuccessResponse{Message: MsgRecordWritten, Data: rec})
}

// UpdateRecord handles PATCH /api/v1/records/{id}
func (h *Handler) UpdateRecord(w http.ResponseWriter, r *http.Request) {
	id, payload, ok := h.decodeForPath(w, r)
	if !ok {
		return
	}
	if err := h.store.Update(r.Context(), id, payload.data); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: MsgRecordUpdated, Data: recordstore.Record{ID: id, Data: payload.data}})
}

// DeleteRecord handles DELETE /api/v1/records/{id}
func (h *Handler) DeleteRecord(w http.ResponseWriter, r *http.Request) {
	id, ok := h.requirePathID(w, r)
	if !ok {
		return
	}
	if err := h.store.Delete(r.Context(), id); err != nil {
		h.writeStoreError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SuccessResponse{Message: MsgRecordDeleted, Data: map[string]string{"ID": id}})
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request) (recordPayload, bool) {
	body, err := io.ReadAll(io.LimitReader(r.Body, maxBodyBytes))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrInvalidRequestBody, Details: err.Error()})
		return recordPayload{}, false
	}
	payload, err := parseRecordPayload(body)
	if err != nil {
		utils.WithTraceLogger(h.logger, r.Context()).Debugw("Rejected record payload", "error", err.Error())
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrInvalidRequestBody, Details: err.Error()})
		return recordPayload{}, false
	}
	return payload, true
}

func (h *Handler) decodeForPath(w http.ResponseWriter, r *http.Request) (string, recordPayload, bool) {
	id, ok := h.requirePathID(w, r)
	if !ok {
		return "", recordPayload{}, false
	}
	payload, ok := h.decode(w, r)
	if !ok {
		return "", payload, false
	}
	if payload.hasID && payload.id != id {
		writeJSON(w, http.StatusBadRequest, ErrorResponse{Error: ErrInvalidRequestBody, Details: errIDMismatch.Error()})
		return "", payload, false
	}
	return id, payload, true
}
