package handlers

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	"github.com/dvloznov/finance-migrator/internal/api/middleware"
	"github.com/dvloznov/finance-migrator/internal/jobs"
)

const maxListLimit = 100

// MigrationsHandler handles migration job endpoints.
type MigrationsHandler struct {
	publisher jobs.Publisher
	store     jobs.JobStore
	log       zerolog.Logger
}

// NewMigrationsHandler creates a new migrations handler.
func NewMigrationsHandler(publisher jobs.Publisher, store jobs.JobStore, log zerolog.Logger) *MigrationsHandler {
	return &MigrationsHandler{
		publisher: publisher,
		store:     store,
		log:       log,
	}
}

// CreateMigration handles POST /api/migrations
func (h *MigrationsHandler) CreateMigration(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	callerID := middleware.CallerIDFromContext(ctx)

	job := &jobs.MigrationJob{CallerID: callerID}
	if err := h.publisher.PublishMigration(ctx, job); err != nil {
		if errors.Is(err, jobs.ErrCallerBusy) {
			middleware.WriteError(w, http.StatusConflict, "A migration is already running for this user")
			return
		}
		h.log.Error().Err(err).Str("caller_id", callerID).Msg("Failed to enqueue migration")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to enqueue migration")
		return
	}

	h.log.Info().
		Str("job_id", job.JobID).
		Str("caller_id", callerID).
		Msg("Migration job enqueued")

	middleware.WriteJSON(w, http.StatusAccepted, map[string]string{
		"job_id": job.JobID,
		"status": string(job.Status),
	})
}

// GetMigration handles GET /api/migrations/{id}. Callers only see their own jobs.
func (h *MigrationsHandler) GetMigration(w http.ResponseWriter, r *http.Request, jobID string) {
	ctx := r.Context()

	job, err := h.store.GetJob(ctx, jobID)
	if err != nil || job.CallerID != middleware.CallerIDFromContext(ctx) {
		if err != nil && !errors.Is(err, jobs.ErrJobNotFound) {
			h.log.Error().Err(err).Str("job_id", jobID).Msg("Failed to get job")
		}
		middleware.WriteError(w, http.StatusNotFound, "Migration not found")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, job)
}

// ListMigrations handles GET /api/migrations. The caller_id filter defaults to
// the authenticated caller.
func (h *MigrationsHandler) ListMigrations(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	query := r.URL.Query()
	filter := jobs.JobFilter{
		CallerID: query.Get("caller_id"),
		Status:   jobs.JobStatus(query.Get("status")),
	}
	if filter.CallerID == "" {
		filter.CallerID = middleware.CallerIDFromContext(ctx)
	}

	if limitStr := query.Get("limit"); limitStr != "" {
		if limit, err := strconv.Atoi(limitStr); err == nil && limit > 0 {
			filter.Limit = min(limit, maxListLimit)
		}
	}
	if offsetStr := query.Get("offset"); offsetStr != "" {
		if offset, err := strconv.Atoi(offsetStr); err == nil && offset > 0 {
			filter.Offset = offset
		}
	}

	jobsList, err := h.store.ListJobs(ctx, filter)
	if err != nil {
		h.log.Error().Err(err).Msg("Failed to list jobs")
		middleware.WriteError(w, http.StatusInternalServerError, "Failed to list migrations")
		return
	}

	middleware.WriteJSON(w, http.StatusOK, map[string]interface{}{
		"migrations": jobsList,
		"count":      len(jobsList),
	})
}

// NewRouter wires the endpoints and the middleware chain.
func NewRouter(migrations *MigrationsHandler, gatherer prometheus.Gatherer, log zerolog.Logger) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/migrations", func(w http.ResponseWriter, r *http.Request) {
		switch r.Method {
		case http.MethodPost:
			migrations.CreateMigration(w, r)
		case http.MethodGet:
			migrations.ListMigrations(w, r)
		default:
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
		}
	})

	mux.HandleFunc("/api/migrations/", func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodGet {
			middleware.WriteError(w, http.StatusMethodNotAllowed, "Method not allowed")
			return
		}
		jobID := strings.TrimPrefix(r.URL.Path, "/api/migrations/")
		if jobID == "" {
			middleware.WriteError(w, http.StatusBadRequest, "Job ID is required")
			return
		}
		migrations.GetMigration(w, r, jobID)
	})

	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		middleware.WriteJSON(w, http.StatusOK, map[string]string{
			"status": "healthy",
			"time":   time.Now().Format(time.RFC3339),
		})
	})

	if gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	return middleware.Recovery(log)(
		middleware.RequestID(
			middleware.Logger(log)(
				middleware.CORS(
					middleware.Auth(mux),
				),
			),
		),
	)
}
