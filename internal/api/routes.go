package api

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/cutline/cutline-agent/internal/autosave"
)

func NewRouter(cfg ServerConfig) *chi.Mux {
	r := chi.NewRouter()

	r.Use(RequestIDMiddleware())
	r.Use(RecoveryMiddleware(cfg.Logger))
	r.Use(LoggingMiddleware(cfg.Logger))

	r.Get("/health", healthHandler(cfg))

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware(cfg.Store, cfg.Logger))

		r.Get("/status", statusHandler(cfg))
		r.Post("/projects/{id}/open", openProjectHandler(cfg))
		r.Post("/projects/{id}/operations", queueOperationsHandler(cfg))
		r.Post("/projects/{id}/save", forceSaveHandler(cfg))
		r.Post("/projects/{id}/resolve-conflict", resolveConflictHandler(cfg))
		r.Delete("/projects/{id}", closeProjectHandler(cfg))
		r.Get("/projects/{id}/save-status", saveStatusHandler(cfg))
		r.Post("/export/edl", exportEDLHandler(cfg))
	})

	return r
}

func healthHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		uptime := int64(time.Since(cfg.StartTime).Seconds())
		WriteJSON(w, http.StatusOK, HealthResponse{
			Status:   "ok",
			Version:  "0.1.0",
			UptimeS:  uptime,
			DeviceID: cfg.DeviceID,
		})
	}
}

func statusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projects := cfg.Engine.Statuses()

		state := "idle"
		switch {
		case cfg.Engine.IsPaused():
			state = "paused"
		case !cfg.Engine.Online():
			state = "offline"
		default:
			for _, p := range projects {
				if p.HasConflicts {
					state = "conflict"
					break
				}
				if p.IsSaving {
					state = "saving"
				}
			}
		}

		WriteJSON(w, http.StatusOK, StatusResponse{
			State:    state,
			Online:   cfg.Engine.Online(),
			Paused:   cfg.Engine.IsPaused(),
			Projects: projects,
			Metrics:  cfg.Engine.Metrics(),
		})
	}
}

func openProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
			return
		}

		var req OpenProjectRequest
		if r.ContentLength > 0 {
			if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
				WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
				return
			}
		}

		policy := autosave.PolicyMerge
		if req.ConflictPolicy != "" {
			parsed, err := autosave.ParsePolicy(req.ConflictPolicy)
			if err != nil {
				WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
				return
			}
			policy = parsed
		}

		cb := autosave.Callbacks{OnConflictDetected: autosave.StaticPolicy(policy)}
		if err := cfg.Engine.InitializeProject(r.Context(), id, cb); err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		WriteJSON(w, http.StatusOK, cfg.Engine.Status(id))
	}
}

func queueOperationsHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
			return
		}

		var req OperationsRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}
		if len(req.Operations) == 0 {
			WriteError(w, http.StatusBadRequest, "operations must not be empty", "BAD_REQUEST")
			return
		}

		if cfg.Engine.Status(id) == nil {
			WriteError(w, http.StatusNotFound, "project not open for auto-save", "NOT_FOUND")
			return
		}

		for _, op := range req.Operations {
			cfg.Engine.QueueSave(id, op)
		}

		WriteJSON(w, http.StatusAccepted, OperationsResponse{Queued: len(req.Operations)})
	}
}

func forceSaveHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
			return
		}

		err := cfg.Engine.ForceSave(r.Context(), id)
		switch {
		case err == nil:
			WriteJSON(w, http.StatusOK, cfg.Engine.Status(id))
		case errors.Is(err, autosave.ErrNotInitialized):
			WriteError(w, http.StatusNotFound, "project not open for auto-save", "NOT_FOUND")
		case errors.Is(err, autosave.ErrSaveInFlight):
			WriteError(w, http.StatusConflict, "save already in progress", "SAVE_IN_FLIGHT")
		case errors.Is(err, autosave.ErrManualResolutionRequired):
			WriteError(w, http.StatusConflict, "manual conflict resolution required", "CONFLICT")
		case errors.Is(err, autosave.ErrConflictAborted):
			WriteError(w, http.StatusConflict, "save aborted due to remote conflict", "CONFLICT")
		default:
			WriteError(w, http.StatusBadGateway, err.Error(), "UPSTREAM_ERROR")
		}
	}
}

func resolveConflictHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
			return
		}

		var req ResolveConflictRequest
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			WriteError(w, http.StatusBadRequest, "invalid request body", "BAD_REQUEST")
			return
		}

		policy, err := autosave.ParsePolicy(req.Policy)
		if err != nil {
			WriteError(w, http.StatusBadRequest, err.Error(), "BAD_REQUEST")
			return
		}

		err = cfg.Engine.ResolveConflictManually(r.Context(), id, policy)
		switch {
		case err == nil:
			WriteJSON(w, http.StatusOK, cfg.Engine.Status(id))
		case errors.Is(err, autosave.ErrNotInitialized):
			WriteError(w, http.StatusNotFound, "project not open for auto-save", "NOT_FOUND")
		case errors.Is(err, autosave.ErrSaveInFlight):
			WriteError(w, http.StatusConflict, "save already in progress", "SAVE_IN_FLIGHT")
		default:
			WriteError(w, http.StatusBadGateway, err.Error(), "UPSTREAM_ERROR")
		}
	}
}

func closeProjectHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
			return
		}

		if cfg.Engine.Status(id) == nil {
			WriteError(w, http.StatusNotFound, "project not open for auto-save", "NOT_FOUND")
			return
		}

		// Best-effort flush before discarding state; a failed flush still
		// closes the session.
		if err := cfg.Engine.ForceSave(r.Context(), id); err != nil {
			cfg.Logger.Warn("flush on close failed", "project_id", id, "error", err)
		}
		cfg.Engine.StopAutoSave(id)

		// The cached copy exists for the open session; drop it with the state.
		if err := cfg.Store.DeleteProjectCache(r.Context(), id); err != nil {
			cfg.Logger.Warn("cache cleanup on close failed", "project_id", id, "error", err)
		}

		w.WriteHeader(http.StatusNoContent)
	}
}

func saveStatusHandler(cfg ServerConfig) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		id := chi.URLParam(r, "id")
		if id == "" {
			WriteError(w, http.StatusBadRequest, "project id required", "BAD_REQUEST")
			return
		}

		status := cfg.Engine.Status(id)
		if status == nil {
			WriteError(w, http.StatusNotFound, "project not open for auto-save", "NOT_FOUND")
			return
		}

		WriteJSON(w, http.StatusOK, status)
	}
}
