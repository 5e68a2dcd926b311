// internal/api/handler.go
package api

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	custom_errors "github-commit-tracker/internal/errors"
	"github-commit-tracker/internal/model"
	"github-commit-tracker/internal/syncer"
	"github-commit-tracker/internal/tracker"
)

// Service is the tracker surface exposed over HTTP.
type Service interface {
	List() []model.ChannelMapping
	Get(channelID string) (model.ChannelMapping, bool)
	Link(ctx context.Context, channelID, owner, repo, branch string) (model.ChannelMapping, error)
	Unlink(ctx context.Context, channelID string) (model.ChannelMapping, error)
	TriggerSyncOne(ctx context.Context, channelID string) (syncer.Result, error)
	TriggerSyncAll(ctx context.Context) tracker.Summary
	Identity(ctx context.Context) *model.Identity
}

// Handler is the container for API dependencies.
type Handler struct {
	svc      Service
	validate *validator.Validate
	logger   *slog.Logger
}

type linkRequest struct {
	Repository string `json:"repository" validate:"required"`
	Branch     string `json:"branch" validate:"omitempty,max=255"`
}

type mappingResponse struct {
	ChannelID     string     `json:"channelId"`
	Owner         string     `json:"owner"`
	Repo          string     `json:"repo"`
	Branch        string     `json:"branch"`
	LastCommitSHA *string    `json:"lastCommitSha"`
	LastCheckedAt *time.Time `json:"lastChecked"`
	LinkedAt      *time.Time `json:"linkedAt,omitempty"`
}

type syncResponse struct {
	ChannelID         string `json:"channelId"`
	Found             int    `json:"found"`
	Announced         int    `json:"announced"`
	Dropped           int    `json:"dropped"`
	Baseline          bool   `json:"baseline"`
	HistoryIncomplete bool   `json:"historyIncomplete"`
}

// NewRouter creates and configures a new chi router with all API routes.
func NewRouter(svc Service, gatherer prometheus.Gatherer, logger *slog.Logger) http.Handler {
	h := &Handler{
		svc:      svc,
		validate: validator.New(),
		logger:   logger,
	}

	r := chi.NewRouter()

	// Middleware stack
	r.Use(middleware.RequestID)
	r.Use(middleware.RealIP)
	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.Timeout(60 * time.Second))

	r.Get("/health", h.healthCheck)
	r.Method(http.MethodGet, "/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	r.Route("/v1", func(r chi.Router) {
		r.Get("/identity", h.getIdentity)
		r.Post("/sync", h.syncAll)
		r.Route("/channels", func(r chi.Router) {
			r.Get("/", h.listChannels)
			r.Get("/{channelID}", h.getChannel)
			r.Put("/{channelID}", h.linkChannel)
			r.Delete("/{channelID}", h.unlinkChannel)
			r.Post("/{channelID}/sync", h.syncChannel)
		})
	})

	return r
}

func (h *Handler) healthCheck(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// GET /v1/channels
func (h *Handler) listChannels(w http.ResponseWriter, r *http.Request) {
	mappings := h.svc.List()
	out := make([]mappingResponse, 0, len(mappings))
	for _, m := range mappings {
		out = append(out, toMappingResponse(m))
	}
	respondWithJSON(w, http.StatusOK, out)
}

// GET /v1/channels/{channelID}
func (h *Handler) getChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	m, ok := h.svc.Get(channelID)
	if !ok {
		respondWithError(w, http.StatusNotFound, custom_errors.ErrNotLinked.Error())
		return
	}
	respondWithJSON(w, http.StatusOK, toMappingResponse(m))
}

// linkChannel links a channel, replacing any existing mapping.
// PUT /v1/channels/{channelID} {"repository": "owner/repo", "branch": "main"}
func (h *Handler) linkChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	var req linkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, "Invalid JSON body")
		return
	}
	if err := h.validate.Struct(&req); err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}
	owner, repo, err := model.ParseRepository(req.Repository)
	if err != nil {
		respondWithError(w, http.StatusBadRequest, err.Error())
		return
	}

	m, err := h.svc.Link(r.Context(), channelID, owner, repo, req.Branch)
	if err != nil {
		var formatErr *custom_errors.ErrInvalidRepoFormat
		switch {
		case errors.As(err, &formatErr):
			respondWithError(w, http.StatusBadRequest, err.Error())
		case errors.Is(err, custom_errors.ErrRepositoryNotFound):
			respondWithError(w, http.StatusUnprocessableEntity, "Repository not found")
		default:
			h.logger.Error("Failed to link channel", "channel_id", channelID, "error", err)
			respondWithError(w, http.StatusInternalServerError, "Internal server error")
		}
		return
	}
	respondWithJSON(w, http.StatusOK, toMappingResponse(m))
}

// DELETE /v1/channels/{channelID}
func (h *Handler) unlinkChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	m, err := h.svc.Unlink(r.Context(), channelID)
	if errors.Is(err, custom_errors.ErrNotLinked) {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to unlink channel", "channel_id", channelID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, toMappingResponse(m))
}

// POST /v1/channels/{channelID}/sync
func (h *Handler) syncChannel(w http.ResponseWriter, r *http.Request) {
	channelID := chi.URLParam(r, "channelID")

	result, err := h.svc.TriggerSyncOne(r.Context(), channelID)
	if errors.Is(err, custom_errors.ErrNotLinked) {
		respondWithError(w, http.StatusNotFound, err.Error())
		return
	}
	if err != nil {
		h.logger.Error("Failed to sync channel", "channel_id", channelID, "error", err)
		respondWithError(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	respondWithJSON(w, http.StatusOK, syncResponse{
		ChannelID:         channelID,
		Found:             result.Found,
		Announced:         len(result.Commits),
		Dropped:           result.Dropped,
		Baseline:          result.Baseline,
		HistoryIncomplete: result.HistoryIncomplete,
	})
}

// POST /v1/sync
func (h *Handler) syncAll(w http.ResponseWriter, r *http.Request) {
	respondWithJSON(w, http.StatusOK, h.svc.TriggerSyncAll(r.Context()))
}

// GET /v1/identity
func (h *Handler) getIdentity(w http.ResponseWriter, r *http.Request) {
	id := h.svc.Identity(r.Context())
	if id == nil {
		respondWithJSON(w, http.StatusOK, map[string]bool{"authenticated": false})
		return
	}
	respondWithJSON(w, http.StatusOK, map[string]any{
		"authenticated": true,
		"login":         id.Login,
		"name":          id.Name,
		"type":          id.Type,
		"publicRepos":   id.PublicRepos,
	})
}

func toMappingResponse(m model.ChannelMapping) mappingResponse {
	return mappingResponse{
		ChannelID:     m.ChannelID,
		Owner:         m.Owner,
		Repo:          m.Repo,
		Branch:        m.Branch,
		LastCommitSHA: m.LastCommitSHA,
		LastCheckedAt: m.LastCheckedAt,
		LinkedAt:      m.LinkedAt,
	}
}

func respondWithJSON(w http.ResponseWriter, code int, payload any) {
	body, err := json.Marshal(payload)
	if err != nil {
		w.WriteHeader(http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write(body)
}

func respondWithError(w http.ResponseWriter, code int, message string) {
	respondWithJSON(w, code, map[string]string{"error": message})
}
