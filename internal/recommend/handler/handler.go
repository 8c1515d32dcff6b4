package handler

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/recommend/service"
	"marketlink-service/internal/respond"
	"marketlink-service/internal/utils"
)

// Runs is the run-control surface of service.Runner.
type Runs interface {
	StartRun(ctx context.Context) (service.RunHandle, error)
	Status(id string) (model.RunStatus, error)
	Cancel(id string) error
	Subscribe(id string) (<-chan model.ProgressEvent, func(), error)
	ClearAll(ctx context.Context) error
}

type RecommendationReader interface {
	Recommendations(ctx context.Context, sourceBarcode string) ([]model.Recommendation, error)
}

type Handler struct {
	runs      Runs
	recs      RecommendationReader
	log       zerolog.Logger
	heartbeat time.Duration
}

func New(runs Runs, recs RecommendationReader, logger zerolog.Logger) *Handler {
	return &Handler{
		runs:      runs,
		recs:      recs,
		log:       logger.With().Str("component", "recommend_http").Logger(),
		heartbeat: 15 * time.Second,
	}
}

// Mount вешает маршруты рекомендаций на роутер.
func (h *Handler) Mount(r chi.Router) {
	r.Post("/runs", h.StartRun)
	r.Get("/runs/{id}", h.RunStatus)
	r.Delete("/runs/{id}", h.CancelRun)
	r.Get("/runs/{id}/progress", h.Progress)
	r.Delete("/recommendations", h.ClearAll)
	r.Get("/recommendations/{barcode}", h.Recommendations)
}

func (h *Handler) StartRun(w http.ResponseWriter, r *http.Request) {
	log := respond.Logger(r, h.log)
	handle, err := h.runs.StartRun(r.Context())
	if err != nil {
		log.Warn().Err(err).Msg("run not started")
		respond.Error(w, r, log, err)
		return
	}
	w.Header().Set("Location", "/runs/"+handle.ID)
	_ = respond.JSON(w, http.StatusAccepted, handle)
}

func (h *Handler) RunStatus(w http.ResponseWriter, r *http.Request) {
	st, err := h.runs.Status(chi.URLParam(r, "id"))
	if err != nil {
		respond.Error(w, r, respond.Logger(r, h.log), err)
		return
	}
	_ = respond.JSON(w, http.StatusOK, st)
}

func (h *Handler) CancelRun(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := h.runs.Cancel(id); err != nil {
		respond.Error(w, r, respond.Logger(r, h.log), err)
		return
	}
	_ = respond.JSON(w, http.StatusAccepted, service.RunHandle{ID: id})
}

// Progress streams run progress as server-sent events until the terminal
// event or until the client goes away.
func (h *Handler) Progress(w http.ResponseWriter, r *http.Request) {
	log := respond.Logger(r, h.log)
	id := chi.URLParam(r, "id")

	// Flusher проверяем до заголовков
	flusher, ok := w.(http.Flusher)
	if !ok {
		http.Error(w, "streaming not supported", http.StatusInternalServerError)
		return
	}
	events, unsubscribe, err := h.runs.Subscribe(id)
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	defer unsubscribe()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	heartbeat := time.NewTicker(h.heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case ev, ok := <-events:
			if !ok {
				return
			}
			if err := writeEvent(w, ev); err != nil {
				log.Debug().Err(err).Str("run_id", id).Msg("sse write")
				return
			}
			flusher.Flush()
			if ev.Terminal() {
				return
			}
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": heartbeat\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case <-r.Context().Done():
			log.Debug().Str("run_id", id).Msg("progress client disconnected")
			return
		}
	}
}

func writeEvent(w http.ResponseWriter, ev model.ProgressEvent) error {
	b, err := json.Marshal(ev)
	if err != nil {
		return err
	}
	_, err = fmt.Fprintf(w, "data: %s\n\n", b)
	return err
}

func (h *Handler) ClearAll(w http.ResponseWriter, r *http.Request) {
	log := respond.Logger(r, h.log)
	if err := h.runs.ClearAll(r.Context()); err != nil {
		respond.Error(w, r, log, err)
		return
	}
	log.Info().Msg("recommendations cleared")
	w.WriteHeader(http.StatusNoContent)
}

type recommendationsResponse struct {
	Barcode         string                 `json:"barcode"`
	Recommendations []model.Recommendation `json:"recommendations"`
}

func (h *Handler) Recommendations(w http.ResponseWriter, r *http.Request) {
	barcode, ok := utils.NormalizeBarcode(chi.URLParam(r, "barcode"))
	if !ok {
		respond.Error(w, r, h.log, model.ErrMissingBarcode)
		return
	}
	recs, err := h.recs.Recommendations(r.Context(), barcode)
	if err != nil {
		respond.Error(w, r, respond.Logger(r, h.log), err)
		return
	}
	if recs == nil {
		recs = []model.Recommendation{}
	}
	_ = respond.JSON(w, http.StatusOK, recommendationsResponse{Barcode: barcode, Recommendations: recs})
}
