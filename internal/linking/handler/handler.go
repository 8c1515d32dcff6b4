package handler

import (
	"context"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/respond"
	"marketlink-service/internal/utils"
)

type Linker interface {
	Lookup(ctx context.Context, sku string, dir model.Direction) (*model.MarketplaceLink, error)
	Rebuild(ctx context.Context) (model.LinkStats, error)
}

type History interface {
	LinkHistory(ctx context.Context, barcode string) ([]model.MarketplaceLink, error)
}

type Handler struct {
	linker  Linker
	history History
	log     zerolog.Logger
}

func New(linker Linker, history History, logger zerolog.Logger) *Handler {
	return &Handler{linker: linker, history: history, log: logger.With().Str("component", "linking_http").Logger()}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/links/rebuild", h.Rebuild)
	r.Get("/links/history/{barcode}", h.History)
	r.Get("/links/{direction}/{sku}", h.Lookup)
}

type lookupResponse struct {
	SKU         string                `json:"sku"`
	Direction   string                `json:"direction"`
	Counterpart string                `json:"counterpart"`
	Link        model.MarketplaceLink `json:"link"`
}

// Lookup: direction: сторона, которой принадлежит переданный SKU (a или b).
func (h *Handler) Lookup(w http.ResponseWriter, r *http.Request) {
	var dir model.Direction
	switch strings.ToLower(chi.URLParam(r, "direction")) {
	case "a":
		dir = model.AtoB
	case "b":
		dir = model.BtoA
	default:
		respond.BadRequest(w, "direction must be a or b")
		return
	}
	sku := strings.TrimSpace(chi.URLParam(r, "sku"))

	link, err := h.linker.Lookup(r.Context(), sku, dir)
	if err != nil {
		respond.Error(w, r, respond.Logger(r, h.log), err)
		return
	}
	if link == nil {
		_ = respond.JSON(w, http.StatusNotFound, respond.ErrorBody{Error: "no active link for " + sku})
		return
	}
	_ = respond.JSON(w, http.StatusOK, lookupResponse{
		SKU:         sku,
		Direction:   dir.String(),
		Counterpart: link.Counterpart(dir),
		Link:        *link,
	})
}

func (h *Handler) History(w http.ResponseWriter, r *http.Request) {
	barcode, ok := utils.NormalizeBarcode(chi.URLParam(r, "barcode"))
	if !ok {
		respond.Error(w, r, h.log, model.ErrMissingBarcode)
		return
	}
	links, err := h.history.LinkHistory(r.Context(), barcode)
	if err != nil {
		respond.Error(w, r, respond.Logger(r, h.log), err)
		return
	}
	if links == nil {
		links = []model.MarketplaceLink{}
	}
	_ = respond.JSON(w, http.StatusOK, links)
}

func (h *Handler) Rebuild(w http.ResponseWriter, r *http.Request) {
	log := respond.Logger(r, h.log)
	start := time.Now()
	st, err := h.linker.Rebuild(r.Context())
	if err != nil {
		respond.Error(w, r, log, err)
		return
	}
	log.Info().
		Int("linked", st.Linked).
		Int("replaced", st.Replaced).
		Int("conflicts", st.Conflicts).
		Dur("elapsed", time.Since(start)).
		Msg("links rebuilt")
	_ = respond.JSON(w, http.StatusOK, st)
}
