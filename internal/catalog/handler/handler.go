package handler

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/importer"
	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/fileio"
	"marketlink-service/internal/respond"
)

type Importer interface {
	Import(ctx context.Context, kind importer.Kind, r io.Reader, filename string, headerRow int) (importer.Result, error)
}

// ActiveRun reports the id of the running recommendation run, if any.
type ActiveRun func() (string, bool)

type Handler struct {
	imp      Importer
	maxBytes int64
	active   ActiveRun
	log      zerolog.Logger
}

// New: maxUploadMB ограничивает multipart-форму в памяти, остальное уходит во временные файлы.
// Пока идёт прогон (active), товары и размерная сетка не загружаются; active может быть nil.
func New(imp Importer, maxUploadMB int, active ActiveRun, logger zerolog.Logger) *Handler {
	return &Handler{
		imp:      imp,
		maxBytes: int64(maxUploadMB) << 20,
		active:   active,
		log:      logger.With().Str("component", "import_http").Logger(),
	}
}

func (h *Handler) Mount(r chi.Router) {
	r.Post("/imports/{kind}", h.Import)
}

// Import принимает multipart-форму: file (csv/xls/xlsx) и необязательный
// header_row (1-based, по умолчанию 1).
func (h *Handler) Import(w http.ResponseWriter, r *http.Request) {
	start := time.Now()
	log := respond.Logger(r, h.log)

	kind, err := importer.ParseKind(chi.URLParam(r, "kind"))
	if err != nil {
		_ = respond.JSON(w, http.StatusNotFound, respond.ErrorBody{Error: err.Error()})
		return
	}
	if h.active != nil && kind.FeedsRecommendations() {
		if id, running := h.active(); running {
			log.Warn().Str("kind", string(kind)).Str("run_id", id).Msg("import rejected during run")
			respond.Error(w, r, log, fmt.Errorf("%w: %s", model.ErrRunInProgress, id))
			return
		}
	}

	defer r.Body.Close()
	if err := r.ParseMultipartForm(h.maxBytes); err != nil {
		var mbe *http.MaxBytesError
		if errors.As(err, &mbe) {
			respond.Error(w, r, log, err)
			return
		}
		respond.BadRequest(w, "bad multipart form: "+err.Error())
		return
	}
	if r.MultipartForm != nil {
		defer func() { _ = r.MultipartForm.RemoveAll() }()
	}

	file, header, err := r.FormFile("file")
	if err != nil {
		respond.BadRequest(w, "missing file: "+err.Error())
		return
	}
	defer file.Close()

	headerRow := max(respond.Atoi(r.FormValue("header_row"), 1), 1)
	res, err := h.imp.Import(r.Context(), kind, file, header.Filename, headerRow)
	switch {
	case errors.Is(err, fileio.ErrUnsupportedFile):
		_ = respond.JSON(w, http.StatusUnsupportedMediaType, respond.ErrorBody{Error: err.Error()})
		return
	case errors.Is(err, fileio.ErrMissingColumn):
		_ = respond.JSON(w, http.StatusUnprocessableEntity, respond.ErrorBody{Error: err.Error()})
		return
	case errors.Is(err, model.ErrStorage):
		respond.Error(w, r, log, err)
		return
	case err != nil:
		// битый файл: ошибка клиента
		respond.BadRequest(w, "failed to read "+header.Filename+": "+err.Error())
		return
	}

	log.Info().
		Str("kind", string(kind)).
		Str("file", header.Filename).
		Int64("bytes", header.Size).
		Int("written", res.Stats.Written).
		Dur("elapsed", time.Since(start)).
		Msg("upload imported")
	_ = respond.JSON(w, http.StatusOK, res)
}
