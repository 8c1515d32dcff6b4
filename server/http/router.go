package serverhttp

import (
	"github.com/go-chi/chi/v5"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"

	catHnd "marketlink-service/internal/catalog/handler"
	"marketlink-service/internal/config"
	linkHnd "marketlink-service/internal/linking/handler"
	"marketlink-service/internal/middleware"
	recHnd "marketlink-service/internal/recommend/handler"
	"marketlink-service/server/http/handlers"
)

// Deps: всё, что роутер раздаёт хендлерам.
type Deps struct {
	DB       handlers.Pinger
	Runs     recHnd.Runs
	Active   func() (string, bool)
	Recs     recHnd.RecommendationReader
	Linker   linkHnd.Linker
	History  linkHnd.History
	Importer catHnd.Importer
}

func NewRouter(cfg *config.Config, logger zerolog.Logger, d Deps) *chi.Mux {
	r := chi.NewRouter()

	// порядок важен: recover -> requestID -> logging -> cors -> limit
	r.Use(middleware.Recover(logger))
	r.Use(middleware.RequestID())
	r.Use(middleware.Logging(logger))
	r.Use(middleware.CORS(cfg.Server.AllowOrigins))
	r.Use(middleware.LimitBytes(int64(cfg.Server.MaxUploadMB) * 1024 * 1024))

	r.Get("/health", handlers.Health(d.DB, d.Active))
	r.Handle("/metrics", promhttp.Handler())

	recHnd.New(d.Runs, d.Recs, logger).Mount(r)
	linkHnd.New(d.Linker, d.History, logger).Mount(r)
	catHnd.New(d.Importer, cfg.Server.MaxUploadMB, d.Active, logger).Mount(r)

	return r
}
