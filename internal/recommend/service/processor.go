package service

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/metrics"
	"marketlink-service/internal/utils"
)

// Catalog is the read side of the working catalog.
type Catalog interface {
	CandidateFinder
	CountProducts(ctx context.Context) (int, error)
	// ProductsPage returns up to limit products with ID > afterID, ordered by ID.
	ProductsPage(ctx context.Context, afterID int64, limit int) ([]model.Product, error)
	// DuplicateBarcodes maps each product whose barcode is owned by another
	// product to that owner (see model.Product.Supersedes).
	DuplicateBarcodes(ctx context.Context) (map[int64]int64, error)
}

// RecommendationStore persists computed recommendations.
type RecommendationStore interface {
	ClearRecommendations(ctx context.Context) error
	// ReplaceRecommendations atomically swaps the rows of one source barcode
	// and the product's derived payload.
	ReplaceRecommendations(ctx context.Context, sourceBarcode string, productID int64, recs []model.Recommendation) error
}

const defaultMaxDiagnostics = 1000

type Processor struct {
	catalog        Catalog
	store          RecommendationStore
	logger         zerolog.Logger
	maxDiagnostics int
}

func NewProcessor(catalog Catalog, store RecommendationStore, logger zerolog.Logger) *Processor {
	return &Processor{
		catalog:        catalog,
		store:          store,
		logger:         logger.With().Str("component", "recommend").Logger(),
		maxDiagnostics: defaultMaxDiagnostics,
	}
}

// Run clears all recommendations and recomputes them for every product.
//
// Per-product data problems are counted and skipped. An ErrStorage error
// aborts the run and is returned together with the stats gathered so far.
// Cancelling ctx stops the run between products; the result is then marked
// Partial and the error is nil. Of several products sharing a barcode only
// its owner is resolved, the rest are skipped as duplicates.
func (p *Processor) Run(ctx context.Context, cfg model.RunConfig, rep ProgressReporter) (model.RunStats, error) {
	if err := cfg.Validate(); err != nil {
		return model.NewRunStats(0), err
	}
	start := time.Now()

	if err := p.store.ClearRecommendations(ctx); err != nil {
		return p.setupFailed(ctx, "clear recommendations", err)
	}
	total, err := p.catalog.CountProducts(ctx)
	if err != nil {
		return p.setupFailed(ctx, "count products", err)
	}
	owners, err := p.catalog.DuplicateBarcodes(ctx)
	if err != nil {
		return p.setupFailed(ctx, "duplicate barcodes", err)
	}

	t := &tracker{stats: model.NewRunStats(total), maxDiag: p.maxDiagnostics, rep: rep}
	ps := &pass{
		cfg:     cfg,
		matcher: NewMatcher(p.catalog, cfg.Policy, cfg.MinRecommendations).SkipDuplicates(owners),
		scorer:  NewScorer(cfg.Weights),
		owners:  owners,
		tracker: t,
	}

	p.logger.Info().
		Int("total", total).
		Int("workers", cfg.Workers).
		Int("batch", cfg.BatchSize).
		Int("duplicates", len(owners)).
		Msg("recommendation run started")

	var afterID int64
	for ctx.Err() == nil {
		page, err := p.catalog.ProductsPage(ctx, afterID, cfg.BatchSize)
		if err != nil {
			if ctx.Err() != nil {
				break
			}
			return t.result(false), fmt.Errorf("read catalog page after id %d: %w", afterID, err)
		}
		if len(page) == 0 {
			break
		}

		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(cfg.Workers)
		for _, prod := range page {
			g.Go(func() error {
				if gctx.Err() != nil {
					return nil
				}
				return p.handle(gctx, ps, prod)
			})
		}
		if err := g.Wait(); err != nil {
			stats := t.result(false)
			p.logger.Error().Err(err).Str("stats", stats.Message()).Msg("recommendation run failed")
			return stats, err
		}

		afterID = page[len(page)-1].ID
		if len(page) < cfg.BatchSize {
			break
		}
	}

	partial := ctx.Err() != nil
	stats := t.result(partial)
	p.logger.Info().
		Bool("partial", partial).
		Dur("took", time.Since(start)).
		Int("errors", stats.Errors()).
		Msg(stats.Message())
	return stats, nil
}

// setupFailed: отмена до начала обхода не ошибка, прогон просто пустой.
func (p *Processor) setupFailed(ctx context.Context, op string, err error) (model.RunStats, error) {
	stats := model.NewRunStats(0)
	if ctx.Err() != nil {
		stats.Partial = true
		p.logger.Info().Str("op", op).Msg("recommendation run cancelled before start")
		return stats, nil
	}
	return stats, fmt.Errorf("%s: %w", op, err)
}

// pass: всё, что нужно одному прогону для разбора продукта.
type pass struct {
	cfg     model.RunConfig
	matcher *Matcher
	scorer  *Scorer
	owners  map[int64]int64
	tracker *tracker
}

type outcome struct {
	reason  model.Reason
	level   string
	written int
	detail  string
}

// handle resolves one product. Only fatal errors are returned.
func (p *Processor) handle(ctx context.Context, ps *pass, prod model.Product) error {
	t := ps.tracker
	barcode, _ := utils.NormalizeBarcode(prod.Barcode)
	code := prod.ExternalCode()

	if !prod.Size.Valid {
		detail := "no size"
		if prod.Size.Raw != "" {
			detail = fmt.Sprintf("unparseable size %q", prod.Size.Raw)
		}
		t.warnSize(model.Diagnostic{
			ProductID: prod.ID, Barcode: barcode, ExternalCode: code,
			Reason: model.ReasonMissingSize, Detail: detail,
		})
	}

	out, err := p.resolve(ctx, ps, prod)
	if err != nil {
		if ctx.Err() != nil {
			// отменено: продукт не засчитываем
			return nil
		}
		if errors.Is(err, model.ErrStorage) {
			return fmt.Errorf("product %d (barcode %q, external code %q): %w", prod.ID, barcode, code, err)
		}
		out = outcome{reason: model.ReasonOther, detail: err.Error()}
	}

	metrics.ProductsProcessed.WithLabelValues(string(out.reason)).Inc()
	if out.reason == model.ReasonOK {
		metrics.MatchLevelHits.WithLabelValues(out.level).Inc()
		metrics.RecommendationsWritten.Add(float64(out.written))
	} else {
		ev := p.logger.Debug()
		if out.reason == model.ReasonOther {
			ev = p.logger.Warn()
		}
		ev.Int64("product_id", prod.ID).
			Str("barcode", barcode).
			Str("external_code", code).
			Str("reason", string(out.reason)).
			Str("detail", out.detail).
			Msg("product skipped")
	}

	t.record(model.Diagnostic{ProductID: prod.ID, Barcode: barcode, ExternalCode: code, Reason: out.reason, Detail: out.detail}, out)
	return nil
}

func (p *Processor) resolve(ctx context.Context, ps *pass, prod model.Product) (out outcome, err error) {
	defer func() {
		if rec := recover(); rec != nil {
			out, err = outcome{reason: model.ReasonOther, detail: fmt.Sprintf("panic: %v", rec)}, nil
		}
	}()

	barcode, ok := utils.NormalizeBarcode(prod.Barcode)
	if !ok {
		return outcome{reason: model.ReasonMissingBarcode, detail: model.ErrMissingBarcode.Error()}, nil
	}
	if owner, dup := ps.owners[prod.ID]; dup {
		return outcome{reason: model.ReasonDuplicateBarcode, detail: fmt.Sprintf("barcode owned by product %d", owner)}, nil
	}
	if prod.ExternalCode() == "" {
		return outcome{reason: model.ReasonMissingExternalCode, detail: model.ErrMissingExternalCode.Error()}, nil
	}

	cands, err := ps.matcher.FindCandidates(ctx, prod)
	if err != nil {
		return outcome{}, err
	}

	scored := make([]Scored, 0, len(cands.Products))
	for _, c := range cands.Products {
		score, expl := ps.scorer.Score(prod, c)
		if expl.Rejected != "" {
			continue
		}
		scored = append(scored, Scored{Product: c, Score: score, Explanation: expl})
	}
	if len(scored) == 0 {
		return outcome{reason: model.ReasonNoCandidates, detail: model.ErrNoCandidates.Error()}, nil
	}

	ranked := Rank(scored, ps.cfg.MaxRecommendations)
	recs := make([]model.Recommendation, len(ranked))
	for i, r := range ranked {
		recs[i] = model.Recommendation{
			SourceBarcode:      barcode,
			RecommendedBarcode: r.Product.Barcode,
			Score:              r.Score,
			Rank:               i + 1,
			Level:              cands.Level,
			Explanation:        r.Explanation,
		}
	}
	if err := p.store.ReplaceRecommendations(ctx, barcode, prod.ID, recs); err != nil {
		return outcome{}, err
	}
	return outcome{reason: model.ReasonOK, level: cands.Level, written: len(recs)}, nil
}

// tracker: общая статистика прогона под мьютексом.
type tracker struct {
	mu      sync.Mutex
	stats   model.RunStats
	maxDiag int
	rep     ProgressReporter
}

// record counts one product and reports under the lock, so the reporter sees
// snapshots in order.
func (t *tracker) record(d model.Diagnostic, out outcome) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Processed++
	if out.reason == model.ReasonOK {
		t.stats.WithRecommendations++
		t.stats.RecommendationsWritten += out.written
		t.stats.Levels[out.level]++
	} else {
		t.stats.Skipped[out.reason]++
		t.addDiagnostic(d)
	}
	if t.rep != nil {
		t.rep.Report(t.stats.Summary())
	}
}

func (t *tracker) warnSize(d model.Diagnostic) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.SizeWarnings++
	t.addDiagnostic(d)
}

func (t *tracker) addDiagnostic(d model.Diagnostic) {
	if len(t.stats.Diagnostics) >= t.maxDiag {
		t.stats.DiagnosticsDropped++
		return
	}
	t.stats.Diagnostics = append(t.stats.Diagnostics, d)
}

func (t *tracker) result(partial bool) model.RunStats {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.stats.Partial = partial
	return t.stats.Clone()
}
