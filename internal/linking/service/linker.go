package service

import (
	"context"
	"fmt"
	"maps"
	"slices"
	"time"

	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/metrics"
	"marketlink-service/internal/utils"
)

const (
	// DefaultTitleThreshold: порог схожести названий, с которого название
	// считается подтверждением связи.
	DefaultTitleThreshold = 0.83

	baseConfidence     = 0.5
	titleConfidence    = 0.25
	categoryConfidence = 0.25

	listingPageSize = 1000
)

// LinkStore persists links. ReplaceLink must supersede prev (when non-nil)
// and insert next atomically.
type LinkStore interface {
	ActiveLink(ctx context.Context, barcode string) (*model.MarketplaceLink, error)
	ReplaceLink(ctx context.Context, prev *model.MarketplaceLink, next model.MarketplaceLink) error
	LinkBySKU(ctx context.Context, sku string, dir model.Direction) (*model.MarketplaceLink, error)
}

// ListingSource pages marketplace listings ordered by SKU.
type ListingSource interface {
	ListingsPage(ctx context.Context, mp model.Marketplace, afterSKU string, limit int) ([]model.Listing, error)
}

type LinkInput struct {
	Barcode         string
	A               model.Listing
	B               model.Listing
	SourceTimestamp time.Time
}

type LinkOutcome string

const (
	LinkCreated  LinkOutcome = "created"
	LinkReplaced LinkOutcome = "replaced"
	LinkConflict LinkOutcome = "conflict"
)

type Linker struct {
	store          LinkStore
	listings       ListingSource
	titleThreshold float64
	now            func() time.Time
	log            zerolog.Logger
}

func NewLinker(store LinkStore, listings ListingSource, titleThreshold float64, logger zerolog.Logger) *Linker {
	if titleThreshold <= 0 || titleThreshold > 1 {
		titleThreshold = DefaultTitleThreshold
	}
	return &Linker{
		store:          store,
		listings:       listings,
		titleThreshold: titleThreshold,
		now:            time.Now,
		log:            logger.With().Str("component", "linker").Logger(),
	}
}

// UpsertLink creates or replaces the link for a barcode. Last write wins per
// barcode: an existing link with an older or equal source timestamp is
// superseded entirely; a newer one is kept and the attempt is reported as a
// conflict (not an error).
func (l *Linker) UpsertLink(ctx context.Context, in LinkInput) (LinkOutcome, error) {
	barcode, ok := utils.NormalizeBarcode(in.Barcode)
	if !ok {
		return "", fmt.Errorf("upsert link for %q/%q: %w", in.A.SKU, in.B.SKU, model.ErrMissingBarcode)
	}
	if in.A.SKU == "" || in.B.SKU == "" {
		return "", fmt.Errorf("upsert link %s: both SKUs are required", barcode)
	}

	prev, err := l.store.ActiveLink(ctx, barcode)
	if err != nil {
		return "", err
	}
	if prev != nil && prev.SourceTimestamp.After(in.SourceTimestamp) {
		l.log.Info().
			Str("barcode", barcode).
			Str("kept_sku_a", prev.SKUA).
			Str("kept_sku_b", prev.SKUB).
			Time("kept_ts", prev.SourceTimestamp).
			Time("incoming_ts", in.SourceTimestamp).
			Err(model.ErrLinkConflict).
			Msg("older data ignored")
		metrics.LinkUpserts.WithLabelValues(string(LinkConflict)).Inc()
		return LinkConflict, nil
	}

	next := l.buildLink(barcode, in)
	if err := l.store.ReplaceLink(ctx, prev, next); err != nil {
		return "", err
	}

	outcome := LinkCreated
	if prev != nil {
		outcome = LinkReplaced
	}
	metrics.LinkUpserts.WithLabelValues(string(outcome)).Inc()
	l.log.Debug().
		Str("barcode", barcode).
		Str("sku_a", next.SKUA).
		Str("sku_b", next.SKUB).
		Float64("confidence", next.Confidence).
		Str("outcome", string(outcome)).
		Msg("link upserted")
	return outcome, nil
}

func (l *Linker) buildLink(barcode string, in LinkInput) model.MarketplaceLink {
	sim := titleSimilarity(in.A.Title, in.B.Title)
	catA, catB := normalizeCategory(in.A.Category), normalizeCategory(in.B.Category)
	catMatch := catA != "" && catA == catB

	conf := baseConfidence
	if sim >= l.titleThreshold {
		conf += titleConfidence
	}
	if catMatch {
		conf += categoryConfidence
	}
	return model.MarketplaceLink{
		Barcode:         barcode,
		SKUA:            in.A.SKU,
		SKUB:            in.B.SKU,
		Confidence:      conf,
		TitleSimilarity: sim,
		CategoryMatch:   catMatch,
		SourceTimestamp: in.SourceTimestamp,
		CreatedAt:       l.now().UTC(),
	}
}

// Lookup returns the active link for sku on the given side, or nil.
func (l *Linker) Lookup(ctx context.Context, sku string, dir model.Direction) (*model.MarketplaceLink, error) {
	if sku == "" {
		return nil, nil
	}
	return l.store.LinkBySKU(ctx, sku, dir)
}

// Rebuild joins both marketplaces' listings on normalized barcode and upserts
// a link for every barcode present on both sides. Within one marketplace a
// duplicated barcode resolves to the most recently imported listing.
func (l *Linker) Rebuild(ctx context.Context) (model.LinkStats, error) {
	var st model.LinkStats
	start := time.Now()

	sideA, err := l.collect(ctx, model.MarketplaceA, &st.ListingsA, &st)
	if err != nil {
		return st, err
	}
	sideB, err := l.collect(ctx, model.MarketplaceB, &st.ListingsB, &st)
	if err != nil {
		return st, err
	}

	for _, barcode := range slices.Sorted(maps.Keys(sideA)) {
		if err := ctx.Err(); err != nil {
			return st, err
		}
		a := sideA[barcode]
		b, ok := sideB[barcode]
		if !ok {
			st.Unmatched++
			continue
		}
		ts := a.ImportedAt
		if b.ImportedAt.After(ts) {
			ts = b.ImportedAt
		}
		outcome, err := l.UpsertLink(ctx, LinkInput{Barcode: barcode, A: a, B: b, SourceTimestamp: ts})
		if err != nil {
			return st, err
		}
		switch outcome {
		case LinkCreated:
			st.Linked++
		case LinkReplaced:
			st.Linked++
			st.Replaced++
		case LinkConflict:
			st.Conflicts++
		}
	}
	for barcode := range sideB {
		if _, ok := sideA[barcode]; !ok {
			st.Unmatched++
		}
	}

	l.log.Info().
		Int("listings_a", st.ListingsA).
		Int("listings_b", st.ListingsB).
		Int("linked", st.Linked).
		Int("replaced", st.Replaced).
		Int("conflicts", st.Conflicts).
		Int("missing_barcode", st.MissingBarcode).
		Int("duplicates", st.Duplicates).
		Int("unmatched", st.Unmatched).
		Dur("elapsed", time.Since(start)).
		Msg("links rebuilt")
	return st, nil
}

// collect pages one marketplace and keeps the winning listing per barcode.
func (l *Linker) collect(ctx context.Context, mp model.Marketplace, count *int, st *model.LinkStats) (map[string]model.Listing, error) {
	out := make(map[string]model.Listing)
	after := ""
	for {
		page, err := l.listings.ListingsPage(ctx, mp, after, listingPageSize)
		if err != nil {
			return nil, err
		}
		for _, li := range page {
			*count++
			barcode, ok := utils.NormalizeBarcode(li.Barcode)
			if !ok {
				st.MissingBarcode++
				l.log.Debug().Str("marketplace", string(mp)).Str("sku", li.SKU).Msg("listing without barcode skipped")
				continue
			}
			if cur, dup := out[barcode]; dup {
				st.Duplicates++
				if !newerListing(li, cur) {
					continue
				}
			}
			out[barcode] = li
		}
		if len(page) < listingPageSize {
			return out, nil
		}
		after = page[len(page)-1].SKU
	}
}

// newerListing: later import wins; equal timestamps fall back to the smaller
// SKU so the outcome does not depend on page order.
func newerListing(a, b model.Listing) bool {
	if !a.ImportedAt.Equal(b.ImportedAt) {
		return a.ImportedAt.After(b.ImportedAt)
	}
	return a.SKU < b.SKU
}
