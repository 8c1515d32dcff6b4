package importer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/rs/zerolog"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/fileio"
	"marketlink-service/internal/storage"
)

var ErrUnknownKind = errors.New("unknown import kind")

// Kind: тип загружаемого листа.
type Kind string

const (
	KindProducts  Kind = "products"
	KindSizeMap   Kind = "sizemap"
	KindListingsA Kind = "listings-a"
	KindListingsB Kind = "listings-b"
)

func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case KindProducts, KindSizeMap, KindListingsA, KindListingsB:
		return k, nil
	}
	return "", fmt.Errorf("%w: %q (want products, sizemap, listings-a or listings-b)", ErrUnknownKind, s)
}

// FeedsRecommendations reports whether the sheet changes what a
// recommendation run reads.
func (k Kind) FeedsRecommendations() bool {
	return k == KindProducts || k == KindSizeMap
}

// Sink is the write side the importer loads into.
type Sink interface {
	ReplaceProducts(ctx context.Context, products []model.Product) (storage.ImportStats, error)
	UpsertSizeMap(ctx context.Context, entries []model.SizeMapEntry) (storage.ImportStats, error)
	UpsertListings(ctx context.Context, mp model.Marketplace, listings []model.Listing) (storage.ImportStats, error)
}

type Result struct {
	Kind   Kind                `json:"kind"`
	File   string              `json:"file"`
	Stats  storage.ImportStats `json:"stats"`
	Issues []fileio.RowIssue   `json:"issues,omitempty"`
}

type Importer struct {
	sink Sink
	log  zerolog.Logger
	now  func() time.Time
}

func New(sink Sink, logger zerolog.Logger) *Importer {
	return &Importer{sink: sink, log: logger.With().Str("component", "importer").Logger(), now: time.Now}
}

// Import reads one sheet (csv/xls/xlsx by extension) and loads it. Rows the
// mapper rejects are reported in Result.Issues and do not fail the import.
func (im *Importer) Import(ctx context.Context, kind Kind, r io.Reader, filename string, headerRow int) (Result, error) {
	res := Result{Kind: kind, File: filename}
	sh, err := fileio.ReadAny(r, filename, headerRow)
	if err != nil {
		return res, err
	}
	at := im.now().UTC()

	switch kind {
	case KindProducts:
		products, issues, err := fileio.ToProducts(sh, at)
		if err != nil {
			return res, err
		}
		res.Issues = issues
		res.Stats, err = im.sink.ReplaceProducts(ctx, products)
		if err != nil {
			return res, err
		}
	case KindSizeMap:
		entries, issues, err := fileio.ToSizeMap(sh, at)
		if err != nil {
			return res, err
		}
		res.Issues = issues
		res.Stats, err = im.sink.UpsertSizeMap(ctx, entries)
		if err != nil {
			return res, err
		}
	case KindListingsA, KindListingsB:
		mp := model.MarketplaceA
		if kind == KindListingsB {
			mp = model.MarketplaceB
		}
		listings, issues, err := fileio.ToListings(sh, mp, at)
		if err != nil {
			return res, err
		}
		res.Issues = issues
		res.Stats, err = im.sink.UpsertListings(ctx, mp, listings)
		if err != nil {
			return res, err
		}
	default:
		return res, fmt.Errorf("%w: %q", ErrUnknownKind, kind)
	}
	res.Stats.Skipped += len(res.Issues)

	ev := im.log.Info()
	if len(res.Issues) > 0 {
		ev = im.log.Warn().Str("issues", fileio.IssueSummary(res.Issues, 5))
	}
	ev.Str("kind", string(kind)).
		Str("file", filename).
		Int("rows", len(sh.Rows)).
		Int("written", res.Stats.Written).
		Int("skipped", res.Stats.Skipped).
		Msg("import done")
	return res, nil
}
