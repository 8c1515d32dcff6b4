package storage_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlink-service/internal/catalog/model"
	linking "marketlink-service/internal/linking/service"
	recommend "marketlink-service/internal/recommend/service"
	"marketlink-service/internal/storage"
)

func TestRecommendationRunOverSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := storage.Open(ctx, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	var products []model.Product
	for i := 1; i <= 10; i++ {
		size, _ := model.NewSize(fmt.Sprintf("%d", 36+i%3))
		products = append(products, model.Product{
			ExternalCodes: []string{fmt.Sprintf("C%02d", i)},
			Barcode:       fmt.Sprintf("46000%02d", i),
			Type:          "Boots",
			Gender:        "F",
			Brand:         []string{"X", "Y"}[i%2],
			Season:        "Winter",
			Size:          size,
			Stock:         float64(i),
			Lasts:         [3]string{"M1", "", ""},
		})
	}
	products = append(products, model.Product{ExternalCodes: []string{"C99"}, Type: "Boots", Gender: "F"})
	_, err = s.ReplaceProducts(ctx, products)
	require.NoError(t, err)

	cfg := model.DefaultRunConfig()
	cfg.BatchSize = 4
	cfg.Workers = 3
	proc := recommend.NewProcessor(s, s, zerolog.Nop())

	stats, err := proc.Run(ctx, cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 11, stats.Processed)
	assert.Equal(t, 10, stats.WithRecommendations)
	assert.Equal(t, 1, stats.Skipped[model.ReasonMissingBarcode])

	first, err := s.Recommendations(ctx, "4600001")
	require.NoError(t, err)
	require.NotEmpty(t, first)
	assert.LessOrEqual(t, len(first), model.DefaultMaxRecommendations)
	for i, r := range first {
		assert.Equal(t, i+1, r.Rank)
		assert.NotEqual(t, "4600001", r.RecommendedBarcode)
		assert.LessOrEqual(t, r.Score, 500.0)
		if i > 0 {
			assert.GreaterOrEqual(t, first[i-1].Score, r.Score)
		}
	}

	// повторный прогон даёт тот же результат
	_, err = proc.Run(ctx, cfg, nil)
	require.NoError(t, err)
	again, err := s.Recommendations(ctx, "4600001")
	require.NoError(t, err)
	assert.Equal(t, first, again)
}

func TestLinkRebuildOverSQLite(t *testing.T) {
	ctx := context.Background()
	s, err := storage.Open(ctx, ":memory:", zerolog.Nop())
	require.NoError(t, err)
	defer s.Close()

	t0 := time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC)
	_, err = s.UpsertListings(ctx, model.MarketplaceA, []model.Listing{
		{SKU: "A-1", Barcode: "004600001", Title: "Ботинки женские X 38", Category: "Обувь/Ботинки", ImportedAt: t0},
		{SKU: "A-2", Barcode: "4600002", Title: "Сапоги", ImportedAt: t0},
	})
	require.NoError(t, err)
	_, err = s.UpsertListings(ctx, model.MarketplaceB, []model.Listing{
		{SKU: "B-1", Barcode: "4600001", Title: "X ботинки женские 38", Category: "обувь ботинки", ImportedAt: t0.Add(time.Hour)},
	})
	require.NoError(t, err)

	l := linking.NewLinker(s, s, 0, zerolog.Nop())
	st, err := l.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Linked)
	assert.Equal(t, 1, st.Unmatched)

	link, err := l.Lookup(ctx, "B-1", model.BtoA)
	require.NoError(t, err)
	require.NotNil(t, link)
	assert.Equal(t, "A-1", link.Counterpart(model.BtoA))
	assert.Equal(t, 1.0, link.Confidence)

	st, err = l.Rebuild(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, st.Replaced)

	hist, err := s.LinkHistory(ctx, "4600001")
	require.NoError(t, err)
	assert.Len(t, hist, 2)
}
