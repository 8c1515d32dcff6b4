package service

import (
	"context"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"marketlink-service/internal/catalog/model"
)

func mixedCatalog() *memCatalog {
	noBarcode := boots(5, "", "C5")
	noCode := boots(6, "0006", "")
	sandals := boots(7, "0007", "C7")
	sandals.Type = "Sandals"
	return newMemCatalog(
		boots(1, "0001", "C1"),
		boots(2, "0002", "C2"),
		boots(3, "0003", "C3"),
		boots(4, "0004", "C4"),
		noBarcode, noCode, sandals,
	)
}

func TestProcessor_ClassifiesEveryProduct(t *testing.T) {
	store := newMemRecs()
	p := NewProcessor(mixedCatalog(), store, zerolog.Nop())

	stats, err := p.Run(context.Background(), testConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, 7, stats.Total)
	assert.Equal(t, 7, stats.Processed)
	assert.Equal(t, 4, stats.WithRecommendations)
	assert.Equal(t, 12, stats.RecommendationsWritten)
	assert.Equal(t, map[model.Reason]int{
		model.ReasonMissingBarcode:      1,
		model.ReasonMissingExternalCode: 1,
		model.ReasonNoCandidates:        1,
	}, stats.Skipped)
	assert.Equal(t, map[string]int{"exact": 4}, stats.Levels)
	assert.False(t, stats.Partial)
	assert.Equal(t, 100, stats.Percent())

	require.Len(t, stats.Diagnostics, 3)
	for _, d := range stats.Diagnostics {
		if d.Reason == model.ReasonNoCandidates {
			assert.Equal(t, "7", d.Barcode)
			assert.Equal(t, "C7", d.ExternalCode)
		}
	}

	rows := store.snapshot()
	require.Len(t, rows, 4)
	got := rows["1"]
	require.Len(t, got, 3)
	for i, r := range got {
		assert.Equal(t, i+1, r.Rank)
		assert.Equal(t, "1", r.SourceBarcode)
		assert.NotEqual(t, "1", r.RecommendedBarcode)
		assert.Equal(t, 410.0, r.Score)
		assert.Equal(t, "exact", r.Level)
	}
	assert.Equal(t, []string{"2", "3", "4"}, []string{got[0].RecommendedBarcode, got[1].RecommendedBarcode, got[2].RecommendedBarcode})
	assert.Equal(t, []string{"2", "3", "4"}, store.payloads[1])
}

func TestProcessor_RecommendationCountBounded(t *testing.T) {
	var ps []model.Product
	for i := 1; i <= 12; i++ {
		ps = append(ps, boots(int64(i), fmt.Sprintf("%03d", i), fmt.Sprintf("C%d", i)))
	}
	store := newMemRecs()
	cfg := testConfig()
	cfg.BatchSize = 5

	stats, err := NewProcessor(newMemCatalog(ps...), store, zerolog.Nop()).Run(context.Background(), cfg, nil)
	require.NoError(t, err)
	assert.Equal(t, 12, stats.WithRecommendations)

	for src, recs := range store.snapshot() {
		assert.Len(t, recs, model.DefaultMaxRecommendations, src)
	}
}

func TestProcessor_RerunIsIdempotent(t *testing.T) {
	cat := mixedCatalog()
	store := newMemRecs()
	p := NewProcessor(cat, store, zerolog.Nop())

	first, err := p.Run(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	before := store.snapshot()

	second, err := p.Run(context.Background(), testConfig(), nil)
	require.NoError(t, err)

	assert.Equal(t, before, store.snapshot())
	assert.Equal(t, first.Summary(), second.Summary())
	assert.Equal(t, 2, store.clears)
}

func TestProcessor_EmptyCatalogCompletes(t *testing.T) {
	stats, err := NewProcessor(newMemCatalog(), newMemRecs(), zerolog.Nop()).Run(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	assert.Zero(t, stats.Errors())
	assert.Zero(t, stats.RecommendationsWritten)
	assert.Equal(t, 100, stats.Percent())
}

func TestProcessor_StorageFailureIsFatal(t *testing.T) {
	store := newMemRecs()
	store.failOn = "2"

	stats, err := NewProcessor(mixedCatalog(), store, zerolog.Nop()).Run(context.Background(), testConfig(), nil)
	require.Error(t, err)
	assert.ErrorIs(t, err, model.ErrStorage)
	assert.Contains(t, err.Error(), `barcode "2"`)
	assert.Less(t, stats.Processed, stats.Total+1)
}

func TestProcessor_NonStorageErrorsAreCounted(t *testing.T) {
	cat := mixedCatalog()
	cat.findErr = fmt.Errorf("index corrupted")

	stats, err := NewProcessor(cat, newMemRecs(), zerolog.Nop()).Run(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 5, stats.Skipped[model.ReasonOther])
}

func TestProcessor_CancelLeavesPartialResults(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	store := newMemRecs()
	store.onWrite = func(string) { cancel() }
	cfg := testConfig()
	cfg.Workers = 1
	cfg.BatchSize = 1

	stats, err := NewProcessor(mixedCatalog(), store, zerolog.Nop()).Run(ctx, cfg, nil)
	require.NoError(t, err)
	assert.True(t, stats.Partial)
	assert.Equal(t, 1, stats.Processed)
	assert.Len(t, store.snapshot(), 1)
}

func TestProcessor_RejectsInvalidConfig(t *testing.T) {
	store := newMemRecs()
	cfg := testConfig()
	cfg.MinRecommendations = 9

	_, err := NewProcessor(mixedCatalog(), store, zerolog.Nop()).Run(context.Background(), cfg, nil)
	assert.ErrorIs(t, err, model.ErrConfigValidation)
	assert.Zero(t, store.clears, "nothing runs on invalid config")
}

func TestProcessor_UnparseableSizeIsAWarning(t *testing.T) {
	odd := boots(3, "3", "C3")
	odd.Size, _ = model.NewSize("XL")

	stats, err := NewProcessor(newMemCatalog(boots(1, "1", "C1"), boots(2, "2", "C2"), odd), newMemRecs(), zerolog.Nop()).
		Run(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SizeWarnings)
	assert.Equal(t, 3, stats.WithRecommendations)
	assert.Zero(t, stats.Errors())
}

type recordingReporter struct{ percents []int }

func (r *recordingReporter) Report(s model.RunStats) { r.percents = append(r.percents, s.Percent()) }

func TestProcessor_ReportsAfterEveryProduct(t *testing.T) {
	rep := &recordingReporter{}
	cfg := testConfig()
	cfg.Workers = 1

	_, err := NewProcessor(mixedCatalog(), newMemRecs(), zerolog.Nop()).Run(context.Background(), cfg, rep)
	require.NoError(t, err)
	assert.Equal(t, []int{14, 28, 42, 57, 71, 85, 100}, rep.percents)
}

func TestProcessor_SharedBarcodeResolvedOnce(t *testing.T) {
	tests := []struct {
		name         string
		sneakersLast bool
		wantPrefix   string
		otherPrefix  string
		wantOwner    int64
	}{
		{name: "same import, smaller id owns", wantPrefix: "2", otherPrefix: "3", wantOwner: 1},
		{name: "later import owns", sneakersLast: true, wantPrefix: "3", otherPrefix: "2", wantOwner: 2},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s1 := boots(1, "111", "S1")
			s2 := boots(2, "0111", "S2")
			s2.Type = "Sneakers"
			if tt.sneakersLast {
				s2.ImportedAt = time.Now()
			}
			ps := []model.Product{s1, s2}
			for i := range 20 {
				sneakers := boots(int64(40+i), fmt.Sprintf("3%02d", i), fmt.Sprintf("N%d", i))
				sneakers.Type = "Sneakers"
				ps = append(ps, boots(int64(10+i), fmt.Sprintf("2%02d", i), fmt.Sprintf("B%d", i)), sneakers)
			}
			cat := newMemCatalog(ps...)
			cfg := testConfig()
			cfg.Workers = 8

			var first []model.Recommendation
			for range 40 {
				store := newMemRecs()
				stats, err := NewProcessor(cat, store, zerolog.Nop()).Run(context.Background(), cfg, nil)
				require.NoError(t, err)

				rows := store.snapshot()
				written := 0
				for src, recs := range rows {
					written += len(recs)
					if !strings.HasPrefix(src, tt.otherPrefix) {
						continue
					}
					for _, r := range recs {
						assert.NotEqual(t, "111", r.RecommendedBarcode, "shadowed product recommended for %s", src)
					}
				}
				assert.Equal(t, written, stats.RecommendationsWritten)
				assert.Equal(t, 41, stats.WithRecommendations)
				assert.Equal(t, map[model.Reason]int{model.ReasonDuplicateBarcode: 1}, stats.Skipped)
				require.Len(t, stats.Diagnostics, 1)
				assert.Equal(t, 3-tt.wantOwner, stats.Diagnostics[0].ProductID)
				assert.Equal(t, "111", stats.Diagnostics[0].Barcode)
				assert.Contains(t, stats.Diagnostics[0].Detail, fmt.Sprintf("product %d", tt.wantOwner))

				got := rows["111"]
				require.Len(t, got, model.DefaultMaxRecommendations)
				for _, r := range got {
					assert.True(t, strings.HasPrefix(r.RecommendedBarcode, tt.wantPrefix), r.RecommendedBarcode)
				}
				payload := make([]string, len(got))
				for i, r := range got {
					payload[i] = r.RecommendedBarcode
				}
				assert.Equal(t, payload, store.payloads[tt.wantOwner])
				if first == nil {
					first = got
					continue
				}
				assert.Equal(t, first, got)
			}
		})
	}
}

func TestProcessor_MissingSizeIsAWarning(t *testing.T) {
	noSize := boots(6, "999", "C6")
	noSize.Size = model.Size{}
	cat := newMemCatalog(boots(1, "1", "C1"), boots(2, "2", "C2"), boots(3, "3", "C3"), boots(4, "4", "C4"), boots(5, "5", "C5"), noSize)

	stats, err := NewProcessor(cat, newMemRecs(), zerolog.Nop()).Run(context.Background(), testConfig(), nil)
	require.NoError(t, err)
	assert.Equal(t, 1, stats.SizeWarnings)
	assert.Equal(t, 6, stats.WithRecommendations)
	assert.Zero(t, stats.Errors())
	require.Len(t, stats.Diagnostics, 1)
	assert.Equal(t, model.Diagnostic{
		ProductID: 6, Barcode: "999", ExternalCode: "C6",
		Reason: model.ReasonMissingSize, Detail: "no size",
	}, stats.Diagnostics[0])
}

type orderedReporter struct{ processed []int }

func (r *orderedReporter) Report(s model.RunStats) { r.processed = append(r.processed, s.Processed) }

func TestProcessor_ReportsInOrderUnderConcurrency(t *testing.T) {
	var ps []model.Product
	want := make([]int, 0, 30)
	for i := 1; i <= 30; i++ {
		ps = append(ps, boots(int64(i), fmt.Sprintf("%d", 100+i), fmt.Sprintf("C%d", i)))
		want = append(want, i)
	}
	rep := &orderedReporter{}
	cfg := testConfig()
	cfg.Workers = 8

	_, err := NewProcessor(newMemCatalog(ps...), newMemRecs(), zerolog.Nop()).Run(context.Background(), cfg, rep)
	require.NoError(t, err)
	assert.Equal(t, want, rep.processed)
}

func TestProcessor_CancelBeforeStartIsNotAFailure(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	store := newMemRecs()

	stats, err := NewProcessor(mixedCatalog(), store, zerolog.Nop()).Run(ctx, testConfig(), nil)
	require.NoError(t, err)
	assert.True(t, stats.Partial)
	assert.Zero(t, stats.Processed)
	assert.Zero(t, store.clears)
}
