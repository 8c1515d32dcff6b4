package service

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/utils"
)

// memCatalog: каталог в памяти.
type memCatalog struct {
	products []model.Product
	findErr  error
}

func newMemCatalog(products ...model.Product) *memCatalog {
	ps := append([]model.Product(nil), products...)
	sort.Slice(ps, func(i, j int) bool { return ps[i].ID < ps[j].ID })
	return &memCatalog{products: ps}
}

func (c *memCatalog) CountProducts(context.Context) (int, error) { return len(c.products), nil }

func (c *memCatalog) ProductsPage(_ context.Context, afterID int64, limit int) ([]model.Product, error) {
	var out []model.Product
	for _, p := range c.products {
		if p.ID > afterID {
			out = append(out, p)
			if len(out) == limit {
				break
			}
		}
	}
	return out, nil
}

func (c *memCatalog) DuplicateBarcodes(context.Context) (map[int64]int64, error) {
	owner := make(map[string]model.Product)
	for _, p := range c.products {
		barcode, ok := utils.NormalizeBarcode(p.Barcode)
		if !ok {
			continue
		}
		if cur, seen := owner[barcode]; !seen || p.Supersedes(cur) {
			owner[barcode] = p
		}
	}
	out := make(map[int64]int64)
	for _, p := range c.products {
		barcode, _ := utils.NormalizeBarcode(p.Barcode)
		if o, ok := owner[barcode]; ok && o.ID != p.ID {
			out[p.ID] = o.ID
		}
	}
	return out, nil
}

func (c *memCatalog) FindCandidates(_ context.Context, crit model.Criteria) ([]model.Product, error) {
	if c.findErr != nil {
		return nil, c.findErr
	}
	var out []model.Product
	for _, p := range c.products {
		ok := true
		for a, v := range crit.Equal {
			if got, _ := p.Attr(a); got != v {
				ok = false
				break
			}
		}
		if ok {
			out = append(out, p)
		}
	}
	return out, nil
}

// memRecs: хранилище рекомендаций в памяти.
type memRecs struct {
	mu        sync.Mutex
	rows      map[string][]model.Recommendation
	payloads  map[int64][]string
	failOn    string // source barcode whose write fails with ErrStorage
	onWrite   func(sourceBarcode string)
	gate      chan struct{}
	clearGate chan struct{}
	clears    int
}

func newMemRecs() *memRecs {
	return &memRecs{rows: map[string][]model.Recommendation{}, payloads: map[int64][]string{}}
}

func (s *memRecs) ClearRecommendations(ctx context.Context) error {
	if s.clearGate != nil {
		select {
		case <-s.clearGate:
		case <-ctx.Done():
		}
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("%w: %w", model.ErrStorage, err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.rows = map[string][]model.Recommendation{}
	s.payloads = map[int64][]string{}
	s.clears++
	return nil
}

func (s *memRecs) ReplaceRecommendations(ctx context.Context, source string, productID int64, recs []model.Recommendation) error {
	if s.gate != nil {
		select {
		case <-s.gate:
		case <-ctx.Done():
			return fmt.Errorf("%w: %v", model.ErrStorage, ctx.Err())
		}
	}
	if s.onWrite != nil {
		s.onWrite(source)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if source == s.failOn {
		return fmt.Errorf("%w: disk full", model.ErrStorage)
	}
	s.rows[source] = append([]model.Recommendation(nil), recs...)
	payload := make([]string, len(recs))
	for i, r := range recs {
		payload[i] = r.RecommendedBarcode
	}
	s.payloads[productID] = payload
	return nil
}

func (s *memRecs) snapshot() map[string][]model.Recommendation {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make(map[string][]model.Recommendation, len(s.rows))
	for k, v := range s.rows {
		out[k] = append([]model.Recommendation(nil), v...)
	}
	return out
}

func testConfig() model.RunConfig {
	cfg := model.DefaultRunConfig()
	cfg.Workers = 4
	return cfg
}
