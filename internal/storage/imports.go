package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"time"

	"marketlink-service/internal/catalog/model"
	"marketlink-service/internal/utils"
)

// ImportStats: итог загрузки одного листа.
type ImportStats struct {
	Rows     int `json:"rows"`
	Written  int `json:"written"`
	Skipped  int `json:"skipped"`
	Replaced int `json:"replaced"`
}

// ReplaceProducts swaps the whole working catalog for products. Barcodes are
// stored normalized; existing recommendations are dropped with the old rows.
func (s *Store) ReplaceProducts(ctx context.Context, products []model.Product) (ImportStats, error) {
	st := ImportStats{Rows: len(products)}
	now := time.Now()
	err := s.inTx(ctx, "replace products", func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `DELETE FROM products`)
		if err != nil {
			return err
		}
		n, _ := res.RowsAffected()
		st.Replaced = int(n)
		if _, err := tx.ExecContext(ctx, `DELETE FROM recommendations`); err != nil {
			return err
		}

		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO products (external_codes, barcode, type, gender, season, brand, material, fastener, color,
			                      size_raw, stock, last_primary, last_secondary, last_tertiary, imported_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, p := range products {
			codes, err := json.Marshal(p.SortedCodes())
			if err != nil {
				return err
			}
			barcode, _ := utils.NormalizeBarcode(p.Barcode)
			imported := p.ImportedAt
			if imported.IsZero() {
				imported = now
			}
			stock := p.Stock
			if stock < 0 {
				stock = 0
			}
			if _, err := stmt.ExecContext(ctx,
				string(codes), barcode, p.Type, p.Gender, p.Season, p.Brand, p.Material, p.Fastener, p.Color,
				p.Size.Raw, stock, p.Lasts[0], p.Lasts[1], p.Lasts[2], formatTime(imported),
			); err != nil {
				return err
			}
			st.Written++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	s.log.Info().Int("written", st.Written).Int("replaced", st.Replaced).Msg("products imported")
	return st, nil
}

// UpsertSizeMap merges entries keyed by normalized barcode. An entry never
// overwrites one imported later.
func (s *Store) UpsertSizeMap(ctx context.Context, entries []model.SizeMapEntry) (ImportStats, error) {
	st := ImportStats{Rows: len(entries)}
	now := time.Now()
	err := s.inTx(ctx, "upsert size map", func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO size_map (barcode, external_code, size_label, imported_at)
			VALUES (?, ?, ?, ?)
			ON CONFLICT(barcode) DO UPDATE SET
				external_code = excluded.external_code,
				size_label    = excluded.size_label,
				imported_at   = excluded.imported_at
			WHERE excluded.imported_at >= size_map.imported_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, e := range entries {
			barcode, ok := utils.NormalizeBarcode(e.Barcode)
			if !ok || e.ExternalCode == "" {
				st.Skipped++
				continue
			}
			imported := e.ImportedAt
			if imported.IsZero() {
				imported = now
			}
			res, err := stmt.ExecContext(ctx, barcode, e.ExternalCode, e.SizeLabel, formatTime(imported))
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n > 0 {
				st.Written++
			}
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	s.log.Info().Int("written", st.Written).Int("skipped", st.Skipped).Msg("size map imported")
	return st, nil
}

// UpsertListings merges listings of one marketplace keyed by SKU. Barcodes
// are kept raw; the linker normalizes them.
func (s *Store) UpsertListings(ctx context.Context, mp model.Marketplace, listings []model.Listing) (ImportStats, error) {
	st := ImportStats{Rows: len(listings)}
	now := time.Now()
	err := s.inTx(ctx, "upsert listings "+string(mp), func(tx *sql.Tx) error {
		stmt, err := tx.PrepareContext(ctx, `
			INSERT INTO listings (marketplace, sku, barcode, title, category, imported_at)
			VALUES (?, ?, ?, ?, ?, ?)
			ON CONFLICT(marketplace, sku) DO UPDATE SET
				barcode     = excluded.barcode,
				title       = excluded.title,
				category    = excluded.category,
				imported_at = excluded.imported_at`)
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, li := range listings {
			if li.SKU == "" {
				st.Skipped++
				continue
			}
			imported := li.ImportedAt
			if imported.IsZero() {
				imported = now
			}
			if _, err := stmt.ExecContext(ctx, string(mp), li.SKU, li.Barcode, li.Title, li.Category, formatTime(imported)); err != nil {
				return err
			}
			st.Written++
		}
		return nil
	})
	if err != nil {
		return ImportStats{}, err
	}
	s.log.Info().Str("marketplace", string(mp)).Int("written", st.Written).Int("skipped", st.Skipped).Msg("listings imported")
	return st, nil
}
