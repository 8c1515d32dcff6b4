package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"marketlink-service/internal/catalog/model"
)

const linkColumns = `id, barcode, sku_a, sku_b, confidence, title_similarity, category_match, source_ts, created_at, superseded_at`

func (s *Store) ActiveLink(ctx context.Context, barcode string) (*model.MarketplaceLink, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE barcode = ? AND superseded_at IS NULL`, barcode)
	return scanLink(row, "active link")
}

// LinkBySKU returns the active link whose side-dir SKU is sku; the most
// recent one wins if the SKU moved between barcodes.
func (s *Store) LinkBySKU(ctx context.Context, sku string, dir model.Direction) (*model.MarketplaceLink, error) {
	col := "sku_a"
	if dir == model.BtoA {
		col = "sku_b"
	}
	row := s.db.QueryRowContext(ctx,
		`SELECT `+linkColumns+` FROM links WHERE `+col+` = ? AND superseded_at IS NULL
		 ORDER BY source_ts DESC, id DESC LIMIT 1`, sku)
	return scanLink(row, "link by sku")
}

// ReplaceLink supersedes prev (if any) and inserts next atomically. Superseded
// rows stay for audit.
func (s *Store) ReplaceLink(ctx context.Context, prev *model.MarketplaceLink, next model.MarketplaceLink) error {
	return s.inTx(ctx, "replace link "+next.Barcode, func(tx *sql.Tx) error {
		if prev != nil {
			res, err := tx.ExecContext(ctx,
				`UPDATE links SET superseded_at = ? WHERE id = ? AND superseded_at IS NULL`,
				formatTime(next.CreatedAt), prev.ID)
			if err != nil {
				return err
			}
			if n, _ := res.RowsAffected(); n == 0 {
				return fmt.Errorf("link %d already superseded", prev.ID)
			}
		}
		_, err := tx.ExecContext(ctx, `
			INSERT INTO links (barcode, sku_a, sku_b, confidence, title_similarity, category_match, source_ts, created_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
			next.Barcode, next.SKUA, next.SKUB, next.Confidence, next.TitleSimilarity,
			boolInt(next.CategoryMatch), formatTime(next.SourceTimestamp), formatTime(next.CreatedAt))
		return err
	})
}

// LinkHistory returns every link row of a barcode, oldest first.
func (s *Store) LinkHistory(ctx context.Context, barcode string) ([]model.MarketplaceLink, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT `+linkColumns+` FROM links WHERE barcode = ? ORDER BY id`, barcode)
	if err != nil {
		return nil, storageErr("link history", err)
	}
	defer rows.Close()
	var out []model.MarketplaceLink
	for rows.Next() {
		l, err := scanLink(rows, "link history")
		if err != nil {
			return nil, err
		}
		out = append(out, *l)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("link history", err)
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

func scanLink(sc scanner, op string) (*model.MarketplaceLink, error) {
	var (
		l              model.MarketplaceLink
		catMatch       int
		srcTS, created string
		superseded     sql.NullString
	)
	err := sc.Scan(&l.ID, &l.Barcode, &l.SKUA, &l.SKUB, &l.Confidence, &l.TitleSimilarity,
		&catMatch, &srcTS, &created, &superseded)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr(op, err)
	}
	l.CategoryMatch = catMatch != 0
	if l.SourceTimestamp, err = parseTime(srcTS); err != nil {
		return nil, storageErr(op+": source_ts", err)
	}
	if l.CreatedAt, err = parseTime(created); err != nil {
		return nil, storageErr(op+": created_at", err)
	}
	if superseded.Valid {
		t, err := parseTime(superseded.String)
		if err != nil {
			return nil, storageErr(op+": superseded_at", err)
		}
		l.SupersededAt = &t
	}
	return &l, nil
}

func (s *Store) ListingsPage(ctx context.Context, mp model.Marketplace, afterSKU string, limit int) ([]model.Listing, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT marketplace, sku, barcode, title, category, imported_at
		FROM listings WHERE marketplace = ? AND sku > ? ORDER BY sku LIMIT ?`,
		string(mp), afterSKU, limit)
	if err != nil {
		return nil, storageErr("listings page", err)
	}
	defer rows.Close()

	var out []model.Listing
	for rows.Next() {
		var (
			li       model.Listing
			mpRaw    string
			imported string
		)
		if err := rows.Scan(&mpRaw, &li.SKU, &li.Barcode, &li.Title, &li.Category, &imported); err != nil {
			return nil, storageErr("listings page: scan", err)
		}
		li.Marketplace = model.Marketplace(mpRaw)
		if li.ImportedAt, err = parseTime(imported); err != nil {
			return nil, storageErr("listings page: imported_at", err)
		}
		out = append(out, li)
	}
	if err := rows.Err(); err != nil {
		return nil, storageErr("listings page", err)
	}
	return out, nil
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
